package credstore

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"

	autherrors "github.com/jrsteele09/go-auth-client/internal/errors"
	_ "github.com/mattn/go-sqlite3" // SQLite driver
	"github.com/pkg/errors"
)

const (
	dirPermissions = 0700
	busyTimeoutMS  = 5000
)

const createCredentialsTable = `
CREATE TABLE IF NOT EXISTS credentials (
	key   TEXT PRIMARY KEY,
	value TEXT NOT NULL
)`

const upsertCredential = `
INSERT INTO credentials (key, value) VALUES (?, ?)
ON CONFLICT(key) DO UPDATE SET value = excluded.value`

var _ BatchStore = (*SQLiteStore)(nil)

// SQLiteStore persists credentials in a single-table SQLite file. Batched
// writes run in one transaction.
type SQLiteStore struct {
	db *sql.DB
}

// OpenSQLite opens (or creates) the database at path. Use ":memory:" for an
// ephemeral database.
func OpenSQLite(ctx context.Context, path string) (*SQLiteStore, error) {
	dsn := ":memory:"
	if path != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(path), dirPermissions); err != nil {
			return nil, errors.Wrap(err, "[OpenSQLite] creating database directory")
		}
		dsn = fmt.Sprintf("file:%s?_busy_timeout=%d&_journal_mode=WAL", path, busyTimeoutMS)
	}

	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, errors.Wrap(err, "[OpenSQLite] sql.Open")
	}
	// a single connection keeps ":memory:" databases shared and serialises writers
	db.SetMaxOpenConns(1)

	if _, err := db.ExecContext(ctx, createCredentialsTable); err != nil {
		_ = db.Close()
		return nil, errors.Wrap(err, "[OpenSQLite] create table")
	}
	return &SQLiteStore{db: db}, nil
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

func (s *SQLiteStore) Set(ctx context.Context, key, value string) error {
	if _, err := s.db.ExecContext(ctx, upsertCredential, key, value); err != nil {
		return autherrors.NewStorageError("set", key, err)
	}
	return nil
}

func (s *SQLiteStore) Get(ctx context.Context, key string) (string, bool, error) {
	var value string
	err := s.db.QueryRowContext(ctx, `SELECT value FROM credentials WHERE key = ?`, key).Scan(&value)
	if errors.Is(err, sql.ErrNoRows) {
		return "", false, nil
	}
	if err != nil {
		return "", false, autherrors.NewStorageError("get", key, err)
	}
	return value, true, nil
}

func (s *SQLiteStore) Remove(ctx context.Context, key string) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM credentials WHERE key = ?`, key); err != nil {
		return autherrors.NewStorageError("remove", key, err)
	}
	return nil
}

func (s *SQLiteStore) Clear(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM credentials`); err != nil {
		return autherrors.NewStorageError("clear", "", err)
	}
	return nil
}

func (s *SQLiteStore) SetMany(ctx context.Context, values map[string]string) error {
	return s.inTx(ctx, "set", func(tx *sql.Tx) (string, error) {
		for k, v := range values {
			if _, err := tx.ExecContext(ctx, upsertCredential, k, v); err != nil {
				return k, err
			}
		}
		return "", nil
	})
}

func (s *SQLiteStore) RemoveMany(ctx context.Context, keys []string) error {
	return s.inTx(ctx, "remove", func(tx *sql.Tx) (string, error) {
		for _, k := range keys {
			if _, err := tx.ExecContext(ctx, `DELETE FROM credentials WHERE key = ?`, k); err != nil {
				return k, err
			}
		}
		return "", nil
	})
}

func (s *SQLiteStore) inTx(ctx context.Context, op string, fn func(*sql.Tx) (string, error)) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return autherrors.NewStorageError(op, "", err)
	}
	if key, err := fn(tx); err != nil {
		_ = tx.Rollback()
		return autherrors.NewStorageError(op, key, err)
	}
	if err := tx.Commit(); err != nil {
		return autherrors.NewStorageError(op, "", err)
	}
	return nil
}
