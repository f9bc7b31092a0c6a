package credstore

import (
	"context"
	"encoding/json"
	"sort"
	"time"

	autherrors "github.com/jrsteele09/go-auth-client/internal/errors"
	"github.com/jrsteele09/go-auth-client/users"
)

// Logical keys of the persisted credential record. They are written and
// cleared together.
const (
	KeyAccessToken  = "auth.accessToken"
	KeyRefreshToken = "auth.refreshToken"
	KeyUserProfile  = "auth.userProfile"
	KeyProviderID   = "auth.providerId"
	KeyExpiresAt    = "auth.expiresAt"
)

// RecordKeys lists every key of the credential record.
var RecordKeys = []string{KeyAccessToken, KeyRefreshToken, KeyUserProfile, KeyProviderID, KeyExpiresAt}

// Store persists secrets by key. A missing key is not an error: Get returns
// ok=false and Remove does nothing. Write failures are *errors.StorageError.
type Store interface {
	Set(ctx context.Context, key, value string) error
	Get(ctx context.Context, key string) (value string, ok bool, err error)
	Remove(ctx context.Context, key string) error
	Clear(ctx context.Context) error
}

// BatchStore is implemented by stores that can apply several writes atomically.
type BatchStore interface {
	Store
	SetMany(ctx context.Context, values map[string]string) error
	RemoveMany(ctx context.Context, keys []string) error
}

// Record is the flattened projection of a session kept in the store.
type Record struct {
	AccessToken  string
	RefreshToken string
	ExpiresAt    time.Time
	Profile      users.Profile
	ProviderID   string
}

// SaveRecord writes every slot of rec as one unit. With a BatchStore the write
// is atomic; otherwise keys are written one by one and a failure puts back
// whatever the record held before.
func SaveRecord(ctx context.Context, s Store, rec Record) error {
	profile, err := json.Marshal(rec.Profile)
	if err != nil {
		return autherrors.NewStorageError("set", KeyUserProfile, err)
	}
	return setAll(ctx, s, map[string]string{
		KeyAccessToken:  rec.AccessToken,
		KeyRefreshToken: rec.RefreshToken,
		KeyUserProfile:  string(profile),
		KeyProviderID:   rec.ProviderID,
		KeyExpiresAt:    formatTime(rec.ExpiresAt),
	})
}

// UpdateTokens rewrites the token slots of an existing record. The profile
// and provider slots are left untouched.
func UpdateTokens(ctx context.Context, s Store, accessToken, refreshToken string, expiresAt time.Time) error {
	return setAll(ctx, s, map[string]string{
		KeyAccessToken:  accessToken,
		KeyRefreshToken: refreshToken,
		KeyExpiresAt:    formatTime(expiresAt),
	})
}

// LoadRecord reads the record. It returns (nil, nil) when the record is absent
// or incomplete, so callers can treat both as "signed out".
func LoadRecord(ctx context.Context, s Store) (*Record, error) {
	values := make(map[string]string, len(RecordKeys))
	for _, key := range RecordKeys {
		v, ok, err := s.Get(ctx, key)
		if err != nil {
			return nil, err
		}
		if !ok {
			return nil, nil
		}
		values[key] = v
	}
	if values[KeyAccessToken] == "" {
		return nil, nil
	}

	rec := &Record{
		AccessToken:  values[KeyAccessToken],
		RefreshToken: values[KeyRefreshToken],
		ProviderID:   values[KeyProviderID],
		ExpiresAt:    parseTime(values[KeyExpiresAt]),
	}
	if err := json.Unmarshal([]byte(values[KeyUserProfile]), &rec.Profile); err != nil {
		return nil, autherrors.NewStorageError("get", KeyUserProfile, err)
	}
	return rec, nil
}

// ClearRecord removes every slot of the record.
func ClearRecord(ctx context.Context, s Store) error {
	if bs, ok := s.(BatchStore); ok {
		return bs.RemoveMany(ctx, RecordKeys)
	}
	var firstErr error
	for _, key := range RecordKeys {
		if err := s.Remove(ctx, key); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

func setAll(ctx context.Context, s Store, values map[string]string) error {
	if bs, ok := s.(BatchStore); ok {
		return bs.SetMany(ctx, values)
	}

	keys := make([]string, 0, len(values))
	for key := range values {
		keys = append(keys, key)
	}
	sort.Strings(keys)

	// snapshot what is there now, so a failure can put it back
	before := make(map[string]prior, len(keys))
	for _, key := range keys {
		v, ok, err := s.Get(ctx, key)
		if err != nil {
			return err
		}
		before[key] = prior{value: v, ok: ok}
	}

	written := make([]string, 0, len(keys))
	for _, key := range keys {
		if err := s.Set(ctx, key, values[key]); err != nil {
			restore(ctx, s, written, before)
			return err
		}
		written = append(written, key)
	}
	return nil
}

type prior struct {
	value string
	ok    bool
}

// restore puts keys back to their earlier values, removing those that did
// not exist. It is best effort: a store that fails the write can fail this too.
func restore(ctx context.Context, s Store, keys []string, before map[string]prior) {
	for _, key := range keys {
		if p := before[key]; p.ok {
			_ = s.Set(ctx, key, p.value)
		} else {
			_ = s.Remove(ctx, key)
		}
	}
}

func formatTime(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format(time.RFC3339)
}

func parseTime(s string) time.Time {
	if s == "" {
		return time.Time{}
	}
	t, err := time.Parse(time.RFC3339, s)
	if err != nil {
		return time.Time{}
	}
	return t
}
