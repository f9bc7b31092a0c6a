package credstore

import (
	"context"
	"sync"

	autherrors "github.com/jrsteele09/go-auth-client/internal/errors"
)

var _ BatchStore = (*MemoryStore)(nil)

// MemoryStore keeps credentials in process memory. It is the store used in
// tests and by the "memory" backend; nothing survives a restart unless the
// same instance is reused.
type MemoryStore struct {
	values map[string]string
	lock   sync.RWMutex

	// FailWrites, when set, is consulted before every write. A non-nil result
	// is returned as a StorageError and the write is skipped.
	FailWrites func(op, key string) error
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		values: make(map[string]string),
	}
}

func (m *MemoryStore) Set(_ context.Context, key, value string) error {
	m.lock.Lock()
	defer m.lock.Unlock()

	if err := m.checkWrite("set", key); err != nil {
		return err
	}
	m.values[key] = value
	return nil
}

func (m *MemoryStore) Get(_ context.Context, key string) (string, bool, error) {
	m.lock.RLock()
	defer m.lock.RUnlock()

	v, ok := m.values[key]
	return v, ok, nil
}

func (m *MemoryStore) Remove(_ context.Context, key string) error {
	m.lock.Lock()
	defer m.lock.Unlock()

	if err := m.checkWrite("remove", key); err != nil {
		return err
	}
	delete(m.values, key)
	return nil
}

func (m *MemoryStore) Clear(_ context.Context) error {
	m.lock.Lock()
	defer m.lock.Unlock()

	if err := m.checkWrite("clear", ""); err != nil {
		return err
	}
	m.values = make(map[string]string)
	return nil
}

func (m *MemoryStore) SetMany(_ context.Context, values map[string]string) error {
	m.lock.Lock()
	defer m.lock.Unlock()

	for k := range values {
		if err := m.checkWrite("set", k); err != nil {
			return err
		}
	}
	for k, v := range values {
		m.values[k] = v
	}
	return nil
}

func (m *MemoryStore) RemoveMany(_ context.Context, keys []string) error {
	m.lock.Lock()
	defer m.lock.Unlock()

	for _, k := range keys {
		if err := m.checkWrite("remove", k); err != nil {
			return err
		}
	}
	for _, k := range keys {
		delete(m.values, k)
	}
	return nil
}

// Len returns the number of stored keys.
func (m *MemoryStore) Len() int {
	m.lock.RLock()
	defer m.lock.RUnlock()
	return len(m.values)
}

func (m *MemoryStore) checkWrite(op, key string) error {
	if m.FailWrites == nil {
		return nil
	}
	return autherrors.NewStorageError(op, key, m.FailWrites(op, key))
}
