package server

import (
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Item is the demo resource owned by a signed-in user.
type Item struct {
	ID        string    `json:"id"`
	Owner     string    `json:"owner"`
	Name      string    `json:"name"`
	Done      bool      `json:"done"`
	CreatedAt time.Time `json:"createdAt"`
}

type itemStore struct {
	items map[string]Item
	lock  sync.RWMutex
}

func newItemStore() *itemStore {
	return &itemStore{items: make(map[string]Item)}
}

func (s *itemStore) create(owner, name string) Item {
	s.lock.Lock()
	defer s.lock.Unlock()
	it := Item{
		ID:        uuid.New().String(),
		Owner:     owner,
		Name:      name,
		CreatedAt: time.Now().UTC(),
	}
	s.items[it.ID] = it
	return it
}

// get returns the item only if owner owns it.
func (s *itemStore) get(owner, id string) (Item, bool) {
	s.lock.RLock()
	defer s.lock.RUnlock()
	it, ok := s.items[id]
	if !ok || it.Owner != owner {
		return Item{}, false
	}
	return it, true
}

func (s *itemStore) update(owner string, it Item) (Item, bool) {
	s.lock.Lock()
	defer s.lock.Unlock()
	existing, ok := s.items[it.ID]
	if !ok || existing.Owner != owner {
		return Item{}, false
	}
	existing.Name = it.Name
	existing.Done = it.Done
	s.items[it.ID] = existing
	return existing, true
}

func (s *itemStore) delete(owner, id string) bool {
	s.lock.Lock()
	defer s.lock.Unlock()
	it, ok := s.items[id]
	if !ok || it.Owner != owner {
		return false
	}
	delete(s.items, id)
	return true
}

// list returns items in creation order; an empty owner lists everything.
func (s *itemStore) list(owner string) []Item {
	s.lock.RLock()
	defer s.lock.RUnlock()
	out := make([]Item, 0, len(s.items))
	for _, it := range s.items {
		if owner == "" || it.Owner == owner {
			out = append(out, it)
		}
	}
	slices.SortFunc(out, func(a, b Item) int {
		if c := a.CreatedAt.Compare(b.CreatedAt); c != 0 {
			return c
		}
		return strings.Compare(a.ID, b.ID)
	})
	return out
}
