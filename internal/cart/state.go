package cart

import (
	"context"
	"encoding/json"
	"sync"
)

// Committer is the authoritative cart a tab renders from.
type Committer interface {
	Snapshot() Cart
	Commit(ctx context.Context, c Cart) error
}

// State is the in-tab shared cart. Readers get copies; subscribers are called
// after every commit with the committed cart.
type State struct {
	mu   sync.RWMutex
	cart Cart
	subs []func(Cart)
}

func NewState(initial Cart) *State {
	return &State{cart: initial.Clone()}
}

func (s *State) Snapshot() Cart {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.cart.Clone()
}

// Commit replaces the cart. It refuses to commit once ctx is done.
func (s *State) Commit(ctx context.Context, c Cart) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	s.cart = c.Clone()
	subs := append([]func(Cart){}, s.subs...)
	s.mu.Unlock()
	for _, fn := range subs {
		fn(c.Clone())
	}
	return nil
}

// Clear empties the cart, as on sign-out.
func (s *State) Clear(ctx context.Context) error {
	return s.Commit(ctx, New(nil))
}

func (s *State) Subscribe(fn func(Cart)) {
	s.mu.Lock()
	s.subs = append(s.subs, fn)
	s.mu.Unlock()
}

// ---------------------------------------------------------------------------
// Transient storage
// ---------------------------------------------------------------------------

// Storage is a tab-scoped key/value store. The pending item uses one slot of it.
type Storage interface {
	Get(key string) (string, bool)
	Set(key, value string)
	Delete(key string)
}

type MemoryStorage struct {
	mu   sync.Mutex
	data map[string]string
}

func NewMemoryStorage() *MemoryStorage {
	return &MemoryStorage{data: make(map[string]string)}
}

func (m *MemoryStorage) Get(key string) (string, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	v, ok := m.data[key]
	return v, ok
}

func (m *MemoryStorage) Set(key, value string) {
	m.mu.Lock()
	m.data[key] = value
	m.mu.Unlock()
}

func (m *MemoryStorage) Delete(key string) {
	m.mu.Lock()
	delete(m.data, key)
	m.mu.Unlock()
}

// StagePending writes item into the pending slot, replacing anything already there.
func StagePending(st Storage, item Item) error {
	qty := item.Quantity
	if qty < 1 {
		qty = 1
	}
	raw, err := json.Marshal(PendingItem{
		ID:        item.ID,
		Title:     item.Title,
		Condition: item.Condition,
		Storage:   item.Storage,
		Color:     item.Color,
		Price:     item.Price,
		Image:     item.Image,
		Quantity:  &qty,
	})
	if err != nil {
		return err
	}
	st.Set(PendingItemKey, string(raw))
	return nil
}
