package order

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
)

// MemoryStore is an in-process Store for tests and local runs without Postgres.
type MemoryStore struct {
	mu     sync.Mutex
	orders map[uuid.UUID]Order
}

// NewMemoryStore returns an empty store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{orders: make(map[uuid.UUID]Order)}
}

// Create implements Store.
func (m *MemoryStore) Create(_ context.Context, o Order) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, existing := range m.orders {
		if existing.Reference == o.Reference {
			return ErrDuplicate
		}
	}
	if o.CreatedAt.IsZero() {
		o.CreatedAt = time.Now()
	}
	o.UpdatedAt = o.CreatedAt
	m.orders[o.ID] = o
	return nil
}

// AttachPayment implements Store.
func (m *MemoryStore) AttachPayment(_ context.Context, id uuid.UUID, p Payment) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	o, ok := m.orders[id]
	if !ok {
		return ErrNotFound
	}
	o.Payment = &p
	o.UpdatedAt = time.Now()
	m.orders[id] = o
	return nil
}

// Get implements Store.
func (m *MemoryStore) Get(_ context.Context, id uuid.UUID) (Order, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	o, ok := m.orders[id]
	if !ok {
		return Order{}, ErrNotFound
	}
	return o, nil
}

// UpdateStatus implements Store.
func (m *MemoryStore) UpdateStatus(_ context.Context, id uuid.UUID, status string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	o, ok := m.orders[id]
	if !ok {
		return false, ErrNotFound
	}
	if !CanTransition(o.Status, status) {
		return false, ErrInvalidTransition
	}
	if o.Status == status {
		return false, nil
	}
	o.Status = status
	o.UpdatedAt = time.Now()
	m.orders[id] = o
	return true, nil
}

// Len reports how many orders are stored.
func (m *MemoryStore) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.orders)
}
