package storage

import (
	"context"
	"fmt"
	"sync"

	"github.com/example/ride-dispatch/internal/models"
)

type MemoryStore struct {
	mu        sync.RWMutex
	orders    map[string]*models.Order
	positions map[string]*models.DriverPosition
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		orders:    make(map[string]*models.Order),
		positions: make(map[string]*models.DriverPosition),
	}
}

// memTx buffers writes until the surrounding InTx commits.
type memTx struct {
	staged []*models.Order
}

func (t *memTx) SaveOrder(_ context.Context, o *models.Order) error {
	cp := *o
	t.staged = append(t.staged, &cp)
	return nil
}

func (m *MemoryStore) InTx(ctx context.Context, fn func(tx OrderTx) error) error {
	tx := &memTx{}
	if err := fn(tx); err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, o := range tx.staged {
		if _, dup := m.orders[o.ID]; dup {
			return fmt.Errorf("order %s already exists", o.ID)
		}
	}
	for _, o := range tx.staged {
		m.orders[o.ID] = o
	}
	return nil
}

func (m *MemoryStore) GetOrder(_ context.Context, id string) (*models.Order, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	o, ok := m.orders[id]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *o
	return &cp, nil
}

// Orders returns a copy of every committed order.
func (m *MemoryStore) Orders() []models.Order {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]models.Order, 0, len(m.orders))
	for _, o := range m.orders {
		out = append(out, *o)
	}
	return out
}

func (m *MemoryStore) SavePosition(_ context.Context, p *models.DriverPosition) error {
	cp := *p
	m.mu.Lock()
	defer m.mu.Unlock()
	m.positions[p.DriverID] = &cp
	return nil
}

func (m *MemoryStore) GetPosition(_ context.Context, driverID string) (*models.DriverPosition, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	p, ok := m.positions[driverID]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *p
	return &cp, nil
}

func (m *MemoryStore) PositionCount() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.positions)
}
