package storage

import (
	"context"
	"sync"

	"github.com/example/dispatch-console/internal/models"
)

// AssignmentStore is the audit sink for the assignment ledger. The board
// keeps the authoritative in-memory state; this is history that survives
// a restart when backed by postgres.
type AssignmentStore interface {
	SaveAssignment(ctx context.Context, a models.Assignment) error
	UpdateAssignmentStatus(ctx context.Context, id string, status models.AssignmentStatus) error
	ListAssignments(ctx context.Context) ([]models.Assignment, error)
}

type MemoryStore struct {
	mu    sync.RWMutex
	items map[string]models.Assignment
	order []string
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{items: make(map[string]models.Assignment)}
}

func (m *MemoryStore) SaveAssignment(ctx context.Context, a models.Assignment) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.items[a.ID]; !ok {
		m.order = append(m.order, a.ID)
	}
	m.items[a.ID] = a
	return nil
}

func (m *MemoryStore) UpdateAssignmentStatus(ctx context.Context, id string, status models.AssignmentStatus) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	a, ok := m.items[id]
	if !ok {
		return nil
	}
	a.Status = status
	m.items[id] = a
	return nil
}

func (m *MemoryStore) ListAssignments(ctx context.Context) ([]models.Assignment, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]models.Assignment, 0, len(m.order))
	for _, id := range m.order {
		out = append(out, m.items[id])
	}
	return out, nil
}
