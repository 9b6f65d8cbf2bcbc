package store

import (
	"context"
	"fmt"
	"sync"
	"time"

	"todoapi/internal/domain"
)

// Memory keeps Todos in process memory. State is lost on restart and is not
// shared between processes.
type Memory struct {
	Now   func() time.Time
	NewID func() string

	mu    sync.RWMutex
	todos map[string]*domain.Todo
	order []string
}

func NewMemory() *Memory {
	return &Memory{
		Now:   time.Now,
		NewID: NewID,
		todos: make(map[string]*domain.Todo),
	}
}

func (m *Memory) now() time.Time {
	if m.Now != nil {
		return domain.Stamp(m.Now())
	}
	return domain.Stamp(time.Now())
}

func (m *Memory) List(_ context.Context) ([]domain.Todo, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	res := make([]domain.Todo, 0, len(m.order))
	for _, id := range m.order {
		res = append(res, *m.todos[id])
	}
	return res, nil
}

func (m *Memory) Get(_ context.Context, id string) (domain.Todo, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	t, ok := m.todos[id]
	if !ok {
		return domain.Todo{}, ErrNotFound
	}
	return *t, nil
}

func (m *Memory) Create(_ context.Context, title string) (domain.Todo, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	id, err := m.uniqueID()
	if err != nil {
		return domain.Todo{}, err
	}
	now := m.now()
	t := &domain.Todo{
		ID:        id,
		Title:     title,
		Completed: false,
		CreatedAt: now,
		UpdatedAt: now,
	}
	m.todos[id] = t
	m.order = append(m.order, id)
	return *t, nil
}

func (m *Memory) Update(_ context.Context, id string, patch domain.TodoPatch) (domain.Todo, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	t, ok := m.todos[id]
	if !ok {
		return domain.Todo{}, ErrNotFound
	}
	patch.Apply(t, m.now())
	return *t, nil
}

func (m *Memory) Delete(_ context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.todos[id]; !ok {
		return ErrNotFound
	}
	delete(m.todos, id)
	for i, existing := range m.order {
		if existing == id {
			m.order = append(m.order[:i], m.order[i+1:]...)
			break
		}
	}
	return nil
}

// uniqueID must be called with mu held.
func (m *Memory) uniqueID() (string, error) {
	gen := m.NewID
	if gen == nil {
		gen = NewID
	}
	for i := 0; i < MaxIDAttempts; i++ {
		id := gen()
		if id == "" {
			continue
		}
		if _, taken := m.todos[id]; !taken {
			return id, nil
		}
	}
	return "", fmt.Errorf("generate todo id: %d attempts collided", MaxIDAttempts)
}
