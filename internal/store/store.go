// Package store defines the Todo store contract and its in-memory implementation.
package store

import (
	"context"
	"errors"

	"github.com/google/uuid"

	"todoapi/internal/domain"
)

var ErrNotFound = errors.New("todo not found")

// MaxIDAttempts bounds the check-and-retry loop used when a generated id collides.
const MaxIDAttempts = 8

// Store is the exclusive owner of Todo records. Implementations assign ids and
// timestamps; the only expected failure is ErrNotFound.
type Store interface {
	List(ctx context.Context) ([]domain.Todo, error)
	Get(ctx context.Context, id string) (domain.Todo, error)
	Create(ctx context.Context, title string) (domain.Todo, error)
	Update(ctx context.Context, id string, patch domain.TodoPatch) (domain.Todo, error)
	Delete(ctx context.Context, id string) error
}

// NewID returns a random UUIDv4 string.
func NewID() string {
	return uuid.NewString()
}
