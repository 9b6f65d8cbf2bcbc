package engine

import (
	"context"
	"fmt"
	"strings"

	"github.com/rs/zerolog"

	"todoapi/internal/domain"
	"todoapi/internal/store"
)

// ValidationError reports malformed input. It is raised before the store is
// touched.
type ValidationError struct {
	Field   string
	Message string
}

func (e ValidationError) Error() string {
	if e.Field == "" {
		return e.Message
	}
	return fmt.Sprintf("%s %s", e.Field, e.Message)
}

type Engine struct {
	Store  store.Store
	Logger zerolog.Logger
}

func New(s store.Store, logger zerolog.Logger) Engine {
	return Engine{Store: s, Logger: logger}
}

func (e Engine) ListTodos(ctx context.Context) ([]domain.Todo, error) {
	todos, err := e.Store.List(ctx)
	if err != nil {
		e.Logger.Error().Err(err).Msg("failed to list todos")
		return nil, err
	}
	if todos == nil {
		todos = []domain.Todo{}
	}
	return todos, nil
}

func (e Engine) GetTodo(ctx context.Context, id string) (domain.Todo, error) {
	return e.Store.Get(ctx, id)
}

func (e Engine) CreateTodo(ctx context.Context, title string) (domain.Todo, error) {
	if err := validateTitle(title); err != nil {
		return domain.Todo{}, err
	}
	t, err := e.Store.Create(ctx, title)
	if err != nil {
		e.Logger.Error().Err(err).Msg("failed to create todo")
		return domain.Todo{}, err
	}
	e.Logger.Info().Str("todo_id", t.ID).Msg("created todo")
	return t, nil
}

func (e Engine) UpdateTodo(ctx context.Context, id string, patch domain.TodoPatch) (domain.Todo, error) {
	if patch.Title != nil {
		if err := validateTitle(*patch.Title); err != nil {
			return domain.Todo{}, err
		}
	}
	t, err := e.Store.Update(ctx, id, patch)
	if err != nil {
		return domain.Todo{}, err
	}
	e.Logger.Info().
		Str("todo_id", t.ID).
		Bool("completed", t.Completed).
		Msg("updated todo")
	return t, nil
}

func (e Engine) DeleteTodo(ctx context.Context, id string) error {
	if err := e.Store.Delete(ctx, id); err != nil {
		return err
	}
	e.Logger.Info().Str("todo_id", id).Msg("deleted todo")
	return nil
}

func validateTitle(title string) error {
	if strings.TrimSpace(title) == "" {
		return ValidationError{Field: "title", Message: "must not be empty"}
	}
	return nil
}
