package store_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"todoapi/internal/domain"
	"todoapi/internal/store"
	"todoapi/internal/store/storetest"
)

func TestMemoryContract(t *testing.T) {
	storetest.Run(t, func(t *testing.T) store.Store { return store.NewMemory() })
}

func newTestMemory(t *testing.T) (*store.Memory, *time.Time) {
	t.Helper()
	clock := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	m := store.NewMemory()
	m.Now = func() time.Time { return clock }
	return m, &clock
}

func TestCreateDefaults(t *testing.T) {
	m, _ := newTestMemory(t)
	ctx := context.Background()
	todo, err := m.Create(ctx, "Buy milk")
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if todo.ID == "" {
		t.Fatalf("expected id to be assigned")
	}
	if todo.Title != "Buy milk" || todo.Completed {
		t.Fatalf("unexpected todo %+v", todo)
	}
	if !todo.CreatedAt.Equal(todo.UpdatedAt) {
		t.Fatalf("createdAt %v != updatedAt %v", todo.CreatedAt, todo.UpdatedAt)
	}
}

func TestIDsAreDistinct(t *testing.T) {
	m, _ := newTestMemory(t)
	ctx := context.Background()
	seen := map[string]bool{}
	for i := 0; i < 200; i++ {
		todo, err := m.Create(ctx, "task")
		if err != nil {
			t.Fatalf("create %d: %v", i, err)
		}
		if seen[todo.ID] {
			t.Fatalf("duplicate id %s", todo.ID)
		}
		seen[todo.ID] = true
	}
}

func TestCreateRetriesCollidingID(t *testing.T) {
	m, _ := newTestMemory(t)
	ctx := context.Background()
	ids := []string{"a", "a", "a", "b"}
	m.NewID = func() string {
		id := ids[0]
		ids = ids[1:]
		return id
	}
	first, err := m.Create(ctx, "one")
	if err != nil || first.ID != "a" {
		t.Fatalf("first create: %+v %v", first, err)
	}
	second, err := m.Create(ctx, "two")
	if err != nil {
		t.Fatalf("second create: %v", err)
	}
	if second.ID != "b" {
		t.Fatalf("expected retry to land on b, got %s", second.ID)
	}
}

func TestCreateFailsWhenIDsExhausted(t *testing.T) {
	m, _ := newTestMemory(t)
	ctx := context.Background()
	m.NewID = func() string { return "same" }
	if _, err := m.Create(ctx, "one"); err != nil {
		t.Fatalf("first create: %v", err)
	}
	if _, err := m.Create(ctx, "two"); err == nil {
		t.Fatalf("expected collision error")
	}
	todos, _ := m.List(ctx)
	if len(todos) != 1 {
		t.Fatalf("expected 1 todo, got %d", len(todos))
	}
}

func TestUpdatePartial(t *testing.T) {
	m, clock := newTestMemory(t)
	ctx := context.Background()
	todo, _ := m.Create(ctx, "Buy milk")
	*clock = clock.Add(time.Minute)
	done := true
	updated, err := m.Update(ctx, todo.ID, domain.TodoPatch{Completed: &done})
	if err != nil {
		t.Fatalf("update: %v", err)
	}
	if updated.Title != "Buy milk" || !updated.Completed {
		t.Fatalf("unexpected update result %+v", updated)
	}
	if !updated.UpdatedAt.After(todo.UpdatedAt) {
		t.Fatalf("updatedAt not bumped: %v -> %v", todo.UpdatedAt, updated.UpdatedAt)
	}
	if !updated.CreatedAt.Equal(todo.CreatedAt) {
		t.Fatalf("createdAt changed")
	}

	title := "Buy oat milk"
	renamed, err := m.Update(ctx, todo.ID, domain.TodoPatch{Title: &title})
	if err != nil {
		t.Fatalf("rename: %v", err)
	}
	if renamed.Title != title || !renamed.Completed {
		t.Fatalf("rename touched other fields: %+v", renamed)
	}
}

func TestUpdateWithoutFieldsStillStamps(t *testing.T) {
	m, clock := newTestMemory(t)
	ctx := context.Background()
	todo, _ := m.Create(ctx, "x")
	*clock = clock.Add(time.Second)
	updated, err := m.Update(ctx, todo.ID, domain.TodoPatch{})
	if err != nil {
		t.Fatalf("update: %v", err)
	}
	if !updated.UpdatedAt.After(todo.UpdatedAt) {
		t.Fatalf("expected updatedAt to move forward")
	}
}

func TestUpdatedAtNeverMovesBackwards(t *testing.T) {
	m, clock := newTestMemory(t)
	ctx := context.Background()
	todo, _ := m.Create(ctx, "x")
	*clock = clock.Add(-time.Hour)
	updated, err := m.Update(ctx, todo.ID, domain.TodoPatch{})
	if err != nil {
		t.Fatalf("update: %v", err)
	}
	if updated.UpdatedAt.Before(todo.UpdatedAt) {
		t.Fatalf("updatedAt went backwards: %v -> %v", todo.UpdatedAt, updated.UpdatedAt)
	}
}

func TestDeleteThenGet(t *testing.T) {
	m, _ := newTestMemory(t)
	ctx := context.Background()
	todo, _ := m.Create(ctx, "x")
	if err := m.Delete(ctx, todo.ID); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if _, err := m.Get(ctx, todo.ID); !errors.Is(err, store.ErrNotFound) {
		t.Fatalf("expected not found after delete, got %v", err)
	}
}

func TestUnknownIDNotFound(t *testing.T) {
	m, _ := newTestMemory(t)
	ctx := context.Background()
	if _, err := m.Get(ctx, "missing"); !errors.Is(err, store.ErrNotFound) {
		t.Fatalf("get: %v", err)
	}
	done := true
	if _, err := m.Update(ctx, "missing", domain.TodoPatch{Completed: &done}); !errors.Is(err, store.ErrNotFound) {
		t.Fatalf("update: %v", err)
	}
	if err := m.Delete(ctx, "missing"); !errors.Is(err, store.ErrNotFound) {
		t.Fatalf("delete: %v", err)
	}
}

func TestListKeepsInsertionOrder(t *testing.T) {
	m, _ := newTestMemory(t)
	ctx := context.Background()
	a, _ := m.Create(ctx, "a")
	b, _ := m.Create(ctx, "b")
	c, _ := m.Create(ctx, "c")
	if err := m.Delete(ctx, b.ID); err != nil {
		t.Fatal(err)
	}
	todos, err := m.List(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if len(todos) != 2 || todos[0].ID != a.ID || todos[1].ID != c.ID {
		t.Fatalf("unexpected order %+v", todos)
	}
}

func TestListReturnsCopies(t *testing.T) {
	m, _ := newTestMemory(t)
	ctx := context.Background()
	todo, _ := m.Create(ctx, "original")
	todos, _ := m.List(ctx)
	todos[0].Title = "mutated"
	got, _ := m.Get(ctx, todo.ID)
	if got.Title != "original" {
		t.Fatalf("store leaked internal state: %q", got.Title)
	}
}
