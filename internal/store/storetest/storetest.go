// Package storetest holds the behavioural checks every store.Store must pass.
package storetest

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"

	"todoapi/internal/domain"
	"todoapi/internal/store"
)

// Run exercises the store contract against fresh stores returned by open.
func Run(t *testing.T, open func(t *testing.T) store.Store) {
	t.Run("CreateThenGet", func(t *testing.T) {
		s, ctx := open(t), context.Background()
		created, err := s.Create(ctx, "Buy milk")
		if err != nil {
			t.Fatalf("create: %v", err)
		}
		if created.ID == "" || created.Completed || created.Title != "Buy milk" {
			t.Fatalf("unexpected todo %+v", created)
		}
		if !created.CreatedAt.Equal(created.UpdatedAt) {
			t.Fatalf("fresh todo has createdAt %v updatedAt %v", created.CreatedAt, created.UpdatedAt)
		}
		got, err := s.Get(ctx, created.ID)
		if err != nil {
			t.Fatalf("get: %v", err)
		}
		assertSame(t, got, created)
	})

	t.Run("PartialUpdate", func(t *testing.T) {
		s, ctx := open(t), context.Background()
		created, _ := s.Create(ctx, "Buy milk")
		done := true
		updated, err := s.Update(ctx, created.ID, domain.TodoPatch{Completed: &done})
		if err != nil {
			t.Fatalf("update: %v", err)
		}
		if !updated.Completed || updated.Title != created.Title {
			t.Fatalf("patch touched absent fields: %+v", updated)
		}
		if !updated.CreatedAt.Equal(created.CreatedAt) || updated.UpdatedAt.Before(created.UpdatedAt) {
			t.Fatalf("bad timestamps after update: %+v", updated)
		}
		title := "Buy oat milk"
		renamed, err := s.Update(ctx, created.ID, domain.TodoPatch{Title: &title})
		if err != nil {
			t.Fatalf("rename: %v", err)
		}
		if renamed.Title != title || !renamed.Completed {
			t.Fatalf("rename lost completion: %+v", renamed)
		}
		got, _ := s.Get(ctx, created.ID)
		assertSame(t, got, renamed)
	})

	t.Run("DeleteRemoves", func(t *testing.T) {
		s, ctx := open(t), context.Background()
		created, _ := s.Create(ctx, "temp")
		if err := s.Delete(ctx, created.ID); err != nil {
			t.Fatalf("delete: %v", err)
		}
		if _, err := s.Get(ctx, created.ID); !errors.Is(err, store.ErrNotFound) {
			t.Fatalf("get after delete: %v", err)
		}
		if err := s.Delete(ctx, created.ID); !errors.Is(err, store.ErrNotFound) {
			t.Fatalf("second delete: %v", err)
		}
		todos, _ := s.List(ctx)
		if len(todos) != 0 {
			t.Fatalf("list after delete has %d todos", len(todos))
		}
	})

	t.Run("UnknownID", func(t *testing.T) {
		s, ctx := open(t), context.Background()
		done := true
		if _, err := s.Get(ctx, "missing"); !errors.Is(err, store.ErrNotFound) {
			t.Fatalf("get: %v", err)
		}
		if _, err := s.Update(ctx, "missing", domain.TodoPatch{Completed: &done}); !errors.Is(err, store.ErrNotFound) {
			t.Fatalf("update: %v", err)
		}
		if err := s.Delete(ctx, "missing"); !errors.Is(err, store.ErrNotFound) {
			t.Fatalf("delete: %v", err)
		}
	})

	t.Run("ListInsertionOrder", func(t *testing.T) {
		s, ctx := open(t), context.Background()
		var ids []string
		for i := 0; i < 5; i++ {
			td, err := s.Create(ctx, fmt.Sprintf("todo %d", i))
			if err != nil {
				t.Fatal(err)
			}
			ids = append(ids, td.ID)
		}
		if err := s.Delete(ctx, ids[2]); err != nil {
			t.Fatal(err)
		}
		ids = append(ids[:2], ids[3:]...)
		todos, err := s.List(ctx)
		if err != nil {
			t.Fatal(err)
		}
		if len(todos) != len(ids) {
			t.Fatalf("expected %d todos, got %d", len(ids), len(todos))
		}
		for i, td := range todos {
			if td.ID != ids[i] {
				t.Fatalf("position %d: got %s want %s", i, td.ID, ids[i])
			}
		}
	})

	t.Run("ConcurrentCreates", func(t *testing.T) {
		s, ctx := open(t), context.Background()
		const n = 20
		var wg sync.WaitGroup
		errs := make(chan error, n)
		for i := 0; i < n; i++ {
			wg.Add(1)
			go func(i int) {
				defer wg.Done()
				if _, err := s.Create(ctx, fmt.Sprintf("todo %d", i)); err != nil {
					errs <- err
				}
			}(i)
		}
		wg.Wait()
		close(errs)
		for err := range errs {
			t.Fatalf("concurrent create: %v", err)
		}
		todos, err := s.List(ctx)
		if err != nil {
			t.Fatal(err)
		}
		seen := map[string]bool{}
		for _, td := range todos {
			if seen[td.ID] {
				t.Fatalf("duplicate id %s", td.ID)
			}
			seen[td.ID] = true
		}
		if len(seen) != n {
			t.Fatalf("expected %d todos, got %d", n, len(seen))
		}
	})
}

func assertSame(t *testing.T, got, want domain.Todo) {
	t.Helper()
	if got.ID != want.ID || got.Title != want.Title || got.Completed != want.Completed ||
		!got.CreatedAt.Equal(want.CreatedAt) || !got.UpdatedAt.Equal(want.UpdatedAt) {
		t.Fatalf("todo mismatch:\n got %+v\nwant %+v", got, want)
	}
}
