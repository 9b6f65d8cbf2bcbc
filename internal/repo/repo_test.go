package repo_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"todoapi/internal/db"
	"todoapi/internal/domain"
	"todoapi/internal/events"
	"todoapi/internal/migrate"
	"todoapi/internal/repo"
	"todoapi/internal/store"
	"todoapi/internal/store/storetest"
)

type testEnv struct {
	Repo  repo.Repo
	Ctx   context.Context
	Clock *time.Time
}

func newTestEnv(t *testing.T) testEnv {
	t.Helper()
	dir := t.TempDir()
	conn, err := db.Open(db.Config{Workspace: dir})
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	t.Cleanup(func() { conn.Close() })
	ctx := context.Background()
	if err := migrate.Migrate(ctx, conn); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	clock := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	r := repo.New(conn)
	r.Now = func() time.Time { return clock }
	r.Events = events.Writer{Now: func() time.Time { return clock }}
	return testEnv{Repo: r, Ctx: ctx, Clock: &clock}
}

func TestRepoContract(t *testing.T) {
	storetest.Run(t, func(t *testing.T) store.Store {
		conn, err := db.Open(db.Config{Workspace: t.TempDir()})
		if err != nil {
			t.Fatalf("open db: %v", err)
		}
		t.Cleanup(func() { conn.Close() })
		if err := migrate.Migrate(context.Background(), conn); err != nil {
			t.Fatalf("migrate: %v", err)
		}
		return repo.New(conn)
	})
}

func TestMigrateIsIdempotent(t *testing.T) {
	env := newTestEnv(t)
	if err := migrate.Migrate(env.Ctx, env.Repo.DB); err != nil {
		t.Fatalf("second migrate: %v", err)
	}
	got, err := migrate.Version(env.Ctx, env.Repo.DB)
	if err != nil {
		t.Fatal(err)
	}
	want, err := migrate.Latest()
	if err != nil {
		t.Fatal(err)
	}
	if got != want {
		t.Fatalf("schema version %d, want %d", got, want)
	}
}

func TestCreateGetRoundTrip(t *testing.T) {
	env := newTestEnv(t)
	created, err := env.Repo.Create(env.Ctx, "Buy milk")
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if created.Completed || !created.CreatedAt.Equal(created.UpdatedAt) {
		t.Fatalf("unexpected defaults %+v", created)
	}
	got, err := env.Repo.Get(env.Ctx, created.ID)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got.ID != created.ID || got.Title != created.Title || got.Completed != created.Completed ||
		!got.CreatedAt.Equal(created.CreatedAt) || !got.UpdatedAt.Equal(created.UpdatedAt) {
		t.Fatalf("round trip mismatch:\n got %+v\nwant %+v", got, created)
	}
}

func TestUpdateAndDelete(t *testing.T) {
	env := newTestEnv(t)
	created, _ := env.Repo.Create(env.Ctx, "Buy milk")
	*env.Clock = env.Clock.Add(time.Minute)
	done := true
	updated, err := env.Repo.Update(env.Ctx, created.ID, domain.TodoPatch{Completed: &done})
	if err != nil {
		t.Fatalf("update: %v", err)
	}
	if !updated.Completed || updated.Title != "Buy milk" {
		t.Fatalf("unexpected update %+v", updated)
	}
	if !updated.UpdatedAt.After(created.UpdatedAt) || !updated.CreatedAt.Equal(created.CreatedAt) {
		t.Fatalf("bad timestamps %+v", updated)
	}
	if err := env.Repo.Delete(env.Ctx, created.ID); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if _, err := env.Repo.Get(env.Ctx, created.ID); !errors.Is(err, store.ErrNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
}

func TestUnknownIDs(t *testing.T) {
	env := newTestEnv(t)
	if _, err := env.Repo.Get(env.Ctx, "nope"); !errors.Is(err, store.ErrNotFound) {
		t.Fatalf("get: %v", err)
	}
	if _, err := env.Repo.Update(env.Ctx, "nope", domain.TodoPatch{}); !errors.Is(err, store.ErrNotFound) {
		t.Fatalf("update: %v", err)
	}
	if err := env.Repo.Delete(env.Ctx, "nope"); !errors.Is(err, store.ErrNotFound) {
		t.Fatalf("delete: %v", err)
	}
	evts, err := env.Repo.LatestEvents(env.Ctx, 10, "", "")
	if err != nil {
		t.Fatal(err)
	}
	if len(evts) != 0 {
		t.Fatalf("failed mutations must not log events, got %d", len(evts))
	}
}

func TestListInsertionOrder(t *testing.T) {
	env := newTestEnv(t)
	var ids []string
	for _, title := range []string{"a", "b", "c"} {
		td, err := env.Repo.Create(env.Ctx, title)
		if err != nil {
			t.Fatal(err)
		}
		ids = append(ids, td.ID)
	}
	todos, err := env.Repo.List(env.Ctx)
	if err != nil {
		t.Fatal(err)
	}
	if len(todos) != 3 {
		t.Fatalf("expected 3 todos, got %d", len(todos))
	}
	for i, td := range todos {
		if td.ID != ids[i] {
			t.Fatalf("position %d: got %s want %s", i, td.ID, ids[i])
		}
	}
}

func TestCreateRetriesCollidingID(t *testing.T) {
	env := newTestEnv(t)
	ids := []string{"fixed", "fixed", "other"}
	env.Repo.NewID = func() string {
		id := ids[0]
		ids = ids[1:]
		return id
	}
	if _, err := env.Repo.Create(env.Ctx, "one"); err != nil {
		t.Fatal(err)
	}
	second, err := env.Repo.Create(env.Ctx, "two")
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if second.ID != "other" {
		t.Fatalf("expected retried id, got %s", second.ID)
	}
}

func TestMutationsAppendEvents(t *testing.T) {
	env := newTestEnv(t)
	created, _ := env.Repo.Create(env.Ctx, "x")
	title := "y"
	if _, err := env.Repo.Update(env.Ctx, created.ID, domain.TodoPatch{Title: &title}); err != nil {
		t.Fatal(err)
	}
	if err := env.Repo.Delete(env.Ctx, created.ID); err != nil {
		t.Fatal(err)
	}
	evts, err := env.Repo.LatestEvents(env.Ctx, 10, "", created.ID)
	if err != nil {
		t.Fatal(err)
	}
	want := []string{events.TodoDeleted, events.TodoUpdated, events.TodoCreated}
	if len(evts) != len(want) {
		t.Fatalf("expected %d events, got %d", len(want), len(evts))
	}
	for i, e := range evts {
		if e.Type != want[i] {
			t.Fatalf("event %d: got %s want %s", i, e.Type, want[i])
		}
	}
	onlyUpdates, err := env.Repo.LatestEvents(env.Ctx, 10, events.TodoUpdated, "")
	if err != nil {
		t.Fatal(err)
	}
	if len(onlyUpdates) != 1 || onlyUpdates[0].Payload != `{"title":"y"}` {
		t.Fatalf("unexpected filtered events %+v", onlyUpdates)
	}
}
