// Package repo implements the Todo store on SQLite.
package repo

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"todoapi/internal/domain"
	"todoapi/internal/events"
	"todoapi/internal/store"
)

// Repo is a durable store.Store. Every mutation appends an event in the same
// transaction.
type Repo struct {
	DB     *sql.DB
	Events events.Writer
	Now    func() time.Time
	NewID  func() string
}

var _ store.Store = Repo{}

func New(db *sql.DB) Repo {
	return Repo{
		DB:     db,
		Events: events.Writer{Now: time.Now},
		Now:    time.Now,
		NewID:  store.NewID,
	}
}

func (r Repo) now() time.Time {
	if r.Now != nil {
		return domain.Stamp(r.Now())
	}
	return domain.Stamp(time.Now())
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanTodo(row rowScanner) (domain.Todo, error) {
	var (
		t                domain.Todo
		completed        int
		created, updated string
	)
	err := row.Scan(&t.ID, &t.Title, &completed, &created, &updated)
	if errors.Is(err, sql.ErrNoRows) {
		return t, store.ErrNotFound
	}
	if err != nil {
		return t, err
	}
	t.Completed = completed != 0
	if t.CreatedAt, err = parseTime(created); err != nil {
		return t, err
	}
	if t.UpdatedAt, err = parseTime(updated); err != nil {
		return t, err
	}
	return t, nil
}

func parseTime(v string) (time.Time, error) {
	ts, err := time.Parse(domain.TimeLayout, v)
	if err != nil {
		return time.Time{}, fmt.Errorf("parse timestamp %q: %w", v, err)
	}
	return ts.UTC(), nil
}

const selectTodo = `SELECT id,title,completed,created_at,updated_at FROM todos`

func (r Repo) List(ctx context.Context) ([]domain.Todo, error) {
	rows, err := r.DB.QueryContext(ctx, selectTodo+` ORDER BY seq`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	res := []domain.Todo{}
	for rows.Next() {
		t, err := scanTodo(rows)
		if err != nil {
			return nil, err
		}
		res = append(res, t)
	}
	return res, rows.Err()
}

func (r Repo) Get(ctx context.Context, id string) (domain.Todo, error) {
	return scanTodo(r.DB.QueryRowContext(ctx, selectTodo+` WHERE id=?`, id))
}

func (r Repo) getTx(ctx context.Context, tx *sql.Tx, id string) (domain.Todo, error) {
	return scanTodo(tx.QueryRowContext(ctx, selectTodo+` WHERE id=?`, id))
}

func (r Repo) Create(ctx context.Context, title string) (domain.Todo, error) {
	tx, err := r.DB.BeginTx(ctx, nil)
	if err != nil {
		return domain.Todo{}, err
	}
	defer tx.Rollback()

	id, err := r.uniqueIDTx(ctx, tx)
	if err != nil {
		return domain.Todo{}, err
	}
	now := r.now()
	t := domain.Todo{ID: id, Title: title, CreatedAt: now, UpdatedAt: now}
	if _, err := tx.ExecContext(ctx, `INSERT INTO todos(id,title,completed,created_at,updated_at) VALUES (?,?,?,?,?)`,
		t.ID, t.Title, boolInt(t.Completed), domain.FormatTime(t.CreatedAt), domain.FormatTime(t.UpdatedAt)); err != nil {
		return domain.Todo{}, fmt.Errorf("insert todo: %w", err)
	}
	if err := r.Events.Append(ctx, tx, events.TodoCreated, t.ID, events.EventPayload{"title": t.Title}); err != nil {
		return domain.Todo{}, err
	}
	if err := tx.Commit(); err != nil {
		return domain.Todo{}, err
	}
	return t, nil
}

func (r Repo) Update(ctx context.Context, id string, patch domain.TodoPatch) (domain.Todo, error) {
	tx, err := r.DB.BeginTx(ctx, nil)
	if err != nil {
		return domain.Todo{}, err
	}
	defer tx.Rollback()

	t, err := r.getTx(ctx, tx, id)
	if err != nil {
		return domain.Todo{}, err
	}
	patch.Apply(&t, r.now())
	if _, err := tx.ExecContext(ctx, `UPDATE todos SET title=?,completed=?,updated_at=? WHERE id=?`,
		t.Title, boolInt(t.Completed), domain.FormatTime(t.UpdatedAt), t.ID); err != nil {
		return domain.Todo{}, fmt.Errorf("update todo: %w", err)
	}
	payload := events.EventPayload{}
	if patch.Title != nil {
		payload["title"] = *patch.Title
	}
	if patch.Completed != nil {
		payload["completed"] = *patch.Completed
	}
	if err := r.Events.Append(ctx, tx, events.TodoUpdated, t.ID, payload); err != nil {
		return domain.Todo{}, err
	}
	if err := tx.Commit(); err != nil {
		return domain.Todo{}, err
	}
	return t, nil
}

func (r Repo) Delete(ctx context.Context, id string) error {
	tx, err := r.DB.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	res, err := tx.ExecContext(ctx, `DELETE FROM todos WHERE id=?`, id)
	if err != nil {
		return fmt.Errorf("delete todo: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("delete todo: %w", err)
	}
	if n == 0 {
		return store.ErrNotFound
	}
	if err := r.Events.Append(ctx, tx, events.TodoDeleted, id, nil); err != nil {
		return err
	}
	return tx.Commit()
}

func (r Repo) uniqueIDTx(ctx context.Context, tx *sql.Tx) (string, error) {
	gen := r.NewID
	if gen == nil {
		gen = store.NewID
	}
	for i := 0; i < store.MaxIDAttempts; i++ {
		id := gen()
		if id == "" {
			continue
		}
		var exists int
		err := tx.QueryRowContext(ctx, `SELECT 1 FROM todos WHERE id=?`, id).Scan(&exists)
		if errors.Is(err, sql.ErrNoRows) {
			return id, nil
		}
		if err != nil {
			return "", err
		}
	}
	return "", fmt.Errorf("generate todo id: %d attempts collided", store.MaxIDAttempts)
}

// LatestEvents returns up to limit events, newest first.
func (r Repo) LatestEvents(ctx context.Context, limit int, evtType, entityID string) ([]domain.Event, error) {
	clauses := []string{"1=1"}
	var args []any
	if evtType != "" {
		clauses = append(clauses, "type=?")
		args = append(args, evtType)
	}
	if entityID != "" {
		clauses = append(clauses, "entity_id=?")
		args = append(args, entityID)
	}
	if limit <= 0 {
		limit = 20
	}
	query := fmt.Sprintf(`SELECT id,ts,type,COALESCE(entity_id,''),payload_json FROM events WHERE %s ORDER BY id DESC LIMIT ?`,
		strings.Join(clauses, " AND "))
	args = append(args, limit)
	rows, err := r.DB.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []domain.Event
	for rows.Next() {
		var e domain.Event
		if err := rows.Scan(&e.ID, &e.TS, &e.Type, &e.EntityID, &e.Payload); err != nil {
			return nil, err
		}
		res = append(res, e)
	}
	return res, rows.Err()
}

func boolInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
