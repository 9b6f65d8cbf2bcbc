package domain

import "time"

// TimeLayout is the wire format for Todo timestamps: ISO-8601, UTC, milliseconds.
const TimeLayout = "2006-01-02T15:04:05.000Z07:00"

type Todo struct {
	ID        string    `json:"id"`
	Title     string    `json:"title"`
	Completed bool      `json:"completed"`
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// TodoPatch carries a partial update; nil fields are left untouched.
type TodoPatch struct {
	Title     *string
	Completed *bool
}

// Apply overwrites the fields present in p and stamps updatedAt.
func (p TodoPatch) Apply(t *Todo, now time.Time) {
	if p.Title != nil {
		t.Title = *p.Title
	}
	if p.Completed != nil {
		t.Completed = *p.Completed
	}
	if now.Before(t.UpdatedAt) {
		now = t.UpdatedAt
	}
	t.UpdatedAt = now
}

type Event struct {
	ID       int64  `json:"id"`
	TS       string `json:"ts"`
	Type     string `json:"type"`
	EntityID string `json:"entity_id,omitempty"`
	Payload  string `json:"payload_json"`
}

// FormatTime renders t in TimeLayout.
func FormatTime(t time.Time) string {
	return t.UTC().Format(TimeLayout)
}

// Stamp normalizes a clock reading to the precision Todos are stored with.
func Stamp(t time.Time) time.Time {
	return t.UTC().Truncate(time.Millisecond)
}
