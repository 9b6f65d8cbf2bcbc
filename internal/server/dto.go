package server

import (
	"bytes"
	"encoding/json"

	"todoapi/internal/domain"
	"todoapi/internal/engine"
)

// Request payloads. Unknown fields are accepted and ignored.

type CreateTodoRequest struct {
	_     struct{} `json:"-" additionalProperties:"true"`
	Title string   `json:"title" minLength:"1" doc:"Todo title" example:"Buy milk"`
}

type UpdateTodoRequest struct {
	_         struct{} `json:"-" additionalProperties:"true"`
	Title     *string  `json:"title,omitempty" minLength:"1" doc:"New title"`
	Completed *bool    `json:"completed,omitempty" doc:"New completion state"`
}

// Response payloads

type TodoResponse struct {
	ID        string `json:"id" example:"1b4e28ba-2fa1-41d2-883f-0016d3cca427"`
	Title     string `json:"title" example:"Buy milk"`
	Completed bool   `json:"completed"`
	CreatedAt string `json:"createdAt" format:"date-time" example:"2024-01-01T00:00:00.000Z"`
	UpdatedAt string `json:"updatedAt" format:"date-time" example:"2024-01-01T00:00:00.000Z"`
}

type MessageEnvelope struct {
	OK      bool   `json:"ok"`
	Message string `json:"message"`
}

type TodoEnvelope struct {
	OK   bool         `json:"ok"`
	Todo TodoResponse `json:"todo"`
}

type TodosEnvelope struct {
	OK    bool           `json:"ok"`
	Todos []TodoResponse `json:"todos"`
}

type messageOutput struct {
	Body MessageEnvelope
}

type todoOutput struct {
	Body TodoEnvelope
}

type todosOutput struct {
	Body TodosEnvelope
}

type updateTodoInput struct {
	ID      string `path:"id" doc:"Todo id"`
	Body    UpdateTodoRequest
	RawBody []byte
}

type todoPath struct {
	ID string `path:"id" doc:"Todo id"`
}

func todoResponse(t domain.Todo) TodoResponse {
	return TodoResponse{
		ID:        t.ID,
		Title:     t.Title,
		Completed: t.Completed,
		CreatedAt: domain.FormatTime(t.CreatedAt),
		UpdatedAt: domain.FormatTime(t.UpdatedAt),
	}
}

func todoResponses(ts []domain.Todo) []TodoResponse {
	out := make([]TodoResponse, 0, len(ts))
	for _, t := range ts {
		out = append(out, todoResponse(t))
	}
	return out
}

// rejectNullFields fails when any of fields is present in raw with a JSON null.
// Absent fields are fine; a null is a value of the wrong type.
func rejectNullFields(raw []byte, fields ...string) error {
	var obj map[string]json.RawMessage
	if err := json.Unmarshal(raw, &obj); err != nil {
		return nil
	}
	for _, f := range fields {
		if v, ok := obj[f]; ok && bytes.Equal(bytes.TrimSpace(v), []byte("null")) {
			return engine.ValidationError{Field: f, Message: "must not be null"}
		}
	}
	return nil
}
