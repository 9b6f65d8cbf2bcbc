package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"path"
	"strings"
	"sync"

	"github.com/danielgtaylor/huma/v2"
	humachi "github.com/danielgtaylor/huma/v2/adapters/humachi"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog"

	"todoapi/internal/domain"
	"todoapi/internal/engine"
	"todoapi/internal/store"
)

const (
	msgRunning  = "Todo API is running!"
	msgDeleted  = "Todo deleted successfully"
	msgNotFound = "Todo not found"
	msgInternal = "Internal server error"
)

// Config for the HTTP API handler.
type Config struct {
	Engine   engine.Engine
	BasePath string
	Auth     AuthConfig
	Logger   zerolog.Logger
}

// apiError is the failure envelope: {"ok": false, "message": "..."}.
type apiError struct {
	status  int
	OK      bool   `json:"ok"`
	Message string `json:"message" example:"Todo not found"`
}

func (e *apiError) GetStatus() int { return e.status }
func (e *apiError) Error() string  { return e.Message }

// humaDefaults guards huma's package-level settings, which are shared by every
// handler built in the process.
var humaDefaults sync.Once

func overrideHumaDefaults() {
	huma.DefaultArrayNullable = false
	// Override Huma errors to use the envelope.
	huma.NewError = func(status int, msg string, errs ...error) huma.StatusError {
		return newAPIError(status, errorMessage(msg, errs))
	}
	huma.NewErrorWithContext = func(_ huma.Context, status int, msg string, errs ...error) huma.StatusError {
		return huma.NewError(status, msg, errs...)
	}
}

// New returns an HTTP handler exposing the Todo API.
func New(cfg Config) (http.Handler, error) {
	basePath := strings.TrimSuffix(strings.TrimSpace(cfg.BasePath), "/")
	if basePath != "" && !strings.HasPrefix(basePath, "/") {
		return nil, fmt.Errorf("base path %q must start with '/'", cfg.BasePath)
	}
	humaDefaults.Do(overrideHumaDefaults)

	router := chi.NewRouter()
	router.Use(middleware.RequestID)
	router.Use(accessLog(cfg.Logger))
	router.Use(recoverer)
	router.Use(newAuthMiddleware(basePath, cfg.Auth))
	router.NotFound(func(w http.ResponseWriter, _ *http.Request) {
		respondStatusError(w, newAPIError(http.StatusNotFound, "Not found"))
	})
	router.MethodNotAllowed(func(w http.ResponseWriter, _ *http.Request) {
		respondStatusError(w, newAPIError(http.StatusMethodNotAllowed, "Method not allowed"))
	})

	hcfg := huma.DefaultConfig("Todo API", "1.0.0")
	hcfg.OpenAPIPath = "" // served below with auth metadata applied
	hcfg.DocsPath = ""
	hcfg.SchemasPath = ""
	hcfg.CreateHooks = nil // no $schema links in bodies
	api := humachi.New(router, hcfg)
	var group huma.API = api
	if basePath != "" {
		group = huma.NewGroup(api, basePath)
	}

	registerDocs(router, basePath)
	registerRoot(group)
	registerTodos(group, cfg.Engine)
	registerOpenAPI(router, api, basePath, cfg.Auth.Enabled())

	return router, nil
}

func newAPIError(status int, message string) *apiError {
	// Schema failures are reported by huma as 422; the API contract uses 400.
	if status == http.StatusUnprocessableEntity {
		status = http.StatusBadRequest
	}
	if message == "" {
		message = http.StatusText(status)
	}
	return &apiError{status: status, Message: message}
}

func errorMessage(msg string, errs []error) string {
	if len(errs) == 0 || errs[0] == nil {
		return msg
	}
	var detail *huma.ErrorDetail
	if errors.As(errs[0], &detail) && detail.Message != "" {
		if detail.Location != "" {
			return fmt.Sprintf("%s: %s (%s)", msg, detail.Message, detail.Location)
		}
		return fmt.Sprintf("%s: %s", msg, detail.Message)
	}
	return fmt.Sprintf("%s: %s", msg, errs[0].Error())
}

func handleError(ctx context.Context, err error) huma.StatusError {
	if err == nil {
		return nil
	}
	var ve engine.ValidationError
	if errors.As(err, &ve) {
		return newAPIError(http.StatusBadRequest, ve.Error())
	}
	if errors.Is(err, store.ErrNotFound) {
		return newAPIError(http.StatusNotFound, msgNotFound)
	}
	zerolog.Ctx(ctx).Error().Err(err).Msg("request failed")
	return newAPIError(http.StatusInternalServerError, msgInternal)
}

func respondStatusError(w http.ResponseWriter, err huma.StatusError) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(err.GetStatus())
	_ = json.NewEncoder(w).Encode(err)
}

func registerDocs(r chi.Router, basePath string) {
	r.Get(path.Join("/", basePath, "docs"), func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html")
		io.WriteString(w, swaggerHTML(basePath))
	})
}

func registerOpenAPI(r chi.Router, api huma.API, basePath string, authEnabled bool) {
	var (
		once sync.Once
		spec []byte
	)
	r.Get(path.Join("/", basePath, "openapi.json"), func(w http.ResponseWriter, r *http.Request) {
		once.Do(func() {
			oas := api.OpenAPI()
			jsonRequestBodiesOnly(oas)
			if authEnabled {
				applyAuthSecurity(oas, basePath)
			}
			spec, _ = json.Marshal(oas)
		})
		w.Header().Set("Content-Type", "application/json")
		w.Write(spec)
	})
}

func applyAuthSecurity(oas *huma.OpenAPI, basePath string) {
	if oas == nil {
		return
	}
	if oas.Components == nil {
		oas.Components = &huma.Components{}
	}
	if oas.Components.SecuritySchemes == nil {
		oas.Components.SecuritySchemes = map[string]*huma.SecurityScheme{}
	}
	oas.Components.SecuritySchemes["bearerAuth"] = &huma.SecurityScheme{
		Type:         "http",
		Scheme:       "bearer",
		BearerFormat: "JWT",
	}
	security := []map[string][]string{{"bearerAuth": {}}}
	oas.Security = security
	root := rootPath(basePath)
	for route, item := range oas.Paths {
		for _, op := range []*huma.Operation{
			item.Get, item.Put, item.Post, item.Delete, item.Options, item.Head, item.Patch, item.Trace,
		} {
			if op == nil {
				continue
			}
			if route == root {
				op.Security = []map[string][]string{}
				continue
			}
			op.Security = security
		}
	}
}

// jsonRequestBodiesOnly drops the octet-stream media type huma adds for
// operations that also read RawBody. Those operations only accept JSON.
func jsonRequestBodiesOnly(oas *huma.OpenAPI) {
	if oas == nil {
		return
	}
	for _, item := range oas.Paths {
		for _, op := range []*huma.Operation{item.Post, item.Put, item.Patch} {
			if op == nil || op.RequestBody == nil {
				continue
			}
			if _, ok := op.RequestBody.Content["application/json"]; ok {
				delete(op.RequestBody.Content, "application/octet-stream")
			}
		}
	}
}

func rootPath(basePath string) string {
	return basePath + "/"
}

func swaggerHTML(basePath string) string {
	specURL := path.Join("/", basePath, "openapi.json")
	return fmt.Sprintf(`<!doctype html>
<html lang="en">
  <head>
    <meta charset="utf-8"/>
    <meta name="viewport" content="width=device-width, initial-scale=1"/>
    <title>Todo API Docs</title>
    <link rel="stylesheet" href="https://unpkg.com/swagger-ui-dist@5/swagger-ui.css" />
  </head>
  <body>
    <div id="swagger-ui"></div>
    <script src="https://unpkg.com/swagger-ui-dist@5/swagger-ui-bundle.js" crossorigin></script>
    <script>
      window.onload = () => {
        SwaggerUIBundle({
          url: '%s',
          dom_id: '#swagger-ui'
        });
      };
    </script>
  </body>
</html>`, specURL)
}

func registerRoot(api huma.API) {
	huma.Register(api, huma.Operation{
		OperationID: "root",
		Method:      http.MethodGet,
		Path:        "/",
		Summary:     "Liveness message",
	}, func(ctx context.Context, _ *struct{}) (*messageOutput, error) {
		return &messageOutput{Body: MessageEnvelope{OK: true, Message: msgRunning}}, nil
	})
}

func registerTodos(api huma.API, e engine.Engine) {
	huma.Register(api, huma.Operation{
		OperationID: "list-todos",
		Method:      http.MethodGet,
		Path:        "/todos",
		Summary:     "List todos",
		Errors:      []int{http.StatusInternalServerError},
	}, func(ctx context.Context, _ *struct{}) (*todosOutput, error) {
		todos, err := e.ListTodos(ctx)
		if err != nil {
			return nil, handleError(ctx, err)
		}
		return &todosOutput{Body: TodosEnvelope{OK: true, Todos: todoResponses(todos)}}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "get-todo",
		Method:      http.MethodGet,
		Path:        "/todos/{id}",
		Summary:     "Get todo",
		Errors:      []int{http.StatusNotFound, http.StatusInternalServerError},
	}, func(ctx context.Context, input *todoPath) (*todoOutput, error) {
		t, err := e.GetTodo(ctx, input.ID)
		if err != nil {
			return nil, handleError(ctx, err)
		}
		return &todoOutput{Body: TodoEnvelope{OK: true, Todo: todoResponse(t)}}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID:   "create-todo",
		Method:        http.MethodPost,
		Path:          "/todos",
		Summary:       "Create todo",
		DefaultStatus: http.StatusCreated,
		Errors:        []int{http.StatusBadRequest, http.StatusInternalServerError},
	}, func(ctx context.Context, input *struct {
		Body CreateTodoRequest
	}) (*todoOutput, error) {
		t, err := e.CreateTodo(ctx, input.Body.Title)
		if err != nil {
			return nil, handleError(ctx, err)
		}
		return &todoOutput{Body: TodoEnvelope{OK: true, Todo: todoResponse(t)}}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "update-todo",
		Method:      http.MethodPut,
		Path:        "/todos/{id}",
		Summary:     "Update todo",
		Description: "Applies the fields present in the body; absent fields are left untouched.",
		Errors:      []int{http.StatusBadRequest, http.StatusNotFound, http.StatusInternalServerError},
	}, func(ctx context.Context, input *updateTodoInput) (*todoOutput, error) {
		if err := rejectNullFields(input.RawBody, "title", "completed"); err != nil {
			return nil, handleError(ctx, err)
		}
		patch := domain.TodoPatch{
			Title:     input.Body.Title,
			Completed: input.Body.Completed,
		}
		t, err := e.UpdateTodo(ctx, input.ID, patch)
		if err != nil {
			return nil, handleError(ctx, err)
		}
		return &todoOutput{Body: TodoEnvelope{OK: true, Todo: todoResponse(t)}}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "delete-todo",
		Method:      http.MethodDelete,
		Path:        "/todos/{id}",
		Summary:     "Delete todo",
		Errors:      []int{http.StatusNotFound, http.StatusInternalServerError},
	}, func(ctx context.Context, input *todoPath) (*messageOutput, error) {
		if err := e.DeleteTodo(ctx, input.ID); err != nil {
			return nil, handleError(ctx, err)
		}
		return &messageOutput{Body: MessageEnvelope{OK: true, Message: msgDeleted}}, nil
	})
}
