package server

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"runtime/debug"

	"github.com/felixge/httpsnoop"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog"
)

type requestInfoKey struct{}

// requestInfo is filled in by inner middleware and read back by the access log.
type requestInfo struct {
	Subject string
}

func requestInfoFromContext(ctx context.Context) *requestInfo {
	info, _ := ctx.Value(requestInfoKey{}).(*requestInfo)
	return info
}

func accessLog(logger zerolog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			reqLogger := logger.With().
				Str("request_id", middleware.GetReqID(r.Context())).
				Logger()
			info := &requestInfo{}
			ctx := context.WithValue(r.Context(), requestInfoKey{}, info)
			ctx = reqLogger.WithContext(ctx)

			m := httpsnoop.CaptureMetrics(next, w, r.WithContext(ctx))

			evt := reqLogger.Info()
			if m.Code >= http.StatusInternalServerError {
				evt = reqLogger.Error()
			}
			if info.Subject != "" {
				evt = evt.Str("subject", info.Subject)
			}
			evt.Str("method", r.Method).
				Str("path", r.URL.Path).
				Int("status", m.Code).
				Int64("bytes", m.Written).
				Dur("duration", m.Duration).
				Msg("handled")
		})
	}
}

// recoverer turns a handler panic into the 500 envelope. If the handler had
// already started the response, the panic is logged and the response is left
// as written.
func recoverer(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var started bool
		tracked := httpsnoop.Wrap(w, httpsnoop.Hooks{
			WriteHeader: func(next httpsnoop.WriteHeaderFunc) httpsnoop.WriteHeaderFunc {
				return func(code int) {
					started = true
					next(code)
				}
			},
			Write: func(next httpsnoop.WriteFunc) httpsnoop.WriteFunc {
				return func(b []byte) (int, error) {
					started = true
					return next(b)
				}
			},
			ReadFrom: func(next httpsnoop.ReadFromFunc) httpsnoop.ReadFromFunc {
				return func(src io.Reader) (int64, error) {
					started = true
					return next(src)
				}
			},
		})
		defer func() {
			rec := recover()
			if rec == nil {
				return
			}
			if rec == http.ErrAbortHandler {
				panic(rec)
			}
			zerolog.Ctx(r.Context()).Error().
				Str("panic", fmt.Sprint(rec)).
				Bytes("stack", debug.Stack()).
				Bool("response_started", started).
				Msg("recovered from panic")
			if started {
				return
			}
			respondStatusError(w, newAPIError(http.StatusInternalServerError, msgInternal))
		}()
		next.ServeHTTP(tracked, r)
	})
}
