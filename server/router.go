package server

import (
	"context"
	"net/http"
	"time"

	"connectrpc.com/connect"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/google/uuid"

	"github.com/tailored-agentic-units/workflow/observability"
)

// EventHTTPRequest is emitted once per served request.
const EventHTTPRequest observability.EventType = "http.request"

// NewRouter mounts the inspection procedures and /healthz.
func NewRouter(handler *Handler, observer observability.Observer) http.Handler {
	if observer == nil {
		observer = observability.NoOpObserver{}
	}

	r := chi.NewRouter()
	r.Use(requestIDMiddleware)
	r.Use(middleware.Recoverer)
	r.Use(observeMiddleware(observer))

	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "text/plain; charset=utf-8")
		_, _ = w.Write([]byte("ok"))
	})

	r.Handle(ListWorkflowsProcedure, connect.NewUnaryHandler(ListWorkflowsProcedure, handler.ListWorkflows))
	r.Handle(DescribeWorkflowProcedure, connect.NewUnaryHandler(DescribeWorkflowProcedure, handler.DescribeWorkflow))
	r.Handle(DumpWorkflowProcedure, connect.NewUnaryHandler(DumpWorkflowProcedure, handler.DumpWorkflow))

	return r
}

type ctxKey string

const ctxKeyRequestID ctxKey = "request_id"

func requestIDMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		reqID := r.Header.Get("X-Request-Id")
		if reqID == "" {
			reqID = uuid.NewString()
		}
		w.Header().Set("X-Request-Id", reqID)
		ctx := context.WithValue(r.Context(), ctxKeyRequestID, reqID)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func requestIDFromContext(ctx context.Context) string {
	reqID, _ := ctx.Value(ctxKeyRequestID).(string)
	return reqID
}

func observeMiddleware(observer observability.Observer) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
			next.ServeHTTP(ww, r)

			status := ww.Status()
			if status == 0 {
				status = http.StatusOK
			}
			level := observability.LevelVerbose
			if status >= http.StatusInternalServerError {
				level = observability.LevelError
			}

			observability.Emit(r.Context(), observer, observability.Event{
				Type:   EventHTTPRequest,
				Level:  level,
				Source: "server",
				Data: map[string]any{
					"method":      r.Method,
					"path":        r.URL.Path,
					"status_code": status,
					"bytes":       ww.BytesWritten(),
					"duration_ms": time.Since(start).Milliseconds(),
					"request_id":  requestIDFromContext(r.Context()),
				},
			})
		})
	}
}
