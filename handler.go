package chiredact

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/nhalm/canonlog"
	"github.com/nhalm/chiredact/redact"
	"github.com/prometheus/client_golang/prometheus"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// HandlerOption configures the Handler middleware.
type HandlerOption func(*config)

type config struct {
	redactor       *redact.Redactor
	diagnostics    bool
	canonlog       bool
	canonlogFields func(*http.Request) map[string]any
	metrics        *metrics
}

// WithRedactor sets the rules applied to the message of unhandled failures.
// Without a redactor the raw error text is used as the message.
//
// Example:
//
//	list, err := rules.LoadFile("redaction.json")
//	if err != nil {
//		log.Fatal(err)
//	}
//	r.Use(chiredact.Handler(chiredact.WithRedactor(redact.New(list))))
func WithRedactor(r *redact.Redactor) HandlerOption {
	return func(c *config) {
		c.redactor = r
	}
}

// WithDiagnostics switches the Handler to diagnostic mode: error envelopes for
// unhandled failures also carry the raw exception text, file, line, code and
// stack trace. Do not enable in production.
func WithDiagnostics() HandlerOption {
	return func(c *config) {
		c.diagnostics = true
	}
}

// WithCanonlog enables canonical logging for requests.
// Creates a logger at request start and flushes it after response.
// Logs method, path, route, status, and duration_ms for each request.
// Unhandled failures are logged with their raw, unredacted error.
func WithCanonlog() HandlerOption {
	return func(c *config) {
		c.canonlog = true
	}
}

// WithCanonlogFields adds custom fields to each log entry.
// The function receives the request and returns fields to add.
// Called at request start, before the handler executes.
func WithCanonlogFields(fn func(*http.Request) map[string]any) HandlerOption {
	return func(c *config) {
		c.canonlogFields = fn
	}
}

// WithMetrics registers failure and redaction counters with reg:
//   - chiredact_failures_total{kind="panic|error"}
//   - chiredact_redactions_total{result="none|literal|pattern"}
func WithMetrics(reg prometheus.Registerer) HandlerOption {
	return func(c *config) {
		c.metrics = newMetrics(reg)
	}
}

// Handler returns middleware that manages response state, recovers panics,
// and writes responses. Unhandled failures (panics and non-APIError errors
// passed to Fail) are answered with a 500 envelope:
//
//	{"error": {"type": "internal_error", "code": "internal", "message": "<redacted>"}}
//
// In diagnostic mode the envelope also has a "diagnostics" object with the
// raw exception, file, line, code and trace.
//
// Handler should be the outermost middleware.
func Handler(opts ...HandlerOption) func(http.Handler) http.Handler {
	cfg := &config{}
	for _, opt := range opts {
		opt(cfg)
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			state := &State{}
			ctx := context.WithValue(r.Context(), stateKey, state)

			var start time.Time
			if cfg.canonlog {
				ctx = canonlog.NewContext(ctx)
				start = time.Now()

				canonlog.InfoAddMany(ctx, map[string]any{
					"method": r.Method,
					"path":   r.URL.Path,
				})

				if cfg.canonlogFields != nil {
					canonlog.InfoAddMany(ctx, cfg.canonlogFields(r))
				}
			}

			r = r.WithContext(ctx)

			defer func() {
				if rec := recover(); rec != nil {
					state.setFailure(newFailure(failurePanic, panicError(rec), 1))
				}

				state.mu.Lock()
				f := state.failure
				state.mu.Unlock()

				if f != nil {
					cfg.fail(ctx, state, f)
				}

				if cfg.canonlog {
					state.mu.Lock()
					status := state.status
					if state.err != nil {
						status = state.err.Status
						if f == nil {
							canonlog.ErrorAdd(ctx, state.err)
						}
					}
					state.mu.Unlock()

					duration := time.Since(start)

					route := r.URL.Path
					if rctx := chi.RouteContext(ctx); rctx != nil {
						if pattern := rctx.RoutePattern(); pattern != "" {
							route = pattern
						}
					}

					canonlog.InfoAddMany(ctx, map[string]any{
						"route":       route,
						"status":      status,
						"duration_ms": duration.Milliseconds(),
					})

					canonlog.Flush(ctx)
				}

				writeResponse(w, state)
			}()

			next.ServeHTTP(w, r)
		})
	}
}

// fail turns an unhandled failure into the error envelope, replacing any
// response or APIError set earlier in the request.
func (cfg *config) fail(ctx context.Context, state *State, f *failure) {
	msg, result := cfg.redactor.Match(f.err.Error())

	apiErr := ErrInternal.With(msg)
	if cfg.diagnostics {
		diag := f.diag
		apiErr.Diagnostics = &diag
	}

	state.mu.Lock()
	state.err = apiErr
	state.mu.Unlock()

	cfg.metrics.observe(f.kind, result)

	if span := trace.SpanFromContext(ctx); span.IsRecording() {
		span.RecordError(f.err)
		span.SetStatus(codes.Error, msg)
	}

	if cfg.canonlog {
		canonlog.ErrorAdd(ctx, f.err)
		canonlog.InfoAddMany(ctx, map[string]any{
			"failure":   string(f.kind),
			"redaction": result.String(),
		})
	}
}

func writeResponse(w http.ResponseWriter, state *State) {
	state.mu.Lock()
	defer state.mu.Unlock()

	for key, values := range state.headers {
		for _, value := range values {
			w.Header().Add(key, value)
		}
	}

	if state.err != nil {
		writeJSON(w, state.err.Status, errorResponse{Error: state.err})
		return
	}

	if state.body != nil {
		writeJSON(w, state.status, state.body)
		return
	}

	if state.status != 0 {
		w.WriteHeader(state.status)
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	buf := new(bytes.Buffer)
	if err := json.NewEncoder(buf).Encode(v); err != nil {
		w.Header().Set("Content-Type", "text/plain")
		w.WriteHeader(http.StatusInternalServerError)
		w.Write([]byte("Internal server error"))
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	w.Write(buf.Bytes())
}
