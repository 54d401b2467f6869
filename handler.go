package dbcore

import (
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
)

// handlerConfig holds probe handler configuration.
type handlerConfig struct {
	logger *slog.Logger
}

// HandlerOption configures probe handlers.
type HandlerOption func(*handlerConfig)

// WithHandlerLogger sets the logger for failed readiness checks.
func WithHandlerLogger(l *slog.Logger) HandlerOption {
	return func(c *handlerConfig) {
		if l != nil {
			c.logger = l
		}
	}
}

func newHandlerConfig(opts ...HandlerOption) *handlerConfig {
	cfg := &handlerConfig{
		logger: slog.New(slog.NewTextHandler(io.Discard, nil)),
	}
	for _, opt := range opts {
		opt(cfg)
	}
	return cfg
}

// LivenessHandler returns an http.HandlerFunc that always responds OK.
// Use for supervisor liveness probes to indicate the process is running.
func LivenessHandler(p *Probes) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, p.Liveness())
	}
}

// HealthHandler returns an http.HandlerFunc for load-balancer health
// checks. It answers from process state only, so it stays fast and green
// through a total database outage.
func HealthHandler(p *Probes) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, p.Health())
	}
}

// ReadinessHandler returns an http.HandlerFunc that performs the bounded
// database round trip. Not-ready responds 503 with the reason in the body.
func ReadinessHandler(p *Probes, opts ...HandlerOption) http.HandlerFunc {
	cfg := newHandlerConfig(opts...)

	return func(w http.ResponseWriter, r *http.Request) {
		st := p.Readiness(r.Context())

		status := http.StatusOK
		if !st.Ready {
			status = http.StatusServiceUnavailable
			cfg.logger.WarnContext(r.Context(), "readiness check failed",
				slog.String("reason", st.Reason),
			)
		}
		writeJSON(w, status, st)
	}
}

// PoolStatusHandler returns read-only pool metrics. It never blocks and
// never forces pool construction.
func PoolStatusHandler(h *Handle) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, h.Status())
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
