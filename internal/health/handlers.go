// Package health serves the liveness and readiness probes of the worker.
package health

import (
	"context"
	"encoding/json"
	"net/http"
	"sync/atomic"
	"time"
)

var ready atomic.Bool

func init() { ready.Store(true) }

// SetReady flips readiness; the worker clears it when shutdown starts.
func SetReady(v bool) { ready.Store(v) }

// Pinger probes one dependency.
type Pinger interface {
	Ping(ctx context.Context) error
}

// PingFunc adapts a function to Pinger.
type PingFunc func(ctx context.Context) error

func (f PingFunc) Ping(ctx context.Context) error { return f(ctx) }

// Handler exposes the probe endpoints.
type Handler struct {
	Redis   Pinger
	Timeout time.Duration
}

// Live always answers ok while the process runs.
func (h Handler) Live(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok"))
}

// Ready reports whether the worker accepts work and Redis answers.
func (h Handler) Ready(w http.ResponseWriter, r *http.Request) {
	status := map[string]string{"redis": "ok", "worker": "ok"}
	code := http.StatusOK
	if !ready.Load() {
		status["worker"] = "shutting down"
		code = http.StatusServiceUnavailable
	}
	if h.Redis == nil {
		status["redis"] = "not configured"
		code = http.StatusServiceUnavailable
	} else {
		ctx, cancel := context.WithTimeout(r.Context(), h.timeout())
		defer cancel()
		if err := h.Redis.Ping(ctx); err != nil {
			status["redis"] = err.Error()
			code = http.StatusServiceUnavailable
		}
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(status)
}

func (h Handler) timeout() time.Duration {
	if h.Timeout <= 0 {
		return 300 * time.Millisecond
	}
	return h.Timeout
}
