// Package health serves the liveness and readiness endpoints.
package health

import (
	"context"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/noah-isme/flyer-quote/internal/common"
)

var draining atomic.Bool

// SetReady toggles readiness; shutdown flips it off to drain traffic.
func SetReady(v bool) {
	draining.Store(!v)
}

// Check tests one dependency. Optional checks are reported but never fail
// readiness.
type Check struct {
	Name     string
	Run      func(ctx context.Context) error
	Optional bool
}

// Handler exposes the health endpoints.
type Handler struct {
	Checks  []Check
	Timeout time.Duration
}

type report struct {
	Status string            `json:"status"`
	Checks map[string]string `json:"checks,omitempty"`
}

func (h Handler) Live(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok"))
}

// Ready runs all checks concurrently, each bounded by Timeout.
func (h Handler) Ready(w http.ResponseWriter, r *http.Request) {
	if draining.Load() {
		common.JSON(w, http.StatusServiceUnavailable, report{Status: "draining"})
		return
	}

	timeout := h.Timeout
	if timeout <= 0 {
		timeout = 300 * time.Millisecond
	}
	results := make([]error, len(h.Checks))
	var wg sync.WaitGroup
	for i, c := range h.Checks {
		wg.Add(1)
		go func() {
			defer wg.Done()
			ctx, cancel := context.WithTimeout(r.Context(), timeout)
			defer cancel()
			results[i] = c.Run(ctx)
		}()
	}
	wg.Wait()

	rep := report{Status: "ready", Checks: make(map[string]string, len(h.Checks))}
	status := http.StatusOK
	for i, c := range h.Checks {
		if results[i] == nil {
			rep.Checks[c.Name] = "ok"
			continue
		}
		rep.Checks[c.Name] = results[i].Error()
		if c.Optional {
			if rep.Status == "ready" {
				rep.Status = "degraded"
			}
			continue
		}
		rep.Status = "unavailable"
		status = http.StatusServiceUnavailable
	}
	common.JSON(w, status, rep)
}
