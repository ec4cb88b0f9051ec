package httpserver

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/dmitrymomot/teamfiles/pkg/logger"
)

// Check probes one dependency.
type Check func(context.Context) error

type HealthResponse struct {
	Status string            `json:"status"`
	Checks map[string]string `json:"checks,omitempty"`
}

// Health runs every check concurrently, each bounded by timeout. It responds
// 200 with status "ok" when all pass and 503 with status "unavailable"
// otherwise. Failure details are logged, never returned.
func Health(log *slog.Logger, timeout time.Duration, checks map[string]Check) http.HandlerFunc {
	if log == nil {
		log = slog.Default()
	}
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), timeout)
		defer cancel()

		var (
			mu  sync.Mutex
			out = HealthResponse{Status: "ok", Checks: make(map[string]string, len(checks))}
			g   errgroup.Group
		)
		for name, check := range checks {
			g.Go(func() error {
				state := "ok"
				if err := check(ctx); err != nil {
					log.WarnContext(ctx, "health check failed",
						logger.Component(name),
						logger.Error(err),
					)
					state = "failed"
				}
				mu.Lock()
				defer mu.Unlock()
				out.Checks[name] = state
				if state != "ok" {
					out.Status = "unavailable"
				}
				return nil
			})
		}
		_ = g.Wait()

		status := http.StatusOK
		if out.Status != "ok" {
			status = http.StatusServiceUnavailable
		}
		w.Header().Set("Content-Type", "application/json; charset=utf-8")
		w.Header().Set("Cache-Control", "no-store")
		w.WriteHeader(status)
		_ = json.NewEncoder(w).Encode(out)
	}
}
