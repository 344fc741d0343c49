package httpserver

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/lessonmart/authcore/pkg/logger"
)

// Check is a named readiness check such as pg.Healthcheck or redis.Healthcheck.
type Check struct {
	Name string
	Ping func(context.Context) error
}

const checkTimeout = 2 * time.Second

// HealthHandler answers 200 "READY" when every check passes and 503
// "NOT_READY" otherwise. With no checks it is a liveness check answering
// "ALIVE".
func HealthHandler(log *slog.Logger, checks ...Check) http.HandlerFunc {
	if log == nil {
		log = logger.Discard()
	}
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/plain; charset=utf-8")
		w.Header().Set("Cache-Control", "no-store")

		if len(checks) == 0 {
			w.WriteHeader(http.StatusOK)
			_, _ = w.Write([]byte("ALIVE"))
			return
		}

		ctx, cancel := context.WithTimeout(r.Context(), checkTimeout)
		defer cancel()

		for _, c := range checks {
			if err := c.Ping(ctx); err != nil {
				log.ErrorContext(ctx, "readiness check failed",
					slog.String("check", c.Name),
					logger.Error(err))
				w.WriteHeader(http.StatusServiceUnavailable)
				_, _ = w.Write([]byte("NOT_READY"))
				return
			}
		}

		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("READY"))
	}
}
