package monitoring

import (
	"context"
	"net/http"
	"sync/atomic"
	"time"

	"github.com/pkg/errors"

	"github.com/brocaar/ttn-sensor-node/internal/storage"
)

var joined atomic.Bool

// SetJoined sets the joined state reported by the healthcheck.
func SetJoined(b bool) {
	joined.Store(b)
}

func healthCheckHandlerFunc(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	if c := storage.RedisClient(); c != nil {
		if err := c.Ping(ctx).Err(); err != nil {
			w.WriteHeader(http.StatusServiceUnavailable)
			w.Write([]byte(errors.Wrap(err, "redis ping error").Error()))
			return
		}
	}

	if db := storage.DB(); db != nil {
		if err := db.PingContext(ctx); err != nil {
			w.WriteHeader(http.StatusServiceUnavailable)
			w.Write([]byte(errors.Wrap(err, "postgresql ping error").Error()))
			return
		}
	}

	if !joined.Load() {
		w.WriteHeader(http.StatusServiceUnavailable)
		w.Write([]byte("not joined"))
		return
	}

	w.WriteHeader(http.StatusOK)
}
