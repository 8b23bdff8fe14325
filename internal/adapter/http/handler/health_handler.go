package handler

import (
	"context"
	"net/http"
	"time"
)

// Pinger checks a dependency.
type Pinger func(ctx context.Context) error

// HealthHandler handles health check requests.
type HealthHandler struct {
	postgres Pinger
	redis    Pinger
}

// NewHealthHandler creates a new HealthHandler. A nil redis pinger reports
// redis as disabled.
func NewHealthHandler(postgres, redis Pinger) *HealthHandler {
	return &HealthHandler{
		postgres: postgres,
		redis:    redis,
	}
}

// Liveness returns 200 if the service is alive.
func (h *HealthHandler) Liveness(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// Readiness returns 200 if the service is ready to accept traffic.
func (h *HealthHandler) Readiness(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	if err := h.postgres(ctx); err != nil {
		writeError(w, http.StatusServiceUnavailable, "postgres unhealthy", err.Error())
		return
	}

	redisStatus := "disabled"
	if h.redis != nil {
		if err := h.redis(ctx); err != nil {
			writeError(w, http.StatusServiceUnavailable, "redis unhealthy", err.Error())
			return
		}
		redisStatus = "ok"
	}

	writeJSON(w, http.StatusOK, map[string]string{
		"status":   "ready",
		"postgres": "ok",
		"redis":    redisStatus,
	})
}
