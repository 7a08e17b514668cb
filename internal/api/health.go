package api

import (
	"context"
	"net/http"
	"time"

	"go.uber.org/zap"
)

type healthResponse struct {
	Status    string          `json:"status"`
	Timestamp string          `json:"timestamp"`
	Checks    map[string]bool `json:"checks"`
}

// health always reports the optional integrations; only the database decides
// between 200 and 503.
func (s *Server) health(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()

	dbOK := true
	if err := s.store.Ping(ctx); err != nil {
		s.logger.Warn("health check: database unreachable", zap.Error(err))
		dbOK = false
	}

	resp := healthResponse{
		Status:    "ok",
		Timestamp: s.now().UTC().Format(time.RFC3339),
		Checks: map[string]bool{
			"database":  dbOK,
			"payments":  s.status.Gateway,
			"mail":      s.status.Mailer,
			"assistant": s.assistant.Configured(),
		},
	}
	status := http.StatusOK
	if !dbOK {
		resp.Status = "degraded"
		status = http.StatusServiceUnavailable
	}
	writeJSON(w, status, resp)
}
