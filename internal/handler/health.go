package handler

import (
	"encoding/json"
	"net/http"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/stakemesh/platform/internal/infra"
)

// HealthHandler probes the database pool. A nil pool (memory backend)
// is always healthy. The body deliberately skips the API envelope so
// load balancers can parse it without unwrapping.
func HealthHandler(pool *pgxpool.Pool) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		body := map[string]string{"status": "healthy"}
		status := http.StatusOK
		if pool != nil {
			if err := infra.HealthCheck(r.Context(), pool); err != nil {
				body = map[string]string{"status": "unhealthy", "error": err.Error()}
				status = http.StatusServiceUnavailable
			}
		}
		w.WriteHeader(status)
		json.NewEncoder(w).Encode(body)
	}
}
