package handler

import (
	"context"
	"encoding/json"
	"net/http"
)

// Pinger reports whether a dependency is reachable.
type Pinger func(ctx context.Context) error

// HealthHandler returns a health check endpoint. Every named check must
// pass for a 200.
func HealthHandler(checks map[string]Pinger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		failures := map[string]string{}
		for name, check := range checks {
			if err := check(r.Context()); err != nil {
				failures[name] = err.Error()
			}
		}
		if len(failures) > 0 {
			w.WriteHeader(http.StatusServiceUnavailable)
			json.NewEncoder(w).Encode(map[string]any{
				"status": "unhealthy",
				"errors": failures,
			})
			return
		}
		json.NewEncoder(w).Encode(map[string]string{
			"status": "healthy",
		})
	}
}
