package httpx

import (
	"encoding/json"
	"net/http"
)

// healthHandler reports process liveness. Database and pub/sub readiness are
// gated elsewhere in the deployment; this endpoint only says the process is
// up and serving.
func healthHandler(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	if r.Method == http.MethodHead {
		return
	}
	_ = json.NewEncoder(w).Encode(map[string]string{
		"status":  "ok",
		"service": "alert-engine",
	})
}
