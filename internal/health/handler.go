package health

import (
	"context"
	"encoding/json"
	"net/http"
	"time"
)

// Pinger is satisfied by pgxpool.Pool.
type Pinger interface {
	Ping(ctx context.Context) error
}

// StorageChecker is satisfied by the blob store.
type StorageChecker interface {
	Healthy(ctx context.Context) error
}

// Handler serves GET /api/v1/health. It reports per-dependency status and
// returns 503 when any dependency is down, so load balancers stop routing.
type Handler struct {
	DB      Pinger
	Storage StorageChecker
}

type response struct {
	Status  string            `json:"status"`
	Checks  map[string]string `json:"checks"`
	Checked time.Time         `json:"checked_at"`
}

func (h *Handler) Check(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 3*time.Second)
	defer cancel()

	checks := map[string]string{}
	healthy := true

	if err := h.DB.Ping(ctx); err != nil {
		checks["database"] = "down: " + err.Error()
		healthy = false
	} else {
		checks["database"] = "ok"
	}

	if err := h.Storage.Healthy(ctx); err != nil {
		checks["storage"] = "down: " + err.Error()
		healthy = false
	} else {
		checks["storage"] = "ok"
	}

	resp := response{Status: "ok", Checks: checks, Checked: time.Now().UTC()}
	status := http.StatusOK
	if !healthy {
		resp.Status = "degraded"
		status = http.StatusServiceUnavailable
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(resp)
}
