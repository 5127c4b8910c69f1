package api

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/okian/sheetbridge/internal/auth"
	"github.com/okian/sheetbridge/pkg/metrics"
)

// HealthHandler handles health check requests.
type HealthHandler struct {
	creds CredentialReporter
}

// NewHealthHandler creates a new health handler. creds may be nil.
func NewHealthHandler(creds CredentialReporter) *HealthHandler {
	return &HealthHandler{creds: creds}
}

type healthResponse struct {
	Status     string       `json:"status"`
	Credential *auth.Status `json:"credential,omitempty"`
}

// HandleHealth handles GET /healthz. The process is healthy as long as it
// serves; a failed credential is reported as degraded.
func (h *HealthHandler) HandleHealth(w http.ResponseWriter, _ *http.Request) {
	resp := healthResponse{Status: "ok"}
	if h.creds != nil {
		st := h.creds.Status()
		resp.Credential = &st
		if st.State == auth.StateFailed.String() {
			resp.Status = "degraded"
		}
	}
	writeJSON(w, http.StatusOK, resp)
}

// MetricsHandler serves the custom Prometheus registry.
func MetricsHandler() http.Handler {
	return promhttp.HandlerFor(metrics.GetRegistry(), promhttp.HandlerOpts{})
}
