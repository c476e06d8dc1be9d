package v1alpha1

import (
	"net/http"

	"github.com/go-chi/render"
	"github.com/kubev2v/transcriber/internal/handlers/v1alpha1/mappers"
)

// Health always answers 200. A failing dependency only degrades the status.
func (h *ServiceHandler) Health(w http.ResponseWriter, r *http.Request) {
	report := h.healthSrv.Check(r.Context())
	render.Status(r, http.StatusOK)
	render.JSON(w, r, mappers.HealthToApi(report, serviceName, h.version))
}
