package v1alpha1

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/render"
	api "github.com/kubev2v/transcriber/api/v1alpha1"
)

func (h *ServiceHandler) ReceiveWebhook(w http.ResponseWriter, r *http.Request) {
	var payload api.WebhookPayload
	if err := render.DecodeJSON(r.Body, &payload); err != nil {
		renderError(w, r, http.StatusUnprocessableEntity, "invalid webhook payload")
		return
	}
	if err := h.validator.Struct(payload); err != nil {
		renderServiceError(w, r, err)
		return
	}

	ack, err := h.webhookSrv.Handle(r.Context(), chi.URLParam(r, "token"), payload.TranscriptID, payload.Status)
	if err != nil {
		renderServiceError(w, r, err)
		return
	}

	render.Status(r, http.StatusOK)
	render.JSON(w, r, api.WebhookAck{Status: "ok", JobID: ack.JobID})
}
