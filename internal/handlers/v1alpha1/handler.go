package v1alpha1

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/kubev2v/transcriber/internal/handlers/validator"
	"github.com/kubev2v/transcriber/internal/service"
)

const serviceName = "transcriber"

type ServiceHandler struct {
	transcriptionSrv *service.TranscriptionService
	webhookSrv       *service.WebhookService
	healthSrv        *service.HealthService
	validator        *validator.Validator
	maxUploadSize    int64
	version          string
}

// NewServiceHandler builds the http handler of the api. maxUploadSize bounds
// the multipart body, a request over it is answered with 413 before the form
// is parsed.
func NewServiceHandler(transcriptionSrv *service.TranscriptionService, webhookSrv *service.WebhookService, healthSrv *service.HealthService, maxUploadSize int64, version string) *ServiceHandler {
	v := validator.NewValidator()
	v.Register(validator.NewWebhookValidationRules()...)
	v.Register(validator.NewTranscriptionValidationRules()...)

	return &ServiceHandler{
		transcriptionSrv: transcriptionSrv,
		webhookSrv:       webhookSrv,
		healthSrv:        healthSrv,
		validator:        v,
		maxUploadSize:    maxUploadSize,
		version:          version,
	}
}

func (h *ServiceHandler) RegisterRoutes(router chi.Router) {
	router.Get("/", h.Health)
	router.Get("/health", h.Health)

	router.Route("/api/v1", func(r chi.Router) {
		r.Post("/transcriptions", h.CreateTranscription)
		r.Get("/transcriptions/{id}", h.GetTranscription)
		r.Get("/transcriptions/{id}/srt", h.GetTranscriptionSRT)
		r.Post("/webhooks/assemblyai/{token}", h.ReceiveWebhook)
	})
}

// Routes returns a standalone router serving the api.
func (h *ServiceHandler) Routes() http.Handler {
	router := chi.NewRouter()
	h.RegisterRoutes(router)
	return router
}
