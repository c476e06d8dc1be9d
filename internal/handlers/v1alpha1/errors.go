package v1alpha1

import (
	"net/http"

	"github.com/go-chi/render"
	api "github.com/kubev2v/transcriber/api/v1alpha1"
	"github.com/kubev2v/transcriber/internal/handlers/validator"
	"github.com/kubev2v/transcriber/internal/service"
	"github.com/kubev2v/transcriber/pkg/middleware"
	"go.uber.org/zap"
)

type ErrResponse struct {
	api.Error
	HTTPStatusCode int `json:"-"`
}

func (e *ErrResponse) Render(w http.ResponseWriter, r *http.Request) error {
	render.Status(r, e.HTTPStatusCode)
	return nil
}

func newErrResponse(r *http.Request, status int, message string) *ErrResponse {
	return &ErrResponse{
		Error: api.Error{
			Message:   message,
			RequestID: middleware.RequestIDFromContext(r.Context()),
		},
		HTTPStatusCode: status,
	}
}

func renderError(w http.ResponseWriter, r *http.Request, status int, message string) {
	_ = render.Render(w, r, newErrResponse(r, status, message))
}

// renderServiceError maps the typed errors of the service layer to a status
// code. Anything unknown is a 500 without details.
func renderServiceError(w http.ResponseWriter, r *http.Request, err error) {
	switch err.(type) {
	case *service.ErrJobNotFound:
		renderError(w, r, http.StatusNotFound, err.Error())
	case *service.ErrTooManyJobs:
		renderError(w, r, http.StatusTooManyRequests, err.Error())
	case *service.ErrInvalidFormat:
		renderError(w, r, http.StatusBadRequest, err.Error())
	case *service.ErrFileTooLarge:
		renderError(w, r, http.StatusRequestEntityTooLarge, err.Error())
	case *service.ErrUploadFailed, *service.ErrSubmissionFailed:
		renderError(w, r, http.StatusInternalServerError, err.Error())
	case *service.ErrResultNotReady, *service.ErrJobFailed:
		renderError(w, r, http.StatusBadRequest, err.Error())
	case *service.ErrWebhookUnauthorized:
		renderError(w, r, http.StatusUnauthorized, err.Error())
	case *validator.ErrInvalidRequest:
		renderError(w, r, http.StatusUnprocessableEntity, err.Error())
	default:
		zap.S().Named("handler").Errorw("unexpected error", "path", r.URL.Path, "error", err)
		renderError(w, r, http.StatusInternalServerError, "internal server error")
	}
}
