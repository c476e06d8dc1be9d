package v1alpha1

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/render"
	"github.com/google/uuid"
	"github.com/kubev2v/transcriber/internal/handlers/v1alpha1/mappers"
	"go.uber.org/zap"
)

// multipartMemory is the part of the form kept in memory, the rest spills to
// temporary files.
const multipartMemory = 32 << 20

// formOverhead leaves room for the boundaries and the other form fields.
const formOverhead = 1 << 20

func (h *ServiceHandler) CreateTranscription(w http.ResponseWriter, r *http.Request) {
	logger := zap.S().Named("transcription_handler")

	if h.maxUploadSize > 0 {
		r.Body = http.MaxBytesReader(w, r.Body, h.maxUploadSize+formOverhead)
	}

	if err := r.ParseMultipartForm(multipartMemory); err != nil {
		var maxBytesErr *http.MaxBytesError
		if errors.As(err, &maxBytesErr) {
			renderError(w, r, http.StatusRequestEntityTooLarge, fmt.Sprintf("File size exceeds maximum allowed (%d bytes)", h.maxUploadSize))
			return
		}
		renderError(w, r, http.StatusUnprocessableEntity, fmt.Sprintf("failed to read multipart form: %v", err))
		return
	}
	defer func() {
		_ = r.MultipartForm.RemoveAll()
	}()

	file, header, err := r.FormFile("file")
	if err != nil {
		renderError(w, r, http.StatusUnprocessableEntity, "file is required")
		return
	}
	defer file.Close()

	form, err := mappers.UploadFormFromMultipart(header, r.FormValue("language_detection"), r.FormValue("speaker_labels"))
	if err != nil {
		renderError(w, r, http.StatusUnprocessableEntity, err.Error())
		return
	}
	if err := h.validator.Struct(form); err != nil {
		renderServiceError(w, r, err)
		return
	}

	job, err := h.transcriptionSrv.Create(r.Context(), form.ToCreateRequest(header, file))
	if err != nil {
		logger.Errorw("failed to create transcription", "filename", form.Filename, "error", err)
		renderServiceError(w, r, err)
		return
	}

	render.Status(r, http.StatusCreated)
	render.JSON(w, r, mappers.JobToApi(*job))
}

func (h *ServiceHandler) GetTranscription(w http.ResponseWriter, r *http.Request) {
	id, ok := h.jobID(w, r)
	if !ok {
		return
	}

	job, err := h.transcriptionSrv.Get(r.Context(), id)
	if err != nil {
		renderServiceError(w, r, err)
		return
	}

	render.Status(r, http.StatusOK)
	render.JSON(w, r, mappers.JobStatusToApi(*job))
}

// GetTranscriptionSRT redirects to a short lived download url of the subtitles.
func (h *ServiceHandler) GetTranscriptionSRT(w http.ResponseWriter, r *http.Request) {
	id, ok := h.jobID(w, r)
	if !ok {
		return
	}

	url, err := h.transcriptionSrv.ResultURL(r.Context(), id)
	if err != nil {
		renderServiceError(w, r, err)
		return
	}

	http.Redirect(w, r, url, http.StatusFound)
}

// jobID parses the id path parameter. A malformed id cannot match any job.
func (h *ServiceHandler) jobID(w http.ResponseWriter, r *http.Request) (uuid.UUID, bool) {
	raw := chi.URLParam(r, "id")
	id, err := uuid.Parse(raw)
	if err != nil {
		renderError(w, r, http.StatusNotFound, fmt.Sprintf("Transcription job '%s' not found", raw))
		return uuid.Nil, false
	}
	return id, true
}
