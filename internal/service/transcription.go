package service

import (
	"context"
	"errors"
	"fmt"
	"io"
	"path/filepath"
	"slices"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/kubev2v/transcriber/internal/events"
	"github.com/kubev2v/transcriber/internal/provider"
	"github.com/kubev2v/transcriber/internal/storage"
	"github.com/kubev2v/transcriber/internal/store"
	"github.com/kubev2v/transcriber/internal/store/model"
	"github.com/kubev2v/transcriber/internal/util"
	"go.uber.org/zap"
)

type Limits struct {
	MaxFileSize     int64
	AllowedFormats  []string
	SourceURLExpiry time.Duration
	ResultURLExpiry time.Duration
}

type CreateRequest struct {
	Filename          string
	ContentType       string
	Size              int64
	Body              io.Reader
	LanguageDetection bool
	SpeakerLabels     bool
}

type TranscriptionService struct {
	store       store.Store
	blobs       storage.BlobStore
	provider    provider.Provider
	admission   *Admission
	limits      Limits
	callbackURL string
	events      JobEventWriter
}

// NewTranscriptionService builds the job api. An empty callbackURL submits
// jobs without a completion webhook and leaves them to the poller.
func NewTranscriptionService(s store.Store, blobs storage.BlobStore, p provider.Provider, admission *Admission, limits Limits, callbackURL string) *TranscriptionService {
	return &TranscriptionService{
		store:       s,
		blobs:       blobs,
		provider:    p,
		admission:   admission,
		limits:      limits,
		callbackURL: callbackURL,
	}
}

// WithEvents publishes the submission and the failure of the jobs to w.
func (t *TranscriptionService) WithEvents(w JobEventWriter) *TranscriptionService {
	t.events = w
	return t
}

// Create admits, uploads and submits a new transcription. The job is left in
// the error status when any step after its creation fails.
func (t *TranscriptionService) Create(ctx context.Context, req CreateRequest) (*model.Job, error) {
	logger := zap.S().Named("transcription_service")

	if decision := t.admission.Admit(ctx); !decision.Allowed {
		return nil, NewErrTooManyJobs(decision.Limit)
	}

	ext := strings.ToLower(filepath.Ext(req.Filename))
	if !t.formatAllowed(ext) {
		logger.Warnw("invalid audio format", "extension", ext, "allowed", t.limits.AllowedFormats)
		return nil, NewErrInvalidFormat(ext, t.limits.AllowedFormats)
	}

	if req.Size > t.limits.MaxFileSize {
		logger.Warnw("file too large", "size", req.Size, "max", t.limits.MaxFileSize)
		return nil, NewErrFileTooLarge(req.Size, t.limits.MaxFileSize)
	}

	job, err := t.store.Job().Create(ctx, model.NewJob(req.LanguageDetection, req.SpeakerLabels))
	if err != nil {
		return nil, fmt.Errorf("creating transcription job: %w", err)
	}
	logger.Infow("created transcription job", "job_id", job.ID, "size", req.Size,
		"language_detection", job.LanguageDetection, "speaker_labels", job.SpeakerLabels)

	jobID := job.ID
	key := storage.AudioKey(jobID, filepath.Base(req.Filename))
	if err := t.blobs.Put(ctx, key, req.Body, req.Size, req.ContentType); err != nil {
		logger.Errorw("failed to upload audio", "job_id", jobID, "error", err)
		t.markFailed(ctx, jobID, err.Error())
		return nil, NewErrUploadFailed()
	}

	if _, err := t.store.Job().Update(ctx, jobID, store.NewJobUpdate().WithSourceRef(key)); err != nil {
		logger.Errorw("failed to record audio key", "job_id", jobID, "key", key, "error", err)
		t.markFailed(ctx, jobID, err.Error())
		return nil, NewErrUploadFailed()
	}

	sourceURL, err := t.blobs.PresignedURL(ctx, key, t.limits.SourceURLExpiry)
	if err != nil {
		logger.Errorw("failed to presign audio", "job_id", jobID, "key", key, "error", err)
		t.markFailed(ctx, jobID, err.Error())
		return nil, NewErrSubmissionFailed("Error generating presigned URL")
	}

	opts := provider.SubmitOptions{
		LanguageDetection: req.LanguageDetection,
		SpeakerLabels:     req.SpeakerLabels,
	}
	providerJobID, err := t.provider.Submit(ctx, sourceURL, opts, t.callbackURL)
	if err != nil {
		// the uploaded audio stays in the bucket
		logger.Errorw("failed to submit transcription", "job_id", jobID, "orphaned_key", key, "error", err)
		t.markFailed(ctx, jobID, fmt.Sprintf("Provider error: %v", err))
		return nil, NewErrSubmissionFailed("Error starting transcription")
	}

	update := store.NewJobUpdate().
		WithProviderJobID(providerJobID).
		WithStatus(model.JobStatusProcessing)
	job, err = t.store.Job().Update(ctx, jobID, update)
	if err != nil {
		logger.Errorw("failed to record provider job id", "job_id", jobID, "provider_job_id", providerJobID, "error", err)
		t.markFailed(ctx, jobID, fmt.Sprintf("Error recording transcript ID '%s': %v", providerJobID, err))
		return nil, fmt.Errorf("recording provider job id %s: %w", providerJobID, err)
	}

	publish(ctx, t.events, events.JobSubmittedKind, job)
	logger.Infow("started transcription", "job_id", jobID, "provider_job_id", providerJobID, "webhook", t.callbackURL != "")
	return job, nil
}

func (t *TranscriptionService) Get(ctx context.Context, id uuid.UUID) (*model.Job, error) {
	job, err := t.store.Job().Get(ctx, id)
	if err != nil {
		if errors.Is(err, store.ErrRecordNotFound) {
			return nil, NewErrJobNotFound(id)
		}
		return nil, err
	}
	return job, nil
}

// ResultURL returns a short lived download url of the subtitles.
func (t *TranscriptionService) ResultURL(ctx context.Context, id uuid.UUID) (string, error) {
	job, err := t.Get(ctx, id)
	if err != nil {
		return "", err
	}

	if !job.ResultAvailable() {
		zap.S().Named("transcription_service").Warnw("subtitles not available", "job_id", id, "status", job.Status)
		switch {
		case job.Status == model.JobStatusError:
			return "", NewErrJobFailed(util.DerefString(job.ErrorMessage))
		case job.Status.IsActive():
			return "", NewErrResultNotReady()
		default:
			return "", NewErrResultUnavailable()
		}
	}

	url, err := t.blobs.PresignedURL(ctx, *job.ResultRef, t.limits.ResultURLExpiry)
	if err != nil {
		return "", fmt.Errorf("generating download url for job %s: %w", id, err)
	}
	return url, nil
}

func (t *TranscriptionService) formatAllowed(ext string) bool {
	return ext != "" && slices.ContainsFunc(t.limits.AllowedFormats, func(f string) bool {
		return strings.EqualFold(f, ext)
	})
}

// markFailed outlives the request so a disconnected client cannot leave the
// job queued.
func (t *TranscriptionService) markFailed(ctx context.Context, id uuid.UUID, message string) {
	ctx = context.WithoutCancel(ctx)
	job, err := t.store.Job().Update(ctx, id, store.NewJobUpdate().Failed(message))
	if err != nil {
		zap.S().Named("transcription_service").Errorw("failed to mark job as failed", "job_id", id, "error", err)
		return
	}
	publish(ctx, t.events, events.JobFailedKind, job)
}
