package service

import (
	"context"
	"crypto/subtle"
	"errors"

	"github.com/google/uuid"
	"github.com/kubev2v/transcriber/internal/dispatcher"
	"github.com/kubev2v/transcriber/internal/store"
	"github.com/kubev2v/transcriber/pkg/metrics"
	"go.uber.org/zap"
)

// JobReconciler settles a job against the provider.
type JobReconciler interface {
	Reconcile(ctx context.Context, jobID uuid.UUID, providerJobID string) error
}

type WebhookAck struct {
	JobID uuid.UUID
}

// WebhookService accepts provider completion signals. It only schedules the
// reconciliation and never writes to the store itself.
type WebhookService struct {
	store      store.Store
	reconciler JobReconciler
	dispatcher dispatcher.Dispatcher
	secret     string
}

func NewWebhookService(s store.Store, reconciler JobReconciler, d dispatcher.Dispatcher, secret string) *WebhookService {
	return &WebhookService{
		store:      s,
		reconciler: reconciler,
		dispatcher: d,
		secret:     secret,
	}
}

func (w *WebhookService) Handle(ctx context.Context, token, providerJobID, reportedStatus string) (*WebhookAck, error) {
	logger := zap.S().Named("webhook")

	if w.secret == "" || subtle.ConstantTimeCompare([]byte(token), []byte(w.secret)) != 1 {
		logger.Warn("invalid webhook secret token received")
		metrics.IncreaseWebhooksMetric(metrics.WebhookUnauthorized)
		return nil, NewErrWebhookUnauthorized()
	}

	job, err := w.store.Job().GetByProviderJobID(ctx, providerJobID)
	if err != nil {
		if errors.Is(err, store.ErrRecordNotFound) {
			logger.Warnw("job not found for transcript", "provider_job_id", providerJobID)
			metrics.IncreaseWebhooksMetric(metrics.WebhookUnknownJob)
			return nil, NewErrJobNotFoundByProviderID(providerJobID)
		}
		return nil, err
	}

	logger.Infow("webhook received", "job_id", job.ID, "provider_job_id", providerJobID, "status", reportedStatus)

	jobID := job.ID
	if job.Status.IsTerminal() {
		logger.Infow("job already terminal, nothing to reconcile", "job_id", jobID, "status", job.Status)
		metrics.IncreaseWebhooksMetric(metrics.WebhookTerminal)
		return &WebhookAck{JobID: jobID}, nil
	}

	err = w.dispatcher.Dispatch(dispatcher.Task{
		Name: "reconcile " + jobID.String(),
		Run: func(ctx context.Context) error {
			return w.reconciler.Reconcile(ctx, jobID, providerJobID)
		},
	})
	if err != nil {
		// the poller picks the job up later
		logger.Errorw("failed to schedule reconciliation", "job_id", jobID, "error", err)
		metrics.IncreaseWebhooksMetric(metrics.WebhookDropped)
		return &WebhookAck{JobID: jobID}, nil
	}

	metrics.IncreaseWebhooksMetric(metrics.WebhookAccepted)
	return &WebhookAck{JobID: jobID}, nil
}
