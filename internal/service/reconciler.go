package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/kubev2v/transcriber/internal/events"
	"github.com/kubev2v/transcriber/internal/provider"
	"github.com/kubev2v/transcriber/internal/storage"
	"github.com/kubev2v/transcriber/internal/store"
	"github.com/kubev2v/transcriber/pkg/backoff"
	"github.com/kubev2v/transcriber/pkg/metrics"
	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"
)

type attemptOutcome int

const (
	// attemptDone means the job reached a terminal status or the run stopped.
	attemptDone attemptOutcome = iota
	// attemptPending means the provider is still working on the transcript.
	attemptPending
	// attemptFailed means a transient error interrupted the attempt.
	attemptFailed
)

// Reconciler brings a job in line with the provider once its transcript is
// reported done. It is safe to call many times for the same job.
type Reconciler struct {
	store    store.Store
	provider provider.Provider
	blobs    storage.BlobStore
	policy   backoff.Policy
	events   JobEventWriter
	group    singleflight.Group
	now      func() time.Time
}

func NewReconciler(s store.Store, p provider.Provider, blobs storage.BlobStore, policy backoff.Policy) *Reconciler {
	return &Reconciler{
		store:    s,
		provider: p,
		blobs:    blobs,
		policy:   policy,
		now:      time.Now,
	}
}

// WithEvents publishes the completion and the failure of the jobs to w.
func (r *Reconciler) WithEvents(w JobEventWriter) *Reconciler {
	r.events = w
	return r
}

// Reconcile fetches the provider result of the job and persists the outcome.
// Concurrent calls for the same job share one run.
func (r *Reconciler) Reconcile(ctx context.Context, jobID uuid.UUID, providerJobID string) error {
	_, err, _ := r.group.Do(jobID.String(), func() (any, error) {
		return nil, r.reconcile(ctx, jobID, providerJobID)
	})
	return err
}

func (r *Reconciler) reconcile(ctx context.Context, jobID uuid.UUID, providerJobID string) error {
	logger := zap.S().Named("reconciler").With("job_id", jobID, "provider_job_id", providerJobID)

	job, err := r.store.Job().Get(ctx, jobID)
	if err != nil {
		if errors.Is(err, store.ErrRecordNotFound) {
			logger.Warn("reconciliation requested for an unknown job")
			metrics.IncreaseReconciliationsMetric(metrics.OutcomeNoop)
			return nil
		}
		return err
	}

	if job.Status.IsTerminal() {
		logger.Debugw("job already terminal", "status", job.Status)
		metrics.IncreaseReconciliationsMetric(metrics.OutcomeNoop)
		return nil
	}

	logger.Info("reconciling transcription")

	maxAttempts := r.policy.MaxAttempts
	retryCount := job.RetryCount
	for retryCount < maxAttempts {
		logger.Infow("fetching transcript", "attempt", retryCount+1, "max_attempts", maxAttempts)

		outcome, status, err := r.attempt(ctx, jobID, providerJobID)
		if outcome == attemptDone {
			return err
		}

		if outcome == attemptPending {
			logger.Warnw("transcript not finished yet", "status", status)
		} else {
			logger.Errorw("attempt failed", "attempt", retryCount+1, "max_attempts", maxAttempts, "error", err)
		}

		count, ierr := r.store.Job().IncrementRetry(ctx, jobID)
		if ierr != nil {
			return r.settled(ctx, ierr)
		}
		metrics.IncreaseReconcileRetriesMetric()
		retryCount = count

		if r.policy.Exhausted(count) {
			if outcome == attemptPending {
				return r.fail(ctx, jobID, fmt.Sprintf("Transcript not completed after %d attempts (status: %s)", maxAttempts, status))
			}
			return r.fail(ctx, jobID, fmt.Sprintf("Failed after %d attempts: %v", maxAttempts, err))
		}

		delay := r.policy.Delay(count)
		logger.Infow("retrying", "delay", delay)
		if err := sleep(ctx, delay); err != nil {
			logger.Warnw("reconciliation interrupted", "retry_count", count)
			metrics.IncreaseReconciliationsMetric(metrics.OutcomeAborted)
			return err
		}
	}

	return r.fail(ctx, jobID, fmt.Sprintf("Failed to process transcription after %d attempts", maxAttempts))
}

// attempt runs one fetch, export and upload round.
func (r *Reconciler) attempt(ctx context.Context, jobID uuid.UUID, providerJobID string) (attemptOutcome, provider.Status, error) {
	result, err := r.provider.Fetch(ctx, providerJobID)
	if err != nil {
		if ctx.Err() != nil {
			return attemptDone, "", r.aborted(ctx)
		}
		return attemptFailed, "", err
	}

	switch {
	case result.Status == provider.StatusError:
		message := result.ErrorText
		if message == "" {
			message = "Unknown provider error"
		}
		return attemptDone, result.Status, r.fail(ctx, jobID, message)
	case result.Status.IsRunning():
		return attemptPending, result.Status, nil
	case result.Status != provider.StatusCompleted:
		return attemptDone, result.Status, r.fail(ctx, jobID, fmt.Sprintf("Unexpected transcript status: %s", result.Status))
	}

	if result.ID == "" {
		result.ID = providerJobID
	}
	srt, err := r.provider.ToFinalFormat(ctx, result)
	if err != nil {
		if ctx.Err() != nil {
			return attemptDone, result.Status, r.aborted(ctx)
		}
		return attemptFailed, result.Status, err
	}
	if strings.TrimSpace(string(srt)) == "" {
		return attemptDone, result.Status, r.fail(ctx, jobID, "Generated SRT content is empty")
	}

	// another caller may have finished the job while we were fetching
	current, err := r.store.Job().Get(ctx, jobID)
	if err != nil {
		return attemptFailed, result.Status, err
	}
	if current.Status.IsTerminal() {
		metrics.IncreaseReconciliationsMetric(metrics.OutcomeNoop)
		return attemptDone, result.Status, nil
	}

	key := storage.ResultKey(jobID)
	if err := r.blobs.PutBytes(ctx, key, srt, storage.SRTContentType); err != nil {
		if ctx.Err() != nil {
			return attemptDone, result.Status, r.aborted(ctx)
		}
		return attemptFailed, result.Status, err
	}

	completed, err := r.store.Job().Update(ctx, jobID, store.NewJobUpdate().Completed(key, r.now()))
	if err != nil {
		return attemptDone, result.Status, r.settled(ctx, err)
	}
	publish(ctx, r.events, events.JobCompletedKind, completed)

	zap.S().Named("reconciler").Infow("transcription completed", "job_id", jobID, "result_ref", key)
	metrics.IncreaseReconciliationsMetric(metrics.OutcomeCompleted)
	return attemptDone, result.Status, nil
}

// fail moves the job to the error status.
func (r *Reconciler) fail(ctx context.Context, jobID uuid.UUID, message string) error {
	failed, err := r.store.Job().Update(ctx, jobID, store.NewJobUpdate().Failed(message))
	if err != nil {
		return r.settled(ctx, err)
	}
	publish(ctx, r.events, events.JobFailedKind, failed)
	zap.S().Named("reconciler").Errorw("transcription failed", "job_id", jobID, "error_message", message)
	metrics.IncreaseReconciliationsMetric(metrics.OutcomeError)
	return nil
}

// settled absorbs the error of a write that lost against a concurrent writer.
func (r *Reconciler) settled(ctx context.Context, err error) error {
	if errors.Is(err, store.ErrJobTerminal) {
		metrics.IncreaseReconciliationsMetric(metrics.OutcomeNoop)
		return nil
	}
	if ctx.Err() != nil {
		return r.aborted(ctx)
	}
	zap.S().Named("reconciler").Errorw("failed to persist job", "error", err)
	return err
}

func (r *Reconciler) aborted(ctx context.Context) error {
	metrics.IncreaseReconciliationsMetric(metrics.OutcomeAborted)
	return ctx.Err()
}

func sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
