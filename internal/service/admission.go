package service

import (
	"context"

	"github.com/kubev2v/transcriber/internal/store"
	"github.com/kubev2v/transcriber/pkg/metrics"
	"go.uber.org/zap"
)

// Decision is the outcome of an admission check.
type Decision struct {
	Allowed bool
	Reason  string
	Active  int64
	Limit   int
}

// Admission caps the number of jobs that are queued or processing at once.
type Admission struct {
	store store.Store
	limit int
}

func NewAdmission(store store.Store, limit int) *Admission {
	return &Admission{store: store, limit: limit}
}

// Admit counts the active jobs on every call. A failed count rejects the job.
func (a *Admission) Admit(ctx context.Context) Decision {
	logger := zap.S().Named("admission")

	active, err := a.store.Job().CountActive(ctx)
	if err != nil {
		logger.Errorw("failed to count active jobs", "error", err)
		metrics.IncreaseAdmissionDecisionsMetric(false)
		return Decision{Allowed: false, Reason: "unable to verify active job count", Limit: a.limit}
	}
	metrics.UpdateActiveJobsMetric(active)

	if active >= int64(a.limit) {
		logger.Warnw("concurrent job limit reached", "active", active, "limit", a.limit)
		metrics.IncreaseAdmissionDecisionsMetric(false)
		return Decision{
			Allowed: false,
			Reason:  "concurrent job limit reached",
			Active:  active,
			Limit:   a.limit,
		}
	}

	metrics.IncreaseAdmissionDecisionsMetric(true)
	return Decision{Allowed: true, Active: active, Limit: a.limit}
}
