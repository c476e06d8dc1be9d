package poller

import (
	"context"
	"time"

	"github.com/kubev2v/transcriber/internal/store"
	"github.com/kubev2v/transcriber/internal/store/model"
)

const (
	StaleRecovery = "stale_recovery"
	ActivePolling = "active_polling"
)

// Strategy decides which processing jobs a cycle looks at.
type Strategy struct {
	Name      string
	Threshold time.Duration
}

// SelectStrategy only recovers stale jobs when the provider pushes completion
// signals. Without a webhook the poller is the only completion path and
// checks every processing job.
func SelectStrategy(webhookConfigured bool, threshold time.Duration) Strategy {
	if webhookConfigured {
		return Strategy{Name: StaleRecovery, Threshold: threshold}
	}
	return Strategy{Name: ActivePolling}
}

func (s Strategy) candidates(ctx context.Context, jobs store.Job) (model.JobList, error) {
	if s.Name == StaleRecovery {
		return jobs.ListStaleProcessing(ctx, s.Threshold)
	}
	return jobs.ListProcessing(ctx)
}
