package service

import (
	"context"

	"github.com/kubev2v/transcriber/internal/events"
	"github.com/kubev2v/transcriber/internal/store/model"
	"go.uber.org/zap"
)

// JobEventWriter receives the lifecycle events of the jobs.
type JobEventWriter interface {
	WriteJobEvent(ctx context.Context, kind string, event events.JobEvent) error
}

func publish(ctx context.Context, w JobEventWriter, kind string, job *model.Job) {
	if w == nil || job == nil {
		return
	}
	if err := w.WriteJobEvent(ctx, kind, events.NewJobEvent(*job)); err != nil {
		zap.S().Named("events").Warnw("failed to queue job event", "job_id", job.ID, "kind", kind, "error", err)
	}
}
