package events

import (
	"time"

	"github.com/google/uuid"
	"github.com/kubev2v/transcriber/internal/store/model"
	"github.com/kubev2v/transcriber/internal/util"
)

type JobEvent struct {
	JobID         uuid.UUID `json:"job_id"`
	Status        string    `json:"status"`
	ProviderJobID string    `json:"provider_job_id,omitempty"`
	ResultRef     string    `json:"srt_s3_key,omitempty"`
	ErrorMessage  string    `json:"error_message,omitempty"`
	OccurredAt    time.Time `json:"occurred_at"`
}

func NewJobEvent(job model.Job) JobEvent {
	return JobEvent{
		JobID:         job.ID,
		Status:        job.Status.String(),
		ProviderJobID: util.DerefString(job.ProviderJobID),
		ResultRef:     util.DerefString(job.ResultRef),
		ErrorMessage:  util.DerefString(job.ErrorMessage),
		OccurredAt:    time.Now().UTC(),
	}
}
