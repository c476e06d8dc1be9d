package model

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

type JobStatus string

const (
	JobStatusQueued     JobStatus = "queued"
	JobStatusProcessing JobStatus = "processing"
	JobStatusCompleted  JobStatus = "completed"
	JobStatusError      JobStatus = "error"
)

// ActiveStatuses are the statuses counted against the admission ceiling.
var ActiveStatuses = []JobStatus{JobStatusQueued, JobStatusProcessing}

func (s JobStatus) String() string {
	return string(s)
}

func (s JobStatus) Valid() bool {
	switch s {
	case JobStatusQueued, JobStatusProcessing, JobStatusCompleted, JobStatusError:
		return true
	default:
		return false
	}
}

// IsTerminal reports whether no further mutation is allowed.
func (s JobStatus) IsTerminal() bool {
	switch s {
	case JobStatusCompleted, JobStatusError:
		return true
	case JobStatusQueued, JobStatusProcessing:
		return false
	default:
		return false
	}
}

func (s JobStatus) IsActive() bool {
	switch s {
	case JobStatusQueued, JobStatusProcessing:
		return true
	case JobStatusCompleted, JobStatusError:
		return false
	default:
		return false
	}
}

// CanTransitionTo reports whether a job in status s may move to next.
// Self transitions of non-terminal statuses are allowed so that fields can be
// attached without a status change.
func (s JobStatus) CanTransitionTo(next JobStatus) bool {
	switch s {
	case JobStatusQueued:
		return next == JobStatusQueued || next == JobStatusProcessing || next == JobStatusError
	case JobStatusProcessing:
		return next == JobStatusProcessing || next == JobStatusCompleted || next == JobStatusError
	case JobStatusCompleted, JobStatusError:
		return false
	default:
		return false
	}
}

func ParseJobStatus(s string) (JobStatus, error) {
	status := JobStatus(s)
	if !status.Valid() {
		return "", fmt.Errorf("unknown job status %q", s)
	}
	return status, nil
}

type Job struct {
	ID                uuid.UUID  `json:"id" gorm:"primaryKey;column:id;type:TEXT;"`
	Status            JobStatus  `json:"status" gorm:"column:status;not null;default:queued;index:idx_transcription_jobs_status"`
	SourceRef         string     `json:"audio_s3_key" gorm:"column:audio_s3_key;not null;default:''"`
	ResultRef         *string    `json:"srt_s3_key" gorm:"column:srt_s3_key"`
	ErrorMessage      *string    `json:"error_message" gorm:"column:error_message"`
	ProviderJobID     *string    `json:"assemblyai_id" gorm:"column:provider_job_id;uniqueIndex:idx_transcription_jobs_provider_job_id"`
	RetryCount        int        `json:"retry_count" gorm:"column:retry_count;not null;default:0"`
	LanguageDetection bool       `json:"language_detection" gorm:"column:language_detection;not null;default:false"`
	SpeakerLabels     bool       `json:"speaker_labels" gorm:"column:speaker_labels;not null;default:false"`
	CreatedAt         time.Time  `json:"created_at" gorm:"column:created_at;not null;index:idx_transcription_jobs_created_at"`
	CompletedAt       *time.Time `json:"completed_at" gorm:"column:completed_at"`
}

func (Job) TableName() string {
	return "transcription_jobs"
}

type JobList []Job

func NewJob(languageDetection, speakerLabels bool) Job {
	return Job{
		ID:                uuid.New(),
		Status:            JobStatusQueued,
		LanguageDetection: languageDetection,
		SpeakerLabels:     speakerLabels,
		CreatedAt:         time.Now().UTC(),
	}
}

func (j Job) String() string {
	return fmt.Sprintf("job %s (%s)", j.ID, j.Status)
}

func (j Job) HasProviderJobID() bool {
	return j.ProviderJobID != nil && *j.ProviderJobID != ""
}

func (j Job) ResultAvailable() bool {
	return j.Status == JobStatusCompleted && j.ResultRef != nil && *j.ResultRef != ""
}

// TransitionSources returns every status allowed to move to next.
func TransitionSources(next JobStatus) []JobStatus {
	sources := make([]JobStatus, 0, 2)
	for _, s := range []JobStatus{JobStatusQueued, JobStatusProcessing, JobStatusCompleted, JobStatusError} {
		if s.CanTransitionTo(next) {
			sources = append(sources, s)
		}
	}
	return sources
}
