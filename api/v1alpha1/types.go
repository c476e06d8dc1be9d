// Package v1alpha1 holds the wire types of the transcription api.
package v1alpha1

import (
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

// TranscriptionJob is returned when a job is created.
type TranscriptionJob struct {
	JobID             uuid.UUID `json:"job_id"`
	Status            JobStatus `json:"status"`
	CreatedAt         time.Time `json:"created_at"`
	AudioKey          string    `json:"audio_s3_key"`
	LanguageDetection bool      `json:"language_detection"`
	SpeakerLabels     bool      `json:"speaker_labels"`
}

type TranscriptionStatus struct {
	JobID             uuid.UUID  `json:"job_id"`
	Status            JobStatus  `json:"status"`
	CreatedAt         time.Time  `json:"created_at"`
	CompletedAt       *time.Time `json:"completed_at"`
	ErrorMessage      *string    `json:"error_message"`
	LanguageDetection bool       `json:"language_detection"`
	SpeakerLabels     bool       `json:"speaker_labels"`
	SrtAvailable      bool       `json:"srt_available"`
}

// WebhookPayload is the completion notification sent by the provider.
type WebhookPayload struct {
	TranscriptID string `json:"transcript_id" validate:"required,transcript_id"`
	Status       string `json:"status" validate:"required,transcript_status"`
}

type WebhookAck struct {
	Status string    `json:"status"`
	JobID  uuid.UUID `json:"job_id"`
}

type Health struct {
	Service        string            `json:"service"`
	Status         string            `json:"status"`
	Version        string            `json:"version"`
	Authentication string            `json:"authentication"`
	Checks         map[string]string `json:"checks,omitempty"`
}

type Error struct {
	Message   string `json:"message"`
	RequestID string `json:"request_id,omitempty"`
}
