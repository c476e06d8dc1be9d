package provider

import (
	"context"
	"errors"
)

type Status string

const (
	StatusQueued     Status = "queued"
	StatusProcessing Status = "processing"
	StatusCompleted  Status = "completed"
	StatusError      Status = "error"
)

func (s Status) String() string {
	return string(s)
}

// IsRunning reports whether the provider is still working on the transcript.
func (s Status) IsRunning() bool {
	return s == StatusQueued || s == StatusProcessing
}

var (
	ErrNotFound     = errors.New("transcript not found")
	ErrUnauthorized = errors.New("provider rejected the api key")
)

type SubmitOptions struct {
	LanguageDetection bool
	SpeakerLabels     bool
}

// Result is the provider view of a transcript.
type Result struct {
	ID           string
	Status       Status
	ErrorText    string
	LanguageCode string
}

// Provider is the asynchronous transcription service.
type Provider interface {
	// Submit starts a transcription and returns the provider job id. An empty
	// callbackURL disables the completion webhook.
	Submit(ctx context.Context, sourceURL string, opts SubmitOptions, callbackURL string) (string, error)
	Fetch(ctx context.Context, providerJobID string) (*Result, error)
	// ToFinalFormat renders a completed transcript as SRT subtitles.
	ToFinalFormat(ctx context.Context, result *Result) ([]byte, error)
	Ping(ctx context.Context) error
}
