package service

import (
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
)

type ErrJobNotFound struct {
	error
}

func NewErrJobNotFound(id uuid.UUID) *ErrJobNotFound {
	return &ErrJobNotFound{fmt.Errorf("Transcription job '%s' not found", id)}
}

func NewErrJobNotFoundByProviderID(providerJobID string) *ErrJobNotFound {
	return &ErrJobNotFound{fmt.Errorf("Job not found for transcript ID '%s'", providerJobID)}
}

type ErrTooManyJobs struct {
	error
}

func NewErrTooManyJobs(limit int) *ErrTooManyJobs {
	return &ErrTooManyJobs{fmt.Errorf("Maximum concurrent jobs limit reached (%d). Please try again later.", limit)}
}

type ErrInvalidFormat struct {
	error
}

func NewErrInvalidFormat(ext string, allowed []string) *ErrInvalidFormat {
	return &ErrInvalidFormat{fmt.Errorf("Invalid audio format '%s'. Allowed formats: %s", ext, strings.Join(allowed, ", "))}
}

type ErrFileTooLarge struct {
	error
}

func NewErrFileTooLarge(size, max int64) *ErrFileTooLarge {
	return &ErrFileTooLarge{fmt.Errorf("File size (%d bytes) exceeds maximum allowed (%d bytes)", size, max)}
}

type ErrUploadFailed struct {
	error
}

func NewErrUploadFailed() *ErrUploadFailed {
	return &ErrUploadFailed{errors.New("Error uploading audio file to storage")}
}

type ErrSubmissionFailed struct {
	error
}

func NewErrSubmissionFailed(message string) *ErrSubmissionFailed {
	return &ErrSubmissionFailed{errors.New(message)}
}

type ErrResultNotReady struct {
	error
}

func NewErrResultNotReady() *ErrResultNotReady {
	return &ErrResultNotReady{errors.New("Transcription still in progress. Please check status later.")}
}

func NewErrResultUnavailable() *ErrResultNotReady {
	return &ErrResultNotReady{errors.New("SRT file not available")}
}

type ErrJobFailed struct {
	error
}

func NewErrJobFailed(message string) *ErrJobFailed {
	if message == "" {
		message = "Unknown error"
	}
	return &ErrJobFailed{fmt.Errorf("Transcription failed: %s", message)}
}

type ErrWebhookUnauthorized struct {
	error
}

func NewErrWebhookUnauthorized() *ErrWebhookUnauthorized {
	return &ErrWebhookUnauthorized{errors.New("Invalid webhook token")}
}
