package mappers

import (
	api "github.com/kubev2v/transcriber/api/v1alpha1"
	"github.com/kubev2v/transcriber/internal/service"
	"github.com/kubev2v/transcriber/internal/store/model"
)

func JobToApi(job model.Job) api.TranscriptionJob {
	return api.TranscriptionJob{
		JobID:             job.ID,
		Status:            api.StringToJobStatus(job.Status.String()),
		CreatedAt:         job.CreatedAt,
		AudioKey:          job.SourceRef,
		LanguageDetection: job.LanguageDetection,
		SpeakerLabels:     job.SpeakerLabels,
	}
}

func JobStatusToApi(job model.Job) api.TranscriptionStatus {
	return api.TranscriptionStatus{
		JobID:             job.ID,
		Status:            api.StringToJobStatus(job.Status.String()),
		CreatedAt:         job.CreatedAt,
		CompletedAt:       job.CompletedAt,
		ErrorMessage:      job.ErrorMessage,
		LanguageDetection: job.LanguageDetection,
		SpeakerLabels:     job.SpeakerLabels,
		SrtAvailable:      job.ResultAvailable(),
	}
}

func HealthToApi(report service.HealthReport, serviceName, version string) api.Health {
	authentication := "disabled"
	if report.Authentication {
		authentication = "enabled"
	}
	return api.Health{
		Service:        serviceName,
		Status:         report.Status,
		Version:        version,
		Authentication: authentication,
		Checks:         report.Checks,
	}
}
