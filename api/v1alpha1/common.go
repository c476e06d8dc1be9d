package v1alpha1

func StringToJobStatus(s string) JobStatus {
	switch s {
	case string(JobStatusQueued):
		return JobStatusQueued
	case string(JobStatusProcessing):
		return JobStatusProcessing
	case string(JobStatusCompleted):
		return JobStatusCompleted
	case string(JobStatusError):
		return JobStatusError
	default:
		return JobStatusError
	}
}
