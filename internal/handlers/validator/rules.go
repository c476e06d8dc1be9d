package validator

import "github.com/go-playground/validator/v10"

func registerFn(tag string, fn func(fl validator.FieldLevel) bool) func(v *validator.Validate) {
	return func(v *validator.Validate) {
		_ = v.RegisterValidation(tag, fn)
	}
}

func NewWebhookValidationRules() []ValidationRule {
	return []ValidationRule{
		{
			Rule: registerFn("transcript_id", transcriptIDValidator),
		},
		{
			Rule: registerFn("transcript_status", transcriptStatusValidator),
		},
	}
}

func NewTranscriptionValidationRules() []ValidationRule {
	return []ValidationRule{
		{
			Rule: registerFn("audio_filename", audioFilenameValidator),
		},
	}
}
