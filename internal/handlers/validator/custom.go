package validator

import (
	"path/filepath"
	"regexp"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/kubev2v/transcriber/internal/provider"
)

var transcriptIDRegex = regexp.MustCompile(`^[A-Za-z0-9_-]{1,128}$`)

func transcriptIDValidator(fl validator.FieldLevel) bool {
	val, ok := fl.Field().Interface().(string)
	if !ok {
		return false
	}
	return transcriptIDRegex.MatchString(val)
}

func transcriptStatusValidator(fl validator.FieldLevel) bool {
	val, ok := fl.Field().Interface().(string)
	if !ok {
		return false
	}
	switch provider.Status(val) {
	case provider.StatusQueued, provider.StatusProcessing, provider.StatusCompleted, provider.StatusError:
		return true
	default:
		return false
	}
}

// audioFilenameValidator refuses names that would escape the job prefix of
// the bucket key.
func audioFilenameValidator(fl validator.FieldLevel) bool {
	val, ok := fl.Field().Interface().(string)
	if !ok {
		return false
	}
	if val == "" || val == "." || val == ".." {
		return false
	}
	if strings.ContainsAny(val, "/\\\x00") {
		return false
	}
	return filepath.Base(val) == val
}
