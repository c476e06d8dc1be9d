package log

import (
	"regexp"
	"strings"

	"go.uber.org/zap/zapcore"
)

const Redacted = "***REDACTED***"

type redaction struct {
	pattern     *regexp.Regexp
	replacement string
}

// Order matters: header patterns run before the generic key=value one.
var redactions = []redaction{
	{regexp.MustCompile(`(?i)(authorization):\s+(bearer\s+)?[^\s,]+`), "${1}: " + Redacted},
	{regexp.MustCompile(`(?i)(x-api-key):\s*[^\s,]+`), "${1}: " + Redacted},
	{regexp.MustCompile(`(?i)(ASSEMBLYAI_API_KEY|TRANSCRIBER_API_KEY|WEBHOOK_SECRET_TOKEN|S3_SECRET_KEY|S3_ACCESS_KEY|DB_PASS)=[^\s,)]+`), "${1}=" + Redacted},
	{regexp.MustCompile(`(?i)(api[_-]?key|token|secret|password|credential)(['"]?\s*[:=]\s*['"]?)[A-Za-z0-9_\-.]{20,}`), "${1}${2}" + Redacted},
	{regexp.MustCompile(`(?i)(https?://[^\s?]+\?)[^\s]*x-amz-[^\s]*`), "${1}" + Redacted},
	{regexp.MustCompile(`(/webhooks/assemblyai/)[A-Za-z0-9_\-.]{10,}`), "${1}" + Redacted},
	{regexp.MustCompile(`(?i)\bbearer\s+[A-Za-z0-9_\-.=]+`), "Bearer " + Redacted},
}

// RedactString scrubs credentials, webhook secrets and presigned url
// signatures from s.
func RedactString(s string) string {
	for _, r := range redactions {
		s = r.pattern.ReplaceAllString(s, r.replacement)
	}
	return s
}

func isSensitiveKey(key string) bool {
	key = strings.ToLower(key)
	for _, marker := range []string{"token", "secret", "password", "authorization", "api_key", "apikey", "cookie"} {
		if strings.Contains(key, marker) {
			return true
		}
	}
	return false
}

type redactingCore struct {
	zapcore.Core
}

// NewRedactingCore wraps core so that every entry goes through RedactString
// and sensitive keys lose their values.
func NewRedactingCore(core zapcore.Core) zapcore.Core {
	return &redactingCore{Core: core}
}

func (c *redactingCore) With(fields []zapcore.Field) zapcore.Core {
	return &redactingCore{Core: c.Core.With(redactFields(fields))}
}

func (c *redactingCore) Check(ent zapcore.Entry, ce *zapcore.CheckedEntry) *zapcore.CheckedEntry {
	if c.Enabled(ent.Level) {
		return ce.AddCore(ent, c)
	}
	return ce
}

func (c *redactingCore) Write(ent zapcore.Entry, fields []zapcore.Field) error {
	ent.Message = RedactString(ent.Message)
	return c.Core.Write(ent, redactFields(fields))
}

func redactFields(fields []zapcore.Field) []zapcore.Field {
	out := make([]zapcore.Field, len(fields))
	for i, f := range fields {
		out[i] = redactField(f)
	}
	return out
}

func redactField(f zapcore.Field) zapcore.Field {
	if isSensitiveKey(f.Key) {
		return zapcore.Field{Key: f.Key, Type: zapcore.StringType, String: Redacted}
	}

	switch f.Type {
	case zapcore.StringType:
		f.String = RedactString(f.String)
	case zapcore.ErrorType:
		if err, ok := f.Interface.(error); ok && err != nil {
			return zapcore.Field{Key: f.Key, Type: zapcore.StringType, String: RedactString(err.Error())}
		}
	}
	return f
}
