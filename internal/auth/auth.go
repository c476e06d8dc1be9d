package auth

import (
	"fmt"
	"net/http"
	"strings"

	"github.com/go-chi/render"
	"github.com/kubev2v/transcriber/internal/config"
	"github.com/kubev2v/transcriber/pkg/middleware"
	"go.uber.org/zap"
)

type Authenticator interface {
	Authenticator(next http.Handler) http.Handler
}

const (
	ApiKeyAuthentication string = "api-key"
	NoneAuthentication   string = "none"
)

// NewAuthenticator falls back to api key authentication whenever a key is
// configured, even without an explicit type.
func NewAuthenticator(authConfig config.Auth) (Authenticator, error) {
	authType := authConfig.AuthenticationType
	if authType == "" && authConfig.ApiKey != "" {
		authType = ApiKeyAuthentication
	}

	zap.S().Named("auth").Infof("authentication: '%s'", authType)

	switch authType {
	case ApiKeyAuthentication:
		return NewApiKeyAuthenticator(authConfig.ApiKey)
	case NoneAuthentication, "":
		return NewNoneAuthenticator()
	default:
		return nil, fmt.Errorf("unknown authentication type %q", authType)
	}
}

// IsEnabled reports whether requests need credentials.
func IsEnabled(a Authenticator) bool {
	_, none := a.(*NoneAuthenticator)
	return !none
}

// isPublic matches the routes reachable without credentials. Webhooks carry
// their own secret in the path.
func isPublic(path string) bool {
	return path == "/" || path == "/health" || strings.HasPrefix(path, "/api/v1/webhooks/")
}

func unauthorized(w http.ResponseWriter, r *http.Request, message string) {
	render.Status(r, http.StatusUnauthorized)
	render.JSON(w, r, map[string]string{
		"message":    message,
		"request_id": middleware.RequestIDFromContext(r.Context()),
	})
}
