package auth

import (
	"crypto/subtle"
	"errors"
	"net/http"

	"go.uber.org/zap"
)

const ApiKeyHeader = "X-API-Key"

type ApiKeyAuthenticator struct {
	key []byte
}

func NewApiKeyAuthenticator(key string) (*ApiKeyAuthenticator, error) {
	if key == "" {
		return nil, errors.New("api key authentication requires TRANSCRIBER_API_KEY")
	}
	return &ApiKeyAuthenticator{key: []byte(key)}, nil
}

func (a *ApiKeyAuthenticator) Authenticate(key string) error {
	if subtle.ConstantTimeCompare([]byte(key), a.key) != 1 {
		return errors.New("invalid api key")
	}
	return nil
}

func (a *ApiKeyAuthenticator) Authenticator(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if isPublic(r.URL.Path) {
			next.ServeHTTP(w, r)
			return
		}

		key := r.Header.Get(ApiKeyHeader)
		if key == "" {
			unauthorized(w, r, "Missing X-API-Key header. Please provide API key for authentication.")
			return
		}

		if err := a.Authenticate(key); err != nil {
			zap.S().Named("auth").Warnw("rejected request", "path", r.URL.Path, "error", err)
			unauthorized(w, r, "Invalid API key. Please check your X-API-Key header.")
			return
		}

		next.ServeHTTP(w, r)
	})
}
