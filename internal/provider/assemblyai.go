package provider

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"go.uber.org/zap"
)

const (
	defaultBaseURL = "https://api.assemblyai.com"
	// pingTranscriptID never exists. A valid key gets a 404 for it.
	pingTranscriptID = "00000000-0000-0000-0000-000000000000"
)

// AssemblyAIClient talks to the AssemblyAI v2 REST api.
type AssemblyAIClient struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client
}

var _ Provider = (*AssemblyAIClient)(nil)

func NewAssemblyAIClient(baseURL, apiKey string, timeout time.Duration) *AssemblyAIClient {
	if baseURL == "" {
		baseURL = defaultBaseURL
	}
	if timeout == 0 {
		timeout = 60 * time.Second
	}
	return &AssemblyAIClient{
		baseURL: strings.TrimRight(baseURL, "/"),
		apiKey:  apiKey,
		httpClient: &http.Client{
			Timeout: timeout,
		},
	}
}

type transcriptRequest struct {
	AudioURL          string `json:"audio_url"`
	LanguageDetection bool   `json:"language_detection"`
	SpeakerLabels     bool   `json:"speaker_labels"`
	WebhookURL        string `json:"webhook_url,omitempty"`
}

type transcriptResponse struct {
	ID           string  `json:"id"`
	Status       string  `json:"status"`
	Error        *string `json:"error,omitempty"`
	LanguageCode *string `json:"language_code,omitempty"`
}

type errorResponse struct {
	Error string `json:"error"`
}

func (c *AssemblyAIClient) Submit(ctx context.Context, sourceURL string, opts SubmitOptions, callbackURL string) (string, error) {
	body, err := json.Marshal(transcriptRequest{
		AudioURL:          sourceURL,
		LanguageDetection: opts.LanguageDetection,
		SpeakerLabels:     opts.SpeakerLabels,
		WebhookURL:        callbackURL,
	})
	if err != nil {
		return "", fmt.Errorf("failed to marshal request: %w", err)
	}

	var resp transcriptResponse
	if err := c.doJSON(ctx, http.MethodPost, "/v2/transcript", body, &resp); err != nil {
		return "", err
	}

	if resp.ID == "" {
		return "", errors.New("transcription started but no id returned")
	}

	zap.S().Named("assemblyai").Infow("transcription submitted",
		"transcript_id", resp.ID,
		"language_detection", opts.LanguageDetection,
		"speaker_labels", opts.SpeakerLabels,
		"webhook", callbackURL != "",
	)
	return resp.ID, nil
}

func (c *AssemblyAIClient) Fetch(ctx context.Context, providerJobID string) (*Result, error) {
	var resp transcriptResponse
	if err := c.doJSON(ctx, http.MethodGet, "/v2/transcript/"+url.PathEscape(providerJobID), nil, &resp); err != nil {
		return nil, err
	}

	result := &Result{
		ID:     resp.ID,
		Status: Status(resp.Status),
	}
	if resp.Error != nil {
		result.ErrorText = *resp.Error
	}
	if resp.LanguageCode != nil {
		result.LanguageCode = *resp.LanguageCode
	}
	return result, nil
}

func (c *AssemblyAIClient) ToFinalFormat(ctx context.Context, result *Result) ([]byte, error) {
	if result == nil || result.ID == "" {
		return nil, errors.New("a transcript id is required to export subtitles")
	}

	data, err := c.do(ctx, http.MethodGet, "/v2/transcript/"+url.PathEscape(result.ID)+"/srt", nil)
	if err != nil {
		return nil, err
	}

	zap.S().Named("assemblyai").Debugw("transcript exported", "transcript_id", result.ID, "bytes", len(data))
	return data, nil
}

func (c *AssemblyAIClient) Ping(ctx context.Context) error {
	_, err := c.Fetch(ctx, pingTranscriptID)
	if err == nil || errors.Is(err, ErrNotFound) {
		return nil
	}
	return err
}

func (c *AssemblyAIClient) doJSON(ctx context.Context, method, path string, body []byte, out any) error {
	data, err := c.do(ctx, method, path, body)
	if err != nil {
		return err
	}
	if err := json.Unmarshal(data, out); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}
	return nil
}

func (c *AssemblyAIClient) do(ctx context.Context, method, path string, body []byte) ([]byte, error) {
	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}

	httpReq, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	httpReq.Header.Set("Authorization", c.apiKey)
	if body != nil {
		httpReq.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("failed to call assemblyai: %w", err)
	}
	defer func() {
		_ = resp.Body.Close()
	}()

	bodyBytes, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response body: %w", err)
	}

	switch {
	case resp.StatusCode == http.StatusNotFound:
		return nil, fmt.Errorf("%w: %s", ErrNotFound, errorText(bodyBytes))
	case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
		return nil, fmt.Errorf("%w: %s", ErrUnauthorized, errorText(bodyBytes))
	case resp.StatusCode < 200 || resp.StatusCode > 299:
		return nil, fmt.Errorf("assemblyai returned status %d: %s", resp.StatusCode, errorText(bodyBytes))
	}

	return bodyBytes, nil
}

func errorText(body []byte) string {
	var e errorResponse
	if err := json.Unmarshal(body, &e); err == nil && e.Error != "" {
		return e.Error
	}
	return strings.TrimSpace(string(body))
}
