package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/kelseyhightower/envconfig"
)

var singleConfig *Config = nil

type Config struct {
	Database   *dbConfig
	Service    *svcConfig
	S3         *s3Config
	Provider   *providerConfig
	Webhook    *webhookConfig
	Retry      *retryConfig
	Polling    *pollingConfig
	Limits     *limitsConfig
	Dispatcher *dispatcherConfig
	Events     *eventsConfig
}

type dbConfig struct {
	Type     string `envconfig:"DB_TYPE" default:"pgsql"`
	Hostname string `envconfig:"DB_HOST" default:"localhost"`
	Port     string `envconfig:"DB_PORT" default:"5432"`
	Name     string `envconfig:"DB_NAME" default:"transcriber"`
	User     string `envconfig:"DB_USER" default:"admin"`
	Password string `envconfig:"DB_PASS" default:"adminpass"`
}

type svcConfig struct {
	Address            string   `envconfig:"TRANSCRIBER_ADDRESS" default:":8000"`
	MetricsAddress     string   `envconfig:"TRANSCRIBER_METRICS_ADDRESS" default:":8080"`
	BaseUrl            string   `envconfig:"TRANSCRIBER_BASE_URL" default:"http://localhost:8000"`
	LogLevel           string   `envconfig:"TRANSCRIBER_LOG_LEVEL" default:"info"`
	LogRedaction       bool     `envconfig:"TRANSCRIBER_LOG_REDACTION" default:"true"`
	MigrationFolder    string   `envconfig:"TRANSCRIBER_MIGRATIONS_FOLDER" default:""`
	CorsAllowedOrigins []string `envconfig:"TRANSCRIBER_CORS_ORIGINS" default:"*"`
	Auth               Auth
}

type Auth struct {
	AuthenticationType string `envconfig:"TRANSCRIBER_AUTH" default:""`
	ApiKey             string `envconfig:"TRANSCRIBER_API_KEY" default:""`
}

type s3Config struct {
	Endpoint  string `envconfig:"S3_ENDPOINT_URL" default:"localhost:9000"`
	Region    string `envconfig:"S3_REGION" default:"us-east-1"`
	Bucket    string `envconfig:"S3_BUCKET_NAME" default:"transcriptions"`
	AccessKey string `envconfig:"S3_ACCESS_KEY" default:""`
	SecretKey string `envconfig:"S3_SECRET_KEY" default:""`
	UseSSL    bool   `envconfig:"S3_USE_SSL" default:"false"`
}

type providerConfig struct {
	ApiKey  string        `envconfig:"ASSEMBLYAI_API_KEY" default:""`
	BaseUrl string        `envconfig:"ASSEMBLYAI_BASE_URL" default:"https://api.assemblyai.com"`
	Timeout time.Duration `envconfig:"ASSEMBLYAI_TIMEOUT" default:"30s"`
}

type webhookConfig struct {
	BaseUrl string        `envconfig:"WEBHOOK_BASE_URL" default:""`
	Secret  string        `envconfig:"WEBHOOK_SECRET_TOKEN" default:""`
	Timeout time.Duration `envconfig:"WEBHOOK_TIMEOUT" default:"10s"`
}

type retryConfig struct {
	MaxAttempts int             `envconfig:"RETRY_MAX_ATTEMPTS" default:"3"`
	Backoff     []time.Duration `envconfig:"RETRY_BACKOFF" default:"1s,5s,15s"`
}

type pollingConfig struct {
	Enabled        bool          `envconfig:"POLLING_ENABLED" default:"true"`
	Interval       time.Duration `envconfig:"POLLING_INTERVAL" default:"5m"`
	StaleThreshold time.Duration `envconfig:"POLLING_STALE_THRESHOLD" default:"2h"`
	StopTimeout    time.Duration `envconfig:"POLLING_STOP_TIMEOUT" default:"30s"`
	JobTimeout     time.Duration `envconfig:"POLLING_JOB_TIMEOUT" default:"5m"`
}

type limitsConfig struct {
	MaxConcurrentJobs int           `envconfig:"MAX_CONCURRENT_JOBS" default:"10"`
	MaxFileSize       int64         `envconfig:"MAX_FILE_SIZE" default:"1073741824"`
	AllowedFormats    []string      `envconfig:"ALLOWED_AUDIO_FORMATS" default:".wav,.mp3,.m4a,.flac,.ogg,.webm"`
	SourceURLExpiry   time.Duration `envconfig:"SOURCE_URL_EXPIRY" default:"24h"`
	ResultURLExpiry   time.Duration `envconfig:"RESULT_URL_EXPIRY" default:"1h"`
}

type dispatcherConfig struct {
	Workers    int `envconfig:"DISPATCHER_WORKERS" default:"4"`
	BufferSize int `envconfig:"DISPATCHER_BUFFER_SIZE" default:"100"`
}

type eventsConfig struct {
	Enabled bool   `envconfig:"EVENTS_ENABLED" default:"false"`
	Topic   string `envconfig:"EVENTS_TOPIC" default:"transcriber.events"`
}

// Configured reports whether completion signals can be pushed to us.
func (w *webhookConfig) Configured() bool {
	return w.BaseUrl != "" && w.Secret != ""
}

// CallbackURL returns the url handed to the provider or an empty string when
// the webhook is not configured.
func (w *webhookConfig) CallbackURL() string {
	if !w.Configured() {
		return ""
	}
	return fmt.Sprintf("%s/api/v1/webhooks/assemblyai/%s", strings.TrimRight(w.BaseUrl, "/"), w.Secret)
}

func New() (*Config, error) {
	if singleConfig == nil {
		singleConfig = NewDefault()
		if err := envconfig.Process("", singleConfig); err != nil {
			return nil, err
		}
	}
	return singleConfig, nil
}

// NewDefault returns a configuration populated with the default values and an
// in-memory sqlite database.
func NewDefault() *Config {
	return &Config{
		Database: &dbConfig{
			Type: "sqlite",
			Name: ":memory:",
		},
		Service: &svcConfig{
			Address:            ":8000",
			MetricsAddress:     ":8080",
			BaseUrl:            "http://localhost:8000",
			LogLevel:           "info",
			LogRedaction:       true,
			CorsAllowedOrigins: []string{"*"},
		},
		S3: &s3Config{
			Endpoint: "localhost:9000",
			Region:   "us-east-1",
			Bucket:   "transcriptions",
		},
		Provider: &providerConfig{
			BaseUrl: "https://api.assemblyai.com",
			Timeout: 30 * time.Second,
		},
		Webhook: &webhookConfig{
			Timeout: 10 * time.Second,
		},
		Retry: &retryConfig{
			MaxAttempts: 3,
			Backoff:     []time.Duration{time.Second, 5 * time.Second, 15 * time.Second},
		},
		Polling: &pollingConfig{
			Enabled:        true,
			Interval:       5 * time.Minute,
			StaleThreshold: 2 * time.Hour,
			StopTimeout:    30 * time.Second,
			JobTimeout:     5 * time.Minute,
		},
		Limits: &limitsConfig{
			MaxConcurrentJobs: 10,
			MaxFileSize:       1 << 30,
			AllowedFormats:    []string{".wav", ".mp3", ".m4a", ".flac", ".ogg", ".webm"},
			SourceURLExpiry:   24 * time.Hour,
			ResultURLExpiry:   time.Hour,
		},
		Dispatcher: &dispatcherConfig{
			Workers:    4,
			BufferSize: 100,
		},
		Events: &eventsConfig{
			Topic: "transcriber.events",
		},
	}
}
