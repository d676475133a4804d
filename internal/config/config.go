// Package config provides configuration loading and validation for the API server.
// It uses koanf to merge environment variables with optional file overrides.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
)

// Config holds all configuration values for the API server.
type Config struct {
	// Server settings
	Port int    `koanf:"port"`
	Env  string `koanf:"env"`

	// Database. Optional: when empty the server runs on in-memory
	// stores, which is only useful for local development.
	DatabaseURL string `koanf:"database_url"`

	// S3-compatible object storage. Audio recordings and decoration
	// models live in separate buckets on the same endpoint.
	StorageEndpoint        string `koanf:"storage_endpoint"`
	StorageAccessKeyID     string `koanf:"storage_access_key_id"`
	StorageSecretAccessKey string `koanf:"storage_secret_access_key"`
	AudioBucketName        string `koanf:"audio_bucket_name"`
	ModelBucketName        string `koanf:"model_bucket_name"`
	StorageURLExpiryDays   int    `koanf:"storage_url_expiry_days"`

	// Upload limit for multipart bodies, in megabytes.
	MaxUploadSizeMB int `koanf:"max_upload_size_mb"`

	// OpenAI. Optional: when the API key is empty, enrichment is
	// disabled and captured diaries stay unenriched.
	OpenAIAPIKey          string `koanf:"openai_api_key"`
	OpenAIBaseURL         string `koanf:"openai_base_url"`
	OpenAITranscribeModel string `koanf:"openai_transcribe_model"`
	OpenAIChatModel       string `koanf:"openai_chat_model"`

	// Enrichment worker pool.
	EnrichWorkers          int `koanf:"enrich_workers"`
	EnrichQueueSize        int `koanf:"enrich_queue_size"`
	EnrichStageTimeoutSecs int `koanf:"enrich_stage_timeout_secs"`

	// Redis. Optional: backs the dead-letter store and the rate
	// limiter; without it both fall back to in-memory.
	RedisURL string `koanf:"redis_url"`

	// Rate limiting.
	RateLimitEnabled bool `koanf:"rate_limit_enabled"`

	// CORS. Empty means no CORS headers are emitted; the app client
	// talks to the API directly, so browsers only show up in dev.
	CORSAllowedOrigins []string `koanf:"cors_allowed_origins"`

	// pprof endpoints. Refused outright in production.
	ProfilingEnabled bool `koanf:"profiling_enabled"`

	// Tracing.
	TracingEnabled bool   `koanf:"tracing_enabled"`
	OTLPEndpoint   string `koanf:"otlp_endpoint"`
}

// Configuration validation errors.
var (
	ErrMissingStorageEndpoint  = errors.New("STORAGE_ENDPOINT is required")
	ErrMissingStorageAccessKey = errors.New("STORAGE_ACCESS_KEY_ID is required")
	ErrMissingStorageSecretKey = errors.New("STORAGE_SECRET_ACCESS_KEY is required")
	ErrMissingAudioBucket      = errors.New("AUDIO_BUCKET_NAME is required")
	ErrMissingModelBucket      = errors.New("MODEL_BUCKET_NAME is required")
	ErrInvalidPort             = errors.New("PORT must be a valid integer")
)

// Default values for non-secret configuration.
const (
	DefaultPort                   = 8080
	DefaultEnv                    = "development"
	DefaultStorageURLExpiryDays   = 90
	DefaultMaxUploadSizeMB        = 20
	DefaultEnrichWorkers          = 4
	DefaultEnrichQueueSize        = 64
	DefaultEnrichStageTimeoutSecs = 60
)

// Load reads configuration from environment variables and an optional config file.
// Environment variables take precedence over file values.
// Returns the loaded config and a slice of validation errors (empty if valid).
// If a config file path is provided and the file cannot be loaded, an error is returned.
func Load(configFilePath string) (*Config, []error) {
	k := koanf.New(".")
	var loadErrs []error

	// Load from YAML file first if provided (lower precedence)
	if configFilePath != "" {
		if err := k.Load(file.Provider(configFilePath), yaml.Parser()); err != nil {
			return nil, []error{fmt.Errorf("failed to load config file %s: %w", configFilePath, err)}
		}
	}

	// Try RECORDIARY_PORT first, then PORT
	port, portErr := getEnvIntOrDefaultMulti([]string{"RECORDIARY_PORT", "PORT"}, k.Int("port"), DefaultPort)
	if portErr != nil {
		loadErrs = append(loadErrs, portErr)
	}

	urlExpiryDays, expiryErr := getEnvIntOrDefault("STORAGE_URL_EXPIRY_DAYS", k.Int("storage_url_expiry_days"), DefaultStorageURLExpiryDays)
	if expiryErr != nil {
		loadErrs = append(loadErrs, expiryErr)
	}

	maxUploadSize, uploadSizeErr := getEnvIntOrDefault("MAX_UPLOAD_SIZE_MB", k.Int("max_upload_size_mb"), DefaultMaxUploadSizeMB)
	if uploadSizeErr != nil {
		loadErrs = append(loadErrs, uploadSizeErr)
	}

	workers, workersErr := getEnvIntOrDefault("ENRICH_WORKERS", k.Int("enrich_workers"), DefaultEnrichWorkers)
	if workersErr != nil {
		loadErrs = append(loadErrs, workersErr)
	}

	queueSize, queueErr := getEnvIntOrDefault("ENRICH_QUEUE_SIZE", k.Int("enrich_queue_size"), DefaultEnrichQueueSize)
	if queueErr != nil {
		loadErrs = append(loadErrs, queueErr)
	}

	stageTimeout, timeoutErr := getEnvIntOrDefault("ENRICH_STAGE_TIMEOUT_SECS", k.Int("enrich_stage_timeout_secs"), DefaultEnrichStageTimeoutSecs)
	if timeoutErr != nil {
		loadErrs = append(loadErrs, timeoutErr)
	}

	// Build config struct, with env vars taking precedence over file values
	cfg := &Config{
		Port:                   port,
		Env:                    getEnvOrDefaultMulti([]string{"RECORDIARY_ENV", "ENV", "GO_ENV"}, k.String("env"), DefaultEnv),
		DatabaseURL:            getEnvOrKoanf("DATABASE_URL", k, "database_url"),
		StorageEndpoint:        getEnvOrKoanf("STORAGE_ENDPOINT", k, "storage_endpoint"),
		StorageAccessKeyID:     getEnvOrKoanf("STORAGE_ACCESS_KEY_ID", k, "storage_access_key_id"),
		StorageSecretAccessKey: getEnvOrKoanf("STORAGE_SECRET_ACCESS_KEY", k, "storage_secret_access_key"),
		AudioBucketName:        getEnvOrKoanf("AUDIO_BUCKET_NAME", k, "audio_bucket_name"),
		ModelBucketName:        getEnvOrKoanf("MODEL_BUCKET_NAME", k, "model_bucket_name"),
		StorageURLExpiryDays:   urlExpiryDays,
		MaxUploadSizeMB:        maxUploadSize,
		OpenAIAPIKey:           getEnvOrKoanf("OPENAI_API_KEY", k, "openai_api_key"),
		OpenAIBaseURL:          getEnvOrKoanf("OPENAI_BASE_URL", k, "openai_base_url"),
		OpenAITranscribeModel:  getEnvOrKoanf("OPENAI_TRANSCRIBE_MODEL", k, "openai_transcribe_model"),
		OpenAIChatModel:        getEnvOrKoanf("OPENAI_CHAT_MODEL", k, "openai_chat_model"),
		EnrichWorkers:          workers,
		EnrichQueueSize:        queueSize,
		EnrichStageTimeoutSecs: stageTimeout,
		RedisURL:               getEnvOrKoanf("REDIS_URL", k, "redis_url"),
		RateLimitEnabled:       getEnvBoolOrKoanf("RATE_LIMIT_ENABLED", k, "rate_limit_enabled"),
		CORSAllowedOrigins:     getEnvListOrKoanf("CORS_ALLOWED_ORIGINS", k, "cors_allowed_origins"),
		ProfilingEnabled:       getEnvBoolOrKoanf("PROFILING_ENABLED", k, "profiling_enabled"),
		TracingEnabled:         getEnvBoolOrKoanf("TRACING_ENABLED", k, "tracing_enabled"),
		OTLPEndpoint:           getEnvOrKoanf("OTLP_ENDPOINT", k, "otlp_endpoint"),
	}

	// Validate and collect errors
	errs := cfg.Validate()
	errs = append(loadErrs, errs...)

	return cfg, errs
}

// getEnvOrKoanf returns the environment variable value if set, otherwise the koanf value.
func getEnvOrKoanf(envKey string, k *koanf.Koanf, koanfKey string) string {
	if val := os.Getenv(envKey); val != "" {
		return val
	}
	return k.String(koanfKey)
}

// getEnvBoolOrKoanf returns the environment variable as bool if set,
// otherwise the koanf value.
func getEnvBoolOrKoanf(envKey string, k *koanf.Koanf, koanfKey string) bool {
	if val := os.Getenv(envKey); val != "" {
		switch val {
		case "true", "1", "yes", "on", "TRUE", "True":
			return true
		default:
			return false
		}
	}
	return k.Bool(koanfKey)
}

// getEnvListOrKoanf returns the environment variable split on commas if
// set, otherwise the koanf list value.
func getEnvListOrKoanf(envKey string, k *koanf.Koanf, koanfKey string) []string {
	if val := os.Getenv(envKey); val != "" {
		var out []string
		for _, part := range strings.Split(val, ",") {
			if trimmed := strings.TrimSpace(part); trimmed != "" {
				out = append(out, trimmed)
			}
		}
		return out
	}
	return k.Strings(koanfKey)
}

// getEnvOrDefaultMulti tries multiple environment variable keys in order.
// Returns the first non-empty value found, otherwise the koanf value, or default.
func getEnvOrDefaultMulti(envKeys []string, koanfVal string, defaultVal string) string {
	for _, key := range envKeys {
		if val := os.Getenv(key); val != "" {
			return val
		}
	}
	if koanfVal != "" {
		return koanfVal
	}
	return defaultVal
}

// getEnvIntOrDefault returns the environment variable as int if set, otherwise the koanf value, or default.
// Returns an error if the environment variable is set but cannot be parsed as an integer.
func getEnvIntOrDefault(envKey string, koanfVal int, defaultVal int) (int, error) {
	if val := os.Getenv(envKey); val != "" {
		i, err := strconv.Atoi(val)
		if err != nil {
			return 0, fmt.Errorf("%s must be a valid integer: %w", envKey, err)
		}
		return i, nil
	}
	if koanfVal != 0 {
		return koanfVal, nil
	}
	return defaultVal, nil
}

// getEnvIntOrDefaultMulti tries multiple environment variable keys in order.
// Returns the first valid integer value found, otherwise the koanf value, or default.
// Returns an error if any environment variable is set but cannot be parsed as an integer.
func getEnvIntOrDefaultMulti(envKeys []string, koanfVal int, defaultVal int) (int, error) {
	for _, key := range envKeys {
		if val := os.Getenv(key); val != "" {
			i, err := strconv.Atoi(val)
			if err != nil {
				return 0, fmt.Errorf("%s must be a valid integer: %w", key, ErrInvalidPort)
			}
			return i, nil
		}
	}
	if koanfVal != 0 {
		return koanfVal, nil
	}
	return defaultVal, nil
}

// Validate checks that all required configuration values are present.
// Returns a slice of validation errors (empty if valid).
//
// Storage configuration is optional as a group (local development runs
// on the in-memory blob store), but setting any storage value requires
// all of them.
func (c *Config) Validate() []error {
	var errs []error

	if c.StorageEndpoint != "" || c.StorageAccessKeyID != "" || c.StorageSecretAccessKey != "" ||
		c.AudioBucketName != "" || c.ModelBucketName != "" {
		if c.StorageEndpoint == "" {
			errs = append(errs, ErrMissingStorageEndpoint)
		}
		if c.StorageAccessKeyID == "" {
			errs = append(errs, ErrMissingStorageAccessKey)
		}
		if c.StorageSecretAccessKey == "" {
			errs = append(errs, ErrMissingStorageSecretKey)
		}
		if c.AudioBucketName == "" {
			errs = append(errs, ErrMissingAudioBucket)
		}
		if c.ModelBucketName == "" {
			errs = append(errs, ErrMissingModelBucket)
		}
	}

	return errs
}

// LogSummary returns a summary of the configuration suitable for logging.
// All secrets are masked to prevent accidental exposure.
func (c *Config) LogSummary() map[string]string {
	return map[string]string{
		"port":                      fmt.Sprintf("%d", c.Port),
		"env":                       c.Env,
		"database_url":              maskDatabaseURL(c.DatabaseURL),
		"storage_endpoint":          c.StorageEndpoint,
		"storage_access_key_id":     maskSecret(c.StorageAccessKeyID),
		"storage_secret_access_key": maskSecret(c.StorageSecretAccessKey),
		"audio_bucket_name":         c.AudioBucketName,
		"model_bucket_name":         c.ModelBucketName,
		"storage_url_expiry_days":   fmt.Sprintf("%d", c.StorageURLExpiryDays),
		"max_upload_size_mb":        fmt.Sprintf("%d", c.MaxUploadSizeMB),
		"openai_api_key":            maskSecret(c.OpenAIAPIKey),
		"openai_base_url":           c.OpenAIBaseURL,
		"enrich_workers":            fmt.Sprintf("%d", c.EnrichWorkers),
		"enrich_queue_size":         fmt.Sprintf("%d", c.EnrichQueueSize),
		"enrich_stage_timeout_secs": fmt.Sprintf("%d", c.EnrichStageTimeoutSecs),
		"redis_url":                 maskDatabaseURL(c.RedisURL),
		"rate_limit_enabled":        fmt.Sprintf("%t", c.RateLimitEnabled),
		"cors_allowed_origins":      strings.Join(c.CORSAllowedOrigins, ","),
		"profiling_enabled":         fmt.Sprintf("%t", c.ProfilingEnabled),
		"tracing_enabled":           fmt.Sprintf("%t", c.TracingEnabled),
		"otlp_endpoint":             c.OTLPEndpoint,
	}
}

// maskSecret masks a secret value, showing only the first 4 characters followed by ****
// If the secret is shorter than 8 characters, it's fully masked.
func maskSecret(s string) string {
	if s == "" {
		return "<not set>"
	}
	if len(s) < 8 {
		return "****"
	}
	return s[:4] + "****"
}

// maskDatabaseURL masks the password in a connection URL.
func maskDatabaseURL(s string) string {
	if s == "" {
		return "<not set>"
	}

	schemeEnd := strings.Index(s, "://")
	if schemeEnd == -1 {
		return maskSecret(s)
	}

	rest := s[schemeEnd+3:]
	atIndex := strings.Index(rest, "@")
	if atIndex == -1 {
		return s // No credentials in URL
	}

	colonIndex := strings.Index(rest[:atIndex], ":")
	if colonIndex == -1 {
		return s // No password (only username)
	}

	scheme := s[:schemeEnd+3]
	user := rest[:colonIndex]
	hostAndPath := rest[atIndex:]

	return scheme + user + ":****" + hostAndPath
}
