package common

import (
	"os"
	"strconv"
	"time"
)

// Config holds all application configuration. It is loaded once at startup and
// passed to components as an immutable value; stage logic never reads the
// environment directly.
type Config struct {
	Database   DatabaseConfig
	Redis      RedisConfig
	Storage    StorageConfig
	Processing ProcessingConfig
	Providers  ProvidersConfig
	Pipeline   PipelineConfig
	Webhook    WebhookConfig
}

// DatabaseConfig holds database-related configuration
type DatabaseConfig struct {
	DSN              string
	MaxConns         int32
	MinConns         int32
	MaxConnLifetime  time.Duration
	MaxConnIdleTime  time.Duration
	DialTimeout      time.Duration
	StatementTimeout time.Duration
}

// RedisConfig holds job-queue configuration
type RedisConfig struct {
	Addr     string
	Password string
	DB       int
	QueueKey string
}

// StorageConfig holds raw-byte storage configuration
type StorageConfig struct {
	RootDir string
}

// ProcessingConfig holds format-processor limits and knobs
type ProcessingConfig struct {
	MaxFileSizeBytes int64
	MaxPages         int
	PDFDPI           int
	MaxDimension     int
	JPEGQuality      int
	ScannedTextChars int // pages with fewer alphanumeric chars are treated as scanned
	Deskew           bool
	EnhanceContrast  bool
	PdftoppmBin      string
}

// ProvidersConfig holds AI provider configuration
type ProvidersConfig struct {
	AnthropicAPIKey  string
	AnthropicBaseURL string
	AnthropicModel   string
	OpenAIAPIKey     string
	OpenAIBaseURL    string
	OpenAIModel      string
	RequestTimeout   time.Duration
	MaxOutputTokens  int
	ClassifyPages    int // pages sent for classification
	PagesPerCall     int // max images per extraction call before chunking
}

// PipelineConfig holds orchestrator behavior
type PipelineConfig struct {
	Workers          int
	JobTimeout       time.Duration
	ClaimTimeout     time.Duration // liveness window before a processing claim may be reclaimed
	RetryMaxAttempts int
	RetryBaseDelay   time.Duration
	RetryMaxDelay    time.Duration
	ConfidenceFloor  float64 // below this the document routes to needs_review
	ToleranceAbs     float64 // arithmetic reconciliation, absolute currency units
	TolerancePct     float64 // arithmetic reconciliation, fraction of subtotal
}

// WebhookConfig holds notification configuration
type WebhookConfig struct {
	URL        string
	Secret     string
	Timeout    time.Duration
	MaxRetries int
}

// LoadConfig loads configuration from environment variables.
func LoadConfig() *Config {
	return &Config{
		Database: DatabaseConfig{
			DSN:              getEnv("DB_URL", ""),
			MaxConns:         getEnvAsInt32("DB_MAX_CONNS", 20),
			MinConns:         getEnvAsInt32("DB_MIN_CONNS", 5),
			MaxConnLifetime:  getEnvAsDuration("DB_MAX_CONN_LIFETIME", 30*time.Minute),
			MaxConnIdleTime:  getEnvAsDuration("DB_MAX_CONN_IDLE_TIME", 5*time.Minute),
			DialTimeout:      getEnvAsDuration("DB_DIAL_TIMEOUT", 3*time.Second),
			StatementTimeout: getEnvAsDuration("DB_STATEMENT_TIMEOUT", 0),
		},
		Redis: RedisConfig{
			Addr:     getEnv("REDIS_ADDR", "localhost:6379"),
			Password: getEnv("REDIS_PASSWORD", ""),
			DB:       getEnvAsInt("REDIS_DB", 0),
			QueueKey: getEnv("REDIS_QUEUE_KEY", "docintel:jobs"),
		},
		Storage: StorageConfig{
			RootDir: getEnv("STORAGE_ROOT", "./storage"),
		},
		Processing: ProcessingConfig{
			MaxFileSizeBytes: int64(getEnvAsInt("MAX_FILE_SIZE_MB", 50)) * 1024 * 1024,
			MaxPages:         getEnvAsInt("MAX_PAGES_PER_DOCUMENT", 100),
			PDFDPI:           getEnvAsInt("PDF_DPI", 200),
			MaxDimension:     getEnvAsInt("IMAGE_MAX_DIMENSION", 2000),
			JPEGQuality:      getEnvAsInt("JPEG_QUALITY", 85),
			ScannedTextChars: getEnvAsInt("SCANNED_TEXT_CHARS", 100),
			Deskew:           getEnvAsBool("IMAGE_DESKEW", true),
			EnhanceContrast:  getEnvAsBool("IMAGE_ENHANCE_CONTRAST", false),
			PdftoppmBin:      getEnv("PDFTOPPM_BIN", "pdftoppm"),
		},
		Providers: ProvidersConfig{
			AnthropicAPIKey:  getEnv("ANTHROPIC_API_KEY", ""),
			AnthropicBaseURL: getEnv("ANTHROPIC_BASE_URL", "https://api.anthropic.com"),
			AnthropicModel:   getEnv("ANTHROPIC_MODEL", "claude-sonnet-4-20250514"),
			OpenAIAPIKey:     getEnv("OPENAI_API_KEY", ""),
			OpenAIBaseURL:    getEnv("OPENAI_BASE_URL", "https://api.openai.com/v1"),
			OpenAIModel:      getEnv("OPENAI_MODEL", "gpt-4o"),
			RequestTimeout:   getEnvAsDuration("EXTRACTION_TIMEOUT", 120*time.Second),
			MaxOutputTokens:  getEnvAsInt("MAX_OUTPUT_TOKENS", 4096),
			ClassifyPages:    getEnvAsInt("CLASSIFY_PAGES", 2),
			PagesPerCall:     getEnvAsInt("PAGES_PER_CALL", 8),
		},
		Pipeline: PipelineConfig{
			Workers:          getEnvAsInt("WORKER_CONCURRENCY", 10),
			JobTimeout:       getEnvAsDuration("JOB_TIMEOUT", 300*time.Second),
			ClaimTimeout:     getEnvAsDuration("CLAIM_TIMEOUT", 10*time.Minute),
			RetryMaxAttempts: getEnvAsInt("RETRY_MAX_ATTEMPTS", 3),
			RetryBaseDelay:   getEnvAsDuration("RETRY_BASE_DELAY", 1*time.Second),
			RetryMaxDelay:    getEnvAsDuration("RETRY_MAX_DELAY", 10*time.Second),
			ConfidenceFloor:  getEnvAsFloat64("CONFIDENCE_FLOOR", 0.5),
			ToleranceAbs:     getEnvAsFloat64("RECONCILE_TOLERANCE_ABS", 0.01),
			TolerancePct:     getEnvAsFloat64("RECONCILE_TOLERANCE_PCT", 0.01),
		},
		Webhook: WebhookConfig{
			URL:        getEnv("WEBHOOK_URL", ""),
			Secret:     getEnv("WEBHOOK_SECRET", ""),
			Timeout:    getEnvAsDuration("WEBHOOK_TIMEOUT", 30*time.Second),
			MaxRetries: getEnvAsInt("WEBHOOK_MAX_RETRIES", 3),
		},
	}
}

// Validate validates the loaded configuration.
func (c *Config) Validate() error {
	if c.Database.DSN == "" {
		return NewAppError("CONFIG_ERROR", "DB_URL is required", ErrInvalidInput)
	}
	if c.Providers.AnthropicAPIKey == "" && c.Providers.OpenAIAPIKey == "" {
		return NewAppError("CONFIG_ERROR", "at least one provider API key is required", ErrInvalidInput)
	}
	if c.Processing.MaxFileSizeBytes > 100*1024*1024 {
		return NewAppError("CONFIG_ERROR", "MAX_FILE_SIZE_MB cannot exceed 100", ErrInvalidInput)
	}
	if c.Pipeline.ConfidenceFloor < 0 || c.Pipeline.ConfidenceFloor > 1 {
		return NewAppError("CONFIG_ERROR", "CONFIDENCE_FLOOR must be within [0,1]", ErrInvalidInput)
	}
	return nil
}

// Helper functions for environment variable parsing
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
	}
	return defaultValue
}

func getEnvAsInt32(key string, defaultValue int32) int32 {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.ParseInt(value, 10, 32); err == nil {
			return int32(intVal)
		}
	}
	return defaultValue
}

func getEnvAsFloat64(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if floatVal, err := strconv.ParseFloat(value, 64); err == nil {
			return floatVal
		}
	}
	return defaultValue
}

func getEnvAsBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if b, err := strconv.ParseBool(value); err == nil {
			return b
		}
	}
	return defaultValue
}

func getEnvAsDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if duration, err := time.ParseDuration(value); err == nil {
			return duration
		}
	}
	return defaultValue
}
