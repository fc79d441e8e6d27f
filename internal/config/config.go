// Package config reads the server settings from the environment. Load
// applies defaults, normalizes values and rejects invalid combinations with a
// descriptive error.
package config

import (
	"errors"
	"os"
	"strconv"
	"strings"
	"time"
)

// CORSConfig defines Cross-Origin Resource Sharing settings.
type CORSConfig struct {
	AllowedOrigins []string
}

// SecurityConfig defines security-related settings such as HSTS.
type SecurityConfig struct {
	EnableHSTS bool
	HSTSMaxAge time.Duration
}

// OTELConfig defines OpenTelemetry observability settings.
type OTELConfig struct {
	Enabled     bool    // OTEL_ENABLED
	Endpoint    string  // OTEL_EXPORTER_OTLP_ENDPOINT (e.g. "otel:4317")
	Insecure    bool    // OTEL_EXPORTER_OTLP_INSECURE (true if no TLS)
	ServiceName string  // OTEL_SERVICE_NAME (e.g. "marketplace-backend")
	SampleRatio float64 // OTEL_TRACES_SAMPLER_ARG in [0..1]
}

// DBConfig selects and locates the database.
type DBConfig struct {
	Driver string // sqlite|postgres
	Path   string // SQLite file path
	URL    string // Postgres DSN
}

// AuthConfig controls bearer token issuance.
type AuthConfig struct {
	Secret string
	TTL    time.Duration
	Issuer string
}

// MediaConfig selects the media store driver and its limits.
type MediaConfig struct {
	Driver        string // memory|s3
	MaxBytes      int64  // per image
	PublicBaseURL string // prefix for public object URLs
	S3            S3Config
}

// S3Config holds S3 (or MinIO) connection settings.
type S3Config struct {
	Bucket          string
	Region          string
	Endpoint        string
	PathStyle       bool
	AccessKeyID     string
	SecretAccessKey string
}

// LockConfig configures the provider serialization lock.
// An empty RedisAddr selects the in-process lock.
type LockConfig struct {
	RedisAddr     string
	RedisPassword string
	TTL           time.Duration
}

// EventsConfig configures outbox publication. No brokers selects the log sink.
type EventsConfig struct {
	Brokers        []string
	Topic          string
	OutboxInterval time.Duration
	OutboxBatch    int
}

// LifecycleConfig tunes the request lifecycle operations.
type LifecycleConfig struct {
	RetryAttempts  int           // attempts for idempotent follow-up writes
	RetryBaseDelay time.Duration // first backoff; doubles per attempt
	CommissionRate float64       // platform share of completed jobs [0,1)
	SearchMinScore float64       // minimum token overlap for text search [0,1]
}

// Config holds all configuration values for the application.
type Config struct {
	// Server
	Port               string        // just the number
	ReadTimeout        time.Duration // e.g. 15s
	ReadHeaderTimeout  time.Duration // e.g. 10s
	WriteTimeout       time.Duration // e.g. 20s
	IdleTimeout        time.Duration // e.g. 60s
	MaxHeaderBytes     int           // bytes
	MaxBodyBytes       int64         // JSON bodies
	UploadMaxBodyBytes int64         // request creation with images
	GinMode            string        // debug|release|test

	// Logging / Docs
	LogLevel       string // debug|info|warn|error|fatal|panic
	LogPretty      bool   // pretty console logs in dev
	SwaggerEnabled bool   // enable Swagger UI route
	APIBasePath    string // base path for API routes

	DB        DBConfig
	Auth      AuthConfig
	Media     MediaConfig
	Lock      LockConfig
	Events    EventsConfig
	Lifecycle LifecycleConfig

	// Realtime
	WSBuffer int // per-subscriber snapshot buffer

	// Rate limiting
	RateRPS        float64 // tokens per second for every request (>= 0)
	RateBurst      int     // bucket size (>= 1)
	RateWriteRPS   float64 // tokens per second for mutating requests (0 disables)
	RateWriteBurst int     // write bucket size (>= 1)

	// Web protection
	CORS     CORSConfig
	Security SecurityConfig

	// Idempotency
	IdempotencyTTL time.Duration // how long a given Idempotency-Key is valid

	// Observability
	OTEL OTELConfig
}

// MustLoad loads the configuration and panics if validation fails.
func MustLoad() Config {
	cfg, err := Load()
	if err != nil {
		panic(err)
	}
	return cfg
}

// Load reads configuration from environment variables,
// applies defaults, normalizes values, and validates the result.
func Load() (Config, error) {
	cfg := Config{
		// Server
		Port:               getenv("PORT", "8080"),
		ReadTimeout:        getdur("READ_TIMEOUT", 15*time.Second),
		ReadHeaderTimeout:  getdur("READ_HEADER_TIMEOUT", 10*time.Second),
		WriteTimeout:       getdur("WRITE_TIMEOUT", 20*time.Second),
		IdleTimeout:        getdur("IDLE_TIMEOUT", 60*time.Second),
		MaxHeaderBytes:     getint("MAX_HEADER_BYTES", 1<<20),
		MaxBodyBytes:       int64(getint("MAX_BODY_BYTES", 1<<20)),
		UploadMaxBodyBytes: int64(getint("UPLOAD_MAX_BODY_BYTES", 48<<20)),
		GinMode:            strings.ToLower(getenv("GIN_MODE", "release")),

		// Logging / Docs
		LogLevel:       strings.ToLower(getenv("LOG_LEVEL", "info")),
		LogPretty:      getbool("LOG_PRETTY", false),
		SwaggerEnabled: getbool("SWAGGER_ENABLED", false),
		APIBasePath:    normalizeBasePath(getenv("API_BASE_PATH", "/api/v1")),

		DB: DBConfig{
			Driver: strings.ToLower(getenv("DB_DRIVER", "sqlite")),
			Path:   getenv("DB_PATH", "app.db"),
			URL:    getenv("DATABASE_URL", ""),
		},
		Auth: AuthConfig{
			Secret: getenv("JWT_SECRET", ""),
			TTL:    getdur("JWT_TTL", 24*time.Hour),
			Issuer: getenv("JWT_ISSUER", "marketplace-backend"),
		},
		Media: MediaConfig{
			Driver:        strings.ToLower(getenv("MEDIA_DRIVER", "memory")),
			MaxBytes:      int64(getint("MEDIA_MAX_BYTES", 8<<20)),
			PublicBaseURL: strings.TrimRight(getenv("MEDIA_PUBLIC_BASE_URL", "http://localhost:8080/media"), "/"),
			S3: S3Config{
				Bucket:          getenv("S3_BUCKET", ""),
				Region:          getenv("S3_REGION", "us-east-1"),
				Endpoint:        getenv("S3_ENDPOINT", ""),
				PathStyle:       getbool("S3_PATH_STYLE", false),
				AccessKeyID:     getenv("S3_ACCESS_KEY_ID", ""),
				SecretAccessKey: getenv("S3_SECRET_ACCESS_KEY", ""),
			},
		},
		Lock: LockConfig{
			RedisAddr:     getenv("REDIS_ADDR", ""),
			RedisPassword: getenv("REDIS_PASSWORD", ""),
			TTL:           getdur("LOCK_TTL", 10*time.Second),
		},
		Events: EventsConfig{
			Brokers:        splitCSV(getenv("KAFKA_BROKERS", "")),
			Topic:          getenv("KAFKA_TOPIC", "marketplace.lifecycle"),
			OutboxInterval: getdur("OUTBOX_INTERVAL", 2*time.Second),
			OutboxBatch:    getint("OUTBOX_BATCH", 100),
		},
		Lifecycle: LifecycleConfig{
			RetryAttempts:  getint("RETRY_ATTEMPTS", 3),
			RetryBaseDelay: getdur("RETRY_BASE_DELAY", 100*time.Millisecond),
			CommissionRate: getfloat("COMMISSION_RATE", 0.10),
			SearchMinScore: getfloat("SEARCH_MIN_SCORE", 0.1),
		},

		WSBuffer: getint("WS_BUFFER", 32),

		// Rate limiting
		RateRPS:        getfloat("RATE_RPS", 5.0),
		RateBurst:      getint("RATE_BURST", 10),
		RateWriteRPS:   getfloat("RATE_WRITE_RPS", 1.0),
		RateWriteBurst: getint("RATE_WRITE_BURST", 5),

		// Web protection
		CORS: CORSConfig{
			AllowedOrigins: splitCSV(getenv("CORS_ALLOWED_ORIGINS", "")),
		},
		Security: SecurityConfig{
			EnableHSTS: getbool("ENABLE_HSTS", false),
			HSTSMaxAge: getdur("HSTS_MAX_AGE", 180*24*time.Hour),
		},

		// Idempotency
		IdempotencyTTL: getdur("IDEMPOTENCY_TTL", 24*time.Hour),

		// Observability (OpenTelemetry)
		OTEL: OTELConfig{
			Enabled:     getbool("OTEL_ENABLED", false),
			Endpoint:    getenv("OTEL_EXPORTER_OTLP_ENDPOINT", "localhost:4317"),
			Insecure:    getbool("OTEL_EXPORTER_OTLP_INSECURE", true),
			ServiceName: getenv("OTEL_SERVICE_NAME", "marketplace-backend"),
			SampleRatio: getfloat("OTEL_TRACES_SAMPLER_ARG", 1.0),
		},
	}

	// --- normalization ---
	if cfg.LogLevel == "warning" {
		cfg.LogLevel = "warn"
	}
	switch cfg.GinMode {
	case "debug", "release", "test":
	default:
		cfg.GinMode = "release"
	}
	if cfg.DB.Driver == "postgresql" {
		cfg.DB.Driver = "postgres"
	}

	// --- validation ---
	switch cfg.LogLevel {
	case "debug", "info", "warn", "error", "fatal", "panic":
	default:
		return cfg, errors.New("LOG_LEVEL must be one of: debug, info, warn, error, fatal, panic")
	}
	if strings.TrimSpace(cfg.Port) == "" {
		return cfg, errors.New("PORT must not be empty")
	}
	if cfg.ReadTimeout <= 0 || cfg.ReadHeaderTimeout <= 0 || cfg.WriteTimeout <= 0 || cfg.IdleTimeout <= 0 {
		return cfg, errors.New("timeouts must be positive durations")
	}
	if cfg.MaxHeaderBytes <= 0 {
		return cfg, errors.New("MAX_HEADER_BYTES must be > 0")
	}
	if cfg.MaxBodyBytes <= 0 || cfg.UploadMaxBodyBytes < cfg.MaxBodyBytes {
		return cfg, errors.New("MAX_BODY_BYTES must be > 0 and UPLOAD_MAX_BODY_BYTES >= MAX_BODY_BYTES")
	}
	switch cfg.DB.Driver {
	case "sqlite":
		if strings.TrimSpace(cfg.DB.Path) == "" {
			return cfg, errors.New("DB_PATH must not be empty")
		}
	case "postgres":
		if strings.TrimSpace(cfg.DB.URL) == "" {
			return cfg, errors.New("DATABASE_URL is required when DB_DRIVER=postgres")
		}
	default:
		return cfg, errors.New("DB_DRIVER must be one of: sqlite, postgres")
	}
	if cfg.Auth.TTL <= 0 {
		return cfg, errors.New("JWT_TTL must be > 0")
	}
	if cfg.Auth.Secret != "" && len(cfg.Auth.Secret) < 16 {
		return cfg, errors.New("JWT_SECRET must be at least 16 bytes")
	}
	switch cfg.Media.Driver {
	case "memory":
	case "s3":
		if strings.TrimSpace(cfg.Media.S3.Bucket) == "" {
			return cfg, errors.New("S3_BUCKET is required when MEDIA_DRIVER=s3")
		}
	default:
		return cfg, errors.New("MEDIA_DRIVER must be one of: memory, s3")
	}
	if cfg.Media.MaxBytes <= 0 {
		return cfg, errors.New("MEDIA_MAX_BYTES must be > 0")
	}
	if cfg.Lock.TTL <= 0 {
		return cfg, errors.New("LOCK_TTL must be > 0")
	}
	if cfg.Events.OutboxInterval <= 0 {
		return cfg, errors.New("OUTBOX_INTERVAL must be > 0")
	}
	if cfg.Events.OutboxBatch < 1 {
		return cfg, errors.New("OUTBOX_BATCH must be >= 1")
	}
	if len(cfg.Events.Brokers) > 0 && strings.TrimSpace(cfg.Events.Topic) == "" {
		return cfg, errors.New("KAFKA_TOPIC must not be empty when KAFKA_BROKERS is set")
	}
	if cfg.Lifecycle.RetryAttempts < 3 {
		return cfg, errors.New("RETRY_ATTEMPTS must be >= 3")
	}
	if cfg.Lifecycle.RetryBaseDelay <= 0 {
		return cfg, errors.New("RETRY_BASE_DELAY must be > 0")
	}
	if cfg.Lifecycle.CommissionRate < 0 || cfg.Lifecycle.CommissionRate >= 1 {
		return cfg, errors.New("COMMISSION_RATE must be in [0,1)")
	}
	if cfg.Lifecycle.SearchMinScore < 0 || cfg.Lifecycle.SearchMinScore > 1 {
		return cfg, errors.New("SEARCH_MIN_SCORE must be between 0 and 1")
	}
	if cfg.WSBuffer < 1 {
		return cfg, errors.New("WS_BUFFER must be >= 1")
	}
	if cfg.RateRPS < 0 {
		return cfg, errors.New("RATE_RPS must be >= 0")
	}
	if cfg.RateBurst < 1 {
		return cfg, errors.New("RATE_BURST must be >= 1")
	}
	if cfg.RateWriteRPS < 0 {
		return cfg, errors.New("RATE_WRITE_RPS must be >= 0")
	}
	if cfg.RateWriteBurst < 1 {
		return cfg, errors.New("RATE_WRITE_BURST must be >= 1")
	}
	if cfg.Security.HSTSMaxAge < 0 {
		return cfg, errors.New("HSTS_MAX_AGE must be >= 0")
	}
	if cfg.IdempotencyTTL <= 0 {
		return cfg, errors.New("IDEMPOTENCY_TTL must be > 0")
	}
	if cfg.OTEL.SampleRatio < 0 || cfg.OTEL.SampleRatio > 1 {
		return cfg, errors.New("OTEL_TRACES_SAMPLER_ARG must be in [0,1]")
	}

	return cfg, nil
}

// ---- helpers (no external deps) ----

func getenv(k, def string) string {
	if v, ok := os.LookupEnv(k); ok && v != "" {
		return v
	}
	return def
}

func getfloat(k string, def float64) float64 {
	if v, ok := os.LookupEnv(k); ok && v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return f
		}
	}
	return def
}

func getint(k string, def int) int {
	if v, ok := os.LookupEnv(k); ok && v != "" {
		if i, err := strconv.Atoi(v); err == nil {
			return i
		}
	}
	return def
}

func getbool(k string, def bool) bool {
	if v, ok := os.LookupEnv(k); ok && v != "" {
		switch strings.ToLower(strings.TrimSpace(v)) {
		case "1", "true", "yes", "y", "on":
			return true
		case "0", "false", "no", "n", "off":
			return false
		}
	}
	return def
}

func getdur(k string, def time.Duration) time.Duration {
	if v, ok := os.LookupEnv(k); ok && v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return def
}

func splitCSV(s string) []string {
	if s == "" {
		return nil
	}
	parts := strings.Split(s, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		t := strings.TrimSpace(p)
		if t != "" {
			out = append(out, t)
		}
	}
	return out
}

// normalizeBasePath ensures leading '/' and strips trailing '/' (except root).
func normalizeBasePath(p string) string {
	p = strings.TrimSpace(p)
	if p == "" {
		return "/"
	}
	if !strings.HasPrefix(p, "/") {
		p = "/" + p
	}
	if len(p) > 1 && strings.HasSuffix(p, "/") {
		p = strings.TrimRight(p, "/")
	}
	return p
}
