// Package config provides application configuration loaded from environment
// variables with defaults and validation. It centralizes application settings
// such as server timeouts, logging, datastore paths, the debounce window,
// model and dispatch credentials, rate limiting, and observability.
package config

import (
	"errors"
	"os"
	"strconv"
	"strings"
	"time"
)

// LLM provider identifiers accepted by LLM_PROVIDER.
const (
	ProviderOpenAI    = "openai"
	ProviderAnthropic = "anthropic"
	ProviderOllama    = "ollama"
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
	ServiceName string  // OTEL_SERVICE_NAME
	SampleRatio float64 // OTEL_TRACES_SAMPLER_ARG in [0..1]
}

// RedisConfig holds connection settings for the debounce buffer store.
type RedisConfig struct {
	Addr     string // REDIS_ADDR, e.g. "localhost:6379"
	Password string // REDIS_PASSWORD
	DB       int    // REDIS_DB
}

// LLMConfig holds language-model invocation settings.
type LLMConfig struct {
	Provider       string        // LLM_PROVIDER: openai|anthropic|ollama
	Model          string        // LLM_MODEL
	APIKey         string        // LLM_API_KEY
	BaseURL        string        // LLM_BASE_URL (OpenAI-compatible gateways, Ollama host)
	Timeout        time.Duration // LLM_TIMEOUT per attempt
	MaxRetries     int           // LLM_MAX_RETRIES (transient failures only)
	RetryBaseDelay time.Duration // LLM_RETRY_BASE_DELAY
}

// DispatchConfig holds outbound messaging-relay settings.
type DispatchConfig struct {
	URL            string        // DISPATCH_URL, relay base URL
	Instance       string        // DISPATCH_INSTANCE
	APIKey         string        // DISPATCH_API_KEY
	Timeout        time.Duration // DISPATCH_TIMEOUT per attempt
	MaxRetries     int           // DISPATCH_MAX_RETRIES (network/5xx only)
	RetryBaseDelay time.Duration // DISPATCH_RETRY_BASE_DELAY
}

// Config holds all configuration values for the application.
type Config struct {
	// Server
	Port              string        // just the number
	ReadTimeout       time.Duration // e.g. 15s
	ReadHeaderTimeout time.Duration // e.g. 10s
	WriteTimeout      time.Duration // e.g. 20s
	IdleTimeout       time.Duration // e.g. 60s
	MaxHeaderBytes    int           // bytes
	GinMode           string        // debug|release|test

	// Logging
	LogLevel    string // debug|info|warn|error|fatal|panic
	LogPretty   bool   // pretty console logs in dev
	APIBasePath string // base path for API routes

	// Datastores
	DBPath string // SQLite path
	Redis  RedisConfig

	// Debounce
	DebounceWindow time.Duration // quiet period before a flush (default 12s)
	BufferTTL      time.Duration // buffer key lifetime; must exceed the window

	// Turn processing
	LLM             LLMConfig
	Dispatch        DispatchConfig
	PauseOnComplete bool          // pause automated replies once a briefing completes
	DeliveryTTL     time.Duration // webhook dedup record lifetime

	// Flush trigger endpoint
	FlushSecret string // shared secret required by POST /flush

	// Rate limiting
	RateRPS   float64 // tokens per second (>= 0)
	RateBurst int     // bucket size (>= 1)

	// Web protection
	CORS     CORSConfig
	Security SecurityConfig

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
	window := getdur("DEBOUNCE_WINDOW", 12*time.Second)

	cfg := Config{
		// Server
		Port:              getenv("PORT", "8080"),
		ReadTimeout:       getdur("READ_TIMEOUT", 15*time.Second),
		ReadHeaderTimeout: getdur("READ_HEADER_TIMEOUT", 10*time.Second),
		WriteTimeout:      getdur("WRITE_TIMEOUT", 20*time.Second),
		IdleTimeout:       getdur("IDLE_TIMEOUT", 60*time.Second),
		MaxHeaderBytes:    getint("MAX_HEADER_BYTES", 1<<20),
		GinMode:           strings.ToLower(getenv("GIN_MODE", "release")),

		// Logging
		LogLevel:    strings.ToLower(getenv("LOG_LEVEL", "info")),
		LogPretty:   getbool("LOG_PRETTY", false),
		APIBasePath: normalizeBasePath(getenv("API_BASE_PATH", "/api/v1")),

		// Datastores
		DBPath: getenv("DB_PATH", "app.db"),
		Redis: RedisConfig{
			Addr:     getenv("REDIS_ADDR", "localhost:6379"),
			Password: getenv("REDIS_PASSWORD", ""),
			DB:       getint("REDIS_DB", 0),
		},

		// Debounce
		DebounceWindow: window,
		BufferTTL:      getdur("BUFFER_TTL", window+60*time.Second),

		// Turn processing
		LLM: LLMConfig{
			Provider:       strings.ToLower(getenv("LLM_PROVIDER", ProviderOpenAI)),
			Model:          getenv("LLM_MODEL", "openai/gpt-oss-120b"),
			APIKey:         getenv("LLM_API_KEY", ""),
			BaseURL:        getenv("LLM_BASE_URL", ""),
			Timeout:        getdur("LLM_TIMEOUT", 30*time.Second),
			MaxRetries:     getint("LLM_MAX_RETRIES", 4),
			RetryBaseDelay: getdur("LLM_RETRY_BASE_DELAY", time.Second),
		},
		Dispatch: DispatchConfig{
			URL:            getenv("DISPATCH_URL", ""),
			Instance:       getenv("DISPATCH_INSTANCE", ""),
			APIKey:         getenv("DISPATCH_API_KEY", ""),
			Timeout:        getdur("DISPATCH_TIMEOUT", 15*time.Second),
			MaxRetries:     getint("DISPATCH_MAX_RETRIES", 3),
			RetryBaseDelay: getdur("DISPATCH_RETRY_BASE_DELAY", time.Second),
		},
		PauseOnComplete: getbool("PAUSE_ON_COMPLETE", true),
		DeliveryTTL:     getdur("DELIVERY_TTL", 24*time.Hour),

		// Flush trigger
		FlushSecret: getenv("FLUSH_SECRET", ""),

		// Rate limiting
		RateRPS:   getfloat("RATE_RPS", 5.0),
		RateBurst: getint("RATE_BURST", 10),

		// Web protection
		CORS: CORSConfig{
			AllowedOrigins: splitCSV(getenv("CORS_ALLOWED_ORIGINS", "")),
		},
		Security: SecurityConfig{
			EnableHSTS: getbool("ENABLE_HSTS", false),
			HSTSMaxAge: getdur("HSTS_MAX_AGE", 180*24*time.Hour),
		},

		// Observability (OpenTelemetry)
		OTEL: OTELConfig{
			Enabled:     getbool("OTEL_ENABLED", false),
			Endpoint:    getenv("OTEL_EXPORTER_OTLP_ENDPOINT", "localhost:4317"),
			Insecure:    getbool("OTEL_EXPORTER_OTLP_INSECURE", true),
			ServiceName: getenv("OTEL_SERVICE_NAME", "go-lead-intake"),
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
	if strings.TrimSpace(cfg.DBPath) == "" {
		return cfg, errors.New("DB_PATH must not be empty")
	}
	if strings.TrimSpace(cfg.Redis.Addr) == "" {
		return cfg, errors.New("REDIS_ADDR must not be empty")
	}
	if cfg.DebounceWindow <= 0 {
		return cfg, errors.New("DEBOUNCE_WINDOW must be > 0")
	}
	if cfg.BufferTTL <= cfg.DebounceWindow {
		return cfg, errors.New("BUFFER_TTL must exceed DEBOUNCE_WINDOW")
	}
	switch cfg.LLM.Provider {
	case ProviderOpenAI, ProviderAnthropic, ProviderOllama:
	default:
		return cfg, errors.New("LLM_PROVIDER must be one of: openai, anthropic, ollama")
	}
	if cfg.LLM.Timeout <= 0 || cfg.Dispatch.Timeout <= 0 {
		return cfg, errors.New("LLM_TIMEOUT and DISPATCH_TIMEOUT must be > 0")
	}
	if cfg.LLM.MaxRetries < 0 || cfg.Dispatch.MaxRetries < 0 {
		return cfg, errors.New("retry counts must be >= 0")
	}
	if cfg.DeliveryTTL <= 0 {
		return cfg, errors.New("DELIVERY_TTL must be > 0")
	}
	if cfg.RateRPS < 0 {
		return cfg, errors.New("RATE_RPS must be >= 0")
	}
	if cfg.RateBurst < 1 {
		return cfg, errors.New("RATE_BURST must be >= 1")
	}
	if cfg.Security.HSTSMaxAge < 0 {
		return cfg, errors.New("HSTS_MAX_AGE must be >= 0")
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
