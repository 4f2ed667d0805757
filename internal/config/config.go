package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

type Config struct {
	Port        string
	DatabaseURL string
	LogLevel    string

	GoogleClientID     string
	GoogleClientSecret string
	GoogleRedirectURI  string
	StateSecret        string

	FrontendURL    string
	AllowedOrigins []string
	DemoUserID     string

	SummarizerProvider  string
	HuggingFaceAPIToken string
	HuggingFaceModelURL string
	OpenRouterAPIKey    string
	OpenRouterModel     string // empty uses the account default

	RecaptchaSecretKey string
	RecaptchaSiteKey   string

	RedisAddr     string
	RedisPassword string

	SyncInterval    int // seconds, 0 disables the periodic sync
	ShutdownTimeout int // seconds

	Sync SyncConfig `yaml:"sync"`
}

// SyncConfig holds the non-secret tunables. They can be overridden by the YAML file named in CONFIG_FILE.
type SyncConfig struct {
	MaxEmailsPerUser    int `yaml:"max_emails_per_user"`
	TargetFetch         int `yaml:"target_fetch"`
	BatchSize           int `yaml:"batch_size"`
	LimitPerHour        int `yaml:"limit_per_hour"`
	EnrichmentWorkers   int `yaml:"enrichment_workers"`
	EnrichmentQueueSize int `yaml:"enrichment_queue_size"`
	CallTimeout         int `yaml:"call_timeout"` // seconds
}

// CallTimeoutDuration bounds every outbound collaborator call.
func (s SyncConfig) CallTimeoutDuration() time.Duration {
	return time.Duration(s.CallTimeout) * time.Second
}

func defaultSyncConfig() SyncConfig {
	return SyncConfig{
		MaxEmailsPerUser:    500,
		TargetFetch:         10,
		BatchSize:           10,
		LimitPerHour:        5,
		EnrichmentWorkers:   3,
		EnrichmentQueueSize: 500,
		CallTimeout:         30,
	}
}

// Load reads configuration from environment variables
func Load() (*Config, error) {
	// Load .env file if exists (ignore error in production)
	_ = godotenv.Load()

	dbURL := os.Getenv("DATABASE_URL")
	if dbURL == "" {
		return nil, fmt.Errorf("DATABASE_URL is required")
	}

	clientID := os.Getenv("GOOGLE_CLIENT_ID")
	clientSecret := os.Getenv("GOOGLE_CLIENT_SECRET")
	if clientID == "" || clientSecret == "" {
		return nil, fmt.Errorf("GOOGLE_CLIENT_ID and GOOGLE_CLIENT_SECRET are required")
	}

	cfg := &Config{
		Port:                getEnv("PORT", "8000"),
		DatabaseURL:         dbURL,
		LogLevel:            getEnv("LOG_LEVEL", "info"),
		GoogleClientID:      clientID,
		GoogleClientSecret:  clientSecret,
		GoogleRedirectURI:   getEnv("GOOGLE_REDIRECT_URI", "http://localhost:8000/oauth2callback"),
		StateSecret:         getEnv("STATE_SECRET", clientSecret),
		FrontendURL:         strings.TrimRight(getEnv("FRONTEND_URL", "http://localhost:5173"), "/"),
		DemoUserID:          getEnv("DEMO_USER_ID", "demo_user"),
		SummarizerProvider:  getEnv("SUMMARIZER_PROVIDER", "huggingface"),
		HuggingFaceAPIToken: os.Getenv("HUGGINGFACE_API_TOKEN"),
		HuggingFaceModelURL: getEnv("HUGGINGFACE_MODEL_URL", "https://api-inference.huggingface.co/models/facebook/bart-large-cnn"),
		OpenRouterAPIKey:    os.Getenv("OPENROUTER_API_KEY"),
		OpenRouterModel:     os.Getenv("OPENROUTER_MODEL"),
		RecaptchaSecretKey:  os.Getenv("RECAPTCHA_SECRET_KEY"),
		RecaptchaSiteKey:    os.Getenv("RECAPTCHA_SITE_KEY"),
		RedisAddr:           os.Getenv("REDIS_ADDR"),
		RedisPassword:       os.Getenv("REDIS_PASSWORD"),
		Sync:                defaultSyncConfig(),
	}

	var err error
	if cfg.SyncInterval, err = getEnvInt("SYNC_INTERVAL", 0); err != nil {
		return nil, err
	}
	if cfg.ShutdownTimeout, err = getEnvInt("SHUTDOWN_TIMEOUT", 30); err != nil {
		return nil, err
	}

	cfg.AllowedOrigins = splitList(getEnv("ALLOWED_ORIGINS", cfg.FrontendURL))

	if path := os.Getenv("CONFIG_FILE"); path != "" {
		if err := cfg.applyFile(path); err != nil {
			return nil, err
		}
	}

	if err := cfg.Sync.validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// applyFile overlays the YAML sync tunables onto cfg. Keys absent from the
// file keep their defaults; anything outside the sync block is ignored.
func (c *Config) applyFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read config file: %w", err)
	}
	file := struct {
		Sync SyncConfig `yaml:"sync"`
	}{Sync: c.Sync}
	if err := yaml.Unmarshal(data, &file); err != nil {
		return fmt.Errorf("failed to parse config file: %w", err)
	}
	c.Sync = file.Sync
	return nil
}

func (s SyncConfig) validate() error {
	checks := []struct {
		name  string
		value int
	}{
		{"max_emails_per_user", s.MaxEmailsPerUser},
		{"target_fetch", s.TargetFetch},
		{"batch_size", s.BatchSize},
		{"limit_per_hour", s.LimitPerHour},
		{"enrichment_workers", s.EnrichmentWorkers},
		{"enrichment_queue_size", s.EnrichmentQueueSize},
		{"call_timeout", s.CallTimeout},
	}
	for _, c := range checks {
		if c.value <= 0 {
			return fmt.Errorf("sync.%s must be positive, got %d", c.name, c.value)
		}
	}
	return nil
}

func getEnv(key, fallback string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return fallback
}

func getEnvInt(key string, fallback int) (int, error) {
	value := os.Getenv(key)
	if value == "" {
		return fallback, nil
	}
	n, err := strconv.Atoi(value)
	if err != nil || n < 0 {
		return 0, fmt.Errorf("%s must be a non-negative integer, got %q", key, value)
	}
	return n, nil
}

func splitList(value string) []string {
	var out []string
	for _, part := range strings.Split(value, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, strings.TrimRight(part, "/"))
		}
	}
	return out
}
