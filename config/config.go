package config

import (
	"context"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config represents the complete application configuration
type Config struct {
	Server        ServerConfig
	Providers     ProvidersConfig
	Polling       PollingConfig
	Images        ImageConfig
	Observability ObservabilityConfig
	Environment   string
}

// ServerConfig holds HTTP server configuration
type ServerConfig struct {
	Host            string
	Port            int
	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	ShutdownTimeout time.Duration
	// RequestTimeout bounds one try-on request end to end, polling included.
	RequestTimeout   time.Duration
	AllowedOrigins   []string
	AllowCredentials bool
}

// ProvidersConfig holds one entry per try-on vendor
type ProvidersConfig struct {
	Segmind  VendorConfig
	PixelCut VendorConfig
	FASHN    VendorConfig
	Fitroom  VendorConfig
}

// VendorConfig holds the credential and endpoint settings of a single vendor
type VendorConfig struct {
	APIKey  string
	BaseURL string
	Timeout time.Duration
}

// PollingConfig holds the job polling cadence of the submit-then-poll vendors
type PollingConfig struct {
	FASHNInterval      time.Duration
	FASHNMaxAttempts   int
	FitroomInterval    time.Duration
	FitroomMaxAttempts int
}

// ImageConfig controls how uploaded images are normalised before submission
type ImageConfig struct {
	MaxSide        int
	JPEGQuality    int
	UploadMaxBytes int64
}

// ObservabilityConfig holds logging configuration
type ObservabilityConfig struct {
	LogLevel  string
	LogFormat string // json or console
}

// New creates a new Config instance by loading environment variables
func New(ctx context.Context) (*Config, error) {
	_ = godotenv.Load(".env")

	cfg := &Config{
		Environment: getEnv("ENVIRONMENT", "development"),
		Server: ServerConfig{
			Host:             getEnv("SERVER_HOST", "0.0.0.0"),
			Port:             getPort(),
			ReadTimeout:      getEnvAsDuration("SERVER_READ_TIMEOUT", 30*time.Second),
			WriteTimeout:     getEnvAsDuration("SERVER_WRITE_TIMEOUT", 5*time.Minute),
			ShutdownTimeout:  getEnvAsDuration("SERVER_SHUTDOWN_TIMEOUT", 10*time.Second),
			RequestTimeout:   getEnvAsDuration("TRYON_REQUEST_TIMEOUT", 4*time.Minute),
			AllowedOrigins:   getEnvAsList("CORS_ALLOWED_ORIGINS", []string{"http://localhost:*", "https://*"}),
			AllowCredentials: getEnvAsBool("CORS_ALLOW_CREDENTIALS", true),
		},
		Providers: ProvidersConfig{
			Segmind: VendorConfig{
				APIKey:  getEnv("SEGMIND_API_KEY", ""),
				BaseURL: getEnv("SEGMIND_BASE_URL", "https://api.segmind.com/v1"),
				Timeout: getEnvAsDuration("SEGMIND_TIMEOUT", 120*time.Second),
			},
			PixelCut: VendorConfig{
				APIKey:  getEnv("PIXELCUT_API_KEY", ""),
				BaseURL: getEnv("PIXELCUT_BASE_URL", "https://api.developer.pixelcut.ai/v1"),
				Timeout: getEnvAsDuration("PIXELCUT_TIMEOUT", 120*time.Second),
			},
			FASHN: VendorConfig{
				APIKey:  getEnv("FASHN_API_KEY", ""),
				BaseURL: getEnv("FASHN_BASE_URL", "https://api.fashn.ai/v1"),
				Timeout: getEnvAsDuration("FASHN_TIMEOUT", 30*time.Second),
			},
			Fitroom: VendorConfig{
				APIKey:  getEnv("FITROOM_API_KEY", ""),
				BaseURL: getEnv("FITROOM_BASE_URL", "https://platform.fitroom.app/api"),
				Timeout: getEnvAsDuration("FITROOM_TIMEOUT", 30*time.Second),
			},
		},
		Polling: PollingConfig{
			FASHNInterval:      getEnvAsDuration("FASHN_POLL_INTERVAL", 3*time.Second),
			FASHNMaxAttempts:   getEnvAsInt("FASHN_POLL_MAX_ATTEMPTS", 40),
			FitroomInterval:    getEnvAsDuration("FITROOM_POLL_INTERVAL", 2*time.Second),
			FitroomMaxAttempts: getEnvAsInt("FITROOM_POLL_MAX_ATTEMPTS", 60),
		},
		Images: ImageConfig{
			MaxSide:        getEnvAsInt("IMAGE_MAX_SIDE", 1024),
			JPEGQuality:    getEnvAsInt("IMAGE_JPEG_QUALITY", 95),
			UploadMaxBytes: int64(getEnvAsInt("UPLOAD_MAX_BYTES", 20<<20)),
		},
		Observability: ObservabilityConfig{
			LogLevel:  getEnv("LOG_LEVEL", "info"),
			LogFormat: getEnv("LOG_FORMAT", "json"),
		},
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return cfg, nil
}

// Validate checks if all required configuration fields are set
func (c *Config) Validate() error {
	if c.IsProduction() && !c.Providers.AnyConfigured() {
		return fmt.Errorf("at least one try-on vendor API key must be configured in production")
	}

	if c.Polling.FASHNInterval <= 0 || c.Polling.FitroomInterval <= 0 {
		return fmt.Errorf("poll interval must be positive")
	}
	if c.Polling.FASHNMaxAttempts < 1 || c.Polling.FitroomMaxAttempts < 1 {
		return fmt.Errorf("poll max attempts must be at least 1")
	}

	if c.Images.MaxSide < 1 {
		return fmt.Errorf("image max side must be positive")
	}
	if c.Images.JPEGQuality < 1 || c.Images.JPEGQuality > 100 {
		return fmt.Errorf("jpeg quality must be between 1 and 100")
	}

	if c.Observability.LogLevel == "" {
		return fmt.Errorf("log level is required")
	}

	return nil
}

// IsProduction returns true if running in production environment
func (c *Config) IsProduction() bool {
	return c.Environment == "production" || c.Environment == "prod"
}

// IsDevelopment returns true if running in development environment
func (c *Config) IsDevelopment() bool {
	return c.Environment == "development" || c.Environment == "dev"
}

// AnyConfigured reports whether at least one vendor has a credential
func (p *ProvidersConfig) AnyConfigured() bool {
	return p.Segmind.APIKey != "" ||
		p.PixelCut.APIKey != "" ||
		p.FASHN.APIKey != "" ||
		p.Fitroom.APIKey != ""
}

// Vendor returns the settings of the named vendor
func (p *ProvidersConfig) Vendor(name string) (VendorConfig, bool) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "segmind":
		return p.Segmind, true
	case "pixelcut":
		return p.PixelCut, true
	case "fashn":
		return p.FASHN, true
	case "fitroom":
		return p.Fitroom, true
	}
	return VendorConfig{}, false
}

// Credential returns the configured API key of the named vendor, or ""
func (c *Config) Credential(vendor string) string {
	v, _ := c.Providers.Vendor(vendor)
	return v.APIKey
}

// HasCredential reports whether the vendor has a non-empty API key
func (v VendorConfig) HasCredential() bool {
	return v.APIKey != ""
}

// Address returns the HTTP server address
func (c *ServerConfig) Address() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

// Helper functions

// getPort returns the server port from PORT or SERVER_PORT env vars (default: 8080)
func getPort() int {
	if value := os.Getenv("PORT"); value != "" {
		if p, err := strconv.Atoi(value); err == nil {
			return p
		}
	}
	if value := os.Getenv("SERVER_PORT"); value != "" {
		if p, err := strconv.Atoi(value); err == nil {
			return p
		}
	}
	return 8080
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}
	value, err := strconv.Atoi(valueStr)
	if err != nil {
		return defaultValue
	}
	return value
}

func getEnvAsBool(key string, defaultValue bool) bool {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}
	value, err := strconv.ParseBool(valueStr)
	if err != nil {
		return defaultValue
	}
	return value
}

func getEnvAsDuration(key string, defaultValue time.Duration) time.Duration {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}
	value, err := time.ParseDuration(valueStr)
	if err != nil {
		return defaultValue
	}
	return value
}

func getEnvAsList(key string, defaultValue []string) []string {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}
	var out []string
	for _, item := range strings.Split(valueStr, ",") {
		if item = strings.TrimSpace(item); item != "" {
			out = append(out, item)
		}
	}
	if len(out) == 0 {
		return defaultValue
	}
	return out
}
