package internal

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"
)

type Config struct {
	Server        ServerConfig        `mapstructure:"http_server"`
	Database      DatabaseConfig      `mapstructure:"database"`
	Gateway       GatewayConfig       `mapstructure:"gateway"`
	Checkout      CheckoutConfig      `mapstructure:"checkout"`
	Effects       EffectsConfig       `mapstructure:"effects"`
	Observability ObservabilityConfig `mapstructure:"observability"`
}

type ServerConfig struct {
	Port              int           `mapstructure:"port"`
	BaseURL           string        `mapstructure:"base_url"`
	ReadHeaderTimeout time.Duration `mapstructure:"read_header_timeout"`
	ReadTimeout       time.Duration `mapstructure:"read_timeout"`
	IdleTimeout       time.Duration `mapstructure:"idle_timeout"`
	WriteTimeout      time.Duration `mapstructure:"write_timeout"`
}

type DatabaseConfig struct {
	MaxOpenConns    int           `mapstructure:"max_open_conns"`
	MaxIdleConns    int           `mapstructure:"max_idle_conns"`
	ConnMaxLifetime time.Duration `mapstructure:"conn_max_lifetime"`
	ConnMaxIdleTime time.Duration `mapstructure:"conn_max_idle_time"`
	Source          string        `mapstructure:"source"`
}

// GatewayConfig configures the external payment gateway client. The API key
// is only ever sent in server-to-server calls, never in client-visible
// artifacts.
type GatewayConfig struct {
	BaseURL          string        `mapstructure:"base_url"`
	APIKey           string        `mapstructure:"api_key"`
	WebhookSecret    string        `mapstructure:"webhook_secret"`
	SignatureScheme  string        `mapstructure:"signature_scheme"`
	RequestTimeout   time.Duration `mapstructure:"request_timeout"`
	StatusMaxRetries int           `mapstructure:"status_max_retries"`
}

// CheckoutConfig holds the externally reachable origins redirect paths are
// appended to, per client context. An empty origin for a context means that
// context cannot be served; the resolver fails closed instead of guessing.
type CheckoutConfig struct {
	WebBaseURL        string `mapstructure:"web_base_url"`
	MobileWebBaseURL  string `mapstructure:"mobile_web_base_url"`
	AppDeepLinkScheme string `mapstructure:"app_deep_link_scheme"`
	MaxVerifyAttempts int    `mapstructure:"max_verify_attempts"`
}

// EffectsConfig points at the marketplace core API that applies business
// side effects (confirm booking, activate membership, open service order).
type EffectsConfig struct {
	BaseURL        string        `mapstructure:"base_url"`
	APIKey         string        `mapstructure:"api_key"`
	RequestTimeout time.Duration `mapstructure:"request_timeout"`
}

type ObservabilityConfig struct {
	Logging LoggingConfig `mapstructure:"logging"`
}

type LoggingConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

// ----------------- ENV LOADING -----------------

// LoadConfigFromEnv builds a Config purely from environment variables, used
// for container deployments where no config file is mounted.
func LoadConfigFromEnv() *Config {
	return &Config{
		Server: ServerConfig{
			Port:              getEnvAsInt("SERVER_PORT", 8080),
			BaseURL:           getEnv("SERVER_BASE_URL", ""),
			ReadHeaderTimeout: getEnvAsDuration("SERVER_READ_HEADER_TIMEOUT", 5*time.Second),
			ReadTimeout:       getEnvAsDuration("SERVER_READ_TIMEOUT", 15*time.Second),
			IdleTimeout:       getEnvAsDuration("SERVER_IDLE_TIMEOUT", 60*time.Second),
			WriteTimeout:      getEnvAsDuration("SERVER_WRITE_TIMEOUT", 15*time.Second),
		},
		Database: DatabaseConfig{
			MaxOpenConns:    getEnvAsInt("DB_MAX_OPEN_CONNS", 25),
			MaxIdleConns:    getEnvAsInt("DB_MAX_IDLE_CONNS", 5),
			ConnMaxLifetime: getEnvAsDuration("DB_CONN_MAX_LIFETIME", 5*time.Minute),
			ConnMaxIdleTime: getEnvAsDuration("DB_CONN_MAX_IDLE_TIME", 5*time.Minute),
			Source:          getEnv("DB_SOURCE", ""),
		},
		Gateway: GatewayConfig{
			BaseURL:          getEnv("GATEWAY_BASE_URL", ""),
			APIKey:           getEnv("GATEWAY_API_KEY", ""),
			WebhookSecret:    getEnv("GATEWAY_WEBHOOK_SECRET", ""),
			SignatureScheme:  getEnv("GATEWAY_SIGNATURE_SCHEME", "hmac-sha256"),
			RequestTimeout:   getEnvAsDuration("GATEWAY_REQUEST_TIMEOUT", 10*time.Second),
			StatusMaxRetries: getEnvAsInt("GATEWAY_STATUS_MAX_RETRIES", 3),
		},
		Effects: EffectsConfig{
			BaseURL:        getEnv("EFFECTS_BASE_URL", ""),
			APIKey:         getEnv("EFFECTS_API_KEY", ""),
			RequestTimeout: getEnvAsDuration("EFFECTS_REQUEST_TIMEOUT", 10*time.Second),
		},
		Checkout: CheckoutConfig{
			WebBaseURL:        getEnv("CHECKOUT_WEB_BASE_URL", ""),
			MobileWebBaseURL:  getEnv("CHECKOUT_MOBILE_WEB_BASE_URL", ""),
			AppDeepLinkScheme: getEnv("CHECKOUT_APP_DEEP_LINK_SCHEME", ""),
			MaxVerifyAttempts: getEnvAsInt("CHECKOUT_MAX_VERIFY_ATTEMPTS", 10),
		},
		Observability: ObservabilityConfig{
			Logging: LoggingConfig{
				Level:  getEnv("LOG_LEVEL", "info"),
				Format: getEnv("LOG_FORMAT", "json"),
			},
		},
	}
}

// ----------------- HELPERS -----------------

func getEnv(key, defaultVal string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultVal
}

func getEnvAsInt(key string, defaultVal int) int {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
	}
	return defaultVal
}

func getEnvAsDuration(key string, defaultVal time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return defaultVal
}

// ----------------- VALIDATION -----------------

func (c *Config) Validate() error {
	var errs []string

	if err := c.Server.Validate(); err != nil {
		errs = append(errs, fmt.Sprintf("server config: %v", err))
	}

	if err := c.Database.Validate(); err != nil {
		errs = append(errs, fmt.Sprintf("database config: %v", err))
	}

	if err := c.Gateway.Validate(); err != nil {
		errs = append(errs, fmt.Sprintf("gateway config: %v", err))
	}

	if err := c.Checkout.Validate(); err != nil {
		errs = append(errs, fmt.Sprintf("checkout config: %v", err))
	}

	if err := c.Effects.Validate(); err != nil {
		errs = append(errs, fmt.Sprintf("effects config: %v", err))
	}

	if len(errs) > 0 {
		return errors.New(strings.Join(errs, "; "))
	}

	return nil
}

func (c *ServerConfig) Validate() error {
	if c.ReadTimeout < c.ReadHeaderTimeout {
		return errors.New("read_timeout must be >= read_header_timeout")
	}
	return nil
}

func (c *DatabaseConfig) Validate() error {
	if c.MaxIdleConns > c.MaxOpenConns {
		return errors.New("max_idle_conns cannot be greater than max_open_conns")
	}
	return nil
}

func (c *DatabaseConfig) GetDSN() string {
	return c.Source
}

func (c *GatewayConfig) Validate() error {
	if c.BaseURL == "" {
		return errors.New("gateway base_url is required")
	}
	if _, err := url.Parse(c.BaseURL); err != nil {
		return fmt.Errorf("invalid gateway base_url: %w", err)
	}
	if c.APIKey == "" {
		return errors.New("gateway api_key is required")
	}
	if c.RequestTimeout <= 0 {
		return errors.New("gateway request_timeout must be positive")
	}
	return nil
}

func (c *EffectsConfig) Validate() error {
	if c.BaseURL == "" {
		return errors.New("effects base_url is required")
	}
	if c.RequestTimeout <= 0 {
		return errors.New("effects request_timeout must be positive")
	}
	return nil
}

func (c *CheckoutConfig) Validate() error {
	for name, base := range map[string]string{
		"web_base_url":        c.WebBaseURL,
		"mobile_web_base_url": c.MobileWebBaseURL,
	} {
		if base == "" {
			continue
		}
		u, err := url.Parse(base)
		if err != nil || u.Scheme == "" || u.Host == "" {
			return fmt.Errorf("%s must be an absolute URL", name)
		}
	}
	if c.AppDeepLinkScheme != "" && strings.Contains(c.AppDeepLinkScheme, "://") {
		return errors.New("app_deep_link_scheme is a bare scheme, without ://")
	}
	if c.MaxVerifyAttempts <= 0 {
		return errors.New("max_verify_attempts must be positive")
	}
	return nil
}
