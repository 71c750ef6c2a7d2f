package config

import (
	"fmt"
	"time"

	"github.com/bibekaryal86/gateway-service/internal/logging"
)

// Config is the static gateway configuration loaded at startup.
// Routing and credentials are NOT here: those come from the env
// service and live in a routes.Snapshot.
type Config struct {
	Server         ServerConfig         `yaml:"server"`
	Gateway        GatewayConfig        `yaml:"gateway"`
	CircuitBreaker CircuitBreakerConfig `yaml:"circuit_breaker"`
	RateLimit      RateLimitConfig      `yaml:"rate_limit"`
	EnvService     EnvServiceConfig     `yaml:"env_service"`
	Auth           AuthConfig           `yaml:"auth"`
	Proxy          ProxyConfig          `yaml:"proxy"`
	Logging        logging.Config       `yaml:"logging"`
}

// ServerConfig holds the inbound listener settings
type ServerConfig struct {
	Port         int           `yaml:"port"`
	ReadTimeout  time.Duration `yaml:"read_timeout"`
	WriteTimeout time.Duration `yaml:"write_timeout"`
	IdleTimeout  time.Duration `yaml:"idle_timeout"`
}

// GatewayConfig identifies the gateway's own reserved route name
type GatewayConfig struct {
	// SelfName is the reserved route name for the gateway itself.
	// Empty path and "/" resolve to this name.
	SelfName string `yaml:"self_name"`
	// AuthServiceName is the route that expects the bearer token
	// verbatim instead of rewritten basic credentials.
	AuthServiceName string `yaml:"auth_service_name"`
}

// CircuitBreakerConfig holds per-route breaker thresholds
type CircuitBreakerConfig struct {
	FailureThreshold int           `yaml:"failure_threshold"`
	OpenTimeout      time.Duration `yaml:"open_timeout"`
}

// RateLimitConfig holds per-client limiter settings
type RateLimitConfig struct {
	MaxRequests int           `yaml:"max_requests"`
	Window      time.Duration `yaml:"window"`
}

// EnvServiceConfig describes the remote config provider that supplies
// the routing table, auth exclusions and credentials.
type EnvServiceConfig struct {
	BaseURL         string        `yaml:"base_url"`
	Username        string        `yaml:"username"`
	Password        string        `yaml:"password"`
	Profile         string        `yaml:"profile"`
	RefreshInterval time.Duration `yaml:"refresh_interval"`
}

// AuthConfig holds token validation and credential decryption settings
type AuthConfig struct {
	// ValidateTokenURL is a format string; the app id is substituted in.
	ValidateTokenURL string `yaml:"validate_token_url"`
	// SecretKey decrypts env-service credentials and signs the
	// forwarded identity assertion.
	SecretKey string `yaml:"secret_key"`
	// CheckPermissionsMatcher is a regular expression; request paths
	// matching it bypass authorization rewriting.
	CheckPermissionsMatcher string `yaml:"check_permissions_matcher"`
	// AppIDHeader carries the numeric application id on inbound requests.
	AppIDHeader string `yaml:"app_id_header"`
}

// ProxyConfig holds outbound call settings
type ProxyConfig struct {
	ConnectTimeout  time.Duration `yaml:"connect_timeout"`
	ResponseTimeout time.Duration `yaml:"response_timeout"`
	MaxIdleConns    int           `yaml:"max_idle_conns"`
	IdleConnTimeout time.Duration `yaml:"idle_conn_timeout"`
}

// DefaultConfig returns a config populated with defaults
func DefaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Port:         8000,
			ReadTimeout:  30 * time.Second,
			WriteTimeout: 30 * time.Second,
			IdleTimeout:  60 * time.Second,
		},
		Gateway: GatewayConfig{
			SelfName:        "gatewaysvc",
			AuthServiceName: "authsvc",
		},
		CircuitBreaker: CircuitBreakerConfig{
			FailureThreshold: 3,
			OpenTimeout:      10 * time.Second,
		},
		RateLimit: RateLimitConfig{
			MaxRequests: 10,
			Window:      time.Second,
		},
		EnvService: EnvServiceConfig{
			RefreshInterval: 7 * time.Minute,
		},
		Auth: AuthConfig{
			AppIDHeader: "x-auth-appid",
		},
		Proxy: ProxyConfig{
			ConnectTimeout:  5 * time.Second,
			ResponseTimeout: 15 * time.Second,
			MaxIdleConns:    10,
			IdleConnTimeout: 5 * time.Minute,
		},
		Logging: logging.Config{
			Level: "INFO",
		},
	}
}

// Validate checks the configuration for errors
func (c *Config) Validate() error {
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("server.port must be between 1 and 65535, got %d", c.Server.Port)
	}
	if c.Gateway.SelfName == "" {
		return fmt.Errorf("gateway.self_name is required")
	}
	if c.CircuitBreaker.FailureThreshold <= 0 {
		return fmt.Errorf("circuit_breaker.failure_threshold must be positive")
	}
	if c.CircuitBreaker.OpenTimeout <= 0 {
		return fmt.Errorf("circuit_breaker.open_timeout must be positive")
	}
	if c.RateLimit.MaxRequests <= 0 {
		return fmt.Errorf("rate_limit.max_requests must be positive")
	}
	if c.RateLimit.Window <= 0 {
		return fmt.Errorf("rate_limit.window must be positive")
	}
	if c.EnvService.BaseURL == "" {
		return fmt.Errorf("env_service.base_url is required")
	}
	if c.EnvService.Username == "" || c.EnvService.Password == "" {
		return fmt.Errorf("env_service.username and env_service.password are required")
	}
	if c.EnvService.Profile == "" {
		return fmt.Errorf("env_service.profile is required")
	}
	if c.Auth.ValidateTokenURL == "" {
		return fmt.Errorf("auth.validate_token_url is required")
	}
	if c.Auth.SecretKey == "" {
		return fmt.Errorf("auth.secret_key is required")
	}
	return nil
}
