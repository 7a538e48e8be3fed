package config

import (
	"fmt"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// DefaultAPIURL is used when neither IDEAFEED_API_URL nor the legacy web
// variables are set.
const DefaultAPIURL = "http://localhost:8000"

// Config holds all configuration for the application
type Config struct {
	API       APIConfig
	Session   SessionConfig
	Views     ViewsConfig
	Redis     RedisConfig
	Server    ServerConfig
	Logging   LoggingConfig
	Telemetry TelemetryConfig
}

// APIConfig holds backend REST API configuration
type APIConfig struct {
	BaseURL           string
	Timeout           time.Duration
	SkipTunnelWarning bool
	RateLimit         float64 // requests per second, 0 = unlimited
	RateBurst         int
	ContentType       string
	PageSize          int
}

// SessionConfig holds Telegram session bootstrap configuration
type SessionConfig struct {
	InitData string
	Token    string
}

// ViewsConfig holds the viewed-posts store configuration
type ViewsConfig struct {
	Path     string
	InMemory bool
	Dwell    time.Duration
}

// RedisConfig holds Redis configuration
type RedisConfig struct {
	URL     string
	Enabled bool
	TTL     time.Duration
}

// ServerConfig holds HTTP server configuration
type ServerConfig struct {
	Port               int
	Host               string
	AllowedOrigins     []string
	RateLimitPerMinute int
}

// LoggingConfig holds logging configuration
type LoggingConfig struct {
	Level        string
	Format       string // "json" or "text"
	ScalyrFormat bool   // Enable Scalyr-compatible JSON format
	File         string
	MaxSizeMB    int
	MaxBackups   int
	MaxAgeDays   int
}

// TelemetryConfig holds observability configuration
type TelemetryConfig struct {
	Enabled           bool
	JaegerURL         string
	PrometheusEnabled bool
	ServiceName       string
}

// Load loads configuration from environment variables and config file
func Load() (*Config, error) {
	setDefaults()

	viper.SetEnvPrefix("IDEAFEED")
	viper.AutomaticEnv()

	viper.SetConfigName("config")
	viper.SetConfigType("yaml")
	viper.AddConfigPath(".")
	viper.AddConfigPath("$HOME/.ideafeed")
	viper.AddConfigPath("/etc/ideafeed")

	if err := viper.ReadInConfig(); err != nil {
		// Config file not found; this is OK if we have env vars
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
	}

	cfg := &Config{
		API: APIConfig{
			BaseURL:           resolveAPIURL(),
			Timeout:           GetDuration("api_timeout", 30*time.Second),
			SkipTunnelWarning: getBool("api_skip_tunnel_warning", true),
			RateLimit:         getFloat("api_rate_limit", 0),
			RateBurst:         getInt("api_rate_burst", 1),
			ContentType:       getString("api_content_type", "post"),
			PageSize:          getInt("api_page_size", 20),
		},
		Session: SessionConfig{
			InitData: getString("init_data", ""),
			Token:    getString("token", ""),
		},
		Views: ViewsConfig{
			Path:     getString("views_path", defaultViewsPath()),
			InMemory: getBool("views_in_memory", false),
			Dwell:    GetDuration("views_dwell", 30*time.Second),
		},
		Redis: RedisConfig{
			URL:     getString("redis_url", ""),
			Enabled: getString("redis_url", "") != "",
			TTL:     GetDuration("redis_ttl", 5*time.Minute),
		},
		Server: ServerConfig{
			Port:               getInt("http_server_port", 8080),
			Host:               getString("http_server_host", "0.0.0.0"),
			AllowedOrigins:     splitList(getString("allowed_origins", "https://web.telegram.org")),
			RateLimitPerMinute: getInt("rate_limit_per_minute", 300),
		},
		Logging: LoggingConfig{
			Level:        getString("log_level", "INFO"),
			Format:       getString("log_format", "json"),
			ScalyrFormat: getBool("log_scalyr_format", true),
			File:         getString("log_file", ""),
			MaxSizeMB:    getInt("log_max_size_mb", 100),
			MaxBackups:   getInt("log_max_backups", 3),
			MaxAgeDays:   getInt("log_max_age_days", 7),
		},
		Telemetry: TelemetryConfig{
			Enabled:           getBool("telemetry_enabled", false),
			JaegerURL:         getString("jaeger_url", ""),
			PrometheusEnabled: getBool("prometheus_enabled", true),
			ServiceName:       getString("service_name", "ideafeed"),
		},
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return cfg, nil
}

func setDefaults() {
	viper.SetDefault("api_timeout", "30s")
	viper.SetDefault("api_skip_tunnel_warning", true)
	viper.SetDefault("api_rate_burst", 1)
	viper.SetDefault("api_content_type", "post")
	viper.SetDefault("api_page_size", 20)
	viper.SetDefault("views_dwell", "30s")
	viper.SetDefault("redis_ttl", "5m")
	viper.SetDefault("http_server_port", 8080)
	viper.SetDefault("http_server_host", "0.0.0.0")
	viper.SetDefault("rate_limit_per_minute", 300)
	viper.SetDefault("log_level", "INFO")
	viper.SetDefault("log_format", "json")
	viper.SetDefault("log_scalyr_format", true)
	viper.SetDefault("prometheus_enabled", true)
	viper.SetDefault("service_name", "ideafeed")
}

// resolveAPIURL picks the backend URL. The web build used VITE_API_URL or
// REACT_APP_API_URL; both are still honored after the native key.
func resolveAPIURL() string {
	if u := getString("api_url", ""); u != "" {
		return strings.TrimRight(u, "/")
	}
	for _, key := range []string{"VITE_API_URL", "REACT_APP_API_URL"} {
		if u := os.Getenv(key); u != "" {
			return strings.TrimRight(u, "/")
		}
	}
	return DefaultAPIURL
}

func defaultViewsPath() string {
	if home, err := os.UserHomeDir(); err == nil {
		return home + "/.ideafeed/views"
	}
	return ".ideafeed/views"
}

func getString(key, defaultValue string) string {
	if viper.IsSet(key) {
		return viper.GetString(key)
	}
	// Also check environment variable directly
	if val := os.Getenv("IDEAFEED_" + toEnvKey(key)); val != "" {
		return val
	}
	return defaultValue
}

func getInt(key string, defaultValue int) int {
	if viper.IsSet(key) {
		return viper.GetInt(key)
	}
	if val := os.Getenv("IDEAFEED_" + toEnvKey(key)); val != "" {
		if i, err := strconv.Atoi(val); err == nil {
			return i
		}
	}
	return defaultValue
}

func getFloat(key string, defaultValue float64) float64 {
	if viper.IsSet(key) {
		return viper.GetFloat64(key)
	}
	if val := os.Getenv("IDEAFEED_" + toEnvKey(key)); val != "" {
		if f, err := strconv.ParseFloat(val, 64); err == nil {
			return f
		}
	}
	return defaultValue
}

func getBool(key string, defaultValue bool) bool {
	if viper.IsSet(key) {
		return viper.GetBool(key)
	}
	if val := os.Getenv("IDEAFEED_" + toEnvKey(key)); val != "" {
		if b, err := strconv.ParseBool(val); err == nil {
			return b
		}
	}
	return defaultValue
}

func toEnvKey(key string) string {
	return strings.ToUpper(strings.ReplaceAll(key, "-", "_"))
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

// Validate validates the configuration
func (c *Config) Validate() error {
	if c.API.BaseURL == "" {
		return fmt.Errorf("api_url is required")
	}
	u, err := url.Parse(c.API.BaseURL)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return fmt.Errorf("api_url must be an absolute http(s) URL, got %q", c.API.BaseURL)
	}
	if c.API.Timeout <= 0 {
		return fmt.Errorf("api_timeout must be positive")
	}
	if c.API.RateLimit < 0 {
		return fmt.Errorf("api_rate_limit must not be negative")
	}
	if c.API.PageSize <= 0 || c.API.PageSize > 200 {
		return fmt.Errorf("api_page_size must be between 1 and 200")
	}
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("http_server_port must be between 1 and 65535")
	}
	if c.Server.RateLimitPerMinute < 0 {
		return fmt.Errorf("rate_limit_per_minute must not be negative")
	}
	if !c.Views.InMemory && c.Views.Path == "" {
		return fmt.Errorf("views_path is required unless views_in_memory is set")
	}
	return nil
}

// GetDuration returns a duration from config key, with default
func GetDuration(key string, defaultValue time.Duration) time.Duration {
	if viper.IsSet(key) {
		return viper.GetDuration(key)
	}
	if val := os.Getenv("IDEAFEED_" + toEnvKey(key)); val != "" {
		if d, err := time.ParseDuration(val); err == nil {
			return d
		}
	}
	return defaultValue
}
