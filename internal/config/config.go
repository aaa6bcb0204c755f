package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

const DefaultUserAgent = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/133.0.0.0 Safari/537.36 Edg/133.0.0.0"

type Config struct {
	Server   ServerConfig
	Monitor  MonitorConfig
	Fetch    FetchConfig
	Browser  BrowserConfig
	Store    StoreConfig
	Database DatabaseConfig
	Mongo    MongoConfig
	Redis    RedisConfig
	SMTP     SMTPConfig
	Compare  CompareConfig
	Logging  LoggingConfig
}

type ServerConfig struct {
	Port            string
	Host            string
	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	ShutdownTimeout time.Duration
	AllowedOrigins  []string
}

type MonitorConfig struct {
	Enabled  bool
	Interval time.Duration
}

type FetchConfig struct {
	Timeout     time.Duration
	MaxAttempts int
	BackoffBase time.Duration
	RateLimit   float64
	RateBurst   int
	UserAgent   string
}

type BrowserConfig struct {
	Headless      bool
	NavTimeout    time.Duration
	WaitTimeout   time.Duration
	PollInterval  time.Duration
	MaxConcurrent int
	UserAgent     string
	Locale        string
}

type StoreConfig struct {
	Driver   string
	FilePath string
}

type DatabaseConfig struct {
	Host     string
	Port     int
	User     string
	Password string
	DBName   string
	SSLMode  string
}

type MongoConfig struct {
	URI      string
	Database string
}

type RedisConfig struct {
	Addr          string
	Password      string
	DB            int
	Stream        string
	ConsumerGroup string
	ConsumerName  string
	MaxStreamLen  int
}

type SMTPConfig struct {
	Host     string
	Port     int
	Username string
	Password string
	From     string
}

type CompareConfig struct {
	CacheSize int
	CacheTTL  time.Duration
}

type LoggingConfig struct {
	Level  string
	Format string
}

// Load reads the configuration from the environment. A .env file in the
// working directory is applied first when present.
func Load() (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("failed to load .env file: %w", err)
	}

	cfg := &Config{
		Server: ServerConfig{
			Port:            getEnvOrDefault("SERVER_PORT", "8080"),
			Host:            getEnvOrDefault("SERVER_HOST", "0.0.0.0"),
			ReadTimeout:     getDurationOrDefault("SERVER_READ_TIMEOUT", 30*time.Second),
			WriteTimeout:    getDurationOrDefault("SERVER_WRITE_TIMEOUT", 2*time.Minute),
			ShutdownTimeout: getDurationOrDefault("SERVER_SHUTDOWN_TIMEOUT", 10*time.Second),
			AllowedOrigins:  getStringSliceOrDefault("SERVER_ALLOWED_ORIGINS", []string{"*"}),
		},
		Monitor: MonitorConfig{
			Enabled:  getBoolOrDefault("MONITOR_ENABLED", true),
			Interval: getDurationOrDefault("MONITOR_INTERVAL", 60*time.Second),
		},
		Fetch: FetchConfig{
			Timeout:     getDurationOrDefault("FETCH_TIMEOUT", 10*time.Second),
			MaxAttempts: getIntOrDefault("FETCH_MAX_ATTEMPTS", 5),
			BackoffBase: getDurationOrDefault("FETCH_BACKOFF_BASE", time.Second),
			RateLimit:   getFloatOrDefault("FETCH_RATE_LIMIT", 1),
			RateBurst:   getIntOrDefault("FETCH_RATE_BURST", 2),
			UserAgent:   getEnvOrDefault("FETCH_USER_AGENT", DefaultUserAgent),
		},
		Browser: BrowserConfig{
			Headless:      getBoolOrDefault("BROWSER_HEADLESS", true),
			NavTimeout:    getDurationOrDefault("BROWSER_NAV_TIMEOUT", 30*time.Second),
			WaitTimeout:   getDurationOrDefault("BROWSER_WAIT_TIMEOUT", 20*time.Second),
			PollInterval:  getDurationOrDefault("BROWSER_POLL_INTERVAL", 500*time.Millisecond),
			MaxConcurrent: getIntOrDefault("BROWSER_MAX_CONCURRENT", 2),
			UserAgent:     getEnvOrDefault("BROWSER_USER_AGENT", DefaultUserAgent),
			Locale:        getEnvOrDefault("BROWSER_LOCALE", "en-IN"),
		},
		Store: StoreConfig{
			Driver:   getEnvOrDefault("STORE_DRIVER", "memory"),
			FilePath: getEnvOrDefault("STORE_FILE", ""),
		},
		Database: DatabaseConfig{
			Host:     getEnvOrDefault("DB_HOST", "localhost"),
			Port:     getIntOrDefault("DB_PORT", 5432),
			User:     getEnvOrDefault("DB_USER", "postgres"),
			Password: getEnvOrDefault("DB_PASSWORD", ""),
			DBName:   getEnvOrDefault("DB_NAME", "price_tracker"),
			SSLMode:  getEnvOrDefault("DB_SSL_MODE", "disable"),
		},
		Mongo: MongoConfig{
			URI:      getEnvOrDefault("MONGO_URI", "mongodb://localhost:27017"),
			Database: getEnvOrDefault("MONGO_DATABASE", "price_tracker"),
		},
		Redis: RedisConfig{
			Addr:     getEnvOrDefault("REDIS_ADDR", ""),
			Password: getEnvOrDefault("REDIS_PASSWORD", ""),
			DB:       getIntOrDefault("REDIS_DB", 0),
			Stream:   getEnvOrDefault("REDIS_STREAM", "stream:price_alerts"),

			ConsumerGroup: getEnvOrDefault("REDIS_CONSUMER_GROUP", "price-alert-consumers"),
			ConsumerName:  getEnvOrDefault("REDIS_CONSUMER_NAME", "consumer-1"),
			MaxStreamLen:  getIntOrDefault("REDIS_STREAM_MAXLEN", 10000),
		},
		SMTP: SMTPConfig{
			Host:     getEnvOrDefault("SMTP_HOST", ""),
			Port:     getIntOrDefault("SMTP_PORT", 587),
			Username: getEnvOrDefault("SMTP_USERNAME", ""),
			Password: getEnvOrDefault("SMTP_PASSWORD", ""),
			From:     getEnvOrDefault("SMTP_FROM", ""),
		},
		Compare: CompareConfig{
			CacheSize: getIntOrDefault("COMPARE_CACHE_SIZE", 10),
			CacheTTL:  getDurationOrDefault("COMPARE_CACHE_TTL", 10*time.Minute),
		},
		Logging: LoggingConfig{
			Level:  getEnvOrDefault("LOG_LEVEL", "info"),
			Format: getEnvOrDefault("LOG_FORMAT", "json"),
		},
	}

	return cfg, nil
}

func (c *Config) Validate() error {
	if c.Monitor.Interval <= 0 {
		return fmt.Errorf("MONITOR_INTERVAL must be positive")
	}

	if c.Fetch.MaxAttempts < 1 {
		return fmt.Errorf("FETCH_MAX_ATTEMPTS must be at least 1")
	}

	if c.Browser.MaxConcurrent < 1 {
		return fmt.Errorf("BROWSER_MAX_CONCURRENT must be at least 1")
	}

	if c.Browser.PollInterval <= 0 || c.Browser.PollInterval > c.Browser.WaitTimeout {
		return fmt.Errorf("BROWSER_POLL_INTERVAL must be positive and not exceed BROWSER_WAIT_TIMEOUT")
	}

	if c.Compare.CacheSize < 1 {
		return fmt.Errorf("COMPARE_CACHE_SIZE must be at least 1")
	}

	switch c.Store.Driver {
	case "memory", "postgres", "mongo":
	default:
		return fmt.Errorf("unsupported STORE_DRIVER %q", c.Store.Driver)
	}

	if c.SMTP.Host != "" && c.SMTP.From == "" {
		return fmt.Errorf("SMTP_FROM is required when SMTP_HOST is set")
	}

	return nil
}

// DSN builds the PostgreSQL connection string.
func (d DatabaseConfig) DSN() string {
	return fmt.Sprintf("postgres://%s:%s@%s:%d/%s?sslmode=%s",
		d.User, d.Password, d.Host, d.Port, d.DBName, d.SSLMode)
}

func getEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getIntOrDefault(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if i, err := strconv.Atoi(value); err == nil {
			return i
		}
	}
	return defaultValue
}

func getFloatOrDefault(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if f, err := strconv.ParseFloat(value, 64); err == nil {
			return f
		}
	}
	return defaultValue
}

func getBoolOrDefault(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if b, err := strconv.ParseBool(value); err == nil {
			return b
		}
	}
	return defaultValue
}

func getDurationOrDefault(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return defaultValue
}

func getStringSliceOrDefault(key string, defaultValue []string) []string {
	if value := os.Getenv(key); value != "" {
		parts := strings.Split(value, ",")
		for i := range parts {
			parts[i] = strings.TrimSpace(parts[i])
		}
		return parts
	}
	return defaultValue
}
