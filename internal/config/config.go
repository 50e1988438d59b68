package config

import (
	"fmt"
	"net"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	Server   ServerConfig
	Scraper  ScraperConfig
	Database DatabaseConfig
	Redis    RedisConfig
	Cache    CacheConfig
	Logging  LoggingConfig
}

type ServerConfig struct {
	Port            int
	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	ShutdownTimeout time.Duration
}

type ScraperConfig struct {
	SearchURL        string
	ListingDelayMin  time.Duration
	ListingDelayMax  time.Duration
	ProductDelayMin  time.Duration
	ProductDelayMax  time.Duration
	Timeout          time.Duration
	MaxPages         int
	ConcurrentCrawls int
	UserAgent        string
	AcceptLanguage   string
	JobPollInterval  time.Duration
}

type DatabaseConfig struct {
	Host     string
	Port     int
	User     string
	Password string
	Name     string
	SSLMode  string
	MaxConns int32
}

type RedisConfig struct {
	Addr     string
	Password string
	DB       int
	Stream   string
	// StreamMaxLen caps relayed streams at about this many entries.
	StreamMaxLen int64
}

type CacheConfig struct {
	TTL time.Duration
}

type LoggingConfig struct {
	Level  string
	Format string
}

// Load reads the configuration from the environment. A .env file in the
// working directory is applied first; variables already set win.
func Load() (*Config, error) {
	if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
		return nil, fmt.Errorf("failed to load .env: %w", err)
	}

	cfg := &Config{
		Server: ServerConfig{
			Port:            getIntOrDefault("PORT", 8084),
			ReadTimeout:     getDurationOrDefault("SERVER_READ_TIMEOUT", 15*time.Second),
			WriteTimeout:    getDurationOrDefault("SERVER_WRITE_TIMEOUT", 120*time.Second),
			ShutdownTimeout: getDurationOrDefault("SERVER_SHUTDOWN_TIMEOUT", 30*time.Second),
		},
		Scraper: ScraperConfig{
			SearchURL:        getEnvOrDefault("PROM_SEARCH_URL", "https://prom.ua/search"),
			ListingDelayMin:  getDurationOrDefault("SCRAPER_LISTING_DELAY_MIN", 500*time.Millisecond),
			ListingDelayMax:  getDurationOrDefault("SCRAPER_LISTING_DELAY_MAX", 1500*time.Millisecond),
			ProductDelayMin:  getDurationOrDefault("SCRAPER_PRODUCT_DELAY_MIN", 100*time.Millisecond),
			ProductDelayMax:  getDurationOrDefault("SCRAPER_PRODUCT_DELAY_MAX", 300*time.Millisecond),
			Timeout:          getDurationOrDefault("SCRAPER_TIMEOUT", 30*time.Second),
			MaxPages:         getIntOrDefault("SCRAPER_MAX_PAGES", 0),
			ConcurrentCrawls: getIntOrDefault("SCRAPER_CONCURRENT_CRAWLS", 1),
			UserAgent:        getEnvOrDefault("SCRAPER_USER_AGENT", DefaultUserAgent),
			AcceptLanguage:   getEnvOrDefault("SCRAPER_ACCEPT_LANGUAGE", "ru,uk;q=0.8,en;q=0.6"),
			JobPollInterval:  getDurationOrDefault("SCRAPER_JOB_POLL_INTERVAL", 10*time.Second),
		},
		Database: DatabaseConfig{
			Host:     getEnvOrDefault("DB_HOST", "localhost"),
			Port:     getIntOrDefault("DB_PORT", 5432),
			User:     getEnvOrDefault("DB_USER", "postgres"),
			Password: getEnvOrDefault("DB_PASSWORD", ""),
			Name:     getEnvOrDefault("DB_NAME", "analytics_prom"),
			SSLMode:  getEnvOrDefault("DB_SSL_MODE", "disable"),
			MaxConns: int32(getIntOrDefault("DB_MAX_CONNS", 10)),
		},
		Redis: RedisConfig{
			Addr:         getEnvOrDefault("REDIS_ADDR", "localhost:6379"),
			Password:     getEnvOrDefault("REDIS_PASSWORD", ""),
			DB:           getIntOrDefault("REDIS_DB", 0),
			Stream:       getEnvOrDefault("REDIS_STREAM", "stream:crawl_events"),
			StreamMaxLen: int64(getIntOrDefault("REDIS_STREAM_MAXLEN", 10000)),
		},
		Cache: CacheConfig{
			TTL: getDurationOrDefault("CACHE_TTL", time.Hour),
		},
		Logging: LoggingConfig{
			Level:  getEnvOrDefault("LOG_LEVEL", "info"),
			Format: getEnvOrDefault("LOG_FORMAT", "json"),
		},
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

func (c *Config) Validate() error {
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("invalid server port: %d", c.Server.Port)
	}

	if strings.TrimSpace(c.Scraper.SearchURL) == "" {
		return fmt.Errorf("PROM_SEARCH_URL is required")
	}

	if c.Scraper.ListingDelayMin < 0 || c.Scraper.ProductDelayMin < 0 {
		return fmt.Errorf("scraper delays cannot be negative")
	}

	if c.Scraper.ListingDelayMin > c.Scraper.ListingDelayMax {
		return fmt.Errorf("SCRAPER_LISTING_DELAY_MIN cannot be greater than SCRAPER_LISTING_DELAY_MAX")
	}

	if c.Scraper.ProductDelayMin > c.Scraper.ProductDelayMax {
		return fmt.Errorf("SCRAPER_PRODUCT_DELAY_MIN cannot be greater than SCRAPER_PRODUCT_DELAY_MAX")
	}

	if c.Scraper.MaxPages < 0 {
		return fmt.Errorf("SCRAPER_MAX_PAGES cannot be negative")
	}

	if c.Scraper.ConcurrentCrawls < 1 {
		return fmt.Errorf("SCRAPER_CONCURRENT_CRAWLS must be at least 1")
	}

	if c.Cache.TTL < 0 {
		return fmt.Errorf("CACHE_TTL cannot be negative")
	}

	return nil
}

// DSN returns the Postgres connection string with credentials escaped.
func (d DatabaseConfig) DSN() string {
	u := &url.URL{
		Scheme:   "postgres",
		User:     url.UserPassword(d.User, d.Password),
		Host:     net.JoinHostPort(d.Host, strconv.Itoa(d.Port)),
		Path:     "/" + d.Name,
		RawQuery: url.Values{"sslmode": {d.SSLMode}}.Encode(),
	}
	return u.String()
}

const DefaultUserAgent = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36"

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

func getDurationOrDefault(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return defaultValue
}
