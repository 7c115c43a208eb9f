// Package config loads the console configuration from the environment.  A
// .env file in the working directory is read first when present; variables
// already set in the environment win over it.
package config

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"go.uber.org/multierr"
)

// DefaultAPIBaseURL is the EMS API the console talks to unless API_BASE_URL
// says otherwise.
const DefaultAPIBaseURL = "https://swtt4qvvptprbix33gretpwtn40leddi.lambda-url.us-east-1.on.aws"

// Config holds all runtime configuration values.
type Config struct {
	Env  string // APP_ENV: development, test or production
	Port string // APP_PORT

	APIBaseURL string        // API_BASE_URL
	APITimeout time.Duration // API_TIMEOUT
	PageSize   int           // TENANT_PAGE_SIZE

	Session   SessionConfig
	Redis     RedisConfig
	DB        DBConfig
	Queue     QueueConfig
	RateLimit RateLimitConfig
	Cache     CacheConfig
	Telemetry TelemetryConfig
}

// SessionConfig controls the browser session cookie and the lifetime of
// the state persisted behind it.
type SessionConfig struct {
	CookieName string        // SESSION_COOKIE
	TTL        time.Duration // SESSION_TTL
	Prefix     string        // SESSION_PREFIX, Redis key prefix
	Secure     bool          // SESSION_SECURE
}

// DBConfig locates the MySQL database of the audit trail.  The audit trail
// is off when DB_HOST is empty.
type DBConfig struct {
	User string
	Pass string
	Host string
	Port string
	Name string
}

// Enabled reports whether a database was configured.
func (c DBConfig) Enabled() bool { return c.Host != "" }

// QueueConfig locates the RabbitMQ broker tenant events go to.  Publishing
// is off when URL is empty.
type QueueConfig struct {
	URL      string // RABBITMQ_URL
	Exchange string // RABBITMQ_EXCHANGE
	EventLog string // EVENT_LOG_PATH, consumer output; empty disables the consumer
}

// TelemetryConfig enables tracing export when Endpoint is set.
type TelemetryConfig struct {
	Endpoint    string // OTEL_EXPORTER_OTLP_ENDPOINT
	ServiceName string // OTEL_SERVICE_NAME
	Insecure    bool   // OTEL_EXPORTER_OTLP_INSECURE
}

// IsProduction reports whether APP_ENV selects production behaviour.
func (c Config) IsProduction() bool { return c.Env == "production" || c.Env == "prod" }

// Load reads configuration values from the environment.  Every missing or
// malformed variable is reported in the returned error, not only the
// first.
func Load() (Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return Config{}, fmt.Errorf("load .env: %w", err)
	}

	l := &loader{}
	cfg := Config{
		Env:        l.oneOf("APP_ENV", "development", "development", "dev", "test", "production", "prod"),
		Port:       l.str("APP_PORT", "8080"),
		APIBaseURL: l.absURL("API_BASE_URL", DefaultAPIBaseURL),
		APITimeout: l.duration("API_TIMEOUT", 30*time.Second),
		PageSize:   l.integer("TENANT_PAGE_SIZE", 10),
		Session: SessionConfig{
			CookieName: l.str("SESSION_COOKIE", "ems_session"),
			TTL:        l.duration("SESSION_TTL", 24*time.Hour),
			Prefix:     l.str("SESSION_PREFIX", "ems:session"),
			Secure:     l.boolean("SESSION_SECURE", false),
		},
		Redis: loadRedis(l),
		DB: DBConfig{
			User: l.str("DB_USER", "root"),
			Pass: os.Getenv("DB_PASS"),
			Host: os.Getenv("DB_HOST"),
			Port: l.str("DB_PORT", "3306"),
			Name: l.str("DB_NAME", "ems_console"),
		},
		Queue: QueueConfig{
			URL:      os.Getenv("RABBITMQ_URL"),
			Exchange: l.str("RABBITMQ_EXCHANGE", "ems.tenants"),
			EventLog: os.Getenv("EVENT_LOG_PATH"),
		},
		RateLimit: loadRateLimit(l),
		Cache:     loadCache(l),
		Telemetry: TelemetryConfig{
			Endpoint:    os.Getenv("OTEL_EXPORTER_OTLP_ENDPOINT"),
			ServiceName: l.str("OTEL_SERVICE_NAME", "ems-console"),
			Insecure:    l.boolean("OTEL_EXPORTER_OTLP_INSECURE", true),
		},
	}
	if cfg.PageSize < 1 {
		l.fail("TENANT_PAGE_SIZE", "must be positive")
	}
	if cfg.APITimeout <= 0 {
		l.fail("API_TIMEOUT", "must be positive")
	}
	return cfg, l.err
}

// loader reads variables and collects what is wrong with them.
type loader struct {
	err error
}

func (l *loader) fail(key, format string, args ...any) {
	l.err = multierr.Append(l.err, fmt.Errorf("%s: "+format, append([]any{key}, args...)...))
}

func (l *loader) str(key, def string) string {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		return v
	}
	return def
}

func (l *loader) oneOf(key, def string, allowed ...string) string {
	v := l.str(key, def)
	for _, a := range allowed {
		if v == a {
			return v
		}
	}
	l.fail(key, "%q is not one of %s", v, strings.Join(allowed, ", "))
	return def
}

func (l *loader) integer(key string, def int) int {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		l.fail(key, "invalid int %q", v)
		return def
	}
	return n
}

func (l *loader) boolean(key string, def bool) bool {
	switch v := os.Getenv(key); strings.ToLower(v) {
	case "":
		return def
	case "1", "true", "yes", "on":
		return true
	case "0", "false", "no", "off":
		return false
	default:
		l.fail(key, "invalid bool %q", v)
		return def
	}
}

func (l *loader) duration(key string, def time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		l.fail(key, "invalid duration %q", v)
		return def
	}
	return d
}

func (l *loader) absURL(key, def string) string {
	v := l.str(key, def)
	u, err := url.Parse(v)
	if err != nil || u.Scheme == "" || u.Host == "" {
		l.fail(key, "%q is not an absolute url", v)
		return def
	}
	return strings.TrimRight(v, "/")
}
