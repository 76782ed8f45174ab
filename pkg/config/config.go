// pkg/config/config.go
package config

import (
	"fmt"
	"net/url"
	"strings"
	"time"
)

// Config - главная структура конфигурации
type Config struct {
	App       AppConfig       `koanf:"app"`
	HTTP      HTTPConfig      `koanf:"http"`
	Log       LogConfig       `koanf:"log"`
	Metrics   MetricsConfig   `koanf:"metrics"`
	Tracing   TracingConfig   `koanf:"tracing"`
	Database  DatabaseConfig  `koanf:"database"`
	Cache     CacheConfig     `koanf:"cache"`
	RateLimit RateLimitConfig `koanf:"rate_limit"`
	Auth      AuthConfig      `koanf:"auth"`
	Broker    BrokerConfig    `koanf:"broker"`
	Client    ClientConfig    `koanf:"client"`
	Report    ReportConfig    `koanf:"report"`
}

// AppConfig - общие настройки приложения
type AppConfig struct {
	Name        string `koanf:"name"`
	Version     string `koanf:"version"`
	Environment string `koanf:"environment"` // development, staging, production
	Debug       bool   `koanf:"debug"`
}

// HTTPConfig - настройки HTTP/Connect сервера
type HTTPConfig struct {
	Port            int           `koanf:"port"`
	ReadTimeout     time.Duration `koanf:"read_timeout"`
	WriteTimeout    time.Duration `koanf:"write_timeout"`
	ShutdownTimeout time.Duration `koanf:"shutdown_timeout"`
	MaxBodyBytes    int64         `koanf:"max_body_bytes"`
	Docs            bool          `koanf:"docs"` // Swagger UI на /docs
	CORS            CORSConfig    `koanf:"cors"`
}

// CORSConfig - настройки CORS
type CORSConfig struct {
	Enabled          bool     `koanf:"enabled"`
	AllowedOrigins   []string `koanf:"allowed_origins"`
	AllowedMethods   []string `koanf:"allowed_methods"`
	AllowedHeaders   []string `koanf:"allowed_headers"`
	ExposedHeaders   []string `koanf:"exposed_headers"`
	AllowCredentials bool     `koanf:"allow_credentials"`
	MaxAge           int      `koanf:"max_age"`
}

// LogConfig - настройки логирования
type LogConfig struct {
	Level      string `koanf:"level"`       // debug, info, warn, error
	Format     string `koanf:"format"`      // json, text
	Output     string `koanf:"output"`      // stdout, stderr, file
	FilePath   string `koanf:"file_path"`   // путь к файлу логов
	MaxSize    int    `koanf:"max_size"`    // MB
	MaxBackups int    `koanf:"max_backups"` // количество бэкапов
	MaxAge     int    `koanf:"max_age"`     // дней
	Compress   bool   `koanf:"compress"`
}

// MetricsConfig - настройки Prometheus метрик
type MetricsConfig struct {
	Enabled   bool   `koanf:"enabled"`
	Path      string `koanf:"path"`
	Namespace string `koanf:"namespace"`
	Subsystem string `koanf:"subsystem"`
}

// TracingConfig - настройки OpenTelemetry
type TracingConfig struct {
	Enabled     bool    `koanf:"enabled"`
	Endpoint    string  `koanf:"endpoint"`
	ServiceName string  `koanf:"service_name"`
	SampleRate  float64 `koanf:"sample_rate"`
}

// DatabaseConfig - настройки хранилища истории расчётов
type DatabaseConfig struct {
	Enabled         bool          `koanf:"enabled"`
	Driver          string        `koanf:"driver"` // postgres, sqlite
	Host            string        `koanf:"host"`
	Port            int           `koanf:"port"`
	Database        string        `koanf:"database"`
	Username        string        `koanf:"username"`
	Password        string        `koanf:"password"`
	SSLMode         string        `koanf:"ssl_mode"`
	SQLitePath      string        `koanf:"sqlite_path"`
	MaxOpenConns    int           `koanf:"max_open_conns"`
	MaxIdleConns    int           `koanf:"max_idle_conns"`
	ConnMaxLifetime time.Duration `koanf:"conn_max_lifetime"`
	ConnMaxIdleTime time.Duration `koanf:"conn_max_idle_time"`
	AutoMigrate     bool          `koanf:"auto_migrate"`
}

// DSN возвращает строку подключения для выбранного драйвера
func (d DatabaseConfig) DSN() string {
	switch strings.ToLower(d.Driver) {
	case "postgres", "postgresql":
		u := url.URL{
			Scheme:   "postgres",
			User:     url.UserPassword(d.Username, d.Password),
			Host:     fmt.Sprintf("%s:%d", d.Host, d.Port),
			Path:     d.Database,
			RawQuery: "sslmode=" + d.SSLMode,
		}
		return u.String()
	case "sqlite":
		return d.SQLitePath + "?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)"
	default:
		return ""
	}
}

// CacheConfig - настройки кэша результатов
type CacheConfig struct {
	Enabled    bool          `koanf:"enabled"`
	Driver     string        `koanf:"driver"` // redis, memory
	Host       string        `koanf:"host"`
	Port       int           `koanf:"port"`
	Password   string        `koanf:"password"`
	DB         int           `koanf:"db"`
	DefaultTTL time.Duration `koanf:"default_ttl"`
	MaxEntries int           `koanf:"max_entries"` // для in-memory
}

// Address возвращает адрес кэша
func (c CacheConfig) Address() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

// RateLimitConfig конфигурация rate limiting
type RateLimitConfig struct {
	Enabled         bool          `koanf:"enabled"`
	Requests        int           `koanf:"requests"`
	Window          time.Duration `koanf:"window"`
	Backend         string        `koanf:"backend"` // memory, redis
	CleanupInterval time.Duration `koanf:"cleanup_interval"`
	RedisAddr       string        `koanf:"redis_addr"`
}

// AuthConfig конфигурация JWT
type AuthConfig struct {
	Enabled          bool          `koanf:"enabled"`
	JWTSecret        string        `koanf:"jwt_secret"`
	Issuer           string        `koanf:"issuer"`
	TokenTTL         time.Duration `koanf:"token_ttl"`
	PublicProcedures []string      `koanf:"public_procedures"`
}

// BrokerConfig настройки решателя
type BrokerConfig struct {
	MaxNodes       int           `koanf:"max_nodes"`      // предел поставщиков и покупателей по отдельности
	MaxBatchSize   int           `koanf:"max_batch_size"` // задач в одном SolveBatch
	BatchWorkers   int           `koanf:"batch_workers"`
	SolveTimeout   time.Duration `koanf:"solve_timeout"`
	PersistResults bool          `koanf:"persist_results"`
}

// ClientConfig настройки клиента API (brokerctl --server)
type ClientConfig struct {
	Address      string        `koanf:"address"`
	Timeout      time.Duration `koanf:"timeout"`
	MaxRetries   int           `koanf:"max_retries"`
	RetryBackoff time.Duration `koanf:"retry_backoff"`
	MaxBackoff   time.Duration `koanf:"max_backoff"`
	Token        string        `koanf:"token"`
}

// ReportConfig конфигурация отчётов
type ReportConfig struct {
	DefaultFormat string `koanf:"default_format"`
	CompanyName   string `koanf:"company_name"`
	Currency      string `koanf:"currency"`
	PageNumbers   bool   `koanf:"page_numbers"`
}

var (
	validLevels    = map[string]bool{"debug": true, "info": true, "warn": true, "error": true}
	validDBDrivers = map[string]bool{"postgres": true, "postgresql": true, "sqlite": true}
	validBackends  = map[string]bool{"memory": true, "redis": true}
	validFormats   = map[string]bool{"text": true, "json": true, "csv": true, "xlsx": true, "pdf": true, "md": true}
)

// Validate проверяет конфигурацию
func (c *Config) Validate() error {
	var errs []string

	if c.App.Name == "" {
		errs = append(errs, "app.name is required")
	}

	if c.HTTP.Port <= 0 || c.HTTP.Port > 65535 {
		errs = append(errs, fmt.Sprintf("http.port must be between 1 and 65535, got %d", c.HTTP.Port))
	}

	if c.Log.Level == "" {
		c.Log.Level = "info"
	}
	if !validLevels[strings.ToLower(c.Log.Level)] {
		errs = append(errs, fmt.Sprintf("log.level must be one of: debug, info, warn, error, got %s", c.Log.Level))
	}

	if c.Database.Enabled && !validDBDrivers[strings.ToLower(c.Database.Driver)] {
		errs = append(errs, fmt.Sprintf("database.driver must be postgres or sqlite, got %s", c.Database.Driver))
	}

	if c.Cache.Enabled && !validBackends[c.Cache.Driver] {
		errs = append(errs, fmt.Sprintf("cache.driver must be memory or redis, got %s", c.Cache.Driver))
	}

	if c.RateLimit.Enabled {
		if !validBackends[c.RateLimit.Backend] {
			errs = append(errs, fmt.Sprintf("rate_limit.backend must be memory or redis, got %s", c.RateLimit.Backend))
		}
		if c.RateLimit.Requests <= 0 || c.RateLimit.Window <= 0 {
			errs = append(errs, "rate_limit.requests and rate_limit.window must be positive")
		}
	}

	if c.Auth.Enabled && len(c.Auth.JWTSecret) < 16 {
		errs = append(errs, "auth.jwt_secret must be at least 16 characters when auth is enabled")
	}

	if c.Broker.MaxNodes <= 0 {
		errs = append(errs, "broker.max_nodes must be positive")
	}
	if c.Broker.BatchWorkers <= 0 {
		errs = append(errs, "broker.batch_workers must be positive")
	}

	if c.Report.DefaultFormat != "" && !validFormats[c.Report.DefaultFormat] {
		errs = append(errs, fmt.Sprintf("report.default_format is not supported: %s", c.Report.DefaultFormat))
	}

	if len(errs) > 0 {
		return fmt.Errorf("configuration validation failed: %s", strings.Join(errs, "; "))
	}

	return nil
}

// IsDevelopment проверяет режим разработки
func (c *Config) IsDevelopment() bool {
	return c.App.Environment == "development" || c.App.Environment == "dev"
}

// IsProduction проверяет продакшн режим
func (c *Config) IsProduction() bool {
	return c.App.Environment == "production" || c.App.Environment == "prod"
}
