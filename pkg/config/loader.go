package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/confmap"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
)

const (
	envPrefix    = "BROKER_"
	configEnvVar = "CONFIG_PATH"
)

// Loader загружает конфигурацию из разных источников
type Loader struct {
	k           *koanf.Koanf
	configPaths []string
	envPrefix   string
	fileLoaded  string
}

// LoaderOption - опция для конфигурации загрузчика
type LoaderOption func(*Loader)

// NewLoader создаёт новый загрузчик конфигурации
func NewLoader(opts ...LoaderOption) *Loader {
	l := &Loader{
		k: koanf.New("."),
		configPaths: []string{
			"config.yaml",
			"config/config.yaml",
			"/etc/broker/config.yaml",
		},
		envPrefix: envPrefix,
	}

	for _, opt := range opts {
		opt(l)
	}

	return l
}

// WithConfigPaths устанавливает пути поиска конфигурации
func WithConfigPaths(paths ...string) LoaderOption {
	return func(l *Loader) {
		l.configPaths = paths
	}
}

// WithEnvPrefix устанавливает префикс переменных окружения
func WithEnvPrefix(prefix string) LoaderOption {
	return func(l *Loader) {
		l.envPrefix = prefix
	}
}

// Load загружает конфигурацию с приоритетом:
// 1. Defaults (самый низкий)
// 2. Config file (yaml), необязателен
// 3. Environment variables (самый высокий)
func (l *Loader) Load() (*Config, error) {
	if err := l.k.Load(confmap.Provider(defaults(), "."), nil); err != nil {
		return nil, fmt.Errorf("failed to load defaults: %w", err)
	}

	if err := l.loadConfigFile(); err != nil {
		return nil, err
	}

	if err := l.loadEnv(); err != nil {
		return nil, fmt.Errorf("failed to load env: %w", err)
	}

	var cfg Config
	if err := l.k.Unmarshal("", &cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

// ConfigFile возвращает путь к прочитанному файлу, пустую строку если файла нет
func (l *Loader) ConfigFile() string {
	return l.fileLoaded
}

func defaults() map[string]any {
	return map[string]any{
		// App
		"app.name":        "broker-svc",
		"app.version":     "1.0.0",
		"app.environment": "development",
		"app.debug":       false,

		// HTTP
		"http.port":             8080,
		"http.read_timeout":     30 * time.Second,
		"http.write_timeout":    30 * time.Second,
		"http.shutdown_timeout": 10 * time.Second,
		"http.max_body_bytes":   4 * 1024 * 1024,
		"http.docs":             true,
		// CORS - явно указываем Authorization
		"http.cors.enabled":           true,
		"http.cors.allowed_origins":   []string{"*"},
		"http.cors.allowed_methods":   []string{"GET", "POST", "OPTIONS"},
		"http.cors.allowed_headers":   []string{"Content-Type", "Authorization", "Accept", "Origin", "Connect-Protocol-Version", "Connect-Timeout-Ms"},
		"http.cors.exposed_headers":   []string{"X-Error-Code", "X-Error-Field", "X-Request-Id"},
		"http.cors.allow_credentials": false,
		"http.cors.max_age":           86400,

		// Log
		"log.level":       "info",
		"log.format":      "json",
		"log.output":      "stdout",
		"log.file_path":   "logs/broker.log",
		"log.max_size":    100,
		"log.max_backups": 3,
		"log.max_age":     7,
		"log.compress":    true,

		// Metrics
		"metrics.enabled":   true,
		"metrics.path":      "/metrics",
		"metrics.namespace": "broker",
		"metrics.subsystem": "",

		// Tracing
		"tracing.enabled":      false,
		"tracing.endpoint":     "localhost:4317",
		"tracing.service_name": "broker-svc",
		"tracing.sample_rate":  0.1,

		// Database
		"database.enabled":            true,
		"database.driver":             "sqlite",
		"database.host":               "localhost",
		"database.port":               5432,
		"database.database":           "broker",
		"database.username":           "postgres",
		"database.password":           "",
		"database.ssl_mode":           "disable",
		"database.sqlite_path":        "broker.db",
		"database.max_open_conns":     25,
		"database.max_idle_conns":     5,
		"database.conn_max_lifetime":  5 * time.Minute,
		"database.conn_max_idle_time": 5 * time.Minute,
		"database.auto_migrate":       true,

		// Cache
		"cache.enabled":     true,
		"cache.driver":      "memory",
		"cache.host":        "localhost",
		"cache.port":        6379,
		"cache.password":    "",
		"cache.db":          0,
		"cache.default_ttl": 10 * time.Minute,
		"cache.max_entries": 10000,

		// Rate Limit
		"rate_limit.enabled":          true,
		"rate_limit.requests":         120,
		"rate_limit.window":           time.Minute,
		"rate_limit.backend":          "memory",
		"rate_limit.cleanup_interval": 5 * time.Minute,
		"rate_limit.redis_addr":       "localhost:6379",

		// Auth
		"auth.enabled":           false,
		"auth.jwt_secret":        "",
		"auth.issuer":            "broker-svc",
		"auth.token_ttl":         24 * time.Hour,
		"auth.public_procedures": []string{},

		// Broker
		"broker.max_nodes":       500,
		"broker.max_batch_size":  100,
		"broker.batch_workers":   4,
		"broker.solve_timeout":   30 * time.Second,
		"broker.persist_results": true,

		// Client
		"client.address":       "http://localhost:8080",
		"client.timeout":       30 * time.Second,
		"client.max_retries":   3,
		"client.retry_backoff": 100 * time.Millisecond,
		"client.max_backoff":   2 * time.Second,
		"client.token":         "",

		// Report
		"report.default_format": "text",
		"report.company_name":   "Broker",
		"report.currency":       "",
		"report.page_numbers":   true,
	}
}

// loadConfigFile загружает конфигурацию из файла, если он найден
func (l *Loader) loadConfigFile() error {
	if configPath := os.Getenv(configEnvVar); configPath != "" {
		if _, err := os.Stat(configPath); err != nil {
			return fmt.Errorf("config file %s: %w", configPath, err)
		}
		return l.loadFile(configPath)
	}

	for _, path := range l.configPaths {
		absPath, err := filepath.Abs(path)
		if err != nil {
			continue
		}
		if _, err := os.Stat(absPath); err == nil {
			return l.loadFile(absPath)
		}
	}

	return nil
}

func (l *Loader) loadFile(path string) error {
	if err := l.k.Load(file.Provider(path), yaml.Parser()); err != nil {
		return fmt.Errorf("failed to parse config file %s: %w", path, err)
	}
	l.fileLoaded = path
	return nil
}

// loadEnv загружает конфигурацию из переменных окружения.
// BROKER_HTTP_CORS_ALLOWED_ORIGINS -> http.cors.allowed_origins: ключ ищется
// среди уже известных ключей, иначе подчёркивания заменяются на точки.
func (l *Loader) loadEnv() error {
	known := make(map[string]string, len(l.k.Keys()))
	for _, key := range l.k.Keys() {
		known[strings.ReplaceAll(key, ".", "_")] = key
	}

	return l.k.Load(env.ProviderWithValue(l.envPrefix, ".", func(envKey string, value string) (string, any) {
		flat := strings.ToLower(strings.TrimPrefix(envKey, l.envPrefix))

		key, ok := known[flat]
		if !ok {
			key = strings.ReplaceAll(flat, "_", ".")
		}

		if isSliceField(key) {
			return key, splitAndTrim(value)
		}
		return key, value
	}), nil)
}

// sliceFields - поля, которые должны парситься как слайсы
var sliceFields = map[string]bool{
	"http.cors.allowed_origins": true,
	"http.cors.allowed_methods": true,
	"http.cors.allowed_headers": true,
	"http.cors.exposed_headers": true,
	"auth.public_procedures":    true,
}

func isSliceField(key string) bool {
	return sliceFields[key]
}

func splitAndTrim(s string) []string {
	if s == "" {
		return nil
	}
	parts := strings.Split(s, ",")
	result := make([]string, 0, len(parts))
	for _, p := range parts {
		if trimmed := strings.TrimSpace(p); trimmed != "" {
			result = append(result, trimmed)
		}
	}
	return result
}

// Load - загрузка с настройками по умолчанию
func Load() (*Config, error) {
	return NewLoader().Load()
}
