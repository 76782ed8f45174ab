package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"broker/pkg/api"
	"broker/pkg/auth"
	"broker/pkg/cache"
	"broker/pkg/config"
	"broker/pkg/interceptors"
	"broker/pkg/logger"
	"broker/pkg/metrics"
	"broker/pkg/ratelimit"
	"broker/pkg/server"
	"broker/pkg/swagger"
	"broker/pkg/telemetry"
	"broker/services/broker-svc/internal/handlers"
	"broker/services/broker-svc/internal/repository"
	"broker/services/broker-svc/internal/service"
)

func main() {
	// Загружаем конфигурацию
	cfg, err := config.Load()
	if err != nil {
		logger.Init("error")
		logger.Fatal("Failed to load config", "error", err)
	}

	// Инициализируем логгер
	logger.InitWithConfig(logger.Config{
		Level:      cfg.Log.Level,
		Format:     cfg.Log.Format,
		Output:     cfg.Log.Output,
		FilePath:   cfg.Log.FilePath,
		MaxSize:    cfg.Log.MaxSize,
		MaxBackups: cfg.Log.MaxBackups,
		MaxAge:     cfg.Log.MaxAge,
		Compress:   cfg.Log.Compress,
	})

	logger.Log.Info("Starting Broker Service",
		"version", cfg.App.Version,
		"environment", cfg.App.Environment,
	)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Телеметрия
	tp, err := telemetry.Init(ctx, telemetry.FromConfig(cfg.App, cfg.Tracing))
	if err != nil {
		logger.Fatal("Failed to init telemetry", "error", err)
	}

	// Метрики
	var m *metrics.Metrics
	if cfg.Metrics.Enabled {
		m = metrics.InitMetrics(cfg.Metrics.Namespace, cfg.Metrics.Subsystem)
		m.SetServiceInfo(cfg.App.Version, cfg.App.Environment)
	}

	ready := map[string]handlers.Checker{}

	// Кэш результатов
	var solveCache *cache.SolveCache
	var c cache.Cache
	if cfg.Cache.Enabled {
		c, err = cache.New(cache.FromConfig(&cfg.Cache))
		if err != nil {
			logger.Fatal("Failed to init cache", "error", err, "driver", cfg.Cache.Driver)
		}
		solveCache = cache.NewSolveCache(c, cfg.Cache.DefaultTTL)
		ready["cache"] = func(r *http.Request) error {
			_, err := solveCache.Stats(r.Context())
			return err
		}
		logger.Log.Info("Cache enabled", "driver", cfg.Cache.Driver)
	}

	// История расчётов
	var store *repository.Store
	var repo repository.CalculationRepository
	if cfg.Database.Enabled {
		store, err = repository.Open(ctx, &cfg.Database)
		if err != nil {
			logger.Fatal("Failed to open database", "error", err, "driver", cfg.Database.Driver)
		}
		repo = store
		ready["database"] = func(r *http.Request) error {
			_, err := store.Count(r.Context(), repository.ListFilter{})
			return err
		}
		logger.Log.Info("History enabled", "driver", store.Driver)
	}

	ic := &interceptors.ServerConfig{
		EnableTracing: cfg.Tracing.Enabled,
		Metrics:       m,
	}

	var tokens *auth.Manager
	if cfg.Auth.Enabled {
		tokens = auth.NewManager(auth.FromConfig(cfg.Auth))
		ic.Tokens = tokens
		ic.PublicProcedures = cfg.Auth.PublicProcedures
	}

	var limiter ratelimit.Limiter
	if cfg.RateLimit.Enabled {
		limiter, err = ratelimit.New(ratelimit.FromConfig(cfg.RateLimit))
		if err != nil {
			logger.Fatal("Failed to init rate limiter", "error", err, "backend", cfg.RateLimit.Backend)
		}
		ic.RateLimiter = limiter
		ic.KeyExtractor = ratelimit.SubjectKeyExtractor(auth.SubjectFromContext)
	}

	opts := service.OptionsFromConfig(cfg)
	svc := service.NewBrokerService(opts, repo, solveCache, m)

	var metricsHandler http.Handler
	if cfg.Metrics.Enabled {
		metrics.InitStateCollector(cfg.Metrics.Namespace, cfg.Metrics.Subsystem, svc.StateSource())
		metricsHandler = metrics.Handler()
	}

	// Документация API
	var docs *swagger.Docs
	if cfg.HTTP.Docs {
		docs, err = swagger.New(api.OpenAPI, swagger.Options{
			Version:      cfg.App.Version,
			MaxNodes:     opts.Limits.MaxNodes,
			MaxBatchSize: opts.MaxBatchSize,
			AuthRequired: cfg.Auth.Enabled,
		})
		if err != nil {
			logger.Fatal("Failed to build API docs", "error", err)
		}
	}

	router := handlers.NewRouter(handlers.RouterConfig{
		Service:      svc,
		Interceptors: ic,
		Tokens:       tokens,
		Metrics:      metricsHandler,
		Docs:         docs,
		Ready:        ready,
		Version:      cfg.App.Version,
		HTTP:         cfg.HTTP,
	})

	srv := server.New(cfg.HTTP, router)

	// Хуки выполняются в обратном порядке регистрации
	srv.OnShutdown("telemetry", tp.Shutdown)
	if c != nil {
		srv.OnShutdown("cache", func(context.Context) error { return c.Close() })
	}
	if store != nil {
		srv.OnShutdown("database", func(context.Context) error { return store.Close() })
	}
	if limiter != nil {
		srv.OnShutdown("rate limiter", func(context.Context) error { return limiter.Close() })
	}

	logger.Log.Info("Broker listening",
		"port", cfg.HTTP.Port,
		"protocol", "HTTP/1.1 + H2C (ConnectRPC)",
		"auth", cfg.Auth.Enabled,
		"rate_limit", cfg.RateLimit.Enabled,
	)

	if err := srv.Run(ctx); err != nil {
		logger.Fatal("Server failed", "error", err)
	}

	logger.Log.Info("Server stopped")
}
