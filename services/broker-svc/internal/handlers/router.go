package handlers

import (
	"net/http"
	"time"

	"broker/pkg/auth"
	"broker/pkg/config"
	"broker/pkg/interceptors"
	"broker/pkg/swagger"
	"broker/services/broker-svc/internal/middleware"
	"broker/services/broker-svc/internal/service"
)

// RouterConfig зависимости HTTP-маршрутов сервиса
type RouterConfig struct {
	Service      *service.BrokerService
	Interceptors *interceptors.ServerConfig
	// Tokens nil отключает авторизацию скачивания отчётов
	Tokens  *auth.Manager
	Metrics http.Handler  // nil - без /metrics
	Docs    *swagger.Docs // nil - без /docs
	Ready   map[string]Checker
	Version string
	HTTP    config.HTTPConfig
}

// NewRouter собирает mux: процедуры Connect, health, ready, metrics, docs и
// скачивание отчётов, обёрнутые в CORS и ограничение тела запроса
func NewRouter(cfg RouterConfig) http.Handler {
	ic := cfg.Interceptors
	if ic == nil {
		ic = &interceptors.ServerConfig{}
	}

	mux := http.NewServeMux()

	NewBrokerHandler(cfg.Service).Register(mux, interceptors.HandlerOptions(ic)...)

	// Health endpoints (обычный HTTP для k8s probes)
	mux.HandleFunc("GET /health", HealthHandler(cfg.Version, time.Now()))
	mux.HandleFunc("GET /ready", ReadyHandler(cfg.Ready))

	mux.HandleFunc("GET /reports", ReportFormatsHandler())
	mux.HandleFunc("GET /reports/{file}", ReportDownloadHandler(cfg.Service, cfg.Tokens))

	if cfg.Docs != nil {
		cfg.Docs.Register(mux)
	}

	if cfg.Metrics != nil {
		mux.Handle("GET /metrics", cfg.Metrics)
	}

	var h http.Handler = mux
	h = middleware.MaxBytes(cfg.HTTP.MaxBodyBytes)(h)
	if cfg.HTTP.CORS.Enabled {
		h = middleware.CORS(cfg.HTTP.CORS)(h)
	}
	return h
}
