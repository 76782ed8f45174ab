// Package metrics exposes Prometheus metrics for the broker service.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics глобальный контейнер метрик
type Metrics struct {
	// RPC метрики
	RequestsTotal    *prometheus.CounterVec
	RequestDuration  *prometheus.HistogramVec
	RequestsInFlight prometheus.Gauge
	RateLimited      *prometheus.CounterVec

	// Бизнес-метрики
	SolveOperationsTotal *prometheus.CounterVec
	SolveDuration        *prometheus.HistogramVec
	AllocationIterations prometheus.Histogram
	ProblemSize          *prometheus.HistogramVec
	BalanceApplied       *prometheus.CounterVec
	LastTotalProfit      prometheus.Gauge
	CacheRequests        *prometheus.CounterVec
	ReportsGenerated     *prometheus.CounterVec

	// Информация о сервисе
	ServiceInfo *prometheus.GaugeVec
}

// InitMetrics регистрирует метрики в prometheus.DefaultRegisterer
func InitMetrics(namespace, subsystem string) *Metrics {
	return New(prometheus.DefaultRegisterer, namespace, subsystem)
}

// New регистрирует метрики в reg
func New(reg prometheus.Registerer, namespace, subsystem string) *Metrics {
	f := promauto.With(reg)

	return &Metrics{
		RequestsTotal: f.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: subsystem,
				Name:      "rpc_requests_total",
				Help:      "Total number of RPC requests",
			},
			[]string{"procedure", "code"},
		),

		RequestDuration: f.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Subsystem: subsystem,
				Name:      "rpc_request_duration_seconds",
				Help:      "Duration of RPC requests",
				Buckets:   []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10},
			},
			[]string{"procedure"},
		),

		RequestsInFlight: f.NewGauge(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Subsystem: subsystem,
				Name:      "rpc_requests_in_flight",
				Help:      "Current number of RPC requests being processed",
			},
		),

		RateLimited: f.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: subsystem,
				Name:      "rate_limited_total",
				Help:      "Requests rejected by the rate limiter",
			},
			[]string{"procedure"},
		),

		SolveOperationsTotal: f.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: subsystem,
				Name:      "solve_operations_total",
				Help:      "Total number of solve operations",
			},
			[]string{"operation", "status"},
		),

		SolveDuration: f.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Subsystem: subsystem,
				Name:      "solve_duration_seconds",
				Help:      "Duration of solve operations",
				Buckets:   []float64{.0001, .0005, .001, .005, .01, .05, .1, .5, 1, 5, 30},
			},
			[]string{"operation"},
		),

		AllocationIterations: f.NewHistogram(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Subsystem: subsystem,
				Name:      "allocation_iterations",
				Help:      "Routes examined by the greedy allocation",
				Buckets:   prometheus.ExponentialBuckets(1, 4, 10),
			},
		),

		ProblemSize: f.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Subsystem: subsystem,
				Name:      "problem_size",
				Help:      "Number of suppliers and customers in solved problems",
				Buckets:   []float64{1, 2, 5, 10, 25, 50, 100, 250, 500},
			},
			[]string{"dimension"},
		),

		BalanceApplied: f.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: subsystem,
				Name:      "balance_applied_total",
				Help:      "Balancing outcome of solved problems",
			},
			[]string{"kind"},
		),

		LastTotalProfit: f.NewGauge(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Subsystem: subsystem,
				Name:      "last_total_profit",
				Help:      "Total profit of the last solved problem",
			},
		),

		CacheRequests: f.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: subsystem,
				Name:      "cache_requests_total",
				Help:      "Solve cache lookups",
			},
			[]string{"result"},
		),

		ReportsGenerated: f.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: subsystem,
				Name:      "reports_generated_total",
				Help:      "Generated reports by format",
			},
			[]string{"format", "status"},
		),

		ServiceInfo: f.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Subsystem: subsystem,
				Name:      "service_info",
				Help:      "Service information",
			},
			[]string{"version", "environment"},
		),
	}
}

func statusLabel(success bool) string {
	if success {
		return "success"
	}
	return "error"
}

// RecordRequest записывает метрики RPC запроса
func (m *Metrics) RecordRequest(procedure, code string, duration time.Duration) {
	m.RequestsTotal.WithLabelValues(procedure, code).Inc()
	m.RequestDuration.WithLabelValues(procedure).Observe(duration.Seconds())
}

// RecordRateLimited учитывает отклонённый запрос
func (m *Metrics) RecordRateLimited(procedure string) {
	m.RateLimited.WithLabelValues(procedure).Inc()
}

// RecordSolveOperation записывает метрики операции решения
func (m *Metrics) RecordSolveOperation(operation string, success bool, duration time.Duration) {
	m.SolveOperationsTotal.WithLabelValues(operation, statusLabel(success)).Inc()
	m.SolveDuration.WithLabelValues(operation).Observe(duration.Seconds())
}

// RecordSolveResult записывает характеристики решённой задачи
func (m *Metrics) RecordSolveResult(suppliers, customers, iterations int, balance string, totalProfit int64) {
	m.ProblemSize.WithLabelValues("suppliers").Observe(float64(suppliers))
	m.ProblemSize.WithLabelValues("customers").Observe(float64(customers))
	m.AllocationIterations.Observe(float64(iterations))
	m.BalanceApplied.WithLabelValues(balance).Inc()
	m.LastTotalProfit.Set(float64(totalProfit))
}

// RecordCache учитывает обращение к кэшу решений
func (m *Metrics) RecordCache(hit bool) {
	result := "miss"
	if hit {
		result = "hit"
	}
	m.CacheRequests.WithLabelValues(result).Inc()
}

// RecordReport учитывает сгенерированный отчёт
func (m *Metrics) RecordReport(format string, success bool) {
	m.ReportsGenerated.WithLabelValues(format, statusLabel(success)).Inc()
}

// SetServiceInfo устанавливает информацию о сервисе
func (m *Metrics) SetServiceInfo(version, environment string) {
	m.ServiceInfo.WithLabelValues(version, environment).Set(1)
}

// Handler возвращает HTTP handler для /metrics
func Handler() http.Handler {
	return promhttp.Handler()
}

// HandlerFor возвращает handler для отдельного реестра
func HandlerFor(g prometheus.Gatherer) http.Handler {
	return promhttp.HandlerFor(g, promhttp.HandlerOpts{})
}
