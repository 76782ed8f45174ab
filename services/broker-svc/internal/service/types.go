package service

import (
	"time"

	"broker/pkg/api"
	"broker/pkg/config"
	"broker/pkg/report"
	"broker/services/broker-svc/internal/validation"
)

// Запросы и ответы совпадают с сообщениями API
type (
	SolveRequest       = api.SolveRequest
	SolveResponse      = api.SolveResponse
	Calculation        = api.Calculation
	CalculationSummary = api.CalculationSummary
	ListRequest        = api.ListCalculationsRequest
	ListResponse       = api.ListCalculationsResponse
	ReportRequest      = api.GenerateReportRequest
)

// BatchItem результат одной задачи пакета, ровно одно из Response и Error заполнено
type BatchItem struct {
	Index    int
	Response *SolveResponse
	Error    error
}

// ReportResponse готовый документ
type ReportResponse struct {
	Content     []byte
	ContentType string
	Filename    string
	Format      report.Format
}

// Options настройки сервиса
type Options struct {
	Limits         validation.Limits
	MaxBatchSize   int
	BatchWorkers   int
	SolveTimeout   time.Duration
	PersistResults bool
	CacheTTL       time.Duration
	Report         report.Options
	DefaultFormat  string
}

// DefaultOptions возвращает настройки по умолчанию
func DefaultOptions() Options {
	return Options{
		Limits:         validation.Limits{MaxNodes: 500},
		MaxBatchSize:   100,
		BatchWorkers:   4,
		SolveTimeout:   30 * time.Second,
		PersistResults: true,
		DefaultFormat:  string(report.FormatText),
	}
}

// OptionsFromConfig собирает настройки из секций broker, cache и report
func OptionsFromConfig(cfg *config.Config) Options {
	opts := DefaultOptions()
	opts.Limits.MaxNodes = cfg.Broker.MaxNodes
	if cfg.Broker.MaxBatchSize > 0 {
		opts.MaxBatchSize = cfg.Broker.MaxBatchSize
	}
	if cfg.Broker.BatchWorkers > 0 {
		opts.BatchWorkers = cfg.Broker.BatchWorkers
	}
	opts.SolveTimeout = cfg.Broker.SolveTimeout
	opts.PersistResults = cfg.Broker.PersistResults
	opts.CacheTTL = cfg.Cache.DefaultTTL
	opts.Report = report.OptionsFromConfig(cfg.Report)
	if cfg.Report.DefaultFormat != "" {
		opts.DefaultFormat = cfg.Report.DefaultFormat
	}
	return opts
}
