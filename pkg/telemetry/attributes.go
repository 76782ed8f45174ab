package telemetry

import (
	"go.opentelemetry.io/otel/attribute"
)

// Стандартные ключи атрибутов
const (
	// Задача
	AttrSuppliers   = "broker.suppliers"
	AttrCustomers   = "broker.customers"
	AttrTotalSupply = "broker.total_supply"
	AttrTotalDemand = "broker.total_demand"

	// Решение
	AttrBalance     = "broker.balance"
	AttrIterations  = "broker.iterations"
	AttrShipments   = "broker.shipments"
	AttrTotalProfit = "broker.total_profit"
	AttrCacheHit    = "broker.cache_hit"

	// Пакетное решение
	AttrBatchSize   = "broker.batch.size"
	AttrBatchFailed = "broker.batch.failed"

	// Отчёты
	AttrReportFormat = "report.format"
	AttrReportBytes  = "report.bytes"
)

// ProblemAttributes возвращает атрибуты задачи
func ProblemAttributes(suppliers, customers int, totalSupply, totalDemand int64) []attribute.KeyValue {
	return []attribute.KeyValue{
		attribute.Int(AttrSuppliers, suppliers),
		attribute.Int(AttrCustomers, customers),
		attribute.Int64(AttrTotalSupply, totalSupply),
		attribute.Int64(AttrTotalDemand, totalDemand),
	}
}

// ResultAttributes возвращает атрибуты результата решения
func ResultAttributes(balance string, iterations, shipments int, totalProfit int64) []attribute.KeyValue {
	return []attribute.KeyValue{
		attribute.String(AttrBalance, balance),
		attribute.Int(AttrIterations, iterations),
		attribute.Int(AttrShipments, shipments),
		attribute.Int64(AttrTotalProfit, totalProfit),
	}
}

// ReportAttributes возвращает атрибуты отчёта
func ReportAttributes(format string, size int) []attribute.KeyValue {
	return []attribute.KeyValue{
		attribute.String(AttrReportFormat, format),
		attribute.Int(AttrReportBytes, size),
	}
}
