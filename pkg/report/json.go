package report

import (
	"context"
	"encoding/json"
	"time"

	"broker/pkg/broker"
)

// JSONReportVersion версия схемы JSON отчёта
const JSONReportVersion = "1"

// JSONGenerator генератор JSON отчётов
type JSONGenerator struct {
	BaseGenerator
}

// NewJSONGenerator создаёт новый генератор
func NewJSONGenerator() *JSONGenerator {
	return &JSONGenerator{}
}

func (g *JSONGenerator) Format() Format      { return FormatJSON }
func (g *JSONGenerator) ContentType() string { return "application/json" }
func (g *JSONGenerator) Extension() string   { return "json" }

// JSONReport структура JSON отчёта
type JSONReport struct {
	Metadata    JSONMetadata      `json:"metadata"`
	Problem     *broker.Problem   `json:"problem"`
	Allocation  broker.Matrix     `json:"allocation"`
	Profit      broker.Matrix     `json:"unit_profit"`
	Shipments   []broker.Shipment `json:"shipments"`
	Summary     broker.Summary    `json:"summary"`
	Iterations  int               `json:"iterations"`
	Allocations int               `json:"allocations"`
	Analysis    *broker.Analysis  `json:"analysis"`
}

type JSONMetadata struct {
	Title       string `json:"title"`
	Author      string `json:"author"`
	ID          string `json:"id,omitempty"`
	Name        string `json:"name,omitempty"`
	Currency    string `json:"currency,omitempty"`
	GeneratedAt string `json:"generated_at"`
	DurationNs  int64  `json:"duration_ns"`
	Version     string `json:"version"`
}

// Generate генерирует JSON отчёт
func (g *JSONGenerator) Generate(_ context.Context, data *Data) ([]byte, error) {
	if err := data.validate(); err != nil {
		return nil, err
	}

	report := JSONReport{
		Metadata: JSONMetadata{
			Title:       g.Title(data),
			Author:      g.Author(data),
			ID:          data.ID,
			Name:        data.Name,
			Currency:    data.Options.Currency,
			GeneratedAt: data.GeneratedAt.Format(time.RFC3339),
			DurationNs:  int64(data.Result.Duration),
			Version:     JSONReportVersion,
		},
		Problem:     data.Problem,
		Allocation:  g.Allocation(data),
		Profit:      data.Result.ProfitMatrix,
		Shipments:   g.OriginalShipments(data),
		Summary:     data.Result.Summary,
		Iterations:  data.Result.Iterations,
		Allocations: data.Result.Allocations,
		Analysis:    data.Analysis,
	}

	return json.MarshalIndent(report, "", "  ")
}
