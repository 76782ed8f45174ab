// Package report renders solved broker problems as documents.
//
// Every generator receives the same Data: the input problem, the solve
// result and its analysis. Only the original suppliers and customers are
// rendered; dummy rows and columns added by balancing never appear.
package report

import (
	"context"
	"fmt"
	"strings"
	"time"

	"broker/pkg/apperror"
	"broker/pkg/broker"
	"broker/pkg/config"
)

// Format имя формата отчёта
type Format string

const (
	FormatText     Format = "text"
	FormatCSV      Format = "csv"
	FormatExcel    Format = "xlsx"
	FormatPDF      Format = "pdf"
	FormatMarkdown Format = "md"
	FormatJSON     Format = "json"
)

var formatAliases = map[string]Format{
	"text":     FormatText,
	"txt":      FormatText,
	"csv":      FormatCSV,
	"xlsx":     FormatExcel,
	"excel":    FormatExcel,
	"pdf":      FormatPDF,
	"md":       FormatMarkdown,
	"markdown": FormatMarkdown,
	"json":     FormatJSON,
}

// ParseFormat принимает имя формата или расширение без точки
func ParseFormat(s string) (Format, error) {
	f, ok := formatAliases[strings.ToLower(strings.TrimSpace(s))]
	if !ok {
		return "", apperror.Newf(apperror.CodeUnsupportedFormat, "unsupported report format %q", s).
			WithField("format")
	}
	return f, nil
}

// Formats возвращает поддерживаемые форматы
func Formats() []Format {
	return []Format{FormatText, FormatCSV, FormatExcel, FormatPDF, FormatMarkdown, FormatJSON}
}

// Options оформление отчёта
type Options struct {
	Title       string
	CompanyName string
	Currency    string
	PageNumbers bool
}

// OptionsFromConfig создаёт опции из конфигурации
func OptionsFromConfig(cfg config.ReportConfig) Options {
	return Options{
		CompanyName: cfg.CompanyName,
		Currency:    cfg.Currency,
		PageNumbers: cfg.PageNumbers,
	}
}

// Data данные для генерации отчёта
type Data struct {
	ID          string
	Name        string
	Problem     *broker.Problem
	Result      *broker.Result
	Analysis    *broker.Analysis
	GeneratedAt time.Time
	Options     Options
}

// NewData собирает данные отчёта и считает анализ
func NewData(p *broker.Problem, r *broker.Result, opts Options) (*Data, error) {
	if p == nil || r == nil {
		return nil, apperror.ErrNilProblem
	}
	if err := p.CheckShape(); err != nil {
		return nil, err
	}
	return &Data{
		Problem:     p,
		Result:      r,
		Analysis:    broker.Analyze(p, r),
		GeneratedAt: time.Now().UTC(),
		Options:     opts,
	}, nil
}

func (d *Data) validate() error {
	if d == nil || d.Problem == nil || d.Result == nil {
		return apperror.New(apperror.CodeReportFailed, "report data is incomplete")
	}
	if d.Analysis == nil {
		d.Analysis = broker.Analyze(d.Problem, d.Result)
	}
	if d.GeneratedAt.IsZero() {
		d.GeneratedAt = time.Now().UTC()
	}
	return nil
}

// Generator интерфейс генератора отчётов
type Generator interface {
	Generate(ctx context.Context, data *Data) ([]byte, error)
	Format() Format
	ContentType() string
	Extension() string
}

// BaseGenerator общие утилиты генераторов
type BaseGenerator struct{}

// Title заголовок отчёта
func (b *BaseGenerator) Title(data *Data) string {
	switch {
	case data.Options.Title != "":
		return data.Options.Title
	case data.Name != "":
		return "Broker Plan: " + data.Name
	default:
		return "Broker Plan"
	}
}

// Author подпись отчёта
func (b *BaseGenerator) Author(data *Data) string {
	if data.Options.CompanyName != "" {
		return data.Options.CompanyName
	}
	return "Broker Optimizer"
}

// Money форматирует денежную сумму
func (b *BaseGenerator) Money(data *Data, v int64) string {
	if data.Options.Currency == "" {
		return fmt.Sprintf("%d", v)
	}
	return fmt.Sprintf("%d %s", v, data.Options.Currency)
}

// Percent форматирует проценты (значение уже в процентах)
func (b *BaseGenerator) Percent(v float64) string {
	return fmt.Sprintf("%.2f%%", v)
}

// Ratio форматирует долю 0..1 как проценты
func (b *BaseGenerator) Ratio(v float64) string {
	return fmt.Sprintf("%.1f%%", v*100)
}

// Duration форматирует длительность решения
func (b *BaseGenerator) Duration(d time.Duration) string {
	if d < time.Millisecond {
		return fmt.Sprintf("%d µs", d.Microseconds())
	}
	return fmt.Sprintf("%.2f ms", float64(d)/float64(time.Millisecond))
}

// Timestamp форматирует время
func (b *BaseGenerator) Timestamp(t time.Time) string {
	return t.Format("2006-01-02 15:04:05")
}

// Allocation матрица распределения без фиктивных строк и столбцов
func (b *BaseGenerator) Allocation(data *Data) broker.Matrix {
	return data.Result.OriginalAllocation(data.Problem)
}

// Figure итоговый показатель
type Figure struct {
	Label string
	Value int64
}

// Figures пять итоговых показателей в порядке вывода
func (b *BaseGenerator) Figures(data *Data) []Figure {
	s := data.Result.Summary
	return []Figure{
		{"Total purchase cost", s.TotalPurchase},
		{"Total transport cost", s.TotalTransport},
		{"Total revenue", s.TotalRevenue},
		{"Total profit", s.TotalProfit},
		{"Iterations", int64(data.Result.Iterations)},
	}
}

// OriginalShipments поставки только между реальными участниками
func (b *BaseGenerator) OriginalShipments(data *Data) []broker.Shipment {
	m, n := data.Problem.Suppliers(), data.Problem.Customers()
	out := make([]broker.Shipment, 0, len(data.Result.Shipments))
	for _, s := range data.Result.Shipments {
		if s.Supplier < m && s.Customer < n {
			out = append(out, s)
		}
	}
	return out
}

// SupplierLabel S1, S2, ...
func SupplierLabel(i int) string { return fmt.Sprintf("S%d", i+1) }

// CustomerLabel C1, C2, ...
func CustomerLabel(j int) string { return fmt.Sprintf("C%d", j+1) }

// ColName преобразует индекс колонки в буквенное обозначение (0 -> A, 25 -> Z, 26 -> AA)
func ColName(index int) string {
	result := ""
	for {
		result = string(rune('A'+index%26)) + result
		index = index/26 - 1
		if index < 0 {
			break
		}
	}
	return result
}

// CellByIndex возвращает адрес ячейки по индексам (колонка с 0, строка с 1)
func CellByIndex(colIndex, rowIndex int) string {
	return fmt.Sprintf("%s%d", ColName(colIndex), rowIndex)
}
