package report

import (
	"bytes"
	"context"
	"encoding/csv"
	"fmt"
	"strconv"

	"broker/pkg/broker"
)

// CSVGenerator генератор CSV отчётов. Секции разделены пустой строкой.
type CSVGenerator struct {
	BaseGenerator
}

// NewCSVGenerator создаёт новый генератор
func NewCSVGenerator() *CSVGenerator {
	return &CSVGenerator{}
}

func (g *CSVGenerator) Format() Format      { return FormatCSV }
func (g *CSVGenerator) ContentType() string { return "text/csv; charset=utf-8" }
func (g *CSVGenerator) Extension() string   { return "csv" }

// csvWriter обёртка для отслеживания ошибок
type csvWriter struct {
	w   *csv.Writer
	err error
}

func (cw *csvWriter) Write(record ...string) {
	if cw.err != nil {
		return
	}
	cw.err = cw.w.Write(record)
}

func (cw *csvWriter) Flush() error {
	if cw.err != nil {
		return cw.err
	}
	cw.w.Flush()
	return cw.w.Error()
}

// Generate генерирует CSV отчёт
func (g *CSVGenerator) Generate(_ context.Context, data *Data) ([]byte, error) {
	if err := data.validate(); err != nil {
		return nil, err
	}

	var buf bytes.Buffer
	cw := &csvWriter{w: csv.NewWriter(&buf)}

	cw.Write("Summary")
	cw.Write("Metric", "Value")
	for _, f := range g.Figures(data) {
		cw.Write(f.Label, strconv.FormatInt(f.Value, 10))
	}
	cw.Write("Margin %", strconv.FormatFloat(data.Analysis.MarginPercent, 'f', 2, 64))
	cw.Write("Balance", string(data.Result.Balanced.Kind))
	cw.Write()

	customers := data.Problem.Customers()
	g.writeMatrix(cw, "Allocation", g.Allocation(data), customers)
	cw.Write()
	g.writeMatrix(cw, "Unit Profit", data.Result.ProfitMatrix, customers)
	cw.Write()

	cw.Write("Shipments")
	cw.Write("Step", "Supplier", "Customer", "Quantity", "Unit Profit", "Unit Transport", "Profit")
	for _, s := range g.OriginalShipments(data) {
		cw.Write(
			strconv.Itoa(s.Step),
			SupplierLabel(s.Supplier),
			CustomerLabel(s.Customer),
			strconv.FormatInt(s.Quantity, 10),
			strconv.FormatInt(s.Profit, 10),
			strconv.FormatInt(s.Cost, 10),
			strconv.FormatInt(s.Quantity*s.Profit, 10),
		)
	}

	if err := cw.Flush(); err != nil {
		return nil, fmt.Errorf("csv write error: %w", err)
	}
	return buf.Bytes(), nil
}

func (g *CSVGenerator) writeMatrix(cw *csvWriter, title string, m broker.Matrix, customers int) {
	cw.Write(title)

	header := []string{""}
	for j := range customers {
		header = append(header, CustomerLabel(j))
	}
	cw.Write(header...)

	for i, row := range m {
		rec := []string{SupplierLabel(i)}
		for j := 0; j < customers && j < len(row); j++ {
			rec = append(rec, strconv.FormatInt(row[j], 10))
		}
		cw.Write(rec...)
	}
}
