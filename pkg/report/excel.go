package report

import (
	"bytes"
	"context"

	"github.com/xuri/excelize/v2"

	"broker/pkg/broker"
)

// Имена листов XLSX отчёта
const (
	SheetSummary    = "Summary"
	SheetAllocation = "Allocation"
	SheetProfit     = "Unit Profit"
	SheetShipments  = "Shipments"
	SheetInput      = "Input"
)

// ExcelGenerator генератор Excel отчётов
type ExcelGenerator struct {
	BaseGenerator
}

// NewExcelGenerator создаёт новый генератор
func NewExcelGenerator() *ExcelGenerator {
	return &ExcelGenerator{}
}

func (g *ExcelGenerator) Format() Format { return FormatExcel }
func (g *ExcelGenerator) ContentType() string {
	return "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"
}
func (g *ExcelGenerator) Extension() string { return "xlsx" }

// sheetWriter запоминает первую ошибку excelize
type sheetWriter struct {
	f      *excelize.File
	sheet  string
	header int
	err    error
}

func (w *sheetWriter) set(col, row int, value any) {
	if w.err != nil {
		return
	}
	w.err = w.f.SetCellValue(w.sheet, CellByIndex(col, row), value)
}

func (w *sheetWriter) headerRow(row int, values ...string) {
	for i, v := range values {
		w.set(i, row, v)
	}
	if w.err == nil && len(values) > 0 {
		w.err = w.f.SetCellStyle(w.sheet, CellByIndex(0, row), CellByIndex(len(values)-1, row), w.header)
	}
}

// Generate генерирует Excel отчёт
func (g *ExcelGenerator) Generate(_ context.Context, data *Data) ([]byte, error) {
	if err := data.validate(); err != nil {
		return nil, err
	}

	f := excelize.NewFile()
	defer f.Close()

	headerStyle, err := f.NewStyle(&excelize.Style{
		Font:      &excelize.Font{Bold: true, Color: "FFFFFF"},
		Fill:      excelize.Fill{Type: "pattern", Color: []string{"4472C4"}, Pattern: 1},
		Alignment: &excelize.Alignment{Horizontal: "center"},
	})
	if err != nil {
		return nil, err
	}

	writers := []func(*sheetWriter, *Data){
		g.writeSummary,
		g.writeAllocation,
		g.writeProfit,
		g.writeShipments,
		g.writeInput,
	}
	sheets := []string{SheetSummary, SheetAllocation, SheetProfit, SheetShipments, SheetInput}

	for i, name := range sheets {
		if _, err := f.NewSheet(name); err != nil {
			return nil, err
		}
		w := &sheetWriter{f: f, sheet: name, header: headerStyle}
		writers[i](w, data)
		if w.err != nil {
			return nil, w.err
		}
	}

	// Удаляем дефолтный лист
	if err := f.DeleteSheet("Sheet1"); err != nil {
		return nil, err
	}
	if idx, err := f.GetSheetIndex(SheetSummary); err == nil {
		f.SetActiveSheet(idx)
	}

	var buf bytes.Buffer
	if err := f.Write(&buf); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func (g *ExcelGenerator) writeSummary(w *sheetWriter, data *Data) {
	w.set(0, 1, g.Title(data))
	w.set(0, 2, "Generated")
	w.set(1, 2, g.Timestamp(data.GeneratedAt))

	w.headerRow(4, "Metric", "Value")
	row := 5
	for _, fig := range g.Figures(data) {
		w.set(0, row, fig.Label)
		w.set(1, row, fig.Value)
		row++
	}

	a := data.Analysis
	w.set(0, row, "Margin %")
	w.set(1, row, a.MarginPercent)
	row++
	w.set(0, row, "Shipped units")
	w.set(1, row, a.ShippedUnits)
	row++
	w.set(0, row, "Unused supply")
	w.set(1, row, a.UnusedSupply)
	row++
	w.set(0, row, "Unmet demand")
	w.set(1, row, a.UnmetDemand)
	row++
	w.set(0, row, "Balance")
	w.set(1, row, string(a.BalanceApplied))
	row += 2

	w.headerRow(row, "Supplier", "Capacity", "Shipped", "Unused", "Utilization")
	row++
	for _, s := range a.Suppliers {
		w.set(0, row, SupplierLabel(s.Index))
		w.set(1, row, s.Capacity)
		w.set(2, row, s.Shipped)
		w.set(3, row, s.Unused)
		w.set(4, row, s.Utilization)
		row++
	}
	row++

	w.headerRow(row, "Customer", "Demand", "Received", "Unmet", "Fill Rate")
	row++
	for _, c := range a.Customers {
		w.set(0, row, CustomerLabel(c.Index))
		w.set(1, row, c.Demand)
		w.set(2, row, c.Received)
		w.set(3, row, c.Unmet)
		w.set(4, row, c.FillRate)
		row++
	}
}

func (g *ExcelGenerator) writeMatrix(w *sheetWriter, m broker.Matrix, customers int) {
	header := []string{""}
	for j := range customers {
		header = append(header, CustomerLabel(j))
	}
	w.headerRow(1, header...)

	for i, row := range m {
		w.set(0, i+2, SupplierLabel(i))
		for j := 0; j < customers && j < len(row); j++ {
			w.set(j+1, i+2, row[j])
		}
	}
}

func (g *ExcelGenerator) writeAllocation(w *sheetWriter, data *Data) {
	g.writeMatrix(w, g.Allocation(data), data.Problem.Customers())
}

func (g *ExcelGenerator) writeProfit(w *sheetWriter, data *Data) {
	g.writeMatrix(w, data.Result.ProfitMatrix, data.Problem.Customers())
}

func (g *ExcelGenerator) writeShipments(w *sheetWriter, data *Data) {
	w.headerRow(1, "Step", "Supplier", "Customer", "Quantity", "Unit Profit", "Unit Transport", "Profit")
	for i, s := range g.OriginalShipments(data) {
		row := i + 2
		w.set(0, row, s.Step)
		w.set(1, row, SupplierLabel(s.Supplier))
		w.set(2, row, CustomerLabel(s.Customer))
		w.set(3, row, s.Quantity)
		w.set(4, row, s.Profit)
		w.set(5, row, s.Cost)
		w.set(6, row, s.Quantity*s.Profit)
	}
}

// writeInput повторяет раскладку dataset: Supply, Purchase, Demand, Selling, транспорт
func (g *ExcelGenerator) writeInput(w *sheetWriter, data *Data) {
	p := data.Problem
	vectors := []struct {
		label  string
		values []int64
	}{
		{"Supply", p.Supply},
		{"Purchase", p.PurchaseCosts},
		{"Demand", p.Demand},
		{"Selling", p.SellingPrices},
	}

	row := 1
	for _, v := range vectors {
		w.set(0, row, v.label)
		for k, x := range v.values {
			w.set(k+1, row, x)
		}
		row++
	}
	row++

	header := []string{"Transport"}
	for j := range p.Customers() {
		header = append(header, CustomerLabel(j))
	}
	w.headerRow(row, header...)
	row++
	for i, r := range p.TransportCosts {
		w.set(0, row, SupplierLabel(i))
		for j, x := range r {
			w.set(j+1, row, x)
		}
		row++
	}
}
