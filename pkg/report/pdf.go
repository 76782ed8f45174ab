package report

import (
	"context"
	"fmt"

	"github.com/johnfercher/maroto/v2"
	"github.com/johnfercher/maroto/v2/pkg/components/col"
	"github.com/johnfercher/maroto/v2/pkg/components/line"
	"github.com/johnfercher/maroto/v2/pkg/components/text"
	"github.com/johnfercher/maroto/v2/pkg/config"
	"github.com/johnfercher/maroto/v2/pkg/consts/align"
	"github.com/johnfercher/maroto/v2/pkg/consts/border"
	"github.com/johnfercher/maroto/v2/pkg/consts/fontstyle"
	"github.com/johnfercher/maroto/v2/pkg/core"
	"github.com/johnfercher/maroto/v2/pkg/props"

	"broker/pkg/broker"
)

// Сетка maroto из 12 колонок, одна уходит под подписи строк
const (
	pdfGridSize     = 12
	pdfMaxCustomers = pdfGridSize - 1
	pdfMaxShipments = 40
)

// PDFGenerator генератор PDF отчётов
type PDFGenerator struct {
	BaseGenerator
}

// NewPDFGenerator создаёт новый генератор
func NewPDFGenerator() *PDFGenerator {
	return &PDFGenerator{}
}

func (g *PDFGenerator) Format() Format      { return FormatPDF }
func (g *PDFGenerator) ContentType() string { return "application/pdf" }
func (g *PDFGenerator) Extension() string   { return "pdf" }

// Стили
var (
	primaryColor   = &props.Color{Red: 52, Green: 152, Blue: 219}  // #3498db
	headerBgColor  = &props.Color{Red: 44, Green: 62, Blue: 80}    // #2c3e50
	successColor   = &props.Color{Red: 39, Green: 174, Blue: 96}   // #27ae60
	dangerColor    = &props.Color{Red: 231, Green: 76, Blue: 60}   // #e74c3c
	lightGrayColor = &props.Color{Red: 236, Green: 240, Blue: 241} // #ecf0f1
	darkGrayColor  = &props.Color{Red: 127, Green: 140, Blue: 141} // #7f8c8d

	titleStyle = props.Text{
		Size:  22,
		Style: fontstyle.Bold,
		Align: align.Center,
		Color: headerBgColor,
	}

	h2Style = props.Text{
		Size:  14,
		Style: fontstyle.Bold,
		Color: headerBgColor,
		Top:   5,
	}

	normalStyle = props.Text{
		Size: 10,
	}

	boldStyle = props.Text{
		Size:  10,
		Style: fontstyle.Bold,
	}

	smallStyle = props.Text{
		Size:  8,
		Color: darkGrayColor,
	}

	metricValueStyle = props.Text{
		Size:  16,
		Style: fontstyle.Bold,
		Align: align.Center,
		Color: primaryColor,
	}

	metricLabelStyle = props.Text{
		Size:  8,
		Align: align.Center,
		Color: darkGrayColor,
		Top:   9,
	}

	tableHeaderStyle = &props.Cell{
		BackgroundColor: primaryColor,
	}

	tableHeaderTextStyle = props.Text{
		Size:  8,
		Style: fontstyle.Bold,
		Color: &props.Color{Red: 255, Green: 255, Blue: 255},
		Align: align.Center,
	}

	tableCellStyle = &props.Cell{
		BorderType:  border.Bottom,
		BorderColor: lightGrayColor,
	}

	tableCellTextStyle = props.Text{
		Size:  8,
		Align: align.Center,
	}
)

// Generate генерирует PDF отчёт
func (g *PDFGenerator) Generate(ctx context.Context, data *Data) ([]byte, error) {
	if err := data.validate(); err != nil {
		return nil, err
	}

	builder := config.NewBuilder().
		WithLeftMargin(15).
		WithTopMargin(15).
		WithRightMargin(15)
	if data.Options.PageNumbers {
		builder = builder.WithPageNumber()
	}

	m := maroto.New(builder.Build())

	g.addHeader(m, data)
	g.addSummary(m, data)

	if err := ctx.Err(); err != nil {
		return nil, err
	}

	n := data.Problem.Customers()
	g.addSection(m, "Allocation")
	g.addMatrixTable(m, g.Allocation(data), n)

	g.addSection(m, "Unit Profit")
	g.addMatrixTable(m, data.Result.ProfitMatrix, n)

	g.addSection(m, "Shipments")
	g.addShipmentsTable(m, data)

	g.addFooter(m, data)

	doc, err := m.Generate()
	if err != nil {
		return nil, fmt.Errorf("failed to generate PDF: %w", err)
	}

	return doc.GetBytes(), nil
}

func (g *PDFGenerator) addHeader(m core.Maroto, data *Data) {
	m.AddRow(15,
		text.NewCol(12, g.Title(data), titleStyle),
	)

	m.AddRow(5,
		line.NewCol(12),
	)

	m.AddRow(6,
		text.NewCol(6, fmt.Sprintf("Author: %s", g.Author(data)), smallStyle),
		text.NewCol(6, fmt.Sprintf("Generated: %s", g.Timestamp(data.GeneratedAt)),
			props.Text{Size: 8, Color: darkGrayColor, Align: align.Right}),
	)

	if data.ID != "" {
		m.AddRow(5,
			text.NewCol(12, fmt.Sprintf("Calculation: %s", data.ID), smallStyle),
		)
	}

	m.AddRow(8)
}

func (g *PDFGenerator) addSummary(m core.Maroto, data *Data) {
	s := data.Result.Summary
	a := data.Analysis

	g.addSection(m, "Summary")

	profitColor := successColor
	if s.TotalProfit < 0 {
		profitColor = dangerColor
	}
	g.addMetricCards(m, []metricCard{
		{Label: "Total profit", Value: g.Money(data, s.TotalProfit), Highlight: true, Color: profitColor},
		{Label: "Margin", Value: g.Percent(a.MarginPercent), Highlight: true},
		{Label: "Shipped units", Value: fmt.Sprintf("%d", a.ShippedUnits)},
	})

	m.AddRow(5)

	g.addKeyValueTable(m, []keyValue{
		{"Total purchase cost", g.Money(data, s.TotalPurchase)},
		{"Total transport cost", g.Money(data, s.TotalTransport)},
		{"Total revenue", g.Money(data, s.TotalRevenue)},
		{"Iterations", fmt.Sprintf("%d", data.Result.Iterations)},
		{"Allocations", fmt.Sprintf("%d", data.Result.Allocations)},
		{"Balance", string(a.BalanceApplied)},
		{"Unused supply", fmt.Sprintf("%d", a.UnusedSupply)},
		{"Unmet demand", fmt.Sprintf("%d", a.UnmetDemand)},
		{"Solve time", g.Duration(data.Result.Duration)},
	})
}

type metricCard struct {
	Label     string
	Value     string
	Highlight bool
	Color     *props.Color
}

func (g *PDFGenerator) addMetricCards(m core.Maroto, cards []metricCard) {
	if len(cards) == 0 {
		return
	}

	colSize := pdfGridSize / len(cards)
	if colSize < 2 {
		colSize = 2
	}

	var cols []core.Col
	for _, card := range cards {
		valueStyle := metricValueStyle
		if !card.Highlight {
			valueStyle.Size = 12
		}
		if card.Color != nil {
			valueStyle.Color = card.Color
		}

		cols = append(cols,
			col.New(colSize).Add(
				text.New(card.Value, valueStyle),
				text.New(card.Label, metricLabelStyle),
			),
		)
	}

	m.AddRow(20, cols...)
}

type keyValue struct {
	Key   string
	Value string
}

func (g *PDFGenerator) addKeyValueTable(m core.Maroto, items []keyValue) {
	for _, item := range items {
		m.AddRow(6,
			text.NewCol(6, item.Key, boldStyle),
			text.NewCol(6, item.Value, normalStyle),
		)
	}
}

func (g *PDFGenerator) addSection(m core.Maroto, title string) {
	m.AddRow(10,
		text.NewCol(12, title, h2Style),
	)
	m.AddRow(2,
		line.NewCol(12, props.Line{Color: primaryColor}),
	)
	m.AddRow(4)
}

// addMatrixTable рисует матрицу поставщик x покупатель, лишние столбцы отбрасываются
func (g *PDFGenerator) addMatrixTable(m core.Maroto, matrix broker.Matrix, customers int) {
	shown := min(customers, pdfMaxCustomers)
	size := pdfGridSize / (shown + 1)

	header := []core.Col{text.NewCol(size, "", tableHeaderTextStyle).WithStyle(tableHeaderStyle)}
	for j := range shown {
		header = append(header, text.NewCol(size, CustomerLabel(j), tableHeaderTextStyle).WithStyle(tableHeaderStyle))
	}
	m.AddRow(7, header...)

	for i, row := range matrix {
		cols := []core.Col{text.NewCol(size, SupplierLabel(i), tableHeaderTextStyle).WithStyle(tableHeaderStyle)}
		for j := 0; j < shown && j < len(row); j++ {
			cols = append(cols, text.NewCol(size, fmt.Sprintf("%d", row[j]), tableCellTextStyle).WithStyle(tableCellStyle))
		}
		m.AddRow(6, cols...)
	}

	if customers > shown {
		m.AddRow(6,
			text.NewCol(12, fmt.Sprintf("... and %d more customers, see the spreadsheet report", customers-shown), smallStyle),
		)
	}
}

func (g *PDFGenerator) addShipmentsTable(m core.Maroto, data *Data) {
	m.AddRow(7,
		text.NewCol(1, "#", tableHeaderTextStyle).WithStyle(tableHeaderStyle),
		text.NewCol(2, "Supplier", tableHeaderTextStyle).WithStyle(tableHeaderStyle),
		text.NewCol(2, "Customer", tableHeaderTextStyle).WithStyle(tableHeaderStyle),
		text.NewCol(2, "Quantity", tableHeaderTextStyle).WithStyle(tableHeaderStyle),
		text.NewCol(2, "Unit profit", tableHeaderTextStyle).WithStyle(tableHeaderStyle),
		text.NewCol(3, "Profit", tableHeaderTextStyle).WithStyle(tableHeaderStyle),
	)

	shipments := g.OriginalShipments(data)
	for k, s := range shipments {
		if k >= pdfMaxShipments {
			m.AddRow(6,
				text.NewCol(12, fmt.Sprintf("... and %d more rows", len(shipments)-pdfMaxShipments), smallStyle),
			)
			break
		}

		m.AddRow(6,
			text.NewCol(1, fmt.Sprintf("%d", s.Step), tableCellTextStyle).WithStyle(tableCellStyle),
			text.NewCol(2, SupplierLabel(s.Supplier), tableCellTextStyle).WithStyle(tableCellStyle),
			text.NewCol(2, CustomerLabel(s.Customer), tableCellTextStyle).WithStyle(tableCellStyle),
			text.NewCol(2, fmt.Sprintf("%d", s.Quantity), tableCellTextStyle).WithStyle(tableCellStyle),
			text.NewCol(2, fmt.Sprintf("%d", s.Profit), tableCellTextStyle).WithStyle(tableCellStyle),
			text.NewCol(3, g.Money(data, s.Quantity*s.Profit), tableCellTextStyle).WithStyle(tableCellStyle),
		)
	}

	if len(shipments) == 0 {
		m.AddRow(6, text.NewCol(12, "No shipments", smallStyle))
	}
}

func (g *PDFGenerator) addFooter(m core.Maroto, data *Data) {
	m.AddRow(10)
	m.AddRow(2,
		line.NewCol(12, props.Line{Color: lightGrayColor}),
	)
	m.AddRow(6,
		text.NewCol(12,
			fmt.Sprintf("Generated by %s | %s", g.Author(data), g.Timestamp(data.GeneratedAt)),
			props.Text{Size: 8, Color: darkGrayColor, Align: align.Center},
		),
	)
}
