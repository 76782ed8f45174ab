package report

import (
	"bytes"
	"context"
	"fmt"
	"strings"

	"broker/pkg/broker"
)

// MarkdownGenerator генератор Markdown отчётов
type MarkdownGenerator struct {
	BaseGenerator
}

// NewMarkdownGenerator создаёт новый генератор
func NewMarkdownGenerator() *MarkdownGenerator {
	return &MarkdownGenerator{}
}

func (g *MarkdownGenerator) Format() Format      { return FormatMarkdown }
func (g *MarkdownGenerator) ContentType() string { return "text/markdown; charset=utf-8" }
func (g *MarkdownGenerator) Extension() string   { return "md" }

// Generate генерирует Markdown отчёт
func (g *MarkdownGenerator) Generate(_ context.Context, data *Data) ([]byte, error) {
	if err := data.validate(); err != nil {
		return nil, err
	}

	var buf bytes.Buffer

	g.writeHeader(&buf, data)
	g.writeSummary(&buf, data)

	n := data.Problem.Customers()
	buf.WriteString("## Allocation\n\n")
	g.writeMatrix(&buf, g.Allocation(data), n)

	buf.WriteString("## Unit Profit\n\n")
	g.writeMatrix(&buf, data.Result.ProfitMatrix, n)

	g.writeShipments(&buf, data)
	g.writeParticipants(&buf, data)

	buf.WriteString("---\n\n")
	fmt.Fprintf(&buf, "*Generated by %s*\n", g.Author(data))

	return buf.Bytes(), nil
}

func (g *MarkdownGenerator) writeHeader(buf *bytes.Buffer, data *Data) {
	fmt.Fprintf(buf, "# %s\n\n", g.Title(data))

	fmt.Fprintf(buf, "- **Generated:** %s\n", g.Timestamp(data.GeneratedAt))
	fmt.Fprintf(buf, "- **Author:** %s\n", g.Author(data))
	if data.ID != "" {
		fmt.Fprintf(buf, "- **Calculation:** `%s`\n", data.ID)
	}
	buf.WriteString("\n---\n\n")
}

func (g *MarkdownGenerator) writeSummary(buf *bytes.Buffer, data *Data) {
	a := data.Analysis

	buf.WriteString("## Summary\n\n")
	buf.WriteString("| Metric | Value |\n")
	buf.WriteString("|--------|-------|\n")
	for _, f := range g.Figures(data) {
		value := fmt.Sprintf("%d", f.Value)
		if f.Label != "Iterations" {
			value = g.Money(data, f.Value)
		}
		fmt.Fprintf(buf, "| %s | %s |\n", f.Label, value)
	}
	fmt.Fprintf(buf, "| Margin | %s |\n", g.Percent(a.MarginPercent))
	fmt.Fprintf(buf, "| Shipped units | %d |\n", a.ShippedUnits)
	fmt.Fprintf(buf, "| Balance | %s |\n", a.BalanceApplied)
	buf.WriteString("\n")

	if data.Result.Summary.TotalProfit < 0 {
		buf.WriteString("> ⚠️ The plan loses money: every remaining route has negative unit profit.\n\n")
	}
}

func (g *MarkdownGenerator) writeMatrix(buf *bytes.Buffer, m broker.Matrix, customers int) {
	header := make([]string, 0, customers+1)
	header = append(header, "")
	sep := make([]string, 0, customers+1)
	sep = append(sep, "---")
	for j := range customers {
		header = append(header, CustomerLabel(j))
		sep = append(sep, "---:")
	}
	fmt.Fprintf(buf, "| %s |\n", strings.Join(header, " | "))
	fmt.Fprintf(buf, "|%s|\n", strings.Join(sep, "|"))

	for i, row := range m {
		cells := make([]string, 0, customers+1)
		cells = append(cells, "**"+SupplierLabel(i)+"**")
		for j := 0; j < customers && j < len(row); j++ {
			cells = append(cells, fmt.Sprintf("%d", row[j]))
		}
		fmt.Fprintf(buf, "| %s |\n", strings.Join(cells, " | "))
	}
	buf.WriteString("\n")
}

func (g *MarkdownGenerator) writeShipments(buf *bytes.Buffer, data *Data) {
	shipments := g.OriginalShipments(data)

	buf.WriteString("## Shipments\n\n")
	if len(shipments) == 0 {
		buf.WriteString("*No shipments*\n\n")
		return
	}

	buf.WriteString("| Step | Supplier | Customer | Quantity | Unit Profit | Profit |\n")
	buf.WriteString("|-----:|----------|----------|---------:|------------:|-------:|\n")
	for _, s := range shipments {
		fmt.Fprintf(buf, "| %d | %s | %s | %d | %d | %d |\n",
			s.Step, SupplierLabel(s.Supplier), CustomerLabel(s.Customer),
			s.Quantity, s.Profit, s.Quantity*s.Profit)
	}
	buf.WriteString("\n")
}

func (g *MarkdownGenerator) writeParticipants(buf *bytes.Buffer, data *Data) {
	a := data.Analysis

	buf.WriteString("## Suppliers\n\n")
	buf.WriteString("| Supplier | Capacity | Shipped | Unused | Utilization |\n")
	buf.WriteString("|----------|---------:|--------:|-------:|------------:|\n")
	for _, s := range a.Suppliers {
		fmt.Fprintf(buf, "| %s | %d | %d | %d | %s |\n",
			SupplierLabel(s.Index), s.Capacity, s.Shipped, s.Unused, g.Ratio(s.Utilization))
	}
	buf.WriteString("\n")

	buf.WriteString("## Customers\n\n")
	buf.WriteString("| Customer | Demand | Received | Unmet | Fill Rate |\n")
	buf.WriteString("|----------|-------:|---------:|------:|----------:|\n")
	for _, c := range a.Customers {
		fmt.Fprintf(buf, "| %s | %d | %d | %d | %s |\n",
			CustomerLabel(c.Index), c.Demand, c.Received, c.Unmet, g.Ratio(c.FillRate))
	}
	buf.WriteString("\n")
}
