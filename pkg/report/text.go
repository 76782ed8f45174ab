package report

import (
	"bytes"
	"context"
	"fmt"
	"strings"

	"broker/pkg/broker"
)

// TextGenerator консольный отчёт: матрицы распределения и удельной
// прибыли в табличном виде и пять итоговых показателей
type TextGenerator struct {
	BaseGenerator
}

// NewTextGenerator создаёт новый генератор
func NewTextGenerator() *TextGenerator {
	return &TextGenerator{}
}

func (g *TextGenerator) Format() Format      { return FormatText }
func (g *TextGenerator) ContentType() string { return "text/plain; charset=utf-8" }
func (g *TextGenerator) Extension() string   { return "txt" }

// Generate генерирует текстовый отчёт
func (g *TextGenerator) Generate(_ context.Context, data *Data) ([]byte, error) {
	if err := data.validate(); err != nil {
		return nil, err
	}

	var buf bytes.Buffer
	customers := data.Problem.Customers()

	writeTextMatrix(&buf, "Allocation Matrix:", g.Allocation(data), customers)
	buf.WriteByte('\n')
	writeTextMatrix(&buf, "Unit Profit Matrix:", data.Result.ProfitMatrix, customers)
	buf.WriteByte('\n')

	figures := g.Figures(data)
	width := 0
	for _, f := range figures {
		width = max(width, len(f.Label))
	}
	for _, f := range figures {
		fmt.Fprintf(&buf, "%-*s  %d\n", width+1, f.Label+":", f.Value)
	}

	return buf.Bytes(), nil
}

// writeTextMatrix: заголовок "    C1     C2     ", строки "S1 |v      v      "
func writeTextMatrix(buf *bytes.Buffer, title string, m broker.Matrix, customers int) {
	var header strings.Builder
	header.WriteString("    ")
	for j := range customers {
		fmt.Fprintf(&header, "C%-7d", j+1)
	}

	buf.WriteString(title + "\n")
	buf.WriteString(header.String() + "\n")
	buf.WriteString(strings.Repeat("-", header.Len()) + "\n")

	for i, row := range m {
		fmt.Fprintf(buf, "S%-2d |", i+1)
		for j := 0; j < customers && j < len(row); j++ {
			fmt.Fprintf(buf, "%-7d", row[j])
		}
		buf.WriteByte('\n')
	}
}
