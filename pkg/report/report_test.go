package report

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"broker/pkg/apperror"
	"broker/pkg/broker"
	"broker/pkg/config"
)

func exampleData(t *testing.T) *Data {
	t.Helper()

	p := &broker.Problem{
		Supply:         []int64{20, 30},
		Demand:         []int64{25, 25},
		PurchaseCosts:  []int64{5, 6},
		SellingPrices:  []int64{12, 11},
		TransportCosts: broker.Matrix{{1, 2}, {2, 1}},
	}
	res, err := broker.Solve(p)
	if err != nil {
		t.Fatalf("Solve() error = %v", err)
	}
	data, err := NewData(p, res, Options{})
	if err != nil {
		t.Fatalf("NewData() error = %v", err)
	}
	data.GeneratedAt = time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	return data
}

// unbalancedData: спрос превышает предложение, добавляется фиктивный поставщик
func unbalancedData(t *testing.T) *Data {
	t.Helper()

	p := &broker.Problem{
		Supply:         []int64{10},
		Demand:         []int64{6, 6},
		PurchaseCosts:  []int64{2},
		SellingPrices:  []int64{5, 4},
		TransportCosts: broker.Matrix{{1, 1}},
	}
	res, err := broker.Solve(p)
	if err != nil {
		t.Fatalf("Solve() error = %v", err)
	}
	data, err := NewData(p, res, Options{Currency: "USD"})
	if err != nil {
		t.Fatalf("NewData() error = %v", err)
	}
	return data
}

func TestParseFormat(t *testing.T) {
	tests := []struct {
		in      string
		want    Format
		wantErr bool
	}{
		{"text", FormatText, false},
		{"TXT", FormatText, false},
		{" csv ", FormatCSV, false},
		{"excel", FormatExcel, false},
		{"xlsx", FormatExcel, false},
		{"pdf", FormatPDF, false},
		{"markdown", FormatMarkdown, false},
		{"md", FormatMarkdown, false},
		{"json", FormatJSON, false},
		{"html", "", true},
		{"", "", true},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParseFormat(tt.in)
			if (err != nil) != tt.wantErr {
				t.Fatalf("ParseFormat(%q) error = %v, wantErr %v", tt.in, err, tt.wantErr)
			}
			if tt.wantErr && !apperror.Is(err, apperror.CodeUnsupportedFormat) {
				t.Errorf("error code = %v, want UNSUPPORTED_FORMAT", apperror.Code(err))
			}
			if got != tt.want {
				t.Errorf("ParseFormat(%q) = %q, want %q", tt.in, got, tt.want)
			}
		})
	}
}

func TestOptionsFromConfig(t *testing.T) {
	opts := OptionsFromConfig(config.ReportConfig{
		CompanyName: "Acme",
		Currency:    "EUR",
		PageNumbers: true,
	})
	if opts.CompanyName != "Acme" || opts.Currency != "EUR" || !opts.PageNumbers {
		t.Errorf("OptionsFromConfig() = %+v", opts)
	}
}

func TestNewData_Errors(t *testing.T) {
	if _, err := NewData(nil, &broker.Result{}, Options{}); !apperror.Is(err, apperror.CodeNilInput) {
		t.Errorf("nil problem: error = %v, want NIL_INPUT", err)
	}

	bad := &broker.Problem{
		Supply:         []int64{1},
		Demand:         []int64{1},
		PurchaseCosts:  []int64{1, 2},
		SellingPrices:  []int64{1},
		TransportCosts: broker.Matrix{{1}},
	}
	if _, err := NewData(bad, &broker.Result{}, Options{}); !apperror.Is(err, apperror.CodeShapeMismatch) {
		t.Errorf("bad shape: error = %v, want SHAPE_MISMATCH", err)
	}
}

func TestBaseGenerator(t *testing.T) {
	var b BaseGenerator
	data := exampleData(t)

	if got := b.Title(data); got != "Broker Plan" {
		t.Errorf("Title() = %q", got)
	}
	data.Name = "March"
	if got := b.Title(data); got != "Broker Plan: March" {
		t.Errorf("Title() with name = %q", got)
	}
	data.Options.Title = "Custom"
	if got := b.Title(data); got != "Custom" {
		t.Errorf("Title() with option = %q", got)
	}

	if got := b.Author(data); got != "Broker Optimizer" {
		t.Errorf("Author() = %q", got)
	}
	if got := b.Money(data, 235); got != "235" {
		t.Errorf("Money() = %q", got)
	}
	data.Options.Currency = "USD"
	if got := b.Money(data, 235); got != "235 USD" {
		t.Errorf("Money() with currency = %q", got)
	}

	if got := b.Percent(41.228); got != "41.23%" {
		t.Errorf("Percent() = %q", got)
	}
	if got := b.Ratio(0.5); got != "50.0%" {
		t.Errorf("Ratio() = %q", got)
	}
	if got := b.Duration(500 * time.Microsecond); got != "500 µs" {
		t.Errorf("Duration() = %q", got)
	}
	if got := b.Duration(1500 * time.Microsecond); got != "1.50 ms" {
		t.Errorf("Duration() = %q", got)
	}

	figures := b.Figures(data)
	want := []int64{280, 55, 570, 235, 4}
	if len(figures) != len(want) {
		t.Fatalf("Figures() len = %d", len(figures))
	}
	for i, f := range figures {
		if f.Value != want[i] {
			t.Errorf("%s = %d, want %d", f.Label, f.Value, want[i])
		}
	}
}

func TestBaseGenerator_DropsDummy(t *testing.T) {
	var b BaseGenerator
	data := unbalancedData(t)

	if rows := len(data.Result.Allocation); rows != 2 {
		t.Fatalf("balanced allocation rows = %d, want 2", rows)
	}
	if rows := len(b.Allocation(data)); rows != 1 {
		t.Errorf("Allocation() rows = %d, want 1", rows)
	}
	for _, s := range b.OriginalShipments(data) {
		if s.Supplier != 0 {
			t.Errorf("shipment from dummy supplier: %+v", s)
		}
	}
}

func TestColName(t *testing.T) {
	tests := []struct {
		index int
		want  string
	}{
		{0, "A"},
		{25, "Z"},
		{26, "AA"},
		{27, "AB"},
		{701, "ZZ"},
		{702, "AAA"},
	}
	for _, tt := range tests {
		if got := ColName(tt.index); got != tt.want {
			t.Errorf("ColName(%d) = %q, want %q", tt.index, got, tt.want)
		}
	}
	if got := CellByIndex(1, 3); got != "B3" {
		t.Errorf("CellByIndex(1, 3) = %q", got)
	}
}

func TestFactory(t *testing.T) {
	f := NewFactory()

	for _, format := range Formats() {
		g, err := f.Get(format)
		if err != nil {
			t.Fatalf("Get(%s) error = %v", format, err)
		}
		if g.Format() != format {
			t.Errorf("Get(%s).Format() = %s", format, g.Format())
		}
		if g.ContentType() == "" || g.Extension() == "" {
			t.Errorf("%s: empty content type or extension", format)
		}
	}

	if _, err := f.Get("html"); !apperror.Is(err, apperror.CodeUnsupportedFormat) {
		t.Errorf("Get(html) error = %v", err)
	}
}

func TestFactory_Generate(t *testing.T) {
	f := NewFactory()
	ctx := context.Background()

	for _, format := range Formats() {
		t.Run(string(format), func(t *testing.T) {
			out, g, err := f.Generate(ctx, format, exampleData(t))
			if err != nil {
				t.Fatalf("Generate() error = %v", err)
			}
			if len(out) == 0 {
				t.Error("empty output")
			}
			if g.Format() != format {
				t.Errorf("generator format = %s", g.Format())
			}
		})
	}
}

func TestFactory_GenerateErrors(t *testing.T) {
	f := NewFactory()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, _, err := f.Generate(ctx, FormatText, exampleData(t)); !apperror.Is(err, apperror.CodeCanceled) {
		t.Errorf("canceled: error = %v, want CANCELED", err)
	}

	_, _, err := f.Generate(context.Background(), FormatText, &Data{})
	if !apperror.Is(err, apperror.CodeReportFailed) {
		t.Errorf("empty data: error = %v, want REPORT_FAILED", err)
	}

	f.Register(failingGenerator{NewJSONGenerator()})
	_, _, err = f.Generate(context.Background(), FormatJSON, exampleData(t))
	if !apperror.Is(err, apperror.CodeReportFailed) {
		t.Errorf("failing generator: error = %v, want REPORT_FAILED", err)
	}
	if !errors.Is(err, errBoom) {
		t.Errorf("cause lost: %v", err)
	}
}

var errBoom = errors.New("boom")

type failingGenerator struct{ *JSONGenerator }

func (failingGenerator) Generate(context.Context, *Data) ([]byte, error) { return nil, errBoom }

func TestTextGenerator_WorkedExample(t *testing.T) {
	out, err := NewTextGenerator().Generate(context.Background(), exampleData(t))
	if err != nil {
		t.Fatalf("Generate() error = %v", err)
	}

	want := strings.Join([]string{
		"Allocation Matrix:",
		"    C1      C2      ",
		"--------------------",
		"S1  |20     0      ",
		"S2  |5      25     ",
		"",
		"Unit Profit Matrix:",
		"    C1      C2      ",
		"--------------------",
		"S1  |6      4      ",
		"S2  |4      4      ",
		"",
		"Total purchase cost:   280",
		"Total transport cost:  55",
		"Total revenue:         570",
		"Total profit:          235",
		"Iterations:            4",
		"",
	}, "\n")

	if string(out) != want {
		t.Errorf("Generate() =\n%s\nwant\n%s", out, want)
	}
}

func TestTextGenerator_HidesDummy(t *testing.T) {
	out, err := NewTextGenerator().Generate(context.Background(), unbalancedData(t))
	if err != nil {
		t.Fatalf("Generate() error = %v", err)
	}
	if strings.Contains(string(out), "S2") {
		t.Errorf("dummy supplier rendered:\n%s", out)
	}
}

func TestTextGenerator_NilData(t *testing.T) {
	if _, err := NewTextGenerator().Generate(context.Background(), nil); !apperror.Is(err, apperror.CodeReportFailed) {
		t.Errorf("error = %v, want REPORT_FAILED", err)
	}
}
