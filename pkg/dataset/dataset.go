// Package dataset reads and writes broker problems as CSV files.
//
// Layout, one record per line, the first cell of every record is a label:
//
//	Supply,20,30
//	Purchase,5,6
//	Demand,25,25
//	Selling,12,11
//	,C1,C2
//	S1,1,2
//	S2,2,1
//
// The supplier count is taken from the supply record, the customer count
// from the demand record. The fifth record is a header and is ignored on
// read. Empty lines are skipped and extra trailing cells are ignored.
package dataset

import (
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	"broker/pkg/apperror"
	"broker/pkg/broker"
)

const (
	rowSupply = iota
	rowPurchase
	rowDemand
	rowSelling
	rowHeader
	rowTransport

	minRows = rowTransport + 1
)

// Labels written by Write.
const (
	LabelSupply   = "Supply"
	LabelPurchase = "Purchase"
	LabelDemand   = "Demand"
	LabelSelling  = "Selling"
)

// Read parses a problem from CSV.
func Read(r io.Reader) (*broker.Problem, error) {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = -1
	cr.TrimLeadingSpace = true

	records, err := cr.ReadAll()
	if err != nil {
		return nil, apperror.Wrap(err, apperror.CodeInvalidArgument, "malformed csv")
	}

	if len(records) < minRows {
		return nil, apperror.Newf(apperror.CodeIncompleteData,
			"incomplete input: %d records, want at least %d", len(records), minRows)
	}

	suppliers := len(records[rowSupply]) - 1
	customers := len(records[rowDemand]) - 1

	p := &broker.Problem{}

	if p.Supply, err = parseRow(records, rowSupply, suppliers, "supply"); err != nil {
		return nil, err
	}
	if p.PurchaseCosts, err = parseRow(records, rowPurchase, suppliers, "purchase_costs"); err != nil {
		return nil, err
	}
	if p.Demand, err = parseRow(records, rowDemand, customers, "demand"); err != nil {
		return nil, err
	}
	if p.SellingPrices, err = parseRow(records, rowSelling, customers, "selling_prices"); err != nil {
		return nil, err
	}

	p.TransportCosts = make(broker.Matrix, suppliers)
	for i := range suppliers {
		line := rowTransport + i
		if line >= len(records) {
			return nil, apperror.NewWithField(apperror.CodeIncompleteData,
				fmt.Sprintf("missing transport cost row for supplier %d", i+1),
				fmt.Sprintf("transport_costs[%d]", i))
		}
		row, err := parseRow(records, line, customers, fmt.Sprintf("transport_costs[%d]", i))
		if err != nil {
			return nil, err
		}
		p.TransportCosts[i] = row
	}

	return p, nil
}

// Write encodes p in the layout accepted by Read.
func Write(w io.Writer, p *broker.Problem) error {
	if p == nil {
		return apperror.ErrNilProblem
	}
	if err := p.CheckShape(); err != nil {
		return err
	}

	cw := csv.NewWriter(w)

	records := [][]string{
		labeled(LabelSupply, p.Supply),
		labeled(LabelPurchase, p.PurchaseCosts),
		labeled(LabelDemand, p.Demand),
		labeled(LabelSelling, p.SellingPrices),
		header(p.Customers()),
	}
	for i, row := range p.TransportCosts {
		records = append(records, labeled(fmt.Sprintf("S%d", i+1), row))
	}

	if err := cw.WriteAll(records); err != nil {
		return fmt.Errorf("write csv: %w", err)
	}
	return nil
}

// LoadFile reads a problem from path.
func LoadFile(path string) (*broker.Problem, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", path, err)
	}
	defer f.Close()

	return Read(f)
}

// SaveFile writes p to path, truncating an existing file.
func SaveFile(path string, p *broker.Problem) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create %s: %w", path, err)
	}

	if err := Write(f, p); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}

// Sample returns a small balanced problem.
func Sample() *broker.Problem {
	return &broker.Problem{
		Supply:         []int64{20, 30},
		Demand:         []int64{25, 25},
		PurchaseCosts:  []int64{5, 6},
		SellingPrices:  []int64{12, 11},
		TransportCosts: broker.Matrix{{1, 2}, {2, 1}},
	}
}

func parseRow(records [][]string, line, n int, field string) ([]int64, error) {
	rec := records[line]
	if len(rec)-1 < n {
		return nil, apperror.NewWithField(apperror.CodeIncompleteData,
			fmt.Sprintf("record %d has %d values, want %d", line+1, len(rec)-1, n), field)
	}

	out := make([]int64, n)
	for k := range n {
		raw := strings.TrimSpace(rec[k+1])
		v, err := strconv.ParseInt(raw, 10, 64)
		if err != nil {
			return nil, apperror.Wrap(err, apperror.CodeNonNumericInput,
				fmt.Sprintf("record %d column %d: %q is not an integer", line+1, k+2, raw)).
				WithField(fmt.Sprintf("%s[%d]", field, k))
		}
		if v < 0 {
			return nil, apperror.NewWithField(apperror.CodeNegativeValue,
				fmt.Sprintf("record %d column %d: negative value %d", line+1, k+2, v),
				fmt.Sprintf("%s[%d]", field, k))
		}
		out[k] = v
	}
	return out, nil
}

func labeled(label string, values []int64) []string {
	rec := make([]string, 0, len(values)+1)
	rec = append(rec, label)
	for _, v := range values {
		rec = append(rec, strconv.FormatInt(v, 10))
	}
	return rec
}

func header(customers int) []string {
	rec := make([]string, 0, customers+1)
	rec = append(rec, "")
	for j := range customers {
		rec = append(rec, fmt.Sprintf("C%d", j+1))
	}
	return rec
}
