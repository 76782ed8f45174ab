// Package broker implements the greedy profit heuristic for the broker
// variant of the transportation problem.
//
// # Pipeline
//
// Data flows strictly forward, every stage returning freshly allocated values:
//
//	ProfitMatrix -> Balance -> Allocate -> Summarize
//
// Solve runs the whole chain and either returns a complete Result or the
// first error.
//
// # Optimality
//
// Allocate is a single-pass, profit-priority greedy heuristic. It is not a
// MODI or stepping-stone solver and gives no optimality certificate.
//
// # Determinism
//
// Routes are ordered by profit desc, transport cost asc, supplier asc,
// customer asc. The same input always yields the same allocation and the
// same iteration count.
//
// # Thread Safety
//
// All functions are pure. They never mutate their arguments and may be
// called concurrently on independent inputs.
//
// # Example Usage
//
//	p := &broker.Problem{
//	    Supply:         []int64{20, 30},
//	    Demand:         []int64{25, 25},
//	    PurchaseCosts:  []int64{5, 6},
//	    SellingPrices:  []int64{12, 11},
//	    TransportCosts: broker.Matrix{{1, 2}, {2, 1}},
//	}
//	res, err := broker.Solve(p)
//	if err != nil {
//	    return err
//	}
//	fmt.Println(res.Summary.TotalProfit) // 235
package broker

import (
	"fmt"
	"math"

	"broker/pkg/apperror"
)

// Matrix is a rectangular table of integers, rows = suppliers,
// columns = customers.
type Matrix [][]int64

// NewMatrix returns a zero-filled rows×cols matrix.
func NewMatrix(rows, cols int) Matrix {
	m := make(Matrix, rows)
	for i := range m {
		m[i] = make([]int64, cols)
	}
	return m
}

// Clone returns a deep copy of m.
func (m Matrix) Clone() Matrix {
	if m == nil {
		return nil
	}
	out := make(Matrix, len(m))
	for i, row := range m {
		out[i] = cloneVector(row)
	}
	return out
}

// RowSum returns the sum of row i.
func (m Matrix) RowSum(i int) int64 {
	return sum(m[i])
}

// ColSum returns the sum of column j over all rows long enough to have it.
func (m Matrix) ColSum(j int) int64 {
	var total int64
	for _, row := range m {
		if j < len(row) {
			total += row[j]
		}
	}
	return total
}

// checkShape verifies that m is rows×cols. field names the matrix in errors.
func (m Matrix) checkShape(rows, cols int, field string) error {
	if len(m) != rows {
		return apperror.NewWithField(apperror.CodeShapeMismatch,
			fmt.Sprintf("matrix has %d rows, want %d", len(m), rows), field).
			WithDetails("rows", len(m)).
			WithDetails("want_rows", rows)
	}
	for i, row := range m {
		if len(row) != cols {
			return apperror.NewWithField(apperror.CodeShapeMismatch,
				fmt.Sprintf("row %d has %d columns, want %d", i, len(row), cols),
				fmt.Sprintf("%s[%d]", field, i)).
				WithDetails("cols", len(row)).
				WithDetails("want_cols", cols)
		}
	}
	return nil
}

// checkCovers verifies that m has at least rows rows of at least cols
// columns each. A dummy row or column may follow.
func (m Matrix) checkCovers(rows, cols int, field string) error {
	if len(m) < rows {
		return apperror.NewWithField(apperror.CodeShapeMismatch,
			fmt.Sprintf("matrix has %d rows, want at least %d", len(m), rows), field)
	}
	for i := range rows {
		if len(m[i]) < cols {
			return apperror.NewWithField(apperror.CodeShapeMismatch,
				fmt.Sprintf("row %d has %d columns, want at least %d", i, len(m[i]), cols),
				fmt.Sprintf("%s[%d]", field, i))
		}
	}
	return nil
}

// Problem is the raw broker problem as supplied by the caller.
type Problem struct {
	Supply         []int64 `json:"supply"`
	Demand         []int64 `json:"demand"`
	PurchaseCosts  []int64 `json:"purchase_costs"`
	SellingPrices  []int64 `json:"selling_prices"`
	TransportCosts Matrix  `json:"transport_costs"`
}

// Suppliers returns the number of suppliers.
func (p *Problem) Suppliers() int {
	return len(p.Supply)
}

// Customers returns the number of customers.
func (p *Problem) Customers() int {
	return len(p.Demand)
}

// TotalSupply returns the sum of the supply vector.
func (p *Problem) TotalSupply() int64 {
	return sum(p.Supply)
}

// TotalDemand returns the sum of the demand vector.
func (p *Problem) TotalDemand() int64 {
	return sum(p.Demand)
}

// Clone returns a deep copy of p.
func (p *Problem) Clone() *Problem {
	if p == nil {
		return nil
	}
	return &Problem{
		Supply:         cloneVector(p.Supply),
		Demand:         cloneVector(p.Demand),
		PurchaseCosts:  cloneVector(p.PurchaseCosts),
		SellingPrices:  cloneVector(p.SellingPrices),
		TransportCosts: p.TransportCosts.Clone(),
	}
}

// CheckShape verifies every index-alignment invariant of the problem:
// purchase costs align with supply, selling prices with demand and the
// transport matrix is |supply|×|demand|.
func (p *Problem) CheckShape() error {
	if p == nil {
		return apperror.ErrNilProblem
	}
	if len(p.PurchaseCosts) != len(p.Supply) {
		return apperror.NewWithField(apperror.CodeShapeMismatch,
			fmt.Sprintf("%d purchase costs for %d suppliers", len(p.PurchaseCosts), len(p.Supply)),
			"purchase_costs")
	}
	if len(p.SellingPrices) != len(p.Demand) {
		return apperror.NewWithField(apperror.CodeShapeMismatch,
			fmt.Sprintf("%d selling prices for %d customers", len(p.SellingPrices), len(p.Demand)),
			"selling_prices")
	}
	return p.TransportCosts.checkShape(len(p.Supply), len(p.Demand), "transport_costs")
}

// CheckMagnitude verifies that no total derived from p can leave the int64
// range. Shipped volume never exceeds min(total supply, total demand), and
// every per-unit amount in the summary is bounded by the largest selling
// price plus the largest purchase and transport costs, so their product
// bounds revenue, costs and profit alike. p must already pass CheckShape.
func (p *Problem) CheckMagnitude() error {
	supply, ok := sumAbs(p.Supply)
	if !ok {
		return overflowError("supply", "total supply")
	}
	demand, ok := sumAbs(p.Demand)
	if !ok {
		return overflowError("demand", "total demand")
	}
	volume := min(supply, demand)

	selling, ok := maxAbs(p.SellingPrices)
	purchase, ok2 := maxAbs(p.PurchaseCosts)
	ok = ok && ok2
	var transport int64
	for _, row := range p.TransportCosts {
		c, rowOK := maxAbs(row)
		ok = ok && rowOK
		transport = max(transport, c)
	}
	unit, ok2 := addChecked(selling, purchase)
	ok = ok && ok2
	unit, ok2 = addChecked(unit, transport)
	ok = ok && ok2
	if !ok {
		return overflowError("selling_prices", "per-unit amount")
	}

	if volume > 0 && unit > math.MaxInt64/volume {
		return apperror.New(apperror.CodeValueOverflow,
			fmt.Sprintf("volume %d at up to %d per unit overflows the summary totals", volume, unit)).
			WithDetails("volume", volume).
			WithDetails("unit_bound", unit)
	}
	return nil
}

func overflowError(field, what string) error {
	return apperror.NewWithField(apperror.CodeValueOverflow,
		what+" overflows int64", field)
}

func cloneVector(v []int64) []int64 {
	if v == nil {
		return nil
	}
	out := make([]int64, len(v))
	copy(out, v)
	return out
}

// sumAbs adds absolute values, ok is false on overflow.
func sumAbs(v []int64) (int64, bool) {
	var total int64
	for _, x := range v {
		a, ok := abs(x)
		if !ok {
			return 0, false
		}
		if total, ok = addChecked(total, a); !ok {
			return 0, false
		}
	}
	return total, true
}

func maxAbs(v []int64) (int64, bool) {
	var m int64
	for _, x := range v {
		a, ok := abs(x)
		if !ok {
			return 0, false
		}
		m = max(m, a)
	}
	return m, true
}

func abs(x int64) (int64, bool) {
	if x == math.MinInt64 {
		return 0, false
	}
	if x < 0 {
		return -x, true
	}
	return x, true
}

// addChecked adds two non-negative values.
func addChecked(a, b int64) (int64, bool) {
	if b > math.MaxInt64-a {
		return 0, false
	}
	return a + b, true
}

func sum(v []int64) int64 {
	var total int64
	for _, x := range v {
		total += x
	}
	return total
}
