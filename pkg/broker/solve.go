package broker

import (
	"context"
	"time"

	"broker/pkg/apperror"
)

// Result is the full output of the pipeline.
type Result struct {
	ProfitMatrix Matrix     `json:"profit_matrix"`
	Balanced     *Balanced  `json:"balanced"`
	Allocation   Matrix     `json:"allocation"`
	Iterations   int        `json:"iterations"`
	Allocations  int        `json:"allocations"`
	Shipments    []Shipment `json:"shipments"`
	Summary      Summary    `json:"summary"`
	// Duration is the wall time of the pipeline, zero when restored from cache.
	Duration time.Duration `json:"duration_ns"`
}

// OriginalAllocation returns the allocation trimmed to the original
// suppliers×customers, dropping any dummy row or column.
func (r *Result) OriginalAllocation(p *Problem) Matrix {
	out := NewMatrix(len(p.Supply), len(p.Demand))
	for i := range out {
		copy(out[i], r.Allocation[i])
	}
	return out
}

// CheckShape verifies that r can describe p: the balanced problem is present
// and the allocation and profit matrices cover every real supplier and
// customer. Results decoded from storage should pass it before Analyze.
func (r *Result) CheckShape(p *Problem) error {
	if err := p.CheckShape(); err != nil {
		return err
	}
	if r == nil {
		return apperror.New(apperror.CodeNilInput, "result is nil")
	}
	if r.Balanced == nil {
		return apperror.NewWithField(apperror.CodeShapeMismatch, "result has no balanced problem", "balanced")
	}
	m, n := p.Suppliers(), p.Customers()
	if err := r.Allocation.checkCovers(m, n, "allocation"); err != nil {
		return err
	}
	return r.ProfitMatrix.checkCovers(m, n, "profit_matrix")
}

// Solve runs ProfitMatrix, Balance, Allocate and Summarize in order.
func Solve(p *Problem) (*Result, error) {
	return SolveContext(context.Background(), p)
}

// SolveContext is Solve with cancellation. Either every stage completes or
// the first error is returned; there is no partial result.
func SolveContext(ctx context.Context, p *Problem) (*Result, error) {
	start := time.Now()

	if err := p.CheckShape(); err != nil {
		return nil, err
	}
	if err := p.CheckMagnitude(); err != nil {
		return nil, err
	}

	profit, err := ProfitMatrix(p.PurchaseCosts, p.SellingPrices, p.TransportCosts)
	if err != nil {
		return nil, err
	}

	balanced, err := Balance(p.Supply, p.Demand, profit, p.TransportCosts)
	if err != nil {
		return nil, err
	}

	alloc, err := AllocateContext(ctx, balanced)
	if err != nil {
		return nil, err
	}

	return &Result{
		ProfitMatrix: profit,
		Balanced:     balanced,
		Allocation:   alloc.Matrix,
		Iterations:   alloc.Iterations,
		Allocations:  alloc.Allocations,
		Shipments:    alloc.Shipments,
		Summary:      Summarize(alloc.Matrix, p),
		Duration:     time.Since(start),
	}, nil
}
