package broker

import (
	"cmp"
	"context"
	"slices"
)

// Route is a candidate (supplier, customer) shipping pair.
type Route struct {
	Profit   int64 `json:"profit"`
	Cost     int64 `json:"cost"`
	Supplier int   `json:"supplier"`
	Customer int   `json:"customer"`
}

// Compare orders routes by profit desc, cost asc, supplier asc, customer asc.
func (r Route) Compare(o Route) int {
	if c := cmp.Compare(o.Profit, r.Profit); c != 0 {
		return c
	}
	if c := cmp.Compare(r.Cost, o.Cost); c != 0 {
		return c
	}
	if c := cmp.Compare(r.Supplier, o.Supplier); c != 0 {
		return c
	}
	return cmp.Compare(r.Customer, o.Customer)
}

// Shipment is one allocating step of the greedy pass.
type Shipment struct {
	Step     int   `json:"step"` // 1-based position in route order
	Supplier int   `json:"supplier"`
	Customer int   `json:"customer"`
	Quantity int64 `json:"quantity"`
	Profit   int64 `json:"unit_profit"`
	Cost     int64 `json:"unit_transport"`
}

// Allocation is the output of the greedy pass.
type Allocation struct {
	Matrix Matrix `json:"matrix"`
	// Iterations counts every examined route, allocating or skipped.
	Iterations int `json:"iterations"`
	// Allocations counts the routes that received goods.
	Allocations int `json:"allocations"`
	// Shipments lists the allocating steps in route order.
	Shipments []Shipment `json:"shipments"`
}

// Routes enumerates every route of b in processing order.
func Routes(b *Balanced) []Route {
	routes := make([]Route, 0, len(b.Supply)*len(b.Demand))
	for i := range b.Supply {
		for j := range b.Demand {
			routes = append(routes, Route{
				Profit:   b.Profit[i][j],
				Cost:     b.Transport[i][j],
				Supplier: i,
				Customer: j,
			})
		}
	}
	slices.SortFunc(routes, Route.Compare)
	return routes
}

// Allocate runs the greedy pass over a balanced problem.
func Allocate(b *Balanced) (*Allocation, error) {
	return AllocateContext(context.Background(), b)
}

// AllocateContext is Allocate with ctx checked once per |demand| routes.
//
// Each route is visited exactly once. A route whose supplier or customer is
// already exhausted is skipped; otherwise it receives min(remaining supply,
// remaining demand). For balanced input every row ends at its supply and
// every column at its demand.
func AllocateContext(ctx context.Context, b *Balanced) (*Allocation, error) {
	if err := b.Profit.checkShape(len(b.Supply), len(b.Demand), "profit"); err != nil {
		return nil, err
	}
	if err := b.Transport.checkShape(len(b.Supply), len(b.Demand), "transport_costs"); err != nil {
		return nil, err
	}

	supply := cloneVector(b.Supply)
	demand := cloneVector(b.Demand)

	a := &Allocation{Matrix: NewMatrix(len(supply), len(demand))}
	checkEvery := max(len(demand), 1)

	for n, r := range Routes(b) {
		if n%checkEvery == 0 {
			if err := ctx.Err(); err != nil {
				return nil, err
			}
		}

		a.Iterations++

		i, j := r.Supplier, r.Customer
		if supply[i] == 0 || demand[j] == 0 {
			continue
		}

		q := min(supply[i], demand[j])
		a.Matrix[i][j] = q
		supply[i] -= q
		demand[j] -= q
		a.Allocations++

		a.Shipments = append(a.Shipments, Shipment{
			Step:     a.Iterations,
			Supplier: i,
			Customer: j,
			Quantity: q,
			Profit:   r.Profit,
			Cost:     r.Cost,
		})
	}

	return a, nil
}
