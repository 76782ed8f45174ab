package broker

// SupplierStats is the load of one real supplier.
type SupplierStats struct {
	Index        int     `json:"index"`
	Capacity     int64   `json:"capacity"`
	Shipped      int64   `json:"shipped"`
	Unused       int64   `json:"unused"` // absorbed by the dummy customer
	Utilization  float64 `json:"utilization"`
	PurchaseCost int64   `json:"purchase_cost"`
}

// CustomerStats is the coverage of one real customer.
type CustomerStats struct {
	Index    int     `json:"index"`
	Demand   int64   `json:"demand"`
	Received int64   `json:"received"`
	Unmet    int64   `json:"unmet"` // covered by the dummy supplier
	FillRate float64 `json:"fill_rate"`
	Revenue  int64   `json:"revenue"`
}

// Analysis breaks a result down by participant.
type Analysis struct {
	Suppliers      []SupplierStats `json:"suppliers"`
	Customers      []CustomerStats `json:"customers"`
	ShippedUnits   int64           `json:"shipped_units"`
	UnusedSupply   int64           `json:"unused_supply"`
	UnmetDemand    int64           `json:"unmet_demand"`
	MarginPercent  float64         `json:"margin_percent"`
	ActiveRoutes   int             `json:"active_routes"`
	LossRoutes     int             `json:"loss_routes"` // shipping routes with negative unit profit
	AverageProfit  float64         `json:"average_unit_profit"`
	BestRoute      *Route          `json:"best_route,omitempty"`
	BalanceApplied BalanceKind     `json:"balance_applied"`
}

// Analyze computes per-supplier and per-customer figures. Dummy rows and
// columns are left out; their volume shows up in UnusedSupply and
// UnmetDemand. r must pass r.CheckShape(p).
func Analyze(p *Problem, r *Result) *Analysis {
	a := &Analysis{
		Suppliers:      make([]SupplierStats, len(p.Supply)),
		Customers:      make([]CustomerStats, len(p.Demand)),
		BalanceApplied: r.Balanced.Kind,
	}

	alloc := r.OriginalAllocation(p)

	for i, capacity := range p.Supply {
		shipped := alloc.RowSum(i)
		s := SupplierStats{
			Index:        i,
			Capacity:     capacity,
			Shipped:      shipped,
			Unused:       capacity - shipped,
			PurchaseCost: shipped * p.PurchaseCosts[i],
		}
		if capacity > 0 {
			s.Utilization = float64(shipped) / float64(capacity)
		}
		a.Suppliers[i] = s
		a.ShippedUnits += shipped
		a.UnusedSupply += s.Unused
	}

	for j, demand := range p.Demand {
		received := alloc.ColSum(j)
		c := CustomerStats{
			Index:    j,
			Demand:   demand,
			Received: received,
			Unmet:    demand - received,
			Revenue:  received * p.SellingPrices[j],
		}
		if demand > 0 {
			c.FillRate = float64(received) / float64(demand)
		}
		a.Customers[j] = c
		a.UnmetDemand += c.Unmet
	}

	var weightedProfit int64
	for i := range alloc {
		for j, q := range alloc[i] {
			if q == 0 {
				continue
			}
			a.ActiveRoutes++
			unit := r.ProfitMatrix[i][j]
			weightedProfit += q * unit
			if unit < 0 {
				a.LossRoutes++
			}
			if a.BestRoute == nil || unit > a.BestRoute.Profit {
				a.BestRoute = &Route{Profit: unit, Cost: p.TransportCosts[i][j], Supplier: i, Customer: j}
			}
		}
	}

	if a.ShippedUnits > 0 {
		a.AverageProfit = float64(weightedProfit) / float64(a.ShippedUnits)
	}
	if r.Summary.TotalRevenue != 0 {
		a.MarginPercent = float64(r.Summary.TotalProfit) / float64(r.Summary.TotalRevenue) * 100
	}

	return a
}
