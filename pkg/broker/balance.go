package broker

// BalanceKind tells which dummy node, if any, Balance appended.
type BalanceKind string

const (
	BalanceNone          BalanceKind = "none"
	BalanceDummySupplier BalanceKind = "dummy_supplier"
	BalanceDummyCustomer BalanceKind = "dummy_customer"
)

// Balanced is a problem whose total supply equals its total demand.
type Balanced struct {
	Supply    []int64     `json:"supply"`
	Demand    []int64     `json:"demand"`
	Profit    Matrix      `json:"profit"`
	Transport Matrix      `json:"transport"`
	Kind      BalanceKind `json:"kind"`
	// DummyVolume is the supply or demand given to the dummy node.
	DummyVolume int64 `json:"dummy_volume"`
}

// Suppliers returns the number of rows including a dummy supplier.
func (b *Balanced) Suppliers() int {
	return len(b.Supply)
}

// Customers returns the number of columns including a dummy customer.
func (b *Balanced) Customers() int {
	return len(b.Demand)
}

// Balance equalizes total supply and total demand. All inputs are copied.
//
// A shortfall of supply appends one dummy supplier with the deficit as its
// supply and an all-zero row to both matrices. A surplus appends one dummy
// customer with the surplus as its demand and a zero to every row of both
// matrices. Equal totals add nothing. At most one dummy is ever added.
func Balance(supply, demand []int64, profit, transport Matrix) (*Balanced, error) {
	if err := profit.checkShape(len(supply), len(demand), "profit"); err != nil {
		return nil, err
	}
	if err := transport.checkShape(len(supply), len(demand), "transport_costs"); err != nil {
		return nil, err
	}

	b := &Balanced{
		Supply:    cloneVector(supply),
		Demand:    cloneVector(demand),
		Profit:    profit.Clone(),
		Transport: transport.Clone(),
		Kind:      BalanceNone,
	}

	totalSupply, totalDemand := sum(supply), sum(demand)

	switch {
	case totalSupply < totalDemand:
		b.Kind = BalanceDummySupplier
		b.DummyVolume = totalDemand - totalSupply
		b.Supply = append(b.Supply, b.DummyVolume)
		b.Profit = append(b.Profit, make([]int64, len(b.Demand)))
		b.Transport = append(b.Transport, make([]int64, len(b.Demand)))

	case totalSupply > totalDemand:
		b.Kind = BalanceDummyCustomer
		b.DummyVolume = totalSupply - totalDemand
		b.Demand = append(b.Demand, b.DummyVolume)
		for i := range b.Profit {
			b.Profit[i] = append(b.Profit[i], 0)
			b.Transport[i] = append(b.Transport[i], 0)
		}
	}

	return b, nil
}
