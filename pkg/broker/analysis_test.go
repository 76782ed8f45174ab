package broker

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAnalyze_WorkedExample(t *testing.T) {
	p := exampleProblem()
	res, err := Solve(p)
	require.NoError(t, err)

	a := Analyze(p, res)

	require.Len(t, a.Suppliers, 2)
	require.Len(t, a.Customers, 2)

	assert.Equal(t, int64(20), a.Suppliers[0].Shipped)
	assert.Equal(t, int64(30), a.Suppliers[1].Shipped)
	assert.InDelta(t, 1.0, a.Suppliers[0].Utilization, 1e-9)
	assert.Equal(t, int64(100), a.Suppliers[0].PurchaseCost)

	assert.Equal(t, int64(25), a.Customers[0].Received)
	assert.Equal(t, int64(275), a.Customers[1].Revenue)

	assert.Equal(t, int64(50), a.ShippedUnits)
	assert.Zero(t, a.UnusedSupply)
	assert.Zero(t, a.UnmetDemand)
	assert.Equal(t, 3, a.ActiveRoutes)
	assert.Zero(t, a.LossRoutes)
	assert.InDelta(t, 235.0/570.0*100, a.MarginPercent, 1e-9)
	// (20*6 + 5*4 + 25*3) / 50
	assert.InDelta(t, 4.3, a.AverageProfit, 1e-9)
	require.NotNil(t, a.BestRoute)
	assert.Equal(t, Route{Profit: 6, Cost: 1, Supplier: 0, Customer: 0}, *a.BestRoute)
	assert.Equal(t, BalanceNone, a.BalanceApplied)
}

func TestAnalyze_DummySupplier(t *testing.T) {
	p := &Problem{
		Supply:         []int64{10},
		Demand:         []int64{6, 6},
		PurchaseCosts:  []int64{2},
		SellingPrices:  []int64{5, 4},
		TransportCosts: Matrix{{1, 1}},
	}
	res, err := Solve(p)
	require.NoError(t, err)

	a := Analyze(p, res)

	assert.Equal(t, int64(2), a.UnmetDemand)
	assert.Zero(t, a.UnusedSupply)
	assert.Equal(t, int64(2), a.Customers[1].Unmet)
	assert.InDelta(t, 4.0/6.0, a.Customers[1].FillRate, 1e-9)
	assert.Equal(t, BalanceDummySupplier, a.BalanceApplied)
}

func TestAnalyze_DummyCustomerAndLosses(t *testing.T) {
	p := &Problem{
		Supply:         []int64{10, 5},
		Demand:         []int64{8},
		PurchaseCosts:  []int64{12, 2},
		SellingPrices:  []int64{10},
		TransportCosts: Matrix{{3}, {1}},
	}
	res, err := Solve(p)
	require.NoError(t, err)

	a := Analyze(p, res)

	// supplier 1 (profit 7) ships first, supplier 0 (profit -5) covers the
	// remaining 3 and its surplus of 7 goes to the dummy customer
	assert.Equal(t, int64(3), a.Suppliers[0].Shipped)
	assert.Equal(t, int64(7), a.Suppliers[0].Unused)
	assert.Equal(t, int64(7), a.UnusedSupply)
	assert.Equal(t, 1, a.LossRoutes)
	assert.Equal(t, 2, a.ActiveRoutes)
	assert.Equal(t, BalanceDummyCustomer, a.BalanceApplied)
}

func TestAnalyze_ZeroCapacity(t *testing.T) {
	p := &Problem{
		Supply:         []int64{0},
		Demand:         []int64{0},
		PurchaseCosts:  []int64{1},
		SellingPrices:  []int64{2},
		TransportCosts: Matrix{{0}},
	}
	res, err := Solve(p)
	require.NoError(t, err)

	a := Analyze(p, res)
	assert.Zero(t, a.Suppliers[0].Utilization)
	assert.Zero(t, a.Customers[0].FillRate)
	assert.Zero(t, a.MarginPercent)
	assert.Nil(t, a.BestRoute)
}
