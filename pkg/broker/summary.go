package broker

// Summary holds the financial totals of an allocation.
type Summary struct {
	TotalPurchase  int64 `json:"total_purchase"`
	TotalTransport int64 `json:"total_transport"`
	TotalRevenue   int64 `json:"total_revenue"`
	TotalProfit    int64 `json:"total_profit"`
}

// Summarize aggregates allocation against the original, unbalanced problem.
// Only cells valid in supply, demand, purchase costs, selling prices and the
// transport matrix at once are counted, so dummy rows and columns contribute
// nothing. TotalProfit is always revenue - purchase - transport.
func Summarize(allocation Matrix, p *Problem) Summary {
	var s Summary

	rows := min(len(allocation), len(p.Supply), len(p.PurchaseCosts), len(p.TransportCosts))
	for i := 0; i < rows; i++ {
		cols := min(len(allocation[i]), len(p.Demand), len(p.SellingPrices), len(p.TransportCosts[i]))
		for j := 0; j < cols; j++ {
			q := allocation[i][j]
			if q == 0 {
				continue
			}
			s.TotalPurchase += q * p.PurchaseCosts[i]
			s.TotalTransport += q * p.TransportCosts[i][j]
			s.TotalRevenue += q * p.SellingPrices[j]
		}
	}

	s.TotalProfit = s.TotalRevenue - s.TotalPurchase - s.TotalTransport
	return s
}
