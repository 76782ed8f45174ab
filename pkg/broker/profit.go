package broker

// ProfitMatrix derives the unit-profit matrix
//
//	M[i][j] = selling[j] - purchase[i] - transport[i][j]
//
// transport must be len(purchase)×len(selling), otherwise a
// SHAPE_MISMATCH error is returned. Cells may be negative.
func ProfitMatrix(purchase, selling []int64, transport Matrix) (Matrix, error) {
	if err := transport.checkShape(len(purchase), len(selling), "transport_costs"); err != nil {
		return nil, err
	}

	m := NewMatrix(len(purchase), len(selling))
	for i, p := range purchase {
		for j, r := range selling {
			m[i][j] = r - p - transport[i][j]
		}
	}
	return m, nil
}
