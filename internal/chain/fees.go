package chain

import (
	"math/big"
	"sort"
)

// MedianFee returns the upper median of fees, or zero for an empty list. The input is
// not modified.
func MedianFee(fees []*big.Int) *big.Int {
	if len(fees) == 0 {
		return new(big.Int)
	}
	sorted := make([]*big.Int, len(fees))
	copy(sorted, fees)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].Cmp(sorted[j]) < 0 })
	return new(big.Int).Set(sorted[len(sorted)/2])
}
