package detector

import (
	"sort"

	"github.com/web3ekko/flashguard/pkg/blockchain"
)

// gasBearing returns the receipts that report gas used, in their original order.
func gasBearing(receipts []blockchain.Receipt) []blockchain.Receipt {
	out := make([]blockchain.Receipt, 0, len(receipts))
	for _, r := range receipts {
		if _, ok := r.Gas(); ok {
			out = append(out, r)
		}
	}
	return out
}

// TrimmedMeanGas sorts the gas-bearing receipts by gas used, drops trimCount
// entries from each end by position and averages the rest. The bool is false
// when nothing is left to average.
func TrimmedMeanGas(receipts []blockchain.Receipt, trimCount int) (float64, bool) {
	gas := make([]uint64, 0, len(receipts))
	for _, r := range receipts {
		if g, ok := r.Gas(); ok {
			gas = append(gas, g)
		}
	}
	if trimCount < 0 {
		trimCount = 0
	}
	if len(gas) <= 2*trimCount {
		return 0, false
	}
	sort.Slice(gas, func(i, j int) bool { return gas[i] < gas[j] })

	trimmed := gas[trimCount : len(gas)-trimCount]
	var sum float64
	for _, g := range trimmed {
		sum += float64(g)
	}
	return sum / float64(len(trimmed)), true
}

// FilterGasOutliers returns the gas-bearing receipts using more than
// multiplier times the trimmed mean, in block order.
func FilterGasOutliers(receipts []blockchain.Receipt, trimCount int, multiplier float64) []blockchain.Receipt {
	candidates := gasBearing(receipts)
	avg, ok := TrimmedMeanGas(candidates, trimCount)
	if !ok {
		return nil
	}

	threshold := multiplier * avg
	var out []blockchain.Receipt
	for _, r := range candidates {
		g, _ := r.Gas()
		if float64(g) > threshold {
			out = append(out, r)
		}
	}
	return out
}
