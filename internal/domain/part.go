package domain

import "github.com/ethereum/go-ethereum/common"

// MaxBasisPoints is 100%.
const MaxBasisPoints = 10000

// Part is a fee, royalty or payout share expressed in basis points.
type Part struct {
	Account common.Address `json:"account"`
	Value   uint16         `json:"value"`
}

// TotalBasisPoints sums the shares of parts.
func TotalBasisPoints(parts []Part) int {
	total := 0
	for _, p := range parts {
		total += int(p.Value)
	}
	return total
}
