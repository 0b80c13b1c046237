package detector

import (
	"github.com/ethereum/go-ethereum/common"
	"github.com/web3ekko/flashguard/pkg/blockchain"
)

// FindCircularPairs compares every ordered pair of transfer events of one
// transaction and reports reciprocal flows of the same token. Mint and burn
// legs (zero address on either side) never match. Symmetric pairs are
// reported in both directions.
func FindCircularPairs(events []blockchain.TransferEvent, txHash common.Hash, blockNumber uint64) []PairMatch {
	var matches []PairMatch
	for i := range events {
		a := events[i]
		if a.From == (common.Address{}) || a.To == (common.Address{}) {
			continue
		}
		for j := range events {
			if i == j {
				continue
			}
			b := events[j]
			if b.From == a.To && b.To == a.From && b.TokenContract == a.TokenContract {
				matches = append(matches, PairMatch{
					FromA:         blockchain.HexAddress(a.From),
					ToB:           blockchain.HexAddress(a.To),
					TokenContract: blockchain.HexAddress(a.TokenContract),
					TxHash:        txHash.Hex(),
					BlockNumber:   blockNumber,
				})
			}
		}
	}
	return matches
}
