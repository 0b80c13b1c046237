package blockchain

import (
	"math/big"

	"github.com/ethereum/go-ethereum/common"
)

// Receipt is a transaction receipt as returned for a whole block.
// GasUsed is nil when the node did not report it.
type Receipt struct {
	TransactionHash common.Hash    `json:"transactionHash"`
	From            common.Address `json:"from"`
	GasUsed         *uint64        `json:"gasUsed,omitempty"`
	BlockNumber     uint64         `json:"blockNumber"`
	Logs            []Log          `json:"logs"`
}

// Gas returns the gas used by the receipt and whether it was reported.
func (r Receipt) Gas() (uint64, bool) {
	if r.GasUsed == nil {
		return 0, false
	}
	return *r.GasUsed, true
}

// Log represents a single log entry emitted during a transaction
type Log struct {
	Address common.Address `json:"address"`
	Topics  []common.Hash  `json:"topics"`
	Data    []byte         `json:"data"`
}

// TransferEvent is an ERC-20 Transfer decoded from a Log
type TransferEvent struct {
	TokenContract common.Address `json:"tokenContract"`
	From          common.Address `json:"from"`
	To            common.Address `json:"to"`
	Amount        *big.Int       `json:"amount,omitempty"`
	TxHash        common.Hash    `json:"txHash"`
}

// HexAddress renders an address the way JSON-RPC nodes do (lowercase).
func HexAddress(a common.Address) string {
	return "0x" + common.Bytes2Hex(a.Bytes())
}
