package detector

import (
	"context"

	"github.com/ethereum/go-ethereum/common"
	"github.com/web3ekko/flashguard/pkg/blockchain"
)

// ReceiptFetcher returns every transaction receipt of a block, in block order.
type ReceiptFetcher interface {
	FetchReceipts(ctx context.Context, blockNumber uint64) ([]blockchain.Receipt, error)
}

// TransactionCounter returns the number of transactions sent by address as of blockNumber.
type TransactionCounter interface {
	TransactionCount(ctx context.Context, address common.Address, blockNumber uint64) (uint64, error)
}

// Provider is the block data collaborator the analyzer depends on.
type Provider interface {
	ReceiptFetcher
	TransactionCounter
}

// Thresholds tunes the heuristic. Zero fields fall back to the defaults.
type Thresholds struct {
	TrimCount         int     `yaml:"trim_count"`
	GasMultiplier     float64 `yaml:"gas_multiplier"`
	MaxSenderTxCount  uint64  `yaml:"max_sender_tx_count"`
	MinTransferEvents int     `yaml:"min_transfer_events"`
}

const (
	DefaultTrimCount         = 5
	DefaultGasMultiplier     = 10
	DefaultMaxSenderTxCount  = 25
	DefaultMinTransferEvents = 3
)

// DefaultThresholds returns the thresholds the detector was calibrated with.
func DefaultThresholds() Thresholds {
	return Thresholds{
		TrimCount:         DefaultTrimCount,
		GasMultiplier:     DefaultGasMultiplier,
		MaxSenderTxCount:  DefaultMaxSenderTxCount,
		MinTransferEvents: DefaultMinTransferEvents,
	}
}

func (t Thresholds) withDefaults() Thresholds {
	if t.TrimCount <= 0 {
		t.TrimCount = DefaultTrimCount
	}
	if t.GasMultiplier <= 0 {
		t.GasMultiplier = DefaultGasMultiplier
	}
	if t.MaxSenderTxCount == 0 {
		t.MaxSenderTxCount = DefaultMaxSenderTxCount
	}
	if t.MinTransferEvents <= 0 {
		t.MinTransferEvents = DefaultMinTransferEvents
	}
	return t
}

// PairMatch is one reciprocal A->B / B->A flow of the same token inside a transaction.
type PairMatch struct {
	FromA         string `json:"fromA"`
	ToB           string `json:"toB"`
	TokenContract string `json:"tokenContract"`
	TxHash        string `json:"txHash"`
	BlockNumber   uint64 `json:"blockNumber"`
}

// SuspiciousTransaction is the per-transaction output record.
type SuspiciousTransaction struct {
	TxHash             string `json:"txHash"`
	InitiatorAddress   string `json:"initiatorAddress"`
	PossibleAttack     bool   `json:"possibleAttack"`
	SuspectedFlashLoan bool   `json:"suspectedFlashLoan"`
}

// LookupFailure records a transaction count lookup skipped under IsolateLookups.
type LookupFailure struct {
	TxHash  string `json:"txHash"`
	Address string `json:"address"`
	Error   string `json:"error"`
}

// Result is the outcome of analyzing one block.
type Result struct {
	BlockNumber    uint64                  `json:"blockNumber"`
	Suspicious     []SuspiciousTransaction `json:"suspiciousTransactions"`
	Matches        []PairMatch             `json:"pairMatches"`
	LookupFailures []LookupFailure         `json:"lookupFailures,omitempty"`
}

// DetectedSuspiciousActivity reports whether at least one transaction was flagged.
func (r *Result) DetectedSuspiciousActivity() bool {
	return len(r.Suspicious) > 0
}

// Partial is true when some receipts were skipped because their lookup failed.
func (r *Result) Partial() bool {
	return len(r.LookupFailures) > 0
}
