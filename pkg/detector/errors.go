package detector

import (
	"errors"
	"fmt"

	"github.com/ethereum/go-ethereum/common"
)

// ErrInvalidInput is returned for a missing, zero or non-numeric block number.
var ErrInvalidInput = errors.New("invalid block number")

// ProviderError is a failure of the receipt fetcher or the transaction count lookup.
type ProviderError struct {
	Op          string
	BlockNumber uint64
	Address     *common.Address
	Err         error
}

func (e *ProviderError) Error() string {
	if e.Address != nil {
		return fmt.Sprintf("provider %s failed for %s at block %d: %v", e.Op, e.Address.Hex(), e.BlockNumber, e.Err)
	}
	return fmt.Sprintf("provider %s failed at block %d: %v", e.Op, e.BlockNumber, e.Err)
}

func (e *ProviderError) Unwrap() error { return e.Err }

// AnalysisFailure wraps any error that aborted the analysis of a block.
type AnalysisFailure struct {
	BlockNumber uint64
	Err         error
}

func (e *AnalysisFailure) Error() string {
	return fmt.Sprintf("analysis of block %d failed: %v", e.BlockNumber, e.Err)
}

func (e *AnalysisFailure) Unwrap() error { return e.Err }

func asProviderError(op string, blockNumber uint64, addr *common.Address, err error) error {
	var pe *ProviderError
	if errors.As(err, &pe) {
		return err
	}
	return &ProviderError{Op: op, BlockNumber: blockNumber, Address: addr, Err: err}
}
