package detector

import (
	"context"
	"fmt"

	"github.com/ethereum/go-ethereum/common"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"github.com/web3ekko/flashguard/pkg/blockchain"
)

// FailurePolicy decides what a failed transaction count lookup does to a run.
type FailurePolicy int

const (
	// FailFast aborts the whole analysis on the first provider error.
	FailFast FailurePolicy = iota
	// IsolateLookups skips the affected receipt and records the failure in the result.
	IsolateLookups
)

// ParseFailurePolicy maps "fail_fast" and "isolate" to a policy.
func ParseFailurePolicy(s string) (FailurePolicy, error) {
	switch s {
	case "", "fail_fast":
		return FailFast, nil
	case "isolate":
		return IsolateLookups, nil
	default:
		return FailFast, fmt.Errorf("unknown failure policy %q", s)
	}
}

func (p FailurePolicy) String() string {
	if p == IsolateLookups {
		return "isolate"
	}
	return "fail_fast"
}

// Analyzer flags transactions of a block that look like flash-loan attacks.
// It holds no per-run state and is safe for concurrent use when its Provider is.
type Analyzer struct {
	provider    Provider
	thresholds  Thresholds
	policy      FailurePolicy
	concurrency int
	log         logrus.FieldLogger
}

// Option configures an Analyzer.
type Option func(*Analyzer)

// WithThresholds overrides the heuristic thresholds.
func WithThresholds(t Thresholds) Option {
	return func(a *Analyzer) { a.thresholds = t.withDefaults() }
}

// WithFailurePolicy sets how lookup failures are handled.
func WithFailurePolicy(p FailurePolicy) Option {
	return func(a *Analyzer) { a.policy = p }
}

// WithLookupConcurrency bounds parallel transaction count lookups. n <= 1 is sequential.
func WithLookupConcurrency(n int) Option {
	return func(a *Analyzer) { a.concurrency = n }
}

// WithLogger sets the logger.
func WithLogger(l logrus.FieldLogger) Option {
	return func(a *Analyzer) { a.log = l }
}

// NewAnalyzer creates an Analyzer backed by provider.
func NewAnalyzer(provider Provider, opts ...Option) *Analyzer {
	a := &Analyzer{
		provider:    provider,
		thresholds:  DefaultThresholds(),
		policy:      FailFast,
		concurrency: 1,
		log:         logrus.StandardLogger(),
	}
	for _, opt := range opts {
		opt(a)
	}
	a.log = a.log.WithField("component", "detector")
	return a
}

// Thresholds returns the thresholds in effect.
func (a *Analyzer) Thresholds() Thresholds {
	return a.thresholds
}

// Analyze runs the full pipeline over one block. Any error other than
// ErrInvalidInput is an *AnalysisFailure; no partial result accompanies it.
func (a *Analyzer) Analyze(ctx context.Context, blockNumber uint64) (*Result, error) {
	if blockNumber == 0 {
		return nil, ErrInvalidInput
	}
	log := a.log.WithField("block", blockNumber)

	receipts, err := a.provider.FetchReceipts(ctx, blockNumber)
	if err != nil {
		return nil, &AnalysisFailure{BlockNumber: blockNumber, Err: asProviderError("fetchReceipts", blockNumber, nil, err)}
	}
	for i := range receipts {
		if receipts[i].BlockNumber == 0 {
			receipts[i].BlockNumber = blockNumber
		}
	}

	outliers := FilterGasOutliers(receipts, a.thresholds.TrimCount, a.thresholds.GasMultiplier)
	log.WithFields(logrus.Fields{"receipts": len(receipts), "outliers": len(outliers)}).Debug("gas outliers selected")

	candidates, failures, err := a.filterLowActivity(ctx, outliers)
	if err != nil {
		return nil, &AnalysisFailure{BlockNumber: blockNumber, Err: err}
	}

	result := &Result{
		BlockNumber:    blockNumber,
		Suspicious:     []SuspiciousTransaction{},
		Matches:        []PairMatch{},
		LookupFailures: failures,
	}
	initiators := make(map[string]common.Address, len(candidates))
	for _, r := range candidates {
		transfers := ExtractTransfers(r)
		if len(transfers) < a.thresholds.MinTransferEvents {
			continue
		}
		matches := FindCircularPairs(transfers, r.TransactionHash, r.BlockNumber)
		if len(matches) == 0 {
			continue
		}
		initiators[r.TransactionHash.Hex()] = r.From
		result.Matches = append(result.Matches, matches...)
	}
	result.Suspicious = Aggregate(result.Matches, initiators)

	for _, s := range result.Suspicious {
		log.WithFields(logrus.Fields{"tx": s.TxHash, "initiator": s.InitiatorAddress}).Info("suspected flash loan attack")
	}
	return result, nil
}

// filterLowActivity keeps receipts whose sender had fewer than
// MaxSenderTxCount transactions as of the receipt's block.
func (a *Analyzer) filterLowActivity(ctx context.Context, receipts []blockchain.Receipt) ([]blockchain.Receipt, []LookupFailure, error) {
	counts := make([]uint64, len(receipts))
	errs := make([]error, len(receipts))

	lookup := func(ctx context.Context, i int) error {
		r := receipts[i]
		n, err := a.provider.TransactionCount(ctx, r.From, r.BlockNumber)
		if err != nil {
			from := r.From
			errs[i] = asProviderError("transactionCount", r.BlockNumber, &from, err)
			if a.policy == FailFast {
				return errs[i]
			}
			return nil
		}
		counts[i] = n
		return nil
	}

	if a.concurrency <= 1 {
		for i := range receipts {
			if err := lookup(ctx, i); err != nil {
				return nil, nil, err
			}
		}
	} else {
		g, gctx := errgroup.WithContext(ctx)
		g.SetLimit(a.concurrency)
		for i := range receipts {
			i := i
			g.Go(func() error { return lookup(gctx, i) })
		}
		if err := g.Wait(); err != nil {
			return nil, nil, err
		}
	}
	if err := ctx.Err(); err != nil {
		return nil, nil, err
	}

	var kept []blockchain.Receipt
	var failures []LookupFailure
	for i, r := range receipts {
		if errs[i] != nil {
			a.log.WithError(errs[i]).WithField("tx", r.TransactionHash.Hex()).Warn("transaction count lookup failed, skipping receipt")
			failures = append(failures, LookupFailure{
				TxHash:  r.TransactionHash.Hex(),
				Address: blockchain.HexAddress(r.From),
				Error:   errs[i].Error(),
			})
			continue
		}
		if counts[i] < a.thresholds.MaxSenderTxCount {
			kept = append(kept, r)
		}
	}
	return kept, failures, nil
}

// Aggregate collapses pair matches into one record per transaction, ordered by
// each transaction's first match.
func Aggregate(matches []PairMatch, initiators map[string]common.Address) []SuspiciousTransaction {
	out := []SuspiciousTransaction{}
	seen := make(map[string]bool, len(initiators))
	for _, m := range matches {
		if seen[m.TxHash] {
			continue
		}
		seen[m.TxHash] = true
		out = append(out, SuspiciousTransaction{
			TxHash:             m.TxHash,
			InitiatorAddress:   blockchain.HexAddress(initiators[m.TxHash]),
			PossibleAttack:     true,
			SuspectedFlashLoan: true,
		})
	}
	return out
}
