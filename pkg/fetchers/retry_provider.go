package fetchers

import (
	"context"
	"errors"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/sirupsen/logrus"

	"github.com/web3ekko/flashguard/pkg/blockchain"
	"github.com/web3ekko/flashguard/pkg/detector"
)

// RetryingProvider retries failed provider calls with exponential backoff.
// Unknown blocks and cancelled contexts are not retried.
type RetryingProvider struct {
	next       detector.Provider
	maxRetries uint64
	delay      time.Duration
	log        logrus.FieldLogger
}

var _ detector.Provider = (*RetryingProvider)(nil)

// NewRetryingProvider wraps next. maxRetries == 0 disables retries.
func NewRetryingProvider(next detector.Provider, maxRetries int, delay time.Duration, log logrus.FieldLogger) *RetryingProvider {
	if maxRetries < 0 {
		maxRetries = 0
	}
	if log == nil {
		log = logrus.StandardLogger()
	}
	return &RetryingProvider{
		next:       next,
		maxRetries: uint64(maxRetries),
		delay:      delay,
		log:        log.WithField("component", "retrying_provider"),
	}
}

func (p *RetryingProvider) FetchReceipts(ctx context.Context, blockNumber uint64) ([]blockchain.Receipt, error) {
	var out []blockchain.Receipt
	err := p.retry(ctx, "fetchReceipts", func() error {
		var err error
		out, err = p.next.FetchReceipts(ctx, blockNumber)
		return err
	})
	return out, err
}

func (p *RetryingProvider) TransactionCount(ctx context.Context, address common.Address, blockNumber uint64) (uint64, error) {
	var n uint64
	err := p.retry(ctx, "transactionCount", func() error {
		var err error
		n, err = p.next.TransactionCount(ctx, address, blockNumber)
		return err
	})
	return n, err
}

func (p *RetryingProvider) retry(ctx context.Context, op string, fn func() error) error {
	if p.maxRetries == 0 {
		return fn()
	}

	b := backoff.NewExponentialBackOff()
	if p.delay > 0 {
		b.InitialInterval = p.delay
	}
	b.MaxElapsedTime = 0
	policy := backoff.WithContext(backoff.WithMaxRetries(b, p.maxRetries), ctx)

	return backoff.RetryNotify(func() error {
		err := fn()
		if err == nil {
			return nil
		}
		if errors.Is(err, ethereum.NotFound) || errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			return backoff.Permanent(err)
		}
		return err
	}, policy, func(err error, wait time.Duration) {
		p.log.WithError(err).WithFields(logrus.Fields{"op": op, "wait": wait}).Warn("provider call failed, retrying")
	})
}
