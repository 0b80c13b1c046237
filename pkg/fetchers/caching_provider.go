package fetchers

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/sirupsen/logrus"

	"github.com/web3ekko/flashguard/pkg/blockchain"
	"github.com/web3ekko/flashguard/pkg/cache"
	"github.com/web3ekko/flashguard/pkg/detector"
)

// CachingProvider memoizes transaction counts. A count at a given block never
// changes once the block is final, so entries only need a TTL. Expired keys for
// past blocks are rarely read again, so the cache itself must purge them.
// Receipts always go to the wrapped provider.
type CachingProvider struct {
	next  detector.Provider
	cache cache.Cache
	ttl   time.Duration
	log   logrus.FieldLogger
}

var _ detector.Provider = (*CachingProvider)(nil)

func NewCachingProvider(next detector.Provider, c cache.Cache, ttl time.Duration, log logrus.FieldLogger) *CachingProvider {
	if log == nil {
		log = logrus.StandardLogger()
	}
	return &CachingProvider{
		next:  next,
		cache: c,
		ttl:   ttl,
		log:   log.WithField("component", "caching_provider"),
	}
}

func txCountKey(address common.Address, blockNumber uint64) string {
	return fmt.Sprintf("txcount:%s:%d", blockchain.HexAddress(address), blockNumber)
}

func (p *CachingProvider) FetchReceipts(ctx context.Context, blockNumber uint64) ([]blockchain.Receipt, error) {
	return p.next.FetchReceipts(ctx, blockNumber)
}

func (p *CachingProvider) TransactionCount(ctx context.Context, address common.Address, blockNumber uint64) (uint64, error) {
	key := txCountKey(address, blockNumber)
	if v, err := p.cache.GetString(ctx, key); err == nil {
		if n, perr := strconv.ParseUint(v, 10, 64); perr == nil {
			return n, nil
		}
		p.log.WithField("key", key).Warn("discarding malformed cached transaction count")
	} else if !errors.Is(err, cache.ErrNotFound) {
		p.log.WithError(err).WithField("key", key).Warn("cache read failed")
	}

	n, err := p.next.TransactionCount(ctx, address, blockNumber)
	if err != nil {
		return 0, err
	}
	if err := p.cache.SetString(ctx, key, strconv.FormatUint(n, 10), p.ttl); err != nil {
		p.log.WithError(err).WithField("key", key).Warn("cache write failed")
	}
	return n, nil
}
