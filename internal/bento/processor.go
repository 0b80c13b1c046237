// Package bento registers the flashloan_detect Benthos processor. Each input
// message names a block; the output is the analysis report for it.
package bento

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"sync"
	"time"

	"github.com/benthosdev/benthos/v4/public/service"
	"github.com/sirupsen/logrus"

	svc "github.com/web3ekko/flashguard/internal/service"
	"github.com/web3ekko/flashguard/pkg/cache"
	"github.com/web3ekko/flashguard/pkg/detector"
	"github.com/web3ekko/flashguard/pkg/events"
	"github.com/web3ekko/flashguard/pkg/fetchers"
)

const processorName = "flashloan_detect"

// BlockAnalyzer is implemented by service.BlockAnalysisService.
type BlockAnalyzer interface {
	AnalyzeBlock(ctx context.Context, blockNumber uint64) (*events.AnalysisReport, error)
}

func configSpec() *service.ConfigSpec {
	return service.NewConfigSpec().
		Summary("Analyzes the block named by each message for flash-loan attack patterns and replaces the message with the analysis report.").
		Description("The block number is read from a bare number, a numeric string, or the `blockNumber`, `block_number` or `number` field of a JSON object. Hex quantities such as new-head `number` values are accepted.").
		Field(service.NewStringField("rpc_url").
			Description("Ethereum JSON-RPC endpoint serving eth_getBlockReceipts.")).
		Field(service.NewStringEnumField("failure_policy", "fail_fast", "isolate").
			Description("How failed sender transaction-count lookups are handled.").
			Default("fail_fast")).
		Field(service.NewIntField("lookup_concurrency").
			Description("Parallel transaction-count lookups per block.").
			Default(1)).
		Field(service.NewIntField("max_retries").
			Description("Retries per RPC call.").
			Default(3)).
		Field(service.NewDurationField("request_timeout").
			Description("Timeout per RPC call.").
			Default("10s")).
		Field(service.NewDurationField("cache_ttl").
			Description("How long transaction counts are cached in memory.").
			Default("1h"))
}

type settings struct {
	rpcURL            string
	policy            detector.FailurePolicy
	lookupConcurrency int
	maxRetries        int
	requestTimeout    time.Duration
	cacheTTL          time.Duration
}

func parseSettings(conf *service.ParsedConfig) (settings, error) {
	var s settings
	var err error
	if s.rpcURL, err = conf.FieldString("rpc_url"); err != nil {
		return s, err
	}
	policy, err := conf.FieldString("failure_policy")
	if err != nil {
		return s, err
	}
	if s.policy, err = detector.ParseFailurePolicy(policy); err != nil {
		return s, err
	}
	if s.lookupConcurrency, err = conf.FieldInt("lookup_concurrency"); err != nil {
		return s, err
	}
	if s.maxRetries, err = conf.FieldInt("max_retries"); err != nil {
		return s, err
	}
	if s.requestTimeout, err = conf.FieldDuration("request_timeout"); err != nil {
		return s, err
	}
	if s.cacheTTL, err = conf.FieldDuration("cache_ttl"); err != nil {
		return s, err
	}
	return s, nil
}

func init() {
	err := service.RegisterProcessor(processorName, configSpec(),
		func(conf *service.ParsedConfig, mgr *service.Resources) (service.Processor, error) {
			s, err := parseSettings(conf)
			if err != nil {
				return nil, err
			}
			analyzer, closeRPC, err := buildAnalyzer(context.Background(), s)
			if err != nil {
				return nil, err
			}
			p := newDetectProcessor(analyzer, mgr.Logger())
			p.onClose = closeRPC
			return p, nil
		})
	if err != nil {
		panic(err)
	}
}

// buildAnalyzer also returns the function that releases the RPC connection.
func buildAnalyzer(ctx context.Context, s settings) (BlockAnalyzer, func(), error) {
	log := logrus.StandardLogger()
	rpc, err := fetchers.NewRPCProvider(ctx, s.rpcURL, s.requestTimeout, log)
	if err != nil {
		return nil, nil, err
	}
	var provider detector.Provider = fetchers.NewRetryingProvider(rpc, s.maxRetries, 500*time.Millisecond, log)
	provider = fetchers.NewCachingProvider(provider, cache.NewMemoryCache(), s.cacheTTL, log)

	a := detector.NewAnalyzer(provider,
		detector.WithFailurePolicy(s.policy),
		detector.WithLookupConcurrency(s.lookupConcurrency),
		detector.WithLogger(log),
	)
	return svc.NewBlockAnalysisService(a, svc.WithLogger(log)), rpc.Close, nil
}

type detectProcessor struct {
	analyzer  BlockAnalyzer
	log       *service.Logger
	onClose   func()
	closeOnce sync.Once
}

func newDetectProcessor(analyzer BlockAnalyzer, log *service.Logger) *detectProcessor {
	return &detectProcessor{analyzer: analyzer, log: log}
}

// Process implements service.Processor.
func (p *detectProcessor) Process(ctx context.Context, msg *service.Message) (service.MessageBatch, error) {
	raw, err := msg.AsBytes()
	if err != nil {
		return nil, err
	}
	blockNumber, err := blockNumberFromPayload(raw)
	if err != nil {
		return nil, fmt.Errorf("failed to read block number: %w", err)
	}

	report, err := p.analyzer.AnalyzeBlock(ctx, blockNumber)
	if err != nil {
		return nil, fmt.Errorf("failed to analyze block %d: %w", blockNumber, err)
	}
	if report.DetectedSuspiciousActivity && p.log != nil {
		p.log.Infof("suspicious activity in block %d: %d transaction(s)", blockNumber, len(report.SuspiciousTransactions))
	}

	data, err := report.Marshal()
	if err != nil {
		return nil, err
	}
	out := msg.Copy()
	out.SetBytes(data)
	out.MetaSetMut("block_number", strconv.FormatUint(blockNumber, 10))
	out.MetaSetMut("flashloan_detected", report.DetectedSuspiciousActivity)
	out.MetaSetMut("report_id", report.ID.String())
	return service.MessageBatch{out}, nil
}

func (p *detectProcessor) Close(ctx context.Context) error {
	p.closeOnce.Do(func() {
		if p.onClose != nil {
			p.onClose()
		}
	})
	return nil
}

// blockNumberFromPayload accepts 123, "123", "0x7b" or an object carrying one
// of those under blockNumber, block_number or number.
func blockNumberFromPayload(raw []byte) (uint64, error) {
	var obj map[string]json.RawMessage
	if err := json.Unmarshal(raw, &obj); err == nil {
		for _, key := range []string{"blockNumber", "block_number", "number"} {
			if v, ok := obj[key]; ok {
				return detector.ParseBlockNumber(v)
			}
		}
		return 0, fmt.Errorf("no block number field: %w", detector.ErrInvalidInput)
	}
	return detector.ParseBlockNumber(raw)
}
