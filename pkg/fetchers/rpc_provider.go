package fetchers

import (
	"context"
	"fmt"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/ethclient"
	"github.com/ethereum/go-ethereum/rpc"
	"github.com/sirupsen/logrus"

	"github.com/web3ekko/flashguard/pkg/blockchain"
	"github.com/web3ekko/flashguard/pkg/detector"
)

// rpcReceipt mirrors the eth_getBlockReceipts result. Unlike go-ethereum's
// types.Receipt it keeps the sender.
type rpcReceipt struct {
	TransactionHash common.Hash     `json:"transactionHash"`
	From            common.Address  `json:"from"`
	GasUsed         *hexutil.Uint64 `json:"gasUsed"`
	BlockNumber     hexutil.Uint64  `json:"blockNumber"`
	Logs            []rpcLog        `json:"logs"`
}

type rpcLog struct {
	Address common.Address `json:"address"`
	Topics  []common.Hash  `json:"topics"`
	Data    hexutil.Bytes  `json:"data"`
}

// RPCProvider fetches block receipts and sender nonces from an Ethereum JSON-RPC node.
type RPCProvider struct {
	rpc     *rpc.Client
	eth     *ethclient.Client
	timeout time.Duration
	log     logrus.FieldLogger
}

var _ detector.Provider = (*RPCProvider)(nil)

// NewRPCProvider dials url (http(s) or ws(s)). timeout bounds each call; zero disables it.
func NewRPCProvider(ctx context.Context, url string, timeout time.Duration, log logrus.FieldLogger) (*RPCProvider, error) {
	if url == "" {
		return nil, fmt.Errorf("RPC URL is required")
	}
	client, err := rpc.DialContext(ctx, url)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to EVM node %s: %w", url, err)
	}
	if log == nil {
		log = logrus.StandardLogger()
	}
	return &RPCProvider{
		rpc:     client,
		eth:     ethclient.NewClient(client),
		timeout: timeout,
		log:     log.WithField("component", "rpc_provider"),
	}, nil
}

func (p *RPCProvider) withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	if p.timeout <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, p.timeout)
}

// FetchReceipts implements detector.ReceiptFetcher.
func (p *RPCProvider) FetchReceipts(ctx context.Context, blockNumber uint64) ([]blockchain.Receipt, error) {
	ctx, cancel := p.withTimeout(ctx)
	defer cancel()

	var raw []*rpcReceipt
	if err := p.rpc.CallContext(ctx, &raw, "eth_getBlockReceipts", hexutil.EncodeUint64(blockNumber)); err != nil {
		return nil, fmt.Errorf("eth_getBlockReceipts for block %d: %w", blockNumber, err)
	}
	if raw == nil {
		return nil, fmt.Errorf("block %d: %w", blockNumber, ethereum.NotFound)
	}

	receipts := make([]blockchain.Receipt, 0, len(raw))
	for _, r := range raw {
		if r == nil {
			continue
		}
		receipts = append(receipts, convertReceipt(r))
	}
	p.log.WithFields(logrus.Fields{"block": blockNumber, "receipts": len(receipts)}).Debug("fetched block receipts")
	return receipts, nil
}

// TransactionCount implements detector.TransactionCounter using the nonce at blockNumber.
func (p *RPCProvider) TransactionCount(ctx context.Context, address common.Address, blockNumber uint64) (uint64, error) {
	ctx, cancel := p.withTimeout(ctx)
	defer cancel()

	n, err := p.eth.NonceAt(ctx, address, new(big.Int).SetUint64(blockNumber))
	if err != nil {
		return 0, fmt.Errorf("eth_getTransactionCount for %s at block %d: %w", address.Hex(), blockNumber, err)
	}
	return n, nil
}

// Close closes the underlying RPC connection.
func (p *RPCProvider) Close() {
	p.rpc.Close()
}

func convertReceipt(r *rpcReceipt) blockchain.Receipt {
	out := blockchain.Receipt{
		TransactionHash: r.TransactionHash,
		From:            r.From,
		BlockNumber:     uint64(r.BlockNumber),
		Logs:            make([]blockchain.Log, 0, len(r.Logs)),
	}
	if r.GasUsed != nil {
		g := uint64(*r.GasUsed)
		out.GasUsed = &g
	}
	for _, l := range r.Logs {
		out.Logs = append(out.Logs, blockchain.Log{
			Address: l.Address,
			Topics:  l.Topics,
			Data:    l.Data,
		})
	}
	return out
}
