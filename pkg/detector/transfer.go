package detector

import (
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/web3ekko/flashguard/pkg/blockchain"
)

const erc20TransferABI = `[{"anonymous":false,"inputs":[` +
	`{"indexed":true,"name":"from","type":"address"},` +
	`{"indexed":true,"name":"to","type":"address"},` +
	`{"indexed":false,"name":"value","type":"uint256"}],` +
	`"name":"Transfer","type":"event"}]`

var (
	erc20ABI = mustParseABI(erc20TransferABI)

	// TransferEventSig is keccak256("Transfer(address,address,uint256)").
	TransferEventSig = erc20ABI.Events["Transfer"].ID
)

func mustParseABI(def string) abi.ABI {
	parsed, err := abi.JSON(strings.NewReader(def))
	if err != nil {
		panic(err)
	}
	return parsed
}

// topicAddress takes the low 20 bytes of a 32-byte topic.
func topicAddress(topic common.Hash) common.Address {
	return common.BytesToAddress(topic.Bytes()[common.HashLength-common.AddressLength:])
}

// IsQualifyingTransfer reports whether a log is an ERC-20 Transfer carrying a
// non-empty value payload. NFT transfers index the token id and leave data empty.
func IsQualifyingTransfer(l blockchain.Log) bool {
	return len(l.Topics) >= 3 && l.Topics[0] == TransferEventSig && len(l.Data) > 0
}

// ExtractTransfers decodes the qualifying Transfer logs of a receipt, in log order.
func ExtractTransfers(r blockchain.Receipt) []blockchain.TransferEvent {
	var out []blockchain.TransferEvent
	for _, l := range r.Logs {
		if !IsQualifyingTransfer(l) {
			continue
		}
		out = append(out, blockchain.TransferEvent{
			TokenContract: l.Address,
			From:          topicAddress(l.Topics[1]),
			To:            topicAddress(l.Topics[2]),
			Amount:        decodeAmount(l.Data),
			TxHash:        r.TransactionHash,
		})
	}
	return out
}

// decodeAmount unpacks the uint256 value; nil when data is not a single word.
func decodeAmount(data []byte) *big.Int {
	vals, err := erc20ABI.Unpack("Transfer", data)
	if err != nil || len(vals) != 1 {
		return nil
	}
	amount, _ := vals[0].(*big.Int)
	return amount
}
