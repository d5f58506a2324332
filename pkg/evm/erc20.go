package evm

import (
	"fmt"
	"math/big"
	"strings"
	"sync"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
)

// ERC20ABI covers the calls and the one event the pipeline cares about.
const ERC20ABI = `[
	{"constant":false,"inputs":[{"name":"spender","type":"address"},{"name":"value","type":"uint256"}],"name":"approve","outputs":[{"name":"","type":"bool"}],"type":"function"},
	{"constant":false,"inputs":[{"name":"to","type":"address"},{"name":"value","type":"uint256"}],"name":"transfer","outputs":[{"name":"","type":"bool"}],"type":"function"},
	{"constant":true,"inputs":[{"name":"owner","type":"address"}],"name":"balanceOf","outputs":[{"name":"","type":"uint256"}],"type":"function"},
	{"anonymous":false,"inputs":[{"indexed":true,"name":"from","type":"address"},{"indexed":true,"name":"to","type":"address"},{"indexed":false,"name":"value","type":"uint256"}],"name":"Transfer","type":"event"}
]`

// VenueRouterABI is the minimal swap-router surface every configured venue
// exposes.
const VenueRouterABI = `[
	{"constant":false,"inputs":[{"name":"tokenIn","type":"address"},{"name":"tokenOut","type":"address"},{"name":"amountIn","type":"uint256"},{"name":"minAmountOut","type":"uint256"}],"name":"swap","outputs":[{"name":"amountOut","type":"uint256"}],"type":"function"},
	{"constant":true,"inputs":[{"name":"tokenIn","type":"address"},{"name":"tokenOut","type":"address"},{"name":"amountIn","type":"uint256"}],"name":"getAmountOut","outputs":[{"name":"","type":"uint256"}],"type":"function"}
]`

// TransferTopic is keccak256("Transfer(address,address,uint256)").
var TransferTopic = crypto.Keccak256Hash([]byte("Transfer(address,address,uint256)"))

var (
	abiCache   = make(map[string]abi.ABI)
	abiCacheMu sync.RWMutex
)

func parseABI(definition string) (abi.ABI, error) {
	abiCacheMu.RLock()
	parsed, ok := abiCache[definition]
	abiCacheMu.RUnlock()
	if ok {
		return parsed, nil
	}

	parsed, err := abi.JSON(strings.NewReader(definition))
	if err != nil {
		return abi.ABI{}, fmt.Errorf("parse ABI: %w", err)
	}
	abiCacheMu.Lock()
	abiCache[definition] = parsed
	abiCacheMu.Unlock()
	return parsed, nil
}

// PackApprove encodes an ERC-20 approve(spender, value) call.
func PackApprove(spender common.Address, value *big.Int) ([]byte, error) {
	parsed, err := parseABI(ERC20ABI)
	if err != nil {
		return nil, err
	}
	return parsed.Pack("approve", spender, value)
}

// PackTransfer encodes an ERC-20 transfer(to, value) call.
func PackTransfer(to common.Address, value *big.Int) ([]byte, error) {
	parsed, err := parseABI(ERC20ABI)
	if err != nil {
		return nil, err
	}
	return parsed.Pack("transfer", to, value)
}

// PackSwap encodes a venue-router swap call.
func PackSwap(tokenIn, tokenOut common.Address, amountIn, minAmountOut *big.Int) ([]byte, error) {
	parsed, err := parseABI(VenueRouterABI)
	if err != nil {
		return nil, err
	}
	return parsed.Pack("swap", tokenIn, tokenOut, amountIn, minAmountOut)
}

// TransferEvent is one decoded ERC-20 Transfer log.
type TransferEvent struct {
	Token common.Address
	From  common.Address
	To    common.Address
	Value *big.Int
}

// ParseTransferLog decodes a Transfer event from a raw log. Returns nil for
// logs that are not ERC-20 transfers.
func ParseTransferLog(lg *types.Log) (*TransferEvent, error) {
	if len(lg.Topics) != 3 || lg.Topics[0] != TransferTopic {
		return nil, nil
	}
	parsed, err := parseABI(ERC20ABI)
	if err != nil {
		return nil, err
	}
	values, err := parsed.Unpack("Transfer", lg.Data)
	if err != nil {
		return nil, fmt.Errorf("decode Transfer data: %w", err)
	}
	if len(values) == 0 {
		return nil, fmt.Errorf("empty Transfer data in log from %s", lg.Address.Hex())
	}
	value, ok := values[0].(*big.Int)
	if !ok {
		return nil, fmt.Errorf("unexpected Transfer value type %T", values[0])
	}
	return &TransferEvent{
		Token: lg.Address,
		From:  common.BytesToAddress(lg.Topics[1].Bytes()),
		To:    common.BytesToAddress(lg.Topics[2].Bytes()),
		Value: value,
	}, nil
}
