package vault

import (
	"context"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/shopspring/decimal"

	"arbcontrol/pkg/evm"
)

// custodyClient is the slice of the chain client custody operations need.
type custodyClient interface {
	ReadContract(ctx context.Context, to common.Address, contractABI, method string, args ...interface{}) ([]interface{}, error)
	SubmitTransaction(ctx context.Context, to common.Address, data []byte) (common.Hash, error)
	WaitForReceipt(ctx context.Context, txHash common.Hash) (*types.Receipt, error)
}

// ChainCustody reads the custody wallet's settlement-token balance and pays
// redemptions out of it.
type ChainCustody struct {
	chain   custodyClient
	custody common.Address
	token   common.Address
}

var _ Custody = (*ChainCustody)(nil)

func NewChainCustody(chain custodyClient, custody, settlementToken common.Address) *ChainCustody {
	return &ChainCustody{chain: chain, custody: custody, token: settlementToken}
}

func (c *ChainCustody) Balance(ctx context.Context) (decimal.Decimal, error) {
	values, err := c.chain.ReadContract(ctx, c.token, evm.ERC20ABI, "balanceOf", c.custody)
	if err != nil {
		return decimal.Zero, err
	}
	if len(values) == 0 {
		return decimal.Zero, fmt.Errorf("empty balanceOf response from %s", c.token.Hex())
	}
	raw, ok := values[0].(*big.Int)
	if !ok {
		return decimal.Zero, fmt.Errorf("unexpected balanceOf type %T", values[0])
	}
	return decimal.NewFromBigInt(raw, -tokenDecimals), nil
}

func (c *ChainCustody) PayOut(ctx context.Context, to common.Address, amount decimal.Decimal) (string, error) {
	data, err := evm.PackTransfer(to, amount.Mul(weiPerToken).BigInt())
	if err != nil {
		return "", fmt.Errorf("encode payout: %w", err)
	}
	txHash, err := c.chain.SubmitTransaction(ctx, c.token, data)
	if err != nil {
		return "", err
	}
	receipt, err := c.chain.WaitForReceipt(ctx, txHash)
	if err != nil {
		return txHash.Hex(), err
	}
	if receipt.Status != types.ReceiptStatusSuccessful {
		return txHash.Hex(), fmt.Errorf("payout transaction %s reverted", txHash.Hex())
	}
	return txHash.Hex(), nil
}
