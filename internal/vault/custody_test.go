package vault

import (
	"context"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stubCustodyChain struct {
	values  []interface{}
	readErr error
}

func (c *stubCustodyChain) ReadContract(ctx context.Context, to common.Address, contractABI, method string, args ...interface{}) ([]interface{}, error) {
	return c.values, c.readErr
}

func (c *stubCustodyChain) SubmitTransaction(ctx context.Context, to common.Address, data []byte) (common.Hash, error) {
	return common.HexToHash("0xa1"), nil
}

func (c *stubCustodyChain) WaitForReceipt(ctx context.Context, txHash common.Hash) (*types.Receipt, error) {
	return &types.Receipt{Status: types.ReceiptStatusSuccessful, TxHash: txHash}, nil
}

func TestChainCustodyBalance(t *testing.T) {
	t.Run("reads settlement token balance", func(t *testing.T) {
		chain := &stubCustodyChain{values: []interface{}{claimWei("101.2")}}
		c := NewChainCustody(chain, custodyAddr, tokenAddr)

		balance, err := c.Balance(context.Background())
		require.NoError(t, err)
		assert.True(t, balance.Equal(decimal.RequireFromString("101.2")), "got %s", balance)
	})

	t.Run("empty balanceOf response is an error", func(t *testing.T) {
		chain := &stubCustodyChain{values: []interface{}{}}
		c := NewChainCustody(chain, custodyAddr, tokenAddr)

		_, err := c.Balance(context.Background())
		require.Error(t, err)
		assert.Contains(t, err.Error(), "empty balanceOf response")
	})

	t.Run("mistyped balanceOf response is an error", func(t *testing.T) {
		chain := &stubCustodyChain{values: []interface{}{"101"}}
		c := NewChainCustody(chain, custodyAddr, tokenAddr)

		_, err := c.Balance(context.Background())
		assert.Error(t, err)
	})
}
