package evm

import (
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var (
	testToken = common.HexToAddress("0x1000000000000000000000000000000000000001")
	testFrom  = common.HexToAddress("0xD000000000000000000000000000000000000001")
	testTo    = common.HexToAddress("0xC000000000000000000000000000000000000001")
)

func TestParseTransferLog(t *testing.T) {
	value := new(big.Int).Mul(big.NewInt(25), new(big.Int).Exp(big.NewInt(10), big.NewInt(18), nil))
	lg := &types.Log{
		Address: testToken,
		Topics: []common.Hash{
			TransferTopic,
			common.BytesToHash(common.LeftPadBytes(testFrom.Bytes(), 32)),
			common.BytesToHash(common.LeftPadBytes(testTo.Bytes(), 32)),
		},
		Data: common.BigToHash(value).Bytes(),
	}

	transfer, err := ParseTransferLog(lg)
	require.NoError(t, err)
	require.NotNil(t, transfer)
	assert.Equal(t, testToken, transfer.Token)
	assert.Equal(t, testFrom, transfer.From)
	assert.Equal(t, testTo, transfer.To)
	assert.Zero(t, transfer.Value.Cmp(value))
}

func TestParseTransferLogIgnoresOtherEvents(t *testing.T) {
	t.Run("wrong topic", func(t *testing.T) {
		lg := &types.Log{
			Address: testToken,
			Topics: []common.Hash{
				common.HexToHash("0xdeadbeef"),
				common.BytesToHash(common.LeftPadBytes(testFrom.Bytes(), 32)),
				common.BytesToHash(common.LeftPadBytes(testTo.Bytes(), 32)),
			},
		}
		transfer, err := ParseTransferLog(lg)
		require.NoError(t, err)
		assert.Nil(t, transfer)
	})

	t.Run("wrong topic count", func(t *testing.T) {
		lg := &types.Log{Address: testToken, Topics: []common.Hash{TransferTopic}}
		transfer, err := ParseTransferLog(lg)
		require.NoError(t, err)
		assert.Nil(t, transfer)
	})
}

func TestPackCalls(t *testing.T) {
	spender := common.HexToAddress("0x2000000000000000000000000000000000000002")
	amount := big.NewInt(1000)

	approve, err := PackApprove(spender, amount)
	require.NoError(t, err)
	// approve(address,uint256) selector
	assert.Equal(t, []byte{0x09, 0x5e, 0xa7, 0xb3}, approve[:4])

	transfer, err := PackTransfer(spender, amount)
	require.NoError(t, err)
	// transfer(address,uint256) selector
	assert.Equal(t, []byte{0xa9, 0x05, 0x9c, 0xbb}, transfer[:4])

	swap, err := PackSwap(testToken, spender, amount, big.NewInt(990))
	require.NoError(t, err)
	assert.Len(t, swap, 4+4*32)
}
