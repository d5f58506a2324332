package quotes

import (
	"context"
	"errors"
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type scriptedReader struct {
	values []interface{}
	err    error
}

func (r *scriptedReader) ReadContract(ctx context.Context, to common.Address, contractABI, method string, args ...interface{}) ([]interface{}, error) {
	return r.values, r.err
}

func testTokens() map[string]common.Address {
	return map[string]common.Address{
		"EUR": common.HexToAddress("0x1000000000000000000000000000000000000001"),
		"USD": common.HexToAddress("0x1000000000000000000000000000000000000002"),
	}
}

func TestChainVenueQuote(t *testing.T) {
	router := common.HexToAddress("0x2000000000000000000000000000000000000001")

	t.Run("converts router output to a rate", func(t *testing.T) {
		// 100 EUR in, 108.25 USD out at 18 decimals.
		out, _ := new(big.Int).SetString("108250000000000000000", 10)
		v := NewChainVenue("venueA", router, &scriptedReader{values: []interface{}{out}}, testTokens())

		quote, err := v.Quote(context.Background(), "EUR/USD", decimal.NewFromInt(100))
		require.NoError(t, err)
		assert.Equal(t, "venueA", quote.Venue)
		assert.True(t, quote.Rate.Equal(decimal.RequireFromString("1.0825")), "got %s", quote.Rate)
		assert.True(t, quote.AmountOut.Equal(decimal.RequireFromString("108.25")), "got %s", quote.AmountOut)
	})

	t.Run("empty router response is an error", func(t *testing.T) {
		v := NewChainVenue("venueA", router, &scriptedReader{values: []interface{}{}}, testTokens())

		_, err := v.Quote(context.Background(), "EUR/USD", decimal.NewFromInt(100))
		require.Error(t, err)
		assert.Contains(t, err.Error(), "empty getAmountOut response")
	})

	t.Run("mistyped router response is an error", func(t *testing.T) {
		v := NewChainVenue("venueA", router, &scriptedReader{values: []interface{}{"108"}}, testTokens())

		_, err := v.Quote(context.Background(), "EUR/USD", decimal.NewFromInt(100))
		assert.Error(t, err)
	})

	t.Run("router failure propagates", func(t *testing.T) {
		v := NewChainVenue("venueA", router, &scriptedReader{err: errors.New("connection refused")}, testTokens())

		_, err := v.Quote(context.Background(), "EUR/USD", decimal.NewFromInt(100))
		assert.Error(t, err)
	})

	t.Run("unknown token rejected before any chain call", func(t *testing.T) {
		v := NewChainVenue("venueA", router, &scriptedReader{err: errors.New("should not be called")}, testTokens())

		_, err := v.Quote(context.Background(), "GBP/USD", decimal.NewFromInt(100))
		require.Error(t, err)
		assert.Contains(t, err.Error(), "not whitelisted")
	})
}
