package quotes

import (
	"context"
	"fmt"
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"github.com/shopspring/decimal"

	"arbcontrol/internal/feeds"
	"arbcontrol/pkg/evm"
)

// Quote is one venue's answer for a pair and notional amount.
type Quote struct {
	Venue     string          `json:"venue"`
	Rate      decimal.Decimal `json:"rate"`
	AmountOut decimal.Decimal `json:"amount_out"`
}

// Venue quotes a trading pair for a notional amount.
type Venue interface {
	Name() string
	Quote(ctx context.Context, pair string, amount decimal.Decimal) (*Quote, error)
}

// ContractReader is the slice of the chain client the on-chain venue needs.
type ContractReader interface {
	ReadContract(ctx context.Context, to common.Address, contractABI, method string, args ...interface{}) ([]interface{}, error)
}

// tokenDecimals is fixed for the whitelisted stable tokens the agent trades.
const tokenDecimals = 18

var weiPerToken = decimal.New(1, tokenDecimals)

// SplitPair parses "EUR/USD" into its base and quote symbols.
func SplitPair(pair string) (string, string, error) {
	parts := strings.Split(pair, "/")
	if len(parts) != 2 || parts[0] == "" || parts[1] == "" {
		return "", "", fmt.Errorf("malformed pair %q", pair)
	}
	return parts[0], parts[1], nil
}

// ChainVenue reads quotes from a venue's on-chain router.
type ChainVenue struct {
	name   string
	router common.Address
	chain  ContractReader
	tokens map[string]common.Address
}

func NewChainVenue(name string, router common.Address, chain ContractReader, tokens map[string]common.Address) *ChainVenue {
	return &ChainVenue{name: name, router: router, chain: chain, tokens: tokens}
}

func (v *ChainVenue) Name() string { return v.name }

// Router returns the venue's router contract address.
func (v *ChainVenue) Router() common.Address { return v.router }

// Token resolves a whitelisted token symbol to its contract address.
func (v *ChainVenue) Token(symbol string) (common.Address, bool) {
	addr, ok := v.tokens[symbol]
	return addr, ok
}

func (v *ChainVenue) Quote(ctx context.Context, pair string, amount decimal.Decimal) (*Quote, error) {
	base, quote, err := SplitPair(pair)
	if err != nil {
		return nil, err
	}
	tokenIn, ok := v.tokens[base]
	if !ok {
		return nil, fmt.Errorf("venue %s: token %s not whitelisted", v.name, base)
	}
	tokenOut, ok := v.tokens[quote]
	if !ok {
		return nil, fmt.Errorf("venue %s: token %s not whitelisted", v.name, quote)
	}

	amountIn := amount.Mul(weiPerToken).BigInt()
	values, err := v.chain.ReadContract(ctx, v.router, evm.VenueRouterABI, "getAmountOut", tokenIn, tokenOut, amountIn)
	if err != nil {
		return nil, fmt.Errorf("venue %s: %w", v.name, err)
	}
	if len(values) == 0 {
		return nil, fmt.Errorf("venue %s: empty getAmountOut response", v.name)
	}
	raw, ok := values[0].(*big.Int)
	if !ok {
		return nil, fmt.Errorf("venue %s: unexpected getAmountOut type %T", v.name, values[0])
	}

	amountOut := decimal.NewFromBigInt(raw, -tokenDecimals)
	if amount.IsZero() {
		return nil, fmt.Errorf("venue %s: zero notional", v.name)
	}
	return &Quote{
		Venue:     v.name,
		Rate:      amountOut.Div(amount),
		AmountOut: amountOut,
	}, nil
}

// FeedVenue quotes from an off-chain rate feed; used as the reference side
// for remittance-style flows.
type FeedVenue struct {
	name string
	feed *feeds.RateFeed
}

func NewFeedVenue(name string, feed *feeds.RateFeed) *FeedVenue {
	return &FeedVenue{name: name, feed: feed}
}

func (v *FeedVenue) Name() string { return v.name }

func (v *FeedVenue) Quote(ctx context.Context, pair string, amount decimal.Decimal) (*Quote, error) {
	rate := v.feed.Rate(ctx, pair)
	return &Quote{
		Venue:     v.name,
		Rate:      rate.Rate,
		AmountOut: amount.Mul(rate.Rate),
	}, nil
}
