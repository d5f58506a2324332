package handlers

import (
	"bytes"
	"context"
	"crypto/ecdsa"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"math/big"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"arbcontrol/internal/auth"
	"arbcontrol/internal/executor"
	"arbcontrol/internal/idempotency"
	"arbcontrol/internal/models"
	"arbcontrol/internal/nonce"
	"arbcontrol/internal/quotes"
	"arbcontrol/internal/store"
)

const testAgentSecret = "test-agent-secret-0123"

var (
	routerA = common.HexToAddress("0x2000000000000000000000000000000000000001")
	routerB = common.HexToAddress("0x2000000000000000000000000000000000000002")
)

// quoteReader answers getAmountOut per router address.
type quoteReader struct {
	outs map[common.Address]*big.Int
}

func (r *quoteReader) ReadContract(ctx context.Context, to common.Address, contractABI, method string, args ...interface{}) ([]interface{}, error) {
	out, ok := r.outs[to]
	if !ok {
		return nil, fmt.Errorf("no quote for %s", to.Hex())
	}
	return []interface{}{new(big.Int).Set(out)}, nil
}

// stubChain confirms every submission unless failAt names one (1-based).
type stubChain struct {
	submissions int
	failAt      int
	failWith    error
}

func (c *stubChain) SubmitTransaction(ctx context.Context, to common.Address, data []byte) (common.Hash, error) {
	c.submissions++
	if c.failAt != 0 && c.submissions == c.failAt {
		return common.Hash{}, c.failWith
	}
	return common.BigToHash(big.NewInt(int64(c.submissions))), nil
}

func (c *stubChain) WaitForReceipt(ctx context.Context, txHash common.Hash) (*types.Receipt, error) {
	return &types.Receipt{Status: types.ReceiptStatusSuccessful, TxHash: txHash}, nil
}

type memTrades struct {
	rows map[string]*models.Trade
}

func (s *memTrades) Create(ctx context.Context, trade *models.Trade) error {
	s.rows[trade.ID] = trade
	return nil
}

func (s *memTrades) Update(ctx context.Context, trade *models.Trade) error {
	s.rows[trade.ID] = trade
	return nil
}

type noopSink struct{}

func (noopSink) TradeUpdated(*models.Trade) {}

func weiOut(amount string) *big.Int {
	return decimal.RequireFromString(amount).Mul(decimal.New(1, 18)).BigInt()
}

// initArbServices wires the handler package against in-memory backends:
// venueA quotes 1.0825, venueB 1.0864 for a 100 EUR notional (~0.3603%
// spread).
func initArbServices(chain executor.ChainClient, threshold quotes.ThresholdConfig, gasCostUSD string) {
	mem := store.NewMemoryStore(nil)
	tokens := map[string]common.Address{
		"EUR": common.HexToAddress("0x1000000000000000000000000000000000000001"),
		"USD": common.HexToAddress("0x1000000000000000000000000000000000000002"),
	}
	reader := &quoteReader{outs: map[common.Address]*big.Int{
		routerA: weiOut("108.25"),
		routerB: weiOut("108.64"),
	}}
	venueA := quotes.NewChainVenue("venueA", routerA, reader, tokens)
	venueB := quotes.NewChainVenue("venueB", routerB, reader, tokens)

	Init(&Services{
		Auth:        auth.NewAuthenticator(testAgentSecret, nonce.NewLedger(mem, nil), nil),
		Idem:        idempotency.NewCache(mem, 0, 0),
		Quotes:      quotes.NewAggregator([]quotes.Venue{venueA, venueB}, time.Second),
		Threshold:   threshold,
		Exec:        executor.NewOrchestrator(chain, &memTrades{rows: make(map[string]*models.Trade)}, noopSink{}),
		Venues:      map[string]*quotes.ChainVenue{"venueA": venueA, "venueB": venueB},
		GasCostUSD:  decimal.RequireFromString(gasCostUSD),
		MaxNotional: decimal.NewFromInt(100000),
	})
}

func lowThreshold() quotes.ThresholdConfig {
	return quotes.ThresholdConfig{
		BaseFloorPct:         decimal.RequireFromString("0.1"),
		SlippageBufferPct:    decimal.RequireFromString("0.01"),
		SafetyMarginPct:      decimal.RequireFromString("0.01"),
		MinAbsoluteProfitUSD: decimal.RequireFromString("0.01"),
	}
}

func newArbRouter() *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.POST("/arbitrage/execute", ExecuteArbitrage)
	return r
}

// walletAuth signs the canonical message for the scope the way a wallet
// would: EIP-191 personal-sign digest, V as 27/28.
func walletAuth(t *testing.T, key *ecdsa.PrivateKey, scope string, fields []auth.Field, nonceValue string, ts int64) gin.H {
	t.Helper()
	signer := crypto.PubkeyToAddress(key.PublicKey).Hex()
	message := auth.CanonicalMessage(scope, signer, fields, nonceValue, ts)
	prefixed := fmt.Sprintf("\x19Ethereum Signed Message:\n%d%s", len(message), message)
	sig, err := crypto.Sign(crypto.Keccak256([]byte(prefixed)), key)
	require.NoError(t, err)
	sig[crypto.RecoveryIDOffset] += 27
	return gin.H{
		"mode":      "wallet",
		"signer":    signer,
		"signature": "0x" + hex.EncodeToString(sig),
		"nonce":     nonceValue,
		"timestamp": ts,
	}
}

func postJSON(t *testing.T, r *gin.Engine, path string, body []byte) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, path, bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func decodeBody(t *testing.T, w *httptest.ResponseRecorder) map[string]interface{} {
	t.Helper()
	var body map[string]interface{}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	return body
}

func TestExecuteArbitrageIdempotentReplay(t *testing.T) {
	chain := &stubChain{}
	initArbServices(chain, lowThreshold(), "0.01")
	r := newArbRouter()

	key, err := crypto.GenerateKey()
	require.NoError(t, err)
	fields := []auth.Field{
		{Name: "pair", Value: "EUR/USD"},
		{Name: "amount", Value: "100"},
	}
	payload, err := json.Marshal(gin.H{
		"pair":   "EUR/USD",
		"amount": "100",
		"auth":   walletAuth(t, key, "arbitrage:execute", fields, "n-1", time.Now().Unix()),
	})
	require.NoError(t, err)

	first := postJSON(t, r, "/arbitrage/execute", payload)
	require.Equal(t, http.StatusOK, first.Code, first.Body.String())
	firstBody := decodeBody(t, first)
	tradeID, _ := firstBody["trade_id"].(string)
	require.NotEmpty(t, tradeID)
	assert.Nil(t, firstBody["idempotent"])
	assert.Equal(t, "venueA", firstBody["buy_venue"])
	assert.Equal(t, "venueB", firstBody["sell_venue"])
	assert.Equal(t, 4, chain.submissions, "two legs, approve+swap each")

	// The byte-identical resubmission replays the original response: same
	// trade, flagged, and nothing re-submitted on chain.
	second := postJSON(t, r, "/arbitrage/execute", payload)
	require.Equal(t, http.StatusOK, second.Code, second.Body.String())
	secondBody := decodeBody(t, second)
	assert.Equal(t, true, secondBody["idempotent"])
	assert.Equal(t, tradeID, secondBody["trade_id"])
	assert.Equal(t, 4, chain.submissions, "replay must not touch the chain")
}

func TestExecuteArbitrageNotProfitable(t *testing.T) {
	threshold := quotes.ThresholdConfig{
		BaseFloorPct:         decimal.RequireFromString("0.5"),
		SlippageBufferPct:    decimal.RequireFromString("0.01"),
		SafetyMarginPct:      decimal.RequireFromString("0.01"),
		MinAbsoluteProfitUSD: decimal.RequireFromString("0.01"),
	}
	chain := &stubChain{}
	initArbServices(chain, threshold, "0.01")
	r := newArbRouter()

	payload, err := json.Marshal(gin.H{
		"pair":   "EUR/USD",
		"amount": "100",
		"auth":   gin.H{"mode": "agent", "token": testAgentSecret},
	})
	require.NoError(t, err)

	w := postJSON(t, r, "/arbitrage/execute", payload)
	require.Equal(t, http.StatusUnprocessableEntity, w.Code, w.Body.String())
	body := decodeBody(t, w)
	appErr, ok := body["error"].(map[string]interface{})
	require.True(t, ok, "structured error expected: %s", w.Body.String())
	assert.Equal(t, "not_profitable", appErr["kind"])
	details, ok := appErr["details"].(map[string]interface{})
	require.True(t, ok)
	assert.Equal(t, "0.3603", details["spread_pct"])
	assert.Equal(t, "0.5000", details["threshold_pct"])
	assert.Equal(t, 0, chain.submissions)
}

func TestExecuteArbitrageCachedFailureKeepsStatus(t *testing.T) {
	// Leg 1 confirms (submissions 1 and 2), the sell-leg approval fails.
	chain := &stubChain{failAt: 3, failWith: fmt.Errorf("execution reverted")}
	initArbServices(chain, lowThreshold(), "0.01")
	r := newArbRouter()

	key, err := crypto.GenerateKey()
	require.NoError(t, err)
	fields := []auth.Field{
		{Name: "pair", Value: "EUR/USD"},
		{Name: "amount", Value: "100"},
	}
	payload, err := json.Marshal(gin.H{
		"pair":   "EUR/USD",
		"amount": "100",
		"auth":   walletAuth(t, key, "arbitrage:execute", fields, "n-2", time.Now().Unix()),
	})
	require.NoError(t, err)

	first := postJSON(t, r, "/arbitrage/execute", payload)
	require.Equal(t, http.StatusConflict, first.Code, first.Body.String())
	firstBody := decodeBody(t, first)
	firstErr, ok := firstBody["error"].(map[string]interface{})
	require.True(t, ok)
	assert.Equal(t, "partial_execution_failure", firstErr["kind"])

	// The cached failure replays as the same failure, not as a success.
	second := postJSON(t, r, "/arbitrage/execute", payload)
	require.Equal(t, http.StatusConflict, second.Code, second.Body.String())
	secondBody := decodeBody(t, second)
	assert.Equal(t, true, secondBody["idempotent"])
	assert.Equal(t, firstBody["trade_id"], secondBody["trade_id"])
	secondErr, ok := secondBody["error"].(map[string]interface{})
	require.True(t, ok)
	assert.Equal(t, "partial_execution_failure", secondErr["kind"])
	assert.Equal(t, 3, chain.submissions, "replay must not touch the chain")
}
