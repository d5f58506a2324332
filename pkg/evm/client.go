package evm

import (
	"context"
	"crypto/ecdsa"
	"fmt"
	"math/big"
	"strings"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/ethclient"
	log "github.com/sirupsen/logrus"
)

const (
	defaultCallTimeout    = 10 * time.Second
	defaultReceiptTimeout = 2 * time.Minute
	receiptPollInterval   = 2 * time.Second
	fallbackGasLimit      = 300000
)

// Client wraps a list of RPC endpoints behind the narrow chain contract the
// pipeline needs: contract reads, transaction submission and receipt waits.
// Endpoints are tried in order; the next one is used when a call fails.
type Client struct {
	endpoints   []string
	key         *ecdsa.PrivateKey
	from        common.Address
	chainID     *big.Int
	callTimeout time.Duration
	maxRetries  int

	mu      sync.Mutex
	clients map[string]*ethclient.Client
}

// NewClient builds a client over the ordered endpoint fallback list. The
// private key signs outgoing transactions; pass an empty key for a read-only
// client.
func NewClient(endpoints []string, privateKeyHex string, chainID int64) (*Client, error) {
	if len(endpoints) == 0 {
		return nil, fmt.Errorf("at least one RPC endpoint is required")
	}

	c := &Client{
		endpoints:   endpoints,
		chainID:     big.NewInt(chainID),
		callTimeout: defaultCallTimeout,
		maxRetries:  2,
		clients:     make(map[string]*ethclient.Client),
	}

	if privateKeyHex != "" {
		key, err := crypto.HexToECDSA(strings.TrimPrefix(privateKeyHex, "0x"))
		if err != nil {
			return nil, fmt.Errorf("invalid signer key: %w", err)
		}
		c.key = key
		c.from = crypto.PubkeyToAddress(key.PublicKey)
	}

	return c, nil
}

// From returns the submitting wallet address.
func (c *Client) From() common.Address {
	return c.from
}

func (c *Client) dial(endpoint string) (*ethclient.Client, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if client, ok := c.clients[endpoint]; ok {
		return client, nil
	}
	client, err := ethclient.Dial(endpoint)
	if err != nil {
		return nil, err
	}
	c.clients[endpoint] = client
	return client, nil
}

// withFallback runs fn against each endpoint in order until one succeeds,
// with a bounded per-call timeout. Every endpoint failing counts as one
// retry round.
func (c *Client) withFallback(ctx context.Context, fn func(ctx context.Context, client *ethclient.Client) error) error {
	var lastErr error
	for attempt := 0; attempt <= c.maxRetries; attempt++ {
		for _, endpoint := range c.endpoints {
			client, err := c.dial(endpoint)
			if err != nil {
				log.Warnf("evm: dial %s failed: %v", endpoint, err)
				lastErr = err
				continue
			}
			callCtx, cancel := context.WithTimeout(ctx, c.callTimeout)
			err = fn(callCtx, client)
			cancel()
			if err == nil {
				return nil
			}
			lastErr = err
			if ctx.Err() != nil {
				return ctx.Err()
			}
			log.Warnf("evm: call via %s failed: %v", endpoint, err)
		}
	}
	return fmt.Errorf("all RPC endpoints failed: %w", lastErr)
}

// ReadContract calls a view method and returns the unpacked values.
func (c *Client) ReadContract(ctx context.Context, to common.Address, contractABI, method string, args ...interface{}) ([]interface{}, error) {
	parsed, err := parseABI(contractABI)
	if err != nil {
		return nil, err
	}
	data, err := parsed.Pack(method, args...)
	if err != nil {
		return nil, fmt.Errorf("pack %s: %w", method, err)
	}

	var raw []byte
	err = c.withFallback(ctx, func(ctx context.Context, client *ethclient.Client) error {
		raw, err = client.CallContract(ctx, ethereum.CallMsg{To: &to, Data: data}, nil)
		return err
	})
	if err != nil {
		return nil, err
	}
	return parsed.Unpack(method, raw)
}

// SubmitTransaction signs and broadcasts a transaction to the given contract
// and returns its hash. Confirmation is the caller's job via WaitForReceipt.
func (c *Client) SubmitTransaction(ctx context.Context, to common.Address, data []byte) (common.Hash, error) {
	if c.key == nil {
		return common.Hash{}, fmt.Errorf("client has no signer key configured")
	}

	var txHash common.Hash
	err := c.withFallback(ctx, func(ctx context.Context, client *ethclient.Client) error {
		pendingNonce, err := client.PendingNonceAt(ctx, c.from)
		if err != nil {
			return fmt.Errorf("pending nonce: %w", err)
		}
		gasPrice, err := client.SuggestGasPrice(ctx)
		if err != nil {
			return fmt.Errorf("gas price: %w", err)
		}
		gasLimit, err := client.EstimateGas(ctx, ethereum.CallMsg{From: c.from, To: &to, Data: data})
		if err != nil {
			gasLimit = fallbackGasLimit
		}

		tx := types.NewTransaction(pendingNonce, to, big.NewInt(0), gasLimit, gasPrice, data)
		signed, err := types.SignTx(tx, types.LatestSignerForChainID(c.chainID), c.key)
		if err != nil {
			return fmt.Errorf("sign tx: %w", err)
		}
		if err := client.SendTransaction(ctx, signed); err != nil {
			return err
		}
		txHash = signed.Hash()
		return nil
	})
	return txHash, err
}

// WaitForReceipt polls until the transaction is mined or the deadline hits.
func (c *Client) WaitForReceipt(ctx context.Context, txHash common.Hash) (*types.Receipt, error) {
	deadline := time.Now().Add(defaultReceiptTimeout)
	for {
		receipt, err := c.Receipt(ctx, txHash)
		if err == nil && receipt != nil {
			return receipt, nil
		}
		if time.Now().After(deadline) {
			return nil, fmt.Errorf("timeout waiting for receipt of %s", txHash.Hex())
		}
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(receiptPollInterval):
		}
	}
}

// Receipt fetches the receipt once, without waiting. A nil receipt with nil
// error means the transaction is not indexed yet.
func (c *Client) Receipt(ctx context.Context, txHash common.Hash) (*types.Receipt, error) {
	var receipt *types.Receipt
	err := c.withFallback(ctx, func(ctx context.Context, client *ethclient.Client) error {
		r, err := client.TransactionReceipt(ctx, txHash)
		if err != nil {
			return err
		}
		receipt = r
		return nil
	})
	return receipt, err
}

// TransactionSender resolves the from-address of a mined transaction.
func (c *Client) TransactionSender(ctx context.Context, txHash common.Hash) (common.Address, error) {
	var sender common.Address
	err := c.withFallback(ctx, func(ctx context.Context, client *ethclient.Client) error {
		tx, pending, err := client.TransactionByHash(ctx, txHash)
		if err != nil {
			return err
		}
		if pending {
			return fmt.Errorf("transaction %s still pending", txHash.Hex())
		}
		from, err := types.Sender(types.LatestSignerForChainID(c.chainID), tx)
		if err != nil {
			return err
		}
		sender = from
		return nil
	})
	return sender, err
}
