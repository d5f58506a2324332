package auth

import (
	"context"
	"crypto/subtle"
	"encoding/hex"
	"fmt"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	log "github.com/sirupsen/logrus"

	"arbcontrol/internal/apperrors"
	"arbcontrol/internal/nonce"
	"arbcontrol/internal/store"
)

// Mode is the explicit auth mode discriminator. The two capability paths are
// mutually exclusive and selected by the request, never by sniffing headers.
type Mode string

const (
	ModeAgent  Mode = "agent"
	ModeWallet Mode = "wallet"
)

const minAgentTokenLen = 16

// Payload is the auth block every mutating request carries.
type Payload struct {
	Mode      string `json:"mode" binding:"required"`
	Token     string `json:"token,omitempty"`
	Signer    string `json:"signer,omitempty"`
	Signature string `json:"signature,omitempty"`
	Nonce     string `json:"nonce,omitempty"`
	Timestamp int64  `json:"timestamp,omitempty"`
}

// Identity is the resolved caller on success.
type Identity struct {
	Mode    Mode   `json:"mode"`
	Address string `json:"address,omitempty"`
}

// Field is one business parameter bound into the signed message, in order.
type Field struct {
	Name  string
	Value string
}

// Authenticator resolves caller identity under the trusted-agent or
// wallet-signature path. Wallet-path failures all collapse into a single
// undifferentiated Unauthorized so the response is not an oracle for which
// check failed.
type Authenticator struct {
	agentSecret string
	nonces      *nonce.Ledger
	now         store.Clock
}

func NewAuthenticator(agentSecret string, nonces *nonce.Ledger, clock store.Clock) *Authenticator {
	if clock == nil {
		clock = time.Now
	}
	return &Authenticator{agentSecret: agentSecret, nonces: nonces, now: clock}
}

// Authenticate checks the payload for the given action scope. For the wallet
// path, fields must be the action's business parameters in canonical order.
func (a *Authenticator) Authenticate(ctx context.Context, scope string, p Payload, fields []Field) (*Identity, error) {
	switch Mode(p.Mode) {
	case ModeAgent:
		return a.authenticateAgent(p)
	case ModeWallet:
		return a.authenticateWallet(ctx, scope, p, fields)
	default:
		return nil, apperrors.Validation("unknown auth mode %q", p.Mode)
	}
}

func (a *Authenticator) authenticateAgent(p Payload) (*Identity, error) {
	// A missing server secret is an operator problem, reported distinctly
	// from a bad credential.
	if a.agentSecret == "" {
		return nil, apperrors.Configuration("agent authentication is not configured on this server")
	}
	if len(p.Token) < minAgentTokenLen {
		return nil, apperrors.Unauthorized()
	}
	if subtle.ConstantTimeCompare([]byte(p.Token), []byte(a.agentSecret)) != 1 {
		return nil, apperrors.Unauthorized()
	}
	return &Identity{Mode: ModeAgent}, nil
}

func (a *Authenticator) authenticateWallet(ctx context.Context, scope string, p Payload, fields []Field) (*Identity, error) {
	if !common.IsHexAddress(p.Signer) {
		log.Debugf("auth %s: malformed signer address", scope)
		return nil, apperrors.Unauthorized()
	}

	signedAt := time.Unix(p.Timestamp, 0)
	drift := a.now().Sub(signedAt)
	if drift < 0 {
		drift = -drift
	}
	if drift > nonce.MaxClockSkew {
		log.Debugf("auth %s: timestamp outside skew window", scope)
		return nil, apperrors.Unauthorized()
	}

	message := CanonicalMessage(scope, p.Signer, fields, p.Nonce, p.Timestamp)
	recovered, err := RecoverSigner(message, p.Signature)
	if err != nil {
		log.Debugf("auth %s: signature recovery failed: %v", scope, err)
		return nil, apperrors.Unauthorized()
	}
	if !strings.EqualFold(recovered, p.Signer) {
		log.Debugf("auth %s: recovered address does not match claimed signer", scope)
		return nil, apperrors.Unauthorized()
	}

	// The nonce is consumed here, before the downstream action runs. A
	// failed action cannot be re-signed with the same nonce; retries go
	// through the idempotency key instead.
	if !a.nonces.Consume(ctx, scope, p.Signer, p.Nonce, signedAt) {
		log.Debugf("auth %s: nonce replayed or expired", scope)
		return nil, apperrors.Unauthorized()
	}

	return &Identity{Mode: ModeWallet, Address: strings.ToLower(p.Signer)}, nil
}

// CanonicalMessage builds the human-readable message the wallet signed: the
// action label followed by ordered field:value lines.
func CanonicalMessage(label, signer string, fields []Field, nonceValue string, timestamp int64) string {
	var b strings.Builder
	b.WriteString(label)
	b.WriteString("\nsigner:")
	b.WriteString(strings.ToLower(signer))
	for _, f := range fields {
		b.WriteString("\n")
		b.WriteString(f.Name)
		b.WriteString(":")
		b.WriteString(f.Value)
	}
	b.WriteString("\nnonce:")
	b.WriteString(nonceValue)
	b.WriteString(fmt.Sprintf("\ntimestamp:%d", timestamp))
	return b.String()
}

// RecoverSigner recovers the address that produced signature over the
// EIP-191 personal-sign digest of message.
func RecoverSigner(message, signature string) (string, error) {
	sig, err := hex.DecodeString(strings.TrimPrefix(signature, "0x"))
	if err != nil {
		return "", fmt.Errorf("invalid signature encoding: %w", err)
	}
	if len(sig) != crypto.SignatureLength {
		return "", fmt.Errorf("invalid signature length %d", len(sig))
	}
	// Wallets return V as 27/28; go-ethereum expects 0/1.
	if sig[crypto.RecoveryIDOffset] >= 27 {
		sig = append([]byte{}, sig...)
		sig[crypto.RecoveryIDOffset] -= 27
	}

	digest := personalDigest(message)
	pub, err := crypto.SigToPub(digest, sig)
	if err != nil {
		return "", fmt.Errorf("signature recovery failed: %w", err)
	}
	return crypto.PubkeyToAddress(*pub).Hex(), nil
}

func personalDigest(message string) []byte {
	prefixed := fmt.Sprintf("\x19Ethereum Signed Message:\n%d%s", len(message), message)
	return crypto.Keccak256([]byte(prefixed))
}
