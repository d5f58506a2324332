package vault

import (
	"context"
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/shopspring/decimal"
	log "github.com/sirupsen/logrus"

	"arbcontrol/internal/apperrors"
	"arbcontrol/pkg/evm"
)

const tokenDecimals = 18

var weiPerToken = decimal.New(1, tokenDecimals)

// ChainReader is the slice of the chain client the verifier needs.
type ChainReader interface {
	Receipt(ctx context.Context, txHash common.Hash) (*types.Receipt, error)
	TransactionSender(ctx context.Context, txHash common.Hash) (common.Address, error)
}

// Verifier confirms that an externally-submitted transaction actually
// performed the claimed value transfer into custody before anything is
// credited.
type Verifier struct {
	chain   ChainReader
	custody common.Address
	token   common.Address
}

func NewVerifier(chain ChainReader, custody, settlementToken common.Address) *Verifier {
	return &Verifier{chain: chain, custody: custody, token: settlementToken}
}

// VerifyDeposit accepts the claim only if the transaction succeeded, its
// sender is the claimed depositor, and one of its logs is a settlement-token
// transfer from the depositor to custody for exactly the claimed amount. No
// epsilon: any nonzero delta is a rejection.
func (v *Verifier) VerifyDeposit(ctx context.Context, depositor common.Address, amount decimal.Decimal, txHash common.Hash) error {
	receipt, err := v.chain.Receipt(ctx, txHash)
	if err != nil || receipt == nil {
		// Likely not indexed yet by the read layer; the caller may retry.
		return apperrors.Verification("transaction not yet confirmed", true)
	}
	if receipt.Status != types.ReceiptStatusSuccessful {
		return apperrors.Verification("transaction failed on-chain", false)
	}

	sender, err := v.chain.TransactionSender(ctx, txHash)
	if err != nil {
		return apperrors.Verification("transaction sender unavailable", true)
	}
	if !strings.EqualFold(sender.Hex(), depositor.Hex()) {
		return apperrors.Verification("transaction sender does not match claimed depositor", false)
	}

	claimed := amount.Mul(weiPerToken).BigInt()
	for _, lg := range receipt.Logs {
		transfer, err := evm.ParseTransferLog(lg)
		if err != nil {
			log.Debugf("deposit %s: undecodable log skipped: %v", txHash.Hex(), err)
			continue
		}
		if transfer == nil {
			continue
		}
		if transfer.Token != v.token {
			continue
		}
		if transfer.From != depositor || transfer.To != v.custody {
			continue
		}
		if transfer.Value.Cmp(claimed) == 0 {
			return nil
		}
	}
	return apperrors.Verification("no transfer to custody matching the claimed amount", false)
}

// ClaimedWei converts a claimed token amount to its wire representation.
func ClaimedWei(amount decimal.Decimal) *big.Int {
	return amount.Mul(weiPerToken).BigInt()
}
