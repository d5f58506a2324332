package schedule

import (
	"context"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	log "github.com/sirupsen/logrus"
	"gorm.io/gorm"

	"arbcontrol/internal/models"
)

// staleWindow is how long a trade may sit pending before the reconciler
// considers it abandoned (process crash mid-orchestration).
const staleWindow = 10 * time.Minute

type receiptReader interface {
	Receipt(ctx context.Context, txHash common.Hash) (*types.Receipt, error)
}

// RunTradeReconcile resolves trades left pending by a crashed orchestration.
// A pending trade past the stale window is checked against the chain: if its
// last submitted transaction confirmed, the trade is marked confirmed,
// otherwise failed. Trades that never reached a submission are failed
// outright.
func RunTradeReconcile(db *gorm.DB, chain receiptReader) func() {
	return func() {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
		defer cancel()

		cutoff := time.Now().Add(-staleWindow)
		var trades []models.Trade
		if err := db.WithContext(ctx).
			Where("status = ? AND created_at < ?", models.TradeStatusPending, cutoff).
			Find(&trades).Error; err != nil {
			log.Errorf("trade reconcile: query failed: %v", err)
			return
		}

		for _, trade := range trades {
			newStatus := reconcileStatus(ctx, chain, &trade)
			if newStatus == trade.Status {
				continue
			}
			if err := db.WithContext(ctx).Model(&trade).
				Updates(map[string]interface{}{"status": newStatus, "error": trade.Error}).Error; err != nil {
				log.Errorf("trade reconcile: update %s failed: %v", trade.ID, err)
				continue
			}
			log.Infof("trade reconcile: %s pending -> %s", trade.ID, newStatus)
		}
	}
}

// lastTxHash is the final submission the orchestration got to, if any.
func lastTxHash(trade *models.Trade) string {
	for _, h := range []string{trade.TransferTxHash, trade.SellSwapTxHash, trade.BuySwapTxHash} {
		if h != "" {
			return h
		}
	}
	return ""
}

func reconcileStatus(ctx context.Context, chain receiptReader, trade *models.Trade) string {
	hash := lastTxHash(trade)
	if hash == "" {
		trade.Error = "abandoned before any submission"
		return models.TradeStatusFailed
	}

	receipt, err := chain.Receipt(ctx, common.HexToHash(hash))
	if err != nil || receipt == nil {
		// Still unresolvable; leave it for the next round.
		return trade.Status
	}
	if receipt.Status == types.ReceiptStatusSuccessful {
		return models.TradeStatusConfirmed
	}
	trade.Error = "last submitted transaction reverted"
	return models.TradeStatusFailed
}
