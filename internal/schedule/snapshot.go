package schedule

import (
	"context"
	"time"

	log "github.com/sirupsen/logrus"
	"gorm.io/gorm"

	"arbcontrol/internal/models"
	"arbcontrol/internal/vault"
)

// RunVaultSnapshot captures the derived vault metrics into a history row. The
// live numbers are always recomputed from the ledgers; the snapshots only feed
// dashboard history charts.
func RunVaultSnapshot(db *gorm.DB, accountant *vault.Accountant) func() {
	return func() {
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()

		metrics, err := accountant.Metrics(ctx)
		if err != nil {
			log.Errorf("vault snapshot: metrics unavailable: %v", err)
			return
		}

		snapshot := models.VaultSnapshot{
			TotalDeposited: metrics.TotalDeposited.String(),
			CumulativePnl:  metrics.CumulativePnl.String(),
			TotalShares:    metrics.TotalShares.String(),
			SharePrice:     metrics.SharePrice.String(),
			Timestamp:      time.Now(),
		}
		if err := db.WithContext(ctx).Create(&snapshot).Error; err != nil {
			log.Errorf("vault snapshot: write failed: %v", err)
		}
	}
}
