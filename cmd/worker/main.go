package main

import (
	"encoding/json"
	"log"
	"os"
	"strconv"
	"strings"
	"time"

	logrus "github.com/sirupsen/logrus"

	"arbcontrol/internal/models"
	"arbcontrol/internal/notify"
	"arbcontrol/internal/schedule"
	"arbcontrol/pkg/config"
	"arbcontrol/pkg/evm"
)

// The worker drains the trade event queue into structured logs. It is the
// place to hang downstream side effects (alerting, settlement exports) off
// trade lifecycle transitions without touching the API's response path.
func main() {
	// Initialize logger
	logrus.SetFormatter(&logrus.JSONFormatter{})
	logrus.SetLevel(logrus.InfoLevel)

	// Initialize database
	config.InitDB()

	// Initialize RabbitMQ
	config.InitRabbitMQ()
	defer config.RabbitMQ.Close()

	// Independently of the event stream, sweep trades left pending by a
	// crashed orchestration against on-chain receipts.
	if endpoints := os.Getenv("RPC_ENDPOINTS"); endpoints != "" {
		chainID, err := strconv.ParseInt(os.Getenv("CHAIN_ID"), 10, 64)
		if err != nil {
			chainID = 1
		}
		chain, err := evm.NewClient(splitList(endpoints), "", chainID)
		if err != nil {
			logrus.Fatal("Failed to create chain client: ", err)
		}
		reconcile := schedule.RunTradeReconcile(config.DB, chain)
		go func() {
			ticker := time.NewTicker(5 * time.Minute)
			defer ticker.Stop()
			for range ticker.C {
				reconcile()
			}
		}()
	} else {
		logrus.Warn("RPC_ENDPOINTS not configured, trade reconciliation disabled")
	}

	msgConsumer, err := config.NewConsumer(notify.TradeEventsQueue)
	if err != nil {
		logrus.Fatal("Failed to create consumer: ", err)
	}
	defer msgConsumer.Close()

	logrus.Info("Trade event worker started, waiting for messages...")

	err = msgConsumer.Consume(func(msg []byte) error {
		var trade models.Trade
		if err := json.Unmarshal(msg, &trade); err != nil {
			logrus.Errorf("Failed to unmarshal trade event: %v", err)
			return err
		}

		logFields := logrus.Fields{
			"trade_id":   trade.ID,
			"kind":       trade.Kind,
			"pair":       trade.Pair,
			"status":     trade.Status,
			"buy_venue":  trade.BuyVenue,
			"sell_venue": trade.SellVenue,
			"amount_in":  trade.AmountIn,
			"amount_out": trade.AmountOut,
		}
		if trade.Pnl != "" {
			logFields["pnl"] = trade.Pnl
		}
		if trade.Error != "" {
			logFields["error"] = trade.Error
		}
		logrus.WithFields(logFields).Info("Trade lifecycle event")

		return nil
	})

	if err != nil {
		log.Fatal("Failed to start consumer: ", err)
	}
}

func splitList(raw string) []string {
	var out []string
	for _, part := range strings.Split(raw, ",") {
		if trimmed := strings.TrimSpace(part); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}
