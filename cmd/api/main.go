package main

import (
	"log"
	"os"
	"strconv"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"github.com/joho/godotenv"
	"github.com/robfig/cron/v3"
	"github.com/shopspring/decimal"

	"arbcontrol/internal/auth"
	"arbcontrol/internal/executor"
	"arbcontrol/internal/feeds"
	"arbcontrol/internal/handlers"
	"arbcontrol/internal/idempotency"
	"arbcontrol/internal/nonce"
	"arbcontrol/internal/notify"
	"arbcontrol/internal/quotes"
	"arbcontrol/internal/routes"
	"arbcontrol/internal/schedule"
	"arbcontrol/internal/store"
	"arbcontrol/internal/vault"
	"arbcontrol/pkg/config"
	"arbcontrol/pkg/evm"
)

func main() {
	if err := godotenv.Load(); err != nil {
		log.Println("No .env file found, using environment variables")
	}

	// Initialize database
	config.InitDB()

	// The shared store backs the nonce ledger and idempotency cache. Redis
	// keeps the replay guard consistent across API instances; without it the
	// database serves the same role on a single instance.
	var sharedStore store.Store
	if os.Getenv("REDIS_HOST") != "" {
		config.InitRedis()
		sharedStore = store.NewRedisStore(config.Redis, "arbcontrol")
	} else {
		log.Println("Redis not configured, using database-backed store")
		sharedStore = store.NewGormStore(config.DB, nil)
	}

	// Initialize RabbitMQ (optional, will log warning if not configured)
	var publisher *config.Publisher
	if os.Getenv("RABBITMQ_HOST") != "" {
		config.InitRabbitMQ()
		defer func() {
			if config.RabbitMQ != nil {
				config.RabbitMQ.Close()
			}
		}()
		p, err := config.NewPublisher()
		if err != nil {
			log.Fatal("Create publisher failed:", err)
		}
		publisher = p
		log.Println("RabbitMQ initialized successfully")
	} else {
		log.Println("RabbitMQ not configured, skipping initialization")
	}

	// Chain client over the RPC fallback list
	endpoints := splitList(os.Getenv("RPC_ENDPOINTS"))
	chainID, err := strconv.ParseInt(envOr("CHAIN_ID", "1"), 10, 64)
	if err != nil {
		log.Fatal("Invalid CHAIN_ID:", err)
	}
	chain, err := evm.NewClient(endpoints, os.Getenv("EXECUTOR_PRIVATE_KEY"), chainID)
	if err != nil {
		log.Fatal("Failed to create chain client:", err)
	}

	tokens := parseAddressMap(os.Getenv("TOKENS"))
	chainVenues := make(map[string]*quotes.ChainVenue)
	var venues []quotes.Venue
	for name, router := range parseAddressMap(os.Getenv("VENUES")) {
		venue := quotes.NewChainVenue(name, router, chain, tokens)
		chainVenues[name] = venue
		venues = append(venues, venue)
	}
	if url := os.Getenv("FOREX_FEED_URL"); url != "" {
		venues = append(venues, quotes.NewFeedVenue("forex", feeds.NewForexFeed(url)))
	}
	if url := os.Getenv("CRYPTO_FEED_URL"); url != "" {
		venues = append(venues, quotes.NewFeedVenue("crypto", feeds.NewCryptoFeed(url)))
	}
	if len(venues) < 2 {
		log.Println("Warning: fewer than two venues configured, arbitrage quoting will fail")
	}

	custodyAddr := common.HexToAddress(os.Getenv("CUSTODY_ADDRESS"))
	settlementToken := common.HexToAddress(os.Getenv("SETTLEMENT_TOKEN"))

	broadcaster := notify.NewBroadcaster()
	notifier := notify.NewNotifier(publisher, broadcaster)
	ledger := vault.NewGormLedger(config.DB)
	custody := vault.NewChainCustody(chain, custodyAddr, settlementToken)

	handlers.Init(&handlers.Services{
		Auth:        auth.NewAuthenticator(os.Getenv("AGENT_API_SECRET"), nonce.NewLedger(sharedStore, nil), nil),
		Idem:        idempotency.NewCache(sharedStore, 0, 0),
		Quotes:      quotes.NewAggregator(venues, 0),
		Threshold:   quotes.ThresholdFromEnv(),
		Exec:        executor.NewOrchestrator(chain, executor.NewGormTradeStore(config.DB), notifier),
		Accountant:  vault.NewAccountant(ledger, custody),
		Verifier:    vault.NewVerifier(chain, custodyAddr, settlementToken),
		Notifier:    notifier,
		Venues:      chainVenues,
		GasCostUSD:  envDecimal("GAS_COST_USD", "0.5"),
		MaxNotional: envDecimal("MAX_NOTIONAL", "100000"),
	})

	// Background maintenance
	scheduler := cron.New()
	scheduler.AddFunc("@every 10m", schedule.RunStorePrune(sharedStore))
	scheduler.AddFunc("@hourly", schedule.RunVaultSnapshot(config.DB, vault.NewAccountant(ledger, custody)))
	scheduler.AddFunc("@every 5m", schedule.RunTradeReconcile(config.DB, chain))
	scheduler.Start()
	defer scheduler.Stop()

	// Set up router
	r := routes.SetupRouter(broadcaster)

	// Start server
	port := os.Getenv("PORT")
	if port == "" {
		port = "8080"
	}

	if err := r.Run(":" + port); err != nil {
		log.Fatal("Failed to start server:", err)
	}
}

func envOr(name, fallback string) string {
	if value := os.Getenv(name); value != "" {
		return value
	}
	return fallback
}

func envDecimal(name, fallback string) decimal.Decimal {
	if raw := os.Getenv(name); raw != "" {
		if value, err := decimal.NewFromString(raw); err == nil {
			return value
		}
		log.Printf("Invalid %s=%q, using default %s", name, os.Getenv(name), fallback)
	}
	return decimal.RequireFromString(fallback)
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

// parseAddressMap parses "name=0xaddr,name2=0xaddr2" pairs.
func parseAddressMap(raw string) map[string]common.Address {
	out := make(map[string]common.Address)
	for _, part := range splitList(raw) {
		kv := strings.SplitN(part, "=", 2)
		if len(kv) != 2 || !common.IsHexAddress(kv[1]) {
			log.Printf("Skipping malformed address entry %q", part)
			continue
		}
		out[strings.TrimSpace(kv[0])] = common.HexToAddress(kv[1])
	}
	return out
}
