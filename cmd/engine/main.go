package main

import (
	"context"
	"log"
	"os"

	"github.com/rawblock/intent-engine/internal/api"
	"github.com/rawblock/intent-engine/internal/builder"
	"github.com/rawblock/intent-engine/internal/chain"
	"github.com/rawblock/intent-engine/internal/db"
	"github.com/rawblock/intent-engine/internal/feemarket"
	"github.com/rawblock/intent-engine/internal/parser"
	"github.com/rawblock/intent-engine/internal/protocols"
	"github.com/rawblock/intent-engine/internal/venues"
)

func main() {
	log.Println("Starting RawBlock Intent Engine (Microservice: solana-intent-builder)...")
	log.Println("Initializing Intent Parser and Protocol Registry...")

	// ─── Environment Variables ──────────────────────────────────────────
	// Every setting has a working default: public RPC endpoints, no DB,
	// no LLM fallback, pattern-only parsing. Credentials (HELIUS_API_KEY,
	// ANTHROPIC_API_KEY, DATABASE_URL, API_AUTH_TOKEN) come from the
	// environment only. Use a .env file for local development:
	// cp .env.example .env && edit .env
	// ────────────────────────────────────────────────────────────────────

	chainClient, err := chain.NewClient(chain.Config{
		MainnetRPC:     os.Getenv("SOLANA_MAINNET_RPC"),
		DevnetRPC:      os.Getenv("SOLANA_DEVNET_RPC"),
		HeliusKey:      os.Getenv("HELIUS_API_KEY"),
		DefaultNetwork: getEnvOrDefault("DEFAULT_NETWORK", chain.NetworkMainnet),
	})
	if err != nil {
		log.Fatalf("FATAL: Invalid chain configuration: %v", err)
	}

	resolver := venues.NewResolver(os.Getenv("DEXSCREENER_API_URL"))

	learned, err := parser.NewLearnedStore(os.Getenv("LEARNED_INTENTS_PATH"))
	if err != nil {
		log.Printf("Warning: Failed to load learned intents, continuing without them. Error: %v", err)
	}

	model := parser.ModelFromEnv()
	_, noLLM := model.(parser.NoopModel)
	if noLLM {
		log.Println("No LLM provider key set; parsing runs pattern-only")
	}

	intentParser := parser.New(resolver, learned, model)

	registry := protocols.NewRegistry(protocols.Deps{
		Chain:      chainClient,
		JupiterURL: os.Getenv("JUPITER_API_URL"),
	})
	log.Printf("Protocol registry loaded: %d handlers, %d intents", len(registry.Names()), len(registry.Intents()))

	// Setup WebSocket Hub
	wsHub := api.NewHub()
	go wsHub.Run()

	// Setup and start the Fee Market Poller
	poller := feemarket.NewPoller(chainClient, wsHub, chainClient.ResolveNetwork(""))
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go poller.Run(ctx)

	engine := builder.New(chainClient, registry, poller)

	// Audit persistence is optional: without DATABASE_URL the engine runs
	// with an empty /history and no parse analytics.
	var dbConn *db.PostgresStore
	if dbUrl := os.Getenv("DATABASE_URL"); dbUrl != "" {
		dbConn, err = db.Connect(dbUrl)
		if err != nil {
			log.Printf("Warning: Failed to connect to PostgreSQL, continuing without audit history. Error: %v", err)
			dbConn = nil
		} else {
			defer dbConn.Close()
			if err := dbConn.InitSchema(); err != nil {
				log.Printf("Warning: DB schema init failed: %v", err)
			}
		}
	}

	// Setup the Gin Router
	r := api.SetupRouter(api.Deps{
		Parser:   intentParser,
		Builder:  engine,
		Registry: registry,
		Resolver: resolver,
		Chain:    chainClient,
		Fees:     poller,
		Learned:  learned,
		DB:       dbConn,
		Hub:      wsHub,
		LLM:      !noLLM,
	})

	port := getEnvOrDefault("PORT", "3000")

	// Start the server
	log.Printf("Engine running on :%s (API Node: solana-intent-builder)\n", port)
	if err := r.Run(":" + port); err != nil {
		log.Fatalf("Failed to start server: %v", err)
	}
}

// getEnvOrDefault returns the env var value or a safe default for non-secret settings.
func getEnvOrDefault(key, fallback string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return fallback
}
