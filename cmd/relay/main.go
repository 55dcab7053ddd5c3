package main

import (
	"context"
	"fmt"
	"math/big"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"

	"github.com/chainbid/relay/internal/audit"
	"github.com/chainbid/relay/internal/bidding"
	"github.com/chainbid/relay/internal/chain"
	"github.com/chainbid/relay/internal/config"
	"github.com/chainbid/relay/internal/db"
	"github.com/chainbid/relay/internal/events"
	"github.com/chainbid/relay/internal/gh"
	apphttp "github.com/chainbid/relay/internal/http"
	"github.com/chainbid/relay/internal/http/handlers"
	"github.com/chainbid/relay/internal/jobs"
	"github.com/chainbid/relay/internal/llm"
	"github.com/chainbid/relay/internal/nonce"
	"github.com/chainbid/relay/internal/ratelimit"
	"github.com/chainbid/relay/internal/relay"
	"github.com/chainbid/relay/internal/repositories"
)

func main() {
	log, _ := zap.NewProduction()
	defer log.Sync()

	cfg := config.Load()
	cfg.Validate(log)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Stores. Postgres and redis are both optional: without them every
	// store falls back to its in-process variant and state does not
	// survive a restart.
	var (
		biddingStore bidding.Store
		auditLog     audit.Recorder
	)
	if cfg.PostgresDSN != "" {
		pool, err := db.NewPostgresPool(ctx, cfg.PostgresDSN, log)
		if err != nil {
			log.Fatal("failed to connect to postgres", zap.Error(err))
		}
		defer pool.Close()

		if err := db.RunMigrations(ctx, pool, "migrations", log); err != nil {
			log.Fatal("failed to run migrations", zap.Error(err))
		}
		biddingStore = repositories.NewBiddingRepo(pool)
		auditLog = repositories.NewAuditRepo(pool)
	} else {
		log.Warn("POSTGRES_DSN is not set, bids and audit are in-memory")
		biddingStore = bidding.NewMemoryStore()
		auditLog = audit.NewMemoryLog(cfg.AuditMaxEntries)
	}

	var (
		nonceStore nonce.Store
		limiter    ratelimit.Limiter
		ipLimiter  ratelimit.Limiter
		publisher  events.Publisher = events.NopPublisher{}
		subscriber events.Subscriber
	)
	if cfg.RedisURL != "" {
		rdb, err := db.NewRedisClient(ctx, cfg.RedisURL, log)
		if err != nil {
			log.Fatal("failed to connect to redis", zap.Error(err))
		}
		defer rdb.Close()

		nonceStore = nonce.NewRedisStore(rdb)
		limiter = ratelimit.NewRedisLimiter(rdb, cfg.RateLimit, cfg.RateWindow, log)
		ipLimiter = ratelimit.NewRedisLimiter(rdb, 100, time.Minute, log)
		publisher = events.NewRedisPublisher(rdb, log)
		subscriber = events.NewRedisSubscriber(rdb, log)
	} else {
		log.Warn("REDIS_URL is not set, nonces and rate limits are in-memory")
		memStore := nonce.NewMemoryStore()
		memStore.StartJanitor(ctx, time.Minute, log)
		nonceStore = memStore
		limiter = ratelimit.NewMemoryLimiter(cfg.RateLimit, cfg.RateWindow)
		ipLimiter = ratelimit.NewMemoryLimiter(100, time.Minute)
	}

	nonces := nonce.NewRegistry(nonceStore)
	nonces.SetTTLs(cfg.NonceIssueTTL, cfg.NonceConsumeTTL)

	// Chain gate. Without an RPC endpoint holder-gated actions fail
	// closed with 503.
	var gate relay.Gate
	if cfg.RPCURL != "" && cfg.ContractAddress != "" {
		g, err := chain.Dial(ctx, cfg.RPCURL, common.HexToAddress(cfg.ContractAddress), log)
		if err != nil {
			log.Fatal("failed to dial rpc", zap.Error(err))
		}
		gate = g
	}

	authorizer := relay.NewAuthorizer(nonces, limiter, gate, big.NewInt(cfg.DefaultTokenID), log)

	// Upstreams
	llmClient := llm.NewClient(cfg.LLMBaseURL, cfg.LLMAPIKey, cfg.LLMModel, log)
	dispatcher := gh.NewDispatcher(cfg.GitHubToken, cfg.GitHubRepo, log)
	streamer := jobs.NewStreamer(llmClient, publisher, log)

	engine := bidding.NewEngine(biddingStore, auditLog, publisher, log)

	// Handlers
	relayHandler := handlers.NewRelayHandler(authorizer, nonces, auditLog, dispatcher, streamer, publisher,
		cfg.ContractAddress, cfg.DefaultTokenID, log)
	streamHandler := handlers.NewStreamHandler(streamer, log)
	bidHandler := handlers.NewBidHandler(engine, authorizer, log)
	wsHub := handlers.NewWSHub(cfg.OperatorJWTSecret, subscriber, log)
	wsHub.Start(ctx)

	app := fiber.New(fiber.Config{
		ErrorHandler: func(c *fiber.Ctx, err error) error {
			code := fiber.StatusInternalServerError
			if e, ok := err.(*fiber.Error); ok {
				code = e.Code
			}
			return c.Status(code).JSON(fiber.Map{"error": err.Error()})
		},
	})

	apphttp.SetupRouter(app, cfg, log, ipLimiter, relayHandler, streamHandler, bidHandler, wsHub)

	// Graceful shutdown
	go func() {
		sigCh := make(chan os.Signal, 1)
		signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
		<-sigCh
		log.Info("shutting down...")
		cancel()
		_ = app.Shutdown()
	}()

	addr := fmt.Sprintf(":%s", cfg.APIPort)
	log.Info("starting relay server", zap.String("addr", addr))
	if err := app.Listen(addr); err != nil {
		log.Fatal("server error", zap.Error(err))
	}
}
