package http

import (
	"github.com/gofiber/contrib/websocket"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"go.uber.org/zap"

	"github.com/chainbid/relay/internal/config"
	"github.com/chainbid/relay/internal/http/handlers"
	"github.com/chainbid/relay/internal/middleware"
	"github.com/chainbid/relay/internal/ratelimit"
)

func SetupRouter(
	app *fiber.App,
	cfg *config.Config,
	log *zap.Logger,
	ipLimiter ratelimit.Limiter,
	relayHandler *handlers.RelayHandler,
	streamHandler *handlers.StreamHandler,
	bidHandler *handlers.BidHandler,
	wsHub *handlers.WSHub,
) {
	// Global middleware
	app.Use(recover.New())
	app.Use(cors.New(cors.Config{
		AllowOrigins: "*",
		AllowHeaders: "Origin, Content-Type, Accept, Authorization, X-Request-ID",
	}))
	app.Use(middleware.RequestIDMiddleware())
	app.Use(middleware.LoggerMiddleware(log))

	// Relay surface
	relay := app.Group("/relay")
	relay.Get("/health", relayHandler.Health)
	relay.Get("/challenge", relayHandler.Challenge)

	// Coarse per-IP guard; the per-address limit lives in the authorizer.
	relay.Use(middleware.RateLimitMiddleware(ipLimiter))

	relay.Post("/contribution", relayHandler.Contribution)
	relay.Post("/checkin", relayHandler.Checkin)
	relay.Post("/deploy", relayHandler.Deploy)
	relay.Post("/layout", relayHandler.Layout)
	relay.Post("/llm-request", relayHandler.LLMRequest)
	relay.Get("/llm-stream/:jobId", streamHandler.Stream)

	relay.Get("/audit", middleware.OperatorMiddleware(cfg.OperatorJWTSecret, log), relayHandler.Audit)

	// Bids and escrows. Reads are open; mutations carry signed envelopes.
	app.Post("/bids", bidHandler.Submit)
	app.Get("/bids", bidHandler.List)
	app.Get("/bids/:id", bidHandler.Get)
	app.Post("/bids/:id/accept", bidHandler.Accept)
	app.Post("/bids/:id/reject", bidHandler.Reject)
	app.Get("/contracts/:id/ranking", bidHandler.Ranking)
	app.Get("/escrows/:id", bidHandler.GetEscrow)
	app.Post("/escrows/:id/milestones/:index/release", bidHandler.ReleaseMilestone)

	// WebSocket
	app.Use("/ws", handlers.WSUpgradeMiddleware())
	app.Get("/ws", websocket.New(wsHub.HandleWS))
}
