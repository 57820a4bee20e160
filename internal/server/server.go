package server

import (
	"context"
	"log"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/limiter"
	"github.com/gofiber/fiber/v2/middleware/recover"

	"volare/internal/bets"
	"volare/internal/cache"
	"volare/internal/database"
	"volare/internal/game"
	"volare/internal/wallet"
)

type FiberServer struct {
	*fiber.App

	db       database.Service
	cache    cache.Service
	engine   *game.Engine
	ledger   *bets.Ledger
	chain    *game.Chain
	hub      *game.Hub
	wallet   wallet.Admin
	board    *bets.Leaderboard
	refiller *wallet.Refiller
}

func New() *FiberServer {
	// Postgres backs the durable round archive
	db := database.New()

	// Redis holds balances, idempotency markers, the fairness chain and
	// round history; the game cannot run without it
	redisService := cache.New()
	if redisService == nil {
		log.Fatal("[SERVER] Redis is required for game functionality")
	}
	client := redisService.GetClient()

	hub := game.NewHub()
	walletLedger := wallet.NewRedis(client)
	board := bets.NewLeaderboard(client)
	ledger := bets.NewLedger(walletLedger, hub, board)

	chain := game.NewChain(client)
	if err := chain.Init(context.Background()); err != nil {
		log.Fatalf("[SERVER] Failed to initialize fairness chain: %v", err)
	}

	archive := database.NewRoundArchive(db.DB())
	engine := game.NewEngine(chain, ledger, hub, client, archive)
	ledger.SetRoundSource(engine)

	refiller := wallet.NewRefiller(walletLedger)

	server := &FiberServer{
		App: fiber.New(fiber.Config{
			ServerHeader:  "volare",
			AppName:       "volare",
			ReadTimeout:   10 * time.Second,
			WriteTimeout:  10 * time.Second,
			IdleTimeout:   120 * time.Second,
			StrictRouting: false,
		}),

		db:       db,
		cache:    redisService,
		engine:   engine,
		ledger:   ledger,
		chain:    chain,
		hub:      hub,
		wallet:   walletLedger,
		board:    board,
		refiller: refiller,
	}

	// Apply global middleware
	server.App.Use(recover.New())
	server.App.Use(limiter.New(limiter.Config{
		Max:        100,
		Expiration: 1 * time.Minute,
	}))

	go hub.Run()
	engine.Start()
	refiller.Start()

	log.Println("[SERVER] Round engine started")

	return server
}

// Shutdown stops the round engine and closes connections.
func (s *FiberServer) Shutdown() error {
	log.Println("[SERVER] Shutting down...")

	if s.engine != nil {
		s.engine.Stop()
	}
	if s.refiller != nil {
		s.refiller.Stop()
	}

	if s.cache != nil {
		s.cache.Close()
	}
	if s.db != nil {
		s.db.Close()
	}

	return nil
}
