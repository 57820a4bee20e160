package server

import (
	"github.com/gofiber/contrib/websocket"
	"github.com/gofiber/fiber/v2/middleware/cors"
)

func (s *FiberServer) RegisterFiberRoutes() {
	// Apply CORS middleware
	s.App.Use(cors.New(cors.Config{
		AllowOrigins:     "*",
		AllowMethods:     "GET,POST,PUT,DELETE,OPTIONS,PATCH",
		AllowHeaders:     "Accept,Authorization,Content-Type",
		AllowCredentials: false, // credentials require explicit origins
		MaxAge:           300,
	}))

	s.App.Get("/health", s.healthHandler)

	api := s.App.Group("/api/v1")

	api.Get("/game/state", s.getGameStateHandler)
	api.Get("/game/history", s.getHistoryHandler)
	api.Get("/game/fairness", s.getFairnessHandler)

	api.Post("/bet/place", s.placeBetHandler)
	api.Post("/bet/cashout", s.cashoutHandler)
	api.Post("/bet/cancel", s.cancelBetHandler)
	api.Get("/bet/top", s.getLeaderboardHandler)

	api.Get("/user/:userId/balance", s.getUserBalanceHandler)
	api.Post("/user/:userId/balance", s.setUserBalanceHandler)

	// WebSocket route
	s.App.Get("/ws", websocket.New(s.gameWebSocketHandler))
}
