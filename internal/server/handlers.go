package server

import (
	"errors"

	"github.com/gofiber/fiber/v2"

	"volare/internal/bets"
	"volare/internal/wallet"
)

type placeBetRequest struct {
	UserID      string  `json:"user_id"`
	Username    string  `json:"username"`
	Amount      float64 `json:"amount"`
	AutoCashout float64 `json:"auto_cashout"`
	Slot        int     `json:"slot"`
	Nonce       string  `json:"nonce"`
}

type slotRequest struct {
	UserID string `json:"user_id"`
	Slot   int    `json:"slot"`
}

// errorJSON maps domain errors to HTTP responses. Rule violations are the
// caller's fault and carry the sentinel message; anything else stays generic.
func errorJSON(c *fiber.Ctx, err error) error {
	switch {
	case errors.Is(err, bets.ErrInvalidRoundState),
		errors.Is(err, bets.ErrInvalidAmount),
		errors.Is(err, bets.ErrInvalidSlot),
		errors.Is(err, bets.ErrDuplicateBet),
		errors.Is(err, bets.ErrReplayDetected),
		errors.Is(err, bets.ErrNoActiveBet),
		errors.Is(err, bets.ErrAlreadyCashedOut),
		errors.Is(err, bets.ErrNoBetToCancel),
		errors.Is(err, wallet.ErrInsufficientFunds),
		errors.Is(err, wallet.ErrUserNotFound):
		return c.Status(400).JSON(fiber.Map{"error": err.Error()})
	default:
		return c.Status(500).JSON(fiber.Map{"error": "Internal error"})
	}
}

func (s *FiberServer) healthHandler(c *fiber.Ctx) error {
	health := fiber.Map{
		"database": s.db.Health(),
		"cache":    s.cache.Health(),
		"game": fiber.Map{
			"status":            "running",
			"connected_clients": s.hub.GetClientCount(),
		},
	}
	return c.JSON(health)
}

func (s *FiberServer) getGameStateHandler(c *fiber.Ctx) error {
	view, ok := s.engine.StateView()
	if !ok {
		return c.Status(404).JSON(fiber.Map{
			"error": "No active game round",
		})
	}
	return c.JSON(view)
}

func (s *FiberServer) getHistoryHandler(c *fiber.Ctx) error {
	limit := c.QueryInt("limit", 50)
	entries, err := s.engine.History(c.Context(), limit)
	if err != nil {
		return errorJSON(c, err)
	}
	return c.JSON(fiber.Map{"history": entries})
}

// getFairnessHandler exposes the commitment of the next round's seed and how
// many seeds remain in the chain, so players can verify before betting.
func (s *FiberServer) getFairnessHandler(c *fiber.Ctx) error {
	commitment, err := s.chain.Commitment(c.Context())
	if err != nil {
		return errorJSON(c, err)
	}
	remaining, err := s.chain.Remaining(c.Context())
	if err != nil {
		return errorJSON(c, err)
	}
	return c.JSON(fiber.Map{
		"hash":            commitment,
		"remaining_seeds": remaining,
	})
}

func (s *FiberServer) placeBetHandler(c *fiber.Ctx) error {
	var req placeBetRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(400).JSON(fiber.Map{
			"error": "Invalid request body",
		})
	}
	if req.UserID == "" {
		return c.Status(400).JSON(fiber.Map{
			"error": "User ID is required",
		})
	}

	err := s.ledger.Place(c.Context(), req.UserID, req.Username, req.Amount, req.AutoCashout, req.Slot, req.Nonce)
	if err != nil {
		return errorJSON(c, err)
	}

	balance, err := s.wallet.Balance(c.Context(), req.UserID)
	if err != nil {
		balance = 0
	}
	return c.JSON(fiber.Map{
		"success": true,
		"slot":    req.Slot,
		"balance": balance,
	})
}

func (s *FiberServer) cashoutHandler(c *fiber.Ctx) error {
	var req slotRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(400).JSON(fiber.Map{
			"error": "Invalid request body",
		})
	}
	if req.UserID == "" {
		return c.Status(400).JSON(fiber.Map{
			"error": "User ID is required",
		})
	}

	result, err := s.ledger.CashOut(c.Context(), req.UserID, req.Slot)
	if err != nil {
		return errorJSON(c, err)
	}
	return c.JSON(result)
}

func (s *FiberServer) cancelBetHandler(c *fiber.Ctx) error {
	var req slotRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(400).JSON(fiber.Map{
			"error": "Invalid request body",
		})
	}
	if req.UserID == "" {
		return c.Status(400).JSON(fiber.Map{
			"error": "User ID is required",
		})
	}

	if err := s.ledger.Cancel(c.Context(), req.UserID, req.Slot); err != nil {
		return errorJSON(c, err)
	}

	balance, err := s.wallet.Balance(c.Context(), req.UserID)
	if err != nil {
		balance = 0
	}
	return c.JSON(fiber.Map{
		"success": true,
		"balance": balance,
	})
}

func (s *FiberServer) getLeaderboardHandler(c *fiber.Ctx) error {
	kind := c.Query("type", "profit")
	entries, err := s.board.Top(c.Context(), kind)
	if err != nil {
		return errorJSON(c, err)
	}
	return c.JSON(fiber.Map{
		"type":    kind,
		"entries": entries,
	})
}

func (s *FiberServer) getUserBalanceHandler(c *fiber.Ctx) error {
	userID := c.Params("userId")
	if userID == "" {
		return c.Status(400).JSON(fiber.Map{
			"error": "User ID is required",
		})
	}

	balance, err := s.wallet.Balance(c.Context(), userID)
	if err != nil {
		if errors.Is(err, wallet.ErrUserNotFound) {
			balance = 0
		} else {
			return errorJSON(c, err)
		}
	}

	return c.JSON(fiber.Map{
		"user_id": userID,
		"balance": balance,
	})
}

// setUserBalanceHandler sets a user's balance (for testing/admin)
func (s *FiberServer) setUserBalanceHandler(c *fiber.Ctx) error {
	userID := c.Params("userId")
	if userID == "" {
		return c.Status(400).JSON(fiber.Map{
			"error": "User ID is required",
		})
	}

	var body struct {
		Balance float64 `json:"balance"`
	}
	if err := c.BodyParser(&body); err != nil {
		return c.Status(400).JSON(fiber.Map{
			"error": "Invalid request body",
		})
	}

	if err := s.wallet.SetBalance(c.Context(), userID, body.Balance); err != nil {
		return c.Status(500).JSON(fiber.Map{
			"error": "Failed to set balance",
		})
	}

	return c.JSON(fiber.Map{
		"user_id": userID,
		"balance": body.Balance,
		"message": "Balance updated successfully",
	})
}
