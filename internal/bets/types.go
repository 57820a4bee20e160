package bets

import (
	"fmt"
	"math"
	"strconv"
)

type RoundStatus string

const (
	StatusWaiting RoundStatus = "WAITING"
	StatusFlying  RoundStatus = "FLYING"
	StatusCrashed RoundStatus = "CRASHED"
)

// RoundSnapshot is a consistent copy of the authoritative round state, taken
// atomically by the round engine.
type RoundSnapshot struct {
	ID         string
	Status     RoundStatus
	Multiplier float64
}

// RoundSource is implemented by the round engine; the ledger reads round state
// through it on every operation and never mutates it.
type RoundSource interface {
	Snapshot() RoundSnapshot
}

// Broadcaster delivers a protocol line to all connected clients.
type Broadcaster interface {
	Broadcast(message string)
}

// Bet is one stake in one of the two per-user slots of the current round.
// CashoutMultiplier stays 0 until the bet is cashed out; it is set at most
// once. reserved flips to true only after the wallet debit succeeds; until
// then the bet cannot be cancelled or cashed out.
type Bet struct {
	reserved bool

	UserID            string  `json:"user_id"`
	Username          string  `json:"username"`
	RoundID           string  `json:"round_id"`
	Slot              int     `json:"slot"`
	Amount            float64 `json:"amount"`
	AutoCashout       float64 `json:"auto_cashout"`
	CashoutMultiplier float64 `json:"cashout_multiplier"`
	Profit            float64 `json:"profit"`
}

type CashOutResult struct {
	WinAmount  float64 `json:"win_amount"`
	Multiplier float64 `json:"multiplier"`
	Balance    float64 `json:"balance"`
}

func betKey(userID string, slot int) string {
	return fmt.Sprintf("%s:%d", userID, slot)
}

// floor2 truncates toward zero at 2 decimals. Win amounts always floor so a
// payout can never exceed what the displayed multiplier allowed.
func floor2(v float64) float64 {
	return math.Floor(v*100) / 100
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}

func fmt2(v float64) string {
	return strconv.FormatFloat(v, 'f', 2, 64)
}
