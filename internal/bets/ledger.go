package bets

import (
	"context"
	"fmt"
	"log"
	"sync"

	"github.com/google/uuid"

	"volare/internal/wallet"
)

const (
	MIN_BET_AMOUNT = 0.10
	MAX_BET_AMOUNT = 100.00
)

// Recorder receives successful cashouts for ranking. Best-effort: a recording
// failure never fails the cashout.
type Recorder interface {
	Record(ctx context.Context, bet Bet) error
}

// Ledger enforces the per-round betting rules and bridges game events to
// wallet movements. All bet-map and index mutation happens under one mutex;
// wallet calls happen outside it.
type Ledger struct {
	mu     sync.Mutex
	bets   map[string]*Bet
	index  *targetIndex
	nonces *nonceRegistry

	rounds RoundSource
	wallet wallet.Ledger
	hub    Broadcaster
	board  Recorder
}

func NewLedger(w wallet.Ledger, hub Broadcaster, board Recorder) *Ledger {
	return &Ledger{
		bets:   make(map[string]*Bet),
		index:  newTargetIndex(),
		nonces: newNonceRegistry(),
		wallet: w,
		hub:    hub,
		board:  board,
	}
}

// SetRoundSource wires the round engine in after construction; the engine and
// the ledger reference each other.
func (l *Ledger) SetRoundSource(rs RoundSource) {
	l.rounds = rs
}

// Place validates and books a bet for (userID, slot) in the current round,
// reserving the stake from the wallet. The bet insertion is rolled back if the
// reservation fails.
func (l *Ledger) Place(ctx context.Context, userID, username string, amount, autoCashout float64, slot int, nonce string) error {
	round := l.rounds.Snapshot()
	if round.Status != StatusWaiting {
		return ErrInvalidRoundState
	}
	if amount < MIN_BET_AMOUNT || amount > MAX_BET_AMOUNT {
		return ErrInvalidAmount
	}
	if slot != 0 && slot != 1 {
		return ErrInvalidSlot
	}

	amount = round2(amount)
	key := betKey(userID, slot)
	bet := &Bet{
		UserID:      userID,
		Username:    username,
		RoundID:     round.ID,
		Slot:        slot,
		Amount:      amount,
		AutoCashout: autoCashout,
	}

	// The nonce registers only after the slot is known to be free, so a
	// rejected placement never burns the client's retry nonce.
	l.mu.Lock()
	if _, exists := l.bets[key]; exists {
		l.mu.Unlock()
		return ErrDuplicateBet
	}
	if nonce != "" && !l.nonces.register(nonce) {
		l.mu.Unlock()
		return ErrReplayDetected
	}
	l.bets[key] = bet
	l.mu.Unlock()

	transactionID := uuid.NewString()
	if _, err := l.wallet.Reserve(ctx, userID, amount, round.ID, transactionID); err != nil {
		l.mu.Lock()
		delete(l.bets, key)
		l.mu.Unlock()
		// same rule as the wallet's no-marker-on-failure: a failed
		// placement leaves no nonce marker either
		l.nonces.release(nonce)
		return err
	}

	l.mu.Lock()
	if current, ok := l.bets[key]; !ok || current != bet {
		// the round rolled over while the stake was reserving; the bet
		// is gone, so hand the stake straight back
		l.mu.Unlock()
		refundID := uuid.NewString()
		if _, err := l.wallet.Refund(ctx, userID, amount, round.ID, refundID); err != nil {
			log.Printf("[BETS] CRITICAL: Failed to refund orphaned stake for user %s tx %s: %v", userID, refundID, err)
		}
		return ErrInvalidRoundState
	}
	bet.reserved = true
	if autoCashout > 1.00 {
		l.index.push(key, userID, slot, autoCashout)
	}
	l.mu.Unlock()

	log.Printf("[BETS] Bet placed: %s [%d] - %.2f (auto %.2f)", username, slot, amount, autoCashout)
	l.hub.Broadcast(fmt.Sprintf("BET:%s:%s:%s:%d:%s", userID, username, fmt2(amount), slot, ""))
	return nil
}

// CashOut settles the bet at the multiplier currently observed on the round.
func (l *Ledger) CashOut(ctx context.Context, userID string, slot int) (*CashOutResult, error) {
	round := l.rounds.Snapshot()
	if round.Status != StatusFlying {
		return nil, ErrInvalidRoundState
	}
	return l.cashOut(ctx, userID, slot, round.Multiplier)
}

// cashOut settles at exactly the given multiplier. Pinned values come only
// from the auto-cashout sweep, never from client input. First writer wins: the
// cashout multiplier is set once under the lock, concurrent callers for the
// same slot get ErrAlreadyCashedOut.
func (l *Ledger) cashOut(ctx context.Context, userID string, slot int, multiplier float64) (*CashOutResult, error) {
	key := betKey(userID, slot)

	l.mu.Lock()
	bet, ok := l.bets[key]
	if !ok || !bet.reserved {
		l.mu.Unlock()
		return nil, ErrNoActiveBet
	}
	if bet.CashoutMultiplier > 0 {
		l.mu.Unlock()
		return nil, ErrAlreadyCashedOut
	}
	winAmount := floor2(bet.Amount * multiplier)
	bet.CashoutMultiplier = multiplier
	bet.Profit = round2(winAmount - bet.Amount)
	l.index.remove(key)
	record := *bet
	roundID := bet.RoundID
	l.mu.Unlock()

	l.hub.Broadcast(fmt.Sprintf("CASHOUT:%s:%s:%s:%d", userID, fmt2(multiplier), fmt2(winAmount), slot))

	transactionID := uuid.NewString()
	balance, err := l.wallet.Credit(ctx, userID, winAmount, roundID, transactionID)
	if err != nil {
		// The player already saw the cashout event; the state mutation stands.
		// Observable for reconciliation, never rolled back.
		log.Printf("[BETS] CRITICAL: Failed to credit winnings for user %s tx %s: %v", userID, transactionID, err)
	}

	if l.board != nil {
		if err := l.board.Record(ctx, record); err != nil {
			log.Printf("[BETS] Leaderboard record failed for %s: %v", userID, err)
		}
	}

	log.Printf("[BETS] Cashout %s [%d] wins %.2f at %.2fx", userID, slot, winAmount, multiplier)
	return &CashOutResult{WinAmount: winAmount, Multiplier: multiplier, Balance: balance}, nil
}

// Cancel removes a not-yet-flown bet and refunds the stake.
func (l *Ledger) Cancel(ctx context.Context, userID string, slot int) error {
	round := l.rounds.Snapshot()
	if round.Status != StatusWaiting {
		return ErrInvalidRoundState
	}

	key := betKey(userID, slot)

	l.mu.Lock()
	bet, ok := l.bets[key]
	if !ok || !bet.reserved {
		// an unreserved bet has no stake to hand back yet; refunding it
		// would mint money the wallet never debited
		l.mu.Unlock()
		return ErrNoBetToCancel
	}
	delete(l.bets, key)
	l.index.remove(key)
	l.mu.Unlock()

	transactionID := uuid.NewString()
	if _, err := l.wallet.Refund(ctx, userID, bet.Amount, round.ID, transactionID); err != nil {
		log.Printf("[BETS] CRITICAL: Failed to refund cancelled bet for user %s tx %s: %v", userID, transactionID, err)
	}

	log.Printf("[BETS] Bet cancelled %s [%d], refund %.2f", userID, slot, bet.Amount)
	l.hub.Broadcast(fmt.Sprintf("CANCEL_BET:%s:%d", userID, slot))
	return nil
}

// AutoCashoutSweep cashes out every registered slot whose target the current
// multiplier has reached, each at exactly its requested target. Called once
// per flying tick, off the tick goroutine. Cost is proportional to the number
// of eligible slots.
func (l *Ledger) AutoCashoutSweep(ctx context.Context, current float64) {
	for {
		l.mu.Lock()
		entry, ok := l.index.popEligible(current)
		l.mu.Unlock()
		if !ok {
			return
		}

		_, err := l.cashOut(ctx, entry.userID, entry.slot, entry.target)
		switch err {
		case nil:
			log.Printf("[BETS] Auto-cashout %s [%d] at %.2fx", entry.userID, entry.slot, entry.target)
		case ErrAlreadyCashedOut, ErrNoActiveBet:
			// a concurrent manual cashout or cancellation won the race
		default:
			log.Printf("[BETS] Auto-cashout failed for %s [%d]: %v", entry.userID, entry.slot, err)
		}
	}
}

// ResetForNewRound atomically snapshots and clears all open bets and the
// auto-cashout index, returning the snapshot for archival.
func (l *Ledger) ResetForNewRound() []Bet {
	l.mu.Lock()
	defer l.mu.Unlock()

	old := make([]Bet, 0, len(l.bets))
	for _, bet := range l.bets {
		if bet.reserved {
			old = append(old, *bet)
		}
	}
	l.bets = make(map[string]*Bet)
	l.index.reset()
	return old
}

// CurrentBets returns a copy of the open bets, for the initial state sent to
// newly connected clients.
func (l *Ledger) CurrentBets() []Bet {
	l.mu.Lock()
	defer l.mu.Unlock()

	out := make([]Bet, 0, len(l.bets))
	for _, bet := range l.bets {
		if bet.reserved {
			out = append(out, *bet)
		}
	}
	return out
}
