package wallet

import (
	"context"
	"errors"
	"time"
)

// PROCESSED_TX_TTL bounds how long an idempotency marker is kept. Callers are
// expected to stop retrying a transaction well before this window closes; a
// replay arriving after expiry is treated as a new transaction.
const PROCESSED_TX_TTL = 24 * time.Hour

var (
	ErrInsufficientFunds = errors.New("insufficient funds")
	ErrUserNotFound      = errors.New("user not found")
	ErrInternal          = errors.New("wallet internal error")
)

// Ledger is the only path by which balances change. Every mutation carries a
// transaction id and is applied at most once; operations on the same user are
// serialized, operations on different users are not.
//
// Reserve debits a stake, Credit pays out a win, Refund returns a cancelled
// stake. Reserve/Credit/Refund return the balance after the operation (or the
// unchanged balance on an idempotent replay).
type Ledger interface {
	Reserve(ctx context.Context, userID string, amount float64, roundID, transactionID string) (float64, error)
	Credit(ctx context.Context, userID string, amount float64, roundID, transactionID string) (float64, error)
	Refund(ctx context.Context, userID string, amount float64, roundID, transactionID string) (float64, error)
	Balance(ctx context.Context, userID string) (float64, error)
}

// Admin extends Ledger with direct balance writes, for operator endpoints and
// tooling. Not part of the game flow.
type Admin interface {
	Ledger
	SetBalance(ctx context.Context, userID string, amount float64) error
}

// round2 rounds half-up to 2 decimals. This is the single rounding rule for
// all balance arithmetic, on every implementation.
func round2(v float64) float64 {
	if v < 0 {
		return float64(int64(v*100-0.5)) / 100
	}
	return float64(int64(v*100+0.5)) / 100
}
