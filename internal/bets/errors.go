package bets

import "errors"

// Client-actionable rule violations. The transport layer maps these to 400
// responses; anything else coming out of the ledger is internal.
var (
	ErrInvalidRoundState = errors.New("operation not allowed in current round state")
	ErrInvalidAmount     = errors.New("bet amount out of range")
	ErrInvalidSlot       = errors.New("invalid bet slot")
	ErrDuplicateBet      = errors.New("bet already placed for this slot")
	ErrReplayDetected    = errors.New("duplicate bet nonce")
	ErrNoActiveBet       = errors.New("no active bet")
	ErrAlreadyCashedOut  = errors.New("bet already cashed out")
	ErrNoBetToCancel     = errors.New("no bet to cancel")
)
