package wallet

import (
	"context"
	"log"
	"time"
)

const (
	// BROKE_THRESHOLD marks a user as broke when a reserve leaves less than
	// this on the balance.
	BROKE_THRESHOLD = 0.10

	REFILL_AMOUNT         = 500.00
	REFILL_AFTER          = 24 * time.Hour
	REFILL_CHECK_INTERVAL = 5 * time.Minute
)

// Refillable is the ledger surface the refill loop needs. Both Redis and
// Memory satisfy it.
type Refillable interface {
	BrokeSince(ctx context.Context, cutoff time.Time) ([]string, error)
	Balance(ctx context.Context, userID string) (float64, error)
	SetBalance(ctx context.Context, userID string, amount float64) error
	ClearBroke(ctx context.Context, userID string) error
}

// Refiller tops up players who have been broke for a full day so they can
// get back into the game. A user whose balance recovered on its own just has
// the broke marker dropped.
type Refiller struct {
	ledger Refillable
	stop   chan struct{}
	now    func() time.Time
}

func NewRefiller(ledger Refillable) *Refiller {
	return &Refiller{
		ledger: ledger,
		stop:   make(chan struct{}),
		now:    time.Now,
	}
}

func (r *Refiller) Start() {
	go r.loop()
	log.Println("[WALLET] Refill loop started")
}

func (r *Refiller) Stop() {
	close(r.stop)
}

func (r *Refiller) loop() {
	ticker := time.NewTicker(REFILL_CHECK_INTERVAL)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			r.Sweep(context.Background())
		case <-r.stop:
			return
		}
	}
}

// Sweep refills every user broke since at least REFILL_AFTER ago. The marker
// is cleared whether or not money moved, so a user who was topped up by other
// means leaves the set too. One failing user does not stop the sweep.
func (r *Refiller) Sweep(ctx context.Context) {
	cutoff := r.now().Add(-REFILL_AFTER)
	users, err := r.ledger.BrokeSince(ctx, cutoff)
	if err != nil {
		log.Printf("[WALLET] Refill sweep failed to list broke users: %v", err)
		return
	}

	for _, userID := range users {
		balance, err := r.ledger.Balance(ctx, userID)
		if err != nil && err != ErrUserNotFound {
			log.Printf("[WALLET] Refill check failed for user %s: %v", userID, err)
			continue
		}
		if err == nil && balance <= 0 {
			if err := r.ledger.SetBalance(ctx, userID, REFILL_AMOUNT); err != nil {
				log.Printf("[WALLET] Refill failed for user %s: %v", userID, err)
				continue
			}
			log.Printf("[WALLET] REFILLED user %s to %.2f", userID, REFILL_AMOUNT)
		}
		if err := r.ledger.ClearBroke(ctx, userID); err != nil {
			log.Printf("[WALLET] Failed to clear broke marker for user %s: %v", userID, err)
		}
	}
}
