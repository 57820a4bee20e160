package game

import (
	"context"
	"fmt"
	"log"
	"math"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"volare/internal/bets"
)

const (
	TICK_INTERVAL = 50 * time.Millisecond
	WAIT_WINDOW   = 10 * time.Second
	CRASH_PAUSE   = 3 * time.Second
	GROWTH_RATE   = 0.00006 // exponent per elapsed millisecond
	HISTORY_LIMIT = 200

	REDIS_KEY_CURRENT = "game:current"
	REDIS_KEY_HISTORY = "game:history"
)

// Ledger is what the engine needs from the betting side: the per-tick
// auto-cashout sweep and the rollover clear.
type Ledger interface {
	AutoCashoutSweep(ctx context.Context, current float64)
	ResetForNewRound() []bets.Bet
}

// SeedSource hands out pre-committed round seeds.
type SeedSource interface {
	NextSeed(ctx context.Context) (string, error)
}

// Archiver durably records finished rounds. Optional; failures are logged.
type Archiver interface {
	SaveRound(ctx context.Context, id string, crashPoint float64, seed, commitment string) error
}

// Engine owns the authoritative round state machine and its clock. One
// goroutine drives ticks, so tick handling never overlaps; everything else
// reads round state through Snapshot or StateView.
type Engine struct {
	mu         sync.RWMutex
	current    *Round
	flyingAt   time.Time // when FLYING started
	crashedAt  time.Time
	lastTimer  int64 // last whole-seconds countdown broadcast
	creating   atomic.Bool
	ctx        context.Context
	now        func() time.Time

	seeds   SeedSource
	ledger  Ledger
	hub     bets.Broadcaster
	client  *redis.Client // nil disables snapshot/history persistence
	archive Archiver

	sweeps chan float64
	stop   chan struct{}
}

func NewEngine(seeds SeedSource, ledger Ledger, hub bets.Broadcaster, client *redis.Client, archive Archiver) *Engine {
	return &Engine{
		ctx:     context.Background(),
		now:     time.Now,
		seeds:   seeds,
		ledger:  ledger,
		hub:     hub,
		client:  client,
		archive: archive,
		sweeps:  make(chan float64, 1),
		stop:    make(chan struct{}),
	}
}

func (e *Engine) Start() {
	go e.sweepWorker()
	go e.loop()
}

func (e *Engine) Stop() {
	close(e.stop)
}

// Snapshot is the consistent view the betting ledger reads on every operation.
func (e *Engine) Snapshot() bets.RoundSnapshot {
	e.mu.RLock()
	defer e.mu.RUnlock()
	if e.current == nil {
		return bets.RoundSnapshot{Status: bets.StatusCrashed}
	}
	return bets.RoundSnapshot{
		ID:         e.current.ID,
		Status:     e.current.Status,
		Multiplier: e.current.Multiplier,
	}
}

// StateView returns the client-facing state of the current round, or ok=false
// when no round exists yet.
func (e *Engine) StateView() (StateView, bool) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	if e.current == nil {
		return StateView{}, false
	}
	return e.current.view(), true
}

func (e *Engine) loop() {
	ticker := time.NewTicker(TICK_INTERVAL)
	defer ticker.Stop()
	for {
		select {
		case <-e.stop:
			log.Println("[GAME] Engine loop stopped")
			return
		case <-ticker.C:
			e.tick(e.now())
		}
	}
}

// tick advances the state machine. Only the loop goroutine calls it, so a slow
// tick can never overlap the next.
func (e *Engine) tick(now time.Time) {
	e.mu.Lock()

	if e.current == nil {
		e.mu.Unlock()
		e.startNewRound()
		return
	}

	switch e.current.Status {
	case bets.StatusWaiting:
		if now.Before(e.current.StartTime) {
			remaining := int64(e.current.StartTime.Sub(now) / time.Second)
			if remaining != e.lastTimer {
				e.lastTimer = remaining
				e.mu.Unlock()
				e.hub.Broadcast(fmt.Sprintf("TIMER:%d", remaining))
				return
			}
			e.mu.Unlock()
			return
		}

		e.current.Status = bets.StatusFlying
		e.current.StartTime = now
		e.flyingAt = now
		round := *e.current
		e.mu.Unlock()

		log.Printf("[GAME] Round %s took off", round.ID)
		e.saveCurrent(round)
		e.hub.Broadcast("STATE:RUNNING")
		e.hub.Broadcast("TAKEOFF")

	case bets.StatusFlying:
		elapsed := float64(now.Sub(e.flyingAt) / time.Millisecond)
		displayed := multiplierAt(elapsed)

		if displayed >= e.current.CrashPoint {
			e.current.Status = bets.StatusCrashed
			e.current.Multiplier = e.current.CrashPoint
			e.crashedAt = now
			round := *e.current
			e.mu.Unlock()
			e.finishRound(round)
			return
		}

		e.current.Multiplier = displayed
		e.mu.Unlock()

		e.dispatchSweep(displayed)
		e.hub.Broadcast("TICK:" + fmt2(displayed))

	case bets.StatusCrashed:
		if now.Sub(e.crashedAt) >= CRASH_PAUSE {
			e.mu.Unlock()
			e.startNewRound()
			return
		}
		e.mu.Unlock()
	}
}

// startNewRound creates and publishes the next round. Reentrant-safe: racing
// triggers collapse onto one creation. On failure the engine is left without a
// current round and the next tick retries.
func (e *Engine) startNewRound() {
	if !e.creating.CompareAndSwap(false, true) {
		return
	}
	defer e.creating.Store(false)

	seed, err := e.seeds.NextSeed(e.ctx)
	if err != nil {
		// no current round is installed; the next tick retries creation
		log.Printf("[GAME] Failed to start new round: %v", err)
		return
	}

	round := &Round{
		ID:         uuid.NewString(),
		Status:     bets.StatusWaiting,
		Multiplier: MIN_MULTIPLIER,
		CrashPoint: CrashPointFromSeed(seed),
		Seed:       seed,
		Commitment: CommitmentHash(seed),
		StartTime:  e.now().Add(WAIT_WINDOW),
	}

	e.ledger.ResetForNewRound()

	e.mu.Lock()
	e.current = round
	e.lastTimer = -1
	snapshot := *round
	e.mu.Unlock()

	log.Printf("[GAME] New round %s - crash %.2fx (hidden)", round.ID, round.CrashPoint)
	e.saveCurrent(snapshot)
	e.hub.Broadcast("STATE:WAITING")
	e.hub.Broadcast(fmt.Sprintf("TIMER:%d", int(WAIT_WINDOW/time.Second)))
	e.hub.Broadcast("HASH:" + round.Commitment)
}

func (e *Engine) finishRound(round Round) {
	log.Printf("[GAME] Round %s CRASHED at %.2fx", round.ID, round.CrashPoint)
	e.hub.Broadcast("CRASH:" + fmt2(round.CrashPoint) + ":" + round.Seed)
	e.saveCurrent(round)
	e.saveHistory(round)

	if e.archive != nil {
		if err := e.archive.SaveRound(e.ctx, round.ID, round.CrashPoint, round.Seed, round.Commitment); err != nil {
			log.Printf("[GAME] Failed to archive round %s: %v", round.ID, err)
		}
	}
}

// dispatchSweep hands the auto-cashout sweep to the worker without ever
// blocking the tick. Coalescing loses nothing: a sweep at a later multiplier
// covers every target an earlier one would have, and cashouts pin to targets.
func (e *Engine) dispatchSweep(multiplier float64) {
	for {
		select {
		case e.sweeps <- multiplier:
			return
		default:
		}
		select {
		case <-e.sweeps:
		default:
		}
	}
}

func (e *Engine) sweepWorker() {
	for {
		select {
		case <-e.stop:
			return
		case multiplier := <-e.sweeps:
			e.ledger.AutoCashoutSweep(e.ctx, multiplier)
		}
	}
}

func (e *Engine) saveCurrent(round Round) {
	if e.client == nil {
		return
	}

	fields := map[string]interface{}{
		"id":         round.ID,
		"status":     string(round.Status),
		"multiplier": fmt2(round.Multiplier),
		"startTime":  strconv.FormatInt(round.StartTime.UnixMilli(), 10),
		"hash":       round.Commitment,
	}
	if round.Status == bets.StatusCrashed {
		fields["crashPoint"] = fmt2(round.CrashPoint)
		fields["seed"] = round.Seed
	} else {
		fields["crashPoint"] = "HIDDEN"
	}

	if err := e.client.HSet(e.ctx, REDIS_KEY_CURRENT, fields).Err(); err != nil {
		log.Printf("[GAME] Failed to save round snapshot: %v", err)
	}
}

func (e *Engine) saveHistory(round Round) {
	if e.client == nil {
		return
	}

	entry := fmt2(round.CrashPoint) + ":" + round.Seed
	pipe := e.client.Pipeline()
	pipe.LPush(e.ctx, REDIS_KEY_HISTORY, entry)
	pipe.LTrim(e.ctx, REDIS_KEY_HISTORY, 0, HISTORY_LIMIT-1)
	if _, err := pipe.Exec(e.ctx); err != nil {
		log.Printf("[GAME] Failed to save history: %v", err)
	}
}

// History returns past outcomes as "crashPoint:seed" strings, most recent
// first, bounded by HISTORY_LIMIT.
func (e *Engine) History(ctx context.Context, limit int) ([]string, error) {
	if limit <= 0 || limit > HISTORY_LIMIT {
		limit = HISTORY_LIMIT
	}
	if e.client == nil {
		return nil, nil
	}
	entries, err := e.client.LRange(ctx, REDIS_KEY_HISTORY, 0, int64(limit-1)).Result()
	if err != nil {
		return nil, fmt.Errorf("fetch history: %w", err)
	}
	return entries, nil
}

// multiplierAt computes the displayed multiplier for an elapsed flight time in
// milliseconds. Floor truncation is load-bearing: the displayed value must
// never exceed what a player could actually have cashed out at.
func multiplierAt(elapsedMS float64) float64 {
	raw := math.Exp(GROWTH_RATE * elapsedMS)
	if math.IsInf(raw, 0) || math.IsNaN(raw) {
		raw = MAX_MULTIPLIER
	}
	return math.Floor(raw*100) / 100
}

func fmt2(v float64) string {
	return strconv.FormatFloat(v, 'f', 2, 64)
}
