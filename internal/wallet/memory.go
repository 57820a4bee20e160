package wallet

import (
	"context"
	"hash/fnv"
	"log"
	"sync"
	"time"
)

const memoryShards = 64

// Memory is an in-process Ledger with the same semantics as Redis: per-user
// serialization via a sharded mutex keyed by user id, idempotency markers with
// the same retention window. Used by tests and for running without Redis.
type Memory struct {
	shards [memoryShards]sync.Mutex

	balMu    sync.RWMutex
	balances map[string]float64

	procMu    sync.Mutex
	processed map[string]time.Time

	brokeMu sync.Mutex
	broke   map[string]time.Time

	// now is swapped out by tests to steer the broke timestamps.
	now func() time.Time
}

func NewMemory() *Memory {
	return &Memory{
		balances:  make(map[string]float64),
		processed: make(map[string]time.Time),
		broke:     make(map[string]time.Time),
		now:       time.Now,
	}
}

func (m *Memory) Reserve(ctx context.Context, userID string, amount float64, roundID, transactionID string) (float64, error) {
	lock := m.userLock(userID)
	lock.Lock()
	defer lock.Unlock()

	if m.isProcessed(txKey("reserve", transactionID)) {
		log.Printf("[WALLET] Transaction %s already processed (idempotent replay)", transactionID)
		return m.balance(userID), nil
	}

	m.balMu.Lock()
	balance, ok := m.balances[userID]
	if !ok {
		m.balMu.Unlock()
		return 0, ErrUserNotFound
	}
	if balance < amount {
		m.balMu.Unlock()
		// no marker: a genuine retry after topping up must still be possible
		return balance, ErrInsufficientFunds
	}
	newBalance := round2(balance - amount)
	m.balances[userID] = newBalance
	m.balMu.Unlock()

	if newBalance < BROKE_THRESHOLD {
		m.markBroke(userID)
	}
	m.markProcessed(txKey("reserve", transactionID))
	return newBalance, nil
}

func (m *Memory) Credit(ctx context.Context, userID string, amount float64, roundID, transactionID string) (float64, error) {
	return m.credit("credit", userID, amount, transactionID)
}

func (m *Memory) Refund(ctx context.Context, userID string, amount float64, roundID, transactionID string) (float64, error) {
	return m.credit("refund", userID, amount, transactionID)
}

func (m *Memory) credit(class, userID string, amount float64, transactionID string) (float64, error) {
	lock := m.userLock(userID)
	lock.Lock()
	defer lock.Unlock()

	if m.isProcessed(txKey(class, transactionID)) {
		log.Printf("[WALLET] Transaction %s already processed (idempotent replay)", transactionID)
		return m.balance(userID), nil
	}

	m.balMu.Lock()
	balance, ok := m.balances[userID]
	if !ok {
		// a missing account starts at zero; credits never fail on it
		balance = 0
	}
	newBalance := round2(balance + amount)
	m.balances[userID] = newBalance
	m.balMu.Unlock()

	if newBalance > 0 {
		m.clearBroke(userID)
	}
	m.markProcessed(txKey(class, transactionID))
	return newBalance, nil
}

func (m *Memory) Balance(ctx context.Context, userID string) (float64, error) {
	m.balMu.RLock()
	balance, ok := m.balances[userID]
	m.balMu.RUnlock()
	if !ok {
		return 0, ErrUserNotFound
	}
	return balance, nil
}

// SetBalance overwrites a user's balance. Admin/seeding path only.
func (m *Memory) SetBalance(ctx context.Context, userID string, amount float64) error {
	m.balMu.Lock()
	m.balances[userID] = round2(amount)
	m.balMu.Unlock()
	return nil
}

// BrokeSince lists users who first went broke at or before cutoff.
func (m *Memory) BrokeSince(ctx context.Context, cutoff time.Time) ([]string, error) {
	m.brokeMu.Lock()
	defer m.brokeMu.Unlock()
	var users []string
	for userID, since := range m.broke {
		if !since.After(cutoff) {
			users = append(users, userID)
		}
	}
	return users, nil
}

func (m *Memory) ClearBroke(ctx context.Context, userID string) error {
	m.clearBroke(userID)
	return nil
}

// markBroke keeps the earliest timestamp, matching the ZADD NX in the Redis
// reserve script.
func (m *Memory) markBroke(userID string) {
	m.brokeMu.Lock()
	if _, ok := m.broke[userID]; !ok {
		m.broke[userID] = m.now()
	}
	m.brokeMu.Unlock()
}

func (m *Memory) clearBroke(userID string) {
	m.brokeMu.Lock()
	delete(m.broke, userID)
	m.brokeMu.Unlock()
}

func (m *Memory) userLock(userID string) *sync.Mutex {
	h := fnv.New32a()
	h.Write([]byte(userID))
	return &m.shards[h.Sum32()%memoryShards]
}

func (m *Memory) balance(userID string) float64 {
	m.balMu.RLock()
	defer m.balMu.RUnlock()
	return m.balances[userID]
}

func (m *Memory) isProcessed(key string) bool {
	m.procMu.Lock()
	defer m.procMu.Unlock()
	expiry, ok := m.processed[key]
	if !ok {
		return false
	}
	if time.Now().After(expiry) {
		delete(m.processed, key)
		return false
	}
	return true
}

func (m *Memory) markProcessed(key string) {
	m.procMu.Lock()
	m.processed[key] = time.Now().Add(PROCESSED_TX_TTL)
	m.procMu.Unlock()
}
