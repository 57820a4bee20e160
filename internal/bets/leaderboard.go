package bets

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

const (
	REDIS_KEY_LEADERBOARD = "leaderboard:"
	LEADERBOARD_TTL       = 48 * time.Hour
	LEADERBOARD_SIZE      = 10
)

// Leaderboard keeps daily top-cashout rankings in redis sorted sets, one
// scored by profit and one by multiplier. Non-authoritative: it reflects
// cashout events, it is not an accounting record.
type Leaderboard struct {
	client *redis.Client
}

type LeaderboardEntry struct {
	ID         string  `json:"id"`
	Username   string  `json:"username"`
	BetAmount  float64 `json:"bet_amount"`
	Profit     float64 `json:"profit"`
	Multiplier float64 `json:"multiplier"`
	Timestamp  int64   `json:"timestamp"`
}

func NewLeaderboard(client *redis.Client) *Leaderboard {
	return &Leaderboard{client: client}
}

func (b *Leaderboard) Record(ctx context.Context, bet Bet) error {
	now := time.Now()
	entry := LeaderboardEntry{
		ID:         fmt.Sprintf("%s_%d", bet.UserID, now.UnixMilli()),
		Username:   bet.Username,
		BetAmount:  bet.Amount,
		Profit:     bet.Profit,
		Multiplier: bet.CashoutMultiplier,
		Timestamp:  now.UnixMilli(),
	}

	member, err := json.Marshal(entry)
	if err != nil {
		return fmt.Errorf("marshal leaderboard entry: %w", err)
	}

	day := now.Format("2006-01-02")
	pipe := b.client.Pipeline()
	for kind, score := range map[string]float64{
		"profit":     bet.Profit,
		"multiplier": bet.CashoutMultiplier,
	} {
		key := REDIS_KEY_LEADERBOARD + kind + ":" + day
		pipe.ZAdd(ctx, key, redis.Z{Score: score, Member: string(member)})
		pipe.Expire(ctx, key, LEADERBOARD_TTL)
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("record leaderboard: %w", err)
	}
	return nil
}

// Top returns today's top entries, best first. kind is "profit" or
// "multiplier"; anything else falls back to profit.
func (b *Leaderboard) Top(ctx context.Context, kind string) ([]LeaderboardEntry, error) {
	if kind != "multiplier" {
		kind = "profit"
	}
	key := REDIS_KEY_LEADERBOARD + kind + ":" + time.Now().Format("2006-01-02")

	members, err := b.client.ZRevRange(ctx, key, 0, LEADERBOARD_SIZE-1).Result()
	if err != nil {
		return nil, fmt.Errorf("fetch leaderboard: %w", err)
	}

	entries := make([]LeaderboardEntry, 0, len(members))
	for _, member := range members {
		var entry LeaderboardEntry
		if err := json.Unmarshal([]byte(member), &entry); err != nil {
			continue
		}
		entries = append(entries, entry)
	}
	return entries, nil
}
