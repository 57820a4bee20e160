package wallet

import (
	"context"
	"fmt"
	"log"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
)

const (
	REDIS_KEY_BALANCE = "wallet:balance:"
	REDIS_KEY_TX      = "wallet:tx:"
	REDIS_KEY_BROKE   = "wallet:zero_balance"
)

// Redis is the primary Ledger. Each operation is a single Lua script, so the
// idempotency check, the balance check and the mutation are one atomic unit on
// the store; no process-local locking is needed and a second instance sharing
// the same Redis stays correct.
type Redis struct {
	client *redis.Client
}

func NewRedis(client *redis.Client) *Redis {
	return &Redis{client: client}
}

// reserveScript debits the stake. A failed balance check leaves no idempotency
// marker, so a retry with the same transaction id after a top-up still works.
// A balance dropping below the broke threshold enters the zero-balance set
// (NX keeps the first timestamp) that feeds the auto-refill loop.
var reserveScript = redis.NewScript(`
	local bal = redis.call("GET", KEYS[1])
	if redis.call("EXISTS", KEYS[2]) == 1 then
		return {"dup", bal or "0"}
	end
	if not bal then
		return {"nouser", "0"}
	end
	local b = tonumber(bal)
	local amount = tonumber(ARGV[1])
	if b < amount then
		return {"short", bal}
	end
	local newbal = math.floor((b - amount) * 100 + 0.5) / 100
	redis.call("SET", KEYS[1], string.format("%.2f", newbal))
	redis.call("SET", KEYS[2], "processed", "EX", ARGV[2])
	if newbal < tonumber(ARGV[4]) then
		redis.call("ZADD", KEYS[3], "NX", ARGV[3], ARGV[5])
	end
	return {"ok", string.format("%.2f", newbal)}
`)

// creditScript pays out unconditionally. A missing balance key starts at zero;
// credits never fail on an unknown account. A balance back above zero leaves
// the zero-balance set.
var creditScript = redis.NewScript(`
	local bal = redis.call("GET", KEYS[1])
	if redis.call("EXISTS", KEYS[2]) == 1 then
		return {"dup", bal or "0"}
	end
	local b = tonumber(bal)
	if not b then
		b = 0
	end
	local newbal = math.floor((b + tonumber(ARGV[1])) * 100 + 0.5) / 100
	redis.call("SET", KEYS[1], string.format("%.2f", newbal))
	redis.call("SET", KEYS[2], "processed", "EX", ARGV[2])
	if newbal > 0 then
		redis.call("ZREM", KEYS[3], ARGV[3])
	end
	return {"ok", string.format("%.2f", newbal)}
`)

func (r *Redis) Reserve(ctx context.Context, userID string, amount float64, roundID, transactionID string) (float64, error) {
	keys := []string{REDIS_KEY_BALANCE + userID, txKey("reserve", transactionID), REDIS_KEY_BROKE}
	res, err := reserveScript.Run(ctx, r.client, keys,
		amount, ttlSeconds(), time.Now().UnixMilli(), BROKE_THRESHOLD, userID).Result()
	if err != nil {
		return 0, fmt.Errorf("%w: reserve script: %v", ErrInternal, err)
	}

	status, balance, err := parseReply(res)
	if err != nil {
		return 0, err
	}

	switch status {
	case "ok":
		return balance, nil
	case "dup":
		log.Printf("[WALLET] Transaction %s already processed (idempotent replay)", transactionID)
		return balance, nil
	case "nouser":
		return 0, ErrUserNotFound
	case "short":
		return balance, ErrInsufficientFunds
	}
	return 0, fmt.Errorf("%w: unexpected reserve status %q", ErrInternal, status)
}

func (r *Redis) Credit(ctx context.Context, userID string, amount float64, roundID, transactionID string) (float64, error) {
	return r.credit(ctx, "credit", userID, amount, transactionID)
}

// Refund is the credit pattern under a distinct transaction class, so refunds
// and winnings never collide on an idempotency key and stay tellable apart.
func (r *Redis) Refund(ctx context.Context, userID string, amount float64, roundID, transactionID string) (float64, error) {
	return r.credit(ctx, "refund", userID, amount, transactionID)
}

func (r *Redis) credit(ctx context.Context, class, userID string, amount float64, transactionID string) (float64, error) {
	keys := []string{REDIS_KEY_BALANCE + userID, txKey(class, transactionID), REDIS_KEY_BROKE}
	res, err := creditScript.Run(ctx, r.client, keys, amount, ttlSeconds(), userID).Result()
	if err != nil {
		return 0, fmt.Errorf("%w: %s script: %v", ErrInternal, class, err)
	}

	status, balance, err := parseReply(res)
	if err != nil {
		return 0, err
	}

	if status == "dup" {
		log.Printf("[WALLET] Transaction %s already processed (idempotent replay)", transactionID)
	}
	return balance, nil
}

func (r *Redis) Balance(ctx context.Context, userID string) (float64, error) {
	balance, err := r.client.Get(ctx, REDIS_KEY_BALANCE+userID).Float64()
	if err == redis.Nil {
		return 0, ErrUserNotFound
	}
	if err != nil {
		return 0, fmt.Errorf("%w: get balance: %v", ErrInternal, err)
	}
	return balance, nil
}

// SetBalance overwrites a user's balance. Admin/seeding path only; gameplay
// goes through Reserve/Credit/Refund.
func (r *Redis) SetBalance(ctx context.Context, userID string, amount float64) error {
	value := strconv.FormatFloat(round2(amount), 'f', 2, 64)
	if err := r.client.Set(ctx, REDIS_KEY_BALANCE+userID, value, 0).Err(); err != nil {
		return fmt.Errorf("%w: set balance: %v", ErrInternal, err)
	}
	return nil
}

// BrokeSince lists users whose balance bottomed out at or before cutoff. The
// score in the zero-balance set is the millisecond timestamp of the first
// reserve that left them broke.
func (r *Redis) BrokeSince(ctx context.Context, cutoff time.Time) ([]string, error) {
	users, err := r.client.ZRangeByScore(ctx, REDIS_KEY_BROKE, &redis.ZRangeBy{
		Min: "0",
		Max: strconv.FormatInt(cutoff.UnixMilli(), 10),
	}).Result()
	if err != nil {
		return nil, fmt.Errorf("%w: zero-balance range: %v", ErrInternal, err)
	}
	return users, nil
}

// ClearBroke drops a user from the zero-balance set.
func (r *Redis) ClearBroke(ctx context.Context, userID string) error {
	if err := r.client.ZRem(ctx, REDIS_KEY_BROKE, userID).Err(); err != nil {
		return fmt.Errorf("%w: zero-balance clear: %v", ErrInternal, err)
	}
	return nil
}

func txKey(class, transactionID string) string {
	return REDIS_KEY_TX + class + ":" + transactionID
}

func ttlSeconds() int {
	return int(PROCESSED_TX_TTL.Seconds())
}

func parseReply(res interface{}) (string, float64, error) {
	reply, ok := res.([]interface{})
	if !ok || len(reply) != 2 {
		return "", 0, fmt.Errorf("%w: malformed script reply %v", ErrInternal, res)
	}
	status, _ := reply[0].(string)
	raw, _ := reply[1].(string)
	balance, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		return "", 0, fmt.Errorf("%w: malformed balance %q", ErrInternal, raw)
	}
	return status, balance, nil
}
