package game

import (
	"context"
	"fmt"
	"log"

	"github.com/redis/go-redis/v9"
)

const (
	CHAIN_LENGTH = 10000

	REDIS_KEY_CHAIN      = "provably:chain"
	REDIS_KEY_ROOT       = "provably:seed"
	REDIS_KEY_COMMITMENT = "provably:commitment"
)

// Chain serves single-use pre-committed round seeds from a hash chain stored
// in redis. Seeds come out in consumption order: every popped seed hashes to
// the one popped before it, so once a seed is revealed the previous round's
// commitment is checkable by anyone.
type Chain struct {
	client *redis.Client
	length int
}

func NewChain(client *redis.Client) *Chain {
	return &Chain{client: client, length: CHAIN_LENGTH}
}

// Init generates a chain if none exists. Must run before the first round.
func (c *Chain) Init(ctx context.Context) error {
	size, err := c.client.LLen(ctx, REDIS_KEY_CHAIN).Result()
	if err != nil {
		return fmt.Errorf("check chain length: %w", err)
	}
	if size > 0 {
		log.Printf("[FAIR] Existing hash chain found, size %d", size)
		return nil
	}
	log.Printf("[FAIR] Generating new hash chain of size %d...", c.length)
	if err := c.generate(ctx); err != nil {
		return err
	}
	log.Println("[FAIR] Chain generation complete")
	return nil
}

func (c *Chain) generate(ctx context.Context) error {
	root := GenerateRoot()
	if err := c.client.Set(ctx, REDIS_KEY_ROOT, root, 0).Err(); err != nil {
		return fmt.Errorf("store chain root: %w", err)
	}

	chain := BuildChain(root, c.length)
	for start := 0; start < len(chain); start += 1000 {
		end := start + 1000
		if end > len(chain) {
			end = len(chain)
		}
		batch := make([]interface{}, 0, end-start)
		for _, seed := range chain[start:end] {
			batch = append(batch, seed)
		}
		if err := c.client.RPush(ctx, REDIS_KEY_CHAIN, batch...).Err(); err != nil {
			return fmt.Errorf("push chain batch: %w", err)
		}
	}
	return nil
}

// NextSeed pops the next unused seed and publishes its commitment. An empty
// pool regenerates synchronously: rare (pools back ~10,000 rounds) and it
// breaks the cross-round chain linkage, so it is logged loudly rather than
// swallowed.
func (c *Chain) NextSeed(ctx context.Context) (string, error) {
	seed, err := c.client.LPop(ctx, REDIS_KEY_CHAIN).Result()
	if err == redis.Nil {
		log.Println("[FAIR] Hash chain exhausted! Regenerating (cross-round chain linkage breaks here)")
		if err := c.generate(ctx); err != nil {
			return "", err
		}
		seed, err = c.client.LPop(ctx, REDIS_KEY_CHAIN).Result()
	}
	if err != nil {
		return "", fmt.Errorf("pop next seed: %w", err)
	}

	if err := c.client.Set(ctx, REDIS_KEY_COMMITMENT, CommitmentHash(seed), 0).Err(); err != nil {
		log.Printf("[FAIR] Failed to publish commitment: %v", err)
	}
	return seed, nil
}

// Commitment returns the currently published commitment.
func (c *Chain) Commitment(ctx context.Context) (string, error) {
	commitment, err := c.client.Get(ctx, REDIS_KEY_COMMITMENT).Result()
	if err == redis.Nil {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("get commitment: %w", err)
	}
	return commitment, nil
}

// Remaining reports how many pre-committed seeds are left in the pool.
func (c *Chain) Remaining(ctx context.Context) (int64, error) {
	size, err := c.client.LLen(ctx, REDIS_KEY_CHAIN).Result()
	if err != nil {
		return 0, fmt.Errorf("chain length: %w", err)
	}
	return size, nil
}
