package game

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"math"
	"strconv"
)

const (
	MIN_MULTIPLIER = 1.00
	MAX_MULTIPLIER = 100000.00
	HOUSE_EDGE     = 0.99 // payout factor, 1% house edge
)

// CrashPointFromSeed derives the crash multiplier from a round seed. The first
// 13 hex characters (52 bits) normalize to x in [0,1); the multiplier is
// HOUSE_EDGE / (1 - x), clamped to [MIN_MULTIPLIER, MAX_MULTIPLIER] and floored
// to 2 decimals. Deterministic bit-for-bit: anyone holding the revealed seed
// reproduces the same crash point, which is the basis of verification.
func CrashPointFromSeed(seed string) float64 {
	if len(seed) < 13 {
		return MIN_MULTIPLIER
	}
	h, err := strconv.ParseUint(seed[:13], 16, 64)
	if err != nil {
		return MIN_MULTIPLIER
	}

	x := float64(h) / math.Pow(2, 52)
	multiplier := HOUSE_EDGE / (1.0 - x)

	if multiplier < MIN_MULTIPLIER {
		multiplier = MIN_MULTIPLIER
	}
	if multiplier > MAX_MULTIPLIER {
		multiplier = MAX_MULTIPLIER
	}
	return math.Floor(multiplier*100) / 100
}

// CommitmentHash is the one-way hash of a seed, published before the round's
// outcome is knowable.
func CommitmentHash(seed string) string {
	sum := sha256.Sum256([]byte(seed))
	return hex.EncodeToString(sum[:])
}

// BuildChain hashes the root length times and returns the seeds in consumption
// order: the first element is the value farthest from the root, so each handed
// out seed is the preimage of the one before it (chain[i] == H(chain[i+1])).
func BuildChain(root string, length int) []string {
	chain := make([]string, length)
	current := root
	for i := length - 1; i >= 0; i-- {
		current = CommitmentHash(current)
		chain[i] = current
	}
	return chain
}

// VerifySeed checks a revealed seed against the commitment published when the
// round was created.
func VerifySeed(seed, commitment string) bool {
	return CommitmentHash(seed) == commitment
}

// GenerateRoot creates a cryptographically secure random chain root.
func GenerateRoot() string {
	b := make([]byte, 32)
	rand.Read(b)
	return hex.EncodeToString(b)
}
