package game

import (
	"testing"
)

func TestCrashPointFromSeed_Deterministic(t *testing.T) {
	seed := "a3f29c1d48e07b6f5a2c9d1e8b3f4a7c6d5e2f1a0b9c8d7e6f5a4b3c2d1e0f9a"

	result1 := CrashPointFromSeed(seed)
	result2 := CrashPointFromSeed(seed)
	result3 := CrashPointFromSeed(seed)

	if result1 != result2 || result2 != result3 {
		t.Errorf("CrashPointFromSeed() is not deterministic: got %v, %v, %v", result1, result2, result3)
	}
}

func TestCrashPointFromSeed_Range(t *testing.T) {
	tests := []struct {
		name string
		seed string
	}{
		{name: "All zeros", seed: "0000000000000000000000000000000000000000000000000000000000000000"},
		{name: "All f", seed: "ffffffffffffffffffffffffffffffffffffffffffffffffffffffffffffffff"},
		{name: "Typical digest", seed: CommitmentHash("some round seed")},
		{name: "Short seed", seed: "abc"},
		{name: "Non-hex seed", seed: "zzzzzzzzzzzzzzzzzzzzzzzzz"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := CrashPointFromSeed(tt.seed)
			if got < MIN_MULTIPLIER {
				t.Errorf("CrashPointFromSeed() = %v, want >= %v", got, MIN_MULTIPLIER)
			}
			if got > MAX_MULTIPLIER {
				t.Errorf("CrashPointFromSeed() = %v, want <= %v", got, MAX_MULTIPLIER)
			}
		})
	}
}

func TestCrashPointFromSeed_KnownValues(t *testing.T) {
	// x = 0 -> 0.99 clamps up to the minimum
	if got := CrashPointFromSeed("0000000000000000"); got != MIN_MULTIPLIER {
		t.Errorf("zero seed crash point = %v, want %v", got, MIN_MULTIPLIER)
	}
	// x -> 1 blows past the cap and clamps down
	if got := CrashPointFromSeed("fffffffffffff000"); got != MAX_MULTIPLIER {
		t.Errorf("max seed crash point = %v, want %v", got, MAX_MULTIPLIER)
	}
	// x = 0.5 -> 0.99 / 0.5 = 1.98
	if got := CrashPointFromSeed("8000000000000000"); got != 1.98 {
		t.Errorf("midpoint crash point = %v, want 1.98", got)
	}
}

func TestCommitmentHash(t *testing.T) {
	seed := "test_seed_12345"

	hash1 := CommitmentHash(seed)
	hash2 := CommitmentHash(seed)

	if hash1 != hash2 {
		t.Error("CommitmentHash() is not deterministic")
	}
	if len(hash1) != 64 { // SHA256 = 64 hex characters
		t.Errorf("CommitmentHash() length = %v, want 64", len(hash1))
	}
}

func TestBuildChain_Linkage(t *testing.T) {
	root := GenerateRoot()
	chain := BuildChain(root, 50)

	if len(chain) != 50 {
		t.Fatalf("chain length = %d, want 50", len(chain))
	}

	// consumption order: each seed is the preimage of the one handed out before it
	for i := 0; i < len(chain)-1; i++ {
		if CommitmentHash(chain[i+1]) != chain[i] {
			t.Fatalf("chain broken at %d: H(chain[%d]) != chain[%d]", i, i+1, i)
		}
	}

	// the last element is one hash away from the root
	if CommitmentHash(root) != chain[len(chain)-1] {
		t.Error("chain tail is not H(root)")
	}
}

func TestVerifySeed(t *testing.T) {
	seed := GenerateRoot()
	commitment := CommitmentHash(seed)

	if !VerifySeed(seed, commitment) {
		t.Error("VerifySeed() rejected a valid pair")
	}
	if VerifySeed("wrong_seed", commitment) {
		t.Error("VerifySeed() accepted a wrong seed")
	}
}

func TestGenerateRoot(t *testing.T) {
	root1 := GenerateRoot()
	root2 := GenerateRoot()

	if root1 == root2 {
		t.Error("GenerateRoot() produced duplicate roots")
	}
	if len(root1) != 64 { // 32 bytes = 64 hex characters
		t.Errorf("GenerateRoot() length = %v, want 64", len(root1))
	}
}

func BenchmarkCrashPointFromSeed(b *testing.B) {
	seed := CommitmentHash("benchmark_seed")
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		CrashPointFromSeed(seed)
	}
}

func BenchmarkBuildChain(b *testing.B) {
	root := GenerateRoot()
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		BuildChain(root, 1000)
	}
}
