package fec

import (
	"crypto/sha256"
	"math/rand"
	"testing"

	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/blake2b"
)

func TestShardReconstructSystematicFullSet(t *testing.T) {
	data := []byte("the quick brown fox jumps over the lazy dog, repeated for bulk ")
	var payload []byte
	for i := 0; i < 50; i++ {
		payload = append(payload, data...)
	}
	root := blake2b.Sum256(payload)

	shards, err := Shard(payload, ProfileStandard.K, ProfileStandard.N, Systematic)
	require.NoError(t, err)
	require.Len(t, shards, ProfileStandard.N)

	got, err := Reconstruct(shards, ProfileStandard.K, ProfileStandard.N, Systematic, root)
	require.NoError(t, err)
	require.Equal(t, payload, got)
}

// TestFECCompleteness pins spec §8 property 2: every size-k subset
// reconstructs the object.
func TestFECCompleteness(t *testing.T) {
	payload := make([]byte, 4096)
	rng := rand.New(rand.NewSource(1))
	rng.Read(payload)
	root := blake2b.Sum256(payload)

	for _, mode := range []Mode{Systematic, Hardened} {
		shards, err := Shard(payload, ProfileStandard.K, ProfileStandard.N, mode)
		require.NoError(t, err)

		// Try a handful of distinct size-k subsets, not every combination.
		subsets := [][]int{
			{0, 1, 2, 3, 4, 5},
			{4, 5, 6, 7, 8, 9},
			{0, 2, 4, 6, 8, 9},
			{1, 3, 5, 7, 9, 0},
		}
		for _, idx := range subsets {
			work := make([][]byte, ProfileStandard.N)
			for _, i := range idx {
				work[i] = shards[i]
			}
			got, err := Reconstruct(work, ProfileStandard.K, ProfileStandard.N, mode, root)
			require.NoError(t, err, "mode=%v subset=%v", mode, idx)
			require.Equal(t, payload, got, "mode=%v subset=%v", mode, idx)
		}
	}
}

func TestReconstructInsufficientShards(t *testing.T) {
	payload := []byte("not enough shards here")
	root := blake2b.Sum256(payload)
	shards, err := Shard(payload, ProfileStandard.K, ProfileStandard.N, Systematic)
	require.NoError(t, err)

	work := make([][]byte, ProfileStandard.N)
	for i := 0; i < ProfileStandard.K-1; i++ {
		work[i] = shards[i]
	}
	_, err = Reconstruct(work, ProfileStandard.K, ProfileStandard.N, Systematic, root)
	require.ErrorIs(t, err, ErrReconstructionFailed)
}

// TestTamperedShardRootMismatch pins spec §8 scenario S3.
func TestTamperedShardRootMismatch(t *testing.T) {
	payload := []byte("payload that must survive a single flipped bit somewhere inside a shard")
	root := blake2b.Sum256(payload)
	shards, err := Shard(payload, ProfileStandard.K, ProfileStandard.N, Systematic)
	require.NoError(t, err)

	work := make([][]byte, ProfileStandard.N)
	for i := 0; i < ProfileStandard.K; i++ {
		work[i] = append([]byte(nil), shards[i]...)
	}
	work[2][0] ^= 0xFF // tamper one byte of one shard

	_, err = Reconstruct(work, ProfileStandard.K, ProfileStandard.N, Systematic, root)
	require.Error(t, err)
}

func TestHardenedModeDoesNotLeakPlaintextInAnySingleShard(t *testing.T) {
	secret := []byte("THIS-SECRET-MUST-NOT-APPEAR-VERBATIM-IN-ANY-SINGLE-SHARD-BYTES")
	shards, err := Shard(secret, ProfileStandard.K, ProfileStandard.N, Hardened)
	require.NoError(t, err)
	for i, s := range shards {
		require.NotContains(t, string(s), string(secret), "shard %d leaked plaintext", i)
	}
}

func TestPadToBucket(t *testing.T) {
	require.Equal(t, 1<<10, PadToBucket(10, 0))
	require.Equal(t, 1<<12, PadToBucket(1<<10+1, 0))
	require.Equal(t, 1<<14, PadToBucket(1<<10+1, 1))
	require.Equal(t, 1<<20, PadToBucket(1<<20, 0))
}

func TestPadProducesZeroedSuffix(t *testing.T) {
	data := []byte{1, 2, 3}
	padded := Pad(data, 0)
	require.Equal(t, 1<<10, len(padded))
	require.Equal(t, data, padded[:3])
	for _, b := range padded[3:] {
		require.Equal(t, byte(0), b)
	}
}

func TestProfileByName(t *testing.T) {
	p, ok := ProfileByName("standard")
	require.True(t, ok)
	require.Equal(t, ProfileStandard, p)

	_, ok = ProfileByName("nonexistent")
	require.False(t, ok)
}

var _ = sha256.Sum256 // keep crypto/sha256 import path documented for readers of this test file
