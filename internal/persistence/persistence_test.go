package persistence

import (
	"testing"

	"github.com/dreamware/veil/internal/cache"
	"github.com/dreamware/veil/internal/codec"
	"github.com/dreamware/veil/internal/policy"
	"github.com/stretchr/testify/require"
)

func TestSaveLoadStateRoundTrip(t *testing.T) {
	c := cache.New(0)
	var root [32]byte
	root[0] = 7
	c.Put(root, 0, []byte("shard-bytes"), 1)

	pol := policy.New()
	pol.Trust("alice")
	pol.Mute("bob")
	pol.Block("eve")
	pol.Endorse("alice", "carol", 100)

	var tag codec.Tag
	tag[0] = 9
	subs := []codec.Tag{tag}

	blob := SaveState(c, subs, pol)

	restoredCache := cache.New(0)
	restoredPolicy := policy.New()
	gotSubs, err := LoadState(blob, restoredCache, restoredPolicy)
	require.NoError(t, err)
	require.Equal(t, subs, gotSubs)

	got, ok := restoredCache.Get(root, 0)
	require.True(t, ok)
	require.Equal(t, []byte("shard-bytes"), got)

	require.Equal(t, policy.Trusted, restoredPolicy.Tier("alice", 100))
	require.Equal(t, policy.Blocked, restoredPolicy.Tier("eve", 100))
	require.Equal(t, policy.Muted, restoredPolicy.Tier("bob", 100))
	require.Equal(t, policy.Known, restoredPolicy.Tier("carol", 100))
}

func TestLoadStateRejectsTruncated(t *testing.T) {
	c := cache.New(0)
	pol := policy.New()
	_, err := LoadState([]byte{0, 0, 0, 1}, c, pol)
	require.ErrorIs(t, err, ErrInvalidSnapshot)
}

func TestLoadStateRejectsUnknownVersion(t *testing.T) {
	c := cache.New(0)
	pol := policy.New()
	bad := []byte{0, 0, 0, 42, 0, 0, 0, 0}
	_, err := LoadState(bad, c, pol)
	require.ErrorIs(t, err, ErrInvalidSnapshot)
}

func TestSaveStateOmitsCounters(t *testing.T) {
	c := cache.New(0)
	var root [32]byte
	root[0] = 1
	c.Put(root, 0, []byte("x"), 5)
	c.Put(root, 0, []byte("y"), 6) // seen_count now 2

	pol := policy.New()
	blob := SaveState(c, nil, pol)

	restored := cache.New(0)
	restoredPol := policy.New()
	_, err := LoadState(blob, restored, restoredPol)
	require.NoError(t, err)

	// Seen count is a durable entity (feeds rarity bias) and must
	// survive; it is not a transient "counter" in the spec's sense.
	_, ok := restored.Get(root, 0)
	require.True(t, ok)
}
