package tag

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestFeedTagIsDeterministic(t *testing.T) {
	key := []byte("publisher-key")
	t1 := Feed(key, 3)
	t2 := Feed(key, 3)
	require.Equal(t, t1, t2)

	t3 := Feed(key, 4)
	require.NotEqual(t, t1, t3, "different namespace must produce a different tag")
}

func TestRendezvousTagRotatesPerEpoch(t *testing.T) {
	key := []byte("recipient-key")
	a := Rendezvous(key, 10, 1)
	b := Rendezvous(key, 11, 1)
	require.NotEqual(t, a, b)
}

func TestCurrentEpoch(t *testing.T) {
	require.Equal(t, uint64(0), CurrentEpoch(500, 86_400))
	require.Equal(t, uint64(1), CurrentEpoch(86_400, 86_400))
	require.Equal(t, uint64(1), CurrentEpoch(90_000, 86_400))
}

// TestRendezvousWindowBoundary pins spec §8 scenario S6.
func TestRendezvousWindowBoundary(t *testing.T) {
	key := []byte("recipient-key")
	const epochSeconds = 86_400
	const overlapSeconds = 3_600

	// 20:00 into a 24h epoch -> offset 82_800, within overlap of the next boundary.
	atEvening := RendezvousWindow(key, 82_800, 1, epochSeconds, overlapSeconds)
	require.Len(t, atEvening, 2)
	require.Equal(t, Rendezvous(key, 0, 1), atEvening[0])
	require.Equal(t, Rendezvous(key, 1, 1), atEvening[1])

	// offset 500s into epoch 1 (nowSeconds = 86_400+500), within overlap of
	// the previous boundary and the previous epoch (0) is non-negative.
	atStart := RendezvousWindow(key, epochSeconds+500, 1, epochSeconds, overlapSeconds)
	require.Len(t, atStart, 2)
	require.Equal(t, Rendezvous(key, 1, 1), atStart[0])
	require.Equal(t, Rendezvous(key, 0, 1), atStart[1])

	// mid-epoch: only the current tag.
	mid := RendezvousWindow(key, 43_200, 1, epochSeconds, overlapSeconds)
	require.Len(t, mid, 1)
}

func TestRendezvousWindowNoPreviousBeforeEpochZero(t *testing.T) {
	key := []byte("recipient-key")
	// nowSeconds=100 is within the very first epoch; there is no epoch -1.
	window := RendezvousWindow(key, 100, 1, 86_400, 3_600)
	require.Len(t, window, 1)
	require.Equal(t, Rendezvous(key, 0, 1), window[0])
}

func TestEffectiveNamespaceNormalizes(t *testing.T) {
	a := EffectiveNamespace(1, "  MyChannel ")
	b := EffectiveNamespace(1, "mychannel")
	require.Equal(t, a, b)

	empty := EffectiveNamespace(1, "")
	def := EffectiveNamespace(1, "default")
	require.Equal(t, empty, def)
}
