package fec

// Mode selects how the sharder distributes information across shards
// (spec §4.3 "Modes").
type Mode int

const (
	// Systematic shards: the first K shards are the original bytes split
	// into equal pieces; cheap to encode/decode, but any one of the first
	// K shards alone leaks a contiguous slice of plaintext.
	Systematic Mode = iota
	// Hardened shards: the buffer is first whitened with a keystream under
	// a random per-object key (carried, masked, in the buffer itself) and
	// then split by the same systematic Reed-Solomon code, so no individual
	// shard holds a plaintext chunk. The shards are not a non-systematic
	// linear combination of the data.
	Hardened
)

// Profile names a fixed (k, n) pair. The exact selection rule per profile
// was left to the implementer by spec §9 "Open questions"; this table is
// the locked answer, pinned by the fec package's golden-vector tests.
type Profile struct {
	Name string
	K    int
	N    int
}

var (
	ProfileSmall     = Profile{Name: "small", K: 4, N: 8}
	ProfileStandard  = Profile{Name: "standard", K: 6, N: 10}
	ProfileResilient = Profile{Name: "resilient", K: 8, N: 16}
)

// Profiles lists every recognized profile, in the order they should be
// tried by a caller doing name-based lookup.
var Profiles = []Profile{ProfileSmall, ProfileStandard, ProfileResilient}

// ProfileByName returns the profile with the given name, or false if none
// matches.
func ProfileByName(name string) (Profile, bool) {
	for _, p := range Profiles {
		if p.Name == name {
			return p, true
		}
	}
	return Profile{}, false
}
