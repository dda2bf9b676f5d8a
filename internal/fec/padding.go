package fec

// bucketLadder is the fixed set of padded sizes objects are bucketed into
// before sharding (spec §4.3 "Padding"). The numeric values were left
// unspecified by spec.md (§9 "Open questions"); this ladder is the locked
// answer, pinned by TestPadToBucket golden values.
var bucketLadder = []int{
	1 << 10, // 1 KiB
	1 << 12, // 4 KiB
	1 << 14, // 16 KiB
	1 << 16, // 64 KiB
	1 << 18, // 256 KiB
	1 << 20, // 1 MiB
}

// PadToBucket returns the smallest bucket size able to hold n bytes, after
// advancing extraLevels rungs up the ladder (bucket_jitter_extra_levels).
// If n exceeds the largest bucket, the raw size rounded up to a 4 KiB
// boundary is used instead so arbitrarily large objects still pad
// deterministically.
func PadToBucket(n int, extraLevels int) int {
	idx := 0
	for idx < len(bucketLadder) && bucketLadder[idx] < n {
		idx++
	}
	if idx >= len(bucketLadder) {
		const chunk = 1 << 12
		return ((n + chunk - 1) / chunk) * chunk
	}
	idx += extraLevels
	if idx >= len(bucketLadder) {
		idx = len(bucketLadder) - 1
	}
	return bucketLadder[idx]
}

// Pad appends zero bytes to data until it reaches its bucket size.
func Pad(data []byte, extraLevels int) []byte {
	target := PadToBucket(len(data), extraLevels)
	if target <= len(data) {
		return data
	}
	out := make([]byte, target)
	copy(out, data)
	return out
}
