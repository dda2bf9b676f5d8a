// Package fec implements VEIL's erasure-coded sharder: splitting an
// object's canonical bytes into n equal shards such that any k reconstruct
// the original (spec §4.3), grounded on the Reed-Solomon erasure engine
// pattern in eniz1806-VaultS3's storage layer (github.com/klauspost/reedsolomon).
package fec

import (
	"bytes"
	"crypto/rand"
	"crypto/sha256"
	"encoding/binary"
	"errors"
	"fmt"

	"github.com/klauspost/reedsolomon"
	"golang.org/x/crypto/blake2b"
)

// ErrReconstructionFailed covers both "not enough shards" and library-level
// reconstruction failures.
var ErrReconstructionFailed = errors.New("fec: insufficient or inconsistent shards")

// ErrRootMismatch is returned when reconstructed bytes don't hash to the
// root the caller expected (spec §4.3, §8 property 3).
var ErrRootMismatch = errors.New("fec: reconstructed bytes do not match expected root")

// keyBlobSize is the width of the session-key carrier used by Hardened
// mode's all-or-nothing transform.
const keyBlobSize = 32

// Shard splits objectBytes into n equal-length payloads such that any k
// distinct ones reconstruct the original bytes.
//
// In Hardened mode, every data shard is whitened with a per-object session
// key before the Reed-Solomon split; the key itself is recoverable only
// once all k data shards are combined (a simplified Rivest-style
// all-or-nothing transform), so no single shard leaks a contiguous
// plaintext run.
func Shard(objectBytes []byte, k, n int, mode Mode) ([][]byte, error) {
	if k <= 0 || n < k {
		return nil, fmt.Errorf("fec: invalid (k=%d, n=%d)", k, n)
	}

	core := make([]byte, 8+len(objectBytes))
	binary.BigEndian.PutUint64(core[:8], uint64(len(objectBytes)))
	copy(core[8:], objectBytes)

	total := roundUp(len(core), k)
	if mode == Hardened {
		for total/k < keyBlobSize || total-len(core) < keyBlobSize {
			total += k
		}
	}
	buf := make([]byte, total)
	copy(buf, core)

	if mode == Hardened {
		maskHardened(buf, k, total/k)
	}

	enc, err := reedsolomon.New(k, n-k)
	if err != nil {
		return nil, fmt.Errorf("fec: construct encoder: %w", err)
	}
	shards, err := enc.Split(buf)
	if err != nil {
		return nil, fmt.Errorf("fec: split: %w", err)
	}
	if err := enc.Encode(shards); err != nil {
		return nil, fmt.Errorf("fec: encode parity: %w", err)
	}
	return shards, nil
}

// Reconstruct recovers the original object bytes from any k of the n
// shards produced by Shard. Missing shards must be nil at their index;
// present shards must sit at their correct index. The result's hash is
// checked against expectedRoot before it is returned.
func Reconstruct(shards [][]byte, k, n int, mode Mode, expectedRoot [32]byte) ([]byte, error) {
	if k <= 0 || n < k || len(shards) != n {
		return nil, fmt.Errorf("%w: malformed shard set (k=%d, n=%d, len=%d)", ErrReconstructionFailed, k, n, len(shards))
	}
	present, shardLen := 0, 0
	for _, s := range shards {
		if s != nil {
			present++
			shardLen = len(s)
		}
	}
	if present < k {
		return nil, fmt.Errorf("%w: have %d of %d needed", ErrReconstructionFailed, present, k)
	}

	enc, err := reedsolomon.New(k, n-k)
	if err != nil {
		return nil, fmt.Errorf("fec: construct encoder: %w", err)
	}
	work := make([][]byte, n)
	copy(work, shards)
	if err := enc.Reconstruct(work); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrReconstructionFailed, err)
	}

	total := shardLen * k
	var out bytes.Buffer
	if err := enc.Join(&out, work, total); err != nil {
		return nil, fmt.Errorf("%w: join: %v", ErrReconstructionFailed, err)
	}
	buf := out.Bytes()

	if mode == Hardened {
		blockLen := total / k
		if blockLen < keyBlobSize {
			return nil, fmt.Errorf("%w: block too small to hold a hardened-mode key", ErrReconstructionFailed)
		}
		unmaskHardened(buf, k, blockLen)
	}

	if len(buf) < 8 {
		return nil, fmt.Errorf("%w: reconstructed buffer too short", ErrReconstructionFailed)
	}
	objLen := binary.BigEndian.Uint64(buf[:8])
	if uint64(len(buf)-8) < objLen {
		return nil, fmt.Errorf("%w: declared length exceeds buffer", ErrReconstructionFailed)
	}
	objectBytes := append([]byte(nil), buf[8:8+objLen]...)

	if blake2b.Sum256(objectBytes) != expectedRoot {
		return nil, ErrRootMismatch
	}
	return objectBytes, nil
}

// maskHardened whitens buf (length k*blockLen) in place, block by block,
// and binds the whitening key into the final 32 bytes of the last block.
func maskHardened(buf []byte, k, blockLen int) {
	sessionKey := make([]byte, keyBlobSize)
	if _, err := rand.Read(sessionKey); err != nil {
		// crypto/rand failing is unrecoverable; the caller has no sane
		// fallback, so fail loud rather than shard with a zero key.
		panic("fec: crypto/rand unavailable: " + err.Error())
	}
	for i := 0; i < k; i++ {
		xorKeystream(buf[i*blockLen:(i+1)*blockLen], sessionKey, i)
	}
	canary := sha256.Sum256(buf[:k*blockLen-keyBlobSize])
	tail := buf[k*blockLen-keyBlobSize : k*blockLen]
	for i := range tail {
		tail[i] = sessionKey[i] ^ canary[i]
	}
}

// unmaskHardened inverts maskHardened.
func unmaskHardened(buf []byte, k, blockLen int) {
	canary := sha256.Sum256(buf[:k*blockLen-keyBlobSize])
	tail := buf[k*blockLen-keyBlobSize : k*blockLen]
	sessionKey := make([]byte, keyBlobSize)
	for i := range tail {
		sessionKey[i] = tail[i] ^ canary[i]
	}
	for i := 0; i < k; i++ {
		xorKeystream(buf[i*blockLen:(i+1)*blockLen], sessionKey, i)
	}
}

// xorKeystream XORs block in place with a blake2b-derived keystream keyed
// by (sessionKey, blockIndex).
func xorKeystream(block []byte, sessionKey []byte, blockIndex int) {
	counter := uint32(0)
	for off := 0; off < len(block); off += 32 {
		h, _ := blake2b.New256(sessionKey)
		var hdr [8]byte
		binary.BigEndian.PutUint32(hdr[:4], uint32(blockIndex))
		binary.BigEndian.PutUint32(hdr[4:], counter)
		h.Write(hdr[:])
		ks := h.Sum(nil)
		n := len(block) - off
		if n > 32 {
			n = 32
		}
		for j := 0; j < n; j++ {
			block[off+j] ^= ks[j]
		}
		counter++
	}
}

func roundUp(n, k int) int {
	if n%k == 0 {
		return n
	}
	return n + (k - n%k)
}
