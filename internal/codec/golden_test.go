package codec

import (
	"crypto/ed25519"
	"encoding/hex"
	"testing"

	"github.com/stretchr/testify/require"
)

// These fixtures pin the canonical encoding byte-for-byte (spec §4.1
// "Golden vectors"). Any incompatible wire change must rotate the hex
// strings below deliberately, never fix the test to match new output.

func sampleObject() *Object {
	o := &Object{
		Namespace:  7,
		Epoch:      1234,
		Flags:      FlagPublic,
		Nonce:      []byte{0x01, 0x02, 0x03},
		Ciphertext: []byte("hello veil"),
		Padding:    []byte{0x00, 0x00, 0x00, 0x00},
	}
	for i := range o.Tag {
		o.Tag[i] = byte(i)
	}
	return o
}

func TestObjectGoldenVector(t *testing.T) {
	o := sampleObject()
	enc, err := EncodeObject(o)
	require.NoError(t, err)

	const want = "0001" + // version
		"0007" + // namespace
		"00000000000004d2" + // epoch
		"0002" + // flags (PUBLIC)
		"000102030405060708090a0b0c0d0e0f101112131415161718191a1b1c1d1e1f" + // tag
		"00000003010203" + // nonce
		"0000000a68656c6c6f207665696c" + // ciphertext
		"0000000400000000" // padding

	require.Equal(t, want, hex.EncodeToString(enc))

	decoded, err := DecodeObject(enc)
	require.NoError(t, err)
	require.Equal(t, o.Namespace, decoded.Namespace)
	require.Equal(t, o.Epoch, decoded.Epoch)
	require.Equal(t, o.Flags, decoded.Flags)
	require.Equal(t, o.Tag, decoded.Tag)
	require.Equal(t, o.Nonce, decoded.Nonce)
	require.Equal(t, o.Ciphertext, decoded.Ciphertext)
	require.Equal(t, o.Padding, decoded.Padding)

	root, err := ObjectRoot(o)
	require.NoError(t, err)
	root2, err := ObjectRoot(o)
	require.NoError(t, err)
	require.Equal(t, root, root2, "object root must be stable across repeated encodings")
}

func sampleShard() *Shard {
	s := &Shard{
		Namespace: 7,
		Epoch:     1234,
		K:         6,
		N:         10,
		Index:     3,
		Payload:   []byte("shard-payload-bytes"),
	}
	for i := range s.Tag {
		s.Tag[i] = byte(i)
	}
	for i := range s.ObjectRoot {
		s.ObjectRoot[i] = byte(0xff - i)
	}
	return s
}

func TestShardGoldenVector(t *testing.T) {
	s := sampleShard()
	enc, err := EncodeShard(s)
	require.NoError(t, err)

	const want = "0001" + // version
		"0007" + // namespace
		"00000000000004d2" + // epoch
		"000102030405060708090a0b0c0d0e0f101112131415161718191a1b1c1d1e1f" + // tag
		"fffefdfcfbfaf9f8f7f6f5f4f3f2f1f0efeeedecebeae9e8e7e6e5e4e3e2e1e0" + // object_root
		"0006" + // k
		"000a" + // n
		"0003" + // index
		"00000013" + "73686172642d7061796c6f61642d6279746573" // payload

	require.Equal(t, want, hex.EncodeToString(enc))

	decoded, err := DecodeShard(enc)
	require.NoError(t, err)
	require.Equal(t, s.K, decoded.K)
	require.Equal(t, s.N, decoded.N)
	require.Equal(t, s.Index, decoded.Index)
	require.Equal(t, s.Payload, decoded.Payload)
	require.Equal(t, s.Tag, decoded.Tag)
	require.Equal(t, s.ObjectRoot, decoded.ObjectRoot)
}

func TestObjectRoundTrip(t *testing.T) {
	o := sampleObject()
	enc, err := EncodeObject(o)
	require.NoError(t, err)
	decoded, err := DecodeObject(enc)
	require.NoError(t, err)
	reenc, err := EncodeObject(decoded)
	require.NoError(t, err)
	require.Equal(t, enc, reenc)
}

func TestDecodeObjectRejectsTrailingBytes(t *testing.T) {
	o := sampleObject()
	enc, err := EncodeObject(o)
	require.NoError(t, err)
	_, err = DecodeObject(append(enc, 0x00))
	require.ErrorIs(t, err, ErrInvalidEncoding)
}

func TestDecodeObjectRejectsTruncation(t *testing.T) {
	o := sampleObject()
	enc, err := EncodeObject(o)
	require.NoError(t, err)
	_, err = DecodeObject(enc[:len(enc)-1])
	require.ErrorIs(t, err, ErrInvalidEncoding)
}

func TestDecodeObjectRejectsUnknownVersion(t *testing.T) {
	o := sampleObject()
	enc, err := EncodeObject(o)
	require.NoError(t, err)
	enc[1] = 0x09 // corrupt low byte of version
	_, err = DecodeObject(enc)
	require.ErrorIs(t, err, ErrInvalidEncoding)
}

func TestEncodeShardRejectsIndexOutOfRange(t *testing.T) {
	s := sampleShard()
	s.Index = s.N // out of range by construction
	_, err := EncodeShard(s)
	require.ErrorIs(t, err, ErrInvalidEncoding)
}

// sampleSignedObject returns a SIGNED object and its fixed signing key. The
// seed is a fixed byte pattern, not a random one, so the signature produced
// is reproducible run to run.
func sampleSignedObject(t *testing.T) (*Object, ed25519.PrivateKey) {
	t.Helper()
	seed := make([]byte, ed25519.SeedSize)
	for i := range seed {
		seed[i] = byte(i + 1)
	}
	priv := ed25519.NewKeyFromSeed(seed)

	o := &Object{
		Namespace:    7,
		Epoch:        1234,
		Flags:        FlagSigned,
		Nonce:        []byte{0x01, 0x02, 0x03},
		Ciphertext:   []byte("hello veil"),
		Padding:      []byte{0x00, 0x00, 0x00, 0x00},
		SenderPubKey: priv.Public().(ed25519.PublicKey),
		Signature:    make([]byte, ed25519.SignatureSize),
	}
	for i := range o.Tag {
		o.Tag[i] = byte(i)
	}
	require.NoError(t, SignObject(o, priv))
	return o, priv
}

func TestSignedObjectRoundTrip(t *testing.T) {
	o, _ := sampleSignedObject(t)
	enc, err := EncodeObject(o)
	require.NoError(t, err)

	decoded, err := DecodeObject(enc)
	require.NoError(t, err)
	require.True(t, decoded.Signed())
	require.Equal(t, o.SenderPubKey, decoded.SenderPubKey)
	require.Equal(t, o.Signature, decoded.Signature)
	require.NoError(t, VerifyObject(decoded))

	reenc, err := EncodeObject(decoded)
	require.NoError(t, err)
	require.Equal(t, enc, reenc)
}

func TestDecodeObjectRejectsTamperedSignature(t *testing.T) {
	o, _ := sampleSignedObject(t)
	enc, err := EncodeObject(o)
	require.NoError(t, err)

	enc[len(enc)-1] ^= 0xff // flip the last byte of the signature
	_, err = DecodeObject(enc)
	require.ErrorIs(t, err, ErrInvalidEncoding)
}

func TestDecodeObjectRejectsSignedPayloadTamperedAfterSigning(t *testing.T) {
	o, _ := sampleSignedObject(t)
	enc, err := EncodeObject(o)
	require.NoError(t, err)

	// Flip a byte inside the ciphertext region, leaving the signature bytes
	// untouched, so the signature no longer matches the re-derived content.
	ciphertextOffset := 2 + 2 + 8 + 2 + TagSize + ed25519.PublicKeySize + 4 + len(o.Nonce) + 4
	enc[ciphertextOffset] ^= 0xff
	_, err = DecodeObject(enc)
	require.ErrorIs(t, err, ErrInvalidEncoding)
}

func TestVerifyObjectRejectsWrongKey(t *testing.T) {
	o, _ := sampleSignedObject(t)
	otherSeed := make([]byte, ed25519.SeedSize)
	for i := range otherSeed {
		otherSeed[i] = byte(200 + i)
	}
	o.SenderPubKey = ed25519.NewKeyFromSeed(otherSeed).Public().(ed25519.PublicKey)
	require.ErrorIs(t, VerifyObject(o), ErrInvalidEncoding)
}
