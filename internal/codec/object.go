package codec

import (
	"crypto/ed25519"
	"encoding/binary"
	"errors"
	"fmt"

	"golang.org/x/crypto/blake2b"
)

// ErrInvalidEncoding is returned for any malformed, truncated, or
// non-canonical input. Callers should treat it as a validation failure
// (spec §7 "Validation"), never as a fatal error.
var ErrInvalidEncoding = errors.New("codec: invalid encoding")

// Object flag bits (spec §3).
const (
	FlagSigned       uint16 = 1 << 0
	FlagPublic       uint16 = 1 << 1
	FlagAckRequested uint16 = 1 << 2
	FlagBatched      uint16 = 1 << 3
)

// ObjectVersion is the only version this codec accepts.
const ObjectVersion uint16 = 1

// TagSize is the fixed width of a discovery tag.
const TagSize = 32

// Tag is VEIL's 32-byte opaque discovery identifier.
type Tag [TagSize]byte

// Object is the application-level record carried by VEIL (spec §3).
type Object struct {
	Version      uint16
	Namespace    uint16
	Epoch        uint64
	Flags        uint16
	Tag          Tag
	SenderPubKey []byte // 32 bytes, present iff Signed()
	Nonce        []byte
	Ciphertext   []byte
	Padding      []byte
	Signature    []byte // 64 bytes, present iff Signed()
}

// Signed reports whether the object carries the SIGNED flag.
func (o *Object) Signed() bool { return o.Flags&FlagSigned != 0 }

// EncodeObject serializes o into its canonical binary form.
func EncodeObject(o *Object) ([]byte, error) {
	if o.Signed() && len(o.SenderPubKey) != ed25519.PublicKeySize {
		return nil, fmt.Errorf("%w: signed object missing 32-byte sender pubkey", ErrInvalidEncoding)
	}
	buf := make([]byte, 0, 64+len(o.Nonce)+len(o.Ciphertext)+len(o.Padding)+96)
	buf = appendUint16(buf, ObjectVersion)
	buf = appendUint16(buf, o.Namespace)
	buf = appendUint64(buf, o.Epoch)
	buf = appendUint16(buf, o.Flags)
	buf = append(buf, o.Tag[:]...)
	if o.Signed() {
		buf = append(buf, o.SenderPubKey...)
	}
	buf = appendBytes32(buf, o.Nonce)
	buf = appendBytes32(buf, o.Ciphertext)
	buf = appendBytes32(buf, o.Padding)

	if o.Signed() {
		if len(o.Signature) != ed25519.SignatureSize {
			return nil, fmt.Errorf("%w: signed object missing 64-byte signature", ErrInvalidEncoding)
		}
		buf = append(buf, o.Signature...)
	}
	return buf, nil
}

// DecodeObject parses the canonical binary form produced by EncodeObject.
// For a SIGNED object it also verifies the signature via VerifyObject
// (spec §4.1: "for signed objects, signature verification failure" is an
// InvalidEncoding condition, not a separate step callers can skip).
func DecodeObject(b []byte) (*Object, error) {
	r := &reader{buf: b}

	version, err := r.uint16()
	if err != nil {
		return nil, err
	}
	if version != ObjectVersion {
		return nil, fmt.Errorf("%w: unknown object version %d", ErrInvalidEncoding, version)
	}
	namespace, err := r.uint16()
	if err != nil {
		return nil, err
	}
	epoch, err := r.uint64()
	if err != nil {
		return nil, err
	}
	flags, err := r.uint16()
	if err != nil {
		return nil, err
	}
	tagBytes, err := r.fixed(TagSize)
	if err != nil {
		return nil, err
	}
	o := &Object{Version: version, Namespace: namespace, Epoch: epoch, Flags: flags}
	copy(o.Tag[:], tagBytes)

	signed := flags&FlagSigned != 0
	if signed {
		pub, err := r.fixed(ed25519.PublicKeySize)
		if err != nil {
			return nil, fmt.Errorf("%w: truncated sender pubkey", err)
		}
		o.SenderPubKey = pub
	}

	if o.Nonce, err = r.bytes32(); err != nil {
		return nil, err
	}
	if o.Ciphertext, err = r.bytes32(); err != nil {
		return nil, err
	}
	if o.Padding, err = r.bytes32(); err != nil {
		return nil, err
	}

	if signed {
		sig, err := r.fixed(ed25519.SignatureSize)
		if err != nil {
			return nil, fmt.Errorf("%w: truncated signature", err)
		}
		o.Signature = sig
	}

	if !r.exhausted() {
		return nil, fmt.Errorf("%w: trailing bytes after object", ErrInvalidEncoding)
	}
	if err := VerifyObject(o); err != nil {
		return nil, err
	}
	return o, nil
}

// VerifyObject checks the ed25519 signature over the canonical encoding of a
// signed object, excluding the signature bytes themselves. Unsigned objects
// always verify (there is nothing to check).
func VerifyObject(o *Object) error {
	if !o.Signed() {
		return nil
	}
	if len(o.SenderPubKey) != ed25519.PublicKeySize || len(o.Signature) != ed25519.SignatureSize {
		return fmt.Errorf("%w: malformed signature fields", ErrInvalidEncoding)
	}
	if !ed25519.Verify(o.SenderPubKey, signablePrefix(o), o.Signature) {
		return fmt.Errorf("%w: signature verification failed", ErrInvalidEncoding)
	}
	return nil
}

// SignObject finalizes a SIGNED object by computing its ed25519 signature
// over the canonical encoding, excluding the signature itself, and writing
// it to o.Signature. o.Flags must already carry FlagSigned and
// o.SenderPubKey must already hold priv's public key. Call this after any
// padding has been applied: padding is part of the signed content.
func SignObject(o *Object, priv ed25519.PrivateKey) error {
	if !o.Signed() {
		return fmt.Errorf("%w: SignObject requires FlagSigned set", ErrInvalidEncoding)
	}
	if len(o.SenderPubKey) != ed25519.PublicKeySize {
		return fmt.Errorf("%w: SignObject requires a 32-byte SenderPubKey", ErrInvalidEncoding)
	}
	o.Signature = ed25519.Sign(priv, signablePrefix(o))
	return nil
}

// signablePrefix re-encodes everything but the trailing signature.
func signablePrefix(o *Object) []byte {
	buf := make([]byte, 0, 64+len(o.Nonce)+len(o.Ciphertext)+len(o.Padding))
	buf = appendUint16(buf, ObjectVersion)
	buf = appendUint16(buf, o.Namespace)
	buf = appendUint64(buf, o.Epoch)
	buf = appendUint16(buf, o.Flags)
	buf = append(buf, o.Tag[:]...)
	buf = append(buf, o.SenderPubKey...)
	buf = appendBytes32(buf, o.Nonce)
	buf = appendBytes32(buf, o.Ciphertext)
	buf = appendBytes32(buf, o.Padding)
	return buf
}

// ObjectRoot returns the object's identity hash: blake2b-256 over its
// canonical encoding.
func ObjectRoot(o *Object) ([32]byte, error) {
	enc, err := EncodeObject(o)
	if err != nil {
		return [32]byte{}, err
	}
	return blake2b.Sum256(enc), nil
}

func appendUint16(buf []byte, v uint16) []byte {
	var tmp [2]byte
	binary.BigEndian.PutUint16(tmp[:], v)
	return append(buf, tmp[:]...)
}

func appendUint64(buf []byte, v uint64) []byte {
	var tmp [8]byte
	binary.BigEndian.PutUint64(tmp[:], v)
	return append(buf, tmp[:]...)
}

func appendBytes32(buf []byte, v []byte) []byte {
	var tmp [4]byte
	binary.BigEndian.PutUint32(tmp[:], uint32(len(v)))
	buf = append(buf, tmp[:]...)
	return append(buf, v...)
}
