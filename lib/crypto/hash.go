package crypto

import (
	"bytes"
	"crypto/sha256"
	"encoding/binary"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"hash"
)

const (
	HashSize = sha256.Size
)

/*
	Hash is the fixed-size digest used by the commit-reveal scheme.
	in_value, out_value and the consensus signature of a miner are all Hash values
*/

// Hash is a sha256 digest
type Hash [HashSize]byte

var (
	// EmptyHash is the all-zero digest, used as the fixed sentinel for absent or invalidated values
	EmptyHash = Hash{}
	MaxHash   = Hash(bytes.Repeat([]byte{0xFF}, HashSize))
)

// Hasher() returns the global hashing algorithm used
func Hasher() hash.Hash { return sha256.New() }

// Sum() executes the global hashing algorithm on input bytes
func Sum(msg ...[]byte) Hash {
	h := Hasher()
	for _, m := range msg {
		h.Write(m)
	}
	var out Hash
	copy(out[:], h.Sum(nil))
	return out
}

// HashString() returns the hex string version of a hash of msg
func HashString(msg []byte) string { return Sum(msg).String() }

// HashFromBytes() converts a 32 byte slice into a Hash
func HashFromBytes(bz []byte) (h Hash, err error) {
	if len(bz) != HashSize {
		return h, fmt.Errorf("wrong hash size %d, expected %d", len(bz), HashSize)
	}
	copy(h[:], bz)
	return
}

// HashFromString() decodes a hex string into a Hash
func HashFromString(s string) (h Hash, err error) {
	bz, err := hex.DecodeString(s)
	if err != nil {
		return
	}
	return HashFromBytes(bz)
}

// Xor() returns the byte-wise exclusive or of two hashes
func (h Hash) Xor(o Hash) (out Hash) {
	for i := range h {
		out[i] = h[i] ^ o[i]
	}
	return
}

// Int64() interprets the first 8 bytes as a little endian signed integer
func (h Hash) Int64() int64 { return int64(binary.LittleEndian.Uint64(h[:8])) }

// IsEmpty() returns true for the sentinel value
func (h Hash) IsEmpty() bool { return h == EmptyHash }

// Equals() compares two hashes
func (h Hash) Equals(o Hash) bool { return h == o }

// Bytes() returns a copy of the digest bytes
func (h Hash) Bytes() []byte {
	out := make([]byte, HashSize)
	copy(out, h[:])
	return out
}

// String() returns the hex encoding
func (h Hash) String() string { return hex.EncodeToString(h[:]) }

// Ptr() returns a pointer to a copy of the hash
func (h Hash) Ptr() *Hash { return &h }

// MarshalJSON() encodes the hash as a hex string
func (h Hash) MarshalJSON() ([]byte, error) { return json.Marshal(h.String()) }

// UnmarshalJSON() decodes a hex string into the hash
func (h *Hash) UnmarshalJSON(bz []byte) (err error) {
	var s string
	if err = json.Unmarshal(bz, &s); err != nil {
		return
	}
	decoded, err := HashFromString(s)
	if err != nil {
		return
	}
	*h = decoded
	return
}

// XorFold() combines all hashes by exclusive or, in any order
func XorFold(hashes ...Hash) (out Hash) {
	for _, h := range hashes {
		out = out.Xor(h)
	}
	return
}
