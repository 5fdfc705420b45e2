package hash

import (
	"crypto/sha256"
	"encoding/binary"
	"encoding/hex"
	"fmt"
	"strings"
)

// Builder builds a canonical byte sequence then hashes it to Hash32 (sha256).
//
// Encoding rules:
//   - Bytes/string: u32(len) big-endian + bytes
//   - Hex strings (addresses/tx hash): trim 0x, lowercase, decode, then length-prefix
//
// Used for the Kafka message key of each oracle result.
type Builder struct {
	b []byte
}

func NewBuilder() *Builder { return &Builder{b: make([]byte, 0, 128)} }

func (d *Builder) PutBytes(p []byte) *Builder {
	var buf [4]byte
	binary.BigEndian.PutUint32(buf[:], uint32(len(p)))
	d.b = append(d.b, buf[:]...)
	d.b = append(d.b, p...)
	return d
}

func (d *Builder) PutString(s string) *Builder { return d.PutBytes([]byte(s)) }

// PutHexBytes appends the raw bytes of a 0x-hex string, so that case and
// prefix differences of the same address produce the same key.
func (d *Builder) PutHexBytes(hexStr string) (*Builder, error) {
	s := strings.TrimSpace(hexStr)
	s = strings.TrimPrefix(s, "0x")
	s = strings.TrimPrefix(s, "0X")
	s = strings.ToLower(s)
	if len(s)%2 != 0 {
		s = "0" + s
	}
	b, err := hex.DecodeString(s)
	if err != nil {
		return d, fmt.Errorf("hash: decode hex: %w", err)
	}
	return d.PutBytes(b), nil
}

func (d *Builder) Sum32() Hash32 {
	return sha256.Sum256(d.b)
}

// JobKey is the idempotency key of one address processed in one cycle.
func JobKey(cycleID, address string) Hash32 {
	b := NewBuilder().PutString(cycleID)
	if _, err := b.PutHexBytes(address); err != nil {
		b.PutString(address)
	}
	return b.Sum32()
}
