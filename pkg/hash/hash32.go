package hash

import "encoding/hex"

type Hash32 [32]byte

// Hex returns the 0x-prefixed lower-case form.
func (h Hash32) Hex() string {
	return "0x" + hex.EncodeToString(h[:])
}
