// Package address converts wallet addresses between the two canonical forms
// the oracle's collaborators expect: lower-case hex for the prediction
// service and EIP-55 checksummed hex for the chain node.
package address

import (
	"encoding/hex"
	"errors"
	"fmt"

	"github.com/ethereum/go-ethereum/common"
)

var ErrInvalidFormat = errors.New("address: invalid format")

// Parse decodes a strict "0x" + 40 hex string into its 20 bytes.
// Mixed case is accepted without checking the checksum.
func Parse(raw string) (common.Address, error) {
	var out common.Address
	if len(raw) != 2+2*common.AddressLength || raw[0] != '0' || raw[1] != 'x' {
		return out, fmt.Errorf("%w: %q", ErrInvalidFormat, raw)
	}
	// hex.Decode into the fixed array, no intermediate allocation.
	if _, err := hex.Decode(out[:], []byte(raw[2:])); err != nil {
		return out, fmt.Errorf("%w: %q", ErrInvalidFormat, raw)
	}
	return out, nil
}

// Normalize returns the lower-case form used as the prediction service key.
func Normalize(raw string) (string, error) {
	a, err := Parse(raw)
	if err != nil {
		return "", err
	}
	return Lower(a), nil
}

// Checksum returns the EIP-55 mixed-case form used for chain calls.
func Checksum(raw string) (string, error) {
	a, err := Parse(raw)
	if err != nil {
		return "", err
	}
	return a.Hex(), nil
}

func Lower(a common.Address) string {
	return "0x" + hex.EncodeToString(a[:])
}
