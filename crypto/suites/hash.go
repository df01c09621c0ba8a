package suites

import (
	"encoding/hex"
	"fmt"
	"math/big"
	"strings"
)

// HashSize is the width of the canonical encoding of a Hash.
const HashSize = 32

// Hash is a field element in fixed-width big-endian encoding. It is used
// uniformly for leaves, interior nodes, roots and identity commitments.
type Hash [HashSize]byte

// ParseHash decodes a hex string, with or without a 0x prefix. Inputs shorter
// than 64 digits are left-padded with zeros.
func ParseHash(s string) (Hash, error) {
	s = strings.TrimPrefix(strings.TrimPrefix(s, "0x"), "0X")
	if len(s) == 0 {
		return Hash{}, fmt.Errorf("empty hash")
	} else if len(s) > 2*HashSize {
		return Hash{}, fmt.Errorf("hash is too long: %v digits", len(s))
	}
	if len(s)%2 == 1 {
		s = "0" + s
	}
	raw, err := hex.DecodeString(s)
	if err != nil {
		return Hash{}, fmt.Errorf("failed to parse hash: %w", err)
	}

	var out Hash
	copy(out[HashSize-len(raw):], raw)
	return out, nil
}

// HashFromBig returns the encoding of x, which must be non-negative and fit in
// HashSize bytes.
func HashFromBig(x *big.Int) (Hash, error) {
	if x.Sign() < 0 {
		return Hash{}, fmt.Errorf("negative value")
	} else if x.BitLen() > 8*HashSize {
		return Hash{}, fmt.Errorf("value is too large: %v bits", x.BitLen())
	}
	var out Hash
	x.FillBytes(out[:])
	return out, nil
}

// Big returns h as an integer.
func (h Hash) Big() *big.Int {
	return new(big.Int).SetBytes(h[:])
}

// IsZero reports whether h is the all-zero value.
func (h Hash) IsZero() bool {
	return h == Hash{}
}

func (h Hash) String() string {
	return "0x" + hex.EncodeToString(h[:])
}

func (h Hash) MarshalText() ([]byte, error) {
	return []byte(h.String()), nil
}

func (h *Hash) UnmarshalText(text []byte) error {
	parsed, err := ParseHash(string(text))
	if err != nil {
		return err
	}
	*h = parsed
	return nil
}
