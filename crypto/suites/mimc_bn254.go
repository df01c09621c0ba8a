package suites

import (
	"fmt"

	"github.com/consensys/gnark-crypto/ecc/bn254/fr"
	"github.com/consensys/gnark-crypto/ecc/bn254/fr/mimc"
)

// MiMCBN254 implements a cipher suite over the scalar field of BN254, using
// the MiMC block cipher in Miyaguchi-Preneel mode to hash interior nodes. It
// is cheap to verify inside a Groth16/PLONK circuit on the same curve.
type MiMCBN254 struct{}

var _ CipherSuite = MiMCBN254{}

func (s MiMCBN254) Id() uint16   { return 0x01 }
func (s MiMCBN254) Name() string { return "mimc-bn254" }

func (s MiMCBN254) Validate(h Hash) error {
	raw := [HashSize]byte(h)
	if _, err := fr.BigEndian.Element(&raw); err != nil {
		return fmt.Errorf("value is not a canonical field element: %w", err)
	}
	return nil
}

func (s MiMCBN254) HashPair(left, right Hash) Hash {
	h := mimc.NewMiMC()
	if _, err := h.Write(left[:]); err != nil {
		panic(fmt.Errorf("left hash is not a field element: %v", err))
	} else if _, err := h.Write(right[:]); err != nil {
		panic(fmt.Errorf("right hash is not a field element: %v", err))
	}

	var out Hash
	copy(out[:], h.Sum(nil))
	return out
}
