// Package suites implements each supported cipher suite.
package suites

// CipherSuite is the interface implemented by each supported cipher suite.
//
// A cipher suite fixes the field that Hash values are interpreted in and the
// two-to-one compression function used for the interior nodes of the
// accumulator. Both must match what the external prover's circuit expects.
type CipherSuite interface {
	Id() uint16
	Name() string

	// Validate returns an error if h is not a canonical encoding of an element
	// of the suite's field.
	Validate(h Hash) error
	// HashPair returns the hash of the two children of an interior node. Both
	// inputs must have been validated; implementations panic otherwise.
	HashPair(left, right Hash) Hash
}

// ByName returns the cipher suite with the given name, or nil.
func ByName(name string) CipherSuite {
	switch name {
	case "", MiMCBN254{}.Name():
		return MiMCBN254{}
	}
	return nil
}
