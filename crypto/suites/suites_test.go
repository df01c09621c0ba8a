package suites

import (
	"encoding/json"
	"math/big"
	"testing"

	"github.com/stretchr/testify/require"
)

const bn254Modulus = "0x30644e72e131a029b85045b68181585d2833e84879b9709143e1f593f0000001"

func TestParseHash(t *testing.T) {
	for _, tc := range []struct {
		in   string
		want string
		ok   bool
	}{
		{"0x1c4823575d154474ee3e5ac838d002456a815181437afd14f126da58a9912bbe", "0x1c4823575d154474ee3e5ac838d002456a815181437afd14f126da58a9912bbe", true},
		{"1c4823575d154474ee3e5ac838d002456a815181437afd14f126da58a9912bbe", "0x1c4823575d154474ee3e5ac838d002456a815181437afd14f126da58a9912bbe", true},
		{"0x0", "0x0000000000000000000000000000000000000000000000000000000000000000", true},
		{"abc", "0x0000000000000000000000000000000000000000000000000000000000000abc", true},
		{"", "", false},
		{"0x", "", false},
		{"zz", "", false},
		{"0x" + "00" + "1c4823575d154474ee3e5ac838d002456a815181437afd14f126da58a9912bbe", "", false},
	} {
		got, err := ParseHash(tc.in)
		if !tc.ok {
			require.Error(t, err, tc.in)
			continue
		}
		require.NoError(t, err, tc.in)
		require.Equal(t, tc.want, got.String())
	}
}

func TestHashJSON(t *testing.T) {
	h, err := ParseHash("0x2a")
	require.NoError(t, err)

	raw, err := json.Marshal(struct {
		H Hash `json:"h"`
	}{h})
	require.NoError(t, err)
	require.JSONEq(t, `{"h":"0x000000000000000000000000000000000000000000000000000000000000002a"}`, string(raw))

	var parsed struct {
		H Hash `json:"h"`
	}
	require.NoError(t, json.Unmarshal(raw, &parsed))
	require.Equal(t, h, parsed.H)
	require.Equal(t, int64(42), parsed.H.Big().Int64())
}

func TestHashFromBig(t *testing.T) {
	h, err := HashFromBig(big.NewInt(258))
	require.NoError(t, err)
	require.Equal(t, byte(1), h[30])
	require.Equal(t, byte(2), h[31])

	_, err = HashFromBig(big.NewInt(-1))
	require.Error(t, err)
	_, err = HashFromBig(new(big.Int).Lsh(big.NewInt(1), 256))
	require.Error(t, err)
}

func TestMiMCValidate(t *testing.T) {
	cs := MiMCBN254{}

	modulus, err := ParseHash(bn254Modulus)
	require.NoError(t, err)
	require.Error(t, cs.Validate(modulus))

	below, err := HashFromBig(new(big.Int).Sub(modulus.Big(), big.NewInt(1)))
	require.NoError(t, err)
	require.NoError(t, cs.Validate(below))
	require.NoError(t, cs.Validate(Hash{}))

	var max Hash
	for i := range max {
		max[i] = 0xff
	}
	require.Error(t, cs.Validate(max))
}

func TestMiMCHashPair(t *testing.T) {
	cs := MiMCBN254{}
	a, _ := HashFromBig(big.NewInt(1))
	b, _ := HashFromBig(big.NewInt(2))

	ab := cs.HashPair(a, b)
	require.Equal(t, ab, cs.HashPair(a, b), "hash must be deterministic")
	require.NotEqual(t, ab, cs.HashPair(b, a), "hash must depend on child order")
	require.NoError(t, cs.Validate(ab), "output must be a field element")

	modulus, _ := ParseHash(bn254Modulus)
	require.Panics(t, func() { cs.HashPair(modulus, a) })
}

func TestByName(t *testing.T) {
	require.Equal(t, MiMCBN254{}, ByName("mimc-bn254"))
	require.Equal(t, MiMCBN254{}, ByName(""))
	require.Nil(t, ByName("sha256"))
}
