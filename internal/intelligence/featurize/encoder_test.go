package featurize

import (
	"strconv"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func identityMask(n int) []byte {
	parts := make([]string, n)
	for i := range parts {
		parts[i] = strconv.Itoa(i)
	}
	return []byte("[" + strings.Join(parts, ",") + "]")
}

func newTestEncoder(t *testing.T) *Encoder {
	t.Helper()
	r := NewMaskRegistry(nil)
	require.NoError(t, r.Load(SchemeECFP, identityMask(SchemeECFP.Bits())))
	require.NoError(t, r.Load(SchemePubChemFP, []byte(`[10, 3, 7]`)))
	return NewEncoder(r)
}

func TestEncoder_MatchesFingerprint(t *testing.T) {
	enc := newTestEncoder(t)

	vec, ok := enc.Encode("CCO", SchemeECFP)
	require.True(t, ok)
	require.Len(t, vec, 2048)

	fp, err := Fingerprint("CCO", SchemeECFP)
	require.NoError(t, err)
	for i, v := range vec {
		assert.Equal(t, fp.GetBit(i), v == 1, "bit %d", i)
	}
}

func TestEncoder_ProjectsInMaskOrder(t *testing.T) {
	enc := newTestEncoder(t)
	fp, err := Fingerprint("c1ccccc1O", SchemePubChemFP)
	require.NoError(t, err)

	vec, ok := enc.Encode("c1ccccc1O", SchemePubChemFP)
	require.True(t, ok)
	require.Len(t, vec, 3)
	for i, idx := range []int{10, 3, 7} {
		want := 0.0
		if fp.GetBit(idx) {
			want = 1
		}
		assert.Equal(t, want, vec[i])
	}
}

func TestEncoder_InvalidInput(t *testing.T) {
	enc := newTestEncoder(t)
	for _, smi := range []string{"", "C1CC", "not-a-smiles", "Cc"} {
		_, ok := enc.Encode(smi, SchemeECFP)
		assert.False(t, ok, smi)
	}
	_, ok := enc.Encode("CCO", Scheme("MACCS"))
	assert.False(t, ok)
}

func TestEncoder_DisabledScheme(t *testing.T) {
	enc := NewEncoder(NewMaskRegistry(nil))
	_, ok := enc.Encode("CCO", SchemeECFP)
	assert.False(t, ok)
}

func TestFingerprint_Deterministic(t *testing.T) {
	a, err := Fingerprint("CC(=O)Oc1ccccc1C(=O)O", SchemeECFP)
	require.NoError(t, err)
	b, err := Fingerprint("CC(=O)Oc1ccccc1C(=O)O", SchemeECFP)
	require.NoError(t, err)
	assert.Equal(t, a.OnBits(), b.OnBits())
	assert.Equal(t, 2048, a.Length)
}
