package molecule

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFingerprint_SetGetBit(t *testing.T) {
	fp := NewFingerprint(FingerprintMorgan, 2, 881)
	assert.Len(t, fp.Bits, 111)

	fp.SetBit(0)
	fp.SetBit(880)
	fp.SetBit(880)
	fp.SetBit(881)
	fp.SetBit(-1)

	assert.True(t, fp.GetBit(0))
	assert.True(t, fp.GetBit(880))
	assert.False(t, fp.GetBit(881))
	assert.False(t, fp.GetBit(1))
	assert.Equal(t, 2, fp.NumOnBits)
	assert.Equal(t, []int{0, 880}, fp.OnBits())
}

func TestFingerprint_Project(t *testing.T) {
	fp := NewFingerprint(FingerprintMorgan, 3, 16)
	fp.SetBit(3)
	fp.SetBit(7)

	v, err := fp.Project([]int{7, 0, 3, 15})
	require.NoError(t, err)
	assert.Equal(t, []float64{1, 0, 1, 0}, v)

	_, err = fp.Project([]int{16})
	assert.Error(t, err)
}

func TestFingerprint_Tanimoto(t *testing.T) {
	a := NewFingerprint(FingerprintMorgan, 2, 8)
	b := NewFingerprint(FingerprintMorgan, 2, 8)
	a.SetBit(1)
	a.SetBit(2)
	b.SetBit(2)
	b.SetBit(3)

	sim, err := a.Tanimoto(b)
	require.NoError(t, err)
	assert.InDelta(t, 1.0/3.0, sim, 1e-9)

	empty := NewFingerprint(FingerprintMorgan, 2, 8)
	sim, err = empty.Tanimoto(NewFingerprint(FingerprintMorgan, 2, 8))
	require.NoError(t, err)
	assert.Zero(t, sim)

	_, err = a.Tanimoto(NewFingerprint(FingerprintMorgan, 2, 16))
	assert.Error(t, err)
}

func TestFingerprintFromBytes(t *testing.T) {
	fp, err := FingerprintFromBytes(FingerprintMorgan, []byte{0x05, 0x80}, 16)
	require.NoError(t, err)
	assert.Equal(t, 3, fp.NumOnBits)
	assert.Equal(t, []int{0, 2, 15}, fp.OnBits())

	_, err = FingerprintFromBytes(FingerprintMorgan, []byte{0x01}, 16)
	assert.Error(t, err)
}

func TestFingerprintType_String(t *testing.T) {
	assert.Equal(t, "morgan", FingerprintMorgan.String())
}
