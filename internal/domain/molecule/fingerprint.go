package molecule

import (
	"fmt"
	"math/bits"
)

// FingerprintType identifies the algorithm that produced a Fingerprint.
type FingerprintType string

const (
	// FingerprintMorgan is the circular (ECFP-like) fingerprint.
	FingerprintMorgan FingerprintType = "morgan"
)

// String implements fmt.Stringer.
func (t FingerprintType) String() string { return string(t) }

// ─────────────────────────────────────────────────────────────────────────────
// Fingerprint Structure
// ─────────────────────────────────────────────────────────────────────────────

// Fingerprint is a fixed-length bit vector. Bit i is stored in byte i/8 at
// bit position i%8.
type Fingerprint struct {
	Type      FingerprintType `json:"type"`
	Radius    int             `json:"radius"`
	Bits      []byte          `json:"bits"`
	Length    int             `json:"length"`
	NumOnBits int             `json:"num_on_bits"`
}

// NewFingerprint allocates an all-zero fingerprint of the given length.
func NewFingerprint(fpType FingerprintType, radius, length int) *Fingerprint {
	return &Fingerprint{
		Type:   fpType,
		Radius: radius,
		Bits:   make([]byte, (length+7)/8),
		Length: length,
	}
}

// FingerprintFromBytes wraps packed bit data, recomputing the popcount.
func FingerprintFromBytes(fpType FingerprintType, data []byte, length int) (*Fingerprint, error) {
	if len(data)*8 < length {
		return nil, fmt.Errorf("fingerprint: %d bytes cannot hold %d bits", len(data), length)
	}
	onBits := 0
	for _, b := range data {
		onBits += bits.OnesCount8(b)
	}
	return &Fingerprint{Type: fpType, Bits: data, Length: length, NumOnBits: onBits}, nil
}

// ─────────────────────────────────────────────────────────────────────────────
// Bit Operations
// ─────────────────────────────────────────────────────────────────────────────

// GetBit returns true if the bit at index is set. Out-of-range indices read
// as unset.
func (fp *Fingerprint) GetBit(index int) bool {
	if index < 0 || index >= fp.Length {
		return false
	}
	return fp.Bits[index/8]&(1<<uint(index%8)) != 0
}

// SetBit sets the bit at index to 1.
func (fp *Fingerprint) SetBit(index int) {
	if index < 0 || index >= fp.Length {
		return
	}
	old := fp.Bits[index/8]
	fp.Bits[index/8] |= 1 << uint(index%8)
	if old != fp.Bits[index/8] {
		fp.NumOnBits++
	}
}

// OnBits returns the indices of all set bits in ascending order.
func (fp *Fingerprint) OnBits() []int {
	out := make([]int, 0, fp.NumOnBits)
	for i, b := range fp.Bits {
		for b != 0 {
			j := bits.TrailingZeros8(b)
			if idx := i*8 + j; idx < fp.Length {
				out = append(out, idx)
			}
			b &^= 1 << uint(j)
		}
	}
	return out
}

// Project returns the dense 0/1 vector of the bits named by indices, in the
// order given. Indices outside the fingerprint are an error.
func (fp *Fingerprint) Project(indices []int) ([]float64, error) {
	out := make([]float64, len(indices))
	for i, idx := range indices {
		if idx < 0 || idx >= fp.Length {
			return nil, fmt.Errorf("fingerprint: index %d outside [0, %d)", idx, fp.Length)
		}
		if fp.GetBit(idx) {
			out[i] = 1
		}
	}
	return out, nil
}

// Tanimoto returns the Jaccard similarity of two fingerprints of equal length.
func (fp *Fingerprint) Tanimoto(other *Fingerprint) (float64, error) {
	if fp.Length != other.Length {
		return 0, fmt.Errorf("fingerprint: length mismatch %d vs %d", fp.Length, other.Length)
	}
	var both, either int
	for i := range fp.Bits {
		both += bits.OnesCount8(fp.Bits[i] & other.Bits[i])
		either += bits.OnesCount8(fp.Bits[i] | other.Bits[i])
	}
	if either == 0 {
		return 0, nil
	}
	return float64(both) / float64(either), nil
}
