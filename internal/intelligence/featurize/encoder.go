package featurize

import (
	"github.com/turtacn/AntiMalaria-Intelligence/internal/domain/molecule"
)

// Encoder projects Morgan fingerprints through the registered masks.
type Encoder struct {
	masks *MaskRegistry
}

// NewEncoder returns an Encoder bound to masks.
func NewEncoder(masks *MaskRegistry) *Encoder {
	return &Encoder{masks: masks}
}

// Masks exposes the underlying registry.
func (e *Encoder) Masks() *MaskRegistry { return e.masks }

// Encode returns the masked 0/1 feature vector of smiles under scheme s.
// It reports false when the structure does not parse or the scheme has no
// mask; it never panics.
func (e *Encoder) Encode(smiles string, s Scheme) ([]float64, bool) {
	mask, err := e.masks.Mask(s)
	if err != nil {
		return nil, false
	}
	fp, err := Fingerprint(smiles, s)
	if err != nil {
		return nil, false
	}
	vec, err := fp.Project(mask)
	if err != nil {
		return nil, false
	}
	return vec, true
}

// Fingerprint computes the unmasked fingerprint of smiles for scheme s.
func Fingerprint(smiles string, s Scheme) (*molecule.Fingerprint, error) {
	if !s.Valid() {
		_, err := ParseScheme(string(s))
		return nil, err
	}
	return molecule.MorganFromSMILES(smiles, s.Radius(), s.Bits())
}
