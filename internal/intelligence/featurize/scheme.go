// Package featurize turns SMILES strings into the masked fingerprint vectors
// the potency estimators were trained on.
package featurize

import (
	"strings"

	"github.com/turtacn/AntiMalaria-Intelligence/pkg/errors"
)

// Scheme is a molecular encoding scheme. The set is closed.
type Scheme string

const (
	SchemeECFP      Scheme = "ECFP"
	SchemePubChemFP Scheme = "PUBCHEMFP"
)

// Schemes lists every supported scheme in a stable order.
func Schemes() []Scheme { return []Scheme{SchemeECFP, SchemePubChemFP} }

// ParseScheme resolves a descriptor name such as "ECFP" or "pubchemfp".
func ParseScheme(name string) (Scheme, error) {
	switch s := Scheme(strings.ToUpper(strings.TrimSpace(name))); s {
	case SchemeECFP, SchemePubChemFP:
		return s, nil
	default:
		return "", errors.New(errors.ErrCodeEncodingUnavailable, "Unsupported model descriptor.").
			WithDetail(name)
	}
}

// String implements fmt.Stringer.
func (s Scheme) String() string { return string(s) }

// Radius is the Morgan radius used by the scheme.
func (s Scheme) Radius() int {
	switch s {
	case SchemeECFP:
		return 3
	case SchemePubChemFP:
		return 2
	}
	return 0
}

// Bits is the folded fingerprint length used by the scheme.
func (s Scheme) Bits() int {
	switch s {
	case SchemeECFP:
		return 2048
	case SchemePubChemFP:
		return 881
	}
	return 0
}

// MaskFile is the default file name of the scheme's feature mask.
func (s Scheme) MaskFile() string {
	switch s {
	case SchemeECFP:
		return "ecfp_features.json"
	case SchemePubChemFP:
		return "pubchemfp_features.json"
	}
	return ""
}

// Valid reports whether s is one of the supported schemes.
func (s Scheme) Valid() bool {
	switch s {
	case SchemeECFP, SchemePubChemFP:
		return true
	}
	return false
}
