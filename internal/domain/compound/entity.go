// Package compound holds the reference chemistry records fetched from the
// external chemistry database and cached locally.
package compound

import (
	"time"

	"github.com/google/uuid"
)

// ReferenceRecord is the reference data known about one structure. Every
// field except SMILES is optional; a record whose lookup failed carries only
// the structure string.
type ReferenceRecord struct {
	ID               uuid.UUID `json:"id"`
	SMILES           string    `json:"smiles"`
	CID              *int64    `json:"cid"`
	MolecularFormula *string   `json:"molecular_formula"`
	MolecularWeight  *float64  `json:"molecular_weight"`
	IUPACName        *string   `json:"iupac_name"`
	InChI            *string   `json:"inchi"`
	InChIKey         *string   `json:"inchikey"`
	Synonyms         *string   `json:"synonyms"`
	Description      *string   `json:"description"`
	StructureImage   *string   `json:"structure_image"`
	CreatedAt        time.Time `json:"created_at"`
}

// NewReferenceRecord returns a record that knows only its structure.
func NewReferenceRecord(smiles string) *ReferenceRecord {
	return &ReferenceRecord{
		ID:        uuid.New(),
		SMILES:    smiles,
		CreatedAt: time.Now().UTC(),
	}
}

// Resolved reports whether the record was matched to an external compound.
func (r *ReferenceRecord) Resolved() bool {
	return r != nil && r.CID != nil
}

// Clone returns a deep copy so cached records can be handed out safely.
func (r *ReferenceRecord) Clone() *ReferenceRecord {
	if r == nil {
		return nil
	}
	c := *r
	c.CID = clonePtr(r.CID)
	c.MolecularFormula = clonePtr(r.MolecularFormula)
	c.MolecularWeight = clonePtr(r.MolecularWeight)
	c.IUPACName = clonePtr(r.IUPACName)
	c.InChI = clonePtr(r.InChI)
	c.InChIKey = clonePtr(r.InChIKey)
	c.Synonyms = clonePtr(r.Synonyms)
	c.Description = clonePtr(r.Description)
	c.StructureImage = clonePtr(r.StructureImage)
	return &c
}

func clonePtr[T any](p *T) *T {
	if p == nil {
		return nil
	}
	v := *p
	return &v
}

// StringPtr returns nil for an empty string and a pointer otherwise.
func StringPtr(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
