package compound

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNewReferenceRecord(t *testing.T) {
	r := NewReferenceRecord("CCO")
	assert.Equal(t, "CCO", r.SMILES)
	assert.False(t, r.Resolved())
	assert.NotEqual(t, [16]byte{}, [16]byte(r.ID))
	assert.False(t, r.CreatedAt.IsZero())
}

func TestReferenceRecord_CloneIsDeep(t *testing.T) {
	cid := int64(702)
	r := NewReferenceRecord("CCO")
	r.CID = &cid
	r.IUPACName = StringPtr("ethanol")

	c := r.Clone()
	*c.CID = 1
	*c.IUPACName = "changed"

	assert.Equal(t, int64(702), *r.CID)
	assert.Equal(t, "ethanol", *r.IUPACName)
	assert.True(t, c.Resolved())

	var nilRecord *ReferenceRecord
	assert.Nil(t, nilRecord.Clone())
	assert.False(t, nilRecord.Resolved())
}

func TestStringPtr(t *testing.T) {
	assert.Nil(t, StringPtr(""))
	assert.Equal(t, "x", *StringPtr("x"))
}
