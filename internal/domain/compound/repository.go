package compound

import (
	"context"
	"time"

	"github.com/turtacn/AntiMalaria-Intelligence/pkg/types/common"
)

// LibraryEntry is one distinct structure a user has predicted, with its
// reference record.
type LibraryEntry struct {
	Compound        *ReferenceRecord `json:"compound"`
	Predictions     int64            `json:"predictions"`
	LastPredictedAt time.Time        `json:"last_predicted_at"`
}

// LibraryFilter narrows a Library call. An empty UserID spans every user.
type LibraryFilter struct {
	UserID     string
	Pagination common.Pagination
}

// Repository is the authoritative store for reference records.
type Repository interface {
	// FindBySMILES returns the stored records for the given structures,
	// keyed by structure. Unknown structures are absent from the map.
	FindBySMILES(ctx context.Context, smiles []string) (map[string]*ReferenceRecord, error)

	// Upsert inserts or replaces the record for r.SMILES. On conflict the
	// existing row keeps its id, which is written back into r.
	Upsert(ctx context.Context, r *ReferenceRecord) error

	// Library lists the distinct structures behind stored predictions,
	// most recently predicted first.
	Library(ctx context.Context, f LibraryFilter) ([]*LibraryEntry, int64, error)
}

// Cache is a non-authoritative tier in front of Repository.
type Cache interface {
	GetMany(ctx context.Context, smiles []string) (map[string]*ReferenceRecord, error)
	Set(ctx context.Context, r *ReferenceRecord) error
}
