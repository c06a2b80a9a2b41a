package prediction

import (
	"context"

	"github.com/google/uuid"

	"github.com/turtacn/AntiMalaria-Intelligence/pkg/types/common"
)

// ListFilter narrows a List call. An empty UserID lists every batch.
type ListFilter struct {
	UserID     string
	Pagination common.Pagination
}

// ResultFilter narrows a ListResults call. Empty fields do not filter.
type ResultFilter struct {
	UserID       string
	PredictionID uuid.UUID
	Pagination   common.Pagination
}

// Repository persists prediction batches.
type Repository interface {
	// SaveBatch stores the batch row and all of its results in one
	// transaction.
	SaveBatch(ctx context.Context, b *Batch) error

	// Get loads a batch with its results in stored order.
	Get(ctx context.Context, id uuid.UUID) (*Batch, error)

	// List returns batch headers, newest first, without results.
	List(ctx context.Context, f ListFilter) ([]*Batch, int64, error)

	// Delete removes a batch and its results.
	Delete(ctx context.Context, id uuid.UUID) error

	// ListResults returns stored results, newest batch first and in input
	// order within a batch.
	ListResults(ctx context.Context, f ResultFilter) ([]*ResultRecord, int64, error)

	// GetResult loads one stored result.
	GetResult(ctx context.Context, id uuid.UUID) (*ResultRecord, error)

	// DeleteResult removes one result and leaves the rest of its batch.
	DeleteResult(ctx context.Context, id uuid.UUID) error
}
