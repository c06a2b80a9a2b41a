package mlmodel

import (
	"context"

	"github.com/google/uuid"
)

// Repository persists model metadata.
type Repository interface {
	// Create inserts m, assigning the next version number for its pair.
	Create(ctx context.Context, m *Model) error
	GetByID(ctx context.Context, id uuid.UUID) (*Model, error)
	// GetActive returns the active model for a (method, descriptor) pair.
	GetActive(ctx context.Context, method, descriptor string) (*Model, error)
	List(ctx context.Context) ([]*Model, error)
	// Activate marks id active and deactivates the rest of its pair in one
	// transaction.
	Activate(ctx context.Context, id uuid.UUID) (*Model, error)
	Delete(ctx context.Context, id uuid.UUID) error
}
