// Package prediction holds prediction batches and their per-structure
// results.
package prediction

import (
	"time"

	"github.com/google/uuid"

	"github.com/turtacn/AntiMalaria-Intelligence/internal/domain/compound"
)

// InputSource records how the structures of a batch were supplied.
type InputSource string

const (
	InputSourceCSV  InputSource = "csv"
	InputSourceText InputSource = "text"
)

// Valid reports whether s is a known input source.
func (s InputSource) Valid() bool {
	return s == InputSourceCSV || s == InputSourceText
}

// Result is the composed outcome for one structure. It is not modified after
// composition.
type Result struct {
	SMILES   string                    `json:"smiles"`
	PIC50    float64                   `json:"pic50"`
	LELP     *float64                  `json:"lelp"`
	Category Category                  `json:"category"`
	Compound *compound.ReferenceRecord `json:"compound"`
}

// Batch is one prediction run and its ordered results.
type Batch struct {
	ID              uuid.UUID   `json:"id"`
	UserID          string      `json:"user_id"`
	MLModelID       uuid.UUID   `json:"ml_model_id"`
	InputSourceType InputSource `json:"input_source_type"`
	CreatedAt       time.Time   `json:"created_at"`
	CompletedAt     *time.Time  `json:"completed_at"`
	Results         []*Result   `json:"results"`
}

// NewBatch starts a batch for userID against model modelID.
func NewBatch(userID string, modelID uuid.UUID, source InputSource) *Batch {
	return &Batch{
		ID:              uuid.New(),
		UserID:          userID,
		MLModelID:       modelID,
		InputSourceType: source,
		CreatedAt:       time.Now().UTC(),
	}
}

// Complete attaches the results and stamps the completion time.
func (b *Batch) Complete(results []*Result) {
	now := time.Now().UTC()
	b.Results = results
	b.CompletedAt = &now
}

// OwnedBy reports whether userID created the batch.
func (b *Batch) OwnedBy(userID string) bool {
	return b != nil && userID != "" && b.UserID == userID
}

// ResultRecord is one stored result addressed on its own, together with the
// batch it belongs to.
type ResultRecord struct {
	ID           uuid.UUID `json:"id"`
	PredictionID uuid.UUID `json:"prediction_id"`
	UserID       string    `json:"user_id"`
	Position     int       `json:"position"`
	CreatedAt    time.Time `json:"created_at"`
	Result
}

// OwnedBy reports whether userID created the batch holding the result.
func (r *ResultRecord) OwnedBy(userID string) bool {
	return r != nil && userID != "" && r.UserID == userID
}
