package prediction

import (
	"github.com/turtacn/AntiMalaria-Intelligence/pkg/types/common"
)

// EventPredictionCompleted is published after a batch is persisted.
const EventPredictionCompleted = "prediction.completed"

// CompletedEvent summarises a persisted batch.
type CompletedEvent struct {
	common.BaseEvent
	UserID      string         `json:"user_id"`
	MLModelID   string         `json:"ml_model_id"`
	Structures  int            `json:"structures"`
	Categories  map[string]int `json:"categories"`
	InputSource InputSource    `json:"input_source_type"`
}

// NewCompletedEvent builds the completion event for b.
func NewCompletedEvent(b *Batch) *CompletedEvent {
	cats := make(map[string]int)
	for _, r := range b.Results {
		cats[string(r.Category)]++
	}
	return &CompletedEvent{
		BaseEvent:   common.NewBaseEvent(EventPredictionCompleted, b.ID.String()),
		UserID:      b.UserID,
		MLModelID:   b.MLModelID.String(),
		Structures:  len(b.Results),
		Categories:  cats,
		InputSource: b.InputSourceType,
	}
}
