package mlmodel

import (
	"github.com/turtacn/AntiMalaria-Intelligence/pkg/types/common"
)

// Model lifecycle event types.
const (
	EventModelUploaded  = "model.uploaded"
	EventModelActivated = "model.activated"
	EventModelDeleted   = "model.deleted"
)

// LifecycleEvent tells replicas which artifact changed.
type LifecycleEvent struct {
	common.BaseEvent
	Method     string `json:"method"`
	Descriptor string `json:"descriptor"`
	Version    int    `json:"version"`
	FileName   string `json:"file_name"`
}

// NewLifecycleEvent builds an event of eventType for m.
func NewLifecycleEvent(eventType string, m *Model) *LifecycleEvent {
	return &LifecycleEvent{
		BaseEvent:  common.NewBaseEvent(eventType, m.ID.String()),
		Method:     m.Method,
		Descriptor: m.Descriptor,
		Version:    m.Version,
		FileName:   m.FileName,
	}
}
