// Package mlmodel holds the metadata of uploaded estimator artifacts.
package mlmodel

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Model describes one uploaded artifact. At most one model per
// (Method, Descriptor) pair is active.
type Model struct {
	ID         uuid.UUID `json:"id"`
	Name       string    `json:"name"`
	Method     string    `json:"method"`
	Descriptor string    `json:"descriptor"`
	Version    int       `json:"version"`
	FileName   string    `json:"file_name"`
	IsActive   bool      `json:"is_active"`
	CreatedAt  time.Time `json:"created_at"`
}

// NewModel returns an inactive model for the given pair and artifact file.
// Version and Name are assigned by the repository on create.
func NewModel(method, descriptor, fileName string) *Model {
	return &Model{
		ID:         uuid.New(),
		Method:     method,
		Descriptor: descriptor,
		FileName:   fileName,
		CreatedAt:  time.Now().UTC(),
	}
}

// DisplayName is the generated name for version v of the pair.
func DisplayName(method, descriptor string, v int) string {
	return fmt.Sprintf("%s_%s_v%d", method, descriptor, v)
}
