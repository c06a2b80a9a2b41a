package client

import (
	"context"
	"fmt"
	"io"
	"time"

	"github.com/turtacn/AntiMalaria-Intelligence/pkg/errors"
)

// Model is an estimator row joined with its in-memory registry state.
type Model struct {
	ID         string    `json:"id"`
	Name       string    `json:"name"`
	Method     string    `json:"method"`
	Descriptor string    `json:"descriptor"`
	Version    int       `json:"version"`
	FileName   string    `json:"file_name"`
	IsActive   bool      `json:"is_active"`
	CreatedAt  time.Time `json:"created_at"`
	Loaded     bool      `json:"loaded"`
	Kind       string    `json:"kind,omitempty"`
	Features   int       `json:"features,omitempty"`
	Checksum   string    `json:"checksum,omitempty"`
}

// ModelsClient wraps /api/v1/models. Upload, Activate and Delete need the
// admin role.
type ModelsClient struct {
	client *Client
}

// List returns every registered model.
func (m *ModelsClient) List(ctx context.Context) ([]Model, error) {
	var out []Model
	if err := m.client.get(ctx, apiPrefix+"/models", &out); err != nil {
		return nil, err
	}
	return out, nil
}

// Get fetches one model.
func (m *ModelsClient) Get(ctx context.Context, id string) (*Model, error) {
	if err := validID("model", id); err != nil {
		return nil, err
	}
	var out Model
	if err := m.client.get(ctx, apiPrefix+"/models/"+id, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// Upload registers a new artifact version for the method/descriptor pair.
// The new version starts inactive.
func (m *ModelsClient) Upload(ctx context.Context, method, descriptor, fileName string, artifact io.Reader) (*Model, error) {
	if method == "" || descriptor == "" || fileName == "" {
		return nil, errors.InvalidParam("method, descriptor and file name are required")
	}
	data, err := io.ReadAll(artifact)
	if err != nil {
		return nil, fmt.Errorf("failed to read artifact: %w", err)
	}
	fields := map[string]string{"method": method, "descriptor": descriptor}
	var out Model
	if err := m.client.post(ctx, apiPrefix+"/models", multipartPayload(fields, fileName, data), &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// Activate makes id the active version of its pair.
func (m *ModelsClient) Activate(ctx context.Context, id string) (*Model, error) {
	if err := validID("model", id); err != nil {
		return nil, err
	}
	var out Model
	if err := m.client.post(ctx, apiPrefix+"/models/"+id+"/activate", nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// Delete unregisters a model and removes its artifact.
func (m *ModelsClient) Delete(ctx context.Context, id string) error {
	if err := validID("model", id); err != nil {
		return err
	}
	return m.client.delete(ctx, apiPrefix+"/models/"+id)
}
