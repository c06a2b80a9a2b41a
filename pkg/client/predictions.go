package client

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/turtacn/AntiMalaria-Intelligence/pkg/errors"
)

// Potency categories, strongest first.
const (
	CategoryVeryStrong = "very strong"
	CategoryStrong     = "strong"
	CategoryModerate   = "moderate"
	CategoryWeak       = "weak"
	CategoryInactive   = "inactive"
)

// Compound is the PubChem reference record of a structure. Every field but
// SMILES is nil when the lookup found nothing.
type Compound struct {
	ID               string   `json:"id,omitempty"`
	SMILES           string   `json:"smiles"`
	CID              *int64   `json:"cid"`
	MolecularFormula *string  `json:"molecular_formula"`
	MolecularWeight  *float64 `json:"molecular_weight"`
	IUPACName        *string  `json:"iupac_name"`
	InChI            *string  `json:"inchi"`
	InChIKey         *string  `json:"inchikey"`
	Synonyms         *string  `json:"synonyms"`
	Description      *string  `json:"description"`
	StructureImage   *string  `json:"structure_image"`
}

// Result is the prediction for one structure.
type Result struct {
	SMILES   string    `json:"smiles"`
	PIC50    float64   `json:"pic50"`
	LELP     *float64  `json:"lelp"`
	Category string    `json:"category"`
	Compound *Compound `json:"compound"`
}

// Prediction is a stored batch.
type Prediction struct {
	ID              string     `json:"id"`
	UserID          string     `json:"user_id"`
	MLModelID       string     `json:"ml_model_id"`
	InputSourceType string     `json:"input_source_type"`
	CreatedAt       time.Time  `json:"created_at"`
	CompletedAt     *time.Time `json:"completed_at"`
	Results         []Result   `json:"results"`
}

// Page is one page of a listing.
type Page[T any] struct {
	Items      []T   `json:"items"`
	Total      int64 `json:"total"`
	Page       int   `json:"page"`
	PageSize   int   `json:"page_size"`
	TotalPages int   `json:"total_pages"`
}

// PredictRequest selects the estimator by method and descriptor and lists
// the structures to score.
type PredictRequest struct {
	ModelMethod     string   `json:"model_method"`
	ModelDescriptor string   `json:"model_descriptor"`
	SMILES          []string `json:"smiles"`
}

// PredictionsClient wraps /api/v1/predictions.
type PredictionsClient struct {
	client *Client
}

// Predict scores the structures in req. An empty model selection falls back
// to the client's default model.
func (p *PredictionsClient) Predict(ctx context.Context, req *PredictRequest) ([]Result, error) {
	if req == nil || len(req.SMILES) == 0 {
		return nil, errors.InvalidParam("at least one SMILES is required")
	}
	body := *req
	body.ModelMethod, body.ModelDescriptor = p.client.model(req.ModelMethod, req.ModelDescriptor)
	if body.ModelMethod == "" || body.ModelDescriptor == "" {
		return nil, errors.InvalidParam("model_method and model_descriptor are required")
	}
	ctx, cancel := p.client.predictContext(ctx)
	defer cancel()
	var out []Result
	if err := p.client.post(ctx, apiPrefix+"/predictions/predict", jsonPayload(&body), &out); err != nil {
		return nil, err
	}
	return out, nil
}

// PredictCSV uploads a CSV whose first column holds SMILES. fileName must
// end in .csv.
func (p *PredictionsClient) PredictCSV(ctx context.Context, method, descriptor, fileName string, csv io.Reader) ([]Result, error) {
	method, descriptor = p.client.model(method, descriptor)
	if method == "" || descriptor == "" {
		return nil, errors.InvalidParam("model_method and model_descriptor are required")
	}
	ctx, cancel := p.client.predictContext(ctx)
	defer cancel()
	data, err := io.ReadAll(csv)
	if err != nil {
		return nil, fmt.Errorf("failed to read csv: %w", err)
	}
	fields := map[string]string{"model_method": method, "model_descriptor": descriptor}
	var out []Result
	if err := p.client.post(ctx, apiPrefix+"/predictions/predict", multipartPayload(fields, fileName, data), &out); err != nil {
		return nil, err
	}
	return out, nil
}

// List returns one page of the caller's predictions. Zero page or pageSize
// selects the server default.
func (p *PredictionsClient) List(ctx context.Context, page, pageSize int) (*Page[Prediction], error) {
	var out Page[Prediction]
	if err := p.client.get(ctx, withQuery(apiPrefix+"/predictions", pageQuery(page, pageSize)), &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// Get fetches one prediction with its results.
func (p *PredictionsClient) Get(ctx context.Context, id string) (*Prediction, error) {
	if err := validID("prediction", id); err != nil {
		return nil, err
	}
	var out Prediction
	if err := p.client.get(ctx, apiPrefix+"/predictions/"+id, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// Delete removes a prediction and its results.
func (p *PredictionsClient) Delete(ctx context.Context, id string) error {
	if err := validID("prediction", id); err != nil {
		return err
	}
	return p.client.delete(ctx, apiPrefix+"/predictions/"+id)
}

// Download returns the CSV export of a prediction.
func (p *PredictionsClient) Download(ctx context.Context, id string) ([]byte, error) {
	if err := validID("prediction", id); err != nil {
		return nil, err
	}
	return p.client.send(ctx, http.MethodGet, apiPrefix+"/predictions/"+id+"/download", nil)
}
