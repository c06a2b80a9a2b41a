package client

import (
	"context"
	"net/url"
	"strconv"
	"time"
)

// StoredResult is one result of a stored prediction.
type StoredResult struct {
	ID           string    `json:"id"`
	PredictionID string    `json:"prediction_id"`
	UserID       string    `json:"user_id"`
	Position     int       `json:"position"`
	CreatedAt    time.Time `json:"created_at"`
	Result
}

// LibraryEntry is one distinct structure the caller has predicted.
type LibraryEntry struct {
	Compound        *Compound `json:"compound"`
	Predictions     int64     `json:"predictions"`
	LastPredictedAt time.Time `json:"last_predicted_at"`
}

// PredictionCompoundsClient wraps /api/v1/prediction_compounds.
type PredictionCompoundsClient struct {
	client *Client
}

// List returns one page of stored results. A non-empty predictionID
// restricts it to that prediction.
func (p *PredictionCompoundsClient) List(ctx context.Context, predictionID string, page, pageSize int) (*Page[StoredResult], error) {
	q := pageQuery(page, pageSize)
	if predictionID != "" {
		if err := validID("prediction", predictionID); err != nil {
			return nil, err
		}
		q.Set("prediction", predictionID)
	}
	var out Page[StoredResult]
	if err := p.client.get(ctx, withQuery(apiPrefix+"/prediction_compounds", q), &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (p *PredictionCompoundsClient) Get(ctx context.Context, id string) (*StoredResult, error) {
	if err := validID("prediction compound", id); err != nil {
		return nil, err
	}
	var out StoredResult
	if err := p.client.get(ctx, apiPrefix+"/prediction_compounds/"+id, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (p *PredictionCompoundsClient) Delete(ctx context.Context, id string) error {
	if err := validID("prediction compound", id); err != nil {
		return err
	}
	return p.client.delete(ctx, apiPrefix+"/prediction_compounds/"+id)
}

// Library returns one page of the caller's compound library.
func (p *PredictionCompoundsClient) Library(ctx context.Context, page, pageSize int) (*Page[LibraryEntry], error) {
	var out Page[LibraryEntry]
	if err := p.client.get(ctx, withQuery(apiPrefix+"/prediction_compounds/lib/", pageQuery(page, pageSize)), &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func pageQuery(page, pageSize int) url.Values {
	q := url.Values{}
	if page > 0 {
		q.Set("page", strconv.Itoa(page))
	}
	if pageSize > 0 {
		q.Set("page_size", strconv.Itoa(pageSize))
	}
	return q
}

func withQuery(path string, q url.Values) string {
	if len(q) == 0 {
		return path
	}
	return path + "?" + q.Encode()
}
