// Package pubchem is a small client for the PubChem PUG REST API covering
// the lookups the enrichment stage needs: compound properties by SMILES,
// synonyms and the textual description of a CID.
package pubchem

import (
	"context"
	"encoding/json"
	stderrors "errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/turtacn/AntiMalaria-Intelligence/internal/config"
	"github.com/turtacn/AntiMalaria-Intelligence/internal/infrastructure/monitoring/logging"
	"github.com/turtacn/AntiMalaria-Intelligence/pkg/errors"
)

const (
	Version        = "0.1.0"
	DefaultBaseURL = "https://pubchem.ncbi.nlm.nih.gov/rest/pug"

	imageURLFormat = "https://pubchem.ncbi.nlm.nih.gov/image/imgsrv.fcgi?cid=%d&t=l"
	propertyList   = "MolecularFormula,MolecularWeight,IUPACName,InChI,InChIKey"
)

var (
	ErrNotFound    = errors.New(errors.ErrCodeEnrichmentNotFound, "compound not found in PubChem")
	ErrUpstream    = errors.New(errors.ErrCodeEnrichmentUpstream, "PubChem request failed")
	ErrRateLimited = errors.New(errors.ErrCodeEnrichmentRateLimited, "PubChem rate limit exceeded")
	ErrRejected    = errors.New(errors.ErrCodeEnrichmentRejected, "PubChem rejected the request")
)

// Client talks to PUG REST. It is safe for concurrent use.
type Client struct {
	baseURL            string
	httpClient         *http.Client
	userAgent          string
	logger             logging.Logger
	descriptionTimeout time.Duration
}

// NewClient creates a client against baseURL. An empty baseURL selects the
// public endpoint.
func NewClient(baseURL string, opts ...Option) (*Client, error) {
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	parsedURL, err := url.Parse(baseURL)
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeValidation, "invalid PubChem base URL")
	}
	if parsedURL.Scheme != "http" && parsedURL.Scheme != "https" {
		return nil, errors.New(errors.ErrCodeValidation, "PubChem base URL scheme must be http or https")
	}

	c := &Client{
		baseURL:            strings.TrimSuffix(baseURL, "/"),
		httpClient:         &http.Client{Timeout: 30 * time.Second},
		userAgent:          fmt.Sprintf("ami-enrichment/%s", Version),
		logger:             logging.NewNopLogger(),
		descriptionTimeout: 5 * time.Second,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// NewClientFromConfig builds a client from the enrichment section.
func NewClientFromConfig(cfg config.EnrichmentConfig, logger logging.Logger) (*Client, error) {
	opts := []Option{WithDescriptionTimeout(cfg.DescriptionTimeout)}
	if logger != nil {
		opts = append(opts, WithLogger(logger.Named("pubchem")))
	}
	return NewClient(cfg.BaseURL, opts...)
}

// CompoundData is the subset of a PubChem compound record kept locally.
type CompoundData struct {
	CID              int64
	MolecularFormula string
	MolecularWeight  *float64
	IUPACName        string
	InChI            string
	InChIKey         string
	Synonyms         []string
}

// StructureImage is the URL of the large depiction for the compound.
func (d *CompoundData) StructureImage() string {
	if d == nil || d.CID <= 0 {
		return ""
	}
	return fmt.Sprintf(imageURLFormat, d.CID)
}

type propertyResponse struct {
	PropertyTable struct {
		Properties []struct {
			CID              int64       `json:"CID"`
			MolecularFormula string      `json:"MolecularFormula"`
			MolecularWeight  json.Number `json:"MolecularWeight"`
			IUPACName        string      `json:"IUPACName"`
			InChI            string      `json:"InChI"`
			InChIKey         string      `json:"InChIKey"`
		} `json:"Properties"`
	} `json:"PropertyTable"`
}

type informationResponse struct {
	InformationList struct {
		Information []struct {
			CID         int64    `json:"CID"`
			Synonym     []string `json:"Synonym"`
			Description string   `json:"Description"`
		} `json:"Information"`
	} `json:"InformationList"`
}

// Lookup resolves a SMILES string to the first matching compound and its
// synonyms. ErrNotFound is returned when PubChem has no match.
func (c *Client) Lookup(ctx context.Context, smiles string) (*CompoundData, error) {
	if strings.TrimSpace(smiles) == "" {
		return nil, errors.InvalidParam("smiles is required")
	}

	var props propertyResponse
	form := url.Values{"smiles": {smiles}}
	if err := c.do(ctx, http.MethodPost, "/compound/smiles/property/"+propertyList+"/JSON", form, &props); err != nil {
		return nil, err
	}
	if len(props.PropertyTable.Properties) == 0 || props.PropertyTable.Properties[0].CID <= 0 {
		return nil, ErrNotFound
	}

	p := props.PropertyTable.Properties[0]
	data := &CompoundData{
		CID:              p.CID,
		MolecularFormula: p.MolecularFormula,
		IUPACName:        p.IUPACName,
		InChI:            p.InChI,
		InChIKey:         p.InChIKey,
	}
	if p.MolecularWeight != "" {
		if mw, err := strconv.ParseFloat(p.MolecularWeight.String(), 64); err == nil {
			data.MolecularWeight = &mw
		}
	}

	synonyms, err := c.synonyms(ctx, p.CID)
	if err != nil {
		c.logger.Debug("synonym lookup failed", logging.Int64("cid", p.CID), logging.Err(err))
	}
	data.Synonyms = synonyms
	return data, nil
}

func (c *Client) synonyms(ctx context.Context, cid int64) ([]string, error) {
	var info informationResponse
	if err := c.do(ctx, http.MethodGet, fmt.Sprintf("/compound/cid/%d/synonyms/JSON", cid), nil, &info); err != nil {
		return nil, err
	}
	for _, item := range info.InformationList.Information {
		if len(item.Synonym) > 0 {
			return item.Synonym, nil
		}
	}
	return nil, nil
}

// FetchDescription returns the first textual description PubChem holds for
// cid, or an empty string when there is none. The call is bounded by the
// description timeout regardless of ctx.
func (c *Client) FetchDescription(ctx context.Context, cid int64) (string, error) {
	if cid <= 0 {
		return "", errors.InvalidParam("cid must be positive")
	}
	ctx, cancel := context.WithTimeout(ctx, c.descriptionTimeout)
	defer cancel()

	var info informationResponse
	if err := c.do(ctx, http.MethodGet, fmt.Sprintf("/compound/cid/%d/description/JSON", cid), nil, &info); err != nil {
		return "", err
	}
	for _, item := range info.InformationList.Information {
		if item.Description != "" {
			return item.Description, nil
		}
	}
	return "", nil
}

// do performs one request. A 404 maps to ErrNotFound; transport failures,
// 5xx and 429 map to errors Transient reports as retryable.
func (c *Client) do(ctx context.Context, method, path string, form url.Values, result interface{}) error {
	var body io.Reader
	if form != nil {
		body = strings.NewReader(form.Encode())
	}
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return errors.Wrap(err, errors.ErrCodeInternal, "failed to create request")
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("User-Agent", c.userAgent)
	if form != nil {
		req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	}

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return ErrUpstream.WithCause(err)
	}
	respBody, readErr := io.ReadAll(resp.Body)
	resp.Body.Close()
	c.logger.Debug("PubChem response",
		logging.String("path", path),
		logging.Int("status", resp.StatusCode),
		logging.Duration("duration", time.Since(start)))
	if readErr != nil {
		return ErrUpstream.WithCause(readErr)
	}

	switch {
	case resp.StatusCode == http.StatusNotFound:
		return ErrNotFound
	case resp.StatusCode == http.StatusTooManyRequests:
		return ErrRateLimited
	case resp.StatusCode >= 500:
		return ErrUpstream.WithDetail(fmt.Sprintf("HTTP %d: %s", resp.StatusCode, faultMessage(respBody)))
	case resp.StatusCode >= 400:
		return ErrRejected.WithDetail(fmt.Sprintf("HTTP %d: %s", resp.StatusCode, faultMessage(respBody)))
	}

	if result != nil && len(respBody) > 0 {
		if err := json.Unmarshal(respBody, result); err != nil {
			return errors.Wrap(err, errors.ErrCodeSerialization, "failed to decode PubChem response")
		}
	}
	return nil
}

// Transient reports whether a failed call is worth repeating: server-side
// faults, transport errors and rate limiting. Client errors, misses and
// expired contexts are final.
func Transient(err error) bool {
	if err == nil || stderrors.Is(err, context.DeadlineExceeded) || stderrors.Is(err, context.Canceled) {
		return false
	}
	return errors.IsCode(err, errors.ErrCodeEnrichmentUpstream) || errors.IsCode(err, errors.ErrCodeEnrichmentRateLimited)
}

// faultMessage extracts the PUG REST fault text from an error body.
func faultMessage(body []byte) string {
	var fault struct {
		Fault struct {
			Code    string `json:"Code"`
			Message string `json:"Message"`
		} `json:"Fault"`
	}
	if err := json.Unmarshal(body, &fault); err == nil && fault.Fault.Message != "" {
		return fault.Fault.Code + ": " + fault.Fault.Message
	}
	if len(body) > 200 {
		body = body[:200]
	}
	return string(body)
}
