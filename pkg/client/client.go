// Package client is a Go SDK for the AntiMalaria-Intelligence REST API.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"math/rand"
	"mime/multipart"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/turtacn/AntiMalaria-Intelligence/pkg/errors"
)

const Version = "0.1.0"

const apiPrefix = "/api/v1"

// Logger defines the logging interface used by the Client.
type Logger interface {
	Debugf(format string, args ...interface{})
	Infof(format string, args ...interface{})
	Errorf(format string, args ...interface{})
}

type noopLogger struct{}

func (noopLogger) Debugf(format string, args ...interface{}) {}
func (noopLogger) Infof(format string, args ...interface{})  {}
func (noopLogger) Errorf(format string, args ...interface{}) {}

// Client talks to one AntiMalaria-Intelligence API server.
type Client struct {
	baseURL      string
	httpClient   *http.Client
	token        string
	userAgent    string
	logger       Logger
	retryMax     int
	retryWaitMin time.Duration
	retryWaitMax time.Duration

	modelMethod     string
	modelDescriptor string
	predictTimeout  time.Duration

	predictions     *PredictionsClient
	predictionsOnce sync.Once
	models          *ModelsClient
	modelsOnce      sync.Once
	results         *PredictionCompoundsClient
	resultsOnce     sync.Once
}

// APIError is an error envelope returned by the server.
type APIError struct {
	StatusCode int    `json:"status_code"`
	Code       string `json:"code"`
	Message    string `json:"message"`
	RequestID  string `json:"request_id"`
}

func (e *APIError) Error() string {
	return fmt.Sprintf("ami: %s (HTTP %d): %s [request_id=%s]", e.Code, e.StatusCode, e.Message, e.RequestID)
}

func (e *APIError) IsNotFound() bool     { return e.StatusCode == http.StatusNotFound }
func (e *APIError) IsUnauthorized() bool { return e.StatusCode == http.StatusUnauthorized }
func (e *APIError) IsForbidden() bool    { return e.StatusCode == http.StatusForbidden }
func (e *APIError) IsRateLimited() bool  { return e.StatusCode == http.StatusTooManyRequests }
func (e *APIError) IsServerError() bool {
	return e.StatusCode >= 500 && e.StatusCode < 600
}

// envelope mirrors the server's {status, message, code, data} wrapper.
type envelope struct {
	Status  string          `json:"status"`
	Message string          `json:"message"`
	Code    string          `json:"code"`
	Data    json.RawMessage `json:"data"`
}

// NewClient creates a client for baseURL that authenticates with the
// bearer token.
func NewClient(baseURL, token string, opts ...Option) (*Client, error) {
	if baseURL == "" {
		return nil, errors.InvalidParam("baseURL is required")
	}
	if token == "" {
		return nil, errors.InvalidParam("token is required")
	}
	parsed, err := url.Parse(baseURL)
	if err != nil {
		return nil, errors.InvalidParam("invalid baseURL").WithCause(err)
	}
	if parsed.Scheme != "http" && parsed.Scheme != "https" {
		return nil, errors.InvalidParam("baseURL scheme must be http or https")
	}

	c := &Client{
		baseURL:      strings.TrimSuffix(baseURL, "/"),
		token:        token,
		httpClient:   &http.Client{Timeout: 2 * time.Minute},
		userAgent:    "ami-go-sdk/" + Version,
		logger:       noopLogger{},
		retryMax:     3,
		retryWaitMin: 500 * time.Millisecond,
		retryWaitMax: 5 * time.Second,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// Predictions returns the predictions sub-client.
func (c *Client) Predictions() *PredictionsClient {
	c.predictionsOnce.Do(func() {
		c.predictions = &PredictionsClient{client: c}
	})
	return c.predictions
}

// PredictionCompounds returns the prediction compounds sub-client.
func (c *Client) PredictionCompounds() *PredictionCompoundsClient {
	c.resultsOnce.Do(func() {
		c.results = &PredictionCompoundsClient{client: c}
	})
	return c.results
}

// Models returns the models sub-client.
func (c *Client) Models() *ModelsClient {
	c.modelsOnce.Do(func() {
		c.models = &ModelsClient{client: c}
	})
	return c.models
}

// model fills an empty estimator selection from WithDefaultModel.
func (c *Client) model(method, descriptor string) (string, string) {
	if method == "" && descriptor == "" {
		return c.modelMethod, c.modelDescriptor
	}
	return method, descriptor
}

func (c *Client) predictContext(ctx context.Context) (context.Context, context.CancelFunc) {
	if c.predictTimeout <= 0 {
		return ctx, func() {}
	}
	return context.WithTimeout(ctx, c.predictTimeout)
}

// payload builds a fresh request body for every attempt.
type payload func() (body io.Reader, contentType string, err error)

func jsonPayload(v interface{}) payload {
	return func() (io.Reader, string, error) {
		raw, err := json.Marshal(v)
		if err != nil {
			return nil, "", fmt.Errorf("failed to marshal request body: %w", err)
		}
		return bytes.NewReader(raw), "application/json", nil
	}
}

// multipartPayload sends fields plus one file part named "file".
func multipartPayload(fields map[string]string, fileName string, data []byte) payload {
	return func() (io.Reader, string, error) {
		var buf bytes.Buffer
		mw := multipart.NewWriter(&buf)
		for k, v := range fields {
			if err := mw.WriteField(k, v); err != nil {
				return nil, "", err
			}
		}
		part, err := mw.CreateFormFile("file", fileName)
		if err != nil {
			return nil, "", err
		}
		if _, err := part.Write(data); err != nil {
			return nil, "", err
		}
		if err := mw.Close(); err != nil {
			return nil, "", err
		}
		return &buf, mw.FormDataContentType(), nil
	}
}

// send performs the request with retries and returns the raw body of the
// first successful response. Network errors and 5xx are retried only for
// idempotent methods; 429 with Retry-After is honoured for every method.
func (c *Client) send(ctx context.Context, method, path string, body payload) ([]byte, error) {
	if !strings.HasPrefix(path, "/") {
		path = "/" + path
	}
	fullURL := c.baseURL + path
	idempotent := method == http.MethodGet || method == http.MethodDelete

	var lastErr error
	for attempt := 0; attempt <= c.retryMax; attempt++ {
		if attempt > 0 {
			backoff := c.calculateBackoff(attempt)
			c.logger.Debugf("retry attempt %d after %v", attempt, backoff)
			if err := sleep(ctx, backoff); err != nil {
				return nil, err
			}
		}

		var (
			reader      io.Reader
			contentType string
		)
		if body != nil {
			var err error
			if reader, contentType, err = body(); err != nil {
				return nil, err
			}
		}
		req, err := http.NewRequestWithContext(ctx, method, fullURL, reader)
		if err != nil {
			return nil, fmt.Errorf("failed to create request: %w", err)
		}
		requestID := uuid.New().String()
		req.Header.Set("Authorization", "Bearer "+c.token)
		req.Header.Set("Accept", "application/json")
		req.Header.Set("User-Agent", c.userAgent)
		req.Header.Set("X-Request-ID", requestID)
		if contentType != "" {
			req.Header.Set("Content-Type", contentType)
		}

		start := time.Now()
		resp, err := c.httpClient.Do(req)
		if err != nil {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			c.logger.Errorf("request failed: %v", err)
			lastErr = err
			if idempotent {
				continue
			}
			return nil, err
		}
		respBody, err := io.ReadAll(resp.Body)
		resp.Body.Close()
		if err != nil {
			return nil, fmt.Errorf("failed to read response body: %w", err)
		}
		c.logger.Debugf("%s %s %d (%v)", method, path, resp.StatusCode, time.Since(start))

		if resp.StatusCode < 400 {
			return respBody, nil
		}

		apiErr := decodeAPIError(resp.StatusCode, requestID, respBody)
		lastErr = apiErr

		if resp.StatusCode == http.StatusTooManyRequests && attempt < c.retryMax {
			if seconds, err := strconv.Atoi(resp.Header.Get("Retry-After")); err == nil {
				c.logger.Infof("rate limited, retrying after %d seconds", seconds)
				if err := sleep(ctx, time.Duration(seconds)*time.Second); err != nil {
					return nil, err
				}
				continue
			}
		}
		if idempotent && apiErr.IsServerError() {
			continue
		}
		return nil, apiErr
	}
	return nil, lastErr
}

func decodeAPIError(status int, requestID string, body []byte) *APIError {
	apiErr := &APIError{StatusCode: status, RequestID: requestID}
	if len(body) == 0 {
		return apiErr
	}
	var env envelope
	if err := json.Unmarshal(body, &env); err == nil && (env.Code != "" || env.Message != "") {
		apiErr.Code = env.Code
		apiErr.Message = env.Message
	} else {
		apiErr.Message = string(body)
	}
	return apiErr
}

// do sends the request and decodes the envelope's data into result, which
// may be nil.
func (c *Client) do(ctx context.Context, method, path string, body payload, result interface{}) error {
	raw, err := c.send(ctx, method, path, body)
	if err != nil {
		return err
	}
	if result == nil || len(raw) == 0 {
		return nil
	}
	var env envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return fmt.Errorf("failed to unmarshal response: %w", err)
	}
	if len(env.Data) == 0 || string(env.Data) == "null" {
		return nil
	}
	if err := json.Unmarshal(env.Data, result); err != nil {
		return fmt.Errorf("failed to unmarshal response data: %w", err)
	}
	return nil
}

func (c *Client) get(ctx context.Context, path string, result interface{}) error {
	return c.do(ctx, http.MethodGet, path, nil, result)
}

func (c *Client) post(ctx context.Context, path string, body payload, result interface{}) error {
	return c.do(ctx, http.MethodPost, path, body, result)
}

func (c *Client) delete(ctx context.Context, path string) error {
	return c.do(ctx, http.MethodDelete, path, nil, nil)
}

func (c *Client) calculateBackoff(attempt int) time.Duration {
	backoff := c.retryWaitMin * time.Duration(1<<uint(attempt-1))
	if backoff > c.retryWaitMax {
		backoff = c.retryWaitMax
	}
	if quarter := int64(backoff / 4); quarter > 0 {
		backoff += time.Duration(rand.Int63n(quarter))
	}
	return backoff
}

func sleep(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// validID rejects ids the server could never match.
func validID(kind, id string) error {
	if _, err := uuid.Parse(id); err != nil {
		return errors.InvalidParam(kind + " id must be a UUID").WithDetail(id)
	}
	return nil
}
