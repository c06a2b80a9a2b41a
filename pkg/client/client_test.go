package client

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	amierrors "github.com/turtacn/AntiMalaria-Intelligence/pkg/errors"
)

func newTestClient(t *testing.T, handler http.HandlerFunc, opts ...Option) *Client {
	t.Helper()
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)

	opts = append([]Option{WithRetries(3, time.Millisecond, 2*time.Millisecond)}, opts...)
	client, err := NewClient(server.URL, "test-token", opts...)
	require.NoError(t, err)
	return client
}

func writeEnvelope(w http.ResponseWriter, status int, data string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	fmt.Fprintf(w, `{"status":"success","message":"ok","data":%s}`, data)
}

func writeErrorEnvelope(w http.ResponseWriter, status int, code, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	fmt.Fprintf(w, `{"status":"error","code":%q,"message":%q}`, code, message)
}

type testLogger struct {
	mu    sync.Mutex
	count int
}

func (l *testLogger) Debugf(format string, args ...interface{}) { l.log() }
func (l *testLogger) Infof(format string, args ...interface{})  { l.log() }
func (l *testLogger) Errorf(format string, args ...interface{}) { l.log() }

func (l *testLogger) log() {
	l.mu.Lock()
	l.count++
	l.mu.Unlock()
}

func TestNewClient_Success(t *testing.T) {
	c, err := NewClient("http://api.example.com/", "token")
	require.NoError(t, err)
	assert.Equal(t, "http://api.example.com", c.baseURL)
	assert.Equal(t, 3, c.retryMax)
	assert.Contains(t, c.userAgent, "ami-go-sdk/")
}

func TestNewClient_InvalidArguments(t *testing.T) {
	tests := []struct {
		name    string
		baseURL string
		token   string
	}{
		{"empty base url", "", "token"},
		{"empty token", "http://api.example.com", ""},
		{"unsupported scheme", "ftp://api.example.com", "token"},
		{"no scheme", "api.example.com", "token"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewClient(tt.baseURL, tt.token)
			require.Error(t, err)
			assert.True(t, amierrors.IsValidation(err))
		})
	}
}

func TestNewClient_WithOptions(t *testing.T) {
	hc := &http.Client{Timeout: 10 * time.Second}
	logger := &testLogger{}
	c, err := NewClient("http://api.example.com", "token",
		WithHTTPClient(hc),
		WithLogger(logger),
		WithRetries(5, time.Second, 2*time.Second),
		WithDefaultModel("RF", "ECFP"),
		WithPredictTimeout(5*time.Minute),
		WithUserAgent("notebook/1.0"),
	)
	require.NoError(t, err)
	assert.Same(t, hc, c.httpClient)
	assert.Equal(t, logger, c.logger)
	assert.Equal(t, 5, c.retryMax)
	assert.Equal(t, time.Second, c.retryWaitMin)
	assert.Equal(t, "RF", c.modelMethod)
	assert.Equal(t, "ECFP", c.modelDescriptor)
	assert.Equal(t, 5*time.Minute, c.predictTimeout)
	assert.Equal(t, "notebook/1.0", c.userAgent)
}

func TestClient_SubClientsAreSingletons(t *testing.T) {
	c, _ := NewClient("http://api.example.com", "token")
	assert.Nil(t, c.predictions)

	var wg sync.WaitGroup
	got := make([]*PredictionsClient, 50)
	for i := range got {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			got[i] = c.Predictions()
		}(i)
	}
	wg.Wait()
	for _, p := range got[1:] {
		assert.Same(t, got[0], p)
	}
	assert.Same(t, c.Models(), c.Models())
}

func TestClient_Do_UnwrapsEnvelope(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		writeEnvelope(w, http.StatusOK, `{"name":"rf_ecfp"}`)
	})
	var out struct {
		Name string `json:"name"`
	}
	require.NoError(t, c.get(context.Background(), "/x", &out))
	assert.Equal(t, "rf_ecfp", out.Name)
}

func TestClient_Do_NullData(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		writeEnvelope(w, http.StatusOK, `null`)
	})
	var out []string
	require.NoError(t, c.get(context.Background(), "/x", &out))
	assert.Nil(t, out)
}

func TestClient_Do_RequestHeaders(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "Bearer test-token", r.Header.Get("Authorization"))
		assert.Equal(t, "application/json", r.Header.Get("Accept"))
		assert.Contains(t, r.Header.Get("User-Agent"), "ami-go-sdk/")
		assert.NotEmpty(t, r.Header.Get("X-Request-ID"))
		if r.Method == http.MethodPost {
			assert.Equal(t, "application/json", r.Header.Get("Content-Type"))
		} else {
			assert.Empty(t, r.Header.Get("Content-Type"))
		}
		w.WriteHeader(http.StatusOK)
	})
	require.NoError(t, c.get(context.Background(), "/x", nil))
	require.NoError(t, c.post(context.Background(), "/x", jsonPayload(map[string]string{"a": "b"}), nil))
}

func TestClient_Do_ErrorEnvelope(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		writeErrorEnvelope(w, http.StatusNotFound, "PRD_005", "Prediction not found.")
	})
	err := c.get(context.Background(), "/x", nil)

	var apiErr *APIError
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, http.StatusNotFound, apiErr.StatusCode)
	assert.Equal(t, "PRD_005", apiErr.Code)
	assert.Equal(t, "Prediction not found.", apiErr.Message)
	assert.NotEmpty(t, apiErr.RequestID)
	assert.True(t, apiErr.IsNotFound())
}

func TestClient_Do_PlainTextError(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "bad gateway", http.StatusBadGateway)
	}, WithRetries(0, 0, 0))
	err := c.get(context.Background(), "/x", nil)

	var apiErr *APIError
	require.ErrorAs(t, err, &apiErr)
	assert.Contains(t, apiErr.Message, "bad gateway")
}

func TestClient_Do_4xxNotRetried(t *testing.T) {
	var calls int32
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		writeErrorEnvelope(w, http.StatusBadRequest, "PRD_002", "No SMILES input provided.")
	})
	require.Error(t, c.get(context.Background(), "/x", nil))
	assert.Equal(t, int32(1), atomic.LoadInt32(&calls))
}

func TestClient_Do_5xxRetriedForGet(t *testing.T) {
	var calls int32
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if atomic.AddInt32(&calls, 1) < 3 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		writeEnvelope(w, http.StatusOK, `[]`)
	})
	require.NoError(t, c.get(context.Background(), "/x", nil))
	assert.Equal(t, int32(3), atomic.LoadInt32(&calls))
}

func TestClient_Do_5xxRetryExhausted(t *testing.T) {
	var calls int32
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		w.WriteHeader(http.StatusInternalServerError)
	}, WithRetries(2, 0, 0))
	require.Error(t, c.get(context.Background(), "/x", nil))
	assert.Equal(t, int32(3), atomic.LoadInt32(&calls))
}

func TestClient_Do_5xxNotRetriedForPost(t *testing.T) {
	var calls int32
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		writeErrorEnvelope(w, http.StatusInternalServerError, "COMMON_001", "internal server error")
	})
	err := c.post(context.Background(), "/x", jsonPayload(struct{}{}), nil)

	var apiErr *APIError
	require.ErrorAs(t, err, &apiErr)
	assert.True(t, apiErr.IsServerError())
	assert.Equal(t, int32(1), atomic.LoadInt32(&calls))
}

func TestClient_Do_429RetryAfter(t *testing.T) {
	var calls int32
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if atomic.AddInt32(&calls, 1) == 1 {
			w.Header().Set("Retry-After", "1")
			writeErrorEnvelope(w, http.StatusTooManyRequests, "COMMON_007", "slow down")
			return
		}
		body, _ := io.ReadAll(r.Body)
		assert.JSONEq(t, `{"a":"b"}`, string(body), "body is rebuilt for the retry")
		w.WriteHeader(http.StatusOK)
	})
	start := time.Now()
	require.NoError(t, c.post(context.Background(), "/x", jsonPayload(map[string]string{"a": "b"}), nil))
	assert.Equal(t, int32(2), atomic.LoadInt32(&calls))
	assert.GreaterOrEqual(t, time.Since(start), time.Second)
}

func TestClient_Do_NetworkError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	server.Close()

	logger := &testLogger{}
	c, err := NewClient(server.URL, "token", WithRetries(1, time.Millisecond, 2*time.Millisecond), WithLogger(logger))
	require.NoError(t, err)
	assert.Error(t, c.get(context.Background(), "/x", nil))
	assert.Positive(t, logger.count)
}

func TestClient_Do_ContextCanceled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {})
	assert.ErrorIs(t, c.get(ctx, "/x", nil), context.Canceled)
}

func TestClient_Do_ContextTimeout(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		time.Sleep(100 * time.Millisecond)
		w.WriteHeader(http.StatusOK)
	})
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	assert.ErrorIs(t, c.get(ctx, "/x", nil), context.DeadlineExceeded)
}

func TestAPIError_Methods(t *testing.T) {
	assert.True(t, (&APIError{StatusCode: 404}).IsNotFound())
	assert.True(t, (&APIError{StatusCode: 401}).IsUnauthorized())
	assert.True(t, (&APIError{StatusCode: 403}).IsForbidden())
	assert.True(t, (&APIError{StatusCode: 429}).IsRateLimited())
	assert.True(t, (&APIError{StatusCode: 503}).IsServerError())
	assert.False(t, (&APIError{StatusCode: 400}).IsServerError())

	msg := (&APIError{Code: "MOL_001", StatusCode: 400, Message: "Invalid SMILES", RequestID: "r1"}).Error()
	assert.Equal(t, "ami: MOL_001 (HTTP 400): Invalid SMILES [request_id=r1]", msg)
}

func TestCalculateBackoff_Capped(t *testing.T) {
	c := &Client{retryWaitMin: 100 * time.Millisecond, retryWaitMax: 300 * time.Millisecond}
	assert.GreaterOrEqual(t, c.calculateBackoff(1), 100*time.Millisecond)
	b := c.calculateBackoff(5)
	assert.GreaterOrEqual(t, b, 300*time.Millisecond)
	assert.Less(t, b, 300*time.Millisecond+75*time.Millisecond)
}
