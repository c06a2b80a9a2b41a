package client

import (
	"net/http"
	"time"
)

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient sets the transport. A nil client is ignored.
func WithHTTPClient(httpClient *http.Client) Option {
	return func(c *Client) {
		if httpClient != nil {
			c.httpClient = httpClient
		}
	}
}

func WithLogger(logger Logger) Option {
	return func(c *Client) {
		if logger != nil {
			c.logger = logger
		}
	}
}

// WithUserAgent replaces the ami-go-sdk User-Agent, so notebooks and
// pipelines show up under their own name in the server's request log.
func WithUserAgent(userAgent string) Option {
	return func(c *Client) {
		if userAgent != "" {
			c.userAgent = userAgent
		}
	}
}

// WithRetries sets how many times a listing, lookup, delete or download is
// repeated after a server or network failure, and the backoff bounds
// between attempts. A predict call is only repeated after a 429, since
// every accepted one stores a new batch.
//
// A negative max is ignored. Waits are applied only when minWait is
// positive and maxWait is not below it.
func WithRetries(max int, minWait, maxWait time.Duration) Option {
	return func(c *Client) {
		if max >= 0 {
			c.retryMax = max
		}
		if minWait > 0 && maxWait >= minWait {
			c.retryWaitMin = minWait
			c.retryWaitMax = maxWait
		}
	}
}

// WithDefaultModel names the estimator used by predict calls that leave
// model_method and model_descriptor empty.
func WithDefaultModel(method, descriptor string) Option {
	return func(c *Client) {
		if method != "" && descriptor != "" {
			c.modelMethod = method
			c.modelDescriptor = descriptor
		}
	}
}

// WithPredictTimeout bounds each Predict and PredictCSV call. Large batches
// wait on reference lookups server side. The deadline cannot outlast the
// HTTP client's own Timeout.
func WithPredictTimeout(d time.Duration) Option {
	return func(c *Client) {
		if d > 0 {
			c.predictTimeout = d
		}
	}
}
