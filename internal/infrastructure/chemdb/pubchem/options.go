package pubchem

import (
	"net/http"
	"time"

	"github.com/turtacn/AntiMalaria-Intelligence/internal/infrastructure/monitoring/logging"
)

// Option is a functional option for configuring the Client
type Option func(*Client)

// WithHTTPClient sets a custom HTTP client
func WithHTTPClient(httpClient *http.Client) Option {
	return func(c *Client) {
		if httpClient != nil {
			c.httpClient = httpClient
		}
	}
}

func WithLogger(logger logging.Logger) Option {
	return func(c *Client) {
		if logger != nil {
			c.logger = logger
		}
	}
}

func WithUserAgent(userAgent string) Option {
	return func(c *Client) {
		if userAgent != "" {
			c.userAgent = userAgent
		}
	}
}

// WithDescriptionTimeout bounds FetchDescription.
func WithDescriptionTimeout(d time.Duration) Option {
	return func(c *Client) {
		if d > 0 {
			c.descriptionTimeout = d
		}
	}
}
