package gsheets

import (
	"time"

	"github.com/okian/sheetbridge/pkg/logger"
)

// Option applies a configuration option to the GoogleClient.
type Option func(*GoogleClient)

// WithSheetsEndpoint overrides the Sheets API base URL.
func WithSheetsEndpoint(url string) Option {
	return func(c *GoogleClient) {
		c.sheetsEndpoint = url
	}
}

// WithDriveEndpoint overrides the Drive API base URL.
func WithDriveEndpoint(url string) Option {
	return func(c *GoogleClient) {
		c.driveEndpoint = url
	}
}

// WithTimeout bounds every upstream call. Zero means no bound.
func WithTimeout(d time.Duration) Option {
	return func(c *GoogleClient) {
		if d >= 0 {
			c.timeout = d
		}
	}
}

// WithLogger sets a custom logger for the client.
func WithLogger(l logger.Logger) Option {
	return func(c *GoogleClient) {
		if l != nil {
			c.logger = l
		}
	}
}
