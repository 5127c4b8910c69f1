package auth

import (
	"time"

	"github.com/okian/sheetbridge/pkg/logger"
)

// Option applies a configuration option to the Manager.
type Option func(*Manager)

// WithTokenFile sets where refreshed tokens are persisted. Empty disables
// persistence.
func WithTokenFile(path string) Option {
	return func(m *Manager) {
		m.tokenFile = path
	}
}

// WithLifetime sets the expiry stamped on refreshed tokens.
func WithLifetime(d time.Duration) Option {
	return func(m *Manager) {
		if d > 0 {
			m.lifetime = d
		}
	}
}

// WithAttempts bounds the number of exchange attempts per refresh.
func WithAttempts(n int) Option {
	return func(m *Manager) {
		if n > 0 {
			m.attempts = n
		}
	}
}

// WithBackoff shapes the delay between attempts: base doubles per retry up
// to max.
func WithBackoff(base, max time.Duration) Option {
	return func(m *Manager) {
		if base > 0 && max >= base {
			m.backoffBase = base
			m.backoffMax = max
		}
	}
}

// WithLogger sets a custom logger for the manager.
func WithLogger(l logger.Logger) Option {
	return func(m *Manager) {
		if l != nil {
			m.logger = l
		}
	}
}

// WithClock overrides time.Now, for tests.
func WithClock(now func() time.Time) Option {
	return func(m *Manager) {
		if now != nil {
			m.now = now
		}
	}
}
