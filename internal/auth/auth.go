// Package auth owns the single OAuth2 credential used for every upstream call
// and keeps it fresh.
//
// A Manager moves through a small state machine:
//
//	valid|expired -> refreshing -> valid
//	                            -> failed -> refreshing ...
//
// Refreshes are single-flighted, so concurrent callers observing an expired
// token share one exchange with the token endpoint.
package auth

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/segmentio/backo-go"
	"golang.org/x/oauth2"
	"golang.org/x/sync/singleflight"

	"github.com/okian/sheetbridge/pkg/logger"
	"github.com/okian/sheetbridge/pkg/metrics"
)

const (
	// DefaultLifetime is the expiry stamped on a refreshed token.
	DefaultLifetime = 48 * time.Hour

	defaultAttempts    = 3
	defaultBackoffBase = 250 * time.Millisecond
	defaultBackoffMax  = 10 * time.Second
	backoffFactor      = 2

	refreshKey = "refresh"
)

// State describes where the credential is in its lifecycle.
type State int

const (
	StateValid State = iota
	StateExpired
	StateRefreshing
	StateFailed
)

func (s State) String() string {
	switch s {
	case StateValid:
		return "valid"
	case StateExpired:
		return "expired"
	case StateRefreshing:
		return "refreshing"
	case StateFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// Status is a point-in-time view of the credential for health reporting.
type Status struct {
	State     string    `json:"state"`
	Expiry    time.Time `json:"expiry,omitempty"`
	LastError string    `json:"lastError,omitempty"`
}

// Manager holds the credential and implements oauth2.TokenSource.
type Manager struct {
	mu      sync.RWMutex
	config  *oauth2.Config
	token   *oauth2.Token
	state   State
	lastErr error

	group singleflight.Group

	tokenFile   string
	lifetime    time.Duration
	attempts    int
	backoffBase time.Duration
	backoffMax  time.Duration
	now         func() time.Time
	logger      logger.Logger
}

var _ oauth2.TokenSource = (*Manager)(nil)

// NewManager wraps config and the initial token. The token must carry a
// refresh token; the access token and expiry may be empty, in which case the
// credential starts out expired.
func NewManager(config *oauth2.Config, initial *oauth2.Token, opts ...Option) (*Manager, error) {
	if config == nil {
		return nil, fmt.Errorf("%w: nil oauth config", ErrCredentials)
	}
	if initial == nil || initial.RefreshToken == "" {
		return nil, ErrNoRefreshToken
	}

	m := &Manager{
		config:      config,
		token:       cloneToken(initial),
		lifetime:    DefaultLifetime,
		attempts:    defaultAttempts,
		backoffBase: defaultBackoffBase,
		backoffMax:  defaultBackoffMax,
		now:         time.Now,
	}
	for _, opt := range opts {
		opt(m)
	}
	if m.logger == nil {
		m.logger = logger.Nop()
	}

	m.state = StateValid
	if m.expiredLocked() {
		m.state = StateExpired
	}
	metrics.UpdateTokenExpiry(m.token.Expiry)
	return m, nil
}

// Start kicks off an asynchronous refresh when the credential is already
// expired. It never blocks.
func (m *Manager) Start(ctx context.Context) {
	m.mu.RLock()
	expired := m.expiredLocked()
	m.mu.RUnlock()
	if !expired {
		return
	}

	m.logger.Info(ctx, "access token expired at startup; refreshing")
	go func() {
		if _, err := m.Refresh(ctx); err != nil {
			m.logger.Error(ctx, "startup token refresh failed", logger.Error(err))
		}
	}()
}

// Token returns a valid access token, refreshing first if needed.
func (m *Manager) Token() (*oauth2.Token, error) {
	m.mu.RLock()
	if !m.expiredLocked() {
		tok := cloneToken(m.token)
		m.mu.RUnlock()
		return tok, nil
	}
	m.mu.RUnlock()

	return m.Refresh(context.Background())
}

// Client returns an HTTP client that authenticates with the managed token.
func (m *Manager) Client(ctx context.Context) *http.Client {
	return oauth2.NewClient(ctx, m)
}

// Refresh exchanges the refresh token for a new access token if the current
// one is expired. Concurrent calls share a single exchange. Cancelling ctx
// does not abort an exchange other callers may be waiting on.
func (m *Manager) Refresh(ctx context.Context) (*oauth2.Token, error) {
	ctx = context.WithoutCancel(ctx)
	v, err, _ := m.group.Do(refreshKey, func() (any, error) {
		return m.refresh(ctx)
	})
	if err != nil {
		return nil, err
	}
	return v.(*oauth2.Token), nil
}

func (m *Manager) refresh(ctx context.Context) (*oauth2.Token, error) {
	m.mu.Lock()
	// Another flight may have finished between the caller's check and now.
	if !m.expiredLocked() {
		tok := cloneToken(m.token)
		m.mu.Unlock()
		return tok, nil
	}
	m.state = StateRefreshing
	refreshToken := m.token.RefreshToken
	m.mu.Unlock()

	start := time.Now()
	tok, err := m.exchangeWithRetry(ctx, refreshToken)
	metrics.RecordTokenRefreshLatency(float64(time.Since(start).Milliseconds()))

	m.mu.Lock()
	defer m.mu.Unlock()

	if err != nil {
		m.state = StateFailed
		m.lastErr = err
		return nil, err
	}

	// The configured lifetime never outlasts the server's expiry, after
	// which upstream rejects the access token.
	expiry := m.now().Add(m.lifetime)
	if !tok.Expiry.IsZero() && tok.Expiry.Before(expiry) {
		expiry = tok.Expiry
	}
	tok.Expiry = expiry
	if tok.RefreshToken == "" {
		tok.RefreshToken = refreshToken
	}

	m.token = tok
	m.state = StateValid
	m.lastErr = nil
	metrics.UpdateTokenExpiry(expiry)

	if m.tokenFile != "" {
		if err := SaveToken(m.tokenFile, tok); err != nil {
			// The in-memory token is still good; only restarts are affected.
			m.logger.Warn(ctx, "failed to persist refreshed token",
				logger.String("path", m.tokenFile), logger.Error(err))
		}
	}

	m.logger.Info(ctx, "access token refreshed", logger.Any("expiry", expiry))
	return cloneToken(tok), nil
}

func (m *Manager) exchangeWithRetry(ctx context.Context, refreshToken string) (*oauth2.Token, error) {
	b := backo.NewBacko(m.backoffBase, backoffFactor, 0, m.backoffMax)

	var lastErr error
	for attempt := 0; attempt < m.attempts; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return nil, fmt.Errorf("%w: %w", ErrRefreshFailed, ctx.Err())
			case <-time.After(b.Duration(attempt - 1)):
			}
		}

		tok, err := m.config.TokenSource(ctx, &oauth2.Token{RefreshToken: refreshToken}).Token()
		if err == nil {
			metrics.RecordTokenRefresh("success")
			return tok, nil
		}

		metrics.RecordTokenRefresh("failure")
		lastErr = err
		m.logger.Warn(ctx, "token refresh attempt failed",
			logger.Int("attempt", attempt+1),
			logger.Int("attempts", m.attempts),
			logger.Error(err),
		)
		if permanent(err) {
			break
		}
	}
	return nil, fmt.Errorf("%w: %w", ErrRefreshFailed, lastErr)
}

// permanent reports whether the token endpoint rejected the request itself
// (e.g. invalid_grant), which retrying cannot fix.
func permanent(err error) bool {
	var re *oauth2.RetrieveError
	if !errors.As(err, &re) || re.Response == nil {
		return false
	}
	code := re.Response.StatusCode
	return code >= 400 && code < 500 && code != http.StatusTooManyRequests
}

// Status reports the credential state.
func (m *Manager) Status() Status {
	m.mu.RLock()
	defer m.mu.RUnlock()

	state := m.state
	if state == StateValid && m.expiredLocked() {
		state = StateExpired
	}
	s := Status{State: state.String(), Expiry: m.token.Expiry}
	if m.lastErr != nil {
		s.LastError = m.lastErr.Error()
	}
	return s
}

// State returns the current lifecycle state.
func (m *Manager) State() State {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.state == StateValid && m.expiredLocked() {
		return StateExpired
	}
	return m.state
}

// expiredLocked applies the expiry rule: a zero expiry or one at or before
// now is expired. Callers hold mu.
func (m *Manager) expiredLocked() bool {
	if m.token == nil || m.token.AccessToken == "" {
		return true
	}
	return m.token.Expiry.IsZero() || !m.token.Expiry.After(m.now())
}

func cloneToken(t *oauth2.Token) *oauth2.Token {
	if t == nil {
		return nil
	}
	c := *t
	return &c
}
