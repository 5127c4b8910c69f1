// Package config defines service configuration structures and loading hooks.
//
// Conventions:
// - Defaults live in New; Load layers a YAML file and environment on top.
// - External errors are wrapped with ErrLoadConfig / ErrInvalidConfig.
package config

import (
	"fmt"
	"regexp"
	"slices"
	"strconv"
	"strings"
	"time"
)

// Default scopes requested for the upstream credential. Drive is needed to
// delete whole spreadsheets.
const (
	ScopeSpreadsheets = "https://www.googleapis.com/auth/spreadsheets"
	ScopeDriveFile    = "https://www.googleapis.com/auth/drive.file"
)

// Config contains process configuration.
type Config struct {
	// LogLevel controls verbosity: debug, info, warn, error.
	LogLevel string `koanf:"log_level"`

	// LogFormat selects the log encoding: text or json.
	LogFormat string `koanf:"log_format"`

	// Addr configures the HTTP listen address, e.g. ":3000".
	Addr string `koanf:"addr"`

	// CredentialsFile is the Google OAuth client file (credentials.json).
	CredentialsFile string `koanf:"credentials_file"`

	// TokenFile is read at startup and overwritten after every refresh.
	TokenFile string `koanf:"token_file"`

	// RefreshToken bootstraps the credential when TokenFile does not exist yet.
	RefreshToken string `koanf:"refresh_token"`

	// Scopes is a comma separated list of OAuth scopes.
	Scopes string `koanf:"scopes"`

	// TokenLifetime is the expiry stamped on a freshly refreshed token.
	TokenLifetime time.Duration `koanf:"token_lifetime"`

	// RefreshAttempts bounds how many times a refresh is tried before failing.
	RefreshAttempts int `koanf:"refresh_attempts"`

	// RefreshBackoffBase and RefreshBackoffMax shape the retry delays.
	RefreshBackoffBase time.Duration `koanf:"refresh_backoff_base"`
	RefreshBackoffMax  time.Duration `koanf:"refresh_backoff_max"`

	// UpstreamTimeout bounds each upstream call. Zero disables the bound.
	UpstreamTimeout time.Duration `koanf:"upstream_timeout"`

	// SheetsEndpoint and DriveEndpoint override the upstream base URLs.
	SheetsEndpoint string `koanf:"sheets_endpoint"`
	DriveEndpoint  string `koanf:"drive_endpoint"`

	// MetricsEnabled turns request, upstream and credential metrics on or off.
	MetricsEnabled bool `koanf:"metrics_enabled"`

	// MetricsNamespace and MetricsSubsystem prefix every metric name.
	MetricsNamespace string `koanf:"metrics_namespace"`
	MetricsSubsystem string `koanf:"metrics_subsystem"`

	// MetricsRefreshInterval is how often system gauges are sampled.
	MetricsRefreshInterval time.Duration `koanf:"metrics_refresh_interval"`

	// MetricsBuckets is a comma separated, increasing list of latency
	// histogram bounds in milliseconds. Empty keeps the client defaults.
	MetricsBuckets string `koanf:"metrics_buckets"`

	// MetricsLabels is a comma separated list of key=value constant labels.
	MetricsLabels string `koanf:"metrics_labels"`
}

var labelName = regexp.MustCompile(`^[a-zA-Z_][a-zA-Z0-9_]*$`)

// New returns a Config populated with defaults.
func New() *Config {
	return &Config{
		LogLevel:           "info",
		LogFormat:          "text",
		Addr:               ":3000",
		CredentialsFile:    "credentials.json",
		TokenFile:          "tokens.json",
		Scopes:             ScopeSpreadsheets + "," + ScopeDriveFile,
		TokenLifetime:      48 * time.Hour,
		RefreshAttempts:    3,
		RefreshBackoffBase: 250 * time.Millisecond,
		RefreshBackoffMax:  10 * time.Second,

		MetricsEnabled:         true,
		MetricsNamespace:       "sheetbridge",
		MetricsSubsystem:       "proxy",
		MetricsRefreshInterval: 10 * time.Second,
	}
}

// ScopeList splits Scopes into its trimmed, non-empty entries.
func (c *Config) ScopeList() []string {
	var out []string
	for _, s := range strings.Split(c.Scopes, ",") {
		if s = strings.TrimSpace(s); s != "" {
			out = append(out, s)
		}
	}
	return out
}

// MetricsBucketList parses MetricsBuckets. An empty setting yields nil.
func (c *Config) MetricsBucketList() ([]float64, error) {
	var out []float64
	for _, s := range strings.Split(c.MetricsBuckets, ",") {
		if s = strings.TrimSpace(s); s == "" {
			continue
		}
		v, err := strconv.ParseFloat(s, 64)
		if err != nil {
			return nil, fmt.Errorf("%w: metrics_buckets: %q is not a number", ErrInvalidConfig, s)
		}
		out = append(out, v)
	}
	if !slices.IsSorted(out) || len(slices.Compact(slices.Clone(out))) != len(out) {
		return nil, fmt.Errorf("%w: metrics_buckets must be strictly increasing", ErrInvalidConfig)
	}
	return out, nil
}

// MetricsLabelMap parses MetricsLabels. An empty setting yields nil.
func (c *Config) MetricsLabelMap() (map[string]string, error) {
	var out map[string]string
	for _, pair := range strings.Split(c.MetricsLabels, ",") {
		if pair = strings.TrimSpace(pair); pair == "" {
			continue
		}
		k, v, ok := strings.Cut(pair, "=")
		k = strings.TrimSpace(k)
		if !ok || !labelName.MatchString(k) || strings.HasPrefix(k, "__") {
			return nil, fmt.Errorf("%w: metrics_labels: %q is not a key=value label", ErrInvalidConfig, pair)
		}
		if out == nil {
			out = map[string]string{}
		}
		out[k] = strings.TrimSpace(v)
	}
	return out, nil
}

// Validate reports the first invalid setting.
func (c *Config) Validate() error {
	switch {
	case strings.TrimSpace(c.Addr) == "":
		return fmt.Errorf("%w: addr must not be empty", ErrInvalidConfig)
	case strings.TrimSpace(c.CredentialsFile) == "":
		return fmt.Errorf("%w: credentials_file must not be empty", ErrInvalidConfig)
	case strings.TrimSpace(c.TokenFile) == "":
		return fmt.Errorf("%w: token_file must not be empty", ErrInvalidConfig)
	case c.RefreshAttempts <= 0:
		return fmt.Errorf("%w: refresh_attempts must be positive", ErrInvalidConfig)
	case c.TokenLifetime <= 0:
		return fmt.Errorf("%w: token_lifetime must be positive", ErrInvalidConfig)
	case c.UpstreamTimeout < 0:
		return fmt.Errorf("%w: upstream_timeout must not be negative", ErrInvalidConfig)
	case len(c.ScopeList()) == 0:
		return fmt.Errorf("%w: at least one scope is required", ErrInvalidConfig)
	case !labelName.MatchString(c.MetricsNamespace):
		return fmt.Errorf("%w: metrics_namespace must be a valid metric name prefix", ErrInvalidConfig)
	case !labelName.MatchString(c.MetricsSubsystem):
		return fmt.Errorf("%w: metrics_subsystem must be a valid metric name prefix", ErrInvalidConfig)
	case c.MetricsRefreshInterval <= 0:
		return fmt.Errorf("%w: metrics_refresh_interval must be positive", ErrInvalidConfig)
	}
	if _, err := c.MetricsBucketList(); err != nil {
		return err
	}
	if _, err := c.MetricsLabelMap(); err != nil {
		return err
	}
	return nil
}
