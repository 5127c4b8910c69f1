package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"runtime"
	"syscall"
	"time"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"golang.org/x/oauth2"

	"github.com/okian/sheetbridge/internal/adapters/gsheets"
	"github.com/okian/sheetbridge/internal/adapters/http/api"
	"github.com/okian/sheetbridge/internal/adapters/http/swagger"
	service "github.com/okian/sheetbridge/internal/app"
	"github.com/okian/sheetbridge/internal/auth"
	"github.com/okian/sheetbridge/internal/config"
	"github.com/okian/sheetbridge/pkg/logger"
	"github.com/okian/sheetbridge/pkg/metrics"
)

// HTTP server timeout constants.
const (
	readTimeout               = 10 * time.Second
	writeTimeout              = 60 * time.Second
	idleTimeout               = 60 * time.Second
	readHeaderTimeout         = 5 * time.Second
	shutdownTimeout           = 30 * time.Second
	nanosecondsPerMillisecond = 1e6
)

func main() {
	// Disable default Go metrics collection to avoid duplicate metrics
	// We collect our own custom system metrics instead
	prometheus.Unregister(collectors.NewGoCollector())
	prometheus.Unregister(collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	if err := logger.Init(); err != nil {
		os.Stderr.WriteString("failed to initialize logging: " + err.Error() + "\n")
		return
	}
	defer func() {
		_ = logger.Sync()
	}()

	// Root context with cancel on SIGINT/SIGTERM.
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Load configuration (defaults -> optional file -> env)
	cfg, err := config.Load(ctx)
	if err != nil {
		os.Stderr.WriteString("failed to load config: " + err.Error() + "\n")
		return
	}

	if cfg.LogFormat != logger.FormatText {
		if err := logger.Init(logger.WithFormat(cfg.LogFormat)); err != nil {
			os.Stderr.WriteString("failed to initialize logging: " + err.Error() + "\n")
			return
		}
	}
	loggerInstance := logger.Get()

	// Apply configured log level (fallback to info on invalid input)
	if err := logger.SetLevelString(cfg.LogLevel); err != nil {
		loggerInstance.Warn(ctx, "invalid log_level; falling back to info", logger.String("log_level", cfg.LogLevel), logger.Error(err))
		_ = logger.SetLevelString("info")
	}

	if err := initMetrics(cfg); err != nil {
		loggerInstance.Error(ctx, "invalid metrics settings", logger.Error(err))
		return
	}

	handler, creds, err := newApp(ctx, cfg, loggerInstance)
	if err != nil {
		loggerInstance.Error(ctx, "failed to start", logger.Error(err))
		return
	}
	creds.Start(ctx)

	go startSystemMetricsUpdater(ctx)

	srv := &http.Server{
		Addr:              cfg.Addr,
		Handler:           handler,
		ReadTimeout:       readTimeout,
		WriteTimeout:      writeTimeout,
		IdleTimeout:       idleTimeout,
		ReadHeaderTimeout: readHeaderTimeout,
	}

	go func() {
		loggerInstance.Info(ctx, "starting HTTP server", logger.String("addr", cfg.Addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			loggerInstance.Error(ctx, "HTTP server failed", logger.Error(err))
			stop()
		}
	}()

	<-ctx.Done()
	loggerInstance.Info(ctx, "shutting down server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		loggerInstance.Error(ctx, "server shutdown failed", logger.Error(err))
	}

	loggerInstance.Info(ctx, "server stopped")
}

// newApp wires the credential manager, the upstream client, the service and
// every HTTP route. The manager is returned so the caller can start it.
func newApp(ctx context.Context, cfg *config.Config, log logger.Logger) (http.Handler, *auth.Manager, error) {
	oauthCfg, err := auth.LoadOAuthConfig(cfg.CredentialsFile, cfg.ScopeList()...)
	if err != nil {
		return nil, nil, err
	}

	initial, err := initialToken(cfg)
	if err != nil {
		return nil, nil, err
	}

	mgr, err := auth.NewManager(oauthCfg, initial,
		auth.WithTokenFile(cfg.TokenFile),
		auth.WithLifetime(cfg.TokenLifetime),
		auth.WithAttempts(cfg.RefreshAttempts),
		auth.WithBackoff(cfg.RefreshBackoffBase, cfg.RefreshBackoffMax),
		auth.WithLogger(log.Named("auth")),
	)
	if err != nil {
		return nil, nil, err
	}

	client, err := gsheets.New(ctx, mgr.Client(ctx),
		gsheets.WithSheetsEndpoint(cfg.SheetsEndpoint),
		gsheets.WithDriveEndpoint(cfg.DriveEndpoint),
		gsheets.WithTimeout(cfg.UpstreamTimeout),
		gsheets.WithLogger(log.Named("gsheets")),
	)
	if err != nil {
		return nil, nil, err
	}

	svc := service.New(client, service.WithLogger(log.Named("service")))

	r := mux.NewRouter()
	swagger.Register(ctx, r)
	api.NewServer(svc, mgr, log.Named("http")).Register(ctx, r)

	return r, mgr, nil
}

// initMetrics rebuilds the metrics registry from the metrics_* settings.
func initMetrics(cfg *config.Config) error {
	buckets, err := cfg.MetricsBucketList()
	if err != nil {
		return err
	}
	labels, err := cfg.MetricsLabelMap()
	if err != nil {
		return err
	}

	metrics.Init(
		metrics.WithNamespace(cfg.MetricsNamespace),
		metrics.WithSubsystem(cfg.MetricsSubsystem),
		metrics.WithHistogramBuckets(buckets),
		metrics.WithMetricsEnabled(cfg.MetricsEnabled),
		metrics.WithRefreshInterval(cfg.MetricsRefreshInterval),
		metrics.WithCustomLabels(labels),
	)
	return nil
}

// initialToken reads the token file. When there is none yet, or it lacks a
// refresh token, the configured refresh token bootstraps the credential.
func initialToken(cfg *config.Config) (*oauth2.Token, error) {
	tok, err := auth.LoadToken(cfg.TokenFile)
	switch {
	case err == nil:
	case errors.Is(err, os.ErrNotExist):
		tok = &oauth2.Token{}
	default:
		return nil, err
	}

	if tok.RefreshToken == "" {
		if cfg.RefreshToken == "" {
			return nil, fmt.Errorf("%w: set refresh_token or provide %s", auth.ErrNoRefreshToken, cfg.TokenFile)
		}
		tok.RefreshToken = cfg.RefreshToken
	}
	return tok, nil
}

// startSystemMetricsUpdater starts a background goroutine that updates system metrics.
func startSystemMetricsUpdater(ctx context.Context) {
	ticker := time.NewTicker(metrics.RefreshInterval())
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			updateSystemMetrics()
		}
	}
}

// updateSystemMetrics updates system-level metrics.
func updateSystemMetrics() {
	var m runtime.MemStats
	runtime.ReadMemStats(&m)
	metrics.UpdateSystemMemoryUsage(m.Alloc)

	metrics.UpdateSystemGoroutineCount(runtime.NumGoroutine())

	if m.NumGC > 0 {
		avgPauseMs := float64(m.PauseTotalNs) / float64(m.NumGC) / nanosecondsPerMillisecond
		metrics.RecordSystemGCPauseTime(avgPauseMs)
	}
}
