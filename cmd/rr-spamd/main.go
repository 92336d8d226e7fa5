package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/haukened/rr-spam/internal/spam/common/clock"
	"github.com/haukened/rr-spam/internal/spam/common/log"
	"github.com/haukened/rr-spam/internal/spam/config"
	"github.com/haukened/rr-spam/internal/spam/gateways/api"
	"github.com/haukened/rr-spam/internal/spam/gateways/fetch"
	"github.com/haukened/rr-spam/internal/spam/infra/metrics"
	"github.com/haukened/rr-spam/internal/spam/repos/blocklist"
	"github.com/haukened/rr-spam/internal/spam/repos/blocklist/bloom"
	"github.com/haukened/rr-spam/internal/spam/repos/blocklist/bolt"
	"github.com/haukened/rr-spam/internal/spam/repos/blocklist/lru"
	"github.com/haukened/rr-spam/internal/spam/repos/blocklist/parsers"
	"github.com/haukened/rr-spam/internal/spam/services/classifier"
)

const (
	// Version information
	version = "0.1.0-dev"
	appName = "rr-spamd"

	defaultShutdownTimeout = 10 * time.Second
)

// Application holds all the components of the spam service
type Application struct {
	config  *config.AppConfig
	server  *api.Server
	store   blocklist.Store
	metrics *metrics.Metrics
}

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Configuration error: %v\n", err)
		os.Exit(1)
	}

	err = log.Configure(cfg.Env, cfg.Log.Level)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Logging configuration error: %v\n", err)
		os.Exit(1)
	}
	defer log.Sync()

	log.Info(map[string]any{
		"version":       version,
		"app":           appName,
		"env":           cfg.Env,
		"log_level":     cfg.Log.Level,
		"listen":        cfg.API.Listen,
		"depth":         cfg.Classifier.Depth,
		"max_depth":     cfg.Classifier.MaxDepth,
		"blocklist_dir": cfg.Blocklist.Directory,
		"blocklist_db":  cfg.Blocklist.DB,
	}, "Starting RR-SPAM service")

	app, err := buildApplication(cfg)
	if err != nil {
		log.Fatal(map[string]any{"error": err}, "Failed to build application")
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		sig := <-sigChan
		log.Info(map[string]any{"signal": sig.String()}, "Shutdown signal received")
		cancel()
	}()

	if err := app.Run(ctx); err != nil {
		log.Fatal(map[string]any{"error": err}, "Server failed")
	}

	log.Info(nil, "RR-SPAM service stopped gracefully")
}

// buildApplication constructs all components and wires them together
func buildApplication(cfg *config.AppConfig) (*Application, error) {
	clk := &clock.RealClock{}
	logger := log.GetLogger()

	repos, err := buildRepositories(cfg, logger, clk)
	if err != nil {
		return nil, fmt.Errorf("failed to build repositories: %w", err)
	}

	m, err := metrics.New(metrics.Options{
		RepoStats:         repos.blocklist.RepoStats,
		RuntimeCollectors: true,
	})
	if err != nil {
		_ = repos.store.Close()
		return nil, fmt.Errorf("failed to build metrics: %w", err)
	}
	m.SetBlocklistRules(repos.rules)

	gw, err := buildGateways(cfg, logger)
	if err != nil {
		_ = repos.store.Close()
		return nil, fmt.Errorf("failed to build gateways: %w", err)
	}

	svc, err := classifier.New(classifier.Options{
		Fetcher:     gw.fetcher,
		Logger:      logger,
		Parallelism: cfg.Classifier.Parallelism,
		MaxFetches:  cfg.Classifier.MaxFetches,
	})
	if err != nil {
		_ = repos.store.Close()
		return nil, fmt.Errorf("failed to build classifier: %w", err)
	}

	server, err := api.New(api.Options{
		Addr:         cfg.API.Listen,
		Checker:      svc,
		Blocklist:    repos.blocklist,
		Logger:       logger,
		Metrics:      m,
		DefaultDepth: cfg.Classifier.Depth,
		MaxDepth:     cfg.Classifier.MaxDepth,
		CheckTimeout: time.Duration(cfg.Fetch.Timeout) * time.Second * time.Duration(cfg.Classifier.MaxDepth+1),
	})
	if err != nil {
		_ = repos.store.Close()
		return nil, fmt.Errorf("failed to build API server: %w", err)
	}

	return &Application{
		config:  cfg,
		server:  server,
		store:   repos.store,
		metrics: m,
	}, nil
}

// repositories holds all repository implementations
type repositories struct {
	blocklist blocklist.Repository
	store     blocklist.Store
	rules     int
}

// gateways holds all gateway implementations
type gateways struct {
	fetcher classifier.Fetcher
}

// buildRepositories opens the block-list index and rebuilds it from the list directory
func buildRepositories(cfg *config.AppConfig, logger log.Logger, clk clock.Clock) (*repositories, error) {
	now := clk.Now()
	rules, err := parsers.LoadDirectory(cfg.Blocklist.Directory, logger, now)
	if err != nil {
		return nil, fmt.Errorf("failed to load blocklist directory: %w", err)
	}

	store, err := bolt.New(cfg.Blocklist.DB)
	if err != nil {
		return nil, fmt.Errorf("failed to open blocklist db: %w", err)
	}

	cache, err := lru.New(cfg.Blocklist.CacheSize)
	if err != nil {
		_ = store.Close()
		return nil, fmt.Errorf("failed to create blocklist cache: %w", err)
	}

	repo := blocklist.NewRepository(store, cache, bloom.NewFactory(), cfg.Blocklist.FPRate)
	if err := repo.UpdateAll(rules, uint64(now.Unix()), now.Unix()); err != nil {
		_ = store.Close()
		return nil, fmt.Errorf("failed to index blocklist: %w", err)
	}

	log.Info(map[string]any{
		"dir":        cfg.Blocklist.Directory,
		"db":         cfg.Blocklist.DB,
		"rules":      len(rules),
		"cache_size": cfg.Blocklist.CacheSize,
		"took":       clock.Since(clk, now).String(),
	}, "Blocklist index built")

	return &repositories{
		blocklist: repo,
		store:     store,
		rules:     len(rules),
	}, nil
}

// buildGateways creates and configures all gateway implementations
func buildGateways(cfg *config.AppConfig, logger log.Logger) (*gateways, error) {
	fetcher, err := fetch.New(fetch.Options{
		Timeout:      time.Duration(cfg.Fetch.Timeout) * time.Second,
		MaxBodyBytes: cfg.Fetch.MaxBody,
		UserAgent:    cfg.Fetch.UserAgent,
		Rate:         cfg.Fetch.Rate,
		Burst:        cfg.Fetch.Burst,
		Logger:       logger,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create fetcher: %w", err)
	}

	log.Info(map[string]any{
		"timeout":  cfg.Fetch.Timeout,
		"max_body": cfg.Fetch.MaxBody,
		"rate":     cfg.Fetch.Rate,
	}, "HTTP fetcher configured")

	return &gateways{fetcher: fetcher}, nil
}

// Run starts the HTTP API and blocks until context is cancelled
func (app *Application) Run(ctx context.Context) error {
	defer func() {
		if err := app.store.Close(); err != nil {
			log.Warn(map[string]any{"error": err}, "Error closing blocklist store")
		}
	}()

	serveErr := make(chan error, 1)
	go func() {
		serveErr <- app.server.Start()
	}()
	app.server.SetReady(true)

	select {
	case err := <-serveErr:
		if err != nil {
			return fmt.Errorf("failed to start HTTP API: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	log.Info(nil, "Shutdown initiated")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), defaultShutdownTimeout)
	defer cancel()

	if err := app.server.Shutdown(shutdownCtx); err != nil {
		log.Warn(map[string]any{"timeout": defaultShutdownTimeout, "error": err}, "Shutdown timeout exceeded")
		return fmt.Errorf("shutdown: %w", err)
	}
	<-serveErr

	log.Info(nil, "Graceful shutdown completed")
	return nil
}
