// Package main runs a stormbridge topology: spouts that read external
// brokers, bolts that convert, enrich and store records, hosted on NATS
// JetStream.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"runtime"
	"sort"
	"strings"
	"syscall"
	"time"

	"github.com/nats-io/nats.go/jetstream"

	"github.com/c360/stormbridge/component"
	"github.com/c360/stormbridge/componentregistry"
	"github.com/c360/stormbridge/config"
	"github.com/c360/stormbridge/converter"
	"github.com/c360/stormbridge/health"
	"github.com/c360/stormbridge/metric"
	"github.com/c360/stormbridge/natsclient"
	"github.com/c360/stormbridge/pkg/retry"
	"github.com/c360/stormbridge/remotecache"
	"github.com/c360/stormbridge/topology/natsrunner"
)

// Build information constants
const (
	Version   = "0.1.0"
	BuildTime = "dev"
	appName   = "stormbridge"
)

func main() {
	defer func() {
		if r := recover(); r != nil {
			buf := make([]byte, 4096)
			n := runtime.Stack(buf, false)
			_, _ = fmt.Fprintf(os.Stderr, "PANIC: %v\nStack trace:\n%s\n", r, string(buf[:n]))
			os.Exit(2)
		}
	}()

	if err := run(os.Args[1:]); err != nil {
		slog.Error("Application failed", "error", err, "exit_code", 1)
		os.Exit(1)
	}
}

func run(args []string) error {
	fs := flag.NewFlagSet(appName, flag.ContinueOnError)
	cliCfg, err := parseFlags(fs, args)
	if err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return nil
		}
		return fmt.Errorf("invalid flags: %w", err)
	}
	if cliCfg.ShowVersion {
		fmt.Printf("%s version %s\n", appName, Version)
		return nil
	}
	if cliCfg.ShowHelp {
		printDetailedHelp(fs)
		return nil
	}
	if err := validateFlags(cliCfg); err != nil {
		return fmt.Errorf("invalid flags: %w", err)
	}

	logger := setupLogger(os.Stdout, cliCfg.LogLevel, cliCfg.LogFormat)
	slog.SetDefault(logger)
	slog.Info("Starting stormbridge",
		"version", Version,
		"build_time", BuildTime,
		"config_paths", cliCfg.ConfigPaths)

	cfg, err := loadConfig(cliCfg.ConfigPaths)
	if err != nil {
		return err
	}

	registry, err := newComponentRegistry()
	if err != nil {
		return err
	}

	if cliCfg.Validate {
		if err := validateComponents(cfg, registry, logger); err != nil {
			return err
		}
		slog.Info("Configuration is valid", "components", len(cfg.Enabled()))
		return nil
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	return serve(ctx, cfg, registry, logger, cliCfg.ShutdownTimeout)
}

// loadConfig merges the config layers and validates the result.
func loadConfig(paths []string) (*config.Config, error) {
	loader := config.NewLoader()
	for _, p := range paths {
		loader.AddLayer(p)
	}
	loader.EnableValidation(true)
	cfg, err := loader.Load()
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	return cfg, nil
}

func newComponentRegistry() (*component.Registry, error) {
	registry := component.NewRegistry()
	if err := componentregistry.Register(registry); err != nil {
		return nil, fmt.Errorf("register components: %w", err)
	}
	slog.Debug("Component factories registered", "factories", registry.ListComponentTypes())
	return registry, nil
}

// validateComponents runs every enabled factory without connecting anything,
// so component configuration errors surface before deployment.
func validateComponents(cfg *config.Config, registry *component.Registry, logger *slog.Logger) error {
	deps := component.Dependencies{
		Caches:     remotecache.NewRegistry(remotecache.WithSpecs(cfg.Caches)),
		Converters: converter.NewRegistry(),
		Logger:     logger,
	}

	var errs []error
	for _, name := range sortedNames(cfg.Enabled()) {
		if _, err := registry.CreateComponent(name, cfg.Components[name], deps); err != nil {
			errs = append(errs, fmt.Errorf("component %s: %w", name, err))
		}
	}
	return errors.Join(errs...)
}

// serve connects the infrastructure, hosts every enabled component and
// blocks until ctx is done or a component fails to start.
func serve(
	ctx context.Context,
	cfg *config.Config,
	registry *component.Registry,
	logger *slog.Logger,
	shutdownTimeout time.Duration,
) error {
	metricsRegistry := metric.NewMetricsRegistry()
	core := metricsRegistry.CoreMetrics()

	natsClient, err := connectToNATS(ctx, cfg.NATS, logger, core)
	if err != nil {
		return err
	}
	defer func() {
		closeCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := natsClient.Close(closeCtx); err != nil {
			logger.Warn("NATS close failed", "error", err)
		}
	}()

	if err := ensureStream(ctx, natsClient, cfg.NATS.Stream); err != nil {
		return err
	}

	monitor := health.NewMonitor()
	if cfg.Metrics.Enabled {
		healthy := func() bool {
			return natsClient.IsHealthy() && !monitor.AggregateHealth(appName).IsUnhealthy()
		}
		server := metric.NewServer(cfg.Metrics.Port, cfg.Metrics.Path, metricsRegistry, healthy)
		server.Handle("/health/components", monitor.Handler(appName))
		go func() {
			if err := server.Start(); err != nil {
				logger.Error("Metrics server failed", "error", err)
			}
		}()
		defer func() { _ = server.Stop() }()
		logger.Info("Metrics server started", "address", server.Address())
	}

	caches := remotecache.NewRegistry(
		remotecache.WithSpecs(cfg.Caches),
		remotecache.WithNATS(natsClient),
		remotecache.WithRegistrar(metricsRegistry),
		remotecache.WithLogger(logger),
	)
	defer func() {
		if err := caches.Close(); err != nil {
			logger.Warn("Cache close failed", "error", err)
		}
	}()

	deps := component.Dependencies{
		NATSClient:      natsClient,
		Caches:          caches,
		Converters:      converter.NewRegistry(),
		MetricsRegistry: metricsRegistry,
		Logger:          logger,
	}

	runner := natsrunner.New(natsClient,
		natsrunner.WithStream(cfg.NATS.Stream.Name),
		natsrunner.WithLogger(logger),
		natsrunner.WithMetrics(core),
	)
	sup := newSupervisor(runner, logger, monitor)

	enabled := cfg.Enabled()
	for _, name := range sortedNames(enabled) {
		inst, err := registry.CreateComponent(name, enabled[name], deps)
		if err != nil {
			_ = sup.Stop(shutdownTimeout)
			return fmt.Errorf("create component %s: %w", name, err)
		}
		if err := sup.Start(ctx, inst); err != nil {
			_ = sup.Stop(shutdownTimeout)
			return err
		}
		logger.Info("Component started", "component", name, "factory", inst.Config.Name, "type", inst.Config.Type)
	}
	logger.Info("stormbridge started", "components", len(enabled))

	var runErr error
	select {
	case <-ctx.Done():
		logger.Info("Received shutdown signal")
	case runErr = <-sup.Failures():
	}

	if err := sup.Stop(shutdownTimeout); err != nil {
		logger.Error("Graceful shutdown incomplete", "error", err)
		runErr = errors.Join(runErr, err)
	}
	logger.Info("stormbridge shutdown complete", "states", sup.States())
	return runErr
}

// connectToNATS dials NATS, retrying while the server comes up.
func connectToNATS(
	ctx context.Context,
	cfg config.NATSConfig,
	logger *slog.Logger,
	core *metric.Metrics,
) (*natsclient.Client, error) {
	opts := []natsclient.ClientOption{
		natsclient.WithMaxReconnects(cfg.MaxReconnects),
		natsclient.WithClientName(appName),
		natsclient.WithLogger(logger),
		natsclient.WithHealthChangeCallback(core.RecordNATSStatus),
	}
	if cfg.ReconnectWait > 0 {
		opts = append(opts, natsclient.WithReconnectWait(cfg.ReconnectWait.Std()))
	}
	if cfg.Username != "" {
		opts = append(opts, natsclient.WithCredentials(cfg.Username, cfg.Password))
	}
	if cfg.Token != "" {
		opts = append(opts, natsclient.WithToken(cfg.Token))
	}

	client, err := natsclient.NewClient(strings.Join(cfg.URLs, ","), opts...)
	if err != nil {
		return nil, fmt.Errorf("create NATS client: %w", err)
	}

	logger.Info("Connecting to NATS", "urls", cfg.URLs)
	policy := retry.Persistent()
	policy.OnRetry = func(attempt int, err error, delay time.Duration) {
		logger.Warn("NATS not reachable, retrying", "attempt", attempt, "retry_in", delay, "error", err)
	}
	err = retry.Do(ctx, policy, func() error {
		return client.Connect(ctx)
	})
	if err != nil {
		return nil, fmt.Errorf("connect to NATS: %w", err)
	}
	core.RecordNATSStatus(true)
	return client, nil
}

func ensureStream(ctx context.Context, client *natsclient.Client, cfg config.StreamConfig) error {
	streamCfg := jetstream.StreamConfig{
		Name:     cfg.Name,
		Subjects: cfg.Subjects,
		MaxAge:   cfg.MaxAge.Std(),
		Replicas: cfg.Replicas,
		Storage:  jetstream.FileStorage,
	}
	if _, err := client.EnsureStream(ctx, streamCfg); err != nil {
		return fmt.Errorf("ensure stream %s: %w", cfg.Name, err)
	}
	slog.Info("JetStream stream ready", "stream", cfg.Name, "subjects", cfg.Subjects)
	return nil
}

func sortedNames(components config.ComponentConfigs) []string {
	names := make([]string, 0, len(components))
	for name := range components {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
