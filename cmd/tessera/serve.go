// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Tessera Contributors

package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/samber/oops"
	"github.com/spf13/cobra"
	"go.opentelemetry.io/otel"

	"github.com/tessera-dev/tessera/internal/auth"
	"github.com/tessera-dev/tessera/internal/bundle"
	"github.com/tessera-dev/tessera/internal/capability"
	"github.com/tessera-dev/tessera/internal/catalog"
	"github.com/tessera-dev/tessera/internal/component"
	"github.com/tessera-dev/tessera/internal/config"
	"github.com/tessera-dev/tessera/internal/httpapi"
	"github.com/tessera-dev/tessera/internal/install"
	"github.com/tessera-dev/tessera/internal/loader"
	"github.com/tessera-dev/tessera/internal/logging"
	"github.com/tessera-dev/tessera/internal/observability"
	"github.com/tessera-dev/tessera/internal/proxy"
	"github.com/tessera-dev/tessera/internal/sandbox"
	"github.com/tessera-dev/tessera/internal/store"
	"github.com/tessera-dev/tessera/internal/widget"
	"github.com/tessera-dev/tessera/internal/xdg"
)

const (
	serviceName     = "tessera"
	tracerName      = "github.com/tessera-dev/tessera"
	shutdownTimeout = 10 * time.Second
)

// Backend is the storage behind the catalog and installation services.
type Backend struct {
	Plugins       catalog.Repository
	Installations install.Repository
	// Ready backs the readiness probe.
	Ready func() bool
	Close func()
}

// ServeDeps contains injectable dependencies for the serve command.
// All fields with nil values will use their default implementations.
type ServeDeps struct {
	// BackendFactory opens the configured store.
	// Default: openBackend
	BackendFactory func(ctx context.Context, cfg *config.Config) (*Backend, error)

	// Signals delivers shutdown signals.
	// Default: SIGINT and SIGTERM
	Signals <-chan os.Signal

	// Started is called with the bound API address once serving.
	Started func(addr string)
}

// NewServeCmd creates the serve subcommand.
func NewServeCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the API server",
		Long: `Start the HTTP API: the admin catalog and installation routes, public
listings, bundle serving, the action proxy and widget rendering. Metrics and
health probes are served on metrics.addr.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := config.Load(configFile, cmd.Flags())
			if err != nil {
				return err
			}
			return runServeWithDeps(cmd.Context(), cfg, cmd, nil)
		},
	}
	config.RegisterFlags(cmd.Flags())
	return cmd
}

// runServeWithDeps starts the server with injectable dependencies.
// If deps is nil, default implementations are used.
func runServeWithDeps(ctx context.Context, cfg *config.Config, cmd *cobra.Command, deps *ServeDeps) error {
	if deps == nil {
		deps = &ServeDeps{}
	}
	if deps.BackendFactory == nil {
		deps.BackendFactory = openBackend
	}
	if deps.Signals == nil {
		sigChan := make(chan os.Signal, 1)
		signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
		defer signal.Stop(sigChan)
		deps.Signals = sigChan
	}
	if ctx == nil {
		ctx = context.Background()
	}

	logger := logging.SetDefault(serviceName, version, cfg.Log.Format, cfg.LogLevel())
	logger.Info("starting tessera",
		"http_addr", cfg.HTTP.Addr,
		"store_driver", cfg.Store.Driver,
	)

	backend, err := deps.BackendFactory(ctx, cfg)
	if err != nil {
		return oops.Code("STORE_OPEN_FAILED").With("driver", cfg.Store.Driver).Wrap(err)
	}
	defer backend.Close()

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	var obsServer *observability.Server
	var metrics *observability.Metrics
	if cfg.Metrics.Addr != "" {
		obsServer = observability.NewServer(cfg.Metrics.Addr, backend.Ready, observability.WithServerLogger(logger))
		metrics = obsServer.Metrics()
		obsErrChan, err := obsServer.Start()
		if err != nil {
			return oops.Code("OBSERVABILITY_START_FAILED").Wrap(err)
		}
		go monitorServerErrors(ctx, cancel, obsErrChan, "observability")
	}

	handler, err := buildHandler(cfg, backend, metrics, logger)
	if err != nil {
		stopObservability(obsServer)
		return err
	}

	apiServer := httpapi.NewServer(cfg.HTTP.Addr, handler)
	apiErrChan, err := apiServer.Start()
	if err != nil {
		stopObservability(obsServer)
		return oops.Code("HTTP_START_FAILED").Wrap(err)
	}
	go monitorServerErrors(ctx, cancel, apiErrChan, "api")

	cmd.Println("Tessera started on " + apiServer.Addr())
	if deps.Started != nil {
		deps.Started(apiServer.Addr())
	}

	select {
	case sig := <-deps.Signals:
		logger.Info("received shutdown signal", "signal", sig)
	case <-ctx.Done():
		logger.Info("context cancelled, shutting down")
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer shutdownCancel()
	if err := apiServer.Stop(shutdownCtx); err != nil {
		logger.Warn("error stopping api server", "error", err)
	}
	stopObservability(obsServer)

	logger.Info("shutdown complete")
	return nil
}

// buildHandler wires the services behind the API router.
func buildHandler(cfg *config.Config, b *Backend, metrics *observability.Metrics, logger *slog.Logger) (http.Handler, error) {
	if logger == nil {
		logger = slog.Default()
	}
	plugins := catalog.NewService(b.Plugins)
	installs := install.NewManager(b.Installations, plugins)

	if err := xdg.EnsureDir(cfg.Bundles.Dir); err != nil {
		return nil, err
	}
	var storeOpts []bundle.FSOption
	if cfg.Bundles.LZ4 {
		storeOpts = append(storeOpts, bundle.WithLZ4())
	}
	blobs, err := bundle.NewFSStore(cfg.Bundles.Dir, storeOpts...)
	if err != nil {
		return nil, err
	}
	resolver := bundle.NewResolver(plugins, blobs,
		bundle.WithFetchTimeout(cfg.Bundles.FetchTimeout),
		bundle.WithMetrics(metrics),
	)

	tracer := otel.Tracer(tracerName)
	client, err := proxy.NewClient(cfg.Proxy.BaseURL,
		proxy.WithTimeout(cfg.Proxy.Timeout),
		proxy.WithTracer(tracer),
		proxy.WithMetrics(metrics),
	)
	if err != nil {
		return nil, err
	}

	var fetcher loader.Fetcher = loader.ResolverFetcher{Resolver: resolver}
	if cfg.Loader.BundleBaseURL != "" {
		fetcher, err = loader.NewHTTPFetcher(cfg.Loader.BundleBaseURL, nil, cfg.Loader.FetchTimeout)
		if err != nil {
			return nil, err
		}
	}

	enforcer := capability.NewEnforcer()
	host := &component.Host{
		Invoker:    client,
		Authorizer: enforcer,
		Logger:     logger,
		Metrics:    metrics,
	}
	sb := sandbox.New(
		sandbox.WithTimeout(cfg.Sandbox.ExecTimeout),
		sandbox.WithLogger(logger),
		sandbox.WithMetrics(metrics),
	)
	extensions := loader.New(fetcher, sb, host,
		loader.WithGranter(enforcer),
		loader.WithMetrics(metrics),
		loader.WithLogger(logger),
		loader.WithTracer(tracer),
	)

	admin, err := auth.NewKeyVerifier(cfg.Admin.KeyHashes, nil)
	if err != nil {
		return nil, err
	}
	if len(cfg.Admin.KeyHashes) == 0 {
		logger.Warn("no admin key hashes configured; admin routes will reject every request")
	}

	return httpapi.NewRouter(httpapi.Deps{
		Catalog:  plugins,
		Installs: installs,
		Bundles:  bundle.NewHandler(resolver),
		Proxy: proxy.NewHandler(client, proxy.HandlerConfig{
			RequireInstallation: cfg.Proxy.RequireInstallation,
			Installations:       installs,
		}),
		Widgets: widget.NewComposer(installs, extensions,
			widget.WithLogger(logger),
			widget.WithMetrics(metrics),
		),
		Admin:  admin,
		Logger: logger,
	}), nil
}

// openBackend opens the store named by store.driver.
func openBackend(ctx context.Context, cfg *config.Config) (*Backend, error) {
	switch cfg.Store.Driver {
	case config.DriverMemory:
		mem := store.NewMemoryStore()
		return &Backend{
			Plugins:       mem.Plugins(),
			Installations: mem.Installations(),
			Ready:         func() bool { return true },
			Close:         func() {},
		}, nil
	default:
		pg, err := store.Connect(ctx, cfg.Store.DatabaseURL, store.ConnectOptions{})
		if err != nil {
			return nil, err
		}
		return &Backend{
			Plugins:       pg.Plugins(),
			Installations: pg.Installations(),
			Ready: func() bool {
				pingCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
				defer cancel()
				return pg.Ping(pingCtx) == nil
			},
			Close: pg.Close,
		}, nil
	}
}

func stopObservability(s *observability.Server) {
	if s == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := s.Stop(ctx); err != nil {
		slog.Warn("error stopping observability server", "error", err)
	}
}

// monitorServerErrors cancels ctx when a server reports an error. It exits
// when an error arrives, the channel closes or ctx is cancelled.
func monitorServerErrors(ctx context.Context, cancel context.CancelFunc, errCh <-chan error, serverName string) {
	select {
	case err, ok := <-errCh:
		if !ok {
			return
		}
		if err != nil {
			slog.Error("server error, triggering shutdown",
				"server", serverName,
				"error", err,
			)
			cancel()
		}
	case <-ctx.Done():
	}
}
