// govarpd daemon -- VXLAN overlay fabric resolution via the SVP protocol.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/sync/errgroup"

	"github.com/mnx-cloud/govarpd/internal/config"
	"github.com/mnx-cloud/govarpd/internal/fabriclink"
	"github.com/mnx-cloud/govarpd/internal/fabricscan"
	"github.com/mnx-cloud/govarpd/internal/install"
	"github.com/mnx-cloud/govarpd/internal/install/ovsdbsink"
	varpdmetrics "github.com/mnx-cloud/govarpd/internal/metrics"
	"github.com/mnx-cloud/govarpd/internal/netlinksrc"
	"github.com/mnx-cloud/govarpd/internal/reactor"
	"github.com/mnx-cloud/govarpd/internal/svp"
	appversion "github.com/mnx-cloud/govarpd/internal/version"
)

// shutdownTimeout bounds how long the metrics HTTP server is given to drain
// active connections during graceful shutdown.
const shutdownTimeout = 10 * time.Second

func main() {
	os.Exit(run())
}

func run() int {
	configPath := flag.String("c", "", "path to configuration file (YAML)")
	addr := flag.String("a", "", "Portolan server IPv4 address (required)")
	port := flag.Int("p", 0, "Portolan server TCP port (default 1296)")
	fabricNics := flag.String("f", "", "declarative fabric-NIC seed file")
	flag.Parse()

	cfg, err := loadConfig(*configPath)
	if err != nil {
		slog.New(slog.NewTextHandler(os.Stderr, nil)).Error("failed to load configuration",
			slog.String("error", err.Error()),
		)
		return 1
	}
	applyFlagOverrides(cfg, *addr, *port, *fabricNics)

	if err := config.Validate(cfg); err != nil {
		slog.New(slog.NewTextHandler(os.Stderr, nil)).Error("invalid configuration",
			slog.String("error", err.Error()),
		)
		return 1
	}

	logLevel := new(slog.LevelVar)
	logLevel.Set(config.ParseLogLevel(cfg.Log.Level))
	logger := newLoggerWithLevel(cfg.Log, logLevel)

	logger.Info("govarpd starting",
		slog.String("version", appversion.Version),
		slog.String("portolan_addr", cfg.Portolan.HostPort()),
		slog.String("metrics_addr", cfg.Metrics.Addr),
	)

	if err := runDaemon(cfg, logger, logLevel, *configPath); err != nil {
		logger.Error("govarpd exited with error", slog.String("error", err.Error()))
		return 1
	}

	logger.Info("govarpd stopped")
	return 0
}

// loadConfig loads configuration from an optional file path, falling back
// to defaults plus environment overrides when path is empty.
func loadConfig(path string) (*config.Config, error) {
	return config.Load(path)
}

// applyFlagOverrides applies the explicit CLI flags over the loaded
// configuration: flags always win over file and environment settings.
func applyFlagOverrides(cfg *config.Config, addr string, port int, fabricNics string) {
	if addr != "" {
		cfg.Portolan.Addr = addr
	}
	if port != 0 {
		cfg.Portolan.Port = port
	}
	if fabricNics != "" {
		cfg.Fabric.NicsFile = fabricNics
	}
}

// runDaemon wires up every subsystem and runs them under an errgroup with a
// signal-aware context for graceful shutdown.
func runDaemon(cfg *config.Config, logger *slog.Logger, logLevel *slog.LevelVar, configPath string) error {
	reg := prometheus.NewRegistry()
	collector := varpdmetrics.NewCollector(reg)

	table := fabriclink.NewTable()
	scanner := fabricscan.New(table, logger)

	installer, closeInstaller, err := buildInstaller(cfg, logger)
	if err != nil {
		return fmt.Errorf("build installer: %w", err)
	}
	defer closeInstaller()

	txnReg := svp.NewRegistry()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	transport, err := svp.Dial(ctx, cfg.Portolan.HostPort(), txnReg, installer, logger)
	if err != nil {
		return fmt.Errorf("dial portolan at %s: %w", cfg.Portolan.HostPort(), err)
	}
	defer transport.Close()

	nl, err := netlinksrc.Dial(logger)
	if err != nil {
		return fmt.Errorf("dial netlink: %w", err)
	}
	defer nl.Close()

	react := reactor.New(nl, transport, table, scanner, cfg.Fabric.NicsFile, logger,
		reactor.WithMetrics(collector),
		reactor.WithRegistry(txnReg),
	)

	metricsSrv := newMetricsServer(cfg.Metrics, reg)

	g, gCtx := errgroup.WithContext(ctx)

	g.Go(func() error {
		logger.Info("metrics server listening", slog.String("addr", cfg.Metrics.Addr), slog.String("path", cfg.Metrics.Path))
		return listenAndServe(gCtx, metricsSrv, cfg.Metrics.Addr)
	})

	g.Go(func() error {
		return react.Run(gCtx)
	})

	sigHUP := make(chan os.Signal, 1)
	signal.Notify(sigHUP, syscall.SIGHUP)
	g.Go(func() error {
		defer signal.Stop(sigHUP)
		handleSIGHUP(gCtx, sigHUP, react, configPath, logLevel, logger)
		return nil
	})

	g.Go(func() error {
		<-gCtx.Done()
		return gracefulShutdown(gCtx, metricsSrv)
	})

	if err := g.Wait(); err != nil {
		return fmt.Errorf("run daemon: %w", err)
	}
	return nil
}

// buildInstaller constructs the Installer chain: a logging sink always
// runs, with an OVSDB-backed sink (internal/install/ovsdbsink) called after
// it when configured. The returned close func is always safe to
// call, even when no OVSDB sink was created.
func buildInstaller(cfg *config.Config, logger *slog.Logger) (svp.Installer, func(), error) {
	logging := install.NewLoggingInstaller(logger)
	if cfg.Install.OVSDBEndpoint == "" {
		return logging, func() {}, nil
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	sink, err := ovsdbsink.Dial(ctx, cfg.Install.OVSDBEndpoint, logger)
	if err != nil {
		return nil, nil, fmt.Errorf("dial ovsdb at %s: %w", cfg.Install.OVSDBEndpoint, err)
	}

	multi := &install.MultiInstaller{Installers: []svp.Installer{logging, sink}}
	return multi, sink.Close, nil
}

// handleSIGHUP listens for SIGHUP, updates the dynamic log level, and
// triggers a fabric rescan. Blocks until ctx is cancelled.
func handleSIGHUP(ctx context.Context, sigHUP <-chan os.Signal, react *reactor.Reactor, configPath string, logLevel *slog.LevelVar, logger *slog.Logger) {
	for {
		select {
		case <-ctx.Done():
			return
		case <-sigHUP:
			logger.Info("received SIGHUP, reloading configuration and rescanning fabric")
			if newCfg, err := loadConfig(configPath); err != nil {
				logger.Error("failed to reload configuration, keeping current settings", slog.String("error", err.Error()))
			} else {
				oldLevel := logLevel.Level()
				newLevel := config.ParseLogLevel(newCfg.Log.Level)
				logLevel.Set(newLevel)
				logger.Info("log level reloaded", slog.String("old", oldLevel.String()), slog.String("new", newLevel.String()))
			}
			react.NotifyRescan()
		}
	}
}

func gracefulShutdown(ctx context.Context, servers ...*http.Server) error {
	shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), shutdownTimeout)
	defer cancel()

	var shutdownErr error
	for _, srv := range servers {
		if err := srv.Shutdown(shutdownCtx); err != nil {
			shutdownErr = errors.Join(shutdownErr, fmt.Errorf("shutdown server: %w", err))
		}
	}
	return shutdownErr
}

func listenAndServe(ctx context.Context, srv *http.Server, addr string) error {
	lc := net.ListenConfig{}
	ln, err := lc.Listen(ctx, "tcp", addr)
	if err != nil {
		return fmt.Errorf("listen on %s: %w", addr, err)
	}
	if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("serve on %s: %w", addr, err)
	}
	return nil
}

func newMetricsServer(cfg config.MetricsConfig, reg *prometheus.Registry) *http.Server {
	mux := http.NewServeMux()
	mux.Handle(cfg.Path, promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))
	return &http.Server{
		Addr:              cfg.Addr,
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
	}
}

func newLoggerWithLevel(cfg config.LogConfig, level *slog.LevelVar) *slog.Logger {
	opts := &slog.HandlerOptions{Level: level}

	var handler slog.Handler
	switch cfg.Format {
	case "text":
		handler = slog.NewTextHandler(os.Stdout, opts)
	default:
		handler = slog.NewJSONHandler(os.Stdout, opts)
	}

	return slog.New(handler)
}
