package cmd

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/denniswebb/portfwd/internal/api"
	"github.com/denniswebb/portfwd/internal/metrics"
	"github.com/denniswebb/portfwd/internal/portmap"
	"github.com/denniswebb/portfwd/internal/runtime"
)

const (
	healthInterval  = 15 * time.Second
	shutdownTimeout = 10 * time.Second
)

// ServeCmd runs the HTTP API with metrics and health endpoints.
var ServeCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve the port mapping HTTP API, /metrics and /healthz",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, logger, err := loadSettings()
		if err != nil {
			return err
		}
		serveLogger := logger.With(
			slog.String("component", "serve"),
			slog.String("chain", cfg.NATChain),
			slog.String("runtime", cfg.Runtime),
		)

		collector := metrics.NewMetrics()
		health := metrics.NewHealthChecker()
		connect := newConnector(cfg)

		manager, err := newManager(cfg, connect, serveLogger, collector)
		if err != nil {
			return err
		}

		router := api.NewRouter(api.NewHandler(manager, serveLogger), map[string]http.Handler{
			"/metrics": collector.Handler(),
			"/healthz": health.Handler(),
		})
		srv := &http.Server{
			Addr:              cfg.ListenAddr,
			Handler:           router,
			ReadHeaderTimeout: 10 * time.Second,
		}

		ctx, cancel := context.WithCancel(context.Background())
		defer cancel()

		sigCh := make(chan os.Signal, 1)
		signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
		defer signal.Stop(sigCh)

		done := make(chan struct{})
		go func() {
			defer close(done)
			runHealthChecks(ctx, manager, connect, health, healthInterval, cfg.Timeout, serveLogger)
		}()

		errCh := make(chan error, 1)
		go func() {
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				errCh <- err
			}
			close(errCh)
		}()

		serveLogger.Info("api server started", slog.String("listen_addr", cfg.ListenAddr))

		var serveErr error
		select {
		case sig := <-sigCh:
			serveLogger.Info("shutdown signal received", slog.String("signal", sig.String()))
		case err, ok := <-errCh:
			if ok {
				serveErr = fmt.Errorf("api server: %w", err)
			}
		}

		cancel()
		<-done

		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer shutdownCancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			serveLogger.Warn("api server shutdown incomplete", slog.Any("error", err))
		}

		serveLogger.Info("serve shutdown complete")
		return serveErr
	},
}

func init() {
	ServeCmd.Flags().String("listen-addr", ":9095", "Address the HTTP API listens on")
	if err := viper.BindPFlag("listen-addr", ServeCmd.Flags().Lookup("listen-addr")); err != nil {
		fmt.Fprintf(os.Stderr, "failed to bind listen-addr flag: %v\n", err)
		os.Exit(1)
	}
}

type mappingLister interface {
	ListMappings(ctx context.Context) ([]portmap.PortMapping, error)
}

// runHealthChecks refreshes the readiness signals immediately and then on
// every tick until ctx is canceled.
func runHealthChecks(ctx context.Context, lister mappingLister, connect runtime.Connector, health *metrics.HealthChecker, interval time.Duration, timeout time.Duration, logger *slog.Logger) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		checkHealth(ctx, lister, connect, health, timeout, logger)
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

func checkHealth(ctx context.Context, lister mappingLister, connect runtime.Connector, health *metrics.HealthChecker, timeout time.Duration, logger *slog.Logger) {
	checkCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	if _, err := lister.ListMappings(checkCtx); err != nil {
		logger.Warn("listing dnat chain failed", slog.Any("error", err))
		health.SetChainVerified(false)
	} else {
		health.SetChainVerified(true)
	}

	if err := runtime.Probe(checkCtx, connect); err != nil {
		logger.Warn("container runtime unreachable", slog.Any("error", err))
		health.SetRuntimeReachable(false)
	} else {
		health.SetRuntimeReachable(true)
	}
}
