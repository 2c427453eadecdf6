package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"

	"github.com/Ajanth06/medsafe-udi-sub000/internal/adapters/httpapi"
	"github.com/Ajanth06/medsafe-udi-sub000/internal/blob"
	"github.com/Ajanth06/medsafe-udi-sub000/internal/config"
	"github.com/Ajanth06/medsafe-udi-sub000/internal/core"
)

const shutdownTimeout = 10 * time.Second

func newServeCmd(cfgFile *string) *cobra.Command {
	var trace bool
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API and the overdue-action sweep",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := config.Load(*cfgFile)
			if err != nil {
				return err
			}
			ln, err := net.Listen("tcp", cfg.ListenAddr)
			if err != nil {
				return fmt.Errorf("listen %s: %w", cfg.ListenAddr, err)
			}
			return serve(cmd.Context(), cfg, ln, trace, cmd.ErrOrStderr())
		},
	}
	cmd.Flags().BoolVar(&trace, "trace", false, "Write service spans as JSON lines to stderr")
	return cmd
}

// serve runs until ctx is cancelled or the listener fails.
func serve(ctx context.Context, cfg config.Config, ln net.Listener, trace bool, logOut io.Writer) error {
	logger := newLogger(cfg.LogLevel, logOut)

	store, err := core.OpenPersistentStore(ctx, cfg.Storage, core.NewDefaultRulesEngine())
	if err != nil {
		_ = ln.Close()
		return err
	}
	if closer, ok := store.(io.Closer); ok {
		defer closer.Close()
	}
	blobs, err := blob.Open(ctx, cfg.Blob)
	if err != nil {
		_ = ln.Close()
		return fmt.Errorf("open blob store: %w", err)
	}

	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	promMetrics, err := core.NewPrometheusMetricsRecorder(registry)
	if err != nil {
		_ = ln.Close()
		return fmt.Errorf("register metrics: %w", err)
	}

	opts := []core.ServiceOption{
		core.WithLogger(logger),
		core.WithAuditRecorder(core.NewLoggerAuditRecorder(logger)),
		core.WithMetricsRecorder(core.MultiMetricsRecorder{promMetrics, core.NewExpvarMetricsRecorder("")}),
		core.WithBlobStore(blobs),
		core.WithSignedURLTTL(cfg.SignedURLTTL),
		core.WithLocale(cfg.Locale),
	}
	if trace {
		opts = append(opts, core.WithTracer(core.NewJSONTracer(logOut)))
	}
	svc := core.NewService(store, opts...)

	var routerOpts []httpapi.Option
	if cfg.Metrics.Enabled {
		routerOpts = append(routerOpts, httpapi.WithMetrics(cfg.Metrics.Path, promhttp.HandlerFor(registry, promhttp.HandlerOpts{})))
	}
	srv := &http.Server{
		Handler:           httpapi.NewRouter(svc, routerOpts...),
		ReadHeaderTimeout: 10 * time.Second,
	}

	var sweeper *core.OverdueSweeper
	if cfg.Sweep.Enabled {
		sweeper = core.NewOverdueSweeper(svc, logger, promMetrics)
		if err := sweeper.Start(ctx, cfg.Sweep.Schedule); err != nil {
			_ = ln.Close()
			return err
		}
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("http server listening",
			"addr", ln.Addr().String(),
			"storage", cfg.Storage.Driver,
			"blob", string(blobs.Driver()),
		)
		errCh <- srv.Serve(ln)
	}()

	var serveErr error
	select {
	case <-ctx.Done():
	case err := <-errCh:
		if !errors.Is(err, http.ErrServerClosed) {
			serveErr = fmt.Errorf("http server: %w", err)
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if sweeper != nil {
		sweeper.Stop(shutdownCtx)
	}
	if err := srv.Shutdown(shutdownCtx); err != nil && serveErr == nil {
		serveErr = fmt.Errorf("shutdown http server: %w", err)
	}
	logger.Info("http server stopped")
	return serveErr
}
