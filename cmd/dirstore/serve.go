package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"

	"github.com/KilimcininKorOglu/dirstore/internal/config"
	"github.com/KilimcininKorOglu/dirstore/internal/logging"
	"github.com/KilimcininKorOglu/dirstore/internal/storage/store"
)

const shutdownTimeout = 30 * time.Second

func newServeCmd(g *globalFlags) *cobra.Command {
	var metricsAddress string

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Keep the store open with periodic checkpoints and export metrics",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			s, cfg, logger, err := g.openStore()
			if err != nil {
				return err
			}
			defer logger.Sync()

			if metricsAddress != "" {
				cfg.Metrics.Enabled = true
				cfg.Metrics.Address = metricsAddress
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			serveErr := serve(ctx, s, cfg, logger)
			closeErr := s.Close()
			return errors.Join(serveErr, closeErr)
		},
	}

	cmd.Flags().StringVar(&metricsAddress, "metrics-address", "", "Metrics listen address (enables metrics)")
	return cmd
}

// serve blocks until ctx is done, exporting metrics when enabled.
func serve(ctx context.Context, s *store.Store, cfg *config.Config, logger logging.Logger) error {
	if !cfg.Metrics.Enabled {
		logger.Info("store open, metrics disabled")
		<-ctx.Done()
		return nil
	}

	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	if err := s.RegisterMetrics(reg); err != nil {
		return fmt.Errorf("register metrics: %w", err)
	}

	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))

	srv := &http.Server{
		Addr:              cfg.Metrics.Address,
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("metrics listening", "address", cfg.Metrics.Address)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		logger.Info("received signal, shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("metrics server: %w", err)
	}
}
