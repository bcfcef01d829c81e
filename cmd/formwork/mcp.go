package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/pario-ai/formwork/pkg/config"
	"github.com/pario-ai/formwork/pkg/mcp"
	"github.com/pario-ai/formwork/pkg/metrics"
)

func newMCPCmd() *cobra.Command {
	var (
		configPath   string
		providerName string
	)

	cmd := &cobra.Command{
		Use:   "mcp",
		Short: "Serve formwork as an MCP server over stdio",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(configPath)
			if err != nil {
				return fmt.Errorf("load config: %w", err)
			}

			// stdout carries the protocol
			log.SetOutput(os.Stderr)

			ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			var collector metrics.Collector
			if cfg.Metrics.Listen != "" {
				prom := metrics.NewPrometheusCollector()
				collector = prom
				go func() {
					if err := serveMetrics(ctx, cfg.Metrics.Listen, prom.Handler()); err != nil {
						log.Printf("metrics server: %v", err)
					}
				}()
			}

			rt, err := newRuntime(cfg, providerName, collector)
			if err != nil {
				return err
			}
			defer rt.Close()

			srv := mcp.New(rt.engine, rt.tracker, cfg.Defaults, version)
			log.Printf("formwork mcp serving provider %s", rt.engine.Provider().Name())
			err = srv.Run(ctx, os.Stdin, os.Stdout)
			if errors.Is(err, context.Canceled) {
				return nil
			}
			return err
		},
	}

	cmd.Flags().StringVarP(&configPath, "config", "c", "formwork.yaml", "path to config file")
	cmd.Flags().StringVarP(&providerName, "provider", "p", "", "provider name from config (default: first)")
	return cmd
}

// serveMetrics exposes /metrics until ctx is done.
func serveMetrics(ctx context.Context, addr string, h http.Handler) error {
	mux := http.NewServeMux()
	mux.Handle("/metrics", h)
	srv := &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		log.Printf("formwork metrics listening on %s", addr)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		shutCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return srv.Shutdown(shutCtx)
	case err := <-errCh:
		return err
	}
}
