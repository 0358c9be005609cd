// Package main runs the tip settlement HTTP API. With -watch it also runs
// the Solana tip watcher in-process so observed program tips settle through
// the same ledger.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/sirupsen/logrus"

	"tip-settlement/internal/api"
	"tip-settlement/internal/bootstrap"
	"tip-settlement/internal/config"
	"tip-settlement/internal/logging"
	"tip-settlement/internal/observability"
)

func main() {
	// Load .env file if exists
	if err := config.LoadDotEnv(os.Getenv("ENV_FILE")); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}

	// Parse flags (env vars as defaults)
	configPath := flag.String("config", os.Getenv("CONFIG_FILE"), "YAML config file")
	httpAddr := flag.String("http-addr", os.Getenv("HTTP_ADDR"), "HTTP listen address")
	useMemory := flag.Bool("use-memory", false, "Use in-memory storage instead of PostgreSQL")
	watch := flag.Bool("watch", os.Getenv("SOLANA_WATCH") == "true", "Run the Solana tip watcher in-process")
	flag.Parse()

	cfg, err := config.Load(*configPath, func(c *config.Config) {
		if *httpAddr != "" {
			c.HTTPAddr = *httpAddr
		}
		if *useMemory {
			c.UseMemory = true
		}
	})
	if err != nil {
		fmt.Fprintf(os.Stderr, "load config: %v\n", err)
		os.Exit(1)
	}

	logger := logging.New("tip-server", cfg.LogLevel)

	ctx, cancel := context.WithCancel(context.Background())
	done := bootstrap.HandleSignals(cancel, logger, 30*time.Second)

	err = run(ctx, cfg, *watch, logger)
	close(done)
	cancel()

	if err != nil && !errors.Is(err, context.Canceled) {
		logger.WithError(err).Fatal("server stopped")
	}
	logger.Info("shutdown complete")
}

func run(ctx context.Context, cfg config.Config, watch bool, logger *logrus.Entry) error {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	metrics := observability.NewMetrics(observability.DefaultNamespace, reg)

	stores, cleanup, err := bootstrap.OpenStores(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer cleanup()

	svc, err := bootstrap.NewService(cfg, stores, metrics, logger)
	if err != nil {
		return err
	}

	if cfg.Auth.HMACSecret == "" {
		logger.Warn("auth.hmac_secret not set; fee updates will be refused")
	}
	srv := api.NewServer(api.Options{
		Service: svc,
		Auth: api.AuthConfig{
			HMACSecret: cfg.Auth.HMACSecret,
			Issuer:     cfg.Auth.Issuer,
			Audience:   cfg.Auth.Audience,
		},
		Logger:         logger.WithField("component", "api"),
		Metrics:        metrics,
		Gatherer:       reg,
		AllowedOrigins: cfg.AllowedOrigins,
	})

	errCh := make(chan error, 2)

	httpServer := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           srv.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	go func() {
		logger.WithField("addr", cfg.HTTPAddr).Info("http server listening")
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- fmt.Errorf("http server: %w", err)
		}
	}()

	if watch {
		ing, err := bootstrap.NewIngestion(ctx, cfg, svc, stores, metrics, logger, true)
		if err != nil {
			return shutdown(httpServer, logger, err)
		}
		defer ing.Close()

		go func() {
			if err := ing.Watcher.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
				errCh <- fmt.Errorf("watcher: %w", err)
			}
		}()
	}

	var runErr error
	select {
	case <-ctx.Done():
	case runErr = <-errCh:
	}
	return shutdown(httpServer, logger, runErr)
}

func shutdown(srv *http.Server, logger logrus.FieldLogger, cause error) error {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		logger.WithError(err).Warn("http shutdown")
	}
	return cause
}
