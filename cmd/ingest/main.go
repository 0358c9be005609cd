// Package main settles tips observed on the Solana creator-tip program.
//
// Modes:
//   - live: subscribe to program logs, with a periodic backfill for anything missed
//   - backfill: walk program history from the stored cursor once and exit
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
	"github.com/sirupsen/logrus"

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
	mode := flag.String("mode", "live", "Ingestion mode: live or backfill")
	configPath := flag.String("config", os.Getenv("CONFIG_FILE"), "YAML config file")
	rpcEndpoint := flag.String("rpc-endpoint", os.Getenv("SOLANA_RPC_ENDPOINT"), "Solana RPC HTTP endpoint")
	wsEndpoint := flag.String("ws-endpoint", os.Getenv("SOLANA_WS_ENDPOINT"), "Solana WebSocket endpoint")
	programID := flag.String("program-id", os.Getenv("SOLANA_PROGRAM_ID"), "Creator-tip program ID")
	useMemory := flag.Bool("use-memory", false, "Use in-memory storage instead of PostgreSQL")
	metricsAddr := flag.String("metrics-addr", ":9090", "Prometheus metrics HTTP address (empty to disable)")
	flag.Parse()

	cfg, err := config.Load(*configPath, func(c *config.Config) {
		if *rpcEndpoint != "" {
			c.Solana.RPCEndpoint = *rpcEndpoint
		}
		if *wsEndpoint != "" {
			c.Solana.WSEndpoint = *wsEndpoint
		}
		if *programID != "" {
			c.Solana.ProgramID = *programID
		}
		if *useMemory {
			c.UseMemory = true
		}
	})
	if err != nil {
		fmt.Fprintf(os.Stderr, "load config: %v\n", err)
		os.Exit(1)
	}

	logger := logging.New("tip-ingest", cfg.LogLevel).WithField("mode", *mode)

	if *mode != "live" && *mode != "backfill" {
		logger.Fatalf("unknown mode: %s", *mode)
	}

	reg := prometheus.NewRegistry()
	metrics := observability.NewMetrics(observability.DefaultNamespace, reg)

	// Start metrics server if enabled
	if *metricsAddr != "" {
		go serveMetrics(*metricsAddr, reg, logger)
	}

	ctx, cancel := context.WithCancel(context.Background())
	done := bootstrap.HandleSignals(cancel, logger, 30*time.Second)

	err = run(ctx, cfg, *mode == "live", metrics, logger)
	close(done)
	cancel()

	if err != nil && !errors.Is(err, context.Canceled) {
		logger.WithError(err).Fatal("ingestion stopped")
	}
	logger.Info("shutdown complete")
}

func run(ctx context.Context, cfg config.Config, live bool, metrics *observability.Metrics, logger *logrus.Entry) error {
	stores, cleanup, err := bootstrap.OpenStores(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer cleanup()

	svc, err := bootstrap.NewService(cfg, stores, metrics, logger)
	if err != nil {
		return err
	}

	ing, err := bootstrap.NewIngestion(ctx, cfg, svc, stores, metrics, logger, live)
	if err != nil {
		return err
	}
	defer ing.Close()

	logger.WithField("program_id", cfg.Solana.ProgramID).Info("starting ingestion")
	if live {
		return ing.Watcher.Run(ctx)
	}

	result, err := ing.Backfiller.Run(ctx)
	if err != nil {
		return err
	}
	logger.WithFields(logrus.Fields{
		"signatures": result.Signatures,
		"tips":       result.Tips,
		"settled":    result.Settled,
		"rejected":   result.Rejected,
		"skipped":    result.Skipped,
		"truncated":  result.Truncated,
		"duration":   result.Duration,
	}).Info("backfill complete")
	return nil
}

func serveMetrics(addr string, g prometheus.Gatherer, logger logrus.FieldLogger) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", observability.Handler(g))
	mux.HandleFunc("/health", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})

	srv := &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 10 * time.Second}
	logger.WithField("addr", addr).Info("metrics server listening")
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logger.WithError(err).Error("metrics server")
	}
}
