// Package main compares ledger balances with the analytics event totals and
// prints a reconciliation report. It exits with status 2 when they disagree.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/sirupsen/logrus"

	"tip-settlement/internal/bootstrap"
	"tip-settlement/internal/config"
	"tip-settlement/internal/domain"
	"tip-settlement/internal/logging"
	"tip-settlement/internal/reconcile"
)

const exitDiscrepancies = 2

func main() {
	// Load .env file if exists
	if err := config.LoadDotEnv(os.Getenv("ENV_FILE")); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}

	// Parse flags (env vars as defaults)
	configPath := flag.String("config", os.Getenv("CONFIG_FILE"), "YAML config file")
	format := flag.String("format", "markdown", "Report format: markdown or csv")
	output := flag.String("output", "", "Write the report to this file instead of stdout")
	networks := flag.String("networks", "", "Comma-separated networks to reconcile (default: all)")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "load config: %v\n", err)
		os.Exit(1)
	}

	// Reports go to stdout, so logs go to stderr.
	logger := logging.NewWithOutput("tip-reconcile", cfg.LogLevel, os.Stderr)

	nets, err := parseNetworks(*networks)
	if err != nil {
		logger.WithError(err).Fatal("invalid -networks")
	}
	render, err := renderer(*format)
	if err != nil {
		logger.WithError(err).Fatal("invalid -format")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Minute)
	done := bootstrap.HandleSignals(cancel, logger, 30*time.Second)

	report, err := run(ctx, cfg, nets, logger)
	close(done)
	cancel()
	if err != nil {
		logger.WithError(err).Fatal("reconciliation failed")
	}

	out := render(report)
	if *output == "" {
		fmt.Print(out)
	} else if err := os.WriteFile(*output, []byte(out), 0o644); err != nil {
		logger.WithError(err).Fatal("write report")
	}

	if !report.Clean() {
		logger.WithField("discrepancies", report.Discrepancies).Warn("ledger and analytics disagree")
		os.Exit(exitDiscrepancies)
	}
}

func run(ctx context.Context, cfg config.Config, networks []domain.Network, logger *logrus.Entry) (*reconcile.Report, error) {
	stores, cleanup, err := bootstrap.OpenStores(ctx, cfg, logger)
	if err != nil {
		return nil, err
	}
	defer cleanup()

	if stores.Events == nil {
		return nil, errors.New("clickhouse_dsn is required to reconcile")
	}

	svc, err := bootstrap.NewService(cfg, stores, nil, logger)
	if err != nil {
		return nil, err
	}

	r := reconcile.New(reconcile.Options{
		Ledger:    svc.Ledger(),
		Analytics: stores.Events,
		Networks:  networks,
		Logger:    logger.WithField("component", "reconcile"),
	})
	return r.Run(ctx)
}

func parseNetworks(s string) ([]domain.Network, error) {
	if strings.TrimSpace(s) == "" {
		return nil, nil
	}
	var out []domain.Network
	for _, part := range strings.Split(s, ",") {
		n, err := domain.ParseNetwork(strings.TrimSpace(part))
		if err != nil {
			return nil, err
		}
		out = append(out, n)
	}
	return out, nil
}

func renderer(format string) (func(*reconcile.Report) string, error) {
	switch strings.ToLower(format) {
	case "markdown", "md":
		return reconcile.RenderMarkdown, nil
	case "csv":
		return reconcile.RenderCSV, nil
	}
	return nil, fmt.Errorf("unknown format %q", format)
}
