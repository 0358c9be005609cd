// Package bootstrap wires stores, the tipping service and Solana ingestion
// from configuration. It is shared by the binaries under cmd/.
package bootstrap

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/sirupsen/logrus"

	"tip-settlement/internal/config"
	"tip-settlement/internal/domain"
	"tip-settlement/internal/feeconfig"
	"tip-settlement/internal/ingestion"
	"tip-settlement/internal/logging"
	"tip-settlement/internal/observability"
	"tip-settlement/internal/settlement"
	"tip-settlement/internal/solana"
	"tip-settlement/internal/storage"
	chstore "tip-settlement/internal/storage/clickhouse"
	"tip-settlement/internal/storage/memory"
	"tip-settlement/internal/storage/migrations"
	pgstore "tip-settlement/internal/storage/postgres"
	"tip-settlement/internal/tipping"
)

// Stores holds every storage implementation used by the binaries.
type Stores struct {
	Tips    storage.TipLedgerStore
	Fees    storage.FeeSettingStore
	Cursors storage.IngestionCursorStore
	Events  storage.SettlementEventStore // nil when analytics is not configured
}

// OpenStores connects to Postgres (and ClickHouse when configured) and applies
// the embedded migrations, or returns in-memory stores when cfg.UseMemory is set.
// The returned cleanup closes every connection.
func OpenStores(ctx context.Context, cfg config.Config, logger logrus.FieldLogger) (*Stores, func(), error) {
	logger = logging.OrDiscard(logger)

	if cfg.UseMemory {
		logger.Warn("using in-memory storage; nothing survives a restart")
		stores := &Stores{
			Tips:    memory.NewTipLedgerStore(),
			Fees:    memory.NewFeeSettingStore(),
			Cursors: memory.NewIngestionCursorStore(),
			Events:  memory.NewSettlementEventStore(),
		}
		return stores, func() {}, nil
	}

	pool, err := pgstore.NewPool(ctx, cfg.PostgresDSN)
	if err != nil {
		return nil, nil, fmt.Errorf("connect to postgres: %w", err)
	}
	if err := migrations.RunPostgresMigrations(ctx, pool); err != nil {
		pool.Close()
		return nil, nil, fmt.Errorf("migrate postgres: %w", err)
	}

	stores := &Stores{
		Tips:    pgstore.NewTipLedgerStore(pool),
		Fees:    pgstore.NewFeeSettingStore(pool),
		Cursors: pgstore.NewIngestionCursorStore(pool),
	}

	if cfg.ClickHouseDSN == "" {
		logger.Warn("clickhouse_dsn not set; settlement analytics disabled")
		return stores, pool.Close, nil
	}

	conn, err := migrations.RunClickhouseMigrations(ctx, cfg.ClickHouseDSN)
	if err != nil {
		pool.Close()
		return nil, nil, fmt.Errorf("migrate clickhouse: %w", err)
	}
	stores.Events = chstore.NewSettlementEventStore(conn)

	cleanup := func() {
		if err := conn.Close(); err != nil {
			logger.WithError(err).Warn("close clickhouse")
		}
		pool.Close()
	}
	return stores, cleanup, nil
}

// NewService builds the fee registry, the ledger and the tipping service.
// Settled tips are published to stores.Events when it is set.
func NewService(cfg config.Config, stores *Stores, metrics *observability.Metrics, logger logrus.FieldLogger) (*tipping.Service, error) {
	logger = logging.OrDiscard(logger)

	registry, err := feeconfig.NewRegistry(stores.Fees, cfg.PlatformFeeBps,
		feeconfig.WithLogger(logger.WithField("component", "fee_registry")),
		feeconfig.WithMetrics(metrics),
	)
	if err != nil {
		return nil, fmt.Errorf("create fee registry: %w", err)
	}

	opts := []settlement.Option{
		settlement.WithLogger(logger.WithField("component", "ledger")),
		settlement.WithMetrics(metrics),
	}
	if stores.Events != nil {
		opts = append(opts, settlement.WithPublisher(settlement.NewStorePublisher(stores.Events)))
	}

	wallets := cfg.Wallets()
	for _, n := range domain.Networks() {
		if _, ok := wallets[n]; !ok {
			logger.WithField("network", n).Warn("no platform wallet configured; tips on this network will be rejected")
		}
	}

	ledger := settlement.NewLedger(stores.Tips, wallets, opts...)
	return tipping.NewService(registry, ledger, logger.WithField("component", "tipping")), nil
}

// Ingestion is the Solana tip pipeline of one program.
type Ingestion struct {
	Backfiller *ingestion.Backfiller
	Watcher    *ingestion.Watcher // nil unless created with live=true

	ws *solana.WebSocketClient
}

// NewIngestion builds the RPC client, processor and backfiller for
// cfg.Solana.ProgramID. With live set it also connects the logs
// subscription and builds a Watcher.
func NewIngestion(ctx context.Context, cfg config.Config, svc *tipping.Service, stores *Stores, metrics *observability.Metrics, logger logrus.FieldLogger, live bool) (*Ingestion, error) {
	logger = logging.OrDiscard(logger)
	sc := cfg.Solana

	if sc.ProgramID == "" {
		return nil, errors.New("solana.program_id is required for ingestion")
	}
	if sc.RPCEndpoint == "" {
		return nil, errors.New("solana.rpc_endpoint is required for ingestion")
	}

	rpc := solana.NewHTTPClient(sc.RPCEndpoint,
		solana.WithLatencyRecorder(metrics),
		solana.WithClientLogger(logger.WithField("component", "solana_rpc")),
	)
	processor := ingestion.NewProcessor(rpc, svc, sc.ProgramID,
		ingestion.WithProcessorLogger(logger.WithField("component", "processor")),
		ingestion.WithProcessorMetrics(metrics),
	)
	ing := &Ingestion{
		Backfiller: ingestion.NewBackfiller(ingestion.BackfillOptions{
			RPC:       rpc,
			Processor: processor,
			Cursors:   stores.Cursors,
			ProgramID: sc.ProgramID,
			Logger:    logger.WithField("component", "backfill"),
		}),
	}
	if !live {
		return ing, nil
	}

	if sc.WSEndpoint == "" {
		return nil, errors.New("solana.ws_endpoint is required for live ingestion")
	}
	ws, err := solana.NewWSClient(ctx, sc.WSEndpoint, nil, logger)
	if err != nil {
		return nil, fmt.Errorf("connect solana websocket: %w", err)
	}
	ing.ws = ws
	ing.Watcher = ingestion.NewWatcher(ingestion.WatcherOptions{
		WS:         ws,
		Processor:  processor,
		Backfiller: ing.Backfiller,
		ProgramID:  sc.ProgramID,
		Logger:     logger.WithField("component", "watcher"),
		Metrics:    metrics,
	})
	return ing, nil
}

// Close releases the logs subscription.
func (i *Ingestion) Close() {
	if i.ws != nil {
		_ = i.ws.Close()
	}
}

// HandleSignals cancels on SIGINT or SIGTERM. A second signal, or a
// shutdown that outlasts timeout, exits the process. Close the returned
// channel once shutdown has completed.
func HandleSignals(cancel context.CancelFunc, logger logrus.FieldLogger, timeout time.Duration) chan<- struct{} {
	done := make(chan struct{})
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		select {
		case sig := <-sigCh:
			logger.WithField("signal", sig.String()).Info("initiating graceful shutdown")
		case <-done:
			return
		}
		cancel()

		select {
		case sig := <-sigCh:
			logger.WithField("signal", sig.String()).Error("second signal, forcing immediate shutdown")
			os.Exit(1)
		case <-time.After(timeout):
			logger.WithField("timeout", timeout).Error("graceful shutdown timed out, forcing exit")
			os.Exit(1)
		case <-done:
		}
	}()
	return done
}
