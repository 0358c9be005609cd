package ingestion

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/sirupsen/logrus"

	"tip-settlement/internal/logging"
	"tip-settlement/internal/observability"
	"tip-settlement/internal/solana"
)

// Watcher settles tips as the program emits them.
type Watcher struct {
	ws               solana.WSClient
	processor        *Processor
	backfiller       *Backfiller
	programID        string
	backfillInterval time.Duration
	logger           logrus.FieldLogger
	metrics          *observability.Metrics
}

// WatcherOptions contains configuration for creating a Watcher.
type WatcherOptions struct {
	WS         solana.WSClient
	Processor  *Processor
	Backfiller *Backfiller // Optional. Runs at startup and every BackfillInterval
	ProgramID  string

	BackfillInterval time.Duration // Default: 1m
	Logger           logrus.FieldLogger
	Metrics          *observability.Metrics
}

// NewWatcher creates a new live tip watcher.
func NewWatcher(opts WatcherOptions) *Watcher {
	interval := opts.BackfillInterval
	if interval <= 0 {
		interval = time.Minute
	}
	return &Watcher{
		ws:               opts.WS,
		processor:        opts.Processor,
		backfiller:       opts.Backfiller,
		programID:        opts.ProgramID,
		backfillInterval: interval,
		logger:           logging.OrDiscard(opts.Logger),
		metrics:          opts.Metrics,
	}
}

// Run subscribes to the program's logs and blocks until ctx is cancelled or
// the subscription ends. The subscription is opened before the first backfill
// so nothing falls between the two; tips seen by both are settled once.
func (w *Watcher) Run(ctx context.Context) error {
	logsCh, err := w.ws.SubscribeLogs(ctx, solana.LogsFilter{Mentions: []string{w.programID}})
	if err != nil {
		return err
	}
	w.logger.WithField("program_id", w.programID).Info("subscribed to program logs")

	var tick <-chan time.Time
	if w.backfiller != nil {
		w.catchUp(ctx)
		ticker := time.NewTicker(w.backfillInterval)
		defer ticker.Stop()
		tick = ticker.C
	}

	for {
		select {
		case <-ctx.Done():
			w.logger.Info("watcher stopping")
			return ctx.Err()

		case notif, ok := <-logsCh:
			if !ok {
				return errors.New("logs subscription closed")
			}
			w.handle(ctx, notif)

		case <-tick:
			w.catchUp(ctx)
		}
	}
}

func (w *Watcher) handle(ctx context.Context, notif solana.LogNotification) {
	if notif.Err != nil || !hasTipActivity(notif.Logs) {
		return
	}

	log := w.logger.WithFields(logrus.Fields{"signature": notif.Signature, "slot": notif.Slot})
	res, err := w.processor.ProcessSignature(ctx, notif.Signature)
	if err != nil {
		// The next backfill picks the signature up again.
		log.WithError(err).Warn("live tip processing failed")
		return
	}
	if res.Tips > 0 {
		log.WithFields(logrus.Fields{
			"tips":     res.Tips,
			"settled":  res.Settled,
			"rejected": res.Rejected,
		}).Info("tips ingested")
	}
}

func (w *Watcher) catchUp(ctx context.Context) {
	if _, err := w.backfiller.Run(ctx); err != nil && ctx.Err() == nil {
		w.metrics.RecordChainError("backfill")
		w.logger.WithError(err).Warn("backfill failed")
	}
}

// hasTipActivity is a cheap filter ahead of fetching the full transaction.
func hasTipActivity(logs []string) bool {
	for _, line := range logs {
		if strings.HasPrefix(line, programDataPrefix) || strings.HasPrefix(line, "Program log: Tip sent:") {
			return true
		}
	}
	return false
}
