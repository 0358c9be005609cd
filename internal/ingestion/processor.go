// Package ingestion turns creator-tip program activity on Solana into tip
// submissions. Live notifications come from a logs subscription; a cursor-based
// backfill catches up on anything the subscription missed.
package ingestion

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/holiman/uint256"
	"github.com/sirupsen/logrus"

	"tip-settlement/internal/domain"
	"tip-settlement/internal/logging"
	"tip-settlement/internal/observability"
	"tip-settlement/internal/solana"
	"tip-settlement/internal/tipping"
)

const (
	defaultMaxRetries = 3
	defaultRetryDelay = 500 * time.Millisecond
)

// TipSubmitter settles observed tips.
type TipSubmitter interface {
	Submit(ctx context.Context, req tipping.TipRequest) (*domain.TipRecord, error)
}

// TxResult summarizes the tips found in one transaction.
type TxResult struct {
	Tips       int
	Settled    int
	Rejected   int
	Mismatches int
	Skipped    bool
}

// Processor fetches a transaction, decodes its tip events and submits them.
type Processor struct {
	rpc        solana.RPCClient
	submitter  TipSubmitter
	parser     *EventParser
	logger     logrus.FieldLogger
	metrics    *observability.Metrics
	maxRetries int
	retryDelay time.Duration
}

// ProcessorOption configures a Processor.
type ProcessorOption func(*Processor)

// WithProcessorLogger sets the logger.
func WithProcessorLogger(l logrus.FieldLogger) ProcessorOption {
	return func(p *Processor) { p.logger = logging.OrDiscard(l) }
}

// WithProcessorMetrics sets the metrics sink.
func WithProcessorMetrics(m *observability.Metrics) ProcessorOption {
	return func(p *Processor) { p.metrics = m }
}

// WithFetchRetry sets how often a transaction fetch is attempted and the
// initial backoff between attempts.
func WithFetchRetry(attempts int, delay time.Duration) ProcessorOption {
	return func(p *Processor) {
		if attempts > 0 {
			p.maxRetries = attempts
		}
		if delay > 0 {
			p.retryDelay = delay
		}
	}
}

// NewProcessor creates a processor for tips emitted by programID.
func NewProcessor(rpc solana.RPCClient, submitter TipSubmitter, programID string, opts ...ProcessorOption) *Processor {
	p := &Processor{
		rpc:        rpc,
		submitter:  submitter,
		parser:     NewEventParser(programID),
		logger:     logging.Discard(),
		maxRetries: defaultMaxRetries,
		retryDelay: defaultRetryDelay,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// ProcessSignature fetches a confirmed transaction and settles its tips.
// A returned error means the transaction should be retried later.
func (p *Processor) ProcessSignature(ctx context.Context, signature string) (*TxResult, error) {
	tx, err := p.retryGetTransaction(ctx, signature)
	if err != nil {
		p.metrics.RecordChainError("fetch")
		return nil, fmt.Errorf("get transaction %s: %w", signature, err)
	}
	return p.ProcessTransaction(ctx, tx)
}

// ProcessTransaction settles the tips of an already fetched transaction.
func (p *Processor) ProcessTransaction(ctx context.Context, tx *solana.Transaction) (*TxResult, error) {
	log := p.logger.WithFields(logrus.Fields{"signature": tx.Signature, "slot": tx.Slot})

	if tx.Failed() {
		return &TxResult{Skipped: true}, nil
	}

	tips, err := p.parser.ParseTips(tx.LogMessages)
	if err != nil {
		// Malformed program data does not get better on retry.
		p.metrics.RecordChainError("decode")
		log.WithError(err).Error("undecodable tip event")
		return &TxResult{Skipped: true}, nil
	}

	if len(tips) == 0 {
		if len(p.parser.ParseTipLogLines(tx.LogMessages)) > 0 {
			p.metrics.RecordChainError("truncated_logs")
			log.Warn("tip log line without event data")
		}
		return &TxResult{Skipped: true}, nil
	}

	res := &TxResult{Tips: len(tips)}
	for _, tip := range tips {
		name := EventTipSent
		if tip.HasMemo {
			name = EventTipWithMemo
		}
		p.metrics.RecordChainEvent(name, tx.Slot)

		rec, err := p.submitter.Submit(ctx, tipping.TipRequest{
			Network:     string(domain.NetworkSolana),
			TxID:        tx.Signature,
			EventIndex:  tip.Index,
			From:        tip.Tipper,
			To:          tip.Creator,
			RecipientID: tip.Creator,
			ContentID:   tip.Memo,
			Amount:      *uint256.NewInt(tip.TotalAmount),
			Memo:        tip.Memo,
			ChainSplit:  true,
		})

		tipLog := log.WithField("event_index", tip.Index)
		switch {
		case err != nil && rec == nil && !permanent(err):
			p.metrics.RecordChainError("submit")
			return res, fmt.Errorf("submit tip %d of %s: %w", tip.Index, tx.Signature, err)

		case err != nil:
			res.Rejected++
			tipLog.WithField("reason", domain.ErrorCode(err)).Warn("chain tip rejected")

		case rec.Status == domain.TipStatusSettled:
			res.Settled++
			if !rec.Split.Platform.Eq(uint256.NewInt(tip.PlatformFee)) || !rec.Split.Creator.Eq(uint256.NewInt(tip.CreatorAmount)) {
				res.Mismatches++
				p.metrics.RecordSplitMismatch()
				tipLog.WithFields(logrus.Fields{
					"tip_id":         rec.TipID,
					"chain_fee":      tip.PlatformFee,
					"computed_fee":   rec.Split.Platform.Dec(),
					"platform_bps":   rec.Fees.PlatformFeeBps,
					"chain_creator":  tip.CreatorAmount,
					"ledger_creator": rec.Split.Creator.Dec(),
				}).Warn("chain split differs from computed split")
			}
		}
	}

	return res, nil
}

// permanent reports whether err is a validation outcome rather than an
// infrastructure failure.
func permanent(err error) bool {
	switch {
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return false
	case errors.Is(err, domain.ErrPlatformWalletMissing):
		// Funds already moved on chain; settle once the wallet is configured.
		return false
	}
	return domain.ErrorCode(err) != "internal"
}

// retryGetTransaction fetches a transaction with exponential backoff.
// A freshly notified signature may not be visible yet at the client's commitment.
func (p *Processor) retryGetTransaction(ctx context.Context, signature string) (*solana.Transaction, error) {
	var lastErr error
	for attempt := 0; attempt < p.maxRetries; attempt++ {
		tx, err := p.rpc.GetTransaction(ctx, signature)
		if err == nil {
			return tx, nil
		}
		lastErr = err

		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		if attempt == p.maxRetries-1 {
			break
		}

		delay := p.retryDelay * time.Duration(1<<attempt)
		p.logger.WithFields(logrus.Fields{
			"signature": signature,
			"attempt":   attempt + 1,
			"delay":     delay,
		}).WithError(err).Debug("retrying getTransaction")

		select {
		case <-time.After(delay):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	return nil, lastErr
}
