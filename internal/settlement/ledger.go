// Package settlement applies computed fee splits as atomic balance credits
// and keeps one terminal TipRecord per tip id.
//
// A tip moves pending -> settled or pending -> rejected. The pending state
// only exists in memory during Apply; the store sees terminal records only.
package settlement

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/holiman/uint256"
	"github.com/sirupsen/logrus"

	"tip-settlement/internal/address"
	"tip-settlement/internal/domain"
	"tip-settlement/internal/idhash"
	"tip-settlement/internal/logging"
	"tip-settlement/internal/observability"
	"tip-settlement/internal/storage"
)

// EventPublisher receives every newly settled tip.
type EventPublisher interface {
	Publish(ctx context.Context, ev *domain.SettlementEvent) error
}

// Ledger is the tip settlement state machine.
type Ledger struct {
	store     storage.TipLedgerStore
	wallets   map[domain.Network]string
	publisher EventPublisher
	logger    logrus.FieldLogger
	metrics   *observability.Metrics
	now       func() time.Time
	strict    bool
}

// Option configures a Ledger.
type Option func(*Ledger)

// WithLogger sets the logger.
func WithLogger(l logrus.FieldLogger) Option {
	return func(lg *Ledger) { lg.logger = l }
}

// WithMetrics sets the metrics sink.
func WithMetrics(m *observability.Metrics) Option {
	return func(lg *Ledger) { lg.metrics = m }
}

// WithClock overrides the clock used for record timestamps.
func WithClock(now func() time.Time) Option {
	return func(lg *Ledger) { lg.now = now }
}

// WithPublisher sends a SettlementEvent for each new settlement.
// Publish failures are logged and counted but never undo a settlement.
func WithPublisher(p EventPublisher) Option {
	return func(lg *Ledger) { lg.publisher = p }
}

// WithStrictDuplicates makes Apply return ErrDuplicateTip alongside the
// prior record instead of a nil error.
func WithStrictDuplicates() Option {
	return func(lg *Ledger) { lg.strict = true }
}

// NewLedger creates a ledger crediting platform fees to platformWallets.
// Wallets must already be canonical for their network.
func NewLedger(store storage.TipLedgerStore, platformWallets map[domain.Network]string, opts ...Option) *Ledger {
	wallets := make(map[domain.Network]string, len(platformWallets))
	for n, w := range platformWallets {
		wallets[n] = w
	}
	lg := &Ledger{
		store:   store,
		wallets: wallets,
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(lg)
	}
	lg.logger = logging.OrDiscard(lg.logger)
	return lg
}

// Apply settles instr with split. It either credits every non-zero leg and
// returns the settled record, or credits nothing.
//
// A tip id that is already settled returns the stored record unchanged and
// moves no funds. A tip id that is already rejected returns the stored
// record with ErrTipRejected. A validation failure is persisted as a
// rejected record and returned together with the cause. A storage failure
// persists nothing, so the caller may retry with the same tip id.
func (l *Ledger) Apply(ctx context.Context, instr *domain.TipInstruction, split domain.SplitResult) (*domain.TipRecord, error) {
	if instr == nil || !idhash.IsTipID(instr.TipID) {
		return nil, domain.ErrInvalidTipID
	}
	start := l.now()

	existing, err := l.store.GetByID(ctx, instr.TipID)
	switch {
	case err == nil:
		return l.terminal(existing)
	case !errors.Is(err, storage.ErrNotFound):
		return nil, fmt.Errorf("get tip record: %w", err)
	}

	rec := domain.RecordFromInstruction(instr, start.UnixMilli())
	rec.Split = split

	postings, err := l.prepare(rec)
	if err != nil {
		if errors.Is(err, domain.ErrPlatformWalletMissing) {
			// Operator configuration, not the tip, is at fault: keep the
			// tip id free so a retry after the fix settles.
			l.logger.WithFields(logrus.Fields{
				"tip_id":  rec.TipID,
				"network": rec.Network,
			}).WithError(err).Error("platform wallet not configured")
			return nil, err
		}
		return l.reject(ctx, rec, err)
	}

	rec.Status = domain.TipStatusSettled
	rec.SettledAt = l.now().UnixMilli()
	for _, p := range postings {
		p.CreatedAt = rec.SettledAt
	}

	if err := l.store.Settle(ctx, rec, postings); err != nil {
		switch {
		case errors.Is(err, storage.ErrDuplicateKey):
			return l.reload(ctx, rec.TipID)
		case errors.Is(err, domain.ErrAmountOverflow):
			rec.Status = domain.TipStatusPending
			rec.SettledAt = 0
			return l.reject(ctx, rec, err)
		}
		l.logger.WithFields(logrus.Fields{
			"tip_id":  rec.TipID,
			"network": rec.Network,
		}).WithError(err).Error("settlement commit failed")
		return nil, fmt.Errorf("settle tip: %w", err)
	}

	l.metrics.RecordSettled(string(rec.Network), l.now().Sub(start))
	l.logger.WithFields(logrus.Fields{
		"tip_id":  rec.TipID,
		"network": rec.Network,
		"status":  rec.Status,
		"amount":  rec.Amount.Dec(),
	}).Info("tip settled")

	l.publish(ctx, rec, postings)
	return rec, nil
}

// Reject records instr as rejected with cause, without computing a split.
// It returns the stored record and cause. If the tip id is already
// terminal the stored record wins.
func (l *Ledger) Reject(ctx context.Context, instr *domain.TipInstruction, cause error) (*domain.TipRecord, error) {
	if instr == nil || !idhash.IsTipID(instr.TipID) {
		return nil, domain.ErrInvalidTipID
	}
	existing, err := l.store.GetByID(ctx, instr.TipID)
	switch {
	case err == nil:
		return l.terminal(existing)
	case !errors.Is(err, storage.ErrNotFound):
		return nil, fmt.Errorf("get tip record: %w", err)
	}
	return l.reject(ctx, domain.RecordFromInstruction(instr, l.now().UnixMilli()), cause)
}

// Get returns the record of a tip. Callers that timed out on Apply use it
// to learn whether the tip settled.
func (l *Ledger) Get(ctx context.Context, tipID string) (*domain.TipRecord, error) {
	return l.store.GetByID(ctx, tipID)
}

// Postings returns the credits written for a tip.
func (l *Ledger) Postings(ctx context.Context, tipID string) ([]*domain.Posting, error) {
	return l.store.GetPostings(ctx, tipID)
}

// Balance returns the credited balance of an address.
func (l *Ledger) Balance(ctx context.Context, network domain.Network, addr string) (*domain.Balance, error) {
	canonical, err := address.Normalize(network, addr)
	if err != nil {
		return nil, err
	}
	return l.store.GetBalance(ctx, network, canonical)
}

// Balances returns every credited balance on a network.
func (l *Ledger) Balances(ctx context.Context, network domain.Network) ([]*domain.Balance, error) {
	return l.store.ListBalances(ctx, network)
}

// TipsTo returns the most recent tips paid to an address.
func (l *Ledger) TipsTo(ctx context.Context, network domain.Network, addr string, limit int) ([]*domain.TipRecord, error) {
	canonical, err := address.Normalize(network, addr)
	if err != nil {
		return nil, err
	}
	return l.store.GetByToAddress(ctx, network, canonical, limit)
}

// prepare validates rec, canonicalizes its parties and builds one posting
// per non-zero leg.
func (l *Ledger) prepare(rec *domain.TipRecord) ([]*domain.Posting, error) {
	if rec.Amount.IsZero() {
		return nil, domain.ErrInvalidAmount
	}
	if !rec.Network.IsValid() {
		return nil, fmt.Errorf("%w: %q", domain.ErrUnsupportedNetwork, rec.Network)
	}
	if len(rec.Memo) > domain.MaxMemoBytes {
		return nil, fmt.Errorf("%w: %d bytes", domain.ErrMemoTooLong, len(rec.Memo))
	}

	from, err := address.NormalizeSigner(rec.Network, rec.From)
	if err != nil {
		return nil, fmt.Errorf("from: %w", err)
	}
	to, err := address.Normalize(rec.Network, rec.To)
	if err != nil {
		return nil, fmt.Errorf("to: %w", err)
	}
	rec.From, rec.To = from, to

	if !rec.Split.Balances(&rec.Amount) {
		l.metrics.RecordSplitInvariantViolation()
		l.logger.WithFields(logrus.Fields{
			"tip_id":     rec.TipID,
			"network":    rec.Network,
			"alert":      "split_invariant",
			"amount":     rec.Amount.Dec(),
			"platform":   rec.Split.Platform.Dec(),
			"custom_fee": rec.Split.CustomFee.Dec(),
			"creator":    rec.Split.Creator.Dec(),
		}).Error("split does not sum to tip amount")
		return nil, domain.ErrSplitInvariantViolation
	}

	legs := []struct {
		kind   domain.PostingKind
		amount uint256.Int
		addr   func() (string, error)
	}{
		{domain.PostingPlatformFee, rec.Split.Platform, func() (string, error) { return l.platformWallet(rec.Network) }},
		{domain.PostingCustomFee, rec.Split.CustomFee, func() (string, error) { return customFeeAddress(rec) }},
		{domain.PostingCreator, rec.Split.Creator, func() (string, error) { return to, nil }},
	}

	var postings []*domain.Posting
	for _, leg := range legs {
		if leg.amount.IsZero() {
			continue
		}
		addr, err := leg.addr()
		if err != nil {
			return nil, err
		}
		postings = append(postings, &domain.Posting{
			PostingID: uuid.NewString(),
			TipID:     rec.TipID,
			Network:   rec.Network,
			Address:   addr,
			Kind:      leg.kind,
			Amount:    leg.amount,
		})
	}
	return postings, nil
}

func (l *Ledger) platformWallet(n domain.Network) (string, error) {
	w, ok := l.wallets[n]
	if !ok || w == "" {
		return "", fmt.Errorf("%w: %s", domain.ErrPlatformWalletMissing, n)
	}
	return w, nil
}

func customFeeAddress(rec *domain.TipRecord) (string, error) {
	if rec.Fees.CustomFeeRecipient == "" {
		return rec.To, nil
	}
	addr, err := address.Normalize(rec.Network, rec.Fees.CustomFeeRecipient)
	if err != nil {
		return "", fmt.Errorf("custom fee recipient: %w", err)
	}
	return addr, nil
}

// reject persists rec as rejected and returns it with cause.
func (l *Ledger) reject(ctx context.Context, rec *domain.TipRecord, cause error) (*domain.TipRecord, error) {
	rec.Status = domain.TipStatusRejected
	rec.Reason = domain.ErrorCode(cause)

	if err := l.store.Reject(ctx, rec); err != nil {
		if errors.Is(err, storage.ErrDuplicateKey) {
			return l.reload(ctx, rec.TipID)
		}
		return nil, fmt.Errorf("record rejection (%v): %w", cause, err)
	}

	l.metrics.RecordRejected(string(rec.Network), rec.Reason)
	l.logger.WithFields(logrus.Fields{
		"tip_id":  rec.TipID,
		"network": rec.Network,
		"status":  rec.Status,
		"reason":  rec.Reason,
	}).WithError(cause).Warn("tip rejected")
	return rec, cause
}

// reload returns the record written by a concurrent caller.
func (l *Ledger) reload(ctx context.Context, tipID string) (*domain.TipRecord, error) {
	existing, err := l.store.GetByID(ctx, tipID)
	if err != nil {
		return nil, fmt.Errorf("reload tip record: %w", err)
	}
	return l.terminal(existing)
}

// terminal maps an already stored record to the result of a repeated call.
func (l *Ledger) terminal(rec *domain.TipRecord) (*domain.TipRecord, error) {
	l.metrics.RecordDuplicate(string(rec.Network))
	log := l.logger.WithFields(logrus.Fields{
		"tip_id":  rec.TipID,
		"network": rec.Network,
		"status":  rec.Status,
	})

	switch rec.Status {
	case domain.TipStatusSettled:
		log.Debug("duplicate tip ignored")
		if l.strict {
			return rec, domain.ErrDuplicateTip
		}
		return rec, nil
	case domain.TipStatusRejected:
		log.WithField("reason", rec.Reason).Debug("tip previously rejected")
		return rec, fmt.Errorf("%w: %s", domain.ErrTipRejected, rec.Reason)
	}
	return nil, fmt.Errorf("tip %s stored in non-terminal status %q", rec.TipID, rec.Status)
}

func (l *Ledger) publish(ctx context.Context, rec *domain.TipRecord, postings []*domain.Posting) {
	if l.publisher == nil {
		return
	}
	if err := l.publisher.Publish(ctx, domain.NewSettlementEvent(rec, postings)); err != nil {
		l.metrics.RecordAnalyticsError()
		l.logger.WithField("tip_id", rec.TipID).WithError(err).Warn("publish settlement event failed")
	}
}

// StorePublisher writes settlement events to an analytics store.
type StorePublisher struct {
	store storage.SettlementEventStore
}

// NewStorePublisher creates a publisher backed by store.
func NewStorePublisher(store storage.SettlementEventStore) *StorePublisher {
	return &StorePublisher{store: store}
}

// Publish appends ev to the analytics store.
func (p *StorePublisher) Publish(ctx context.Context, ev *domain.SettlementEvent) error {
	return p.store.InsertBulk(ctx, []*domain.SettlementEvent{ev})
}
