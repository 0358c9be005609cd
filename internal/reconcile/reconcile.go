// Package reconcile compares ledger balances with the analytics projection of
// settled tips. The ledger is authoritative; the analytics store is written
// best-effort, so a discrepancy points at a lost or replayed event.
package reconcile

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/holiman/uint256"
	"github.com/sirupsen/logrus"

	"tip-settlement/internal/domain"
	"tip-settlement/internal/logging"
	"tip-settlement/internal/observability"
	"tip-settlement/internal/storage"
)

// BalanceSource lists the ledger balances of a network.
type BalanceSource interface {
	Balances(ctx context.Context, network domain.Network) ([]*domain.Balance, error)
}

// Discrepancy is an address whose ledger and analytics sums differ.
// A side with no entry for the address counts as zero.
type Discrepancy struct {
	Network   domain.Network
	Address   string
	Ledger    uint256.Int
	Analytics uint256.Int
}

// NetworkReport is the outcome of reconciling one network.
type NetworkReport struct {
	Network        domain.Network
	Addresses      int   // distinct addresses on either side
	AnalyticsTips  int64 // settled tips known to analytics
	LedgerTotal    uint256.Int
	AnalyticsTotal uint256.Int
	Discrepancies  []Discrepancy
}

// Report contains the results of a reconciliation run.
type Report struct {
	GeneratedAt   time.Time
	Networks      []NetworkReport
	Discrepancies int
}

// Clean reports whether no network has discrepancies.
func (r *Report) Clean() bool {
	return r.Discrepancies == 0
}

// Reconciler compares ledger balances with analytics totals.
type Reconciler struct {
	ledger    BalanceSource
	analytics storage.SettlementEventStore
	networks  []domain.Network
	logger    logrus.FieldLogger
	metrics   *observability.Metrics
	now       func() time.Time
}

// Options contains configuration for creating a Reconciler.
type Options struct {
	Ledger    BalanceSource
	Analytics storage.SettlementEventStore
	Networks  []domain.Network // Default: every supported network
	Logger    logrus.FieldLogger
	Metrics   *observability.Metrics
	Now       func() time.Time
}

// New creates a Reconciler.
func New(opts Options) *Reconciler {
	networks := opts.Networks
	if len(networks) == 0 {
		networks = domain.Networks()
	}
	now := opts.Now
	if now == nil {
		now = time.Now
	}
	return &Reconciler{
		ledger:    opts.Ledger,
		analytics: opts.Analytics,
		networks:  networks,
		logger:    logging.OrDiscard(opts.Logger),
		metrics:   opts.Metrics,
		now:       now,
	}
}

// Run reconciles every configured network.
func (r *Reconciler) Run(ctx context.Context) (*Report, error) {
	report := &Report{GeneratedAt: r.now().UTC()}

	for _, n := range r.networks {
		nr, err := r.RunNetwork(ctx, n)
		if err != nil {
			return nil, err
		}
		report.Networks = append(report.Networks, *nr)
		report.Discrepancies += len(nr.Discrepancies)
	}

	return report, nil
}

// RunNetwork reconciles a single network.
func (r *Reconciler) RunNetwork(ctx context.Context, n domain.Network) (*NetworkReport, error) {
	balances, err := r.ledger.Balances(ctx, n)
	if err != nil {
		return nil, fmt.Errorf("list %s balances: %w", n, err)
	}
	totals, err := r.analytics.TotalsByAddress(ctx, n)
	if err != nil {
		return nil, fmt.Errorf("sum %s analytics: %w", n, err)
	}
	count, err := r.analytics.CountByNetwork(ctx, n)
	if err != nil {
		return nil, fmt.Errorf("count %s analytics: %w", n, err)
	}

	ledger := make(map[string]uint256.Int, len(balances))
	for _, b := range balances {
		ledger[b.Address] = b.Credited
	}
	analytics := make(map[string]uint256.Int, len(totals))
	for _, t := range totals {
		analytics[t.Address] = t.Total
	}

	addresses := make([]string, 0, len(ledger)+len(analytics))
	for a := range ledger {
		addresses = append(addresses, a)
	}
	for a := range analytics {
		if _, ok := ledger[a]; !ok {
			addresses = append(addresses, a)
		}
	}
	sort.Strings(addresses)

	nr := &NetworkReport{Network: n, Addresses: len(addresses), AnalyticsTips: count}
	for _, a := range addresses {
		l, an := ledger[a], analytics[a]
		nr.LedgerTotal.Add(&nr.LedgerTotal, &l)
		nr.AnalyticsTotal.Add(&nr.AnalyticsTotal, &an)
		if !l.Eq(&an) {
			nr.Discrepancies = append(nr.Discrepancies, Discrepancy{Network: n, Address: a, Ledger: l, Analytics: an})
		}
	}

	r.metrics.RecordReconcile(string(n), len(nr.Discrepancies))

	log := r.logger.WithFields(logrus.Fields{
		"network":       n,
		"addresses":     nr.Addresses,
		"discrepancies": len(nr.Discrepancies),
	})
	if len(nr.Discrepancies) > 0 {
		log.Warn("ledger and analytics disagree")
	} else {
		log.Info("network reconciled")
	}

	return nr, nil
}
