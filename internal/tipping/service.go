// Package tipping wires the fee registry, the split calculator and the
// settlement ledger into the tip submission flow.
package tipping

import (
	"context"
	"fmt"

	"github.com/holiman/uint256"
	"github.com/sirupsen/logrus"

	"tip-settlement/internal/address"
	"tip-settlement/internal/domain"
	"tip-settlement/internal/feeconfig"
	"tip-settlement/internal/feesplit"
	"tip-settlement/internal/idhash"
	"tip-settlement/internal/logging"
	"tip-settlement/internal/settlement"
)

// TipRequest is an already verified transfer observed on a network.
type TipRequest struct {
	Network     string
	TxID        string
	EventIndex  int
	From        string
	To          string
	RecipientID string
	ContentID   string
	Amount      uint256.Int
	Memo        string
	// ChainSplit marks a transfer the tipping program already split into
	// the platform fee and the creator share. Custom fees are not applied
	// because no custom-fee leg moved on chain.
	ChainSplit bool
}

// Quote is the split a tip would receive under the current configuration.
type Quote struct {
	Network domain.Network
	Amount  uint256.Int
	Split   domain.SplitResult
	Fees    domain.FeeConfig
	Display QuoteDisplay
}

// QuoteDisplay holds the quote amounts in whole units of the native asset.
type QuoteDisplay struct {
	Symbol    string
	Amount    string
	Platform  string
	CustomFee string
	Creator   string
}

// Service runs registry -> calculator -> ledger for each tip.
type Service struct {
	registry *feeconfig.Registry
	ledger   *settlement.Ledger
	logger   logrus.FieldLogger
}

// NewService creates a tipping service.
func NewService(registry *feeconfig.Registry, ledger *settlement.Ledger, logger logrus.FieldLogger) *Service {
	return &Service{
		registry: registry,
		ledger:   ledger,
		logger:   logging.OrDiscard(logger),
	}
}

// Submit settles an observed tip. The tip id is derived from the network,
// transaction id and event index, so resubmitting the same transfer returns
// the original record. Requests whose transaction cannot be identified are
// refused without a record.
func (s *Service) Submit(ctx context.Context, req TipRequest) (*domain.TipRecord, error) {
	instr, err := s.instruction(req)
	if err != nil {
		return nil, err
	}

	if instr.Amount.IsZero() {
		return s.ledger.Reject(ctx, instr, domain.ErrInvalidAmount)
	}

	if req.RecipientID == "" {
		return s.ledger.Reject(ctx, instr, domain.ErrUnknownRecipient)
	}

	cfg := instr.Fees
	if !req.ChainSplit {
		cfg, err = s.registry.GetEffectiveConfig(ctx, req.RecipientID, req.ContentID)
		if err != nil {
			return nil, fmt.Errorf("get fee config: %w", err)
		}
		instr.Fees = cfg
	}

	split, err := feesplit.Compute(&instr.Amount, cfg)
	if err != nil {
		return s.ledger.Reject(ctx, instr, err)
	}

	s.logger.WithFields(logrus.Fields{
		"tip_id":      instr.TipID,
		"network":     instr.Network,
		"fee_version": cfg.Version,
	}).Debug("applying tip")

	return s.ledger.Apply(ctx, instr, split)
}

// Quote computes the split of amount for (recipientID, contentID) without
// recording anything.
func (s *Service) Quote(ctx context.Context, network string, recipientID, contentID string, amount uint256.Int) (*Quote, error) {
	n, err := domain.ParseNetwork(network)
	if err != nil {
		return nil, err
	}

	cfg, err := s.registry.GetEffectiveConfig(ctx, recipientID, contentID)
	if err != nil {
		return nil, fmt.Errorf("get fee config: %w", err)
	}

	split, err := feesplit.Compute(&amount, cfg)
	if err != nil {
		return nil, err
	}

	info, _ := n.Info()
	return &Quote{
		Network: n,
		Amount:  amount,
		Split:   split,
		Fees:    cfg,
		Display: QuoteDisplay{
			Symbol:    info.Symbol,
			Amount:    domain.FormatUnits(&amount, info.Decimals),
			Platform:  domain.FormatUnits(&split.Platform, info.Decimals),
			CustomFee: domain.FormatUnits(&split.CustomFee, info.Decimals),
			Creator:   domain.FormatUnits(&split.Creator, info.Decimals),
		},
	}, nil
}

// Ledger exposes the underlying ledger for lookups.
func (s *Service) Ledger() *settlement.Ledger {
	return s.ledger
}

// Registry exposes the underlying fee registry.
func (s *Service) Registry() *feeconfig.Registry {
	return s.registry
}

func (s *Service) instruction(req TipRequest) (*domain.TipInstruction, error) {
	n, err := domain.ParseNetwork(req.Network)
	if err != nil {
		return nil, err
	}
	txID, err := address.NormalizeTxID(n, req.TxID)
	if err != nil {
		return nil, err
	}
	if req.EventIndex < 0 {
		return nil, fmt.Errorf("%w: negative event index %d", domain.ErrInvalidTipID, req.EventIndex)
	}

	return &domain.TipInstruction{
		TipID:      idhash.ComputeTipID(string(n), txID, req.EventIndex),
		Network:    n,
		TxID:       txID,
		EventIndex: req.EventIndex,
		From:       req.From,
		To:         req.To,
		Amount:     req.Amount,
		Memo:       req.Memo,
		Fees: domain.FeeConfig{
			PlatformFeeBps: s.registry.PlatformFeeBps(),
			RecipientID:    req.RecipientID,
			ContentID:      req.ContentID,
		},
	}, nil
}
