package ingestion

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"

	"tip-settlement/internal/logging"
	"tip-settlement/internal/solana"
	"tip-settlement/internal/storage"
)

const (
	defaultPageSize      = 1000
	defaultMaxSignatures = 10000
)

// SourceID is the cursor key of a program's ingestion progress.
func SourceID(programID string) string {
	return "solana:" + programID
}

// Backfiller replays program history from the persisted cursor.
type Backfiller struct {
	rpc           solana.RPCClient
	processor     *Processor
	cursors       storage.IngestionCursorStore
	programID     string
	pageSize      int
	maxSignatures int
	logger        logrus.FieldLogger
}

// BackfillOptions contains configuration for creating a Backfiller.
type BackfillOptions struct {
	RPC           solana.RPCClient
	Processor     *Processor
	Cursors       storage.IngestionCursorStore
	ProgramID     string
	PageSize      int // Signatures per getSignaturesForAddress call. Default: 1000
	MaxSignatures int // Upper bound of history walked per run. Default: 10000
	Logger        logrus.FieldLogger
}

// NewBackfiller creates a new historical backfiller.
func NewBackfiller(opts BackfillOptions) *Backfiller {
	pageSize := opts.PageSize
	if pageSize <= 0 {
		pageSize = defaultPageSize
	}
	maxSignatures := opts.MaxSignatures
	if maxSignatures <= 0 {
		maxSignatures = defaultMaxSignatures
	}

	return &Backfiller{
		rpc:           opts.RPC,
		processor:     opts.Processor,
		cursors:       opts.Cursors,
		programID:     opts.ProgramID,
		pageSize:      pageSize,
		maxSignatures: maxSignatures,
		logger:        logging.OrDiscard(opts.Logger),
	}
}

// BackfillResult contains statistics from a backfill run.
type BackfillResult struct {
	Signatures int
	Tips       int
	Settled    int
	Rejected   int
	Skipped    int
	Truncated  bool
	Duration   time.Duration
}

// Run processes every signature newer than the cursor, oldest first,
// advancing the cursor after each one. It stops at the first retryable
// failure so the failed signature is picked up by the next run.
func (b *Backfiller) Run(ctx context.Context) (*BackfillResult, error) {
	start := time.Now()
	result := &BackfillResult{}
	sourceID := SourceID(b.programID)

	var until string
	cursor, err := b.cursors.Get(ctx, sourceID)
	switch {
	case err == nil:
		until = cursor.Signature
	case errors.Is(err, storage.ErrNotFound):
	default:
		return result, fmt.Errorf("load cursor: %w", err)
	}

	sigs, truncated, err := b.collect(ctx, until)
	if err != nil {
		return result, err
	}
	result.Truncated = truncated
	if truncated {
		b.logger.WithFields(logrus.Fields{
			"cursor": until,
			"limit":  b.maxSignatures,
		}).Warn("backfill history truncated, oldest signatures not replayed")
	}

	SortOldestFirst(sigs)

	for _, sig := range sigs {
		if sig.Err != nil {
			result.Skipped++
		} else {
			res, err := b.processor.ProcessSignature(ctx, sig.Signature)
			if err != nil {
				result.Duration = time.Since(start)
				return result, err
			}
			result.Tips += res.Tips
			result.Settled += res.Settled
			result.Rejected += res.Rejected
			if res.Skipped {
				result.Skipped++
			}
		}
		result.Signatures++

		if err := b.cursors.Set(ctx, &storage.IngestionCursor{
			SourceID:  sourceID,
			Slot:      sig.Slot,
			Signature: sig.Signature,
		}); err != nil {
			result.Duration = time.Since(start)
			return result, fmt.Errorf("save cursor: %w", err)
		}
	}

	result.Duration = time.Since(start)
	if result.Signatures > 0 {
		b.logger.WithFields(logrus.Fields{
			"signatures": result.Signatures,
			"tips":       result.Tips,
			"settled":    result.Settled,
			"rejected":   result.Rejected,
			"skipped":    result.Skipped,
			"duration":   result.Duration,
		}).Info("backfill complete")
	}
	return result, nil
}

// collect pages backwards from the newest signature down to until.
func (b *Backfiller) collect(ctx context.Context, until string) ([]solana.SignatureInfo, bool, error) {
	var (
		all    []solana.SignatureInfo
		before string
	)
	for {
		page, err := b.rpc.GetSignaturesForAddress(ctx, b.programID, &solana.SignaturesOpts{
			Before: before,
			Until:  until,
			Limit:  b.pageSize,
		})
		if err != nil {
			return nil, false, fmt.Errorf("get signatures: %w", err)
		}
		all = append(all, page...)

		if len(page) < b.pageSize && len(all) <= b.maxSignatures {
			return all, false, nil
		}
		if len(all) >= b.maxSignatures {
			return all[:b.maxSignatures], true, nil
		}
		before = page[len(page)-1].Signature
	}
}
