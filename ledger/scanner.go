package ledger

import (
	"context"

	"go.uber.org/zap"

	"github.com/chainletter/chainletter/errors"
)

// Scanner is the paginated, backfilling read primitive over a Client.
// It keeps no state between calls; cursors are owned by the caller.
type Scanner struct {
	client   Client
	pageSize int
	maxOps   int // total-operations ceiling per backfill
	logger   *zap.SugaredLogger
}

// NewScanner creates a scanner. pageSize and maxOps fall back to sane values
// when non-positive.
func NewScanner(client Client, pageSize, maxOps int, logger *zap.SugaredLogger) *Scanner {
	if pageSize <= 0 {
		pageSize = 100
	}
	if maxOps <= 0 {
		maxOps = 2000
	}
	return &Scanner{client: client, pageSize: pageSize, maxOps: maxOps, logger: logger}
}

// FetchHistory fetches a single page of account history, newest-first.
func (s *Scanner) FetchHistory(ctx context.Context, account string, cursor int64, filter *Filter, limit int) ([]Operation, error) {
	if limit <= 0 {
		limit = s.pageSize
	}
	return s.client.AccountHistory(ctx, account, cursor, filter, limit)
}

// Backfill accumulates history pages walking backwards from the latest
// operation, until one of:
//
//	(a) the total-operations ceiling is hit,
//	(b) an empty page is returned (beginning of history),
//	(c) the computed next cursor fails the monotonic-decrease check,
//	    in which case the scan aborts with ErrInvalidCursor.
//
// Results are newest-first across the whole accumulation.
func (s *Scanner) Backfill(ctx context.Context, account string, filter *Filter) ([]Operation, error) {
	return s.fetchUntil(ctx, account, filter, 0)
}

// FetchSince returns every operation with SeqID strictly greater than
// sinceSeq, walking back from the latest page until the boundary is crossed
// or a backfill stop condition fires. Pass sinceSeq = 0 for a full rescan.
func (s *Scanner) FetchSince(ctx context.Context, account string, sinceSeq int64, filter *Filter) ([]Operation, error) {
	ops, err := s.fetchUntil(ctx, account, filter, sinceSeq)
	if err != nil {
		return nil, err
	}
	// Trim anything at or below the boundary; pages are fetched whole.
	trimmed := ops[:0]
	for _, op := range ops {
		if op.SeqID > sinceSeq {
			trimmed = append(trimmed, op)
		}
	}
	return trimmed, nil
}

// fetchUntil walks history pages backwards until operations at or below
// floorSeq appear (floorSeq = 0 means walk to the beginning), subject to the
// backfill stop conditions.
func (s *Scanner) fetchUntil(ctx context.Context, account string, filter *Filter, floorSeq int64) ([]Operation, error) {
	var accumulated []Operation
	cursor := CursorLatest

	for {
		page, err := s.client.AccountHistory(ctx, account, cursor, filter, s.pageSize)
		if err != nil {
			return nil, err
		}
		if len(page) == 0 {
			// Beginning of history
			return accumulated, nil
		}

		accumulated = append(accumulated, page...)

		minSeq := page[0].SeqID
		for _, op := range page[1:] {
			if op.SeqID < minSeq {
				minSeq = op.SeqID
			}
		}

		if minSeq <= floorSeq {
			return accumulated, nil
		}
		if len(accumulated) >= s.maxOps {
			if s.logger != nil {
				s.logger.Debugw("Backfill ceiling reached",
					"account", account,
					"ops", len(accumulated),
					"ceiling", s.maxOps)
			}
			return accumulated, nil
		}
		if minSeq == 0 {
			// Oldest operation reached; nothing before sequence 0
			return accumulated, nil
		}

		next := minSeq - 1
		// Defensive check: a next cursor that fails to strictly decrease
		// would loop forever. Abort the scan instead.
		if next < 0 || (cursor != CursorLatest && next >= cursor) {
			return nil, errors.Wrapf(errors.ErrInvalidCursor,
				"backfill computed cursor %d from cursor %d", next, cursor)
		}
		cursor = next
	}
}
