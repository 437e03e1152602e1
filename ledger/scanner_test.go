package ledger

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/chainletter/chainletter/errors"
)

// fakeClient serves a fixed, newest-first history slice page by page,
// honoring the cursor semantics of the real client.
type fakeClient struct {
	ops   []Operation // newest-first
	calls int
}

func (f *fakeClient) AccountHistory(_ context.Context, _ string, cursor int64, filter *Filter, limit int) ([]Operation, error) {
	f.calls++
	var page []Operation
	for _, op := range f.ops {
		if cursor != CursorLatest && op.SeqID > cursor {
			continue
		}
		if !filter.Matches(op.Kind) {
			continue
		}
		page = append(page, op)
		if len(page) == limit {
			break
		}
	}
	return page, nil
}

func transferAt(seq int64) Operation {
	return Operation{
		SeqID:     seq,
		BlockNum:  seq * 10,
		TxID:      "tx",
		Timestamp: time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC).Add(time.Duration(seq) * time.Minute),
		Kind:      OpTransfer,
		Transfer:  &TransferOp{From: "alice", To: "bob", Memo: "#x"},
	}
}

// history builds a newest-first slice of transfers with the given seq ids
func history(seqs ...int64) []Operation {
	ops := make([]Operation, 0, len(seqs))
	for _, s := range seqs {
		ops = append(ops, transferAt(s))
	}
	return ops
}

func TestFetchHistorySinglePage(t *testing.T) {
	client := &fakeClient{ops: history(30, 20, 10)}
	s := NewScanner(client, 10, 100, nil)

	ops, err := s.FetchHistory(context.Background(), "alice", CursorLatest, nil, 0)
	require.NoError(t, err)
	assert.Len(t, ops, 3)
	assert.Equal(t, int64(30), ops[0].SeqID)
}

func TestBackfillWalksToBeginning(t *testing.T) {
	client := &fakeClient{ops: history(50, 40, 30, 20, 10, 0)}
	s := NewScanner(client, 2, 100, nil)

	ops, err := s.Backfill(context.Background(), "alice", nil)
	require.NoError(t, err)
	assert.Len(t, ops, 6)
	// Newest-first across accumulated pages
	assert.Equal(t, int64(50), ops[0].SeqID)
	assert.Equal(t, int64(0), ops[5].SeqID)
	assert.GreaterOrEqual(t, client.calls, 3)
}

func TestBackfillStopsAtCeiling(t *testing.T) {
	client := &fakeClient{ops: history(9, 8, 7, 6, 5, 4, 3, 2, 1)}
	s := NewScanner(client, 3, 6, nil)

	ops, err := s.Backfill(context.Background(), "alice", nil)
	require.NoError(t, err)
	assert.Len(t, ops, 6)
}

func TestBackfillStopsOnEmptyPage(t *testing.T) {
	client := &fakeClient{ops: nil}
	s := NewScanner(client, 10, 100, nil)

	ops, err := s.Backfill(context.Background(), "alice", nil)
	require.NoError(t, err)
	assert.Empty(t, ops)
	assert.Equal(t, 1, client.calls)
}

func TestFetchSinceTrimsBoundary(t *testing.T) {
	client := &fakeClient{ops: history(50, 40, 30, 20, 10)}
	s := NewScanner(client, 2, 100, nil)

	ops, err := s.FetchSince(context.Background(), "alice", 20, nil)
	require.NoError(t, err)
	require.Len(t, ops, 3)
	for _, op := range ops {
		assert.Greater(t, op.SeqID, int64(20))
	}
}

func TestFetchSinceFullRescan(t *testing.T) {
	client := &fakeClient{ops: history(5, 3, 1)}
	s := NewScanner(client, 10, 100, nil)

	ops, err := s.FetchSince(context.Background(), "alice", 0, nil)
	require.NoError(t, err)
	assert.Len(t, ops, 3)
}

// stuckClient returns the same page regardless of cursor, simulating an
// endpoint that ignores pagination. The scanner must abort, not loop.
type stuckClient struct{}

func (stuckClient) AccountHistory(_ context.Context, _ string, cursor int64, _ *Filter, _ int) ([]Operation, error) {
	return history(10, 9), nil
}

func TestBackfillAbortsOnNonDecreasingCursor(t *testing.T) {
	s := NewScanner(stuckClient{}, 2, 1000, nil)

	_, err := s.Backfill(context.Background(), "alice", nil)
	require.Error(t, err)
	assert.True(t, errors.Is(err, errors.ErrInvalidCursor))
}

func TestScanIsOrderInsensitive(t *testing.T) {
	// Same operations, shuffled within the page: FetchSince must return the
	// same set either way.
	a := &fakeClient{ops: history(30, 20, 10)}
	b := &fakeClient{ops: []Operation{transferAt(10), transferAt(30), transferAt(20)}}

	sa := NewScanner(a, 10, 100, nil)
	sb := NewScanner(b, 10, 100, nil)

	opsA, err := sa.FetchSince(context.Background(), "alice", 15, nil)
	require.NoError(t, err)
	opsB, err := sb.FetchSince(context.Background(), "alice", 15, nil)
	require.NoError(t, err)

	seqs := func(ops []Operation) map[int64]bool {
		m := map[int64]bool{}
		for _, op := range ops {
			m[op.SeqID] = true
		}
		return m
	}
	assert.Equal(t, seqs(opsA), seqs(opsB))
}
