// Package reconcile repairs local-state invariant violations left behind by
// crashes and interrupted sends. Both passes are idempotent: re-running them
// against already-repaired state changes nothing.
package reconcile

import (
	"time"

	"go.uber.org/zap"

	"github.com/chainletter/chainletter/store"
)

// DefaultOrphanAge is how long a group message may sit in sending state
// before the orphan pass resolves it.
const DefaultOrphanAge = 5 * time.Minute

// Reconciler runs the repair passes against one account's store
type Reconciler struct {
	store     *store.Store
	orphanAge time.Duration
	logger    *zap.SugaredLogger

	timeNow func() time.Time
}

// New creates a reconciler. orphanAge falls back to DefaultOrphanAge when
// non-positive.
func New(st *store.Store, orphanAge time.Duration, logger *zap.SugaredLogger) *Reconciler {
	if orphanAge <= 0 {
		orphanAge = DefaultOrphanAge
	}
	return &Reconciler{store: st, orphanAge: orphanAge, timeNow: time.Now, logger: logger}
}

// Result counts what a full reconciliation pass changed
type Result struct {
	Repaired  int // corrupted messages rewritten to the placeholder
	Failed    int // orphans resolved to failed
	Confirmed int // orphans resolved to confirmed (full or partial)
}

// Run executes both repair passes
func (r *Reconciler) Run() (*Result, error) {
	result := &Result{}

	repaired, err := r.RepairCorrupted()
	if err != nil {
		return nil, err
	}
	result.Repaired = repaired

	failed, confirmed, err := r.ResolveOrphans()
	if err != nil {
		return nil, err
	}
	result.Failed = failed
	result.Confirmed = confirmed
	return result, nil
}

// RepairCorrupted rewrites messages whose content equals their ciphertext
// verbatim — ciphertext accidentally surfaced as plaintext — back to the
// decrypt placeholder. Messages flagged as explicitly decrypted are never
// touched, even if their plaintext happens to equal the ciphertext.
func (r *Reconciler) RepairCorrupted() (int, error) {
	corrupted, err := r.store.CorruptedMessages()
	if err != nil {
		return 0, err
	}

	for _, m := range corrupted {
		if err := r.store.RewriteContent(m.ID, store.DecryptPlaceholder); err != nil {
			return 0, err
		}
		if r.logger != nil {
			r.logger.Infow("Repaired corrupted message content", "id", m.ID)
		}
	}
	return len(corrupted), nil
}

// ResolveOrphans moves every group message stuck in sending state past the
// age threshold to a terminal status, derived from what the interrupted
// fanout managed to record: no broadcasts succeeded means failed; every
// recipient got a transaction means confirmed; anything in between is a
// partial confirm. Returns (failed, confirmed) counts.
func (r *Reconciler) ResolveOrphans() (int, int, error) {
	cutoff := r.timeNow().Add(-r.orphanAge)
	stuck, err := r.store.StuckSending(cutoff)
	if err != nil {
		return 0, 0, err
	}

	var failed, confirmed int
	for _, gm := range stuck {
		switch {
		case len(gm.TxIDs) == 0:
			gm.Status = store.StatusFailed
			failed++
		case len(gm.TxIDs) >= len(gm.Recipients):
			gm.Status = store.StatusConfirmed
			gm.Confirmed = true
			confirmed++
		default:
			gm.Status = store.StatusPartial
			gm.Confirmed = true
			confirmed++
		}

		if err := r.store.PutGroupMessage(gm); err != nil {
			return failed, confirmed, err
		}
		if r.logger != nil {
			r.logger.Infow("Resolved orphaned group message",
				"id", gm.ID,
				"status", gm.Status,
				"delivered", len(gm.TxIDs),
				"recipients", len(gm.Recipients))
		}
	}
	return failed, confirmed, nil
}
