package groups

import (
	"context"
	"sync"

	"go.uber.org/zap"

	"github.com/chainletter/chainletter/errors"
	"github.com/chainletter/chainletter/ledger"
	"github.com/chainletter/chainletter/store"
)

// HistoryScanner is the backfilling read primitive the resolver scans
// histories with, satisfied by *ledger.Scanner.
type HistoryScanner interface {
	Backfill(ctx context.Context, account string, filter *ledger.Filter) ([]ledger.Operation, error)
}

// Options bounds the discovery scans against pathological member graphs
type Options struct {
	ScanBatchSize int // concurrent member scans per batch
	MaxIterations int // chain-expansion safety bound
	MaxOpsScanned int // total-operations ceiling across all tiers
}

func (o *Options) fill() {
	if o.ScanBatchSize <= 0 {
		o.ScanBatchSize = 5
	}
	if o.MaxIterations <= 0 {
		o.MaxIterations = 20
	}
	if o.MaxOpsScanned <= 0 {
		o.MaxOpsScanned = 10000
	}
}

// Resolver discovers the groups one account belongs to across three scan
// tiers of increasing cost: the account's own history, the histories of
// accounts that sent it encrypted transfers, and a breadth-first expansion
// over members of groups found so far.
type Resolver struct {
	scanner HistoryScanner
	store   *store.Store
	account string
	opts    Options
	logger  *zap.SugaredLogger
}

// NewResolver creates a resolver for the store's account identity
func NewResolver(scanner HistoryScanner, st *store.Store, account string, opts Options, logger *zap.SugaredLogger) *Resolver {
	opts.fill()
	return &Resolver{scanner: scanner, store: st, account: account, opts: opts, logger: logger}
}

var controlFilter = &ledger.Filter{Kinds: []ledger.OpKind{ledger.OpCustomJSON}}
var transferFilter = &ledger.Filter{Kinds: []ledger.OpKind{ledger.OpTransfer}}

// Resolve runs full discovery and persists the result: the latest snapshot of
// every group the account belongs to, plus leave tombstones. Previously
// persisted snapshots seed the merge, so a partial run can only move group
// versions forward. Individual scan failures degrade to partial results; only
// storage failures propagate.
func (r *Resolver) Resolve(ctx context.Context) ([]*store.Group, error) {
	tombstones, err := r.store.LeftGroups()
	if err != nil {
		return nil, errors.Wrap(err, "load leave tombstones")
	}
	stored, err := r.store.Groups()
	if err != nil {
		return nil, errors.Wrap(err, "load stored groups")
	}

	st := newState(r.account, tombstones)
	st.seed(stored)
	budget := r.opts.MaxOpsScanned

	// Tier 1: the account's own control-operation history
	budget -= r.scanControls(ctx, st, r.account)

	// Tier 2: accounts that sent this account encrypted transfers
	senders, scanned := r.encryptedSenders(ctx)
	budget -= scanned
	visited := map[string]bool{r.account: true}
	budget = r.scanBatched(ctx, st, senders, visited, budget)

	// Tier 3: chain expansion over discovered members
	budget = r.expand(ctx, st, visited, budget)

	if budget <= 0 && r.logger != nil {
		r.logger.Warnw("Group discovery hit operations ceiling",
			"account", r.account,
			"ceiling", r.opts.MaxOpsScanned)
	}

	groups := st.groups()
	if err := r.persist(st, tombstones, groups); err != nil {
		return nil, err
	}
	return groups, nil
}

// expand runs the breadth-first tier: seed with every known member, scan in
// bounded batches, and enqueue members of any snapshot that improved.
func (r *Resolver) expand(ctx context.Context, st *state, visited map[string]bool, budget int) int {
	queue := st.peers()

	for iter := 0; iter < r.opts.MaxIterations && len(queue) > 0 && budget > 0; iter++ {
		n := r.opts.ScanBatchSize
		if n > len(queue) {
			n = len(queue)
		}
		batch := queue[:n]
		queue = queue[n:]

		budget = r.scanBatched(ctx, st, batch, visited, budget)

		for _, peer := range st.peers() {
			if !visited[peer] && !contains(queue, peer) {
				queue = append(queue, peer)
			}
		}
	}
	return budget
}

// scanBatched scans candidate histories in batches of ScanBatchSize,
// concurrent within a batch and sequential across batches, applying every
// discovered control operation. Returns the remaining operations budget.
func (r *Resolver) scanBatched(ctx context.Context, st *state, candidates []string, visited map[string]bool, budget int) int {
	var pending []string
	for _, c := range candidates {
		if c == "" || visited[c] {
			continue
		}
		visited[c] = true
		pending = append(pending, c)
	}

	for start := 0; start < len(pending) && budget > 0; start += r.opts.ScanBatchSize {
		end := start + r.opts.ScanBatchSize
		if end > len(pending) {
			end = len(pending)
		}
		batch := pending[start:end]

		results := make([][]ledger.Operation, len(batch))
		var wg sync.WaitGroup
		for i, account := range batch {
			wg.Add(1)
			go func(i int, account string) {
				defer wg.Done()
				ops, err := r.scanner.Backfill(ctx, account, controlFilter)
				if err != nil {
					if r.logger != nil {
						r.logger.Debugw("Member history scan failed",
							"account", account,
							"error", err)
					}
					return
				}
				results[i] = ops
			}(i, account)
		}
		wg.Wait()

		for _, ops := range results {
			budget -= len(ops)
			r.applyControls(st, ops)
		}
	}
	return budget
}

// scanControls scans one account's control history and applies it, returning
// the number of operations consumed.
func (r *Resolver) scanControls(ctx context.Context, st *state, account string) int {
	ops, err := r.scanner.Backfill(ctx, account, controlFilter)
	if err != nil {
		if r.logger != nil {
			r.logger.Debugw("Control history scan failed",
				"account", account,
				"error", err)
		}
		return 0
	}
	r.applyControls(st, ops)
	return len(ops)
}

func (r *Resolver) applyControls(st *state, ops []ledger.Operation) {
	for _, op := range ops {
		ctrl, err := ParseControl(op)
		if err != nil {
			if !errors.Is(err, errNotControl) && r.logger != nil {
				r.logger.Debugw("Skipping malformed control operation",
					"tx", op.TxID,
					"error", err)
			}
			continue
		}
		st.observe(ctrl)
	}
}

// encryptedSenders scans the account's transfer history for incoming
// encrypted memos and returns the distinct senders plus operations consumed.
func (r *Resolver) encryptedSenders(ctx context.Context) ([]string, int) {
	ops, err := r.scanner.Backfill(ctx, r.account, transferFilter)
	if err != nil {
		if r.logger != nil {
			r.logger.Debugw("Sender scan failed", "account", r.account, "error", err)
		}
		return nil, 0
	}

	seen := map[string]bool{}
	var senders []string
	for _, op := range ops {
		t := op.Transfer
		if t == nil || t.To != r.account || t.From == r.account || !t.Encrypted() {
			continue
		}
		if !seen[t.From] {
			seen[t.From] = true
			senders = append(senders, t.From)
		}
	}
	return senders, len(ops)
}

// persist writes the resolved snapshots and any newly discovered tombstones.
// Snapshots for groups that became tombstoned are deleted.
func (r *Resolver) persist(st *state, prior map[string]bool, groups []*store.Group) error {
	for groupID := range st.tombstoned {
		if prior[groupID] {
			continue
		}
		if err := r.store.MarkLeft(groupID); err != nil {
			return errors.Wrapf(err, "tombstone group %s", groupID)
		}
		if err := r.store.DeleteGroup(groupID); err != nil {
			return errors.Wrapf(err, "remove left group %s", groupID)
		}
	}

	for _, g := range groups {
		if err := r.store.PutGroup(g); err != nil {
			return errors.Wrapf(err, "persist group %s", g.GroupID)
		}
	}
	return nil
}
