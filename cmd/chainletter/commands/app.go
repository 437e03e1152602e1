// Package commands implements the chainletter CLI commands.
package commands

import (
	"time"

	"github.com/chainletter/chainletter/chat"
	"github.com/chainletter/chainletter/config"
	"github.com/chainletter/chainletter/errors"
	"github.com/chainletter/chainletter/groups"
	"github.com/chainletter/chainletter/ledger"
	"github.com/chainletter/chainletter/logger"
	"github.com/chainletter/chainletter/memo"
	"github.com/chainletter/chainletter/reconcile"
	"github.com/chainletter/chainletter/store"
	"github.com/chainletter/chainletter/wallet"
)

// app bundles the wired components for one CLI invocation
type app struct {
	cfg        *config.Config
	store      *store.Store
	scanner    *ledger.Scanner
	engine     *chat.Engine
	resolver   *groups.Resolver
	reconciler *reconcile.Reconciler
}

// openApp loads configuration and wires the full component graph. The CLI
// runs without a signing authority attached, so send and decrypt paths fail
// with a re-auth error rather than prompting.
func openApp() (*app, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, errors.Wrap(err, "load configuration")
	}
	if cfg.Account.Name == "" {
		return nil, errors.New("no account configured; run 'chainletter config init --account <name>'")
	}

	st, err := store.Open(cfg.Database.Dir, cfg.Account.Name, logger.Logger)
	if err != nil {
		return nil, err
	}

	client, err := ledger.NewRPCClient(
		cfg.Ledger.Endpoints,
		ledger.RetryPolicy{
			MaxAttempts: cfg.Ledger.Retry.MaxAttempts,
			BaseDelay:   time.Duration(cfg.Ledger.Retry.BaseDelayMS) * time.Millisecond,
			MaxDelay:    time.Duration(cfg.Ledger.Retry.MaxDelayMS) * time.Millisecond,
			Jitter:      time.Duration(cfg.Ledger.Retry.JitterMS) * time.Millisecond,
		},
		time.Duration(cfg.Ledger.TimeoutSeconds)*time.Second,
		logger.Logger,
	)
	if err != nil {
		st.Close()
		return nil, err
	}

	scanner := ledger.NewScanner(client, cfg.Ledger.PageSize, cfg.Ledger.MaxBackfillOps, logger.Logger)
	signer := wallet.Disconnected{}
	memos := memo.NewScheduler(signer, st, memo.Options{
		RatePerMinute: cfg.Decrypt.RatePerMinute,
		BatchSize:     cfg.Decrypt.BatchSize,
		MemoryEntries: cfg.Decrypt.MemoryCacheEntries,
		MemoryTTL:     time.Duration(cfg.Decrypt.MemoryCacheTTLMinutes) * time.Minute,
		PersistentTTL: time.Duration(cfg.Decrypt.PersistentTTLHours) * time.Hour,
	}, logger.Logger)

	return &app{
		cfg:     cfg,
		store:   st,
		scanner: scanner,
		engine:  chat.NewEngine(scanner, st, signer, memos, logger.Logger),
		resolver: groups.NewResolver(scanner, st, cfg.Account.Name, groups.Options{
			ScanBatchSize: cfg.Groups.ScanBatchSize,
			MaxIterations: cfg.Groups.MaxIterations,
			MaxOpsScanned: cfg.Groups.MaxOpsScanned,
		}, logger.Logger),
		reconciler: reconcile.New(st,
			time.Duration(cfg.Reconcile.OrphanAgeMinutes)*time.Minute, logger.Logger),
	}, nil
}

func (a *app) Close() {
	if err := a.store.Close(); err != nil {
		logger.Warnw("Failed to close store", "error", err)
	}
}
