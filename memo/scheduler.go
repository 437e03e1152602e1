// Package memo schedules decryption of encrypted memos against the external
// signer. Every decrypt is expensive (it can prompt the user), so calls are
// rate limited through a token bucket and memoized in two cache tiers: an
// in-memory LRU with TTL, and the store's persistent TTL table. A ciphertext
// successfully decrypted once never reaches the signer again.
package memo

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"
	"golang.org/x/time/rate"

	"github.com/chainletter/chainletter/errors"
	"github.com/chainletter/chainletter/wallet"
)

// PersistentCache is the durable cache tier, satisfied by *store.Store
type PersistentCache interface {
	CacheGet(key string, now time.Time) (plaintext string, ok bool, err error)
	CachePut(key, plaintext string, ttl time.Duration, now time.Time) error
}

// Result is the per-item outcome of a batch decrypt. Failed items carry the
// original ciphertext as Plaintext so batch callers can render the rest.
type Result struct {
	Ciphertext string
	Plaintext  string
	Failed     bool
	Reason     wallet.FailureReason
}

// Options configures a Scheduler
type Options struct {
	RatePerMinute int           // signer prompts per minute (token bucket rate and capacity)
	BatchSize     int           // concurrent decrypts per batch
	MemoryEntries int           // LRU capacity
	MemoryTTL     time.Duration // in-memory entry lifetime
	PersistentTTL time.Duration // persistent entry lifetime
}

func (o *Options) fill() {
	if o.RatePerMinute <= 0 {
		o.RatePerMinute = 30
	}
	if o.BatchSize <= 0 {
		o.BatchSize = 5
	}
	if o.MemoryEntries <= 0 {
		o.MemoryEntries = 512
	}
	if o.MemoryTTL <= 0 {
		o.MemoryTTL = 30 * time.Minute
	}
	if o.PersistentTTL <= 0 {
		o.PersistentTTL = 7 * 24 * time.Hour
	}
}

// Scheduler coordinates cache tiers, the rate limiter, and batching
type Scheduler struct {
	signer  wallet.Signer
	persist PersistentCache
	mem     *lruCache
	limiter *rate.Limiter
	flight  singleflight.Group
	opts    Options
	logger  *zap.SugaredLogger
	timeNow func() time.Time
}

// NewScheduler creates a decryption scheduler. persist may be nil (memory
// tier only, used in tests).
func NewScheduler(signer wallet.Signer, persist PersistentCache, opts Options, logger *zap.SugaredLogger) *Scheduler {
	opts.fill()
	return &Scheduler{
		signer:  signer,
		persist: persist,
		mem:     newLRUCache(opts.MemoryEntries, opts.MemoryTTL, nil),
		limiter: rate.NewLimiter(rate.Limit(float64(opts.RatePerMinute)/60.0), opts.RatePerMinute),
		opts:    opts,
		logger:  logger,
		timeNow: time.Now,
	}
}

// Decrypt resolves one ciphertext to plaintext, consulting both cache tiers
// before spending a rate-limit token on the signer. Concurrent misses for the
// same ciphertext coalesce into a single signer call. Signer failures come
// back typed (errors.ErrUserDeclined / errors.ErrSessionExpired, else
// unknown) and are never retried here.
func (s *Scheduler) Decrypt(ctx context.Context, ciphertext string) (string, error) {
	if plaintext, ok := s.cached(ciphertext); ok {
		return plaintext, nil
	}
	return s.decryptMiss(ctx, ciphertext)
}

// DecryptBatch resolves many ciphertexts with per-item outcomes; a batch
// never fails atomically. Cache hits resolve immediately; genuine misses are
// grouped into batches of BatchSize, concurrent within a batch and sequential
// across batches, to bound the signer's concurrent prompt load. Duplicate
// ciphertexts share a single decrypt.
func (s *Scheduler) DecryptBatch(ctx context.Context, ciphertexts []string) []Result {
	results := make([]Result, len(ciphertexts))
	var missIdx []int

	for i, ct := range ciphertexts {
		if plaintext, ok := s.cached(ct); ok {
			results[i] = Result{Ciphertext: ct, Plaintext: plaintext}
			continue
		}
		missIdx = append(missIdx, i)
	}

	for start := 0; start < len(missIdx); start += s.opts.BatchSize {
		end := start + s.opts.BatchSize
		if end > len(missIdx) {
			end = len(missIdx)
		}

		var wg sync.WaitGroup
		for _, i := range missIdx[start:end] {
			wg.Add(1)
			go func(i int) {
				defer wg.Done()
				ct := ciphertexts[i]
				plaintext, err := s.decryptMiss(ctx, ct)
				if err != nil {
					results[i] = Result{
						Ciphertext: ct,
						Plaintext:  ct,
						Failed:     true,
						Reason:     wallet.ClassifyError(err),
					}
					return
				}
				results[i] = Result{Ciphertext: ct, Plaintext: plaintext}
			}(i)
		}
		wg.Wait()
	}

	return results
}

// cached consults persistent then memory tier. A persistent hit refills the
// memory tier.
func (s *Scheduler) cached(ciphertext string) (string, bool) {
	key := CacheKey(ciphertext)

	if s.persist != nil {
		plaintext, ok, err := s.persist.CacheGet(key, s.timeNow())
		if err != nil && s.logger != nil {
			s.logger.Warnw("Persistent memo cache read failed", "error", err)
		}
		if ok {
			s.mem.put(key, plaintext)
			return plaintext, true
		}
	}

	if plaintext, ok := s.mem.get(key); ok {
		return plaintext, true
	}
	return "", false
}

// decryptMiss spends a rate-limit token and calls the signer, single-flighted
// per cache key so concurrent misses share one token and one prompt. Waiting
// on the token bucket is the only deliberate suspension point in the pipeline.
func (s *Scheduler) decryptMiss(ctx context.Context, ciphertext string) (string, error) {
	key := CacheKey(ciphertext)
	plaintext, err, _ := s.flight.Do(key, func() (interface{}, error) {
		// A caller that missed just before a concurrent flight landed starts
		// a fresh flight; re-check so it resolves from cache instead.
		if cached, ok := s.cached(ciphertext); ok {
			return cached, nil
		}

		if err := s.limiter.Wait(ctx); err != nil {
			return nil, errors.Wrap(err, "waiting for decrypt rate budget")
		}

		out, err := s.signer.Decrypt(ctx, ciphertext)
		if err != nil {
			return nil, err
		}

		s.mem.put(key, out)
		if s.persist != nil {
			if err := s.persist.CachePut(key, out, s.opts.PersistentTTL, s.timeNow()); err != nil && s.logger != nil {
				s.logger.Warnw("Persistent memo cache write failed", "error", err)
			}
		}
		return out, nil
	})
	if err != nil {
		return "", err
	}
	return plaintext.(string), nil
}
