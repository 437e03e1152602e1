package memo

import (
	"context"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/chainletter/chainletter/errors"
	"github.com/chainletter/chainletter/wallet"
)

// fakeSigner decrypts by stripping the "#" prefix, failing for ciphertexts
// registered in fail, and counts every invocation. A non-nil gate holds every
// decrypt in flight until the channel closes.
type fakeSigner struct {
	mu    sync.Mutex
	calls map[string]int
	fail  map[string]error
	gate  chan struct{}
}

func newFakeSigner() *fakeSigner {
	return &fakeSigner{calls: map[string]int{}, fail: map[string]error{}}
}

func (f *fakeSigner) Decrypt(_ context.Context, ciphertext string) (string, error) {
	f.mu.Lock()
	f.calls[ciphertext]++
	err, failed := f.fail[ciphertext]
	gate := f.gate
	f.mu.Unlock()

	if gate != nil {
		<-gate
	}
	if failed {
		return "", err
	}
	return strings.TrimPrefix(ciphertext, "#"), nil
}

func (f *fakeSigner) Encrypt(_ context.Context, plaintext, _ string) (string, error) {
	return "#" + plaintext, nil
}

func (f *fakeSigner) Broadcast(_ context.Context, _ []wallet.BroadcastOp) (string, error) {
	return "tx", nil
}

func (f *fakeSigner) callCount(ciphertext string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls[ciphertext]
}

// memCache is an in-memory PersistentCache for tests
type memCache struct {
	mu      sync.Mutex
	entries map[string]string
	puts    int
}

func (m *memCache) CacheGet(key string, _ time.Time) (string, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	v, ok := m.entries[key]
	return v, ok, nil
}

func (m *memCache) CachePut(key, plaintext string, _ time.Duration, _ time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.entries == nil {
		m.entries = map[string]string{}
	}
	m.entries[key] = plaintext
	m.puts++
	return nil
}

// fastOpts keeps the token bucket effectively unlimited for tests
var fastOpts = Options{RatePerMinute: 600000, BatchSize: 3}

func TestDecryptOnce(t *testing.T) {
	signer := newFakeSigner()
	persist := &memCache{}
	s := NewScheduler(signer, persist, fastOpts, nil)

	for i := 0; i < 5; i++ {
		plaintext, err := s.Decrypt(context.Background(), "#secret")
		require.NoError(t, err)
		assert.Equal(t, "secret", plaintext)
	}

	assert.Equal(t, 1, signer.callCount("#secret"))
	assert.Equal(t, 1, persist.puts)
}

func TestPersistentTierSurvivesMemoryEviction(t *testing.T) {
	signer := newFakeSigner()
	persist := &memCache{}
	opts := fastOpts
	opts.MemoryEntries = 1
	s := NewScheduler(signer, persist, opts, nil)

	_, err := s.Decrypt(context.Background(), "#one")
	require.NoError(t, err)
	_, err = s.Decrypt(context.Background(), "#two") // evicts #one from memory
	require.NoError(t, err)

	plaintext, err := s.Decrypt(context.Background(), "#one")
	require.NoError(t, err)
	assert.Equal(t, "one", plaintext)
	assert.Equal(t, 1, signer.callCount("#one"), "persistent hit must not re-invoke the signer")
}

func TestDecryptTypedFailures(t *testing.T) {
	signer := newFakeSigner()
	signer.fail["#declined"] = errors.ErrUserDeclined
	signer.fail["#expired"] = errors.Wrap(errors.ErrSessionExpired, "keychain")
	s := NewScheduler(signer, nil, fastOpts, nil)

	_, err := s.Decrypt(context.Background(), "#declined")
	assert.True(t, errors.Is(err, errors.ErrUserDeclined))

	_, err = s.Decrypt(context.Background(), "#expired")
	assert.True(t, errors.Is(err, errors.ErrSessionExpired))

	// Failures are not cached: the next attempt reaches the signer again
	_, _ = s.Decrypt(context.Background(), "#declined")
	assert.Equal(t, 2, signer.callCount("#declined"))
}

func TestDecryptBatchPartialSuccess(t *testing.T) {
	signer := newFakeSigner()
	signer.fail["#bad"] = errors.ErrUserDeclined
	s := NewScheduler(signer, &memCache{}, fastOpts, nil)

	results := s.DecryptBatch(context.Background(), []string{"#a", "#bad", "#b"})
	require.Len(t, results, 3)

	assert.False(t, results[0].Failed)
	assert.Equal(t, "a", results[0].Plaintext)

	assert.True(t, results[1].Failed)
	assert.Equal(t, "#bad", results[1].Plaintext, "failed items resolve to their original ciphertext")
	assert.Equal(t, wallet.ReasonDeclined, results[1].Reason)

	assert.False(t, results[2].Failed)
	assert.Equal(t, "b", results[2].Plaintext)
}

func TestDecryptBatchUsesCache(t *testing.T) {
	signer := newFakeSigner()
	s := NewScheduler(signer, &memCache{}, fastOpts, nil)

	_, err := s.Decrypt(context.Background(), "#seen")
	require.NoError(t, err)

	results := s.DecryptBatch(context.Background(), []string{"#seen", "#new"})
	assert.Equal(t, "seen", results[0].Plaintext)
	assert.Equal(t, "new", results[1].Plaintext)
	assert.Equal(t, 1, signer.callCount("#seen"))
	assert.Equal(t, 1, signer.callCount("#new"))
}

func TestDecryptBatchLarge(t *testing.T) {
	signer := newFakeSigner()
	s := NewScheduler(signer, nil, fastOpts, nil)

	var cts []string
	for i := 0; i < 10; i++ {
		cts = append(cts, "#memo-"+string(rune('a'+i)))
	}
	results := s.DecryptBatch(context.Background(), cts)
	require.Len(t, results, 10)
	for i, r := range results {
		assert.False(t, r.Failed)
		assert.Equal(t, strings.TrimPrefix(cts[i], "#"), r.Plaintext)
	}
}

func TestDecryptConcurrentCallersCoalesce(t *testing.T) {
	signer := newFakeSigner()
	release := make(chan struct{})
	signer.gate = release
	s := NewScheduler(signer, &memCache{}, fastOpts, nil)

	const callers = 8
	outs := make([]string, callers)
	errs := make([]error, callers)
	var wg sync.WaitGroup
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			outs[i], errs[i] = s.Decrypt(context.Background(), "#shared")
		}(i)
	}

	// Give every caller time to pile onto the in-flight decrypt
	time.Sleep(20 * time.Millisecond)
	close(release)
	wg.Wait()

	for i := 0; i < callers; i++ {
		require.NoError(t, errs[i])
		assert.Equal(t, "shared", outs[i])
	}
	assert.Equal(t, 1, signer.callCount("#shared"), "concurrent callers share one signer call")
}

func TestDecryptBatchCoalescesDuplicates(t *testing.T) {
	signer := newFakeSigner()
	s := NewScheduler(signer, &memCache{}, fastOpts, nil)

	results := s.DecryptBatch(context.Background(), []string{"#dup", "#dup", "#dup", "#other"})
	require.Len(t, results, 4)
	for _, r := range results[:3] {
		assert.False(t, r.Failed)
		assert.Equal(t, "dup", r.Plaintext)
	}
	assert.Equal(t, "other", results[3].Plaintext)
	assert.Equal(t, 1, signer.callCount("#dup"), "duplicates inside one batch share a single signer call")
	assert.Equal(t, 1, signer.callCount("#other"))
}

func TestDecryptRespectsContextCancel(t *testing.T) {
	signer := newFakeSigner()
	// Rate of ~1 token per 10 minutes with an empty-ish bucket after first use
	s := NewScheduler(signer, nil, Options{RatePerMinute: 1, BatchSize: 1}, nil)
	s.limiter.AllowN(time.Now(), 1) // drain the single burst token

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	_, err := s.Decrypt(ctx, "#slow")
	require.Error(t, err)
	assert.Zero(t, signer.callCount("#slow"))
}
