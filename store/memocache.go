package store

import (
	"database/sql"
	"time"

	"github.com/chainletter/chainletter/errors"
)

// CacheGet returns a cached plaintext for the key, lazily deleting the row
// when its TTL has elapsed. ok is false on miss or expiry.
func (s *Store) CacheGet(key string, now time.Time) (plaintext string, ok bool, err error) {
	if err := s.checkOpen(); err != nil {
		return "", false, err
	}

	var cachedAt time.Time
	var ttlSeconds int64
	err = s.db.QueryRow(`
		SELECT plaintext, cached_at, ttl_seconds FROM memo_cache WHERE key = ?`, key).
		Scan(&plaintext, &cachedAt, &ttlSeconds)
	if errors.Is(err, sql.ErrNoRows) {
		return "", false, nil
	}
	if err != nil {
		return "", false, errors.Wrap(err, "read memo cache")
	}

	if now.After(cachedAt.Add(time.Duration(ttlSeconds) * time.Second)) {
		s.mu.Lock()
		_, delErr := s.db.Exec(`DELETE FROM memo_cache WHERE key = ?`, key)
		s.mu.Unlock()
		if delErr != nil {
			return "", false, errors.Wrap(delErr, "evict expired memo")
		}
		return "", false, nil
	}

	return plaintext, true, nil
}

// CachePut stores a decrypted memo with its TTL
func (s *Store) CachePut(key, plaintext string, ttl time.Duration, now time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.checkOpen(); err != nil {
		return err
	}
	_, err := s.db.Exec(`
		INSERT INTO memo_cache (key, plaintext, cached_at, ttl_seconds)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(key) DO UPDATE SET
			plaintext = excluded.plaintext,
			cached_at = excluded.cached_at,
			ttl_seconds = excluded.ttl_seconds`,
		key, plaintext, now.UTC(), int64(ttl.Seconds()))
	return errors.Wrap(err, "write memo cache")
}

// CacheSweep deletes every expired cache row, returning how many were removed
func (s *Store) CacheSweep(now time.Time) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.checkOpen(); err != nil {
		return 0, err
	}
	res, err := s.db.Exec(`
		DELETE FROM memo_cache
		WHERE strftime('%s', cached_at) + ttl_seconds < ?`, now.UTC().Unix())
	if err != nil {
		return 0, errors.Wrap(err, "sweep memo cache")
	}
	n, _ := res.RowsAffected()
	return n, nil
}
