package store

import (
	"database/sql"
	"time"

	"github.com/chainletter/chainletter/errors"
)

// Cursor returns the sync cursor for a scope, or nil when none is stored
func (s *Store) Cursor(scopeKey string) (*SyncCursor, error) {
	if err := s.checkOpen(); err != nil {
		return nil, err
	}
	var c SyncCursor
	var at sql.NullTime
	err := s.db.QueryRow(`
		SELECT scope_key, last_synced_op_id, last_synced_block, last_sync_at
		FROM sync_cursors WHERE scope_key = ?`, scopeKey).
		Scan(&c.ScopeKey, &c.LastSyncedOpID, &c.LastSyncedBlock, &at)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, errors.Wrap(err, "read sync cursor")
	}
	if at.Valid {
		c.LastSyncAt = at.Time
	}
	return &c, nil
}

// AdvanceCursor moves a scope's cursor forward. Monotonicity is enforced in
// SQL: a stale writer can never move the cursor backwards.
func (s *Store) AdvanceCursor(scopeKey string, opID, blockNum int64, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.checkOpen(); err != nil {
		return err
	}
	_, err := s.db.Exec(`
		INSERT INTO sync_cursors (scope_key, last_synced_op_id, last_synced_block, last_sync_at)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(scope_key) DO UPDATE SET
			last_synced_op_id = MAX(sync_cursors.last_synced_op_id, excluded.last_synced_op_id),
			last_synced_block = MAX(sync_cursors.last_synced_block, excluded.last_synced_block),
			last_sync_at      = excluded.last_sync_at`,
		scopeKey, opID, blockNum, at.UTC())
	return errors.Wrap(err, "advance sync cursor")
}

// ClearCursor forgets a scope's position, forcing the next sync to rescan
func (s *Store) ClearCursor(scopeKey string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.checkOpen(); err != nil {
		return err
	}
	_, err := s.db.Exec(`DELETE FROM sync_cursors WHERE scope_key = ?`, scopeKey)
	return errors.Wrap(err, "clear sync cursor")
}
