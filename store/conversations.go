package store

import (
	"database/sql"
	"time"

	"github.com/chainletter/chainletter/errors"
)

// RebuildConversations rederives every conversation rollup from the message
// set. Conversations are never the source of truth; this runs after each sync
// pass. Unread counts accumulate incoming, non-hidden messages newer than the
// previous last_checked mark.
func (s *Store) RebuildConversations() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	tx, err := s.begin()
	if err != nil {
		return err
	}

	// last_checked marks survive the rebuild
	checked := map[string]time.Time{}
	rows, err := tx.Query(`SELECT conversation_key, last_checked FROM conversations WHERE last_checked IS NOT NULL`)
	if err != nil {
		tx.Rollback()
		return errors.Wrap(err, "read last_checked marks")
	}
	for rows.Next() {
		var key string
		var at time.Time
		if err := rows.Scan(&key, &at); err != nil {
			rows.Close()
			tx.Rollback()
			return errors.Wrap(err, "scan last_checked")
		}
		checked[key] = at
	}
	rows.Close()

	if _, err := tx.Exec(`DELETE FROM conversations`); err != nil {
		tx.Rollback()
		return errors.Wrap(err, "clear conversations")
	}

	msgRows, err := tx.Query(`
		SELECT conversation_key, from_user, to_user, content, timestamp, hidden
		FROM messages ORDER BY timestamp ASC`)
	if err != nil {
		tx.Rollback()
		return errors.Wrap(err, "read messages for rollup")
	}

	type rollup struct {
		partner       string
		lastMessage   string
		lastTimestamp time.Time
		unread        int
	}
	rollups := map[string]*rollup{}

	for msgRows.Next() {
		var key, from, to, content string
		var ts time.Time
		var hidden bool
		if err := msgRows.Scan(&key, &from, &to, &content, &ts, &hidden); err != nil {
			msgRows.Close()
			tx.Rollback()
			return errors.Wrap(err, "scan message for rollup")
		}

		r := rollups[key]
		if r == nil {
			r = &rollup{}
			rollups[key] = r
		}
		partner := from
		if from == s.account {
			partner = to
		}
		r.partner = partner

		// Rows arrive timestamp-ascending, so the last write wins
		if !hidden {
			r.lastMessage = content
		}
		r.lastTimestamp = ts

		incoming := from != s.account
		if incoming && !hidden && ts.After(checked[key]) {
			r.unread++
		}
	}
	msgRows.Close()

	for key, r := range rollups {
		var lastChecked interface{}
		if at, ok := checked[key]; ok {
			lastChecked = at
		}
		if _, err := tx.Exec(`
			INSERT INTO conversations (conversation_key, partner, last_message, last_timestamp, unread_count, last_checked)
			VALUES (?, ?, ?, ?, ?, ?)`,
			key, r.partner, r.lastMessage, r.lastTimestamp, r.unread, lastChecked); err != nil {
			tx.Rollback()
			return errors.Wrapf(err, "write rollup %s", key)
		}
	}

	return errors.Wrap(tx.Commit(), "commit conversation rebuild")
}

// Conversations lists rollups newest-first
func (s *Store) Conversations() ([]*Conversation, error) {
	if err := s.checkOpen(); err != nil {
		return nil, err
	}
	rows, err := s.db.Query(`
		SELECT conversation_key, partner, last_message, last_timestamp, unread_count, last_checked
		FROM conversations ORDER BY last_timestamp DESC`)
	if err != nil {
		return nil, errors.Wrap(err, "query conversations")
	}
	defer rows.Close()

	var out []*Conversation
	for rows.Next() {
		var c Conversation
		var lastTS, lastChecked sql.NullTime
		if err := rows.Scan(&c.ConversationKey, &c.Partner, &c.LastMessage, &lastTS, &c.UnreadCount, &lastChecked); err != nil {
			return nil, errors.Wrap(err, "scan conversation")
		}
		if lastTS.Valid {
			c.LastTimestamp = lastTS.Time
		}
		if lastChecked.Valid {
			c.LastChecked = lastChecked.Time
		}
		out = append(out, &c)
	}
	return out, errors.Wrap(rows.Err(), "iterate conversations")
}

// MarkChecked records that the user viewed a conversation now, zeroing unread
func (s *Store) MarkChecked(conversationKey string, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.checkOpen(); err != nil {
		return err
	}
	_, err := s.db.Exec(`
		UPDATE conversations SET last_checked = ?, unread_count = 0
		WHERE conversation_key = ?`, at.UTC(), conversationKey)
	return errors.Wrap(err, "mark conversation checked")
}
