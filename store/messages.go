package store

import (
	"database/sql"

	"github.com/chainletter/chainletter/errors"
)

const messageColumns = `id, conversation_key, from_user, to_user, content,
	encrypted_content, timestamp, tx_id, confirmed, is_decrypted, amount, hidden`

// upsertMessageSQL is shared by the single and batched write paths. The
// CASE guards enforce the one-way decryption invariant: once a row is flagged
// is_decrypted, the sync path can never overwrite its content again.
const upsertMessageSQL = `
	INSERT INTO messages (` + messageColumns + `)
	VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	ON CONFLICT(id) DO UPDATE SET
		conversation_key  = excluded.conversation_key,
		from_user         = excluded.from_user,
		to_user           = excluded.to_user,
		content           = CASE WHEN messages.is_decrypted = 1
		                         THEN messages.content
		                         ELSE excluded.content END,
		encrypted_content = excluded.encrypted_content,
		timestamp         = excluded.timestamp,
		tx_id             = excluded.tx_id,
		confirmed         = MAX(messages.confirmed, excluded.confirmed),
		is_decrypted      = MAX(messages.is_decrypted, excluded.is_decrypted),
		amount            = excluded.amount,
		hidden            = excluded.hidden
`

func messageArgs(m *Message) []interface{} {
	return []interface{}{
		m.ID, m.ConversationKey, m.From, m.To, m.Content,
		m.EncryptedContent, m.Timestamp.UTC(), m.TxID,
		m.Confirmed, m.IsDecrypted, m.Amount, m.Hidden,
	}
}

// UpsertMessage writes one message, keyed by its stable id
func (s *Store) UpsertMessage(m *Message) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.checkOpen(); err != nil {
		return err
	}
	if _, err := s.db.Exec(upsertMessageSQL, messageArgs(m)...); err != nil {
		return errors.Wrap(err, "upsert message")
	}
	return nil
}

// UpsertMessages writes a whole page of messages inside one transaction.
// All-or-nothing: a crash mid-sync cannot leave half a page written.
func (s *Store) UpsertMessages(msgs []*Message) error {
	if len(msgs) == 0 {
		return nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	tx, err := s.begin()
	if err != nil {
		return err
	}
	stmt, err := tx.Prepare(upsertMessageSQL)
	if err != nil {
		tx.Rollback()
		return errors.Wrap(err, "prepare message upsert")
	}
	defer stmt.Close()

	for _, m := range msgs {
		if _, err := stmt.Exec(messageArgs(m)...); err != nil {
			tx.Rollback()
			return errors.Wrapf(err, "upsert message %s", m.ID)
		}
	}
	if err := tx.Commit(); err != nil {
		return errors.Wrap(err, "commit message page")
	}
	return nil
}

// GetMessage retrieves a message by id
func (s *Store) GetMessage(id string) (*Message, error) {
	if err := s.checkOpen(); err != nil {
		return nil, err
	}
	row := s.db.QueryRow(`SELECT `+messageColumns+` FROM messages WHERE id = ?`, id)
	m, err := scanMessage(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, errors.NewNotFoundError("message %s", id)
	}
	return m, err
}

// MessageByTxID retrieves a confirmed message by its transaction id
func (s *Store) MessageByTxID(txID string) (*Message, error) {
	if err := s.checkOpen(); err != nil {
		return nil, err
	}
	row := s.db.QueryRow(`SELECT `+messageColumns+` FROM messages WHERE tx_id = ?`, txID)
	m, err := scanMessage(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, errors.NewNotFoundError("message with tx %s", txID)
	}
	return m, err
}

// MessagesByConversation returns a conversation's messages ordered by ledger
// timestamp, which is the display order regardless of discovery order.
func (s *Store) MessagesByConversation(conversationKey string) ([]*Message, error) {
	if err := s.checkOpen(); err != nil {
		return nil, err
	}
	rows, err := s.db.Query(
		`SELECT `+messageColumns+` FROM messages
		 WHERE conversation_key = ? ORDER BY timestamp ASC`, conversationKey)
	if err != nil {
		return nil, errors.Wrap(err, "query conversation messages")
	}
	defer rows.Close()
	return collectMessages(rows)
}

// CountMessages returns how many messages a conversation has cached locally.
// A zero count forces the next sync to ignore any stored cursor.
func (s *Store) CountMessages(conversationKey string) (int, error) {
	if err := s.checkOpen(); err != nil {
		return 0, err
	}
	var n int
	err := s.db.QueryRow(
		`SELECT COUNT(*) FROM messages WHERE conversation_key = ?`, conversationKey).Scan(&n)
	if err != nil {
		return 0, errors.Wrap(err, "count messages")
	}
	return n, nil
}

// ConfirmMessage replaces an optimistic message's synthetic id with the real
// transaction id once the ledger includes it.
func (s *Store) ConfirmMessage(syntheticID, txID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.checkOpen(); err != nil {
		return err
	}
	res, err := s.db.Exec(
		`UPDATE messages SET id = ?, tx_id = ?, confirmed = 1 WHERE id = ? AND confirmed = 0`,
		txID, txID, syntheticID)
	if err != nil {
		return errors.Wrap(err, "confirm message")
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return errors.NewNotFoundError("unconfirmed message %s", syntheticID)
	}
	return nil
}

// MarkDecrypted records an explicit, terminal decryption of a message
func (s *Store) MarkDecrypted(id, plaintext string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.checkOpen(); err != nil {
		return err
	}
	if _, err := s.db.Exec(
		`UPDATE messages SET content = ?, is_decrypted = 1 WHERE id = ?`, plaintext, id); err != nil {
		return errors.Wrap(err, "mark decrypted")
	}
	return nil
}

// CorruptedMessages finds rows whose content equals their ciphertext verbatim
// without being flagged decrypted — ciphertext accidentally surfaced as
// plaintext. The reconciler rewrites these.
func (s *Store) CorruptedMessages() ([]*Message, error) {
	if err := s.checkOpen(); err != nil {
		return nil, err
	}
	rows, err := s.db.Query(
		`SELECT ` + messageColumns + ` FROM messages
		 WHERE content = encrypted_content
		   AND encrypted_content != ''
		   AND is_decrypted = 0`)
	if err != nil {
		return nil, errors.Wrap(err, "scan for corrupted messages")
	}
	defer rows.Close()
	return collectMessages(rows)
}

// RewriteContent sets a message's content without touching its decrypt flag
func (s *Store) RewriteContent(id, content string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.checkOpen(); err != nil {
		return err
	}
	if _, err := s.db.Exec(`UPDATE messages SET content = ? WHERE id = ?`, content, id); err != nil {
		return errors.Wrap(err, "rewrite message content")
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanMessage(row rowScanner) (*Message, error) {
	var m Message
	err := row.Scan(
		&m.ID, &m.ConversationKey, &m.From, &m.To, &m.Content,
		&m.EncryptedContent, &m.Timestamp, &m.TxID,
		&m.Confirmed, &m.IsDecrypted, &m.Amount, &m.Hidden,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, err
		}
		return nil, errors.Wrap(err, "scan message")
	}
	return &m, nil
}

func collectMessages(rows *sql.Rows) ([]*Message, error) {
	var out []*Message
	for rows.Next() {
		m, err := scanMessage(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, m)
	}
	return out, errors.Wrap(rows.Err(), "iterate messages")
}
