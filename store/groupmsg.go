package store

import (
	"database/sql"
	"encoding/json"
	"time"

	"github.com/chainletter/chainletter/errors"
)

const groupMessageColumns = `id, group_id, sender, content, encrypted_content,
	timestamp, recipients, tx_ids, failed_recipients, confirmed, status, created_at`

// PutGroupMessage upserts one logical group message, keyed by its stable id
func (s *Store) PutGroupMessage(gm *GroupMessage) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.checkOpen(); err != nil {
		return err
	}

	recipients, err := json.Marshal(gm.Recipients)
	if err != nil {
		return errors.Wrap(err, "marshal recipients")
	}
	txIDs, err := json.Marshal(gm.TxIDs)
	if err != nil {
		return errors.Wrap(err, "marshal tx ids")
	}
	failed, err := json.Marshal(gm.FailedRecipients)
	if err != nil {
		return errors.Wrap(err, "marshal failed recipients")
	}

	createdAt := gm.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now()
	}

	_, err = s.db.Exec(`
		INSERT INTO group_messages (`+groupMessageColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			content           = excluded.content,
			encrypted_content = excluded.encrypted_content,
			recipients        = excluded.recipients,
			tx_ids            = excluded.tx_ids,
			failed_recipients = excluded.failed_recipients,
			confirmed         = excluded.confirmed,
			status            = excluded.status`,
		gm.ID, gm.GroupID, gm.Sender, gm.Content, gm.EncryptedContent,
		gm.Timestamp.UTC(), string(recipients), string(txIDs), string(failed),
		gm.Confirmed, gm.Status, createdAt.UTC())
	return errors.Wrap(err, "put group message")
}

// GetGroupMessage retrieves one group message by id
func (s *Store) GetGroupMessage(id string) (*GroupMessage, error) {
	if err := s.checkOpen(); err != nil {
		return nil, err
	}
	row := s.db.QueryRow(`SELECT `+groupMessageColumns+` FROM group_messages WHERE id = ?`, id)
	gm, err := scanGroupMessage(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, errors.NewNotFoundError("group message %s", id)
	}
	return gm, err
}

// GroupMessages lists a group's messages in ledger-timestamp order
func (s *Store) GroupMessages(groupID string) ([]*GroupMessage, error) {
	if err := s.checkOpen(); err != nil {
		return nil, err
	}
	rows, err := s.db.Query(
		`SELECT `+groupMessageColumns+` FROM group_messages
		 WHERE group_id = ? ORDER BY timestamp ASC`, groupID)
	if err != nil {
		return nil, errors.Wrap(err, "query group messages")
	}
	defer rows.Close()
	return collectGroupMessages(rows)
}

// StuckSending returns group messages still in sending state created before
// the cutoff. The reconciler resolves these to a terminal status.
func (s *Store) StuckSending(cutoff time.Time) ([]*GroupMessage, error) {
	if err := s.checkOpen(); err != nil {
		return nil, err
	}
	rows, err := s.db.Query(
		`SELECT `+groupMessageColumns+` FROM group_messages
		 WHERE status = ? AND created_at < ?`, StatusSending, cutoff.UTC())
	if err != nil {
		return nil, errors.Wrap(err, "query stuck group messages")
	}
	defer rows.Close()
	return collectGroupMessages(rows)
}

func scanGroupMessage(row rowScanner) (*GroupMessage, error) {
	var gm GroupMessage
	var recipients, txIDs, failed string
	err := row.Scan(
		&gm.ID, &gm.GroupID, &gm.Sender, &gm.Content, &gm.EncryptedContent,
		&gm.Timestamp, &recipients, &txIDs, &failed,
		&gm.Confirmed, &gm.Status, &gm.CreatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, err
		}
		return nil, errors.Wrap(err, "scan group message")
	}
	if err := json.Unmarshal([]byte(recipients), &gm.Recipients); err != nil {
		return nil, errors.Wrap(err, "unmarshal recipients")
	}
	if err := json.Unmarshal([]byte(txIDs), &gm.TxIDs); err != nil {
		return nil, errors.Wrap(err, "unmarshal tx ids")
	}
	if err := json.Unmarshal([]byte(failed), &gm.FailedRecipients); err != nil {
		return nil, errors.Wrap(err, "unmarshal failed recipients")
	}
	return &gm, nil
}

func collectGroupMessages(rows *sql.Rows) ([]*GroupMessage, error) {
	var out []*GroupMessage
	for rows.Next() {
		gm, err := scanGroupMessage(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, gm)
	}
	return out, errors.Wrap(rows.Err(), "iterate group messages")
}
