// Package chat orchestrates the sync engine for one account: it pulls new
// ledger operations since the stored cursor, classifies them into direct
// messages, payments, and join requests, persists whole pages atomically,
// advances the cursor, and handles optimistic sends with ledger confirmation.
package chat

import (
	"encoding/json"
	"time"

	"github.com/chainletter/chainletter/errors"
	"github.com/chainletter/chainletter/ledger"
	"github.com/chainletter/chainletter/store"
)

// JoinRequest is a request by an account to join a group, carried as a
// custom operation. Requests are surfaced to the caller, not persisted; the
// group creator answers one by broadcasting a membership update.
type JoinRequest struct {
	GroupID   string
	Account   string
	Message   string
	TxID      string
	Timestamp time.Time
}

type rawJoinRequest struct {
	Action  string `json:"action"`
	GroupID string `json:"group_id"`
	Account string `json:"account"`
	Message string `json:"message"`
}

const actionJoinRequest = "join_request"

// parseJoinRequest decodes a join request from a custom operation, returning
// nil when the operation is something else.
func parseJoinRequest(op ledger.Operation) (*JoinRequest, error) {
	if op.Kind != ledger.OpCustomJSON || op.Custom == nil || op.Custom.ID != ledger.CustomOpID {
		return nil, nil
	}
	var raw rawJoinRequest
	if err := json.Unmarshal([]byte(op.Custom.JSON), &raw); err != nil {
		return nil, errors.Wrap(err, "malformed join request payload")
	}
	if raw.Action != actionJoinRequest {
		return nil, nil
	}
	if raw.GroupID == "" {
		return nil, errors.New("join request missing group_id")
	}

	account := raw.Account
	if account == "" && len(op.Custom.Required) > 0 {
		account = op.Custom.Required[0]
	}
	if account == "" {
		return nil, errors.New("join request missing account")
	}

	return &JoinRequest{
		GroupID:   raw.GroupID,
		Account:   account,
		Message:   raw.Message,
		TxID:      op.TxID,
		Timestamp: op.Timestamp,
	}, nil
}

// messageFromTransfer normalizes a transfer into a message record for the
// account's local store. Encrypted memos get the decrypt placeholder as
// content; plain memos (payments, exchange transfers) keep theirs verbatim
// and are hidden from unread counts. Records are keyed by transaction id, so
// rediscovery is an idempotent upsert.
func messageFromTransfer(op ledger.Operation, account string) *store.Message {
	t := op.Transfer
	m := &store.Message{
		ID:              op.TxID,
		ConversationKey: store.ConversationKey(t.From, t.To),
		From:            t.From,
		To:              t.To,
		Timestamp:       op.Timestamp,
		TxID:            op.TxID,
		Confirmed:       true,
		Amount:          t.Amount,
	}
	if t.Encrypted() {
		m.Content = store.DecryptPlaceholder
		m.EncryptedContent = t.Memo
	} else {
		m.Content = t.Memo
		m.Hidden = true
	}
	return m
}
