package chat

import (
	"context"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/chainletter/chainletter/errors"
	"github.com/chainletter/chainletter/ledger"
	"github.com/chainletter/chainletter/memo"
	"github.com/chainletter/chainletter/store"
	"github.com/chainletter/chainletter/wallet"
)

// defaultTransferAmount is the dust amount attached to message transfers;
// the ledger rejects zero-value transfers.
const defaultTransferAmount = "0.001 HIVE"

// Observer receives sync progress notifications. All methods are called
// synchronously from the sync pass; implementations must not block.
type Observer interface {
	SyncStarted(partner string)
	SyncFetched(operations int)
	SyncFinished(partner string, newMessages int, err error)
}

// SyncResult summarizes one conversation sync pass
type SyncResult struct {
	Partner      string
	NewMessages  int
	JoinRequests []JoinRequest
}

// Engine drives synchronization and sends for one account identity.
// All state mutations go through the account's store; scans are read-only
// against the ledger, so an abandoned in-flight sync leaves nothing to undo.
type Engine struct {
	scanner  *ledger.Scanner
	store    *store.Store
	signer   wallet.Signer
	memos    *memo.Scheduler
	account  string
	logger   *zap.SugaredLogger
	observer Observer

	timeNow func() time.Time
	newID   func() string
}

// NewEngine creates the sync engine for the store's account identity
func NewEngine(scanner *ledger.Scanner, st *store.Store, signer wallet.Signer, memos *memo.Scheduler, logger *zap.SugaredLogger) *Engine {
	return &Engine{
		scanner: scanner,
		store:   st,
		signer:  signer,
		memos:   memos,
		account: st.Account(),
		logger:  logger,
		timeNow: time.Now,
		newID:   uuid.NewString,
	}
}

// SetObserver registers a progress observer for subsequent sync passes
func (e *Engine) SetObserver(o Observer) {
	e.observer = o
}

// SyncConversation pulls ledger operations newer than the conversation's
// cursor, persists the discovered messages as one atomic page, advances the
// cursor, and rebuilds the conversation rollups.
//
// A stored cursor is ignored when the local message set for the conversation
// is empty: messages predating a stale cursor would otherwise be permanently
// unreachable, so an empty set forces a full rescan from the latest.
func (e *Engine) SyncConversation(ctx context.Context, partner string) (result *SyncResult, err error) {
	if e.observer != nil {
		e.observer.SyncStarted(partner)
		defer func() {
			n := 0
			if result != nil {
				n = result.NewMessages
			}
			e.observer.SyncFinished(partner, n, err)
		}()
	}

	key := store.ConversationKey(e.account, partner)

	count, err := e.store.CountMessages(key)
	if err != nil {
		return nil, err
	}

	var sinceSeq int64
	cursor, err := e.store.Cursor(key)
	if err != nil {
		return nil, err
	}
	switch {
	case cursor == nil:
	case count == 0:
		if e.logger != nil {
			e.logger.Debugw("Ignoring cursor for empty conversation",
				"conversation", key,
				"cursor", cursor.LastSyncedOpID)
		}
	default:
		sinceSeq = cursor.LastSyncedOpID
	}

	ops, err := e.scanner.FetchSince(ctx, e.account, sinceSeq, nil)
	if err != nil {
		return nil, errors.Wrapf(err, "fetch history for %s", e.account)
	}
	if e.observer != nil {
		e.observer.SyncFetched(len(ops))
	}

	result = &SyncResult{Partner: partner}
	var page []*store.Message
	var maxSeq, maxBlock int64

	for _, op := range ops {
		if op.SeqID > maxSeq {
			maxSeq = op.SeqID
			maxBlock = op.BlockNum
		}

		switch op.Kind {
		case ledger.OpTransfer:
			if !involves(op.Transfer, e.account, partner) {
				continue
			}
			page = append(page, messageFromTransfer(op, e.account))

		case ledger.OpCustomJSON:
			jr, err := parseJoinRequest(op)
			if err != nil {
				if e.logger != nil {
					e.logger.Debugw("Skipping malformed join request",
						"tx", op.TxID,
						"error", err)
				}
				continue
			}
			if jr != nil {
				result.JoinRequests = append(result.JoinRequests, *jr)
			}
		}
	}

	// Writes happen only after the whole page is validated; a failed fetch or
	// parse above leaves the store untouched.
	if len(page) > 0 {
		if err := e.store.UpsertMessages(page); err != nil {
			return nil, err
		}
		result.NewMessages = len(page)
	}
	if maxSeq > 0 {
		if err := e.store.AdvanceCursor(key, maxSeq, maxBlock, e.timeNow()); err != nil {
			return nil, err
		}
	}
	if err := e.store.RebuildConversations(); err != nil {
		return nil, err
	}

	return result, nil
}

// SendMessage encrypts and broadcasts a direct message, recording it
// optimistically before the broadcast and swapping the synthetic id for the
// transaction id on confirmation. A failed broadcast leaves the record
// unconfirmed; rediscovery through sync cannot duplicate it because confirmed
// records are keyed by transaction id.
func (e *Engine) SendMessage(ctx context.Context, to, content string) (*store.Message, error) {
	if to == "" || content == "" {
		return nil, errors.New("recipient and content are required")
	}

	ciphertext, err := e.signer.Encrypt(ctx, content, to)
	if err != nil {
		return nil, errors.Wrapf(err, "encrypt for %s", to)
	}

	now := e.timeNow()
	optimistic := &store.Message{
		ID:               e.newID(),
		ConversationKey:  store.ConversationKey(e.account, to),
		From:             e.account,
		To:               to,
		Content:          content,
		EncryptedContent: ciphertext,
		Timestamp:        now,
		// The typed plaintext is already the decrypted content; the flag keeps
		// the sync path from overwriting it with the placeholder later.
		IsDecrypted: true,
		Amount:      defaultTransferAmount,
	}
	if err := e.store.UpsertMessage(optimistic); err != nil {
		return nil, err
	}

	txID, err := e.signer.Broadcast(ctx, []wallet.BroadcastOp{{
		Kind: ledger.OpTransfer,
		Transfer: &ledger.TransferOp{
			From:   e.account,
			To:     to,
			Amount: defaultTransferAmount,
			Memo:   ciphertext,
		},
	}})
	if err != nil {
		return optimistic, errors.Wrapf(err, "broadcast message to %s", to)
	}

	if err := e.store.ConfirmMessage(optimistic.ID, txID); err != nil {
		return nil, err
	}
	if err := e.store.RebuildConversations(); err != nil {
		return nil, err
	}
	return e.store.GetMessage(txID)
}

// SendGroupMessage fans one logical message out as one encrypted transfer per
// recipient, accumulating transaction ids and failed recipients as it goes.
// The record is persisted after every recipient, so a crash mid-fanout leaves
// enough state for the reconciler to resolve it to a terminal status.
func (e *Engine) SendGroupMessage(ctx context.Context, groupID, content string) (*store.GroupMessage, error) {
	if content == "" {
		return nil, errors.New("content is required")
	}

	group, err := e.store.GetGroup(groupID)
	if err != nil {
		return nil, err
	}

	var recipients []string
	for _, m := range group.Members {
		if m != e.account {
			recipients = append(recipients, m)
		}
	}
	if len(recipients) == 0 {
		return nil, errors.Newf("group %s has no other members", groupID)
	}

	now := e.timeNow()
	gm := &store.GroupMessage{
		ID:         e.newID(),
		GroupID:    groupID,
		Sender:     e.account,
		Content:    content,
		Timestamp:  now,
		Recipients: recipients,
		Status:     store.StatusSending,
		CreatedAt:  now,
	}
	if err := e.store.PutGroupMessage(gm); err != nil {
		return nil, err
	}

	for _, recipient := range recipients {
		txID, err := e.sendToRecipient(ctx, recipient, content)
		if err != nil {
			if e.logger != nil {
				e.logger.Warnw("Group message delivery failed",
					"group", groupID,
					"recipient", recipient,
					"error", err)
			}
			gm.FailedRecipients = append(gm.FailedRecipients, recipient)
		} else {
			gm.TxIDs = append(gm.TxIDs, txID)
		}
		if err := e.store.PutGroupMessage(gm); err != nil {
			return nil, err
		}
	}

	switch {
	case len(gm.TxIDs) == 0:
		gm.Status = store.StatusFailed
	case len(gm.FailedRecipients) == 0:
		gm.Status = store.StatusSent
	default:
		gm.Status = store.StatusPartial
	}
	if err := e.store.PutGroupMessage(gm); err != nil {
		return nil, err
	}
	return gm, nil
}

func (e *Engine) sendToRecipient(ctx context.Context, recipient, content string) (string, error) {
	ciphertext, err := e.signer.Encrypt(ctx, content, recipient)
	if err != nil {
		return "", err
	}
	return e.signer.Broadcast(ctx, []wallet.BroadcastOp{{
		Kind: ledger.OpTransfer,
		Transfer: &ledger.TransferOp{
			From:   e.account,
			To:     recipient,
			Amount: defaultTransferAmount,
			Memo:   ciphertext,
		},
	}})
}

// DecryptMessage resolves one message's plaintext through the scheduler and
// records it as a terminal decryption.
func (e *Engine) DecryptMessage(ctx context.Context, id string) (*store.Message, error) {
	m, err := e.store.GetMessage(id)
	if err != nil {
		return nil, err
	}
	if m.IsDecrypted || m.EncryptedContent == "" {
		return m, nil
	}

	plaintext, err := e.memos.Decrypt(ctx, m.EncryptedContent)
	if err != nil {
		return nil, err
	}
	if err := e.store.MarkDecrypted(m.ID, plaintext); err != nil {
		return nil, err
	}
	m.Content = plaintext
	m.IsDecrypted = true
	return m, nil
}

// DecryptConversation batch-decrypts every still-encrypted message in a
// conversation. Failures stay encrypted and keep their placeholder; the rest
// are recorded as terminal decryptions.
func (e *Engine) DecryptConversation(ctx context.Context, partner string) ([]*store.Message, error) {
	key := store.ConversationKey(e.account, partner)
	msgs, err := e.store.MessagesByConversation(key)
	if err != nil {
		return nil, err
	}

	var pending []*store.Message
	var ciphertexts []string
	for _, m := range msgs {
		if !m.IsDecrypted && m.EncryptedContent != "" {
			pending = append(pending, m)
			ciphertexts = append(ciphertexts, m.EncryptedContent)
		}
	}
	if len(pending) == 0 {
		return msgs, nil
	}

	for i, res := range e.memos.DecryptBatch(ctx, ciphertexts) {
		if res.Failed {
			continue
		}
		if err := e.store.MarkDecrypted(pending[i].ID, res.Plaintext); err != nil {
			return nil, err
		}
		pending[i].Content = res.Plaintext
		pending[i].IsDecrypted = true
	}
	return msgs, nil
}

// involves reports whether a transfer belongs to the conversation between
// account and partner.
func involves(t *ledger.TransferOp, account, partner string) bool {
	if t == nil {
		return false
	}
	return (t.From == account && t.To == partner) || (t.From == partner && t.To == account)
}
