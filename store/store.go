// Package store is the durable local state for one account identity:
// messages, conversations, groups, group messages, sync cursors, and the
// persistent tier of the decrypted-memo cache. All writes for an account are
// serialized through one Store; switching accounts closes this namespace and
// opens another, never sharing records across identities.
package store

import (
	"database/sql"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/chainletter/chainletter/db"
	"github.com/chainletter/chainletter/errors"
)

// DecryptPlaceholder is what a message shows before its memo is decrypted,
// and what the reconciler rewrites corrupted content to.
const DecryptPlaceholder = "[Encrypted message - click to decrypt]"

// GroupMessage delivery states. sending is the only non-terminal state; the
// reconciler guarantees nothing stays there past the orphan age threshold.
const (
	StatusSending   = "sending"
	StatusPartial   = "partial"
	StatusSent      = "sent"
	StatusConfirmed = "confirmed"
	StatusFailed    = "failed"
)

// Message is one direct message reconstructed from a ledger transfer
type Message struct {
	ID               string
	ConversationKey  string
	From             string
	To               string
	Content          string
	EncryptedContent string
	Timestamp        time.Time
	TxID             string
	Confirmed        bool
	IsDecrypted      bool
	Amount           string
	Hidden           bool
}

// Conversation is the derived per-partner rollup, rebuilt after every sync
type Conversation struct {
	ConversationKey string
	Partner         string
	LastMessage     string
	LastTimestamp   time.Time
	UnreadCount     int
	LastChecked     time.Time
}

// Group is the latest membership snapshot at its highest observed version
type Group struct {
	GroupID   string
	Name      string
	Members   []string
	Creator   string
	CreatedAt time.Time
	Version   int64
}

// HasMember reports whether username is in the membership list
func (g *Group) HasMember(username string) bool {
	for _, m := range g.Members {
		if m == username {
			return true
		}
	}
	return false
}

// GroupMessage is one logical group message fanned out over N transfers
type GroupMessage struct {
	ID               string
	GroupID          string
	Sender           string
	Content          string
	EncryptedContent string
	Timestamp        time.Time
	Recipients       []string
	TxIDs            []string
	FailedRecipients []string
	Confirmed        bool
	Status           string
	CreatedAt        time.Time
}

// SyncCursor marks the scan position for one conversation or group scope
type SyncCursor struct {
	ScopeKey        string
	LastSyncedOpID  int64
	LastSyncedBlock int64
	LastSyncAt      time.Time
}

// ConversationKey builds the symmetric key for a pair of usernames, so either
// party's local query finds the same record.
func ConversationKey(a, b string) string {
	pair := []string{a, b}
	sort.Strings(pair)
	return strings.Join(pair, "|")
}

// Store owns the SQLite namespace for a single account identity
type Store struct {
	db      *sql.DB
	account string
	logger  *zap.SugaredLogger

	// Serializes all writes for this account; sync passes and user sends
	// must not interleave partial updates.
	mu     sync.Mutex
	closed bool
}

// Open opens (creating and migrating as needed) the store for one account.
// The database file lives at <dir>/<account>.db.
func Open(dir, account string, logger *zap.SugaredLogger) (*Store, error) {
	if account == "" {
		return nil, errors.New("account is required")
	}

	path := filepath.Join(dir, account+".db")
	conn, err := db.Open(path, logger)
	if err != nil {
		return nil, errors.Wrapf(err, "open store for %s", account)
	}
	if err := db.Migrate(conn, logger); err != nil {
		conn.Close()
		return nil, errors.Wrapf(err, "migrate store for %s", account)
	}

	return &Store{db: conn, account: account, logger: logger}, nil
}

// New wraps an already opened and migrated database handle
func New(conn *sql.DB, account string, logger *zap.SugaredLogger) *Store {
	return &Store{db: conn, account: account, logger: logger}
}

// OpenMemory opens an in-memory store, used by tests
func OpenMemory(account string) (*Store, error) {
	conn, err := db.Open(":memory:", nil)
	if err != nil {
		return nil, err
	}
	if err := db.Migrate(conn, nil); err != nil {
		conn.Close()
		return nil, err
	}
	return &Store{db: conn, account: account}, nil
}

// Account returns the identity this store is scoped to
func (s *Store) Account() string {
	return s.account
}

// Close closes the namespace. Further calls fail with ErrStoreClosed.
func (s *Store) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil
	}
	s.closed = true
	return s.db.Close()
}

func (s *Store) checkOpen() error {
	if s.closed {
		return errors.ErrStoreClosed
	}
	return nil
}

// begin starts a write transaction with the store lock held by the caller
func (s *Store) begin() (*sql.Tx, error) {
	if err := s.checkOpen(); err != nil {
		return nil, err
	}
	tx, err := s.db.Begin()
	if err != nil {
		return nil, errors.Wrap(err, "begin transaction")
	}
	return tx, nil
}
