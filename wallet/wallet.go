// Package wallet defines the capabilities delegated to the external signing
// authority. The application never holds keys: encrypt, decrypt, and
// broadcast are consumed as opaque operations, and decrypt failures carry a
// typed reason so callers can distinguish re-auth from a silent skip.
package wallet

import (
	"context"

	"github.com/chainletter/chainletter/errors"
	"github.com/chainletter/chainletter/ledger"
)

// Signer is the external signing authority.
//
// Decrypt returns the plaintext for a signer-encrypted memo, or an error
// wrapping one of errors.ErrUserDeclined / errors.ErrSessionExpired for the
// two interaction failures that need distinct handling; anything else is
// treated as unknown. Signer errors are never retried automatically.
type Signer interface {
	Decrypt(ctx context.Context, ciphertext string) (string, error)
	Encrypt(ctx context.Context, plaintext, recipient string) (string, error)
	Broadcast(ctx context.Context, ops []BroadcastOp) (txID string, err error)
}

// BroadcastOp is one operation to sign and submit to the ledger
type BroadcastOp struct {
	Kind     ledger.OpKind
	Transfer *ledger.TransferOp
	Custom   *ledger.CustomOp
}

// FailureReason classifies a decrypt error for per-message rendering
type FailureReason string

const (
	// ReasonDeclined: user rejected the prompt; skip silently
	ReasonDeclined FailureReason = "declined"
	// ReasonExpired: signer session needs re-authentication
	ReasonExpired FailureReason = "expired"
	// ReasonUnknown: transient or unclassified; eligible for manual retry
	ReasonUnknown FailureReason = "unknown"
)

// ClassifyError maps a decrypt error to its failure reason
func ClassifyError(err error) FailureReason {
	switch {
	case errors.Is(err, errors.ErrUserDeclined):
		return ReasonDeclined
	case errors.Is(err, errors.ErrSessionExpired):
		return ReasonExpired
	default:
		return ReasonUnknown
	}
}
