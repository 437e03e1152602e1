package wallet

import (
	"context"

	"github.com/chainletter/chainletter/errors"
)

// Disconnected is the Signer used when no signing authority is attached
// (read-only tooling, tests of sync paths). Every capability fails with
// ErrSessionExpired so callers surface the re-auth path.
type Disconnected struct{}

func (Disconnected) Decrypt(context.Context, string) (string, error) {
	return "", errors.Wrap(errors.ErrSessionExpired, "no signer attached")
}

func (Disconnected) Encrypt(context.Context, string, string) (string, error) {
	return "", errors.Wrap(errors.ErrSessionExpired, "no signer attached")
}

func (Disconnected) Broadcast(context.Context, []BroadcastOp) (string, error) {
	return "", errors.Wrap(errors.ErrSessionExpired, "no signer attached")
}
