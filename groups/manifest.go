// Package groups discovers the complete set of groups an account belongs to
// by scanning the social graph implied by ledger operations: the account's own
// control history, the histories of accounts that messaged it, and a bounded
// breadth-first expansion over discovered members. There is no central
// directory; concurrent membership updates are resolved by a strictly
// increasing version number.
package groups

import (
	"encoding/json"
	"time"

	"github.com/chainletter/chainletter/errors"
	"github.com/chainletter/chainletter/ledger"
)

// Control actions carried in group manifest operations
const (
	ActionCreate = "create"
	ActionUpdate = "update"
	ActionLeave  = "leave"
)

// Control is one decoded group-control operation. For create/update, Members
// is the full membership snapshot at Version. For leave, Account is the member
// who left and Members is empty.
type Control struct {
	Action    string
	GroupID   string
	Name      string
	Members   []string
	Creator   string
	Account   string
	Version   int64
	Timestamp time.Time
}

type rawControl struct {
	Action  string   `json:"action"`
	GroupID string   `json:"group_id"`
	Name    string   `json:"name"`
	Members []string `json:"members"`
	Creator string   `json:"creator"`
	Account string   `json:"account"`
	Version int64    `json:"version"`
}

// errNotControl marks custom operations outside the group-control namespace
// (join requests, other applications). Callers skip, never handle.
var errNotControl = errors.New("not a group control operation")

// ParseControl decodes a ledger operation into a group control op. Operations
// that are not chainletter custom_json, or carry a different action, return
// errNotControl; malformed control payloads return a descriptive error so the
// scan can log and skip them.
func ParseControl(op ledger.Operation) (*Control, error) {
	if op.Kind != ledger.OpCustomJSON || op.Custom == nil || op.Custom.ID != ledger.CustomOpID {
		return nil, errNotControl
	}

	var raw rawControl
	if err := json.Unmarshal([]byte(op.Custom.JSON), &raw); err != nil {
		return nil, errors.Wrap(err, "malformed control payload")
	}

	switch raw.Action {
	case ActionCreate, ActionUpdate:
		if raw.GroupID == "" {
			return nil, errors.New("control missing group_id")
		}
		if len(raw.Members) == 0 {
			return nil, errors.Newf("%s for %s has no members", raw.Action, raw.GroupID)
		}
		if raw.Version <= 0 {
			return nil, errors.Newf("%s for %s has non-positive version %d", raw.Action, raw.GroupID, raw.Version)
		}
	case ActionLeave:
		if raw.GroupID == "" {
			return nil, errors.New("leave missing group_id")
		}
	default:
		return nil, errNotControl
	}

	account := raw.Account
	if account == "" && len(op.Custom.Required) > 0 {
		account = op.Custom.Required[0]
	}

	return &Control{
		Action:    raw.Action,
		GroupID:   raw.GroupID,
		Name:      raw.Name,
		Members:   raw.Members,
		Creator:   raw.Creator,
		Account:   account,
		Version:   raw.Version,
		Timestamp: op.Timestamp,
	}, nil
}
