// Package ledger provides read access to the append-only transaction ledger:
// a typed operation model, a validating parser for the untyped RPC payloads,
// and a paginated scanner with endpoint failover and backfill.
package ledger

import (
	"encoding/json"
	"strings"
	"time"

	"github.com/chainletter/chainletter/errors"
)

// OpKind discriminates the tagged Operation variants
type OpKind string

const (
	// OpTransfer is a token transfer carrying a memo (possibly encrypted)
	OpTransfer OpKind = "transfer"
	// OpCustomJSON is a custom-data operation (group control, join requests)
	OpCustomJSON OpKind = "custom_json"
)

// CustomOpID is the custom_json id namespace this application owns.
// Operations with other ids are skipped at the scan boundary.
const CustomOpID = "chainletter"

// EncryptedMemoPrefix marks a transfer memo as end-to-end encrypted by the
// signer. Anything else is a plain memo (payments, exchange deposits).
const EncryptedMemoPrefix = "#"

// Operation is one ledger operation, immutable once confirmed.
// SeqID is the per-account monotonically increasing sequence number assigned
// by the ledger, and the only safe pagination key. Exactly one of Transfer
// and Custom is non-nil, selected by Kind.
type Operation struct {
	SeqID     int64
	BlockNum  int64
	TxID      string
	Timestamp time.Time
	Kind      OpKind
	Transfer  *TransferOp
	Custom    *CustomOp
}

// TransferOp is the payload of a transfer operation
type TransferOp struct {
	From   string
	To     string
	Amount string
	Memo   string
}

// Encrypted reports whether the transfer memo is signer-encrypted
func (t *TransferOp) Encrypted() bool {
	return strings.HasPrefix(t.Memo, EncryptedMemoPrefix)
}

// CustomOp is the payload of a custom_json operation. JSON holds the raw
// application payload; downstream classification decodes it exactly once.
type CustomOp struct {
	ID       string
	Required []string // accounts whose authority signed the op
	JSON     string
}

// rawOperation mirrors the wire shape returned by account history endpoints
type rawOperation struct {
	Seq       int64           `json:"seq"`
	Block     int64           `json:"block"`
	TrxID     string          `json:"trx_id"`
	Timestamp string          `json:"timestamp"`
	Op        json.RawMessage `json:"op"`
}

type rawOpEnvelope struct {
	Type  string          `json:"type"`
	Value json.RawMessage `json:"value"`
}

type rawTransfer struct {
	From   string `json:"from"`
	To     string `json:"to"`
	Amount string `json:"amount"`
	Memo   string `json:"memo"`
}

type rawCustomJSON struct {
	ID       string   `json:"id"`
	Required []string `json:"required_posting_auths"`
	JSON     string   `json:"json"`
}

// timestampFormats covers the variants ledger nodes emit. Most nodes omit the
// zone suffix and mean UTC.
var timestampFormats = []string{
	"2006-01-02T15:04:05",
	time.RFC3339,
}

func parseTimestamp(s string) (time.Time, error) {
	for _, layout := range timestampFormats {
		if ts, err := time.ParseInLocation(layout, s, time.UTC); err == nil {
			return ts, nil
		}
	}
	return time.Time{}, errors.Newf("unrecognized timestamp %q", s)
}

// parseOperation decodes and validates one raw history entry into a tagged
// Operation. Returns ErrUnsupportedKind for kinds this application does not
// consume; callers skip those without logging noise.
func parseOperation(raw rawOperation) (Operation, error) {
	if raw.Seq < 0 {
		return Operation{}, errors.Newf("negative sequence id %d", raw.Seq)
	}
	if raw.TrxID == "" {
		return Operation{}, errors.New("missing trx_id")
	}

	ts, err := parseTimestamp(raw.Timestamp)
	if err != nil {
		return Operation{}, err
	}

	var envelope rawOpEnvelope
	if err := json.Unmarshal(raw.Op, &envelope); err != nil {
		return Operation{}, errors.Wrap(err, "malformed op envelope")
	}

	op := Operation{
		SeqID:     raw.Seq,
		BlockNum:  raw.Block,
		TxID:      raw.TrxID,
		Timestamp: ts,
	}

	switch envelope.Type {
	case string(OpTransfer):
		var t rawTransfer
		if err := json.Unmarshal(envelope.Value, &t); err != nil {
			return Operation{}, errors.Wrap(err, "malformed transfer payload")
		}
		if t.From == "" || t.To == "" {
			return Operation{}, errors.New("transfer missing from/to")
		}
		op.Kind = OpTransfer
		op.Transfer = &TransferOp{From: t.From, To: t.To, Amount: t.Amount, Memo: t.Memo}

	case string(OpCustomJSON):
		var c rawCustomJSON
		if err := json.Unmarshal(envelope.Value, &c); err != nil {
			return Operation{}, errors.Wrap(err, "malformed custom_json payload")
		}
		if c.ID == "" {
			return Operation{}, errors.New("custom_json missing id")
		}
		op.Kind = OpCustomJSON
		op.Custom = &CustomOp{ID: c.ID, Required: c.Required, JSON: c.JSON}

	default:
		return Operation{}, errUnsupportedKind
	}

	return op, nil
}

// errUnsupportedKind marks operation kinds outside this application's model
// (votes, witness updates, ...). Not exported: callers filter, never handle.
var errUnsupportedKind = errors.New("unsupported operation kind")

// Filter restricts a history read to certain operation kinds.
// A nil Filter matches everything the parser understands.
type Filter struct {
	Kinds []OpKind
}

// Matches reports whether the filter admits an operation of the given kind
func (f *Filter) Matches(kind OpKind) bool {
	if f == nil || len(f.Kinds) == 0 {
		return true
	}
	for _, k := range f.Kinds {
		if k == kind {
			return true
		}
	}
	return false
}
