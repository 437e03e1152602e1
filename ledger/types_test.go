package ledger

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func rawOp(t *testing.T, seq int64, opJSON string) rawOperation {
	t.Helper()
	return rawOperation{
		Seq:       seq,
		Block:     seq * 10,
		TrxID:     "tx-abc",
		Timestamp: "2026-01-15T10:30:00",
		Op:        json.RawMessage(opJSON),
	}
}

func TestParseTransfer(t *testing.T) {
	raw := rawOp(t, 12, `{"type":"transfer","value":{"from":"alice","to":"bob","amount":"0.001 TOK","memo":"#enc-payload"}}`)

	op, err := parseOperation(raw)
	require.NoError(t, err)

	assert.Equal(t, int64(12), op.SeqID)
	assert.Equal(t, OpTransfer, op.Kind)
	require.NotNil(t, op.Transfer)
	assert.Nil(t, op.Custom)
	assert.Equal(t, "alice", op.Transfer.From)
	assert.Equal(t, "bob", op.Transfer.To)
	assert.True(t, op.Transfer.Encrypted())
	assert.Equal(t, time.Date(2026, 1, 15, 10, 30, 0, 0, time.UTC), op.Timestamp)
}

func TestParsePlainMemoNotEncrypted(t *testing.T) {
	raw := rawOp(t, 3, `{"type":"transfer","value":{"from":"alice","to":"bob","amount":"5.000 TOK","memo":"thanks for lunch"}}`)
	op, err := parseOperation(raw)
	require.NoError(t, err)
	assert.False(t, op.Transfer.Encrypted())
}

func TestParseCustomJSON(t *testing.T) {
	raw := rawOp(t, 44, `{"type":"custom_json","value":{"id":"chainletter","required_posting_auths":["carol"],"json":"{\"action\":\"create\"}"}}`)

	op, err := parseOperation(raw)
	require.NoError(t, err)
	assert.Equal(t, OpCustomJSON, op.Kind)
	require.NotNil(t, op.Custom)
	assert.Equal(t, CustomOpID, op.Custom.ID)
	assert.Equal(t, []string{"carol"}, op.Custom.Required)
	assert.JSONEq(t, `{"action":"create"}`, op.Custom.JSON)
}

func TestParseRejectsMalformed(t *testing.T) {
	tests := []struct {
		name string
		raw  rawOperation
	}{
		{"negative seq", rawOperation{Seq: -5, TrxID: "tx", Timestamp: "2026-01-15T10:30:00", Op: json.RawMessage(`{"type":"transfer","value":{"from":"a","to":"b"}}`)}},
		{"missing trx id", rawOperation{Seq: 1, Timestamp: "2026-01-15T10:30:00", Op: json.RawMessage(`{"type":"transfer","value":{"from":"a","to":"b"}}`)}},
		{"bad timestamp", rawOp(t, 1, `{"type":"transfer","value":{"from":"a","to":"b"}}`)},
		{"broken envelope", rawOp(t, 1, `{nope`)},
		{"transfer without parties", rawOp(t, 1, `{"type":"transfer","value":{"memo":"x"}}`)},
		{"custom without id", rawOp(t, 1, `{"type":"custom_json","value":{"json":"{}"}}`)},
	}
	// fix timestamps for the entries built with rawOp
	tests[2].raw.Timestamp = "not-a-time"

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := parseOperation(tt.raw)
			assert.Error(t, err)
		})
	}
}

func TestParseSkipsUnsupportedKinds(t *testing.T) {
	raw := rawOp(t, 9, `{"type":"vote","value":{"voter":"alice"}}`)
	_, err := parseOperation(raw)
	require.Error(t, err)
	assert.ErrorIs(t, err, errUnsupportedKind)
}

func TestTimestampWithZone(t *testing.T) {
	raw := rawOp(t, 7, `{"type":"transfer","value":{"from":"a","to":"b","memo":""}}`)
	raw.Timestamp = "2026-01-15T10:30:00Z"
	op, err := parseOperation(raw)
	require.NoError(t, err)
	assert.Equal(t, time.Date(2026, 1, 15, 10, 30, 0, 0, time.UTC), op.Timestamp)
}

func TestFilterMatches(t *testing.T) {
	var nilFilter *Filter
	assert.True(t, nilFilter.Matches(OpTransfer))
	assert.True(t, (&Filter{}).Matches(OpCustomJSON))

	f := &Filter{Kinds: []OpKind{OpCustomJSON}}
	assert.True(t, f.Matches(OpCustomJSON))
	assert.False(t, f.Matches(OpTransfer))
}
