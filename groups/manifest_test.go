package groups

import (
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/chainletter/chainletter/errors"
	"github.com/chainletter/chainletter/ledger"
)

var t0 = time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC)

func customOp(seq int64, author, payload string) ledger.Operation {
	return ledger.Operation{
		SeqID:     seq,
		BlockNum:  seq * 10,
		TxID:      fmt.Sprintf("tx-%d", seq),
		Timestamp: t0.Add(time.Duration(seq) * time.Minute),
		Kind:      ledger.OpCustomJSON,
		Custom: &ledger.CustomOp{
			ID:       ledger.CustomOpID,
			Required: []string{author},
			JSON:     payload,
		},
	}
}

func createOp(seq int64, author, groupID string, version int64, members ...string) ledger.Operation {
	payload := fmt.Sprintf(
		`{"action":"create","group_id":%q,"name":"%s chat","members":%s,"creator":%q,"version":%d}`,
		groupID, groupID, jsonList(members), author, version)
	return customOp(seq, author, payload)
}

func updateOp(seq int64, author, groupID string, version int64, members ...string) ledger.Operation {
	payload := fmt.Sprintf(
		`{"action":"update","group_id":%q,"name":"%s chat","members":%s,"creator":%q,"version":%d}`,
		groupID, groupID, jsonList(members), author, version)
	return customOp(seq, author, payload)
}

func leaveOp(seq int64, author, groupID string, version int64) ledger.Operation {
	payload := fmt.Sprintf(
		`{"action":"leave","group_id":%q,"account":%q,"version":%d}`,
		groupID, author, version)
	return customOp(seq, author, payload)
}

func jsonList(items []string) string {
	out := "["
	for i, it := range items {
		if i > 0 {
			out += ","
		}
		out += fmt.Sprintf("%q", it)
	}
	return out + "]"
}

func TestParseControlCreate(t *testing.T) {
	ctrl, err := ParseControl(createOp(1, "alice", "trip", 1, "alice", "bob"))
	require.NoError(t, err)
	assert.Equal(t, ActionCreate, ctrl.Action)
	assert.Equal(t, "trip", ctrl.GroupID)
	assert.Equal(t, []string{"alice", "bob"}, ctrl.Members)
	assert.Equal(t, "alice", ctrl.Creator)
	assert.Equal(t, int64(1), ctrl.Version)
}

func TestParseControlLeaveActorFallsBackToAuthority(t *testing.T) {
	op := customOp(2, "bob", `{"action":"leave","group_id":"trip","version":2}`)
	ctrl, err := ParseControl(op)
	require.NoError(t, err)
	assert.Equal(t, "bob", ctrl.Account, "actor defaults to the signing authority")
}

func TestParseControlRejectsInvalid(t *testing.T) {
	cases := map[string]string{
		"malformed json":       `{"action":"create",`,
		"missing group id":     `{"action":"create","members":["a"],"version":1}`,
		"empty members":        `{"action":"update","group_id":"g","members":[],"version":1}`,
		"non-positive version": `{"action":"create","group_id":"g","members":["a"],"version":0}`,
	}
	for name, payload := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := ParseControl(customOp(1, "alice", payload))
			require.Error(t, err)
			assert.False(t, errors.Is(err, errNotControl), "malformed controls are errors, not skips")
		})
	}
}

func TestParseControlSkipsForeignOperations(t *testing.T) {
	other := customOp(1, "alice", `{"action":"create"}`)
	other.Custom.ID = "some-other-app"
	_, err := ParseControl(other)
	assert.True(t, errors.Is(err, errNotControl))

	transfer := ledger.Operation{
		Kind:     ledger.OpTransfer,
		Transfer: &ledger.TransferOp{From: "a", To: "b"},
	}
	_, err = ParseControl(transfer)
	assert.True(t, errors.Is(err, errNotControl))

	unknownAction := customOp(1, "alice", `{"action":"wave","group_id":"g"}`)
	_, err = ParseControl(unknownAction)
	assert.True(t, errors.Is(err, errNotControl))
}
