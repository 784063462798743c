package protocol_test

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/a-essam23/collab-dispatch/pkg/protocol"
	"github.com/a-essam23/collab-dispatch/pkg/store"
)

func TestParseEnvelope(t *testing.T) {
	cm, err := protocol.ParseEnvelope([]byte(`{"event":"task:update","requestId":"r-1","payload":{"taskId":"t1"}}`))
	require.NoError(t, err)
	assert.Equal(t, "task:update", cm.Event)
	assert.Equal(t, "r-1", cm.RequestID)
	assert.JSONEq(t, `{"taskId":"t1"}`, string(cm.Payload))

	for _, raw := range []string{`not json`, `[1,2]`, `{"payload":{}}`, `{"event":42}`, `{"event":""}`} {
		_, err := protocol.ParseEnvelope([]byte(raw))
		assert.ErrorIs(t, err, protocol.ErrMalformedEnvelope, raw)
	}
}

func TestDecodeInboundTyped(t *testing.T) {
	cm, err := protocol.ParseEnvelope([]byte(`{"event":"task:update","payload":{"workspaceId":"ws-1","taskId":"t1","changes":{"status":"done"}}}`))
	require.NoError(t, err)

	evt, err := protocol.DecodeInbound(cm)
	require.NoError(t, err)
	upd, ok := evt.(protocol.UpdateTask)
	require.True(t, ok, "expected UpdateTask, got %T", evt)
	assert.Equal(t, "t1", upd.TaskID)
	require.NotNil(t, upd.Changes.Status)
	assert.Equal(t, store.StatusDone, *upd.Changes.Status)
	assert.Nil(t, upd.Changes.Title)
	assert.False(t, upd.Changes.Empty())
}

func TestDecodeInboundEmptyPayload(t *testing.T) {
	evt, err := protocol.DecodeInbound(protocol.ClientMessage{Event: protocol.EventPresenceRequest})
	require.NoError(t, err)
	assert.IsType(t, protocol.RequestPresence{}, evt)
}

func TestDecodeInboundErrors(t *testing.T) {
	_, err := protocol.DecodeInbound(protocol.ClientMessage{Event: "task:explode"})
	assert.ErrorIs(t, err, protocol.ErrUnknownEvent)

	_, err = protocol.DecodeInbound(protocol.ClientMessage{
		Event:   protocol.EventTaskCreate,
		Payload: json.RawMessage(`{"title":42}`),
	})
	require.Error(t, err)
	assert.NotErrorIs(t, err, protocol.ErrUnknownEvent)
}

func TestEncodeOmitsUntouchedChanges(t *testing.T) {
	status := store.StatusDone
	msg, err := protocol.Encode(protocol.TaskUpdated{
		WorkspaceID: "ws-1",
		TaskID:      "t1",
		Changes:     protocol.TaskChanges{Status: &status},
		ActorID:     "A",
	})
	require.NoError(t, err)

	var decoded struct {
		Event   string         `json:"event"`
		Payload map[string]any `json:"payload"`
	}
	require.NoError(t, json.Unmarshal(msg, &decoded))
	assert.Equal(t, "task:updated", decoded.Event)
	assert.Equal(t, map[string]any{"status": "done"}, decoded.Payload["changes"])
	assert.Equal(t, "A", decoded.Payload["actorId"])
}

func TestTypingEventsShareInboundNames(t *testing.T) {
	assert.Equal(t, protocol.EventTypingStart, protocol.TypingStarted{}.EventName())
	assert.Equal(t, protocol.EventTypingStop, protocol.TypingStopped{}.EventName())
}
