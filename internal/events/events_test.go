package events_test

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"sentinal-widget/internal/domain"
	"sentinal-widget/internal/events"
)

func TestDecode_UserMessage(t *testing.T) {
	raw := []byte(`{"type":"user_message","message_id":"m1","sender_id":"u2","content":"hey"}`)
	ev, err := events.Decode(raw)
	require.NoError(t, err)

	msg, ok := ev.(*events.UserMessage)
	require.True(t, ok)
	assert.Equal(t, "m1", msg.MessageID)
	assert.Equal(t, "u2", msg.SenderID)
	assert.Equal(t, "hey", msg.Content)
}

func TestDecode_StatusUpdateWithPromotion(t *testing.T) {
	raw := []byte(`{"type":"status_update","message_id":"srv-1","client_message_id":"local-1","status":"delivered"}`)
	ev, err := events.Decode(raw)
	require.NoError(t, err)

	upd, ok := ev.(*events.StatusUpdate)
	require.True(t, ok)
	assert.Equal(t, "srv-1", upd.MessageID)
	assert.Equal(t, "local-1", upd.ClientMessageID)
	assert.Equal(t, domain.StatusDelivered, upd.Status)
}

func TestDecode_ReactionUpdate(t *testing.T) {
	raw := []byte(`{"type":"reaction_update","message_id":"m1","reactions":[{"emoji":"🔥","count":3}]}`)
	ev, err := events.Decode(raw)
	require.NoError(t, err)

	upd, ok := ev.(*events.ReactionUpdate)
	require.True(t, ok)
	require.Len(t, upd.Reactions, 1)
	assert.Equal(t, 3, upd.Reactions[0].Count)
}

func TestDecode_ErrorFrame(t *testing.T) {
	ev, err := events.Decode([]byte(`{"type":"error","message":"quota exceeded"}`))
	require.NoError(t, err)

	serr, ok := ev.(*events.ServerError)
	require.True(t, ok)
	assert.Equal(t, "quota exceeded", serr.Message)
}

func TestDecode_UnknownType(t *testing.T) {
	_, err := events.Decode([]byte(`{"type":"telemetry"}`))
	assert.Error(t, err)
}

func TestDecode_MalformedPayload(t *testing.T) {
	_, err := events.Decode([]byte(`{"type":`))
	assert.Error(t, err)
}

func TestChatMessage_WireShape(t *testing.T) {
	ev := events.NewChatMessage("conv-1", "local-1", "hi", []domain.Attachment{{ID: "att-1", Kind: domain.AttachmentImage}}, "m0")
	data, err := json.Marshal(ev)
	require.NoError(t, err)

	var frame map[string]interface{}
	require.NoError(t, json.Unmarshal(data, &frame))
	assert.Equal(t, "chat_message", frame["type"])
	assert.Equal(t, "local-1", frame["client_message_id"])
	assert.Equal(t, "m0", frame["reply_to_id"])
}

func TestTypingSignals_WireShape(t *testing.T) {
	start, err := json.Marshal(events.NewTypingStart("conv-1"))
	require.NoError(t, err)
	stop, err := json.Marshal(events.NewTypingStop("conv-1"))
	require.NoError(t, err)

	assert.JSONEq(t, `{"type":"typing_start","conversation_id":"conv-1"}`, string(start))
	assert.JSONEq(t, `{"type":"typing_stop","conversation_id":"conv-1"}`, string(stop))
}
