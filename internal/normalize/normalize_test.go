package normalize_test

import (
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wuwenbin0122/convo-sync/internal/models"
	"github.com/wuwenbin0122/convo-sync/internal/normalize"
)

func decode(t *testing.T, raw string) models.Payload {
	t.Helper()
	items, err := models.DecodePayloads([]byte("[" + raw + "]"))
	require.NoError(t, err)
	require.Len(t, items, 1)
	return items[0]
}

func TestConversationFullPayload(t *testing.T) {
	p := decode(t, `{
		"id": 42,
		"account_id": 65,
		"inbox_id": 7,
		"status": "open",
		"created_at": 1700000000,
		"last_activity_at": "2023-11-14T22:20:00Z",
		"labels": ["vip"],
		"custom_attributes": {"plan": "gold"},
		"meta": {
			"sender": {"id": 9, "name": "Customer"},
			"assignee": {"id": 3, "name": "Agent", "type": "user"},
			"channel": "Channel::WebWidget"
		}
	}`)

	rec, err := normalize.Conversation(p)
	require.NoError(t, err)

	assert.Equal(t, "42", rec.ID)
	assert.Equal(t, "conversations", rec.Table())

	status, ok := rec.Text("status")
	require.True(t, ok)
	assert.Equal(t, "open", status)

	customer, _ := rec.Text("customer_id")
	assert.Equal(t, "9", customer)
	assignee, _ := rec.Text("assignee_id")
	assert.Equal(t, "3", assignee)
	channel, _ := rec.Text("channel")
	assert.Equal(t, "Channel::WebWidget", channel)

	created, ok := rec.Time("created_at")
	require.True(t, ok)
	assert.Equal(t, time.Unix(1700000000, 0).UTC(), created)

	started, ok := rec.Time("started_at")
	require.True(t, ok, "started_at falls back to created_at")
	assert.Equal(t, created, started)

	lastActivity, ok := rec.Time("last_activity_at")
	require.True(t, ok)
	assert.Equal(t, time.Date(2023, 11, 14, 22, 20, 0, 0, time.UTC), lastActivity)

	assert.JSONEq(t, `["vip"]`, string(rec.JSON("labels")))
	assert.JSONEq(t, `{"plan":"gold"}`, string(rec.JSON("custom_attributes")))
	assert.JSONEq(t, `{}`, string(rec.JSON("additional_attributes")))
}

func TestConversationMissingOptionalFields(t *testing.T) {
	rec, err := normalize.Conversation(decode(t, `{"id": "abc"}`))
	require.NoError(t, err)

	for _, column := range []string{"status", "customer_id", "assignee_id", "channel"} {
		_, ok := rec.Text(column)
		assert.False(t, ok, "%s should be NULL", column)
	}
	_, ok := rec.Time("ended_at")
	assert.False(t, ok)

	assert.JSONEq(t, `[]`, string(rec.JSON("labels")))
	assert.JSONEq(t, `{}`, string(rec.JSON("meta")))

	args := rec.Args()
	require.Len(t, args, len(models.ConversationSchema.Columns))
	assert.Equal(t, "abc", args[0])
}

func TestMissingIDFails(t *testing.T) {
	cases := map[string]func(models.Payload) error{
		"conversation": func(p models.Payload) error { _, err := normalize.Conversation(p); return err },
		"message":      func(p models.Payload) error { _, err := normalize.Message(p, "1"); return err },
		"sender":       func(p models.Payload) error { _, err := normalize.Sender(p); return err },
	}

	for name, fn := range cases {
		t.Run(name, func(t *testing.T) {
			err := fn(decode(t, `{"id": "  ", "status": "open"}`))
			require.Error(t, err)
			assert.True(t, errors.Is(err, normalize.ErrMissingID))
		})
	}
}

func TestMessageUsesEnclosingConversationID(t *testing.T) {
	p := decode(t, `{
		"id": 1001,
		"conversation_id": 999,
		"content": "hello",
		"content_type": "text",
		"message_type": 0,
		"private": false,
		"created_at": 1700000000123,
		"sender": {"id": 9, "type": "contact"}
	}`)

	rec, err := normalize.Message(p, "42")
	require.NoError(t, err)

	conv, _ := rec.Text("conversation_id")
	assert.Equal(t, "42", conv)

	sender, _ := rec.Text("sender_id")
	assert.Equal(t, "9", sender)
	senderType, _ := rec.Text("sender_type")
	assert.Equal(t, "contact", senderType)
	msgType, _ := rec.Text("message_type")
	assert.Equal(t, "0", msgType)

	private, ok := rec.Bool("private")
	require.True(t, ok)
	assert.False(t, private)

	sent, ok := rec.Time("sent_at")
	require.True(t, ok)
	assert.Equal(t, time.UnixMilli(1700000000123).UTC(), sent)

	assert.JSONEq(t, `[]`, string(rec.JSON("attachments")))
}

func TestMessageWithoutSender(t *testing.T) {
	p := decode(t, `{"id": 5, "content": null}`)

	rec, err := normalize.Message(p, "42")
	require.NoError(t, err)

	_, ok := rec.Text("sender_id")
	assert.False(t, ok)
	_, ok = rec.Text("content")
	assert.False(t, ok)
	assert.Nil(t, normalize.MessageSender(p))
}

func TestSenderVariants(t *testing.T) {
	rec, err := normalize.Sender(decode(t, `{"id": 3, "available_name": "Agent Smith", "role": "agent", "avatar_url": "https://x/y.png"}`))
	require.NoError(t, err)

	name, _ := rec.Text("name")
	assert.Equal(t, "Agent Smith", name)
	role, _ := rec.Text("role")
	assert.Equal(t, "agent", role)
	thumb, _ := rec.Text("thumbnail")
	assert.Equal(t, "https://x/y.png", thumb)
	_, ok := rec.Text("email")
	assert.False(t, ok)
}

func TestAssigneeLookup(t *testing.T) {
	nested := decode(t, `{"id": 1, "meta": {"assignee": {"id": 3}}}`)
	top := decode(t, `{"id": 1, "assignee": {"id": 4}}`)
	none := decode(t, `{"id": 1, "meta": {"assignee": null}}`)
	noID := decode(t, `{"id": 1, "meta": {"assignee": {"name": "ghost"}}}`)

	assert.True(t, normalize.IsSenderShaped(normalize.Assignee(nested)))
	id, _ := normalize.ID(normalize.Assignee(top))
	assert.Equal(t, "4", id)
	assert.Nil(t, normalize.Assignee(none))
	assert.False(t, normalize.IsSenderShaped(normalize.Assignee(noID)))
}

func TestSenderKeySeparatesAgentsFromContacts(t *testing.T) {
	agent, ok := normalize.SenderKey(decode(t, `{"id": 7}`))
	require.True(t, ok)
	contact, ok := normalize.SenderKey(decode(t, `{"id": 7, "type": "Contact"}`))
	require.True(t, ok)
	user, _ := normalize.SenderKey(decode(t, `{"id": 7, "type": "user"}`))

	assert.Equal(t, "user:7", agent)
	assert.Equal(t, "contact:7", contact)
	assert.Equal(t, agent, user)

	_, ok = normalize.SenderKey(decode(t, `{"name": "ghost"}`))
	assert.False(t, ok)
}

func TestUnparseableTimestampIsNull(t *testing.T) {
	rec, err := normalize.Conversation(decode(t, `{"id": 1, "created_at": "yesterday-ish", "labels": "not-an-array"}`))
	require.NoError(t, err)

	_, ok := rec.Time("created_at")
	assert.False(t, ok)
	// attribute blobs are opaque; whatever shape arrives is kept
	assert.Equal(t, json.RawMessage(`"not-an-array"`), rec.JSON("labels"))
}
