// Package normalize maps raw support-API payloads onto fixed persistence
// records. Every field except the identifier is optional: absent scalars become
// NULL and absent structured fields become an empty JSON object or array.
package normalize

import (
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/wuwenbin0122/convo-sync/internal/models"
)

// ErrMissingID is returned for a record without a usable identifier.
var ErrMissingID = errors.New("normalize: record has no id")

var (
	emptyObject = json.RawMessage(`{}`)
	emptyArray  = json.RawMessage(`[]`)
)

// rule resolves one column: the first present path wins, otherwise fallback.
type rule struct {
	column   string
	paths    []string
	fallback json.RawMessage
}

var conversationRules = []rule{
	{column: "account_id", paths: []string{"account_id"}},
	{column: "inbox_id", paths: []string{"inbox_id"}},
	{column: "status", paths: []string{"status"}},
	{column: "customer_id", paths: []string{"meta.sender.id", "contact_id", "customer_id", "contact.id"}},
	{column: "assignee_id", paths: []string{"meta.assignee.id", "assignee_id", "assignee.id"}},
	{column: "channel", paths: []string{"meta.channel", "channel"}},
	{column: "created_at", paths: []string{"created_at"}},
	{column: "started_at", paths: []string{"started_at", "created_at"}},
	{column: "ended_at", paths: []string{"ended_at", "resolved_at"}},
	{column: "last_activity_at", paths: []string{"last_activity_at", "timestamp"}},
	{column: "updated_at", paths: []string{"updated_at"}},
	{column: "labels", paths: []string{"labels"}, fallback: emptyArray},
	{column: "custom_attributes", paths: []string{"custom_attributes"}, fallback: emptyObject},
	{column: "additional_attributes", paths: []string{"additional_attributes"}, fallback: emptyObject},
	{column: "meta", paths: []string{"meta"}, fallback: emptyObject},
}

// conversation_id is not listed: it always comes from the enclosing conversation.
var messageRules = []rule{
	{column: "sender_id", paths: []string{"sender.id", "sender_id"}},
	{column: "sender_type", paths: []string{"sender.type", "sender_type"}},
	{column: "message_type", paths: []string{"message_type"}},
	{column: "content", paths: []string{"content"}},
	{column: "content_type", paths: []string{"content_type"}},
	{column: "private", paths: []string{"private"}},
	{column: "sent_at", paths: []string{"created_at", "sent_at"}},
	{column: "updated_at", paths: []string{"updated_at"}},
	{column: "content_attributes", paths: []string{"content_attributes"}, fallback: emptyObject},
	{column: "additional_attributes", paths: []string{"additional_attributes"}, fallback: emptyObject},
	{column: "attachments", paths: []string{"attachments"}, fallback: emptyArray},
}

var senderRules = []rule{
	{column: "name", paths: []string{"name", "available_name"}},
	{column: "email", paths: []string{"email"}},
	{column: "phone_number", paths: []string{"phone_number"}},
	{column: "role", paths: []string{"type", "role"}},
	{column: "availability_status", paths: []string{"availability_status"}},
	{column: "thumbnail", paths: []string{"thumbnail", "avatar_url"}},
	{column: "custom_attributes", paths: []string{"custom_attributes"}, fallback: emptyObject},
	{column: "additional_attributes", paths: []string{"additional_attributes"}, fallback: emptyObject},
}

// Conversation normalizes a conversation payload.
func Conversation(p models.Payload) (models.Record, error) {
	return build(models.ConversationSchema, conversationRules, p)
}

// Message normalizes a message payload. conversationID overrides whatever
// conversation linkage the payload itself carries.
func Message(p models.Payload, conversationID string) (models.Record, error) {
	rec, err := build(models.MessageSchema, messageRules, p)
	if err != nil {
		return rec, err
	}
	rec.Values["conversation_id"] = conversationID
	return rec, nil
}

// Sender normalizes a user, agent or contact payload.
func Sender(p models.Payload) (models.Record, error) {
	return build(models.SenderSchema, senderRules, p)
}

// ID extracts the identifier of a payload.
func ID(p models.Payload) (string, bool) {
	v, ok := p.Lookup("id")
	if !ok {
		return "", false
	}
	id, ok := scalarString(v)
	if !ok {
		return "", false
	}
	id = strings.TrimSpace(id)
	return id, id != ""
}

// IsSenderShaped reports whether p looks like a persistable sender.
func IsSenderShaped(p models.Payload) bool {
	if p == nil {
		return false
	}
	_, ok := ID(p)
	return ok
}

// SenderKey identifies a sender within one conversation. Agents and contacts
// are numbered independently upstream, so the key includes the sender type;
// a payload without one is an agent.
func SenderKey(p models.Payload) (string, bool) {
	id, ok := ID(p)
	if !ok {
		return "", false
	}

	kind := "user"
	if v, ok := p.Lookup("type"); ok {
		if s, ok := v.(string); ok && strings.TrimSpace(s) != "" {
			kind = strings.ToLower(strings.TrimSpace(s))
		}
	}
	return kind + ":" + id, true
}

// MessageSender returns the sender embedded in a message, if any.
func MessageSender(msg models.Payload) models.Payload {
	return msg.Map("sender")
}

// Assignee returns the assignee carried by a conversation, if any. Assignee
// data is nested under meta in the list endpoint and at the top level in some
// payload variants.
func Assignee(conv models.Payload) models.Payload {
	for _, path := range []string{"meta.assignee", "assignee"} {
		if p := conv.Map(path); p != nil {
			return p
		}
	}
	return nil
}

func build(schema models.Schema, rules []rule, p models.Payload) (models.Record, error) {
	id, ok := ID(p)
	if !ok {
		return models.Record{Schema: schema}, fmt.Errorf("%w: %s", ErrMissingID, schema.Entity)
	}

	types := make(map[string]models.ColumnType, len(schema.Columns))
	for _, col := range schema.Columns {
		types[col.Name] = col.Type
	}

	values := make(map[string]any, len(schema.Columns))
	for _, r := range rules {
		values[r.column] = resolve(p, r, types[r.column])
	}

	return models.Record{Schema: schema, ID: id, Values: values}, nil
}

func resolve(p models.Payload, r rule, typ models.ColumnType) any {
	for _, path := range r.paths {
		raw, ok := p.Lookup(path)
		if !ok {
			continue
		}
		if v := convert(raw, typ); v != nil {
			return v
		}
	}
	if r.fallback != nil {
		return r.fallback
	}
	return nil
}

func convert(raw any, typ models.ColumnType) any {
	switch typ {
	case models.ColumnText, models.ColumnLongText, models.ColumnID:
		if s, ok := scalarString(raw); ok {
			return s
		}
		if b, err := json.Marshal(raw); err == nil {
			return string(b)
		}
	case models.ColumnTime:
		if t, ok := parseTime(raw); ok {
			return t
		}
	case models.ColumnBool:
		if b, ok := parseBool(raw); ok {
			return b
		}
	case models.ColumnJSON:
		if b, err := json.Marshal(raw); err == nil {
			return json.RawMessage(b)
		}
	}
	return nil
}

func scalarString(v any) (string, bool) {
	switch val := v.(type) {
	case string:
		return val, true
	case json.Number:
		return val.String(), true
	case float64:
		return strconv.FormatFloat(val, 'f', -1, 64), true
	case int:
		return strconv.Itoa(val), true
	case int64:
		return strconv.FormatInt(val, 10), true
	case bool:
		return strconv.FormatBool(val), true
	default:
		return "", false
	}
}

var timeLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05",
	"2006-01-02",
}

func parseTime(v any) (time.Time, bool) {
	switch val := v.(type) {
	case json.Number:
		f, err := val.Float64()
		if err != nil {
			return time.Time{}, false
		}
		return fromUnix(f)
	case float64:
		return fromUnix(val)
	case int64:
		return fromUnix(float64(val))
	case int:
		return fromUnix(float64(val))
	case string:
		s := strings.TrimSpace(val)
		if s == "" {
			return time.Time{}, false
		}
		if f, err := strconv.ParseFloat(s, 64); err == nil {
			return fromUnix(f)
		}
		for _, layout := range timeLayouts {
			if t, err := time.Parse(layout, s); err == nil {
				return t.UTC(), true
			}
		}
	}
	return time.Time{}, false
}

// fromUnix accepts seconds or milliseconds since the epoch.
func fromUnix(f float64) (time.Time, bool) {
	if f <= 0 || math.IsNaN(f) || math.IsInf(f, 0) {
		return time.Time{}, false
	}
	if f > 1e12 {
		return time.UnixMilli(int64(f)).UTC(), true
	}
	sec, frac := math.Modf(f)
	return time.Unix(int64(sec), int64(frac*1e9)).UTC(), true
}

func parseBool(v any) (bool, bool) {
	switch val := v.(type) {
	case bool:
		return val, true
	case json.Number:
		b, err := strconv.ParseBool(val.String())
		return b, err == nil
	case string:
		b, err := strconv.ParseBool(strings.TrimSpace(val))
		return b, err == nil
	}
	return false, false
}

// JSONDefaults lists, per table, the JSON written for each structured column
// that is absent from the payload.
func JSONDefaults() map[string]map[string]string {
	out := make(map[string]map[string]string)
	add := func(schema models.Schema, rules []rule) {
		cols := make(map[string]string)
		for _, r := range rules {
			if r.fallback != nil {
				cols[r.column] = string(r.fallback)
			}
		}
		out[schema.Table] = cols
	}

	add(models.ConversationSchema, conversationRules)
	add(models.MessageSchema, messageRules)
	add(models.SenderSchema, senderRules)
	return out
}
