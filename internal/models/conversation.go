package models

// Entity names the three record kinds the connector persists.
type Entity string

const (
	EntityConversation Entity = "conversation"
	EntityMessage      Entity = "message"
	EntitySender       Entity = "sender"
)

// ColumnType tells stores how to declare and bind a column.
type ColumnType int

const (
	ColumnID ColumnType = iota
	ColumnText
	ColumnLongText
	ColumnTime
	ColumnBool
	ColumnJSON
)

type Column struct {
	Name string
	Type ColumnType
}

// Schema describes one persisted table. The first column is always the "id"
// conflict key. Indexes lists secondary single-column indexes.
type Schema struct {
	Entity  Entity
	Table   string
	Columns []Column
	Indexes []string
}

var ConversationSchema = Schema{
	Entity: EntityConversation,
	Table:  "conversations",
	Columns: []Column{
		{"id", ColumnID},
		{"account_id", ColumnText},
		{"inbox_id", ColumnText},
		{"status", ColumnText},
		{"customer_id", ColumnText},
		{"assignee_id", ColumnText},
		{"channel", ColumnText},
		{"created_at", ColumnTime},
		{"started_at", ColumnTime},
		{"ended_at", ColumnTime},
		{"last_activity_at", ColumnTime},
		{"updated_at", ColumnTime},
		{"labels", ColumnJSON},
		{"custom_attributes", ColumnJSON},
		{"additional_attributes", ColumnJSON},
		{"meta", ColumnJSON},
	},
	Indexes: []string{"last_activity_at"},
}

var MessageSchema = Schema{
	Entity: EntityMessage,
	Table:  "messages",
	Columns: []Column{
		{"id", ColumnID},
		{"conversation_id", ColumnText},
		{"sender_id", ColumnText},
		{"sender_type", ColumnText},
		{"message_type", ColumnText},
		{"content", ColumnLongText},
		{"content_type", ColumnText},
		{"private", ColumnBool},
		{"sent_at", ColumnTime},
		{"updated_at", ColumnTime},
		{"content_attributes", ColumnJSON},
		{"additional_attributes", ColumnJSON},
		{"attachments", ColumnJSON},
	},
	Indexes: []string{"conversation_id"},
}

var SenderSchema = Schema{
	Entity: EntitySender,
	Table:  "users",
	Columns: []Column{
		{"id", ColumnID},
		{"name", ColumnText},
		{"email", ColumnText},
		{"phone_number", ColumnText},
		{"role", ColumnText},
		{"availability_status", ColumnText},
		{"thumbnail", ColumnLongText},
		{"custom_attributes", ColumnJSON},
		{"additional_attributes", ColumnJSON},
	},
}

// Schemas lists every persisted table in creation order.
func Schemas() []Schema {
	return []Schema{ConversationSchema, MessageSchema, SenderSchema}
}

// ColumnNames returns the column names in declaration order.
func (s Schema) ColumnNames() []string {
	names := make([]string, len(s.Columns))
	for i, col := range s.Columns {
		names[i] = col.Name
	}
	return names
}
