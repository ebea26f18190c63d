package models

import "time"

// TableColumn is one row of information_schema.columns.
type TableColumn struct {
	Name     string `json:"name" db:"column_name"`
	DataType string `json:"data_type" db:"data_type"`
	Nullable bool   `json:"nullable" db:"is_nullable"`
}

// TableStats summarises one synced table.
type TableStats struct {
	Table   string        `json:"table"`
	Rows    int64         `json:"rows"`
	Columns []TableColumn `json:"columns"`
	Missing bool          `json:"missing"`
}

// RecentConversation is a compact view of a stored conversation.
type RecentConversation struct {
	ID             string     `json:"id" db:"id"`
	Status         *string    `json:"status" db:"status"`
	LastActivityAt *time.Time `json:"last_activity_at" db:"last_activity_at"`
	Messages       int64      `json:"messages" db:"messages"`
}
