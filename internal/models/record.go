package models

import (
	"encoding/json"
	"time"
)

// Record is one normalized row ready for upsert. Values holds one entry per
// schema column: nil for NULL, string, time.Time, bool or json.RawMessage.
type Record struct {
	Schema Schema
	ID     string
	Values map[string]any
}

func (r Record) Entity() Entity { return r.Schema.Entity }

func (r Record) Table() string { return r.Schema.Table }

// Args returns the column values in schema order.
func (r Record) Args() []any {
	args := make([]any, len(r.Schema.Columns))
	for i, col := range r.Schema.Columns {
		if col.Type == ColumnID {
			args[i] = r.ID
			continue
		}
		args[i] = r.Values[col.Name]
	}
	return args
}

// Text returns a text column; false when NULL.
func (r Record) Text(column string) (string, bool) {
	s, ok := r.Values[column].(string)
	return s, ok
}

// Time returns a timestamp column; false when NULL.
func (r Record) Time(column string) (time.Time, bool) {
	t, ok := r.Values[column].(time.Time)
	return t, ok
}

// Bool returns a boolean column; false when NULL.
func (r Record) Bool(column string) (value bool, ok bool) {
	value, ok = r.Values[column].(bool)
	return value, ok
}

// JSON returns the serialized blob stored in a JSON column.
func (r Record) JSON(column string) json.RawMessage {
	raw, _ := r.Values[column].(json.RawMessage)
	return raw
}
