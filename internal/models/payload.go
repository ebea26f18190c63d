package models

import (
	"bytes"
	"encoding/json"
	"strings"
)

// Payload is one raw record as returned by the support API. Numbers are kept
// as json.Number so identifiers survive decoding without float rounding.
type Payload map[string]any

// Lookup resolves a dotted path ("meta.assignee.id") against the payload.
// The path "." or "" returns the payload itself.
func (p Payload) Lookup(path string) (any, bool) {
	if p == nil {
		return nil, false
	}
	if path == "" || path == "." {
		return map[string]any(p), true
	}
	return LookupPath(map[string]any(p), path)
}

// Map returns the nested object at path, or nil when absent or not an object.
func (p Payload) Map(path string) Payload {
	v, ok := p.Lookup(path)
	if !ok {
		return nil
	}
	return AsPayload(v)
}

// List returns the nested array at path. The boolean reports whether the key
// was present and held an array, which lets callers tell "no messages" from
// "messages were not embedded".
func (p Payload) List(path string) ([]any, bool) {
	v, ok := p.Lookup(path)
	if !ok {
		return nil, false
	}
	items, ok := v.([]any)
	return items, ok
}

// LookupPath walks a dotted path through nested JSON objects.
func LookupPath(root any, path string) (any, bool) {
	if path == "" || path == "." {
		return root, root != nil
	}

	current := root
	for _, key := range strings.Split(path, ".") {
		obj, ok := asObject(current)
		if !ok {
			return nil, false
		}
		next, exists := obj[key]
		if !exists || next == nil {
			return nil, false
		}
		current = next
	}
	return current, true
}

// AsPayload converts a decoded JSON value to a Payload when it is an object.
func AsPayload(v any) Payload {
	obj, ok := asObject(v)
	if !ok {
		return nil
	}
	return Payload(obj)
}

// Payloads keeps the object elements of a decoded JSON array.
func Payloads(items []any) []Payload {
	out := make([]Payload, 0, len(items))
	for _, item := range items {
		if p := AsPayload(item); p != nil {
			out = append(out, p)
		}
	}
	return out
}

// DecodePayloads decodes a JSON array of objects.
func DecodePayloads(raw []byte) ([]Payload, error) {
	var items []any
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	if err := dec.Decode(&items); err != nil {
		return nil, err
	}
	return Payloads(items), nil
}

func asObject(v any) (map[string]any, bool) {
	switch obj := v.(type) {
	case map[string]any:
		return obj, true
	case Payload:
		return obj, true
	default:
		return nil, false
	}
}
