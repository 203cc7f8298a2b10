package domain

import (
	"bytes"
	"encoding/json"
	"strings"
)

// Value is one raw JSON field value as returned by the extraction oracle.
// The zero value means the field is absent.
type Value json.RawMessage

// TextValue builds a Value holding a JSON string.
func TextValue(s string) Value {
	b, _ := json.Marshal(s)
	return Value(b)
}

// JSONValue marshals v into a Value. It panics only on unmarshalable input.
func JSONValue(v interface{}) Value {
	b, err := json.Marshal(v)
	if err != nil {
		panic(err)
	}
	return Value(b)
}

func (v Value) MarshalJSON() ([]byte, error) {
	if len(v) == 0 {
		return []byte("null"), nil
	}
	return []byte(v), nil
}

func (v *Value) UnmarshalJSON(b []byte) error {
	if bytes.Equal(bytes.TrimSpace(b), []byte("null")) {
		*v = nil
		return nil
	}
	*v = append(Value(nil), b...)
	return nil
}

// Present reports whether the value is set, not null and not an empty string.
func (v Value) Present() bool {
	t := bytes.TrimSpace(v)
	if len(t) == 0 || bytes.Equal(t, []byte("null")) || bytes.Equal(t, []byte(`""`)) {
		return false
	}
	return true
}

// Text returns the value as a string if it is a JSON string.
func (v Value) Text() (string, bool) {
	if !v.isKind('"') {
		return "", false
	}
	var s string
	if err := json.Unmarshal(v, &s); err != nil {
		return "", false
	}
	return s, true
}

// Array returns the elements if the value is a JSON array.
func (v Value) Array() ([]json.RawMessage, bool) {
	if !v.isKind('[') {
		return nil, false
	}
	var arr []json.RawMessage
	if err := json.Unmarshal(v, &arr); err != nil {
		return nil, false
	}
	return arr, true
}

// Object returns the members if the value is a JSON object.
func (v Value) Object() (map[string]json.RawMessage, bool) {
	if !v.isKind('{') {
		return nil, false
	}
	var obj map[string]json.RawMessage
	if err := json.Unmarshal(v, &obj); err != nil {
		return nil, false
	}
	return obj, true
}

// String renders the value for humans: strings unquoted, anything else as compact JSON.
func (v Value) String() string {
	if s, ok := v.Text(); ok {
		return s
	}
	if !v.Present() {
		return ""
	}
	var buf bytes.Buffer
	if err := json.Compact(&buf, v); err != nil {
		return string(v)
	}
	return buf.String()
}

// Same reports whether two values carry the same content, ignoring surrounding
// whitespace and letter case of strings.
func (v Value) Same(other Value) bool {
	return strings.EqualFold(strings.TrimSpace(v.String()), strings.TrimSpace(other.String()))
}

func (v Value) isKind(first byte) bool {
	t := bytes.TrimSpace(v)
	return len(t) > 0 && t[0] == first
}
