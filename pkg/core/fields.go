package core

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"
)

// Fields is a partial marker as submitted by a client. Nil means absent.
//
// Decoding only looks at the allow-listed keys; anything else in the payload
// is dropped, and a value of the wrong JSON type is treated as absent.
type Fields struct {
	ID     *string  `json:"id,omitempty"`
	X      *float64 `json:"x,omitempty"`
	Y      *float64 `json:"y,omitempty"`
	Name   *string  `json:"name,omitempty"`
	Type   *string  `json:"type,omitempty"`
	Color  *string  `json:"color,omitempty"`
	Avatar *string  `json:"avatar,omitempty"`
	Notes  *string  `json:"notes,omitempty"`
}

// Ptr returns a pointer to v.
func Ptr[T any](v T) *T {
	return &v
}

// Empty reports whether no field is set.
func (f Fields) Empty() bool {
	return f == Fields{}
}

// UnmarshalJSON implements json.Unmarshaler.
func (f *Fields) UnmarshalJSON(data []byte) error {
	*f = Fields{}
	if isNull(data) {
		return nil
	}

	var raw map[string]json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return fmt.Errorf("decode marker fields: %w", err)
	}

	f.ID = decodeID(raw["id"])
	f.X = decodeNumber(raw["x"])
	f.Y = decodeNumber(raw["y"])
	f.Name = decodeString(raw["name"])
	f.Type = decodeString(raw["type"])
	f.Color = decodeString(raw["color"])
	f.Avatar = decodeString(raw["avatar"])
	f.Notes = decodeString(raw["notes"])
	return nil
}

// ParseFields decodes a request body. An empty body yields empty fields.
func ParseFields(data []byte) (Fields, error) {
	var f Fields
	if len(bytes.TrimSpace(data)) == 0 {
		return f, nil
	}
	err := json.Unmarshal(data, &f)
	return f, err
}

func isNull(raw json.RawMessage) bool {
	trimmed := bytes.TrimSpace(raw)
	return len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null"))
}

func decodeNumber(raw json.RawMessage) *float64 {
	if isNull(raw) {
		return nil
	}
	var v float64
	if err := json.Unmarshal(raw, &v); err != nil {
		return nil
	}
	return &v
}

func decodeString(raw json.RawMessage) *string {
	if isNull(raw) {
		return nil
	}
	var v string
	if err := json.Unmarshal(raw, &v); err != nil {
		return nil
	}
	return &v
}

// UnmarshalJSON implements json.Unmarshaler. The id may be a JSON string or
// number; other fields decode as usual.
func (m *Marker) UnmarshalJSON(data []byte) error {
	if isNull(data) {
		return nil
	}
	type plain Marker
	aux := struct {
		ID json.RawMessage `json:"id"`
		*plain
	}{plain: (*plain)(m)}
	if err := json.Unmarshal(data, &aux); err != nil {
		return fmt.Errorf("decode marker: %w", err)
	}
	if aux.ID != nil {
		m.ID = ""
		if id := decodeID(aux.ID); id != nil {
			m.ID = *id
		}
	}
	return nil
}

// decodeID returns a string id as is and a numeric id in its JSON spelling.
// Anything else yields nil.
func decodeID(raw json.RawMessage) *string {
	if s := decodeString(raw); s != nil {
		return s
	}
	var n json.Number
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	if isNull(raw) || dec.Decode(&n) != nil {
		return nil
	}
	if _, err := strconv.ParseFloat(n.String(), 64); err != nil {
		return nil
	}
	return Ptr(n.String())
}
