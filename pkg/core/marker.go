package core

import (
	"math"
	"strings"
	"unicode"
	"unicode/utf8"
)

// MarkerType classifies a marker. Unknown values collapse to TypePlayer.
type MarkerType string

const (
	TypePlayer   MarkerType = "player"
	TypeLocation MarkerType = "location"
	TypeEvent    MarkerType = "event"
)

// Default accents per marker type
const (
	ColorPlayer   = "#2563eb"
	ColorLocation = "#16a34a"
	ColorEvent    = "#f97316"
)

// ParseMarkerType normalizes s to a known MarkerType.
func ParseMarkerType(s string) MarkerType {
	switch MarkerType(strings.ToLower(strings.TrimSpace(s))) {
	case TypeLocation:
		return TypeLocation
	case TypeEvent:
		return TypeEvent
	default:
		return TypePlayer
	}
}

// TypeColor returns the default accent for a marker type.
func TypeColor(t MarkerType) string {
	switch t {
	case TypeLocation:
		return ColorLocation
	case TypeEvent:
		return ColorEvent
	default:
		return ColorPlayer
	}
}

// Marker is a named, typed point on the map image.
// X grows left to right and Y grows top to bottom, in image pixels.
type Marker struct {
	ID     string     `json:"id"`
	X      float64    `json:"x"`
	Y      float64    `json:"y"`
	Name   string     `json:"name"`
	Type   MarkerType `json:"type"`
	Color  string     `json:"color"`
	Avatar string     `json:"avatar"`
	Notes  string     `json:"notes,omitempty"`
}

// NewMarker builds a marker from create fields, filling every default.
// id is used when f carries no id of its own.
func NewMarker(f Fields, id string) Marker {
	m := Marker{ID: id}
	if f.ID != nil && *f.ID != "" {
		m.ID = *f.ID
	}
	if f.X != nil {
		m.X = RoundCoord(*f.X)
	}
	if f.Y != nil {
		m.Y = RoundCoord(*f.Y)
	}
	if f.Name != nil {
		m.Name = strings.TrimSpace(*f.Name)
	}
	if m.Name == "" {
		m.Name = m.ID
	}
	m.Type = TypePlayer
	if f.Type != nil {
		m.Type = ParseMarkerType(*f.Type)
	}
	if f.Color != nil {
		m.Color = *f.Color
	}
	if m.Color == "" {
		m.Color = TypeColor(m.Type)
	}
	if f.Avatar != nil {
		m.Avatar = strings.TrimSpace(*f.Avatar)
	}
	if f.Notes != nil {
		m.Notes = *f.Notes
	}
	return m
}

// Apply overwrites the fields present in f. The id is never touched.
func (m *Marker) Apply(f Fields) {
	if f.X != nil {
		m.X = RoundCoord(*f.X)
	}
	if f.Y != nil {
		m.Y = RoundCoord(*f.Y)
	}
	if f.Name != nil {
		m.Name = *f.Name
	}
	if f.Type != nil {
		m.Type = ParseMarkerType(*f.Type)
	}
	if f.Color != nil {
		m.Color = *f.Color
	}
	if f.Avatar != nil {
		m.Avatar = *f.Avatar
	}
	if f.Notes != nil {
		m.Notes = *f.Notes
	}
}

// Label returns the display name, falling back to the id.
func (m Marker) Label() string {
	if m.Name != "" {
		return m.Name
	}
	return m.ID
}

// SameIdentity reports whether the rendered pin of m and o would look the same.
// Position and notes are not part of the pin.
func (m Marker) SameIdentity(o Marker) bool {
	return m.Name == o.Name &&
		m.Type == o.Type &&
		m.Color == o.Color &&
		m.Avatar == o.Avatar
}

// SamePosition reports whether m and o sit on the same coordinates.
func (m Marker) SamePosition(o Marker) bool {
	return m.X == o.X && m.Y == o.Y
}

// RoundCoord rounds v half-up to two decimals. The epsilon absorbs the
// binary representation error of inputs like 100.005. Magnitudes of 1e15 and
// above have no fractional digits to round and are returned unchanged.
func RoundCoord(v float64) float64 {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return 0
	}
	if math.Abs(v) >= 1e15 {
		return v
	}
	return math.Floor(v*100+0.5+1e-9) / 100
}

// Initials returns up to two upper-cased leading letters of name, or "?".
func Initials(name string) string {
	parts := strings.Fields(name)
	if len(parts) == 0 {
		return "?"
	}
	if len(parts) > 2 {
		parts = parts[:2]
	}
	var b strings.Builder
	for _, part := range parts {
		r, _ := utf8.DecodeRuneInString(part)
		b.WriteRune(unicode.ToUpper(r))
	}
	return b.String()
}
