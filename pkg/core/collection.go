package core

// Collection is the whole persisted document. It is always loaded and saved
// as one unit.
type Collection struct {
	Markers []Marker `json:"markers"`
}

// NewCollection returns an empty collection that encodes as {"markers":[]}.
func NewCollection() Collection {
	return Collection{Markers: make([]Marker, 0)}
}

// Index returns the position of the first marker with id, or -1.
func (c Collection) Index(id string) int {
	for i := range c.Markers {
		if c.Markers[i].ID == id {
			return i
		}
	}
	return -1
}

// Has reports whether a marker with id exists.
func (c Collection) Has(id string) bool {
	return c.Index(id) >= 0
}

// Remove deletes the first marker with id and returns it.
func (c *Collection) Remove(id string) (Marker, bool) {
	i := c.Index(id)
	if i < 0 {
		return Marker{}, false
	}
	removed := c.Markers[i]
	c.Markers = append(c.Markers[:i], c.Markers[i+1:]...)
	return removed, true
}

// Clone returns a deep copy safe to hand to another goroutine.
func (c Collection) Clone() Collection {
	out := Collection{Markers: make([]Marker, len(c.Markers))}
	copy(out.Markers, c.Markers)
	return out
}

// Normalize replaces a nil slice with an empty one.
func (c *Collection) Normalize() {
	if c.Markers == nil {
		c.Markers = make([]Marker, 0)
	}
}
