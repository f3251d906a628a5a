// Package audit records a human-readable trail of marker mutations.
//
// Records are handed to a bounded Queue and written to one or more Sinks in
// the background. A failing sink never affects the mutation that produced
// the record.
package audit

import (
	"context"
	"fmt"
	"regexp"
	"strings"
	"time"
)

// Op names the kind of mutation an entry describes.
type Op string

const (
	OpAdd    Op = "add"
	OpUpdate Op = "update"
	OpDelete Op = "delete"
)

// MaxMessageLen bounds the length of a rendered description, in runes.
const MaxMessageLen = 160

var lineBreaks = regexp.MustCompile(`[\r\n]+`)

// Entry describes one applied mutation.
type Entry struct {
	Op         Op
	MarkerID   string
	MarkerName string
	Actor      string
	Time       time.Time
}

// Subject returns the marker name, or its id when the name is empty.
func (e Entry) Subject() string {
	if e.MarkerName != "" {
		return e.MarkerName
	}
	return e.MarkerID
}

// Message renders the entry as a single sanitized line, e.g.
// "Update marker Camp by alice".
func (e Entry) Message() string {
	var verb string
	switch e.Op {
	case OpAdd:
		verb = "Add"
	case OpDelete:
		verb = "Delete"
	default:
		verb = "Update"
	}
	return Sanitize(fmt.Sprintf("%s marker %s by %s", verb, e.Subject(), e.Actor))
}

// Sanitize folds line breaks into spaces, escapes double quotes and
// truncates to MaxMessageLen runes.
func Sanitize(s string) string {
	s = lineBreaks.ReplaceAllString(s, " ")
	s = strings.ReplaceAll(s, `"`, `\"`)
	if r := []rune(s); len(r) > MaxMessageLen {
		s = string(r[:MaxMessageLen])
	}
	return s
}

// Sink is an append-only destination for entries.
type Sink interface {
	// Name identifies the sink in logs and metrics.
	Name() string
	Append(ctx context.Context, e Entry) error
	Close() error
}

// Notifier accepts entries without blocking.
type Notifier interface {
	Notify(e Entry) error
}
