package audit

import (
	"context"
	"fmt"
	"os"

	"github.com/Graylog2/go-gelf/gelf"
)

// gelfLevelInfo is the syslog informational severity.
const gelfLevelInfo = 6

type messageWriter interface {
	WriteMessage(m *gelf.Message) error
}

// GelfSink ships entries to Graylog over UDP.
type GelfSink struct {
	w    messageWriter
	host string
}

// NewGelfSink dials the Graylog input at addr.
func NewGelfSink(addr string) (*GelfSink, error) {
	w, err := gelf.NewWriter(addr)
	if err != nil {
		return nil, fmt.Errorf("gelf writer: %w", err)
	}
	return newGelfSink(w), nil
}

func newGelfSink(w messageWriter) *GelfSink {
	host, err := os.Hostname()
	if err != nil {
		host = "mapsync"
	}
	return &GelfSink{w: w, host: host}
}

// Name implements Sink.
func (s *GelfSink) Name() string {
	return "gelf"
}

// Append sends e as one GELF message.
func (s *GelfSink) Append(_ context.Context, e Entry) error {
	m := &gelf.Message{
		Version:  "1.1",
		Host:     s.host,
		Short:    e.Message(),
		TimeUnix: float64(e.Time.UnixNano()) / 1e9,
		Level:    gelfLevelInfo,
		Facility: "mapsync",
		Extra: map[string]interface{}{
			"_op":          string(e.Op),
			"_marker_id":   e.MarkerID,
			"_marker_name": e.MarkerName,
			"_actor":       e.Actor,
		},
	}
	if err := s.w.WriteMessage(m); err != nil {
		return fmt.Errorf("gelf write: %w", err)
	}
	return nil
}

// Close implements Sink. The UDP writer holds no state worth flushing.
func (s *GelfSink) Close() error {
	return nil
}
