package audit

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/rs/zerolog"
)

// FileSink appends one JSON object per entry to a local file.
type FileSink struct {
	mu  sync.Mutex
	f   *os.File
	buf bytes.Buffer
	enc zerolog.Logger
}

// NewFileSink opens path for appending, creating it and its directory.
func NewFileSink(path string) (*FileSink, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("create audit dir: %w", err)
	}
	f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return nil, fmt.Errorf("open audit log: %w", err)
	}

	s := &FileSink{f: f}
	s.enc = zerolog.New(&s.buf)
	return s, nil
}

// Name implements Sink.
func (s *FileSink) Name() string {
	return "file"
}

// Append writes e as a single line.
func (s *FileSink) Append(_ context.Context, e Entry) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.buf.Reset()
	s.enc.Log().
		Time("time", e.Time.UTC()).
		Str("op", string(e.Op)).
		Str("marker_id", e.MarkerID).
		Str("marker_name", e.MarkerName).
		Str("actor", e.Actor).
		Msg(e.Message())

	if _, err := s.f.Write(s.buf.Bytes()); err != nil {
		return fmt.Errorf("write audit log: %w", err)
	}
	return nil
}

// Close closes the file.
func (s *FileSink) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.f.Close()
}
