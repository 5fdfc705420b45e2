package out

import (
	"context"
	"log"
)

// LogSink writes each envelope as one JSON log line.
type LogSink struct {
	l *log.Logger
}

// NewLogSink logs through l, or the standard logger when l is nil.
func NewLogSink(l *log.Logger) *LogSink {
	if l == nil {
		l = log.Default()
	}
	return &LogSink{l: l}
}

func (s *LogSink) Emit(ctx context.Context, typ string, v any) error {
	b, err := encode(typ, v)
	if err != nil {
		return err
	}
	s.l.Printf("[out] %s", b)
	return nil
}

func (s *LogSink) Close() error { return nil }
