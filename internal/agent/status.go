package agent

import (
	"context"
	"sync"
)

// StatusSink receives best-effort progress notes published by tools while a
// streaming turn is running. Publish never blocks: if the consumer is behind,
// the note is dropped. Status is ephemeral UI feedback, not part of the
// conversation record.
type StatusSink struct {
	mu     sync.Mutex
	closed bool
	send   func(string)
}

func newStatusSink(send func(string)) *StatusSink {
	return &StatusSink{send: send}
}

// Publish delivers a progress note. No-op after Close.
func (s *StatusSink) Publish(msg string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed || s.send == nil {
		return
	}
	s.send(msg)
}

// Close marks the sink closed. The orchestrator calls this only after every
// goroutine that might publish has been confirmed stopped, so a publish can
// never race a closed consumer.
func (s *StatusSink) Close() {
	s.mu.Lock()
	s.closed = true
	s.mu.Unlock()
}

type statusSinkKey struct{}

// WithStatusSink returns a context carrying the sink. Installed by the
// streaming orchestrator for the duration of one turn.
func WithStatusSink(ctx context.Context, sink *StatusSink) context.Context {
	return context.WithValue(ctx, statusSinkKey{}, sink)
}

// PublishStatus publishes a progress note through the sink on ctx, if any.
// Outside a streaming turn there is no sink and the call is a no-op, so
// tools can publish unconditionally.
func PublishStatus(ctx context.Context, msg string) {
	if sink, ok := ctx.Value(statusSinkKey{}).(*StatusSink); ok && sink != nil {
		sink.Publish(msg)
	}
}
