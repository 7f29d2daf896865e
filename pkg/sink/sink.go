package sink

import (
	"context"

	"github.com/rs/zerolog"

	"github.com/SKR-karthick/ReachInbox-Assignment/pkg/models"
)

// Sink receives every canonical message the engine produces, both during
// historical backfill and during live idle-triggered fetches.
//
// Emission is fire-and-forget from the engine's point of view: a sink error
// is logged by the caller but never fails a sync. Each Emit call is atomic
// with respect to concurrent emitters, and because a reconnect re-runs the
// historical search, the same message may be emitted more than once with the
// same ID; consumers dedupe on Message.ID.
type Sink interface {
	Emit(ctx context.Context, msg *models.Message) error
}

// ChannelSink delivers messages on an in-process channel. The zero buffer
// default makes emission block on a slow consumer, which in turn paces the
// fetch pipeline.
type ChannelSink struct {
	ch chan *models.Message
}

// NewChannelSink creates a channel sink with the given buffer size.
func NewChannelSink(buffer int) *ChannelSink {
	if buffer < 0 {
		buffer = 0
	}
	return &ChannelSink{ch: make(chan *models.Message, buffer)}
}

// Messages is the consumer side of the sink.
func (s *ChannelSink) Messages() <-chan *models.Message {
	return s.ch
}

// Emit sends the message, giving up when ctx is cancelled so an aborted
// fetch never blocks shutdown.
func (s *ChannelSink) Emit(ctx context.Context, msg *models.Message) error {
	select {
	case s.ch <- msg:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// LogSink writes a one-line summary per message. Useful as a default when no
// downstream consumer is wired up.
type LogSink struct {
	Log zerolog.Logger
}

func (s *LogSink) Emit(_ context.Context, msg *models.Message) error {
	s.Log.Info().
		Str("id", msg.ID).
		Str("account", msg.AccountID).
		Str("subject", msg.Subject).
		Int("attachments", len(msg.Attachments)).
		Bool("seen", msg.Seen).
		Msg("Message synchronized")
	return nil
}

// Tee fans one emission out to several sinks. The first error is returned
// after all sinks were attempted.
type Tee []Sink

func (t Tee) Emit(ctx context.Context, msg *models.Message) error {
	var first error
	for _, s := range t {
		if err := s.Emit(ctx, msg); err != nil && first == nil {
			first = err
		}
	}
	return first
}
