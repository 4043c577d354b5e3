package notify

import (
	"time"

	"github.com/rs/zerolog"
)

// Event describes one newly accepted item. Duplicates never reach a sink.
type Event struct {
	Fingerprint string     `json:"fingerprint"`
	SourceID    string     `json:"source_id"`
	Title       string     `json:"title"`
	URL         string     `json:"url"`
	Summary     string     `json:"summary,omitempty"`
	PublishedAt *time.Time `json:"published_at,omitempty"`
}

// Sink receives accepted-item events. Publish must not block the cycle;
// a slow consumer sheds events rather than stalling ingestion.
type Sink interface {
	Publish(ev Event)
}

// ChannelSink buffers events on a bounded channel for an in-process
// consumer. When the buffer is full the oldest event is dropped so the
// newest is always delivered.
type ChannelSink struct {
	ch chan Event
}

func NewChannelSink(size int) *ChannelSink {
	return &ChannelSink{ch: make(chan Event, size)}
}

func (s *ChannelSink) Publish(ev Event) {
	for {
		select {
		case s.ch <- ev:
			return
		default:
		}
		select {
		case <-s.ch:
		default:
		}
	}
}

// Events exposes the receive side for the consumer.
func (s *ChannelSink) Events() <-chan Event {
	return s.ch
}

// LogSink writes each event as a structured log line. It is the default
// sink when nothing downstream consumes events.
type LogSink struct {
	logger zerolog.Logger
}

func NewLogSink(logger zerolog.Logger) *LogSink {
	return &LogSink{logger: logger}
}

func (s *LogSink) Publish(ev Event) {
	evt := s.logger.Info().
		Str("fingerprint", ev.Fingerprint).
		Str("source_id", ev.SourceID).
		Str("title", ev.Title).
		Str("url", ev.URL)
	if ev.PublishedAt != nil {
		evt = evt.Time("published_at", *ev.PublishedAt)
	}
	evt.Msg("new item accepted")
}
