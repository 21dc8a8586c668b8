package observability

import (
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// Event is one protocol-level occurrence: a send, a receive, a veto, a
// failure. Filters receive the event before it is emitted and may annotate
// it; attributes accumulate until the owning component emits.
type Event struct {
	Name    string
	Channel string
	MTI     string
	Err     error
	attrs   map[string]string
}

// Set annotates the event with a key/value attribute.
func (e *Event) Set(key, value string) {
	if e.attrs == nil {
		e.attrs = make(map[string]string)
	}
	e.attrs[key] = value
}

func (e *Event) Attr(key string) string {
	return e.attrs[key]
}

// EventSink receives protocol events. Implementations must never fail in a
// way that reaches the protocol path; Emit has nothing to return.
type EventSink interface {
	Emit(e *Event)
}

// LogSink writes events as structured zerolog records.
type LogSink struct {
	log zerolog.Logger
}

func NewLogSink(logger zerolog.Logger) *LogSink {
	return &LogSink{log: logger}
}

// DefaultSink logs through the process-wide zerolog logger.
func DefaultSink() *LogSink {
	return &LogSink{log: log.Logger}
}

func (s *LogSink) Emit(e *Event) {
	var evt *zerolog.Event
	if e.Err != nil {
		evt = s.log.Warn().Err(e.Err)
	} else {
		evt = s.log.Debug()
	}
	if e.Channel != "" {
		evt = evt.Str("channel", e.Channel)
	}
	if e.MTI != "" {
		evt = evt.Str("mti", e.MTI)
	}
	for k, v := range e.attrs {
		evt = evt.Str(k, v)
	}
	evt.Msg(e.Name)
}

// NopSink drops everything.
type NopSink struct{}

func (NopSink) Emit(*Event) {}
