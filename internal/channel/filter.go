package channel

import (
	"errors"

	"github.com/danmuck/isolink/internal/iso"
	"github.com/danmuck/isolink/internal/observability"
)

// ErrVetoed marks a message dropped by a filter. A veto aborts the single
// send or receive and leaves the channel healthy; callers treat it as "no
// message", never as a transport failure.
var ErrVetoed = errors.New("channel: message vetoed by filter")

// Filter transforms a message on its way through a channel. It may return a
// replacement message, annotate the in-flight event, or veto by returning
// ErrVetoed (wrapped or bare).
type Filter interface {
	Apply(c *Channel, m *iso.Message, e *observability.Event) (*iso.Message, error)
}

// FilterFunc adapts a function to the Filter interface.
type FilterFunc func(c *Channel, m *iso.Message, e *observability.Event) (*iso.Message, error)

func (f FilterFunc) Apply(c *Channel, m *iso.Message, e *observability.Event) (*iso.Message, error) {
	return f(c, m, e)
}

// applyFilters runs the chain in registration order, threading the message.
func applyFilters(filters []Filter, c *Channel, m *iso.Message, e *observability.Event) (*iso.Message, error) {
	for _, f := range filters {
		next, err := f.Apply(c, m, e)
		if err != nil {
			return nil, err
		}
		m = next
	}
	return m, nil
}
