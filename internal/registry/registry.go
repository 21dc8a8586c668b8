package registry

import (
	"sort"
	"sync"

	"github.com/danmuck/isolink/internal/channel"
	"github.com/danmuck/isolink/internal/mux"
)

// Registry maps names to live channels and multiplexers so that components
// assembled separately can find each other at runtime. It is an explicit
// object owned by the composition root, not package state; construct one,
// pass it down, Close it on teardown.
type Registry struct {
	mu       sync.RWMutex
	channels map[string]*channel.Channel
	muxes    map[string]*mux.Mux
}

func New() *Registry {
	return &Registry{
		channels: make(map[string]*channel.Channel),
		muxes:    make(map[string]*mux.Mux),
	}
}

func (r *Registry) AddChannel(name string, ch *channel.Channel) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.channels[name] = ch
}

func (r *Registry) Channel(name string) (*channel.Channel, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	ch, ok := r.channels[name]
	return ch, ok
}

func (r *Registry) RemoveChannel(name string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.channels, name)
}

func (r *Registry) AddMux(name string, m *mux.Mux) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.muxes[name] = m
}

func (r *Registry) Mux(name string) (*mux.Mux, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	m, ok := r.muxes[name]
	return m, ok
}

func (r *Registry) RemoveMux(name string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.muxes, name)
}

// Names lists registered channel names in stable order.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]string, 0, len(r.channels))
	for name := range r.channels {
		out = append(out, name)
	}
	sort.Strings(out)
	return out
}

// Close tears everything down: muxes first (failing their pending
// requests), then any channels not owned by a mux.
func (r *Registry) Close() {
	r.mu.Lock()
	muxes := r.muxes
	channels := r.channels
	r.muxes = make(map[string]*mux.Mux)
	r.channels = make(map[string]*channel.Channel)
	r.mu.Unlock()

	for _, m := range muxes {
		_ = m.Close()
	}
	for _, ch := range channels {
		_ = ch.Disconnect()
	}
}
