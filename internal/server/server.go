package server

import (
	"context"
	"errors"
	"fmt"
	"net"
	"sync"
	"time"

	"golang.org/x/sync/semaphore"

	"github.com/danmuck/isolink/internal/channel"
	"github.com/danmuck/isolink/internal/iso"
	"github.com/danmuck/isolink/internal/observability"
)

const DefaultWorkers = 100

var (
	ErrNoListener     = errors.New("server: request listener required")
	ErrNoPackager     = errors.New("server: packager required")
	ErrAlreadyServing = errors.New("server: already serving")
)

// Source is the reply capability handed to a RequestListener alongside each
// inbound message. *channel.Channel satisfies it.
type Source interface {
	Send(m *iso.Message) error
	IsConnected() bool
}

// RequestListener consumes inbound messages. Process reports whether the
// message was handled; either way the connection's receive loop continues.
type RequestListener interface {
	Process(src Source, m *iso.Message) bool
}

// ListenerFunc adapts a function to RequestListener.
type ListenerFunc func(src Source, m *iso.Message) bool

func (f ListenerFunc) Process(src Source, m *iso.Message) bool {
	return f(src, m)
}

// Config is the channel template stamped onto every accepted connection,
// plus the accept-side knobs.
type Config struct {
	Name     string
	Addr     string
	Packager *iso.Packager
	Framing  channel.Framing
	Inbound  []channel.Filter
	Outbound []channel.Filter
	Listener RequestListener
	Workers  int64 // handler slots; DefaultWorkers when unset
	Sink     observability.EventSink
}

func (c Config) withDefaults() Config {
	if c.Workers <= 0 {
		c.Workers = DefaultWorkers
	}
	if c.Sink == nil {
		c.Sink = observability.DefaultSink()
	}
	if c.Name == "" {
		c.Name = c.Addr
	}
	return c
}

// admitQueue is an unbounded FIFO of accepted channels awaiting a worker
// slot. Accepting must never block or drop, so the queue grows as needed.
type admitQueue struct {
	mu     sync.Mutex
	items  []*channel.Channel
	wake   chan struct{}
	closed bool
}

func newAdmitQueue() *admitQueue {
	return &admitQueue{wake: make(chan struct{}, 1)}
}

func (q *admitQueue) push(ch *channel.Channel) {
	q.mu.Lock()
	closed := q.closed
	if !closed {
		q.items = append(q.items, ch)
	}
	q.mu.Unlock()
	if closed {
		_ = ch.Disconnect()
		return
	}
	select {
	case q.wake <- struct{}{}:
	default:
	}
}

// pop blocks until a channel is queued or the queue closes or ctx ends,
// returning nil for the latter two.
func (q *admitQueue) pop(ctx context.Context) *channel.Channel {
	for {
		q.mu.Lock()
		if q.closed {
			q.mu.Unlock()
			return nil
		}
		if len(q.items) > 0 {
			ch := q.items[0]
			q.items = q.items[1:]
			q.mu.Unlock()
			return ch
		}
		q.mu.Unlock()
		select {
		case <-ctx.Done():
			return nil
		case <-q.wake:
		}
	}
}

func (q *admitQueue) close() {
	q.mu.Lock()
	q.closed = true
	q.mu.Unlock()
	select {
	case q.wake <- struct{}{}:
	default:
	}
}

// drain empties the queue for teardown.
func (q *admitQueue) drain() []*channel.Channel {
	q.mu.Lock()
	items := q.items
	q.items = nil
	q.mu.Unlock()
	return items
}

// Server accepts connections and serves each one with a per-connection
// handler drawn from a bounded worker pool. Accepted connections enter a
// FIFO admission queue and slots are granted strictly in arrival order, so
// saturation delays service without dropping or reordering accepted
// connections.
type Server struct {
	cfg Config

	mu      sync.Mutex
	ln      net.Listener
	serving bool
	wg      sync.WaitGroup
	slots   *semaphore.Weighted
	queue   *admitQueue
}

func New(cfg Config) (*Server, error) {
	if cfg.Packager == nil {
		return nil, ErrNoPackager
	}
	if cfg.Listener == nil {
		return nil, ErrNoListener
	}
	cfg = cfg.withDefaults()
	return &Server{
		cfg:   cfg,
		slots: semaphore.NewWeighted(cfg.Workers),
		queue: newAdmitQueue(),
	}, nil
}

// Listen binds the configured address and runs the accept loop in the
// calling goroutine. It returns once the listener closes.
func (s *Server) Listen(ctx context.Context) error {
	s.mu.Lock()
	if s.serving {
		s.mu.Unlock()
		return ErrAlreadyServing
	}
	ln, err := net.Listen("tcp", s.cfg.Addr)
	if err != nil {
		s.mu.Unlock()
		return fmt.Errorf("server %s: %w", s.cfg.Name, err)
	}
	s.ln = ln
	s.serving = true
	s.mu.Unlock()

	s.cfg.Sink.Emit(&observability.Event{Name: "server.listen", Channel: s.cfg.Name})
	s.wg.Add(1)
	go s.admitLoop(ctx)
	return s.acceptLoop(ln)
}

// Addr reports the bound listener address, for callers that listen on ":0".
func (s *Server) Addr() net.Addr {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.ln == nil {
		return nil
	}
	return s.ln.Addr()
}

func (s *Server) acceptLoop(ln net.Listener) error {
	defer s.queue.close()
	for {
		conn, err := ln.Accept()
		if err != nil {
			if errors.Is(err, net.ErrClosed) {
				return nil
			}
			return fmt.Errorf("server %s: accept: %w", s.cfg.Name, err)
		}
		ch, err := channel.Wrap(conn, channel.Config{
			Packager: s.cfg.Packager,
			Framing:  s.cfg.Framing,
			Inbound:  s.cfg.Inbound,
			Outbound: s.cfg.Outbound,
			Sink:     s.cfg.Sink,
		})
		if err != nil {
			_ = conn.Close()
			continue
		}
		s.queue.push(ch)
	}
}

// admitLoop grants worker slots in accept order. A connection is not read
// until its slot is granted; the slot wait is the backpressure point, and
// queue position fixes who gets the next free slot.
func (s *Server) admitLoop(ctx context.Context) {
	defer s.wg.Done()
	for {
		ch := s.queue.pop(ctx)
		if ch == nil {
			for _, waiting := range s.queue.drain() {
				_ = waiting.Disconnect()
			}
			return
		}
		if err := s.slots.Acquire(ctx, 1); err != nil {
			_ = ch.Disconnect()
			continue
		}
		s.wg.Add(1)
		go s.handle(ch)
	}
}

// handle serves one admitted connection until the peer disconnects or the
// transport fails, then releases its worker slot.
func (s *Server) handle(ch *channel.Channel) {
	defer s.wg.Done()
	defer s.slots.Release(1)
	defer func() { _ = ch.Disconnect() }()

	observability.ConnectionOpened(s.cfg.Name)
	defer observability.ConnectionClosed(s.cfg.Name)

	for {
		m, err := ch.Receive()
		if err != nil {
			if errors.Is(err, channel.ErrVetoed) {
				continue
			}
			s.cfg.Sink.Emit(&observability.Event{
				Name:    "server.receive.end",
				Channel: ch.Name(),
				Err:     err,
			})
			return
		}
		s.process(ch, m)
	}
}

// process shields the receive loop from listener misbehavior: an unhandled
// message or a panicking listener is reported and the loop keeps going.
func (s *Server) process(ch *channel.Channel, m *iso.Message) {
	defer func() {
		if r := recover(); r != nil {
			s.cfg.Sink.Emit(&observability.Event{
				Name:    "server.listener.panic",
				Channel: ch.Name(),
				MTI:     m.MTI(),
				Err:     fmt.Errorf("%v", r),
			})
		}
	}()
	if !s.cfg.Listener.Process(ch, m) {
		s.cfg.Sink.Emit(&observability.Event{
			Name:    "server.unhandled",
			Channel: ch.Name(),
			MTI:     m.MTI(),
		})
	}
}

// Shutdown closes the listener and waits for in-flight handlers to finish,
// up to the given grace period. Queued connections not yet admitted are
// dropped.
func (s *Server) Shutdown(grace time.Duration) error {
	s.mu.Lock()
	ln := s.ln
	s.ln = nil
	s.serving = false
	s.mu.Unlock()
	if ln == nil {
		return nil
	}
	err := ln.Close()

	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(grace):
	}
	return err
}
