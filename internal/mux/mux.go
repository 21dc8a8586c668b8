package mux

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/danmuck/isolink/internal/channel"
	"github.com/danmuck/isolink/internal/iso"
	"github.com/danmuck/isolink/internal/observability"
	"github.com/danmuck/isolink/internal/server"
)

var (
	ErrDuplicateKey  = errors.New("mux: request key already pending")
	ErrNoResponse    = errors.New("mux: no response within timeout")
	ErrChannelFailed = errors.New("mux: channel failed")
	ErrNoKey         = errors.New("mux: message yields empty correlation key")
	ErrNoChannel     = errors.New("mux: channel required")
)

// staleTTL bounds how long a timed-out key is remembered so that its late
// response can still be routed to the stale sink instead of the fresh-
// request listener.
const staleTTL = time.Minute

// KeyFunc derives the correlation key matching a request to its response.
type KeyFunc func(m *iso.Message) (string, error)

// DefaultKey concatenates the terminal id (field 41) and the trace number
// (field 11), the conventional pairing for interchange correlation.
func DefaultKey(m *iso.Message) (string, error) {
	terminal := m.GetString(41)
	stan := m.GetString(11)
	if terminal == "" && stan == "" {
		return "", ErrNoKey
	}
	return terminal + stan, nil
}

// Config wires a multiplexer over one channel. Unmatched receives fresh
// requests arriving from the peer; Stale, when set, receives responses that
// lost their timeout race, otherwise they fall through to Unmatched.
type Config struct {
	Name      string
	Channel   *channel.Channel
	Key       KeyFunc
	Unmatched server.RequestListener
	Stale     server.RequestListener
	Sink      observability.EventSink
}

type result struct {
	msg *iso.Message
	err error
}

// pendingRequest is registered -> resolved exactly once: by match, by
// timeout, or by channel failure. Removal from the table under the mux
// lock is the resolution claim; whoever removes it delivers.
type pendingRequest struct {
	key      string
	done     chan result
	callback func(m *iso.Message, handback any)
	handback any
	timer    *time.Timer
}

// Mux turns one shared channel into a request/response facility for many
// concurrent callers.
type Mux struct {
	cfg Config

	mu       sync.Mutex
	pending  map[string]*pendingRequest
	timedOut map[string]time.Time
	failed   bool
	failErr  error
}

// New validates cfg and starts the receiver loop.
func New(cfg Config) (*Mux, error) {
	if cfg.Channel == nil {
		return nil, ErrNoChannel
	}
	if cfg.Key == nil {
		cfg.Key = DefaultKey
	}
	if cfg.Name == "" {
		cfg.Name = cfg.Channel.Name()
	}
	if cfg.Sink == nil {
		cfg.Sink = observability.DefaultSink()
	}
	m := &Mux{
		cfg:      cfg,
		pending:  make(map[string]*pendingRequest),
		timedOut: make(map[string]time.Time),
	}
	go m.receiveLoop()
	return m, nil
}

func (m *Mux) Name() string {
	return m.cfg.Name
}

// Request sends msg and blocks until the matching response arrives, the
// timeout passes (ErrNoResponse, a non-exceptional outcome), or the channel
// fails (ErrChannelFailed).
func (m *Mux) Request(msg *iso.Message, timeout time.Duration) (*iso.Message, error) {
	p, err := m.register(msg, timeout, nil, nil)
	if err != nil {
		return nil, err
	}
	if err := m.send(msg, p); err != nil {
		return nil, err
	}
	res := <-p.done
	if res.err != nil {
		return nil, res.err
	}
	if res.msg == nil {
		return nil, ErrNoResponse
	}
	return res.msg, nil
}

// RequestAsync sends msg and returns immediately; callback later receives
// the matching response plus handback, or a nil message on timeout or
// channel failure. The callback runs on the receiver or timer goroutine
// and must not block.
func (m *Mux) RequestAsync(msg *iso.Message, timeout time.Duration, callback func(m *iso.Message, handback any), handback any) error {
	p, err := m.register(msg, timeout, callback, handback)
	if err != nil {
		return err
	}
	return m.send(msg, p)
}

func (m *Mux) register(msg *iso.Message, timeout time.Duration, callback func(*iso.Message, any), handback any) (*pendingRequest, error) {
	key, err := m.cfg.Key(msg)
	if err != nil {
		return nil, err
	}
	p := &pendingRequest{
		key:      key,
		done:     make(chan result, 1),
		callback: callback,
		handback: handback,
	}
	m.mu.Lock()
	if m.failed {
		err := m.failErr
		m.mu.Unlock()
		return nil, err
	}
	if _, dup := m.pending[key]; dup {
		m.mu.Unlock()
		return nil, fmt.Errorf("%w: %q", ErrDuplicateKey, key)
	}
	m.pending[key] = p
	// Arm the timer before releasing the lock so no resolver can observe a
	// record without one.
	p.timer = time.AfterFunc(timeout, func() { m.expire(key) })
	m.mu.Unlock()

	observability.PendingAdded(m.cfg.Name)
	return p, nil
}

func (m *Mux) send(msg *iso.Message, p *pendingRequest) error {
	if err := m.cfg.Channel.Send(msg); err != nil {
		if m.takeRecord(p) {
			p.timer.Stop()
		}
		return fmt.Errorf("mux %s: send: %w", m.cfg.Name, err)
	}
	return nil
}

// takeRecord claims p itself, not whatever currently holds its key. If p
// already expired and a later caller re-registered the key, that successor's
// record stays pending.
func (m *Mux) takeRecord(p *pendingRequest) bool {
	m.mu.Lock()
	cur, ok := m.pending[p.key]
	claimed := ok && cur == p
	if claimed {
		delete(m.pending, p.key)
	}
	m.mu.Unlock()
	if claimed {
		observability.PendingRemoved(m.cfg.Name)
	}
	return claimed
}

// take removes and returns the pending record for key, or nil if someone
// else already resolved it. This is the exactly-once claim point.
func (m *Mux) take(key string) *pendingRequest {
	m.mu.Lock()
	p, ok := m.pending[key]
	if ok {
		delete(m.pending, key)
	}
	m.mu.Unlock()
	if ok {
		observability.PendingRemoved(m.cfg.Name)
		return p
	}
	return nil
}

func (m *Mux) expire(key string) {
	p := m.take(key)
	if p == nil {
		return
	}
	m.mu.Lock()
	m.timedOut[key] = time.Now().Add(staleTTL)
	m.mu.Unlock()
	observability.RecordTimeout(m.cfg.Name)
	m.cfg.Sink.Emit(&observability.Event{Name: "mux.timeout", Channel: m.cfg.Name})
	m.resolve(p, result{})
}

func (m *Mux) resolve(p *pendingRequest, res result) {
	if p.callback != nil {
		p.callback(res.msg, p.handback)
		return
	}
	p.done <- res
}

func (m *Mux) receiveLoop() {
	for {
		msg, err := m.cfg.Channel.Receive()
		if err != nil {
			if errors.Is(err, channel.ErrVetoed) {
				continue
			}
			m.failAll(err)
			return
		}
		key, kerr := m.cfg.Key(msg)
		if kerr == nil {
			if p := m.take(key); p != nil {
				p.timer.Stop()
				m.resolve(p, result{msg: msg})
				continue
			}
		}
		m.deliverUnmatched(key, msg)
	}
}

// deliverUnmatched routes a message no pending record claimed: late
// responses whose key recently timed out go to the stale sink, everything
// else to the fresh-request listener.
func (m *Mux) deliverUnmatched(key string, msg *iso.Message) {
	listener := m.cfg.Unmatched
	if key != "" && m.recentlyTimedOut(key) && m.cfg.Stale != nil {
		listener = m.cfg.Stale
	}
	if listener == nil {
		m.cfg.Sink.Emit(&observability.Event{Name: "mux.unmatched.drop", Channel: m.cfg.Name, MTI: msg.MTI()})
		return
	}
	defer func() {
		if r := recover(); r != nil {
			m.cfg.Sink.Emit(&observability.Event{
				Name:    "mux.listener.panic",
				Channel: m.cfg.Name,
				MTI:     msg.MTI(),
				Err:     fmt.Errorf("%v", r),
			})
		}
	}()
	if !listener.Process(m.cfg.Channel, msg) {
		m.cfg.Sink.Emit(&observability.Event{Name: "mux.unhandled", Channel: m.cfg.Name, MTI: msg.MTI()})
	}
}

func (m *Mux) recentlyTimedOut(key string) bool {
	now := time.Now()
	m.mu.Lock()
	defer m.mu.Unlock()
	for k, exp := range m.timedOut {
		if now.After(exp) {
			delete(m.timedOut, k)
		}
	}
	_, ok := m.timedOut[key]
	return ok
}

// failAll resolves every pending record with ErrChannelFailed and refuses
// registrations from then on.
func (m *Mux) failAll(cause error) {
	err := fmt.Errorf("%w: %v", ErrChannelFailed, cause)
	m.mu.Lock()
	if m.failed {
		m.mu.Unlock()
		return
	}
	m.failed = true
	m.failErr = err
	orphans := m.pending
	m.pending = make(map[string]*pendingRequest)
	m.mu.Unlock()

	m.cfg.Sink.Emit(&observability.Event{Name: "mux.channel.failed", Channel: m.cfg.Name, Err: cause})
	for _, p := range orphans {
		p.timer.Stop()
		observability.PendingRemoved(m.cfg.Name)
		m.resolve(p, result{err: err})
	}
}

// NumPending reports in-flight requests, mostly for tests and gauges.
func (m *Mux) NumPending() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.pending)
}

// Close disconnects the underlying channel; the receiver loop then fails
// all pending requests and exits.
func (m *Mux) Close() error {
	return m.cfg.Channel.Disconnect()
}
