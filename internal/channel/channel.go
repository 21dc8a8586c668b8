package channel

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"net"
	"sync"
	"time"

	"github.com/jpillora/backoff"

	"github.com/danmuck/isolink/internal/iso"
	"github.com/danmuck/isolink/internal/observability"
)

var (
	ErrNotConnected = errors.New("channel: not connected")
	ErrAddrRequired = errors.New("channel: address required")
	ErrNoPackager   = errors.New("channel: packager required")
)

// Config describes one channel: where it connects, how messages are framed
// on the wire, which dialect packs them, and the filter chains applied on
// each direction.
type Config struct {
	Name           string
	Addr           string
	Packager       *iso.Packager
	Framing        Framing // nil selects self-delimiting stream mode
	Inbound        []Filter
	Outbound       []Filter
	ConnectTimeout time.Duration
	Sink           observability.EventSink
}

func (c Config) withDefaults() Config {
	if c.ConnectTimeout <= 0 {
		c.ConnectTimeout = 10 * time.Second
	}
	if c.Sink == nil {
		c.Sink = observability.DefaultSink()
	}
	if c.Name == "" {
		c.Name = c.Addr
	}
	return c
}

// Channel owns one transport connection and moves whole messages across it.
// Send and Receive are safe to call from different goroutines than
// Disconnect; concurrent Sends are serialized, Receive expects a single
// reader.
type Channel struct {
	cfg Config

	mu        sync.Mutex // connection state
	sendMu    sync.Mutex // serializes writes
	conn      net.Conn
	r         *bufio.Reader
	connected bool
}

// New builds an unconnected channel; Connect must be called before use.
func New(cfg Config) (*Channel, error) {
	if cfg.Packager == nil {
		return nil, ErrNoPackager
	}
	if cfg.Addr == "" {
		return nil, ErrAddrRequired
	}
	return &Channel{cfg: cfg.withDefaults()}, nil
}

// Wrap builds a connected channel around an already-accepted transport
// connection, as the server does for each accept.
func Wrap(conn net.Conn, cfg Config) (*Channel, error) {
	if cfg.Packager == nil {
		return nil, ErrNoPackager
	}
	if cfg.Name == "" {
		cfg.Name = conn.RemoteAddr().String()
	}
	c := &Channel{cfg: cfg.withDefaults()}
	c.attach(conn)
	return c, nil
}

func (c *Channel) Name() string {
	return c.cfg.Name
}

func (c *Channel) Packager() *iso.Packager {
	return c.cfg.Packager
}

func (c *Channel) attach(conn net.Conn) {
	c.mu.Lock()
	c.conn = conn
	c.r = bufio.NewReader(conn)
	c.connected = true
	c.mu.Unlock()
}

// Connect dials the configured address. Calling Connect on a connected
// channel is an error; use Reconnect to cycle the transport.
func (c *Channel) Connect(ctx context.Context) error {
	c.mu.Lock()
	if c.connected {
		c.mu.Unlock()
		return fmt.Errorf("channel %s: already connected", c.cfg.Name)
	}
	c.mu.Unlock()

	dialer := net.Dialer{Timeout: c.cfg.ConnectTimeout}
	conn, err := dialer.DialContext(ctx, "tcp", c.cfg.Addr)
	if err != nil {
		return fmt.Errorf("channel %s: %w", c.cfg.Name, err)
	}
	c.attach(conn)
	c.cfg.Sink.Emit(&observability.Event{Name: "channel.connect", Channel: c.cfg.Name})
	return nil
}

// Disconnect releases the transport. It is safe to call from a different
// goroutine than one blocked in Receive; closing the connection unblocks
// the pending read.
func (c *Channel) Disconnect() error {
	c.mu.Lock()
	conn := c.conn
	wasConnected := c.connected
	c.conn = nil
	c.r = nil
	c.connected = false
	c.mu.Unlock()
	if !wasConnected || conn == nil {
		return nil
	}
	err := conn.Close()
	c.cfg.Sink.Emit(&observability.Event{Name: "channel.disconnect", Channel: c.cfg.Name})
	return err
}

// Reconnect cycles the transport, retrying the dial with exponential
// backoff until it succeeds or ctx is done.
func (c *Channel) Reconnect(ctx context.Context) error {
	_ = c.Disconnect()
	b := &backoff.Backoff{
		Min:    250 * time.Millisecond,
		Max:    c.cfg.ConnectTimeout,
		Jitter: true,
	}
	for {
		err := c.Connect(ctx)
		if err == nil {
			return nil
		}
		select {
		case <-ctx.Done():
			return err
		case <-time.After(b.Duration()):
		}
	}
}

func (c *Channel) IsConnected() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.connected
}

func (c *Channel) transport() (net.Conn, *bufio.Reader, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.connected || c.conn == nil {
		return nil, nil, fmt.Errorf("%w: %s", ErrNotConnected, c.cfg.Name)
	}
	return c.conn, c.r, nil
}

// Send runs m through the outbound filters, packs it, and writes one framed
// message. A filter veto aborts this send only; the channel stays usable.
func (c *Channel) Send(m *iso.Message) error {
	conn, _, err := c.transport()
	if err != nil {
		return err
	}

	evt := &observability.Event{Name: "channel.send", Channel: c.cfg.Name, MTI: m.MTI()}
	m, err = applyFilters(c.cfg.Outbound, c, m, evt)
	if err != nil {
		evt.Name = "channel.send.veto"
		evt.Err = err
		c.cfg.Sink.Emit(evt)
		if errors.Is(err, ErrVetoed) {
			return err
		}
		return fmt.Errorf("channel %s: outbound filter: %w", c.cfg.Name, err)
	}

	payload, err := c.cfg.Packager.Pack(m)
	if err != nil {
		return fmt.Errorf("channel %s: pack: %w", c.cfg.Name, err)
	}

	c.sendMu.Lock()
	defer c.sendMu.Unlock()
	if c.cfg.Framing != nil {
		err = c.cfg.Framing.WriteFrame(conn, payload)
	} else {
		_, err = conn.Write(payload)
	}
	if err != nil {
		return fmt.Errorf("channel %s: write: %w", c.cfg.Name, err)
	}
	observability.RecordSend(c.cfg.Name)
	c.cfg.Sink.Emit(evt)
	return nil
}

// Receive reads one framed message, unpacks it, and runs the inbound
// filters. A filter veto surfaces as ErrVetoed with no message delivered;
// the caller's receive loop should simply continue.
func (c *Channel) Receive() (*iso.Message, error) {
	_, r, err := c.transport()
	if err != nil {
		return nil, err
	}

	var m *iso.Message
	if c.cfg.Framing != nil {
		payload, err := c.cfg.Framing.ReadFrame(r)
		if err != nil {
			return nil, fmt.Errorf("channel %s: read: %w", c.cfg.Name, err)
		}
		msg, consumed, err := c.cfg.Packager.Unpack(payload)
		if err != nil {
			return nil, fmt.Errorf("channel %s: unpack: %w", c.cfg.Name, err)
		}
		if consumed != len(payload) {
			return nil, fmt.Errorf("channel %s: unpack: %d trailing bytes in frame", c.cfg.Name, len(payload)-consumed)
		}
		m = msg
	} else {
		msg, err := c.cfg.Packager.UnpackFrom(r)
		if err != nil {
			return nil, fmt.Errorf("channel %s: unpack: %w", c.cfg.Name, err)
		}
		m = msg
	}

	evt := &observability.Event{Name: "channel.receive", Channel: c.cfg.Name, MTI: m.MTI()}
	m, err = applyFilters(c.cfg.Inbound, c, m, evt)
	if err != nil {
		evt.Name = "channel.receive.veto"
		evt.Err = err
		c.cfg.Sink.Emit(evt)
		if errors.Is(err, ErrVetoed) {
			return nil, err
		}
		return nil, fmt.Errorf("channel %s: inbound filter: %w", c.cfg.Name, err)
	}
	observability.RecordReceive(c.cfg.Name)
	c.cfg.Sink.Emit(evt)
	return m, nil
}
