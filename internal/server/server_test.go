package server

import (
	"context"
	"errors"
	"net"
	"sync"
	"testing"
	"time"

	"github.com/danmuck/isolink/internal/channel"
	"github.com/danmuck/isolink/internal/iso"
	"github.com/danmuck/isolink/internal/observability"
	"github.com/danmuck/isolink/internal/testutil/testlog"
)

func echoListener(src Source, m *iso.Message) bool {
	resp := iso.NewMessage()
	resp.SetMTI("0810")
	resp.SetString(3, m.GetString(3))
	resp.SetString(11, m.GetString(11))
	resp.SetString(39, "00")
	resp.SetString(41, m.GetString(41))
	return src.Send(resp) == nil
}

func startServer(t *testing.T, cfg Config) *Server {
	t.Helper()
	if cfg.Addr == "" {
		cfg.Addr = "127.0.0.1:0"
	}
	if cfg.Packager == nil {
		cfg.Packager = iso.Dialect1987ASCII()
	}
	if cfg.Framing == nil {
		cfg.Framing = channel.BinaryFraming{Bytes: 2}
	}
	if cfg.Sink == nil {
		cfg.Sink = observability.NopSink{}
	}
	s, err := New(cfg)
	if err != nil {
		t.Fatalf("new server: %v", err)
	}
	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		if err := s.Listen(ctx); err != nil {
			t.Errorf("listen: %v", err)
		}
	}()
	deadline := time.Now().Add(2 * time.Second)
	for s.Addr() == nil {
		if time.Now().After(deadline) {
			t.Fatalf("server never bound")
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Cleanup(func() {
		cancel()
		_ = s.Shutdown(2 * time.Second)
	})
	return s
}

func dialClient(t *testing.T, s *Server) *channel.Channel {
	t.Helper()
	c, err := channel.New(channel.Config{
		Addr:     s.Addr().String(),
		Packager: iso.Dialect1987ASCII(),
		Framing:  channel.BinaryFraming{Bytes: 2},
		Sink:     observability.NopSink{},
	})
	if err != nil {
		t.Fatalf("new channel: %v", err)
	}
	if err := c.Connect(context.Background()); err != nil {
		t.Fatalf("connect: %v", err)
	}
	t.Cleanup(func() { _ = c.Disconnect() })
	return c
}

func request(stan string) *iso.Message {
	m := iso.NewMessage()
	m.SetMTI("0800")
	m.SetString(3, "000000")
	m.SetString(11, stan)
	m.SetString(41, "29110001")
	return m
}

func TestServerEcho(t *testing.T) {
	testlog.Start(t)
	s := startServer(t, Config{Name: "echo", Listener: ListenerFunc(echoListener)})
	c := dialClient(t, s)

	if err := c.Send(request("000001")); err != nil {
		t.Fatalf("send: %v", err)
	}
	resp, err := c.Receive()
	if err != nil {
		t.Fatalf("receive: %v", err)
	}
	if resp.MTI() != "0810" || resp.GetString(39) != "00" || resp.GetString(11) != "000001" {
		t.Fatalf("response mti=%q f39=%q f11=%q", resp.MTI(), resp.GetString(39), resp.GetString(11))
	}
}

func TestServerConcurrentClients(t *testing.T) {
	testlog.Start(t)
	s := startServer(t, Config{Name: "echo", Listener: ListenerFunc(echoListener)})

	done := make(chan string, 4)
	for i := 0; i < 4; i++ {
		stan := []string{"000001", "000002", "000003", "000004"}[i]
		c := dialClient(t, s)
		go func() {
			if err := c.Send(request(stan)); err != nil {
				t.Errorf("send %s: %v", stan, err)
				done <- ""
				return
			}
			resp, err := c.Receive()
			if err != nil {
				t.Errorf("receive %s: %v", stan, err)
				done <- ""
				return
			}
			done <- resp.GetString(11)
		}()
	}
	seen := make(map[string]bool)
	for i := 0; i < 4; i++ {
		select {
		case stan := <-done:
			seen[stan] = true
		case <-time.After(5 * time.Second):
			t.Fatalf("clients still waiting after %d responses", i)
		}
	}
	for _, stan := range []string{"000001", "000002", "000003", "000004"} {
		if !seen[stan] {
			t.Fatalf("no response for stan %s", stan)
		}
	}
}

func TestServerWorkerSlotsQueueConnections(t *testing.T) {
	testlog.Start(t)
	gate := make(chan struct{})
	blocking := ListenerFunc(func(src Source, m *iso.Message) bool {
		if m.GetString(11) == "000001" {
			<-gate
		}
		return echoListener(src, m)
	})
	s := startServer(t, Config{Name: "narrow", Workers: 1, Listener: blocking})

	first := dialClient(t, s)
	if err := first.Send(request("000001")); err != nil {
		t.Fatalf("first send: %v", err)
	}

	// The only slot is now held. The second connection must still be
	// accepted, with its traffic queued rather than refused.
	second := dialClient(t, s)
	if err := second.Send(request("000002")); err != nil {
		t.Fatalf("second send: %v", err)
	}
	earlyResp := make(chan *iso.Message, 1)
	go func() {
		if resp, err := second.Receive(); err == nil {
			earlyResp <- resp
		}
	}()
	select {
	case <-earlyResp:
		t.Fatalf("second connection served while the slot was held")
	case <-time.After(150 * time.Millisecond):
	}

	close(gate)
	resp, err := first.Receive()
	if err != nil || resp.GetString(11) != "000001" {
		t.Fatalf("first response %v err=%v", resp, err)
	}
	if err := first.Disconnect(); err != nil {
		t.Fatalf("first disconnect: %v", err)
	}

	select {
	case resp := <-earlyResp:
		if resp.GetString(11) != "000002" {
			t.Fatalf("second response stan %q", resp.GetString(11))
		}
	case <-time.After(5 * time.Second):
		t.Fatalf("second connection never served after slot release")
	}
}

func TestServerAdmissionFollowsAcceptOrder(t *testing.T) {
	testlog.Start(t)
	order := make(chan string, 3)
	recording := ListenerFunc(func(src Source, m *iso.Message) bool {
		order <- m.GetString(11)
		return echoListener(src, m)
	})
	s := startServer(t, Config{Name: "ordered", Workers: 1, Listener: recording})

	// One slot, three connections dialed in sequence, each with a request
	// already written. Service must follow arrival order: each client is
	// answered and hangs up, releasing the slot to the next in line.
	var wg sync.WaitGroup
	for _, stan := range []string{"000001", "000002", "000003"} {
		c := dialClient(t, s)
		if err := c.Send(request(stan)); err != nil {
			t.Fatalf("send %s: %v", stan, err)
		}
		time.Sleep(50 * time.Millisecond)
		wg.Add(1)
		stan := stan
		go func() {
			defer wg.Done()
			if _, err := c.Receive(); err != nil {
				t.Errorf("receive %s: %v", stan, err)
			}
			_ = c.Disconnect()
		}()
	}
	wg.Wait()

	for _, want := range []string{"000001", "000002", "000003"} {
		select {
		case got := <-order:
			if got != want {
				t.Fatalf("served %s before %s", got, want)
			}
		case <-time.After(2 * time.Second):
			t.Fatalf("connection %s never served", want)
		}
	}
}

func TestServerShutdownUnderAcceptLoad(t *testing.T) {
	testlog.Start(t)
	s := startServer(t, Config{Name: "busy", Listener: ListenerFunc(echoListener)})
	addr := s.Addr().String()

	stop := make(chan struct{})
	var wg sync.WaitGroup
	for i := 0; i < 4; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for {
				select {
				case <-stop:
					return
				default:
				}
				conn, err := net.Dial("tcp", addr)
				if err != nil {
					return
				}
				_ = conn.Close()
			}
		}()
	}
	time.Sleep(50 * time.Millisecond)
	if err := s.Shutdown(2 * time.Second); err != nil {
		t.Fatalf("shutdown: %v", err)
	}
	close(stop)
	wg.Wait()
}

func TestServerSurvivesListenerPanic(t *testing.T) {
	testlog.Start(t)
	flaky := ListenerFunc(func(src Source, m *iso.Message) bool {
		if m.GetString(11) == "000666" {
			panic("listener exploded")
		}
		return echoListener(src, m)
	})
	s := startServer(t, Config{Name: "flaky", Listener: flaky})
	c := dialClient(t, s)

	if err := c.Send(request("000666")); err != nil {
		t.Fatalf("send: %v", err)
	}
	if err := c.Send(request("000001")); err != nil {
		t.Fatalf("send: %v", err)
	}
	resp, err := c.Receive()
	if err != nil {
		t.Fatalf("receive after panic: %v", err)
	}
	if resp.GetString(11) != "000001" {
		t.Fatalf("stan got %q", resp.GetString(11))
	}
}

func TestServerUnhandledKeepsConnection(t *testing.T) {
	testlog.Start(t)
	picky := ListenerFunc(func(src Source, m *iso.Message) bool {
		if m.MTI() != "0800" {
			return false
		}
		return echoListener(src, m)
	})
	s := startServer(t, Config{Name: "picky", Listener: picky})
	c := dialClient(t, s)

	odd := request("000001")
	odd.SetMTI("0200")
	if err := c.Send(odd); err != nil {
		t.Fatalf("send: %v", err)
	}
	if err := c.Send(request("000002")); err != nil {
		t.Fatalf("send: %v", err)
	}
	resp, err := c.Receive()
	if err != nil {
		t.Fatalf("receive: %v", err)
	}
	if resp.GetString(11) != "000002" {
		t.Fatalf("stan got %q", resp.GetString(11))
	}
}

func TestServerConfigValidation(t *testing.T) {
	testlog.Start(t)
	if _, err := New(Config{Listener: ListenerFunc(echoListener)}); !errors.Is(err, ErrNoPackager) {
		t.Fatalf("missing packager err=%v", err)
	}
	if _, err := New(Config{Packager: iso.Dialect1987ASCII()}); !errors.Is(err, ErrNoListener) {
		t.Fatalf("missing listener err=%v", err)
	}
}

func TestServerRejectsDoubleListen(t *testing.T) {
	testlog.Start(t)
	s := startServer(t, Config{Name: "echo", Listener: ListenerFunc(echoListener)})
	if err := s.Listen(context.Background()); !errors.Is(err, ErrAlreadyServing) {
		t.Fatalf("err=%v", err)
	}
}
