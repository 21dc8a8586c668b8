package registry

import (
	"net"
	"testing"

	"github.com/danmuck/isolink/internal/channel"
	"github.com/danmuck/isolink/internal/iso"
	"github.com/danmuck/isolink/internal/observability"
	"github.com/danmuck/isolink/internal/testutil/testlog"
)

func pipeChannel(t *testing.T, name string) *channel.Channel {
	t.Helper()
	local, remote := net.Pipe()
	t.Cleanup(func() { _ = remote.Close() })
	ch, err := channel.Wrap(local, channel.Config{
		Name:     name,
		Packager: iso.Dialect1987ASCII(),
		Framing:  channel.BinaryFraming{Bytes: 2},
		Sink:     observability.NopSink{},
	})
	if err != nil {
		t.Fatalf("wrap: %v", err)
	}
	return ch
}

func TestRegistryLookup(t *testing.T) {
	testlog.Start(t)
	r := New()
	issuer := pipeChannel(t, "issuer")
	acquirer := pipeChannel(t, "acquirer")
	r.AddChannel("issuer", issuer)
	r.AddChannel("acquirer", acquirer)

	got, ok := r.Channel("issuer")
	if !ok || got != issuer {
		t.Fatalf("lookup issuer: ok=%v", ok)
	}
	if _, ok := r.Channel("missing"); ok {
		t.Fatalf("lookup of unknown name succeeded")
	}
	names := r.Names()
	if len(names) != 2 || names[0] != "acquirer" || names[1] != "issuer" {
		t.Fatalf("names got %v", names)
	}

	r.RemoveChannel("issuer")
	if _, ok := r.Channel("issuer"); ok {
		t.Fatalf("removed channel still resolvable")
	}
}

func TestRegistryCloseDisconnects(t *testing.T) {
	testlog.Start(t)
	r := New()
	ch := pipeChannel(t, "issuer")
	r.AddChannel("issuer", ch)

	r.Close()
	if ch.IsConnected() {
		t.Fatalf("channel still connected after close")
	}
	if len(r.Names()) != 0 {
		t.Fatalf("registry still holds entries after close")
	}
}
