package argdirector

import (
	"context"
	"io"
	"log/slog"
	"net"
	"testing"
	"time"

	"github.com/argnet/arg/internal/argcrypto"
	"github.com/argnet/arg/internal/argnat"
	"github.com/argnet/arg/internal/argpacket"
	"github.com/argnet/arg/internal/argpeer"
	"github.com/argnet/arg/internal/argproto"
)

// fakeCapture records what the director writes. Its Read* methods never
// deliver a packet: they block until ctx is done.
type fakeCapture struct {
	internalOut [][]byte
	externalOut [][]byte
}

func (c *fakeCapture) ReadInternal(ctx context.Context) ([]byte, error) { <-ctx.Done(); return nil, ctx.Err() }
func (c *fakeCapture) ReadExternal(ctx context.Context) ([]byte, error) { <-ctx.Done(); return nil, ctx.Err() }

func (c *fakeCapture) WriteInternal(pkt []byte) error {
	c.internalOut = append(c.internalOut, append([]byte(nil), pkt...))
	return nil
}

func (c *fakeCapture) WriteExternal(pkt []byte) error {
	c.externalOut = append(c.externalOut, append([]byte(nil), pkt...))
	return nil
}

func newTestDirector(t *testing.T) (*Director, *argpeer.Peer, *fakeCapture) {
	t.Helper()
	priv, err := argcrypto.TestKeyPair(1024)
	if err != nil {
		t.Fatalf("TestKeyPair: %v", err)
	}
	suite := &argcrypto.FakeSuite{}
	selfBase := net.IPv4(10, 0, 0, 0)
	selfMask := net.IPv4(255, 255, 0, 0)
	self := argpeer.New("gateA", &priv.PublicKey, selfBase, selfMask).WithPrivateKey(priv)

	peerBase := net.IPv4(10, 1, 0, 0)
	peerMask := net.IPv4(255, 255, 0, 0)
	remote := argpeer.New("gateB", &priv.PublicKey, peerBase, peerMask)

	registry := argpeer.NewRegistry()
	if err := registry.Add(remote); err != nil {
		t.Fatalf("Add: %v", err)
	}

	nat := argnat.New()
	log := slog.New(slog.NewTextHandler(io.Discard, &slog.HandlerOptions{Level: slog.LevelError + 1}))
	cap := &fakeCapture{}
	engine := argproto.New(suite, self, nil, log)
	d := New(self, registry, nat, engine, cap, argcrypto.StdSuite{}, log)
	engine.Sender = d
	return d, remote, cap
}

func buildInternalPacket(t *testing.T, dst net.IP) []byte {
	t.Helper()
	pkt := argpacket.BuildIPv4(argpacket.ProtoUDP, net.IPv4(10, 0, 0, 5), dst, make([]byte, 8))
	v, err := argpacket.Parse(pkt)
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	v.SetSrcPort(40000)
	v.SetDstPort(53)
	v.RecomputeIPChecksum()
	v.RecomputeL4Checksum()
	return v.Bytes()
}

func TestClassifyInternalToPeerRange(t *testing.T) {
	d, _, _ := newTestDirector(t)
	pkt := buildInternalPacket(t, net.IPv4(10, 1, 0, 2))
	view, err := argpacket.Parse(pkt)
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if got := d.Classify(true, view); got != ClassToPeer {
		t.Fatalf("Classify = %v, want ClassToPeer", got)
	}
}

func TestClassifyInternalOutsideAnyRangeIsNATOutbound(t *testing.T) {
	d, _, _ := newTestDirector(t)
	pkt := buildInternalPacket(t, net.IPv4(8, 8, 8, 8))
	view, err := argpacket.Parse(pkt)
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if got := d.Classify(true, view); got != ClassNATOutbound {
		t.Fatalf("Classify = %v, want ClassNATOutbound", got)
	}
}

func TestClassifyExternalARGProtocol(t *testing.T) {
	d, _, _ := newTestDirector(t)
	pkt := argpacket.BuildIPv4(argpacket.ProtoARG, net.IPv4(10, 1, 0, 2), net.IPv4(10, 0, 0, 0), []byte{1, 2, 3})
	view, err := argpacket.Parse(pkt)
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if got := d.Classify(false, view); got != ClassARGControl {
		t.Fatalf("Classify = %v, want ClassARGControl", got)
	}
}

func TestDispatchToPeerDropsWhenNotConnected(t *testing.T) {
	d, _, cap := newTestDirector(t)
	pkt := buildInternalPacket(t, net.IPv4(10, 1, 0, 2))

	if err := d.Dispatch(context.Background(), true, pkt); err != nil {
		t.Fatalf("Dispatch: %v", err)
	}
	if len(cap.externalOut) != 0 {
		t.Fatalf("expected no outbound write for an unconnected peer, got %d", len(cap.externalOut))
	}
}

func TestNATOutboundThenInboundRoundTrip(t *testing.T) {
	d, _, cap := newTestDirector(t)

	out := buildInternalPacket(t, net.IPv4(8, 8, 8, 8))
	view, err := argpacket.Parse(out)
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if err := d.dispatchNATOutbound(view); err != nil {
		t.Fatalf("dispatchNATOutbound: %v", err)
	}
	if len(cap.externalOut) != 1 {
		t.Fatalf("externalOut = %d, want 1", len(cap.externalOut))
	}

	sentView, err := argpacket.Parse(cap.externalOut[0])
	if err != nil {
		t.Fatalf("Parse sent: %v", err)
	}
	if !sentView.SrcIP().Equal(net.IPv4(10, 0, 0, 0).To4()) {
		t.Fatalf("rewritten src = %v, want gateway base", sentView.SrcIP())
	}

	// Build the return path packet: from 8.8.8.8 back to the gateway
	// address/port the outbound rewrite used.
	ret := argpacket.BuildIPv4(argpacket.ProtoUDP, net.IPv4(8, 8, 8, 8), sentView.SrcIP(), make([]byte, 8))
	retView, err := argpacket.Parse(ret)
	if err != nil {
		t.Fatalf("Parse ret: %v", err)
	}
	retView.SetSrcPort(53)
	retView.SetDstPort(sentView.SrcPort())
	retView.RecomputeL4Checksum()

	if err := d.dispatchNATInbound(retView); err != nil {
		t.Fatalf("dispatchNATInbound: %v", err)
	}
	if len(cap.internalOut) != 1 {
		t.Fatalf("internalOut = %d, want 1", len(cap.internalOut))
	}
	gotView, err := argpacket.Parse(cap.internalOut[0])
	if err != nil {
		t.Fatalf("Parse delivered: %v", err)
	}
	if !gotView.DstIP().Equal(net.IPv4(10, 0, 0, 5).To4()) {
		t.Fatalf("restored dst = %v, want 10.0.0.5", gotView.DstIP())
	}
}

func TestBootstrapAddrIsRangeBase(t *testing.T) {
	base := net.IPv4(10, 1, 0, 0)
	mask := net.IPv4(255, 255, 0, 0)
	if got := bootstrapAddr(base, mask); !got.Equal(base.To4()) {
		t.Fatalf("bootstrapAddr = %v, want %v", got, base)
	}
}

func TestIsOurHopAddressMatchesBootstrapBeforeConnect(t *testing.T) {
	d, _, _ := newTestDirector(t)
	if !d.isOurHopAddress(net.IPv4(10, 0, 0, 0), time.Now()) {
		t.Fatal("expected our bootstrap address to be recognized before CONN_DATA")
	}
	if d.isOurHopAddress(net.IPv4(10, 0, 0, 99), time.Now()) {
		t.Fatal("unexpected match for an address that isn't our bootstrap address")
	}
}

func TestRunReturnsCleanlyOnCancel(t *testing.T) {
	d, _, _ := newTestDirector(t)
	d.TickInterval = time.Millisecond
	d.CleanupInterval = time.Millisecond

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if err := d.Run(ctx); err != nil {
		t.Fatalf("Run after cancel = %v, want nil", err)
	}
}
