// Package argdirector implements the classify-and-dispatch engine
// (§4.6): it owns the capture loop, decides what each packet is, and
// drives the protocol engine, the NAT table, and the hopper to handle
// it. It also runs the two background loops — the per-peer handshake
// timer and the NAT cleanup sweep — that the other subsystems need to
// make progress without a packet arriving to trigger them.
package argdirector

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/argnet/arg/internal/arghop"
	"github.com/argnet/arg/internal/argnat"
	"github.com/argnet/arg/internal/argpacket"
	"github.com/argnet/arg/internal/argpeer"
	"github.com/argnet/arg/internal/argproto"
)

// Class is the outcome of classifying one captured packet (§4.6's
// five-case table).
type Class int

const (
	ClassDrop Class = iota
	ClassToPeer
	ClassNATOutbound
	ClassARGControl
	ClassNATInbound
)

func (c Class) String() string {
	switch c {
	case ClassToPeer:
		return "TO_PEER"
	case ClassNATOutbound:
		return "NAT_OUTBOUND"
	case ClassARGControl:
		return "ARG_CONTROL"
	case ClassNATInbound:
		return "NAT_INBOUND"
	default:
		return "DROP"
	}
}

// Capture is the packet source/sink the director reads from and writes
// to. The concrete raw-socket/tun/userspace-queue implementation is out
// of scope (§1) and lives in internal/argcapture; this interface is the
// thin seam between them.
type Capture interface {
	ReadInternal(ctx context.Context) ([]byte, error)
	ReadExternal(ctx context.Context) ([]byte, error)
	WriteInternal(pkt []byte) error
	WriteExternal(pkt []byte) error
}

// Recorder receives gateway-wide observability events (§9's admin
// status surface). internal/argmetrics implements this over Prometheus
// collectors; a nil Recorder on Director is valid and simply drops them.
type Recorder interface {
	PeerPhase(peerName string, phase argpeer.Phase)
	HopAccepted(peerName string)
	ReplayDropped(peerName string)
	NATTableSize(buckets, entries int)
}

// Director ties the four hard-core subsystems together (§2's data-flow
// description) and supervises their background loops.
type Director struct {
	Self     *argpeer.Peer
	Registry *argpeer.Registry
	NAT      *argnat.Table
	Engine   *argproto.Engine
	Capture  Capture
	Hop      arghop.HMAC
	Log      *slog.Logger
	Metrics  Recorder
	Now      func() time.Time

	TickInterval    time.Duration // director timer period, §4.6: 1s
	CleanupInterval time.Duration // NAT sweep period, §5/§9: NAT_CLEAN_TIME
	EntryTTL        time.Duration // NAT entry idle bound, §3/§4.4: NAT_CLEAN_TIME
}

// New creates a Director with the §4.6/§9 default timer periods. self
// must be the registry's owner's own Peer record (private key set).
func New(self *argpeer.Peer, registry *argpeer.Registry, nat *argnat.Table, engine *argproto.Engine, capture Capture, hop arghop.HMAC, log *slog.Logger) *Director {
	if log == nil {
		log = slog.Default()
	}
	return &Director{
		Self:            self,
		Registry:        registry,
		NAT:             nat,
		Engine:          engine,
		Capture:         capture,
		Hop:             hop,
		Log:             log,
		Now:             time.Now,
		TickInterval:    1 * time.Second,
		CleanupInterval: argnat.DefaultCleanInterval,
		EntryTTL:        argnat.DefaultEntryTTL,
	}
}

// SendFrame implements argproto.Sender: it addresses a signed protocol
// frame to peer's current (or bootstrap) external address and hands the
// resulting IP packet to the capture sink.
func (d *Director) SendFrame(peer *argpeer.Peer, frame []byte) error {
	now := d.Now()
	dst := d.peerCurrentAddr(peer, now)
	src := d.selfCurrentAddr(peer, now)
	pkt := argpacket.BuildIPv4(argpacket.ProtoARG, src, dst, frame)
	if err := d.Capture.WriteExternal(pkt); err != nil {
		return fmt.Errorf("write arg frame to %s: %w", peer.Name, err)
	}
	return nil
}

// Classify implements §4.6's five-case table for one captured packet.
func (d *Director) Classify(fromInternal bool, view *argpacket.View) Class {
	now := d.Now()
	if fromInternal {
		if d.peerForRange(view.DstIP()) != nil {
			return ClassToPeer
		}
		return ClassNATOutbound
	}
	if view.Protocol() == argpacket.ProtoARG {
		return ClassARGControl
	}
	if d.isOurHopAddress(view.DstIP(), now) {
		return ClassNATInbound
	}
	return ClassDrop
}

// Dispatch classifies one captured packet and routes it through the
// matching subsystem. Per-packet failures (§7) are logged at debug and
// swallowed; only a capture/write failure is returned to the caller.
func (d *Director) Dispatch(ctx context.Context, fromInternal bool, raw []byte) error {
	view, err := argpacket.Parse(raw)
	if err != nil {
		d.Log.Debug("dropping malformed packet", "err", err)
		return nil
	}

	switch d.Classify(fromInternal, view) {
	case ClassToPeer:
		return d.dispatchToPeer(ctx, view)
	case ClassNATOutbound:
		return d.dispatchNATOutbound(view)
	case ClassARGControl:
		return d.dispatchARGControl(ctx, view)
	case ClassNATInbound:
		return d.dispatchNATInbound(view)
	default:
		return nil
	}
}

func (d *Director) dispatchToPeer(ctx context.Context, view *argpacket.View) error {
	peer := d.peerForRange(view.DstIP())
	if err := d.Engine.SendWrapped(ctx, peer, view.IPPayload()); err != nil {
		if errors.Is(err, argproto.ErrNotConnected) {
			d.Log.Debug("dropping outbound packet, peer not connected", "peer", peer.Name)
			return nil
		}
		return fmt.Errorf("send wrapped to %s: %w", peer.Name, err)
	}
	return nil
}

func (d *Director) dispatchNATOutbound(view *argpacket.View) error {
	gateIP, gatePort := d.NAT.Outbound(view.SrcIP(), view.SrcPort(), view.DstIP(), view.DstPort(), view.Protocol(), d.Self.BaseIP)
	view.SetSrcIP(gateIP)
	view.SetSrcPort(gatePort)
	view.RecomputeIPChecksum()
	view.RecomputeL4Checksum()
	if err := d.Capture.WriteExternal(view.Bytes()); err != nil {
		return fmt.Errorf("write nat outbound: %w", err)
	}
	return nil
}

func (d *Director) dispatchNATInbound(view *argpacket.View) error {
	intIP, intPort, err := d.NAT.Inbound(view.SrcIP(), view.SrcPort(), view.DstIP(), view.DstPort(), view.Protocol())
	if err != nil {
		d.Log.Debug("nat inbound miss", "err", err)
		return nil
	}
	view.SetDstIP(intIP)
	view.SetDstPort(intPort)
	view.RecomputeIPChecksum()
	view.RecomputeL4Checksum()
	if err := d.Capture.WriteInternal(view.Bytes()); err != nil {
		return fmt.Errorf("write nat inbound: %w", err)
	}
	return nil
}

func (d *Director) dispatchARGControl(ctx context.Context, view *argpacket.View) error {
	now := d.Now()
	peer := d.resolvePeerForFrame(view.SrcIP(), view.DstIP(), now)
	if peer == nil {
		d.Log.Debug("dropping arg frame from unrecognized source", "src", view.SrcIP())
		return nil
	}
	if d.Metrics != nil {
		d.Metrics.HopAccepted(peer.Name)
	}

	inner, err := d.Engine.Receive(ctx, peer, view.L4Bytes())
	if err != nil {
		if errors.Is(err, argproto.ErrSequenceReplay) {
			if d.Metrics != nil {
				d.Metrics.ReplayDropped(peer.Name)
			}
		}
		d.Log.Debug("dropping arg frame", "peer", peer.Name, "err", err)
		return nil
	}
	if inner == nil {
		return nil
	}
	if err := d.Capture.WriteInternal(inner); err != nil {
		return fmt.Errorf("write decapsulated packet: %w", err)
	}
	return nil
}

// Run starts the capture loops and the two background loops (§4.6's
// secondary timer loop, §5's NAT cleanup thread), supervised as one
// cancelable group (§9's domain-stack errgroup binding). It returns when
// ctx is canceled or any loop returns a non-nil, non-cancellation error.
func (d *Director) Run(ctx context.Context) error {
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return d.captureLoop(gctx, true) })
	g.Go(func() error { return d.captureLoop(gctx, false) })
	g.Go(func() error { return d.timerLoop(gctx) })
	g.Go(func() error { return d.cleanupLoop(gctx) })
	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	return nil
}

func (d *Director) captureLoop(ctx context.Context, internal bool) error {
	for {
		var raw []byte
		var err error
		if internal {
			raw, err = d.Capture.ReadInternal(ctx)
		} else {
			raw, err = d.Capture.ReadExternal(ctx)
		}
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			return fmt.Errorf("capture read: %w", err)
		}
		// Per §7, transient I/O failures on a single packet are dropped
		// and logged, not treated as fatal to the capture loop.
		if err := d.Dispatch(ctx, internal, raw); err != nil {
			d.Log.Debug("dispatch failed", "internal", internal, "err", err)
		}
	}
}

// timerLoop is the §4.6 secondary timer loop: once per TickInterval it
// advances every peer's handshake/liveness state by one step.
func (d *Director) timerLoop(ctx context.Context) error {
	ticker := time.NewTicker(d.TickInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			for _, p := range d.Registry.All() {
				if err := d.Engine.DoNextAction(ctx, p); err != nil {
					d.Log.Debug("do next action failed", "peer", p.Name, "err", err)
				}
				if d.Metrics != nil {
					p.Lock()
					phase := p.Proto().Phase
					p.Unlock()
					d.Metrics.PeerPhase(p.Name, phase)
				}
			}
		}
	}
}

// cleanupLoop is the §4.4/§5 NAT cleanup thread.
func (d *Director) cleanupLoop(ctx context.Context) error {
	ticker := time.NewTicker(d.CleanupInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			removedEntries, removedBuckets := d.NAT.Cleanup(d.EntryTTL)
			if removedEntries > 0 {
				d.Log.Debug("nat cleanup swept entries", "entries", removedEntries, "buckets", removedBuckets)
			}
			if d.Metrics != nil {
				d.Metrics.NATTableSize(d.NAT.BucketCount(), d.NAT.EntryCount())
			}
		}
	}
}

// peerForRange finds the known peer whose declared hop range (§3's
// baseIP/mask) contains dst — §4.6 case 1.
func (d *Director) peerForRange(dst net.IP) *argpeer.Peer {
	return d.Registry.ByIncomingAddress(func(p *argpeer.Peer) bool {
		return inRange(dst, p.BaseIP, p.Mask)
	})
}

// resolvePeerForFrame attributes an inbound ARG-253 packet to a known
// peer by checking that its source matches that peer's current hop
// address and its destination matches our own current hop address as
// that peer would compute it (§4.6 case 3, §4.3's acceptance window).
func (d *Director) resolvePeerForFrame(src, dst net.IP, now time.Time) *argpeer.Peer {
	return d.Registry.ByIncomingAddress(func(p *argpeer.Peer) bool {
		return d.peerAcceptsAsSrc(p, src, now) && d.selfAcceptsAsDst(p, dst, now)
	})
}

// isOurHopAddress reports whether dst is our own current (or previous)
// hop address as computed under any known peer's negotiated schedule —
// §4.6 case 4.
func (d *Director) isOurHopAddress(dst net.IP, now time.Time) bool {
	for _, p := range d.Registry.All() {
		if d.selfAcceptsAsDst(p, dst, now) {
			return true
		}
	}
	return false
}

// peerCurrentAddr computes peer's current external address: the hopped
// address once CONN_DATA has negotiated a schedule, otherwise the
// peer's declared base address (masked to the range base) as a fixed
// bootstrap rendezvous point.
func (d *Director) peerCurrentAddr(peer *argpeer.Peer, now time.Time) net.IP {
	peer.Lock()
	hopKey := peer.TheirHopKey()
	interval := peer.TheirHopInterval()
	offsetNow := peer.ClockOffset().PeerTime(now.UnixMilli())
	peer.Unlock()

	if len(hopKey) == 0 {
		return bootstrapAddr(peer.BaseIP, peer.Mask)
	}
	addr, err := arghop.Address(d.Hop, hopKey, interval, peer.BaseIP, peer.Mask, offsetNow)
	if err != nil {
		return bootstrapAddr(peer.BaseIP, peer.Mask)
	}
	return addr
}

// selfCurrentAddr computes our own current address as peer would
// compute it: our base range hopped under the schedule shared with that
// peer, or our bootstrap address before one is negotiated.
func (d *Director) selfCurrentAddr(peer *argpeer.Peer, now time.Time) net.IP {
	peer.Lock()
	hopKey := peer.OurHopKey()
	interval := peer.OurHopInterval()
	peer.Unlock()

	if len(hopKey) == 0 {
		return bootstrapAddr(d.Self.BaseIP, d.Self.Mask)
	}
	addr, err := arghop.Address(d.Hop, hopKey, interval, d.Self.BaseIP, d.Self.Mask, now.UnixMilli())
	if err != nil {
		return bootstrapAddr(d.Self.BaseIP, d.Self.Mask)
	}
	return addr
}

func (d *Director) peerAcceptsAsSrc(peer *argpeer.Peer, src net.IP, now time.Time) bool {
	peer.Lock()
	hopKey := peer.TheirHopKey()
	interval := peer.TheirHopInterval()
	offsetNow := peer.ClockOffset().PeerTime(now.UnixMilli())
	peer.Unlock()

	if len(hopKey) == 0 {
		return src.Equal(bootstrapAddr(peer.BaseIP, peer.Mask))
	}
	ok, err := arghop.Accept(d.Hop, hopKey, interval, peer.BaseIP, peer.Mask, offsetNow, src)
	return err == nil && ok
}

func (d *Director) selfAcceptsAsDst(peer *argpeer.Peer, dst net.IP, now time.Time) bool {
	peer.Lock()
	hopKey := peer.OurHopKey()
	interval := peer.OurHopInterval()
	peer.Unlock()

	if len(hopKey) == 0 {
		return dst.Equal(bootstrapAddr(d.Self.BaseIP, d.Self.Mask))
	}
	ok, err := arghop.Accept(d.Hop, hopKey, interval, d.Self.BaseIP, d.Self.Mask, now.UnixMilli(), dst)
	return err == nil && ok
}

func bootstrapAddr(base, mask net.IP) net.IP {
	b4, m4 := base.To4(), mask.To4()
	addr := make(net.IP, 4)
	for i := 0; i < 4; i++ {
		addr[i] = b4[i] & m4[i]
	}
	return addr
}

func inRange(ip, base, mask net.IP) bool {
	ip4, base4, mask4 := ip.To4(), base.To4(), mask.To4()
	if ip4 == nil || base4 == nil || mask4 == nil {
		return false
	}
	for i := 0; i < 4; i++ {
		if ip4[i]&mask4[i] != base4[i]&mask4[i] {
			return false
		}
	}
	return true
}
