// Package argproto implements the peer protocol engine (§4.5): wire
// frame encode/decode, the per-peer handshake state machine, sequence
// replay defense, and WRAPPED-packet encapsulation.
package argproto

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"golang.org/x/time/rate"

	"github.com/argnet/arg/internal/argcrypto"
	"github.com/argnet/arg/internal/argpeer"
)

// Timing constants (§4.6/§5/§9, settings.h AUTH_TIMEOUT/CONNECT_WAIT_TIME/MAX_UPDATE_TIME).
const (
	AuthTimeout     = 5 * time.Second
	ConnectWaitTime = 60 * time.Second
	MaxUpdateTime   = 300 * time.Second

	maxHandshakeAttempts = 3
)

// Sender is the outbound transport the engine writes signed frames to.
// The director supplies the concrete implementation (raw IP protocol
// 253 socket); argproto stays agnostic of capture/injection mechanics.
//
// SendFrame is always called with the destination peer's protoLock NOT
// held (§5: "never held across I/O"); every code path in this package
// builds and signs a frame under the lock, then releases it before
// handing the bytes to Sender.
type Sender interface {
	SendFrame(peer *argpeer.Peer, frame []byte) error
}

// Engine drives the handshake state machine and packet encapsulation
// for every peer in a registry. One Engine is created per gateway
// process; it is not itself peer-specific.
type Engine struct {
	Suite    argcrypto.Suite
	Self     *argpeer.Peer // our own Peer record; PrivateKey must be set
	Sender   Sender
	Log      *slog.Logger
	Now      func() time.Time // overridable for tests
	limiters map[string]*rate.Limiter

	// DefaultHopInterval is the hop rate (ms) this gateway proposes in
	// CONN_DATA when a peer has none negotiated yet, sourced from the
	// config file's hop rate line (§6). Falls back to 100ms if unset.
	DefaultHopInterval uint32
}

// New creates an Engine. self must carry this gateway's private key.
func New(suite argcrypto.Suite, self *argpeer.Peer, sender Sender, log *slog.Logger) *Engine {
	if log == nil {
		log = slog.Default()
	}
	return &Engine{
		Suite:              suite,
		Self:               self,
		Sender:             sender,
		Log:                log,
		Now:                time.Now,
		limiters:           make(map[string]*rate.Limiter),
		DefaultHopInterval: 100,
	}
}

func (e *Engine) limiterFor(peerName string) *rate.Limiter {
	if l, ok := e.limiters[peerName]; ok {
		return l
	}
	// One retry attempt per AUTH_TIMEOUT, burst 1: the handshake's own
	// attempt counter (maxHandshakeAttempts) bounds total retries, this
	// just prevents a misbehaving timer loop from hammering a peer.
	l := rate.NewLimiter(rate.Every(AuthTimeout), 1)
	e.limiters[peerName] = l
	return l
}

// buildFrame signs and serializes a frame. It touches no peer-specific
// lock: signing uses only this gateway's own private key.
func (e *Engine) buildFrame(typ Type, seq uint32, payload []byte) ([]byte, error) {
	frame, err := Encode(e.Suite, e.Self.PrivateKey, Frame{Type: typ, Seq: seq, Payload: payload})
	if err != nil {
		return nil, fmt.Errorf("encode %s: %w", typ, err)
	}
	return frame, nil
}

func (e *Engine) nextOutSeq(p *argpeer.Peer) uint32 {
	s := p.Proto()
	s.OutSeqNum++
	return s.OutSeqNum
}

// dispatch sends frame to peer without holding peer's lock. Every
// exported entry point in this file follows the same shape: lock,
// mutate state and build a frame, unlock, dispatch.
func (e *Engine) dispatch(peer *argpeer.Peer, frame []byte) error {
	if frame == nil {
		return nil
	}
	if err := e.Sender.SendFrame(peer, frame); err != nil {
		return fmt.Errorf("send to %s: %w", peer.Name, err)
	}
	return nil
}

// DoNextAction advances peer's handshake by one step if one is due
// (§4.5, §4.6 secondary timer loop). It must be called roughly every
// second per peer. It starts a handshake from IDLE, sends TIME_REQ once
// AUTHED and CONN_DATA once TIMED, retries a pending step when its
// backoff has expired, and on a CONNECTED peer runs the ping/silence
// checks; otherwise it does nothing.
func (e *Engine) DoNextAction(ctx context.Context, peer *argpeer.Peer) error {
	frame, err := e.computeNextAction(peer)
	if err != nil {
		return err
	}
	return e.dispatch(peer, frame)
}

func (e *Engine) computeNextAction(peer *argpeer.Peer) ([]byte, error) {
	peer.Lock()
	defer peer.Unlock()
	s := peer.Proto()
	now := e.Now()

	switch s.Phase {
	case argpeer.PhaseIdle:
		return e.startHandshake(peer, now)

	case argpeer.PhaseAuthSent, argpeer.PhaseTimeSent, argpeer.PhaseConnSent:
		if now.Before(s.NextRetry) {
			return nil, nil
		}
		if s.Attempts >= maxHandshakeAttempts {
			e.Log.Warn("handshake step exhausted retries, resetting to idle",
				"peer", peer.Name, "phase", s.Phase)
			resetToIdle(s)
			return nil, nil
		}
		if !e.limiterFor(peer.Name).Allow() {
			return nil, nil
		}
		return e.retryCurrentStep(peer, now)

	case argpeer.PhaseAuthed:
		return e.sendTimeReq(peer, now)

	case argpeer.PhaseTimed:
		// Both sides independently generate and send their own CONN_DATA
		// (own symmetric key, own hop key, own hop interval); there is no
		// proposer/responder asymmetry here (see handleConnData).
		return e.sendConnData(peer, now)

	case argpeer.PhaseConnected:
		if now.Sub(s.LastTraffic) > MaxUpdateTime {
			e.Log.Info("peer silent beyond MAX_UPDATE_TIME, forcing reconnect", "peer", peer.Name)
			resetToIdle(s)
			return nil, nil
		}
		if now.Sub(s.PingSentAt) > ConnectWaitTime {
			return e.sendPing(peer, now)
		}
		return nil, nil
	}
	return nil, nil
}

func resetToIdle(s *argpeer.ProtoState) {
	*s = argpeer.ProtoState{Phase: argpeer.PhaseIdle, InSeqNum: s.InSeqNum}
}

// The send* helpers below assume the caller already holds peer's lock.
// They mutate ProtoState and return a signed frame ready to dispatch.

func (e *Engine) startHandshake(peer *argpeer.Peer, now time.Time) ([]byte, error) {
	s := peer.Proto()
	idBytes, err := e.Suite.Random(4)
	if err != nil {
		return nil, fmt.Errorf("generate handshake id: %w", err)
	}
	s.MyID = uint32(idBytes[0])<<24 | uint32(idBytes[1])<<16 | uint32(idBytes[2])<<8 | uint32(idBytes[3])
	s.Attempts = 0
	return e.sendHello(peer, now)
}

func (e *Engine) sendHello(peer *argpeer.Peer, now time.Time) ([]byte, error) {
	s := peer.Proto()
	seq := e.nextOutSeq(peer)
	frame, err := e.buildFrame(TypeHello, seq, HelloPayload{MyID: s.MyID}.encode())
	if err != nil {
		return nil, err
	}
	e.Log.Debug("sending HELLO", "peer", peer.Name, "trace", uuid.New().String(), "myID", s.MyID)
	s.Phase = argpeer.PhaseAuthSent
	s.Attempts++
	s.NextRetry = now.Add(backoff(s.Attempts))
	return frame, nil
}

func (e *Engine) sendTimeReq(peer *argpeer.Peer, now time.Time) ([]byte, error) {
	s := peer.Proto()
	seq := e.nextOutSeq(peer)
	payload := TimeReqPayload{LocalMs: now.UnixMilli()}.encode()
	frame, err := e.buildFrame(TypeTimeReq, seq, payload)
	if err != nil {
		return nil, err
	}
	s.Phase = argpeer.PhaseTimeSent
	s.Attempts = 1
	s.NextRetry = now.Add(backoff(1))
	return frame, nil
}

// sendConnData generates this gateway's own CONN_DATA parameters (our
// symmetric key, our hop key, our hop interval) and sends them to peer.
// This is one direction of a two-way exchange: the peer does the same
// independently and its own generated parameters arrive separately via
// handleConnData. Each side's key only ever encrypts the traffic that
// side sends (receive.go's decapsulate/buildWrapped), so the two
// directions never share a key plus independently-moving nonce.
func (e *Engine) sendConnData(peer *argpeer.Peer, now time.Time) ([]byte, error) {
	s := peer.Proto()
	symKey, err := e.Suite.Random(argcrypto.KeySize)
	if err != nil {
		return nil, fmt.Errorf("generate symKey: %w", err)
	}
	hopKey, err := e.Suite.Random(argcrypto.HopKeySize)
	if err != nil {
		return nil, fmt.Errorf("generate hopKey: %w", err)
	}
	hopInterval := peer.OurHopInterval()
	if hopInterval == 0 {
		hopInterval = e.DefaultHopInterval
	}
	peer.SetOurConnectionData(symKey, hopKey, hopInterval)

	payload := ConnDataPayload{
		SymKey:      symKey,
		HopKey:      hopKey,
		HopInterval: hopInterval,
		TimeOffset:  int64(peer.ClockOffset().Delta()),
	}.encode()

	seq := e.nextOutSeq(peer)
	frame, err := e.buildFrame(TypeConnData, seq, payload)
	if err != nil {
		return nil, err
	}
	s.Phase = argpeer.PhaseConnSent
	s.Attempts = 1
	s.NextRetry = now.Add(backoff(1))
	return frame, nil
}

func (e *Engine) sendPing(peer *argpeer.Peer, now time.Time) ([]byte, error) {
	s := peer.Proto()
	s.PingID++
	seq := e.nextOutSeq(peer)
	frame, err := e.buildFrame(TypePing, seq, nil)
	if err != nil {
		return nil, err
	}
	s.PingSentAt = now
	return frame, nil
}

func (e *Engine) retryCurrentStep(peer *argpeer.Peer, now time.Time) ([]byte, error) {
	s := peer.Proto()
	switch s.Phase {
	case argpeer.PhaseAuthSent:
		return e.sendHello(peer, now)
	case argpeer.PhaseTimeSent:
		attempts := s.Attempts + 1
		frame, err := e.sendTimeReq(peer, now)
		if err == nil {
			s.Attempts = attempts
			s.NextRetry = now.Add(backoff(attempts))
		}
		return frame, err
	case argpeer.PhaseConnSent:
		attempts := s.Attempts + 1
		frame, err := e.sendConnData(peer, now)
		if err == nil {
			s.Attempts = attempts
			s.NextRetry = now.Add(backoff(attempts))
		}
		return frame, err
	}
	return nil, nil
}

// backoff computes exponential backoff for handshake retries, capped at
// AuthTimeout (§4.5 failure semantics).
func backoff(attempt int) time.Duration {
	d := time.Duration(1<<uint(attempt)) * 250 * time.Millisecond
	if d > AuthTimeout {
		return AuthTimeout
	}
	return d
}
