package argproto

import (
	"context"
	"fmt"

	"github.com/argnet/arg/internal/argpeer"
)

// Receive verifies and dispatches one inbound frame already attributed
// to peer (the director resolves which peer a frame came from before
// calling this). For a WRAPPED frame it returns the decrypted inner IP
// packet; for every other type it drives the handshake/liveness state
// machine, sends any reply the step requires, and returns a nil packet.
//
// Per §4.5 failure semantics, signature failure, decrypt failure, and
// sequence replay are all silent per-packet drops that leave peer state
// untouched; callers should log these at debug and move on rather than
// propagate them as faults.
func (e *Engine) Receive(ctx context.Context, peer *argpeer.Peer, raw []byte) ([]byte, error) {
	frame, err := Decode(e.Suite, peer.PublicKey, raw)
	if err != nil {
		return nil, err
	}

	inner, reply, err := e.applyFrame(peer, frame)
	if err != nil {
		return nil, err
	}
	if dispatchErr := e.dispatch(peer, reply); dispatchErr != nil {
		return inner, dispatchErr
	}
	return inner, nil
}

// applyFrame runs under peer's lock: it validates sequencing, updates
// ProtoState, and builds any reply frame, but never performs I/O.
func (e *Engine) applyFrame(peer *argpeer.Peer, frame Frame) (inner, reply []byte, err error) {
	peer.Lock()
	defer peer.Unlock()
	s := peer.Proto()

	if !AcceptSequence(s.InSeqNum, frame.Seq) {
		return nil, nil, ErrSequenceReplay
	}

	switch frame.Type {
	case TypeWrapped:
		inner, err = e.decapsulate(peer, frame)
	case TypeHello:
		reply, err = e.handleHello(peer, frame)
	case TypeWelcome:
		reply, err = e.handleWelcome(peer, frame)
	case TypeVerified:
		err = e.handleVerified(peer, frame)
	case TypeTimeReq:
		reply, err = e.handleTimeReq(peer, frame)
	case TypeTimeResp:
		err = e.handleTimeResp(peer, frame)
	case TypeConnData:
		reply, err = e.handleConnData(peer, frame)
	case TypePing:
		reply, err = e.handlePing(peer)
	case TypePong:
		// the traffic timestamp is bumped below; nothing else to do.
	default:
		err = ErrUnexpectedType
	}
	if err != nil {
		return nil, nil, err
	}
	s.InSeqNum = frame.Seq
	s.LastTraffic = e.Now()
	return inner, reply, nil
}

func (e *Engine) decapsulate(peer *argpeer.Peer, frame Frame) ([]byte, error) {
	if !peer.Connected() {
		return nil, ErrNotConnected
	}
	// The peer encrypted this frame under the key it generated itself
	// (TheirSymKey), keyed by its own OutSeqNum — never our own key.
	inner, err := e.Suite.Decrypt(peer.TheirSymKey(), frame.Seq, frame.Payload)
	if err != nil {
		return nil, fmt.Errorf("decapsulate: %w", err)
	}
	return inner, nil
}

// SendWrapped encrypts an internal IP packet under the peer's symmetric
// key and sends it as a WRAPPED frame to the peer's current hop address
// (§4.6 case 1). The caller passes only the peer; Sender (the
// director's SendFrame) resolves the peer's current hop address via
// arghop and addresses the frame there.
func (e *Engine) SendWrapped(ctx context.Context, peer *argpeer.Peer, innerPacket []byte) error {
	frame, err := e.buildWrapped(peer, innerPacket)
	if err != nil {
		return err
	}
	return e.dispatch(peer, frame)
}

func (e *Engine) buildWrapped(peer *argpeer.Peer, innerPacket []byte) ([]byte, error) {
	peer.Lock()
	defer peer.Unlock()
	if !peer.Connected() {
		return nil, ErrNotConnected
	}
	seq := e.nextOutSeq(peer)
	// Encrypt under our own generated key (OurSymKey), keyed by our own
	// OutSeqNum: the peer decrypts with the same key it received from us.
	cipher, err := e.Suite.Encrypt(peer.OurSymKey(), seq, innerPacket)
	if err != nil {
		return nil, fmt.Errorf("encapsulate: %w", err)
	}
	return e.buildFrame(TypeWrapped, seq, cipher)
}

// The handle* helpers below assume the caller already holds peer's lock.

func (e *Engine) handleHello(peer *argpeer.Peer, frame Frame) ([]byte, error) {
	hello, err := decodeHello(frame.Payload)
	if err != nil {
		return nil, err
	}
	s := peer.Proto()
	s.TheirPendingID = hello.MyID
	if s.MyID == 0 {
		idBytes, err := e.Suite.Random(4)
		if err != nil {
			return nil, fmt.Errorf("generate responder id: %w", err)
		}
		s.MyID = uint32(idBytes[0])<<24 | uint32(idBytes[1])<<16 | uint32(idBytes[2])<<8 | uint32(idBytes[3])
	}
	seq := e.nextOutSeq(peer)
	return e.buildFrame(TypeWelcome, seq, WelcomePayload{ID1: hello.MyID, ID2: s.MyID}.encode())
}

func (e *Engine) handleWelcome(peer *argpeer.Peer, frame Frame) ([]byte, error) {
	s := peer.Proto()
	if s.Phase != argpeer.PhaseAuthSent {
		return nil, ErrUnexpectedType
	}
	welcome, err := decodeWelcome(frame.Payload)
	if err != nil {
		return nil, err
	}
	if welcome.ID1 != s.MyID {
		return nil, ErrIDMismatch
	}
	s.TheirID = welcome.ID2
	seq := e.nextOutSeq(peer)
	frame2, err := e.buildFrame(TypeVerified, seq, VerifiedPayload{ID1: welcome.ID2}.encode())
	if err != nil {
		return nil, err
	}
	s.Phase = argpeer.PhaseAuthed
	s.Attempts = 0
	return frame2, nil
}

func (e *Engine) handleVerified(peer *argpeer.Peer, frame Frame) error {
	verified, err := decodeVerified(frame.Payload)
	if err != nil {
		return err
	}
	s := peer.Proto()
	if verified.ID1 != s.MyID {
		return ErrIDMismatch
	}
	s.TheirID = s.TheirPendingID
	if s.Phase == argpeer.PhaseIdle || s.Phase == argpeer.PhaseAuthSent {
		s.Phase = argpeer.PhaseAuthed
		s.Attempts = 0
	}
	return nil
}

func (e *Engine) handleTimeReq(peer *argpeer.Peer, frame Frame) ([]byte, error) {
	req, err := decodeTimeReq(frame.Payload)
	if err != nil {
		return nil, err
	}
	seq := e.nextOutSeq(peer)
	payload := TimeRespPayload{RequesterMs: req.LocalMs, ResponderMs: e.Now().UnixMilli()}.encode()
	return e.buildFrame(TypeTimeResp, seq, payload)
}

func (e *Engine) handleTimeResp(peer *argpeer.Peer, frame Frame) error {
	resp, err := decodeTimeResp(frame.Payload)
	if err != nil {
		return err
	}
	s := peer.Proto()
	if s.Phase != argpeer.PhaseTimeSent {
		return ErrUnexpectedType
	}
	roundTrip := float64(e.Now().UnixMilli() - resp.RequesterMs)
	estimatedLatency := roundTrip / 2
	peer.ClockOffset().Refine(roundTrip, estimatedLatency)
	s.LatencyMs = int64(estimatedLatency)
	s.Phase = argpeer.PhaseTimed
	s.Attempts = 0
	return nil
}

// handleConnData adopts the peer's own independently-generated session
// parameters (its symmetric key, hop key, hop interval).
//
// CONN_DATA is two one-way exchanges, not a negotiation over one shared
// secret: each side generates and sends its own key and simply records
// whatever the peer sent back as TheirConnectionData. A side is fully
// connected once it has both sent its own CONN_DATA (PhaseConnSent) and
// received the peer's. If the peer's CONN_DATA arrives before we've
// sent our own yet (we're still in an earlier phase), we send ours now
// in reply — there is nothing to wait for, since the two directions
// never share key material.
func (e *Engine) handleConnData(peer *argpeer.Peer, frame Frame) ([]byte, error) {
	cd, err := decodeConnData(frame.Payload)
	if err != nil {
		return nil, err
	}
	s := peer.Proto()
	peer.SetTheirConnectionData(cd.SymKey, cd.HopKey, cd.HopInterval)

	switch s.Phase {
	case argpeer.PhaseConnected:
		return nil, nil // redundant resend of an already-converged session
	case argpeer.PhaseConnSent:
		s.Phase = argpeer.PhaseConnected
		s.Attempts = 0
		s.PingSentAt = e.Now()
		return nil, nil
	default:
		reply, err := e.sendConnData(peer, e.Now())
		if err != nil {
			return nil, err
		}
		s.Phase = argpeer.PhaseConnected
		s.Attempts = 0
		s.PingSentAt = e.Now()
		return reply, nil
	}
}

func (e *Engine) handlePing(peer *argpeer.Peer) ([]byte, error) {
	seq := e.nextOutSeq(peer)
	return e.buildFrame(TypePong, seq, nil)
}
