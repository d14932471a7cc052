package argproto

import (
	"encoding/binary"

	"github.com/argnet/arg/internal/argcrypto"
)

// Payload encodings for the non-WRAPPED message types (§4.5). These are
// small fixed-layout structs; WRAPPED frames carry an opaque encrypted
// IP packet instead and never pass through this file.

// HelloPayload carries the initiator's correlator.
type HelloPayload struct{ MyID uint32 }

func (p HelloPayload) encode() []byte {
	b := make([]byte, 4)
	binary.BigEndian.PutUint32(b, p.MyID)
	return b
}

func decodeHello(b []byte) (HelloPayload, error) {
	if len(b) < 4 {
		return HelloPayload{}, ErrTruncated
	}
	return HelloPayload{MyID: binary.BigEndian.Uint32(b)}, nil
}

// WelcomePayload echoes the initiator's id and adds the responder's own.
type WelcomePayload struct {
	ID1 uint32 // initiator's myID, echoed back
	ID2 uint32 // responder's own id
}

func (p WelcomePayload) encode() []byte {
	b := make([]byte, 8)
	binary.BigEndian.PutUint32(b[0:4], p.ID1)
	binary.BigEndian.PutUint32(b[4:8], p.ID2)
	return b
}

func decodeWelcome(b []byte) (WelcomePayload, error) {
	if len(b) < 8 {
		return WelcomePayload{}, ErrTruncated
	}
	return WelcomePayload{
		ID1: binary.BigEndian.Uint32(b[0:4]),
		ID2: binary.BigEndian.Uint32(b[4:8]),
	}, nil
}

// VerifiedPayload echoes the responder's id back to close the auth loop.
type VerifiedPayload struct{ ID1 uint32 }

func (p VerifiedPayload) encode() []byte {
	b := make([]byte, 4)
	binary.BigEndian.PutUint32(b, p.ID1)
	return b
}

func decodeVerified(b []byte) (VerifiedPayload, error) {
	if len(b) < 4 {
		return VerifiedPayload{}, ErrTruncated
	}
	return VerifiedPayload{ID1: binary.BigEndian.Uint32(b)}, nil
}

// TimeReqPayload carries the sender's local timestamp in milliseconds.
type TimeReqPayload struct{ LocalMs int64 }

func (p TimeReqPayload) encode() []byte {
	b := make([]byte, 8)
	binary.BigEndian.PutUint64(b, uint64(p.LocalMs))
	return b
}

func decodeTimeReq(b []byte) (TimeReqPayload, error) {
	if len(b) < 8 {
		return TimeReqPayload{}, ErrTruncated
	}
	return TimeReqPayload{LocalMs: int64(binary.BigEndian.Uint64(b))}, nil
}

// TimeRespPayload echoes the requester's original timestamp and adds
// the responder's own, letting the requester compute round-trip time
// and a first clock-offset estimate (§4.3, §4.5).
type TimeRespPayload struct {
	RequesterMs int64
	ResponderMs int64
}

func (p TimeRespPayload) encode() []byte {
	b := make([]byte, 16)
	binary.BigEndian.PutUint64(b[0:8], uint64(p.RequesterMs))
	binary.BigEndian.PutUint64(b[8:16], uint64(p.ResponderMs))
	return b
}

func decodeTimeResp(b []byte) (TimeRespPayload, error) {
	if len(b) < 16 {
		return TimeRespPayload{}, ErrTruncated
	}
	return TimeRespPayload{
		RequesterMs: int64(binary.BigEndian.Uint64(b[0:8])),
		ResponderMs: int64(binary.BigEndian.Uint64(b[8:16])),
	}, nil
}

// ConnDataPayload carries the parameters a CONNECTED session runs on
// (§3, §4.5): the symmetric key, the hopper's HMAC key, the hop
// interval, and the sender's current clock offset. The receiver
// (handleConnData) does not use TimeOffset.
type ConnDataPayload struct {
	SymKey      []byte // argcrypto.KeySize bytes
	HopKey      []byte // argcrypto.HopKeySize bytes
	HopInterval uint32 // milliseconds
	TimeOffset  int64  // sender's ClockOffset().Delta() for this peer, in ms
}

func (p ConnDataPayload) encode() []byte {
	b := make([]byte, argcrypto.KeySize+argcrypto.HopKeySize+4+8)
	off := 0
	copy(b[off:], p.SymKey)
	off += argcrypto.KeySize
	copy(b[off:], p.HopKey)
	off += argcrypto.HopKeySize
	binary.BigEndian.PutUint32(b[off:], p.HopInterval)
	off += 4
	binary.BigEndian.PutUint64(b[off:], uint64(p.TimeOffset))
	return b
}

func decodeConnData(b []byte) (ConnDataPayload, error) {
	want := argcrypto.KeySize + argcrypto.HopKeySize + 4 + 8
	if len(b) < want {
		return ConnDataPayload{}, ErrTruncated
	}
	off := 0
	symKey := append([]byte(nil), b[off:off+argcrypto.KeySize]...)
	off += argcrypto.KeySize
	hopKey := append([]byte(nil), b[off:off+argcrypto.HopKeySize]...)
	off += argcrypto.HopKeySize
	interval := binary.BigEndian.Uint32(b[off:])
	off += 4
	timeOffset := int64(binary.BigEndian.Uint64(b[off:]))
	return ConnDataPayload{SymKey: symKey, HopKey: hopKey, HopInterval: interval, TimeOffset: timeOffset}, nil
}
