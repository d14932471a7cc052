package argproto

import (
	"crypto/rsa"
	"encoding/binary"

	"github.com/argnet/arg/internal/argcrypto"
)

// Version is the only wire version this engine speaks.
const Version = 1

// HeaderSize is version(1) + type(1) + len(2) + seq(4) + sig(SigSize).
const HeaderSize = 1 + 1 + 2 + 4 + argcrypto.SigSize

// Type enumerates the wire message types (§4.5).
type Type uint8

const (
	TypeWrapped Type = iota + 1
	TypeHello
	TypeWelcome
	TypeVerified
	TypePing
	TypePong
	TypeConnData
	TypeTimeReq
	TypeTimeResp
)

func (t Type) String() string {
	switch t {
	case TypeWrapped:
		return "WRAPPED"
	case TypeHello:
		return "HELLO"
	case TypeWelcome:
		return "WELCOME"
	case TypeVerified:
		return "VERIFIED"
	case TypePing:
		return "PING"
	case TypePong:
		return "PONG"
	case TypeConnData:
		return "CONN_DATA"
	case TypeTimeReq:
		return "TIME_REQ"
	case TypeTimeResp:
		return "TIME_RESP"
	default:
		return "UNKNOWN"
	}
}

// Frame is a decoded wire message (§4.5). Payload is the body as carried
// on the wire: ciphertext for WRAPPED (Receive decrypts it afterwards in
// decapsulate), plaintext for HELLO/WELCOME/etc.
type Frame struct {
	Type    Type
	Seq     uint32
	Payload []byte
}

// Encode signs frame and serializes it to the wire layout:
//
//	version | type | len(2B) | seq(4B) | sig(128B) | payload
//
// The signature covers the whole frame with the sig field zeroed.
func Encode(suite argcrypto.Suite, priv *rsa.PrivateKey, f Frame) ([]byte, error) {
	total := HeaderSize + len(f.Payload)
	buf := make([]byte, total)

	buf[0] = Version
	buf[1] = byte(f.Type)
	binary.BigEndian.PutUint16(buf[2:4], uint16(total))
	binary.BigEndian.PutUint32(buf[4:8], f.Seq)
	// sig field (buf[8:8+SigSize]) stays zero while signing.
	copy(buf[HeaderSize:], f.Payload)

	sig, err := suite.Sign(priv, buf)
	if err != nil {
		return nil, err
	}
	copy(buf[8:8+argcrypto.SigSize], sig)
	return buf, nil
}

// Decode parses and verifies a wire frame against pub. It returns
// ErrTruncated/ErrBadVersion/ErrLengthMismatch before touching the
// signature, and ErrSignatureInvalid if verification fails.
func Decode(suite argcrypto.Suite, pub *rsa.PublicKey, buf []byte) (Frame, error) {
	if len(buf) < HeaderSize {
		return Frame{}, ErrTruncated
	}
	if buf[0] != Version {
		return Frame{}, ErrBadVersion
	}
	declared := binary.BigEndian.Uint16(buf[2:4])
	if int(declared) != len(buf) {
		return Frame{}, ErrLengthMismatch
	}

	sig := append([]byte(nil), buf[8:8+argcrypto.SigSize]...)
	signed := append([]byte(nil), buf...)
	for i := range signed[8 : 8+argcrypto.SigSize] {
		signed[8+i] = 0
	}
	if err := suite.Verify(pub, signed, sig); err != nil {
		return Frame{}, ErrSignatureInvalid
	}

	return Frame{
		Type:    Type(buf[1]),
		Seq:     binary.BigEndian.Uint32(buf[4:8]),
		Payload: append([]byte(nil), buf[HeaderSize:]...),
	}, nil
}

// AcceptSequence implements the §4.5 replay check: accept iff seq >
// inSeqNum, or inSeqNum is near the 32-bit wrap boundary and seq is a
// small number just past it (wrap tolerance = SeqWrapAllowance).
func AcceptSequence(inSeqNum, seq uint32) bool {
	if seq > inSeqNum {
		return true
	}
	if inSeqNum > ^uint32(0)-SeqWrapAllowance && seq < SeqWrapAllowance {
		return true
	}
	return false
}

// SeqWrapAllowance is the wrap-tolerance window (§4.5, §8): 10 sequence
// numbers on either side of the 32-bit rollover are still accepted.
const SeqWrapAllowance = 10
