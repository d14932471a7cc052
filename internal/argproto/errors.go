package argproto

import "errors"

var (
	// ErrTruncated is returned when a buffer is too short to hold a frame header.
	ErrTruncated = errors.New("argproto: truncated frame")

	// ErrBadVersion is returned when the frame's version byte doesn't match Version.
	ErrBadVersion = errors.New("argproto: unsupported version")

	// ErrLengthMismatch is returned when the frame's declared length
	// doesn't match the buffer it was parsed from.
	ErrLengthMismatch = errors.New("argproto: length field mismatch")

	// ErrSignatureInvalid is returned when frame signature verification fails.
	ErrSignatureInvalid = errors.New("argproto: signature invalid")

	// ErrSequenceReplay is returned when an inbound seq fails the replay check (§4.5).
	ErrSequenceReplay = errors.New("argproto: sequence replay")

	// ErrUnexpectedType is returned when a message type doesn't fit the peer's current phase.
	ErrUnexpectedType = errors.New("argproto: unexpected message type for state")

	// ErrIDMismatch is returned when a WELCOME/VERIFIED correlator doesn't match.
	ErrIDMismatch = errors.New("argproto: handshake id mismatch")

	// ErrNotConnected is returned by SendWrapped when the peer isn't CONNECTED.
	ErrNotConnected = errors.New("argproto: peer not connected")
)
