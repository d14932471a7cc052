package argpacket

import "errors"

// ErrMalformed is returned by Parse when the buffer is too short to hold
// the header it claims to contain. Callers drop the packet (§4.1, §7).
var ErrMalformed = errors.New("malformed packet")
