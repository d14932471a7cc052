package argpacket

import (
	"encoding/binary"
	"net"
)

// BuildIPv4 constructs a minimal IPv4 packet (no options, no
// fragmentation) carrying payload under the given protocol number. The
// director uses this to address ARG control and WRAPPED frames, which
// travel directly over protocol 253 with no transport header of their
// own (§4.5, §6) — the original sends these the same way, over a raw
// socket with the kernel filling in nothing more than what's built here.
func BuildIPv4(proto byte, src, dst net.IP, payload []byte) []byte {
	buf := make([]byte, minIPv4HeaderLen+len(payload))
	buf[0] = 0x45 // version 4, IHL 5 * 4 = 20 bytes, no options
	binary.BigEndian.PutUint16(buf[2:4], uint16(len(buf)))
	buf[8] = 64 // TTL
	buf[9] = proto
	copy(buf[12:16], src.To4())
	copy(buf[16:20], dst.To4())
	copy(buf[minIPv4HeaderLen:], payload)

	v := &View{buf: buf, ipStart: 0, l4Start: minIPv4HeaderLen, dataSize: len(buf)}
	v.RecomputeIPChecksum()
	return buf
}
