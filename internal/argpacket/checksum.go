package argpacket

import "encoding/binary"

// ones-complement checksum per RFC 1071, folding carries back in.
func onesComplementSum(data []byte, initial uint32) uint16 {
	sum := initial
	for len(data) >= 2 {
		sum += uint32(binary.BigEndian.Uint16(data))
		data = data[2:]
	}
	if len(data) == 1 {
		sum += uint32(data[0]) << 8
	}
	for sum>>16 != 0 {
		sum = (sum & 0xFFFF) + (sum >> 16)
	}
	return ^uint16(sum)
}

// RecomputeIPChecksum zeroes and recomputes the IPv4 header checksum.
// Callers must invoke this after mutating any IPv4 header field (§4.1).
func (v *View) RecomputeIPChecksum() {
	ihl := v.l4Start - v.ipStart
	hdr := v.buf[v.ipStart : v.ipStart+ihl]
	hdr[10], hdr[11] = 0, 0
	csum := onesComplementSum(hdr, 0)
	binary.BigEndian.PutUint16(hdr[10:12], csum)
}

// pseudoHeaderSum computes the IPv4 pseudo-header sum used by UDP and TCP
// checksums: source IP, dest IP, zero byte, protocol, and L4 length.
func (v *View) pseudoHeaderSum(l4Len int) uint32 {
	var sum uint32
	src := v.buf[v.ipStart+12 : v.ipStart+16]
	dst := v.buf[v.ipStart+16 : v.ipStart+20]
	sum += uint32(binary.BigEndian.Uint16(src[0:2]))
	sum += uint32(binary.BigEndian.Uint16(src[2:4]))
	sum += uint32(binary.BigEndian.Uint16(dst[0:2]))
	sum += uint32(binary.BigEndian.Uint16(dst[2:4]))
	sum += uint32(v.Protocol())
	sum += uint32(l4Len)
	return sum
}

// RecomputeL4Checksum recomputes the UDP or TCP checksum over the L4
// segment (header + payload) using the IPv4 pseudo-header. Callers must
// invoke this after mutating any address/port field or the payload
// itself (§4.1). No-op for protocols without a checksum field (ICMP, ARG).
func (v *View) RecomputeL4Checksum() {
	l4 := v.buf[v.l4Start:v.dataSizeOrLen()]
	switch v.Protocol() {
	case ProtoUDP:
		l4[6], l4[7] = 0, 0
		csum := onesComplementSum(l4, v.pseudoHeaderSum(len(l4)))
		if csum == 0 {
			csum = 0xFFFF // UDP checksum of exactly 0 is transmitted as all-ones
		}
		binary.BigEndian.PutUint16(l4[6:8], csum)
	case ProtoTCP:
		l4[16], l4[17] = 0, 0
		csum := onesComplementSum(l4, v.pseudoHeaderSum(len(l4)))
		binary.BigEndian.PutUint16(l4[16:18], csum)
	}
}

func (v *View) dataSizeOrLen() int {
	if v.dataSize > 0 && v.dataSize <= len(v.buf) {
		return v.dataSize
	}
	return len(v.buf)
}
