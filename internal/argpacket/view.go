// Package argpacket implements the zero-copy IPv4/UDP/TCP packet view
// described in §4.1: a View is a reference to a mutable byte buffer plus
// typed offsets into it. Field accessors read and write network byte
// order directly in the buffer; nothing is decoded into an intermediate
// struct, because the director needs to rewrite and retransmit the same
// bytes it captured (NAT rewrite, encapsulation) rather than reconstruct
// a packet from parsed fields.
//
// This is deliberately not built on a general-purpose decoder like
// gopacket: gopacket's layer model copies field values out of the wire
// bytes into Go structs, which is the wrong shape for "mutate this field
// in place, then recompute the checksum over the same buffer." The
// standard library's encoding/binary, used directly against buf[off:],
// is the correct tool for in-place mutation and is what this package
// uses throughout.
package argpacket

import (
	"encoding/binary"
	"net"
)

// Protocol numbers referenced by the director and NAT table.
const (
	ProtoICMP = 1
	ProtoTCP  = 6
	ProtoUDP  = 17
	ProtoARG  = 253 // assigned ARG protocol number, §6
)

const (
	minIPv4HeaderLen = 20
	minUDPHeaderLen  = 8
	minTCPHeaderLen  = 20
)

// View is a reference to a captured packet buffer and the offsets of its
// headers within it. Zero value is not usable; construct with Parse.
type View struct {
	buf      []byte
	ipStart  int
	l4Start  int
	dataSize int // length of the IPv4 header's declared total length
}

// Parse validates that buf holds at least a full IPv4 header, and for
// UDP/TCP protocols, at least a full L4 header too. It returns
// ErrMalformed on any truncation (§4.1).
func Parse(buf []byte) (*View, error) {
	if len(buf) < minIPv4HeaderLen {
		return nil, ErrMalformed
	}
	v := &View{buf: buf, ipStart: 0}
	ihl := int(buf[0]&0x0F) * 4
	if ihl < minIPv4HeaderLen || len(buf) < ihl {
		return nil, ErrMalformed
	}
	v.l4Start = ihl
	totalLen := int(binary.BigEndian.Uint16(buf[2:4]))
	if totalLen > len(buf) {
		return nil, ErrMalformed
	}
	v.dataSize = totalLen

	switch v.Protocol() {
	case ProtoUDP:
		if len(buf) < v.l4Start+minUDPHeaderLen {
			return nil, ErrMalformed
		}
	case ProtoTCP:
		if len(buf) < v.l4Start+minTCPHeaderLen {
			return nil, ErrMalformed
		}
	}
	return v, nil
}

// Bytes returns the full underlying buffer, including any trailing bytes
// beyond the IPv4 header's declared total length.
func (v *View) Bytes() []byte { return v.buf }

// IPPayload returns the buffer from the start of the IPv4 header to its
// declared total length (i.e. excluding any capture-layer trailer).
func (v *View) IPPayload() []byte {
	if v.dataSize > 0 && v.dataSize <= len(v.buf) {
		return v.buf[v.ipStart:v.dataSize]
	}
	return v.buf[v.ipStart:]
}

// Protocol returns the IPv4 protocol number.
func (v *View) Protocol() byte { return v.buf[v.ipStart+9] }

// SetProtocol overwrites the IPv4 protocol field.
func (v *View) SetProtocol(p byte) { v.buf[v.ipStart+9] = p }

// SrcIP returns the IPv4 source address.
func (v *View) SrcIP() net.IP {
	return net.IP(v.buf[v.ipStart+12 : v.ipStart+16])
}

// DstIP returns the IPv4 destination address.
func (v *View) DstIP() net.IP {
	return net.IP(v.buf[v.ipStart+16 : v.ipStart+20])
}

// SetSrcIP overwrites the IPv4 source address in place.
func (v *View) SetSrcIP(ip net.IP) {
	copy(v.buf[v.ipStart+12:v.ipStart+16], ip.To4())
}

// SetDstIP overwrites the IPv4 destination address in place.
func (v *View) SetDstIP(ip net.IP) {
	copy(v.buf[v.ipStart+16:v.ipStart+20], ip.To4())
}

// hasPorts reports whether the L4 protocol has a 16-bit port pair in the
// first four bytes (true for both UDP and TCP).
func (v *View) hasPorts() bool {
	p := v.Protocol()
	return p == ProtoUDP || p == ProtoTCP
}

// SrcPort returns the L4 source port, or 0 for protocols without ports.
func (v *View) SrcPort() uint16 {
	if !v.hasPorts() {
		return 0
	}
	return binary.BigEndian.Uint16(v.buf[v.l4Start : v.l4Start+2])
}

// DstPort returns the L4 destination port, or 0 for protocols without ports.
func (v *View) DstPort() uint16 {
	if !v.hasPorts() {
		return 0
	}
	return binary.BigEndian.Uint16(v.buf[v.l4Start+2 : v.l4Start+4])
}

// SetSrcPort overwrites the L4 source port in place.
func (v *View) SetSrcPort(port uint16) {
	if v.hasPorts() {
		binary.BigEndian.PutUint16(v.buf[v.l4Start:v.l4Start+2], port)
	}
}

// SetDstPort overwrites the L4 destination port in place.
func (v *View) SetDstPort(port uint16) {
	if v.hasPorts() {
		binary.BigEndian.PutUint16(v.buf[v.l4Start+2:v.l4Start+4], port)
	}
}

// Copy allocates a new buffer and duplicates the packet contents (§4.1,
// §9: "copies the packet then mutates the copy"). The original View and
// its underlying buffer are untouched.
func (v *View) Copy() *View {
	dup := make([]byte, len(v.buf))
	copy(dup, v.buf)
	return &View{buf: dup, ipStart: v.ipStart, l4Start: v.l4Start, dataSize: v.dataSize}
}

// L4Bytes returns everything after the IPv4 header. For UDP/TCP this
// includes the L4 header; for protocols without one (ICMP, ARG) it is
// the entire remaining segment — the director uses this to hand an ARG
// control/wrapped frame to the protocol engine without its IP wrapper.
func (v *View) L4Bytes() []byte {
	return v.buf[v.l4Start:v.dataSizeOrLen()]
}
