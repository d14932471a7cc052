package argpacket

import (
	"encoding/binary"
	"net"
	"testing"
)

// buildUDPv4 constructs a minimal, checksum-valid IPv4/UDP packet for tests.
func buildUDPv4(t *testing.T, src, dst net.IP, sport, dport uint16, payload []byte) []byte {
	t.Helper()
	totalLen := minIPv4HeaderLen + minUDPHeaderLen + len(payload)
	buf := make([]byte, totalLen)

	buf[0] = 0x45 // version 4, IHL 5
	binary.BigEndian.PutUint16(buf[2:4], uint16(totalLen))
	buf[8] = 64 // TTL
	buf[9] = ProtoUDP
	copy(buf[12:16], src.To4())
	copy(buf[16:20], dst.To4())

	l4 := buf[minIPv4HeaderLen:]
	binary.BigEndian.PutUint16(l4[0:2], sport)
	binary.BigEndian.PutUint16(l4[2:4], dport)
	binary.BigEndian.PutUint16(l4[4:6], uint16(minUDPHeaderLen+len(payload)))
	copy(l4[8:], payload)

	v, err := Parse(buf)
	if err != nil {
		t.Fatalf("parse freshly built packet: %v", err)
	}
	v.RecomputeIPChecksum()
	v.RecomputeL4Checksum()
	return v.Bytes()
}

func TestParseRejectsTruncated(t *testing.T) {
	if _, err := Parse(make([]byte, 10)); err != ErrMalformed {
		t.Fatalf("Parse(10 bytes) = %v, want ErrMalformed", err)
	}
	buf := buildUDPv4(t, net.IPv4(10, 0, 0, 1), net.IPv4(10, 0, 0, 2), 1, 2, []byte("hi"))
	if _, err := Parse(buf[:len(buf)-5]); err != ErrMalformed {
		t.Fatalf("Parse(truncated UDP) = %v, want ErrMalformed", err)
	}
}

func TestFieldAccessors(t *testing.T) {
	src := net.IPv4(10, 0, 0, 1)
	dst := net.IPv4(10, 1, 0, 2)
	buf := buildUDPv4(t, src, dst, 5000, 53, []byte("payload"))

	v, err := Parse(buf)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if !v.SrcIP().Equal(src) {
		t.Errorf("SrcIP = %v, want %v", v.SrcIP(), src)
	}
	if !v.DstIP().Equal(dst) {
		t.Errorf("DstIP = %v, want %v", v.DstIP(), dst)
	}
	if v.SrcPort() != 5000 {
		t.Errorf("SrcPort = %d, want 5000", v.SrcPort())
	}
	if v.DstPort() != 53 {
		t.Errorf("DstPort = %d, want 53", v.DstPort())
	}
	if v.Protocol() != ProtoUDP {
		t.Errorf("Protocol = %d, want %d", v.Protocol(), ProtoUDP)
	}
}

func TestRewriteAndChecksumRoundTrip(t *testing.T) {
	buf := buildUDPv4(t, net.IPv4(10, 0, 0, 2), net.IPv4(8, 8, 8, 8), 40000, 80, []byte("GET / HTTP/1.0"))
	v, err := Parse(buf)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}

	newSrc := net.IPv4(203, 0, 113, 9)
	v.SetSrcIP(newSrc)
	v.SetSrcPort(40000)
	v.RecomputeIPChecksum()
	v.RecomputeL4Checksum()

	// Re-parsing and verifying the checksum fields are internally
	// consistent: recompute again and confirm it's a no-op (checksum
	// already correct).
	before := append([]byte(nil), v.Bytes()...)
	v.RecomputeIPChecksum()
	v.RecomputeL4Checksum()
	if string(before) != string(v.Bytes()) {
		t.Fatal("recomputing checksum twice changed packet bytes")
	}
	if !v.SrcIP().Equal(newSrc) {
		t.Errorf("SrcIP after rewrite = %v, want %v", v.SrcIP(), newSrc)
	}
}

func TestCopyIsIndependent(t *testing.T) {
	buf := buildUDPv4(t, net.IPv4(10, 0, 0, 1), net.IPv4(10, 0, 0, 2), 1, 2, []byte("x"))
	v, err := Parse(buf)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	dup := v.Copy()
	dup.SetSrcIP(net.IPv4(1, 2, 3, 4))

	if v.SrcIP().Equal(dup.SrcIP()) {
		t.Fatal("mutating the copy affected the original")
	}
}
