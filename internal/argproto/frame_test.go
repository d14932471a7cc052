package argproto

import (
	"net"
	"testing"

	"github.com/argnet/arg/internal/argcrypto"
	"github.com/argnet/arg/internal/argpeer"
)

func mustPeer(t *testing.T, name string) (*argpeer.Peer, *argpeer.Peer) {
	t.Helper()
	priv, err := argcrypto.TestKeyPair(1024)
	if err != nil {
		t.Fatalf("TestKeyPair: %v", err)
	}
	base := net.IPv4(10, 5, 0, 0)
	mask := net.IPv4(255, 255, 0, 0)
	self := argpeer.New(name, &priv.PublicKey, base, mask).WithPrivateKey(priv)
	remoteView := argpeer.New(name, &priv.PublicKey, base, mask) // how the peer is seen by others
	return self, remoteView
}

func TestEncodeDecodeRoundTrip(t *testing.T) {
	suite := &argcrypto.FakeSuite{}
	self, remoteView := mustPeer(t, "west")

	frame, err := Encode(suite, self.PrivateKey, Frame{Type: TypeHello, Seq: 1, Payload: HelloPayload{MyID: 42}.encode()})
	if err != nil {
		t.Fatalf("Encode: %v", err)
	}

	decoded, err := Decode(suite, remoteView.PublicKey, frame)
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if decoded.Type != TypeHello || decoded.Seq != 1 {
		t.Fatalf("decoded = %+v", decoded)
	}
	hello, err := decodeHello(decoded.Payload)
	if err != nil || hello.MyID != 42 {
		t.Fatalf("decodeHello = %+v, %v", hello, err)
	}
}

func TestDecodeRejectsTamperedSignature(t *testing.T) {
	suite := &argcrypto.FakeSuite{}
	self, remoteView := mustPeer(t, "west")

	frame, err := Encode(suite, self.PrivateKey, Frame{Type: TypePing, Seq: 1})
	if err != nil {
		t.Fatalf("Encode: %v", err)
	}
	frame[len(frame)-1] ^= 0xFF // corrupt a signature byte directly

	if _, err := Decode(suite, remoteView.PublicKey, frame); err != ErrSignatureInvalid {
		t.Fatalf("Decode(tampered) = %v, want ErrSignatureInvalid", err)
	}
}

func TestDecodeRejectsTruncated(t *testing.T) {
	suite := &argcrypto.FakeSuite{}
	_, remoteView := mustPeer(t, "west")
	if _, err := Decode(suite, remoteView.PublicKey, []byte{1, 2, 3}); err != ErrTruncated {
		t.Fatalf("Decode(short) = %v, want ErrTruncated", err)
	}
}

func TestAcceptSequence(t *testing.T) {
	cases := []struct {
		name    string
		in, seq uint32
		want    bool
	}{
		{"strictly greater", 10, 11, true},
		{"equal rejected", 10, 10, false},
		{"lesser rejected", 10, 5, false},
		{"wrap accepted", ^uint32(0) - 3, 2, true},
		{"wrap but too far", ^uint32(0) - 3, 20, false},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			if got := AcceptSequence(c.in, c.seq); got != c.want {
				t.Fatalf("AcceptSequence(%d,%d) = %v, want %v", c.in, c.seq, got, c.want)
			}
		})
	}
}

func TestConnDataPayloadRoundTrip(t *testing.T) {
	p := ConnDataPayload{
		SymKey:      make([]byte, argcrypto.KeySize),
		HopKey:      make([]byte, argcrypto.HopKeySize),
		HopInterval: 250,
		TimeOffset:  -1500,
	}
	for i := range p.SymKey {
		p.SymKey[i] = byte(i)
	}
	decoded, err := decodeConnData(p.encode())
	if err != nil {
		t.Fatalf("decodeConnData: %v", err)
	}
	if decoded.HopInterval != 250 || decoded.TimeOffset != -1500 {
		t.Fatalf("decoded = %+v", decoded)
	}
	if string(decoded.SymKey) != string(p.SymKey) {
		t.Fatal("SymKey did not round-trip")
	}
}
