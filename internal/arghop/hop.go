// Package arghop implements the deterministic time-to-address function
// (§4.3) and per-peer clock-offset tracking that let two gateways agree
// on each other's current externally visible address without any
// additional round trip once their clocks are synchronized.
package arghop

import (
	"encoding/binary"
	"math/bits"
	"net"

	"github.com/argnet/arg/internal/argcrypto"
)

// HMAC is the subset of argcrypto.Suite the hopper needs.
type HMAC interface {
	HMAC(key, data []byte) []byte
}

// Address computes hop(hopKey, interval, base, mask, tPeerMs) per §4.3:
//  1. slot = tPeerMs / interval
//  2. digest = HMAC_SHA2(hopKey, slot as 8 bytes); idx = low 4 bytes
//  3. hostBits = 32 - popcount(mask); host = idx mod 2^hostBits
//  4. addr = (base & mask) | (host &^ mask)
func Address(h HMAC, hopKey []byte, interval uint32, base, mask net.IP, tPeerMs int64) (net.IP, error) {
	base4 := base.To4()
	mask4 := mask.To4()
	if base4 == nil || mask4 == nil {
		return nil, ErrHostBitsOverflow
	}
	maskBits := binary.BigEndian.Uint32(mask4)
	hostBits := 32 - bits.OnesCount32(maskBits)
	if hostBits == 0 || hostBits >= 32 {
		return nil, ErrHostBitsOverflow
	}

	slot := tPeerMs / int64(interval)
	var slotBytes [8]byte
	binary.BigEndian.PutUint64(slotBytes[:], uint64(slot))

	digest := h.HMAC(hopKey, slotBytes[:])
	idx := binary.BigEndian.Uint32(digest[:4])

	hostMax := uint32(1) << uint(hostBits)
	host := idx % hostMax

	baseBits := binary.BigEndian.Uint32(base4)
	addrBits := (baseBits & maskBits) | (host &^ maskBits)

	addr := make(net.IP, 4)
	binary.BigEndian.PutUint32(addr, addrBits)
	return addr, nil
}

// Accept reports whether addr is the current hop address, or the
// immediately prior interval's address, for the given peer time (§4.3
// acceptance window: tolerates up to one full interval of clock skew or
// in-flight delay).
func Accept(h HMAC, hopKey []byte, interval uint32, base, mask net.IP, tPeerMs int64, addr net.IP) (bool, error) {
	curr, err := Address(h, hopKey, interval, base, mask, tPeerMs)
	if err != nil {
		return false, err
	}
	if curr.Equal(addr) {
		return true, nil
	}
	prev, err := Address(h, hopKey, interval, base, mask, tPeerMs-int64(interval))
	if err != nil {
		return false, err
	}
	return prev.Equal(addr), nil
}

// ClockOffset tracks Δ_peer, the offset that translates our local wall
// clock into a peer's clock (§4.3). It is established by time-sync and
// refined on every round trip via an exponential moving average.
type ClockOffset struct {
	deltaMs float64
	alpha   float64
}

// NewClockOffset creates a tracker with the standard α = 0.25 smoothing
// factor, seeded with an initial offset from the time-sync exchange.
func NewClockOffset(initialMs float64) *ClockOffset {
	return &ClockOffset{deltaMs: initialMs, alpha: 0.25}
}

// PeerTime translates a local timestamp into the peer's clock.
func (c *ClockOffset) PeerTime(nowLocalMs int64) int64 {
	return nowLocalMs + int64(c.deltaMs)
}

// Delta returns the current offset estimate in milliseconds.
func (c *ClockOffset) Delta() float64 { return c.deltaMs }

// Refine applies one round-trip observation: Δ_peer ← Δ_peer −
// (round_trip/2 − estimated_latency), smoothed with an EMA of α = 0.25.
func (c *ClockOffset) Refine(roundTripMs, estimatedLatencyMs float64) {
	correction := roundTripMs/2 - estimatedLatencyMs
	c.deltaMs = c.deltaMs - c.alpha*correction
}

// StdHMAC adapts argcrypto.StdSuite to the HMAC interface above, for
// production callers that don't need a full Suite.
var StdHMAC HMAC = argcrypto.StdSuite{}
