// Package argnat implements the bidirectional NAT translation table
// (§4.4): a hash-bucketed map keyed by external endpoint, used to let
// internal hosts reach non-ARG hosts through the gateway's current hop
// address. Per §9's "Design notes", this keeps the original's hash
// bucketing but replaces its intrusive doubly-linked list with a bucket
// owning a plain slice of entries — entries don't need a back-pointer to
// their bucket since removal always happens during bucket-scoped
// iteration under the single table lock.
package argnat

import (
	"hash/fnv"
	"net"
	"sync"
	"time"
)

// DefaultCleanInterval is how often the background sweep runs (§5, §9: NAT_CLEAN_TIME).
const DefaultCleanInterval = 20 * time.Second

// DefaultEntryTTL is how long an entry may sit idle before it is removed
// (§3: "now − lastUsed > NAT_CLEAN_TIME"; §4.4, §8). The original's
// nat.c compares lastUsed against NAT_CLEAN_TIME directly (not against
// the unrelated, unused NAT_OLD_CONN_TIME constant in settings.h), so
// the idle bound and the sweep cadence are the same constant.
const DefaultEntryTTL = DefaultCleanInterval

// Endpoint is an (IP, port) pair.
type Endpoint struct {
	IP   [4]byte
	Port uint16
}

func toEndpoint(ip net.IP, port uint16) Endpoint {
	var e Endpoint
	copy(e.IP[:], ip.To4())
	e.Port = port
	return e
}

func (e Endpoint) ip() net.IP { return net.IP(e.IP[:]) }

// Key hashes an external endpoint into the 32-bit bucket key used by
// the original: hash(extIP) xor extPort.
func Key(ip net.IP, port uint16) uint32 {
	h := fnv.New32a()
	ip4 := ip.To4()
	if ip4 == nil {
		ip4 = make(net.IP, 4)
	}
	h.Write(ip4)
	return h.Sum32() ^ uint32(port)
}

// Entry is one (intIP, intPort, proto) mapping within a bucket.
type Entry struct {
	IntIP    net.IP
	IntPort  uint16
	GateIP   net.IP
	GatePort uint16
	Proto    byte
	LastUsed time.Time
}

// bucket holds every entry observed for one external endpoint.
type bucket struct {
	extIP   net.IP
	extPort uint16
	entries []*Entry
}

// Table is the NAT translation table. A single coarse lock protects it
// (§4.4, §5): hold duration is bounded by a linear scan within one
// bucket, which is short for realistic table sizes.
type Table struct {
	mu      sync.Mutex
	buckets map[uint32]*bucket
}

// New creates an empty NAT table.
func New() *Table {
	return &Table{buckets: make(map[uint32]*bucket)}
}

// findEntry scans a bucket's entries for one matching pred. Callers must
// hold t.mu.
func findEntry(b *bucket, pred func(*Entry) bool) *Entry {
	for _, e := range b.entries {
		if pred(e) {
			return e
		}
	}
	return nil
}

// Outbound rewrites an internal host's packet addressed to an external
// endpoint (§4.4). gateIP is the peer's *current* hop address, supplied
// by the caller (the director, via the hopper) since argnat has no
// dependency on arghop. Returns the (gateIP, gatePort) to rewrite the
// source to.
func (t *Table) Outbound(srcIP net.IP, srcPort uint16, dstIP net.IP, dstPort uint16, proto byte, currentGateIP net.IP) (net.IP, uint16) {
	t.mu.Lock()
	defer t.mu.Unlock()

	key := Key(dstIP, dstPort)
	b, ok := t.buckets[key]
	if !ok {
		b = &bucket{extIP: dstIP.To4(), extPort: dstPort}
		t.buckets[key] = b
	}

	src4 := toEndpoint(srcIP, srcPort)
	e := findEntry(b, func(e *Entry) bool {
		return e.Proto == proto && e.IntPort == srcPort && e.IntIP.Equal(src4.ip())
	})
	if e == nil {
		// Port-preserving allocation: gatePort = srcPort. The original
		// source has a literal "TBD random port" comment here; per
		// §9's open question, we preserve that behavior rather than
		// guess at randomized allocation.
		e = &Entry{
			IntIP:    append(net.IP(nil), srcIP.To4()...),
			IntPort:  srcPort,
			GateIP:   append(net.IP(nil), currentGateIP.To4()...),
			GatePort: srcPort,
			Proto:    proto,
		}
		b.entries = append(b.entries, e)
	}
	e.LastUsed = time.Now()
	return e.GateIP, e.GatePort
}

// Inbound rewrites a packet arriving from an external endpoint destined
// to one of the gateway's hop addresses (§4.4). xIP/xPort is the remote
// endpoint the packet came from; gIP/gPort is the gateway-side address
// the packet was sent to. Returns the internal (IP, port) to rewrite the
// destination to.
func (t *Table) Inbound(xIP net.IP, xPort uint16, gIP net.IP, gPort uint16, proto byte) (net.IP, uint16, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	key := Key(xIP, xPort)
	b, ok := t.buckets[key]
	if !ok {
		return nil, 0, ErrBucketNotFound
	}

	e := findEntry(b, func(e *Entry) bool {
		return e.Proto == proto && e.GatePort == gPort && e.GateIP.Equal(gIP.To4())
	})
	if e == nil {
		return nil, 0, ErrEntryNotFound
	}
	e.LastUsed = time.Now()
	return e.IntIP, e.IntPort, nil
}

// Cleanup removes entries idle for longer than ttl, then removes any
// bucket left with zero entries (§3, §4.4). Runs under the same lock as
// every other table operation — a bucket is exclusively owned by the
// table, so nothing else can observe a half-cleaned bucket.
func (t *Table) Cleanup(ttl time.Duration) (removedEntries, removedBuckets int) {
	t.mu.Lock()
	defer t.mu.Unlock()

	now := time.Now()
	for key, b := range t.buckets {
		kept := b.entries[:0]
		for _, e := range b.entries {
			if now.Sub(e.LastUsed) > ttl {
				removedEntries++
				continue
			}
			kept = append(kept, e)
		}
		b.entries = kept
		if len(b.entries) == 0 {
			delete(t.buckets, key)
			removedBuckets++
		}
	}
	return removedEntries, removedBuckets
}

// BucketCount reports the number of live buckets, for metrics/tests.
func (t *Table) BucketCount() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.buckets)
}

// EntryCount reports the total number of live entries across all
// buckets, for metrics/tests.
func (t *Table) EntryCount() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	n := 0
	for _, b := range t.buckets {
		n += len(b.entries)
	}
	return n
}

