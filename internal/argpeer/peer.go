// Package argpeer holds the peer data model (§3): a Peer's identity,
// network range, keys, clock offset, and protocol state, plus the
// Registry that gathers all known peers.
package argpeer

import (
	"crypto/rsa"
	"net"
	"sync"
	"time"

	"github.com/argnet/arg/internal/arghop"
)

// State is the handshake bitmask from §3/§4.5: bits of pending action.
type State uint8

const (
	// StateAuth means an auth handshake must be (re)started.
	StateAuth State = 1 << iota
	// StateTime means a time-sync exchange must be (re)started.
	StateTime
	// StateConn means a CONN_DATA exchange must be (re)started.
	StateConn
	// StatePing means a keepalive ping is due.
	StatePing
)

// Phase is the handshake's current step, driving DoNextAction (§4.5).
type Phase int

const (
	PhaseIdle Phase = iota
	PhaseAuthSent
	PhaseAuthed
	PhaseTimeSent
	PhaseTimed
	PhaseConnSent
	PhaseConnected
)

func (p Phase) String() string {
	switch p {
	case PhaseIdle:
		return "IDLE"
	case PhaseAuthSent:
		return "AUTH_SENT"
	case PhaseAuthed:
		return "AUTHED"
	case PhaseTimeSent:
		return "TIME_SENT"
	case PhaseTimed:
		return "TIMED"
	case PhaseConnSent:
		return "CONN_SENT"
	case PhaseConnected:
		return "CONNECTED"
	default:
		return "UNKNOWN"
	}
}

// ProtoState is the mutable per-peer protocol state (§3 proto_data),
// covered by Peer.protoLock.
type ProtoState struct {
	Phase Phase
	Bits  State

	InSeqNum  uint32
	OutSeqNum uint32

	LatencyMs int64

	PingSentAt time.Time
	PingID     uint32

	MyID           uint32
	TheirID        uint32
	TheirPendingID uint32

	LastTraffic time.Time // drives MAX_UPDATE_TIME disconnection (§4.5)

	// Retry bookkeeping for the current *_SENT phase.
	Attempts  int
	NextRetry time.Time
}

// Peer is one known gateway (§3: arg_network_info). Everything under
// protoLock (state, sequence numbers, keys, clock offset) is accessed
// only while holding it; the identity/network fields below are set
// once at construction and read without locking.
//
// CONN_DATA is two one-way key exchanges, not one shared secret
// (original_source/protocol.h: each side generates and sends its own
// hop key and symmetric key). ourSymKey/ourHopKey are the values this
// gateway generated and sent to the peer — used to encrypt frames this
// side sends and to compute this side's own current address the way
// the peer predicts it. theirSymKey/theirHopKey are the values the
// peer generated and sent back — used to decrypt frames from the peer
// and to compute the peer's current address. Using one shared key with
// two independently incrementing sequence numbers would let both
// directions' AES-CTR keystreams collide the first time the two
// OutSeqNum counters coincide; per-direction keys avoid that.
type Peer struct {
	Name string

	PublicKey  *rsa.PublicKey
	PrivateKey *rsa.PrivateKey // non-nil only for "this gateway"'s own Peer record

	BaseIP net.IP
	Mask   net.IP

	protoLock sync.Mutex

	ourSymKey   []byte // AES-256, generated by us, sent to the peer
	ourHopKey   []byte // generated by us, used to derive our own hop address
	ourInterval uint32 // milliseconds between hops, our own schedule

	theirSymKey   []byte // AES-256, generated by the peer
	theirHopKey   []byte // generated by the peer, used to derive their hop address
	theirInterval uint32 // milliseconds between hops, the peer's own schedule

	clock *arghop.ClockOffset

	proto ProtoState
}

// New creates a Peer in the disconnected/IDLE state.
func New(name string, pub *rsa.PublicKey, baseIP, mask net.IP) *Peer {
	return &Peer{
		Name:      name,
		PublicKey: pub,
		BaseIP:    baseIP,
		Mask:      mask,
		clock:     arghop.NewClockOffset(0),
	}
}

// WithPrivateKey marks this Peer record as "ourselves": the one peer in
// the registry whose private key we hold.
func (p *Peer) WithPrivateKey(priv *rsa.PrivateKey) *Peer {
	p.PrivateKey = priv
	return p
}

// Lock/Unlock expose protoLock directly for callers (the protocol
// engine) that need to hold it across a short sequence of state reads
// and writes without going through per-field accessor methods.
func (p *Peer) Lock()   { p.protoLock.Lock() }
func (p *Peer) Unlock() { p.protoLock.Unlock() }

// Proto returns a pointer to the mutable protocol state. Callers must
// hold the lock (via Lock/Unlock) before touching it.
func (p *Peer) Proto() *ProtoState { return &p.proto }

// SetOurConnectionData records the symmetric key, hop key, and hop
// interval this gateway generated and sent to the peer in its own
// CONN_DATA (§3, §4.5). Must be called with the lock held.
func (p *Peer) SetOurConnectionData(symKey, hopKey []byte, hopInterval uint32) {
	p.ourSymKey = append([]byte(nil), symKey...)
	p.ourHopKey = append([]byte(nil), hopKey...)
	p.ourInterval = hopInterval
}

// SetTheirConnectionData records the symmetric key, hop key, and hop
// interval the peer generated and sent in its own CONN_DATA. Must be
// called with the lock held.
func (p *Peer) SetTheirConnectionData(symKey, hopKey []byte, hopInterval uint32) {
	p.theirSymKey = append([]byte(nil), symKey...)
	p.theirHopKey = append([]byte(nil), hopKey...)
	p.theirInterval = hopInterval
}

// OurSymKey returns the key this gateway generated, used to encrypt
// WRAPPED frames sent to the peer. Must be called with the lock held.
func (p *Peer) OurSymKey() []byte { return p.ourSymKey }

// TheirSymKey returns the key the peer generated, used to decrypt
// WRAPPED frames received from it. Must be called with the lock held.
func (p *Peer) TheirSymKey() []byte { return p.theirSymKey }

// OurHopKey returns the hop key this gateway generated, the one the
// peer uses to predict our current address. Must be called with the
// lock held.
func (p *Peer) OurHopKey() []byte { return p.ourHopKey }

// TheirHopKey returns the hop key the peer generated, used to predict
// the peer's current address. Must be called with the lock held.
func (p *Peer) TheirHopKey() []byte { return p.theirHopKey }

// OurHopInterval returns the hop interval this gateway proposed for
// its own schedule. Must be called with the lock held.
func (p *Peer) OurHopInterval() uint32 { return p.ourInterval }

// TheirHopInterval returns the hop interval the peer proposed for its
// own schedule. Must be called with the lock held.
func (p *Peer) TheirHopInterval() uint32 { return p.theirInterval }

// ClockOffset returns the clock-offset tracker. Must be called with the
// lock held.
func (p *Peer) ClockOffset() *arghop.ClockOffset { return p.clock }

// Connected reports whether the handshake has reached CONNECTED.
// Must be called with the lock held.
func (p *Peer) Connected() bool { return p.proto.Phase == PhaseConnected }
