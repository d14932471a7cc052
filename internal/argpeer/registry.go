package argpeer

import "sync"

// Registry holds every peer known to this gateway, keyed by name (§3,
// §4.2). Membership changes (Add/Remove) are rare — cmd/arg adds every
// peer once at startup — so a single mutex over the index is enough.
// Every method, lookups included, holds that mutex only while it reads
// or copies the index.
type Registry struct {
	registryLock sync.Mutex
	byName       map[string]*Peer
	ordered      []*Peer
}

// NewRegistry creates an empty peer registry.
func NewRegistry() *Registry {
	return &Registry{byName: make(map[string]*Peer)}
}

// Add registers a new peer. Returns ErrDuplicateName if the name is
// already present.
func (r *Registry) Add(p *Peer) error {
	r.registryLock.Lock()
	defer r.registryLock.Unlock()

	if _, exists := r.byName[p.Name]; exists {
		return ErrDuplicateName
	}
	r.byName[p.Name] = p
	r.ordered = append(r.ordered, p)
	return nil
}

// Remove drops a peer from the registry. Returns ErrNotFound if the
// name is unknown.
func (r *Registry) Remove(name string) error {
	r.registryLock.Lock()
	defer r.registryLock.Unlock()

	if _, exists := r.byName[name]; !exists {
		return ErrNotFound
	}
	delete(r.byName, name)
	for i, p := range r.ordered {
		if p.Name == name {
			r.ordered = append(r.ordered[:i], r.ordered[i+1:]...)
			break
		}
	}
	return nil
}

// Lookup returns the peer with the given name, or ErrNotFound.
func (r *Registry) Lookup(name string) (*Peer, error) {
	r.registryLock.Lock()
	defer r.registryLock.Unlock()

	p, exists := r.byName[name]
	if !exists {
		return nil, ErrNotFound
	}
	return p, nil
}

// All returns a snapshot slice of every registered peer, in the order
// they were added. The director iterates this once per timer tick to
// drive DoNextAction across all peers (§4.5, §4.6).
func (r *Registry) All() []*Peer {
	r.registryLock.Lock()
	defer r.registryLock.Unlock()

	out := make([]*Peer, len(r.ordered))
	copy(out, r.ordered)
	return out
}

// Len reports how many peers are registered.
func (r *Registry) Len() int {
	r.registryLock.Lock()
	defer r.registryLock.Unlock()
	return len(r.ordered)
}

// ByIncomingAddress returns the first registered peer, in the order
// they were added, for which match returns true, or nil if none does.
// The director supplies address predicates computed via arghop — to
// find the peer whose range contains a destination (§4.6 case 1) and to
// attribute an inbound ARG frame to a peer (§4.6 case 3) — without
// argpeer depending on arghop or argnat.
func (r *Registry) ByIncomingAddress(match func(*Peer) bool) *Peer {
	r.registryLock.Lock()
	peers := make([]*Peer, len(r.ordered))
	copy(peers, r.ordered)
	r.registryLock.Unlock()

	for _, p := range peers {
		if match(p) {
			return p
		}
	}
	return nil
}
