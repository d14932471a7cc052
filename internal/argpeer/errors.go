package argpeer

import "errors"

var (
	// ErrDuplicateName is returned when adding a peer whose name already
	// exists in the registry.
	ErrDuplicateName = errors.New("peer: duplicate name")

	// ErrNotFound is returned when looking up a peer by a name that is
	// not in the registry.
	ErrNotFound = errors.New("peer: not found")
)
