package argcapture

import "errors"

var (
	// ErrUnsupportedPlatform is returned by Open on a GOOS that has no
	// TUN device support wired in (§1: capture mechanism is an external
	// collaborator, platform-specific by nature).
	ErrUnsupportedPlatform = errors.New("argcapture: no TUN implementation for this platform")

	// ErrClosed names the closed-capture condition. Capture's Read* and
	// Write* methods report the underlying file or socket error after
	// Close rather than this sentinel.
	ErrClosed = errors.New("argcapture: capture closed")
)
