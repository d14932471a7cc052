package validate

import "errors"

var (
	// ErrInvalidGateName is returned when a gate name does not match the
	// short-ASCII format the wire protocol requires (§6, MAX_NAME_SIZE).
	ErrInvalidGateName = errors.New("invalid gate name")

	// ErrInvalidDeviceName is returned when a capture device name contains
	// characters that cannot appear in a network interface name.
	ErrInvalidDeviceName = errors.New("invalid device name")
)
