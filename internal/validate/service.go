package validate

import (
	"fmt"
	"regexp"
)

// deviceNameRe matches typical Unix network interface names: letters,
// digits, dots, and hyphens. Prevents a malformed config value from being
// handed to a capture backend that shells out or opens by name.
var deviceNameRe = regexp.MustCompile(`^[a-zA-Z0-9][a-zA-Z0-9.-]{0,14}$`)

// DeviceName checks that a capture device name is safe to pass to the
// packet-capture backend (§6: internal/external device names).
func DeviceName(name string) error {
	if name == "" {
		return fmt.Errorf("%w: name cannot be empty", ErrInvalidDeviceName)
	}
	if !deviceNameRe.MatchString(name) {
		return fmt.Errorf("%w: %q must be alphanumeric, dot, or hyphen, starting with alphanumeric", ErrInvalidDeviceName, name)
	}
	return nil
}
