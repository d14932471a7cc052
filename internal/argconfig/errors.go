package argconfig

import "errors"

var (
	// ErrConfigBad is returned when the line-oriented config file is
	// missing a required line or a field fails to parse (§6, §7
	// CONFIG_BAD).
	ErrConfigBad = errors.New("argconfig: configuration file malformed")

	// ErrInsecurePermissions is returned when a config or key file is
	// readable or writable by group/other.
	ErrInsecurePermissions = errors.New("argconfig: file has overly permissive mode")

	// ErrKeyFileBad is returned when a .pub/.priv file is missing a
	// required field or contains an unparsable hex integer.
	ErrKeyFileBad = errors.New("argconfig: key file malformed")
)
