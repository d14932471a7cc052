package argnat

import "errors"

var (
	// ErrBucketNotFound is returned on inbound lookup when no bucket
	// exists for the external endpoint (§4.4 step 2).
	ErrBucketNotFound = errors.New("nat: bucket not found")

	// ErrEntryNotFound is returned on inbound lookup when the bucket
	// exists but no entry matches the gateway-side address (§4.4 step 2).
	ErrEntryNotFound = errors.New("nat: entry not found")
)
