package arghop

import "errors"

// ErrHostBitsOverflow is returned when a hop mask leaves no usable host
// bits (e.g. a /32 mask), which would make the hop range a single address.
var ErrHostBitsOverflow = errors.New("hop range mask leaves no host bits")
