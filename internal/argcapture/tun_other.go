//go:build !linux

package argcapture

import "os"

func openTUN(name string) (*os.File, error) {
	return nil, ErrUnsupportedPlatform
}
