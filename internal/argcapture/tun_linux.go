//go:build linux

package argcapture

import (
	"fmt"
	"os"
	"unsafe"

	"golang.org/x/sys/unix"
)

// openTUN opens (creating if necessary) a Linux TUN device named name in
// no-packet-information mode, so every read/write is a bare IP packet —
// the same layer argpacket.View expects. Grounded on the kernel-control
// device open pattern in the pack's darwin utun adapter (tun.go),
// translated to Linux's /dev/net/tun + TUNSETIFF idiom.
func openTUN(name string) (*os.File, error) {
	fd, err := unix.Open("/dev/net/tun", unix.O_RDWR, 0)
	if err != nil {
		return nil, fmt.Errorf("argcapture: open /dev/net/tun: %w", err)
	}

	var req struct {
		name  [unix.IFNAMSIZ]byte
		flags uint16
		_     [22]byte // ifreq padding
	}
	copy(req.name[:], name)
	req.flags = unix.IFF_TUN | unix.IFF_NO_PI

	if _, _, errno := unix.Syscall(unix.SYS_IOCTL, uintptr(fd), uintptr(unix.TUNSETIFF), uintptr(unsafe.Pointer(&req))); errno != 0 {
		unix.Close(fd)
		return nil, fmt.Errorf("argcapture: TUNSETIFF %s: %w", name, errno)
	}

	return os.NewFile(uintptr(fd), "/dev/net/tun"), nil
}
