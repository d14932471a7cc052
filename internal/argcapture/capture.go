// Package argcapture is the concrete packet-capture collaborator the
// design treats as external glue (§1): it opens the internal TUN
// device and an external raw socket and turns their blocking reads
// into the context-cancelable argdirector.Capture interface. Nothing
// here interprets packet contents — that is argpacket's job.
package argcapture

import (
	"context"
	"fmt"
	"net"
	"os"
	"sync"
)

// Capture implements argdirector.Capture over a Linux TUN device (the
// "internal" side) and a raw IP socket for protocol 253 control/wrapped
// frames (the "external" side). The raw socket receives only protocol
// 253; NAT'd UDP/TCP return traffic is not captured.
type Capture struct {
	internal *os.File
	external *net.IPConn

	mu     sync.Mutex
	closed bool
}

// Open creates (or attaches to) internalDevice as a TUN interface and
// opens a raw protocol-253 IP socket for sending/receiving. Both names
// come straight from the gateway config file (§6); the raw socket is
// not bound to externalDevice, whose name appears only in the error
// returned when the socket cannot be opened.
func Open(internalDevice, externalDevice string) (*Capture, error) {
	tun, err := openTUN(internalDevice)
	if err != nil {
		return nil, fmt.Errorf("argcapture: open internal device %s: %w", internalDevice, err)
	}

	// TODO: this only sees protocol-253 traffic; NAT'd UDP/TCP return
	// packets need a protocol-agnostic capture (AF_PACKET) bound to
	// externalDevice instead of a single-protocol net.IPConn.
	conn, err := net.ListenIP("ip4:253", &net.IPAddr{})
	if err != nil {
		tun.Close()
		return nil, fmt.Errorf("argcapture: open raw socket on %s: %w", externalDevice, err)
	}

	return &Capture{internal: tun, external: conn}, nil
}

// Close releases the TUN device and raw socket. Read* calls blocked at
// that moment, and any later Read*/Write* calls, fail with the error of
// the closed TUN file or socket; they do not return ErrClosed.
func (c *Capture) Close() error {
	c.mu.Lock()
	c.closed = true
	c.mu.Unlock()

	var errs []error
	if err := c.internal.Close(); err != nil {
		errs = append(errs, err)
	}
	if err := c.external.Close(); err != nil {
		errs = append(errs, err)
	}
	if len(errs) > 0 {
		return fmt.Errorf("argcapture: close: %v", errs)
	}
	return nil
}

type readResult struct {
	buf []byte
	err error
}

// cancelableRead runs a blocking read in its own goroutine so a
// canceled ctx returns promptly; the read goroutine is left to finish
// (or to be unblocked by Close, which the caller is expected to invoke
// on shutdown) rather than blocking the caller on it.
func cancelableRead(ctx context.Context, read func() (int, error), buf []byte) ([]byte, error) {
	ch := make(chan readResult, 1)
	go func() {
		n, err := read()
		if err != nil {
			ch <- readResult{err: err}
			return
		}
		ch <- readResult{buf: append([]byte(nil), buf[:n]...)}
	}()

	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case r := <-ch:
		return r.buf, r.err
	}
}

// ReadInternal blocks until a packet is available from the TUN device
// or ctx is canceled.
func (c *Capture) ReadInternal(ctx context.Context) ([]byte, error) {
	buf := make([]byte, 65535)
	return cancelableRead(ctx, func() (int, error) { return c.internal.Read(buf) }, buf)
}

// ReadExternal blocks until a packet is available from the raw IP
// socket or ctx is canceled.
func (c *Capture) ReadExternal(ctx context.Context) ([]byte, error) {
	buf := make([]byte, 65535)
	return cancelableRead(ctx, func() (int, error) { return c.external.Read(buf) }, buf)
}

// WriteInternal injects pkt (a complete IPv4 datagram) into the TUN
// device for delivery to local applications/routing.
func (c *Capture) WriteInternal(pkt []byte) error {
	_, err := c.internal.Write(pkt)
	return err
}

// WriteExternal transmits pkt over the raw IP socket to its IPv4
// destination address (already set in the packet's header by the
// director/NAT table before calling this).
func (c *Capture) WriteExternal(pkt []byte) error {
	if len(pkt) < 20 {
		return fmt.Errorf("argcapture: packet too short to carry a destination address")
	}
	dst := net.IP(pkt[16:20])
	_, err := c.external.WriteTo(pkt, &net.IPAddr{IP: dst})
	return err
}
