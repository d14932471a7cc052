package argcapture

import "context"

// Fake is an in-memory Capture for director/integration tests: packets
// queued on InternalIn/ExternalIn are returned by the matching Read*
// call, and writes are recorded for assertions.
type Fake struct {
	InternalIn chan []byte
	ExternalIn chan []byte

	InternalOut [][]byte
	ExternalOut [][]byte
}

// NewFake returns a Fake with reasonably buffered input channels so
// tests can queue several packets before a Run loop drains them.
func NewFake() *Fake {
	return &Fake{
		InternalIn: make(chan []byte, 16),
		ExternalIn: make(chan []byte, 16),
	}
}

func (f *Fake) ReadInternal(ctx context.Context) ([]byte, error) {
	select {
	case pkt := <-f.InternalIn:
		return pkt, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func (f *Fake) ReadExternal(ctx context.Context) ([]byte, error) {
	select {
	case pkt := <-f.ExternalIn:
		return pkt, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func (f *Fake) WriteInternal(pkt []byte) error {
	f.InternalOut = append(f.InternalOut, append([]byte(nil), pkt...))
	return nil
}

func (f *Fake) WriteExternal(pkt []byte) error {
	f.ExternalOut = append(f.ExternalOut, append([]byte(nil), pkt...))
	return nil
}
