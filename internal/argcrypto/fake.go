package argcrypto

import (
	"crypto/rand"
	"crypto/rsa"
	"sync"
)

// FakeSuite is a deterministic Suite for tests. Signing/verification still
// goes through real RSA with whatever keys the caller supplies (usually
// fresh ones from TestKeyPair), but Random returns bytes from a seeded
// counter so test assertions don't have to special-case crypto/rand output.
type FakeSuite struct {
	StdSuite

	mu      sync.Mutex
	counter byte
}

// Random returns deterministic, non-repeating bytes: each call advances
// an internal counter so concurrent callers get distinct sequences.
func (f *FakeSuite) Random(n int) ([]byte, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	b := make([]byte, n)
	for i := range b {
		f.counter++
		b[i] = f.counter
	}
	return b, nil
}

// TestKeyPair generates a new RSA key pair on every call. Tests pass 1024
// bits, which matches the original's RSA_KEY_SIZE/RSA_SIG_SIZE of 128
// bytes and is the smallest size crypto/rsa accepts.
func TestKeyPair(bits int) (*rsa.PrivateKey, error) {
	return rsa.GenerateKey(rand.Reader, bits)
}
