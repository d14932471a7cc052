package argconfig

import (
	"crypto/rsa"
	"fmt"
	"math/big"
	"net"
	"os"
	"path/filepath"
)

// LoadPeerPublicKey reads "<dir>/<name>.pub": base IP, mask, then RSA N
// and E in hex, one per line (§6). This is used for every known peer,
// including the gateway's own record (a peer always has its own public
// key on file alongside everyone else's).
func LoadPeerPublicKey(dir, name string) (pub *rsa.PublicKey, baseIP, mask net.IP, err error) {
	path := filepath.Join(dir, name+".pub")
	f, err := os.Open(path)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("argconfig: open %s: %w", path, err)
	}
	defer f.Close()

	lines, err := nextLines(f, 4)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("%w: %s: %v", ErrKeyFileBad, path, err)
	}

	ip := net.ParseIP(lines[0]).To4()
	if ip == nil {
		return nil, nil, nil, fmt.Errorf("%w: %s: invalid base IP %q", ErrKeyFileBad, path, lines[0])
	}
	m := net.ParseIP(lines[1]).To4()
	if m == nil {
		return nil, nil, nil, fmt.Errorf("%w: %s: invalid mask %q", ErrKeyFileBad, path, lines[1])
	}

	n, err := parseHexInt(lines[2])
	if err != nil {
		return nil, nil, nil, fmt.Errorf("%w: %s: N: %v", ErrKeyFileBad, path, err)
	}
	e, err := parseHexInt(lines[3])
	if err != nil {
		return nil, nil, nil, fmt.Errorf("%w: %s: E: %v", ErrKeyFileBad, path, err)
	}

	return &rsa.PublicKey{N: n, E: int(e.Int64())}, ip, m, nil
}

// LoadPeerPrivateKey reads "<dir>/<name>.priv": hex dumps of RSA N, E,
// D, P, Q, DP, DQ, QP, one per line, in that order (§6). Only this
// gateway's own peer record has one of these files; it must be mode
// 0600 or tighter. DP/DQ/QP are consumed to stay in step with the file
// layout but not used — crypto/rsa recomputes its own CRT values via
// Precompute.
func LoadPeerPrivateKey(dir, name string) (*rsa.PrivateKey, error) {
	path := filepath.Join(dir, name+".priv")
	if err := checkFilePermissions(path, 0077); err != nil {
		return nil, err
	}

	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("argconfig: open %s: %w", path, err)
	}
	defer f.Close()

	lines, err := nextLines(f, 8)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrKeyFileBad, path, err)
	}

	fields := make([]*big.Int, 8)
	for i, line := range lines {
		v, err := parseHexInt(line)
		if err != nil {
			return nil, fmt.Errorf("%w: %s: field %d: %v", ErrKeyFileBad, path, i, err)
		}
		fields[i] = v
	}
	n, e, d, p, q := fields[0], fields[1], fields[2], fields[3], fields[4]

	priv := &rsa.PrivateKey{
		PublicKey: rsa.PublicKey{N: n, E: int(e.Int64())},
		D:         d,
		Primes:    []*big.Int{p, q},
	}
	priv.Precompute()

	if err := priv.Validate(); err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrKeyFileBad, path, err)
	}
	return priv, nil
}

// parseHexInt parses a bare hex string (no "0x" prefix) into a big.Int,
// matching the plain hex dumps mpi_write_file/mpi_read_file produce.
func parseHexInt(s string) (*big.Int, error) {
	v, ok := new(big.Int).SetString(s, 16)
	if !ok {
		return nil, fmt.Errorf("not a valid hex integer: %q", s)
	}
	return v, nil
}
