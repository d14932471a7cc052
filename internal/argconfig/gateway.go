// Package argconfig loads the gateway's on-disk configuration: the
// line-oriented main config file, the per-peer hex-encoded RSA key
// files adjacent to it, and an optional YAML debug overlay. The wire
// formats are fixed by §6 and are parsed exactly as specified; nothing
// here is YAML except the overlay, which is pure ambient observability
// configuration and free to use whatever the teacher repo already
// pulls in for that (gopkg.in/yaml.v3).
package argconfig

import (
	"bufio"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"sort"
	"strconv"
	"strings"
)

// GatewayConfig is the parsed line-oriented configuration file plus the
// directory it was found in (peer key files live alongside it).
type GatewayConfig struct {
	GateName       string
	InternalDevice string
	ExternalDevice string
	HopRateMillis  uint32
	Dir            string
}

// LoadGatewayConfig reads the four required lines from path — gate
// name, internal device, external device, hop rate in milliseconds —
// skipping blank lines, per §6. The returned Dir is the directory
// containing path, used to resolve peer key files.
func LoadGatewayConfig(path string) (*GatewayConfig, error) {
	if err := checkFilePermissions(path, 0077); err != nil {
		return nil, err
	}

	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("argconfig: open %s: %w", path, err)
	}
	defer f.Close()

	lines, err := nextLines(f, 4)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrConfigBad, path, err)
	}

	rate, err := strconv.ParseUint(lines[3], 10, 32)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: hop rate %q is not a number", ErrConfigBad, path, lines[3])
	}

	dir := filepath.Dir(path)
	if dir == "" {
		dir = "."
	}

	return &GatewayConfig{
		GateName:       lines[0],
		InternalDevice: lines[1],
		ExternalDevice: lines[2],
		HopRateMillis:  uint32(rate),
		Dir:            dir,
	}, nil
}

// DiscoverPeerNames scans dir for "<name>.pub" files and returns the
// discovered gate names in sorted order, mirroring settings.c's
// directory scan for public key files.
func DiscoverPeerNames(dir string) ([]string, error) {
	matches, err := filepath.Glob(filepath.Join(dir, "*.pub"))
	if err != nil {
		return nil, fmt.Errorf("argconfig: scan %s: %w", dir, err)
	}

	names := make([]string, 0, len(matches))
	for _, m := range matches {
		base := filepath.Base(m)
		if strings.HasPrefix(base, ".") {
			continue
		}
		names = append(names, strings.TrimSuffix(base, ".pub"))
	}
	sort.Strings(names)
	return names, nil
}

// nextLines reads exactly n non-blank lines from f, trimming trailing
// carriage returns (get_next_line in settings.c skips blank lines the
// same way).
func nextLines(f *os.File, n int) ([]string, error) {
	scanner := bufio.NewScanner(f)
	out := make([]string, 0, n)
	for scanner.Scan() {
		line := strings.TrimRight(scanner.Text(), "\r")
		if line == "" {
			continue
		}
		out = append(out, line)
		if len(out) == n {
			return out, nil
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, err
	}
	return nil, fmt.Errorf("expected %d non-blank lines, found %d", n, len(out))
}

// checkFilePermissions rejects files that are readable or writable by
// group/other, matching the teacher's checkConfigFilePermissions and
// internal/identity.CheckKeyFilePermissions.
func checkFilePermissions(path string, forbidden os.FileMode) error {
	if runtime.GOOS == "windows" {
		return nil
	}
	info, err := os.Stat(path)
	if err != nil {
		return fmt.Errorf("argconfig: stat %s: %w", path, err)
	}
	mode := info.Mode().Perm()
	if mode&forbidden != 0 {
		return fmt.Errorf("%w: %s has mode %04o; fix with: chmod 600 %s", ErrInsecurePermissions, path, mode, path)
	}
	return nil
}
