package argconfig

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// DebugOverlay is an optional sidecar, "<conf>.debug.yaml", that
// adjusts ambient observability settings without touching the
// line-oriented wire format in §6. It has no effect on protocol
// behavior: a missing overlay file is not an error, just defaults.
type DebugOverlay struct {
	LogLevel       string `yaml:"log_level,omitempty"`
	MetricsListen  string `yaml:"metrics_listen,omitempty"`
	MetricsEnabled bool   `yaml:"metrics_enabled,omitempty"`
}

// LoadDebugOverlay reads "<confPath>.debug.yaml" if present. Absence of
// the file returns a zero-value overlay and a nil error.
func LoadDebugOverlay(confPath string) (*DebugOverlay, error) {
	path := confPath + ".debug.yaml"
	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return &DebugOverlay{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("argconfig: read %s: %w", path, err)
	}

	var overlay DebugOverlay
	if err := yaml.Unmarshal(data, &overlay); err != nil {
		return nil, fmt.Errorf("argconfig: parse %s: %w", path, err)
	}
	return &overlay, nil
}
