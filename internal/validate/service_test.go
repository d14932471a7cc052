package validate

import (
	"errors"
	"testing"
)

func TestDeviceName(t *testing.T) {
	valid := []string{
		"eth0",
		"eth1",
		"enp0s3",
		"tun0",
		"br-lan",
		"eth0.100",
	}
	for _, name := range valid {
		if err := DeviceName(name); err != nil {
			t.Errorf("DeviceName(%q) = %v, want nil", name, err)
		}
	}

	invalid := []struct {
		name string
		desc string
	}{
		{"", "empty"},
		{"eth 0", "space"},
		{"eth/0", "slash"},
		{"../etc", "path traversal"},
		{"-eth0", "starts with hyphen"},
		{"eth0;rm -rf", "shell metacharacter"},
	}
	for _, tc := range invalid {
		if err := DeviceName(tc.name); err == nil {
			t.Errorf("DeviceName(%q) [%s] = nil, want error", tc.name, tc.desc)
		}
	}
}

func TestDeviceName_SentinelError(t *testing.T) {
	if err := DeviceName(""); !errors.Is(err, ErrInvalidDeviceName) {
		t.Errorf("error should wrap ErrInvalidDeviceName, got: %v", err)
	}
}
