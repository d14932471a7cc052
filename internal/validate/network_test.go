package validate

import (
	"errors"
	"strings"
	"testing"
)

func TestGateName(t *testing.T) {
	valid := []string{
		"a",
		"a1",
		"gateA",
		"east-1",
		"G8",
		"123456789", // exactly MaxGateNameLen
	}
	for _, name := range valid {
		if err := GateName(name); err != nil {
			t.Errorf("GateName(%q) = %v, want nil", name, err)
		}
	}

	invalid := []struct {
		name string
		desc string
	}{
		{"", "empty"},
		{"-dash-start", "starts with hyphen"},
		{"dash-end-", "ends with hyphen"},
		{"-", "single hyphen"},
		{"has.dots", "dot"},
		{"has/slash", "slash"},
		{"has\\back", "backslash"},
		{"new\nline", "newline"},
		{strings.Repeat("a", MaxGateNameLen+1), "too long"},
		{"hello!", "exclamation"},
	}
	for _, tc := range invalid {
		if err := GateName(tc.name); err == nil {
			t.Errorf("GateName(%q) [%s] = nil, want error", tc.name, tc.desc)
		}
	}
}

func TestGateName_SentinelError(t *testing.T) {
	err := GateName("bad/name")
	if err == nil {
		t.Fatal("expected error, got nil")
	}
	if !errors.Is(err, ErrInvalidGateName) {
		t.Errorf("error should wrap ErrInvalidGateName, got: %v", err)
	}
}
