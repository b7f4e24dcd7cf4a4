package main

import (
	"testing"

	"signflow/cmd"
)

func TestVersion(t *testing.T) {
	if version != "dev" {
		t.Errorf("Expected default version to be 'dev', got %s", version)
	}
}

func TestVersionVariable(t *testing.T) {
	tests := []struct {
		name    string
		version string
	}{
		{"dev version", "dev"},
		{"semantic version", "1.2.3"},
		{"version with prefix", "v1.2.3"},
		{"version with suffix", "1.2.3-beta"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cmd.SetVersion(tt.version)
			if got := cmd.GetVersion(); got != tt.version {
				t.Errorf("Expected version %s, got %s", tt.version, got)
			}
		})
	}
	cmd.SetVersion(version)
}
