package main

import (
	"testing"

	"tokenward/cmd"
)

func TestVersionDefault(t *testing.T) {
	if version != "dev" {
		t.Errorf("Expected default version to be 'dev', got %s", version)
	}
}

func TestVersionPropagation(t *testing.T) {
	originalVersion := version
	defer func() {
		version = originalVersion
		cmd.SetVersion(originalVersion)
	}()

	versions := []string{"1.0.0", "v2.0.0-rc1", "2.3.4-beta.1"}
	for _, v := range versions {
		version = v
		cmd.SetVersion(version)
		if cmd.GetVersion() != v {
			t.Errorf("Expected cmd version %s, got %s", v, cmd.GetVersion())
		}
	}
}
