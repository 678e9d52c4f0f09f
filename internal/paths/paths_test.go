// Copyright The lexredact Authors.
// SPDX-License-Identifier: Apache-2.0

package paths

import (
	"path/filepath"
	"testing"
)

func TestConfigDirOverride(t *testing.T) {
	t.Setenv("LEXREDACT_CONFIG_DIR", "/tmp/lexredact-test")

	if got := GetConfigDir(); got != "/tmp/lexredact-test" {
		t.Errorf("expected override, got %q", got)
	}
	if got := GetConfigFile(); got != filepath.Join("/tmp/lexredact-test", "config.yaml") {
		t.Errorf("unexpected config file %q", got)
	}
	if got := GetAllowlistRulesFile(); got != filepath.Join("/tmp/lexredact-test", "allowlist.yaml") {
		t.Errorf("unexpected rules file %q", got)
	}
}

func TestValidatePath(t *testing.T) {
	if err := ValidatePath("docs/demanda.docx"); err != nil {
		t.Errorf("unexpected error: %v", err)
	}
	if err := ValidatePath("bad\x00path"); err == nil {
		t.Error("expected error for null byte")
	}
}
