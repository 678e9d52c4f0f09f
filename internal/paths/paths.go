// Copyright The lexredact Authors.
// SPDX-License-Identifier: Apache-2.0

package paths

import (
	"os"
	"path/filepath"
)

// GetConfigDir returns the lexredact configuration directory
func GetConfigDir() string {
	// explicit override first
	if dir := os.Getenv("LEXREDACT_CONFIG_DIR"); dir != "" {
		return dir
	}

	home, err := os.UserHomeDir()
	if err != nil {
		return ".lexredact"
	}
	return filepath.Join(home, ".lexredact")
}

// GetConfigFile returns the path to the main config file
func GetConfigFile() string {
	return filepath.Join(GetConfigDir(), "config.yaml")
}

// GetAllowlistRulesFile returns the path to the operator allowlist rules file
func GetAllowlistRulesFile() string {
	return filepath.Join(GetConfigDir(), "allowlist.yaml")
}

// ValidatePath rejects paths containing null bytes
func ValidatePath(path string) error {
	for _, char := range path {
		if char == 0 {
			return &PathValidationError{
				Path:   path,
				Reason: "contains null byte",
			}
		}
	}
	return nil
}

// PathValidationError represents a path validation error
type PathValidationError struct {
	Path   string
	Reason string
}

func (e *PathValidationError) Error() string {
	return "invalid path '" + e.Path + "': " + e.Reason
}
