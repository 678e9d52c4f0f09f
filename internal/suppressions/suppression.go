// Copyright The lexredact Authors.
// SPDX-License-Identifier: Apache-2.0

package suppressions

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"time"

	"github.com/rs/zerolog/log"
	"gopkg.in/yaml.v3"

	"lexredact/internal/detector"
)

// SuppressionRule is an operator-supplied allowlist entry. A rule matches
// either a whole phrase or a regular expression over the candidate value.
type SuppressionRule struct {
	ID        string            `yaml:"id"`
	Phrase    string            `yaml:"phrase,omitempty"`
	Pattern   string            `yaml:"pattern,omitempty"`
	Category  string            `yaml:"category,omitempty"`
	Reason    string            `yaml:"reason"`
	Enabled   bool              `yaml:"enabled"`
	CreatedBy string            `yaml:"created_by,omitempty"`
	CreatedAt time.Time         `yaml:"created_at"`
	ExpiresAt *time.Time        `yaml:"expires_at,omitempty"`
	Metadata  map[string]string `yaml:"metadata,omitempty"`

	compiled *regexp.Regexp
}

// SuppressionConfig represents the extra allowlist file
type SuppressionConfig struct {
	Version string            `yaml:"version"`
	Rules   []SuppressionRule `yaml:"rules"`
}

// SuppressionManager handles operator allowlist rules
type SuppressionManager struct {
	configPath string
	config     *SuppressionConfig
	enabled    bool
	now        func() time.Time
}

// NewSuppressionManager creates a manager for the rules file at configPath.
// A missing or unreadable file yields an empty rule set.
func NewSuppressionManager(configPath string) *SuppressionManager {
	manager := &SuppressionManager{
		configPath: configPath,
		enabled:    true,
		now:        time.Now,
	}

	manager.loadConfig()
	return manager
}

func emptyConfig() *SuppressionConfig {
	return &SuppressionConfig{
		Version: "1.0",
		Rules:   []SuppressionRule{},
	}
}

// loadConfig loads the rules file
func (sm *SuppressionManager) loadConfig() {
	if sm.configPath == "" {
		sm.config = emptyConfig()
		return
	}

	cleanPath := filepath.Clean(sm.configPath)
	data, err := os.ReadFile(cleanPath)
	if err != nil {
		if !os.IsNotExist(err) {
			log.Warn().Err(err).Str("path", cleanPath).Msg("allowlist rules file unreadable, ignoring")
		}
		sm.config = emptyConfig()
		return
	}

	var config SuppressionConfig
	if err := yaml.Unmarshal(data, &config); err != nil {
		log.Warn().Err(err).Str("path", cleanPath).Msg("allowlist rules file invalid, ignoring")
		sm.config = emptyConfig()
		return
	}

	for i := range config.Rules {
		sm.compile(&config.Rules[i])
	}
	sm.config = &config
}

func (sm *SuppressionManager) compile(rule *SuppressionRule) {
	if rule.Pattern == "" {
		return
	}
	re, err := regexp.Compile(`(?i)` + rule.Pattern)
	if err != nil {
		log.Warn().Err(err).Str("rule", rule.ID).Msg("allowlist rule pattern invalid, rule disabled")
		rule.Enabled = false
		return
	}
	rule.compiled = re
}

// IsSuppressed checks whether an enabled, unexpired rule covers value
func (sm *SuppressionManager) IsSuppressed(value string, category detector.Category) (bool, *SuppressionRule) {
	if !sm.enabled || sm.config == nil {
		return false, nil
	}

	folded := fold(value)
	now := sm.now()
	for i := range sm.config.Rules {
		rule := &sm.config.Rules[i]
		if !rule.Enabled {
			continue
		}
		if rule.ExpiresAt != nil && now.After(*rule.ExpiresAt) {
			continue
		}
		if rule.Category != "" && rule.Category != category.String() {
			continue
		}
		if rule.Phrase != "" && fold(rule.Phrase) == folded {
			return true, rule
		}
		if rule.compiled != nil && rule.compiled.MatchString(value) {
			return true, rule
		}
	}

	return false, nil
}

// AddSuppression adds a phrase rule and saves the file
func (sm *SuppressionManager) AddSuppression(phrase, reason, createdBy string, expiresAt *time.Time) (*SuppressionRule, error) {
	if sm.config == nil {
		sm.config = emptyConfig()
	}
	if fold(phrase) == "" {
		return nil, fmt.Errorf("allowlist phrase is empty")
	}

	for _, rule := range sm.config.Rules {
		if rule.Phrase != "" && fold(rule.Phrase) == fold(phrase) {
			return nil, fmt.Errorf("allowlist rule already exists for this phrase: %s", rule.ID)
		}
	}

	// sequential id
	maxID := 0
	for _, existingRule := range sm.config.Rules {
		var num int
		if _, err := fmt.Sscanf(existingRule.ID, "ALW-%08d", &num); err == nil && num > maxID {
			maxID = num
		}
	}

	rule := SuppressionRule{
		ID:        fmt.Sprintf("ALW-%08d", maxID+1),
		Phrase:    phrase,
		Reason:    reason,
		Enabled:   true,
		CreatedBy: createdBy,
		CreatedAt: sm.now(),
		ExpiresAt: expiresAt,
	}

	sm.config.Rules = append(sm.config.Rules, rule)
	if err := sm.saveConfig(); err != nil {
		return nil, err
	}
	return &sm.config.Rules[len(sm.config.Rules)-1], nil
}

// RemoveSuppression removes a rule by ID
func (sm *SuppressionManager) RemoveSuppression(id string) error {
	if sm.config == nil {
		return fmt.Errorf("no allowlist rules loaded")
	}

	for i, rule := range sm.config.Rules {
		if rule.ID == id {
			sm.config.Rules = append(sm.config.Rules[:i], sm.config.Rules[i+1:]...)
			return sm.saveConfig()
		}
	}

	return fmt.Errorf("allowlist rule with ID %s not found", id)
}

// ListSuppressions returns all rules
func (sm *SuppressionManager) ListSuppressions() []SuppressionRule {
	if sm.config == nil {
		return []SuppressionRule{}
	}
	return sm.config.Rules
}

// saveConfig saves the rules file
func (sm *SuppressionManager) saveConfig() error {
	if sm.configPath == "" {
		return fmt.Errorf("no allowlist rules file configured")
	}

	data, err := yaml.Marshal(sm.config)
	if err != nil {
		return fmt.Errorf("failed to marshal allowlist rules: %w", err)
	}

	dir := filepath.Dir(sm.configPath)
	if dir != "." {
		if err := os.MkdirAll(dir, 0700); err != nil {
			return fmt.Errorf("failed to create directory: %w", err)
		}
	}

	if err := os.WriteFile(sm.configPath, data, 0600); err != nil {
		return fmt.Errorf("failed to write allowlist rules: %w", err)
	}

	return nil
}

// CleanupExpired removes expired rules
func (sm *SuppressionManager) CleanupExpired() int {
	if sm.config == nil {
		return 0
	}

	now := sm.now()
	originalCount := len(sm.config.Rules)

	var activeRules []SuppressionRule
	for _, rule := range sm.config.Rules {
		if rule.ExpiresAt == nil || now.Before(*rule.ExpiresAt) {
			activeRules = append(activeRules, rule)
		}
	}

	sm.config.Rules = activeRules
	removed := originalCount - len(activeRules)

	if removed > 0 {
		if err := sm.saveConfig(); err != nil {
			log.Warn().Err(err).Msg("failed to save allowlist rules after cleanup")
		}
	}

	return removed
}

// SetEnabled enables or disables the rules
func (sm *SuppressionManager) SetEnabled(enabled bool) {
	sm.enabled = enabled
}

// IsEnabled returns whether the rules are applied
func (sm *SuppressionManager) IsEnabled() bool {
	return sm.enabled
}

// GetConfigPath returns the path to the rules file
func (sm *SuppressionManager) GetConfigPath() string {
	return sm.configPath
}
