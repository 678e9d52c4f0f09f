// Copyright The lexredact Authors.
// SPDX-License-Identifier: Apache-2.0

package suppressions

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"lexredact/internal/detector"
)

func TestNewSuppressionManager_NoFile(t *testing.T) {
	sm := NewSuppressionManager("/nonexistent/path.yaml")
	if sm == nil {
		t.Fatal("expected non-nil manager")
	}
	if !sm.IsEnabled() {
		t.Error("rules should be enabled by default")
	}
	if len(sm.ListSuppressions()) != 0 {
		t.Error("expected no rules")
	}
}

func TestAddAndIsSuppressed(t *testing.T) {
	path := filepath.Join(t.TempDir(), "rules.yaml")
	sm := NewSuppressionManager(path)

	rule, err := sm.AddSuppression("Banco de la Nación", "public institution", "tester", nil)
	if err != nil {
		t.Fatalf("AddSuppression failed: %v", err)
	}
	if rule.ID != "ALW-00000001" {
		t.Errorf("expected ID ALW-00000001, got %s", rule.ID)
	}

	suppressed, got := sm.IsSuppressed("BANCO DE LA NACION", detector.Organization)
	if !suppressed {
		t.Fatal("value should be suppressed")
	}
	if got.Reason != "public institution" {
		t.Errorf("expected reason 'public institution', got %q", got.Reason)
	}

	if _, err := sm.AddSuppression("banco de la nacion", "dup", "tester", nil); err == nil {
		t.Error("expected duplicate phrase to be rejected")
	}
	if _, err := sm.AddSuppression("  ", "empty", "tester", nil); err == nil {
		t.Error("expected empty phrase to be rejected")
	}
}

func TestIsSuppressed_NotSuppressed(t *testing.T) {
	sm := NewSuppressionManager("")
	if ok, rule := sm.IsSuppressed("Juan Pérez", detector.Person); ok || rule != nil {
		t.Error("empty manager must not suppress")
	}
}

func TestPatternAndCategoryRules(t *testing.T) {
	path := filepath.Join(t.TempDir(), "rules.yaml")
	content := `version: "1.0"
rules:
  - id: ALW-00000007
    pattern: "^notar[ií]a\\s+\\p{Lu}"
    category: ORGANIZATION
    reason: notaries are public
    enabled: true
  - id: ALW-00000008
    pattern: "(unclosed"
    reason: broken
    enabled: true
`
	if err := os.WriteFile(path, []byte(content), 0600); err != nil {
		t.Fatal(err)
	}

	sm := NewSuppressionManager(path)
	if ok, rule := sm.IsSuppressed("Notaría Paino", detector.Organization); !ok || rule.ID != "ALW-00000007" {
		t.Error("pattern rule should match")
	}
	if ok, _ := sm.IsSuppressed("Notaría Paino", detector.Person); ok {
		t.Error("category-scoped rule must not match another category")
	}

	rules := sm.ListSuppressions()
	if len(rules) != 2 || rules[1].Enabled {
		t.Error("invalid pattern should disable its rule")
	}

	rule, err := sm.AddSuppression("Estudio Echecopar", "firm", "tester", nil)
	if err != nil {
		t.Fatal(err)
	}
	if rule.ID != "ALW-00000009" {
		t.Errorf("expected next sequential ID, got %s", rule.ID)
	}
}

func TestRemoveSuppression(t *testing.T) {
	path := filepath.Join(t.TempDir(), "rules.yaml")
	sm := NewSuppressionManager(path)

	rule, err := sm.AddSuppression("Sala Plena", "", "tester", nil)
	if err != nil {
		t.Fatal(err)
	}
	if err := sm.RemoveSuppression(rule.ID); err != nil {
		t.Fatalf("RemoveSuppression failed: %v", err)
	}
	if ok, _ := sm.IsSuppressed("Sala Plena", detector.Organization); ok {
		t.Error("removed rule should not apply")
	}
	if err := sm.RemoveSuppression("ALW-99999999"); err == nil {
		t.Error("expected error for unknown ID")
	}
}

func TestCleanupExpired(t *testing.T) {
	path := filepath.Join(t.TempDir(), "rules.yaml")
	sm := NewSuppressionManager(path)

	now := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)
	sm.now = func() time.Time { return now }

	past := now.Add(-time.Hour)
	future := now.Add(time.Hour)
	if _, err := sm.AddSuppression("Expired Phrase", "", "tester", &past); err != nil {
		t.Fatal(err)
	}
	if _, err := sm.AddSuppression("Active Phrase", "", "tester", &future); err != nil {
		t.Fatal(err)
	}

	if ok, _ := sm.IsSuppressed("Expired Phrase", detector.Person); ok {
		t.Error("expired rule should not apply")
	}
	if removed := sm.CleanupExpired(); removed != 1 {
		t.Errorf("expected 1 removed, got %d", removed)
	}
	if len(sm.ListSuppressions()) != 1 {
		t.Errorf("expected 1 remaining rule, got %d", len(sm.ListSuppressions()))
	}
}

func TestSetEnabled(t *testing.T) {
	sm := NewSuppressionManager(filepath.Join(t.TempDir(), "rules.yaml"))
	if _, err := sm.AddSuppression("Sala Plena", "", "tester", nil); err != nil {
		t.Fatal(err)
	}

	sm.SetEnabled(false)
	if sm.IsEnabled() {
		t.Error("expected disabled")
	}
	if ok, _ := sm.IsSuppressed("Sala Plena", detector.Organization); ok {
		t.Error("disabled manager must not suppress")
	}
}

func TestAddWithoutPathFails(t *testing.T) {
	sm := NewSuppressionManager("")
	if _, err := sm.AddSuppression("Sala Plena", "", "tester", nil); err == nil {
		t.Error("expected error without a rules file")
	}
}

func TestGetConfigPath(t *testing.T) {
	sm := NewSuppressionManager("/some/path.yaml")
	if sm.GetConfigPath() != "/some/path.yaml" {
		t.Errorf("unexpected config path %q", sm.GetConfigPath())
	}
}

func TestPersistence(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "rules.yaml")

	sm := NewSuppressionManager(path)
	if _, err := sm.AddSuppression("Sala Plena", "court body", "tester", nil); err != nil {
		t.Fatal(err)
	}

	info, err := os.Stat(path)
	if err != nil {
		t.Fatalf("rules file not written: %v", err)
	}
	if info.Mode().Perm() != 0600 {
		t.Errorf("expected 0600 permissions, got %v", info.Mode().Perm())
	}

	reloaded := NewSuppressionManager(path)
	if ok, _ := reloaded.IsSuppressed("SALA PLENA", detector.Court); !ok {
		t.Error("rule should survive a reload")
	}
}
