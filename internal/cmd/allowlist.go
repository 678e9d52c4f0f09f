// Copyright The lexredact Authors.
// SPDX-License-Identifier: Apache-2.0

package cmd

import (
	"fmt"
	"os/user"
	"time"

	"github.com/spf13/cobra"

	"lexredact/internal/detector"
	"lexredact/internal/paths"
	"lexredact/internal/suppressions"
)

var (
	allowlistCheck  string
	allowlistReason string
	allowlistTTL    time.Duration
)

var allowlistCmd = &cobra.Command{
	Use:   "allowlist",
	Short: "Inspect the legal-vocabulary allowlist and manage operator rules",
	Long: `Without arguments prints the size of the built-in allowlist and the
operator rules file. --check tells whether a phrase would be kept.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		manager, err := rulesManager()
		if err != nil {
			return err
		}
		out := cmd.OutOrStdout()
		builtin := suppressions.DefaultAllowlist()

		if allowlistCheck == "" {
			fmt.Fprintf(out, "Built-in allowlist: %d entries\n", builtin.Size())
			fmt.Fprintf(out, "Operator rules:     %d (%s)\n", len(manager.ListSuppressions()), manager.GetConfigPath())
			return nil
		}

		if reason, ok := builtin.Check(allowlistCheck); ok {
			fmt.Fprintf(out, "%q is allowlisted (%s)\n", allowlistCheck, reason)
			return nil
		}
		for _, c := range detector.AllCategories() {
			if ok, rule := manager.IsSuppressed(allowlistCheck, c); ok {
				fmt.Fprintf(out, "%q is allowlisted by rule %s (%s)\n", allowlistCheck, rule.ID, rule.Reason)
				return nil
			}
		}
		fmt.Fprintf(out, "%q is not allowlisted\n", allowlistCheck)
		return nil
	},
}

var allowlistListCmd = &cobra.Command{
	Use:   "list",
	Short: "List operator rules",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		manager, err := rulesManager()
		if err != nil {
			return err
		}
		out := cmd.OutOrStdout()
		rules := manager.ListSuppressions()
		if len(rules) == 0 {
			fmt.Fprintln(out, "No allowlist rules found.")
			return nil
		}

		fmt.Fprintf(out, "Found %d allowlist rules:\n\n", len(rules))
		for _, rule := range rules {
			fmt.Fprintf(out, "ID: %s\n", rule.ID)
			if rule.Phrase != "" {
				fmt.Fprintf(out, "Phrase: %s\n", rule.Phrase)
			}
			if rule.Pattern != "" {
				fmt.Fprintf(out, "Pattern: %s\n", rule.Pattern)
			}
			if rule.Category != "" {
				fmt.Fprintf(out, "Category: %s\n", rule.Category)
			}
			fmt.Fprintf(out, "Reason: %s\n", rule.Reason)
			fmt.Fprintf(out, "Enabled: %t\n", rule.Enabled)
			if rule.CreatedBy != "" {
				fmt.Fprintf(out, "Created By: %s\n", rule.CreatedBy)
			}
			fmt.Fprintf(out, "Created At: %s\n", rule.CreatedAt.Format("2006-01-02 15:04:05"))
			if rule.ExpiresAt != nil {
				fmt.Fprintf(out, "Expires At: %s\n", rule.ExpiresAt.Format("2006-01-02 15:04:05"))
			}
			fmt.Fprintln(out, "---")
		}
		return nil
	},
}

var allowlistAddCmd = &cobra.Command{
	Use:   "add PHRASE",
	Short: "Add a phrase the pipeline must never redact",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		manager, err := rulesManager()
		if err != nil {
			return err
		}
		var expires *time.Time
		if allowlistTTL > 0 {
			t := time.Now().Add(allowlistTTL)
			expires = &t
		}
		createdBy := ""
		if u, err := user.Current(); err == nil {
			createdBy = u.Username
		}
		rule, err := manager.AddSuppression(args[0], allowlistReason, createdBy, expires)
		if err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Added allowlist rule %s for %q\n", rule.ID, rule.Phrase)
		return nil
	},
}

var allowlistRemoveCmd = &cobra.Command{
	Use:   "remove ID",
	Short: "Remove an operator rule",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		manager, err := rulesManager()
		if err != nil {
			return err
		}
		if err := manager.RemoveSuppression(args[0]); err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Removed allowlist rule %s\n", args[0])
		return nil
	},
}

var allowlistCleanupCmd = &cobra.Command{
	Use:   "cleanup",
	Short: "Remove expired operator rules",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		manager, err := rulesManager()
		if err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Cleaned up %d expired allowlist rules\n", manager.CleanupExpired())
		return nil
	},
}

// rulesManager opens the configured rules file, falling back to the
// per-user default location
func rulesManager() (*suppressions.SuppressionManager, error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, err
	}
	path := cfg.Allowlist.RulesFile
	if path == "" {
		path = paths.GetAllowlistRulesFile()
	}
	return suppressions.NewSuppressionManager(path), nil
}

func init() {
	rootCmd.AddCommand(allowlistCmd)
	allowlistCmd.AddCommand(allowlistListCmd, allowlistAddCmd, allowlistRemoveCmd, allowlistCleanupCmd)

	allowlistCmd.Flags().StringVar(&allowlistCheck, "check", "", "phrase to check against the allowlist")
	allowlistAddCmd.Flags().StringVar(&allowlistReason, "reason", "operator allowlist", "why the phrase is not personal data")
	allowlistAddCmd.Flags().DurationVar(&allowlistTTL, "expires-in", 0, "rule lifetime (e.g. 720h); zero never expires")
}
