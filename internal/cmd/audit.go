// Copyright The lexredact Authors.
// SPDX-License-Identifier: Apache-2.0

package cmd

import (
	"fmt"
	"os"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"lexredact/internal/core"
	"lexredact/internal/extract"
	"lexredact/internal/formatters"
	"lexredact/internal/report"
)

var (
	auditFormat    string
	auditFixedOut  string
	auditEmergency bool
)

var auditCmd = &cobra.Command{
	Use:   "audit FILE",
	Short: "Run only the final audit over an already-redacted document",
	Long: `Scans a redacted document for identifiers that survived redaction and
prints CLEAN, AUTO_FIXED or UNRESOLVED. With --fixed the auto-fixed text is
written to the given path.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		if cmd.Flags().Changed("emergency") {
			cfg.Pipeline.EmergencyRedaction = auditEmergency
		}
		if auditFormat != "" {
			cfg.Output.Format = auditFormat
		}
		if noColor {
			cfg.Output.NoColor = true
		}
		// the audit never needs the model layers
		cfg.NER.Enabled = false
		cfg.LLM.Enabled = false

		doc, err := extract.File(args[0], extract.Limits{
			MaxFileMB:    cfg.Limits.MaxFileMB,
			MaxPDFPages:  cfg.Limits.MaxPDFPages,
			MinTextChars: cfg.Limits.MinTextChars,
		})
		if err != nil {
			return err
		}

		pipeline := core.NewPipelineWithDetectors(cfg, newObserver(), nil)
		result, err := pipeline.Audit(cmd.Context(), doc.Name, doc.Text)
		if err != nil {
			return err
		}

		log.Info().
			Str("file", doc.Name).
			Str("state", string(result.Report.State)).
			Int("residuals", len(result.Report.Residuals)).
			Msg("Audit finished")

		if auditFixedOut != "" {
			if err := os.WriteFile(auditFixedOut, []byte(result.Text), 0o600); err != nil {
				return fmt.Errorf("writing fixed text: %w", err)
			}
		}

		out, err := formatters.Export(cfg.Output.Format, []*report.AuditReport{result.Report}, formatters.FormatterOptions{
			Verbose: true,
			NoColor: cfg.Output.NoColor,
		})
		if err != nil {
			return err
		}
		fmt.Fprint(cmd.OutOrStdout(), out)

		if result.Report.Critical() {
			return &exitError{code: ExitUnresolved}
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(auditCmd)

	auditCmd.Flags().StringVarP(&auditFormat, "format", "f", "", "report format (default from config)")
	auditCmd.Flags().StringVar(&auditFixedOut, "fixed", "", "write the auto-fixed text to this path")
	auditCmd.Flags().BoolVar(&auditEmergency, "emergency", false, "mask residuals the audit cannot fix")
}
