// Copyright The lexredact Authors.
// SPDX-License-Identifier: Apache-2.0

package cmd

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"lexredact/internal/config"
	"lexredact/internal/core"
	"lexredact/internal/extract"
	"lexredact/internal/formatters"
	_ "lexredact/internal/formatters/json"
	_ "lexredact/internal/formatters/text"
	_ "lexredact/internal/formatters/yaml"
	"lexredact/internal/observability"
	"lexredact/internal/parallel"
	"lexredact/internal/report"
)

var (
	redactFormat        string
	redactOutputDir     string
	redactEmergency     bool
	redactNoNER         bool
	redactLLM           bool
	redactShowOriginals bool
	redactWorkers       int
)

var redactCmd = &cobra.Command{
	Use:   "redact FILE...",
	Short: "Redact personal data and write the audit report",
	Long: `Extracts each document, runs the detection pipeline and the final audit,
and writes <name>.redacted.txt plus <name>.report.<format> into the output
directory. The combined report is printed to stdout.

Exit status is 0 when every document is leak-free, 2 when any document is
UNRESOLVED and 1 when a document could not be processed.`,
	Args: cobra.MinimumNArgs(1),
	RunE: runRedact,
}

func init() {
	rootCmd.AddCommand(redactCmd)

	redactCmd.Flags().StringVarP(&redactFormat, "format", "f", "", "report format: "+strings.Join(formatters.List(), ", ")+" (default from config)")
	redactCmd.Flags().StringVarP(&redactOutputDir, "output", "o", "", "output directory (default from config: ./redacted)")
	redactCmd.Flags().BoolVar(&redactEmergency, "emergency", false, "mask residuals the audit cannot fix instead of failing")
	redactCmd.Flags().BoolVar(&redactNoNER, "no-ner", false, "disable the statistical NER layer")
	redactCmd.Flags().BoolVar(&redactLLM, "llm", false, "enable the remote LLM-assisted detector")
	redactCmd.Flags().BoolVar(&redactShowOriginals, "show-originals", false, "print unmasked original values in reports")
	redactCmd.Flags().IntVarP(&redactWorkers, "workers", "w", 0, "documents processed in parallel (default: CPU count, max 8)")
}

// applyRedactFlags overlays explicitly set flags on cfg
func applyRedactFlags(cmd *cobra.Command, cfg *config.Config) error {
	flags := cmd.Flags()
	if flags.Changed("emergency") {
		cfg.Pipeline.EmergencyRedaction = redactEmergency
	}
	if redactNoNER {
		cfg.NER.Enabled = false
	}
	if redactLLM {
		cfg.LLM.Enabled = true
	}
	if redactShowOriginals {
		cfg.Output.ShowOriginals = true
	}
	if redactFormat != "" {
		cfg.Output.Format = redactFormat
	}
	if redactOutputDir != "" {
		cfg.Output.Dir = redactOutputDir
	}
	if noColor {
		cfg.Output.NoColor = true
	}
	return config.ValidateConfig(cfg)
}

func runRedact(cmd *cobra.Command, files []string) error {
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}

	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	if err := applyRedactFlags(cmd, cfg); err != nil {
		return err
	}

	observer := newObserver()
	pipeline := core.NewPipeline(cfg, observer)
	defer func() {
		if err := pipeline.Close(); err != nil {
			log.Warn().Err(err).Msg("Closing detector layers failed")
		}
	}()

	if err := os.MkdirAll(cfg.Output.Dir, 0o750); err != nil {
		return fmt.Errorf("creating output directory: %w", err)
	}

	limits := extract.Limits{
		MaxFileMB:    cfg.Limits.MaxFileMB,
		MaxPDFPages:  cfg.Limits.MaxPDFPages,
		MinTextChars: cfg.Limits.MinTextChars,
	}
	names := make([]string, len(files))
	for i, f := range files {
		names[i] = filepath.Base(f)
	}

	pp := parallel.NewParallelProcessor(redactWorkers, 0, observer)
	results, stats, err := parallel.Process(ctx, pp, names, files,
		func(ctx context.Context, job *parallel.Job[string]) (*core.Result, error) {
			return redactFile(ctx, pipeline, observer, job.Input, limits)
		},
		func(completed, total int, name string) {
			log.Info().Int("completed", completed).Int("total", total).Str("file", name).Msg("Document processed")
		})
	if err != nil {
		return err
	}

	var reports []*report.AuditReport
	failed, unresolved := 0, 0
	for _, r := range results {
		if r.Error != nil {
			failed++
			log.Error().Err(r.Error).Str("file", r.Name).Msg("Document failed")
			fmt.Fprintf(os.Stderr, "✗ %s: %v\n", r.Name, r.Error)
			continue
		}
		if err := writeOutputs(cfg, r.Name, r.Value); err != nil {
			failed++
			log.Error().Err(err).Str("file", r.Name).Msg("Writing outputs failed")
			fmt.Fprintf(os.Stderr, "✗ %s: %v\n", r.Name, err)
		}
		if r.Value.Report.Critical() {
			unresolved++
		}
		reports = append(reports, r.Value.Report)
		r.Value.Clear()
	}

	log.Debug().
		Int("documents", stats.TotalJobs).
		Int("failed", stats.Failed).
		Int("workers", stats.WorkerCount).
		Dur("duration", stats.TotalDuration).
		Msg("Batch finished")

	out, err := formatters.Export(cfg.Output.Format, reports, formatters.FormatterOptions{
		Verbose: verbose,
		NoColor: cfg.Output.NoColor,
	})
	if err != nil {
		return err
	}
	fmt.Fprint(cmd.OutOrStdout(), out)

	switch {
	case failed > 0:
		return &exitError{code: ExitFailure, msg: fmt.Sprintf("%d of %d documents could not be processed", failed, len(files))}
	case unresolved > 0:
		return &exitError{code: ExitUnresolved}
	}
	return nil
}

// redactFile extracts path and runs the pipeline over its text
func redactFile(ctx context.Context, pipeline *core.Pipeline, observer *observability.StandardObserver, path string, limits extract.Limits) (*core.Result, error) {
	var finishStep func(bool, string)
	if observer.DebugObserver != nil {
		finishStep = observer.DebugObserver.StartStep("cli", "extract", filepath.Base(path))
	}
	doc, err := extract.File(path, limits)
	if finishStep != nil {
		if err != nil {
			finishStep(false, err.Error())
		} else {
			finishStep(true, fmt.Sprintf("%s, %d pages, %d bytes", doc.Format, doc.Pages, len(doc.Text)))
		}
	}
	if err != nil {
		return nil, err
	}
	return pipeline.Run(ctx, doc.Name, doc.Text)
}

// writeOutputs stores the redacted text and the per-document report
func writeOutputs(cfg *config.Config, name string, result *core.Result) error {
	base := strings.TrimSuffix(name, filepath.Ext(name))

	textPath := filepath.Join(cfg.Output.Dir, base+".redacted.txt")
	if err := os.WriteFile(textPath, []byte(result.Text), 0o600); err != nil {
		return fmt.Errorf("writing redacted text: %w", err)
	}

	formatter, ok := formatters.Get(cfg.Output.Format)
	if !ok {
		return fmt.Errorf("unsupported format '%s'", cfg.Output.Format)
	}
	rendered, err := formatter.Format([]*report.AuditReport{result.Report}, formatters.FormatterOptions{Verbose: true, NoColor: true})
	if err != nil {
		return err
	}
	reportPath := filepath.Join(cfg.Output.Dir, base+".report"+formatter.FileExtension())
	if err := os.WriteFile(reportPath, []byte(rendered), 0o600); err != nil {
		return fmt.Errorf("writing report: %w", err)
	}

	log.Info().Str("text", textPath).Str("report", reportPath).Str("state", string(result.Report.State)).Msg("Outputs written")
	return nil
}
