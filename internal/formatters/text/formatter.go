// Copyright The lexredact Authors.
// SPDX-License-Identifier: Apache-2.0

package text

import (
	"fmt"
	"sort"
	"strings"

	"github.com/fatih/color"

	"lexredact/internal/audit"
	"lexredact/internal/formatters"
	"lexredact/internal/report"
)

// Formatter implements human-readable report formatting
type Formatter struct {
	colors map[string]*color.Color
}

// NewFormatter creates a new text formatter
func NewFormatter() *Formatter {
	return &Formatter{
		colors: map[string]*color.Color{
			"green":  color.New(color.FgGreen, color.Bold),
			"yellow": color.New(color.FgYellow),
			"red":    color.New(color.FgRed, color.Bold),
			"cyan":   color.New(color.FgCyan),
			"white":  color.New(color.FgWhite, color.Bold),
		},
	}
}

func (f *Formatter) Name() string {
	return "text"
}

func (f *Formatter) Description() string {
	return "Human-readable audit summary with colors"
}

func (f *Formatter) FileExtension() string {
	return ".txt"
}

func (f *Formatter) Format(reports []*report.AuditReport, options formatters.FormatterOptions) (string, error) {
	if len(reports) == 0 {
		return "No documents processed.\n", nil
	}

	var builder strings.Builder
	for i, r := range reports {
		if i > 0 {
			builder.WriteString("\n")
		}
		f.appendReport(&builder, r, options)
	}
	if len(reports) > 1 {
		f.appendBatchSummary(&builder, formatters.NewBatch(reports), options)
	}
	return builder.String(), nil
}

func (f *Formatter) paint(name, s string, options formatters.FormatterOptions) string {
	if options.NoColor {
		return s
	}
	return f.colors[name].Sprint(s)
}

func (f *Formatter) appendReport(builder *strings.Builder, r *report.AuditReport, options formatters.FormatterOptions) {
	fmt.Fprintf(builder, "%s %s\n", f.paint("white", "Document:", options), r.Document)
	fmt.Fprintf(builder, "  Run:       %s\n", r.RunID)
	fmt.Fprintf(builder, "  State:     %s\n", f.stateLabel(r, options))
	fmt.Fprintf(builder, "  Leak-free: %t\n", r.LeakFree)
	fmt.Fprintf(builder, "  Entities:  %d (%d propagated, %d audit fixes)\n", r.TotalEntities, r.Propagated, r.Fixes)

	if len(r.Counts) > 0 {
		builder.WriteString("\n")
		builder.WriteString(f.paint("white", fmt.Sprintf("  %-20s %8s %8s\n", "CATEGORY", "COUNT", "VALUES"), options))
		builder.WriteString("  " + strings.Repeat("-", 38) + "\n")
		for _, c := range sortedKeys(r.Counts) {
			fmt.Fprintf(builder, "  %-20s %8d %8d\n", c, r.Counts[c], r.DistinctValues[c])
		}
	}

	if len(r.Replacements) > 0 {
		builder.WriteString("\n")
		builder.WriteString(f.paint("white", "  Replacements:\n", options))
		for _, rep := range r.Replacements {
			fmt.Fprintf(builder, "    %-24s %-24s x%d\n", rep.Token, rep.Value, rep.Occurrences)
		}
	}

	if len(r.Conflicts) > 0 {
		builder.WriteString("\n")
		builder.WriteString(f.paint("white", "  Category conflicts:\n", options))
		for _, c := range r.Conflicts {
			names := make([]string, 0, len(c.Categories))
			for _, cat := range c.Categories {
				names = append(names, cat.String())
			}
			fmt.Fprintf(builder, "    %s: %s -> %s\n", c.Value, strings.Join(names, "/"), c.Winner)
		}
	}

	if options.Verbose {
		f.appendDetail(builder, r, options)
	}

	if len(r.Warnings) > 0 {
		builder.WriteString("\n")
		for _, w := range r.Warnings {
			name := "yellow"
			if strings.HasPrefix(w, "CRITICAL") || w == report.WarnNotSafe {
				name = "red"
			}
			fmt.Fprintf(builder, "  %s %s\n", f.paint(name, "!", options), f.paint(name, w, options))
		}
	}
}

func (f *Formatter) appendDetail(builder *strings.Builder, r *report.AuditReport, options formatters.FormatterOptions) {
	if len(r.Entities) > 0 {
		builder.WriteString("\n")
		builder.WriteString(f.paint("white", fmt.Sprintf("  %-14s %-18s %-13s %5s  %s\n", "SPAN", "TOKEN", "LAYER", "CONF", "VALUE"), options))
		for _, e := range r.Entities {
			span := fmt.Sprintf("%d-%d", e.Span.Start, e.Span.End)
			fmt.Fprintf(builder, "  %-14s %-18s %-13s %5.2f  %s\n", span, e.Token, e.Layer, e.Confidence, e.Value)
		}
	}

	if len(r.Residuals) > 0 {
		builder.WriteString("\n")
		builder.WriteString(f.paint("white", "  Audit residuals:\n", options))
		for _, res := range r.Residuals {
			status := f.paint("green", "fixed", options)
			if !res.Fixed {
				status = f.paint("red", "open", options)
			}
			fmt.Fprintf(builder, "    %-14s %-12s %-16s %s\n", res.Category, res.Pattern, res.Value, status)
		}
	}

	if r.FilterDecisions.Total > 0 {
		builder.WriteString("\n")
		fmt.Fprintf(builder, "  Filter: %d candidates, %d accepted, %d rejected\n",
			r.FilterDecisions.Total, r.FilterDecisions.Accepted, r.FilterDecisions.Rejected)
		for _, reason := range r.FilterDecisions.Reasons() {
			rc := r.FilterDecisions.ByReason[reason]
			fmt.Fprintf(builder, "    %-24s %4d\n", reason, rc.Count)
		}
	}

	q := r.Quality
	builder.WriteString("\n")
	fmt.Fprintf(builder, "  Quality: recall %.1f%%, precision %.1f%%, score %.1f%%, rejection rate %.1f%%\n",
		q.PrivacyRecall*100, q.Precision*100, q.FinalScore*100, q.RejectionRate*100)
	for _, o := range q.OverRedacted {
		fmt.Fprintf(builder, "    %-16s %-24s %-8s %s\n", o.Token, o.Reason, o.Severity, o.Value)
	}

	if len(r.Stages) > 0 {
		builder.WriteString("\n")
		builder.WriteString(f.paint("white", "  Stages:\n", options))
		for _, s := range r.Stages {
			line := fmt.Sprintf("    %-14s %-8s %4d entities %6d ms", s.Name, s.Status, s.Entities, s.DurationMS)
			if s.Reason != "" {
				line += "  (" + s.Reason + ")"
			}
			builder.WriteString(line + "\n")
		}
	}
}

func (f *Formatter) stateLabel(r *report.AuditReport, options formatters.FormatterOptions) string {
	switch r.State {
	case audit.StateClean:
		return f.paint("green", string(r.State), options)
	case audit.StateAutoFixed:
		return f.paint("yellow", string(r.State), options)
	default:
		return f.paint("red", string(r.State), options)
	}
}

func (f *Formatter) appendBatchSummary(builder *strings.Builder, b formatters.Batch, options formatters.FormatterOptions) {
	builder.WriteString("\n")
	summary := fmt.Sprintf("%d documents: %d leak-free, %d not safe\n", b.Documents, b.LeakFree, b.Unresolved)
	name := "green"
	if b.Unresolved > 0 {
		name = "red"
	}
	builder.WriteString(f.paint(name, summary, options))
}

func sortedKeys(m map[string]int) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// Register the formatter during package initialization
func init() {
	formatters.Register(NewFormatter())
}
