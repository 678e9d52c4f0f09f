// Copyright The lexredact Authors.
// SPDX-License-Identifier: Apache-2.0

package formatters

import (
	"fmt"
	"sort"
	"strings"

	"lexredact/internal/report"
)

// FormatterOptions defines configuration options for formatters
type FormatterOptions struct {
	Verbose bool // Whether to display per-entity and per-stage detail
	NoColor bool // Whether to disable colored output
	Compact bool // Whether structured output should skip indentation
}

// Formatter interface defines methods that all output formatters must implement
type Formatter interface {
	// Format renders the reports of one invocation
	Format(reports []*report.AuditReport, options FormatterOptions) (string, error)

	// Name returns the name of the formatter (e.g., "json", "text")
	Name() string

	// Description returns a brief description of what this formatter outputs
	Description() string

	// FileExtension returns the recommended file extension for this format (e.g., ".json", ".txt")
	FileExtension() string
}

// Registry holds all registered formatters
type Registry struct {
	formatters map[string]Formatter
}

// NewRegistry creates a new formatter registry
func NewRegistry() *Registry {
	return &Registry{
		formatters: make(map[string]Formatter),
	}
}

// Register adds a formatter to the registry
func (r *Registry) Register(formatter Formatter) {
	r.formatters[formatter.Name()] = formatter
}

// Get retrieves a formatter by name
func (r *Registry) Get(name string) (Formatter, bool) {
	formatter, exists := r.formatters[name]
	return formatter, exists
}

// List returns all registered formatter names, sorted
func (r *Registry) List() []string {
	names := make([]string, 0, len(r.formatters))
	for name := range r.formatters {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// DefaultRegistry is the global formatter registry
var DefaultRegistry = NewRegistry()

// Register is a convenience function to register a formatter with the default registry
func Register(formatter Formatter) {
	DefaultRegistry.Register(formatter)
}

// Get is a convenience function to get a formatter from the default registry
func Get(name string) (Formatter, bool) {
	return DefaultRegistry.Get(name)
}

// List is a convenience function to list all formatters in the default registry
func List() []string {
	return DefaultRegistry.List()
}

// Export renders reports with the named formatter
func Export(format string, reports []*report.AuditReport, options FormatterOptions) (string, error) {
	formatter, exists := Get(format)
	if !exists {
		return "", fmt.Errorf("unsupported format '%s'. Available formats: %s", format, strings.Join(List(), ", "))
	}
	return formatter.Format(reports, options)
}

// Batch is the structured envelope used when several documents are rendered
type Batch struct {
	Documents  int                   `json:"documents" yaml:"documents"`
	LeakFree   int                   `json:"leak_free" yaml:"leak_free"`
	Unresolved int                   `json:"unresolved" yaml:"unresolved"`
	Reports    []*report.AuditReport `json:"reports" yaml:"reports"`
}

// NewBatch summarizes reports
func NewBatch(reports []*report.AuditReport) Batch {
	b := Batch{Documents: len(reports), Reports: reports}
	if b.Reports == nil {
		b.Reports = []*report.AuditReport{}
	}
	for _, r := range reports {
		if r.LeakFree {
			b.LeakFree++
		}
		if r.Critical() {
			b.Unresolved++
		}
	}
	return b
}

// Structured returns the value structured formatters encode: the report
// itself for one document, a Batch otherwise.
func Structured(reports []*report.AuditReport) interface{} {
	if len(reports) == 1 {
		return reports[0]
	}
	return NewBatch(reports)
}
