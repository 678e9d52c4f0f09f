// Copyright The lexredact Authors.
// SPDX-License-Identifier: Apache-2.0

// Package version identifies the lexredact build that produced a redaction
// report. Release builds stamp the variables with -ldflags; other builds fall
// back to the module and VCS data the Go toolchain embeds.
package version

import (
	"fmt"
	"runtime"
	"runtime/debug"
	"sync"
)

// Stamped by -ldflags "-X lexredact/internal/version.Version=..."
var (
	Version = "dev"
	Commit  = ""
	Date    = ""
)

// Build describes one lexredact binary
type Build struct {
	Version  string `json:"version"`
	Commit   string `json:"commit"`
	Date     string `json:"build_date"`
	Go       string `json:"go_version"`
	Platform string `json:"platform"`
}

var current = sync.OnceValue(func() Build {
	b := Build{
		Version:  Version,
		Commit:   Commit,
		Date:     Date,
		Go:       runtime.Version(),
		Platform: runtime.GOOS + "/" + runtime.GOARCH,
	}
	if info, ok := debug.ReadBuildInfo(); ok {
		fillFromBuildInfo(&b, info)
	}
	if b.Commit == "" {
		b.Commit = "unknown"
	}
	if b.Date == "" {
		b.Date = "unknown"
	}
	return b
})

// fillFromBuildInfo only sets what -ldflags left empty.
func fillFromBuildInfo(b *Build, info *debug.BuildInfo) {
	if b.Version == "dev" && info.Main.Version != "" && info.Main.Version != "(devel)" {
		b.Version = info.Main.Version
	}
	for _, s := range info.Settings {
		switch {
		case s.Key == "vcs.revision" && b.Commit == "":
			b.Commit = s.Value
			if len(b.Commit) > 12 {
				b.Commit = b.Commit[:12]
			}
		case s.Key == "vcs.time" && b.Date == "":
			b.Date = s.Value
		}
	}
}

// Current returns the build of the running binary.
func Current() Build {
	return current()
}

// Short returns the version alone, as stamped into reports.
func Short() string {
	return Current().Version
}

// Info is the one-line `lexredact version` output.
func Info() string {
	b := Current()
	return fmt.Sprintf("lexredact %s (commit: %s, built: %s, go: %s, platform: %s)",
		b.Version, b.Commit, b.Date, b.Go, b.Platform)
}

// Full is the `lexredact version --json` payload.
func Full() map[string]string {
	b := Current()
	return map[string]string{
		"version":    b.Version,
		"commit":     b.Commit,
		"build_date": b.Date,
		"go_version": b.Go,
		"platform":   b.Platform,
	}
}
