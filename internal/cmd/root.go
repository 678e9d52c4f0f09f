// Copyright The lexredact Authors.
// SPDX-License-Identifier: Apache-2.0

// Package cmd implements the lexredact command line.
package cmd

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"

	"github.com/fatih/color"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
	"golang.org/x/term"

	"lexredact/internal/config"
	"lexredact/internal/observability"
)

// Exit codes
const (
	ExitOK         = 0
	ExitFailure    = 1
	ExitUnresolved = 2
)

var (
	// Global flags
	cfgFile     string
	profileName string
	verbose     bool
	debugMode   bool
	logLevel    string
	logFormat   string
	noColor     bool
)

// exitError carries a non-zero exit code out of a command
type exitError struct {
	code int
	msg  string
}

func (e *exitError) Error() string {
	return e.msg
}

// rootCmd represents the base command
var rootCmd = &cobra.Command{
	Use:   "lexredact",
	Short: "PII redaction for Peruvian legal documents",
	Long: `lexredact replaces personal data in legal documents (DOCX, PDF, text)
with typed placeholders such as {{PERSON_1}} and proves, with a final audit,
that no known identifier survives in the output.`,
	SilenceUsage:  true,
	SilenceErrors: true,

	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		setupLogging(os.Stderr)
		color.NoColor = noColor || !term.IsTerminal(int(os.Stdout.Fd()))
		return nil
	},
}

// setupLogging configures the global zerolog logger. Logs go to stderr so
// stdout stays clean for reports.
func setupLogging(out *os.File) {
	level, err := zerolog.ParseLevel(logLevel)
	if err != nil {
		level = zerolog.InfoLevel
	}
	if verbose && level > zerolog.DebugLevel {
		level = zerolog.DebugLevel
	}
	zerolog.SetGlobalLevel(level)

	var w io.Writer = out
	switch logFormat {
	case "json":
	case "console":
		w = zerolog.ConsoleWriter{Out: out, NoColor: noColor}
	default:
		if term.IsTerminal(int(out.Fd())) {
			w = zerolog.ConsoleWriter{Out: out, NoColor: noColor}
		}
	}
	log.Logger = zerolog.New(w).With().Timestamp().Logger()
}

// newObserver builds the pipeline observer for the current flags
func newObserver() *observability.StandardObserver {
	level := observability.ObservabilityMetrics
	if debugMode {
		level = observability.ObservabilityDebug
	}
	observer := observability.NewStandardObserver(level, log.Logger)
	if debugMode {
		observer.DebugObserver = observability.NewDebugObserver(os.Stderr, log.Logger)
	}
	return observer
}

// loadConfig resolves the configuration file, applies LEXREDACT_*
// overrides and the selected profile
func loadConfig() (*config.Config, error) {
	path := cfgFile
	if path == "" {
		path = config.FindConfigFile()
	}
	cfg, err := config.LoadConfig(path)
	if err != nil {
		return nil, err
	}
	if path != "" {
		log.Debug().Str("config", path).Msg("Configuration loaded")
	}
	if profileName != "" {
		if err := cfg.ApplyProfile(profileName); err != nil {
			return nil, err
		}
		log.Debug().Str("profile", profileName).Msg("Profile applied")
	}
	return cfg, nil
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default: ./.lexredact.yaml, ./lexredact.yaml or ~/.lexredact/config.yaml)")
	rootCmd.PersistentFlags().StringVar(&profileName, "profile", "", "named profile from the config file")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "verbose output")
	rootCmd.PersistentFlags().BoolVar(&debugMode, "debug", false, "trace every pipeline step to stderr")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "warn", "log level (debug, info, warn, error)")
	rootCmd.PersistentFlags().StringVar(&logFormat, "log-format", "auto", "log format (auto, console, json)")
	rootCmd.PersistentFlags().BoolVar(&noColor, "no-color", false, "disable colored output")
}

// Execute runs the root command and returns the process exit code
func Execute() int {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	err := rootCmd.ExecuteContext(ctx)
	if err == nil {
		return ExitOK
	}
	var exit *exitError
	if errors.As(err, &exit) {
		if exit.msg != "" {
			fmt.Fprintln(os.Stderr, exit.msg)
		}
		return exit.code
	}
	fmt.Fprintf(os.Stderr, "Error: %v\n", err)
	return ExitFailure
}
