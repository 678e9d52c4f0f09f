// Copyright The lexredact Authors.
// SPDX-License-Identifier: Apache-2.0

package config

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"

	"lexredact/internal/paths"
)

// Environment variable prefix for overrides (LEXREDACT_LLM_MODEL, ...)
const EnvPrefix = "LEXREDACT"

// Environment override keys, resolved as EnvPrefix + "_" + upper(key)
const (
	KeyConfidenceThreshold = "confidence_threshold"
	KeyEmergencyRedaction  = "emergency_redaction"
	KeyNEREnabled          = "ner_enabled"
	KeyNERModelPath        = "ner_model_path"
	KeyNERLibraryPath      = "ner_library_path"
	KeyLLMEnabled          = "llm_enabled"
	KeyLLMEndpoint         = "llm_endpoint"
	KeyLLMModel            = "llm_model"
	KeyLLMTimeout          = "llm_timeout"
	KeyLLMChunkChars       = "llm_chunk_chars"
	KeyLLMConcurrency      = "llm_concurrency"
	KeyOutputFormat        = "output_format"
)

// Config represents the application configuration
type Config struct {
	// Pipeline settings
	Pipeline PipelineConfig `yaml:"pipeline"`

	// Statistical NER settings
	NER NERConfig `yaml:"ner"`

	// LLM detector settings
	LLM LLMConfig `yaml:"llm"`

	// Operator allowlist rules
	Allowlist AllowlistConfig `yaml:"allowlist"`

	// Input limits
	Limits LimitsConfig `yaml:"limits"`

	// Output settings
	Output OutputConfig `yaml:"output"`

	// Named profiles
	Profiles map[string]Profile `yaml:"profiles"`
}

// PipelineConfig controls the detection and audit stages.
type PipelineConfig struct {
	ConfidenceThreshold float64 `yaml:"confidence_threshold"`
	SectionMaxLines     int     `yaml:"section_max_lines"`
	SectionMaxChars     int     `yaml:"section_max_chars"`
	Propagation         bool    `yaml:"propagation"`
	EmergencyRedaction  bool    `yaml:"emergency_redaction"`
}

// NERConfig locates the ONNX token-classification model.
type NERConfig struct {
	Enabled           bool    `yaml:"enabled"`
	ModelDir          string  `yaml:"model_dir"`
	LibraryPath       string  `yaml:"library_path"`
	MaxSequenceLength int     `yaml:"max_sequence_length"`
	MinConfidence     float64 `yaml:"min_confidence"`
}

// LLMConfig configures the OpenAI-compatible detector.
type LLMConfig struct {
	Enabled           bool          `yaml:"enabled"`
	Endpoint          string        `yaml:"endpoint"`
	Model             string        `yaml:"model"`
	APIKeyEnv         string        `yaml:"api_key_env"`
	Timeout           time.Duration `yaml:"timeout"`
	MaxRetries        int           `yaml:"max_retries"`
	ChunkChars        int           `yaml:"chunk_chars"`
	Concurrency       int           `yaml:"concurrency"`
	RequestsPerSecond float64       `yaml:"requests_per_second"`
}

// AllowlistConfig points at the operator rules file.
type AllowlistConfig struct {
	RulesFile string `yaml:"file"`
}

// LimitsConfig bounds accepted input.
type LimitsConfig struct {
	MaxFileMB    int `yaml:"max_file_mb"`
	MaxPDFPages  int `yaml:"max_pdf_pages"`
	MinTextChars int `yaml:"min_text_chars"`
}

// OutputConfig controls report rendering.
type OutputConfig struct {
	Format        string `yaml:"format"`
	Dir           string `yaml:"dir"`
	ShowOriginals bool   `yaml:"show_originals"`
	NoColor       bool   `yaml:"no_color"`
}

// Profile overrides a subset of settings. Nil fields keep the base value.
type Profile struct {
	Description         string   `yaml:"description"`
	ConfidenceThreshold *float64 `yaml:"confidence_threshold,omitempty"`
	EmergencyRedaction  *bool    `yaml:"emergency_redaction,omitempty"`
	NEREnabled          *bool    `yaml:"ner_enabled,omitempty"`
	LLMEnabled          *bool    `yaml:"llm_enabled,omitempty"`
	Format              string   `yaml:"format,omitempty"`
}

// Default returns the built-in configuration.
func Default() *Config {
	config := &Config{Profiles: make(map[string]Profile)}

	config.Pipeline.ConfidenceThreshold = 0.7
	config.Pipeline.SectionMaxLines = 12
	config.Pipeline.SectionMaxChars = 1500
	config.Pipeline.Propagation = true
	config.Pipeline.EmergencyRedaction = false

	config.NER.Enabled = true
	config.NER.MaxSequenceLength = 512
	config.NER.MinConfidence = 0.5

	config.LLM.Enabled = false
	config.LLM.Endpoint = "http://localhost:11434/v1"
	config.LLM.APIKeyEnv = "LEXREDACT_LLM_API_KEY"
	config.LLM.Timeout = 20 * time.Second
	config.LLM.MaxRetries = 1
	config.LLM.ChunkChars = 6000
	config.LLM.Concurrency = 2
	config.LLM.RequestsPerSecond = 2

	config.Allowlist.RulesFile = paths.GetAllowlistRulesFile()

	config.Limits.MaxFileMB = 10
	config.Limits.MaxPDFPages = 50
	config.Limits.MinTextChars = 100

	config.Output.Format = "text"
	config.Output.Dir = "./redacted"

	strict, emergency := 0.5, true
	config.Profiles["strict"] = Profile{
		Description:         "Lower acceptance threshold and emergency masking of unresolved residuals",
		ConfidenceThreshold: &strict,
		EmergencyRedaction:  &emergency,
	}
	return config
}

// LoadConfig loads configuration from the specified file path and applies
// environment overrides
func LoadConfig(configPath string) (*Config, error) {
	config := Default()

	if configPath != "" {
		if err := paths.ValidatePath(configPath); err != nil {
			return nil, err
		}
		data, err := os.ReadFile(filepath.Clean(configPath))
		if err != nil {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}

		// Store bool defaults that are true before unmarshaling
		defaultPropagation := config.Pipeline.Propagation
		defaultNEREnabled := config.NER.Enabled
		builtinProfiles := config.Profiles

		if err := yaml.Unmarshal(data, config); err != nil {
			return nil, fmt.Errorf("error parsing config file: %w", err)
		}

		if !containsField(data, "pipeline", "propagation") {
			config.Pipeline.Propagation = defaultPropagation
		}
		if !containsField(data, "ner", "enabled") {
			config.NER.Enabled = defaultNEREnabled
		}
		if config.Profiles == nil {
			config.Profiles = make(map[string]Profile)
		}
		for name, profile := range builtinProfiles {
			if _, ok := config.Profiles[name]; !ok {
				config.Profiles[name] = profile
			}
		}
	}

	if err := ApplyEnvOverrides(config); err != nil {
		return nil, err
	}

	if err := ValidateConfig(config); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}
	return config, nil
}

// ApplyEnvOverrides reads LEXREDACT_* variables through viper.
func ApplyEnvOverrides(config *Config) error {
	v := viper.New()
	v.SetEnvPrefix(EnvPrefix)
	v.AutomaticEnv()

	for _, key := range []string{
		KeyConfidenceThreshold, KeyEmergencyRedaction, KeyNEREnabled, KeyNERModelPath,
		KeyNERLibraryPath, KeyLLMEnabled, KeyLLMEndpoint, KeyLLMModel, KeyLLMTimeout,
		KeyLLMChunkChars, KeyLLMConcurrency, KeyOutputFormat,
	} {
		if err := v.BindEnv(key); err != nil {
			return fmt.Errorf("binding %s: %w", key, err)
		}
	}

	if v.IsSet(KeyConfidenceThreshold) {
		config.Pipeline.ConfidenceThreshold = v.GetFloat64(KeyConfidenceThreshold)
	}
	if v.IsSet(KeyEmergencyRedaction) {
		config.Pipeline.EmergencyRedaction = v.GetBool(KeyEmergencyRedaction)
	}
	if v.IsSet(KeyNEREnabled) {
		config.NER.Enabled = v.GetBool(KeyNEREnabled)
	}
	if v.IsSet(KeyNERModelPath) {
		config.NER.ModelDir = v.GetString(KeyNERModelPath)
	}
	if v.IsSet(KeyNERLibraryPath) {
		config.NER.LibraryPath = v.GetString(KeyNERLibraryPath)
	}
	if v.IsSet(KeyLLMEnabled) {
		config.LLM.Enabled = v.GetBool(KeyLLMEnabled)
	}
	if v.IsSet(KeyLLMEndpoint) {
		config.LLM.Endpoint = v.GetString(KeyLLMEndpoint)
	}
	if v.IsSet(KeyLLMModel) {
		config.LLM.Model = v.GetString(KeyLLMModel)
	}
	if v.IsSet(KeyLLMTimeout) {
		config.LLM.Timeout = v.GetDuration(KeyLLMTimeout)
	}
	if v.IsSet(KeyLLMChunkChars) {
		config.LLM.ChunkChars = v.GetInt(KeyLLMChunkChars)
	}
	if v.IsSet(KeyLLMConcurrency) {
		config.LLM.Concurrency = v.GetInt(KeyLLMConcurrency)
	}
	if v.IsSet(KeyOutputFormat) {
		config.Output.Format = v.GetString(KeyOutputFormat)
	}
	return nil
}

// ApplyProfile overlays the named profile onto the configuration.
func (c *Config) ApplyProfile(name string) error {
	profile, ok := c.Profiles[name]
	if !ok {
		return fmt.Errorf("profile %q not found (available: %s)", name, strings.Join(c.ListProfiles(), ", "))
	}
	if profile.ConfidenceThreshold != nil {
		c.Pipeline.ConfidenceThreshold = *profile.ConfidenceThreshold
	}
	if profile.EmergencyRedaction != nil {
		c.Pipeline.EmergencyRedaction = *profile.EmergencyRedaction
	}
	if profile.NEREnabled != nil {
		c.NER.Enabled = *profile.NEREnabled
	}
	if profile.LLMEnabled != nil {
		c.LLM.Enabled = *profile.LLMEnabled
	}
	if profile.Format != "" {
		c.Output.Format = profile.Format
	}
	return ValidateConfig(c)
}

// ListProfiles returns the profile names in sorted order
func (c *Config) ListProfiles() []string {
	names := make([]string, 0, len(c.Profiles))
	for name := range c.Profiles {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// FindConfigFile looks for a configuration file in standard locations
func FindConfigFile() string {
	for _, name := range []string{".lexredact.yaml", ".lexredact.yml", "lexredact.yaml", "lexredact.yml"} {
		if fileExists(name) {
			return name
		}
	}

	if standardConfig := paths.GetConfigFile(); fileExists(standardConfig) {
		return standardConfig
	}
	return ""
}

func fileExists(filename string) bool {
	info, err := os.Stat(filename)
	if os.IsNotExist(err) {
		return false
	}
	return err == nil && !info.IsDir()
}

// containsField checks if a nested field exists in the YAML data
func containsField(data []byte, path ...string) bool {
	var yamlData map[string]interface{}
	err := yaml.Unmarshal(data, &yamlData)
	if err != nil {
		return false
	}

	current := yamlData
	for i, key := range path {
		if i == len(path)-1 {
			_, exists := current[key]
			return exists
		}
		if next, ok := current[key].(map[string]interface{}); ok {
			current = next
		} else {
			return false
		}
	}
	return false
}

// ValidateConfig validates the configuration values
func ValidateConfig(config *Config) error {
	p := config.Pipeline
	if p.ConfidenceThreshold <= 0 || p.ConfidenceThreshold > 1 {
		return fmt.Errorf("pipeline.confidence_threshold must be in (0, 1], got %v", p.ConfidenceThreshold)
	}
	if p.SectionMaxLines < 1 {
		return fmt.Errorf("pipeline.section_max_lines must be positive, got %d", p.SectionMaxLines)
	}
	if p.SectionMaxChars < 1 {
		return fmt.Errorf("pipeline.section_max_chars must be positive, got %d", p.SectionMaxChars)
	}

	if config.NER.MaxSequenceLength < 16 {
		return fmt.Errorf("ner.max_sequence_length must be at least 16, got %d", config.NER.MaxSequenceLength)
	}
	if config.NER.MinConfidence < 0 || config.NER.MinConfidence > 1 {
		return fmt.Errorf("ner.min_confidence must be in [0, 1], got %v", config.NER.MinConfidence)
	}
	if config.NER.ModelDir != "" {
		if err := paths.ValidatePath(config.NER.ModelDir); err != nil {
			return err
		}
	}

	if l := config.LLM; l.Enabled {
		if l.Endpoint == "" {
			return fmt.Errorf("llm.endpoint is required when the LLM detector is enabled")
		}
		if l.Model == "" {
			return fmt.Errorf("llm.model is required when the LLM detector is enabled")
		}
		if l.Timeout <= 0 {
			return fmt.Errorf("llm.timeout must be positive, got %v", l.Timeout)
		}
		if l.ChunkChars < 500 {
			return fmt.Errorf("llm.chunk_chars must be at least 500, got %d", l.ChunkChars)
		}
		if l.Concurrency < 1 {
			return fmt.Errorf("llm.concurrency must be positive, got %d", l.Concurrency)
		}
		if l.MaxRetries < 0 {
			return fmt.Errorf("llm.max_retries must not be negative, got %d", l.MaxRetries)
		}
		if l.RequestsPerSecond <= 0 {
			return fmt.Errorf("llm.requests_per_second must be positive, got %v", l.RequestsPerSecond)
		}
	}

	if config.Limits.MaxFileMB < 1 || config.Limits.MaxPDFPages < 1 || config.Limits.MinTextChars < 0 {
		return fmt.Errorf("limits must be positive: %+v", config.Limits)
	}

	switch config.Output.Format {
	case "text", "json", "yaml":
	default:
		return fmt.Errorf("output.format must be text, json or yaml, got %q", config.Output.Format)
	}
	if config.Output.Dir != "" {
		if err := paths.ValidatePath(config.Output.Dir); err != nil {
			return err
		}
	}
	if config.Allowlist.RulesFile != "" {
		if err := paths.ValidatePath(config.Allowlist.RulesFile); err != nil {
			return err
		}
	}
	return nil
}

// LoadConfigOrDefault loads configuration from configFile (or searches standard locations
// when configFile is empty). If loading fails, it returns a default configuration.
func LoadConfigOrDefault(configFile string) *Config {
	configPath := configFile
	if configPath == "" {
		configPath = FindConfigFile()
	}

	cfg, err := LoadConfig(configPath)
	if err != nil {
		cfg = Default()
	}
	return cfg
}
