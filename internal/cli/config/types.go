// Package config provides configuration management for the condpredict CLI.
package config

import (
	"github.com/leapstack-labs/condpredict/internal/model"
	"github.com/leapstack-labs/condpredict/internal/state"
)

// ModelConfig locates the external scoring process.
type ModelConfig struct {
	Runtime  string `koanf:"runtime" yaml:"runtime" json:"runtime"`
	Script   string `koanf:"script" yaml:"script" json:"script"`
	Artifact string `koanf:"artifact" yaml:"artifact" json:"artifact"`
	Name     string `koanf:"name" yaml:"name" json:"name"`
}

// Config holds all CLI configuration options.
type Config struct {
	StatePath string      `koanf:"state_path" yaml:"state_path" json:"state_path"`
	History   bool        `koanf:"history" yaml:"history" json:"history"`
	Workspace string      `koanf:"workspace" yaml:"workspace" json:"workspace"`
	Verbose   bool        `koanf:"verbose" yaml:"verbose" json:"verbose"`
	LogLevel  string      `koanf:"log_level" yaml:"log_level" json:"log_level"`
	LogFormat string      `koanf:"log_format" yaml:"log_format" json:"log_format"`
	Output    string      `koanf:"output" yaml:"output" json:"output"`
	Model     ModelConfig `koanf:"model" yaml:"model" json:"model"`

	// ProjectRoot is the directory relative paths are resolved against.
	ProjectRoot string `koanf:"-" yaml:"-" json:"-"`
}

// Default configuration values.
const (
	DefaultStateFile = state.DefaultPath
	DefaultWorkspace = ":memory:"
	DefaultLogLevel  = "info"
	DefaultLogFormat = "text"
	DefaultOutput    = "auto" // Auto-detect: TTY=text, non-TTY=markdown
	DefaultRuntime   = model.DefaultRuntime
	DefaultModelName = model.DefaultName
	EnvPrefix        = "CONDPREDICT_"
)

// Log formats.
const (
	LogFormatText = "text"
	LogFormatJSON = "json"
)
