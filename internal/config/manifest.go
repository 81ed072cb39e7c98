// Package config loads and validates the project manifest
// (journeyengine.yaml): the declaration of which journey sources to
// compile and the ambient execution settings (concurrency, timeouts,
// error policy, log level).
package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// Manifest is the top-level journeyengine.yaml document.
type Manifest struct {
	Version  string   `yaml:"version" validate:"required,semver"`
	Name     string   `yaml:"name" validate:"required,min=1,max=100"`
	Settings Settings `yaml:"settings,omitempty"`
	Sources  []Source `yaml:"sources" validate:"required,min=1,dive"`
}

// Settings holds the engine's ambient execution parameters.
type Settings struct {
	Parallel        int    `yaml:"parallel,omitempty" validate:"omitempty,min=1,max=64"`
	Timeout         int    `yaml:"timeout,omitempty" validate:"omitempty,min=1,max=360000"`
	ContinueOnError bool   `yaml:"continue_on_error,omitempty"`
	LogLevel        string `yaml:"log_level,omitempty" validate:"omitempty,oneof=debug info warn error"`
}

// Source is one journey definition source: either a local path or a
// git-backed checkout (see internal/source).
type Source struct {
	ID   string `yaml:"id" validate:"required,source_id"`
	Path string `yaml:"path,omitempty"`
	Git  string `yaml:"git,omitempty" validate:"omitempty,git_url"`
	Ref  string `yaml:"ref,omitempty"`
}

// Load reads and validates a manifest from path.
func Load(path string) (*Manifest, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read manifest %s: %w", path, err)
	}
	return Parse(data)
}

// Parse validates and decodes manifest bytes.
func Parse(data []byte) (*Manifest, error) {
	var m Manifest
	if err := yaml.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("parse manifest: %w", err)
	}
	if m.Settings.Parallel == 0 {
		m.Settings.Parallel = 4
	}
	if m.Settings.LogLevel == "" {
		m.Settings.LogLevel = "info"
	}
	if err := validatorInstance().Struct(&m); err != nil {
		return nil, fmt.Errorf("invalid manifest: %w", err)
	}
	for _, s := range m.Sources {
		if s.Path == "" && s.Git == "" {
			return nil, fmt.Errorf("source %q must declare either path or git", s.ID)
		}
	}
	return &m, nil
}
