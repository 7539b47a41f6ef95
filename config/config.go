// Package config loads optional YAML configuration overriding cmd/server's
// environment-variable defaults, in the style of the declarative YAML
// scenario files used elsewhere in the teacher's integration test tooling.
package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

type (
	// Server is the optional on-disk configuration for cmd/server. Any zero
	// field is left to the caller's environment-variable default.
	Server struct {
		Addr       string          `yaml:"addr"`
		SessionTTL string          `yaml:"sessionTtl"`
		Provider   ProviderConfig  `yaml:"provider"`
		Sources    []string        `yaml:"sources"`
		Widgets    map[string]bool `yaml:"widgets"`
	}

	// ProviderConfig names the model provider and its default/high/small
	// model identifiers, overriding cmd/server's built-in defaults.
	ProviderConfig struct {
		Name         string `yaml:"name"`
		DefaultModel string `yaml:"defaultModel"`
		HighModel    string `yaml:"highModel"`
		SmallModel   string `yaml:"smallModel"`
	}
)

// Load reads and parses a Server config from path. A missing file is not an
// error: the caller falls back to environment-variable defaults entirely.
func Load(path string) (*Server, error) {
	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return &Server{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("config: read %s: %w", path, err)
	}
	var cfg Server
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("config: parse %s: %w", path, err)
	}
	return &cfg, nil
}

// WidgetEnabled reports whether the named widget kind is enabled, defaulting
// to true when the config omits an explicit entry for it.
func (s *Server) WidgetEnabled(kind string) bool {
	if s == nil || s.Widgets == nil {
		return true
	}
	enabled, ok := s.Widgets[kind]
	if !ok {
		return true
	}
	return enabled
}
