// Package config handles YAML configuration loading, environment variable
// expansion, and structural validation for a2a.
package config

import (
	"maps"
	"slices"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/GreenD93/mcp-project/internal/logging"
	"github.com/GreenD93/mcp-project/internal/telemetry"
	"github.com/GreenD93/mcp-project/internal/tool"
)

// Config is the top-level configuration structure.
type Config struct {
	// Version is the config format version. Currently only "1" is supported.
	Version string `yaml:"version"`

	Catalog    CatalogConfig      `yaml:"catalog"`
	Validation ValidationConfig   `yaml:"validation"`
	Invoker    tool.InvokerConfig `yaml:"invoker"`
	Log        logging.Config     `yaml:"log"`
	Telemetry  telemetry.Config   `yaml:"telemetry"`

	// Modules maps module IDs to their raw YAML configuration.
	// Keys must match registered module IDs (e.g. "provider.openai").
	Modules map[string]yaml.Node `yaml:"modules"`
}

// CatalogConfig locates agent cards and tool manifests.
type CatalogConfig struct {
	// AgentsDir holds one sub-directory per agent with a card.json.
	AgentsDir string `yaml:"agents_dir"`
	// ToolsDir holds one JSON manifest per tool server.
	ToolsDir string `yaml:"tools_dir"`
	// ServersFile maps server names to base URLs. Defaults to
	// <tools_dir>/mcp_servers.json.
	ServersFile string `yaml:"servers_file"`
	// FallbackAgent answers requests routing could not place.
	FallbackAgent string `yaml:"fallback_agent"`
	// Refresh is an optional cron spec for periodic roster rebuilds.
	Refresh string `yaml:"refresh"`
	// Watch polls the catalog paths and refreshes on change.
	Watch        bool          `yaml:"watch"`
	PollInterval time.Duration `yaml:"poll_interval"`
}

// ValidationConfig selects the argument validator.
type ValidationConfig struct {
	Mode tool.ValidationMode `yaml:"mode"`
}

// WatchPaths returns the files and directories whose changes should
// trigger a refresh.
func (c CatalogConfig) WatchPaths() []string {
	var paths []string
	for _, p := range []string{c.AgentsDir, c.ToolsDir, c.ServersFile} {
		if p != "" {
			paths = append(paths, p)
		}
	}
	return paths
}

// Resolve lists the configured module IDs in load order. The order is
// sorted so the first provider and first trace sink picked by the wiring
// do not depend on map iteration.
func Resolve(cfg *Config) []string {
	if cfg == nil {
		return nil
	}
	return slices.Sorted(maps.Keys(cfg.Modules))
}
