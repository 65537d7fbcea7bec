// Package config loads a corral project file: a TOML document describing
// the tools to supervise, plus optional serving preferences, into
// []supervisor.ToolConfig (spec.md §6 "Configuration input"). Grounded on
// the TOML-configured terminal tool in the example pack (a bubbletea TUI
// reading its session layout from a BurntSushi/toml document); this
// package is corral's equivalent of that project-file loader.
package config

import (
	"fmt"
	"os"

	"github.com/BurntSushi/toml"
	"github.com/arctir/corral/supervisor"
)

// DefaultPort is used when a project file omits [server].port.
const DefaultPort = 18765

// toolDoc is the raw TOML shape of one [[tools]] table.
type toolDoc struct {
	Name        string            `toml:"name"`
	Command     string            `toml:"command"`
	Args        []string          `toml:"args"`
	Cwd         string            `toml:"cwd"`
	Env         map[string]string `toml:"env"`
	Cleanup     []string          `toml:"cleanup"`
	DependsOn   []string          `toml:"depends_on"`
	Description string            `toml:"description"`
}

type serverDoc struct {
	Port       int    `toml:"port"`
	APIToolName string `toml:"api_tool_name"`
}

type document struct {
	Server serverDoc `toml:"server"`
	Theme  string    `toml:"theme"`
	Tools  []toolDoc `toml:"tools"`
}

// Config is the parsed, validated result of loading a project file.
type Config struct {
	Tools       []supervisor.ToolConfig
	Port        int
	Theme       string
	APIToolName string
	Warnings    []string
}

// Load reads and parses the TOML project file at path. A missing,
// empty, or malformed name/command on any [[tools]] entry produces a
// warning and drops that entry rather than failing the whole load,
// matching spec.md §6's "plus any number of configuration warnings."
// An empty tool list (after dropping invalid entries) is reported to
// the caller as supervisor.ErrEmptyConfig so Reload/run can react
// uniformly to "nothing left to supervise".
func Load(path string) (Config, error) {
	if path == "" {
		return Config{}, supervisor.ErrNoConfigPath
	}

	raw, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("config: reading %s: %w", path, err)
	}

	var doc document
	if _, err := toml.Decode(string(raw), &doc); err != nil {
		return Config{}, fmt.Errorf("config: parsing %s: %w", path, err)
	}

	var warnings []string
	tools := make([]supervisor.ToolConfig, 0, len(doc.Tools))
	seen := make(map[string]bool, len(doc.Tools))
	for i, td := range doc.Tools {
		if td.Name == "" {
			warnings = append(warnings, fmt.Sprintf("tools[%d]: missing name, skipped", i))
			continue
		}
		if td.Command == "" {
			warnings = append(warnings, fmt.Sprintf("tools[%d] (%s): missing command, skipped", i, td.Name))
			continue
		}
		if seen[td.Name] {
			warnings = append(warnings, fmt.Sprintf("tools[%d]: duplicate name %q, skipped", i, td.Name))
			continue
		}
		seen[td.Name] = true
		tools = append(tools, supervisor.ToolConfig{
			Name:        td.Name,
			Command:     td.Command,
			Args:        td.Args,
			Cwd:         td.Cwd,
			Env:         td.Env,
			Cleanup:     td.Cleanup,
			DependsOn:   td.DependsOn,
			Description: td.Description,
		})
	}

	for _, td := range doc.Tools {
		for _, dep := range td.DependsOn {
			if dep != td.Name && !seen[dep] {
				warnings = append(warnings, fmt.Sprintf("tool %q depends on unknown tool %q", td.Name, dep))
			}
		}
	}

	if len(tools) == 0 {
		return Config{Warnings: warnings}, supervisor.ErrEmptyConfig
	}

	port := doc.Server.Port
	if port <= 0 {
		port = DefaultPort
	}
	apiToolName := doc.Server.APIToolName
	if apiToolName == "" {
		apiToolName = "MCP API"
	}

	return Config{
		Tools:       tools,
		Port:        port,
		Theme:       doc.Theme,
		APIToolName: apiToolName,
		Warnings:    warnings,
	}, nil
}
