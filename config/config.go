// Package config loads the tool-definitions document: named post-processing
// commands with platform variants, plus directory aliases exposed to
// command templates as DIR_<NAME> variables.
package config

import (
	"fmt"
	"os"
	"runtime"
	"strings"

	"gopkg.in/yaml.v3"
)

// ToolCmd holds the platform-specific command templates of a tool. A plain
// scalar in the document applies to every platform.
type ToolCmd struct {
	Windows string
	Linux   string
	Mac     string
}

func (c *ToolCmd) UnmarshalYAML(node *yaml.Node) error {
	if node.Kind == yaml.ScalarNode {
		var s string
		if err := node.Decode(&s); err != nil {
			return err
		}
		c.Windows, c.Linux, c.Mac = s, s, s
		return nil
	}
	var raw struct {
		Windows string `yaml:"windows"`
		Linux   string `yaml:"linux"`
		Mac     string `yaml:"mac"`
	}
	if err := node.Decode(&raw); err != nil || (raw.Windows == "" && raw.Linux == "" && raw.Mac == "") {
		return fmt.Errorf("invalid cmd configuration (must be a string, " +
			"or a mapping with keys 'windows', 'linux', and/or 'mac')")
	}
	c.Windows, c.Linux, c.Mac = raw.Windows, raw.Linux, raw.Mac
	return nil
}

// Command returns the command template for the running platform. Mac falls
// back to the Linux command when absent.
func (c ToolCmd) Command() (string, error) {
	return c.commandFor(runtime.GOOS)
}

func (c ToolCmd) commandFor(goos string) (string, error) {
	var cmd string
	switch goos {
	case "windows":
		cmd = c.Windows
	case "darwin":
		cmd = c.Mac
		if cmd == "" {
			cmd = c.Linux
		}
	default:
		cmd = c.Linux
	}
	if cmd == "" {
		return "", fmt.Errorf("no command defined for platform %q", goos)
	}
	return cmd, nil
}

// Tool is one named tool definition.
type Tool struct {
	Name      string
	Cmd       ToolCmd
	Args      string
	ArgsExtra map[string]string
	AllowFail *bool
	Enabled   bool
}

func (t *Tool) UnmarshalYAML(node *yaml.Node) error {
	var raw struct {
		Name      string            `yaml:"name"`
		Cmd       *ToolCmd          `yaml:"cmd"`
		Args      string            `yaml:"args"`
		ArgsExtra map[string]string `yaml:"args_extra"`
		AllowFail *bool             `yaml:"allow_fail"`
		Enabled   *bool             `yaml:"enabled"`
		Disabled  *bool             `yaml:"disabled"`
	}
	if err := node.Decode(&raw); err != nil {
		return err
	}
	if raw.Name == "" || raw.Cmd == nil {
		return fmt.Errorf("missing 'name' or 'cmd' key in tool definition")
	}
	enabled := true
	switch {
	case raw.Enabled != nil:
		if raw.Disabled != nil && *raw.Enabled == *raw.Disabled {
			return fmt.Errorf("tool %q: incoherent values for 'enabled' and 'disabled'", raw.Name)
		}
		enabled = *raw.Enabled
	case raw.Disabled != nil:
		enabled = !*raw.Disabled
	}
	t.Name = raw.Name
	t.Cmd = *raw.Cmd
	t.Args = raw.Args
	t.ArgsExtra = raw.ArgsExtra
	t.AllowFail = raw.AllowFail
	t.Enabled = enabled
	return nil
}

// Config is a parsed tool-definitions document.
type Config struct {
	Tools       []Tool            `yaml:"tools"`
	Directories map[string]string `yaml:"directories"`
}

// Parse decodes a tool-definitions document. Shape errors are fatal.
func Parse(data []byte) (*Config, error) {
	cfg := &Config{}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parsing config: %w", err)
	}
	return cfg, nil
}

// Load reads and parses a tool-definitions document from a file.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return Parse(data)
}

// GetTool returns the named tool definition.
func (c *Config) GetTool(name string) (*Tool, error) {
	for i := range c.Tools {
		if c.Tools[i].Name == name {
			return &c.Tools[i], nil
		}
	}
	return nil, fmt.Errorf("tool %q not found in config", name)
}

// DirVars exposes the directory aliases as DIR_<NAME> template variables.
func (c *Config) DirVars() map[string]string {
	vars := make(map[string]string, len(c.Directories))
	for key, value := range c.Directories {
		vars["DIR_"+strings.ToUpper(key)] = value
	}
	return vars
}
