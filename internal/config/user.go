package config

import (
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"

	"dbtkit/internal/common"
)

// UserConfig holds user-level preferences, stored separately from any project
type UserConfig struct {
	General   General   `yaml:"general"`
	ModelInfo ModelInfo `yaml:"model_info"`
	Theme     Theme     `yaml:"theme"`
}

type General struct {
	AuthCheck bool   `yaml:"auth_check"`
	Editor    string `yaml:"editor"`
	Theme     string `yaml:"theme"`
}

type ModelInfo struct {
	Formatter string `yaml:"formatter"`
}

// Theme maps display elements to ANSI-256 color codes
type Theme struct {
	Name         int `yaml:"name"`
	Path         int `yaml:"path"`
	Tags         int `yaml:"tags"`
	Group        int `yaml:"group"`
	Materialized int `yaml:"materialized"`
	Owner        int `yaml:"owner"`
	DepStg       int `yaml:"dep_stg"`
	DepInt       int `yaml:"dep_int"`
	DepMart      int `yaml:"dep_mart"`
	Description  int `yaml:"description"`
	Deprecated   int `yaml:"deprecated"`
}

var themes = map[string]Theme{
	"light": {
		Name: 30, Path: 27, Tags: 28, Group: 94, Materialized: 54, Owner: 136,
		DepStg: 34, DepInt: 24, DepMart: 20, Description: 102, Deprecated: 124,
	},
	"dark": {
		Name: 115, Path: 147, Tags: 106, Group: 178, Materialized: 212, Owner: 208,
		DepStg: 118, DepInt: 123, DepMart: 75, Description: 144, Deprecated: 196,
	},
}

// DefaultUserConfig returns the initial configuration with the light theme
func DefaultUserConfig() *UserConfig {
	return &UserConfig{
		General:   General{AuthCheck: true, Editor: "code", Theme: "light"},
		ModelInfo: ModelInfo{Formatter: "fmt -s"},
		Theme:     themes["light"],
	}
}

// GetUserConfigPath returns the user configuration directory
func GetUserConfigPath() string {
	if configDir := os.Getenv("DBTKIT_CONFIG"); configDir != "" {
		return configDir
	}
	home, _ := os.UserHomeDir()
	return filepath.Join(home, ".config", "dbtkit")
}

// GetUserConfigFile returns the user configuration file path
func GetUserConfigFile() string {
	return filepath.Join(GetUserConfigPath(), "config.yaml")
}

// LoadUser reads the user configuration, returning defaults when no file exists
func LoadUser() (*UserConfig, error) {
	configFile := GetUserConfigFile()

	if _, err := os.Stat(configFile); os.IsNotExist(err) {
		return DefaultUserConfig(), nil
	}

	data, err := os.ReadFile(configFile)
	if err != nil {
		return nil, fmt.Errorf("failed to read user config: %w", err)
	}

	config := DefaultUserConfig()
	if err := yaml.Unmarshal(data, config); err != nil {
		return nil, fmt.Errorf("failed to unmarshal user config: %w", err)
	}
	return config, nil
}

// SaveUser writes the user configuration to disk
func SaveUser(config *UserConfig) error {
	if err := os.MkdirAll(GetUserConfigPath(), common.DirPermissionSecure); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	data, err := yaml.Marshal(config)
	if err != nil {
		return fmt.Errorf("failed to marshal user config: %w", err)
	}

	if err := os.WriteFile(GetUserConfigFile(), data, common.FilePermissionSecure); err != nil {
		return fmt.Errorf("failed to write user config: %w", err)
	}
	return nil
}

// Update changes a single setting addressed as "section:key" and persists the
// result. Changing the theme re-applies the matching color palette.
func (c *UserConfig) Update(setting, value string) error {
	section, key := "general", setting
	for i := 0; i < len(setting); i++ {
		if setting[i] == ':' {
			section, key = setting[:i], setting[i+1:]
			break
		}
	}

	switch section {
	case "general":
		switch key {
		case "theme":
			if err := c.ApplyTheme(value); err != nil {
				return err
			}
		case "editor":
			c.General.Editor = value
		case "auth_check":
			c.General.AuthCheck = value == "true" || value == "yes"
		default:
			return fmt.Errorf("unknown configuration setting: %s:%s", section, key)
		}
	case "model_info":
		if key != "formatter" {
			return fmt.Errorf("unknown configuration setting: %s:%s", section, key)
		}
		c.ModelInfo.Formatter = value
	default:
		return fmt.Errorf("unknown configuration section: %s", section)
	}

	return SaveUser(c)
}

// ApplyTheme switches the active color palette without persisting anything
func (c *UserConfig) ApplyTheme(name string) error {
	palette, ok := themes[name]
	if !ok {
		return fmt.Errorf("invalid theme %q: must be one of light, dark", name)
	}
	c.General.Theme = name
	c.Theme = palette
	return nil
}

// DarkMode reports whether the dark theme is active
func (c *UserConfig) DarkMode() bool { return c.General.Theme == "dark" }
