package cli

import (
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"
)

// Config holds the runtime configuration for crewlens.
// It can be populated from CLI flags, config files, or both.
type Config struct {
	// Backend REST base URL; the update stream URL is derived from it
	// unless StreamURL overrides it.
	BackendURL string `yaml:"backend_url,omitempty"`
	StreamURL  string `yaml:"stream_url,omitempty"`

	// Web UI bind address
	ListenHost string `yaml:"listen_host,omitempty"`
	ListenPort int    `yaml:"listen_port,omitempty"`

	// Layout axis: "vertical" (default) or "horizontal"
	Direction string `yaml:"direction,omitempty"`

	// Raw updates retained per session for backfill/export
	EventBufferSize int `yaml:"event_buffer_size,omitempty"`

	// Directory of *.jsonl recordings; set means replay mode, no backend
	ReplayDir string `yaml:"replay_dir,omitempty"`

	// Logging configuration
	Verbose bool `yaml:"verbose,omitempty"`
}

// DefaultConfig returns a Config with sensible default values.
func DefaultConfig() *Config {
	return &Config{
		BackendURL:      "http://127.0.0.1:8000",
		ListenHost:      "127.0.0.1",
		ListenPort:      5173,
		Direction:       "vertical",
		EventBufferSize: 256,
		Verbose:         false,
	}
}

// EffectiveStreamURL returns the WebSocket URL for the update stream,
// derived from the backend URL when not set explicitly.
func (c *Config) EffectiveStreamURL() string {
	if c.StreamURL != "" {
		return c.StreamURL
	}
	u, err := url.Parse(c.BackendURL)
	if err != nil {
		return ""
	}
	switch u.Scheme {
	case "https":
		u.Scheme = "wss"
	default:
		u.Scheme = "ws"
	}
	u.Path = strings.TrimRight(u.Path, "/") + "/ws"
	return u.String()
}

// ListenAddr returns the host:port the web UI binds to.
func (c *Config) ListenAddr() string {
	return fmt.Sprintf("%s:%d", c.ListenHost, c.ListenPort)
}

// LoadConfigFromFile loads configuration from a YAML file at the given path.
func LoadConfigFromFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file %s: %w", path, err)
	}

	var config Config
	if err := yaml.Unmarshal(data, &config); err != nil {
		return nil, fmt.Errorf("failed to parse config file %s: %w", path, err)
	}

	return &config, nil
}

// FindProjectConfig searches for a .crewlens.yaml config file.
// It starts in the current directory and walks up looking for the file,
// stopping when it finds a .git directory (project root) or reaches root.
func FindProjectConfig() (string, error) {
	dir, err := os.Getwd()
	if err != nil {
		return "", fmt.Errorf("failed to get working directory: %w", err)
	}

	for {
		configPath := filepath.Join(dir, ".crewlens.yaml")
		if _, err := os.Stat(configPath); err == nil {
			return configPath, nil
		}

		// Stop at the repo root even if no config was found.
		gitPath := filepath.Join(dir, ".git")
		if _, err := os.Stat(gitPath); err == nil {
			break
		}

		parent := filepath.Dir(dir)
		if parent == dir {
			break
		}
		dir = parent
	}

	return "", os.ErrNotExist
}

// GlobalConfigPath returns the path to the global config file.
// This is ~/.config/crewlens/config.yaml
func GlobalConfigPath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ""
	}
	return filepath.Join(home, ".config", "crewlens", "config.yaml")
}

// MergeConfigs merges two configs with the overlay taking precedence.
// Fields in overlay override corresponding fields in base.
func MergeConfigs(base, overlay *Config) *Config {
	if base == nil {
		base = &Config{}
	}
	if overlay == nil {
		return base
	}

	merged := *base

	if overlay.BackendURL != "" {
		merged.BackendURL = overlay.BackendURL
	}
	if overlay.StreamURL != "" {
		merged.StreamURL = overlay.StreamURL
	}
	if overlay.ListenHost != "" {
		merged.ListenHost = overlay.ListenHost
	}
	if overlay.ListenPort > 0 {
		merged.ListenPort = overlay.ListenPort
	}
	if overlay.Direction != "" {
		merged.Direction = overlay.Direction
	}
	if overlay.EventBufferSize > 0 {
		merged.EventBufferSize = overlay.EventBufferSize
	}
	if overlay.ReplayDir != "" {
		merged.ReplayDir = overlay.ReplayDir
	}
	if overlay.Verbose {
		merged.Verbose = overlay.Verbose
	}

	return &merged
}

// LoadEffectiveConfig loads the effective configuration by merging:
// 1. Built-in defaults
// 2. Global config file (if exists)
// 3. Project config file (if exists)
// 4. Explicit config file (if specified via configPath)
// Later sources override earlier ones.
func LoadEffectiveConfig(configPath string) (*Config, error) {
	config := DefaultConfig()

	// Global config is optional; ignore load errors.
	if globalPath := GlobalConfigPath(); globalPath != "" {
		if globalCfg, err := LoadConfigFromFile(globalPath); err == nil {
			config = MergeConfigs(config, globalCfg)
		}
	}

	if configPath == "" {
		if projectPath, err := FindProjectConfig(); err == nil {
			projectCfg, err := LoadConfigFromFile(projectPath)
			if err != nil {
				return nil, fmt.Errorf("failed to load project config: %w", err)
			}
			config = MergeConfigs(config, projectCfg)
		}
	} else {
		explicitCfg, err := LoadConfigFromFile(configPath)
		if err != nil {
			return nil, fmt.Errorf("failed to load config file: %w", err)
		}
		config = MergeConfigs(config, explicitCfg)
	}

	return config, nil
}
