package config

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/BurntSushi/toml"
)

// AgentConfigEnv overrides the default agent profile location.
const AgentConfigEnv = "SITEPROOF_CONFIG"

// AgentConfig is the field-device profile read by the siteproof CLI.
type AgentConfig struct {
	ServerURL      string           `toml:"server_url"`
	APIKey         string           `toml:"api_key"`
	UserID         string           `toml:"user_id"`
	OrgRole        string           `toml:"org_role"`
	ProjectIDs     []string         `toml:"project_ids"`
	RequestTimeout string           `toml:"request_timeout"` // Go duration, e.g. "30s"
	SyncInterval   string           `toml:"sync_interval"`   // Go duration, used by watch
	Store          LocalStoreConfig `toml:"store"`
}

// LocalStoreConfig selects the device-side store.
// This uses a tagged union pattern - the Type field determines which other fields are relevant.
type LocalStoreConfig struct {
	Type              string `toml:"type"`                // "sqlite" or "memory"
	DataDir           string `toml:"data_dir,omitempty"`  // only used for type=sqlite
	TemplateCacheSize int    `toml:"template_cache_size"` // 0 disables eviction
}

// NewAgentConfig creates an AgentConfig with defaults rooted at baseDir.
func NewAgentConfig(serverURL, userID, baseDir string) *AgentConfig {
	return &AgentConfig{
		ServerURL:      serverURL,
		UserID:         userID,
		OrgRole:        "member",
		RequestTimeout: "30s",
		SyncInterval:   "5m",
		Store: LocalStoreConfig{
			Type:              "sqlite",
			DataDir:           filepath.Join(baseDir, "data"),
			TemplateCacheSize: 200,
		},
	}
}

// Timeout returns the HTTP request timeout, defaulting to 30s.
func (c *AgentConfig) Timeout() time.Duration {
	return parseDurationOr(c.RequestTimeout, 30*time.Second)
}

// Interval returns the auto-sync interval, defaulting to 5m.
func (c *AgentConfig) Interval() time.Duration {
	return parseDurationOr(c.SyncInterval, 5*time.Minute)
}

// Validate checks the fields every command needs.
func (c *AgentConfig) Validate() error {
	if c.ServerURL == "" {
		return fmt.Errorf("server_url is required")
	}
	if c.UserID == "" {
		return fmt.Errorf("user_id is required")
	}
	if _, err := time.ParseDuration(c.RequestTimeout); c.RequestTimeout != "" && err != nil {
		return fmt.Errorf("invalid request_timeout %q: %w", c.RequestTimeout, err)
	}
	if _, err := time.ParseDuration(c.SyncInterval); c.SyncInterval != "" && err != nil {
		return fmt.Errorf("invalid sync_interval %q: %w", c.SyncInterval, err)
	}
	if c.Store.TemplateCacheSize < 0 {
		return fmt.Errorf("store.template_cache_size must not be negative")
	}
	return nil
}

// ReadAgent decodes an AgentConfig from r.
func ReadAgent(r io.Reader) (*AgentConfig, error) {
	var cfg AgentConfig
	if _, err := toml.NewDecoder(r).Decode(&cfg); err != nil {
		return nil, fmt.Errorf("failed to decode agent config: %w", err)
	}
	return &cfg, nil
}

// WriteAgent encodes cfg to w.
func WriteAgent(w io.Writer, cfg *AgentConfig) error {
	if err := toml.NewEncoder(w).Encode(cfg); err != nil {
		return fmt.Errorf("failed to encode agent config: %w", err)
	}
	return nil
}

// ReadAgentFile reads an AgentConfig from path.
func ReadAgentFile(path string) (*AgentConfig, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open agent config: %w", err)
	}
	defer f.Close()

	cfg, err := ReadAgent(f)
	if err != nil {
		return nil, fmt.Errorf("reading agent config from %s: %w", path, err)
	}
	return cfg, nil
}

// InitAgentFile writes cfg to path, refusing to overwrite an existing profile.
func InitAgentFile(path string, cfg *AgentConfig) error {
	if _, err := os.Stat(path); err == nil {
		return fmt.Errorf("agent config already exists at %s", path)
	}

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_EXCL, 0o600)
	if err != nil {
		return fmt.Errorf("failed to create agent config: %w", err)
	}
	defer f.Close()

	if err := WriteAgent(f, cfg); err != nil {
		return fmt.Errorf("writing agent config to %s: %w", path, err)
	}
	return nil
}

// AgentPaths returns the profile path and base directory for agent state.
// SITEPROOF_CONFIG wins; otherwise the user config directory is used.
func AgentPaths() (configPath, baseDir string, err error) {
	if p := os.Getenv(AgentConfigEnv); p != "" {
		return p, filepath.Dir(p), nil
	}
	dir, err := os.UserConfigDir()
	if err != nil {
		return "", "", fmt.Errorf("locating user config directory: %w", err)
	}
	baseDir = filepath.Join(dir, "siteproof")
	return filepath.Join(baseDir, "agent.toml"), baseDir, nil
}

func parseDurationOr(s string, def time.Duration) time.Duration {
	if s == "" {
		return def
	}
	d, err := time.ParseDuration(s)
	if err != nil || d <= 0 {
		return def
	}
	return d
}
