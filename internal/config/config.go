// Package config handles configuration loading for the chunkd daemon.
// It supports XDG config paths, project-level overrides, and environment
// variables.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config holds all configuration for chunkd.
type Config struct {
	Server     ServerConfig     `mapstructure:"server"`
	Scheduler  SchedulerConfig  `mapstructure:"scheduler"`
	Repo       RepoConfig       `mapstructure:"repo"`
	Agent      AgentConfig      `mapstructure:"agent"`
	Comparator ComparatorConfig `mapstructure:"comparator"`
	Anthropic  AnthropicConfig  `mapstructure:"anthropic"`
}

// ServerConfig holds HTTP API settings.
type ServerConfig struct {
	// Addr is the listen address for the HTTP API.
	Addr string `mapstructure:"addr"`
}

// SchedulerConfig holds dispatch loop settings. MaxAgents and
// DispatchInterval act as defaults and can be changed at runtime through
// the API.
type SchedulerConfig struct {
	MaxAgents        int           `mapstructure:"max_agents"`
	DispatchInterval time.Duration `mapstructure:"dispatch_interval"`
	GracePeriod      time.Duration `mapstructure:"grace_period"`
}

// RepoConfig holds the locations chunkd works against.
type RepoConfig struct {
	// Path is the root of the git repository agents work in.
	Path string `mapstructure:"path"`
	// BaseBranch is the branch worktrees branch from and merge back to.
	BaseBranch string `mapstructure:"base_branch"`
	// WorktreeDir is where per-chunk worktrees are created.
	WorktreeDir string `mapstructure:"worktree_dir"`
	// ChunksDir is the root of the chunk artifact documents.
	ChunksDir string `mapstructure:"chunks_dir"`
	// DBPath is the SQLite state database location.
	DBPath string `mapstructure:"db_path"`
}

// AgentConfig holds the agent executor settings.
type AgentConfig struct {
	// Command is the agent binary and its leading arguments. Phase flags
	// are appended per invocation.
	Command []string `mapstructure:"command"`
}

// ComparatorConfig selects and tunes the similarity comparator used for
// conflict analysis.
type ComparatorConfig struct {
	// Kind is "token" for the lexical comparator or "semantic" for the
	// model-backed one.
	Kind string `mapstructure:"kind"`
	// Model overrides the semantic comparator's model.
	Model string `mapstructure:"model"`
	// UseAWSBedrock routes semantic comparison through AWS Bedrock.
	UseAWSBedrock bool `mapstructure:"use_aws_bedrock"`
	// AWSRegion is the Bedrock region.
	AWSRegion string `mapstructure:"aws_region"`
	// AWSProfile is the AWS shared config profile to use.
	AWSProfile string `mapstructure:"aws_profile"`
}

// AnthropicConfig holds Anthropic API settings for the semantic comparator.
type AnthropicConfig struct {
	APIKey string `mapstructure:"api_key"`
}

// Load loads configuration from XDG paths, project overrides, and
// environment variables.
// Precedence (highest to lowest):
// 1. Environment variables (CHUNKD_*, ANTHROPIC_API_KEY)
// 2. Project config (.chunkd.yaml in current directory or parent)
// 3. User config (~/.config/chunkd/config.yaml)
// 4. Built-in defaults
func Load() (*Config, error) {
	v := viper.New()

	setDefaults(v)

	userConfigDir := getUserConfigDir()
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(userConfigDir)

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("reading user config: %w", err)
		}
	}

	projectConfig := findProjectConfig()
	if projectConfig != "" {
		projectViper := viper.New()
		projectViper.SetConfigFile(projectConfig)
		if err := projectViper.ReadInConfig(); err == nil {
			if err := v.MergeConfigMap(projectViper.AllSettings()); err != nil {
				return nil, fmt.Errorf("merging project config: %w", err)
			}
		}
	}

	v.SetEnvPrefix("CHUNKD")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	v.BindEnv("anthropic.api_key", "ANTHROPIC_API_KEY")

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("unmarshaling config: %w", err)
	}

	cfg.Anthropic.APIKey = os.ExpandEnv(cfg.Anthropic.APIKey)

	return cfg, nil
}

// LoadFromPath loads configuration from a specific file.
func LoadFromPath(path string) (*Config, error) {
	v := viper.New()

	setDefaults(v)

	v.SetConfigFile(path)
	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("reading config from %s: %w", path, err)
	}

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("unmarshaling config: %w", err)
	}

	cfg.Anthropic.APIKey = os.ExpandEnv(cfg.Anthropic.APIKey)

	return cfg, nil
}

// Validate checks the configuration for values the daemon cannot start with.
func (c *Config) Validate() error {
	if c.Server.Addr == "" {
		return fmt.Errorf("server.addr is required")
	}
	if c.Scheduler.MaxAgents < 1 {
		return fmt.Errorf("scheduler.max_agents must be at least 1")
	}
	if c.Scheduler.DispatchInterval <= 0 {
		return fmt.Errorf("scheduler.dispatch_interval must be positive")
	}
	if len(c.Agent.Command) == 0 {
		return fmt.Errorf("agent.command is required")
	}
	switch c.Comparator.Kind {
	case "token", "semantic":
	default:
		return fmt.Errorf("comparator.kind must be token or semantic, got %q", c.Comparator.Kind)
	}
	return nil
}

// Save writes the current configuration to the user config file.
func Save(cfg *Config) error {
	userConfigDir := getUserConfigDir()
	if err := os.MkdirAll(userConfigDir, 0700); err != nil {
		return fmt.Errorf("creating config directory: %w", err)
	}

	configPath := filepath.Join(userConfigDir, "config.yaml")

	v := viper.New()
	v.SetConfigFile(configPath)

	v.Set("server.addr", cfg.Server.Addr)
	v.Set("scheduler.max_agents", cfg.Scheduler.MaxAgents)
	v.Set("scheduler.dispatch_interval", cfg.Scheduler.DispatchInterval.String())
	v.Set("scheduler.grace_period", cfg.Scheduler.GracePeriod.String())
	v.Set("repo.path", cfg.Repo.Path)
	v.Set("repo.base_branch", cfg.Repo.BaseBranch)
	v.Set("repo.worktree_dir", cfg.Repo.WorktreeDir)
	v.Set("repo.chunks_dir", cfg.Repo.ChunksDir)
	v.Set("repo.db_path", cfg.Repo.DBPath)
	v.Set("agent.command", cfg.Agent.Command)
	v.Set("comparator.kind", cfg.Comparator.Kind)
	v.Set("comparator.model", cfg.Comparator.Model)
	v.Set("comparator.use_aws_bedrock", cfg.Comparator.UseAWSBedrock)
	v.Set("comparator.aws_region", cfg.Comparator.AWSRegion)
	v.Set("comparator.aws_profile", cfg.Comparator.AWSProfile)
	v.Set("anthropic.api_key", cfg.Anthropic.APIKey)

	return v.WriteConfig()
}

// GetUserConfigPath returns the path to the user config file.
func GetUserConfigPath() string {
	return filepath.Join(getUserConfigDir(), "config.yaml")
}

// GetProjectConfigPath returns the path to the project config file if it
// exists.
func GetProjectConfigPath() string {
	return findProjectConfig()
}

// setDefaults configures default values.
func setDefaults(v *viper.Viper) {
	v.SetDefault("server.addr", "127.0.0.1:8787")

	v.SetDefault("scheduler.max_agents", 4)
	v.SetDefault("scheduler.dispatch_interval", "5s")
	v.SetDefault("scheduler.grace_period", "30s")

	v.SetDefault("repo.path", ".")
	v.SetDefault("repo.base_branch", "main")
	v.SetDefault("repo.worktree_dir", ".chunkd/worktrees")
	v.SetDefault("repo.chunks_dir", "chunks")
	v.SetDefault("repo.db_path", ".chunkd/state.db")

	v.SetDefault("agent.command", []string{"chunk-agent"})

	v.SetDefault("comparator.kind", "token")
	v.SetDefault("comparator.model", "")
	v.SetDefault("comparator.use_aws_bedrock", false)
	v.SetDefault("comparator.aws_region", "")
	v.SetDefault("comparator.aws_profile", "")

	v.SetDefault("anthropic.api_key", "")
}

// getUserConfigDir returns the XDG config directory for chunkd.
func getUserConfigDir() string {
	if xdgConfig := os.Getenv("XDG_CONFIG_HOME"); xdgConfig != "" {
		return filepath.Join(xdgConfig, "chunkd")
	}

	home, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join(".", ".config", "chunkd")
	}
	return filepath.Join(home, ".config", "chunkd")
}

// findProjectConfig searches for .chunkd.yaml in the current directory and
// parents.
func findProjectConfig() string {
	cwd, err := os.Getwd()
	if err != nil {
		return ""
	}

	for {
		configPath := filepath.Join(cwd, ".chunkd.yaml")
		if _, err := os.Stat(configPath); err == nil {
			return configPath
		}

		parent := filepath.Dir(cwd)
		if parent == cwd {
			break
		}
		cwd = parent
	}

	return ""
}

// Default returns a Config with default values.
func Default() *Config {
	return &Config{
		Server: ServerConfig{
			Addr: "127.0.0.1:8787",
		},
		Scheduler: SchedulerConfig{
			MaxAgents:        4,
			DispatchInterval: 5 * time.Second,
			GracePeriod:      30 * time.Second,
		},
		Repo: RepoConfig{
			Path:        ".",
			BaseBranch:  "main",
			WorktreeDir: ".chunkd/worktrees",
			ChunksDir:   "chunks",
			DBPath:      ".chunkd/state.db",
		},
		Agent: AgentConfig{
			Command: []string{"chunk-agent"},
		},
		Comparator: ComparatorConfig{
			Kind: "token",
		},
	}
}
