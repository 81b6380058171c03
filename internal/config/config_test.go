package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestDefault(t *testing.T) {
	cfg := Default()

	if cfg.Server.Addr != "127.0.0.1:8787" {
		t.Errorf("expected default addr '127.0.0.1:8787', got %q", cfg.Server.Addr)
	}

	if cfg.Scheduler.MaxAgents != 4 {
		t.Errorf("expected default max_agents 4, got %d", cfg.Scheduler.MaxAgents)
	}

	if cfg.Scheduler.DispatchInterval != 5*time.Second {
		t.Errorf("expected dispatch interval 5s, got %v", cfg.Scheduler.DispatchInterval)
	}

	if cfg.Scheduler.GracePeriod != 30*time.Second {
		t.Errorf("expected grace period 30s, got %v", cfg.Scheduler.GracePeriod)
	}

	if cfg.Repo.BaseBranch != "main" {
		t.Errorf("expected base branch 'main', got %q", cfg.Repo.BaseBranch)
	}

	if cfg.Comparator.Kind != "token" {
		t.Errorf("expected comparator kind 'token', got %q", cfg.Comparator.Kind)
	}

	if err := cfg.Validate(); err != nil {
		t.Errorf("default config should validate, got %v", err)
	}
}

func TestLoadFromPath(t *testing.T) {
	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "config.yaml")

	content := `
server:
  addr: "0.0.0.0:9000"
scheduler:
  max_agents: 2
  dispatch_interval: 10s
repo:
  base_branch: trunk
  chunks_dir: work/chunks
agent:
  command: ["my-agent", "--verbose"]
comparator:
  kind: semantic
  use_aws_bedrock: true
  aws_region: us-west-2
`
	if err := os.WriteFile(configPath, []byte(content), 0644); err != nil {
		t.Fatalf("writing config: %v", err)
	}

	cfg, err := LoadFromPath(configPath)
	if err != nil {
		t.Fatalf("LoadFromPath: %v", err)
	}

	if cfg.Server.Addr != "0.0.0.0:9000" {
		t.Errorf("expected addr '0.0.0.0:9000', got %q", cfg.Server.Addr)
	}
	if cfg.Scheduler.MaxAgents != 2 {
		t.Errorf("expected max_agents 2, got %d", cfg.Scheduler.MaxAgents)
	}
	if cfg.Scheduler.DispatchInterval != 10*time.Second {
		t.Errorf("expected dispatch interval 10s, got %v", cfg.Scheduler.DispatchInterval)
	}
	if cfg.Repo.BaseBranch != "trunk" {
		t.Errorf("expected base branch 'trunk', got %q", cfg.Repo.BaseBranch)
	}
	if cfg.Repo.ChunksDir != "work/chunks" {
		t.Errorf("expected chunks dir 'work/chunks', got %q", cfg.Repo.ChunksDir)
	}
	if len(cfg.Agent.Command) != 2 || cfg.Agent.Command[0] != "my-agent" {
		t.Errorf("expected agent command ['my-agent', '--verbose'], got %v", cfg.Agent.Command)
	}
	if cfg.Comparator.Kind != "semantic" || !cfg.Comparator.UseAWSBedrock {
		t.Errorf("expected semantic bedrock comparator, got %+v", cfg.Comparator)
	}

	// Unset keys keep their defaults.
	if cfg.Scheduler.GracePeriod != 30*time.Second {
		t.Errorf("expected default grace period 30s, got %v", cfg.Scheduler.GracePeriod)
	}
	if cfg.Repo.DBPath != ".chunkd/state.db" {
		t.Errorf("expected default db path, got %q", cfg.Repo.DBPath)
	}
}

func TestLoadFromPathMissing(t *testing.T) {
	if _, err := LoadFromPath(filepath.Join(t.TempDir(), "nope.yaml")); err == nil {
		t.Error("expected error for missing config file")
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr bool
	}{
		{"default is valid", func(*Config) {}, false},
		{"empty addr", func(c *Config) { c.Server.Addr = "" }, true},
		{"zero max agents", func(c *Config) { c.Scheduler.MaxAgents = 0 }, true},
		{"negative interval", func(c *Config) { c.Scheduler.DispatchInterval = -time.Second }, true},
		{"no agent command", func(c *Config) { c.Agent.Command = nil }, true},
		{"bogus comparator", func(c *Config) { c.Comparator.Kind = "quantum" }, true},
		{"semantic comparator", func(c *Config) { c.Comparator.Kind = "semantic" }, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(cfg)
			err := cfg.Validate()
			if (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestExpandEnvInAPIKey(t *testing.T) {
	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "config.yaml")
	content := "anthropic:\n  api_key: ${CHUNKD_TEST_KEY}\n"
	if err := os.WriteFile(configPath, []byte(content), 0644); err != nil {
		t.Fatalf("writing config: %v", err)
	}

	t.Setenv("CHUNKD_TEST_KEY", "sk-ant-test123")
	cfg, err := LoadFromPath(configPath)
	if err != nil {
		t.Fatalf("LoadFromPath: %v", err)
	}
	if cfg.Anthropic.APIKey != "sk-ant-test123" {
		t.Errorf("expected expanded key, got %q", cfg.Anthropic.APIKey)
	}
}
