package main

import (
	"testing"
	"time"

	"github.com/ShayCichocki/chunkd/internal/config"
)

func TestGetConfigValue(t *testing.T) {
	cfg := config.Default()

	tests := []struct {
		key  string
		want string
	}{
		{"server.addr", "127.0.0.1:8787"},
		{"scheduler.max_agents", "4"},
		{"scheduler.dispatch_interval", "5s"},
		{"repo.base_branch", "main"},
		{"comparator.kind", "token"},
		{"anthropic.api_key", "(not set)"},
	}

	for _, tt := range tests {
		got, err := getConfigValue(cfg, tt.key)
		if err != nil {
			t.Errorf("getConfigValue(%q): %v", tt.key, err)
			continue
		}
		if got != tt.want {
			t.Errorf("getConfigValue(%q) = %q, want %q", tt.key, got, tt.want)
		}
	}

	if _, err := getConfigValue(cfg, "bogus.key"); err == nil {
		t.Error("expected error for unknown key")
	}
}

func TestSetConfigValue(t *testing.T) {
	cfg := config.Default()

	if err := setConfigValue(cfg, "scheduler.max_agents", "8"); err != nil {
		t.Fatalf("set max_agents: %v", err)
	}
	if cfg.Scheduler.MaxAgents != 8 {
		t.Errorf("max_agents = %d, want 8", cfg.Scheduler.MaxAgents)
	}

	if err := setConfigValue(cfg, "scheduler.dispatch_interval", "250ms"); err != nil {
		t.Fatalf("set dispatch_interval: %v", err)
	}
	if cfg.Scheduler.DispatchInterval != 250*time.Millisecond {
		t.Errorf("dispatch_interval = %v, want 250ms", cfg.Scheduler.DispatchInterval)
	}

	if err := setConfigValue(cfg, "agent.command", "my-agent --fast"); err != nil {
		t.Fatalf("set agent.command: %v", err)
	}
	if len(cfg.Agent.Command) != 2 || cfg.Agent.Command[1] != "--fast" {
		t.Errorf("agent.command = %v", cfg.Agent.Command)
	}

	for _, bad := range []struct{ key, value string }{
		{"scheduler.max_agents", "zero"},
		{"scheduler.max_agents", "0"},
		{"scheduler.dispatch_interval", "sometimes"},
		{"comparator.kind", "quantum"},
		{"comparator.use_aws_bedrock", "maybe"},
		{"anthropic.api_key", "not-a-key"},
		{"bogus.key", "x"},
	} {
		if err := setConfigValue(cfg, bad.key, bad.value); err == nil {
			t.Errorf("setConfigValue(%q, %q): expected error", bad.key, bad.value)
		}
	}
}
