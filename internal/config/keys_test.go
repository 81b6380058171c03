package config

import (
	"strings"
	"testing"
)

func TestGetAPIKey(t *testing.T) {
	t.Setenv("ANTHROPIC_API_KEY", "")

	if _, err := GetAPIKey(nil); err != ErrNoAPIKey {
		t.Errorf("nil config: expected ErrNoAPIKey, got %v", err)
	}

	cfg := Default()
	if _, err := GetAPIKey(cfg); err != ErrNoAPIKey {
		t.Errorf("empty config: expected ErrNoAPIKey, got %v", err)
	}

	cfg.Anthropic.APIKey = "sk-ant-fromconfig"
	key, err := GetAPIKey(cfg)
	if err != nil {
		t.Fatalf("GetAPIKey: %v", err)
	}
	if key != "sk-ant-fromconfig" {
		t.Errorf("expected config key, got %q", key)
	}

	t.Setenv("ANTHROPIC_API_KEY", "sk-ant-fromenv")
	key, err = GetAPIKey(cfg)
	if err != nil {
		t.Fatalf("GetAPIKey: %v", err)
	}
	if key != "sk-ant-fromenv" {
		t.Errorf("env should win over config, got %q", key)
	}
}

func TestValidateAPIKey(t *testing.T) {
	tests := []struct {
		key     string
		wantErr bool
	}{
		{"", true},
		{"not-a-key", true},
		{"sk-ant-short", true},
		{"sk-ant-REDACTED", false},
	}

	for _, tt := range tests {
		err := ValidateAPIKey(tt.key)
		if (err != nil) != tt.wantErr {
			t.Errorf("ValidateAPIKey(%q) error = %v, wantErr %v", tt.key, err, tt.wantErr)
		}
	}
}

func TestMaskAPIKey(t *testing.T) {
	if got := MaskAPIKey(""); got != "(not set)" {
		t.Errorf("empty key mask = %q", got)
	}

	masked := MaskAPIKey("sk-ant-REDACTED")
	if strings.Contains(masked, "abcdefghijkl") {
		t.Errorf("mask leaks key body: %q", masked)
	}
	if !strings.HasPrefix(masked, "sk-ant-") || !strings.HasSuffix(masked, "mnop") {
		t.Errorf("mask should keep prefix and last 4, got %q", masked)
	}

	short := MaskAPIKey("sk-ant-x")
	if strings.ContainsAny(short, "skantx-") {
		t.Errorf("short keys should be fully masked, got %q", short)
	}
}
