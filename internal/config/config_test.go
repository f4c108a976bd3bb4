package config_test

import (
	"os"
	"testing"
	"time"

	"github.com/rexsandbox/rex-runtime/internal/config"
)

func TestParse_Defaults(t *testing.T) {
	cfg, err := config.Parse(nil)
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if cfg.Host != "0.0.0.0" {
		t.Errorf("Host = %q, want %q", cfg.Host, "0.0.0.0")
	}
	if cfg.Port != 8880 {
		t.Errorf("Port = %d, want 8880", cfg.Port)
	}
	if cfg.PS1 != "SWE-REX-PS1>" {
		t.Errorf("PS1 = %q, want %q", cfg.PS1, "SWE-REX-PS1>")
	}
	if cfg.DefaultTimeout != 30*time.Second {
		t.Errorf("DefaultTimeout = %v, want 30s", cfg.DefaultTimeout)
	}
}

func TestParse_APIKeyFlagOverridesEnv(t *testing.T) {
	os.Setenv("SWE_REX_API_KEY", "env-token")
	defer os.Unsetenv("SWE_REX_API_KEY")

	cfg, err := config.Parse([]string{"--api-key", "flag-token"})
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if cfg.APIKey != "flag-token" {
		t.Errorf("APIKey = %q, want %q", cfg.APIKey, "flag-token")
	}
}

func TestParse_APIKeyFallsBackToEnv(t *testing.T) {
	os.Setenv("SWE_REX_API_KEY", "env-token")
	defer os.Unsetenv("SWE_REX_API_KEY")

	cfg, err := config.Parse(nil)
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if cfg.APIKey != "env-token" {
		t.Errorf("APIKey = %q, want %q", cfg.APIKey, "env-token")
	}
}

func TestParse_StartupSourcesSplitOnComma(t *testing.T) {
	cfg, err := config.Parse([]string{"--startup-source", "/a.sh, /b.sh"})
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if len(cfg.StartupSources) != 2 || cfg.StartupSources[0] != "/a.sh" || cfg.StartupSources[1] != "/b.sh" {
		t.Errorf("StartupSources = %v, want [/a.sh /b.sh]", cfg.StartupSources)
	}
}
