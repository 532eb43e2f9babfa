package common

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestDefaultConfigIsValid(t *testing.T) {
	cfg := NewDefaultConfig()
	if err := cfg.Validate(); err != nil {
		t.Fatalf("default configuration must validate: %v", err)
	}
}

func TestValidateRejectsInvertedBudgets(t *testing.T) {
	cfg := NewDefaultConfig()
	cfg.Render.SoftBudget = 10 * time.Minute
	cfg.Render.HardBudget = 9 * time.Minute

	if err := cfg.Validate(); err == nil {
		t.Error("hard budget below soft budget must be rejected")
	}
}

func TestValidateRequiresCompletionHeadroom(t *testing.T) {
	cfg := NewDefaultConfig()
	cfg.Flow.CompletionTimeout = cfg.Render.HardBudget

	if err := cfg.Validate(); err == nil {
		t.Error("hard budget without completion headroom must be rejected")
	}
}

func TestLoadFromFileOverridesDefaults(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "veoflow.toml")
	content := `
environment = "production"

[server]
port = 9100
host = "0.0.0.0"

[flow]
nav_retries = 7
`
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatal(err)
	}

	cfg, err := LoadFromFile(path)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.Server.Port != 9100 {
		t.Errorf("port = %d, want 9100", cfg.Server.Port)
	}
	if cfg.Flow.NavRetries != 7 {
		t.Errorf("nav_retries = %d, want 7", cfg.Flow.NavRetries)
	}
	if !cfg.IsProduction() {
		t.Error("environment should be production")
	}
	// Untouched sections keep defaults
	if cfg.Flow.PollInterval != 2*time.Second {
		t.Errorf("poll_interval = %s, want 2s", cfg.Flow.PollInterval)
	}
}

func TestEnvOverrides(t *testing.T) {
	t.Setenv("VEOFLOW_SERVER_PORT", "9200")
	t.Setenv("VEOFLOW_BROWSER_HEADLESS", "false")

	cfg, err := LoadFromFile("")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.Server.Port != 9200 {
		t.Errorf("port = %d, want 9200", cfg.Server.Port)
	}
	if cfg.Browser.Headless {
		t.Error("headless should be overridden to false")
	}
}
