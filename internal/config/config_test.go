package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestDefault(t *testing.T) {
	cfg := Default()

	if cfg.Gateway.Port != 8000 {
		t.Errorf("Port = %d, want 8000", cfg.Gateway.Port)
	}
	if got := cfg.Engine.DedupTTLDuration(); got != 10*time.Minute {
		t.Errorf("DedupTTL = %v, want 10m", got)
	}
	if got := cfg.Engine.ActiveWindowDuration(); got != 120*time.Second {
		t.Errorf("ActiveWindow = %v, want 120s", got)
	}
	if got := cfg.Engine.MediationCooldownDuration(); got != 5*time.Minute {
		t.Errorf("MediationCooldown = %v, want 5m", got)
	}
	if cfg.Engine.MemoryTurns != 20 || cfg.Engine.MaxSegmentChars != 350 {
		t.Errorf("engine defaults wrong: %+v", cfg.Engine)
	}
}

func TestDuration(t *testing.T) {
	tests := []struct {
		in   string
		def  time.Duration
		want time.Duration
	}{
		{"", time.Minute, time.Minute},
		{"30s", time.Minute, 30 * time.Second},
		{"2h", time.Minute, 2 * time.Hour},
		{"garbage", time.Minute, time.Minute},
		{"-5s", time.Minute, time.Minute},
	}
	for _, tt := range tests {
		if got := Duration(tt.in, tt.def); got != tt.want {
			t.Errorf("Duration(%q) = %v, want %v", tt.in, got, tt.want)
		}
	}
}

func TestLoad_MissingFileUsesDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "absent.json5"))
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Gateway.Port != 8000 {
		t.Errorf("Port = %d, want default", cfg.Gateway.Port)
	}
}

func TestLoad_JSON5File(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.json5")
	body := `{
		// local overrides
		gateway: { port: 9001 },
		engine: { mediation_cooldown: "90s" },
	}`
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatal(err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Gateway.Port != 9001 {
		t.Errorf("Port = %d, want 9001", cfg.Gateway.Port)
	}
	if got := cfg.Engine.MediationCooldownDuration(); got != 90*time.Second {
		t.Errorf("MediationCooldown = %v, want 90s", got)
	}
	// Untouched sections keep defaults.
	if cfg.Engine.MemoryTurns != 20 {
		t.Errorf("MemoryTurns = %d, want default 20", cfg.Engine.MemoryTurns)
	}
}

func TestLoad_EnvOverrides(t *testing.T) {
	t.Setenv("DUET_GOOGLE_API_KEY", "genai-secret")
	t.Setenv("DUET_EVOLUTION_API_KEY", "evo-secret")
	t.Setenv("DUET_PORT", "9999")
	t.Setenv("DUET_MODEL_NAME", "gemini-2.0-flash")

	cfg, err := Load(filepath.Join(t.TempDir(), "absent.json5"))
	if err != nil {
		t.Fatal(err)
	}
	if cfg.GenAI.APIKey != "genai-secret" || cfg.Evolution.APIKey != "evo-secret" {
		t.Error("secrets not taken from environment")
	}
	if cfg.Gateway.Port != 9999 {
		t.Errorf("Port = %d, want 9999", cfg.Gateway.Port)
	}
	if cfg.GenAI.Model != "gemini-2.0-flash" {
		t.Errorf("Model = %q", cfg.GenAI.Model)
	}
}

func TestLoad_MalformedFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.json5")
	if err := os.WriteFile(path, []byte("{{{"), 0o644); err != nil {
		t.Fatal(err)
	}
	if _, err := Load(path); err == nil {
		t.Error("malformed config accepted")
	}
}

func TestExpandHome(t *testing.T) {
	home, err := os.UserHomeDir()
	if err != nil {
		t.Skip("no home dir")
	}

	if got := ExpandHome("~/.duet/duet.db"); got != filepath.Join(home, ".duet/duet.db") {
		t.Errorf("ExpandHome = %q", got)
	}
	if got := ExpandHome("/abs/path.db"); got != "/abs/path.db" {
		t.Errorf("absolute path changed: %q", got)
	}
}
