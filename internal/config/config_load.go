package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/titanous/json5"
)

// Default returns a Config with sensible defaults for a single-instance bot.
func Default() *Config {
	return &Config{
		Gateway: GatewayConfig{
			Host:          "0.0.0.0",
			Port:          8000,
			RateLimitRPM:  60,
			ShutdownGrace: "2s",
		},
		Evolution: EvolutionConfig{
			BaseURL:  "http://evolution-api:8080",
			Instance: "casal_bot",
			Timeout:  "30s",
		},
		GenAI: GenAIConfig{
			Model:           "gemini-1.5-flash",
			MaxOutputTokens: 800,
			Temperature:     0.6,
			Timeout:         "60s",
		},
		Engine: EngineConfig{
			DedupTTL:          "10m",
			DedupMaxEntries:   5000,
			MemoryTurns:       20,
			MemoryTTL:         "1h",
			ActiveWindow:      "120s",
			MediationCooldown: "5m",
			MaxSegmentChars:   350,
		},
		Store: StoreConfig{
			Path: "~/.duet/duet.db",
		},
		Telemetry: TelemetryConfig{
			ServiceName: "duet-gateway",
		},
	}
}

// Load reads config from a JSON5 file, then overlays env vars.
// A missing file is not an error: defaults + env apply.
func Load(path string) (*Config, error) {
	cfg := Default()

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			cfg.applyEnvOverrides()
			return cfg, nil
		}
		return nil, fmt.Errorf("read config: %w", err)
	}

	if err := json5.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}

	cfg.applyEnvOverrides()
	return cfg, nil
}

// applyEnvOverrides overlays env vars onto the config.
// Env vars take precedence over file values; secrets come from env only.
func (c *Config) applyEnvOverrides() {
	envStr := func(key string, dst *string) {
		if v := os.Getenv(key); v != "" {
			*dst = v
		}
	}

	// Secrets (never read from the config file)
	envStr("DUET_EVOLUTION_API_KEY", &c.Evolution.APIKey)
	envStr("DUET_GOOGLE_API_KEY", &c.GenAI.APIKey)
	envStr("DUET_WEBHOOK_SECRET", &c.Gateway.WebhookSecret)

	envStr("DUET_EVOLUTION_URL", &c.Evolution.BaseURL)
	envStr("DUET_INSTANCE_NAME", &c.Evolution.Instance)
	envStr("DUET_MODEL_NAME", &c.GenAI.Model)
	envStr("DUET_STORE_PATH", &c.Store.Path)

	envStr("DUET_HOST", &c.Gateway.Host)
	if v := os.Getenv("DUET_PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil && port > 0 {
			c.Gateway.Port = port
		}
	}

	// Telemetry
	envStr("DUET_TELEMETRY_ENDPOINT", &c.Telemetry.Endpoint)
	envStr("DUET_TELEMETRY_SERVICE_NAME", &c.Telemetry.ServiceName)
	if v := os.Getenv("DUET_TELEMETRY_ENABLED"); v != "" {
		c.Telemetry.Enabled = v == "true" || v == "1"
	}
	if v := os.Getenv("DUET_TELEMETRY_INSECURE"); v != "" {
		c.Telemetry.Insecure = v == "true" || v == "1"
	}
}

// ExpandHome expands a leading "~" to the user's home directory.
func ExpandHome(path string) string {
	if !strings.HasPrefix(path, "~") {
		return path
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return path
	}
	return filepath.Join(home, strings.TrimPrefix(path, "~"))
}
