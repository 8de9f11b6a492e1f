// Package config holds the Duet gateway configuration: JSON5 file on disk,
// defaults in code, secrets from environment variables only.
package config

import (
	"time"
)

// Config is the root configuration for the Duet gateway.
type Config struct {
	Gateway   GatewayConfig   `json:"gateway"`
	Evolution EvolutionConfig `json:"evolution"`
	GenAI     GenAIConfig     `json:"genai"`
	Engine    EngineConfig    `json:"engine"`
	Store     StoreConfig     `json:"store,omitempty"`
	Telemetry TelemetryConfig `json:"telemetry,omitempty"`
}

// GatewayConfig configures the inbound webhook HTTP server.
type GatewayConfig struct {
	Host          string `json:"host"`
	Port          int    `json:"port"`
	WebhookSecret string `json:"-"` // from env DUET_WEBHOOK_SECRET only, never persisted
	RateLimitRPM  int    `json:"rate_limit_rpm,omitempty"` // per-IP webhook rate limit
	ShutdownGrace string `json:"shutdown_grace,omitempty"` // Go duration, grace for in-flight dispatches
}

// EvolutionConfig configures the Evolution API delivery client.
type EvolutionConfig struct {
	BaseURL  string `json:"base_url"`
	Instance string `json:"instance"`
	APIKey   string `json:"-"` // from env DUET_EVOLUTION_API_KEY only
	Timeout  string `json:"timeout,omitempty"`
}

// GenAIConfig configures the Google AI Studio generation client.
type GenAIConfig struct {
	APIKey          string  `json:"-"` // from env DUET_GOOGLE_API_KEY only
	Model           string  `json:"model,omitempty"`
	MaxOutputTokens int     `json:"max_output_tokens,omitempty"`
	Temperature     float64 `json:"temperature,omitempty"`
	Timeout         string  `json:"timeout,omitempty"`
}

// EngineConfig tunes the decision engine: dedup, memory, trigger window,
// mediation cooldown, and outbound pacing.
type EngineConfig struct {
	DedupTTL          string `json:"dedup_ttl,omitempty"`           // default "10m"
	DedupMaxEntries   int    `json:"dedup_max_entries,omitempty"`   // default 5000
	MemoryTurns       int    `json:"memory_turns,omitempty"`        // ring buffer capacity, default 20
	MemoryTTL         string `json:"memory_ttl,omitempty"`          // idle session TTL, default "1h"
	ActiveWindow      string `json:"active_window,omitempty"`       // group continuation window, default "120s"
	MediationCooldown string `json:"mediation_cooldown,omitempty"`  // default "5m"
	MaxSegmentChars   int    `json:"max_segment_chars,omitempty"`   // sentence-split threshold, default 350
}

// StoreConfig configures the sqlite store for couples and mediation state.
type StoreConfig struct {
	Path string `json:"path,omitempty"` // default "~/.duet/duet.db"
}

// TelemetryConfig configures OpenTelemetry OTLP trace export.
type TelemetryConfig struct {
	Enabled     bool              `json:"enabled,omitempty"`
	Endpoint    string            `json:"endpoint,omitempty"`     // e.g. "localhost:4318"
	Insecure    bool              `json:"insecure,omitempty"`     // plain HTTP for local dev
	ServiceName string            `json:"service_name,omitempty"` // default "duet-gateway"
	Headers     map[string]string `json:"headers,omitempty"`      // auth tokens for cloud backends
}

// Duration parses a Go duration string, falling back to def when the field
// is empty or malformed.
func Duration(s string, def time.Duration) time.Duration {
	if s == "" {
		return def
	}
	d, err := time.ParseDuration(s)
	if err != nil || d <= 0 {
		return def
	}
	return d
}

// DedupTTL returns the parsed dedup TTL.
func (e EngineConfig) DedupTTLDuration() time.Duration {
	return Duration(e.DedupTTL, 10*time.Minute)
}

// MemoryTTLDuration returns the parsed idle-session TTL.
func (e EngineConfig) MemoryTTLDuration() time.Duration {
	return Duration(e.MemoryTTL, time.Hour)
}

// ActiveWindowDuration returns the parsed group continuation window.
func (e EngineConfig) ActiveWindowDuration() time.Duration {
	return Duration(e.ActiveWindow, 120*time.Second)
}

// MediationCooldownDuration returns the parsed mediation cooldown.
func (e EngineConfig) MediationCooldownDuration() time.Duration {
	return Duration(e.MediationCooldown, 5*time.Minute)
}

// ShutdownGraceDuration returns the parsed shutdown grace period.
func (g GatewayConfig) ShutdownGraceDuration() time.Duration {
	return Duration(g.ShutdownGrace, 2*time.Second)
}
