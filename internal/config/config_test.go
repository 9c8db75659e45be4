package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/thermocert/thermocert/pkg/types"
)

func TestLoad_Valid(t *testing.T) {
	yaml := `
engine:
  category: autoclave
  timezone: America/Sao_Paulo
  legacy_zero_fill: false
  workers: 2
limits:
  stability: 0.5
  uniformity: 1.5
  min_lethality: 12
server:
  http_port: 9090
  result_ttl: 1h
  storage:
    backend: sqlite
    path: /tmp/results.db
`
	cfg := loadFromString(t, yaml)

	cat, err := cfg.Engine.TestCategory()
	if err != nil || cat != types.CategorySterilization {
		t.Errorf("category: got %q, %v", cat, err)
	}
	loc, err := cfg.Engine.Location()
	if err != nil || loc.String() != "America/Sao_Paulo" {
		t.Errorf("location: got %v, %v", loc, err)
	}
	if cfg.Engine.LegacyZeroFill {
		t.Error("legacy_zero_fill: got true, want false")
	}
	if cfg.Engine.Workers != 2 {
		t.Errorf("workers: got %d", cfg.Engine.Workers)
	}
	if cfg.Limits.Stability != 0.5 || cfg.Limits.Uniformity != 1.5 || cfg.Limits.MinLethality != 12 {
		t.Errorf("limits: got %+v", cfg.Limits)
	}
	// Limits not named in the file keep their defaults.
	if cfg.Limits.ReferenceTemp != DefaultReferenceTemp || cfg.Limits.ZValue != DefaultZValue {
		t.Errorf("lethality constants: got %+v", cfg.Limits)
	}
	if cfg.Server.HTTPPort != 9090 {
		t.Errorf("http_port: got %d", cfg.Server.HTTPPort)
	}
	if cfg.Server.ResultTTL != time.Hour {
		t.Errorf("result_ttl: got %v", cfg.Server.ResultTTL)
	}
	if cfg.Server.Storage.Backend != "sqlite" || cfg.Server.Storage.Path != "/tmp/results.db" {
		t.Errorf("storage: got %+v", cfg.Server.Storage)
	}
}

func TestLoad_Defaults(t *testing.T) {
	cfg := loadFromString(t, "{}\n")

	if cfg.Limits != DefaultLimits() {
		t.Errorf("limits: got %+v, want %+v", cfg.Limits, DefaultLimits())
	}
	if !cfg.Engine.LegacyZeroFill {
		t.Error("legacy_zero_fill should default to true")
	}
	if cfg.Engine.Workers != DefaultWorkers {
		t.Errorf("workers: got %d, want %d", cfg.Engine.Workers, DefaultWorkers)
	}
	if cfg.Server.HTTPPort != DefaultHTTPPort {
		t.Errorf("http_port: got %d, want %d", cfg.Server.HTTPPort, DefaultHTTPPort)
	}
	if cfg.Server.BroadcastInterval != DefaultBroadcastInterval {
		t.Errorf("broadcast_interval: got %v", cfg.Server.BroadcastInterval)
	}
	if cfg.Server.ResultTTL != 0 {
		t.Errorf("result_ttl: got %v, want 0", cfg.Server.ResultTTL)
	}
	if cfg.Server.Auth.Mode != "none" {
		t.Errorf("auth mode: got %q, want none", cfg.Server.Auth.Mode)
	}
	loc, err := cfg.Engine.Location()
	if err != nil || loc != time.UTC {
		t.Errorf("location: got %v, %v", loc, err)
	}
}

func TestLoad_MarkersReplaceDefaults(t *testing.T) {
	yaml := `
engine:
  markers:
    index: [nr]
    time: [zeit]
    channel_prefixes: [kanal]
`
	cfg := loadFromString(t, yaml)
	m := cfg.Engine.Markers
	if len(m.Index) != 1 || m.Index[0] != "nr" {
		t.Errorf("index markers: got %v", m.Index)
	}
	if len(m.Time) != 1 || m.Time[0] != "zeit" {
		t.Errorf("time markers: got %v", m.Time)
	}
	if len(m.ChannelPrefixes) != 1 || m.ChannelPrefixes[0] != "kanal" {
		t.Errorf("channel prefixes: got %v", m.ChannelPrefixes)
	}
}

func TestLoad_Invalid(t *testing.T) {
	tests := []struct {
		name    string
		yaml    string
		wantErr string
	}{
		{"unknown category", "engine:\n  category: fridge\n", "engine.category"},
		{"bad timezone", "engine:\n  timezone: Mars/Olympus\n", "engine.timezone"},
		{"zero workers", "engine:\n  workers: 0\n", "engine.workers"},
		{"empty markers", "engine:\n  markers:\n    time: []\n", "engine.markers"},
		{"zero stability", "limits:\n  stability: 0\n", "limits.stability"},
		{"negative lethality", "limits:\n  min_lethality: -1\n", "limits.min_lethality"},
		{"zero z", "limits:\n  z_value: 0\n", "limits.z_value"},
		{"port out of range", "server:\n  http_port: 70000\n", "server.http_port"},
		{"sqlite without path", "server:\n  storage:\n    backend: sqlite\n", "server.storage.path"},
		{"unknown backend", "server:\n  storage:\n    backend: redis\n", "server.storage.backend"},
		{"rule without name", "server:\n  alerts:\n    rules:\n      - condition: uniformity > 2\n", "name is required"},
		{"malformed condition", "server:\n  alerts:\n    rules:\n      - name: r\n        condition: uniformity>2\n", "field op value"},
		{"unknown auth mode", "server:\n  auth:\n    mode: mtls\n", "server.auth.mode"},
		{"apikey without env", "server:\n  auth:\n    mode: apikey\n", "server.auth.key_env"},
		{"unknown webhook", "server:\n  alerts:\n    webhooks:\n      - type: pager\n", "unknown type"},
		{"bad yaml", "engine: [", "parse yaml"},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			_, err := loadStringErr(t, tc.yaml)
			if err == nil {
				t.Fatal("expected error, got nil")
			}
			if !strings.Contains(err.Error(), tc.wantErr) {
				t.Errorf("error %q does not mention %q", err, tc.wantErr)
			}
		})
	}
}

func TestLoad_MissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "absent.yaml"))
	if err == nil {
		t.Fatal("expected error for missing file")
	}
}

func TestWebhookConfig_URL(t *testing.T) {
	t.Setenv("SLACK_URL", "https://hooks.slack.example.com/abc")
	w := WebhookConfig{Type: "slack", URLEnv: "SLACK_URL"}
	if got := w.URL(); got != "https://hooks.slack.example.com/abc" {
		t.Errorf("URL(): got %q", got)
	}
	if got := (WebhookConfig{Type: "http"}).URL(); got != "" {
		t.Errorf("URL() without env: got %q", got)
	}
}

// loadFromString writes yaml to a temp file and calls Load, failing on error.
func loadFromString(t *testing.T, content string) *Config {
	t.Helper()
	cfg, err := loadStringErr(t, content)
	if err != nil {
		t.Fatalf("Load() unexpected error: %v", err)
	}
	return cfg
}

// loadStringErr writes yaml to a temp file and calls Load, returning any error.
func loadStringErr(t *testing.T, content string) (*Config, error) {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatalf("write temp config: %v", err)
	}
	return Load(path)
}

func TestLoad_ExampleFile(t *testing.T) {
	cfg, err := Load("../../config.example.yaml")
	if err != nil {
		t.Fatalf("Load example: %v", err)
	}
	if cfg.Engine.Timezone != "America/Sao_Paulo" {
		t.Errorf("timezone: got %q", cfg.Engine.Timezone)
	}
	if got := cfg.Engine.Markers.Index; len(got) != 7 || got[4] != "#" {
		t.Errorf("index markers: got %v", got)
	}
	if got, want := cfg.Engine.Markers.ChannelPrefixes, Default().Engine.Markers.ChannelPrefixes; strings.Join(got, ",") != strings.Join(want, ",") {
		t.Errorf("channel prefixes: got %v, want defaults %v", got, want)
	}
	if cfg.Server.Storage.Backend != "sqlite" || cfg.Server.Storage.Retention != 2160*time.Hour {
		t.Errorf("storage: got %+v", cfg.Server.Storage)
	}
	if len(cfg.Server.Alerts.Rules) != 4 || len(cfg.Server.Alerts.Webhooks) != 2 {
		t.Errorf("alerts: %d rules, %d webhooks", len(cfg.Server.Alerts.Rules), len(cfg.Server.Alerts.Webhooks))
	}
	if cfg.Server.Auth.Mode != "apikey" || cfg.Server.Auth.KeyEnv != "THERMOCERT_API_KEY" {
		t.Errorf("auth: got %+v", cfg.Server.Auth)
	}
}

func TestAuthConfig(t *testing.T) {
	t.Setenv("TC_API_KEY", "s3cret")
	a := AuthConfig{Mode: "apikey", KeyEnv: "TC_API_KEY"}
	if a.Key() != "s3cret" {
		t.Errorf("Key: got %q", a.Key())
	}
	if a.EffectiveHeader() != "X-API-Key" {
		t.Errorf("EffectiveHeader: got %q", a.EffectiveHeader())
	}
	a.Header = "Authorization-Key"
	if a.EffectiveHeader() != "Authorization-Key" {
		t.Errorf("custom header: got %q", a.EffectiveHeader())
	}
	if (AuthConfig{}).Key() != "" {
		t.Error("Key without key_env should be empty")
	}
}
