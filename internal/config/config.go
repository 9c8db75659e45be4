package config

import (
	"fmt"
	"os"
	"strings"
	"time"
	_ "time/tzdata" // timezone lookups must not depend on the host zoneinfo

	"gopkg.in/yaml.v3"

	"github.com/thermocert/thermocert/pkg/types"
)

// Default values applied when fields are absent from the config file.
const (
	DefaultHTTPPort          = 8080
	DefaultBroadcastInterval = 5 * time.Second
	DefaultMaxUploadBytes    = 32 << 20
	DefaultWorkers           = 4
	DefaultTimezone          = "UTC"
)

// Regulatory limits used when the config file does not override them.
const (
	DefaultStabilityLimit  = 1.0   // °C
	DefaultUniformityLimit = 2.0   // °C
	DefaultMinLethality    = 15.0  // minutes
	DefaultReferenceTemp   = 121.1 // °C
	DefaultZValue          = 10.0  // °C
	DefaultLethalityFloor  = 100.0 // °C
)

// Config is the top-level configuration. Fields map 1:1 to config.example.yaml.
type Config struct {
	Engine EngineConfig `yaml:"engine"`
	Limits Limits       `yaml:"limits"`
	Server ServerConfig `yaml:"server"`
}

// EngineConfig controls how raw exports are normalized.
type EngineConfig struct {
	// Category is the test category applied to ingested files:
	// uniformity | sterilization (aliases chamber | autoclave).
	Category string `yaml:"category"`

	// Timezone is the IANA zone used for grid timestamps that carry no offset.
	Timezone string `yaml:"timezone"`

	// LegacyZeroFill replaces unparsable sensor cells with 0 instead of
	// treating them as missing. Issued certificates were produced with this on.
	LegacyZeroFill bool `yaml:"legacy_zero_fill"`

	// Workers bounds how many files of one batch are normalized in parallel.
	Workers int `yaml:"workers"`

	// Markers are the header cells that identify the real header row of a grid.
	Markers Markers `yaml:"markers"`
}

// Markers lists the header cell values recognized in tabular exports.
// Index, Time and Date are matched exactly after trimming and lower-casing;
// ChannelPrefixes are matched as prefixes; a one-letter prefix only matches
// when digits follow it, so "s" accepts "S1" but not "status".
type Markers struct {
	Index           []string `yaml:"index"`
	Time            []string `yaml:"time"`
	ChannelPrefixes []string `yaml:"channel_prefixes"`

	// Date is optional. Loggers that split the date and the clock time into
	// two columns are read by joining the date cell onto the time cell.
	Date []string `yaml:"date"`
}

// Location resolves Timezone, defaulting to UTC.
func (e EngineConfig) Location() (*time.Location, error) {
	if e.Timezone == "" {
		return time.UTC, nil
	}
	loc, err := time.LoadLocation(e.Timezone)
	if err != nil {
		return nil, fmt.Errorf("engine.timezone: %w", err)
	}
	return loc, nil
}

// TestCategory parses Category.
func (e EngineConfig) TestCategory() (types.Category, error) {
	return types.ParseCategory(e.Category)
}

// Limits are the acceptance thresholds and lethality constants of one
// regulatory regime.
type Limits struct {
	// Stability is the maximum allowed max-min of a single sensor over time.
	Stability float64 `yaml:"stability"`

	// Uniformity is the maximum allowed max-min across sensors at one instant.
	Uniformity float64 `yaml:"uniformity"`

	// MinLethality is the minimum F0, in minutes, every sensor must reach.
	MinLethality float64 `yaml:"min_lethality"`

	// ReferenceTemp and ZValue parameterize the lethal rate
	// 10^((T - ReferenceTemp) / ZValue).
	ReferenceTemp float64 `yaml:"reference_temp"`
	ZValue        float64 `yaml:"z_value"`

	// LethalityFloor is the temperature below which no lethality accrues.
	LethalityFloor float64 `yaml:"lethality_floor"`
}

// DefaultLimits returns the limits of the default regime.
func DefaultLimits() Limits {
	return Limits{
		Stability:      DefaultStabilityLimit,
		Uniformity:     DefaultUniformityLimit,
		MinLethality:   DefaultMinLethality,
		ReferenceTemp:  DefaultReferenceTemp,
		ZValue:         DefaultZValue,
		LethalityFloor: DefaultLethalityFloor,
	}
}

// ServerConfig holds all settings of the `serve` command.
type ServerConfig struct {
	// HTTPPort is the port the REST API and WebSocket hub listen on.
	HTTPPort int `yaml:"http_port"`

	// ResultTTL is how long a result stays in memory after its last update.
	// Zero keeps results until restart.
	ResultTTL time.Duration `yaml:"result_ttl"`

	// BroadcastInterval is how often connected UIs receive the result list.
	BroadcastInterval time.Duration `yaml:"broadcast_interval"`

	// MaxUploadBytes caps the request body of an upload.
	MaxUploadBytes int64 `yaml:"max_upload_bytes"`

	// Storage configures optional persistence of results.
	Storage StorageConfig `yaml:"storage"`

	// Auth protects the /api/ routes.
	Auth AuthConfig `yaml:"auth"`

	// Alerts holds operator notification rules and webhook targets.
	Alerts AlertsConfig `yaml:"alerts"`
}

// AuthConfig controls API key authentication of the REST API.
type AuthConfig struct {
	// Mode is one of: apikey | none.
	Mode string `yaml:"mode"`

	// KeyEnv is the name of the environment variable that holds the expected API key.
	KeyEnv string `yaml:"key_env"`

	// Header is the HTTP header to read the key from. Defaults to "X-API-Key".
	Header string `yaml:"header"`
}

// Key returns the expected API key resolved from the environment.
func (a AuthConfig) Key() string {
	if a.KeyEnv == "" {
		return ""
	}
	return os.Getenv(a.KeyEnv)
}

// EffectiveHeader returns the configured header name, or the default "X-API-Key".
func (a AuthConfig) EffectiveHeader() string {
	if a.Header != "" {
		return a.Header
	}
	return "X-API-Key"
}

// StorageConfig configures the result persistence backend.
type StorageConfig struct {
	// Backend selects the implementation: memory | sqlite.
	Backend string `yaml:"backend"`

	// Path is the filesystem path for the SQLite database file.
	Path string `yaml:"path"`

	// Retention is how long persisted results are kept. Zero keeps them forever.
	Retention time.Duration `yaml:"retention"`
}

// AlertsConfig holds all alerting rules and webhook targets.
type AlertsConfig struct {
	Rules    []AlertRule     `yaml:"rules"`
	Webhooks []WebhookConfig `yaml:"webhooks"`
}

// AlertRule defines a threshold-based operator notification.
type AlertRule struct {
	// Name is the human-readable rule identifier, used as the deduplication key.
	Name string `yaml:"name"`

	// Condition is an expression like "dropped_rows > 10" or
	// "status == Non-Compliant".
	Condition string `yaml:"condition"`

	// Severity is one of: critical | warning | info.
	Severity string `yaml:"severity"`

	// Cooldown suppresses re-fires for this duration after an alert fires.
	Cooldown time.Duration `yaml:"cooldown"`
}

// WebhookConfig defines one webhook delivery target.
type WebhookConfig struct {
	// Type is one of: teams | slack | http.
	Type string `yaml:"type"`

	// URLEnv is the name of the environment variable holding the webhook URL.
	URLEnv string `yaml:"url_env"`
}

// URL returns the webhook URL resolved from the environment.
func (w WebhookConfig) URL() string {
	if w.URLEnv == "" {
		return ""
	}
	return os.Getenv(w.URLEnv)
}

// Load reads and parses the YAML config file at path.
// Missing optional fields are filled with defaults.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config: read file: %w", err)
	}
	return Parse(data)
}

// Parse decodes YAML bytes on top of the defaults and validates the result.
func Parse(data []byte) (*Config, error) {
	cfg := Default()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("config: parse yaml: %w", err)
	}
	if err := validate(cfg); err != nil {
		return nil, fmt.Errorf("config: %w", err)
	}
	return cfg, nil
}

// Default returns a Config pre-populated with default values. It is what the
// CLI runs with when no config file is given.
func Default() *Config {
	return &Config{
		Engine: EngineConfig{
			Category:       string(types.CategoryUniformity),
			Timezone:       DefaultTimezone,
			LegacyZeroFill: true,
			Workers:        DefaultWorkers,
			Markers: Markers{
				Index:           []string{"index", "indice", "índice", "idx", "#", "nº", "n°"},
				Time:            []string{"time", "date/time", "datetime", "timestamp", "date time", "data/hora", "hora", "tempo"},
				ChannelPrefixes: []string{"ch", "channel", "canal", "sensor", "s", "t"},
				Date:            []string{"date", "data"},
			},
		},
		Limits: DefaultLimits(),
		Server: ServerConfig{
			HTTPPort:          DefaultHTTPPort,
			BroadcastInterval: DefaultBroadcastInterval,
			MaxUploadBytes:    DefaultMaxUploadBytes,
			Storage:           StorageConfig{Backend: "memory"},
			Auth:              AuthConfig{Mode: "none"},
		},
	}
}

// validate checks required fields and structural constraints.
func validate(cfg *Config) error {
	if _, err := cfg.Engine.TestCategory(); err != nil {
		return fmt.Errorf("engine.category: %w", err)
	}
	if _, err := cfg.Engine.Location(); err != nil {
		return err
	}
	if cfg.Engine.Workers <= 0 {
		return fmt.Errorf("engine.workers must be positive")
	}
	m := cfg.Engine.Markers
	if len(nonEmpty(m.Index)) == 0 || len(nonEmpty(m.Time)) == 0 || len(nonEmpty(m.ChannelPrefixes)) == 0 {
		return fmt.Errorf("engine.markers: index, time and channel_prefixes must each list at least one marker")
	}

	l := cfg.Limits
	if l.Stability <= 0 || l.Uniformity <= 0 {
		return fmt.Errorf("limits.stability and limits.uniformity must be positive")
	}
	if l.MinLethality < 0 {
		return fmt.Errorf("limits.min_lethality must not be negative")
	}
	if l.ZValue <= 0 {
		return fmt.Errorf("limits.z_value must be positive")
	}

	s := cfg.Server
	if s.HTTPPort <= 0 || s.HTTPPort > 65535 {
		return fmt.Errorf("server.http_port %d is out of range [1, 65535]", s.HTTPPort)
	}
	if s.ResultTTL < 0 {
		return fmt.Errorf("server.result_ttl must not be negative")
	}
	if s.BroadcastInterval <= 0 {
		return fmt.Errorf("server.broadcast_interval must be positive")
	}
	if s.MaxUploadBytes <= 0 {
		return fmt.Errorf("server.max_upload_bytes must be positive")
	}
	switch s.Storage.Backend {
	case "memory", "":
	case "sqlite":
		if s.Storage.Path == "" {
			return fmt.Errorf("server.storage.path is required for the sqlite backend")
		}
	default:
		return fmt.Errorf("server.storage.backend %q unknown: want memory|sqlite", s.Storage.Backend)
	}
	switch s.Auth.Mode {
	case "none", "":
	case "apikey":
		if s.Auth.KeyEnv == "" {
			return fmt.Errorf("server.auth.key_env is required when server.auth.mode is apikey")
		}
	default:
		return fmt.Errorf("server.auth.mode %q unknown: want none|apikey", s.Auth.Mode)
	}
	for i, r := range s.Alerts.Rules {
		if r.Name == "" {
			return fmt.Errorf("server.alerts.rules[%d]: name is required", i)
		}
		if len(strings.Fields(r.Condition)) != 3 {
			return fmt.Errorf("server.alerts.rules[%d] %q: condition must be \"field op value\"", i, r.Name)
		}
	}
	for i, w := range s.Alerts.Webhooks {
		switch w.Type {
		case "teams", "slack", "http":
		default:
			return fmt.Errorf("server.alerts.webhooks[%d]: unknown type %q", i, w.Type)
		}
	}
	return nil
}

func nonEmpty(ss []string) []string {
	var out []string
	for _, s := range ss {
		if strings.TrimSpace(s) != "" {
			out = append(out, s)
		}
	}
	return out
}
