// Copyright 2024-2026 Aiku AI

package relay

import (
	_ "embed"
	"encoding/json"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
	"github.com/mitchellh/mapstructure"
	"github.com/rs/zerolog"
	"go.mau.fi/util/ptr"
	"go.mau.fi/zeroconfig"
	"gopkg.in/yaml.v3"
)

//go:embed example-config.yaml
var ExampleConfig string

// Config is the process configuration, loaded from a YAML file and
// overlaid with environment variables.
type Config struct {
	Logging  zeroconfig.Config `yaml:"logging"`
	Telegram TelegramConfig    `yaml:"telegram"`
	Ledger   LedgerConfig      `yaml:"ledger"`
	Relay    RelayConfig       `yaml:"relay"`
	Admin    AdminConfig       `yaml:"admin"`
}

type TelegramConfig struct {
	APIID         int    `yaml:"api_id"`
	APIHash       string `yaml:"api_hash"`
	SessionString string `yaml:"session_string"`
	SessionFile   string `yaml:"session_file"`
}

type LedgerConfig struct {
	Path          string `yaml:"path"`
	RetentionDays int    `yaml:"retention_days"`
	PruneSchedule string `yaml:"prune_schedule"`
}

type RelayConfig struct {
	RateLimitDelay       int          `yaml:"rate_limit_delay"`
	ReplacementImage     string       `yaml:"replacement_image"`
	ReplaceCaptionedOnly bool         `yaml:"replace_captioned_only"`
	AlwaysReplaceMedia   bool         `yaml:"always_replace_media"`
	Rules                []RuleConfig `yaml:"rules"`
}

type AdminConfig struct {
	ListenAddr string `yaml:"listen_addr"`
}

// RuleConfig is one (source, destination) forwarding binding. Filters
// accepts either a comma-separated string or a list in both YAML and the
// RELAY_RULES JSON environment variable.
type RuleConfig struct {
	Source         string     `yaml:"source" mapstructure:"source"`
	Destination    string     `yaml:"destination" mapstructure:"destination"`
	FilterMode     string     `yaml:"filter_mode" mapstructure:"filter_mode"`
	Filters        StringList `yaml:"filters" mapstructure:"filters"`
	RateLimitDelay int        `yaml:"rate_limit_delay" mapstructure:"rate_limit_delay"`
}

// Filter modes selectable per rule.
const (
	FilterModeTransform = "transform"
	FilterModeKeywords  = "keywords"
)

// StringList unmarshals from either a YAML scalar (split on commas) or a
// sequence.
type StringList []string

func (s *StringList) UnmarshalYAML(node *yaml.Node) error {
	switch node.Kind {
	case yaml.ScalarNode:
		var raw string
		if err := node.Decode(&raw); err != nil {
			return err
		}
		*s = splitCommaList(raw)
		return nil
	default:
		var raw []string
		if err := node.Decode(&raw); err != nil {
			return err
		}
		*s = raw
		return nil
	}
}

func splitCommaList(raw string) []string {
	if strings.TrimSpace(raw) == "" {
		return nil
	}
	parts := strings.Split(raw, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

// DefaultConfig returns the documented defaults.
func DefaultConfig() *Config {
	return &Config{
		Logging: zeroconfig.Config{
			MinLevel: ptr.Ptr(zerolog.InfoLevel),
			Writers: []zeroconfig.WriterConfig{{
				Type:   zeroconfig.WriterTypeStdout,
				Format: zeroconfig.LogFormatPrettyColored,
			}},
		},
		Telegram: TelegramConfig{
			SessionFile: "session.json",
		},
		Ledger: LedgerConfig{
			Path:          "forwarded_messages.db",
			RetentionDays: 30,
			PruneSchedule: "0 4 * * *",
		},
		Relay: RelayConfig{
			RateLimitDelay:       3,
			ReplacementImage:     "replacement_image.png",
			ReplaceCaptionedOnly: true,
		},
		Admin: AdminConfig{
			ListenAddr: ":29330",
		},
	}
}

// LoadConfig reads the YAML file at path (missing file is not an error)
// and applies environment variable overrides. A .env file in the working
// directory is honored.
func LoadConfig(path string) (*Config, error) {
	_ = godotenv.Load()

	cfg := DefaultConfig()
	if path != "" {
		data, err := os.ReadFile(path)
		switch {
		case err == nil:
			if err := yaml.Unmarshal(data, cfg); err != nil {
				return nil, fmt.Errorf("failed to parse config %s: %w", path, err)
			}
		case os.IsNotExist(err):
			// Env-only configuration is fine.
		default:
			return nil, fmt.Errorf("failed to read config %s: %w", path, err)
		}
	}
	if err := cfg.applyEnv(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// applyEnv overlays environment variables. Both TELEGRAM_-prefixed and
// bare variants are accepted for the credentials.
func (c *Config) applyEnv() error {
	if v := envFirst("TELEGRAM_API_ID", "API_ID"); v != "" {
		id, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("invalid API ID %q: %w", v, err)
		}
		c.Telegram.APIID = id
	}
	if v := envFirst("TELEGRAM_API_HASH", "API_HASH"); v != "" {
		c.Telegram.APIHash = v
	}
	if v := os.Getenv("SESSION_STRING"); v != "" {
		c.Telegram.SessionString = v
	}
	if v := os.Getenv("DB_FILE"); v != "" {
		c.Ledger.Path = v
	}
	if v := os.Getenv("ADMIN_LISTEN_ADDR"); v != "" {
		c.Admin.ListenAddr = v
	}
	if v := os.Getenv("RATE_LIMIT_DELAY"); v != "" {
		delay, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("invalid RATE_LIMIT_DELAY %q: %w", v, err)
		}
		c.Relay.RateLimitDelay = delay
	}

	// Single-rule shorthand, as used by container deployments.
	src, dst := os.Getenv("SOURCE_CHANNEL"), os.Getenv("DESTINATION_CHANNEL")
	if src != "" && dst != "" {
		rule := RuleConfig{Source: src, Destination: dst}
		if filters := os.Getenv("TEXT_FILTERS"); filters != "" {
			rule.Filters = parseFilterList(filters)
		}
		c.Relay.Rules = []RuleConfig{rule}
	}

	if raw := os.Getenv("RELAY_RULES"); raw != "" {
		rules, err := decodeRulesJSON(raw)
		if err != nil {
			return fmt.Errorf("invalid RELAY_RULES: %w", err)
		}
		c.Relay.Rules = rules
	}
	return nil
}

// parseFilterList accepts either a JSON array or a comma-separated list.
func parseFilterList(raw string) StringList {
	var list []string
	if err := json.Unmarshal([]byte(raw), &list); err == nil {
		return list
	}
	return splitCommaList(raw)
}

// decodeRulesJSON decodes a JSON array of rule objects. mapstructure
// handles the string-or-list filters field.
func decodeRulesJSON(raw string) ([]RuleConfig, error) {
	var generic []map[string]any
	if err := json.Unmarshal([]byte(raw), &generic); err != nil {
		return nil, err
	}
	var rules []RuleConfig
	dec, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		DecodeHook: mapstructure.StringToSliceHookFunc(","),
		Result:     &rules,
	})
	if err != nil {
		return nil, err
	}
	if err := dec.Decode(generic); err != nil {
		return nil, err
	}
	return rules, nil
}

func envFirst(keys ...string) string {
	for _, k := range keys {
		if v := os.Getenv(k); v != "" {
			return v
		}
	}
	return ""
}

// Validate checks required fields and per-rule sanity.
func (c *Config) Validate() error {
	if c.Telegram.APIID == 0 || c.Telegram.APIHash == "" {
		return fmt.Errorf("telegram api_id and api_hash are required")
	}
	if len(c.Relay.Rules) == 0 {
		return fmt.Errorf("at least one forwarding rule is required")
	}
	for i, rule := range c.Relay.Rules {
		if rule.Source == "" || rule.Destination == "" {
			return fmt.Errorf("rule %d: source and destination are required", i)
		}
		switch rule.FilterMode {
		case "", FilterModeTransform, FilterModeKeywords:
		default:
			return fmt.Errorf("rule %d: unknown filter_mode %q", i, rule.FilterMode)
		}
	}
	return nil
}

// RuleDelay returns the effective rate-limit delay for a rule, falling
// back to the global default.
func (c *Config) RuleDelay(rule RuleConfig) int {
	if rule.RateLimitDelay > 0 {
		return rule.RateLimitDelay
	}
	return c.Relay.RateLimitDelay
}
