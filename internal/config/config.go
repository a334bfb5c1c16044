package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/andywolf/oracle/internal/classify"
	"github.com/andywolf/oracle/internal/generate"
	"github.com/andywolf/oracle/internal/persona"
	"github.com/andywolf/oracle/internal/social"
	"github.com/andywolf/oracle/internal/trends"
)

// Config represents the full oracle configuration
type Config struct {
	Persona    PersonaConfig    `mapstructure:"persona"`
	Relevance  RelevanceConfig  `mapstructure:"relevance"`
	Sources    SourcesConfig    `mapstructure:"sources"`
	Templates  TemplatesConfig  `mapstructure:"templates"`
	Autonomous AutonomousConfig `mapstructure:"autonomous"`
	Throttle   ThrottleConfig   `mapstructure:"throttle"`
	Trends     TrendsConfig     `mapstructure:"trends"`
	Platform   PlatformConfig   `mapstructure:"platform"`
	LLM        LLMConfig        `mapstructure:"llm"`
	Monitor    MonitorConfig    `mapstructure:"monitor"`
	State      StateConfig      `mapstructure:"state"`
	Activity   ActivityConfig   `mapstructure:"activity"`
	Logging    LoggingConfig    `mapstructure:"logging"`
	Langfuse   LangfuseConfig   `mapstructure:"langfuse"`
}

// PersonaConfig selects the persona definition
type PersonaConfig struct {
	Name   string `mapstructure:"name"`
	Handle string `mapstructure:"handle"`
	Dir    string `mapstructure:"dir"` // overrides the built-in manifest and templates
}

// RelevanceConfig holds the classifier rules, keyed by rule name
type RelevanceConfig struct {
	Rules map[string]classify.RuleConfig `mapstructure:"rules"`
}

// SourcesConfig lists what the monitor polls
type SourcesConfig struct {
	TrackedAccounts []string `mapstructure:"tracked_accounts"`
	Mentions        *bool    `mapstructure:"mentions"` // nil defaults to true
}

// TemplatesConfig maps decisions to persona template names
type TemplatesConfig struct {
	Reply      string            `mapstructure:"reply"`
	Autonomous string            `mapstructure:"autonomous"`
	Chat       string            `mapstructure:"chat"`
	Commands   map[string]string `mapstructure:"commands"` // command name without slash -> template
}

// AutonomousConfig contains the autonomous post gate settings
type AutonomousConfig struct {
	Disabled    bool          `mapstructure:"disabled"`
	Probability float64       `mapstructure:"probability"`
	MinInterval time.Duration `mapstructure:"min_interval"`
	DailyLimit  int           `mapstructure:"daily_limit"`
}

// ThrottleConfig bounds replies per author
type ThrottleConfig struct {
	RepliesPerAuthor int           `mapstructure:"replies_per_author"`
	Window           time.Duration `mapstructure:"window"`
}

// TrendsConfig contains the trend context settings
type TrendsConfig struct {
	Static      []string `mapstructure:"static"`
	WOEID       int      `mapstructure:"woeid"` // 0 disables platform trends
	RecentLimit int      `mapstructure:"recent_limit"`
	// RecentFrom is "activity" (local log) or "platform" (own timeline).
	RecentFrom string `mapstructure:"recent_from"`
}

// PlatformConfig contains social platform API settings
type PlatformConfig struct {
	BaseURL           string `mapstructure:"base_url"`
	BearerToken       string `mapstructure:"bearer_token"`
	BearerTokenSecret string `mapstructure:"bearer_token_secret"` // Secret Manager path
	MaxPages          int    `mapstructure:"max_pages"`
	DryRun            bool   `mapstructure:"dry_run"` // log instead of publishing
}

// LLMConfig contains generation backend settings
type LLMConfig struct {
	Models          []string      `mapstructure:"models"`
	APIKey          string        `mapstructure:"api_key"`
	APIKeySecret    string        `mapstructure:"api_key_secret"`
	Temperature     float32       `mapstructure:"temperature"`
	MaxOutputTokens int32         `mapstructure:"max_output_tokens"`
	Timeout         time.Duration `mapstructure:"timeout"`
}

// MonitorConfig contains monitoring loop settings
type MonitorConfig struct {
	Interval        time.Duration `mapstructure:"interval"`
	InitialLookback time.Duration `mapstructure:"initial_lookback"`
	Key             string        `mapstructure:"key"` // state row key for shared databases
}

// StateConfig selects the state store
type StateConfig struct {
	Path        string `mapstructure:"path"`
	DatabaseURL string `mapstructure:"database_url"` // when set, state lives in Postgres
}

// ActivityConfig contains activity log settings
type ActivityConfig struct {
	Path string `mapstructure:"path"`
}

// LoggingConfig contains structured logging settings
type LoggingConfig struct {
	Format     string `mapstructure:"format"`      // "text" or "json"
	GCPProject string `mapstructure:"gcp_project"` // enables the Cloud Logging client
	LogID      string `mapstructure:"log_id"`
}

// LangfuseConfig contains trace export settings
type LangfuseConfig struct {
	PublicKey       string `mapstructure:"public_key"`
	SecretKey       string `mapstructure:"secret_key"`
	PublicKeySecret string `mapstructure:"public_key_secret"`
	SecretKeySecret string `mapstructure:"secret_key_secret"`
	BaseURL         string `mapstructure:"base_url"`
}

// Defaults.
const (
	DefaultInterval         = 5 * time.Minute
	DefaultInitialLookback  = time.Hour
	DefaultProbability      = 0.1
	DefaultMinInterval      = time.Hour
	DefaultDailyLimit       = 6
	DefaultRepliesPerAuthor = 3
	DefaultThrottleWindow   = time.Hour
	DefaultStatePath        = ".oracle/state.json"
	DefaultActivityPath     = ".oracle/activity.jsonl"
)

// DefaultTrackedAccounts are the accounts the persona watches out of the box.
var DefaultTrackedAccounts = []string{"truth_terminal", "luna_virtuals", "dasha_terminal", "MirraMrr", "PraistSol"}

// Load loads configuration from file and environment
func Load() (*Config, error) {
	cfg := &Config{}

	if err := viper.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	applyDefaults(cfg)

	return cfg, nil
}

// applyDefaults sets default values for unset fields
func applyDefaults(cfg *Config) {
	if len(cfg.Relevance.Rules) == 0 {
		cfg.Relevance.Rules = classify.DefaultRules()
	}

	if cfg.Sources.TrackedAccounts == nil {
		cfg.Sources.TrackedAccounts = append([]string(nil), DefaultTrackedAccounts...)
	}
	if cfg.Sources.Mentions == nil {
		enabled := true
		cfg.Sources.Mentions = &enabled
	}

	if cfg.Templates.Reply == "" {
		cfg.Templates.Reply = persona.TemplateChat
	}
	if cfg.Templates.Autonomous == "" {
		cfg.Templates.Autonomous = persona.TemplateOraclePost
	}
	if cfg.Templates.Chat == "" {
		cfg.Templates.Chat = persona.TemplateChat
	}
	if len(cfg.Templates.Commands) == 0 {
		cfg.Templates.Commands = generate.DefaultCommands()
	} else {
		cfg.Templates.Commands = normalizeCommandKeys(cfg.Templates.Commands)
	}

	if cfg.Autonomous.Probability == 0 {
		cfg.Autonomous.Probability = DefaultProbability
	}
	if cfg.Autonomous.MinInterval == 0 {
		cfg.Autonomous.MinInterval = DefaultMinInterval
	}
	if cfg.Autonomous.DailyLimit == 0 {
		cfg.Autonomous.DailyLimit = DefaultDailyLimit
	}

	if cfg.Throttle.RepliesPerAuthor == 0 {
		cfg.Throttle.RepliesPerAuthor = DefaultRepliesPerAuthor
	}
	if cfg.Throttle.Window == 0 {
		cfg.Throttle.Window = DefaultThrottleWindow
	}

	if len(cfg.Trends.Static) == 0 {
		cfg.Trends.Static = append([]string(nil), trends.DefaultTrends...)
	}
	if cfg.Trends.RecentLimit == 0 {
		cfg.Trends.RecentLimit = trends.DefaultRecentLimit
	}
	if cfg.Trends.RecentFrom == "" {
		cfg.Trends.RecentFrom = "activity"
	}

	if cfg.Platform.BaseURL == "" {
		cfg.Platform.BaseURL = social.DefaultBaseURL
	}
	if cfg.Platform.MaxPages == 0 {
		cfg.Platform.MaxPages = social.DefaultMaxPages
	}

	if cfg.Monitor.Interval == 0 {
		cfg.Monitor.Interval = DefaultInterval
	}
	if cfg.Monitor.InitialLookback == 0 {
		cfg.Monitor.InitialLookback = DefaultInitialLookback
	}

	if cfg.State.Path == "" {
		cfg.State.Path = DefaultStatePath
	}
	if cfg.Activity.Path == "" {
		cfg.Activity.Path = DefaultActivityPath
	}

	if cfg.Logging.Format == "" {
		cfg.Logging.Format = "text"
	}
}

// normalizeCommandKeys lowercases command names and strips a leading slash.
func normalizeCommandKeys(in map[string]string) map[string]string {
	out := make(map[string]string, len(in))
	for k, v := range in {
		out[strings.ToLower(strings.TrimPrefix(strings.TrimSpace(k), "/"))] = v
	}
	return out
}

// MentionsEnabled reports whether the mention source is polled.
func (c *Config) MentionsEnabled() bool {
	return c.Sources.Mentions == nil || *c.Sources.Mentions
}

// Validate validates the configuration
func (c *Config) Validate() error {
	if c.Autonomous.Probability < 0 || c.Autonomous.Probability > 1 {
		return fmt.Errorf("autonomous.probability must be between 0 and 1, got %v", c.Autonomous.Probability)
	}
	if c.Autonomous.MinInterval < 0 {
		return fmt.Errorf("autonomous.min_interval must not be negative")
	}
	if c.Autonomous.DailyLimit < 0 {
		return fmt.Errorf("autonomous.daily_limit must not be negative")
	}

	if c.Throttle.RepliesPerAuthor < 0 {
		return fmt.Errorf("throttle.replies_per_author must not be negative")
	}

	if c.Monitor.Interval < 0 {
		return fmt.Errorf("monitor.interval must not be negative")
	}
	if c.Monitor.InitialLookback < 0 {
		return fmt.Errorf("monitor.initial_lookback must not be negative")
	}

	if c.Platform.MaxPages < 0 {
		return fmt.Errorf("platform.max_pages must not be negative")
	}

	for name, rule := range c.Relevance.Rules {
		switch rule.Kind {
		case classify.RuleAccount, classify.RuleKeyword:
		default:
			return fmt.Errorf("relevance rule %q: invalid kind %q (must be account or keyword)", name, rule.Kind)
		}
		if len(rule.Values) == 0 {
			return fmt.Errorf("relevance rule %q has no values", name)
		}
	}

	switch c.Trends.RecentFrom {
	case "", "activity", "platform":
	default:
		return fmt.Errorf("invalid trends.recent_from: %s (must be activity or platform)", c.Trends.RecentFrom)
	}

	switch c.Logging.Format {
	case "", "text", "json":
	default:
		return fmt.Errorf("invalid logging.format: %s (must be text or json)", c.Logging.Format)
	}

	if (c.Langfuse.PublicKey == "") != (c.Langfuse.SecretKey == "") {
		return fmt.Errorf("langfuse requires both public_key and secret_key")
	}

	return nil
}

// ValidateForMonitor performs additional validation required before the
// monitor or any publishing command runs.
func (c *Config) ValidateForMonitor() error {
	if err := c.Validate(); err != nil {
		return err
	}

	if strings.TrimSpace(c.Persona.Handle) == "" {
		return fmt.Errorf("persona.handle is required")
	}

	if !c.MentionsEnabled() && len(c.Sources.TrackedAccounts) == 0 {
		return fmt.Errorf("at least one source is required (enable mentions or add tracked_accounts)")
	}

	if c.Monitor.Interval == 0 {
		return fmt.Errorf("monitor.interval is required")
	}

	return nil
}

// PersonaTemplatesUsed lists every template name the configuration refers to.
func (c *Config) PersonaTemplatesUsed() []string {
	names := []string{c.Templates.Reply, c.Templates.Autonomous, c.Templates.Chat}
	for _, t := range c.Templates.Commands {
		names = append(names, t)
	}
	return names
}
