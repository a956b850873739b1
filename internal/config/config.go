package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/viper"
)

// Config holds application configuration.
type Config struct {
	Database DatabaseConfig
	Rules    RulesConfig
	Matching MatchingConfig
	Scoring  ScoringConfig
	Urgency  UrgencyConfig
	Pipeline PipelineConfig
	Log      LogConfig
}

// DatabaseConfig holds sqlite settings. An empty Migrations uses the
// migrations compiled into the binary.
type DatabaseConfig struct {
	Path       string
	Migrations string
}

// RulesConfig points at the bank pattern, template and account documents.
type RulesConfig struct {
	BankPatterns string `mapstructure:"bank_patterns"`
	Templates    string
	Accounts     string
}

// MatchingConfig tunes bank identification and template fallback.
type MatchingConfig struct {
	Fuzzy          bool
	FuzzyThreshold int    `mapstructure:"fuzzy_threshold"`
	FallbackBank   string `mapstructure:"fallback_bank"`
	CardFallback   bool   `mapstructure:"card_fallback"`
}

// ScoringConfig holds the warning counts that lower validation confidence.
type ScoringConfig struct {
	MediumWarnings int `mapstructure:"medium_warnings"`
	LowWarnings    int `mapstructure:"low_warnings"`
}

// UrgencyConfig holds the amounts that raise record urgency.
type UrgencyConfig struct {
	HighAmount         float64 `mapstructure:"high_amount"`
	CreditMediumAmount float64 `mapstructure:"credit_medium_amount"`
}

// PipelineConfig controls batch fan-out and duplicate handling.
type PipelineConfig struct {
	Workers         int
	DuplicatePolicy string `mapstructure:"duplicate_policy"`
}

// LogConfig selects the slog handler.
type LogConfig struct {
	Level  string
	Format string
}

// Load reads configuration from file and env. Env var overrides use prefix SMSLEDGER_.
func Load() (Config, error) {
	v := viper.New()

	home := os.Getenv("HOME")
	rules := filepath.Join(home, ".config", "smsledger")

	// default values
	v.SetDefault("database.path", filepath.Join(home, ".local", "share", "smsledger", "smsledger.db"))
	v.SetDefault("database.migrations", "")
	v.SetDefault("rules.bank_patterns", filepath.Join(rules, "bank_patterns.yaml"))
	v.SetDefault("rules.templates", filepath.Join(rules, "sms_templates.yaml"))
	v.SetDefault("rules.accounts", filepath.Join(rules, "accounts.yaml"))
	v.SetDefault("matching.fuzzy", true)
	v.SetDefault("matching.fuzzy_threshold", 80)
	v.SetDefault("matching.fallback_bank", "Generic_Bank")
	v.SetDefault("matching.card_fallback", true)
	v.SetDefault("scoring.medium_warnings", 1)
	v.SetDefault("scoring.low_warnings", 2)
	v.SetDefault("urgency.high_amount", 10000.0)
	v.SetDefault("urgency.credit_medium_amount", 5000.0)
	v.SetDefault("pipeline.workers", 0)
	v.SetDefault("pipeline.duplicate_policy", "skip")
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "text")

	v.SetConfigType("toml")

	cfgPath := os.Getenv("SMSLEDGER_CONFIG")
	if cfgPath != "" {
		v.SetConfigFile(cfgPath)
	} else {
		v.AddConfigPath(rules)
		v.SetConfigName("config")
	}

	v.SetEnvPrefix("SMSLEDGER")
	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	// read config file if present; a file that exists but does not parse is an error
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) && !errors.Is(err, fs.ErrNotExist) {
			return Config{}, fmt.Errorf("read config: %w", err)
		}
	}

	var c Config
	if err := v.Unmarshal(&c); err != nil {
		return Config{}, fmt.Errorf("unmarshal config: %w", err)
	}
	if err := c.validate(); err != nil {
		return Config{}, err
	}
	return c, nil
}

func (c Config) validate() error {
	switch c.Pipeline.DuplicatePolicy {
	case "skip", "upsert":
	default:
		return fmt.Errorf("pipeline.duplicate_policy: want skip or upsert, got %q", c.Pipeline.DuplicatePolicy)
	}
	if c.Matching.FuzzyThreshold < 0 || c.Matching.FuzzyThreshold > 100 {
		return fmt.Errorf("matching.fuzzy_threshold: %d out of range 0-100", c.Matching.FuzzyThreshold)
	}
	if c.Scoring.MediumWarnings > c.Scoring.LowWarnings {
		return fmt.Errorf("scoring: medium_warnings %d exceeds low_warnings %d", c.Scoring.MediumWarnings, c.Scoring.LowWarnings)
	}
	return nil
}
