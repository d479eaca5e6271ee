// Package config loads the autopost configuration from a YAML file, with
// environment overrides for secrets.
package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	yaml "go.yaml.in/yaml/v3"
)

type Config struct {
	HTTP struct {
		Addr string `yaml:"addr"`
	} `yaml:"http"`

	Database struct {
		Driver string `yaml:"driver"` // sqlite | postgres
		DSN    string `yaml:"dsn"`
	} `yaml:"database"`

	Runner struct {
		Token       string `yaml:"token"`
		Interval    string `yaml:"interval"`
		CallTimeout string `yaml:"call_timeout"`
		RatePerSec  int    `yaml:"rate_per_sec"`
	} `yaml:"runner"`

	Generation struct {
		Gemini struct {
			APIKey string `yaml:"api_key"`
			Model  string `yaml:"model"`
		} `yaml:"gemini"`
		HuggingFace struct {
			APIKeys []string `yaml:"api_keys"`
			Model   string   `yaml:"model"`
		} `yaml:"huggingface"`
	} `yaml:"generation"`

	Publisher struct {
		Kind   string `yaml:"kind"` // bridge | telegram
		Bridge struct {
			URL string `yaml:"url"`
		} `yaml:"bridge"`
		Telegram struct {
			Token  string `yaml:"token"`
			ChatID int64  `yaml:"chat_id"`
		} `yaml:"telegram"`
	} `yaml:"publisher"`

	Logging struct {
		Level string `yaml:"level"`
		File  struct {
			Path       string `yaml:"path"`
			MaxSizeMB  int    `yaml:"max_size_mb"`
			MaxBackups int    `yaml:"max_backups"`
			MaxAgeDays int    `yaml:"max_age_days"`
		} `yaml:"file"`
	} `yaml:"logging"`
}

// maxHFKeys matches the HUGGINGFACE_API_KEY1..7 environment convention.
const maxHFKeys = 7

// Load reads path (optional: "" yields defaults), applies environment
// overrides and fills defaults. Validation is separate so callers can decide
// what is fatal.
func Load(path string) (*Config, error) {
	var cfg Config
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read config: %w", err)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return nil, fmt.Errorf("parse config: %w", err)
		}
	}
	cfg.applyEnv()
	cfg.applyDefaults()
	return &cfg, nil
}

func (c *Config) applyEnv() {
	if v := os.Getenv("RUNNER_TOKEN"); v != "" {
		c.Runner.Token = v
	}
	if v := os.Getenv("GEMINI_API_KEY"); v != "" {
		c.Generation.Gemini.APIKey = v
	}
	for i := 1; i <= maxHFKeys; i++ {
		if v := os.Getenv(fmt.Sprintf("HUGGINGFACE_API_KEY%d", i)); v != "" {
			c.Generation.HuggingFace.APIKeys = append(c.Generation.HuggingFace.APIKeys, v)
		}
	}
	if v := os.Getenv("TELEGRAM_BOT_TOKEN"); v != "" {
		c.Publisher.Telegram.Token = v
	}
}

func (c *Config) applyDefaults() {
	if c.HTTP.Addr == "" {
		c.HTTP.Addr = ":8080"
	}
	if c.Database.Driver == "" {
		c.Database.Driver = "sqlite"
	}
	if c.Database.Driver == "sqlite" && c.Database.DSN == "" {
		c.Database.DSN = "autopost.db"
	}
	if c.Runner.RatePerSec <= 0 {
		c.Runner.RatePerSec = 2
	}
	if c.Publisher.Kind == "" {
		c.Publisher.Kind = "bridge"
	}
	if c.Logging.Level == "" {
		c.Logging.Level = "info"
	}
}

// Interval returns the cycle interval, defaulting to one minute.
func (c *Config) Interval() (time.Duration, error) {
	return durationOrDefault("runner.interval", c.Runner.Interval, time.Minute)
}

// CallTimeout returns the per-call timeout, defaulting to 60s.
func (c *Config) CallTimeout() (time.Duration, error) {
	return durationOrDefault("runner.call_timeout", c.Runner.CallTimeout, 60*time.Second)
}

// Validate checks the settings required before any schedule is touched.
// Failures here are configuration errors and abort startup.
func (c *Config) Validate() error {
	if strings.TrimSpace(c.Runner.Token) == "" {
		return fmt.Errorf("runner token is required (runner.token or RUNNER_TOKEN)")
	}
	switch c.Database.Driver {
	case "sqlite":
	case "postgres":
		if c.Database.DSN == "" {
			return fmt.Errorf("database.dsn is required for postgres")
		}
	default:
		return fmt.Errorf("unknown database driver %q", c.Database.Driver)
	}
	switch c.Publisher.Kind {
	case "bridge":
		if c.Publisher.Bridge.URL == "" {
			return fmt.Errorf("publisher.bridge.url is required")
		}
	case "telegram":
		if strings.TrimSpace(c.Publisher.Telegram.Token) == "" {
			return fmt.Errorf("telegram token is required (publisher.telegram.token or TELEGRAM_BOT_TOKEN)")
		}
		if c.Publisher.Telegram.ChatID == 0 {
			return fmt.Errorf("publisher.telegram.chat_id is required")
		}
	default:
		return fmt.Errorf("unknown publisher kind %q", c.Publisher.Kind)
	}
	if _, err := c.Interval(); err != nil {
		return err
	}
	if _, err := c.CallTimeout(); err != nil {
		return err
	}
	return nil
}

func durationOrDefault(path, raw string, def time.Duration) (time.Duration, error) {
	s := strings.TrimSpace(raw)
	if s == "" {
		return def, nil
	}
	d, err := time.ParseDuration(s)
	if err != nil {
		return 0, fmt.Errorf("%s: invalid duration %q: %w", path, raw, err)
	}
	if d <= 0 {
		return def, nil
	}
	return d, nil
}
