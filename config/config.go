// Package config loads application configuration from YAML with
// environment overrides.
package config

import (
	"fmt"
	"os"
	"strconv"

	"github.com/robfig/cron/v3"
	"gopkg.in/yaml.v3"
)

// Config holds all application configuration.
type Config struct {
	TelegramToken      string `yaml:"telegram_token"`
	ChatID             int64  `yaml:"chat_id"`
	OpenAIAPIKey       string `yaml:"openai_api_key"`
	OpenAIModel        string `yaml:"openai_model"`
	StatePath          string `yaml:"state_path"`
	RequestTimeoutSecs int    `yaml:"request_timeout_secs"`
	TwitterAPIKey      string `yaml:"twitter_api_key"`
	PollUserName       string `yaml:"poll_username"`
	PollSchedule       string `yaml:"poll_schedule"`
	LogLevel           string `yaml:"log_level"`
}

// Load reads configuration from a YAML file and applies defaults and
// environment overrides.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config file: %w", err)
	}

	cfg := &Config{}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse config yaml: %w", err)
	}

	applyDefaults(cfg)
	applyEnvironmentOverrides(cfg)

	if err := validate(cfg); err != nil {
		return nil, fmt.Errorf("validate config: %w", err)
	}

	return cfg, nil
}

// GetConfigPath returns the config file path from environment or default.
func GetConfigPath() string {
	if path := os.Getenv("TWEET_NOTIFIER_CONFIG"); path != "" {
		return path
	}
	return "./config.yaml"
}

func applyDefaults(cfg *Config) {
	if cfg.OpenAIModel == "" {
		cfg.OpenAIModel = "gpt-4o"
	}
	if cfg.StatePath == "" {
		cfg.StatePath = "./processed_tweets.json"
	}
	if cfg.RequestTimeoutSecs == 0 {
		cfg.RequestTimeoutSecs = 30
	}
	if cfg.LogLevel == "" {
		cfg.LogLevel = "info"
	}
}

func applyEnvironmentOverrides(cfg *Config) {
	if token := os.Getenv("TELEGRAM_NOTIFICATION_BOT_TOKEN"); token != "" {
		cfg.TelegramToken = token
	}
	if chatID := os.Getenv("TELEGRAM_NOTIFICATION_CHAT_ID"); chatID != "" {
		if id, err := strconv.ParseInt(chatID, 10, 64); err == nil {
			cfg.ChatID = id
		}
	}
	if key := os.Getenv("OPENAI_API_KEY"); key != "" {
		cfg.OpenAIAPIKey = key
	}
	if key := os.Getenv("TWITTER_API_KEY"); key != "" {
		cfg.TwitterAPIKey = key
	}
	if path := os.Getenv("TWEET_NOTIFIER_STATE"); path != "" {
		cfg.StatePath = path
	}
}

func validate(cfg *Config) error {
	if cfg.TelegramToken == "" {
		return fmt.Errorf("telegram_token is required")
	}
	if cfg.ChatID == 0 {
		return fmt.Errorf("chat_id is required")
	}
	if cfg.OpenAIAPIKey == "" {
		return fmt.Errorf("openai_api_key is required")
	}
	if cfg.PollSchedule != "" {
		if _, err := cron.ParseStandard(cfg.PollSchedule); err != nil {
			return fmt.Errorf("invalid poll_schedule %q: %w", cfg.PollSchedule, err)
		}
		if cfg.PollUserName == "" {
			return fmt.Errorf("poll_username is required when poll_schedule is set")
		}
		if cfg.TwitterAPIKey == "" {
			return fmt.Errorf("twitter_api_key is required when poll_schedule is set")
		}
	}
	return nil
}
