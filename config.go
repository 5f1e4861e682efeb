package main

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Settings are the runtime tunables. Defaults match the reference behavior;
// a YAML file can override any of them.
type Settings struct {
	PollIntervalSeconds int    `yaml:"poll_interval_seconds"`
	StartupDelaySeconds int    `yaml:"startup_delay_seconds"`
	FetchTimeoutSeconds int    `yaml:"fetch_timeout_seconds"`
	SendDelayMs         int    `yaml:"send_delay_ms"`
	FeedDelaySeconds    int    `yaml:"feed_delay_seconds"`
	FailureThreshold    int    `yaml:"failure_threshold"`
	MaxItemsPerCheck    int    `yaml:"max_items_per_check"`
	MaxTitleLength      int    `yaml:"max_title_length"`
	MaxGroupTitleLength int    `yaml:"max_group_title_length"`
	NewsURL             string `yaml:"news_url"`
	NewsTitle           string `yaml:"news_title"`
	UserAgent           string `yaml:"user_agent"`
	CacheSize           int    `yaml:"cache_size"`
	CacheTTLMinutes     int    `yaml:"cache_ttl_minutes"`

	Log LogSettings `yaml:"log"`
}

type LogSettings struct {
	Level string `yaml:"level"`
	File  string `yaml:"file"`
}

func DefaultSettings() *Settings {
	return &Settings{
		PollIntervalSeconds: 300,
		StartupDelaySeconds: 20,
		FetchTimeoutSeconds: 30,
		SendDelayMs:         1500,
		FeedDelaySeconds:    2,
		FailureThreshold:    3,
		MaxItemsPerCheck:    15,
		MaxTitleLength:      50,
		MaxGroupTitleLength: 100,
		NewsURL:             "https://www.livechart.me/feeds/headlines",
		NewsTitle:           "LiveChart.me",
		UserAgent:           "Mozilla/5.0 (Macintosh; Intel Mac OS X 10_15_4) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/83.0.4103.97 Safari/537.36",
		CacheSize:           256,
		CacheTTLMinutes:     30,
	}
}

// LoadSettings returns the defaults overlaid with the YAML file at path.
// An empty path means defaults only.
func LoadSettings(path string) (*Settings, error) {
	settings := DefaultSettings()
	if path == "" {
		return settings, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read settings: %w", err)
	}
	if err := yaml.Unmarshal(data, settings); err != nil {
		return nil, fmt.Errorf("parse settings: %w", err)
	}
	if err := settings.validate(); err != nil {
		return nil, err
	}
	return settings, nil
}

func (s *Settings) validate() error {
	if s.PollIntervalSeconds <= 0 {
		return fmt.Errorf("poll_interval_seconds must be positive")
	}
	if s.FetchTimeoutSeconds <= 0 {
		return fmt.Errorf("fetch_timeout_seconds must be positive")
	}
	if s.FailureThreshold <= 0 {
		return fmt.Errorf("failure_threshold must be positive")
	}
	if s.MaxItemsPerCheck <= 0 {
		return fmt.Errorf("max_items_per_check must be positive")
	}
	if s.NewsURL == "" {
		return fmt.Errorf("news_url must not be empty")
	}
	if s.CacheSize <= 0 {
		return fmt.Errorf("cache_size must be positive")
	}
	return nil
}

func (s *Settings) PollInterval() time.Duration {
	return time.Duration(s.PollIntervalSeconds) * time.Second
}

func (s *Settings) StartupDelay() time.Duration {
	return time.Duration(s.StartupDelaySeconds) * time.Second
}

func (s *Settings) FetchTimeout() time.Duration {
	return time.Duration(s.FetchTimeoutSeconds) * time.Second
}

func (s *Settings) SendDelay() time.Duration {
	return time.Duration(s.SendDelayMs) * time.Millisecond
}

func (s *Settings) FeedDelay() time.Duration {
	return time.Duration(s.FeedDelaySeconds) * time.Second
}

func (s *Settings) CacheTTL() time.Duration {
	return time.Duration(s.CacheTTLMinutes) * time.Minute
}
