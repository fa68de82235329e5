// File: internal/config/config.go
package config

import (
	"errors"
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

type RuntimeConfig struct {
	Dev bool
}

type ServerConfig struct {
	Port int `yaml:"port"`
	// Workers is the size of the background flow worker pool.
	Workers int `yaml:"workers"`
	// QueueSize bounds the number of flow jobs waiting for a worker.
	QueueSize int `yaml:"queue_size"`
}

type LogConfig struct {
	Level    string `yaml:"level"`    // trace|debug|info|warn|error
	Format   string `yaml:"format"`   // json|console
	Sampling bool   `yaml:"sampling"` // enable sampling in prod
}

type DatabaseConfig struct {
	URL string `yaml:"url"`
}

type RedisConfig struct {
	URL      string `yaml:"url"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
}

type AIConfig struct {
	OpenAIKey     string `yaml:"openai_key"`
	OpenAIBaseURL string `yaml:"openai_base_url"`
	GeminiKey     string `yaml:"gemini_key"`
	GeminiURL     string `yaml:"gemini_url"`
	DefaultModel  string `yaml:"default_model"`
	// Timeout caps a single completion call.
	Timeout time.Duration `yaml:"timeout"`
}

type FlowConfig struct {
	// JobTTL is how long finished job records stay readable.
	JobTTL time.Duration `yaml:"job_ttl"`
	// PollInterval is the stream presenter's progress polling period.
	PollInterval time.Duration `yaml:"poll_interval"`
	// SegmentDelay is the inter-segment delay producing the typing effect.
	SegmentDelay time.Duration `yaml:"segment_delay"`
}

type AuthConfig struct {
	// HMACSecret signs and verifies user bearer tokens.
	HMACSecret string `yaml:"hmac_secret"`
}

type Config struct {
	Server   ServerConfig   `yaml:"server"`
	Log      LogConfig      `yaml:"log"`
	Database DatabaseConfig `yaml:"database"`
	Redis    RedisConfig    `yaml:"redis"`
	AI       AIConfig       `yaml:"ai"`
	Flow     FlowConfig     `yaml:"flow"`
	Auth     AuthConfig     `yaml:"auth"`

	Runtime RuntimeConfig `yaml:"-"`
}

func LoadConfig(path string, dev bool) (*Config, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}
	var cfg Config
	if err := yaml.Unmarshal(b, &cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}
	// defaults
	if cfg.Server.Port == 0 {
		cfg.Server.Port = 8000
	}
	if cfg.Server.Workers <= 0 {
		cfg.Server.Workers = 8
	}
	if cfg.Server.QueueSize <= 0 {
		cfg.Server.QueueSize = 64
	}
	if cfg.Log.Level == "" {
		cfg.Log.Level = "info"
	}
	if cfg.Log.Format == "" {
		cfg.Log.Format = "json"
	}
	if cfg.AI.DefaultModel == "" {
		cfg.AI.DefaultModel = "gpt-4o-mini"
	}
	if cfg.AI.Timeout <= 0 {
		cfg.AI.Timeout = 120 * time.Second
	}
	if cfg.Flow.JobTTL <= 0 {
		cfg.Flow.JobTTL = 7 * 24 * time.Hour
	}
	if cfg.Flow.PollInterval <= 0 {
		cfg.Flow.PollInterval = 500 * time.Millisecond
	}
	if cfg.Flow.SegmentDelay <= 0 {
		cfg.Flow.SegmentDelay = 50 * time.Millisecond
	}

	// Minimal validation
	if cfg.Database.URL == "" {
		return nil, errors.New("database.url is required")
	}
	if cfg.Redis.URL == "" {
		return nil, errors.New("redis.url is required")
	}
	if !dev && cfg.AI.OpenAIKey == "" && cfg.AI.GeminiKey == "" {
		return nil, errors.New("ai.openai_key or ai.gemini_key is required")
	}

	cfg.Runtime.Dev = dev
	return &cfg, nil
}
