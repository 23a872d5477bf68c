// File: internal/config/config.go
package config

import (
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
	URL      string        `yaml:"url"`
	Password string        `yaml:"password"`
	DB       int           `yaml:"db"`
	LockTTL  time.Duration `yaml:"lock_ttl"`
}

type AuthConfig struct {
	HMACSecret string `yaml:"hmac_secret"`
}

type WorkflowConfig struct {
	BaseURL string        `yaml:"base_url"`
	APIKey  string        `yaml:"api_key"`
	Timeout time.Duration `yaml:"timeout"`
}

// GenerationConfig holds per-type completion-time estimates. The values are
// hints returned to clients, not a contract.
type GenerationConfig struct {
	SubGoalEstimate time.Duration `yaml:"subgoal_estimate"`
	ActionEstimate  time.Duration `yaml:"action_estimate"`
	TaskEstimate    time.Duration `yaml:"task_estimate"`
}

type Config struct {
	Server     ServerConfig     `yaml:"server"`
	Log        LogConfig        `yaml:"log"`
	Database   DatabaseConfig   `yaml:"database"`
	Redis      RedisConfig      `yaml:"redis"`
	Auth       AuthConfig       `yaml:"auth"`
	Workflow   WorkflowConfig   `yaml:"workflow"`
	Generation GenerationConfig `yaml:"generation"`

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
	cfg.Runtime.Dev = dev
	cfg.applyDefaults()
	return &cfg, nil
}

func (cfg *Config) applyDefaults() {
	if cfg.Server.Port <= 0 {
		cfg.Server.Port = 8080
	}
	if cfg.Log.Level == "" {
		cfg.Log.Level = "info"
	}
	if cfg.Log.Format == "" {
		cfg.Log.Format = "json"
	}
	if cfg.Redis.LockTTL <= 0 {
		cfg.Redis.LockTTL = 10 * time.Second
	}
	if cfg.Workflow.Timeout <= 0 {
		cfg.Workflow.Timeout = 15 * time.Second
	}
	if cfg.Generation.SubGoalEstimate <= 0 {
		cfg.Generation.SubGoalEstimate = 60 * time.Second
	}
	if cfg.Generation.ActionEstimate <= 0 {
		cfg.Generation.ActionEstimate = 180 * time.Second
	}
	if cfg.Generation.TaskEstimate <= 0 {
		cfg.Generation.TaskEstimate = 300 * time.Second
	}
}
