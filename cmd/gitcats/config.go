package main

import (
	"fmt"
	"os"
	"time"

	"gitcats/internal/common/cache"
	"gitcats/internal/grading/environment"
	"gitcats/internal/grading/model"
	"gitcats/internal/grading/sandbox/engine"
	"gitcats/pkg/utils/logger"

	"gopkg.in/yaml.v3"
)

const defaultMarkerTTL = 30 * 24 * time.Hour

// Duration accepts a Go duration ("1.5s") or a number of seconds.
type Duration time.Duration

func (d *Duration) UnmarshalYAML(node *yaml.Node) error {
	parsed, err := model.ParseTimeout(node.Value)
	if err != nil {
		return fmt.Errorf("line %d: %w", node.Line, err)
	}
	*d = Duration(parsed)
	return nil
}

// RunnerConfig holds shell and test execution settings.
type RunnerConfig struct {
	Shell          string   `yaml:"shell"`
	OutputLines    int      `yaml:"outputLines"`
	Env            []string `yaml:"env"`
	DefaultTimeout Duration `yaml:"defaultTimeout"`
	WorkRoot       string   `yaml:"workRoot"`
}

// RedisConfig enables the checked-marker store when Addr is set.
type RedisConfig struct {
	cache.RedisConfig `yaml:",inline"`
	MarkerTTL         Duration `yaml:"markerTTL"`
}

// ReportConfig holds report artifact settings.
type ReportConfig struct {
	Path string `yaml:"path"`
}

// AppConfig holds gitcats settings that are not part of the course documents.
type AppConfig struct {
	Logger      logger.Config       `yaml:"logger"`
	Environment environment.Tooling `yaml:"environment"`
	Runner      RunnerConfig        `yaml:"runner"`
	Redis       RedisConfig         `yaml:"redis"`
	Report      ReportConfig        `yaml:"report"`
}

func loadYAML(path string, out interface{}) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read config file failed: %w", err)
	}
	if err := yaml.Unmarshal(data, out); err != nil {
		return fmt.Errorf("parse config file failed: %w", err)
	}
	return nil
}

// loadAppConfig reads the optional app config; an empty path yields defaults.
func loadAppConfig(path string) (*AppConfig, error) {
	var cfg AppConfig
	if path != "" {
		if err := loadYAML(path, &cfg); err != nil {
			return nil, err
		}
	}
	if cfg.Redis.Addr != "" {
		applyRedisDefaults(&cfg.Redis.RedisConfig)
		if cfg.Redis.MarkerTTL == 0 {
			cfg.Redis.MarkerTTL = Duration(defaultMarkerTTL)
		}
	}
	if cfg.Runner.WorkRoot == "" {
		cfg.Runner.WorkRoot = os.TempDir()
	}
	return &cfg, nil
}

func applyRedisDefaults(cfg *cache.RedisConfig) {
	if cfg == nil {
		return
	}
	defaults := cache.DefaultRedisConfig()
	if cfg.MaxRetries == 0 {
		cfg.MaxRetries = defaults.MaxRetries
	}
	if cfg.DialTimeout == 0 {
		cfg.DialTimeout = defaults.DialTimeout
	}
	if cfg.ReadTimeout == 0 {
		cfg.ReadTimeout = defaults.ReadTimeout
	}
	if cfg.WriteTimeout == 0 {
		cfg.WriteTimeout = defaults.WriteTimeout
	}
	if cfg.PoolSize == 0 {
		cfg.PoolSize = defaults.PoolSize
	}
}

func (r RunnerConfig) toEngineConfig() engine.Config {
	return engine.Config{
		Shell:       r.Shell,
		OutputLines: r.OutputLines,
		Env:         r.Env,
	}
}
