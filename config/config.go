package config

import (
	"errors"
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v2"

	"tumorscope/ml"
)

const (
	DefaultPath = "config.yaml"
	PathEnv     = "CONFIG_PATH"
)

type Config struct {
	Http struct {
		Port           int           `yaml:"port"`
		Timeout        time.Duration `yaml:"timeout"`
		AllowedOrigins []string      `yaml:"allowed_origins"`
		MaxBodyBytes   int64         `yaml:"max_body_bytes"`
	} `yaml:"http"`
	Artifacts struct {
		Dir        string `yaml:"dir"`
		Scaler     string `yaml:"scaler"`
		Classifier string `yaml:"classifier"`
		Watch      bool   `yaml:"watch"`
	} `yaml:"artifacts"`
	Log struct {
		Level      string `yaml:"level"`
		File       string `yaml:"file"`
		MaxSizeMB  int    `yaml:"max_size_mb"`
		MaxBackups int    `yaml:"max_backups"`
		MaxAgeDays int    `yaml:"max_age_days"`
	} `yaml:"log"`
	Cache struct {
		Size int `yaml:"size"`
	} `yaml:"cache"`
}

func Default() *Config {
	var cfg Config
	cfg.Http.Port = 8080
	cfg.Http.Timeout = 30 * time.Second
	cfg.Http.AllowedOrigins = []string{"*"}
	cfg.Http.MaxBodyBytes = 64 << 10
	cfg.Artifacts.Dir = "."
	cfg.Artifacts.Scaler = ml.DefaultScalerFile
	cfg.Artifacts.Classifier = ml.DefaultClassifierFile
	cfg.Log.Level = "info"
	cfg.Log.MaxSizeMB = 100
	cfg.Log.MaxBackups = 3
	cfg.Log.MaxAgeDays = 28
	cfg.Cache.Size = 1024
	return &cfg
}

// ResolvePath picks the config file: an explicit flag value wins, then CONFIG_PATH, then
// config.yaml in the working directory.
func ResolvePath(flagValue string) string {
	if flagValue != "" {
		return flagValue
	}
	if v := os.Getenv(PathEnv); v != "" {
		return v
	}
	return DefaultPath
}

// Load reads path over the defaults. A missing file is not an error unless required.
func Load(path string, required bool) (*Config, error) {
	cfg := Default()
	file, err := os.Open(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) && !required {
			return cfg, nil
		}
		return nil, err
	}
	defer file.Close()

	if err := yaml.NewDecoder(file).Decode(cfg); err != nil {
		return nil, fmt.Errorf("decode %s: %w", path, err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return cfg, nil
}

func (c *Config) Validate() error {
	if c.Http.Port <= 0 || c.Http.Port > 65535 {
		return fmt.Errorf("http.port %d out of range", c.Http.Port)
	}
	if c.Http.Timeout <= 0 {
		return errors.New("http.timeout must be positive")
	}
	if c.Http.MaxBodyBytes <= 0 {
		return errors.New("http.max_body_bytes must be positive")
	}
	if c.Cache.Size < 0 {
		return errors.New("cache.size must not be negative")
	}
	if c.Log.MaxSizeMB < 0 || c.Log.MaxBackups < 0 || c.Log.MaxAgeDays < 0 {
		return errors.New("log rotation settings must not be negative")
	}
	switch c.Log.Level {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("log.level %q unknown", c.Log.Level)
	}
	return nil
}

func (c *Config) ArtifactPaths() ml.ArtifactPaths {
	return ml.ArtifactPaths{
		Dir:        c.Artifacts.Dir,
		Scaler:     c.Artifacts.Scaler,
		Classifier: c.Artifacts.Classifier,
	}
}
