package cliconfig

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	toml "github.com/pelletier/go-toml/v2"
	"gopkg.in/yaml.v3"
)

// FileConfig mirrors Config with string durations. It is read from TOML,
// or from YAML when the file ends in .yaml or .yml.
type FileConfig struct {
	ServiceURL      string `toml:"service_url" yaml:"service_url"`
	Endpoint        string `toml:"endpoint" yaml:"endpoint"`
	Index           string `toml:"index" yaml:"index"`
	AuthKey         string `toml:"auth_key" yaml:"auth_key"`
	Username        string `toml:"username" yaml:"username"`
	Password        string `toml:"password" yaml:"password"`
	Concurrency     *int   `toml:"concurrency" yaml:"concurrency"`
	Interval        string `toml:"interval" yaml:"interval"`
	MaxActions      *int   `toml:"max_actions" yaml:"max_actions"`
	HTTPTimeout     string `toml:"http_timeout" yaml:"http_timeout"`
	DispatchTimeout string `toml:"dispatch_timeout" yaml:"dispatch_timeout"`
	Requeue         *bool  `toml:"requeue" yaml:"requeue"`
	Format          string `toml:"format" yaml:"format"`
	Operation       string `toml:"operation" yaml:"operation"`
	IDField         string `toml:"id_field" yaml:"id_field"`
	SpoolDir        string `toml:"spool_dir" yaml:"spool_dir"`
	Watch           *bool  `toml:"watch" yaml:"watch"`
	MetricsAddr     string `toml:"metrics_addr" yaml:"metrics_addr"`
	LogLevel        string `toml:"log_level" yaml:"log_level"`
	LogFormat       string `toml:"log_format" yaml:"log_format"`
	EnvFile         string `toml:"env_file" yaml:"env_file"`
}

// LoadFileConfig reads and parses a config file.
func LoadFileConfig(path string) (FileConfig, error) {
	var fc FileConfig
	b, err := os.ReadFile(path)
	if err != nil {
		return fc, err
	}

	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		err = yaml.Unmarshal(b, &fc)
	default:
		err = toml.Unmarshal(b, &fc)
	}
	if err != nil {
		return fc, fmt.Errorf("parse %s: %w", path, err)
	}
	return fc, nil
}

// DefaultConfigPath returns ~/.bulkship/config.toml, or "" when the home
// directory is unknown.
func DefaultConfigPath() string {
	if h, err := os.UserHomeDir(); err == nil {
		return filepath.Join(h, ".bulkship", "config.toml")
	}
	return ""
}

// ApplyFileConfig applies file values for every flag not set explicitly.
func ApplyFileConfig(cfg *Config, fc FileConfig, changed map[string]bool) error {
	s := newConfigSetter(changed)

	s.setString("service-url", fc.ServiceURL, &cfg.ServiceURL)
	s.setString("endpoint", fc.Endpoint, &cfg.Endpoint)
	s.setString("index", fc.Index, &cfg.Index)
	s.setString("auth-key", fc.AuthKey, &cfg.AuthKey)
	s.setString("username", fc.Username, &cfg.Username)
	s.setString("password", fc.Password, &cfg.Password)
	s.setString("format", fc.Format, &cfg.Format)
	s.setString("operation", fc.Operation, &cfg.Operation)
	s.setString("id-field", fc.IDField, &cfg.IDField)
	s.setString("spool-dir", fc.SpoolDir, &cfg.SpoolDir)
	s.setString("metrics-addr", fc.MetricsAddr, &cfg.MetricsAddr)
	s.setString("log-level", fc.LogLevel, &cfg.LogLevel)
	s.setString("log-format", fc.LogFormat, &cfg.LogFormat)
	s.setString("env-file", fc.EnvFile, &cfg.EnvFile)

	if err := s.setDuration("interval", fc.Interval, &cfg.Interval); err != nil {
		return err
	}
	if err := s.setDuration("timeout", fc.HTTPTimeout, &cfg.HTTPTimeout); err != nil {
		return err
	}
	if err := s.setDuration("dispatch-timeout", fc.DispatchTimeout, &cfg.DispatchTimeout); err != nil {
		return err
	}

	s.setInt("concurrency", fc.Concurrency, &cfg.Concurrency)
	s.setInt("max-actions", fc.MaxActions, &cfg.MaxActions)

	s.setBool("requeue", fc.Requeue, &cfg.Requeue)
	s.setBool("watch", fc.Watch, &cfg.Watch)

	return nil
}

// FileExists checks if a file exists at the given path.
func FileExists(p string) bool {
	_, err := os.Stat(p)
	return err == nil
}
