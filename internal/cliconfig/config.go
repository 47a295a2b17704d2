package cliconfig

import (
	"fmt"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/bft-labs/bulkship/pkg/bulk"
	"github.com/bft-labs/bulkship/pkg/log"
)

// DefaultServiceURL is the index service shipped to when none is configured.
const DefaultServiceURL = "http://localhost:9200"

// Input formats.
const (
	FormatDocs    = "docs"
	FormatActions = "actions"
)

// Log formats.
const (
	LogFormatConsole = "console"
	LogFormatJSON    = "json"
)

// Config holds CLI configuration for bulkship.
type Config struct {
	ServiceURL string
	Endpoint   string
	Index      string

	AuthKey  string
	Username string
	Password string

	Concurrency     int
	Interval        time.Duration
	MaxActions      int
	HTTPTimeout     time.Duration
	DispatchTimeout time.Duration
	Requeue         bool

	Format    string
	Operation string
	IDField   string

	SpoolDir string
	Watch    bool

	MetricsAddr string
	LogLevel    string
	LogFormat   string
	EnvFile     string
}

// DefaultConfig returns a Config with default values.
func DefaultConfig() Config {
	return Config{
		ServiceURL:  DefaultServiceURL,
		Concurrency: 1,
		Interval:    5 * time.Second,
		MaxActions:  1000,
		HTTPTimeout: 30 * time.Second,
		Format:      FormatDocs,
		Operation:   bulk.OpIndex,
		LogLevel:    "info",
		LogFormat:   LogFormatConsole,
	}
}

// Validate checks the configuration for errors and sets derived defaults.
func (c *Config) Validate() error {
	if c.ServiceURL == "" {
		c.ServiceURL = DefaultServiceURL
	}
	c.ServiceURL = strings.TrimRight(c.ServiceURL, "/")
	if u, err := url.Parse(c.ServiceURL); err != nil || u.Scheme == "" || u.Host == "" {
		return fmt.Errorf("invalid service-url %q", c.ServiceURL)
	}

	if c.Endpoint == "" {
		c.Endpoint = bulk.DefaultEndpoint
	}
	if !strings.HasPrefix(c.Endpoint, "/") {
		c.Endpoint = "/" + c.Endpoint
	}

	if c.Concurrency < 1 {
		c.Concurrency = 1
	}
	if c.Interval < 0 {
		return fmt.Errorf("interval must not be negative")
	}
	if c.MaxActions < 0 {
		return fmt.Errorf("max-actions must not be negative")
	}

	switch c.Format {
	case FormatDocs:
		if c.Operation == "" {
			return fmt.Errorf("operation is required for format %q", FormatDocs)
		}
	case FormatActions:
	default:
		return fmt.Errorf("unknown format %q (want %s or %s)", c.Format, FormatDocs, FormatActions)
	}

	if c.Watch && c.SpoolDir == "" {
		return fmt.Errorf("watch requires spool-dir")
	}

	switch c.LogFormat {
	case LogFormatConsole, LogFormatJSON:
	default:
		return fmt.Errorf("unknown log-format %q", c.LogFormat)
	}
	if _, err := log.ParseLevel(c.LogLevel); err != nil {
		return err
	}

	return nil
}

// Redacted returns a copy safe to log.
func (c Config) Redacted() Config {
	if c.AuthKey != "" {
		c.AuthKey = "*****"
	}
	if c.Password != "" {
		c.Password = "*****"
	}
	return c
}

// configSetter applies values unless the corresponding flag was set on
// the command line.
type configSetter struct {
	changed map[string]bool
}

func newConfigSetter(changed map[string]bool) *configSetter {
	return &configSetter{changed: changed}
}

func (s *configSetter) setString(flag, value string, dst *string) {
	if value == "" || s.changed[flag] {
		return
	}
	*dst = value
}

func (s *configSetter) setInt(flag string, value *int, dst *int) {
	if value == nil || s.changed[flag] {
		return
	}
	*dst = *value
}

func (s *configSetter) setDuration(flag, value string, dst *time.Duration) error {
	if value == "" || s.changed[flag] {
		return nil
	}
	d, err := time.ParseDuration(value)
	if err != nil {
		return fmt.Errorf("parse %s: %w", flag, err)
	}
	*dst = d
	return nil
}

func (s *configSetter) setBool(flag string, value *bool, dst *bool) {
	if value == nil || s.changed[flag] {
		return
	}
	*dst = *value
}

// setIntFromString parses environment values. Range checks are left to
// Validate, so 0 is applied like any other value.
func (s *configSetter) setIntFromString(flag, value string, dst *int) error {
	if value == "" || s.changed[flag] {
		return nil
	}
	i, err := strconv.Atoi(value)
	if err != nil {
		return fmt.Errorf("parse %s: %w", flag, err)
	}
	*dst = i
	return nil
}

// setBoolFromString accepts anything strconv.ParseBool does.
func (s *configSetter) setBoolFromString(flag, value string, dst *bool) error {
	if value == "" || s.changed[flag] {
		return nil
	}
	b, err := strconv.ParseBool(value)
	if err != nil {
		return fmt.Errorf("parse %s: %w", flag, err)
	}
	*dst = b
	return nil
}
