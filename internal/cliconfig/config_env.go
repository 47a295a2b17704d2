package cliconfig

import (
	"fmt"
	"os"

	"github.com/joho/godotenv"
)

// LoadEnvFile loads KEY=VALUE pairs from path into the process
// environment. Variables that are already set keep their value.
func LoadEnvFile(path string) error {
	if path == "" {
		return nil
	}
	if err := godotenv.Load(path); err != nil {
		return fmt.Errorf("load env file: %w", err)
	}
	return nil
}

// ApplyEnvConfig applies BULKSHIP_* variables for every flag not set
// explicitly. It fails on values that do not parse.
func ApplyEnvConfig(cfg *Config, changed map[string]bool) error {
	s := newConfigSetter(changed)

	s.setString("service-url", os.Getenv("BULKSHIP_SERVICE_URL"), &cfg.ServiceURL)
	s.setString("endpoint", os.Getenv("BULKSHIP_ENDPOINT"), &cfg.Endpoint)
	s.setString("index", os.Getenv("BULKSHIP_INDEX"), &cfg.Index)
	s.setString("auth-key", os.Getenv("BULKSHIP_AUTH_KEY"), &cfg.AuthKey)
	s.setString("username", os.Getenv("BULKSHIP_USERNAME"), &cfg.Username)
	s.setString("password", os.Getenv("BULKSHIP_PASSWORD"), &cfg.Password)
	s.setString("format", os.Getenv("BULKSHIP_FORMAT"), &cfg.Format)
	s.setString("operation", os.Getenv("BULKSHIP_OPERATION"), &cfg.Operation)
	s.setString("id-field", os.Getenv("BULKSHIP_ID_FIELD"), &cfg.IDField)
	s.setString("spool-dir", os.Getenv("BULKSHIP_SPOOL_DIR"), &cfg.SpoolDir)
	s.setString("metrics-addr", os.Getenv("BULKSHIP_METRICS_ADDR"), &cfg.MetricsAddr)
	s.setString("log-level", os.Getenv("BULKSHIP_LOG_LEVEL"), &cfg.LogLevel)
	s.setString("log-format", os.Getenv("BULKSHIP_LOG_FORMAT"), &cfg.LogFormat)

	if err := s.setDuration("interval", os.Getenv("BULKSHIP_INTERVAL"), &cfg.Interval); err != nil {
		return err
	}
	if err := s.setDuration("timeout", os.Getenv("BULKSHIP_HTTP_TIMEOUT"), &cfg.HTTPTimeout); err != nil {
		return err
	}
	if err := s.setDuration("dispatch-timeout", os.Getenv("BULKSHIP_DISPATCH_TIMEOUT"), &cfg.DispatchTimeout); err != nil {
		return err
	}

	if err := s.setIntFromString("concurrency", os.Getenv("BULKSHIP_CONCURRENCY"), &cfg.Concurrency); err != nil {
		return err
	}
	if err := s.setIntFromString("max-actions", os.Getenv("BULKSHIP_MAX_ACTIONS"), &cfg.MaxActions); err != nil {
		return err
	}

	if err := s.setBoolFromString("requeue", os.Getenv("BULKSHIP_REQUEUE"), &cfg.Requeue); err != nil {
		return err
	}
	if err := s.setBoolFromString("watch", os.Getenv("BULKSHIP_WATCH"), &cfg.Watch); err != nil {
		return err
	}

	return nil
}
