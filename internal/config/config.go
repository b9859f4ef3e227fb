// Package config loads pcrgate configuration from YAML.
//
// All knobs the shell-era tooling spread across edited-in-place files
// (TPM device path, hash algorithm, database location) live in one
// explicit struct threaded through constructors.
package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Duration wraps time.Duration for YAML fields like "30m" or "1h".
type Duration time.Duration

// UnmarshalYAML implements yaml.Unmarshaler.
func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	var s string
	if err := value.Decode(&s); err != nil {
		return err
	}
	td, err := time.ParseDuration(s)
	if err != nil {
		return fmt.Errorf("invalid duration %q: %w", s, err)
	}
	*d = Duration(td)
	return nil
}

// MarshalYAML implements yaml.Marshaler.
func (d Duration) MarshalYAML() (interface{}, error) {
	return time.Duration(d).String(), nil
}

// Config holds all pcrgate settings.
type Config struct {
	// TPMDevice is the TPM character device path. Empty means resolve
	// /dev/tpmrm0 then /dev/tpm0.
	TPMDevice string `yaml:"tpm_device"`

	// Algorithm is the default PCR bank for registration.
	Algorithm string `yaml:"algorithm"`

	// DBPath is the SQLite database location. Empty means the XDG default.
	DBPath string `yaml:"db_path"`

	// PolicyMode is "exact" or "subset".
	PolicyMode string `yaml:"policy_mode"`

	// FreshnessWindow rejects measurements older than this. Zero disables.
	FreshnessWindow Duration `yaml:"freshness_window"`

	// Syslog mirrors audit records to the local syslog daemon.
	Syslog SyslogConfig `yaml:"syslog"`
}

// SyslogConfig configures the optional syslog audit backend.
type SyslogConfig struct {
	Enabled    bool   `yaml:"enabled"`
	SocketPath string `yaml:"socket_path"`
	AppName    string `yaml:"app_name"`
}

// Default returns the built-in configuration.
func Default() *Config {
	return &Config{
		Algorithm:  "sha256",
		PolicyMode: "exact",
	}
}

// Load reads a YAML config file, applying defaults for absent fields.
func Load(path string) (*Config, error) {
	cfg := Default()
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config %s: %w", path, err)
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parsing config %s: %w", path, err)
	}
	if cfg.PolicyMode != "exact" && cfg.PolicyMode != "subset" {
		return nil, fmt.Errorf("config %s: policy_mode must be \"exact\" or \"subset\", got %q", path, cfg.PolicyMode)
	}
	return cfg, nil
}
