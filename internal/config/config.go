/*
 *  Copyright (c) 2021 Neil Alexander
 *
 *  This Source Code Form is subject to the terms of the Mozilla Public
 *  License, v. 2.0. If a copy of the MPL was not distributed with this
 *  file, You can obtain one at http://mozilla.org/MPL/2.0/.
 */

// Package config loads the server configuration from environment variables,
// optionally layered over a YAML file.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/JB-SelfCompany/mailforge/internal/logging"
)

type Config struct {
	Domain   string        `yaml:"domain"`
	Database string        `yaml:"database"`
	SMTP     SMTPConfig    `yaml:"smtp"`
	IMAP     IMAPConfig    `yaml:"imap"`
	Remote   RemoteConfig  `yaml:"remote"`
	DNS      DNSConfig     `yaml:"dns"`
	Archive  ArchiveConfig `yaml:"archive"`
	Metrics  MetricsConfig `yaml:"metrics"`
	Logging  LoggingConfig `yaml:"logging"`
}

type SMTPConfig struct {
	SubmissionPort int           `yaml:"submission_port"`
	BridgePort     int           `yaml:"bridge_port"`
	ReadTimeout    time.Duration `yaml:"read_timeout"`
	WriteTimeout   time.Duration `yaml:"write_timeout"`
}

type IMAPConfig struct {
	Port              int  `yaml:"port"`
	FetchLimit        int  `yaml:"fetch_limit"`
	HonorFetchRange   bool `yaml:"honor_fetch_range"`
	AllowInsecureAuth bool `yaml:"allow_insecure_auth"`
}

type RemoteConfig struct {
	Port        int           `yaml:"port"`
	StartTLS    bool          `yaml:"starttls"`
	VerifyTLS   bool          `yaml:"verify_tls"`
	DialTimeout time.Duration `yaml:"dial_timeout"`
	IOTimeout   time.Duration `yaml:"io_timeout"`
}

type DNSConfig struct {
	Nameservers []string      `yaml:"nameservers"` // empty means /etc/resolv.conf
	Timeout     time.Duration `yaml:"timeout"`
	CacheTTL    time.Duration `yaml:"cache_ttl"`
}

type ArchiveConfig struct {
	Path string `yaml:"path"` // empty disables the archive
}

type MetricsConfig struct {
	Addr string `yaml:"addr"` // empty disables the endpoint
}

type LoggingConfig struct {
	Level string `yaml:"level"`
}

// Default returns the built-in configuration without consulting the
// environment. Domain is left empty.
func Default() *Config {
	cfg := &Config{}
	cfg.applyDefaults()
	return cfg
}

// Load builds the configuration from defaults and environment variables.
func Load() (*Config, error) {
	cfg := Default()
	if err := cfg.applyEnvVars(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// LoadFromFile uses a YAML file as the base layer. Environment variables
// still override it.
func LoadFromFile(path string) (*Config, error) {
	cfg := Default()

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	if err := cfg.applyEnvVars(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) applyDefaults() {
	c.Database = "mailforge.db"
	c.SMTP.SubmissionPort = 587
	c.SMTP.BridgePort = 2525
	c.IMAP.Port = 143
	c.IMAP.FetchLimit = 50
	c.IMAP.AllowInsecureAuth = true
	c.Remote.Port = 25
	c.Remote.StartTLS = true
	c.Remote.DialTimeout = 30 * time.Second
	c.Remote.IOTimeout = 60 * time.Second
	c.DNS.Timeout = 5 * time.Second
	c.DNS.CacheTTL = 60 * time.Second
	c.Logging.Level = "info"
}

// applyEnvVars overrides fields with every non-empty variable. A value that
// does not parse is an error rather than silently ignored.
func (c *Config) applyEnvVars() error {
	if v := os.Getenv("DOMAIN_NAME"); v != "" {
		c.Domain = v
	}
	if v := os.Getenv("DATABASE_URL"); v != "" {
		c.Database = v
	}
	if v := os.Getenv("ARCHIVE_PATH"); v != "" {
		c.Archive.Path = v
	}
	if v := os.Getenv("METRICS_ADDR"); v != "" {
		c.Metrics.Addr = v
	}
	if v := os.Getenv("LOG_LEVEL"); v != "" {
		c.Logging.Level = strings.ToLower(v)
	}
	if v := os.Getenv("DNS_NAMESERVERS"); v != "" {
		c.DNS.Nameservers = nil
		for _, ns := range strings.Split(v, ",") {
			if ns = strings.TrimSpace(ns); ns != "" {
				c.DNS.Nameservers = append(c.DNS.Nameservers, ns)
			}
		}
	}

	ints := []struct {
		names []string
		dst   *int
	}{
		{[]string{"SMTP_PORT", "SUBMISSION_PORT"}, &c.SMTP.SubmissionPort},
		{[]string{"SMTP_BRIDGE_PORT"}, &c.SMTP.BridgePort},
		{[]string{"IMAP_PORT"}, &c.IMAP.Port},
		{[]string{"REMOTE_PORT"}, &c.Remote.Port},
		{[]string{"FETCH_LIMIT"}, &c.IMAP.FetchLimit},
	}
	for _, f := range ints {
		for _, name := range f.names {
			v := os.Getenv(name)
			if v == "" {
				continue
			}
			n, err := strconv.Atoi(v)
			if err != nil {
				return fmt.Errorf("%s: %w", name, err)
			}
			*f.dst = n
		}
	}

	bools := []struct {
		name string
		dst  *bool
	}{
		{"REMOTE_STARTTLS", &c.Remote.StartTLS},
		{"REMOTE_VERIFY_TLS", &c.Remote.VerifyTLS},
		{"HONOR_FETCH_RANGE", &c.IMAP.HonorFetchRange},
	}
	for _, f := range bools {
		if v := os.Getenv(f.name); v != "" {
			b, err := strconv.ParseBool(v)
			if err != nil {
				return fmt.Errorf("%s: %w", f.name, err)
			}
			*f.dst = b
		}
	}

	durations := []struct {
		name string
		dst  *time.Duration
	}{
		{"DNS_TIMEOUT", &c.DNS.Timeout},
		{"EXCHANGE_CACHE_TTL", &c.DNS.CacheTTL},
		{"DIAL_TIMEOUT", &c.Remote.DialTimeout},
	}
	for _, f := range durations {
		if v := os.Getenv(f.name); v != "" {
			d, err := time.ParseDuration(v)
			if err != nil {
				return fmt.Errorf("%s: %w", f.name, err)
			}
			*f.dst = d
		}
	}
	return nil
}

func validPort(p int) bool {
	return p > 0 && p < 65536
}

func (c *Config) Validate() error {
	if strings.TrimSpace(c.Domain) == "" {
		return fmt.Errorf("domain is required (DOMAIN_NAME)")
	}
	if strings.TrimSpace(c.Database) == "" {
		return fmt.Errorf("database path is required (DATABASE_URL)")
	}
	for name, p := range map[string]int{
		"submission port": c.SMTP.SubmissionPort,
		"bridge port":     c.SMTP.BridgePort,
		"imap port":       c.IMAP.Port,
		"remote port":     c.Remote.Port,
	} {
		if !validPort(p) {
			return fmt.Errorf("invalid %s %d", name, p)
		}
	}
	if c.IMAP.FetchLimit <= 0 {
		return fmt.Errorf("fetch limit must be positive, got %d", c.IMAP.FetchLimit)
	}
	if !logging.ValidLevel(c.Logging.Level) {
		return fmt.Errorf("unknown log level %q", c.Logging.Level)
	}
	return nil
}

func (c *Config) SubmissionAddr() string {
	return fmt.Sprintf(":%d", c.SMTP.SubmissionPort)
}

func (c *Config) BridgeAddr() string {
	return fmt.Sprintf(":%d", c.SMTP.BridgePort)
}

func (c *Config) IMAPAddr() string {
	return fmt.Sprintf(":%d", c.IMAP.Port)
}
