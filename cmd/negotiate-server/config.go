package main

import (
	"errors"
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/smnsjas/go-negotiate/negotiate"
	"github.com/smnsjas/go-negotiate/secctx"
)

// duration decodes YAML strings such as "10s" or "2m".
type duration time.Duration

func (d *duration) UnmarshalYAML(node *yaml.Node) error {
	var s string
	if err := node.Decode(&s); err != nil {
		return err
	}
	v, err := time.ParseDuration(s)
	if err != nil {
		return fmt.Errorf("line %d: %w", node.Line, err)
	}
	*d = duration(v)
	return nil
}

// fileConfig is the server's YAML configuration.
type fileConfig struct {
	Listen    string `yaml:"listen"`
	Mechanism string `yaml:"mechanism"`
	Principal string `yaml:"principal"`

	// Correlation is "connection" or "cookie".
	Correlation string `yaml:"correlation"`
	Cookie      struct {
		Name   string `yaml:"name"`
		Secure bool   `yaml:"secure"`
	} `yaml:"cookie"`

	MaxContextAge duration `yaml:"max_context_age"`
	SweepInterval duration `yaml:"sweep_interval"`

	RequireAuth    bool `yaml:"require_auth"`
	AllowAnonymous bool `yaml:"allow_anonymous"`
	AllowGuest     bool `yaml:"allow_guest"`

	Groups struct {
		Enabled bool   `yaml:"enabled"`
		Filter  string `yaml:"filter"`
	} `yaml:"groups"`
	Directory bool `yaml:"directory"`
	Owner     bool `yaml:"owner"`

	Kerberos struct {
		Keytab         string   `yaml:"keytab"`
		ReloadInterval duration `yaml:"reload_interval"`
		MaxClockSkew   duration `yaml:"max_clock_skew"`
		DecodePAC      bool     `yaml:"decode_pac"`
	} `yaml:"kerberos"`

	// SSPI selects the Windows provider even when a keytab is configured.
	SSPI bool `yaml:"sspi"`

	TLS struct {
		Cert string `yaml:"cert"`
		Key  string `yaml:"key"`
	} `yaml:"tls"`

	Log struct {
		Level      string `yaml:"level"`
		File       string `yaml:"file"`
		MaxSize    int64  `yaml:"max_size"`
		MaxBackups int    `yaml:"max_backups"`
		AuditFile  string `yaml:"audit_file"`
	} `yaml:"log"`
}

func defaultFileConfig() *fileConfig {
	cfg := &fileConfig{
		Listen:        ":8080",
		Mechanism:     string(secctx.MechanismNegotiate),
		Correlation:   "connection",
		MaxContextAge: duration(negotiate.DefaultMaxContextAge),
		SweepInterval: duration(negotiate.DefaultSweepInterval),
		RequireAuth:   true,
	}
	cfg.Cookie.Name = negotiate.DefaultCookieName
	cfg.Log.Level = "info"
	return cfg
}

// loadConfig reads path over the defaults. An empty path returns the defaults.
func loadConfig(path string) (*fileConfig, error) {
	cfg := defaultFileConfig()
	if path == "" {
		return cfg, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse config %s: %w", path, err)
	}
	return cfg, nil
}

func (c *fileConfig) tlsEnabled() bool {
	return c.TLS.Cert != "" && c.TLS.Key != ""
}

// negotiateConfig maps the file configuration onto negotiate.Config. The
// provider, loggers, registerer and lookups are filled in by the caller.
func (c *fileConfig) negotiateConfig() (negotiate.Config, error) {
	nc := negotiate.DefaultConfig()
	nc.Mechanism = secctx.Mechanism(c.Mechanism)
	nc.Principal = c.Principal
	switch c.Correlation {
	case "", "connection":
		nc.UseConnectionKey = true
	case "cookie":
		nc.UseCookies = true
	default:
		return nc, fmt.Errorf("correlation %q: want connection or cookie", c.Correlation)
	}
	nc.CookieName = c.Cookie.Name
	nc.CookieSecure = c.Cookie.Secure || c.tlsEnabled()
	nc.MaxContextAge = time.Duration(c.MaxContextAge)
	nc.SweepInterval = time.Duration(c.SweepInterval)
	nc.RequireAuth = c.RequireAuth
	nc.AllowAnonymous = c.AllowAnonymous
	nc.AllowGuest = c.AllowGuest
	nc.UseGroups = c.Groups.Enabled
	nc.GroupFilter = c.Groups.Filter
	nc.UseDirectory = c.Directory
	nc.UseOwner = c.Owner

	if c.TLS.Cert != "" && c.TLS.Key == "" || c.TLS.Cert == "" && c.TLS.Key != "" {
		return nc, errors.New("tls: cert and key must be set together")
	}
	return nc, nil
}
