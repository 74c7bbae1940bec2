// Package config provides the connection configuration shared by the CLI
// commands. It is decoupled from flag parsing so tests and tools can build
// targets directly.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/leapstack-labs/changefeed/internal/secret"
	"github.com/leapstack-labs/changefeed/pkg/adapter"
	"github.com/leapstack-labs/changefeed/pkg/core"
)

// TargetConfig describes the transport a feed connects through.
type TargetConfig struct {
	Type string `koanf:"type"` // memory, rethinkdb, postgres, replay

	// Network transports
	Host     string `koanf:"host"`
	Port     int    `koanf:"port"`
	Database string `koanf:"database"`
	User     string `koanf:"user"`
	Password string `koanf:"password"` // literal, ${VAR} or keyring:<name>

	// File-backed transports: memory seed file, replay journal
	Path string `koanf:"path"`

	Timeout time.Duration `koanf:"timeout"`

	// Additional transport-specific options (replay: session)
	Options map[string]string `koanf:"options"`
}

// Validate checks the target against the transport registry.
func (t *TargetConfig) Validate() error {
	if t.Type == "" {
		return fmt.Errorf("target type is required")
	}
	if !adapter.IsRegistered(strings.ToLower(t.Type)) {
		return &adapter.UnknownAdapterError{
			Type:      t.Type,
			Available: adapter.ListAdapters(),
		}
	}
	if t.Port < 0 || t.Port > 65535 {
		return fmt.Errorf("port %d out of range", t.Port)
	}
	if t.Timeout < 0 {
		return fmt.Errorf("timeout must not be negative")
	}
	return nil
}

// AdapterConfig resolves credentials and converts the target into the
// form transports accept.
func (t *TargetConfig) AdapterConfig(r *secret.Resolver) (core.AdapterConfig, error) {
	resolve := func(field, v string) (string, error) {
		out, err := r.Resolve(v)
		if err != nil {
			return "", fmt.Errorf("target %s: %w", field, err)
		}
		return out, nil
	}

	host, err := resolve("host", t.Host)
	if err != nil {
		return core.AdapterConfig{}, err
	}
	user, err := resolve("user", t.User)
	if err != nil {
		return core.AdapterConfig{}, err
	}
	password, err := resolve("password", t.Password)
	if err != nil {
		return core.AdapterConfig{}, err
	}
	path, err := resolve("path", t.Path)
	if err != nil {
		return core.AdapterConfig{}, err
	}

	opts := make(map[string]string, len(t.Options))
	for k, v := range t.Options {
		opts[k] = v
	}
	return core.AdapterConfig{
		Type:     strings.ToLower(t.Type),
		Host:     host,
		Port:     t.Port,
		Database: t.Database,
		Username: user,
		Password: password,
		Path:     path,
		Timeout:  t.Timeout,
		Options:  opts,
	}, nil
}

// Address returns host:port for network transports, or the path for
// file-backed ones. Credentials are never included.
func (t *TargetConfig) Address() string {
	if t.Host == "" {
		return t.Path
	}
	return fmt.Sprintf("%s:%d", t.Host, t.Port)
}

// Merge returns a copy of t with the set fields of override applied.
func (t *TargetConfig) Merge(override *TargetConfig) *TargetConfig {
	if t == nil {
		return override
	}
	if override == nil {
		return t
	}

	merged := *t
	merged.Options = make(map[string]string, len(t.Options)+len(override.Options))
	for k, v := range t.Options {
		merged.Options[k] = v
	}
	if override.Type != "" {
		merged.Type = override.Type
	}
	if override.Host != "" {
		merged.Host = override.Host
	}
	if override.Port != 0 {
		merged.Port = override.Port
	}
	if override.Database != "" {
		merged.Database = override.Database
	}
	if override.User != "" {
		merged.User = override.User
	}
	if override.Password != "" {
		merged.Password = override.Password
	}
	if override.Path != "" {
		merged.Path = override.Path
	}
	if override.Timeout != 0 {
		merged.Timeout = override.Timeout
	}
	for k, v := range override.Options {
		merged.Options[k] = v
	}
	return &merged
}
