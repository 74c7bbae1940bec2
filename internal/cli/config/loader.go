package config

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"strings"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/confmap"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/posflag"
	"github.com/knadh/koanf/v2"
	"github.com/spf13/pflag"

	intconfig "github.com/leapstack-labs/changefeed/internal/config"
)

// loggerKey is used to store the logger in context.
type loggerKey struct{}

// EnvPrefix prefixes environment variables read as configuration.
const EnvPrefix = "CHANGEFEED_"

// Package-level koanf instance and config file tracking
var (
	k              = koanf.New(".")
	configFileUsed string
	currentConfig  *Config
)

// ResetConfig resets the koanf instance. Used for testing.
func ResetConfig() {
	k = koanf.New(".")
	configFileUsed = ""
	currentConfig = nil
}

// LoadConfig loads configuration from file, environment variables, and flags.
// Precedence (highest to lowest): flags > env vars > config file > defaults
func LoadConfig(cfgFile string, flags *pflag.FlagSet) (*Config, error) {
	return LoadConfigWithTarget(cfgFile, "", flags)
}

// LoadConfigWithTarget loads configuration and applies the target of the
// named environment (targetOverride, or the configured environment).
func LoadConfigWithTarget(cfgFile string, targetOverride string, flags *pflag.FlagSet) (*Config, error) {
	k = koanf.New(".")

	cwd, _ := os.Getwd()
	if cwd == "" {
		cwd = "."
	}

	// Paths given as flags are relative to the working directory; the rest
	// resolve against the project root.
	flagPaths := map[string]string{}
	if flags != nil {
		for _, name := range []string{"journal", "schema", "path"} {
			if f := flags.Lookup(name); f != nil && f.Changed && f.Value.String() != "" {
				flagPaths[configKey(name)] = intconfig.Project{Root: cwd}.Resolve(f.Value.String())
			}
		}
	}

	// 1. Defaults
	if err := k.Load(confmap.Provider(map[string]any{
		"target.type":  intconfig.DefaultAdapter,
		"journal_path": DefaultJournalFile,
		"verbose":      false,
		"output":       DefaultOutput,
	}, "."), nil); err != nil {
		return nil, fmt.Errorf("failed to load defaults: %w", err)
	}

	// 2. Config file: explicit, else the nearest changefeed.yaml upward
	project := intconfig.Project{Root: cwd}
	if cfgFile != "" {
		project = intconfig.ProjectFor(cfgFile)
	} else if found, ok := intconfig.Discover(cwd); ok {
		project = found
	}
	configFileUsed = project.ConfigFile
	if configFileUsed != "" {
		if err := k.Load(file.Provider(configFileUsed), yaml.Parser()); err != nil {
			return nil, fmt.Errorf("error reading config file %s: %w", configFileUsed, err)
		}
	}

	// 3. Environment: CHANGEFEED_JOURNAL_PATH -> journal_path, CHANGEFEED_HOST -> target.host
	if err := k.Load(env.Provider(EnvPrefix, ".", func(s string) string {
		return configKey(strings.TrimPrefix(s, EnvPrefix))
	}), nil); err != nil {
		return nil, fmt.Errorf("failed to load env vars: %w", err)
	}

	// 4. Flags that were explicitly set
	if flags != nil {
		if err := k.Load(posflag.ProviderWithFlag(flags, ".", k, func(f *pflag.Flag) (string, any) {
			if !f.Changed {
				return "", nil
			}
			return configKey(f.Name), posflag.FlagVal(flags, f)
		}), nil); err != nil {
			return nil, fmt.Errorf("failed to load flags: %w", err)
		}
	}

	var cfg Config
	if err := k.Unmarshal("", &cfg); err != nil {
		return nil, fmt.Errorf("unable to decode config: %w", err)
	}
	cfg.ProjectRoot = project.Root
	if cfg.Target == nil {
		cfg.Target = &TargetConfig{}
	}

	envName := cfg.Environment
	if targetOverride != "" {
		envName = targetOverride
	}
	if envName != "" {
		envCfg, ok := cfg.Environments[envName]
		if !ok && targetOverride != "" {
			return nil, fmt.Errorf("environment %q is not defined in %s", envName, displayPath(configFileUsed))
		}
		if envCfg.Target != nil {
			cfg.Target = cfg.Target.Merge(envCfg.Target)
		}
	}

	intconfig.ApplyTargetDefaults(cfg.Target)

	cfg.JournalPath = pathFor(flagPaths, "journal_path", cfg.JournalPath, project)
	cfg.SchemaFile = pathFor(flagPaths, "schema_file", cfg.SchemaFile, project)
	cfg.Target.Path = pathFor(flagPaths, "target.path", cfg.Target.Path, project)
	if cfg.Target.Type == "replay" && cfg.Target.Path == "" {
		cfg.Target.Path = cfg.JournalPath
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	currentConfig = &cfg
	return &cfg, nil
}

// pathFor prefers the flag value, already resolved against the working
// directory, over the config value resolved against the project.
func pathFor(flagPaths map[string]string, key, value string, project intconfig.Project) string {
	if p, ok := flagPaths[key]; ok {
		return p
	}
	return project.Resolve(value)
}

func displayPath(p string) string {
	if p == "" {
		return "configuration (no config file found)"
	}
	return p
}

// GetConfigFileUsed returns the path to the config file being used, if any.
func GetConfigFileUsed() string {
	return configFileUsed
}

// GetCurrentConfig returns the configuration loaded by the last
// LoadConfig call.
func GetCurrentConfig() *Config {
	return currentConfig
}

// LoggerKey returns the context key used for storing the logger.
// This allows the commands package to retrieve the logger from context
// without creating an import cycle with the cli package.
func LoggerKey() any {
	return loggerKey{}
}

// GetLogger retrieves the logger from the command context.
func GetLogger(ctx context.Context) *slog.Logger {
	if ctx != nil {
		if l, ok := ctx.Value(loggerKey{}).(*slog.Logger); ok {
			return l
		}
	}
	return slog.New(slog.DiscardHandler)
}
