// Package config loads pushbridge CLI settings from a YAML file, a .env file
// and PUSHBRIDGE_* environment variables, in increasing precedence.
package config

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"github.com/slush-dev/pushbridge"
	"github.com/slush-dev/pushbridge/fcm"
)

// EnvPrefix prefixes every environment override.
const EnvPrefix = "PUSHBRIDGE_"

// Config holds the CLI configuration.
type Config struct {
	LogLevel     string          `yaml:"log_level"`
	SessionDir   string          `yaml:"session_dir"`
	TokenTimeout time.Duration   `yaml:"token_timeout"`
	EventName    string          `yaml:"event_name"`
	App          fcm.AppIdentity `yaml:"app"`
	Host         HostConfig      `yaml:"host"`
}

// HostConfig describes the local application the relay launches.
type HostConfig struct {
	// Package defaults to App.Package.
	Package          string        `yaml:"package"`
	LauncherActivity string        `yaml:"launcher_activity"`
	Classes          []string      `yaml:"classes"`
	LaunchCommand    []string      `yaml:"launch_command"`
	BootDelay        time.Duration `yaml:"boot_delay"`
}

// DefaultSessionDir returns ~/.pushbridge.
func DefaultSessionDir() string {
	home, _ := os.UserHomeDir()
	return filepath.Join(home, ".pushbridge")
}

// Default returns the built-in configuration.
func Default() *Config {
	return &Config{
		LogLevel:     "info",
		SessionDir:   DefaultSessionDir(),
		TokenTimeout: 30 * time.Second,
		EventName:    pushbridge.DefaultNotificationOpenedEvent,
	}
}

// Load reads path (if not empty), then .env, then the environment, and
// validates the result. A missing .env file is not an error.
func Load(path string) (*Config, error) {
	cfg := Default()

	if path != "" {
		f, err := os.Open(path)
		if err != nil {
			return nil, fmt.Errorf("opening config: %w", err)
		}
		defer f.Close()
		if err := cfg.decode(f); err != nil {
			return nil, fmt.Errorf("parsing config %s: %w", path, err)
		}
	}

	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("loading .env: %w", err)
	}
	if err := cfg.applyEnv(); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) decode(r io.Reader) error {
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(c); err != nil && !errors.Is(err, io.EOF) {
		return err
	}
	return nil
}

func (c *Config) applyEnv() error {
	setString(&c.LogLevel, "LOG_LEVEL")
	setString(&c.SessionDir, "SESSION_DIR")
	setString(&c.EventName, "EVENT_NAME")
	setString(&c.App.Package, "APP_PACKAGE")
	setString(&c.App.SenderID, "SENDER_ID")
	setString(&c.App.CertSHA1, "CERT_SHA1")
	setString(&c.App.AppVersion, "APP_VERSION")
	setString(&c.Host.Package, "HOST_PACKAGE")
	setString(&c.Host.LauncherActivity, "LAUNCHER_ACTIVITY")
	if v, ok := lookupEnv("LAUNCH_COMMAND"); ok {
		c.Host.LaunchCommand = strings.Fields(v)
	}

	if err := setDuration(&c.TokenTimeout, "TOKEN_TIMEOUT"); err != nil {
		return err
	}
	return setDuration(&c.Host.BootDelay, "BOOT_DELAY")
}

// Validate checks values that would otherwise fail late.
func (c *Config) Validate() error {
	var problems []string
	if _, ok := levels[strings.ToLower(strings.TrimSpace(c.LogLevel))]; !ok {
		problems = append(problems, fmt.Sprintf("log_level %q is not one of debug, info, warn, error", c.LogLevel))
	}
	if c.TokenTimeout < 0 {
		problems = append(problems, "token_timeout must not be negative")
	}
	if c.Host.BootDelay < 0 {
		problems = append(problems, "host.boot_delay must not be negative")
	}
	if c.EventName == "" {
		problems = append(problems, "event_name must not be empty")
	}
	if len(problems) > 0 {
		return fmt.Errorf("invalid config: %s", strings.Join(problems, "; "))
	}
	return nil
}

// HostPackage returns the package the relay resolves launch intents for.
func (c *Config) HostPackage() string {
	if c.Host.Package != "" {
		return c.Host.Package
	}
	return c.App.Package
}

var levels = map[string]slog.Level{
	"debug": slog.LevelDebug,
	"info":  slog.LevelInfo,
	"warn":  slog.LevelWarn,
	"error": slog.LevelError,
}

// Level returns the configured slog level, Info when unrecognised.
func (c *Config) Level() slog.Level {
	if lvl, ok := levels[strings.ToLower(strings.TrimSpace(c.LogLevel))]; ok {
		return lvl
	}
	return slog.LevelInfo
}

// NewLogger returns a text logger writing to w at the configured level.
func (c *Config) NewLogger(w io.Writer) *slog.Logger {
	return slog.New(slog.NewTextHandler(w, &slog.HandlerOptions{Level: c.Level()}))
}

func lookupEnv(key string) (string, bool) {
	v, ok := os.LookupEnv(EnvPrefix + key)
	if !ok || v == "" {
		return "", false
	}
	return v, true
}

func setString(dst *string, key string) {
	if v, ok := lookupEnv(key); ok {
		*dst = v
	}
}

func setDuration(dst *time.Duration, key string) error {
	v, ok := lookupEnv(key)
	if !ok {
		return nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return fmt.Errorf("invalid %s%s: %w", EnvPrefix, key, err)
	}
	*dst = d
	return nil
}
