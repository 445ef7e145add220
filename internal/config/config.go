// Package config holds the server configuration.
package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// ErrInvalidConfig is returned by Validate.
var ErrInvalidConfig = errors.New("invalid config")

const (
	DefaultListenAddr      = ":8080"
	DefaultShutdownTimeout = 10 * time.Second
)

// Config is the server configuration. It can be read from a YAML file.
type Config struct {
	ListenAddr string `yaml:"listen_addr"`

	// StaticDir, if set, is served at "/".
	StaticDir string `yaml:"static_dir"`

	// AllowedOrigins lists the origins allowed by CORS. "*" allows any.
	AllowedOrigins []string `yaml:"allowed_origins"`

	// MaxUploadBytes caps the size of an upload. Zero means no limit.
	MaxUploadBytes int64 `yaml:"max_upload_bytes"`

	// ReadTimeout bounds the time spent reading a request, including the
	// upload body. Zero means no timeout.
	ReadTimeout time.Duration `yaml:"read_timeout"`

	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
}

// Default returns the configuration used when no file is given.
func Default() *Config {
	return &Config{
		ListenAddr:      DefaultListenAddr,
		AllowedOrigins:  []string{"*"},
		ShutdownTimeout: DefaultShutdownTimeout,
	}
}

// Load reads the YAML file at path on top of Default.
func Load(path string) (*Config, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config: %w", err)
	}
	c := Default()
	if err := yaml.Unmarshal(b, c); err != nil {
		return nil, fmt.Errorf("parsing config %s: %w", path, err)
	}
	return c, c.Validate()
}

// Validate checks c for values the server cannot run with.
func (c *Config) Validate() error {
	switch {
	case strings.TrimSpace(c.ListenAddr) == "":
		return fmt.Errorf("%w: empty listen_addr", ErrInvalidConfig)
	case c.MaxUploadBytes < 0:
		return fmt.Errorf("%w: negative max_upload_bytes", ErrInvalidConfig)
	case c.ReadTimeout < 0:
		return fmt.Errorf("%w: negative read_timeout", ErrInvalidConfig)
	case c.ShutdownTimeout < 0:
		return fmt.Errorf("%w: negative shutdown_timeout", ErrInvalidConfig)
	}
	return nil
}

// SplitComma splits a comma separated list, dropping empty items.
func SplitComma(s string) []string {
	var out []string
	for _, p := range strings.Split(s, ",") {
		p = strings.TrimSpace(p)
		if p != "" {
			out = append(out, p)
		}
	}
	return out
}
