package config

import (
	"errors"
	"os"
	"path/filepath"
	"reflect"
	"testing"
	"time"

	"github.com/m-lab/go/testingx"
)

func writeFile(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	testingx.Must(t, os.WriteFile(path, []byte(content), 0o644), "cannot write config")
	return path
}

func TestLoad(t *testing.T) {
	path := writeFile(t, `
listen_addr: ":9000"
static_dir: ./static
allowed_origins: ["https://example.org"]
max_upload_bytes: 1048576
read_timeout: 30s
`)
	c, err := Load(path)
	testingx.Must(t, err, "Load failed")
	want := &Config{
		ListenAddr:      ":9000",
		StaticDir:       "./static",
		AllowedOrigins:  []string{"https://example.org"},
		MaxUploadBytes:  1 << 20,
		ReadTimeout:     30 * time.Second,
		ShutdownTimeout: DefaultShutdownTimeout,
	}
	if !reflect.DeepEqual(c, want) {
		t.Errorf("Load() = %+v, want %+v", c, want)
	}
}

func TestLoad_Errors(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "missing.yaml")); err == nil {
		t.Error("Load() of a missing file must fail")
	}
	if _, err := Load(writeFile(t, "listen_addr: [")); err == nil {
		t.Error("Load() of malformed YAML must fail")
	}
	_, err := Load(writeFile(t, "max_upload_bytes: -1"))
	if !errors.Is(err, ErrInvalidConfig) {
		t.Errorf("Load() error = %v, want %v", err, ErrInvalidConfig)
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		modify func(c *Config)
		valid  bool
	}{
		{name: "default", modify: func(c *Config) {}, valid: true},
		{name: "empty-listen", modify: func(c *Config) { c.ListenAddr = " " }},
		{name: "negative-cap", modify: func(c *Config) { c.MaxUploadBytes = -5 }},
		{name: "negative-read-timeout", modify: func(c *Config) { c.ReadTimeout = -time.Second }},
		{name: "negative-shutdown", modify: func(c *Config) { c.ShutdownTimeout = -time.Second }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := Default()
			tt.modify(c)
			err := c.Validate()
			if tt.valid && err != nil {
				t.Errorf("Validate() = %v, want nil", err)
			}
			if !tt.valid && !errors.Is(err, ErrInvalidConfig) {
				t.Errorf("Validate() = %v, want %v", err, ErrInvalidConfig)
			}
		})
	}
}

func TestSplitComma(t *testing.T) {
	got := SplitComma(" a, ,b ,")
	if want := []string{"a", "b"}; !reflect.DeepEqual(got, want) {
		t.Errorf("SplitComma() = %v, want %v", got, want)
	}
}
