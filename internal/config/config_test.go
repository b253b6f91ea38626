package config_test

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"ttrack/internal/config"
)

func TestManagerRoundTrip(t *testing.T) {
	cfg := config.NewConfig("/home/user/.local/share/ttrack")
	cfg.TimeZone = "Europe/Berlin"

	m := &config.Manager{}
	var buf bytes.Buffer
	if err := m.Write(&buf, cfg); err != nil {
		t.Fatalf("Write() error = %v", err)
	}

	got, err := m.Read(&buf)
	if err != nil {
		t.Fatalf("Read() error = %v", err)
	}
	if got.BaseDir != cfg.BaseDir || got.TimeZone != cfg.TimeZone {
		t.Errorf("round-trip mismatch: %+v", got)
	}
	if got.Database.Type != "sqlite" || got.Database.DataDir != cfg.Database.DataDir {
		t.Errorf("database config mismatch: %+v", got.Database)
	}
	if got.API.ListenAddr != cfg.API.ListenAddr {
		t.Errorf("api config mismatch: %+v", got.API)
	}
}

func TestReadFromFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "ttrack.toml")

	content := `
base_dir = "/data/ttrack"
log_dir = "/data/ttrack/log"
time_zone = "UTC"

[database]
type = "memory"

[api]
listen_addr = "127.0.0.1:9000"
`
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatalf("writing fixture: %v", err)
	}

	cfg, err := config.ReadFromFile(path)
	if err != nil {
		t.Fatalf("ReadFromFile() error = %v", err)
	}
	if cfg.Database.Type != "memory" || cfg.API.ListenAddr != "127.0.0.1:9000" {
		t.Errorf("parsed config = %+v", cfg)
	}

	if _, err := config.ReadFromFile(filepath.Join(dir, "missing.toml")); err == nil {
		t.Error("ReadFromFile() succeeded on a missing file")
	}
}

func TestInit(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "nested", "ttrack.toml")

	cfg := config.NewConfig(dir)
	if err := config.Init(path, cfg); err != nil {
		t.Fatalf("Init() error = %v", err)
	}

	// A second init must not clobber the existing file.
	err := config.Init(path, cfg)
	if err == nil || !strings.Contains(err.Error(), "already exists") {
		t.Errorf("second Init() error = %v", err)
	}
}

func TestLocation(t *testing.T) {
	cfg := &config.Config{}
	loc, err := cfg.Location()
	if err != nil || loc != time.Local {
		t.Errorf("empty time zone: %v, %v", loc, err)
	}

	cfg.TimeZone = "Europe/Berlin"
	loc, err = cfg.Location()
	if err != nil || loc.String() != "Europe/Berlin" {
		t.Errorf("named zone: %v, %v", loc, err)
	}

	cfg.TimeZone = "Not/AZone"
	if _, err := cfg.Location(); err == nil {
		t.Error("Location() accepted an unknown zone")
	}
}
