package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestDefault(t *testing.T) {
	cfg := Default()

	if cfg.Server.Host != "127.0.0.1" {
		t.Errorf("Host = %q, want %q", cfg.Server.Host, "127.0.0.1")
	}
	if cfg.Server.Port != 8844 {
		t.Errorf("Port = %d, want %d", cfg.Server.Port, 8844)
	}
	if cfg.MaxPreviewBytes() != 10*1024*1024 {
		t.Errorf("MaxPreviewBytes() = %d, want %d", cfg.MaxPreviewBytes(), 10*1024*1024)
	}
	if cfg.Scan.SnapshotMountBase == "" {
		t.Error("SnapshotMountBase is empty")
	}
}

func TestReadOverridesOnlyNamedFields(t *testing.T) {
	in := strings.NewReader(`
[server]
port = 9000

[recovery]
default_destination = "/Volumes/Rescue"
`)
	cfg, err := Read(in)
	if err != nil {
		t.Fatalf("Read() error = %v", err)
	}

	if cfg.Server.Port != 9000 {
		t.Errorf("Port = %d, want %d", cfg.Server.Port, 9000)
	}
	if cfg.Server.Host != "127.0.0.1" {
		t.Errorf("Host = %q, want default %q", cfg.Server.Host, "127.0.0.1")
	}
	if cfg.Recovery.DefaultDestination != "/Volumes/Rescue" {
		t.Errorf("DefaultDestination = %q, want %q", cfg.Recovery.DefaultDestination, "/Volumes/Rescue")
	}
}

func TestReadRejectsMalformedTOML(t *testing.T) {
	if _, err := Read(strings.NewReader("[server\nport = ")); err == nil {
		t.Fatal("Read() expected error for malformed input")
	}
}

func TestLoad(t *testing.T) {
	t.Run("reads existing file", func(t *testing.T) {
		dir := t.TempDir()
		path := filepath.Join(dir, "recoverd.toml")
		if err := os.WriteFile(path, []byte("[server]\nhost = \"0.0.0.0\"\n"), 0o644); err != nil {
			t.Fatal(err)
		}

		cfg, err := Load(path)
		if err != nil {
			t.Fatalf("Load() error = %v", err)
		}
		if cfg.Server.Host != "0.0.0.0" {
			t.Errorf("Host = %q, want %q", cfg.Server.Host, "0.0.0.0")
		}
	})

	t.Run("missing file falls back to defaults", func(t *testing.T) {
		cfg, err := Load(filepath.Join(t.TempDir(), "absent.toml"))
		if err != nil {
			t.Fatalf("Load() error = %v", err)
		}
		if cfg.Server.Port != Default().Server.Port {
			t.Errorf("Port = %d, want default %d", cfg.Server.Port, Default().Server.Port)
		}
	})
}
