package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func writeFile(t *testing.T, content string) string {
	t.Helper()

	path := filepath.Join(t.TempDir(), "msgsock.toml")
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatalf("os.WriteFile() error = %v", err)
	}
	return path
}

func TestLoadFile_Server(t *testing.T) {
	t.Parallel()

	path := writeFile(t, `
[server]
host = "0.0.0.0"
port = 0
mode = "posix"
publish = true
name = "lobby"
type = "_chat._tcp"
max_conns = 8
codec = "cbor"
timeout = "3s"
`)

	f, err := LoadFile(path)
	if err != nil {
		t.Fatalf("LoadFile() error = %v", err)
	}

	cfg := &Server{Shared: Shared{Port: 4242}}
	if err := f.Server.Apply(cfg); err != nil {
		t.Fatalf("Apply() error = %v", err)
	}

	if cfg.Host != "0.0.0.0" || cfg.Port != 0 {
		t.Errorf("address = %s:%d, want 0.0.0.0:0", cfg.Host, cfg.Port)
	}
	if cfg.Mode != ModePOSIX || !cfg.Publish || cfg.ServiceName != "lobby" || cfg.ServiceType != "_chat._tcp" {
		t.Errorf("server settings not applied: %+v", cfg)
	}
	if cfg.MaxConns != 8 || cfg.Codec != "cbor" || cfg.Timeout != 3*time.Second {
		t.Errorf("shared settings not applied: %+v", cfg.Shared)
	}
	if errs := cfg.Validate(); len(errs) > 0 {
		t.Errorf("Validate() = %v", errs)
	}
}

func TestLoadFile_ClientKeepsUnsetFields(t *testing.T) {
	t.Parallel()

	path := writeFile(t, `
[client]
service = "lobby"
mux = true
`)

	f, err := LoadFile(path)
	if err != nil {
		t.Fatalf("LoadFile() error = %v", err)
	}

	cfg := &Client{Shared: Shared{Host: "10.0.0.1", Port: 99, Protocol: ProtoUDP}}
	if err := f.Client.Apply(cfg); err != nil {
		t.Fatalf("Apply() error = %v", err)
	}
	if cfg.Service != "lobby" || !cfg.Multiplex || cfg.Host != "10.0.0.1" || cfg.Port != 99 || cfg.Protocol != ProtoUDP {
		t.Errorf("Apply() = %+v", cfg)
	}
}

func TestLoadFile_Errors(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		content string
		wantSub string
	}{
		{"unknown key", "[server]\nprot = 1\n", "unknown keys"},
		{"syntax", "[server\n", "toml.DecodeFile"},
		{"bad duration", "[client]\ntimeout = \"soon\"\n", "duration"},
	}

	for _, tc := range tests {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			_, err := LoadFile(writeFile(t, tc.content))
			if err == nil || !strings.Contains(err.Error(), tc.wantSub) {
				t.Errorf("LoadFile() error = %v, want containing %q", err, tc.wantSub)
			}
		})
	}

	if _, err := LoadFile(filepath.Join(t.TempDir(), "missing.toml")); err == nil {
		t.Error("LoadFile(missing) error = nil")
	}
}

func TestFileServer_ApplyBadValues(t *testing.T) {
	t.Parallel()

	if err := (&FileServer{Mode: "cf"}).Apply(&Server{}); err == nil {
		t.Error("Apply(mode=cf) error = nil")
	}
	if err := (&FileServer{FileShared: FileShared{Protocol: "sctp"}}).Apply(&Server{}); err == nil {
		t.Error("Apply(protocol=sctp) error = nil")
	}
}
