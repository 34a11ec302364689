package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()
	if cfg.SecretKey != "" {
		t.Errorf("SecretKey = %q, want empty", cfg.SecretKey)
	}
	if len(cfg.Relays) != 0 {
		t.Errorf("Relays = %v, want empty", cfg.Relays)
	}
	if len(cfg.DefaultRelays) != 4 {
		t.Errorf("DefaultRelays has %d entries, want 4", len(cfg.DefaultRelays))
	}
}

func TestActiveRelays_FallsBackToDefaults(t *testing.T) {
	cfg := DefaultConfig()
	active := cfg.ActiveRelays()
	if len(active) != len(cfg.DefaultRelays) {
		t.Fatalf("ActiveRelays() returned %d relays, want %d", len(active), len(cfg.DefaultRelays))
	}
	for i, r := range active {
		if r != cfg.DefaultRelays[i] {
			t.Errorf("ActiveRelays()[%d] = %q, want %q", i, r, cfg.DefaultRelays[i])
		}
	}
}

func TestActiveRelays_PrefersConfigured(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Relays = []string{"wss://custom.relay"}
	active := cfg.ActiveRelays()
	if len(active) != 1 || active[0] != "wss://custom.relay" {
		t.Errorf("ActiveRelays() = %v, want [wss://custom.relay]", active)
	}
}

func TestLoad_MissingFileReturnsDefaults(t *testing.T) {
	cfg, err := Load(t.TempDir())
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.SecretKey != "" {
		t.Errorf("SecretKey = %q, want empty", cfg.SecretKey)
	}
	if len(cfg.DefaultRelays) == 0 {
		t.Error("DefaultRelays should be populated for a fresh config")
	}
}

func TestSaveAndLoad_Roundtrip(t *testing.T) {
	tmpDir := t.TempDir()

	cfg := DefaultConfig()
	cfg.SecretKey = "nsec1testkey"
	cfg.Relays = []string{"wss://relay.test.com"}
	cfg.BlossomServer = "https://blossom.test"
	cfg.PaymentCommand = []string{"cashu", "pay"}

	if err := cfg.Save(tmpDir); err != nil {
		t.Fatalf("Save() error = %v", err)
	}

	loaded, err := Load(tmpDir)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if loaded.SecretKey != cfg.SecretKey {
		t.Errorf("SecretKey = %q, want %q", loaded.SecretKey, cfg.SecretKey)
	}
	if len(loaded.Relays) != 1 || loaded.Relays[0] != "wss://relay.test.com" {
		t.Errorf("Relays = %v, want [wss://relay.test.com]", loaded.Relays)
	}
	if loaded.BlossomServer != cfg.BlossomServer {
		t.Errorf("BlossomServer = %q, want %q", loaded.BlossomServer, cfg.BlossomServer)
	}
	if len(loaded.PaymentCommand) != 2 {
		t.Errorf("PaymentCommand = %v, want 2 entries", loaded.PaymentCommand)
	}
}

func TestSave_CreatesNestedDirectories(t *testing.T) {
	baseDir := filepath.Join(t.TempDir(), "nested", ".nostaro")

	cfg := DefaultConfig()
	if err := cfg.Save(baseDir); err != nil {
		t.Fatalf("Save() error = %v", err)
	}

	if _, err := os.Stat(filepath.Join(baseDir, "config.yaml")); err != nil {
		t.Errorf("config file not created: %v", err)
	}
}

func TestSave_FilePermissions(t *testing.T) {
	tmpDir := t.TempDir()
	cfg := DefaultConfig()
	cfg.SecretKey = "nsec1secret"
	if err := cfg.Save(tmpDir); err != nil {
		t.Fatalf("Save() error = %v", err)
	}

	info, err := os.Stat(filepath.Join(tmpDir, "config.yaml"))
	if err != nil {
		t.Fatalf("stat config: %v", err)
	}
	if perm := info.Mode().Perm(); perm != 0600 {
		t.Errorf("config file mode = %o, want 0600", perm)
	}
}

func TestBlossomURL(t *testing.T) {
	cfg := DefaultConfig()
	if got := cfg.BlossomURL(); got != DefaultBlossomServer {
		t.Errorf("BlossomURL() = %q, want default", got)
	}
	cfg.BlossomServer = "https://blossom.example.com"
	if got := cfg.BlossomURL(); got != "https://blossom.example.com" {
		t.Errorf("BlossomURL() = %q, want configured server", got)
	}
}

func TestLoad_SecretKeyNotSerializedWhenEmpty(t *testing.T) {
	tmpDir := t.TempDir()
	cfg := DefaultConfig()
	if err := cfg.Save(tmpDir); err != nil {
		t.Fatalf("Save() error = %v", err)
	}

	data, err := os.ReadFile(filepath.Join(tmpDir, "config.yaml"))
	if err != nil {
		t.Fatalf("read config: %v", err)
	}
	if len(data) == 0 {
		t.Fatal("config file is empty")
	}
	for _, forbidden := range []string{"secret_key", "blossom_server", "payment_command"} {
		if strings.Contains(string(data), forbidden) {
			t.Errorf("empty field %q should be omitted from serialized config", forbidden)
		}
	}
}
