package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestDefaultIsValid(t *testing.T) {
	cfg := Default()
	if errs := cfg.Validate(); len(errs) != 0 {
		t.Fatalf("Default() should validate cleanly, got %v", errs)
	}
}

func TestValidateClampsIntervals(t *testing.T) {
	cfg := Default()
	cfg.SystemRefreshIntervalSeconds = 0
	cfg.SearchDebounceMs = 60000

	errs := cfg.Validate()
	if len(errs) != 2 {
		t.Fatalf("expected 2 errors, got %v", errs)
	}
	if cfg.SystemRefreshIntervalSeconds != 1 {
		t.Fatalf("SystemRefreshIntervalSeconds = %d, want 1", cfg.SystemRefreshIntervalSeconds)
	}
	if cfg.SearchDebounceMs != 5000 {
		t.Fatalf("SearchDebounceMs = %d, want 5000", cfg.SearchDebounceMs)
	}
}

func TestValidateConcurrencyClamping(t *testing.T) {
	tests := []struct {
		name      string
		workers   int
		queue     int
		wantWork  int
		wantQueue int
	}{
		{"zero", 0, 0, 1, 1},
		{"too large", 100, 5000, 16, 1024},
		{"in range", 4, 32, 4, 32},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			cfg.Workers = tt.workers
			cfg.QueueSize = tt.queue
			cfg.Validate()
			if cfg.Workers != tt.wantWork || cfg.QueueSize != tt.wantQueue {
				t.Fatalf("got workers=%d queue=%d, want %d/%d", cfg.Workers, cfg.QueueSize, tt.wantWork, tt.wantQueue)
			}
		})
	}
}

func TestValidateLogSettings(t *testing.T) {
	cfg := Default()
	cfg.LogLevel = "verbose"
	cfg.LogFormat = "xml"

	errs := cfg.Validate()
	if len(errs) != 2 {
		t.Fatalf("expected 2 errors, got %v", errs)
	}
	if cfg.LogLevel != "info" || cfg.LogFormat != "text" {
		t.Fatalf("invalid log settings should reset, got %q/%q", cfg.LogLevel, cfg.LogFormat)
	}
}

func TestValidateRejectsNonLoopbackListen(t *testing.T) {
	for _, addr := range []string{"0.0.0.0:8787", "192.168.1.5:80", "nonsense"} {
		cfg := Default()
		cfg.ListenAddr = addr
		errs := cfg.Validate()
		if len(errs) == 0 {
			t.Fatalf("listen_addr %q should be rejected", addr)
		}
	}

	for _, addr := range []string{"127.0.0.1:1", "[::1]:8787", "localhost:9000"} {
		cfg := Default()
		cfg.ListenAddr = addr
		if errs := cfg.Validate(); len(errs) != 0 {
			t.Fatalf("listen_addr %q should be accepted, got %v", addr, errs)
		}
	}
}

func TestLoadMissingFileUsesDefaults(t *testing.T) {
	dir := t.TempDir()
	wd, err := os.Getwd()
	if err != nil {
		t.Fatal(err)
	}
	if err := os.Chdir(dir); err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { os.Chdir(wd) })

	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.SearchDebounceMs != 200 {
		t.Fatalf("SearchDebounceMs = %d, want 200", cfg.SearchDebounceMs)
	}
	if !cfg.ShowDisabledStartup {
		t.Fatal("ShowDisabledStartup should default to true")
	}
}

func TestLoadReadsFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "custom.yaml")
	body := strings.Join([]string{
		"log_level: debug",
		"include_user_software: true",
		"search_debounce_ms: 350",
	}, "\n")
	if err := os.WriteFile(path, []byte(body), 0600); err != nil {
		t.Fatal(err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.LogLevel != "debug" || !cfg.IncludeUserSoftware || cfg.SearchDebounceMs != 350 {
		t.Fatalf("unexpected config: %+v", cfg)
	}
	if cfg.Workers != 2 {
		t.Fatalf("unset keys should keep defaults, Workers = %d", cfg.Workers)
	}
}

func TestSaveToRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "sysview.yaml")
	cfg := Default()
	cfg.SkipSystemComponents = true
	cfg.Workers = 3

	if err := SaveTo(cfg, path); err != nil {
		t.Fatalf("SaveTo: %v", err)
	}
	loaded, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if !loaded.SkipSystemComponents || loaded.Workers != 3 {
		t.Fatalf("round trip lost values: %+v", loaded)
	}
}

func TestAuditPath(t *testing.T) {
	cfg := Default()
	if got := cfg.AuditPath(); filepath.Base(got) != "actions.jsonl" {
		t.Fatalf("default AuditPath() = %q", got)
	}
	cfg.AuditFile = "/var/tmp/journal.jsonl"
	if got := cfg.AuditPath(); got != "/var/tmp/journal.jsonl" {
		t.Fatalf("AuditPath() = %q", got)
	}

	cfg.AuditMaxSizeMB = 0
	cfg.Validate()
	if cfg.AuditMaxSizeMB != 1 {
		t.Fatalf("AuditMaxSizeMB = %d, want 1", cfg.AuditMaxSizeMB)
	}
}
