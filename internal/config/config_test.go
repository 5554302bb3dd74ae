package config

import (
	"os"
	"testing"
	"time"
)

func clearEnv(t *testing.T) {
	t.Helper()
	for _, key := range []string{
		"PORT", "LOG_LEVEL", "DB_PATH", "SWEEP_INTERVAL", "NOTIFY_URL",
		"NOTIFY_TIMEOUT", "READ_TIMEOUT", "WRITE_TIMEOUT", "IDLE_TIMEOUT",
		"SHUTDOWN_TIMEOUT",
	} {
		t.Setenv(key, "")
		os.Unsetenv(key)
	}
}

func TestLoad_Defaults(t *testing.T) {
	clearEnv(t)

	cfg, err := Load()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if cfg.Port != 8080 {
		t.Errorf("Port = %d, want 8080", cfg.Port)
	}
	if cfg.LogLevel != "info" {
		t.Errorf("LogLevel = %q, want %q", cfg.LogLevel, "info")
	}
	if cfg.DBPath != "" {
		t.Errorf("DBPath = %q, want empty", cfg.DBPath)
	}
	if cfg.SweepInterval != 1*time.Second {
		t.Errorf("SweepInterval = %v, want 1s", cfg.SweepInterval)
	}
	if cfg.NotifyURL != "" {
		t.Errorf("NotifyURL = %q, want empty", cfg.NotifyURL)
	}
	if cfg.NotifyTimeout != 5*time.Second {
		t.Errorf("NotifyTimeout = %v, want 5s", cfg.NotifyTimeout)
	}
	if cfg.ReadTimeout != 5*time.Second {
		t.Errorf("ReadTimeout = %v, want 5s", cfg.ReadTimeout)
	}
	if cfg.WriteTimeout != 10*time.Second {
		t.Errorf("WriteTimeout = %v, want 10s", cfg.WriteTimeout)
	}
	if cfg.IdleTimeout != 60*time.Second {
		t.Errorf("IdleTimeout = %v, want 60s", cfg.IdleTimeout)
	}
	if cfg.ShutdownTimeout != 10*time.Second {
		t.Errorf("ShutdownTimeout = %v, want 10s", cfg.ShutdownTimeout)
	}
}

func TestLoad_CustomValues(t *testing.T) {
	clearEnv(t)
	t.Setenv("PORT", "9090")
	t.Setenv("LOG_LEVEL", "debug")
	t.Setenv("DB_PATH", "/var/lib/boursechain/ledger.db")
	t.Setenv("SWEEP_INTERVAL", "500ms")
	t.Setenv("NOTIFY_URL", "http://localhost:9000/hook")
	t.Setenv("NOTIFY_TIMEOUT", "3s")
	t.Setenv("READ_TIMEOUT", "2s")
	t.Setenv("WRITE_TIMEOUT", "5s")
	t.Setenv("IDLE_TIMEOUT", "30s")
	t.Setenv("SHUTDOWN_TIMEOUT", "15s")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if cfg.Port != 9090 {
		t.Errorf("Port = %d, want 9090", cfg.Port)
	}
	if cfg.LogLevel != "debug" {
		t.Errorf("LogLevel = %q, want %q", cfg.LogLevel, "debug")
	}
	if cfg.DBPath != "/var/lib/boursechain/ledger.db" {
		t.Errorf("DBPath = %q, want %q", cfg.DBPath, "/var/lib/boursechain/ledger.db")
	}
	if cfg.SweepInterval != 500*time.Millisecond {
		t.Errorf("SweepInterval = %v, want 500ms", cfg.SweepInterval)
	}
	if cfg.NotifyURL != "http://localhost:9000/hook" {
		t.Errorf("NotifyURL = %q, want %q", cfg.NotifyURL, "http://localhost:9000/hook")
	}
	if cfg.NotifyTimeout != 3*time.Second {
		t.Errorf("NotifyTimeout = %v, want 3s", cfg.NotifyTimeout)
	}
}

func TestLoad_InvalidPort(t *testing.T) {
	clearEnv(t)
	t.Setenv("PORT", "not-a-number")

	_, err := Load()
	if err == nil {
		t.Fatal("expected error for invalid PORT")
	}
}

func TestLoad_InvalidLogLevel(t *testing.T) {
	clearEnv(t)
	t.Setenv("LOG_LEVEL", "verbose")

	_, err := Load()
	if err == nil {
		t.Fatal("expected error for invalid LOG_LEVEL")
	}
}

func TestLoad_InvalidDuration(t *testing.T) {
	clearEnv(t)

	keys := []string{
		"SWEEP_INTERVAL", "NOTIFY_TIMEOUT",
		"READ_TIMEOUT", "WRITE_TIMEOUT", "IDLE_TIMEOUT", "SHUTDOWN_TIMEOUT",
	}

	for _, key := range keys {
		t.Run(key, func(t *testing.T) {
			clearEnv(t)
			t.Setenv(key, "not-a-duration")

			_, err := Load()
			if err == nil {
				t.Fatalf("expected error for invalid %s", key)
			}
		})
	}
}
