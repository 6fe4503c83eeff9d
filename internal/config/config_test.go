package config

import (
	"testing"
	"time"
)

func TestNew_Defaults(t *testing.T) {
	t.Setenv("TELEGRAM_BOT_TOKEN", "token")
	cfg, err := New()
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if cfg.FlushInterval != 15*time.Second {
		t.Fatalf("flush interval: %s", cfg.FlushInterval)
	}
	if cfg.BufferCapacity != 100 || cfg.BackupInterval != 20 || cfg.MinBackupsToKeep != 50 || cfg.BackupRetentionDays != 30 {
		t.Fatalf("unexpected defaults: %+v", cfg)
	}
	if !cfg.AutoDST || cfg.Timezone != "Europe/Kiev" {
		t.Fatalf("unexpected tz defaults: %+v", cfg)
	}
	if cfg.LockTimeout != 0 {
		t.Fatalf("lock timeout should default to wait forever, got %s", cfg.LockTimeout)
	}
}

func TestNew_BootstrapAdminsAndOverrides(t *testing.T) {
	t.Setenv("TELEGRAM_BOT_TOKEN", "token")
	t.Setenv("BOOTSTRAP_ADMINS", "1:2:3")
	t.Setenv("AUTO_DAYLIGHT_SAVINGS", "false")
	t.Setenv("FIXED_UTC_OFFSET", "5.5")
	t.Setenv("LOCK_TIMEOUT", "3s")
	cfg, err := New()
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if len(cfg.BootstrapAdmins) != 3 || cfg.BootstrapAdmins[2] != 3 {
		t.Fatalf("admins: %v", cfg.BootstrapAdmins)
	}
	if cfg.AutoDST || cfg.FixedUTCOffset != 5.5 || cfg.LockTimeout != 3*time.Second {
		t.Fatalf("overrides not applied: %+v", cfg)
	}
}

func TestNew_RejectsBadBuffer(t *testing.T) {
	t.Setenv("TELEGRAM_BOT_TOKEN", "token")
	t.Setenv("BUFFER_CAPACITY", "0")
	if _, err := New(); err == nil {
		t.Fatalf("expected validation error")
	}
}
