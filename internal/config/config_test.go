package config

import (
	"testing"
	"time"
)

func setBaseEnv(t *testing.T) {
	t.Helper()
	t.Setenv("BASE_URL", "https://cloud.example/")
	t.Setenv("NEXTCLOUD_USER", "admin")
	t.Setenv("NEXTCLOUD_PASSWORD", "secret")
}

func TestLoadDefaults(t *testing.T) {
	setBaseEnv(t)
	t.Setenv("NEXTCLOUD_TIMEOUT", "")
	t.Setenv("KEEP_N_BACKUPS", "")

	cfg, err := Load("")
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.BaseURL != "https://cloud.example" {
		t.Errorf("base url = %q, want trailing slash stripped", cfg.BaseURL)
	}
	if cfg.Timeout != 30*time.Second {
		t.Errorf("timeout = %v, want 30s default", cfg.Timeout)
	}
	if cfg.KeepBackups != 5 {
		t.Errorf("keep backups = %d, want 5 default", cfg.KeepBackups)
	}
	if cfg.KitaYear == 0 {
		t.Error("kita year = 0, want derived default")
	}
}

func TestLoadParsesValues(t *testing.T) {
	setBaseEnv(t)
	t.Setenv("NEXTCLOUD_TIMEOUT", "2.5")
	t.Setenv("HOURS_TABLE_ID", "13")
	t.Setenv("NAMES_TABLE_ID", "8")
	t.Setenv("FAMILY_HOURS_TABLE_ID", "72")
	t.Setenv("KITA_YEAR", "2025")
	t.Setenv("KITA_YEAR_INCLUSIVE_START", "true")

	cfg, err := Load("")
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Timeout != 2500*time.Millisecond {
		t.Errorf("timeout = %v, want 2.5s", cfg.Timeout)
	}
	if cfg.HoursTableID != 13 || cfg.NamesTableID != 8 || cfg.ReportTableID != 72 {
		t.Errorf("table ids = %d/%d/%d", cfg.HoursTableID, cfg.NamesTableID, cfg.ReportTableID)
	}
	if cfg.KitaYear != 2025 {
		t.Errorf("kita year = %d, want 2025", cfg.KitaYear)
	}
	if !cfg.InclusiveYearStart {
		t.Error("inclusive year start = false, want true")
	}
}

func TestLoadInvalidInteger(t *testing.T) {
	setBaseEnv(t)
	t.Setenv("HOURS_TABLE_ID", "dreizehn")

	if _, err := Load(""); err == nil {
		t.Fatal("expected error for invalid table id")
	}
}

func TestValidate(t *testing.T) {
	cfg := &Config{}
	if err := cfg.Validate(); err == nil {
		t.Error("expected error for missing base URL")
	}

	cfg.BaseURL = "https://cloud.example"
	if err := cfg.Validate(); err == nil {
		t.Error("expected error for missing credentials")
	}

	cfg.Username = "admin"
	cfg.Password = "secret"
	if err := cfg.Validate(); err != nil {
		t.Errorf("validate: %v", err)
	}

	if err := cfg.ValidatePipeline(); err == nil {
		t.Error("expected error for missing table ids")
	}
	cfg.HoursTableID, cfg.NamesTableID, cfg.ReportTableID = 13, 8, 72
	cfg.KitaYear = 2025
	if err := cfg.ValidatePipeline(); err != nil {
		t.Errorf("validate pipeline: %v", err)
	}

	if err := cfg.ValidateBackup(); err == nil {
		t.Error("expected error for missing backup dir")
	}
	cfg.BackupDir = "/tmp/backups"
	if err := cfg.ValidateBackup(); err != nil {
		t.Errorf("validate backup: %v", err)
	}
}

func TestDefaultKitaYear(t *testing.T) {
	tests := []struct {
		now  time.Time
		want int
	}{
		{time.Date(2025, time.September, 1, 0, 0, 0, 0, time.UTC), 2025},
		{time.Date(2025, time.December, 15, 0, 0, 0, 0, time.UTC), 2025},
		{time.Date(2026, time.March, 1, 0, 0, 0, 0, time.UTC), 2025},
		{time.Date(2026, time.August, 31, 0, 0, 0, 0, time.UTC), 2025},
	}
	for _, tt := range tests {
		if got := defaultKitaYear(tt.now); got != tt.want {
			t.Errorf("defaultKitaYear(%s) = %d, want %d", tt.now.Format("2006-01-02"), got, tt.want)
		}
	}
}
