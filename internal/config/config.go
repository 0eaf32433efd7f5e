// Package config assembles the pipeline configuration from the environment.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// S3Config holds optional S3-compatible offsite storage settings for
// backups.
type S3Config struct {
	Endpoint  string
	Bucket    string
	Region    string
	AccessKey string
	SecretKey string
}

// Config carries everything the components read from the environment. It is
// constructed once at process start and passed explicitly; nothing reads the
// environment after Load returns.
type Config struct {
	BaseURL  string
	Username string
	Password string
	Timeout  time.Duration

	HoursTableID  int64
	NamesTableID  int64
	ReportTableID int64

	KitaYear           int
	InclusiveYearStart bool

	BackupDir        string
	KeepBackups      int
	BackupPassphrase string
	S3               S3Config

	DBPath   string
	LogLevel string
}

// Load reads the configuration, optionally sourcing a .env file first.
// Without an explicit path, a ./.env file is used when present and silently
// skipped otherwise.
func Load(envFile string) (*Config, error) {
	if envFile != "" {
		if err := godotenv.Load(envFile); err != nil {
			return nil, fmt.Errorf("load env file %s: %w", envFile, err)
		}
	} else {
		_ = godotenv.Load()
	}

	timeoutSecs, err := floatEnv("NEXTCLOUD_TIMEOUT", 30)
	if err != nil {
		return nil, err
	}

	cfg := &Config{
		BaseURL:  strings.TrimRight(os.Getenv("BASE_URL"), "/"),
		Username: os.Getenv("NEXTCLOUD_USER"),
		Password: os.Getenv("NEXTCLOUD_PASSWORD"),
		Timeout:  time.Duration(timeoutSecs * float64(time.Second)),

		InclusiveYearStart: boolEnv("KITA_YEAR_INCLUSIVE_START"),

		BackupDir:        os.Getenv("BACKUP_PATH"),
		BackupPassphrase: os.Getenv("BACKUP_PASSPHRASE"),
		S3: S3Config{
			Endpoint:  os.Getenv("BACKUP_S3_ENDPOINT"),
			Bucket:    os.Getenv("BACKUP_S3_BUCKET"),
			Region:    os.Getenv("BACKUP_S3_REGION"),
			AccessKey: os.Getenv("BACKUP_S3_ACCESS_KEY"),
			SecretKey: os.Getenv("BACKUP_S3_SECRET_KEY"),
		},

		DBPath:   os.Getenv("KITAHOURS_DB_PATH"),
		LogLevel: os.Getenv("LOG_LEVEL"),
	}

	for _, v := range []struct {
		name string
		dst  *int64
	}{
		{"HOURS_TABLE_ID", &cfg.HoursTableID},
		{"NAMES_TABLE_ID", &cfg.NamesTableID},
		{"FAMILY_HOURS_TABLE_ID", &cfg.ReportTableID},
	} {
		n, err := intEnv(v.name, 0)
		if err != nil {
			return nil, err
		}
		*v.dst = n
	}

	year, err := intEnv("KITA_YEAR", int64(defaultKitaYear(time.Now())))
	if err != nil {
		return nil, err
	}
	cfg.KitaYear = int(year)

	keep, err := intEnv("KEEP_N_BACKUPS", 5)
	if err != nil {
		return nil, err
	}
	cfg.KeepBackups = int(keep)

	return cfg, nil
}

// Validate fails fast on settings the API client cannot work without,
// before any network call is attempted.
func (c *Config) Validate() error {
	if c.BaseURL == "" {
		return errors.New("BASE_URL is not configured")
	}
	if c.Username == "" || c.Password == "" {
		return errors.New("NEXTCLOUD_USER or NEXTCLOUD_PASSWORD is not configured")
	}
	return nil
}

// ValidatePipeline additionally requires the three table ids and a year.
func (c *Config) ValidatePipeline() error {
	if err := c.Validate(); err != nil {
		return err
	}
	if c.HoursTableID == 0 || c.NamesTableID == 0 || c.ReportTableID == 0 {
		return errors.New("HOURS_TABLE_ID, NAMES_TABLE_ID and FAMILY_HOURS_TABLE_ID must all be set")
	}
	if c.KitaYear == 0 {
		return errors.New("KITA_YEAR is not configured")
	}
	return nil
}

// ValidateBackup requires a backup directory on top of the base settings.
func (c *Config) ValidateBackup() error {
	if err := c.Validate(); err != nil {
		return err
	}
	if c.BackupDir == "" {
		return errors.New("BACKUP_PATH is not configured")
	}
	return nil
}

// defaultKitaYear returns the Kita year the given instant falls into: the
// year of its most recent September 1.
func defaultKitaYear(now time.Time) int {
	if now.Month() >= time.September {
		return now.Year()
	}
	return now.Year() - 1
}

func intEnv(name string, fallback int64) (int64, error) {
	raw := strings.TrimSpace(os.Getenv(name))
	if raw == "" {
		return fallback, nil
	}
	n, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("%s: invalid integer %q", name, raw)
	}
	return n, nil
}

func floatEnv(name string, fallback float64) (float64, error) {
	raw := strings.TrimSpace(os.Getenv(name))
	if raw == "" {
		return fallback, nil
	}
	f, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		return 0, fmt.Errorf("%s: invalid number %q", name, raw)
	}
	return f, nil
}

func boolEnv(name string) bool {
	switch strings.ToLower(strings.TrimSpace(os.Getenv(name))) {
	case "1", "true", "yes", "on":
		return true
	default:
		return false
	}
}
