package config

import (
	"fmt"
	"time"

	"github.com/caarlos0/env/v6"
)

type Config struct {
	TelegramBotToken string  `env:"TELEGRAM_BOT_TOKEN,required"`
	BootstrapAdmins  []int64 `env:"BOOTSTRAP_ADMINS" envSeparator:":"`

	// Time zone
	Timezone       string  `env:"TIMEZONE" envDefault:"Europe/Kiev"`
	AutoDST        bool    `env:"AUTO_DAYLIGHT_SAVINGS" envDefault:"true"`
	FixedUTCOffset float64 `env:"FIXED_UTC_OFFSET" envDefault:"0"`

	// Storage
	ResponseDataFile   string `env:"RESPONSE_DATA_FILE" envDefault:"data/response_data.json"`
	MessageCacheFile   string `env:"MESSAGE_CACHE_FILE" envDefault:"data/message_cache.json"`
	ResponseReportFile string `env:"RESPONSE_TRACKING_FILE" envDefault:"data/response_tracking.xlsx"`
	BackupDir          string `env:"BACKUP_DIR" envDefault:"data/backups"`
	AdminUsersFile     string `env:"ADMIN_USERS_FILE" envDefault:"config/admin_users.json"`
	TargetUsersFile    string `env:"TARGET_USERS_FILE" envDefault:"config/target_users.json"`

	// Write buffer
	FlushInterval  time.Duration `env:"FLUSH_INTERVAL" envDefault:"15s"`
	BufferCapacity int           `env:"BUFFER_CAPACITY" envDefault:"100"`
	// Zero waits for the store lock forever.
	LockTimeout time.Duration `env:"LOCK_TIMEOUT" envDefault:"0s"`

	// Backups
	BackupInterval      int `env:"BACKUP_INTERVAL" envDefault:"20"`
	BackupRetentionDays int `env:"BACKUP_RETENTION_DAYS" envDefault:"30"`
	MinBackupsToKeep    int `env:"MIN_BACKUPS_TO_KEEP" envDefault:"50"`

	CleanupDefaultDays int `env:"CLEANUP_DEFAULT_DAYS" envDefault:"30"`

	// Observability
	LogLevel    string `env:"LOG_LEVEL" envDefault:"info"`
	LogFormat   string `env:"LOG_FORMAT" envDefault:"console"`
	MetricsAddr string `env:"METRICS_ADDR"`
}

// New parses the process environment into a Config.
func New() (*Config, error) {
	cfg := &Config{}
	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) Validate() error {
	if c.BufferCapacity <= 0 {
		return fmt.Errorf("BUFFER_CAPACITY must be positive, got %d", c.BufferCapacity)
	}
	if c.FlushInterval <= 0 {
		return fmt.Errorf("FLUSH_INTERVAL must be positive, got %s", c.FlushInterval)
	}
	if c.BackupInterval < 0 {
		return fmt.Errorf("BACKUP_INTERVAL must not be negative, got %d", c.BackupInterval)
	}
	if c.MinBackupsToKeep < 0 || c.BackupRetentionDays < 0 {
		return fmt.Errorf("backup retention settings must not be negative")
	}
	if c.LockTimeout < 0 {
		return fmt.Errorf("LOCK_TIMEOUT must not be negative, got %s", c.LockTimeout)
	}
	return nil
}
