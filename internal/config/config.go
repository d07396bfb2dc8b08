// Package config loads shepherd settings from an optional YAML file and
// SHEPHERD_* environment variables.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"
)

const (
	BackendFile   = "file"
	BackendSQLite = "sqlite"
)

type Config struct {
	DataDir    string         `yaml:"data_dir" mapstructure:"data_dir"`
	Timezone   string         `yaml:"timezone" mapstructure:"timezone"`
	ThemesFile string         `yaml:"themes_file" mapstructure:"themes_file"`
	Log        LogConfig      `yaml:"log" mapstructure:"log"`
	State      StateConfig    `yaml:"state" mapstructure:"state"`
	PCO        PCOConfig      `yaml:"pco" mapstructure:"pco"`
	Notion     NotionConfig   `yaml:"notion" mapstructure:"notion"`
	Telegram   TelegramConfig `yaml:"telegram" mapstructure:"telegram"`
	HTTP       HTTPConfig     `yaml:"http" mapstructure:"http"`
	Reminder   ReminderConfig `yaml:"reminder" mapstructure:"reminder"`
	Backup     BackupConfig   `yaml:"backup" mapstructure:"backup"`
}

type LogConfig struct {
	Level  string `yaml:"level" mapstructure:"level"`
	Format string `yaml:"format" mapstructure:"format"`
}

// StateConfig selects where monthly follow-up state is persisted.
type StateConfig struct {
	Backend  string `yaml:"backend" mapstructure:"backend"`
	File     string `yaml:"file" mapstructure:"file"`
	Database string `yaml:"database" mapstructure:"database"`
}

type PCOConfig struct {
	AppID   string `yaml:"app_id" mapstructure:"app_id"`
	Secret  string `yaml:"secret" mapstructure:"secret"`
	ListID  string `yaml:"list_id" mapstructure:"list_id"`
	BaseURL string `yaml:"base_url" mapstructure:"base_url"`
}

type NotionConfig struct {
	Token          string `yaml:"token" mapstructure:"token"`
	PeopleDatabase string `yaml:"people_database" mapstructure:"people_database"`
	BaseURL        string `yaml:"base_url" mapstructure:"base_url"`
}

type TelegramConfig struct {
	BotToken string `yaml:"bot_token" mapstructure:"bot_token"`
	ChatID   string `yaml:"chat_id" mapstructure:"chat_id"`
}

type HTTPConfig struct {
	Port string `yaml:"port" mapstructure:"port"`
	// Token, when set, is required as a bearer token on API requests.
	Token string `yaml:"token" mapstructure:"token"`
}

type ReminderConfig struct {
	Time string `yaml:"time" mapstructure:"time"`
}

// BackupConfig points at an S3-compatible bucket for encrypted state backups.
type BackupConfig struct {
	Endpoint      string `yaml:"endpoint" mapstructure:"endpoint"`
	Bucket        string `yaml:"bucket" mapstructure:"bucket"`
	Region        string `yaml:"region" mapstructure:"region"`
	AccessKey     string `yaml:"access_key" mapstructure:"access_key"`
	SecretKey     string `yaml:"secret_key" mapstructure:"secret_key"`
	Prefix        string `yaml:"prefix" mapstructure:"prefix"`
	Passphrase    string `yaml:"passphrase" mapstructure:"passphrase"`
	RetentionDays int    `yaml:"retention_days" mapstructure:"retention_days"`
}

// DefaultConfig returns the default configuration
func DefaultConfig() *Config {
	return &Config{
		DataDir:  DefaultDataDir(),
		Timezone: "America/Chicago",
		Log: LogConfig{
			Level:  "info",
			Format: "text",
		},
		State: StateConfig{
			Backend:  BackendFile,
			File:     "followup_state.json",
			Database: "shepherd.db",
		},
		PCO: PCOConfig{
			BaseURL: "https://api.planningcenteronline.com",
		},
		Notion: NotionConfig{
			BaseURL: "https://api.notion.com/v1",
		},
		HTTP: HTTPConfig{
			Port: "8080",
		},
		Reminder: ReminderConfig{
			Time: "08:00",
		},
		Backup: BackupConfig{
			Region:        "us-east-1",
			Prefix:        "shepherd",
			RetentionDays: 30,
		},
	}
}

// DefaultDataDir returns ~/.shepherd, or .shepherd when there is no home directory.
func DefaultDataDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ".shepherd"
	}
	return filepath.Join(home, ".shepherd")
}

// DefaultPath returns the config file read when no path is given.
func DefaultPath() string {
	return filepath.Join(DefaultDataDir(), "config.yaml")
}

// Load reads the config file at path (skipped if it does not exist), applies
// SHEPHERD_* environment overrides and resolves relative paths against the
// data directory.
func Load(path string) (*Config, error) {
	cfg := DefaultConfig()

	v := viper.New()
	setDefaults(v, cfg)
	v.SetEnvPrefix("SHEPHERD")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		if _, err := os.Stat(path); err == nil {
			v.SetConfigFile(path)
			v.SetConfigType("yaml")
			if err := v.ReadInConfig(); err != nil {
				return nil, fmt.Errorf("read config %s: %w", path, err)
			}
		} else if !os.IsNotExist(err) {
			return nil, fmt.Errorf("stat config %s: %w", path, err)
		}
	}

	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}
	cfg.resolvePaths()

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Every key needs a default so AutomaticEnv can see it during Unmarshal.
func setDefaults(v *viper.Viper, cfg *Config) {
	defaults := map[string]any{
		"data_dir":               cfg.DataDir,
		"timezone":               cfg.Timezone,
		"themes_file":            cfg.ThemesFile,
		"log.level":              cfg.Log.Level,
		"log.format":             cfg.Log.Format,
		"state.backend":          cfg.State.Backend,
		"state.file":             cfg.State.File,
		"state.database":         cfg.State.Database,
		"pco.app_id":             cfg.PCO.AppID,
		"pco.secret":             cfg.PCO.Secret,
		"pco.list_id":            cfg.PCO.ListID,
		"pco.base_url":           cfg.PCO.BaseURL,
		"notion.token":           cfg.Notion.Token,
		"notion.people_database": cfg.Notion.PeopleDatabase,
		"notion.base_url":        cfg.Notion.BaseURL,
		"telegram.bot_token":     cfg.Telegram.BotToken,
		"telegram.chat_id":       cfg.Telegram.ChatID,
		"http.port":              cfg.HTTP.Port,
		"http.token":             cfg.HTTP.Token,
		"reminder.time":          cfg.Reminder.Time,
		"backup.endpoint":        cfg.Backup.Endpoint,
		"backup.bucket":          cfg.Backup.Bucket,
		"backup.region":          cfg.Backup.Region,
		"backup.access_key":      cfg.Backup.AccessKey,
		"backup.secret_key":      cfg.Backup.SecretKey,
		"backup.prefix":          cfg.Backup.Prefix,
		"backup.passphrase":      cfg.Backup.Passphrase,
		"backup.retention_days":  cfg.Backup.RetentionDays,
	}
	for k, val := range defaults {
		v.SetDefault(k, val)
	}
}

func (c *Config) resolvePaths() {
	c.State.File = c.resolve(c.State.File)
	c.State.Database = c.resolve(c.State.Database)
	if c.ThemesFile != "" {
		c.ThemesFile = c.resolve(c.ThemesFile)
	}
}

func (c *Config) resolve(p string) string {
	if p == "" || filepath.IsAbs(p) || p == ":memory:" {
		return p
	}
	return filepath.Join(c.DataDir, p)
}

// Validate checks values that would otherwise fail far from the config.
func (c *Config) Validate() error {
	switch c.State.Backend {
	case BackendFile, BackendSQLite:
	default:
		return fmt.Errorf("invalid state backend %q: want %q or %q", c.State.Backend, BackendFile, BackendSQLite)
	}
	if _, err := time.LoadLocation(c.Timezone); err != nil {
		return fmt.Errorf("invalid timezone %q: %w", c.Timezone, err)
	}
	if _, err := time.Parse("15:04", c.Reminder.Time); err != nil {
		return fmt.Errorf("invalid reminder time %q: want HH:MM", c.Reminder.Time)
	}
	if c.Backup.RetentionDays < 0 {
		return fmt.Errorf("invalid backup retention %d: must not be negative", c.Backup.RetentionDays)
	}
	return nil
}

// Location returns the configured time zone. Call after Validate.
func (c *Config) Location() *time.Location {
	loc, err := time.LoadLocation(c.Timezone)
	if err != nil {
		return time.Local
	}
	return loc
}
