package config

import (
	"errors"
	"os"
	"path/filepath"
	"runtime"

	"github.com/spf13/viper"
)

// FileName is the base name of the YAML config file.
const FileName = "sysview"

type Config struct {
	LogLevel      string `mapstructure:"log_level" yaml:"log_level"`
	LogFormat     string `mapstructure:"log_format" yaml:"log_format"`
	LogFile       string `mapstructure:"log_file" yaml:"log_file"`
	LogMaxSizeMB  int    `mapstructure:"log_max_size_mb" yaml:"log_max_size_mb"`
	LogMaxBackups int    `mapstructure:"log_max_backups" yaml:"log_max_backups"`
	NoticeBuffer  int    `mapstructure:"notice_buffer" yaml:"notice_buffer"`

	ListenAddr string `mapstructure:"listen_addr" yaml:"listen_addr"`

	SystemRefreshIntervalSeconds int `mapstructure:"system_refresh_interval_seconds" yaml:"system_refresh_interval_seconds"`
	SearchDebounceMs             int `mapstructure:"search_debounce_ms" yaml:"search_debounce_ms"`

	IncludeUserSoftware  bool `mapstructure:"include_user_software" yaml:"include_user_software"`
	SkipSystemComponents bool `mapstructure:"skip_system_components" yaml:"skip_system_components"`
	ShowDisabledStartup  bool `mapstructure:"show_disabled_startup" yaml:"show_disabled_startup"`

	Workers   int `mapstructure:"workers" yaml:"workers"`
	QueueSize int `mapstructure:"queue_size" yaml:"queue_size"`

	AuditEnabled    bool   `mapstructure:"audit_enabled" yaml:"audit_enabled"`
	AuditFile       string `mapstructure:"audit_file" yaml:"audit_file"`
	AuditMaxSizeMB  int    `mapstructure:"audit_max_size_mb" yaml:"audit_max_size_mb"`
	AuditMaxBackups int    `mapstructure:"audit_max_backups" yaml:"audit_max_backups"`
}

func Default() *Config {
	return &Config{
		LogLevel:                     "info",
		LogFormat:                    "text",
		LogMaxSizeMB:                 10,
		LogMaxBackups:                3,
		NoticeBuffer:                 100,
		ListenAddr:                   "127.0.0.1:8787",
		SystemRefreshIntervalSeconds: 1,
		SearchDebounceMs:             200,
		ShowDisabledStartup:          true,
		Workers:                      2,
		QueueSize:                    16,
		AuditEnabled:                 true,
		AuditMaxSizeMB:               10,
		AuditMaxBackups:              3,
	}
}

// Load reads cfgFile, or sysview.yaml from the config directory and the
// working directory when cfgFile is empty. A missing file is not an error.
// SYSVIEW_* environment variables override file values.
func Load(cfgFile string) (*Config, error) {
	v := viper.New()
	setDefaults(v, Default())

	if cfgFile != "" {
		v.SetConfigFile(cfgFile)
	} else {
		v.SetConfigName(FileName)
		v.SetConfigType("yaml")
		v.AddConfigPath(Dir())
		v.AddConfigPath(".")
	}

	v.SetEnvPrefix("SYSVIEW")
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, err
		}
	}

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// SaveTo writes cfg as YAML to cfgFile, or to the default location when
// cfgFile is empty.
func SaveTo(cfg *Config, cfgFile string) error {
	v := viper.New()
	setDefaults(v, cfg)

	cfgPath := cfgFile
	if cfgPath == "" {
		cfgPath = filepath.Join(Dir(), FileName+".yaml")
	}
	if dir := filepath.Dir(cfgPath); dir != "." {
		if err := os.MkdirAll(dir, 0700); err != nil {
			return err
		}
	}

	return v.WriteConfigAs(cfgPath)
}

func setDefaults(v *viper.Viper, cfg *Config) {
	v.SetDefault("log_level", cfg.LogLevel)
	v.SetDefault("log_format", cfg.LogFormat)
	v.SetDefault("log_file", cfg.LogFile)
	v.SetDefault("log_max_size_mb", cfg.LogMaxSizeMB)
	v.SetDefault("log_max_backups", cfg.LogMaxBackups)
	v.SetDefault("notice_buffer", cfg.NoticeBuffer)
	v.SetDefault("listen_addr", cfg.ListenAddr)
	v.SetDefault("system_refresh_interval_seconds", cfg.SystemRefreshIntervalSeconds)
	v.SetDefault("search_debounce_ms", cfg.SearchDebounceMs)
	v.SetDefault("include_user_software", cfg.IncludeUserSoftware)
	v.SetDefault("skip_system_components", cfg.SkipSystemComponents)
	v.SetDefault("show_disabled_startup", cfg.ShowDisabledStartup)
	v.SetDefault("workers", cfg.Workers)
	v.SetDefault("queue_size", cfg.QueueSize)
	v.SetDefault("audit_enabled", cfg.AuditEnabled)
	v.SetDefault("audit_file", cfg.AuditFile)
	v.SetDefault("audit_max_size_mb", cfg.AuditMaxSizeMB)
	v.SetDefault("audit_max_backups", cfg.AuditMaxBackups)
}

// AuditPath returns the action journal location, defaulting to
// actions.jsonl in the config directory.
func (c *Config) AuditPath() string {
	if c.AuditFile != "" {
		return c.AuditFile
	}
	return filepath.Join(Dir(), "actions.jsonl")
}

// Dir returns the per-user configuration directory.
func Dir() string {
	if runtime.GOOS == "windows" {
		if appData := os.Getenv("APPDATA"); appData != "" {
			return filepath.Join(appData, "sysview")
		}
	}
	if dir, err := os.UserConfigDir(); err == nil {
		return filepath.Join(dir, "sysview")
	}
	return "."
}
