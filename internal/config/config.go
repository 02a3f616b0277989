package config

import "time"

// Config holds server configuration values.
type Config struct {
	DBPath          string        `mapstructure:"db_path" yaml:"db_path"`
	LogLevel        string        `mapstructure:"log_level" yaml:"log_level"`
	AuditPath       string        `mapstructure:"audit_path" yaml:"audit_path"`
	HistoryLimit    int           `mapstructure:"history_limit" yaml:"history_limit"`
	SessionPolicy   string        `mapstructure:"session_policy" yaml:"session_policy"`
	GroupNameScope  string        `mapstructure:"group_name_scope" yaml:"group_name_scope"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout" yaml:"shutdown_timeout"`
}

// Default returns configuration with reasonable starter defaults.
func Default() Config {
	return Config{
		DBPath:          "termchat.db",
		LogLevel:        "info",
		AuditPath:       "audit.csv",
		HistoryLimit:    50,
		SessionPolicy:   "supersede",
		GroupNameScope:  "member",
		ShutdownTimeout: 5 * time.Second,
	}
}

// UpdateFrom overwrites non-zero values from other config into receiver.
func (c *Config) UpdateFrom(other Config) {
	if other.DBPath != "" {
		c.DBPath = other.DBPath
	}
	if other.LogLevel != "" {
		c.LogLevel = other.LogLevel
	}
	if other.AuditPath != "" {
		c.AuditPath = other.AuditPath
	}
	if other.HistoryLimit != 0 {
		c.HistoryLimit = other.HistoryLimit
	}
	if other.SessionPolicy != "" {
		c.SessionPolicy = other.SessionPolicy
	}
	if other.GroupNameScope != "" {
		c.GroupNameScope = other.GroupNameScope
	}
	if other.ShutdownTimeout != 0 {
		c.ShutdownTimeout = other.ShutdownTimeout
	}
}
