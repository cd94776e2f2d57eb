package config

import (
	"fmt"
	"log/slog"
	"net"
	"strings"
)

var validLogLevels = map[string]bool{
	"debug":   true,
	"info":    true,
	"warn":    true,
	"warning": true,
	"error":   true,
}

// Validate checks the config for invalid values and returns all errors found.
// Out-of-range numbers are clamped to safe values; the returned errors are
// also logged as warnings and never prevent startup.
func (c *Config) Validate() []error {
	var errs []error

	if c.LogLevel != "" && !validLogLevels[strings.ToLower(c.LogLevel)] {
		errs = append(errs, fmt.Errorf("log_level %q is not valid (use debug, info, warn, error)", c.LogLevel))
		c.LogLevel = "info"
	}

	if c.LogFormat != "" && c.LogFormat != "text" && c.LogFormat != "json" {
		errs = append(errs, fmt.Errorf("log_format %q is not valid (use text or json)", c.LogFormat))
		c.LogFormat = "text"
	}

	if c.ListenAddr != "" {
		host, _, err := net.SplitHostPort(c.ListenAddr)
		if err != nil {
			errs = append(errs, fmt.Errorf("listen_addr %q is not host:port: %w", c.ListenAddr, err))
		} else if ip := net.ParseIP(host); host != "localhost" && (ip == nil || !ip.IsLoopback()) {
			errs = append(errs, fmt.Errorf("listen_addr %q is not a loopback address", c.ListenAddr))
		}
	}

	c.SystemRefreshIntervalSeconds = clamp(&errs, "system_refresh_interval_seconds", c.SystemRefreshIntervalSeconds, 1, 3600)
	c.SearchDebounceMs = clamp(&errs, "search_debounce_ms", c.SearchDebounceMs, 0, 5000)
	c.Workers = clamp(&errs, "workers", c.Workers, 1, 16)
	c.QueueSize = clamp(&errs, "queue_size", c.QueueSize, 1, 1024)
	c.NoticeBuffer = clamp(&errs, "notice_buffer", c.NoticeBuffer, 0, 10000)
	c.AuditMaxSizeMB = clamp(&errs, "audit_max_size_mb", c.AuditMaxSizeMB, 1, 1024)
	c.AuditMaxBackups = clamp(&errs, "audit_max_backups", c.AuditMaxBackups, 1, 100)

	for _, err := range errs {
		slog.Warn("config validation", "error", err)
	}

	return errs
}

func clamp(errs *[]error, name string, value, lo, hi int) int {
	if value < lo {
		*errs = append(*errs, fmt.Errorf("%s %d is below minimum %d, clamping", name, value, lo))
		return lo
	}
	if value > hi {
		*errs = append(*errs, fmt.Errorf("%s %d exceeds maximum %d, clamping", name, value, hi))
		return hi
	}
	return value
}
