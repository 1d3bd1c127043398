// Package config provides configuration types and defaults for edufocus.
package config

import (
	"fmt"
	"net/url"
	"time"
)

// Config holds all configuration for edufocus.
type Config struct {
	Server   ServerConfig   `yaml:"server" mapstructure:"server"`
	Display  DisplayConfig  `yaml:"display" mapstructure:"display"`
	Download DownloadConfig `yaml:"download" mapstructure:"download"`
	Log      LogConfig      `yaml:"log" mapstructure:"log"`
}

// ServerConfig locates the analysis server.
type ServerConfig struct {
	BaseURL     string        `yaml:"base_url" mapstructure:"base_url"`         // host:port of the analysis server
	UploadPath  string        `yaml:"upload_path" mapstructure:"upload_path"`   // multipart upload endpoint
	ProcessPath string        `yaml:"process_path" mapstructure:"process_path"` // processing endpoint
	Timeout     time.Duration `yaml:"timeout" mapstructure:"timeout"`           // per-request bound
}

// DisplayConfig controls how results are presented.
type DisplayConfig struct {
	// ThresholdSeconds is the minimum inattention length the server reports,
	// shown in result headers.
	ThresholdSeconds float64 `yaml:"threshold_seconds" mapstructure:"threshold_seconds"`
}

// DownloadConfig controls where attention graphs are saved.
type DownloadConfig struct {
	Dir      string `yaml:"dir" mapstructure:"dir"`
	Filename string `yaml:"filename" mapstructure:"filename"`
}

// LogConfig holds logging settings. File output is rotated by size.
type LogConfig struct {
	Level      string `yaml:"level" mapstructure:"level"` // debug, info, warn, error
	File       string `yaml:"file" mapstructure:"file"`   // empty disables file logging
	MaxSizeMB  int    `yaml:"max_size_mb" mapstructure:"max_size_mb"`
	MaxBackups int    `yaml:"max_backups" mapstructure:"max_backups"`
	MaxAgeDays int    `yaml:"max_age_days" mapstructure:"max_age_days"`
	Compress   bool   `yaml:"compress" mapstructure:"compress"`
}

// Default returns the built-in configuration.
func Default() *Config {
	return &Config{
		Server: ServerConfig{
			BaseURL:     "http://localhost:8085",
			UploadPath:  "/predict",
			ProcessPath: "/process",
			Timeout:     60 * time.Second,
		},
		Display: DisplayConfig{
			ThresholdSeconds: 5,
		},
		Download: DownloadConfig{
			Dir:      ".",
			Filename: "attention_graph.png",
		},
		Log: LogConfig{
			Level:      "warn",
			MaxSizeMB:  10,
			MaxBackups: 3,
			MaxAgeDays: 28,
			Compress:   true,
		},
	}
}

// Validate checks the settings the client cannot work without.
func (c *Config) Validate() error {
	u, err := url.Parse(c.Server.BaseURL)
	if err != nil {
		return fmt.Errorf("invalid server.base_url: %w", err)
	}
	if u.Scheme != "http" && u.Scheme != "https" || u.Host == "" {
		return fmt.Errorf("invalid server.base_url %q: must be an absolute http(s) URL", c.Server.BaseURL)
	}
	if c.Server.Timeout <= 0 {
		return fmt.Errorf("server.timeout must be positive, got %s", c.Server.Timeout)
	}
	if c.Display.ThresholdSeconds < 0 {
		return fmt.Errorf("display.threshold_seconds must not be negative")
	}
	return nil
}
