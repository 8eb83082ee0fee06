// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package config holds the ballast command's YAML configuration.
package config

import (
	"time"

	"github.com/AleutianAI/ballast/pkg/telemetry"
	"github.com/AleutianAI/ballast/services/balance"
	"github.com/AleutianAI/ballast/services/balance/archive"
)

// CurrentConfigVersion is written into new config files.
const CurrentConfigVersion = "1"

// Config is the root of ballast.yaml.
type Config struct {
	Version   string           `yaml:"version"`
	Server    ServerConfig     `yaml:"server"`
	Balance   BalanceConfig    `yaml:"balance"`
	Archive   ArchiveConfig    `yaml:"archive"`
	Inbox     InboxConfig      `yaml:"inbox"`
	Logging   LoggingConfig    `yaml:"logging"`
	Telemetry telemetry.Config `yaml:"telemetry"`
}

// ServerConfig configures `ballast serve`.
type ServerConfig struct {
	// Addr is the listen address.
	Addr string `yaml:"addr" validate:"required,hostname_port"`

	// Debug enables gin debug mode and request logging.
	Debug bool `yaml:"debug"`

	ReadHeaderTimeout time.Duration `yaml:"read_header_timeout" validate:"gte=0"`
	ShutdownTimeout   time.Duration `yaml:"shutdown_timeout" validate:"gte=0"`

	// SearchRate limits plan and upload requests per client per second.
	// Zero disables limiting.
	SearchRate  float64 `yaml:"search_rate" validate:"gte=0"`
	SearchBurst int     `yaml:"search_burst" validate:"gte=0"`
}

// BalanceConfig configures the planner service.
type BalanceConfig struct {
	DataDir        string        `yaml:"data_dir" validate:"required"`
	JournalDir     string        `yaml:"journal_dir" validate:"required"`
	MaxExpansions  int           `yaml:"max_expansions" validate:"gte=0"`
	SessionTTL     time.Duration `yaml:"session_ttl" validate:"gt=0"`
	SweepInterval  time.Duration `yaml:"sweep_interval" validate:"gt=0"`
	MaxUploadBytes int64         `yaml:"max_upload_bytes" validate:"gt=0"`
	MaxSessions    int           `yaml:"max_sessions" validate:"gte=0"`
}

// ArchiveConfig configures the plan archive.
type ArchiveConfig struct {
	Enabled    bool          `yaml:"enabled"`
	Path       string        `yaml:"path" validate:"required_if=Enabled true"`
	TTL        time.Duration `yaml:"ttl" validate:"gte=0"`
	GCInterval time.Duration `yaml:"gc_interval" validate:"gte=0"`
}

// InboxConfig configures `ballast watch`.
type InboxConfig struct {
	Dir      string        `yaml:"dir"`
	Debounce time.Duration `yaml:"debounce" validate:"gte=0"`
	Backfill bool          `yaml:"backfill"`
}

// LoggingConfig configures the process logger.
type LoggingConfig struct {
	Level string `yaml:"level" validate:"oneof=debug info warn error"`
	Dir   string `yaml:"dir"`
	JSON  bool   `yaml:"json"`
}

// DefaultConfig returns the configuration written on first run.
func DefaultConfig() Config {
	svc := balance.DefaultServiceConfig()
	arc := archive.DefaultConfig("~/.ballast/archive")
	return Config{
		Version: CurrentConfigVersion,
		Server: ServerConfig{
			Addr:              ":8080",
			ReadHeaderTimeout: 10 * time.Second,
			ShutdownTimeout:   15 * time.Second,
			SearchRate:        2,
			SearchBurst:       5,
		},
		Balance: BalanceConfig{
			DataDir:        "~/.ballast/data",
			JournalDir:     "~/.ballast/logs",
			MaxExpansions:  svc.MaxExpansions,
			SessionTTL:     svc.SessionTTL,
			SweepInterval:  svc.SweepInterval,
			MaxUploadBytes: svc.MaxUploadBytes,
			MaxSessions:    svc.MaxSessions,
		},
		Archive: ArchiveConfig{
			Enabled:    true,
			Path:       arc.Path,
			TTL:        arc.TTL,
			GCInterval: arc.GCInterval,
		},
		Inbox: InboxConfig{
			Debounce: 250 * time.Millisecond,
		},
		Logging: LoggingConfig{
			Level: "info",
		},
		Telemetry: telemetry.DefaultConfig(),
	}
}

// ServiceConfig converts the balance section for balance.NewService.
func (c Config) ServiceConfig() balance.ServiceConfig {
	return balance.ServiceConfig{
		DataDir:        c.Balance.DataDir,
		MaxExpansions:  c.Balance.MaxExpansions,
		SessionTTL:     c.Balance.SessionTTL,
		SweepInterval:  c.Balance.SweepInterval,
		MaxUploadBytes: c.Balance.MaxUploadBytes,
		MaxSessions:    c.Balance.MaxSessions,
	}
}

// ArchiveStoreConfig converts the archive section for archive.Open.
func (c Config) ArchiveStoreConfig() archive.Config {
	cfg := archive.DefaultConfig(c.Archive.Path)
	cfg.TTL = c.Archive.TTL
	cfg.GCInterval = c.Archive.GCInterval
	return cfg
}
