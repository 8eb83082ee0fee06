// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package archive caches balance plans in an embedded BadgerDB.
//
// Planning the same manifest twice yields the same plan, so finished
// searches are stored under a digest of the bay's content and reused on
// the next upload. The archive is an optimisation only: a miss, an
// expired entry or a corrupted record simply means searching again.
//
// License: BadgerDB is Apache 2.0 licensed (github.com/dgraph-io/badger).
package archive

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/dgraph-io/badger/v4"
)

// Config holds configuration for the plan archive.
type Config struct {
	// Path is the BadgerDB directory. Ignored when InMemory is set.
	Path string

	InMemory bool

	// SyncWrites fsyncs every commit. Default: true
	SyncWrites bool

	// TTL expires entries. Zero keeps them forever. Default: 30 days
	TTL time.Duration

	// GCInterval is the period of value log collection. Zero turns it off.
	// Default: 10 minutes
	GCInterval time.Duration

	// GCDiscardRatio is the fraction of stale data a value log file needs
	// before it is rewritten. Default: 0.5
	GCDiscardRatio float64

	// Logger receives BadgerDB's own messages. Nil silences them.
	Logger *slog.Logger
}

// DefaultConfig returns production defaults rooted at path.
func DefaultConfig(path string) Config {
	return Config{
		Path:           path,
		SyncWrites:     true,
		TTL:            30 * 24 * time.Hour,
		GCInterval:     10 * time.Minute,
		GCDiscardRatio: 0.5,
	}
}

// InMemoryConfig returns a configuration for tests: no disk, no GC.
func InMemoryConfig() Config {
	return Config{InMemory: true}
}

func (c Config) validateGC() error {
	if c.GCInterval < 0 {
		return errors.New("gc interval must not be negative")
	}
	if c.GCInterval > 0 && (c.GCDiscardRatio <= 0 || c.GCDiscardRatio >= 1) {
		return fmt.Errorf("gc discard ratio %v outside (0, 1)", c.GCDiscardRatio)
	}
	return nil
}

// slogBadger routes BadgerDB's printf-style logging into slog. Badger is
// chatty at info, so that goes to debug.
type slogBadger struct{ *slog.Logger }

func (l slogBadger) Errorf(f string, a ...any)   { l.Error(fmt.Sprintf(f, a...)) }
func (l slogBadger) Warningf(f string, a ...any) { l.Warn(fmt.Sprintf(f, a...)) }
func (l slogBadger) Infof(f string, a ...any)    { l.Debug(fmt.Sprintf(f, a...)) }
func (l slogBadger) Debugf(f string, a ...any)   { l.Debug(fmt.Sprintf(f, a...)) }

func openBadger(cfg Config) (*badger.DB, error) {
	opts := badger.DefaultOptions("").WithInMemory(true)
	if !cfg.InMemory {
		if cfg.Path == "" {
			return nil, ErrPathRequired
		}
		if err := os.MkdirAll(cfg.Path, 0o750); err != nil {
			return nil, fmt.Errorf("create archive directory %s: %w", cfg.Path, err)
		}
		opts = badger.DefaultOptions(cfg.Path)
	}

	var logger badger.Logger
	if cfg.Logger != nil {
		logger = slogBadger{cfg.Logger.With("component", "badger")}
	}
	opts = opts.
		WithSyncWrites(cfg.SyncWrites).
		WithNumVersionsToKeep(1).
		WithLogger(logger)

	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("open badger database: %w", err)
	}
	return db, nil
}

// collectGarbage rewrites value log files every interval until ctx ends.
// It closes done on return.
func collectGarbage(ctx context.Context, db *badger.DB, interval time.Duration, ratio float64, logger *slog.Logger, done chan<- struct{}) {
	defer close(done)
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}

		rewrites := 0
		for {
			err := db.RunValueLogGC(ratio)
			if err == nil {
				rewrites++
				continue
			}
			if !errors.Is(err, badger.ErrNoRewrite) && !errors.Is(err, badger.ErrRejected) {
				logger.Warn("archive value log GC failed", slog.String("error", err.Error()))
			} else if rewrites > 0 {
				logger.Debug("archive value log GC completed", slog.Int("rewrites", rewrites))
			}
			break
		}
	}
}
