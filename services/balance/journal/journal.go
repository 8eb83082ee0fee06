// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package journal writes the crane operator's audit log.
//
// The port keeps one plain-text journal per run of the service, named
// after the time it was opened (KeoghsPort10_17_2026_0930.txt). Every line
// starts with a minute-resolution timestamp:
//
//	10 17 2026: 09:30 Window was opened.
//	10 17 2026: 09:31 Manifest ShipCase1.txt is opened, there are 3 containers on the ship.
//
// The journal is distinct from the developer log in pkg/logging; its
// wording is part of the port's record keeping and must stay stable.
package journal

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/AleutianAI/ballast/services/balance/grid"
)

// Prefix starts every journal file name.
const Prefix = "KeoghsPort"

// ErrClosed indicates a write after Close.
var ErrClosed = errors.New("journal closed")

// Clock returns the current time.
type Clock func() time.Time

// Journal appends timestamped lines to the operator log. It is safe for
// concurrent use. A nil *Journal discards every entry.
type Journal struct {
	mu   sync.Mutex
	file *os.File
	path string
	now  Clock
}

// FileName returns the journal name for a journal opened at t.
func FileName(t time.Time) string {
	return Prefix + t.Format("01_02_2006_1504") + ".txt"
}

// Stamp returns the line prefix for an entry written at t.
func Stamp(t time.Time) string {
	return t.Format("01 02 2006: 15:04 ")
}

// Open creates a fresh journal in dir and records the opening.
//
// A journal already carrying the same minute-resolution name is replaced.
// A nil clock means time.Now.
func Open(dir string, now Clock) (*Journal, error) {
	if now == nil {
		now = time.Now
	}
	if err := os.MkdirAll(dir, 0o750); err != nil {
		return nil, fmt.Errorf("create journal dir: %w", err)
	}

	path := filepath.Join(dir, FileName(now()))
	file, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_TRUNC|os.O_APPEND, 0o640)
	if err != nil {
		return nil, fmt.Errorf("open journal: %w", err)
	}

	j := &Journal{file: file, path: path, now: now}
	if err := j.Record("Window was opened."); err != nil {
		file.Close()
		return nil, err
	}
	return j, nil
}

// Path returns the journal's location on disk.
func (j *Journal) Path() string {
	if j == nil {
		return ""
	}
	return j.path
}

// Name returns the journal's file name.
func (j *Journal) Name() string {
	if j == nil {
		return ""
	}
	return filepath.Base(j.path)
}

// Record appends one line. Embedded newlines are flattened so every entry
// stays on a single timestamped line.
func (j *Journal) Record(message string) error {
	if j == nil {
		return nil
	}
	message = strings.ReplaceAll(strings.TrimRight(message, "\r\n"), "\r\n", " ")
	message = strings.ReplaceAll(message, "\n", " ")

	j.mu.Lock()
	defer j.mu.Unlock()
	if j.file == nil {
		return ErrClosed
	}
	if _, err := j.file.WriteString(Stamp(j.now()) + message + "\n"); err != nil {
		return fmt.Errorf("write journal: %w", err)
	}
	return nil
}

// ManifestOpened records an uploaded manifest and its crate count.
func (j *Journal) ManifestOpened(name string, containers int) error {
	return j.Record(fmt.Sprintf("Manifest %s is opened, there are %s on the ship.",
		name, plural(containers, "container")))
}

// SolutionFound records the size of a plan.
func (j *Journal) SolutionFound(moves, minutes int) error {
	return j.Record(fmt.Sprintf("Balance solution found, it will require %s/%s.",
		plural(moves, "move"), plural(minutes, "minute")))
}

// Moved records a crate relocation.
func (j *Journal) Moved(from, to grid.Cell) error {
	return j.Record(fmt.Sprintf("%s was moved to %s", from, to))
}

// CycleFinished records that the outbound manifest was handed over.
func (j *Journal) CycleFinished(outbound string) error {
	return j.Record(fmt.Sprintf("Finished a Cycle. Manifest %s was written to desktop, "+
		"and a reminder pop-up to operator to send file was displayed.", outbound))
}

// Downloaded records that the operator took a copy of the journal.
func (j *Journal) Downloaded() error {
	return j.Record("Log file was downloaded.")
}

// Close flushes and closes the journal. Further writes fail with ErrClosed.
func (j *Journal) Close() error {
	if j == nil {
		return nil
	}
	j.mu.Lock()
	defer j.mu.Unlock()
	if j.file == nil {
		return nil
	}
	err := j.file.Sync()
	if cerr := j.file.Close(); err == nil {
		err = cerr
	}
	j.file = nil
	return err
}

func plural(n int, noun string) string {
	if n == 1 {
		return fmt.Sprintf("%d %s", n, noun)
	}
	return fmt.Sprintf("%d %ss", n, noun)
}
