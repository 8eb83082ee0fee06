// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package validation provides input validation utilities for security-critical operations.
//
// This package contains validators for user-provided inputs that end up in
// file paths. Using these validators prevents path traversal and keeps
// uploaded manifests inside the data directory.
package validation

import (
	"errors"
	"fmt"
	"path/filepath"
	"regexp"
	"strings"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

var (
	// ErrEmptyFilename indicates nothing usable was left after sanitizing.
	ErrEmptyFilename = errors.New("filename is empty after sanitizing")

	// ErrFileType indicates a filename with the wrong extension.
	ErrFileType = errors.New("unsupported file type")
)

// unsafeChars matches everything a sanitized filename may not contain.
var unsafeChars = regexp.MustCompile(`[^A-Za-z0-9_.-]`)

// reservedNames are device names Windows refuses as filenames.
var reservedNames = map[string]struct{}{
	"CON": {}, "PRN": {}, "AUX": {}, "NUL": {},
	"COM1": {}, "COM2": {}, "COM3": {}, "COM4": {}, "COM5": {}, "COM6": {}, "COM7": {}, "COM8": {}, "COM9": {},
	"LPT1": {}, "LPT2": {}, "LPT3": {}, "LPT4": {}, "LPT5": {}, "LPT6": {}, "LPT7": {}, "LPT8": {}, "LPT9": {},
}

// SanitizeFilename reduces a client-supplied filename to a safe base name.
//
// The rules:
//   - Accents are folded to ASCII (NFKD, marks dropped), other non-ASCII removed
//   - Path separators become spaces, runs of whitespace become one underscore
//   - Anything outside A-Z a-z 0-9 _ . - is removed
//   - Leading and trailing dots and underscores are trimmed
//
// So "../../etc/passwd" becomes "etc_passwd" and "My Bay 3.txt" becomes
// "My_Bay_3.txt". Returns ErrEmptyFilename when nothing is left.
//
// Example:
//
//	name, err := validation.SanitizeFilename(header.Filename)
//	if err != nil {
//	    return fmt.Errorf("invalid upload name: %w", err)
//	}
//	// Safe to join onto the data directory
func SanitizeFilename(name string) (string, error) {
	folded, _, err := transform.String(
		transform.Chain(norm.NFKD, runes.Remove(runes.In(unicode.Mn))),
		name,
	)
	if err != nil {
		return "", fmt.Errorf("normalize filename: %w", err)
	}

	folded = strings.NewReplacer("/", " ", `\`, " ").Replace(folded)
	folded = strings.Join(strings.Fields(folded), "_")
	folded = unsafeChars.ReplaceAllString(folded, "")
	folded = strings.Trim(folded, "._")

	if folded == "" {
		return "", ErrEmptyFilename
	}
	stem := strings.ToUpper(strings.TrimSuffix(folded, filepath.Ext(folded)))
	if _, reserved := reservedNames[stem]; reserved {
		folded = "_" + folded
	}
	return folded, nil
}

// RequireExtension checks that a sanitized filename ends in ext, ignoring
// case. ext includes the dot, e.g. ".txt".
func RequireExtension(name, ext string) error {
	if !strings.EqualFold(filepath.Ext(name), ext) {
		return fmt.Errorf("%w: %q (expected %s)", ErrFileType, name, ext)
	}
	return nil
}

// SanitizeManifestName sanitizes name and requires a .txt extension.
func SanitizeManifestName(name string) (string, error) {
	safe, err := SanitizeFilename(name)
	if err != nil {
		return "", err
	}
	if err := RequireExtension(safe, ".txt"); err != nil {
		return "", err
	}
	return safe, nil
}
