// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package balance

import "errors"

// Sentinel errors for the balance service.
var (
	// ErrSessionNotFound indicates no session exists for the given ID.
	ErrSessionNotFound = errors.New("session not found")

	// ErrSessionExpired indicates the session outlived its TTL.
	ErrSessionExpired = errors.New("session expired")

	// ErrInvalidSessionID indicates a session ID that is not a UUID.
	ErrInvalidSessionID = errors.New("invalid session id")

	// ErrInvalidFileType indicates an upload that is not a .txt manifest.
	ErrInvalidFileType = errors.New("manifest must be a .txt file")

	// ErrEmptyUpload indicates an upload with no name or no content.
	ErrEmptyUpload = errors.New("empty upload")

	// ErrUploadTooLarge indicates an upload over the configured size limit.
	ErrUploadTooLarge = errors.New("upload too large")

	// ErrEmptyNote indicates a journal note with no text.
	ErrEmptyNote = errors.New("journal note is empty")

	// ErrNoJournal indicates a service running without an operator journal.
	ErrNoJournal = errors.New("no operator journal")

	// ErrServiceClosed indicates the service has been shut down.
	ErrServiceClosed = errors.New("service closed")
)
