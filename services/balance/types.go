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

import (
	"github.com/go-openapi/strfmt"

	"github.com/AleutianAI/ballast/services/balance/planner"
)

// ServiceVersion is the current version of the balance service.
const ServiceVersion = "0.1.0"

// ErrorResponse is the body of every non-2xx response.
type ErrorResponse struct {
	// Error is a human-readable message.
	Error string `json:"error"`

	// Code is a machine-readable error code.
	Code string `json:"code,omitempty"`

	// Details carries extra context, such as the offending manifest line.
	Details string `json:"details,omitempty"`
}

// HealthResponse is the response for GET /v1/balance/health.
type HealthResponse struct {
	Status   string `json:"status"`
	Version  string `json:"version"`
	Sessions int    `json:"sessions"`
}

// PlanRequest is the request body for POST /v1/balance/plan.
type PlanRequest struct {
	// Manifest is the full manifest text, 96 lines.
	Manifest string `json:"manifest" binding:"required"`
}

// PlanResponse describes a finished search.
type PlanResponse struct {
	// Digest identifies the bay layout the plan was computed for.
	Digest string `json:"digest" yaml:"digest"`

	// Containers is the number of crates on board.
	Containers int `json:"containers" yaml:"containers"`

	// Balanced is true when the ship needed no moves at all.
	Balanced bool `json:"balanced" yaml:"balanced"`

	// Cached is true when the plan came from the archive.
	Cached bool `json:"cached" yaml:"cached"`

	Plan         planner.Plan       `json:"plan" yaml:"plan"`
	Thresholds   planner.Thresholds `json:"thresholds" yaml:"thresholds"`
	Stats        planner.Stats      `json:"stats" yaml:"stats"`
	InitialScore int                `json:"initial_score" yaml:"initial_score"`
	FinalScore   int                `json:"final_score" yaml:"final_score"`

	// DurationMs is the search wall time. Zero for cached plans.
	DurationMs int64 `json:"duration_ms" yaml:"duration_ms"`
}

// NoteRequest is the request body for POST /v1/balance/journal.
// Form posts with a "message" field are accepted as well.
type NoteRequest struct {
	Message string `json:"message" form:"message" binding:"required"`
}

// NoteResponse acknowledges a journal note.
type NoteResponse struct {
	Recorded bool   `json:"recorded"`
	Journal  string `json:"journal"`
}

// CellView is one slot of the bay as shown to the operator.
type CellView struct {
	Row    int    `json:"row"`
	Col    int    `json:"col"`
	Weight int    `json:"weight"`
	Label  string `json:"label"`
	Colour Colour `json:"colour,omitempty"`
}

// GridResponse is the state of a session at its current step.
//
// It is returned by the upload, grid and next endpoints and pushed to
// stream subscribers after every step.
type GridResponse struct {
	SessionID strfmt.UUID `json:"session_id"`

	// Manifest is the sanitized name of the uploaded manifest.
	Manifest string `json:"manifest"`

	// Outbound is the download name of the updated manifest.
	Outbound string `json:"outbound"`

	// Cells holds all 96 slots in row-major order.
	Cells []CellView `json:"grid"`

	// ParkCell is the highlight of the crane's park position.
	ParkCell Colour `json:"park_cell"`

	// Steps lists every crane operation including both park legs.
	Steps       []planner.Step `json:"steps"`
	NumSteps    int            `json:"num_steps"`
	CurrentStep int            `json:"current_step_num"`
	AllDone     bool           `json:"all_done"`

	// TotalTime is the plan's cost in minutes. Park legs are not included.
	TotalTime int  `json:"total_time"`
	Cached    bool `json:"cached"`

	UpdatedAt strfmt.DateTime `json:"updated_at"`
}

// StreamEvent is one message on a session's websocket stream.
type StreamEvent struct {
	// Event is "snapshot" on connect, "step" after each advance and
	// "closed" when the session goes away.
	Event string        `json:"event"`
	Grid  *GridResponse `json:"grid,omitempty"`
}
