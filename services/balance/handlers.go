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
	"context"
	"errors"
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"go.opentelemetry.io/otel/trace"

	"github.com/AleutianAI/ballast/pkg/telemetry"
	"github.com/AleutianAI/ballast/services/balance/grid"
	"github.com/AleutianAI/ballast/services/balance/manifest"
	"github.com/AleutianAI/ballast/services/balance/planner"
)

// Handlers contains the HTTP handlers for the balance service.
type Handlers struct {
	svc *Service
}

// NewHandlers creates handlers backed by svc.
func NewHandlers(svc *Service) *Handlers {
	return &Handlers{svc: svc}
}

var upgrader = websocket.Upgrader{
	ReadBufferSize:  4 * 1024,
	WriteBufferSize: 32 * 1024,
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

// StreamCommand is a message a stream client may send.
type StreamCommand struct {
	// Action is "next" to advance the session.
	Action string `json:"action"`
}

// HandleHealth handles GET /v1/balance/health.
func (h *Handlers) HandleHealth(c *gin.Context) {
	c.JSON(http.StatusOK, HealthResponse{
		Status:   "healthy",
		Version:  ServiceVersion,
		Sessions: h.svc.SessionCount(),
	})
}

// HandlePlan handles POST /v1/balance/plan.
//
// Description:
//
//	Plans a manifest without opening a session.
//
// Request Body:
//
//	PlanRequest
//
// Response:
//
//	200 OK: PlanResponse
//	400 Bad Request: Missing manifest
//	422 Unprocessable Entity: Invalid manifest or no feasible plan
func (h *Handlers) HandlePlan(c *gin.Context) {
	requestID := getOrCreateRequestID(c)
	logger := slog.With("request_id", requestID, "handler", "HandlePlan")

	var req PlanRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		logger.Warn("Invalid request body", "error", err)
		c.JSON(http.StatusBadRequest, ErrorResponse{
			Error: "Invalid request body",
			Code:  "INVALID_REQUEST",
		})
		return
	}

	resp, err := h.svc.Plan(c.Request.Context(), req.Manifest)
	if err != nil {
		writeError(c, logger, err, "PLAN_FAILED")
		return
	}

	logger.Info("Plan computed",
		"digest", resp.Digest,
		"relocations", resp.Plan.Relocations(),
		"total_cost", resp.Plan.TotalCost,
		"cached", resp.Cached)
	c.JSON(http.StatusOK, resp)
}

// HandleUpload handles POST /v1/balance/manifests.
//
// Description:
//
//	Accepts a multipart manifest upload under the "file" field, plans it
//	and opens a session.
//
// Response:
//
//	201 Created: GridResponse
//	400 Bad Request: Missing file or not a .txt file
//	413 Request Entity Too Large: Manifest over the size limit
//	422 Unprocessable Entity: Invalid manifest or no feasible plan
func (h *Handlers) HandleUpload(c *gin.Context) {
	requestID := getOrCreateRequestID(c)
	logger := slog.With("request_id", requestID, "handler", "HandleUpload")

	header, err := c.FormFile("file")
	if err != nil {
		logger.Warn("Missing manifest file", "error", err)
		c.JSON(http.StatusBadRequest, ErrorResponse{
			Error: "A manifest file is required in the \"file\" field",
			Code:  "MISSING_FILE",
		})
		return
	}

	file, err := header.Open()
	if err != nil {
		writeError(c, logger, err, "UPLOAD_FAILED")
		return
	}
	defer file.Close()

	resp, err := h.svc.Upload(c.Request.Context(), header.Filename, file)
	if err != nil {
		writeError(c, logger, err, "UPLOAD_FAILED")
		return
	}

	logger.Info("Manifest uploaded",
		"session_id", resp.SessionID,
		"manifest", resp.Manifest,
		"steps", resp.NumSteps)
	c.Header("Location", "/v1/balance/sessions/"+string(resp.SessionID)+"/grid")
	c.JSON(http.StatusCreated, resp)
}

// HandleGrid handles GET /v1/balance/sessions/:id/grid.
func (h *Handlers) HandleGrid(c *gin.Context) {
	requestID := getOrCreateRequestID(c)
	logger := slog.With("request_id", requestID, "handler", "HandleGrid")

	resp, err := h.svc.Current(c.Param("id"))
	if err != nil {
		writeError(c, logger, err, "GRID_FAILED")
		return
	}
	c.JSON(http.StatusOK, resp)
}

// HandleNext handles POST /v1/balance/sessions/:id/next.
//
// Description:
//
//	Finishes the current step. Calling it on a finished session returns
//	the session unchanged.
func (h *Handlers) HandleNext(c *gin.Context) {
	requestID := getOrCreateRequestID(c)
	logger := slog.With("request_id", requestID, "handler", "HandleNext")

	resp, err := h.svc.Next(c.Request.Context(), c.Param("id"))
	if err != nil {
		writeError(c, logger, err, "NEXT_FAILED")
		return
	}
	c.JSON(http.StatusOK, resp)
}

// HandleManifest handles GET /v1/balance/sessions/:id/manifest.
//
// Description:
//
//	Downloads the outbound manifest as an attachment and journals the
//	finished cycle.
func (h *Handlers) HandleManifest(c *gin.Context) {
	requestID := getOrCreateRequestID(c)
	logger := slog.With("request_id", requestID, "handler", "HandleManifest")

	path, name, err := h.svc.Manifest(c.Param("id"))
	if err != nil {
		writeError(c, logger, err, "MANIFEST_FAILED")
		return
	}
	logger.Info("Outbound manifest downloaded", "name", name)
	c.FileAttachment(path, name)
}

// HandleDelete handles DELETE /v1/balance/sessions/:id.
func (h *Handlers) HandleDelete(c *gin.Context) {
	requestID := getOrCreateRequestID(c)
	logger := slog.With("request_id", requestID, "handler", "HandleDelete")

	if err := h.svc.Delete(c.Param("id")); err != nil {
		writeError(c, logger, err, "DELETE_FAILED")
		return
	}
	c.Status(http.StatusNoContent)
}

// HandleStream handles GET /v1/balance/sessions/:id/stream.
//
// Description:
//
//	Upgrades to a websocket that pushes a StreamEvent after every step.
//	Clients may send {"action":"next"} to advance the session themselves.
func (h *Handlers) HandleStream(c *gin.Context) {
	requestID := getOrCreateRequestID(c)
	logger := slog.With("request_id", requestID, "handler", "HandleStream")
	id := c.Param("id")

	events, cancel, err := h.svc.Subscribe(id)
	if err != nil {
		writeError(c, logger, err, "STREAM_FAILED")
		return
	}
	defer cancel()

	ws, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		logger.Error("failed to upgrade the websocket", "error", err)
		return
	}
	defer ws.Close()
	logger.Info("Stream client connected", "session_id", id)

	ctx, stop := context.WithCancel(c.Request.Context())
	defer stop()
	go h.readCommands(ctx, stop, ws, id, logger)

	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-events:
			if !ok {
				_ = ws.WriteMessage(websocket.CloseMessage,
					websocket.FormatCloseMessage(websocket.CloseNormalClosure, "session closed"))
				return
			}
			if err := sendJSON(ws, ev); err != nil {
				return
			}
		}
	}
}

// readCommands serves client commands until the connection drops, then
// calls stop.
func (h *Handlers) readCommands(ctx context.Context, stop context.CancelFunc, ws *websocket.Conn, id string, logger *slog.Logger) {
	defer stop()
	for {
		var cmd StreamCommand
		if err := ws.ReadJSON(&cmd); err != nil {
			logger.Info("Stream client disconnected", "error", err.Error())
			return
		}
		switch cmd.Action {
		case "next":
			if _, err := h.svc.Next(ctx, id); err != nil {
				logger.Warn("Stream next failed", "error", err)
			}
		default:
			logger.Warn("Unknown stream action", "action", cmd.Action)
		}
	}
}

func sendJSON(ws *websocket.Conn, v any) error {
	err := ws.WriteJSON(v)
	if err != nil {
		slog.Warn("Failed to write WebSocket JSON", "error", err)
	}
	return err
}

// HandleNote handles POST /v1/balance/journal.
//
// Description:
//
//	Writes an operator note to the journal. Accepts JSON or a form post
//	with a "message" field.
func (h *Handlers) HandleNote(c *gin.Context) {
	requestID := getOrCreateRequestID(c)
	logger := slog.With("request_id", requestID, "handler", "HandleNote")

	var req NoteRequest
	if err := c.ShouldBind(&req); err != nil {
		logger.Warn("Invalid request body", "error", err)
		c.JSON(http.StatusBadRequest, ErrorResponse{
			Error: "A non-empty message is required",
			Code:  "INVALID_REQUEST",
		})
		return
	}

	if err := h.svc.Note(req.Message); err != nil {
		writeError(c, logger, err, "NOTE_FAILED")
		return
	}
	c.JSON(http.StatusCreated, NoteResponse{Recorded: true, Journal: h.svc.journal.Name()})
}

// HandleJournal handles GET /v1/balance/journal.
func (h *Handlers) HandleJournal(c *gin.Context) {
	requestID := getOrCreateRequestID(c)
	logger := slog.With("request_id", requestID, "handler", "HandleJournal")

	path, name, err := h.svc.JournalPath()
	if err != nil {
		writeError(c, logger, err, "JOURNAL_FAILED")
		return
	}
	logger.Info("Journal downloaded", "name", name)
	c.FileAttachment(path, name)
}

// getOrCreateRequestID returns the X-Request-ID header, generating one if
// absent, and echoes it on the response. When the request is traced the
// trace ID goes out as X-Trace-ID.
func getOrCreateRequestID(c *gin.Context) string {
	requestID := c.GetHeader("X-Request-ID")
	if requestID == "" {
		requestID = uuid.NewString()
	}
	c.Header("X-Request-ID", requestID)
	if traceID := telemetry.TraceID(trace.SpanFromContext(c.Request.Context())); traceID != "" {
		c.Header("X-Trace-ID", traceID)
	}
	return requestID
}

// writeError maps err to a status and code and writes an ErrorResponse.
func writeError(c *gin.Context, logger *slog.Logger, err error, fallbackCode string) {
	status, code := classify(err)
	if code == "" {
		code = fallbackCode
	}

	resp := ErrorResponse{Error: err.Error(), Code: code}
	if status == http.StatusInternalServerError {
		logger.Error("Request failed", "error", err)
		resp.Error = "internal error"
		resp.Details = err.Error()
	} else {
		logger.Warn("Request rejected", "error", err, "code", code)
	}
	c.JSON(status, resp)
}

func classify(err error) (int, string) {
	switch {
	case errors.Is(err, ErrInvalidSessionID):
		return http.StatusBadRequest, "INVALID_SESSION_ID"
	case errors.Is(err, ErrSessionNotFound):
		return http.StatusNotFound, "SESSION_NOT_FOUND"
	case errors.Is(err, ErrSessionExpired):
		return http.StatusGone, "SESSION_EXPIRED"
	case errors.Is(err, ErrInvalidFileType):
		return http.StatusBadRequest, "INVALID_FILE_TYPE"
	case errors.Is(err, ErrEmptyUpload):
		return http.StatusBadRequest, "EMPTY_UPLOAD"
	case errors.Is(err, ErrUploadTooLarge):
		return http.StatusRequestEntityTooLarge, "UPLOAD_TOO_LARGE"
	case errors.Is(err, ErrEmptyNote):
		return http.StatusBadRequest, "EMPTY_NOTE"
	case errors.Is(err, ErrNoJournal):
		return http.StatusNotFound, "NO_JOURNAL"
	case isInvalidManifest(err):
		return http.StatusUnprocessableEntity, "INVALID_MANIFEST"
	case errors.Is(err, planner.ErrNoFeasiblePlan):
		return http.StatusUnprocessableEntity, "NO_FEASIBLE_PLAN"
	case errors.Is(err, planner.ErrExpansionLimit):
		return http.StatusUnprocessableEntity, "SEARCH_LIMIT"
	case errors.Is(err, ErrServiceClosed):
		return http.StatusServiceUnavailable, "SERVICE_CLOSED"
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return http.StatusServiceUnavailable, "CANCELLED"
	default:
		return http.StatusInternalServerError, ""
	}
}

func isInvalidManifest(err error) bool {
	for _, target := range []error{
		manifest.ErrMalformedLine,
		manifest.ErrCellCount,
		manifest.ErrDuplicateCell,
		manifest.ErrInvalidRecord,
		grid.ErrInvalidCell,
		grid.ErrNegativeWeight,
		grid.ErrEmptyLabel,
		grid.ErrWeightedSlot,
		grid.ErrDuplicateCrate,
		planner.ErrMalformedGrid,
	} {
		if errors.Is(err, target) {
			return true
		}
	}
	return false
}
