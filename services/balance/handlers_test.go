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
	"bytes"
	"encoding/json"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/trace"
)

func init() {
	// Set Gin to test mode to reduce noise
	gin.SetMode(gin.TestMode)
}

func setupTestRouter(svc *Service) *gin.Engine {
	router := gin.New()
	handlers := NewHandlers(svc)
	v1 := router.Group("/v1")
	RegisterRoutes(v1, handlers)
	return router
}

func uploadRequest(t *testing.T, filename, body string) *http.Request {
	t.Helper()
	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)
	part, err := w.CreateFormFile("file", filename)
	require.NoError(t, err)
	_, err = part.Write([]byte(body))
	require.NoError(t, err)
	require.NoError(t, w.Close())

	req := httptest.NewRequest(http.MethodPost, "/v1/balance/manifests", &buf)
	req.Header.Set("Content-Type", w.FormDataContentType())
	return req
}

func serve(router *gin.Engine, req *http.Request) *httptest.ResponseRecorder {
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	return w
}

func decode[T any](t *testing.T, w *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &v), w.Body.String())
	return v
}

func TestHandlers_HandleHealth(t *testing.T) {
	f := newFixture(t, nil)
	router := setupTestRouter(f.svc)

	w := serve(router, httptest.NewRequest(http.MethodGet, "/v1/balance/health", nil))
	require.Equal(t, http.StatusOK, w.Code)

	resp := decode[HealthResponse](t, w)
	assert.Equal(t, "healthy", resp.Status)
	assert.Equal(t, ServiceVersion, resp.Version)
	assert.Zero(t, resp.Sessions)
}

func TestHandlers_SessionLifecycle(t *testing.T) {
	f := newFixture(t, nil)
	router := setupTestRouter(f.svc)

	w := serve(router, uploadRequest(t, "ShipCase1.txt", unbalancedManifest(t)))
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	created := decode[GridResponse](t, w)
	id := string(created.SessionID)
	assert.Equal(t, "/v1/balance/sessions/"+id+"/grid", w.Header().Get("Location"))
	assert.Equal(t, 3, created.NumSteps)

	w = serve(router, httptest.NewRequest(http.MethodGet, "/v1/balance/sessions/"+id+"/grid", nil))
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, 0, decode[GridResponse](t, w).CurrentStep)

	for want := 1; want <= 2; want++ {
		w = serve(router, httptest.NewRequest(http.MethodPost, "/v1/balance/sessions/"+id+"/next", nil))
		require.Equal(t, http.StatusOK, w.Code)
		assert.Equal(t, want, decode[GridResponse](t, w).CurrentStep)
	}
	w = serve(router, httptest.NewRequest(http.MethodPost, "/v1/balance/sessions/"+id+"/next", nil))
	require.Equal(t, http.StatusOK, w.Code)
	assert.True(t, decode[GridResponse](t, w).AllDone)

	w = serve(router, httptest.NewRequest(http.MethodGet, "/v1/balance/sessions/"+id+"/manifest", nil))
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Header().Get("Content-Disposition"), "ShipCase1OUTBOUND.txt")
	assert.Contains(t, w.Body.String(), "[01,07], {00100}, Dog")

	w = serve(router, httptest.NewRequest(http.MethodDelete, "/v1/balance/sessions/"+id, nil))
	assert.Equal(t, http.StatusNoContent, w.Code)

	w = serve(router, httptest.NewRequest(http.MethodGet, "/v1/balance/sessions/"+id+"/grid", nil))
	require.Equal(t, http.StatusNotFound, w.Code)
	assert.Equal(t, "SESSION_NOT_FOUND", decode[ErrorResponse](t, w).Code)
}

func TestHandlers_HandleUpload_Errors(t *testing.T) {
	f := newFixture(t, nil)
	router := setupTestRouter(f.svc)

	tests := []struct {
		name     string
		req      *http.Request
		wantCode int
		wantErr  string
	}{
		{
			name:     "missing file",
			req:      httptest.NewRequest(http.MethodPost, "/v1/balance/manifests", nil),
			wantCode: http.StatusBadRequest,
			wantErr:  "MISSING_FILE",
		},
		{
			name:     "wrong extension",
			req:      uploadRequest(t, "bay.csv", unbalancedManifest(t)),
			wantCode: http.StatusBadRequest,
			wantErr:  "INVALID_FILE_TYPE",
		},
		{
			name:     "malformed manifest",
			req:      uploadRequest(t, "bay.txt", "[01,01], {00000}, UNUSED\n"),
			wantCode: http.StatusUnprocessableEntity,
			wantErr:  "INVALID_MANIFEST",
		},
		{
			name:     "empty manifest",
			req:      uploadRequest(t, "bay.txt", ""),
			wantCode: http.StatusBadRequest,
			wantErr:  "EMPTY_UPLOAD",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := serve(router, tt.req)
			require.Equal(t, tt.wantCode, w.Code, w.Body.String())
			assert.Equal(t, tt.wantErr, decode[ErrorResponse](t, w).Code)
		})
	}
}

func TestHandlers_HandleUpload_TooLarge(t *testing.T) {
	f := newFixture(t, func(c *ServiceConfig) { c.MaxUploadBytes = 100 })
	router := setupTestRouter(f.svc)

	w := serve(router, uploadRequest(t, "bay.txt", unbalancedManifest(t)))
	require.Equal(t, http.StatusRequestEntityTooLarge, w.Code)
	assert.Equal(t, "UPLOAD_TOO_LARGE", decode[ErrorResponse](t, w).Code)
}

func TestHandlers_HandlePlan(t *testing.T) {
	f := newFixture(t, nil)
	router := setupTestRouter(f.svc)

	body, err := json.Marshal(PlanRequest{Manifest: unbalancedManifest(t)})
	require.NoError(t, err)
	req := httptest.NewRequest(http.MethodPost, "/v1/balance/plan", bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")

	w := serve(router, req)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	resp := decode[PlanResponse](t, w)
	assert.Equal(t, 7, resp.Plan.TotalCost)
	assert.Equal(t, []int{7}, resp.Plan.RelocationCosts)
	assert.Zero(t, f.svc.SessionCount(), "planning opens no session")

	req = httptest.NewRequest(http.MethodPost, "/v1/balance/plan", strings.NewReader(`{}`))
	req.Header.Set("Content-Type", "application/json")
	w = serve(router, req)
	require.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, "INVALID_REQUEST", decode[ErrorResponse](t, w).Code)

	req = httptest.NewRequest(http.MethodPost, "/v1/balance/plan", strings.NewReader(`{"manifest":"garbage"}`))
	req.Header.Set("Content-Type", "application/json")
	w = serve(router, req)
	require.Equal(t, http.StatusUnprocessableEntity, w.Code)
	assert.Equal(t, "INVALID_MANIFEST", decode[ErrorResponse](t, w).Code)
}

func TestHandlers_SessionIDValidation(t *testing.T) {
	f := newFixture(t, nil)
	router := setupTestRouter(f.svc)

	w := serve(router, httptest.NewRequest(http.MethodGet, "/v1/balance/sessions/nope/grid", nil))
	require.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, "INVALID_SESSION_ID", decode[ErrorResponse](t, w).Code)

	w = serve(router, httptest.NewRequest(http.MethodPost, "/v1/balance/sessions/"+uuid.NewString()+"/next", nil))
	require.Equal(t, http.StatusNotFound, w.Code)
}

func TestHandlers_Journal(t *testing.T) {
	f := newFixture(t, nil)
	router := setupTestRouter(f.svc)

	form := url.Values{"message": {"Crane 1 inspected"}}
	req := httptest.NewRequest(http.MethodPost, "/v1/balance/journal", strings.NewReader(form.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	w := serve(router, req)
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	assert.True(t, decode[NoteResponse](t, w).Recorded)

	req = httptest.NewRequest(http.MethodPost, "/v1/balance/journal", strings.NewReader(`{"message":"Shift change"}`))
	req.Header.Set("Content-Type", "application/json")
	w = serve(router, req)
	require.Equal(t, http.StatusCreated, w.Code)

	req = httptest.NewRequest(http.MethodPost, "/v1/balance/journal", strings.NewReader(`{"message":"   "}`))
	req.Header.Set("Content-Type", "application/json")
	w = serve(router, req)
	require.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, "EMPTY_NOTE", decode[ErrorResponse](t, w).Code)

	req = httptest.NewRequest(http.MethodPost, "/v1/balance/journal", strings.NewReader(`{}`))
	req.Header.Set("Content-Type", "application/json")
	w = serve(router, req)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = serve(router, httptest.NewRequest(http.MethodGet, "/v1/balance/journal", nil))
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Header().Get("Content-Disposition"), "KeoghsPort10_17_2026_0930.txt")
	body := w.Body.String()
	assert.Contains(t, body, "Crane 1 inspected")
	assert.Contains(t, body, "Shift change")
	assert.Contains(t, body, "Log file was downloaded.")
}

func TestHandlers_RequestIDEchoed(t *testing.T) {
	f := newFixture(t, nil)
	router := setupTestRouter(f.svc)

	req := httptest.NewRequest(http.MethodGet, "/v1/balance/sessions/"+uuid.NewString()+"/grid", nil)
	req.Header.Set("X-Request-ID", "req-42")
	w := serve(router, req)
	assert.Equal(t, "req-42", w.Header().Get("X-Request-ID"))

	w = serve(router, httptest.NewRequest(http.MethodGet, "/v1/balance/sessions/"+uuid.NewString()+"/grid", nil))
	assert.NotEmpty(t, w.Header().Get("X-Request-ID"))
	assert.Empty(t, w.Header().Get("X-Trace-ID"))
}

func TestHandlers_TraceIDEchoed(t *testing.T) {
	f := newFixture(t, nil)
	router := setupTestRouter(f.svc)

	traceID, err := trace.TraceIDFromHex("4bf92f3577b34da6a3ce929d0e0e4736")
	require.NoError(t, err)
	sc := trace.NewSpanContext(trace.SpanContextConfig{
		TraceID: traceID,
		SpanID:  trace.SpanID{1, 2, 3, 4, 5, 6, 7, 8},
	})
	req := httptest.NewRequest(http.MethodGet, "/v1/balance/sessions/"+uuid.NewString()+"/grid", nil)
	req = req.WithContext(trace.ContextWithSpanContext(req.Context(), sc))

	w := serve(router, req)
	assert.Equal(t, "4bf92f3577b34da6a3ce929d0e0e4736", w.Header().Get("X-Trace-ID"))
}

func TestHandlers_HandleStream(t *testing.T) {
	f := newFixture(t, nil)
	router := setupTestRouter(f.svc)
	server := httptest.NewServer(router)
	defer server.Close()

	id := string(f.upload(t, "bay.txt", unbalancedManifest(t)).SessionID)
	wsURL := "ws" + strings.TrimPrefix(server.URL, "http") + "/v1/balance/sessions/" + id + "/stream"

	ws, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	require.NoError(t, err)
	defer ws.Close()
	require.NoError(t, ws.SetReadDeadline(time.Now().Add(5*time.Second)))

	var ev StreamEvent
	require.NoError(t, ws.ReadJSON(&ev))
	assert.Equal(t, "snapshot", ev.Event)
	require.NotNil(t, ev.Grid)
	assert.Equal(t, 0, ev.Grid.CurrentStep)

	require.NoError(t, ws.WriteJSON(StreamCommand{Action: "next"}))
	require.NoError(t, ws.ReadJSON(&ev))
	assert.Equal(t, "step", ev.Event)
	assert.Equal(t, 1, ev.Grid.CurrentStep)

	require.NoError(t, f.svc.Delete(id))
	require.NoError(t, ws.ReadJSON(&ev))
	assert.Equal(t, "closed", ev.Event)
}

func TestHandlers_HandleStream_UnknownSession(t *testing.T) {
	f := newFixture(t, nil)
	router := setupTestRouter(f.svc)

	w := serve(router, httptest.NewRequest(http.MethodGet, "/v1/balance/sessions/"+uuid.NewString()+"/stream", nil))
	assert.Equal(t, http.StatusNotFound, w.Code)
}
