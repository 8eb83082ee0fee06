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
	"github.com/gin-gonic/gin"
)

// RegisterRoutes registers all balance routes with the router.
//
// Description:
//
//	Registers all /v1/balance/* endpoints with the given Gin router group.
//	The router group should already have any required middleware applied.
//	searchLimits run in front of the two endpoints that start a search.
//
// Inputs:
//
//	rg - Gin router group (typically /v1)
//	handlers - The handlers instance
//	searchLimits - Optional middleware such as an upload throttle
//
// Planning Endpoints:
//
//	GET  /v1/balance/health - Service health
//	POST /v1/balance/plan - Plan a manifest without a session
//	POST /v1/balance/manifests - Upload a manifest and open a session
//
// Session Endpoints:
//
//	GET    /v1/balance/sessions/:id/grid - Current step
//	POST   /v1/balance/sessions/:id/next - Finish the current step
//	GET    /v1/balance/sessions/:id/manifest - Download the outbound manifest
//	GET    /v1/balance/sessions/:id/stream - Websocket step events
//	DELETE /v1/balance/sessions/:id - End a session
//
// Journal Endpoints:
//
//	POST /v1/balance/journal - Write an operator note
//	GET  /v1/balance/journal - Download the journal
func RegisterRoutes(rg *gin.RouterGroup, handlers *Handlers, searchLimits ...gin.HandlerFunc) {
	limited := func(h gin.HandlerFunc) []gin.HandlerFunc {
		return append(append([]gin.HandlerFunc{}, searchLimits...), h)
	}

	b := rg.Group("/balance")
	{
		b.GET("/health", handlers.HandleHealth)
		b.POST("/plan", limited(handlers.HandlePlan)...)
		b.POST("/manifests", limited(handlers.HandleUpload)...)

		sessions := b.Group("/sessions/:id")
		{
			sessions.GET("/grid", handlers.HandleGrid)
			sessions.POST("/next", handlers.HandleNext)
			sessions.GET("/manifest", handlers.HandleManifest)
			sessions.GET("/stream", handlers.HandleStream)
			sessions.DELETE("", handlers.HandleDelete)
		}

		b.POST("/journal", handlers.HandleNote)
		b.GET("/journal", handlers.HandleJournal)
	}
}
