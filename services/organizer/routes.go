// Copyright (C) 2026 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package organizer

import (
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// RegisterRoutes registers all organizer routes with the router.
//
// Description:
//
//	Registers the root-level endpoints and the /api/v1 group.
//
// Root Endpoints:
//
//	GET  /health - Liveness and readiness
//	GET  /metrics - Prometheus metrics
//	GET  /ws - Extension session socket
//
// API Endpoints:
//
//	POST   /api/v1/windows/:id/snapshot - Ingest a window snapshot
//	DELETE /api/v1/windows/:id - Drop a destroyed window
//	POST   /api/v1/organize - Manual organization trigger
//	GET    /api/v1/status - Queue, session, and store health
//	GET    /api/v1/suggestions/:windowID - Cached suggestions
//	POST   /api/v1/suggestions/:windowID/accept - Apply a suggestion
//	GET    /api/v1/config - Runtime settings
//	PUT    /api/v1/config - Update runtime settings
//
// Example:
//
//	svc, _ := organizer.NewService(cfg, logger, metrics)
//	handlers := organizer.NewHandlers(svc)
//
//	router := gin.New()
//	organizer.RegisterRoutes(router, handlers)
func RegisterRoutes(router *gin.Engine, handlers *Handlers) {
	router.GET("/health", handlers.HandleHealth)
	router.GET("/metrics", gin.WrapH(promhttp.Handler()))
	router.GET("/ws", handlers.HandleSocket)

	v1 := router.Group("/api/v1")
	{
		// Window lifecycle
		v1.POST("/windows/:id/snapshot", handlers.HandleSnapshot)
		v1.DELETE("/windows/:id", handlers.HandleRemoveWindow)

		// Organization
		v1.POST("/organize", handlers.HandleOrganize)
		v1.GET("/status", handlers.HandleStatus)

		// Confirmation flow
		v1.GET("/suggestions/:windowID", handlers.HandleSuggestions)
		v1.POST("/suggestions/:windowID/accept", handlers.HandleAccept)

		// Runtime settings
		v1.GET("/config", handlers.HandleGetConfig)
		v1.PUT("/config", handlers.HandleUpdateConfig)
	}
}
