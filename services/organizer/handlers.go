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
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
)

// Handlers contains the HTTP handlers for the organizer.
type Handlers struct {
	svc *Service
}

// NewHandlers creates handlers for the given service.
func NewHandlers(svc *Service) *Handlers {
	return &Handlers{svc: svc}
}

// upgrader accepts any origin: the daemon binds to loopback and the
// extension's chrome-extension:// origin never matches the Host header.
var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
	ReadBufferSize:  64 * 1024,
	WriteBufferSize: 64 * 1024,
}

// HandleHealth handles GET /health.
//
// Response:
//
//	200 OK: HealthResponse
func (h *Handlers) HandleHealth(c *gin.Context) {
	c.JSON(http.StatusOK, h.svc.Health())
}

// HandleSocket handles GET /ws.
//
// Description:
//
//	Upgrades the connection to the extension session socket and serves
//	it until the peer disconnects. One socket per browser profile.
func (h *Handlers) HandleSocket(c *gin.Context) {
	ws, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		slog.Error("Failed to upgrade extension socket", "error", err)
		return
	}
	h.svc.hub.Serve(ws)
}

// HandleSnapshot handles POST /api/v1/windows/:id/snapshot.
//
// Description:
//
//	Ingests a full window snapshot, the REST twin of the socket's
//	snapshot message. The window id in the path wins over the body.
//
// Request Body:
//
//	SnapshotRequest
//
// Response:
//
//	202 Accepted: SnapshotResponse
//	400 Bad Request: Validation error
func (h *Handlers) HandleSnapshot(c *gin.Context) {
	requestID := getOrCreateRequestID(c)
	logger := slog.With("request_id", requestID, "handler", "HandleSnapshot")

	windowID, ok := windowIDParam(c, logger, "id")
	if !ok {
		return
	}

	var req SnapshotRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		logger.Warn("Invalid request body", "error", err)
		c.JSON(http.StatusBadRequest, ErrorResponse{
			Error: "Invalid request body",
			Code:  "INVALID_REQUEST",
		})
		return
	}
	req.Window.ID = windowID

	logger.Info("Snapshot ingested",
		"window_id", windowID,
		"tabs", len(req.Tabs),
		"groups", len(req.Groups))

	c.JSON(http.StatusAccepted, h.svc.IngestSnapshot(req.Window, req.Tabs, req.Groups))
}

// HandleRemoveWindow handles DELETE /api/v1/windows/:id.
//
// Response:
//
//	204 No Content
//	400 Bad Request: Invalid window id
func (h *Handlers) HandleRemoveWindow(c *gin.Context) {
	requestID := getOrCreateRequestID(c)
	logger := slog.With("request_id", requestID, "handler", "HandleRemoveWindow")

	windowID, ok := windowIDParam(c, logger, "id")
	if !ok {
		return
	}

	h.svc.RemoveWindow(windowID)
	logger.Info("Window removed", "window_id", windowID)
	c.Status(http.StatusNoContent)
}

// HandleOrganize handles POST /api/v1/organize.
//
// Description:
//
//	Manual trigger: enqueues every mirrored window at high priority and
//	drains immediately, skipping the debounce window.
//
// Response:
//
//	202 Accepted: OrganizeResponse
func (h *Handlers) HandleOrganize(c *gin.Context) {
	requestID := getOrCreateRequestID(c)
	logger := slog.With("request_id", requestID, "handler", "HandleOrganize")

	resp := h.svc.OrganizeNow()
	logger.Info("Manual organization triggered", "windows_queued", resp.WindowsQueued)
	c.JSON(http.StatusAccepted, resp)
}

// HandleStatus handles GET /api/v1/status.
//
// Response:
//
//	200 OK: StatusResponse
func (h *Handlers) HandleStatus(c *gin.Context) {
	c.JSON(http.StatusOK, h.svc.Status())
}

// HandleSuggestions handles GET /api/v1/suggestions/:windowID.
//
// Description:
//
//	Returns the window's live cached suggestions for confirmation UIs.
//	Stale entries are filtered against the mirror.
//
// Response:
//
//	200 OK: SuggestionsResponse
//	400 Bad Request: Invalid window id
//	500 Internal Server Error: Store read failed
func (h *Handlers) HandleSuggestions(c *gin.Context) {
	requestID := getOrCreateRequestID(c)
	logger := slog.With("request_id", requestID, "handler", "HandleSuggestions")

	windowID, ok := windowIDParam(c, logger, "windowID")
	if !ok {
		return
	}

	resp, err := h.svc.Suggestions(c.Request.Context(), windowID)
	if err != nil {
		logger.Error("Suggestion lookup failed", "window_id", windowID, "error", err)
		c.JSON(http.StatusInternalServerError, ErrorResponse{
			Error: err.Error(),
			Code:  "STORE_FAILED",
		})
		return
	}
	c.JSON(http.StatusOK, resp)
}

// HandleAccept handles POST /api/v1/suggestions/:windowID/accept.
//
// Description:
//
//	Applies the cached suggestions for one group name through the
//	window's extension session.
//
// Request Body:
//
//	AcceptRequest
//
// Response:
//
//	200 OK: AcceptResponse
//	400 Bad Request: Validation error
//	404 Not Found: Window not tracked
//	409 Conflict: Every suggestion for the group is stale
//	503 Service Unavailable: No extension session for the window
//	504 Gateway Timeout: Extension did not acknowledge in time
func (h *Handlers) HandleAccept(c *gin.Context) {
	requestID := getOrCreateRequestID(c)
	logger := slog.With("request_id", requestID, "handler", "HandleAccept")

	windowID, ok := windowIDParam(c, logger, "windowID")
	if !ok {
		return
	}

	var req AcceptRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		logger.Warn("Invalid request body", "error", err)
		c.JSON(http.StatusBadRequest, ErrorResponse{
			Error: "Invalid request body",
			Code:  "INVALID_REQUEST",
		})
		return
	}

	resp, err := h.svc.AcceptSuggestion(c.Request.Context(), windowID, req.Group)
	if err != nil {
		statusCode := http.StatusInternalServerError
		errCode := "APPLY_FAILED"

		if errors.Is(err, ErrUnknownWindow) {
			statusCode = http.StatusNotFound
			errCode = "UNKNOWN_WINDOW"
		} else if errors.Is(err, ErrNothingToApply) {
			statusCode = http.StatusConflict
			errCode = "SUGGESTIONS_STALE"
		} else if errors.Is(err, ErrNoSession) {
			statusCode = http.StatusServiceUnavailable
			errCode = "NO_SESSION"
		} else if errors.Is(err, ErrSessionClosed) {
			statusCode = http.StatusServiceUnavailable
			errCode = "SESSION_CLOSED"
		} else if errors.Is(err, ErrApplyTimeout) {
			statusCode = http.StatusGatewayTimeout
			errCode = "APPLY_TIMEOUT"
		}

		logger.Error("Accept failed", "window_id", windowID, "group", req.Group, "error", err)
		c.JSON(statusCode, ErrorResponse{
			Error: err.Error(),
			Code:  errCode,
		})
		return
	}

	logger.Info("Suggestion applied",
		"window_id", windowID,
		"group", req.Group,
		"group_id", resp.GroupID,
		"tabs", len(resp.ItemIDs))
	c.JSON(http.StatusOK, resp)
}

// HandleGetConfig handles GET /api/v1/config.
//
// Response:
//
//	200 OK: ConfigResponse
func (h *Handlers) HandleGetConfig(c *gin.Context) {
	c.JSON(http.StatusOK, h.svc.ConfigView())
}

// HandleUpdateConfig handles PUT /api/v1/config.
//
// Description:
//
//	Partial update of the runtime settings. Omitted fields keep their
//	current value; the response carries the effective values after
//	clamping.
//
// Request Body:
//
//	ConfigUpdateRequest
//
// Response:
//
//	200 OK: ConfigResponse
//	400 Bad Request: Validation error
func (h *Handlers) HandleUpdateConfig(c *gin.Context) {
	requestID := getOrCreateRequestID(c)
	logger := slog.With("request_id", requestID, "handler", "HandleUpdateConfig")

	var req ConfigUpdateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		logger.Warn("Invalid request body", "error", err)
		c.JSON(http.StatusBadRequest, ErrorResponse{
			Error: "Invalid request body",
			Code:  "INVALID_REQUEST",
		})
		return
	}

	c.JSON(http.StatusOK, h.svc.UpdateConfig(req))
}

// windowIDParam parses a positive window id path parameter, writing the
// 400 response itself on failure.
func windowIDParam(c *gin.Context, logger *slog.Logger, name string) (int64, bool) {
	raw := c.Param(name)
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || id <= 0 {
		logger.Warn("Invalid window id", "raw", raw)
		c.JSON(http.StatusBadRequest, ErrorResponse{
			Error: "Invalid window id",
			Code:  "INVALID_WINDOW_ID",
		})
		return 0, false
	}
	return id, true
}

// getOrCreateRequestID gets or creates a request ID.
func getOrCreateRequestID(c *gin.Context) string {
	requestID := c.GetHeader("X-Request-ID")
	if requestID == "" {
		requestID = uuid.NewString()
	}
	c.Header("X-Request-ID", requestID)
	return requestID
}
