package handlers

import (
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/yourusername/streamsave-go/internal/app"
	"github.com/yourusername/streamsave-go/internal/domain"
)

// SessionHandler handles download session HTTP requests
type SessionHandler struct {
	manager *app.SessionManager
	logger  *zap.Logger
}

// NewSessionHandler creates a new session handler
func NewSessionHandler(manager *app.SessionManager, logger *zap.Logger) *SessionHandler {
	return &SessionHandler{
		manager: manager,
		logger:  logger,
	}
}

// StartRequest is the body of POST /download and POST /prepare
type StartRequest struct {
	URL string `json:"url"`
}

// StartDownload handles POST /download. The response only carries the
// session id; everything else is observed through GET /progress/{id}.
func (h *SessionHandler) StartDownload(c *gin.Context) {
	var req StartRequest
	if err := c.ShouldBindJSON(&req); err != nil || req.URL == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "No URL provided"})
		return
	}

	session := h.manager.StartPolled(req.URL)
	c.JSON(http.StatusOK, gin.H{"download_id": session.ID})
}

// GetProgress handles GET /progress/:id. The error key is only present on
// failed sessions; polling clients treat its presence as terminal.
func (h *SessionHandler) GetProgress(c *gin.Context) {
	session, err := h.manager.Progress(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "Invalid download ID"})
		return
	}

	resp := gin.H{
		"progress": session.Progress,
		"status":   session.StatusText,
	}
	if session.FileName != "" {
		resp["file_name"] = session.FileName
	}
	if session.Failed() {
		resp["error"] = true
	}

	c.JSON(http.StatusOK, resp)
}

// Prepare handles POST /prepare: resolve the source synchronously and hand
// back everything a native client needs to stream the file itself
func (h *SessionHandler) Prepare(c *gin.Context) {
	var req StartRequest
	if err := c.ShouldBindJSON(&req); err != nil || req.URL == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "No URL provided"})
		return
	}

	session, err := h.manager.Prepare(c.Request.Context(), req.URL)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"download_id":  session.ID,
		"file_name":    session.FileName,
		"quality":      session.Quality,
		"num_segments": session.NumSegments,
	})
}

// Stream handles GET /stream/:id for prepared native sessions. Once the
// first segment is written the response status is committed; later faults
// surface to the client as a truncated body.
func (h *SessionHandler) Stream(c *gin.Context) {
	id := c.Param("id")

	session, err := h.manager.Progress(id)
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "Invalid download ID"})
		return
	}

	if session.Strategy != domain.StrategyNative || session.SegmentPlan == "" {
		c.JSON(http.StatusConflict, gin.H{"error": "Session is not prepared for streaming"})
		return
	}

	c.Header("Content-Type", "video/mp4")
	c.Header("Content-Disposition", fmt.Sprintf(`attachment; filename=%q`, session.FileName))

	if err := h.manager.StreamTo(c.Request.Context(), id, c.Writer); err != nil {
		h.logger.Warn("Stream aborted",
			zap.String("id", id),
			zap.Error(err))
	}
}

// ListSessions handles GET /api/v1/sessions
func (h *SessionHandler) ListSessions(c *gin.Context) {
	filters := make(map[string]interface{})
	if phase := c.Query("phase"); phase != "" {
		filters["phase"] = phase
	}
	if strategy := c.Query("strategy"); strategy != "" {
		filters["strategy"] = strategy
	}

	sessions, err := h.manager.List(filters)
	if err != nil {
		h.logger.Error("Failed to list sessions", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, sessions)
}

// GetSession handles GET /api/v1/sessions/:id
func (h *SessionHandler) GetSession(c *gin.Context) {
	session, err := h.manager.Progress(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "session not found"})
		return
	}

	c.JSON(http.StatusOK, session)
}

// GetStats handles GET /api/v1/sessions/stats
func (h *SessionHandler) GetStats(c *gin.Context) {
	stats, err := h.manager.Stats()
	if err != nil {
		h.logger.Error("Failed to get stats", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, stats)
}

// CancelSession handles POST /api/v1/sessions/:id/cancel
func (h *SessionHandler) CancelSession(c *gin.Context) {
	id := c.Param("id")

	if err := h.manager.Cancel(id); err != nil {
		h.logger.Warn("Failed to cancel session", zap.String("id", id), zap.Error(err))
		c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, gin.H{"message": "session cancelled"})
}
