package handlers

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/yourusername/streamsave-go/internal/app"
	"github.com/yourusername/streamsave-go/internal/domain"
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool {
		return true // Allow all origins for now
	},
}

// ProgressWebSocketHandler pushes live session progress over a WebSocket as
// an alternative to polling GET /progress
type ProgressWebSocketHandler struct {
	manager *app.SessionManager
	broker  *app.ProgressBroker
	logger  *zap.Logger
}

// NewProgressWebSocketHandler creates a new WebSocket handler
func NewProgressWebSocketHandler(manager *app.SessionManager, broker *app.ProgressBroker, log *zap.Logger) *ProgressWebSocketHandler {
	return &ProgressWebSocketHandler{
		manager: manager,
		broker:  broker,
		logger:  log,
	}
}

// HandleWebSocket handles GET /ws/progress/:id. The connection closes after
// the terminal update is delivered.
func (h *ProgressWebSocketHandler) HandleWebSocket(c *gin.Context) {
	id := c.Param("id")

	session, err := h.manager.Progress(id)
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "Invalid download ID"})
		return
	}

	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		h.logger.Error("Failed to upgrade WebSocket", zap.Error(err))
		return
	}
	defer conn.Close()

	h.logger.Info("WebSocket client connected",
		zap.String("id", id),
		zap.String("remote_addr", c.Request.RemoteAddr))

	// Subscribe before the initial snapshot so no update can slip between
	updates := h.broker.Subscribe(id)
	defer h.broker.Unsubscribe(id, updates)

	initial := snapshotUpdate(session)
	if err := conn.WriteJSON(initial); err != nil {
		return
	}
	if session.IsTerminal() {
		return
	}

	// Read messages from client so close frames are noticed
	done := make(chan struct{})
	go func() {
		defer close(done)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	ticker := time.NewTicker(30 * time.Second)
	defer ticker.Stop()

	for {
		select {
		case update := <-updates:
			if err := conn.WriteJSON(update); err != nil {
				h.logger.Warn("Failed to send progress update", zap.Error(err))
				return
			}
			if update.Phase == domain.PhaseComplete || update.Phase == domain.PhaseError {
				return
			}

		case <-ticker.C:
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}

		case <-done:
			return
		}
	}
}

func snapshotUpdate(s *domain.Session) app.ProgressUpdate {
	return app.ProgressUpdate{
		ID:       s.ID,
		Phase:    s.Phase,
		Progress: s.Progress,
		Status:   s.StatusText,
		FileName: s.FileName,
		Error:    s.Failed(),
	}
}
