package api

import (
	"io"
	"io/fs"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/yourusername/streamsave-go/api/handlers"
	"github.com/yourusername/streamsave-go/api/middleware"
	"github.com/yourusername/streamsave-go/internal/app"
	"github.com/yourusername/streamsave-go/internal/domain"
	"github.com/yourusername/streamsave-go/web"
)

// SetupRouter sets up the HTTP router
func SetupRouter(
	manager *app.SessionManager,
	broker *app.ProgressBroker,
	repo domain.SessionRepository,
	metricsEnabled bool,
	log *zap.Logger,
) *gin.Engine {
	gin.SetMode(gin.ReleaseMode)

	router := gin.New()

	router.Use(middleware.Logger(log))
	router.Use(middleware.Recovery(log))
	router.Use(middleware.CORS())

	// Health endpoints
	healthHandler := handlers.NewHealthHandler(repo)
	router.GET("/health", healthHandler.Health)
	router.GET("/ready", healthHandler.Ready)

	if metricsEnabled {
		router.GET("/metrics", gin.WrapH(promhttp.Handler()))
	}

	// Session contract endpoints. These live at the root, not under /api/v1:
	// the paths are part of the client protocol.
	sessionHandler := handlers.NewSessionHandler(manager, log)
	router.POST("/download", sessionHandler.StartDownload)
	router.GET("/progress/:id", sessionHandler.GetProgress)
	router.POST("/prepare", sessionHandler.Prepare)
	router.GET("/stream/:id", sessionHandler.Stream)

	// Live progress over WebSocket
	wsHandler := handlers.NewProgressWebSocketHandler(manager, broker, log)
	router.GET("/ws/progress/:id", wsHandler.HandleWebSocket)

	// Management API
	v1 := router.Group("/api/v1")
	{
		sessions := v1.Group("/sessions")
		{
			sessions.GET("", sessionHandler.ListSessions)
			sessions.GET("/stats", sessionHandler.GetStats)
			sessions.GET("/:id", sessionHandler.GetSession)
			sessions.POST("/:id/cancel", sessionHandler.CancelSession)
		}
	}

	// Embedded web UI
	webFS := web.GetWebFS()

	router.GET("/", func(c *gin.Context) {
		serveFile(c, webFS, "index.html")
	})

	router.NoRoute(func(c *gin.Context) {
		path := c.Request.URL.Path

		if strings.HasPrefix(path, "/api/") {
			c.JSON(404, gin.H{"error": "not found"})
			return
		}

		filePath := strings.Trim(path, "/")
		if filePath == "" {
			filePath = "index.html"
		}

		if _, err := fs.Stat(webFS, filePath); err == nil {
			serveFile(c, webFS, filePath)
			return
		}

		c.JSON(404, gin.H{"error": "not found"})
	})

	return router
}

// serveFile serves a file from the embedded filesystem with proper content type
func serveFile(c *gin.Context, webFS fs.FS, filePath string) {
	file, err := webFS.Open(filePath)
	if err != nil {
		c.String(404, "File not found: %v", err)
		return
	}
	defer file.Close()

	content, err := io.ReadAll(file)
	if err != nil {
		c.String(500, "Failed to read file: %v", err)
		return
	}

	contentType := "application/octet-stream"
	switch {
	case strings.HasSuffix(filePath, ".html"):
		contentType = "text/html; charset=utf-8"
	case strings.HasSuffix(filePath, ".css"):
		contentType = "text/css; charset=utf-8"
	case strings.HasSuffix(filePath, ".js"):
		contentType = "application/javascript; charset=utf-8"
	case strings.HasSuffix(filePath, ".json"):
		contentType = "application/json; charset=utf-8"
	case strings.HasSuffix(filePath, ".png"):
		contentType = "image/png"
	case strings.HasSuffix(filePath, ".svg"):
		contentType = "image/svg+xml"
	}

	c.Data(200, contentType, content)
}
