package infrastructure

import (
	"fmt"
	"os/exec"

	"go.uber.org/zap"

	"github.com/yourusername/streamsave-go/internal/domain"
)

// NotificationService sends desktop notifications for finished sessions
type NotificationService struct {
	config *domain.NotificationConfig
	logger *zap.Logger
}

// NewNotificationService creates a new notification service
func NewNotificationService(config *domain.NotificationConfig, logger *zap.Logger) *NotificationService {
	return &NotificationService{
		config: config,
		logger: logger,
	}
}

// Send sends a notification
func (n *NotificationService) Send(title, message string) error {
	if !n.config.Enabled {
		return nil
	}

	switch n.config.Method {
	case "osascript":
		return n.run("osascript", "-e",
			fmt.Sprintf(`display notification %q with title %q`, message, title))
	case "notify-send":
		return n.run("notify-send", title, message)
	default:
		n.logger.Warn("Unknown notification method", zap.String("method", n.config.Method))
		return nil
	}
}

func (n *NotificationService) run(name string, args ...string) error {
	cmd := exec.Command(name, args...)
	if err := cmd.Run(); err != nil {
		n.logger.Error("Failed to send notification",
			zap.String("method", name),
			zap.Error(err))
		return err
	}
	return nil
}

// NotifySessionComplete sends a notification when a session finishes
func (n *NotificationService) NotifySessionComplete(fileName string) {
	n.Send("Download Complete", fmt.Sprintf("Saved %s", truncateString(fileName, 40)))
}

// NotifySessionFailed sends a notification when a session fails
func (n *NotificationService) NotifySessionFailed(sourceURL, message string) {
	n.Send("Download Failed", fmt.Sprintf("%s: %s", truncateString(sourceURL, 30), message))
}

// truncateString truncates a string to the specified length
func truncateString(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	return s[:maxLen] + "..."
}
