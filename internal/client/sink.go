package client

import "go.uber.org/zap"

// StatusKind drives the presentation of a status line. It carries no
// behavioral contract.
type StatusKind string

const (
	StatusNeutral StatusKind = "neutral"
	StatusSuccess StatusKind = "success"
	StatusFailure StatusKind = "error"
)

// RenderSink is the pure projection of the current session view. A sink never
// initiates network activity; it only reflects the latest observation it is
// handed, even if progress regresses.
type RenderSink interface {
	// ShowProgress renders the current progress percentage (0-100)
	ShowProgress(percent int)

	// ShowStatus renders a status line with a presentation hint
	ShowStatus(message string, kind StatusKind)

	// ShowComplete renders the completion banner with the final file name
	ShowComplete(fileName string)

	// ShowError renders a failure message with error presentation
	ShowError(message string)
}

// ActionControl models the submit control shared across sessions. It must be
// re-enabled on every terminal or error path.
type ActionControl interface {
	Disable()
	Enable()
}

// NopControl is an ActionControl that does nothing, for surfaces without a
// togglable submit control.
type NopControl struct{}

func (NopControl) Disable() {}

func (NopControl) Enable() {}

// LogSink renders session observations as structured log events
type LogSink struct {
	logger *zap.Logger
}

// NewLogSink creates a sink that writes observations to a zap logger
func NewLogSink(logger *zap.Logger) *LogSink {
	return &LogSink{logger: logger}
}

func (s *LogSink) ShowProgress(percent int) {
	s.logger.Debug("session progress", zap.Int("percent", percent))
}

func (s *LogSink) ShowStatus(message string, kind StatusKind) {
	s.logger.Info("session status",
		zap.String("message", message),
		zap.String("kind", string(kind)))
}

func (s *LogSink) ShowComplete(fileName string) {
	s.logger.Info("session complete", zap.String("file_name", fileName))
}

func (s *LogSink) ShowError(message string) {
	s.logger.Error("session failed", zap.String("message", message))
}

// MultiSink fans every observation out to multiple sinks
type MultiSink struct {
	sinks []RenderSink
}

// NewMultiSink creates a sink that forwards to all given sinks in order
func NewMultiSink(sinks ...RenderSink) *MultiSink {
	return &MultiSink{sinks: sinks}
}

func (m *MultiSink) ShowProgress(percent int) {
	for _, s := range m.sinks {
		s.ShowProgress(percent)
	}
}

func (m *MultiSink) ShowStatus(message string, kind StatusKind) {
	for _, s := range m.sinks {
		s.ShowStatus(message, kind)
	}
}

func (m *MultiSink) ShowComplete(fileName string) {
	for _, s := range m.sinks {
		s.ShowComplete(fileName)
	}
}

func (m *MultiSink) ShowError(message string) {
	for _, s := range m.sinks {
		s.ShowError(message)
	}
}
