package domain

import (
	"regexp"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Phase represents the current stage of a download session
type Phase string

const (
	PhasePreparing   Phase = "preparing"
	PhaseDownloading Phase = "downloading" // server-side transfer, observed via polling
	PhaseStreaming   Phase = "streaming"   // byte transfer handed to the caller
	PhaseComplete    Phase = "complete"
	PhaseError       Phase = "error"
)

// Strategy represents how the byte transfer reaches the user
type Strategy string

const (
	StrategyPolled Strategy = "polled" // server downloads, client polls /progress
	StrategyNative Strategy = "native" // client streams /stream/{id} directly
)

// Status texts published while a session progresses. The exact terminal text
// matters: polling clients treat StatusComplete together with progress 100 as
// the success condition.
const (
	StatusExtractingMetadata = "Starting metadata extraction..."
	StatusExtractingStream   = "Extracting highest quality stream..."
	StatusDownloadingChunks  = "Downloading chunks..."
	StatusMergingSegments    = "Merging file segments to mp4..."
	StatusReadyToStream      = "Ready to stream."
	StatusComplete           = "Download Complete!"
)

// Session represents one user-initiated request to obtain a file from a URL
type Session struct {
	ID           string    `json:"id" gorm:"primaryKey"`
	SourceURL    string    `json:"source_url" gorm:"not null"`
	Strategy     Strategy  `json:"strategy" gorm:"not null"`
	Phase        Phase     `json:"phase" gorm:"not null;index"`
	Progress     int       `json:"progress" gorm:"default:0"`
	StatusText   string    `json:"status_text"`
	FileName     string    `json:"file_name,omitempty"`
	Quality      string    `json:"quality,omitempty"`
	NumSegments  int       `json:"num_segments,omitempty"`
	FilePath     string    `json:"file_path,omitempty"`
	ErrorMessage string    `json:"error_message,omitempty"`
	SegmentPlan  string    `json:"-" gorm:"type:text"` // JSON list of segment URLs, kept for /stream
	CreatedAt    time.Time `json:"created_at" gorm:"autoCreateTime"`
	UpdatedAt    time.Time `json:"updated_at" gorm:"autoUpdateTime"`
	StartedAt    *time.Time `json:"started_at,omitempty"`
	CompletedAt  *time.Time `json:"completed_at,omitempty"`
}

// NewSession creates a new session in the preparing phase
func NewSession(sourceURL string, strategy Strategy) *Session {
	return &Session{
		ID:         uuid.New().String(),
		SourceURL:  sourceURL,
		Strategy:   strategy,
		Phase:      PhasePreparing,
		Progress:   0,
		StatusText: StatusExtractingMetadata,
		CreatedAt:  time.Now(),
		UpdatedAt:  time.Now(),
	}
}

// SetStatus updates the status text without changing phase
func (s *Session) SetStatus(text string) {
	s.StatusText = text
	s.UpdatedAt = time.Now()
}

// SetProgress updates the progress percentage
func (s *Session) SetProgress(percent int) {
	s.Progress = percent
	s.UpdatedAt = time.Now()
}

// MarkDownloading moves the session into the server-side transfer phase
func (s *Session) MarkDownloading() {
	s.Phase = PhaseDownloading
	s.StatusText = StatusDownloadingChunks
	now := time.Now()
	s.StartedAt = &now
	s.UpdatedAt = now
}

// MarkStreaming moves the session into the native-handoff transfer phase
func (s *Session) MarkStreaming() {
	s.Phase = PhaseStreaming
	now := time.Now()
	s.StartedAt = &now
	s.UpdatedAt = now
}

// MarkComplete marks the session as successfully finished
func (s *Session) MarkComplete(filePath string) {
	s.Phase = PhaseComplete
	s.StatusText = StatusComplete
	s.Progress = 100
	s.FilePath = filePath
	now := time.Now()
	s.CompletedAt = &now
	s.UpdatedAt = now
}

// MarkError marks the session as failed with a user-facing message
func (s *Session) MarkError(message string) {
	s.Phase = PhaseError
	s.StatusText = message
	s.ErrorMessage = message
	s.UpdatedAt = time.Now()
}

// IsTerminal checks if the session reached a final state
func (s *Session) IsTerminal() bool {
	return s.Phase == PhaseComplete || s.Phase == PhaseError
}

// IsActive checks if the session is still being worked on
func (s *Session) IsActive() bool {
	return !s.IsTerminal()
}

// Failed checks if the session ended in error
func (s *Session) Failed() bool {
	return s.Phase == PhaseError
}

var unsafeFileChars = regexp.MustCompile(`[<>:"/\\|?*\s]+`)

// SanitizeFileName turns a media title into a safe local file name
func SanitizeFileName(title string) string {
	name := unsafeFileChars.ReplaceAllString(title, "_")
	name = strings.Trim(name, "_")
	if name == "" {
		name = "download"
	}
	return name
}

// ValidateStrategy checks if a strategy is valid
func ValidateStrategy(strategy Strategy) bool {
	return strategy == StrategyPolled || strategy == StrategyNative
}
