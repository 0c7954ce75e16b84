package domain

// SessionRepository defines the interface for session persistence
type SessionRepository interface {
	// Create creates a new session
	Create(session *Session) error

	// Update updates an existing session
	Update(session *Session) error

	// Delete deletes a session by ID
	Delete(id string) error

	// FindByID finds a session by ID
	FindByID(id string) (*Session, error)

	// FindByPhase finds sessions by phase
	FindByPhase(phase Phase) ([]*Session, error)

	// FindAll finds all sessions with optional filters
	FindAll(filters map[string]interface{}) ([]*Session, error)

	// Count returns the total number of sessions
	Count() (int64, error)

	// GetStats returns session statistics
	GetStats() (*SessionStats, error)
}

// SessionStats represents session statistics
type SessionStats struct {
	Total       int64 `json:"total"`
	Preparing   int64 `json:"preparing"`
	Downloading int64 `json:"downloading"`
	Streaming   int64 `json:"streaming"`
	Complete    int64 `json:"complete"`
	Error       int64 `json:"error"`
}
