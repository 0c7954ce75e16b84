package infrastructure

import (
	"fmt"

	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/yourusername/streamsave-go/internal/domain"
)

// SQLiteSessionRepository implements SessionRepository using SQLite
type SQLiteSessionRepository struct {
	db *gorm.DB
}

// NewSQLiteSessionRepository creates a new SQLite repository
func NewSQLiteSessionRepository(dbPath string) (*SQLiteSessionRepository, error) {
	db, err := gorm.Open(sqlite.Open(dbPath), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if err := db.AutoMigrate(&domain.Session{}); err != nil {
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}

	return &SQLiteSessionRepository{db: db}, nil
}

// Create creates a new session
func (r *SQLiteSessionRepository) Create(session *domain.Session) error {
	return r.db.Create(session).Error
}

// Update updates an existing session
func (r *SQLiteSessionRepository) Update(session *domain.Session) error {
	return r.db.Save(session).Error
}

// Delete deletes a session by ID
func (r *SQLiteSessionRepository) Delete(id string) error {
	return r.db.Delete(&domain.Session{}, "id = ?", id).Error
}

// FindByID finds a session by ID
func (r *SQLiteSessionRepository) FindByID(id string) (*domain.Session, error) {
	var session domain.Session
	err := r.db.First(&session, "id = ?", id).Error
	if err != nil {
		return nil, err
	}
	return &session, nil
}

// FindByPhase finds sessions by phase
func (r *SQLiteSessionRepository) FindByPhase(phase domain.Phase) ([]*domain.Session, error) {
	var sessions []*domain.Session
	err := r.db.Where("phase = ?", phase).Find(&sessions).Error
	return sessions, err
}

// FindAll finds all sessions with optional filters
func (r *SQLiteSessionRepository) FindAll(filters map[string]interface{}) ([]*domain.Session, error) {
	var sessions []*domain.Session
	query := r.db

	for key, value := range filters {
		query = query.Where(fmt.Sprintf("%s = ?", key), value)
	}

	err := query.Order("created_at DESC").Find(&sessions).Error
	return sessions, err
}

// Count returns the total number of sessions
func (r *SQLiteSessionRepository) Count() (int64, error) {
	var count int64
	err := r.db.Model(&domain.Session{}).Count(&count).Error
	return count, err
}

// GetStats returns session statistics
func (r *SQLiteSessionRepository) GetStats() (*domain.SessionStats, error) {
	stats := &domain.SessionStats{}

	if err := r.db.Model(&domain.Session{}).Count(&stats.Total).Error; err != nil {
		return nil, err
	}

	phaseCounts := []struct {
		Phase domain.Phase
		Count int64
	}{}

	if err := r.db.Model(&domain.Session{}).
		Select("phase, count(*) as count").
		Group("phase").
		Scan(&phaseCounts).Error; err != nil {
		return nil, err
	}

	for _, pc := range phaseCounts {
		switch pc.Phase {
		case domain.PhasePreparing:
			stats.Preparing = pc.Count
		case domain.PhaseDownloading:
			stats.Downloading = pc.Count
		case domain.PhaseStreaming:
			stats.Streaming = pc.Count
		case domain.PhaseComplete:
			stats.Complete = pc.Count
		case domain.PhaseError:
			stats.Error = pc.Count
		}
	}

	return stats, nil
}

// Close closes the database connection
func (r *SQLiteSessionRepository) Close() error {
	sqlDB, err := r.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}
