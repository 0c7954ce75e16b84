package app

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"regexp"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/yourusername/streamsave-go/internal/domain"
	"github.com/yourusername/streamsave-go/internal/infrastructure"
	"github.com/yourusername/streamsave-go/pkg/metrics"
)

// User-facing failure statuses published into the progress store
const (
	statusInvalidSource = "Invalid source URL provided."
	statusMetadataError = "Video not found or failed to fetch metadata."
	statusStreamError   = "Could not determine available video quality stream."
	statusTooLarge      = "Video too large to process on this server instance."
	statusWriteError    = "Failed to write output file."
	statusCancelled     = "Download cancelled."
)

// SessionManager owns all server-side download sessions. Polled sessions run
// in background goroutines and publish progress into the live store; native
// sessions are prepared synchronously and streamed on demand.
type SessionManager struct {
	repo      domain.SessionRepository
	extractor domain.Extractor
	segments  domain.SegmentDownloader
	notifier  *infrastructure.NotificationService
	broker    *ProgressBroker
	metrics   *metrics.Collector
	config    *domain.DownloadConfig
	logger    *zap.Logger

	sourceRe *regexp.Regexp

	mu      sync.RWMutex
	live    map[string]*domain.Session
	cancels map[string]context.CancelFunc
	wg      sync.WaitGroup
}

// NewSessionManager creates a session manager
func NewSessionManager(
	repo domain.SessionRepository,
	extractor domain.Extractor,
	segments domain.SegmentDownloader,
	notifier *infrastructure.NotificationService,
	broker *ProgressBroker,
	collector *metrics.Collector,
	config *domain.DownloadConfig,
	logger *zap.Logger,
) (*SessionManager, error) {
	var sourceRe *regexp.Regexp
	if config.SourcePattern != "" {
		re, err := regexp.Compile(config.SourcePattern)
		if err != nil {
			return nil, fmt.Errorf("invalid source pattern: %w", err)
		}
		sourceRe = re
	}

	return &SessionManager{
		repo:      repo,
		extractor: extractor,
		segments:  segments,
		notifier:  notifier,
		broker:    broker,
		metrics:   collector,
		config:    config,
		logger:    logger,
		sourceRe:  sourceRe,
		live:      make(map[string]*domain.Session),
		cancels:   make(map[string]context.CancelFunc),
	}, nil
}

// StartPolled creates a polled session and begins processing it in the
// background. The returned session only carries the id; everything else is
// observed through Progress.
func (m *SessionManager) StartPolled(sourceURL string) *domain.Session {
	session := domain.NewSession(sourceURL, domain.StrategyPolled)

	if err := m.repo.Create(session); err != nil {
		m.logger.Warn("failed to persist session", zap.String("id", session.ID), zap.Error(err))
	}

	ctx, cancel := context.WithCancel(context.Background())

	m.mu.Lock()
	m.live[session.ID] = session
	m.cancels[session.ID] = cancel
	m.mu.Unlock()

	m.metrics.SessionStarted()
	m.wg.Add(1)
	go m.perform(ctx, session)

	m.logger.Info("session started",
		zap.String("id", session.ID),
		zap.String("url", sourceURL))

	return session
}

// Prepare resolves a source URL synchronously for the native-handoff
// strategy and stores the segment plan for a later /stream request. Errors
// carry the user-facing message.
func (m *SessionManager) Prepare(ctx context.Context, sourceURL string) (*domain.Session, error) {
	if !m.sourceAllowed(sourceURL) {
		return nil, errors.New(statusInvalidSource)
	}

	info, err := m.extractor.FetchMetadata(ctx, sourceURL)
	if err != nil {
		m.logger.Warn("prepare: metadata failed", zap.String("url", sourceURL), zap.Error(err))
		return nil, errors.New(statusMetadataError)
	}

	stream, err := m.extractor.ResolveStream(ctx, info)
	if err != nil {
		m.logger.Warn("prepare: stream resolution failed", zap.String("url", sourceURL), zap.Error(err))
		return nil, errors.New(statusStreamError)
	}

	if len(stream.SegmentURLs) > m.config.MaxSegments {
		return nil, errors.New(statusTooLarge)
	}

	plan, err := json.Marshal(stream.SegmentURLs)
	if err != nil {
		return nil, fmt.Errorf("failed to encode segment plan: %w", err)
	}

	session := domain.NewSession(sourceURL, domain.StrategyNative)
	session.FileName = domain.SanitizeFileName(info.Title) + ".mp4"
	session.Quality = stream.Quality
	session.NumSegments = len(stream.SegmentURLs)
	session.SegmentPlan = string(plan)
	session.SetStatus(domain.StatusReadyToStream)

	if err := m.repo.Create(session); err != nil {
		m.logger.Warn("failed to persist session", zap.String("id", session.ID), zap.Error(err))
	}

	m.mu.Lock()
	m.live[session.ID] = session
	m.mu.Unlock()

	m.logger.Info("session prepared",
		zap.String("id", session.ID),
		zap.String("file_name", session.FileName),
		zap.String("quality", session.Quality),
		zap.Int("num_segments", session.NumSegments))

	return session, nil
}

// Progress returns a snapshot of one session's current state
func (m *SessionManager) Progress(id string) (*domain.Session, error) {
	m.mu.RLock()
	if s, ok := m.live[id]; ok {
		snapshot := *s
		m.mu.RUnlock()
		return &snapshot, nil
	}
	m.mu.RUnlock()

	return m.repo.FindByID(id)
}

// StreamTo streams a prepared session's merged media into w. The session is
// terminal afterwards. Transfer faults past the first byte cannot be
// reported to the client anymore, only recorded.
func (m *SessionManager) StreamTo(ctx context.Context, id string, w io.Writer) error {
	session, err := m.lookup(id)
	if err != nil {
		return err
	}

	m.mu.RLock()
	plan := session.SegmentPlan
	m.mu.RUnlock()

	if plan == "" {
		return fmt.Errorf("session %s has no segment plan", id)
	}

	var urls []string
	if err := json.Unmarshal([]byte(plan), &urls); err != nil {
		return fmt.Errorf("failed to decode segment plan: %w", err)
	}

	m.metrics.SessionStarted()
	start := time.Now()
	m.transition(session, func(s *domain.Session) { s.MarkStreaming() })

	if err := m.segments.Stream(ctx, urls, w); err != nil {
		m.transition(session, func(s *domain.Session) { s.MarkError(statusWriteError) })
		m.metrics.SessionFinished("error", string(domain.StrategyNative), time.Since(start).Seconds())
		m.logger.Warn("stream failed", zap.String("id", id), zap.Error(err))
		return err
	}

	m.transition(session, func(s *domain.Session) { s.MarkComplete("") })
	m.metrics.SessionFinished("complete", string(domain.StrategyNative), time.Since(start).Seconds())
	m.notifier.NotifySessionComplete(session.FileName)

	m.logger.Info("stream complete",
		zap.String("id", id),
		zap.Duration("elapsed", time.Since(start)))

	return nil
}

// Cancel aborts an active session
func (m *SessionManager) Cancel(id string) error {
	session, err := m.Progress(id)
	if err != nil {
		return fmt.Errorf("session not found: %w", err)
	}
	if session.IsTerminal() {
		return fmt.Errorf("session already in terminal state: %s", session.Phase)
	}

	m.mu.Lock()
	cancel, ok := m.cancels[id]
	m.mu.Unlock()

	if !ok {
		return fmt.Errorf("session %s is not cancellable", id)
	}

	cancel()
	return nil
}

// List lists sessions with optional filters
func (m *SessionManager) List(filters map[string]interface{}) ([]*domain.Session, error) {
	return m.repo.FindAll(filters)
}

// Stats returns session statistics
func (m *SessionManager) Stats() (*domain.SessionStats, error) {
	return m.repo.GetStats()
}

// Stop cancels all active sessions and waits for their goroutines
func (m *SessionManager) Stop() {
	m.mu.Lock()
	for _, cancel := range m.cancels {
		cancel()
	}
	m.mu.Unlock()

	m.wg.Wait()
}

// perform runs one polled session to a terminal state
func (m *SessionManager) perform(ctx context.Context, session *domain.Session) {
	defer m.wg.Done()
	defer func() {
		m.mu.Lock()
		delete(m.cancels, session.ID)
		m.mu.Unlock()
	}()

	start := time.Now()
	outcome := "error"
	defer func() {
		m.metrics.SessionFinished(outcome, string(session.Strategy), time.Since(start).Seconds())
	}()

	fail := func(msg string, cause error) {
		m.logger.Warn("session failed",
			zap.String("id", session.ID),
			zap.String("reason", msg),
			zap.Error(cause))
		m.transition(session, func(s *domain.Session) { s.MarkError(msg) })
		m.notifier.NotifySessionFailed(session.SourceURL, msg)
	}

	if !m.sourceAllowed(session.SourceURL) {
		fail(statusInvalidSource, nil)
		return
	}

	info, err := m.extractor.FetchMetadata(ctx, session.SourceURL)
	if err != nil {
		if ctx.Err() != nil {
			fail(statusCancelled, err)
		} else {
			fail(statusMetadataError, err)
		}
		return
	}

	m.transition(session, func(s *domain.Session) { s.SetStatus(domain.StatusExtractingStream) })

	stream, err := m.extractor.ResolveStream(ctx, info)
	if err != nil {
		if ctx.Err() != nil {
			fail(statusCancelled, err)
		} else {
			fail(statusStreamError, err)
		}
		return
	}

	if len(stream.SegmentURLs) > m.config.MaxSegments {
		fail(statusTooLarge, nil)
		return
	}

	fileName := domain.SanitizeFileName(info.Title) + ".mp4"
	m.transition(session, func(s *domain.Session) {
		s.FileName = fileName
		s.Quality = stream.Quality
		s.NumSegments = len(stream.SegmentURLs)
		s.MarkDownloading()
	})

	if err := os.MkdirAll(m.config.OutputDir, 0755); err != nil {
		fail(statusWriteError, err)
		return
	}

	outputPath := filepath.Join(m.config.OutputDir, fileName)
	out, err := os.Create(outputPath)
	if err != nil {
		fail(statusWriteError, err)
		return
	}

	err = m.segments.Download(ctx, stream.SegmentURLs, out, func(done, total int) {
		m.metrics.SegmentFetched()
		m.tick(session, func(s *domain.Session) {
			s.SetProgress(done * 100 / total)
			if done == total {
				// All segments are in; the ordered merge to disk runs next.
				s.SetStatus(domain.StatusMergingSegments)
			}
		})
	})
	closeErr := out.Close()

	if err != nil {
		os.Remove(outputPath)
		if errors.Is(err, context.Canceled) {
			fail(statusCancelled, err)
		} else {
			fail(statusWriteError, err)
		}
		return
	}
	if closeErr != nil {
		os.Remove(outputPath)
		fail(statusWriteError, closeErr)
		return
	}

	m.transition(session, func(s *domain.Session) { s.MarkComplete(outputPath) })
	m.notifier.NotifySessionComplete(fileName)
	outcome = "complete"

	m.logger.Info("session complete",
		zap.String("id", session.ID),
		zap.String("file", outputPath),
		zap.Duration("elapsed", time.Since(start)))
}

// transition applies a mutation, persists it and publishes the update
func (m *SessionManager) transition(session *domain.Session, fn func(*domain.Session)) {
	snapshot := m.apply(session, fn)
	if err := m.repo.Update(&snapshot); err != nil {
		m.logger.Warn("failed to persist session update",
			zap.String("id", session.ID),
			zap.Error(err))
	}
	m.broker.Publish(updateFrom(&snapshot))
}

// tick applies a mutation and publishes it without touching the database.
// Per-segment progress would otherwise hammer SQLite thousands of times per
// session; the durable record only needs phase transitions.
func (m *SessionManager) tick(session *domain.Session, fn func(*domain.Session)) {
	snapshot := m.apply(session, fn)
	m.broker.Publish(updateFrom(&snapshot))
}

func (m *SessionManager) apply(session *domain.Session, fn func(*domain.Session)) domain.Session {
	m.mu.Lock()
	defer m.mu.Unlock()
	fn(session)
	return *session
}

// lookup returns the live session for id, loading it from the repository if
// this process has not seen it yet
func (m *SessionManager) lookup(id string) (*domain.Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if s, ok := m.live[id]; ok {
		return s, nil
	}

	s, err := m.repo.FindByID(id)
	if err != nil {
		return nil, err
	}
	m.live[id] = s
	return s, nil
}

// sourceAllowed applies the configured source URL gate
func (m *SessionManager) sourceAllowed(sourceURL string) bool {
	if m.sourceRe == nil {
		return true
	}
	return m.sourceRe.MatchString(sourceURL)
}

func updateFrom(s *domain.Session) ProgressUpdate {
	return ProgressUpdate{
		ID:       s.ID,
		Phase:    s.Phase,
		Progress: s.Progress,
		Status:   s.StatusText,
		FileName: s.FileName,
		Error:    s.Failed(),
	}
}
