package app

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/yourusername/streamsave-go/internal/domain"
	"github.com/yourusername/streamsave-go/internal/infrastructure"
	"github.com/yourusername/streamsave-go/pkg/metrics"
)

type memRepo struct {
	mu       sync.Mutex
	sessions map[string]domain.Session
}

func newMemRepo() *memRepo {
	return &memRepo{sessions: make(map[string]domain.Session)}
}

func (r *memRepo) Create(s *domain.Session) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.sessions[s.ID] = *s
	return nil
}

func (r *memRepo) Update(s *domain.Session) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.sessions[s.ID]; !ok {
		return errors.New("not found")
	}
	r.sessions[s.ID] = *s
	return nil
}

func (r *memRepo) Delete(id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.sessions, id)
	return nil
}

func (r *memRepo) FindByID(id string) (*domain.Session, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.sessions[id]
	if !ok {
		return nil, errors.New("not found")
	}
	snapshot := s
	return &snapshot, nil
}

func (r *memRepo) FindByPhase(phase domain.Phase) ([]*domain.Session, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*domain.Session
	for _, s := range r.sessions {
		if s.Phase == phase {
			snapshot := s
			out = append(out, &snapshot)
		}
	}
	return out, nil
}

func (r *memRepo) FindAll(filters map[string]interface{}) ([]*domain.Session, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*domain.Session
	for _, s := range r.sessions {
		snapshot := s
		out = append(out, &snapshot)
	}
	return out, nil
}

func (r *memRepo) Count() (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return int64(len(r.sessions)), nil
}

func (r *memRepo) GetStats() (*domain.SessionStats, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	stats := &domain.SessionStats{Total: int64(len(r.sessions))}
	for _, s := range r.sessions {
		switch s.Phase {
		case domain.PhasePreparing:
			stats.Preparing++
		case domain.PhaseDownloading:
			stats.Downloading++
		case domain.PhaseStreaming:
			stats.Streaming++
		case domain.PhaseComplete:
			stats.Complete++
		case domain.PhaseError:
			stats.Error++
		}
	}
	return stats, nil
}

type fakeExtractor struct {
	info      *domain.MediaInfo
	infoErr   error
	stream    *domain.StreamInfo
	streamErr error
}

func (f *fakeExtractor) FetchMetadata(ctx context.Context, sourceURL string) (*domain.MediaInfo, error) {
	if f.infoErr != nil {
		return nil, f.infoErr
	}
	return f.info, nil
}

func (f *fakeExtractor) ResolveStream(ctx context.Context, info *domain.MediaInfo) (*domain.StreamInfo, error) {
	if f.streamErr != nil {
		return nil, f.streamErr
	}
	return f.stream, nil
}

// fakeSegments writes one marker byte per segment. When block is set,
// Download parks until the context is cancelled.
type fakeSegments struct {
	block bool
	err   error
}

func (f *fakeSegments) Download(ctx context.Context, urls []string, out io.Writer, onProgress func(done, total int)) error {
	if f.block {
		<-ctx.Done()
		return ctx.Err()
	}
	if f.err != nil {
		return f.err
	}
	for i := range urls {
		if _, err := out.Write([]byte("X")); err != nil {
			return err
		}
		if onProgress != nil {
			onProgress(i+1, len(urls))
		}
	}
	return nil
}

func (f *fakeSegments) Stream(ctx context.Context, urls []string, out io.Writer) error {
	if f.err != nil {
		return f.err
	}
	for range urls {
		if _, err := out.Write([]byte("X")); err != nil {
			return err
		}
	}
	return nil
}

type managerFixture struct {
	manager *SessionManager
	repo    *memRepo
	config  *domain.DownloadConfig
}

func newManagerFixture(t *testing.T, extractor domain.Extractor, segments domain.SegmentDownloader, mutate func(*domain.DownloadConfig)) *managerFixture {
	t.Helper()

	config := &domain.DownloadConfig{
		OutputDir:      t.TempDir(),
		MaxSegments:    100,
		SegmentWorkers: 2,
		SegmentRetries: 1,
		RequestTimeout: time.Second,
	}
	if mutate != nil {
		mutate(config)
	}

	repo := newMemRepo()
	notifier := infrastructure.NewNotificationService(&domain.NotificationConfig{Enabled: false}, zap.NewNop())
	collector := metrics.New("test", prometheus.NewRegistry())

	manager, err := NewSessionManager(repo, extractor, segments, notifier, NewProgressBroker(), collector, config, zap.NewNop())
	require.NoError(t, err)
	t.Cleanup(manager.Stop)

	return &managerFixture{manager: manager, repo: repo, config: config}
}

func waitForTerminal(t *testing.T, m *SessionManager, id string) *domain.Session {
	t.Helper()
	var final *domain.Session
	require.Eventually(t, func() bool {
		s, err := m.Progress(id)
		if err != nil {
			return false
		}
		final = s
		return s.IsTerminal()
	}, 2*time.Second, 5*time.Millisecond)
	return final
}

func TestSessionManager_StartPolled_Complete(t *testing.T) {
	extractor := &fakeExtractor{
		info: &domain.MediaInfo{Title: "My Cool: Video", PlaylistURL: "https://cdn.example.com/master.m3u8"},
		stream: &domain.StreamInfo{
			Quality:     "1280x720",
			SegmentURLs: []string{"https://cdn.example.com/0.ts", "https://cdn.example.com/1.ts", "https://cdn.example.com/2.ts"},
		},
	}
	fx := newManagerFixture(t, extractor, &fakeSegments{}, nil)

	session := fx.manager.StartPolled("https://media.example.com/watch/abc")
	final := waitForTerminal(t, fx.manager, session.ID)

	assert.Equal(t, domain.PhaseComplete, final.Phase)
	assert.Equal(t, 100, final.Progress)
	assert.Equal(t, domain.StatusComplete, final.StatusText)
	assert.Equal(t, "My_Cool_Video.mp4", final.FileName)
	assert.Equal(t, "1280x720", final.Quality)
	assert.Equal(t, 3, final.NumSegments)

	data, err := os.ReadFile(filepath.Join(fx.config.OutputDir, "My_Cool_Video.mp4"))
	require.NoError(t, err)
	assert.Equal(t, "XXX", string(data))

	persisted, err := fx.repo.FindByID(session.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.PhaseComplete, persisted.Phase)
}

func TestSessionManager_StartPolled_MetadataFailure(t *testing.T) {
	extractor := &fakeExtractor{infoErr: errors.New("404")}
	fx := newManagerFixture(t, extractor, &fakeSegments{}, nil)

	session := fx.manager.StartPolled("https://media.example.com/watch/gone")
	final := waitForTerminal(t, fx.manager, session.ID)

	assert.Equal(t, domain.PhaseError, final.Phase)
	assert.Equal(t, statusMetadataError, final.StatusText)
}

func TestSessionManager_StartPolled_TooManySegments(t *testing.T) {
	extractor := &fakeExtractor{
		info: &domain.MediaInfo{Title: "long", PlaylistURL: "https://cdn.example.com/master.m3u8"},
		stream: &domain.StreamInfo{
			Quality:     "default",
			SegmentURLs: []string{"a", "b", "c"},
		},
	}
	fx := newManagerFixture(t, extractor, &fakeSegments{}, func(c *domain.DownloadConfig) {
		c.MaxSegments = 2
	})

	session := fx.manager.StartPolled("https://media.example.com/watch/long")
	final := waitForTerminal(t, fx.manager, session.ID)

	assert.Equal(t, domain.PhaseError, final.Phase)
	assert.Equal(t, statusTooLarge, final.StatusText)
}

func TestSessionManager_StartPolled_SourcePatternRejects(t *testing.T) {
	fx := newManagerFixture(t, &fakeExtractor{}, &fakeSegments{}, func(c *domain.DownloadConfig) {
		c.SourcePattern = `^https://media\.example\.com/`
	})

	session := fx.manager.StartPolled("https://elsewhere.example.net/watch/abc")
	final := waitForTerminal(t, fx.manager, session.ID)

	assert.Equal(t, domain.PhaseError, final.Phase)
	assert.Equal(t, statusInvalidSource, final.StatusText)
}

func TestSessionManager_Cancel(t *testing.T) {
	extractor := &fakeExtractor{
		info:   &domain.MediaInfo{Title: "slow", PlaylistURL: "https://cdn.example.com/master.m3u8"},
		stream: &domain.StreamInfo{Quality: "default", SegmentURLs: []string{"a"}},
	}
	fx := newManagerFixture(t, extractor, &fakeSegments{block: true}, nil)

	session := fx.manager.StartPolled("https://media.example.com/watch/slow")

	require.Eventually(t, func() bool {
		s, err := fx.manager.Progress(session.ID)
		return err == nil && s.Phase == domain.PhaseDownloading
	}, 2*time.Second, 5*time.Millisecond)

	require.NoError(t, fx.manager.Cancel(session.ID))

	final := waitForTerminal(t, fx.manager, session.ID)
	assert.Equal(t, domain.PhaseError, final.Phase)
	assert.Equal(t, statusCancelled, final.StatusText)

	// a second cancel reports the terminal state
	assert.Error(t, fx.manager.Cancel(session.ID))
}

func TestSessionManager_Prepare(t *testing.T) {
	extractor := &fakeExtractor{
		info: &domain.MediaInfo{Title: "Native Clip", PlaylistURL: "https://cdn.example.com/master.m3u8"},
		stream: &domain.StreamInfo{
			Quality:     "1920x1080",
			SegmentURLs: []string{"https://cdn.example.com/0.ts", "https://cdn.example.com/1.ts"},
		},
	}
	fx := newManagerFixture(t, extractor, &fakeSegments{}, nil)

	session, err := fx.manager.Prepare(context.Background(), "https://media.example.com/watch/native")
	require.NoError(t, err)

	assert.Equal(t, domain.StrategyNative, session.Strategy)
	assert.Equal(t, "Native_Clip.mp4", session.FileName)
	assert.Equal(t, "1920x1080", session.Quality)
	assert.Equal(t, 2, session.NumSegments)
	assert.NotEmpty(t, session.SegmentPlan)
}

func TestSessionManager_Prepare_StreamFailure(t *testing.T) {
	extractor := &fakeExtractor{
		info:      &domain.MediaInfo{Title: "broken", PlaylistURL: "https://cdn.example.com/master.m3u8"},
		streamErr: errors.New("no variants"),
	}
	fx := newManagerFixture(t, extractor, &fakeSegments{}, nil)

	_, err := fx.manager.Prepare(context.Background(), "https://media.example.com/watch/broken")
	require.Error(t, err)
	assert.Equal(t, statusStreamError, err.Error())
}

func TestSessionManager_StreamTo(t *testing.T) {
	extractor := &fakeExtractor{
		info:   &domain.MediaInfo{Title: "Native Clip", PlaylistURL: "https://cdn.example.com/master.m3u8"},
		stream: &domain.StreamInfo{Quality: "default", SegmentURLs: []string{"a", "b", "c", "d"}},
	}
	fx := newManagerFixture(t, extractor, &fakeSegments{}, nil)

	session, err := fx.manager.Prepare(context.Background(), "https://media.example.com/watch/native")
	require.NoError(t, err)

	var buf bytes.Buffer
	require.NoError(t, fx.manager.StreamTo(context.Background(), session.ID, &buf))
	assert.Equal(t, "XXXX", buf.String())

	final, err := fx.manager.Progress(session.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.PhaseComplete, final.Phase)
}

func TestSessionManager_StreamTo_UnknownSession(t *testing.T) {
	fx := newManagerFixture(t, &fakeExtractor{}, &fakeSegments{}, nil)

	var buf bytes.Buffer
	err := fx.manager.StreamTo(context.Background(), "missing", &buf)
	assert.Error(t, err)
}

func TestSessionManager_StreamTo_PolledSessionHasNoPlan(t *testing.T) {
	extractor := &fakeExtractor{
		info:   &domain.MediaInfo{Title: "v", PlaylistURL: "https://cdn.example.com/master.m3u8"},
		stream: &domain.StreamInfo{Quality: "default", SegmentURLs: []string{"a"}},
	}
	fx := newManagerFixture(t, extractor, &fakeSegments{}, nil)

	session := fx.manager.StartPolled("https://media.example.com/watch/v")
	waitForTerminal(t, fx.manager, session.ID)

	var buf bytes.Buffer
	err := fx.manager.StreamTo(context.Background(), session.ID, &buf)
	assert.Error(t, err)
}

func TestSessionManager_ProgressUnknownID(t *testing.T) {
	fx := newManagerFixture(t, &fakeExtractor{}, &fakeSegments{}, nil)

	_, err := fx.manager.Progress("nope")
	assert.Error(t, err)
}

func TestSessionManager_StatusSequenceObservedOnBroker(t *testing.T) {
	extractor := &fakeExtractor{
		info:   &domain.MediaInfo{Title: "seq", PlaylistURL: "https://cdn.example.com/master.m3u8"},
		stream: &domain.StreamInfo{Quality: "default", SegmentURLs: []string{"a", "b"}},
	}

	config := &domain.DownloadConfig{
		OutputDir:      t.TempDir(),
		MaxSegments:    100,
		SegmentWorkers: 2,
		SegmentRetries: 1,
	}
	repo := newMemRepo()
	broker := NewProgressBroker()
	notifier := infrastructure.NewNotificationService(&domain.NotificationConfig{Enabled: false}, zap.NewNop())
	collector := metrics.New("test", prometheus.NewRegistry())

	manager, err := NewSessionManager(repo, extractor, &fakeSegments{}, notifier, broker, collector, config, zap.NewNop())
	require.NoError(t, err)
	t.Cleanup(manager.Stop)

	// Subscribing before the goroutine starts is not possible because the id
	// is only known afterwards, so collect what arrives and check ordering of
	// whatever was seen.
	session := manager.StartPolled("https://media.example.com/watch/seq")
	ch := broker.Subscribe(session.ID)
	defer broker.Unsubscribe(session.ID, ch)

	waitForTerminal(t, manager, session.ID)

	var statuses []string
	for {
		select {
		case u := <-ch:
			statuses = append(statuses, u.Status)
			if u.Status == domain.StatusComplete {
				assert.Equal(t, 100, u.Progress)
				return
			}
		case <-time.After(time.Second):
			// Terminal update may have been published before we subscribed;
			// the session itself is already verified terminal above.
			t.Logf("observed statuses: %v", statuses)
			return
		}
	}
}

func TestSessionManager_Stats(t *testing.T) {
	extractor := &fakeExtractor{
		info:   &domain.MediaInfo{Title: "v", PlaylistURL: "https://cdn.example.com/master.m3u8"},
		stream: &domain.StreamInfo{Quality: "default", SegmentURLs: []string{"a"}},
	}
	fx := newManagerFixture(t, extractor, &fakeSegments{}, nil)

	first := fx.manager.StartPolled("https://media.example.com/watch/1")
	waitForTerminal(t, fx.manager, first.ID)

	stats, err := fx.manager.Stats()
	require.NoError(t, err)
	assert.Equal(t, int64(1), stats.Total)
	assert.Equal(t, int64(1), stats.Complete)

	sessions, err := fx.manager.List(nil)
	require.NoError(t, err)
	assert.Len(t, sessions, 1)
}

func TestSessionManager_FileNameCollisionOverwrites(t *testing.T) {
	extractor := &fakeExtractor{
		info:   &domain.MediaInfo{Title: "same", PlaylistURL: "https://cdn.example.com/master.m3u8"},
		stream: &domain.StreamInfo{Quality: "default", SegmentURLs: []string{"a", "b"}},
	}
	fx := newManagerFixture(t, extractor, &fakeSegments{}, nil)

	for i := 0; i < 2; i++ {
		session := fx.manager.StartPolled(fmt.Sprintf("https://media.example.com/watch/%d", i))
		final := waitForTerminal(t, fx.manager, session.ID)
		require.Equal(t, domain.PhaseComplete, final.Phase)
	}

	data, err := os.ReadFile(filepath.Join(fx.config.OutputDir, "same.mp4"))
	require.NoError(t, err)
	assert.Equal(t, "XX", string(data))
}
