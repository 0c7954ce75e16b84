package client

import (
	"context"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"
)

const defaultPollInterval = 500 * time.Millisecond

// Controller owns the single active download session on the client side.
// Starting a new session supersedes the previous one: its context is
// cancelled and its sequence number invalidated, so a stale drive can never
// render into the sink again. At most one polling schedule is live at a time.
type Controller struct {
	backend  *Backend
	sink     RenderSink
	control  ActionControl
	logger   *zap.Logger
	interval time.Duration

	mu     sync.Mutex
	cancel context.CancelFunc
	seq    atomic.Uint64
}

// ControllerOptions tunes optional controller behavior
type ControllerOptions struct {
	PollInterval time.Duration // defaults to 500ms
	Control      ActionControl // defaults to NopControl
	Logger       *zap.Logger   // defaults to a no-op logger
}

// NewController creates a session controller rendering into sink
func NewController(backend *Backend, sink RenderSink, opts ControllerOptions) *Controller {
	if opts.PollInterval <= 0 {
		opts.PollInterval = defaultPollInterval
	}
	if opts.Control == nil {
		opts.Control = NopControl{}
	}
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}

	return &Controller{
		backend:  backend,
		sink:     sink,
		control:  opts.Control,
		logger:   opts.Logger,
		interval: opts.PollInterval,
	}
}

// Fetch runs the polling strategy: initiate a server-side download, then
// poll its progress until the session reaches a terminal state. It blocks
// until then and returns nil on success, or an error from the taxonomy in
// errors.go. A concurrent Fetch or Save supersedes this one.
func (c *Controller) Fetch(ctx context.Context, rawURL string) error {
	sourceURL := strings.TrimSpace(rawURL)
	if sourceURL == "" {
		c.sink.ShowError(ErrEmptyInput.Error())
		return ErrEmptyInput
	}

	ctx, seq := c.begin(ctx)

	c.control.Disable()
	defer c.control.Enable()
	c.resetView()

	c.logger.Info("starting download session",
		zap.String("url", sourceURL),
		zap.Uint64("seq", seq))

	id, err := c.backend.StartDownload(ctx, sourceURL)
	if err != nil {
		c.renderFailure(seq, err)
		return err
	}

	return c.poll(ctx, seq, id)
}

// Save runs the native-handoff strategy: prepare the session up front, then
// dispatch the byte transfer to handler and consider the session complete.
func (c *Controller) Save(ctx context.Context, rawURL string, handler StreamHandler) error {
	sourceURL := strings.TrimSpace(rawURL)
	if sourceURL == "" {
		c.sink.ShowError(ErrEmptyInput.Error())
		return ErrEmptyInput
	}

	ctx, seq := c.begin(ctx)

	c.control.Disable()
	defer c.control.Enable()
	c.resetView()

	c.logger.Info("preparing download session",
		zap.String("url", sourceURL),
		zap.Uint64("seq", seq))

	prep, err := c.backend.Prepare(ctx, sourceURL)
	if err != nil {
		c.renderFailure(seq, err)
		return err
	}

	return c.handoff(ctx, seq, prep, handler)
}

// begin supersedes any in-flight session and returns the context and
// sequence number for the new one.
func (c *Controller) begin(ctx context.Context) (context.Context, uint64) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.cancel != nil {
		c.cancel()
	}

	ctx, cancel := context.WithCancel(ctx)
	c.cancel = cancel

	return ctx, c.seq.Add(1)
}

// isCurrent reports whether seq still identifies the active session.
// Responses from superseded sessions are dropped, never rendered.
func (c *Controller) isCurrent(seq uint64) bool {
	return c.seq.Load() == seq
}

// resetView clears any stale rendering from a previous attempt before the
// first request goes out.
func (c *Controller) resetView() {
	c.sink.ShowProgress(0)
	c.sink.ShowStatus("Starting download...", StatusNeutral)
}

// renderFailure shows an error unless the session has been superseded
func (c *Controller) renderFailure(seq uint64, err error) {
	if !c.isCurrent(seq) {
		return
	}
	c.logger.Warn("session failed", zap.Uint64("seq", seq), zap.Error(err))
	c.sink.ShowError(err.Error())
}
