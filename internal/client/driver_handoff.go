package client

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"go.uber.org/zap"
)

// midpointProgress signals "metadata known, transfer not yet started"
const midpointProgress = 50

// StreamHandler receives the one-shot stream dispatch of the native-handoff
// strategy. It stands in for the browser's own download manager: the
// orchestration layer does not track transfer progress past the dispatch.
type StreamHandler interface {
	OpenStream(ctx context.Context, streamURL, fileName string) error
}

// handoff finishes a prepared session by delegating the byte transfer. The
// session counts as complete once the stream request is dispatched; tracking
// the bytes is the handler's business.
func (c *Controller) handoff(ctx context.Context, seq uint64, prep *PrepareResult, handler StreamHandler) error {
	if !c.isCurrent(seq) {
		return nil
	}

	c.sink.ShowProgress(midpointProgress)
	c.sink.ShowStatus(
		fmt.Sprintf("Found %s (%s, %d segments)", prep.FileName, prep.Quality, prep.NumSegments),
		StatusNeutral)

	if err := handler.OpenStream(ctx, c.backend.StreamURL(prep.ID), prep.FileName); err != nil {
		terr := &TransportError{Op: "stream handoff", Err: err}
		c.renderFailure(seq, terr)
		return terr
	}

	if !c.isCurrent(seq) {
		return nil
	}

	c.logger.Info("stream handed off",
		zap.String("id", prep.ID),
		zap.String("file_name", prep.FileName))

	c.sink.ShowProgress(100)
	c.sink.ShowComplete(prep.FileName)
	return nil
}

// FileSaver is a StreamHandler that copies the response body straight to a
// file on disk, one chunk at a time, so arbitrarily large payloads never sit
// in memory.
type FileSaver struct {
	Dir   string
	httpc *http.Client
}

// NewFileSaver creates a FileSaver writing into dir
func NewFileSaver(dir string) *FileSaver {
	return &FileSaver{
		Dir: dir,
		// No overall timeout: large transfers take as long as they take.
		httpc: &http.Client{Timeout: 0},
	}
}

// OpenStream fetches streamURL and writes the body to Dir/fileName
func (f *FileSaver) OpenStream(ctx context.Context, streamURL, fileName string) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, streamURL, nil)
	if err != nil {
		return err
	}

	resp, err := f.httpc.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("stream request returned status %d", resp.StatusCode)
	}

	if err := os.MkdirAll(f.Dir, 0755); err != nil {
		return err
	}

	target := filepath.Join(f.Dir, fileName)
	tmp := target + fmt.Sprintf(".part-%d", time.Now().UnixNano())

	out, err := os.Create(tmp)
	if err != nil {
		return err
	}

	if _, err := io.Copy(out, resp.Body); err != nil {
		out.Close()
		os.Remove(tmp)
		return err
	}

	if err := out.Close(); err != nil {
		os.Remove(tmp)
		return err
	}

	return os.Rename(tmp, target)
}
