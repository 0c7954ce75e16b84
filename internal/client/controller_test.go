package client

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testPollInterval = 5 * time.Millisecond

type sinkEvent struct {
	kind    string // progress, status, complete, error
	message string
	percent int
}

// recordingSink captures every observation for assertions
type recordingSink struct {
	mu     sync.Mutex
	events []sinkEvent
}

func (s *recordingSink) ShowProgress(percent int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = append(s.events, sinkEvent{kind: "progress", percent: percent})
}

func (s *recordingSink) ShowStatus(message string, kind StatusKind) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = append(s.events, sinkEvent{kind: "status", message: message})
}

func (s *recordingSink) ShowComplete(fileName string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = append(s.events, sinkEvent{kind: "complete", message: fileName})
}

func (s *recordingSink) ShowError(message string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = append(s.events, sinkEvent{kind: "error", message: message})
}

func (s *recordingSink) ofKind(kind string) []sinkEvent {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []sinkEvent
	for _, e := range s.events {
		if e.kind == kind {
			out = append(out, e)
		}
	}
	return out
}

func (s *recordingSink) progressValues() []int {
	var out []int
	for _, e := range s.ofKind("progress") {
		out = append(out, e.percent)
	}
	return out
}

// recordingControl tracks the enabled state of the action control
type recordingControl struct {
	mu       sync.Mutex
	disabled bool
}

func (c *recordingControl) Disable() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.disabled = true
}

func (c *recordingControl) Enable() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.disabled = false
}

func (c *recordingControl) enabled() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return !c.disabled
}

func newTestController(baseURL string, sink RenderSink, control ActionControl) *Controller {
	return NewController(NewBackend(baseURL), sink, ControllerOptions{
		PollInterval: testPollInterval,
		Control:      control,
	})
}

func TestController_EmptyInput(t *testing.T) {
	var requests atomic.Int64
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requests.Add(1)
	}))
	defer srv.Close()

	for _, input := range []string{"", "   ", "\t\n "} {
		t.Run(fmt.Sprintf("%q", input), func(t *testing.T) {
			sink := &recordingSink{}
			c := newTestController(srv.URL, sink, nil)

			err := c.Fetch(context.Background(), input)
			assert.ErrorIs(t, err, ErrEmptyInput)

			err = c.Save(context.Background(), input, nil)
			assert.ErrorIs(t, err, ErrEmptyInput)

			errs := sink.ofKind("error")
			require.Len(t, errs, 2)
			assert.Equal(t, ErrEmptyInput.Error(), errs[0].message)
		})
	}

	assert.Equal(t, int64(0), requests.Load(), "empty input must not reach the network")
}

func TestController_NativeHandoffFlow(t *testing.T) {
	var progressHits atomic.Int64
	mux := http.NewServeMux()
	mux.HandleFunc("/prepare", func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]interface{}{
			"download_id":  "x",
			"file_name":    "v.mp4",
			"quality":      "720p",
			"num_segments": 4,
		})
	})
	mux.HandleFunc("/progress/", func(w http.ResponseWriter, r *http.Request) {
		progressHits.Add(1)
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	sink := &recordingSink{}
	control := &recordingControl{}
	c := newTestController(srv.URL, sink, control)

	handler := &fakeStreamHandler{}
	err := c.Save(context.Background(), "https://media.example.com/watch/v", handler)
	require.NoError(t, err)

	assert.Equal(t, srv.URL+"/stream/x", handler.url)
	assert.Equal(t, "v.mp4", handler.fileName)

	// Reset to 0, midpoint after prepare, 100 after handoff.
	assert.Equal(t, []int{0, 50, 100}, sink.progressValues())

	completions := sink.ofKind("complete")
	require.Len(t, completions, 1)
	assert.Equal(t, "v.mp4", completions[0].message)

	assert.Equal(t, int64(0), progressHits.Load(), "native handoff must never poll")
	assert.True(t, control.enabled())
}

type fakeStreamHandler struct {
	url      string
	fileName string
	err      error
}

func (f *fakeStreamHandler) OpenStream(ctx context.Context, streamURL, fileName string) error {
	f.url = streamURL
	f.fileName = fileName
	return f.err
}

func TestController_HandoffDispatchFailure(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/prepare", func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]interface{}{
			"download_id": "x", "file_name": "v.mp4", "quality": "720p", "num_segments": 4,
		})
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	sink := &recordingSink{}
	control := &recordingControl{}
	c := newTestController(srv.URL, sink, control)

	handler := &fakeStreamHandler{err: errors.New("connection refused")}
	err := c.Save(context.Background(), "https://media.example.com/watch/v", handler)

	var terr *TransportError
	require.ErrorAs(t, err, &terr)
	require.NotEmpty(t, sink.ofKind("error"))
	assert.Empty(t, sink.ofKind("complete"))
	assert.True(t, control.enabled(), "control must be re-enabled on error paths")
}

// pollScript serves canned progress payloads in order, repeating the last one
type pollScript struct {
	id       string
	payloads []map[string]interface{}
	hits     atomic.Int64
}

func (p *pollScript) install(mux *http.ServeMux) {
	mux.HandleFunc("/download", func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]string{"download_id": p.id})
	})
	mux.HandleFunc("/progress/"+p.id, func(w http.ResponseWriter, r *http.Request) {
		n := int(p.hits.Add(1)) - 1
		if n >= len(p.payloads) {
			n = len(p.payloads) - 1
		}
		json.NewEncoder(w).Encode(p.payloads[n])
	})
}

func TestController_PollingFlow(t *testing.T) {
	script := &pollScript{
		id: "dl-1",
		payloads: []map[string]interface{}{
			{"progress": 10, "status": "Downloading", "error": false},
			{"progress": 55, "status": "Downloading", "error": false},
			{"progress": 100, "status": "Download Complete!", "file_name": "clip.mp4", "error": false},
		},
	}
	mux := http.NewServeMux()
	script.install(mux)
	srv := httptest.NewServer(mux)
	defer srv.Close()

	sink := &recordingSink{}
	control := &recordingControl{}
	c := newTestController(srv.URL, sink, control)

	err := c.Fetch(context.Background(), "https://media.example.com/watch/v")
	require.NoError(t, err)

	assert.Equal(t, int64(3), script.hits.Load(), "exactly one poll per scripted response")

	// Give a dead timer a chance to misfire before asserting it stopped.
	time.Sleep(4 * testPollInterval)
	assert.Equal(t, int64(3), script.hits.Load(), "polling must stop at the terminal state")

	assert.Equal(t, []int{0, 10, 55, 100}, sink.progressValues())

	completions := sink.ofKind("complete")
	require.Len(t, completions, 1)
	assert.Equal(t, "clip.mp4", completions[0].message)
	assert.True(t, control.enabled())
}

func TestController_HundredPercentWithoutFinalStatusKeepsPolling(t *testing.T) {
	script := &pollScript{
		id: "dl-2",
		payloads: []map[string]interface{}{
			{"progress": 100, "status": "Finalizing", "error": false},
			{"progress": 100, "status": "Finalizing", "error": false},
			{"progress": 100, "status": "Download Complete!", "file_name": "v.mp4", "error": false},
		},
	}
	mux := http.NewServeMux()
	script.install(mux)
	srv := httptest.NewServer(mux)
	defer srv.Close()

	sink := &recordingSink{}
	c := newTestController(srv.URL, sink, nil)

	err := c.Fetch(context.Background(), "https://media.example.com/watch/v")
	require.NoError(t, err)

	assert.Equal(t, int64(3), script.hits.Load(),
		"progress 100 alone must not terminate polling")
}

func TestController_PollErrorTerminates(t *testing.T) {
	script := &pollScript{
		id: "dl-3",
		payloads: []map[string]interface{}{
			{"progress": 0, "status": "Invalid URL", "error": true},
		},
	}
	mux := http.NewServeMux()
	script.install(mux)
	srv := httptest.NewServer(mux)
	defer srv.Close()

	sink := &recordingSink{}
	control := &recordingControl{}
	c := newTestController(srv.URL, sink, control)

	err := c.Fetch(context.Background(), "https://media.example.com/watch/v")

	var perr *PollError
	require.ErrorAs(t, err, &perr)
	assert.Equal(t, "Invalid URL", perr.Message)

	time.Sleep(4 * testPollInterval)
	assert.Equal(t, int64(1), script.hits.Load(), "no further poll after a terminal error")

	errs := sink.ofKind("error")
	require.Len(t, errs, 1)
	assert.Equal(t, "Invalid URL", errs[0].message)
	assert.True(t, control.enabled())
}

func TestController_InitiationRejected(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/download", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		json.NewEncoder(w).Encode(map[string]string{"error": "No URL provided"})
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	sink := &recordingSink{}
	control := &recordingControl{}
	c := newTestController(srv.URL, sink, control)

	err := c.Fetch(context.Background(), "https://media.example.com/watch/v")

	var rerr *RejectedError
	require.ErrorAs(t, err, &rerr)
	assert.Equal(t, "No URL provided", rerr.Message)

	errs := sink.ofKind("error")
	require.Len(t, errs, 1)
	assert.Equal(t, "No URL provided", errs[0].message)
	assert.True(t, control.enabled())
}

func TestController_SecondSessionSupersedesFirst(t *testing.T) {
	var firstHits, secondHits atomic.Int64
	mux := http.NewServeMux()
	mux.HandleFunc("/download", func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			URL string `json:"url"`
		}
		json.NewDecoder(r.Body).Decode(&req)
		id := "first"
		if req.URL == "https://media.example.com/watch/b" {
			id = "second"
		}
		json.NewEncoder(w).Encode(map[string]string{"download_id": id})
	})
	mux.HandleFunc("/progress/first", func(w http.ResponseWriter, r *http.Request) {
		firstHits.Add(1)
		json.NewEncoder(w).Encode(map[string]interface{}{
			"progress": 5, "status": "Downloading chunks...", "error": false,
		})
	})
	mux.HandleFunc("/progress/second", func(w http.ResponseWriter, r *http.Request) {
		secondHits.Add(1)
		json.NewEncoder(w).Encode(map[string]interface{}{
			"progress": 100, "status": "Download Complete!", "file_name": "b.mp4", "error": false,
		})
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	sink := &recordingSink{}
	c := newTestController(srv.URL, sink, nil)

	firstDone := make(chan error, 1)
	go func() {
		firstDone <- c.Fetch(context.Background(), "https://media.example.com/watch/a")
	}()

	// Wait until the first session is demonstrably polling.
	require.Eventually(t, func() bool { return firstHits.Load() >= 2 },
		time.Second, testPollInterval)

	err := c.Fetch(context.Background(), "https://media.example.com/watch/b")
	require.NoError(t, err)

	select {
	case err := <-firstDone:
		assert.ErrorIs(t, err, context.Canceled)
	case <-time.After(time.Second):
		t.Fatal("superseded session did not stop")
	}

	// With the second session terminal, no timer should remain for either id.
	settledFirst := firstHits.Load()
	settledSecond := secondHits.Load()
	time.Sleep(6 * testPollInterval)
	assert.Equal(t, settledFirst, firstHits.Load(), "superseded session kept polling")
	assert.Equal(t, settledSecond, secondHits.Load(), "completed session kept polling")

	completions := sink.ofKind("complete")
	require.Len(t, completions, 1)
	assert.Equal(t, "b.mp4", completions[0].message)
}

func TestController_TransportErrorDuringPolling(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/download", func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]string{"download_id": "dl-4"})
	})
	mux.HandleFunc("/progress/dl-4", func(w http.ResponseWriter, r *http.Request) {
		// Drop the connection mid-request to simulate a transport fault.
		hj, ok := w.(http.Hijacker)
		require.True(t, ok)
		conn, _, err := hj.Hijack()
		require.NoError(t, err)
		conn.Close()
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	sink := &recordingSink{}
	control := &recordingControl{}
	c := newTestController(srv.URL, sink, control)

	err := c.Fetch(context.Background(), "https://media.example.com/watch/v")

	var terr *TransportError
	require.ErrorAs(t, err, &terr)
	require.NotEmpty(t, sink.ofKind("error"))
	assert.True(t, control.enabled(), "control must come back after a transport fault")
}

func TestFileSaver_SavesToDisk(t *testing.T) {
	payload := []byte("merged mp4 bytes")
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write(payload)
	}))
	defer srv.Close()

	dir := t.TempDir()
	saver := NewFileSaver(dir)

	err := saver.OpenStream(context.Background(), srv.URL+"/stream/x", "v.mp4")
	require.NoError(t, err)

	data, err := os.ReadFile(filepath.Join(dir, "v.mp4"))
	require.NoError(t, err)
	assert.Equal(t, payload, data)

	// No leftover partial files.
	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	assert.Len(t, entries, 1)
}

func TestFileSaver_BadStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}))
	defer srv.Close()

	saver := NewFileSaver(t.TempDir())
	err := saver.OpenStream(context.Background(), srv.URL+"/stream/x", "v.mp4")
	assert.Error(t, err)
}
