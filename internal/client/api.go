package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"
)

// Default messages used when the backend gives no structured error to show.
const (
	defaultRejectedMessage = "Failed to start download."
	defaultPollMessage     = "Progress check failed."
)

// Backend talks to the download service over its HTTP contract. All untyped
// wire fields (the error field is sometimes a boolean flag, sometimes a
// message string) are resolved here, once, at the network boundary.
type Backend struct {
	baseURL string
	httpc   *http.Client
}

// NewBackend creates a backend client for the given base URL
func NewBackend(baseURL string) *Backend {
	return &Backend{
		baseURL: baseURL,
		httpc:   &http.Client{Timeout: 30 * time.Second},
	}
}

// NewBackendWithClient creates a backend client with a caller-supplied
// http.Client, mainly for tests
func NewBackendWithClient(baseURL string, httpc *http.Client) *Backend {
	return &Backend{baseURL: baseURL, httpc: httpc}
}

// PrepareResult is the metadata returned by a successful /prepare call
type PrepareResult struct {
	ID          string `json:"download_id"`
	FileName    string `json:"file_name"`
	Quality     string `json:"quality"`
	NumSegments int    `json:"num_segments"`
}

// ProgressReport is one resolved observation of an active session. Failed
// indicates a terminal backend failure; Status then carries the message.
type ProgressReport struct {
	Progress int
	Status   string
	FileName string
	Failed   bool
}

// StartDownload begins a server-side download session and returns its id.
// Every failure mode maps to RejectedError per the initiation contract.
func (b *Backend) StartDownload(ctx context.Context, sourceURL string) (string, error) {
	body, status, err := b.postJSON(ctx, "/download", map[string]string{"url": sourceURL})
	if err != nil {
		return "", &RejectedError{Message: defaultRejectedMessage, Err: err}
	}

	var payload struct {
		DownloadID string          `json:"download_id"`
		Error      json.RawMessage `json:"error"`
	}
	if err := json.Unmarshal(body, &payload); err != nil {
		return "", &RejectedError{Message: defaultRejectedMessage, Err: err}
	}

	if failed, msg := resolveErrorField(payload.Error); failed || status != http.StatusOK || payload.DownloadID == "" {
		if msg == "" {
			msg = defaultRejectedMessage
		}
		return "", &RejectedError{Message: msg}
	}

	return payload.DownloadID, nil
}

// Prepare asks the backend to resolve a source URL up front and returns the
// session id plus full metadata for the native-handoff strategy.
func (b *Backend) Prepare(ctx context.Context, sourceURL string) (*PrepareResult, error) {
	body, status, err := b.postJSON(ctx, "/prepare", map[string]string{"url": sourceURL})
	if err != nil {
		return nil, &RejectedError{Message: defaultRejectedMessage, Err: err}
	}

	var payload struct {
		PrepareResult
		Error json.RawMessage `json:"error"`
	}
	if err := json.Unmarshal(body, &payload); err != nil {
		return nil, &RejectedError{Message: defaultRejectedMessage, Err: err}
	}

	if failed, msg := resolveErrorField(payload.Error); failed || status != http.StatusOK || payload.ID == "" {
		if msg == "" {
			msg = defaultRejectedMessage
		}
		return nil, &RejectedError{Message: msg}
	}

	result := payload.PrepareResult
	return &result, nil
}

// Progress fetches one status observation for an active session
func (b *Backend) Progress(ctx context.Context, id string) (*ProgressReport, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, b.baseURL+"/progress/"+id, nil)
	if err != nil {
		return nil, &TransportError{Op: "progress request", Err: err}
	}

	resp, err := b.httpc.Do(req)
	if err != nil {
		return nil, &TransportError{Op: "progress request", Err: err}
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, &TransportError{Op: "progress read", Err: err}
	}

	var payload struct {
		Progress int             `json:"progress"`
		Status   string          `json:"status"`
		FileName string          `json:"file_name"`
		Error    json.RawMessage `json:"error"`
	}
	if resp.StatusCode != http.StatusOK {
		// Bad transport status is a terminal poll failure; surface the
		// structured message when the body carries one.
		msg := defaultPollMessage
		if json.Unmarshal(body, &payload) == nil {
			if _, m := resolveErrorField(payload.Error); m != "" {
				msg = m
			}
		}
		return nil, &PollError{Message: fmt.Sprintf("%s (status %d)", msg, resp.StatusCode)}
	}

	if err := json.Unmarshal(body, &payload); err != nil {
		return nil, &TransportError{Op: "progress decode", Err: err}
	}

	report := &ProgressReport{
		Progress: payload.Progress,
		Status:   payload.Status,
		FileName: payload.FileName,
	}
	if failed, msg := resolveErrorField(payload.Error); failed {
		report.Failed = true
		if report.Status == "" {
			report.Status = msg
		}
	}

	return report, nil
}

// StreamURL returns the resource-stream endpoint for a prepared session
func (b *Backend) StreamURL(id string) string {
	return b.baseURL + "/stream/" + id
}

// postJSON issues one JSON POST and returns the raw body and status code
func (b *Backend) postJSON(ctx context.Context, path string, payload interface{}) ([]byte, int, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, 0, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, b.baseURL+path, bytes.NewReader(data))
	if err != nil {
		return nil, 0, err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := b.httpc.Do(req)
	if err != nil {
		return nil, 0, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, 0, err
	}

	return body, resp.StatusCode, nil
}

// resolveErrorField interprets the backend's loosely typed error field. It is
// absent or null on success, a boolean flag on progress payloads, and a
// message string on initiation failures.
func resolveErrorField(raw json.RawMessage) (failed bool, message string) {
	if len(raw) == 0 || string(raw) == "null" {
		return false, ""
	}

	var flag bool
	if err := json.Unmarshal(raw, &flag); err == nil {
		return flag, ""
	}

	var msg string
	if err := json.Unmarshal(raw, &msg); err == nil {
		return msg != "", msg
	}

	return false, ""
}
