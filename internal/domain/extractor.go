package domain

import (
	"context"
	"io"
)

// MediaInfo is the result of metadata extraction from a source page
type MediaInfo struct {
	Title       string // human-readable title, not yet sanitized
	PlaylistURL string // absolute URL of the master (or media) playlist
}

// StreamInfo describes the selected rendition of a media source
type StreamInfo struct {
	Quality     string   // e.g. "1280x720" or "1542kbps"
	SegmentURLs []string // absolute segment URLs in playback order
}

// Extractor resolves a source page URL into a downloadable segment plan
type Extractor interface {
	// FetchMetadata loads the source page and locates its playlist
	FetchMetadata(ctx context.Context, sourceURL string) (*MediaInfo, error)

	// ResolveStream picks the highest-quality rendition and lists its segments
	ResolveStream(ctx context.Context, info *MediaInfo) (*StreamInfo, error)
}

// SegmentDownloader transfers a segment plan to a writer
type SegmentDownloader interface {
	// Download fetches all segments concurrently and writes them merged, in
	// order, to out. onProgress is called after each segment finishes
	// (successfully or not) with the running count.
	Download(ctx context.Context, urls []string, out io.Writer, onProgress func(done, total int)) error

	// Stream fetches segments one by one and writes each straight through to
	// out, keeping at most one segment in memory.
	Stream(ctx context.Context, urls []string, out io.Writer) error
}
