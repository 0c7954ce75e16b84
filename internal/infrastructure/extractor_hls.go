package infrastructure

import (
	"bytes"
	"context"
	"fmt"
	"html"
	"net/url"
	"path"
	"regexp"
	"strings"

	"github.com/grafov/m3u8"
	"go.uber.org/zap"

	"github.com/yourusername/streamsave-go/internal/domain"
)

var (
	titlePattern    = regexp.MustCompile(`(?is)<title[^>]*>(.*?)</title>`)
	playlistPattern = regexp.MustCompile(`https?://[^"'\s\\]+\.m3u8[^"'\s\\]*`)
)

// HLSExtractor resolves a source page into an HLS segment plan. It locates
// the master playlist embedded in the page, picks the highest-bandwidth
// variant and expands the media playlist into absolute segment URLs.
type HLSExtractor struct {
	client *MediaClient
	logger *zap.Logger
}

// NewHLSExtractor creates an HLS extractor
func NewHLSExtractor(client *MediaClient, logger *zap.Logger) *HLSExtractor {
	return &HLSExtractor{
		client: client,
		logger: logger,
	}
}

// FetchMetadata loads the source page and locates its playlist URL. A source
// URL that already points at a playlist is passed through as-is.
func (e *HLSExtractor) FetchMetadata(ctx context.Context, sourceURL string) (*domain.MediaInfo, error) {
	parsed, err := url.Parse(sourceURL)
	if err != nil {
		return nil, fmt.Errorf("invalid source URL: %w", err)
	}

	if strings.HasSuffix(parsed.Path, ".m3u8") {
		title := strings.TrimSuffix(path.Base(parsed.Path), ".m3u8")
		return &domain.MediaInfo{Title: title, PlaylistURL: sourceURL}, nil
	}

	page, err := e.client.GetBytes(ctx, sourceURL)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch source page: %w", err)
	}

	playlist := playlistPattern.Find(page)
	if playlist == nil {
		return nil, fmt.Errorf("no playlist found in page")
	}

	title := path.Base(parsed.Path)
	if m := titlePattern.FindSubmatch(page); m != nil {
		title = strings.TrimSpace(html.UnescapeString(string(m[1])))
	}

	e.logger.Debug("located playlist",
		zap.String("source", sourceURL),
		zap.String("playlist", string(playlist)),
		zap.String("title", title))

	return &domain.MediaInfo{Title: title, PlaylistURL: string(playlist)}, nil
}

// ResolveStream picks the highest-quality rendition from the playlist and
// returns its segment URLs in playback order
func (e *HLSExtractor) ResolveStream(ctx context.Context, info *domain.MediaInfo) (*domain.StreamInfo, error) {
	base, err := url.Parse(info.PlaylistURL)
	if err != nil {
		return nil, fmt.Errorf("invalid playlist URL: %w", err)
	}

	body, err := e.client.GetBytes(ctx, info.PlaylistURL)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch playlist: %w", err)
	}

	playlist, listType, err := m3u8.DecodeFrom(bytes.NewReader(body), true)
	if err != nil {
		return nil, fmt.Errorf("failed to parse playlist: %w", err)
	}

	quality := "default"
	var media *m3u8.MediaPlaylist

	switch listType {
	case m3u8.MASTER:
		master := playlist.(*m3u8.MasterPlaylist)
		variant := pickBestVariant(master)
		if variant == nil {
			return nil, fmt.Errorf("master playlist has no variants")
		}

		quality = variantQuality(variant)
		variantURL := resolveRef(base, variant.URI)

		e.logger.Debug("selected variant",
			zap.String("quality", quality),
			zap.Uint32("bandwidth", variant.Bandwidth),
			zap.String("uri", variantURL))

		variantBody, err := e.client.GetBytes(ctx, variantURL)
		if err != nil {
			return nil, fmt.Errorf("failed to fetch variant playlist: %w", err)
		}

		sub, subType, err := m3u8.DecodeFrom(bytes.NewReader(variantBody), true)
		if err != nil {
			return nil, fmt.Errorf("failed to parse variant playlist: %w", err)
		}
		if subType != m3u8.MEDIA {
			return nil, fmt.Errorf("variant did not resolve to a media playlist")
		}

		media = sub.(*m3u8.MediaPlaylist)
		if base, err = url.Parse(variantURL); err != nil {
			return nil, fmt.Errorf("invalid variant URL: %w", err)
		}

	case m3u8.MEDIA:
		media = playlist.(*m3u8.MediaPlaylist)

	default:
		return nil, fmt.Errorf("unknown playlist type")
	}

	var segments []string
	for _, seg := range media.Segments {
		if seg == nil || seg.URI == "" {
			continue
		}
		segments = append(segments, resolveRef(base, seg.URI))
	}

	if len(segments) == 0 {
		return nil, fmt.Errorf("media playlist has no segments")
	}

	return &domain.StreamInfo{Quality: quality, SegmentURLs: segments}, nil
}

// pickBestVariant returns the variant with the highest bandwidth
func pickBestVariant(master *m3u8.MasterPlaylist) *m3u8.Variant {
	var best *m3u8.Variant
	for _, v := range master.Variants {
		if v == nil {
			continue
		}
		if best == nil || v.Bandwidth > best.Bandwidth {
			best = v
		}
	}
	return best
}

// variantQuality derives a human-readable quality label for a variant
func variantQuality(v *m3u8.Variant) string {
	if v.Resolution != "" {
		return v.Resolution
	}
	return fmt.Sprintf("%dkbps", v.Bandwidth/1000)
}

// resolveRef resolves a possibly relative playlist reference against a base
func resolveRef(base *url.URL, ref string) string {
	refURL, err := url.Parse(ref)
	if err != nil {
		return ref
	}
	return base.ResolveReference(refURL).String()
}
