package dvr

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"time"

	m3u8 "github.com/mogiioin/hls-m3u8/m3u8"
)

// Request describes one capture window.
type Request struct {
	StreamURL  string
	StartAt    time.Time
	EndAt      time.Time
	OutputPath string
}

// Recorder captures a live stream to disk. Record blocks until the window
// ends (or ctx is cancelled) and returns with the output file on disk.
type Recorder interface {
	Record(ctx context.Context, req Request) error
}

// HLSRecorder is the built-in recorder: it follows the channel's live HLS
// media playlist and appends each new segment to the output file.
type HLSRecorder struct {
	httpClient *http.Client
}

// NewHLSRecorder creates the built-in HLS recorder.
func NewHLSRecorder() *HLSRecorder {
	return &HLSRecorder{
		httpClient: &http.Client{Timeout: 30 * time.Second},
	}
}

// Record waits for the window to open, then polls the playlist and captures
// segments until the window closes.
func (r *HLSRecorder) Record(ctx context.Context, req Request) error {
	if wait := time.Until(req.StartAt); wait > 0 {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(wait):
		}
	}

	out, err := os.OpenFile(req.OutputPath, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o640)
	if err != nil {
		return fmt.Errorf("failed to open recording output: %w", err)
	}
	defer out.Close()

	playlistURL, err := url.Parse(req.StreamURL)
	if err != nil {
		return fmt.Errorf("invalid stream URL: %w", err)
	}

	seen := make(map[string]bool)
	pollInterval := 4 * time.Second

	for {
		if time.Now().After(req.EndAt) {
			return nil
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		interval, err := r.captureNewSegments(ctx, playlistURL, seen, out)
		if err != nil {
			// Transient playlist or segment errors are retried on the next
			// poll; the broadcast continues without us otherwise.
			interval = pollInterval
		}
		if interval > 0 {
			pollInterval = interval
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(pollInterval):
		}
	}
}

// captureNewSegments fetches the playlist once and appends unseen segments.
// Returns half the target duration as the next poll interval.
func (r *HLSRecorder) captureNewSegments(ctx context.Context, playlistURL *url.URL, seen map[string]bool, out io.Writer) (time.Duration, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, playlistURL.String(), nil)
	if err != nil {
		return 0, err
	}
	resp, err := r.httpClient.Do(req)
	if err != nil {
		return 0, err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return 0, fmt.Errorf("playlist fetch returned HTTP %d", resp.StatusCode)
	}

	playlist, listType, err := m3u8.DecodeFrom(io.LimitReader(resp.Body, 4*1024*1024), false)
	if err != nil {
		return 0, fmt.Errorf("failed to decode playlist: %w", err)
	}

	media, ok := playlist.(*m3u8.MediaPlaylist)
	if !ok || listType != m3u8.MEDIA {
		return 0, fmt.Errorf("stream URL is not a media playlist")
	}

	for _, segment := range media.Segments {
		if segment == nil || seen[segment.URI] {
			continue
		}
		if err := r.appendSegment(ctx, playlistURL, segment.URI, out); err != nil {
			return 0, err
		}
		seen[segment.URI] = true
	}

	interval := time.Duration(media.TargetDuration) * time.Second / 2
	if interval <= 0 {
		interval = 4 * time.Second
	}
	return interval, nil
}

func (r *HLSRecorder) appendSegment(ctx context.Context, base *url.URL, segmentURI string, out io.Writer) error {
	ref, err := url.Parse(segmentURI)
	if err != nil {
		return err
	}
	segURL := base.ResolveReference(ref)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, segURL.String(), nil)
	if err != nil {
		return err
	}
	resp, err := r.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("segment fetch returned HTTP %d", resp.StatusCode)
	}

	_, err = io.Copy(out, resp.Body)
	return err
}
