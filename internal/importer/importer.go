// Package importer moves completed artifacts into the media library and
// updates the owning event.
package importer

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/rs/zerolog"

	"github.com/ohathar/sportarr/internal/database/store"
	"github.com/ohathar/sportarr/internal/metrics"
	"github.com/ohathar/sportarr/internal/quality"
)

// ErrNoVideoFile is returned when a completed download contains no playable
// media.
var ErrNoVideoFile = errors.New("no video file found")

var videoExtensions = map[string]bool{
	".mkv": true, ".mp4": true, ".avi": true, ".ts": true, ".m2ts": true,
	".mov": true, ".wmv": true, ".mpg": true, ".mpeg": true, ".webm": true,
}

// Config holds importer settings.
type Config struct {
	RootFolder   string
	UseHardlinks bool
}

// Importer performs library imports for downloads and DVR captures alike.
type Importer struct {
	store  *store.Store
	cfg    Config
	logger zerolog.Logger
}

// New creates an importer.
func New(st *store.Store, cfg Config, logger zerolog.Logger) *Importer {
	return &Importer{
		store:  st,
		cfg:    cfg,
		logger: logger.With().Str("component", "importer").Logger(),
	}
}

// ImportDownload imports a completed download: the remote path is translated
// through the user's mappings, the primary media file selected, and the
// artifact placed into the library. The whole sequence is safe to retry; the
// destination-exists guard is the idempotency point.
func (i *Importer) ImportDownload(ctx context.Context, item *store.QueueItem, savePath, clientHost string) error {
	remotePath := savePath
	if remotePath == "" {
		remotePath = item.Title
	} else {
		remotePath = filepath.Join(savePath, item.Title)
	}

	mappings, err := i.store.ListRemotePathMappings(ctx)
	if err != nil {
		return err
	}
	localPath := TranslatePath(mappings, clientHost, remotePath)

	primary, size, err := findPrimaryVideo(localPath)
	if err != nil {
		return err
	}

	return i.importFile(ctx, item.EventID, item.PartName, primary, size, item.Title, store.FileSourceIndexer)
}

// ImportRecording imports a finished DVR capture using its synthetic scene
// title, so the resulting file row carries scores comparable to indexer
// artifacts.
func (i *Importer) ImportRecording(ctx context.Context, eventID int64, partName, recordedPath, syntheticTitle string) error {
	info, err := os.Stat(recordedPath)
	if err != nil {
		return fmt.Errorf("recorded file missing: %w", err)
	}
	return i.importFile(ctx, eventID, partName, recordedPath, info.Size(), syntheticTitle, store.FileSourceIPTV)
}

func (i *Importer) importFile(ctx context.Context, eventID int64, partName, sourcePath string, size int64, title, sourceTag string) error {
	event, err := i.store.GetEvent(ctx, eventID)
	if err != nil {
		return err
	}

	dest := i.destinationPath(event, partName, filepath.Ext(sourcePath))

	if _, err := os.Stat(dest); err == nil {
		// Already imported; converge on the existing artifact without a
		// second copy.
		i.logger.Debug().Str("dest", dest).Msg("Destination exists, skipping copy")
	} else {
		if err := os.MkdirAll(filepath.Dir(dest), 0o750); err != nil {
			return fmt.Errorf("failed to create library directory: %w", err)
		}
		if err := i.placeFile(sourcePath, dest); err != nil {
			return err
		}
	}

	breakdown, err := i.scoreFor(ctx, event, title, size)
	if err != nil {
		return err
	}

	if _, err := i.store.InsertEventFile(ctx, store.EventFile{
		EventID:      eventID,
		PartName:     partName,
		Path:         dest,
		Size:         size,
		Quality:      breakdown.QualityLabel,
		QualityScore: breakdown.QualityScore,
		FormatScore:  breakdown.CustomFormatScore,
		Source:       sourceTag,
		Codec:        codecFromTitle(title),
	}); err != nil {
		return err
	}

	if partName != "" {
		if err := i.store.SetEventPartFile(ctx, eventID, partName, dest); err != nil {
			return err
		}
	}
	if err := i.store.SetEventFile(ctx, eventID, dest); err != nil {
		return err
	}

	metrics.Imports.WithLabelValues(sourceTag).Inc()
	i.logger.Info().
		Int64("eventId", eventID).
		Str("dest", dest).
		Str("source", sourceTag).
		Int("score", breakdown.Total).
		Msg("Imported media file")
	return nil
}

func (i *Importer) scoreFor(ctx context.Context, event *store.Event, title string, size int64) (quality.ScoreBreakdown, error) {
	var profile *quality.Profile
	if event.QualityProfileID != nil {
		row, err := i.store.GetQualityProfile(ctx, *event.QualityProfileID)
		if err != nil && !errors.Is(err, store.ErrNotFound) {
			return quality.ScoreBreakdown{}, err
		}
		if row != nil {
			profile, err = quality.ParseProfile(row.ID, row.Name, row.Cutoff, row.ItemsJSON, row.FormatItems, row.MinFormatScore)
			if err != nil {
				return quality.ScoreBreakdown{}, err
			}
		}
	}

	var formats []*quality.CustomFormat
	rows, err := i.store.ListCustomFormats(ctx)
	if err != nil {
		return quality.ScoreBreakdown{}, err
	}
	for _, row := range rows {
		cf, err := quality.ParseCustomFormat(row.ID, row.Name, row.Specifications)
		if err != nil {
			i.logger.Warn().Err(err).Str("format", row.Name).Msg("Skipping undecodable custom format")
			continue
		}
		formats = append(formats, cf)
	}

	return quality.ScoreRelease(title, size, profile, formats), nil
}

// destinationPath composes
// {root}/{league}/{title}/"{league} - {title} ({yyyy-MM-dd})[ - {part}].{ext}".
func (i *Importer) destinationPath(event *store.Event, partName, ext string) string {
	league := event.League
	if league == "" {
		league = event.Sport
	}
	if league == "" {
		league = "Events"
	}

	name := fmt.Sprintf("%s - %s", league, event.Title)
	if event.EventDate != nil {
		name = fmt.Sprintf("%s (%s)", name, event.EventDate.Format("2006-01-02"))
	}
	if partName != "" {
		name = fmt.Sprintf("%s - %s", name, partName)
	}

	return filepath.Join(
		i.cfg.RootFolder,
		Sanitize(league),
		Sanitize(event.Title),
		Sanitize(name)+ext,
	)
}

// placeFile hardlinks when configured and possible, else copies.
func (i *Importer) placeFile(source, dest string) error {
	if i.cfg.UseHardlinks {
		if err := os.Link(source, dest); err == nil {
			return nil
		}
		// Cross-volume or unsupported filesystem; fall back to a copy.
	}
	return copyFile(source, dest)
}

func copyFile(source, dest string) error {
	in, err := os.Open(source)
	if err != nil {
		return fmt.Errorf("failed to open source: %w", err)
	}
	defer in.Close()

	out, err := os.OpenFile(dest, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0o640)
	if err != nil {
		return fmt.Errorf("failed to create destination: %w", err)
	}

	if _, err := io.Copy(out, in); err != nil {
		out.Close()
		os.Remove(dest)
		return fmt.Errorf("copy failed: %w", err)
	}
	return out.Close()
}

// TranslatePath maps a remote path to a local one using the ordered mapping
// table: the longest matching remote prefix wins, and a host mismatch skips
// the mapping entirely (hosts compare case-insensitively).
func TranslatePath(mappings []*store.RemotePathMapping, host, remotePath string) string {
	bestLen := -1
	result := remotePath

	normalized := filepath.ToSlash(remotePath)
	for _, m := range mappings {
		if !strings.EqualFold(m.Host, host) {
			continue
		}
		prefix := strings.TrimRight(filepath.ToSlash(m.RemotePath), "/")
		if prefix == "" {
			continue
		}
		if normalized != prefix && !strings.HasPrefix(normalized, prefix+"/") {
			continue
		}
		if len(prefix) > bestLen {
			bestLen = len(prefix)
			rest := strings.TrimPrefix(normalized, prefix)
			rest = strings.TrimPrefix(rest, "/")
			result = filepath.Join(m.LocalPath, filepath.FromSlash(rest))
		}
	}

	return result
}

// findPrimaryVideo returns the media file for a completed download: the path
// itself when it is a video file, else the largest video file under it.
func findPrimaryVideo(path string) (string, int64, error) {
	info, err := os.Stat(path)
	if err != nil {
		return "", 0, fmt.Errorf("download path missing: %w", err)
	}

	if !info.IsDir() {
		if !videoExtensions[strings.ToLower(filepath.Ext(path))] {
			return "", 0, ErrNoVideoFile
		}
		return path, info.Size(), nil
	}

	var best string
	var bestSize int64
	err = filepath.WalkDir(path, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() || !videoExtensions[strings.ToLower(filepath.Ext(p))] {
			return nil
		}
		fi, err := d.Info()
		if err != nil {
			return err
		}
		if fi.Size() > bestSize {
			best = p
			bestSize = fi.Size()
		}
		return nil
	})
	if err != nil {
		return "", 0, err
	}
	if best == "" {
		return "", 0, ErrNoVideoFile
	}
	return best, bestSize, nil
}

var invalidPathChars = strings.NewReplacer(
	"<", "", ">", "", ":", "", "\"", "", "/", "", "\\", "", "|", "", "?", "", "*", "",
)

// Sanitize strips path-invalid characters and trailing dots/spaces from one
// path component.
func Sanitize(name string) string {
	name = invalidPathChars.Replace(name)
	name = strings.Join(strings.Fields(name), " ")
	return strings.TrimRight(name, ". ")
}

func codecFromTitle(title string) string {
	lower := strings.ToLower(title)
	switch {
	case strings.Contains(lower, "x265") || strings.Contains(lower, "hevc") || strings.Contains(lower, "h265"):
		return "x265"
	case strings.Contains(lower, "x264") || strings.Contains(lower, "h264") || strings.Contains(lower, "avc"):
		return "x264"
	default:
		return ""
	}
}
