package catalog

import (
	"context"
	"crypto/sha256"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/dhowden/tag"
)

var supportedFormats = []string{".mp3", ".wav", ".flac", ".aac", ".ogg", ".m4a"}

func isSupportedFormat(ext string) bool {
	lower := strings.ToLower(ext)
	for _, f := range supportedFormats {
		if lower == f {
			return true
		}
	}
	return false
}

type entry struct {
	title       string
	durationSec float64
}

// FileCatalog scans a directory once at construction time and answers
// lookups from an in-memory index keyed by a content checksum.
type FileCatalog struct {
	mu      sync.RWMutex
	byID    map[string]entry
	rootDir string
}

// NewFileCatalog scans dir for supported audio files and builds the index.
// A missing or empty dir yields an empty, still-usable catalog.
func NewFileCatalog(dir string) (*FileCatalog, error) {
	c := &FileCatalog{byID: make(map[string]entry), rootDir: dir}
	if dir == "" {
		return c, nil
	}

	err := filepath.WalkDir(dir, func(path string, d os.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return nil
		}
		if !isSupportedFormat(filepath.Ext(path)) {
			return nil
		}

		id, checksumErr := checksumFile(path)
		if checksumErr != nil {
			slog.Warn("catalog: failed to checksum file", "path", path, "error", checksumErr)
			return nil
		}

		title, duration := readMetadata(path)
		c.byID[id] = entry{title: title, durationSec: duration}
		return nil
	})
	if err != nil && !os.IsNotExist(err) {
		return nil, fmt.Errorf("failed to scan catalog dir %q: %w", dir, err)
	}

	return c, nil
}

// Lookup resolves trackID to its indexed title/duration.
func (c *FileCatalog) Lookup(ctx context.Context, trackID string) (string, float64, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	e, ok := c.byID[trackID]
	if !ok {
		return "", 0, false
	}
	return e.title, e.durationSec, true
}

// Ping reports whether the catalog directory is still reachable.
func (c *FileCatalog) Ping(ctx context.Context) error {
	if c.rootDir == "" {
		return nil
	}
	if _, err := os.Stat(c.rootDir); err != nil {
		return fmt.Errorf("catalog dir unreachable: %w", err)
	}
	return nil
}

func checksumFile(path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", err
	}
	defer f.Close()

	h := sha256.New()
	if _, err := io.Copy(h, f); err != nil {
		return "", err
	}
	return fmt.Sprintf("%x", h.Sum(nil)), nil
}

func readMetadata(path string) (string, float64) {
	filename := filepath.Base(path)
	title := strings.TrimSuffix(filename, filepath.Ext(filename))

	f, err := os.Open(path)
	if err != nil {
		return title, 0
	}
	defer f.Close()

	m, err := tag.ReadFrom(f)
	if err != nil {
		slog.Debug("catalog: could not read tags", "path", path, "error", err)
		return title, 0
	}
	if m.Title() != "" {
		title = m.Title()
	}
	// dhowden/tag exposes no duration; callers fall back to the client-
	// supplied durationSec for playback epoch math.
	return title, 0
}
