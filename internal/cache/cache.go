package cache

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/lexiqai/voice-companion/internal/observability"
)

const clipExt = ".wav"

// Clip is a synthesized speech clip stored on disk.
type Clip struct {
	Key       string
	Path      string
	WrittenAt time.Time
}

// Cache is a content-addressed store of synthesized clips.
type Cache struct {
	dir    string
	logger zerolog.Logger
}

// New creates the cache directory if needed.
func New(dir string, logger zerolog.Logger) (*Cache, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create cache dir: %w", err)
	}
	return &Cache{dir: dir, logger: logger}, nil
}

// Dir returns the cache directory.
func (c *Cache) Dir() string {
	return c.dir
}

// Key derives the clip key for a (text, voice, speed) triple. Text is trimmed,
// the voice is lower-cased and speed is rendered with two decimals.
func Key(text, voice string, speed float64) string {
	h := sha256.New()
	h.Write([]byte(strings.TrimSpace(text)))
	h.Write([]byte{0})
	h.Write([]byte(strings.ToLower(strings.TrimSpace(voice))))
	h.Write([]byte{0})
	h.Write([]byte(fmt.Sprintf("%.2f", speed)))
	return hex.EncodeToString(h.Sum(nil))
}

func (c *Cache) path(key string) string {
	return filepath.Join(c.dir, key+clipExt)
}

// Get returns the clip stored under key.
func (c *Cache) Get(key string) (Clip, bool) {
	info, err := os.Stat(c.path(key))
	if err != nil || !info.Mode().IsRegular() || info.Size() == 0 {
		observability.RecordCacheLookup(false)
		return Clip{}, false
	}
	observability.RecordCacheLookup(true)
	return Clip{Key: key, Path: c.path(key), WrittenAt: info.ModTime()}, true
}

// Put stores data under key, replacing any existing clip.
func (c *Cache) Put(key string, data []byte) (Clip, error) {
	tmp, err := os.CreateTemp(c.dir, key+"-*.tmp")
	if err != nil {
		return Clip{}, fmt.Errorf("failed to create temp clip: %w", err)
	}
	tmpPath := tmp.Name()

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpPath)
		return Clip{}, fmt.Errorf("failed to write clip: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpPath)
		return Clip{}, fmt.Errorf("failed to write clip: %w", err)
	}

	dst := c.path(key)
	if err := os.Rename(tmpPath, dst); err != nil {
		os.Remove(tmpPath)
		return Clip{}, fmt.Errorf("failed to store clip: %w", err)
	}

	return Clip{Key: key, Path: dst, WrittenAt: time.Now()}, nil
}

// EvictOlderThan removes clips written more than maxAge ago and returns how
// many were removed. Failures are logged and skipped.
func (c *Cache) EvictOlderThan(maxAge time.Duration) int {
	entries, err := os.ReadDir(c.dir)
	if err != nil {
		c.logger.Warn().Err(err).Str("dir", c.dir).Msg("Failed to read cache dir")
		return 0
	}

	cutoff := time.Now().Add(-maxAge)
	removed := 0
	for _, entry := range entries {
		if entry.IsDir() || filepath.Ext(entry.Name()) != clipExt {
			continue
		}
		info, err := entry.Info()
		if err != nil {
			c.logger.Warn().Err(err).Str("file", entry.Name()).Msg("Failed to stat cached clip")
			continue
		}
		if !info.ModTime().Before(cutoff) {
			continue
		}
		if err := os.Remove(filepath.Join(c.dir, entry.Name())); err != nil {
			c.logger.Warn().Err(err).Str("file", entry.Name()).Msg("Failed to evict cached clip")
			continue
		}
		removed++
	}

	if removed > 0 {
		c.logger.Info().Int("removed", removed).Dur("max_age", maxAge).Msg("Evicted cached clips")
	}
	observability.RecordCacheEvictions(removed)
	return removed
}

// Check reports whether the cache directory is writable.
func (c *Cache) Check() error {
	f, err := os.CreateTemp(c.dir, "probe-*.tmp")
	if err != nil {
		return err
	}
	name := f.Name()
	f.Close()
	return os.Remove(name)
}
