package cache

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/rs/zerolog"
)

func newTestCache(t *testing.T) *Cache {
	t.Helper()
	c, err := New(t.TempDir(), zerolog.Nop())
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	return c
}

func TestKey_Deterministic(t *testing.T) {
	a := Key("Hello there", "default", 1.0)
	b := Key("Hello there", "default", 1.0)
	if a != b {
		t.Errorf("Expected identical keys, got %s and %s", a, b)
	}
	if len(a) != 64 {
		t.Errorf("Expected hex sha256 key, got %q", a)
	}
}

func TestKey_Normalization(t *testing.T) {
	base := Key("Hello", "male", 1.0)

	tests := []struct {
		name  string
		key   string
		equal bool
	}{
		{"surrounding whitespace", Key("  Hello \n", "male", 1.0), true},
		{"voice case", Key("Hello", "MALE", 1.0), true},
		{"speed rounding", Key("Hello", "male", 1.001), true},
		{"different text", Key("Hello!", "male", 1.0), false},
		{"different voice", Key("Hello", "female", 1.0), false},
		{"different speed", Key("Hello", "male", 1.25), false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if (tt.key == base) != tt.equal {
				t.Errorf("Expected equal=%v", tt.equal)
			}
		})
	}
}

func TestCache_GetMiss(t *testing.T) {
	c := newTestCache(t)

	if _, ok := c.Get(Key("nothing", "default", 1.0)); ok {
		t.Error("Expected miss on empty cache")
	}
}

func TestCache_PutGet(t *testing.T) {
	c := newTestCache(t)
	key := Key("Good morning", "default", 1.0)

	clip, err := c.Put(key, []byte("RIFF....WAVE"))
	if err != nil {
		t.Fatalf("Put failed: %v", err)
	}
	if clip.Path != filepath.Join(c.Dir(), key+".wav") {
		t.Errorf("Unexpected clip path %s", clip.Path)
	}

	got, ok := c.Get(key)
	if !ok {
		t.Fatal("Expected hit after Put")
	}
	data, _ := os.ReadFile(got.Path)
	if string(data) != "RIFF....WAVE" {
		t.Errorf("Unexpected clip data %q", data)
	}

	// Overwrite is idempotent
	if _, err := c.Put(key, []byte("RIFF....WAVE")); err != nil {
		t.Fatalf("Second Put failed: %v", err)
	}
	entries, _ := os.ReadDir(c.Dir())
	if len(entries) != 1 {
		t.Errorf("Expected exactly one file in cache, got %d", len(entries))
	}
}

func TestCache_EvictOlderThan(t *testing.T) {
	c := newTestCache(t)

	oldKey := Key("old", "default", 1.0)
	newKey := Key("new", "default", 1.0)
	oldClip, _ := c.Put(oldKey, []byte("old"))
	newClip, _ := c.Put(newKey, []byte("new"))

	tenDaysAgo := time.Now().Add(-10 * 24 * time.Hour)
	oneDayAgo := time.Now().Add(-24 * time.Hour)
	if err := os.Chtimes(oldClip.Path, tenDaysAgo, tenDaysAgo); err != nil {
		t.Fatalf("Chtimes failed: %v", err)
	}
	if err := os.Chtimes(newClip.Path, oneDayAgo, oneDayAgo); err != nil {
		t.Fatalf("Chtimes failed: %v", err)
	}

	// Unrelated files are left alone
	other := filepath.Join(c.Dir(), "notes.txt")
	os.WriteFile(other, []byte("x"), 0o644)
	os.Chtimes(other, tenDaysAgo, tenDaysAgo)

	removed := c.EvictOlderThan(7 * 24 * time.Hour)
	if removed != 1 {
		t.Errorf("Expected 1 clip removed, got %d", removed)
	}
	if _, ok := c.Get(oldKey); ok {
		t.Error("Expected 10-day-old clip to be evicted")
	}
	if _, ok := c.Get(newKey); !ok {
		t.Error("Expected 1-day-old clip to be retained")
	}
	if _, err := os.Stat(other); err != nil {
		t.Error("Expected non-clip file to be retained")
	}
}

func TestCache_EvictMissingDir(t *testing.T) {
	c := newTestCache(t)
	os.RemoveAll(c.Dir())

	if removed := c.EvictOlderThan(time.Hour); removed != 0 {
		t.Errorf("Expected 0 removed for missing dir, got %d", removed)
	}
}

func TestCache_Check(t *testing.T) {
	c := newTestCache(t)
	if err := c.Check(); err != nil {
		t.Errorf("Expected writable cache dir, got %v", err)
	}
}
