package library

import (
	"image"
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"
)

func testStore(t *testing.T) *Store {
	t.Helper()
	s, err := NewStore(t.TempDir(), slog.Default())
	if err != nil {
		t.Fatalf("NewStore: %v", err)
	}
	return s
}

func writeClip(t *testing.T, path string) {
	t.Helper()
	if err := os.WriteFile(path, []byte("not really a movie"), 0o644); err != nil {
		t.Fatalf("write clip: %v", err)
	}
}

func TestNewClipPathIsTimestamped(t *testing.T) {
	s := testStore(t)
	start := time.Date(2026, 8, 24, 15, 4, 5, 0, time.Local)

	path := s.NewClipPath(start)
	if filepath.Base(path) != "clip_20260824_150405.mov" {
		t.Errorf("path = %s", filepath.Base(path))
	}

	// A second take in the same second gets a suffix.
	writeClip(t, path)
	path2 := s.NewClipPath(start)
	if filepath.Base(path2) != "clip_20260824_150405_1.mov" {
		t.Errorf("collision path = %s", filepath.Base(path2))
	}
}

func TestIngestWritesSidecarAndThumbnail(t *testing.T) {
	s := testStore(t)
	path := s.NewClipPath(time.Now())
	writeClip(t, path)

	poster := image.NewRGBA(image.Rect(0, 0, 640, 360))
	meta := Meta{SessionID: "abc", Width: 640, Height: 360, FrameRate: 30, Frames: 90, DurationSeconds: 3}

	clip, err := s.Ingest(path, poster, meta)
	if err != nil {
		t.Fatalf("Ingest: %v", err)
	}
	if clip.ThumbnailPath == "" {
		t.Error("no thumbnail path")
	}
	if _, err := os.Stat(clip.ThumbnailPath); err != nil {
		t.Errorf("thumbnail missing: %v", err)
	}
	if _, err := os.Stat(sidecarPath(path)); err != nil {
		t.Errorf("sidecar missing: %v", err)
	}

	clips, err := s.Clips()
	if err != nil {
		t.Fatalf("Clips: %v", err)
	}
	if len(clips) != 1 {
		t.Fatalf("len(clips) = %d, want 1", len(clips))
	}
	if clips[0].Meta.Frames != 90 {
		t.Errorf("round-tripped frames = %d, want 90", clips[0].Meta.Frames)
	}
}

func TestIngestMissingFileFails(t *testing.T) {
	s := testStore(t)
	if _, err := s.Ingest(filepath.Join(s.Dir(), "nope.mov"), nil, Meta{}); err == nil {
		t.Error("Ingest accepted a missing file")
	}
}

func TestClipsSortNewestFirst(t *testing.T) {
	s := testStore(t)
	for _, name := range []string{"clip_20260101_000000.mov", "clip_20260301_000000.mov", "clip_20260201_000000.mov"} {
		writeClip(t, filepath.Join(s.Dir(), name))
	}
	clips, err := s.Clips()
	if err != nil {
		t.Fatalf("Clips: %v", err)
	}
	if len(clips) != 3 {
		t.Fatalf("len(clips) = %d, want 3", len(clips))
	}
	if clips[0].Name != "clip_20260301_000000" {
		t.Errorf("first clip = %s, want newest", clips[0].Name)
	}
}

func TestRemove(t *testing.T) {
	s := testStore(t)
	path := filepath.Join(s.Dir(), "clip_20260101_000000.mov")
	writeClip(t, path)

	if err := s.Remove("clip_20260101_000000"); err != nil {
		t.Fatalf("Remove: %v", err)
	}
	if _, err := os.Stat(path); !os.IsNotExist(err) {
		t.Error("clip still exists")
	}

	if err := s.Remove("../escape"); err == nil {
		t.Error("path traversal accepted")
	}
}
