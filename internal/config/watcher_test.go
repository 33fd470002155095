package config

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"
)

func TestWatcherReloadsOnWrite(t *testing.T) {
	path := filepath.Join(t.TempDir(), "cinecam.toml")
	if err := os.WriteFile(path, []byte("[capture]\nwidth = 1920\n"), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}

	var reloads atomic.Int32
	var lastWidth atomic.Int32
	w := NewWatcher(path, LoadFile, slog.Default(), WithDebounce[File](20*time.Millisecond))
	w.OnReload(func(f File) {
		reloads.Add(1)
		lastWidth.Store(int32(f.Capture.Width))
	})
	if err := w.Start(); err != nil {
		t.Fatalf("Start: %v", err)
	}
	defer w.Stop()

	if err := os.WriteFile(path, []byte("[capture]\nwidth = 3840\n"), 0o644); err != nil {
		t.Fatalf("rewrite: %v", err)
	}

	deadline := time.Now().Add(3 * time.Second)
	for reloads.Load() == 0 {
		if time.Now().After(deadline) {
			t.Fatal("no reload observed")
		}
		time.Sleep(10 * time.Millisecond)
	}
	if lastWidth.Load() != 3840 {
		t.Errorf("width after reload = %d, want 3840", lastWidth.Load())
	}
}

func TestWatcherDebouncesBursts(t *testing.T) {
	path := filepath.Join(t.TempDir(), "cinecam.toml")
	if err := os.WriteFile(path, []byte(""), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}

	var reloads atomic.Int32
	w := NewWatcher(path, LoadFile, slog.Default(), WithDebounce[File](100*time.Millisecond))
	w.OnReload(func(File) { reloads.Add(1) })
	if err := w.Start(); err != nil {
		t.Fatalf("Start: %v", err)
	}
	defer w.Stop()

	for i := 0; i < 5; i++ {
		if err := os.WriteFile(path, []byte(fmt.Sprintf("# rev %d\n", i)), 0o644); err != nil {
			t.Fatalf("write burst: %v", err)
		}
		time.Sleep(10 * time.Millisecond)
	}

	time.Sleep(400 * time.Millisecond)
	if got := reloads.Load(); got != 1 {
		t.Errorf("reloads = %d, burst should collapse to 1", got)
	}
}

func TestWatcherErrorHandler(t *testing.T) {
	path := filepath.Join(t.TempDir(), "cinecam.toml")
	if err := os.WriteFile(path, []byte(""), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}

	var loadErrs atomic.Int32
	w := NewWatcher(path, LoadFile, slog.Default(),
		WithDebounce[File](20*time.Millisecond),
		WithErrorHandler[File](func(error) { loadErrs.Add(1) }))
	if err := w.Start(); err != nil {
		t.Fatalf("Start: %v", err)
	}
	defer w.Stop()

	if err := os.WriteFile(path, []byte("not [valid"), 0o644); err != nil {
		t.Fatalf("rewrite: %v", err)
	}

	deadline := time.Now().Add(3 * time.Second)
	for loadErrs.Load() == 0 {
		if time.Now().After(deadline) {
			t.Fatal("error handler never called")
		}
		time.Sleep(10 * time.Millisecond)
	}
}

func TestWatcherUnsubscribe(t *testing.T) {
	path := filepath.Join(t.TempDir(), "cinecam.toml")
	if err := os.WriteFile(path, []byte(""), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}

	var calls atomic.Int32
	w := NewWatcher(path, LoadFile, slog.Default(), WithDebounce[File](20*time.Millisecond))
	unsub := w.OnReload(func(File) { calls.Add(1) })
	unsub()
	if err := w.Start(); err != nil {
		t.Fatalf("Start: %v", err)
	}
	defer w.Stop()

	if err := os.WriteFile(path, []byte("# change\n"), 0o644); err != nil {
		t.Fatalf("rewrite: %v", err)
	}
	time.Sleep(300 * time.Millisecond)
	if calls.Load() != 0 {
		t.Error("unsubscribed handler was called")
	}
}
