// Package library manages the on-disk clip library: movie files named by
// wall-clock timestamp, a JPEG thumbnail per clip and a TOML sidecar with
// the capture metadata.
package library

import (
	"errors"
	"fmt"
	"image"
	"image/jpeg"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/pelletier/go-toml/v2"
)

// clipTimeFormat names files by local wall-clock time, second resolution.
const clipTimeFormat = "20060102_150405"

// Meta is the capture metadata persisted next to each clip.
type Meta struct {
	SessionID       string    `toml:"session_id"`
	RecordedAt      time.Time `toml:"recorded_at"`
	Width           int       `toml:"width"`
	Height          int       `toml:"height"`
	FrameRate       float64   `toml:"frame_rate"`
	Profile         string    `toml:"profile"`
	ColorSpace      string    `toml:"color_space"`
	Rotation        int       `toml:"rotation"`
	LUT             string    `toml:"lut,omitempty"`
	Frames          uint64    `toml:"frames"`
	Dropped         uint64    `toml:"dropped"`
	RenderFailures  uint64    `toml:"render_failures"`
	DurationSeconds float64   `toml:"duration_seconds"`
}

// Clip is one library entry.
type Clip struct {
	Name          string `json:"name"`
	Path          string `json:"path"`
	ThumbnailPath string `json:"thumbnailPath,omitempty"`
	SizeBytes     int64  `json:"sizeBytes"`
	Meta          Meta   `json:"meta"`
}

// Store is the clip library rooted at one directory.
type Store struct {
	dir    string
	logger *slog.Logger
}

// NewStore opens (creating if needed) the library directory.
func NewStore(dir string, logger *slog.Logger) (*Store, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create library dir: %w", err)
	}
	return &Store{dir: dir, logger: logger}, nil
}

// Dir returns the library root.
func (s *Store) Dir() string { return s.dir }

// NewClipPath reserves a timestamp-named path for a recording that is about
// to start. A suffix is appended if two takes start within the same second.
func (s *Store) NewClipPath(start time.Time) string {
	base := "clip_" + start.Format(clipTimeFormat)
	path := filepath.Join(s.dir, base+".mov")
	for n := 1; ; n++ {
		if _, err := os.Stat(path); errors.Is(err, os.ErrNotExist) {
			return path
		}
		path = filepath.Join(s.dir, fmt.Sprintf("%s_%d.mov", base, n))
	}
}

// Ingest registers a finished clip: writes the sidecar and, when a poster
// frame is supplied, the thumbnail. Sidecar or thumbnail failures are
// reported but never delete the clip; the movie file is the artifact that
// matters.
func (s *Store) Ingest(path string, poster *image.RGBA, meta Meta) (Clip, error) {
	info, err := os.Stat(path)
	if err != nil {
		return Clip{}, fmt.Errorf("clip file missing: %w", err)
	}

	clip := Clip{
		Name:      strings.TrimSuffix(filepath.Base(path), filepath.Ext(path)),
		Path:      path,
		SizeBytes: info.Size(),
		Meta:      meta,
	}

	var errs []error
	if err := s.writeSidecar(path, meta); err != nil {
		s.logger.Warn("Failed to write clip sidecar", "clip", clip.Name, "error", err)
		errs = append(errs, err)
	}
	if poster != nil {
		thumbPath, err := s.writeThumbnail(path, poster)
		if err != nil {
			s.logger.Warn("Failed to write clip thumbnail", "clip", clip.Name, "error", err)
			errs = append(errs, err)
		} else {
			clip.ThumbnailPath = thumbPath
		}
	}
	return clip, errors.Join(errs...)
}

func (s *Store) writeSidecar(clipPath string, meta Meta) error {
	data, err := toml.Marshal(meta)
	if err != nil {
		return err
	}
	return os.WriteFile(sidecarPath(clipPath), data, 0o644)
}

// writeThumbnail downsamples the poster frame to thumbnail width and encodes
// it as JPEG.
func (s *Store) writeThumbnail(clipPath string, poster *image.RGBA) (string, error) {
	const thumbWidth = 320
	thumb := downsample(poster, thumbWidth)

	path := thumbnailPath(clipPath)
	f, err := os.Create(path)
	if err != nil {
		return "", err
	}
	defer f.Close()
	if err := jpeg.Encode(f, thumb, &jpeg.Options{Quality: 80}); err != nil {
		return "", err
	}
	return path, nil
}

// Clips lists the library newest first. Clips whose sidecar is missing or
// unreadable are listed with empty metadata.
func (s *Store) Clips() ([]Clip, error) {
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		return nil, fmt.Errorf("read library dir: %w", err)
	}

	var clips []Clip
	for _, entry := range entries {
		name := entry.Name()
		if entry.IsDir() || !strings.HasSuffix(name, ".mov") {
			continue
		}
		path := filepath.Join(s.dir, name)
		info, err := entry.Info()
		if err != nil {
			continue
		}
		clip := Clip{
			Name:      strings.TrimSuffix(name, ".mov"),
			Path:      path,
			SizeBytes: info.Size(),
		}
		if data, err := os.ReadFile(sidecarPath(path)); err == nil {
			if err := toml.Unmarshal(data, &clip.Meta); err != nil {
				s.logger.Warn("Unreadable clip sidecar", "clip", clip.Name, "error", err)
			}
		}
		if _, err := os.Stat(thumbnailPath(path)); err == nil {
			clip.ThumbnailPath = thumbnailPath(path)
		}
		clips = append(clips, clip)
	}

	sort.Slice(clips, func(i, j int) bool { return clips[i].Name > clips[j].Name })
	return clips, nil
}

// Remove deletes a clip with its sidecar and thumbnail.
func (s *Store) Remove(name string) error {
	if strings.ContainsAny(name, "/\\") || strings.Contains(name, "..") {
		return fmt.Errorf("invalid clip name %q", name)
	}
	path := filepath.Join(s.dir, name+".mov")
	if err := os.Remove(path); err != nil {
		return fmt.Errorf("remove clip: %w", err)
	}
	os.Remove(sidecarPath(path))
	os.Remove(thumbnailPath(path))
	return nil
}

func sidecarPath(clipPath string) string {
	return strings.TrimSuffix(clipPath, filepath.Ext(clipPath)) + ".toml"
}

func thumbnailPath(clipPath string) string {
	return strings.TrimSuffix(clipPath, filepath.Ext(clipPath)) + ".jpg"
}

// downsample nearest-neighbor scales img to the target width, preserving
// aspect ratio.
func downsample(img *image.RGBA, width int) *image.RGBA {
	srcW := img.Rect.Dx()
	srcH := img.Rect.Dy()
	if srcW <= width {
		return img
	}
	height := srcH * width / srcW
	if height < 1 {
		height = 1
	}
	out := image.NewRGBA(image.Rect(0, 0, width, height))
	for y := 0; y < height; y++ {
		sy := y * srcH / height
		for x := 0; x < width; x++ {
			sx := x * srcW / width
			si := img.PixOffset(img.Rect.Min.X+sx, img.Rect.Min.Y+sy)
			di := out.PixOffset(x, y)
			copy(out.Pix[di:di+4], img.Pix[si:si+4])
		}
	}
	return out
}
