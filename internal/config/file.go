package config

import (
	"fmt"
	"os"

	"github.com/pelletier/go-toml/v2"
)

// File is the typed shape of the TOML configuration file. It carries the
// capture defaults that can change at runtime through the watcher.
type File struct {
	Capture struct {
		Width      int     `toml:"width"`
		Height     int     `toml:"height"`
		FrameRate  float64 `toml:"frame_rate"`
		ColorSpace string  `toml:"color_space"`
	} `toml:"capture"`

	Recording struct {
		Profile      string `toml:"profile"`
		BitrateMbps  int    `toml:"bitrate_mbps"`
		Audio        bool   `toml:"audio"`
		LockExposure bool   `toml:"lock_exposure"`
	} `toml:"recording"`

	LUT struct {
		Path string `toml:"path"`
	} `toml:"lut"`

	Library struct {
		Dir string `toml:"dir"`
	} `toml:"library"`
}

// Defaults returns the built-in configuration.
func Defaults() File {
	var f File
	f.Capture.Width = 1920
	f.Capture.Height = 1080
	f.Capture.FrameRate = 30
	f.Capture.ColorSpace = "rec709"
	f.Recording.Profile = "highBitrate"
	f.Recording.BitrateMbps = 100
	f.Recording.LockExposure = true
	f.Library.Dir = "clips"
	return f
}

// LoadFile reads the TOML file over the defaults. A missing file is not an
// error; a malformed one is.
func LoadFile(path string) (File, error) {
	f := Defaults()
	if path == "" {
		return f, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return f, nil
		}
		return f, fmt.Errorf("read config: %w", err)
	}
	if err := toml.Unmarshal(data, &f); err != nil {
		return f, fmt.Errorf("parse config: %w", err)
	}
	return f, nil
}
