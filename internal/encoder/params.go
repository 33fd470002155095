// Package encoder builds and drives the ffmpeg encode process that turns raw
// capture frames into movie files. Frames arrive over stdin as packed RGBA;
// audio arrives on a second pipe.
package encoder

import "fmt"

// Profile selects the encode target.
type Profile string

// Encode profiles.
const (
	// ProfileHighBitrate is the delivery profile: hardware H.264 at an
	// explicit bitrate with a fixed keyframe cadence.
	ProfileHighBitrate Profile = "highBitrate"
	// ProfileMezzanine is the edit-friendly profile: ProRes 422 with no
	// rate control, every frame a keyframe.
	ProfileMezzanine Profile = "mezzanine"
)

// Params describes one encode session with typed fields.
type Params struct {
	Profile   Profile
	Width     int
	Height    int
	FrameRate float64

	// Rate control, high-bitrate profile only.
	BitrateMbps      int
	KeyframeInterval int // frames between keyframes, 0 = one second

	// VideoEncoder overrides the codec for the high-bitrate profile.
	// Empty selects the platform hardware H.264 encoder.
	VideoEncoder string

	// Color tagging written into the container.
	ColorPrimaries string // bt709, bt2020
	ColorTransfer  string // bt709, arib-std-b67
	HDR            bool

	// Rotation is container metadata, not a pixel transform.
	Rotation int

	// Audio over pipe:3, s16le.
	AudioEnabled    bool
	AudioSampleRate int
	AudioChannels   int

	OutputPath string
}

// Validate rejects parameter sets ffmpeg would fail on mid-take.
func (p *Params) Validate() error {
	if p.Width <= 0 || p.Height <= 0 {
		return fmt.Errorf("invalid dimensions %dx%d", p.Width, p.Height)
	}
	if p.FrameRate <= 0 {
		return fmt.Errorf("invalid frame rate %g", p.FrameRate)
	}
	if p.OutputPath == "" {
		return fmt.Errorf("output path not set")
	}
	switch p.Profile {
	case ProfileHighBitrate:
		if p.BitrateMbps <= 0 {
			return fmt.Errorf("high-bitrate profile requires a bitrate")
		}
	case ProfileMezzanine:
	default:
		return fmt.Errorf("unknown profile %q", p.Profile)
	}
	switch p.Rotation {
	case 0, 90, 180, 270:
	default:
		return fmt.Errorf("rotation %d is not a quarter turn", p.Rotation)
	}
	return nil
}

// keyframeInterval returns the configured GOP or one second of frames.
func (p *Params) keyframeInterval() int {
	if p.KeyframeInterval > 0 {
		return p.KeyframeInterval
	}
	return int(p.FrameRate)
}
