package encoder

import (
	"fmt"
	"strings"
)

// Base returns the ffmpeg invocation prefix shared by every encode.
func Base() string {
	return "ffmpeg -hide_banner -loglevel level+info -y"
}

// BuildCommand builds the full ffmpeg command for one encode session.
// Video is read as packed RGBA from stdin; when audio is enabled a second
// s16le input is read from pipe:3.
func BuildCommand(p *Params) string {
	var cmd strings.Builder

	cmd.WriteString(Base())

	// Video input: raw frames over stdin.
	cmd.WriteString(" -f rawvideo -pix_fmt rgba")
	cmd.WriteString(fmt.Sprintf(" -video_size %dx%d", p.Width, p.Height))
	cmd.WriteString(fmt.Sprintf(" -framerate %g", p.FrameRate))
	cmd.WriteString(" -i pipe:0")

	if p.AudioEnabled {
		rate := p.AudioSampleRate
		if rate == 0 {
			rate = 48000
		}
		channels := p.AudioChannels
		if channels == 0 {
			channels = 2
		}
		cmd.WriteString(" -thread_queue_size 1024")
		cmd.WriteString(fmt.Sprintf(" -f s16le -ar %d -ac %d -i pipe:3", rate, channels))
		cmd.WriteString(" -map 0:v -map 1:a")
	}

	// Encoder
	switch p.Profile {
	case ProfileMezzanine:
		cmd.WriteString(" -c:v prores_ks -profile:v 3")
	default:
		enc := p.VideoEncoder
		if enc == "" {
			enc = "h264_v4l2m2m"
			if p.HDR {
				enc = "hevc_v4l2m2m"
			}
		}
		cmd.WriteString(" -c:v " + enc)
		cmd.WriteString(fmt.Sprintf(" -b:v %dM", p.BitrateMbps))
		cmd.WriteString(fmt.Sprintf(" -g %d", p.keyframeInterval()))
		cmd.WriteString(" -bf 0")
	}

	// Color tagging
	if p.ColorPrimaries != "" {
		cmd.WriteString(" -color_primaries " + p.ColorPrimaries)
		cmd.WriteString(" -colorspace " + colorMatrixFor(p.ColorPrimaries))
	}
	if p.ColorTransfer != "" {
		cmd.WriteString(" -color_trc " + p.ColorTransfer)
	}

	if p.Rotation != 0 {
		// Display matrix only: pixels are never rotated at encode time.
		cmd.WriteString(fmt.Sprintf(" -metadata:s:v rotate=%d", p.Rotation))
	}

	if p.AudioEnabled {
		// The audio track stays linear PCM, matching the s16le input.
		cmd.WriteString(" -c:a pcm_s16le")
	}

	cmd.WriteString(" -movflags +faststart -f mov " + p.OutputPath)

	return cmd.String()
}

func colorMatrixFor(primaries string) string {
	if primaries == "bt2020" {
		return "bt2020nc"
	}
	return "bt709"
}
