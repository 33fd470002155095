package encoder

import (
	"strings"
	"testing"
)

func highBitrateParams() *Params {
	return &Params{
		Profile:          ProfileHighBitrate,
		Width:            3840,
		Height:           2160,
		FrameRate:        30,
		BitrateMbps:      100,
		KeyframeInterval: 30,
		ColorPrimaries:   "bt709",
		OutputPath:       "/clips/clip_20260101_120000.mov",
	}
}

func TestBuildCommandHighBitrate(t *testing.T) {
	cmd := BuildCommand(highBitrateParams())

	for _, want := range []string{
		"-f rawvideo -pix_fmt rgba",
		"-video_size 3840x2160",
		"-framerate 30",
		"-i pipe:0",
		"-c:v h264_v4l2m2m",
		"-b:v 100M",
		"-g 30",
		"-color_primaries bt709",
		"-f mov /clips/clip_20260101_120000.mov",
	} {
		if !strings.Contains(cmd, want) {
			t.Errorf("command missing %q:\n%s", want, cmd)
		}
	}
}

func TestBuildCommandMezzanineHasNoRateControl(t *testing.T) {
	p := highBitrateParams()
	p.Profile = ProfileMezzanine
	cmd := BuildCommand(p)

	if !strings.Contains(cmd, "-c:v prores_ks") {
		t.Errorf("mezzanine should use prores_ks:\n%s", cmd)
	}
	if strings.Contains(cmd, "-b:v") {
		t.Errorf("mezzanine must not carry a bitrate:\n%s", cmd)
	}
	if strings.Contains(cmd, " -g ") {
		t.Errorf("mezzanine must not set a GOP:\n%s", cmd)
	}
}

func TestBuildCommandRotationIsMetadataOnly(t *testing.T) {
	p := highBitrateParams()
	p.Rotation = 90
	cmd := BuildCommand(p)

	if !strings.Contains(cmd, "-metadata:s:v rotate=90") {
		t.Errorf("rotation metadata missing:\n%s", cmd)
	}
	if strings.Contains(cmd, "transpose") {
		t.Errorf("rotation must not become a pixel filter:\n%s", cmd)
	}
}

func TestBuildCommandAudio(t *testing.T) {
	p := highBitrateParams()
	p.AudioEnabled = true
	cmd := BuildCommand(p)

	for _, want := range []string{"-f s16le -ar 48000 -ac 2 -i pipe:3", "-map 0:v -map 1:a", "-c:a pcm_s16le"} {
		if !strings.Contains(cmd, want) {
			t.Errorf("command missing %q:\n%s", want, cmd)
		}
	}
	if strings.Contains(cmd, "aac") {
		t.Errorf("audio track must stay linear PCM, not compressed:\n%s", cmd)
	}
}

func TestBuildCommandHDRDefaultsToHEVC(t *testing.T) {
	p := highBitrateParams()
	p.HDR = true
	p.ColorPrimaries = "bt2020"
	p.ColorTransfer = "arib-std-b67"
	cmd := BuildCommand(p)

	for _, want := range []string{"-c:v hevc_v4l2m2m", "-colorspace bt2020nc", "-color_trc arib-std-b67"} {
		if !strings.Contains(cmd, want) {
			t.Errorf("command missing %q:\n%s", want, cmd)
		}
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Params)
		wantErr bool
	}{
		{"valid", func(p *Params) {}, false},
		{"zero width", func(p *Params) { p.Width = 0 }, true},
		{"zero rate", func(p *Params) { p.FrameRate = 0 }, true},
		{"no output", func(p *Params) { p.OutputPath = "" }, true},
		{"no bitrate", func(p *Params) { p.BitrateMbps = 0 }, true},
		{"bad rotation", func(p *Params) { p.Rotation = 45 }, true},
		{"unknown profile", func(p *Params) { p.Profile = "speedy" }, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := highBitrateParams()
			tt.mutate(p)
			if err := p.Validate(); (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestParseLogLevel(t *testing.T) {
	tests := []struct {
		line      string
		wantLevel string
		wantMsg   string
	}{
		{"[info] frame=  100", "info", "frame=  100"},
		{"[error] broken pipe", "error", "broken pipe"},
		{"[mov @ 0x55] [warning] overflow", "warning", "[mov @ 0x55] overflow"},
		{"plain text", "info", "plain text"},
	}
	for _, tt := range tests {
		level, msg := ParseLogLevel(tt.line)
		if level != tt.wantLevel || msg != tt.wantMsg {
			t.Errorf("ParseLogLevel(%q) = (%q, %q), want (%q, %q)", tt.line, level, msg, tt.wantLevel, tt.wantMsg)
		}
	}
}

func TestSplitCommand(t *testing.T) {
	args, err := splitCommand(`ffmpeg -i "test src" out.mov`)
	if err != nil {
		t.Fatalf("splitCommand: %v", err)
	}
	want := []string{"ffmpeg", "-i", "test src", "out.mov"}
	if len(args) != len(want) {
		t.Fatalf("got %d args %v, want %d", len(args), args, len(want))
	}
	for i := range want {
		if args[i] != want[i] {
			t.Errorf("arg %d = %q, want %q", i, args[i], want[i])
		}
	}

	if _, err := splitCommand(`ffmpeg -i "unclosed`); err == nil {
		t.Error("unclosed quote accepted")
	}
	if _, err := splitCommand("   "); err == nil {
		t.Error("empty command accepted")
	}
}
