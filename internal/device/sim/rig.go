package sim

import "github.com/smazurov/cinecam/internal/device"

// Rig returns the simulated three-lens rig used by `record --sim` and the
// integration tests: ultra wide 0.5x, wide 1x, telephoto 3x.
func Rig() []device.Device {
	rates := []device.FrameRateRange{{Min: 1, Max: 30}, {Min: 30, Max: 60}}
	allSpaces := []device.ColorSpace{device.ColorSpaceRec709, device.ColorSpaceLog, device.ColorSpaceHDR}
	sdrOnly := []device.ColorSpace{device.ColorSpaceRec709}

	return []device.Device{
		{
			ID:         "sim-ultrawide",
			Name:       "Simulated Ultra Wide",
			Position:   device.PositionUltraWide,
			NativeZoom: 0.5,
			MinZoom:    1.0,
			MaxZoom:    2.0,
			Formats: []device.Format{
				{Width: 1920, Height: 1080, FrameRates: rates, ColorSpaces: sdrOnly},
				{Width: 1280, Height: 720, FrameRates: rates, ColorSpaces: sdrOnly},
				{Width: 64, Height: 48, FrameRates: rates, ColorSpaces: sdrOnly},
			},
		},
		{
			ID:         "sim-wide",
			Name:       "Simulated Wide",
			Position:   device.PositionWide,
			NativeZoom: 1.0,
			MinZoom:    1.0,
			MaxZoom:    6.0,
			Formats: []device.Format{
				{Width: 3840, Height: 2160, FrameRates: []device.FrameRateRange{{Min: 1, Max: 30}}, ColorSpaces: allSpaces, HDR: true},
				{Width: 1920, Height: 1080, FrameRates: rates, ColorSpaces: allSpaces, HDR: true},
				{Width: 1280, Height: 720, FrameRates: rates, ColorSpaces: sdrOnly},
				{Width: 64, Height: 48, FrameRates: rates, ColorSpaces: allSpaces},
			},
		},
		{
			ID:         "sim-telephoto",
			Name:       "Simulated Telephoto",
			Position:   device.PositionTelephoto,
			NativeZoom: 3.0,
			MinZoom:    1.0,
			MaxZoom:    4.0,
			Formats: []device.Format{
				{Width: 1920, Height: 1080, FrameRates: rates, ColorSpaces: allSpaces},
				{Width: 64, Height: 48, FrameRates: rates, ColorSpaces: allSpaces},
			},
		},
	}
}
