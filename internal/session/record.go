package session

import (
	"context"

	"github.com/smazurov/cinecam/internal/device"
	"github.com/smazurov/cinecam/internal/encoder"
	"github.com/smazurov/cinecam/internal/recording"
)

// StartRecording begins a take with the current capture configuration.
// Orientation is frozen and, when configured, exposure locks for the
// duration. Starting while already recording is a no-op.
func (c *Controller) StartRecording(opts RecordOptions) error {
	return c.do("startRecording", func() error {
		if !c.running {
			return newError(KindNotRunning, "session is not running", nil)
		}
		if c.pipeline.Active() {
			return nil
		}

		rotation := c.orient.Freeze()
		c.exposure.HandleRecordingStarted()

		params := encoder.Params{
			Profile:        opts.Profile,
			Width:          c.streamCfg.Format.Width,
			Height:         c.streamCfg.Format.Height,
			FrameRate:      c.streamCfg.FrameRate,
			BitrateMbps:    opts.BitrateMbps,
			Rotation:       int(rotation),
			AudioEnabled:   opts.AudioEnabled,
			HDR:            c.streamCfg.ColorSpace == device.ColorSpaceHDR,
			ColorPrimaries: "bt709",
		}
		if params.HDR {
			params.ColorPrimaries = "bt2020"
			params.ColorTransfer = "arib-std-b67"
		}

		if err := c.pipeline.Start(params); err != nil {
			c.orient.Unfreeze()
			c.exposure.HandleRecordingStopped()
			return newError(KindRecordingFailed, "start recording", err)
		}
		return nil
	})
}

// StopRecording finalizes the in-flight take. Stopping while idle is a
// no-op.
func (c *Controller) StopRecording(ctx context.Context) (recording.Result, error) {
	var result recording.Result
	err := c.do("stopRecording", func() error {
		if !c.pipeline.Active() {
			return nil
		}
		var stopErr error
		result, stopErr = c.pipeline.Stop(ctx)
		c.orient.Unfreeze()
		c.exposure.HandleRecordingStopped()
		if stopErr != nil {
			return newError(KindRecordingFailed, "finalize recording", stopErr)
		}
		return nil
	})
	return result, err
}
