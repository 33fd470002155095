package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/smazurov/cinecam/internal/config"
	"github.com/smazurov/cinecam/internal/device"
	"github.com/smazurov/cinecam/internal/device/sim"
	"github.com/smazurov/cinecam/internal/encoder"
	"github.com/smazurov/cinecam/internal/events"
	"github.com/smazurov/cinecam/internal/exposure"
	"github.com/smazurov/cinecam/internal/library"
	"github.com/smazurov/cinecam/internal/logging"
	"github.com/smazurov/cinecam/internal/lut"
	"github.com/smazurov/cinecam/internal/metrics"
	"github.com/smazurov/cinecam/internal/orientation"
	"github.com/smazurov/cinecam/internal/preview"
	"github.com/smazurov/cinecam/internal/recording"
	"github.com/smazurov/cinecam/internal/session"
)

// CreateRecordCmd creates the record command: a headless take driven
// entirely by the configuration file, without the HTTP surface.
func CreateRecordCmd() *cobra.Command {
	var configFile string
	var duration time.Duration
	var logJSON bool

	cmd := &cobra.Command{
		Use:   "record",
		Short: "Record a clip headless",
		Long: `Brings up a capture session from the configuration file, records until ` +
			`the duration elapses or SIGINT arrives, and finalizes the clip into the library.`,
		Run: func(_ *cobra.Command, _ []string) {
			loggingConfig := config.LoadLoggingConfig(configFile)
			if logJSON {
				loggingConfig.Format = "json"
			}
			logging.Initialize(loggingConfig)
			logger := logging.GetLogger("record")

			file, err := config.LoadFile(configFile)
			if err != nil {
				logger.Error("Failed to load configuration", "error", err)
				os.Exit(1)
			}

			bus := events.New()
			m := metrics.New()

			store, err := library.NewStore(file.Library.Dir, logging.GetLogger("library"))
			if err != nil {
				logger.Error("Failed to open clip library", "error", err)
				os.Exit(1)
			}

			pipeline := recording.NewPipeline(store, bus, m, logging.GetLogger("recording"))
			if file.LUT.Path != "" {
				if err := loadLUT(pipeline, file.LUT.Path); err != nil {
					logger.Warn("Failed to load LUT, recording ungraded", "path", file.LUT.Path, "error", err)
				}
			}

			exp := exposure.NewController(bus, logging.GetLogger("exposure"))
			exp.SetLockDuringRecording(file.Recording.LockExposure)
			orient := orientation.NewResolver()
			prev := preview.NewLatestStore()
			defer prev.Close()

			ctrl := session.NewController(
				device.NewCatalog(sim.Rig()), sim.Opener(),
				bus, exp, orient, pipeline, prev, m, logging.GetLogger("session"),
				session.Config{
					Width:      file.Capture.Width,
					Height:     file.Capture.Height,
					FrameRate:  file.Capture.FrameRate,
					ColorSpace: device.ColorSpace(file.Capture.ColorSpace),
				},
			)
			ctrl.Run()
			defer ctrl.Shutdown(context.Background())

			// Hot-reload keeps a long take gradable: a LUT swap in the config
			// applies to the next take, exposure locking to this one.
			watcher := config.NewWatcher(configFile, config.LoadFile, logger)
			watcher.OnReload(func(fresh config.File) {
				exp.SetLockDuringRecording(fresh.Recording.LockExposure)
				if fresh.LUT.Path == "" {
					pipeline.SetLUT(nil, "")
					return
				}
				if err := loadLUT(pipeline, fresh.LUT.Path); err != nil {
					logger.Warn("Failed to reload LUT", "path", fresh.LUT.Path, "error", err)
				}
			})
			if err := watcher.Start(); err != nil {
				logger.Warn("Config watcher unavailable, hot-reload disabled", "error", err)
			} else {
				defer func() { _ = watcher.Stop() }()
			}

			if err := ctrl.Start(); err != nil {
				logger.Error("Failed to start capture session", "error", err)
				os.Exit(1)
			}

			opts := session.RecordOptions{
				Profile:      encoder.Profile(file.Recording.Profile),
				BitrateMbps:  file.Recording.BitrateMbps,
				AudioEnabled: file.Recording.Audio,
			}
			if err := ctrl.StartRecording(opts); err != nil {
				logger.Error("Failed to start recording", "error", err)
				os.Exit(1)
			}
			logger.Info("Recording", "duration", duration)

			sigCh := make(chan os.Signal, 1)
			signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
			select {
			case <-time.After(duration):
			case sig := <-sigCh:
				logger.Info("Stopping on signal", "signal", sig)
			}

			ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
			defer cancel()
			result, err := ctrl.StopRecording(ctx)
			if err != nil {
				logger.Error("Failed to finalize recording", "error", err)
				os.Exit(1)
			}

			fmt.Printf("clip: %s\n", result.Clip.Path)
			fmt.Printf("frames: %d  dropped: %d  duration: %.1fs\n",
				result.Frames, result.Dropped, result.DurationSeconds)
		},
	}

	cmd.Flags().StringVar(&configFile, "config", "cinecam.toml", "Path to configuration file")
	cmd.Flags().DurationVar(&duration, "duration", 10*time.Second, "How long to record")
	cmd.Flags().BoolVar(&logJSON, "log-json", false, "Use JSON log format")

	return cmd
}

// loadLUT parses a .cube file into the pipeline.
func loadLUT(pipeline *recording.Pipeline, path string) error {
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()
	l, err := lut.Parse(f)
	if err != nil {
		return err
	}
	name := l.Title
	if name == "" {
		name = path
	}
	pipeline.SetLUT(l, name)
	return nil
}
