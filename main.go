package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"time"

	"github.com/danielgtaylor/huma/v2/humacli"

	"github.com/smazurov/cinecam/cmd"
	"github.com/smazurov/cinecam/internal/api"
	"github.com/smazurov/cinecam/internal/companion"
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

// Options for the CLI - flat structure with toml mapping.
type Options struct {
	Config string `help:"Path to configuration file" short:"c" default:"cinecam.toml"`

	// Server settings
	Host string `help:"Host to listen on" default:"0.0.0.0" toml:"server.host" env:"SERVER_HOST"`
	Port int    `help:"Port to listen on" short:"p" default:"8090" toml:"server.port" env:"SERVER_PORT"`

	// Capture settings
	CaptureWidth      int     `help:"Capture width" default:"1920" toml:"capture.width" env:"CAPTURE_WIDTH"`
	CaptureHeight     int     `help:"Capture height" default:"1080" toml:"capture.height" env:"CAPTURE_HEIGHT"`
	CaptureFrameRate  int     `help:"Capture frame rate" default:"30" toml:"capture.frame_rate" env:"CAPTURE_FRAME_RATE"`
	CaptureColorSpace string  `help:"Capture color space (rec709, log, hdr)" default:"rec709" toml:"capture.color_space" env:"CAPTURE_COLOR_SPACE"`

	// Recording settings
	RecordingProfile      string `help:"Encode profile (highBitrate, mezzanine)" default:"highBitrate" toml:"recording.profile" env:"RECORDING_PROFILE"`
	RecordingBitrateMbps  int    `help:"Target bitrate in Mbps" default:"100" toml:"recording.bitrate_mbps" env:"RECORDING_BITRATE_MBPS"`
	RecordingAudio        bool   `help:"Record audio" default:"false" toml:"recording.audio" env:"RECORDING_AUDIO"`
	RecordingLockExposure bool   `help:"Lock exposure while recording" default:"true" toml:"recording.lock_exposure" env:"RECORDING_LOCK_EXPOSURE"`

	// LUT settings
	LUTPath string `help:"Grading LUT (.cube) applied to recordings" default:"" toml:"lut.path" env:"LUT_PATH"`

	// Library settings
	LibraryDir string `help:"Clip library directory" default:"clips" toml:"library.dir" env:"LIBRARY_DIR"`

	// Auth settings
	AuthUsername string `help:"Basic auth username" default:"admin" toml:"auth.username" env:"AUTH_USERNAME"`
	AuthPassword string `help:"Basic auth password" default:"password" toml:"auth.password" env:"AUTH_PASSWORD"`

	// Logging settings
	LoggingLevel    string `help:"Global logging level (debug, info, warn, error)" default:"info" toml:"logging.level" env:"LOGGING_LEVEL"`
	LoggingFormat   string `help:"Logging format (text, json)" default:"text" toml:"logging.format" env:"LOGGING_FORMAT"`
	LoggingSession  string `help:"Session logging level" default:"info" toml:"logging.session" env:"LOGGING_SESSION"`
	LoggingExposure string `help:"Exposure logging level" default:"info" toml:"logging.exposure" env:"LOGGING_EXPOSURE"`
	LoggingEncoder  string `help:"Encoder logging level" default:"info" toml:"logging.encoder" env:"LOGGING_ENCODER"`
	LoggingAPI      string `help:"API logging level" default:"info" toml:"logging.api" env:"LOGGING_API"`
}

// recordActions adapts the session controller to the companion channel.
type recordActions struct {
	ctrl     *session.Controller
	defaults session.RecordOptions
}

func (a *recordActions) StartRecording() error {
	return a.ctrl.StartRecording(a.defaults)
}

func (a *recordActions) StopRecording() error {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	_, err := a.ctrl.StopRecording(ctx)
	return err
}

func main() {
	var cli humacli.CLI
	cli = humacli.New(func(hooks humacli.Hooks, opts *Options) {
		if loadErr := config.LoadConfig(opts, cli.Root()); loadErr != nil {
			slog.Warn("Failed to load config", "error", loadErr)
		}

		logging.Initialize(logging.Config{
			Level:  opts.LoggingLevel,
			Format: opts.LoggingFormat,
			Modules: map[string]string{
				"session":  opts.LoggingSession,
				"exposure": opts.LoggingExposure,
				"encoder":  opts.LoggingEncoder,
				"api":      opts.LoggingAPI,
			},
		})
		logger := logging.GetLogger("main")

		bus := events.New()
		m := metrics.New()

		catalog := device.NewCatalog(sim.Rig())
		for _, d := range catalog.Devices() {
			bus.Publish(events.DeviceInitializedEvent{
				DeviceID: d.ID,
				Name:     d.Name,
				Position: string(d.Position),
			})
		}

		store, err := library.NewStore(opts.LibraryDir, logging.GetLogger("library"))
		if err != nil {
			logger.Error("Failed to open clip library", "dir", opts.LibraryDir, "error", err)
			os.Exit(1)
		}

		pipeline := recording.NewPipeline(store, bus, m, logging.GetLogger("recording"))
		if opts.LUTPath != "" {
			if lutErr := loadLUT(pipeline, opts.LUTPath); lutErr != nil {
				logger.Warn("Failed to load LUT, recordings stay ungraded", "path", opts.LUTPath, "error", lutErr)
			}
		}

		exp := exposure.NewController(bus, logging.GetLogger("exposure"))
		exp.SetLockDuringRecording(opts.RecordingLockExposure)
		orient := orientation.NewResolver()
		prev := preview.NewLatestStore()

		ctrl := session.NewController(
			catalog, sim.Opener(),
			bus, exp, orient, pipeline, prev, m, logging.GetLogger("session"),
			session.Config{
				Width:      opts.CaptureWidth,
				Height:     opts.CaptureHeight,
				FrameRate:  float64(opts.CaptureFrameRate),
				ColorSpace: device.ColorSpace(opts.CaptureColorSpace),
			},
		)
		ctrl.Run()

		recordDefaults := session.RecordOptions{
			Profile:      encoder.Profile(opts.RecordingProfile),
			BitrateMbps:  opts.RecordingBitrateMbps,
			AudioEnabled: opts.RecordingAudio,
		}

		hub := companion.NewHub(bus, &recordActions{ctrl: ctrl, defaults: recordDefaults}, func() companion.State {
			status := ctrl.StatusSnapshot()
			state := companion.State{
				IsRecording: status.Recording,
				IsAppActive: status.State == "running",
				FrameRate:   status.FrameRate,
			}
			if status.Recording {
				state.RecordingStartTime = pipeline.StartedAt().Format(time.RFC3339)
			}
			return state
		}, logging.GetLogger("companion"))

		server := api.NewServer(&api.Options{
			AuthUsername:      opts.AuthUsername,
			AuthPassword:      opts.AuthPassword,
			Catalog:           catalog,
			Session:           ctrl,
			Exposure:          exp,
			Pipeline:          pipeline,
			Library:           store,
			Preview:           prev,
			Bus:               bus,
			Hub:               hub,
			Orientation:       orient,
			RecordDefaults:    recordDefaults,
			PrometheusHandler: m.Handler(),
		})

		// Live reload: a LUT or exposure-lock edit in the config applies
		// without restarting; capture format changes go through the session
		// as a normal reconfiguration.
		watcher := config.NewWatcher(opts.Config, config.LoadFile, logger)
		watcher.OnReload(func(fresh config.File) {
			exp.SetLockDuringRecording(fresh.Recording.LockExposure)
			if fresh.LUT.Path == "" {
				pipeline.SetLUT(nil, "")
			} else if lutErr := loadLUT(pipeline, fresh.LUT.Path); lutErr != nil {
				logger.Warn("Failed to reload LUT", "path", fresh.LUT.Path, "error", lutErr)
			}

			cfg := session.Config{
				Width:      fresh.Capture.Width,
				Height:     fresh.Capture.Height,
				FrameRate:  fresh.Capture.FrameRate,
				ColorSpace: device.ColorSpace(fresh.Capture.ColorSpace),
			}
			if cfg != ctrl.Config() {
				if cfgErr := ctrl.SetConfig(cfg); cfgErr != nil {
					logger.Warn("Failed to apply reloaded capture config", "error", cfgErr)
				}
			}
		})

		hooks.OnStart(func() {
			if startErr := ctrl.Start(); startErr != nil {
				logger.Error("Failed to start capture session", "error", startErr)
			}

			if watchErr := watcher.Start(); watchErr != nil {
				logger.Warn("Config watcher unavailable, hot-reload disabled", "error", watchErr)
			}

			addr := fmt.Sprintf("%s:%d", opts.Host, opts.Port)
			if startErr := server.Start(addr); startErr != nil && !errors.Is(startErr, http.ErrServerClosed) {
				logger.Error("Failed to start HTTP server", "error", startErr)
				os.Exit(1)
			}
		})

		hooks.OnStop(func() {
			logger.Info("Shutting down")
			if stopErr := server.Stop(); stopErr != nil {
				logger.Error("Error stopping HTTP server", "error", stopErr)
			}
			_ = watcher.Stop()
			hub.Close()

			ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
			defer cancel()
			if stopErr := ctrl.Shutdown(ctx); stopErr != nil {
				logger.Error("Error stopping capture session", "error", stopErr)
			}
			prev.Close()
		})
	})

	cli.Root().AddCommand(cmd.CreateDevicesCmd())
	cli.Root().AddCommand(cmd.CreateRecordCmd())

	cli.Run()
}

// loadLUT parses a .cube file into the recording pipeline.
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
