package encoder

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/exec"
	"strings"
	"sync"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/smazurov/cinecam/internal/device"
)

// ErrSinkClosed is returned for writes after finalization began.
var ErrSinkClosed = errors.New("encoder: sink closed")

// Sink accepts media for one recording session. Writes must never block the
// capture path for long; callers drop frames when Ready reports false.
type Sink interface {
	// Ready reports whether the sink can accept media right now.
	Ready() bool
	// WriteVideo appends one frame. The sink does not retain the frame.
	WriteVideo(frame *device.Frame) error
	// WriteAudio appends interleaved s16le samples.
	WriteAudio(samples []byte) error
	// Finalize flushes, closes the container and releases the process.
	Finalize(ctx context.Context) error
}

// FFmpegSink drives a single ffmpeg process.
type FFmpegSink struct {
	params Params
	logger *slog.Logger

	cmd      *exec.Cmd
	stdin    io.WriteCloser
	audioW   *os.File
	procDone chan error

	mu        sync.Mutex
	finalized bool
	exited    atomic.Bool

	gracefulTimeout time.Duration
}

// NewFFmpegSink validates params and starts the ffmpeg process. The returned
// sink is ready for writes once this returns.
func NewFFmpegSink(params Params, logger *slog.Logger) (*FFmpegSink, error) {
	if err := params.Validate(); err != nil {
		return nil, fmt.Errorf("encoder params: %w", err)
	}

	s := &FFmpegSink{
		params:          params,
		logger:          logger,
		procDone:        make(chan error, 1),
		gracefulTimeout: 5 * time.Second,
	}
	if err := s.start(); err != nil {
		return nil, err
	}
	return s, nil
}

func (s *FFmpegSink) start() error {
	command := BuildCommand(&s.params)
	args, err := splitCommand(command)
	if err != nil {
		return err
	}

	s.cmd = exec.Command(args[0], args[1:]...)
	s.cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}

	stdin, err := s.cmd.StdinPipe()
	if err != nil {
		return fmt.Errorf("stdin pipe: %w", err)
	}
	s.stdin = stdin

	stderr, err := s.cmd.StderrPipe()
	if err != nil {
		return fmt.Errorf("stderr pipe: %w", err)
	}

	if s.params.AudioEnabled {
		r, w, err := os.Pipe()
		if err != nil {
			return fmt.Errorf("audio pipe: %w", err)
		}
		// Read end becomes the child's fd 3, matching -i pipe:3.
		s.cmd.ExtraFiles = []*os.File{r}
		s.audioW = w
	}

	if err := s.cmd.Start(); err != nil {
		return fmt.Errorf("start ffmpeg: %w", err)
	}
	s.logger.Info("Encoder started", "pid", s.cmd.Process.Pid, "output", s.params.OutputPath, "profile", s.params.Profile)

	// The child inherited the read end; close the parent's copy so EOF
	// propagates when the write end closes.
	if len(s.cmd.ExtraFiles) > 0 {
		s.cmd.ExtraFiles[0].Close()
	}

	go s.streamStderr(stderr)
	go func() {
		err := s.cmd.Wait()
		s.exited.Store(true)
		s.procDone <- err
	}()
	return nil
}

// Ready implements Sink.
func (s *FFmpegSink) Ready() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return !s.finalized && !s.exited.Load()
}

// WriteVideo implements Sink.
func (s *FFmpegSink) WriteVideo(frame *device.Frame) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.finalized {
		return ErrSinkClosed
	}
	if s.exited.Load() {
		return fmt.Errorf("encoder: process exited mid-recording")
	}
	if _, err := s.stdin.Write(frame.Data()); err != nil {
		return fmt.Errorf("write frame: %w", err)
	}
	return nil
}

// WriteAudio implements Sink.
func (s *FFmpegSink) WriteAudio(samples []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.finalized {
		return ErrSinkClosed
	}
	if s.audioW == nil {
		return fmt.Errorf("encoder: audio not enabled")
	}
	if _, err := s.audioW.Write(samples); err != nil {
		return fmt.Errorf("write audio: %w", err)
	}
	return nil
}

// Finalize implements Sink. Closing stdin lets ffmpeg drain and write the
// container index; the process is signalled and then killed only if it
// overstays the grace period.
func (s *FFmpegSink) Finalize(ctx context.Context) error {
	s.mu.Lock()
	if s.finalized {
		s.mu.Unlock()
		return nil
	}
	s.finalized = true
	s.mu.Unlock()

	s.stdin.Close()
	if s.audioW != nil {
		s.audioW.Close()
	}

	grace := time.NewTimer(s.gracefulTimeout)
	defer grace.Stop()

	select {
	case err := <-s.procDone:
		return exitError(err)
	case <-ctx.Done():
	case <-grace.C:
	}

	s.logger.Warn("Encoder did not drain in time, sending SIGINT")
	if s.cmd.Process != nil {
		_ = s.cmd.Process.Signal(syscall.SIGINT)
	}

	select {
	case err := <-s.procDone:
		return exitError(err)
	case <-time.After(s.gracefulTimeout):
		s.logger.Error("Encoder unresponsive, forcing kill")
		if s.cmd.Process != nil {
			if err := s.cmd.Process.Kill(); err != nil && !errors.Is(err, os.ErrProcessDone) {
				return fmt.Errorf("kill encoder: %w", err)
			}
		}
		<-s.procDone
		return fmt.Errorf("encoder killed before finalizing")
	}
}

func exitError(err error) error {
	if err == nil {
		return nil
	}
	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		return fmt.Errorf("encoder exited with code %d", exitErr.ExitCode())
	}
	return fmt.Errorf("encoder: %w", err)
}

// streamStderr forwards ffmpeg's output into the log at the level ffmpeg
// tagged it with.
func (s *FFmpegSink) streamStderr(r io.Reader) {
	scanner := bufio.NewScanner(r)
	for scanner.Scan() {
		line := scanner.Text()
		if line == "" {
			continue
		}
		level, msg := ParseLogLevel(line)
		switch level {
		case "fatal", "error":
			s.logger.Error(msg)
		case "warning":
			s.logger.Warn(msg)
		default:
			s.logger.Debug(msg)
		}
	}
	if err := scanner.Err(); err != nil {
		s.logger.Warn("Error reading encoder output", "error", err)
	}
}

// splitCommand splits a command string into argv, honoring quotes.
func splitCommand(command string) ([]string, error) {
	var args []string
	var current strings.Builder
	inQuote := false
	quoteChar := rune(0)

	for _, r := range strings.TrimSpace(command) {
		switch {
		case r == '"' || r == '\'':
			switch {
			case !inQuote:
				inQuote = true
				quoteChar = r
			case r == quoteChar:
				inQuote = false
			default:
				current.WriteRune(r)
			}
		case r == ' ' && !inQuote:
			if current.Len() > 0 {
				args = append(args, current.String())
				current.Reset()
			}
		default:
			current.WriteRune(r)
		}
	}
	if current.Len() > 0 {
		args = append(args, current.String())
	}
	if inQuote {
		return nil, fmt.Errorf("unclosed quote in command")
	}
	if len(args) == 0 {
		return nil, fmt.Errorf("empty command")
	}
	return args, nil
}
