package capture

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"sync"
	"time"
)

// FFmpegDevice records microphone audio with an ffmpeg subprocess, encoded
// as WebM/Opus to match browser-produced recordings.
type FFmpegDevice struct {
	command     string
	inputFormat string
	inputDevice string
}

func NewFFmpegDevice(command, inputFormat, inputDevice string) *FFmpegDevice {
	if command == "" {
		command = "ffmpeg"
	}
	if inputFormat == "" {
		inputFormat = "pulse"
	}
	if inputDevice == "" {
		inputDevice = "default"
	}
	return &FFmpegDevice{
		command:     command,
		inputFormat: inputFormat,
		inputDevice: inputDevice,
	}
}

func (d *FFmpegDevice) Start(ctx context.Context) (Session, error) {
	args := []string{
		"-nostdin",
		"-hide_banner",
		"-loglevel", "warning",
		"-f", d.inputFormat,
		"-i", d.inputDevice,
		"-ac", "1",
		"-c:a", "libopus",
		"-f", "webm",
		"-",
	}

	cmd := exec.CommandContext(ctx, d.command, args...)
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("failed to start ffmpeg: %w", err)
	}

	waitErr := make(chan error, 1)
	go func() {
		waitErr <- cmd.Wait()
		close(waitErr)
	}()

	// An immediate exit means the device was refused (missing input,
	// denied permission); surface it as a start failure.
	select {
	case err := <-waitErr:
		if err != nil {
			return nil, fmt.Errorf("ffmpeg exited before capture started: %w: %s", err, bytes.TrimSpace(stderr.Bytes()))
		}
		return nil, errors.New("ffmpeg exited before capture started")
	case <-time.After(250 * time.Millisecond):
	}

	return &ffmpegSession{
		stdout:    &stdout,
		stderr:    &stderr,
		process:   cmd.Process,
		waitErr:   waitErr,
		startedAt: time.Now(),
	}, nil
}

type ffmpegSession struct {
	stdout  *bytes.Buffer
	stderr  *bytes.Buffer
	process *os.Process
	waitErr <-chan error

	startedAt time.Time

	stopOnce sync.Once
	artifact Artifact
	stopErr  error
}

// Stop interrupts ffmpeg, waits for it to flush the container, and returns
// the finished artifact. Safe to call more than once; later calls return
// the first result.
func (s *ffmpegSession) Stop() (Artifact, error) {
	s.stopOnce.Do(func() {
		if s.process != nil {
			_ = s.process.Signal(os.Interrupt)
		}

		select {
		case err, ok := <-s.waitErr:
			if ok {
				s.stopErr = normalizeStopErr(err)
			}
		case <-time.After(1200 * time.Millisecond):
			if s.process != nil {
				_ = s.process.Kill()
			}
			err, ok := <-s.waitErr
			if ok {
				s.stopErr = normalizeStopErr(err)
			}
		}

		if s.stopErr != nil && s.stderr.Len() > 0 {
			s.stopErr = fmt.Errorf("%w: %s", s.stopErr, bytes.TrimSpace(s.stderr.Bytes()))
		}

		s.artifact = Artifact{
			Data:       s.stdout.Bytes(),
			MimeType:   "audio/webm",
			RecordedAt: s.startedAt,
		}
	})

	return s.artifact, s.stopErr
}

// ffmpeg exits nonzero when interrupted even after a clean flush; that is
// not a capture failure.
func normalizeStopErr(err error) error {
	if err == nil {
		return nil
	}
	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		return nil
	}
	return err
}
