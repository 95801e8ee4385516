package capture

import (
	"context"
	"errors"
	"sync"
	"time"
)

var ErrAlreadyRecording = errors.New("recording already in progress")

// State of the capture controller.
type State string

const (
	StateIdle      State = "idle"
	StateRecording State = "recording"
)

// Artifact is a finished recording.
type Artifact struct {
	Data       []byte
	MimeType   string
	RecordedAt time.Time
}

// Device acquires the underlying audio input and produces one session per
// recording.
type Device interface {
	Start(ctx context.Context) (Session, error)
}

// Session is one in-progress recording. Stop finalizes the artifact and
// releases the device; implementations must make both happen exactly once
// no matter how many times Stop is called.
type Session interface {
	Stop() (Artifact, error)
}

// CompleteFunc receives the finished artifact.
type CompleteFunc func(Artifact)

// Controller drives a capture device through the idle/recording cycle and
// delivers finished artifacts to the completion callback.
type Controller struct {
	device     Device
	onComplete CompleteFunc

	mu      sync.Mutex
	current Session
}

func NewController(device Device, onComplete CompleteFunc) *Controller {
	return &Controller{
		device:     device,
		onComplete: onComplete,
	}
}

// Start acquires the device and begins recording. If the device refuses
// (for example a denied microphone permission), the controller stays idle
// and the error is returned to the caller.
func (c *Controller) Start(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.current != nil {
		return ErrAlreadyRecording
	}

	session, err := c.device.Start(ctx)
	if err != nil {
		return err
	}

	c.current = session
	return nil
}

// Stop finalizes the active recording and hands the artifact to the
// completion callback. Calling Stop while idle is a no-op, so double taps
// and teardown paths cannot produce a second artifact.
func (c *Controller) Stop() error {
	c.mu.Lock()
	session := c.current
	c.current = nil
	c.mu.Unlock()

	if session == nil {
		return nil
	}

	artifact, err := session.Stop()
	if err != nil {
		return err
	}

	if c.onComplete != nil {
		c.onComplete(artifact)
	}
	return nil
}

// Close releases the device if a recording is still active. The artifact of
// an interrupted recording is discarded.
func (c *Controller) Close() error {
	c.mu.Lock()
	session := c.current
	c.current = nil
	c.mu.Unlock()

	if session == nil {
		return nil
	}

	_, err := session.Stop()
	return err
}

// State reports whether a recording is in progress.
func (c *Controller) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.current != nil {
		return StateRecording
	}
	return StateIdle
}
