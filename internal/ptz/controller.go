package ptz

import (
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/pkb36/smart-cow/internal/errs"
	"github.com/pkb36/smart-cow/internal/serialport"
)

const ackTimeout = time.Second

// Controller drives the PTZ head over a single serial link. All
// request/response exchanges hold controlMu for the duration of the
// write plus its read, so frames from concurrent callers never
// interleave on the wire.
type Controller struct {
	link *serialport.Link
	log  zerolog.Logger

	controlMu sync.Mutex

	userPresets [MaxUserPresets]PTZPreset
	tourPresets [MaxTourPresets]PTZPreset

	tour *autoTour
}

// New creates a controller driving the given link, logging with a
// no-op logger until WithLogger is used to attach a real one.
func New(link *serialport.Link) *Controller {
	return &Controller{link: link, log: zerolog.Nop()}
}

// WithLogger attaches log to the controller, returning it for
// chaining off New. Used by the auto-tour worker, which runs detached
// from any caller that could otherwise observe its errors.
func (c *Controller) WithLogger(log zerolog.Logger) *Controller {
	c.log = log
	return c
}

// Move sends a move command in the given direction at the given speed.
// A speed of 0 is a stop request and blocks for the head's 7-byte
// acknowledgement.
func (c *Controller) Move(direction Direction, speed int) error {
	c.controlMu.Lock()
	defer c.controlMu.Unlock()
	return c.moveLocked(direction, speed)
}

func (c *Controller) moveLocked(direction Direction, speed int) error {
	frame := buildMoveFrame(direction, speed)
	if err := c.link.Write(frame); err != nil {
		return errs.Wrap(errs.PtzStopFailed, "writing move frame", err)
	}

	if speed != 0 {
		return nil
	}

	resp := make([]byte, 7)
	n, err := c.link.ReadWithTimeout(resp, ackTimeout)
	if err != nil {
		return errs.Wrap(errs.PtzStopFailed, "stop command timed out", err)
	}
	if n < 6 || resp[4] != 0x01 || resp[5] != 0x00 {
		return errs.New(errs.PtzStopFailed, "stop command rejected by head")
	}
	return nil
}

// Stop sends a stop request in an arbitrary direction; the head
// ignores the direction field when speed is 0.
func (c *Controller) Stop() error {
	return c.Move(Left, 0)
}

// MoveAndStop issues a move, then schedules a stop after delay on a
// detached worker.
func (c *Controller) MoveAndStop(direction Direction, speed int, delay time.Duration) error {
	if err := c.Move(direction, speed); err != nil {
		return err
	}
	go func() {
		time.Sleep(delay)
		_ = c.Stop()
	}()
	return nil
}

// CapturePreset reads the head's current position and stores it in
// slot index of the user table (autoMode false) or the tour table
// (autoMode true).
func (c *Controller) CapturePreset(index int, autoMode bool) error {
	table, err := c.presetTable(index, autoMode)
	if err != nil {
		return err
	}

	c.controlMu.Lock()
	defer c.controlMu.Unlock()

	if err := c.link.Write(positionQueryFrame()); err != nil {
		return errs.Wrap(errs.ProtocolError, "writing position query", err)
	}
	resp := make([]byte, 17)
	n, err := c.link.ReadWithTimeout(resp, ackTimeout)
	if err != nil {
		return errs.Wrap(errs.ProtocolError, "reading position response", err)
	}
	if n < 17 {
		return errs.New(errs.ProtocolError, "truncated position response")
	}

	var preset PTZPreset
	preset.Set = true
	copy(preset.Data[:], resp[5:15])
	table[index] = preset
	return nil
}

// RecallPreset sends the captured position in slot index back to the
// head, at manual speed (autoMode false) or the slower auto-tour speed
// (autoMode true).
func (c *Controller) RecallPreset(index int, autoMode bool) error {
	table, err := c.presetTable(index, autoMode)
	if err != nil {
		return err
	}

	c.controlMu.Lock()
	defer c.controlMu.Unlock()

	preset := table[index]
	if !preset.Set {
		return errs.New(errs.ProtocolError, "preset not captured")
	}

	frame := buildGotoFrame(preset.Data, autoMode)
	if err := c.link.Write(frame); err != nil {
		return errs.Wrap(errs.PtzStopFailed, "writing goto frame", err)
	}

	resp := make([]byte, 7)
	n, err := c.link.ReadWithTimeout(resp, ackTimeout)
	if err != nil {
		return errs.Wrap(errs.PtzStopFailed, "goto command timed out", err)
	}
	if n == 0 || resp[5] != 0x00 {
		return errs.New(errs.PtzStopFailed, "goto command rejected by head")
	}
	return nil
}

func (c *Controller) presetTable(index int, autoMode bool) ([]PTZPreset, error) {
	if autoMode {
		if index < 0 || index >= MaxTourPresets {
			return nil, errs.New(errs.ProtocolError, "tour preset index out of range")
		}
		return c.tourPresets[:], nil
	}
	if index < 0 || index >= MaxUserPresets {
		return nil, errs.New(errs.ProtocolError, "user preset index out of range")
	}
	return c.userPresets[:], nil
}

// menuFrames holds the fixed 12-byte menu-navigation frames used by the
// command pipe's up/down/left/right/enter/zoom_init commands. Bytes are
// literal protocol constants, not field-assembled, so they are not run
// through buildMoveFrame/checksum.
var menuFrames = map[string][]byte{
	"up":        {0x96, 0x0, 0x14, 0x1, 0x6, 0x81, 0x1, 0x4, 0x16, 0x1, 0xFF, 0x4D},
	"down":      {0x96, 0x0, 0x14, 0x1, 0x6, 0x81, 0x1, 0x4, 0x16, 0x2, 0xFF, 0x4E},
	"left":      {0x96, 0x0, 0x14, 0x1, 0x6, 0x81, 0x1, 0x4, 0x16, 0x4, 0xFF, 0x50},
	"right":     {0x96, 0x0, 0x14, 0x1, 0x6, 0x81, 0x1, 0x4, 0x16, 0x8, 0xFF, 0x54},
	"enter":     {0x96, 0x0, 0x14, 0x1, 0x6, 0x81, 0x1, 0x4, 0x16, 0x10, 0xFF, 0x5C},
	"zoom_init": {0x96, 0x0, 0x14, 0x1, 0x6, 0x81, 0x1, 0x4, 0x19, 0x1, 0xFF, 0x50},
}

// irInitFrame1 and irInitFrame2 are the two fixed 27-byte IR
// calibration frames, sent 1.5s apart.
var (
	irInitFrame1 = []byte{
		0x96, 0x00, 0x22, 0x05, 0x15, 0x01, 0x01, 0x01, 0x20, 0x30,
		0x40, 0x60, 0x7F, 0x7F, 0x7F, 0x7F, 0x7F, 0x7F, 0x7F, 0x7F,
		0x7F, 0x7F, 0x7F, 0x7F, 0x7F, 0x7F, 0xB7,
	}
	irInitFrame2 = []byte{
		0x96, 0x00, 0x22, 0x05, 0x15, 0x00, 0x7F, 0x7F, 0x7F, 0x7F,
		0x7F, 0x01, 0x01, 0x01, 0x01, 0x01, 0x01, 0x01, 0x01, 0x01,
		0x01, 0x01, 0x01, 0x01, 0x01, 0x01, 0x5C,
	}
)

const irInitDwell = 1500 * time.Millisecond

// SendIRInit writes the two IR-calibration frames, separated by a
// fixed dwell, under a single hold of the serial line.
func (c *Controller) SendIRInit() error {
	c.controlMu.Lock()
	defer c.controlMu.Unlock()

	if err := c.link.Write(irInitFrame1); err != nil {
		return errs.Wrap(errs.Io, "writing IR init frame 1", err)
	}
	time.Sleep(irInitDwell)
	if err := c.link.Write(irInitFrame2); err != nil {
		return errs.Wrap(errs.Io, "writing IR init frame 2", err)
	}
	return nil
}

// SendMenuCommand writes one of the fixed menu-navigation frames. It
// returns errs.ProtocolError for any command name not in menuFrames.
func (c *Controller) SendMenuCommand(command string) error {
	frame, ok := menuFrames[command]
	if !ok {
		return errs.New(errs.ProtocolError, "unknown menu command: "+command)
	}

	c.controlMu.Lock()
	defer c.controlMu.Unlock()
	if err := c.link.Write(frame); err != nil {
		return errs.Wrap(errs.Io, "writing menu command", err)
	}
	return nil
}
