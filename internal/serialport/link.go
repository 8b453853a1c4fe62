// Package serialport wraps go.bug.st/serial for framed byte I/O to the
// PTZ head, the way banshee's radar package opens a serial.Port with an
// explicit serial.Mode and exposes read/write over it. Unlike the radar
// reader (which scans newline-framed text), the PTZ link exchanges fixed
// -length binary frames with a caller-supplied deadline per read.
package serialport

import (
	"time"

	"go.bug.st/serial"

	"github.com/pkb36/smart-cow/internal/errs"
)

// Link is a single serial connection. It holds no lock of its own;
// callers serialise Write and ReadWithTimeout so frames never interleave.
type Link struct {
	port serial.Port
}

// Config describes how to open the underlying port.
type Config struct {
	PortName string
	BaudRate int
	DataBits int
	Parity   string // "N", "E", "O"
	StopBits int
}

func parseParity(s string) serial.Parity {
	switch s {
	case "E":
		return serial.EvenParity
	case "O":
		return serial.OddParity
	default:
		return serial.NoParity
	}
}

func parseStopBits(n int) serial.StopBits {
	switch n {
	case 2:
		return serial.TwoStopBits
	case 15:
		return serial.OnePointFiveStopBits
	default:
		return serial.OneStopBit
	}
}

// Open opens the configured serial port.
func Open(cfg Config) (*Link, error) {
	mode := &serial.Mode{
		BaudRate: cfg.BaudRate,
		DataBits: cfg.DataBits,
		Parity:   parseParity(cfg.Parity),
		StopBits: parseStopBits(cfg.StopBits),
	}

	port, err := serial.Open(cfg.PortName, mode)
	if err != nil {
		return nil, errs.Wrap(errs.BindFailed, "opening serial port "+cfg.PortName, err)
	}
	return &Link{port: port}, nil
}

// Write writes a frame to the port. Writes are not individually locked:
// callers that need request/response atomicity should hold their own
// lock across Write + ReadWithTimeout (the PTZ controller does this).
func (l *Link) Write(frame []byte) error {
	_, err := l.port.Write(frame)
	if err != nil {
		return errs.Wrap(errs.Io, "writing serial frame", err)
	}
	return nil
}

// ReadWithTimeout reads up to len(buf) bytes, returning errs.Timeout if
// no data arrives within deadline.
func (l *Link) ReadWithTimeout(buf []byte, deadline time.Duration) (int, error) {
	if err := l.port.SetReadTimeout(deadline); err != nil {
		return 0, errs.Wrap(errs.Io, "setting serial read timeout", err)
	}
	n, err := l.port.Read(buf)
	if err != nil {
		return 0, errs.Wrap(errs.Io, "reading serial frame", err)
	}
	if n == 0 {
		return 0, errs.New(errs.Timeout, "serial read timed out")
	}
	return n, nil
}

// Close closes the underlying port.
func (l *Link) Close() error {
	return l.port.Close()
}
