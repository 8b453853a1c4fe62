package ptz

import (
	"strconv"
	"strings"
	"time"

	"github.com/pkb36/smart-cow/internal/errs"
)

// autoTour tracks one running auto-tour worker so StopAutoTour can
// cancel it and wait for exit.
type autoTour struct {
	cancel chan struct{}
	done   chan struct{}
}

// ParseTourSequence parses a comma-separated integer list: the final
// element is the inter-step dwell in seconds, every prior element is a
// preset index. At least two values (one preset, one dwell) are
// required.
func ParseTourSequence(sequence string) ([]int, time.Duration, error) {
	parts := strings.Split(sequence, ",")
	values := make([]int, 0, len(parts))
	for _, p := range parts {
		v, err := strconv.Atoi(strings.TrimSpace(p))
		if err != nil {
			return nil, 0, errs.Wrap(errs.ProtocolError, "invalid auto-tour sequence value: "+p, err)
		}
		values = append(values, v)
	}
	if len(values) < 2 {
		return nil, 0, errs.New(errs.ProtocolError, "auto-tour sequence needs at least 2 values")
	}

	dwell := time.Duration(values[len(values)-1]) * time.Second
	presets := values[:len(values)-1]
	return presets, dwell, nil
}

// StartAutoTour parses sequence and starts a worker that cycles the
// named tour presets, recalling each one and dwelling before advancing
// to the next, modulo the sequence length, until StopAutoTour is
// called. Starting a tour while one is already running stops the old
// one first.
func (c *Controller) StartAutoTour(sequence string) error {
	presets, dwell, err := ParseTourSequence(sequence)
	if err != nil {
		return err
	}

	c.StopAutoTour()

	t := &autoTour{
		cancel: make(chan struct{}),
		done:   make(chan struct{}),
	}
	c.controlMu.Lock()
	c.tour = t
	c.controlMu.Unlock()

	go c.runAutoTour(t, presets, dwell)
	return nil
}

func (c *Controller) runAutoTour(t *autoTour, presets []int, dwell time.Duration) {
	defer close(t.done)

	ticker := time.NewTicker(time.Second)
	defer ticker.Stop()

	pos := 0
	for {
		select {
		case <-t.cancel:
			return
		default:
		}
		if err := c.RecallPreset(presets[pos], true); err != nil {
			c.log.Error().Err(err).Int("preset", presets[pos]).Msg("Auto-tour preset recall failed")
		}

		elapsed := time.Duration(0)
		for elapsed < dwell {
			select {
			case <-t.cancel:
				return
			case <-ticker.C:
				elapsed += time.Second
			}
		}

		pos = (pos + 1) % len(presets)
	}
}

// StopAutoTour cancels the running auto-tour worker, if any, and waits
// for it to exit before returning.
func (c *Controller) StopAutoTour() {
	c.controlMu.Lock()
	t := c.tour
	c.tour = nil
	c.controlMu.Unlock()

	if t == nil {
		return
	}
	close(t.cancel)
	<-t.done
}

// AutoTourRunning reports whether an auto-tour worker is active.
func (c *Controller) AutoTourRunning() bool {
	c.controlMu.Lock()
	defer c.controlMu.Unlock()
	return c.tour != nil
}
