package cmdpipe

import (
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/pkb36/smart-cow/internal/procsup"
	"github.com/pkb36/smart-cow/internal/ptz"
	"github.com/pkb36/smart-cow/internal/settings"
)

// stopGrace is the SIGTERM-to-SIGKILL window applied to the recorder
// child, mirroring the supervisor's own teardown grace.
const stopGrace = 100 * time.Millisecond

// Handler interprets the recognised command vocabulary (§4.F) against
// a PTZ controller, a device settings store, and a recorder child
// process.
type Handler struct {
	log zerolog.Logger

	ptz      *ptz.Controller
	settings *settings.Store

	procs         *procsup.Supervisor
	recorderBin   string
	recorderArgs  []string
	recorderMu    sync.Mutex
	recorderChild *procsup.Child
}

// NewHandler builds a Handler. recorderBin/recorderArgs describe the
// child process record_start spawns.
func NewHandler(log zerolog.Logger, p *ptz.Controller, s *settings.Store, procs *procsup.Supervisor, recorderBin string, recorderArgs []string) *Handler {
	return &Handler{
		log:          log,
		ptz:          p,
		settings:     s,
		procs:        procs,
		recorderBin:  recorderBin,
		recorderArgs: recorderArgs,
	}
}

// Dispatch is the callback registered with a Pipe.
func (h *Handler) Dispatch(cmd string) {
	var err error
	switch cmd {
	case "up", "down", "left", "right", "enter", "zoom_init":
		err = h.ptz.SendMenuCommand(cmd)
	case "ir_init":
		err = h.ptz.SendIRInit()
	case "record_start":
		err = h.startRecording()
	case "record_stop":
		err = h.stopRecording()
	case "analysis_on":
		h.settings.Update(func(s *settings.Snapshot) { s.AnalysisOn = true })
	case "analysis_off":
		h.settings.Update(func(s *settings.Snapshot) {
			s.AnalysisOn = false
			s.NVInterval = settings.NVIntervalDisabled
		})
	default:
		h.log.Warn().Str("command", cmd).Msg("unrecognized command pipe line")
		return
	}

	if err != nil {
		h.log.Error().Err(err).Str("command", cmd).Msg("command pipe dispatch failed")
	}
}

func (h *Handler) startRecording() error {
	h.recorderMu.Lock()
	defer h.recorderMu.Unlock()

	if h.recorderChild != nil && h.recorderChild.Alive() {
		return nil
	}

	child, err := h.procs.Spawn(h.recorderBin, h.recorderArgs...)
	if err != nil {
		return err
	}
	h.recorderChild = child
	h.settings.Update(func(s *settings.Snapshot) { s.RecordOn = true })
	return nil
}

func (h *Handler) stopRecording() error {
	h.recorderMu.Lock()
	defer h.recorderMu.Unlock()

	h.settings.Update(func(s *settings.Snapshot) { s.RecordOn = false })

	if h.recorderChild == nil {
		return nil
	}
	err := h.procs.Stop(h.recorderChild, stopGrace)
	h.recorderChild = nil
	return err
}
