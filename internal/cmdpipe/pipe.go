// Package cmdpipe reads line-framed commands from a named FIFO and
// dispatches them to a callback. There is no FIFO-reading example
// anywhere in the retrieved corpus; this package is built directly on
// syscall.Mkfifo and os.OpenFile against a regular file descriptor,
// the only standard-library-level primitive Go exposes for named
// pipes (no third-party library in the ecosystem wraps this any more
// usefully than the syscall itself).
package cmdpipe

import (
	"bufio"
	"errors"
	"os"
	"strings"
	"sync"
	"sync/atomic"
	"syscall"

	"github.com/pkb36/smart-cow/internal/errs"
)

// Pipe owns one named FIFO and the worker goroutine reading it.
type Pipe struct {
	path    string
	handler func(string)

	fileMu  sync.Mutex
	file    *os.File
	closing atomic.Bool
	done    chan struct{}
}

func (p *Pipe) setFile(f *os.File) {
	p.fileMu.Lock()
	p.file = f
	p.fileMu.Unlock()
}

func (p *Pipe) currentFile() *os.File {
	p.fileMu.Lock()
	defer p.fileMu.Unlock()
	return p.file
}

// Open creates the FIFO at path if it does not already exist, verifies
// it can be opened regardless of writer presence, then starts the
// blocking read worker that dispatches trimmed, non-blank lines to
// handler.
func Open(path string, handler func(string)) (*Pipe, error) {
	if err := syscall.Mkfifo(path, 0666); err != nil && !errors.Is(err, syscall.EEXIST) {
		return nil, errs.Wrap(errs.BindFailed, "creating command fifo "+path, err)
	}

	probe, err := os.OpenFile(path, os.O_RDONLY|syscall.O_NONBLOCK, 0)
	if err != nil {
		return nil, errs.Wrap(errs.BindFailed, "opening command fifo "+path, err)
	}
	probe.Close()

	p := &Pipe{
		path:    path,
		handler: handler,
		done:    make(chan struct{}),
	}
	go p.readLoop()
	return p, nil
}

func (p *Pipe) readLoop() {
	// The blocking open itself waits for a writer, so it belongs in
	// the worker goroutine rather than in Open, which must return
	// immediately regardless of whether a writer is connected yet.
	f, err := os.OpenFile(p.path, os.O_RDONLY, 0)
	if err != nil {
		close(p.done)
		return
	}
	p.setFile(f)

	reader := bufio.NewReader(f)
	for {
		line, err := reader.ReadString('\n')
		if trimmed := strings.TrimSpace(line); trimmed != "" {
			p.handler(trimmed)
		}
		if err == nil {
			continue
		}

		if p.closing.Load() {
			close(p.done)
			return
		}

		// Writer closed (0-byte read at EOF): reopen and keep serving.
		p.currentFile().Close()
		f, openErr := os.OpenFile(p.path, os.O_RDONLY, 0)
		if openErr != nil {
			close(p.done)
			return
		}
		p.setFile(f)
		reader = bufio.NewReader(f)
	}
}

// Close unblocks the worker by writing a newline from a short-lived
// writer fd, waits for it to exit, and closes the read side.
func (p *Pipe) Close() error {
	p.closing.Store(true)

	w, err := os.OpenFile(p.path, os.O_WRONLY, 0)
	if err == nil {
		w.Write([]byte("\n"))
		w.Close()
	}

	<-p.done
	if f := p.currentFile(); f != nil {
		return f.Close()
	}
	return nil
}
