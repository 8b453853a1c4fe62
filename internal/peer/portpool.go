// Package peer owns the peer table and the port bit-vectors described
// in spec.md §4.J, and dispatches normalised signalling events to the
// right per-peer Supervisor. It generalises the raw-pointer-graph
// rewrite called for in the design notes: the Manager holds owning
// handles to each Supervisor in a plain map rather than a graph of raw
// pointers, and borrows a mediagraph.MediaGraph handle for its own
// lifetime instead of reaching into a CameraSource directly.
package peer

import (
	"sync"

	"github.com/pkb36/smart-cow/internal/errs"
)

// PortPool tracks two independent bit-vectors: one for stream port
// blocks, one for IPC comm ports. A single mutex guards both, separate
// from the Manager's peers-map mutex, per §4.J's "two-mutex design".
type PortPool struct {
	mu sync.Mutex

	streamBasePort int
	deviceCount    int
	streamUsed     []bool

	commBasePort int
	commUsed     []bool
}

// NewPortPool sizes both bit-vectors to maxPeers slots.
func NewPortPool(streamBasePort, commBasePort, deviceCount, maxPeers int) *PortPool {
	return &PortPool{
		streamBasePort: streamBasePort,
		deviceCount:    deviceCount,
		streamUsed:     make([]bool, maxPeers),
		commBasePort:   commBasePort,
		commUsed:       make([]bool, maxPeers),
	}
}

// Reservation is the pair of slots (and their derived ports) allocated
// to one peer.
type Reservation struct {
	StreamSlot int
	StreamPort int // stream_base_port + StreamSlot*deviceCount
	CommSlot   int
	CommPort   int // comm_base_port + CommSlot
}

// Reserve scans the stream bit-vector for the first free index, then
// independently scans the comm bit-vector for the first free index.
// Neither slot is marked used until both scans succeed, so a failure of
// either scan leaves the pool unchanged and reports PortExhausted.
func (p *PortPool) Reserve() (Reservation, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	streamSlot := firstFree(p.streamUsed)
	if streamSlot < 0 {
		return Reservation{}, errs.New(errs.PortExhausted, "no free stream port block")
	}
	commSlot := firstFree(p.commUsed)
	if commSlot < 0 {
		return Reservation{}, errs.New(errs.PortExhausted, "no free comm port")
	}

	p.streamUsed[streamSlot] = true
	p.commUsed[commSlot] = true

	return Reservation{
		StreamSlot: streamSlot,
		StreamPort: p.streamBasePort + streamSlot*p.deviceCount,
		CommSlot:   commSlot,
		CommPort:   p.commBasePort + commSlot,
	}, nil
}

// Release frees both slots of a reservation returned by Reserve.
func (p *PortPool) Release(r Reservation) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if r.StreamSlot >= 0 && r.StreamSlot < len(p.streamUsed) {
		p.streamUsed[r.StreamSlot] = false
	}
	if r.CommSlot >= 0 && r.CommSlot < len(p.commUsed) {
		p.commUsed[r.CommSlot] = false
	}
}

func firstFree(used []bool) int {
	for i, u := range used {
		if !u {
			return i
		}
	}
	return -1
}
