package portio

import (
	"log"
	"sync"

	"github.com/sarchlab/atapio/sim"
)

// A Recorder is a hook that keeps every port access it sees on a bus.
type Recorder struct {
	lock     sync.Mutex
	accesses []Access
}

// NewRecorder creates a Recorder and attaches it to the bus.
func NewRecorder(bus *Bus) *Recorder {
	r := &Recorder{}
	bus.AcceptHook(r)

	return r
}

// Func records the access carried by the hook context.
func (r *Recorder) Func(ctx sim.HookCtx) {
	a, ok := ctx.Item.(Access)
	if !ok {
		return
	}

	r.lock.Lock()
	r.accesses = append(r.accesses, a)
	r.lock.Unlock()
}

// Accesses returns a copy of all accesses recorded so far.
func (r *Recorder) Accesses() []Access {
	r.lock.Lock()
	defer r.lock.Unlock()

	out := make([]Access, len(r.accesses))
	copy(out, r.accesses)

	return out
}

// Writes returns the recorded out accesses in order.
func (r *Recorder) Writes() []Access {
	return r.filter(func(a Access) bool { return a.Dir == Out })
}

// WritesTo returns the recorded out accesses to a given port.
func (r *Recorder) WritesTo(port uint16) []Access {
	return r.filter(func(a Access) bool {
		return a.Dir == Out && a.Port == port
	})
}

// CountReads returns the number of reads of the given size on a port.
func (r *Recorder) CountReads(port uint16, size int) int {
	return len(r.filter(func(a Access) bool {
		return a.Dir == In && a.Port == port && a.Size == size
	}))
}

func (r *Recorder) filter(keep func(Access) bool) []Access {
	r.lock.Lock()
	defer r.lock.Unlock()

	var out []Access
	for _, a := range r.accesses {
		if keep(a) {
			out = append(out, a)
		}
	}

	return out
}

// Reset forgets all recorded accesses.
func (r *Recorder) Reset() {
	r.lock.Lock()
	r.accesses = nil
	r.lock.Unlock()
}

// AccessLogger is a hook that prints every port access.
type AccessLogger struct {
	sim.LogHookBase

	skipData map[uint16]bool
}

// NewAccessLogger returns an AccessLogger writing into logger.
func NewAccessLogger(logger *log.Logger) *AccessLogger {
	h := new(AccessLogger)
	h.Logger = logger
	h.skipData = make(map[uint16]bool)

	return h
}

// SkipPort stops the logger from printing accesses to a port. Data ports move
// hundreds of words per sector and drown everything else.
func (h *AccessLogger) SkipPort(port uint16) *AccessLogger {
	h.skipData[port] = true
	return h
}

// Func writes the access into the logger.
func (h *AccessLogger) Func(ctx sim.HookCtx) {
	a, ok := ctx.Item.(Access)
	if !ok {
		return
	}

	if h.skipData[a.Port] {
		return
	}

	h.Logger.Printf("%s", a)
}
