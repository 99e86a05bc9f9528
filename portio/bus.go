package portio

import (
	"fmt"
	"sync"

	"github.com/sarchlab/atapio/sim"
)

// Hook positions triggered by a Bus. The hook item is an Access.
var (
	HookPosPortRead  = &sim.HookPos{Name: "PortRead"}
	HookPosPortWrite = &sim.HookPos{Name: "PortWrite"}
)

// FloatingBus is the value read from a port that no device drives.
const FloatingBus = 0xffff

type portRange struct {
	start, end uint16
	dev        Port
}

// A Bus routes port accesses to the device mapped at the port. Accesses to
// unmapped ports read as a floating bus and writes to them are dropped.
type Bus struct {
	*sim.HookableBase

	name   string
	lock   sync.RWMutex
	ranges []portRange
}

// NewBus creates an empty bus.
func NewBus(name string) *Bus {
	return &Bus{
		HookableBase: sim.NewHookableBase(),
		name:         name,
	}
}

// Name returns the name of the bus.
func (b *Bus) Name() string {
	return b.name
}

// Map attaches dev to the inclusive port range [start, end]. Overlapping
// ranges are not allowed.
func (b *Bus) Map(start, end uint16, dev Port) {
	if dev == nil {
		panic("cannot map a nil device")
	}

	if end < start {
		panic(fmt.Sprintf("invalid port range 0x%x-0x%x", start, end))
	}

	b.lock.Lock()
	defer b.lock.Unlock()

	for _, r := range b.ranges {
		if start <= r.end && r.start <= end {
			panic(fmt.Sprintf(
				"port range 0x%x-0x%x overlaps with 0x%x-0x%x",
				start, end, r.start, r.end))
		}
	}

	b.ranges = append(b.ranges, portRange{start: start, end: end, dev: dev})
}

func (b *Bus) find(port uint16) Port {
	b.lock.RLock()
	defer b.lock.RUnlock()

	for _, r := range b.ranges {
		if port >= r.start && port <= r.end {
			return r.dev
		}
	}

	return nil
}

// Read8 reads a byte from a port.
func (b *Bus) Read8(port uint16) uint8 {
	v := uint8(FloatingBus & 0xff)
	if dev := b.find(port); dev != nil {
		v = dev.Read8(port)
	}

	b.notify(HookPosPortRead, Access{Dir: In, Size: 1, Port: port, Value: uint16(v)})

	return v
}

// Write8 writes a byte to a port.
func (b *Bus) Write8(port uint16, value uint8) {
	if dev := b.find(port); dev != nil {
		dev.Write8(port, value)
	}

	b.notify(HookPosPortWrite, Access{Dir: Out, Size: 1, Port: port, Value: uint16(value)})
}

// Read16 reads a word from a port.
func (b *Bus) Read16(port uint16) uint16 {
	v := uint16(FloatingBus)
	if dev := b.find(port); dev != nil {
		v = dev.Read16(port)
	}

	b.notify(HookPosPortRead, Access{Dir: In, Size: 2, Port: port, Value: v})

	return v
}

// Write16 writes a word to a port.
func (b *Bus) Write16(port uint16, value uint16) {
	if dev := b.find(port); dev != nil {
		dev.Write16(port, value)
	}

	b.notify(HookPosPortWrite, Access{Dir: Out, Size: 2, Port: port, Value: value})
}

func (b *Bus) notify(pos *sim.HookPos, a Access) {
	if b.NumHooks() == 0 {
		return
	}

	b.InvokeHook(sim.HookCtx{
		Domain: b,
		Pos:    pos,
		Item:   a,
	})
}
