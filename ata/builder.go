package ata

import (
	"time"

	"github.com/sarchlab/atapio/portio"
	"github.com/sarchlab/atapio/sim"
)

// Builder can build channels.
type Builder struct {
	port       portio.Port
	base       uint16
	control    uint16
	timeout    time.Duration
	retries    int
	addressing Addressing
}

// MakeBuilder returns a Builder for the primary legacy channel.
func MakeBuilder() Builder {
	return Builder{
		base:       PrimaryBase,
		control:    PrimaryControl,
		timeout:    5 * time.Second,
		retries:    2,
		addressing: LBA48,
	}
}

// WithPort sets the port I/O primitive the channel uses.
func (b Builder) WithPort(port portio.Port) Builder {
	b.port = port
	return b
}

// WithBase sets the command block base port.
func (b Builder) WithBase(base uint16) Builder {
	b.base = base
	return b
}

// WithControl sets the control block base port.
func (b Builder) WithControl(control uint16) Builder {
	b.control = control
	return b
}

// WithSecondaryChannel uses the legacy secondary channel ports.
func (b Builder) WithSecondaryChannel() Builder {
	b.base = SecondaryBase
	b.control = SecondaryControl
	return b
}

// WithTimeout sets how long a single wait on the status register may take. A
// zero timeout waits until the context is done.
func (b Builder) WithTimeout(timeout time.Duration) Builder {
	b.timeout = timeout
	return b
}

// WithRetries sets how many times a failed command is retried after a reset.
func (b Builder) WithRetries(retries int) Builder {
	b.retries = retries
	return b
}

// WithAddressing sets the addressing mode.
func (b Builder) WithAddressing(addressing Addressing) Builder {
	b.addressing = addressing
	return b
}

// Build creates a new channel.
func (b Builder) Build(name string) *Channel {
	b.parametersMustBeValid()

	return &Channel{
		HookableBase: sim.NewHookableBase(),
		name:         name,
		port:         b.port,
		base:         b.base,
		control:      b.control,
		timeout:      b.timeout,
		retries:      b.retries,
		addressing:   b.addressing,
	}
}

func (b Builder) parametersMustBeValid() {
	if b.port == nil {
		panic("port is not set")
	}

	if b.retries < 0 {
		panic("retries cannot be negative")
	}

	if b.addressing != LBA48 && b.addressing != LBA28 && b.addressing != Auto {
		panic("unknown addressing mode")
	}
}
