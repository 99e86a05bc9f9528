// Package portio defines the port I/O capability the ATA driver is built on,
// and a bus that routes port accesses to simulated devices.
package portio

import "fmt"

// Port is a byte- and word-granular I/O port primitive. Each call corresponds
// to exactly one in or out instruction.
type Port interface {
	Read8(port uint16) uint8
	Write8(port uint16, value uint8)
	Read16(port uint16) uint16
	Write16(port uint16, value uint16)
}

// Direction tells if an access reads from or writes to a port.
type Direction int

// Access directions.
const (
	In Direction = iota
	Out
)

func (d Direction) String() string {
	if d == In {
		return "in"
	}

	return "out"
}

// Access describes a single port access.
type Access struct {
	Dir   Direction
	Size  int
	Port  uint16
	Value uint16
}

func (a Access) String() string {
	return fmt.Sprintf("%s%s 0x%03x 0x%0*x",
		a.Dir, sizeSuffix(a.Size), a.Port, a.Size*2, a.Value)
}

func sizeSuffix(size int) string {
	if size == 2 {
		return "w"
	}

	return "b"
}
