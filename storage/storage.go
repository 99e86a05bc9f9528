// Package storage provides byte-addressed backing stores for simulated disks.
package storage

import (
	"errors"
	"fmt"
)

// ErrOutOfRange is returned when an access reaches beyond the capacity.
var ErrOutOfRange = errors.New("access beyond storage capacity")

// A Storage keeps the content of a disk.
type Storage interface {
	// Capacity returns the size of the storage in bytes.
	Capacity() uint64

	// Read returns length bytes starting at address.
	Read(address uint64, length uint64) ([]byte, error)

	// Write stores data starting at address.
	Write(address uint64, data []byte) error

	// Flush makes previous writes durable.
	Flush() error

	// Close releases the resources held by the storage.
	Close() error
}

func checkRange(capacity, address, length uint64) error {
	if address > capacity || length > capacity-address {
		return fmt.Errorf("%w: [0x%x, 0x%x) with capacity 0x%x",
			ErrOutOfRange, address, address+length, capacity)
	}

	return nil
}

// splitUnits calls f once for every unit touched by [address, address+length).
// base is the unit start address, inUnit the offset inside the unit, offset
// the position in the caller's buffer and n the number of bytes.
func splitUnits(
	unitSize, address, length uint64,
	f func(base, inUnit, offset, n uint64) error,
) error {
	offset := uint64(0)

	for offset < length {
		curr := address + offset
		inUnit := curr % unitSize
		base := curr - inUnit

		n := unitSize - inUnit
		if left := length - offset; left < n {
			n = left
		}

		if err := f(base, inUnit, offset, n); err != nil {
			return err
		}

		offset += n
	}

	return nil
}
