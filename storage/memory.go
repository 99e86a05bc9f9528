package storage

import "sync"

// Memory keeps the data in memory.
//
// The data is managed in units, similar to pages. Units that were never
// touched by Write are not allocated and read as zeros.
type Memory struct {
	lock     sync.RWMutex
	unitSize uint64
	capacity uint64
	data     map[uint64][]byte
}

// NewMemory creates an in-memory storage with the given capacity in bytes.
func NewMemory(capacity uint64) *Memory {
	return &Memory{
		unitSize: 4096,
		capacity: capacity,
		data:     make(map[uint64][]byte),
	}
}

// Capacity returns the size of the storage in bytes.
func (s *Memory) Capacity() uint64 {
	return s.capacity
}

// NumAllocatedUnits returns how many units have been written to.
func (s *Memory) NumAllocatedUnits() int {
	s.lock.RLock()
	defer s.lock.RUnlock()

	return len(s.data)
}

func (s *Memory) Read(address uint64, length uint64) ([]byte, error) {
	if err := checkRange(s.capacity, address, length); err != nil {
		return nil, err
	}

	s.lock.RLock()
	defer s.lock.RUnlock()

	res := make([]byte, length)
	err := splitUnits(s.unitSize, address, length,
		func(base, inUnit, offset, n uint64) error {
			if unit, ok := s.data[base]; ok {
				copy(res[offset:offset+n], unit[inUnit:inUnit+n])
			}
			return nil
		})
	if err != nil {
		return nil, err
	}

	return res, nil
}

func (s *Memory) Write(address uint64, data []byte) error {
	length := uint64(len(data))
	if err := checkRange(s.capacity, address, length); err != nil {
		return err
	}

	s.lock.Lock()
	defer s.lock.Unlock()

	return splitUnits(s.unitSize, address, length,
		func(base, inUnit, offset, n uint64) error {
			unit, ok := s.data[base]
			if !ok {
				unit = make([]byte, s.unitSize)
				s.data[base] = unit
			}

			copy(unit[inUnit:inUnit+n], data[offset:offset+n])
			return nil
		})
}

// Flush does nothing.
func (s *Memory) Flush() error {
	return nil
}

// Close drops the content.
func (s *Memory) Close() error {
	s.lock.Lock()
	s.data = make(map[uint64][]byte)
	s.lock.Unlock()

	return nil
}
