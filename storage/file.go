package storage

import (
	"errors"
	"fmt"
	"io"
	"os"
)

// File keeps the data in a raw disk image.
type File struct {
	f        *os.File
	capacity uint64
}

// OpenFile opens a disk image. If the file is shorter than capacity it is
// extended. A zero capacity uses the current size of the file.
func OpenFile(path string, capacity uint64) (*File, error) {
	f, err := os.OpenFile(path, os.O_RDWR|os.O_CREATE, 0o644)
	if err != nil {
		return nil, err
	}

	info, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, err
	}

	size := uint64(info.Size())
	if capacity == 0 {
		capacity = size
	}

	if size < capacity {
		if err := f.Truncate(int64(capacity)); err != nil {
			f.Close()
			return nil, fmt.Errorf("extending %s: %w", path, err)
		}
	}

	return &File{f: f, capacity: capacity}, nil
}

// Capacity returns the size of the storage in bytes.
func (s *File) Capacity() uint64 {
	return s.capacity
}

func (s *File) Read(address uint64, length uint64) ([]byte, error) {
	if err := checkRange(s.capacity, address, length); err != nil {
		return nil, err
	}

	res := make([]byte, length)

	_, err := s.f.ReadAt(res, int64(address))
	if err != nil && !errors.Is(err, io.EOF) {
		return nil, err
	}

	return res, nil
}

func (s *File) Write(address uint64, data []byte) error {
	if err := checkRange(s.capacity, address, uint64(len(data))); err != nil {
		return err
	}

	_, err := s.f.WriteAt(data, int64(address))

	return err
}

// Flush syncs the image to disk.
func (s *File) Flush() error {
	return s.f.Sync()
}

// Close closes the image.
func (s *File) Close() error {
	return s.f.Close()
}
