package ata

import (
	"context"
	"errors"
	"io"
)

var errNegativeOffset = errors.New("negative offset")

// defaultSectorsPerCommand bounds how much one ReadAt/WriteAt command moves.
const defaultSectorsPerCommand = 256

// A Disk exposes one drive of a channel as an io.ReaderAt and io.WriterAt.
// Byte ranges that do not cover whole sectors are read-modify-written.
type Disk struct {
	ch         *Channel
	drive      Drive
	sectors    uint64
	perCommand uint16
	ctx        context.Context
}

// NewDisk wraps a drive of a channel.
func NewDisk(ch *Channel, drive Drive) *Disk {
	return &Disk{
		ch:         ch,
		drive:      drive,
		perCommand: defaultSectorsPerCommand,
		ctx:        context.Background(),
	}
}

// WithCapacity bounds the disk to a number of sectors. Reads past the end
// return io.EOF and writes past the end fail.
func (d *Disk) WithCapacity(sectors uint64) *Disk {
	d.sectors = sectors
	return d
}

// WithSectorsPerCommand sets the largest transfer issued as one command.
func (d *Disk) WithSectorsPerCommand(n uint16) *Disk {
	if n == 0 {
		panic("sectors per command must be positive")
	}

	d.perCommand = n
	return d
}

// WithContext sets the context used by ReadAt and WriteAt.
func (d *Disk) WithContext(ctx context.Context) *Disk {
	d.ctx = ctx
	return d
}

// Size returns the size in bytes, or 0 if the capacity is unknown.
func (d *Disk) Size() int64 {
	return int64(d.sectors * SectorSize)
}

// ReadAt implements io.ReaderAt.
func (d *Disk) ReadAt(p []byte, off int64) (int, error) {
	if off < 0 {
		return 0, errNegativeOffset
	}

	want := p
	var eof bool
	if d.sectors != 0 {
		size := d.Size()
		if off >= size {
			return 0, io.EOF
		}

		if off+int64(len(p)) > size {
			want = p[:size-off]
			eof = true
		}
	}

	if len(want) == 0 {
		return 0, nil
	}

	first, n, head := sectorSpan(off, len(want))

	buf, err := d.readSpan(first, n)
	if err != nil {
		return 0, err
	}

	copied := copy(want, buf[head:])
	if eof {
		return copied, io.EOF
	}

	return copied, nil
}

// WriteAt implements io.WriterAt.
func (d *Disk) WriteAt(p []byte, off int64) (int, error) {
	if off < 0 {
		return 0, errNegativeOffset
	}

	if len(p) == 0 {
		return 0, nil
	}

	first, n, head := sectorSpan(off, len(p))
	if d.sectors != 0 && first+n > d.sectors {
		return 0, ErrLBAOutOfRange
	}

	buf := make([]byte, n*SectorSize)
	tail := (uint64(off) + uint64(len(p))) % SectorSize

	if head != 0 {
		if err := d.readInto(buf[:SectorSize], first); err != nil {
			return 0, err
		}
	}

	if tail != 0 && (n > 1 || head == 0) {
		last := buf[(n-1)*SectorSize:]
		if err := d.readInto(last, first+n-1); err != nil {
			return 0, err
		}
	}

	copy(buf[head:], p)

	for done := uint64(0); done < n; {
		c := d.chunk(n - done)
		part := buf[done*SectorSize : (done+uint64(c))*SectorSize]

		err := d.ch.WriteSectors(d.ctx, d.drive, first+done, c, part)
		if err != nil {
			return writtenOf(p, done, head), err
		}

		done += uint64(c)
	}

	return len(p), nil
}

// writtenOf returns how many bytes of p are on the disk once the first done
// sectors of a span starting head bytes into its first sector are written.
func writtenOf(p []byte, done, head uint64) int {
	written := done * SectorSize
	if written <= head {
		return 0
	}

	return int(min(written-head, uint64(len(p))))
}

func (d *Disk) readSpan(first, n uint64) ([]byte, error) {
	buf := make([]byte, 0, n*SectorSize)

	for done := uint64(0); done < n; {
		c := d.chunk(n - done)

		data, err := d.ch.ReadSectors(d.ctx, d.drive, first+done, c)
		if err != nil {
			return nil, err
		}

		buf = append(buf, data...)
		done += uint64(c)
	}

	return buf, nil
}

func (d *Disk) readInto(dst []byte, lba uint64) error {
	data, err := d.ch.ReadSectors(d.ctx, d.drive, lba, 1)
	if err != nil {
		return err
	}

	copy(dst, data)

	return nil
}

func (d *Disk) chunk(left uint64) uint16 {
	if left > uint64(d.perCommand) {
		return d.perCommand
	}

	return uint16(left)
}

// sectorSpan returns the first sector, the number of sectors, and the offset
// into the first sector of a byte range.
func sectorSpan(off int64, length int) (first, n, head uint64) {
	start := uint64(off)
	end := start + uint64(length)

	first = start / SectorSize
	last := (end - 1) / SectorSize

	return first, last - first + 1, start % SectorSize
}
