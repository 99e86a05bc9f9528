package ata

import (
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/sarchlab/atapio/portio"
	"github.com/sarchlab/atapio/sim"
	"github.com/sarchlab/atapio/tracing"
)

// Operation names, used as the "what" of traced tasks and the Op of errors.
const (
	OpRead     = "read_sectors"
	OpWrite    = "write_sectors"
	OpIdentify = "identify"
	OpFlush    = "flush"
	OpReset    = "reset"
)

// Number of poll iterations between two deadline checks.
const pollCheckInterval = 64

// Request is attached to traced tasks as their detail.
type Request struct {
	Drive Drive
	LBA   uint64
	Count uint16
}

// Stats counts what happened on a channel since it was built.
type Stats struct {
	Reads          uint64 `json:"reads"`
	Writes         uint64 `json:"writes"`
	SectorsRead    uint64 `json:"sectors_read"`
	SectorsWritten uint64 `json:"sectors_written"`
	Identifies     uint64 `json:"identifies"`
	Flushes        uint64 `json:"flushes"`
	Retries        uint64 `json:"retries"`
	Timeouts       uint64 `json:"timeouts"`
	DeviceErrors   uint64 `json:"device_errors"`
	Resets         uint64 `json:"resets"`
	Failures       uint64 `json:"failures"`
}

// A Channel drives one ATA channel: a command block, a control block, and up
// to two drives. All operations on one channel are serialized, since the
// wire protocol carries no request identifier.
type Channel struct {
	*sim.HookableBase

	name       string
	port       portio.Port
	base       uint16
	control    uint16
	timeout    time.Duration
	retries    int
	addressing Addressing

	lock   sync.Mutex
	taskID string

	statsLock sync.Mutex
	stats     Stats
}

// Name returns the name of the channel.
func (c *Channel) Name() string {
	return c.name
}

// Base returns the command block base port.
func (c *Channel) Base() uint16 {
	return c.base
}

// Control returns the control block base port.
func (c *Channel) Control() uint16 {
	return c.control
}

// Addressing returns the addressing mode of the channel.
func (c *Channel) Addressing() Addressing {
	return c.addressing
}

// Stats returns a snapshot of the channel counters.
func (c *Channel) Stats() Stats {
	c.statsLock.Lock()
	defer c.statsLock.Unlock()

	return c.stats
}

// State is what a monitor sees of a channel.
type State struct {
	Name       string
	Base       uint16
	Control    uint16
	Timeout    string
	Retries    int
	Addressing string
	Stats      Stats
}

// State returns the channel configuration and a snapshot of its counters.
// It does not wait for a running operation.
func (c *Channel) State() State {
	return State{
		Name:       c.name,
		Base:       c.base,
		Control:    c.control,
		Timeout:    c.timeout.String(),
		Retries:    c.retries,
		Addressing: c.addressing.String(),
		Stats:      c.Stats(),
	}
}

// Snapshot returns the State of the channel.
func (c *Channel) Snapshot() any {
	return c.State()
}

func (c *Channel) count(f func(s *Stats)) {
	c.statsLock.Lock()
	f(&c.stats)
	c.statsLock.Unlock()
}

// ReadSectors reads count sectors starting at lba from a drive. The returned
// slice is always count*SectorSize bytes long. A failed read returns no data.
func (c *Channel) ReadSectors(
	ctx context.Context,
	drive Drive,
	lba uint64,
	count uint16,
) ([]byte, error) {
	if err := checkRequest(drive, lba, count, c.addressing); err != nil {
		return nil, fmt.Errorf("%s: %w", OpRead, err)
	}

	c.lock.Lock()
	defer c.lock.Unlock()

	c.startTask(OpRead, Request{Drive: drive, LBA: lba, Count: count})

	var data []byte
	err := c.withRetry(ctx, OpRead, func() error {
		var err error
		data, err = c.readOnce(ctx, drive, lba, count)
		return err
	})

	c.endTask(err)

	if err != nil {
		return nil, err
	}

	c.count(func(s *Stats) {
		s.Reads++
		s.SectorsRead += uint64(count)
	})

	return data, nil
}

// WriteSectors writes count sectors starting at lba to a drive. The data must
// be exactly count*SectorSize bytes long. Success means every word was
// accepted and the device reported no error afterwards.
func (c *Channel) WriteSectors(
	ctx context.Context,
	drive Drive,
	lba uint64,
	count uint16,
	data []byte,
) error {
	if len(data) != int(count)*SectorSize {
		return fmt.Errorf("%s: %w: %d bytes for %d sectors",
			OpWrite, ErrBufferLength, len(data), count)
	}

	if err := checkRequest(drive, lba, count, c.addressing); err != nil {
		return fmt.Errorf("%s: %w", OpWrite, err)
	}

	c.lock.Lock()
	defer c.lock.Unlock()

	c.startTask(OpWrite, Request{Drive: drive, LBA: lba, Count: count})

	err := c.withRetry(ctx, OpWrite, func() error {
		return c.writeOnce(ctx, drive, lba, count, data)
	})

	c.endTask(err)

	if err != nil {
		return err
	}

	c.count(func(s *Stats) {
		s.Writes++
		s.SectorsWritten += uint64(count)
	})

	return nil
}

// Identify runs IDENTIFY DEVICE on a drive.
func (c *Channel) Identify(ctx context.Context, drive Drive) (*IdentifyData, error) {
	if drive != Master && drive != Slave {
		return nil, fmt.Errorf("%s: %w", OpIdentify, ErrInvalidDrive)
	}

	c.lock.Lock()
	defer c.lock.Unlock()

	c.startTask(OpIdentify, Request{Drive: drive})

	var words [WordsPerSector]uint16
	err := c.withRetry(ctx, OpIdentify, func() error {
		err := c.issueNoData(ctx, OpIdentify, drive, CmdIdentifyDevice)
		if err != nil {
			return err
		}

		if err := c.waitDRQ(ctx, OpIdentify); err != nil {
			return err
		}

		for i := range words {
			words[i] = c.port.Read16(c.base + RegData)
		}

		return c.waitDone(ctx, OpIdentify)
	})

	c.endTask(err)

	if err != nil {
		return nil, err
	}

	c.count(func(s *Stats) { s.Identifies++ })

	return parseIdentify(words), nil
}

// Flush asks a drive to commit its write cache to the medium.
func (c *Channel) Flush(ctx context.Context, drive Drive) error {
	if drive != Master && drive != Slave {
		return fmt.Errorf("%s: %w", OpFlush, ErrInvalidDrive)
	}

	c.lock.Lock()
	defer c.lock.Unlock()

	c.startTask(OpFlush, Request{Drive: drive})

	cmd := CmdFlushCacheExt
	if c.addressing != LBA48 {
		cmd = CmdFlushCache
	}

	err := c.withRetry(ctx, OpFlush, func() error {
		if err := c.issueNoData(ctx, OpFlush, drive, cmd); err != nil {
			return err
		}

		return c.waitDone(ctx, OpFlush)
	})

	c.endTask(err)

	if err == nil {
		c.count(func(s *Stats) { s.Flushes++ })
	}

	return err
}

// Reset performs a software reset of the channel. Both drives are affected.
func (c *Channel) Reset(ctx context.Context) error {
	c.lock.Lock()
	defer c.lock.Unlock()

	c.startTask(OpReset, nil)
	err := c.softReset(ctx)
	c.endTask(err)

	return err
}

func (c *Channel) readOnce(
	ctx context.Context,
	drive Drive,
	lba uint64,
	count uint16,
) ([]byte, error) {
	mode := c.modeFor(lba, count)

	cmd := CmdReadSectorsExt
	if mode == LBA28 {
		cmd = CmdReadSectors
	}

	if err := c.issue(ctx, OpRead, mode, drive, lba, count, cmd); err != nil {
		return nil, err
	}

	buf := make([]byte, int(count)*SectorSize)
	for s := 0; s < int(count); s++ {
		if err := c.waitDRQ(ctx, OpRead); err != nil {
			return nil, err
		}

		sector := buf[s*SectorSize : (s+1)*SectorSize]
		for i := 0; i < SectorSize; i += 2 {
			binary.LittleEndian.PutUint16(sector[i:], c.port.Read16(c.base+RegData))
		}
	}

	c.step("transferred")

	if err := c.waitDone(ctx, OpRead); err != nil {
		return nil, err
	}

	return buf, nil
}

func (c *Channel) writeOnce(
	ctx context.Context,
	drive Drive,
	lba uint64,
	count uint16,
	data []byte,
) error {
	mode := c.modeFor(lba, count)

	cmd := CmdWriteSectorsExt
	if mode == LBA28 {
		cmd = CmdWriteSectors
	}

	if err := c.issue(ctx, OpWrite, mode, drive, lba, count, cmd); err != nil {
		return err
	}

	for s := 0; s < int(count); s++ {
		if err := c.waitDRQ(ctx, OpWrite); err != nil {
			return err
		}

		sector := data[s*SectorSize : (s+1)*SectorSize]
		for i := 0; i < SectorSize; i += 2 {
			c.port.Write16(c.base+RegData, binary.LittleEndian.Uint16(sector[i:]))
		}
	}

	c.step("transferred")

	return c.waitDone(ctx, OpWrite)
}

func (c *Channel) modeFor(lba uint64, count uint16) Addressing {
	switch c.addressing {
	case LBA28:
		return LBA28
	case Auto:
		if fits28(lba, count) {
			return LBA28
		}
	}

	return LBA48
}

// issue programs the task file and writes the command byte.
func (c *Channel) issue(
	ctx context.Context,
	op string,
	mode Addressing,
	drive Drive,
	lba uint64,
	count uint16,
	cmd uint8,
) error {
	if err := c.waitNotBusy(ctx, op, "idle"); err != nil {
		return err
	}

	writes := taskFile48(drive, lba, count)
	if mode == LBA28 {
		writes = taskFile28(drive, lba, count)
	}

	for _, w := range writes {
		c.port.Write8(c.base+w.offset, w.value)
	}

	c.port.Write8(c.base+RegCommand, cmd)
	c.settle()
	c.step("command")

	return nil
}

// issueNoData selects a drive and issues a command that carries no address.
func (c *Channel) issueNoData(
	ctx context.Context,
	op string,
	drive Drive,
	cmd uint8,
) error {
	if err := c.waitNotBusy(ctx, op, "idle"); err != nil {
		return err
	}

	c.port.Write8(c.base+RegDriveHead, DriveHeadPlain|uint8(drive)<<4)
	c.settle()
	c.port.Write8(c.base+RegCommand, cmd)
	c.settle()
	c.step("command")

	return nil
}

// settle gives the device the 400ns it needs to update the status register
// by reading the alternate status four times.
func (c *Channel) settle() {
	for i := 0; i < 4; i++ {
		c.port.Read8(c.control + RegAltStatus)
	}
}

func (c *Channel) waitNotBusy(ctx context.Context, op, phase string) error {
	return c.poll(ctx, op, phase, false, func(uint8) bool { return true })
}

func (c *Channel) waitDRQ(ctx context.Context, op string) error {
	return c.poll(ctx, op, "DRQ", true, func(status uint8) bool {
		return status&StatusDRQ != 0
	})
}

func (c *Channel) waitDone(ctx context.Context, op string) error {
	return c.poll(ctx, op, "completion", true, func(uint8) bool { return true })
}

// poll reads the status register until BSY is clear and ready accepts the
// status. With checkErr, ERR or DF abort the wait with a DeviceError.
func (c *Channel) poll(
	ctx context.Context,
	op, phase string,
	checkErr bool,
	ready func(status uint8) bool,
) error {
	var deadline time.Time
	if c.timeout > 0 {
		deadline = time.Now().Add(c.timeout)
	}

	for i := 0; ; i++ {
		status := c.port.Read8(c.base + RegStatus)

		if status&StatusBSY == 0 {
			if checkErr && status&(StatusERR|StatusDF) != 0 {
				return &DeviceError{
					Op:       op,
					Status:   status,
					ErrorReg: c.port.Read8(c.base + RegError),
				}
			}

			if ready(status) {
				return nil
			}
		}

		if i%pollCheckInterval != 0 {
			continue
		}

		if err := ctx.Err(); err != nil {
			return fmt.Errorf("%s: %w", op, err)
		}

		if !deadline.IsZero() && time.Now().After(deadline) {
			return &TimeoutError{Op: op, Phase: phase, Status: status}
		}
	}
}

func (c *Channel) softReset(ctx context.Context) error {
	c.count(func(s *Stats) { s.Resets++ })

	c.port.Write8(c.control+RegDeviceControl, ControlNIEN|ControlSRST)
	c.settle()
	c.port.Write8(c.control+RegDeviceControl, ControlNIEN)
	c.settle()

	return c.waitNotBusy(ctx, OpReset, "reset")
}

// withRetry runs attempt, and on a timeout or device error resets the channel
// and runs it again, up to the configured number of retries.
func (c *Channel) withRetry(ctx context.Context, op string, attempt func() error) error {
	var err error

	for i := 0; i <= c.retries; i++ {
		if i > 0 {
			c.count(func(s *Stats) { s.Retries++ })
			c.step("retry")
		}

		err = attempt()
		if err == nil || !isRetryable(err) {
			break
		}

		c.count(func(s *Stats) {
			if errors.Is(err, ErrTimeout) {
				s.Timeouts++
			} else {
				s.DeviceErrors++
			}
		})

		if rerr := c.softReset(ctx); rerr != nil {
			err = errors.Join(err, fmt.Errorf("%s after %s: %w", OpReset, op, rerr))
			break
		}
	}

	if err != nil {
		c.count(func(s *Stats) { s.Failures++ })
	}

	return err
}

func (c *Channel) startTask(what string, req interface{}) {
	if c.NumHooks() == 0 {
		return
	}

	c.taskID = sim.GetIDGenerator().Generate()
	tracing.StartTask(c.taskID, "", c, tracing.KindChannel, what, req)
}

func (c *Channel) step(what string) {
	if c.taskID == "" {
		return
	}

	tracing.AddTaskStep(c.taskID, c, what)
}

func (c *Channel) endTask(err error) {
	if c.taskID == "" {
		return
	}

	if err != nil {
		tracing.AddTaskStep(c.taskID, c, "failed")
	}

	tracing.EndTask(c.taskID, c)
	c.taskID = ""
}
