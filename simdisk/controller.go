// Package simdisk simulates a legacy ATA channel at the register level.
//
// A Controller implements portio.Port. It decodes the command block and
// control block registers, executes the PIO data commands, IDENTIFY DEVICE
// and FLUSH CACHE against storage.Storage backed drives, and models the busy
// time of the device as a number of status register reads.
package simdisk

import (
	"encoding/binary"
	"fmt"
	"slices"
	"sync"

	"github.com/sarchlab/atapio/ata"
	"github.com/sarchlab/atapio/portio"
	"github.com/sarchlab/atapio/sim"
	"github.com/sarchlab/atapio/storage"
	"github.com/sarchlab/atapio/tracing"
)

type drive struct {
	store    storage.Storage
	sectors  uint64
	lba48    bool
	identify [ata.WordsPerSector]uint16
}

// driveHeadLBA is the LBA bit of the drive/head register.
const driveHeadLBA = 0x40

type direction int

const (
	noTransfer direction = iota
	toHost
	fromHost
)

func (d direction) String() string {
	switch d {
	case toHost:
		return "to host"
	case fromHost:
		return "from host"
	}

	return "none"
}

// Command describes a command accepted by the device. It is the detail of
// the traced device tasks.
type Command struct {
	Drive  ata.Drive
	Opcode uint8
	LBA    uint64
	Count  uint32
}

// Stats counts what the device did.
type Stats struct {
	Commands       uint64 `json:"commands"`
	Aborts         uint64 `json:"aborts"`
	SectorsRead    uint64 `json:"sectors_read"`
	SectorsWritten uint64 `json:"sectors_written"`
	Resets         uint64 `json:"resets"`
}

// A Controller is a simulated ATA channel with up to two drives.
type Controller struct {
	*sim.HookableBase

	name    string
	base    uint16
	control uint16
	latency int
	drives  [2]*drive

	lock sync.Mutex

	// Two-deep registers. Index 0 is the most recent write.
	features    [2]uint8
	sectorCount [2]uint8
	lbaLow      [2]uint8
	lbaMid      [2]uint8
	lbaHigh     [2]uint8
	driveHead   uint8
	status      uint8
	errorReg    uint8
	devControl  uint8

	busyLeft int
	pending  func()
	hung     bool

	dir      direction
	xferLBA  uint64
	xferLeft uint32
	xferBuf  [ata.SectorSize]byte
	xferPos  int
	current  *drive

	identifying bool

	faultErrors   int
	faultErrorReg uint8
	faultHangs    int

	taskID string
	stats  Stats
}

// Name returns the name of the channel.
func (c *Controller) Name() string {
	return c.name
}

// Base returns the command block base port.
func (c *Controller) Base() uint16 {
	return c.base
}

// Control returns the control block port.
func (c *Controller) Control() uint16 {
	return c.control
}

// MapTo attaches the command block and control block ports to a bus.
func (c *Controller) MapTo(bus *portio.Bus) {
	bus.Map(c.base, c.base+ata.RegCommand, c)
	bus.Map(c.control, c.control, c)
}

// Storage returns the store of a drive, or nil if no drive is attached.
func (c *Controller) Storage(d ata.Drive) storage.Storage {
	if int(d) >= len(c.drives) || c.drives[d] == nil {
		return nil
	}

	return c.drives[d].store
}

// Stats returns a snapshot of the device counters.
func (c *Controller) Stats() Stats {
	c.lock.Lock()
	defer c.lock.Unlock()

	return c.stats
}

// DriveState describes an attached drive.
type DriveState struct {
	Position string
	Sectors  uint64
	LBA48    bool
}

// State is a snapshot of the channel registers. The two-deep registers list
// the most recent write first.
type State struct {
	Name          string
	Base          uint16
	Control       uint16
	Latency       int
	Drives        []DriveState
	Selected      string
	Status        uint8
	Error         uint8
	DriveHead     uint8
	DeviceControl uint8
	Features      []uint8
	SectorCount   []uint8
	LBALow        []uint8
	LBAMid        []uint8
	LBAHigh       []uint8
	BusyReads     int
	Hung          bool
	Transfer      string
	TransferLBA   uint64
	SectorsLeft   uint32
	Stats         Stats
}

// State returns a snapshot of the registers taken under the device lock.
func (c *Controller) State() State {
	c.lock.Lock()
	defer c.lock.Unlock()

	st := State{
		Name:          c.name,
		Base:          c.base,
		Control:       c.control,
		Latency:       c.latency,
		Selected:      ata.Drive((c.driveHead & ata.DriveHeadSlave) >> 4).String(),
		Status:        c.status,
		Error:         c.errorReg,
		DriveHead:     c.driveHead,
		DeviceControl: c.devControl,
		Features:      slices.Clone(c.features[:]),
		SectorCount:   slices.Clone(c.sectorCount[:]),
		LBALow:        slices.Clone(c.lbaLow[:]),
		LBAMid:        slices.Clone(c.lbaMid[:]),
		LBAHigh:       slices.Clone(c.lbaHigh[:]),
		BusyReads:     c.busyLeft,
		Hung:          c.hung,
		Transfer:      c.dir.String(),
		TransferLBA:   c.xferLBA,
		SectorsLeft:   c.xferLeft,
		Stats:         c.stats,
	}

	for i, d := range c.drives {
		if d == nil {
			continue
		}

		st.Drives = append(st.Drives, DriveState{
			Position: ata.Drive(i).String(),
			Sectors:  d.sectors,
			LBA48:    d.lba48,
		})
	}

	return st
}

// Snapshot returns the State of the device.
func (c *Controller) Snapshot() any {
	return c.State()
}

// InjectErrors makes the next n commands fail with ERR set and errorReg in
// the error register.
func (c *Controller) InjectErrors(n int, errorReg uint8) {
	c.lock.Lock()
	defer c.lock.Unlock()

	c.faultErrors = n
	c.faultErrorReg = errorReg
}

// InjectHangs makes the next n commands keep BSY set until a software reset.
func (c *Controller) InjectHangs(n int) {
	c.lock.Lock()
	defer c.lock.Unlock()

	c.faultHangs = n
}

func (c *Controller) selected() *drive {
	return c.drives[(c.driveHead&ata.DriveHeadSlave)>>4]
}

// Read8 reads a register.
func (c *Controller) Read8(port uint16) uint8 {
	c.lock.Lock()
	defer c.lock.Unlock()

	if port == c.control+ata.RegAltStatus {
		return c.readStatus()
	}

	switch port - c.base {
	case ata.RegData:
		return uint8(c.readData())
	case ata.RegError:
		return c.errorReg
	case ata.RegSectorCount:
		return c.sectorCount[0]
	case ata.RegLBALow:
		return c.lbaLow[0]
	case ata.RegLBAMid:
		return c.lbaMid[0]
	case ata.RegLBAHigh:
		return c.lbaHigh[0]
	case ata.RegDriveHead:
		return c.driveHead
	case ata.RegStatus:
		return c.readStatus()
	}

	return 0xff
}

// Write8 writes a register.
func (c *Controller) Write8(port uint16, value uint8) {
	c.lock.Lock()
	defer c.lock.Unlock()

	if port == c.control+ata.RegDeviceControl {
		c.writeDeviceControl(value)
		return
	}

	switch port - c.base {
	case ata.RegFeatures:
		push(&c.features, value)
	case ata.RegSectorCount:
		push(&c.sectorCount, value)
	case ata.RegLBALow:
		push(&c.lbaLow, value)
	case ata.RegLBAMid:
		push(&c.lbaMid, value)
	case ata.RegLBAHigh:
		push(&c.lbaHigh, value)
	case ata.RegDriveHead:
		if c.status&ata.StatusBSY == 0 {
			c.driveHead = value
		}
	case ata.RegCommand:
		c.command(value)
	}
}

// Read16 reads the data register. Other registers read as their byte value.
func (c *Controller) Read16(port uint16) uint16 {
	if port != c.base+ata.RegData {
		return uint16(c.Read8(port))
	}

	c.lock.Lock()
	defer c.lock.Unlock()

	return c.readData()
}

// Write16 writes the data register. Other registers take the low byte.
func (c *Controller) Write16(port uint16, value uint16) {
	if port != c.base+ata.RegData {
		c.Write8(port, uint8(value))
		return
	}

	c.lock.Lock()
	defer c.lock.Unlock()

	c.writeData(value)
}

func push(fifo *[2]uint8, v uint8) {
	fifo[1] = fifo[0]
	fifo[0] = v
}

// readStatus lets device time pass and returns the status of the selected
// drive. An absent drive only shows the channel BSY, so that a reset or a
// command of the other drive is seen to finish.
func (c *Controller) readStatus() uint8 {
	c.tick()

	if c.selected() == nil {
		return c.status & ata.StatusBSY
	}

	return c.status
}

// tick lets one unit of device time pass.
func (c *Controller) tick() {
	if c.hung || c.busyLeft == 0 {
		return
	}

	c.busyLeft--
	if c.busyLeft > 0 {
		return
	}

	next := c.pending
	c.pending = nil
	next()
}

// busy keeps BSY set for the configured latency and then runs next.
func (c *Controller) busy(next func()) {
	if c.latency == 0 {
		next()
		return
	}

	c.status = ata.StatusBSY
	c.busyLeft = c.latency
	c.pending = next
}

func (c *Controller) writeDeviceControl(value uint8) {
	wasReset := c.devControl&ata.ControlSRST != 0
	c.devControl = value

	if value&ata.ControlSRST != 0 {
		c.abortAll()
		c.driveHead = 0
		c.status = ata.StatusBSY
		return
	}

	if wasReset {
		c.stats.Resets++
		c.busy(c.finishReset)
	}
}

func (c *Controller) abortAll() {
	c.endTask()

	c.hung = false
	c.busyLeft = 0
	c.pending = nil
	c.dir = noTransfer
	c.current = nil
}

// finishReset leaves the registers with the ATA device signature.
func (c *Controller) finishReset() {
	c.driveHead = 0
	c.sectorCount = [2]uint8{1, 0}
	c.lbaLow = [2]uint8{1, 0}
	c.lbaMid = [2]uint8{}
	c.lbaHigh = [2]uint8{}
	c.errorReg = 0x01
	c.status = ata.StatusDRDY
}

func (c *Controller) command(opcode uint8) {
	d := c.selected()
	if d == nil || c.status&ata.StatusBSY != 0 {
		return
	}

	c.stats.Commands++
	c.errorReg = 0
	c.dir = noTransfer

	cmd := c.decode(opcode)
	c.startTask(cmd)

	if c.faultHangs > 0 {
		c.faultHangs--
		c.status = ata.StatusBSY
		c.hung = true
		return
	}

	if c.faultErrors > 0 {
		c.faultErrors--
		c.busy(func() { c.abort(c.faultErrorReg) })
		return
	}

	c.busy(func() { c.execute(d, cmd) })
}

func (c *Controller) decode(opcode uint8) Command {
	cmd := Command{
		Drive:  ata.Drive((c.driveHead & ata.DriveHeadSlave) >> 4),
		Opcode: opcode,
	}

	switch opcode {
	case ata.CmdReadSectorsExt, ata.CmdWriteSectorsExt:
		var l [8]byte
		l[0], l[1], l[2] = c.lbaLow[0], c.lbaMid[0], c.lbaHigh[0]
		l[3], l[4], l[5] = c.lbaLow[1], c.lbaMid[1], c.lbaHigh[1]
		cmd.LBA = binary.LittleEndian.Uint64(l[:])

		cmd.Count = uint32(c.sectorCount[1])<<8 | uint32(c.sectorCount[0])
		if cmd.Count == 0 {
			cmd.Count = 65536
		}
	case ata.CmdReadSectors, ata.CmdWriteSectors:
		var l [8]byte
		l[0], l[1], l[2] = c.lbaLow[0], c.lbaMid[0], c.lbaHigh[0]
		l[3] = c.driveHead & 0x0f
		cmd.LBA = binary.LittleEndian.Uint64(l[:])

		cmd.Count = uint32(c.sectorCount[0])
		if cmd.Count == 0 {
			cmd.Count = 256
		}
	}

	return cmd
}

func (c *Controller) execute(d *drive, cmd Command) {
	switch cmd.Opcode {
	case ata.CmdReadSectorsExt, ata.CmdWriteSectorsExt:
		if !d.lba48 {
			c.abort(ata.ErrorABRT)
			return
		}

		c.startTransfer(d, cmd)
	case ata.CmdReadSectors, ata.CmdWriteSectors:
		if c.driveHead&driveHeadLBA == 0 {
			// CHS addressing is not supported.
			c.abort(ata.ErrorABRT)
			return
		}

		c.startTransfer(d, cmd)
	case ata.CmdIdentifyDevice:
		for i, w := range d.identify {
			binary.LittleEndian.PutUint16(c.xferBuf[2*i:], w)
		}

		c.current = d
		c.identifying = true
		c.dir = toHost
		c.xferLeft = 1
		c.xferPos = 0
		c.status = ata.StatusDRDY | ata.StatusDRQ
	case ata.CmdFlushCache, ata.CmdFlushCacheExt:
		if err := d.store.Flush(); err != nil {
			c.abort(ata.ErrorABRT)
			return
		}

		c.complete()
	default:
		c.abort(ata.ErrorABRT)
	}
}

func (c *Controller) startTransfer(d *drive, cmd Command) {
	if cmd.LBA+uint64(cmd.Count) > d.sectors {
		c.abort(ata.ErrorIDNF)
		return
	}

	c.current = d
	c.identifying = false
	c.xferLBA = cmd.LBA
	c.xferLeft = cmd.Count
	c.xferPos = 0

	if cmd.Opcode == ata.CmdReadSectors || cmd.Opcode == ata.CmdReadSectorsExt {
		c.dir = toHost
		c.loadSector()
		return
	}

	c.dir = fromHost
	c.status = ata.StatusDRDY | ata.StatusDRQ
}

func (c *Controller) loadSector() {
	data, err := c.current.store.Read(c.xferLBA*ata.SectorSize, ata.SectorSize)
	if err != nil {
		c.abort(ata.ErrorUNC)
		return
	}

	copy(c.xferBuf[:], data)
	c.xferPos = 0
	c.status = ata.StatusDRDY | ata.StatusDRQ
}

func (c *Controller) readData() uint16 {
	if c.dir != toHost || c.status&ata.StatusDRQ == 0 {
		return 0
	}

	w := binary.LittleEndian.Uint16(c.xferBuf[c.xferPos:])
	c.xferPos += 2

	if c.xferPos == ata.SectorSize {
		c.sectorDone()
	}

	return w
}

func (c *Controller) writeData(w uint16) {
	if c.dir != fromHost || c.status&ata.StatusDRQ == 0 {
		return
	}

	binary.LittleEndian.PutUint16(c.xferBuf[c.xferPos:], w)
	c.xferPos += 2

	if c.xferPos < ata.SectorSize {
		return
	}

	err := c.current.store.Write(c.xferLBA*ata.SectorSize, c.xferBuf[:])
	if err != nil {
		c.abort(ata.ErrorUNC)
		return
	}

	c.sectorDone()
}

func (c *Controller) sectorDone() {
	switch c.dir {
	case toHost:
		if !c.identifying {
			c.stats.SectorsRead++
		}
	case fromHost:
		c.stats.SectorsWritten++
	}

	c.xferLBA++
	c.xferLeft--
	c.xferPos = 0

	if c.xferLeft == 0 {
		c.busy(c.complete)
		return
	}

	c.status = ata.StatusBSY
	if c.dir == toHost {
		c.busy(c.loadSector)
		return
	}

	c.busy(func() { c.status = ata.StatusDRDY | ata.StatusDRQ })
}

func (c *Controller) complete() {
	c.dir = noTransfer
	c.current = nil
	c.status = ata.StatusDRDY
	c.endTask()
}

func (c *Controller) abort(errorReg uint8) {
	c.stats.Aborts++
	c.dir = noTransfer
	c.current = nil
	c.errorReg = errorReg
	c.status = ata.StatusDRDY | ata.StatusERR
	c.endTask()
}

func (c *Controller) startTask(cmd Command) {
	if c.NumHooks() == 0 {
		return
	}

	c.taskID = sim.GetIDGenerator().Generate()
	tracing.StartTask(c.taskID, "", c,
		tracing.KindDevice, opcodeName(cmd.Opcode), cmd)
}

func (c *Controller) endTask() {
	if c.taskID == "" {
		return
	}

	tracing.EndTask(c.taskID, c)
	c.taskID = ""
}

func opcodeName(opcode uint8) string {
	switch opcode {
	case ata.CmdReadSectors:
		return "READ SECTORS"
	case ata.CmdReadSectorsExt:
		return "READ SECTORS EXT"
	case ata.CmdWriteSectors:
		return "WRITE SECTORS"
	case ata.CmdWriteSectorsExt:
		return "WRITE SECTORS EXT"
	case ata.CmdIdentifyDevice:
		return "IDENTIFY DEVICE"
	case ata.CmdFlushCache:
		return "FLUSH CACHE"
	case ata.CmdFlushCacheExt:
		return "FLUSH CACHE EXT"
	default:
		return fmt.Sprintf("0x%02x", opcode)
	}
}
