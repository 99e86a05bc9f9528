package simdisk

import (
	"bytes"
	"context"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/sarchlab/atapio/ata"
	"github.com/sarchlab/atapio/portio"
	"github.com/sarchlab/atapio/storage"
	"github.com/sarchlab/atapio/tracing"
)

const (
	base    = ata.PrimaryBase
	control = ata.PrimaryControl
)

func program48(c *Controller, slave bool, lba uint64, count uint16) {
	dh := uint8(0x40)
	if slave {
		dh |= ata.DriveHeadSlave
	}

	c.Write8(base+ata.RegDriveHead, dh)
	c.Write8(base+ata.RegSectorCount, uint8(count>>8))
	c.Write8(base+ata.RegLBALow, uint8(lba>>24))
	c.Write8(base+ata.RegLBAMid, uint8(lba>>32))
	c.Write8(base+ata.RegLBAHigh, uint8(lba>>40))
	c.Write8(base+ata.RegSectorCount, uint8(count))
	c.Write8(base+ata.RegLBALow, uint8(lba))
	c.Write8(base+ata.RegLBAMid, uint8(lba>>8))
	c.Write8(base+ata.RegLBAHigh, uint8(lba>>16))
}

// waitReady reads the status register until BSY clears and returns the
// status and the number of busy reads.
func waitReady(c *Controller) (status uint8, busyReads int) {
	for i := 0; i < 1000; i++ {
		status = c.Read8(base + ata.RegStatus)
		if status&ata.StatusBSY == 0 {
			return status, busyReads
		}
		busyReads++
	}

	Fail("device stayed busy")

	return status, busyReads
}

func readSector(c *Controller) []byte {
	buf := make([]byte, ata.SectorSize)
	for i := 0; i < ata.SectorSize; i += 2 {
		w := c.Read16(base + ata.RegData)
		buf[i] = uint8(w)
		buf[i+1] = uint8(w >> 8)
	}

	return buf
}

func writeSector(c *Controller, data []byte) {
	for i := 0; i < ata.SectorSize; i += 2 {
		c.Write16(base+ata.RegData, uint16(data[i])|uint16(data[i+1])<<8)
	}
}

var _ = Describe("Controller", func() {
	var (
		master *storage.Memory
		slave  *storage.Memory
		c      *Controller
	)

	BeforeEach(func() {
		master = storage.NewMemory(64 * ata.SectorSize)
		slave = storage.NewMemory(16 * ata.SectorSize)
		c = MakeBuilder().
			WithMaster(master).
			WithSlave(slave).
			Build("Disk")
	})

	It("should be mapped on a bus", func() {
		bus := portio.NewBus("Bus")
		c.MapTo(bus)

		Expect(bus.Read8(control)).To(Equal(ata.StatusDRDY))
		Expect(bus.Read8(base + 8)).To(Equal(uint8(0xff)))
		Expect(c.Storage(ata.Master)).To(BeIdenticalTo(master))
		Expect(c.Storage(ata.Drive(3))).To(BeNil())
	})

	It("should read sectors with a 48-bit command", func() {
		Expect(master.Write(5*ata.SectorSize, bytes.Repeat([]byte{0xaa}, 512))).
			To(Succeed())
		Expect(master.Write(6*ata.SectorSize, bytes.Repeat([]byte{0x55}, 512))).
			To(Succeed())

		program48(c, false, 5, 2)
		c.Write8(base+ata.RegCommand, ata.CmdReadSectorsExt)

		status, busy := waitReady(c)
		Expect(busy).To(Equal(0))
		Expect(status & ata.StatusDRQ).NotTo(BeZero())
		Expect(readSector(c)).To(Equal(bytes.Repeat([]byte{0xaa}, 512)))

		status, _ = waitReady(c)
		Expect(status & ata.StatusDRQ).NotTo(BeZero())
		Expect(readSector(c)).To(Equal(bytes.Repeat([]byte{0x55}, 512)))

		status, _ = waitReady(c)
		Expect(status).To(Equal(ata.StatusDRDY))
		Expect(c.Stats().SectorsRead).To(Equal(uint64(2)))
	})

	It("should write sectors with a 28-bit command", func() {
		data := bytes.Repeat([]byte{1, 2, 3, 4}, 128)

		c.Write8(base+ata.RegDriveHead, 0xe0|ata.DriveHeadSlave)
		c.Write8(base+ata.RegSectorCount, 1)
		c.Write8(base+ata.RegLBALow, 9)
		c.Write8(base+ata.RegLBAMid, 0)
		c.Write8(base+ata.RegLBAHigh, 0)
		c.Write8(base+ata.RegCommand, ata.CmdWriteSectors)

		status, _ := waitReady(c)
		Expect(status & ata.StatusDRQ).NotTo(BeZero())
		writeSector(c, data)

		status, _ = waitReady(c)
		Expect(status).To(Equal(ata.StatusDRDY))

		got, err := slave.Read(9*ata.SectorSize, ata.SectorSize)
		Expect(err).NotTo(HaveOccurred())
		Expect(got).To(Equal(data))
		Expect(c.Stats().SectorsWritten).To(Equal(uint64(1)))
	})

	It("should stay busy for the configured latency", func() {
		c = MakeBuilder().WithMaster(master).WithLatency(4).Build("Disk")

		program48(c, false, 0, 1)
		c.Write8(base+ata.RegCommand, ata.CmdReadSectorsExt)

		_, busy := waitReady(c)
		Expect(busy).To(Equal(3))
	})

	It("should never be busy with zero latency", func() {
		c = MakeBuilder().WithMaster(master).WithLatency(0).Build("Disk")

		program48(c, false, 0, 1)
		c.Write8(base+ata.RegCommand, ata.CmdReadSectorsExt)

		Expect(c.Read8(base + ata.RegStatus)).
			To(Equal(ata.StatusDRDY | ata.StatusDRQ))
	})

	It("should report IDNF beyond the capacity", func() {
		program48(c, false, 63, 2)
		c.Write8(base+ata.RegCommand, ata.CmdReadSectorsExt)

		status, _ := waitReady(c)
		Expect(status).To(Equal(ata.StatusDRDY | ata.StatusERR))
		Expect(c.Read8(base + ata.RegError)).To(Equal(ata.ErrorIDNF))
	})

	It("should abort unknown commands", func() {
		c.Write8(base+ata.RegDriveHead, 0xa0)
		c.Write8(base+ata.RegCommand, 0x99)

		status, _ := waitReady(c)
		Expect(status & ata.StatusERR).NotTo(BeZero())
		Expect(c.Read8(base + ata.RegError)).To(Equal(ata.ErrorABRT))
		Expect(c.Stats().Aborts).To(Equal(uint64(1)))
	})

	It("should abort 48-bit commands without LBA48 support", func() {
		c = MakeBuilder().WithMaster(master).WithoutLBA48().Build("Disk")

		program48(c, false, 0, 1)
		c.Write8(base+ata.RegCommand, ata.CmdReadSectorsExt)

		status, _ := waitReady(c)
		Expect(status & ata.StatusERR).NotTo(BeZero())
		Expect(c.Read8(base + ata.RegError)).To(Equal(ata.ErrorABRT))
	})

	It("should abort 28-bit commands in CHS mode", func() {
		c.Write8(base+ata.RegDriveHead, 0xa0)
		c.Write8(base+ata.RegSectorCount, 1)
		c.Write8(base+ata.RegCommand, ata.CmdReadSectors)

		status, _ := waitReady(c)
		Expect(status & ata.StatusERR).NotTo(BeZero())
	})

	It("should read zero status when no drive is selected", func() {
		c = MakeBuilder().WithMaster(master).Build("Disk")

		c.Write8(base+ata.RegDriveHead, 0xa0|ata.DriveHeadSlave)
		c.Write8(base+ata.RegCommand, ata.CmdIdentifyDevice)

		Expect(c.Read8(base + ata.RegStatus)).To(Equal(uint8(0)))
		Expect(c.Stats().Commands).To(Equal(uint64(0)))
	})

	It("should answer IDENTIFY DEVICE", func() {
		c.Write8(base+ata.RegDriveHead, 0xa0)
		c.Write8(base+ata.RegCommand, ata.CmdIdentifyDevice)

		status, _ := waitReady(c)
		Expect(status & ata.StatusDRQ).NotTo(BeZero())

		buf := readSector(c)
		// Word 83 bit 10 advertises the 48-bit command set.
		Expect(buf[83*2+1] & 0x04).NotTo(BeZero())
		// Words 100-103 hold the 48-bit capacity.
		Expect(buf[200]).To(Equal(uint8(64)))

		status, _ = waitReady(c)
		Expect(status).To(Equal(ata.StatusDRDY))
		Expect(c.Stats().SectorsRead).To(Equal(uint64(0)))
	})

	It("should flush", func() {
		c.Write8(base+ata.RegDriveHead, 0xa0)
		c.Write8(base+ata.RegCommand, ata.CmdFlushCacheExt)

		status, _ := waitReady(c)
		Expect(status).To(Equal(ata.StatusDRDY))
	})

	It("should inject errors", func() {
		c.InjectErrors(1, ata.ErrorUNC)

		program48(c, false, 0, 1)
		c.Write8(base+ata.RegCommand, ata.CmdReadSectorsExt)

		status, _ := waitReady(c)
		Expect(status & ata.StatusERR).NotTo(BeZero())
		Expect(c.Read8(base + ata.RegError)).To(Equal(ata.ErrorUNC))

		program48(c, false, 0, 1)
		c.Write8(base+ata.RegCommand, ata.CmdReadSectorsExt)

		status, _ = waitReady(c)
		Expect(status & ata.StatusDRQ).NotTo(BeZero())
	})

	It("should hang until a software reset", func() {
		c.InjectHangs(1)

		program48(c, false, 0, 1)
		c.Write8(base+ata.RegCommand, ata.CmdReadSectorsExt)

		for i := 0; i < 100; i++ {
			Expect(c.Read8(control) & ata.StatusBSY).NotTo(BeZero())
		}

		c.Write8(control, ata.ControlNIEN|ata.ControlSRST)
		Expect(c.Read8(control) & ata.StatusBSY).NotTo(BeZero())
		c.Write8(control, ata.ControlNIEN)

		status, _ := waitReady(c)
		Expect(status).To(Equal(ata.StatusDRDY))
		Expect(c.Read8(base + ata.RegSectorCount)).To(Equal(uint8(1)))
		Expect(c.Read8(base + ata.RegLBALow)).To(Equal(uint8(1)))
		Expect(c.Read8(base + ata.RegDriveHead)).To(Equal(uint8(0)))
		Expect(c.Stats().Resets).To(Equal(uint64(1)))
	})

	It("should show an absent drive busy while the channel resets", func() {
		c = MakeBuilder().WithSlave(slave).WithLatency(3).Build("Disk")

		c.Write8(control, ata.ControlNIEN|ata.ControlSRST)
		c.Write8(control, ata.ControlNIEN)

		status, busyReads := waitReady(c)
		Expect(status).To(Equal(uint8(0)))
		Expect(busyReads).To(Equal(2))

		c.Write8(base+ata.RegDriveHead, 0xa0|ata.DriveHeadSlave)
		Expect(c.Read8(base + ata.RegStatus)).To(Equal(ata.StatusDRDY))
	})

	It("should keep a slave-only channel usable after a reset", func() {
		c = MakeBuilder().WithSlave(slave).WithLatency(8).Build("Disk")
		bus := portio.NewBus("Bus")
		c.MapTo(bus)
		ch := ata.MakeBuilder().
			WithPort(bus).
			WithTimeout(100 * time.Millisecond).
			WithRetries(0).
			Build("Channel")
		ctx := context.Background()
		data := bytes.Repeat([]byte{0x3c}, ata.SectorSize)
		Expect(slave.Write(3*ata.SectorSize, data)).To(Succeed())

		_, err := ch.ReadSectors(ctx, ata.Slave, 0, 1)
		Expect(err).NotTo(HaveOccurred())

		Expect(ch.Reset(ctx)).To(Succeed())

		got, err := ch.ReadSectors(ctx, ata.Slave, 3, 1)
		Expect(err).NotTo(HaveOccurred())
		Expect(got).To(Equal(data))
		Expect(c.Stats().Resets).To(Equal(uint64(1)))
	})

	It("should ignore data port accesses without DRQ", func() {
		Expect(c.Read16(base + ata.RegData)).To(Equal(uint16(0)))
		c.Write16(base+ata.RegData, 0x1234)

		got, err := master.Read(0, 2)
		Expect(err).NotTo(HaveOccurred())
		Expect(got).To(Equal([]byte{0, 0}))
	})

	It("should trace device commands", func() {
		tracer := tracing.NewStepCountTracer(tracing.AllTasks)
		total := &taskCounter{}
		tracing.CollectTrace(c, tracer)
		tracing.CollectTrace(c, total)

		c.Write8(base+ata.RegDriveHead, 0xa0)
		c.Write8(base+ata.RegCommand, ata.CmdFlushCache)
		waitReady(c)

		Expect(total.started).To(Equal([]string{"FLUSH CACHE"}))
		Expect(total.ended).To(Equal(1))
	})
})

type taskCounter struct {
	started []string
	ended   int
}

func (t *taskCounter) StartTask(task tracing.Task) {
	t.started = append(t.started, task.What)
}

func (t *taskCounter) StepTask(tracing.Task) {}

func (t *taskCounter) EndTask(tracing.Task) {
	t.ended++
}
