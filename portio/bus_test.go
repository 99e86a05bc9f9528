package portio

import (
	"bytes"
	"log"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
)

type registerFile struct {
	regs map[uint16]uint16
}

func newRegisterFile() *registerFile {
	return &registerFile{regs: make(map[uint16]uint16)}
}

func (f *registerFile) Read8(port uint16) uint8       { return uint8(f.regs[port]) }
func (f *registerFile) Write8(port uint16, v uint8)   { f.regs[port] = uint16(v) }
func (f *registerFile) Read16(port uint16) uint16     { return f.regs[port] }
func (f *registerFile) Write16(port uint16, v uint16) { f.regs[port] = v }

var _ = Describe("Bus", func() {
	var (
		bus *Bus
		dev *registerFile
	)

	BeforeEach(func() {
		bus = NewBus("Bus")
		dev = newRegisterFile()
		bus.Map(0x1f0, 0x1f7, dev)
	})

	It("should route accesses to the mapped device", func() {
		bus.Write8(0x1f2, 0x12)
		bus.Write16(0x1f0, 0xbeef)

		Expect(dev.regs[0x1f2]).To(Equal(uint16(0x12)))
		Expect(bus.Read8(0x1f2)).To(Equal(uint8(0x12)))
		Expect(bus.Read16(0x1f0)).To(Equal(uint16(0xbeef)))
	})

	It("should read a floating bus from unmapped ports", func() {
		Expect(bus.Read8(0x170)).To(Equal(uint8(0xff)))
		Expect(bus.Read16(0x170)).To(Equal(uint16(0xffff)))
	})

	It("should drop writes to unmapped ports", func() {
		bus.Write8(0x170, 1)

		Expect(dev.regs).To(BeEmpty())
	})

	It("should panic on overlapping ranges", func() {
		Expect(func() { bus.Map(0x1f7, 0x1f8, newRegisterFile()) }).To(Panic())
	})

	It("should panic on inverted ranges", func() {
		Expect(func() { bus.Map(0x20, 0x10, newRegisterFile()) }).To(Panic())
	})

	Context("with a recorder", func() {
		var rec *Recorder

		BeforeEach(func() {
			rec = NewRecorder(bus)
		})

		It("should record accesses in order", func() {
			bus.Write8(0x1f6, 0x40)
			bus.Read8(0x1f7)
			bus.Write16(0x1f0, 0x0102)

			Expect(rec.Accesses()).To(Equal([]Access{
				{Dir: Out, Size: 1, Port: 0x1f6, Value: 0x40},
				{Dir: In, Size: 1, Port: 0x1f7, Value: 0},
				{Dir: Out, Size: 2, Port: 0x1f0, Value: 0x0102},
			}))
			Expect(rec.Writes()).To(HaveLen(2))
			Expect(rec.WritesTo(0x1f6)).To(HaveLen(1))
			Expect(rec.CountReads(0x1f7, 1)).To(Equal(1))
		})

		It("should forget accesses on reset", func() {
			bus.Write8(0x1f6, 0x40)
			rec.Reset()

			Expect(rec.Accesses()).To(BeEmpty())
		})
	})

	Context("with an access logger", func() {
		It("should log accesses except skipped ports", func() {
			buf := new(bytes.Buffer)
			logger := log.New(buf, "", 0)
			bus.AcceptHook(NewAccessLogger(logger).SkipPort(0x1f0))

			bus.Write8(0x1f7, 0x24)
			bus.Write16(0x1f0, 0xffff)

			Expect(buf.String()).To(Equal("outb 0x1f7 0x24\n"))
		})
	})
})
