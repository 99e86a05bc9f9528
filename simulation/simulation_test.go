package simulation

import (
	"bytes"
	"context"
	"log"
	"net/http"
	"path/filepath"
	"strconv"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"go.uber.org/mock/gomock"

	"github.com/sarchlab/atapio/ata"
	"github.com/sarchlab/atapio/config"
	"github.com/sarchlab/atapio/datarecording"
	"github.com/sarchlab/atapio/tracing"
)

var _ = Describe("Simulation", func() {
	var (
		mockCtrl *gomock.Controller
		cfg      config.Config
		s        *Simulation
	)

	BeforeEach(func() {
		mockCtrl = gomock.NewController(GinkgoT())
		cfg = config.Default()
		cfg.Capacity = 4096
		cfg.Timeout = time.Second
	})

	AfterEach(func() {
		mockCtrl.Finish()

		if s != nil {
			Expect(s.Terminate()).To(Succeed())
			s = nil
		}
	})

	build := func(b Builder) {
		var err error
		s, err = b.WithConfig(cfg).Build("Sim")
		Expect(err).NotTo(HaveOccurred())
	}

	It("should connect the channel to the disk", func() {
		build(MakeBuilder())

		data := bytes.Repeat([]byte{0x5a}, 2*ata.SectorSize)
		n, err := s.Disk().WriteAt(data, 3*ata.SectorSize)
		Expect(err).NotTo(HaveOccurred())
		Expect(n).To(Equal(len(data)))

		stored, err := s.Storage().Read(3*ata.SectorSize, uint64(len(data)))
		Expect(err).NotTo(HaveOccurred())
		Expect(stored).To(Equal(data))

		Expect(s.Device().Stats().SectorsWritten).To(Equal(uint64(2)))
		Expect(s.Channel().Stats().Writes).To(Equal(uint64(1)))
		Expect(s.GetMonitor()).To(BeNil())
		Expect(s.GetDataRecorder()).To(BeNil())
	})

	It("should register its components", func() {
		build(MakeBuilder())

		Expect(s.GetComponentByName("Sim.Bus")).To(BeIdenticalTo(s.Bus()))
		Expect(s.GetComponentByName("Sim.Disk")).To(BeIdenticalTo(s.Device()))
		Expect(s.GetComponentByName("Sim.Channel")).
			To(BeIdenticalTo(s.Channel()))
		Expect(s.GetComponentByName("Sim.Nothing")).To(BeNil())
		Expect(s.Components()).To(HaveLen(3))
	})

	It("should register a component", func() {
		build(MakeBuilder())

		comp := NewMockNamed(mockCtrl)
		comp.EXPECT().Name().Return("comp").AnyTimes()

		s.RegisterComponent(comp)

		Expect(s.GetComponentByName("comp")).To(Equal(comp))
		Expect(func() { s.RegisterComponent(comp) }).To(Panic())
	})

	It("should put the disk on the slave position", func() {
		cfg.Drive = ata.Slave
		build(MakeBuilder())

		Expect(s.Device().Storage(ata.Slave)).NotTo(BeNil())
		Expect(s.Device().Storage(ata.Master)).To(BeNil())

		id, err := s.Channel().Identify(context.Background(), ata.Slave)
		Expect(err).NotTo(HaveOccurred())
		Expect(id.Sectors()).To(Equal(uint64(4096)))
	})

	It("should use the secondary channel", func() {
		cfg.Base, cfg.Control = ata.SecondaryBase, ata.SecondaryControl
		build(MakeBuilder())

		Expect(s.Device().Base()).To(Equal(uint16(ata.SecondaryBase)))
		Expect(s.Channel().Base()).To(Equal(uint16(ata.SecondaryBase)))
		Expect(s.Channel().Flush(context.Background(), ata.Master)).
			To(Succeed())
	})

	It("should reject an invalid configuration", func() {
		cfg.Storage = config.StorageFile

		_, err := MakeBuilder().WithConfig(cfg).Build("Sim")

		Expect(err).To(HaveOccurred())
	})

	It("should keep data in a file", func() {
		cfg.Storage = config.StorageFile
		cfg.StoragePath = filepath.Join(GinkgoT().TempDir(), "disk.img")
		build(MakeBuilder())

		data := bytes.Repeat([]byte{1, 2, 3, 4}, ata.SectorSize/4)
		_, err := s.Disk().WriteAt(data, 0)
		Expect(err).NotTo(HaveOccurred())
		Expect(s.Terminate()).To(Succeed())

		s, err = MakeBuilder().WithConfig(cfg).Build("Sim")
		Expect(err).NotTo(HaveOccurred())

		got := make([]byte, len(data))
		_, err = s.Disk().ReadAt(got, 0)
		Expect(err).NotTo(HaveOccurred())
		Expect(got).To(Equal(data))
	})

	It("should keep data in sqlite", func() {
		cfg.Storage = config.StorageSQLite
		cfg.StoragePath = filepath.Join(GinkgoT().TempDir(), "disk.sqlite3")
		build(MakeBuilder())

		data := bytes.Repeat([]byte{9}, ata.SectorSize)
		_, err := s.Disk().WriteAt(data, 100*ata.SectorSize)
		Expect(err).NotTo(HaveOccurred())

		got := make([]byte, len(data))
		_, err = s.Disk().ReadAt(got, 100*ata.SectorSize)
		Expect(err).NotTo(HaveOccurred())
		Expect(got).To(Equal(data))
	})

	It("should log port accesses", func() {
		buf := new(bytes.Buffer)
		cfg.LogPorts = true
		build(MakeBuilder().WithLogger(log.New(buf, "", 0)))

		Expect(s.Channel().Flush(context.Background(), ata.Master)).
			To(Succeed())

		Expect(buf.String()).To(ContainSubstring("outb 0x1f7 0xea"))
		Expect(buf.String()).NotTo(ContainSubstring("0x1f0"))
	})

	It("should log traced tasks", func() {
		buf := new(bytes.Buffer)
		build(MakeBuilder().WithLogger(log.New(buf, "", 0)).WithTraceLog())

		_, err := s.Channel().ReadSectors(context.Background(), ata.Master, 0, 1)
		Expect(err).NotTo(HaveOccurred())

		Expect(buf.String()).To(ContainSubstring("read"))
	})

	It("should record traces into a database", func() {
		path := filepath.Join(GinkgoT().TempDir(), "trace")
		cfg.TraceDB = path
		build(MakeBuilder())

		_, err := s.Channel().ReadSectors(context.Background(), ata.Master, 0, 2)
		Expect(err).NotTo(HaveOccurred())
		Expect(s.GetDataRecorder().ListTables()).
			To(ContainElements(tracing.TaskTable, tracing.StepTable))

		Expect(s.Terminate()).To(Succeed())
		s = nil

		reader, err := datarecording.NewReader(path + ".sqlite3")
		Expect(err).NotTo(HaveOccurred())
		defer reader.Close()

		reader.MapTable(tracing.TaskTable, tracing.TaskEntry{})
		tasks, total, err := reader.Query(context.Background(),
			tracing.TaskTable, datarecording.QueryParams{
				Where: "Kind = ?",
				Args:  []any{"device"},
			})
		Expect(err).NotTo(HaveOccurred())
		Expect(total).To(Equal(1))
		Expect(tasks[0].(*tracing.TaskEntry).Location).To(Equal("Sim.Disk"))
	})

	It("should start the monitor", func() {
		cfg.MonitorPort = 1
		build(MakeBuilder())

		Expect(s.GetMonitor()).NotTo(BeNil())
		Expect(s.MonitorPort()).To(BeNumerically(">", 0))

		url := "http://localhost:" + strconv.Itoa(s.MonitorPort()) +
			"/api/channels"
		Eventually(func() (int, error) {
			rsp, err := http.Get(url)
			if err != nil {
				return 0, err
			}
			defer rsp.Body.Close()

			return rsp.StatusCode, nil
		}).Should(Equal(http.StatusOK))
	})

	It("should not start the monitor without monitoring", func() {
		cfg.MonitorPort = 1
		build(MakeBuilder().WithoutMonitoring())

		Expect(s.GetMonitor()).To(BeNil())
		Expect(s.MonitorPort()).To(Equal(0))
	})

	It("should start the monitor on request", func() {
		build(MakeBuilder().WithMonitoring())

		Expect(s.GetMonitor()).NotTo(BeNil())
		Expect(s.MonitorPort()).To(BeNumerically(">", 0))
	})
})
