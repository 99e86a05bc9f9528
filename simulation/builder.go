package simulation

import (
	"fmt"
	"log"
	"os"

	"github.com/rs/xid"
	"github.com/sarchlab/atapio/ata"
	"github.com/sarchlab/atapio/config"
	"github.com/sarchlab/atapio/datarecording"
	"github.com/sarchlab/atapio/monitoring"
	"github.com/sarchlab/atapio/portio"
	"github.com/sarchlab/atapio/sim"
	"github.com/sarchlab/atapio/simdisk"
	"github.com/sarchlab/atapio/storage"
	"github.com/sarchlab/atapio/tracing"
)

// Builder can be used to build a simulation.
type Builder struct {
	cfg       config.Config
	logger    *log.Logger
	monitorOn bool
	monitorUp bool
	browser   bool
	traceLog  bool
}

// MakeBuilder creates a new builder with the default configuration.
func MakeBuilder() Builder {
	return Builder{
		cfg:       config.Default(),
		logger:    log.New(os.Stderr, "", log.Lmicroseconds),
		monitorOn: true,
	}
}

// WithConfig sets the configuration of the channel and the simulated disk.
func (b Builder) WithConfig(cfg config.Config) Builder {
	b.cfg = cfg
	return b
}

// WithLogger sets the logger used by port logging and trace logging.
func (b Builder) WithLogger(logger *log.Logger) Builder {
	b.logger = logger
	return b
}

// WithoutMonitoring keeps the monitoring server from starting even if a
// monitor port is configured.
func (b Builder) WithoutMonitoring() Builder {
	b.monitorOn = false
	b.monitorUp = false
	return b
}

// WithMonitoring starts the monitoring server even if no monitor port is
// configured. The server then listens on a random port.
func (b Builder) WithMonitoring() Builder {
	b.monitorOn = true
	b.monitorUp = true
	return b
}

// WithBrowser opens the monitor in a web browser once it is started.
func (b Builder) WithBrowser() Builder {
	b.browser = true
	return b
}

// WithTraceLog prints every channel task into the logger when it ends.
func (b Builder) WithTraceLog() Builder {
	b.traceLog = true
	return b
}

// Build builds the simulation. The name is used as the prefix of the
// component names.
func (b Builder) Build(name string) (*Simulation, error) {
	if err := b.cfg.Validate(); err != nil {
		return nil, err
	}

	s := &Simulation{
		id:            xid.New().String(),
		cfg:           b.cfg,
		clock:         sim.NewWallClock(),
		compNameIndex: make(map[string]int),
	}

	store, err := b.openStorage()
	if err != nil {
		return nil, err
	}
	s.store = store

	s.bus = portio.NewBus(name + ".Bus")
	s.device = b.buildDevice(name+".Disk", store)
	s.device.MapTo(s.bus)

	s.channel = ata.MakeBuilder().
		WithPort(s.bus).
		WithBase(b.cfg.Base).
		WithControl(b.cfg.Control).
		WithTimeout(b.cfg.Timeout).
		WithRetries(b.cfg.Retries).
		WithAddressing(b.cfg.Addressing).
		Build(name + ".Channel")

	s.RegisterComponent(s.bus)
	s.RegisterComponent(s.device)
	s.RegisterComponent(s.channel)

	b.attachHooks(s)

	if b.monitorUp || (b.monitorOn && b.cfg.MonitorPort != 0) {
		s.monitor = monitoring.NewMonitor()
		if b.cfg.MonitorPort != 0 {
			s.monitor.WithPortNumber(b.cfg.MonitorPort)
		}
		if b.browser {
			s.monitor.WithBrowser()
		}
		s.monitor.RegisterComponent(s.bus)
		s.monitor.RegisterComponent(s.device)
		s.monitor.RegisterChannel(s.channel)
		s.monitorPort = s.monitor.StartServer()
	}

	return s, nil
}

func (b Builder) openStorage() (storage.Storage, error) {
	capacity := b.cfg.Capacity * ata.SectorSize

	switch b.cfg.Storage {
	case config.StorageFile:
		return storage.OpenFile(b.cfg.StoragePath, capacity)
	case config.StorageSQLite:
		return storage.OpenSQLite(b.cfg.StoragePath, capacity)
	case config.StorageMemory:
		return storage.NewMemory(capacity), nil
	default:
		return nil, fmt.Errorf("unknown storage kind %q", b.cfg.Storage)
	}
}

func (b Builder) buildDevice(
	name string,
	store storage.Storage,
) *simdisk.Controller {
	db := simdisk.MakeBuilder().
		WithBase(b.cfg.Base).
		WithControl(b.cfg.Control).
		WithLatency(b.cfg.Latency)

	if b.cfg.Drive == ata.Slave {
		db = db.WithSlave(store)
	} else {
		db = db.WithMaster(store)
	}

	return db.Build(name)
}

func (b Builder) attachHooks(s *Simulation) {
	if b.cfg.LogPorts {
		logger := portio.NewAccessLogger(b.logger).
			SkipPort(b.cfg.Base + ata.RegData)
		s.bus.AcceptHook(logger)
	}

	if b.traceLog {
		tracing.CollectTrace(s.channel, tracing.NewLogTracer(b.logger, s.clock))
	}

	if b.cfg.TraceDB != "" {
		s.dataRecorder = datarecording.New(b.cfg.TraceDB)
		s.dbTracer = tracing.NewDBTracer(s.clock, s.dataRecorder)
		tracing.CollectTrace(s.channel, s.dbTracer)
		tracing.CollectTrace(s.device, s.dbTracer)
	}
}
