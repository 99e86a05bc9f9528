// Package simulation puts a channel, a simulated disk, and the optional
// tracing and monitoring services together.
package simulation

import (
	"errors"

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

// A Simulation owns a channel wired to a simulated disk over a port bus.
type Simulation struct {
	id    string
	cfg   config.Config
	clock *sim.WallClock

	store   storage.Storage
	bus     *portio.Bus
	device  *simdisk.Controller
	channel *ata.Channel

	dataRecorder datarecording.DataRecorder
	dbTracer     *tracing.DBTracer
	monitor      *monitoring.Monitor
	monitorPort  int

	components    []sim.Named
	compNameIndex map[string]int
}

// ID returns the unique ID of the simulation.
func (s *Simulation) ID() string {
	return s.id
}

// Config returns the configuration the simulation was built with.
func (s *Simulation) Config() config.Config {
	return s.cfg
}

// Clock returns the clock that timestamps traces.
func (s *Simulation) Clock() sim.TimeTeller {
	return s.clock
}

// Bus returns the port bus. It is also the port the channel talks through.
func (s *Simulation) Bus() *portio.Bus {
	return s.bus
}

// Device returns the simulated disk controller.
func (s *Simulation) Device() *simdisk.Controller {
	return s.device
}

// Channel returns the driver channel.
func (s *Simulation) Channel() *ata.Channel {
	return s.channel
}

// Storage returns the backing store of the configured drive.
func (s *Simulation) Storage() storage.Storage {
	return s.store
}

// Disk returns the configured drive as an io.ReaderAt and io.WriterAt.
func (s *Simulation) Disk() *ata.Disk {
	return ata.NewDisk(s.channel, s.cfg.Drive).WithCapacity(s.cfg.Capacity)
}

// GetDataRecorder returns the trace recorder, or nil if tracing into a
// database is not configured.
func (s *Simulation) GetDataRecorder() datarecording.DataRecorder {
	return s.dataRecorder
}

// GetMonitor returns the monitor, or nil if it is not running.
func (s *Simulation) GetMonitor() *monitoring.Monitor {
	return s.monitor
}

// MonitorPort returns the port the monitor listens on, or 0.
func (s *Simulation) MonitorPort() int {
	return s.monitorPort
}

// RegisterComponent registers a component with the simulation.
func (s *Simulation) RegisterComponent(c sim.Named) {
	compName := c.Name()
	if _, found := s.compNameIndex[compName]; found {
		panic("component " + compName + " already registered")
	}

	s.components = append(s.components, c)
	s.compNameIndex[compName] = len(s.components) - 1
}

// GetComponentByName returns the component with the given name, or nil.
func (s *Simulation) GetComponentByName(name string) sim.Named {
	i, found := s.compNameIndex[name]
	if !found {
		return nil
	}

	return s.components[i]
}

// Components returns all the registered components.
func (s *Simulation) Components() []sim.Named {
	return append([]sim.Named(nil), s.components...)
}

// Terminate stops the services and closes the storage.
func (s *Simulation) Terminate() error {
	var errs []error

	if s.monitor != nil {
		errs = append(errs, s.monitor.StopServer())
	}

	if s.dbTracer != nil {
		s.dbTracer.Terminate()
		errs = append(errs, s.dataRecorder.Close())
	}

	errs = append(errs, s.store.Flush(), s.store.Close())

	return errors.Join(errs...)
}
