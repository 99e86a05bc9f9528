package simdisk

import (
	"github.com/sarchlab/atapio/ata"
	"github.com/sarchlab/atapio/sim"
	"github.com/sarchlab/atapio/storage"
)

// Builder can build simulated channels.
type Builder struct {
	base     uint16
	control  uint16
	latency  int
	model    string
	firmware string
	noLBA48  bool
	stores   [2]storage.Storage
}

// MakeBuilder returns a Builder for a channel at the primary legacy ports
// with no drive attached.
func MakeBuilder() Builder {
	return Builder{
		base:     ata.PrimaryBase,
		control:  ata.PrimaryControl,
		latency:  1,
		model:    "ATAPIO SIMULATED DISK",
		firmware: "1.0",
	}
}

// WithBase sets the command block base port.
func (b Builder) WithBase(base uint16) Builder {
	b.base = base
	return b
}

// WithControl sets the control block port.
func (b Builder) WithControl(control uint16) Builder {
	b.control = control
	return b
}

// WithSecondaryPorts places the channel at the legacy secondary ports.
func (b Builder) WithSecondaryPorts() Builder {
	b.base = ata.SecondaryBase
	b.control = ata.SecondaryControl
	return b
}

// WithLatency sets how many status reads a busy period lasts. With zero
// latency the device is never observed busy.
func (b Builder) WithLatency(latency int) Builder {
	b.latency = latency
	return b
}

// WithModel sets the model string reported by IDENTIFY DEVICE.
func (b Builder) WithModel(model string) Builder {
	b.model = model
	return b
}

// WithFirmware sets the firmware revision reported by IDENTIFY DEVICE.
func (b Builder) WithFirmware(firmware string) Builder {
	b.firmware = firmware
	return b
}

// WithoutLBA48 makes the drives reject the 48-bit command set.
func (b Builder) WithoutLBA48() Builder {
	b.noLBA48 = true
	return b
}

// WithMaster attaches a drive backed by store at the master position.
func (b Builder) WithMaster(store storage.Storage) Builder {
	b.stores[ata.Master] = store
	return b
}

// WithSlave attaches a drive backed by store at the slave position.
func (b Builder) WithSlave(store storage.Storage) Builder {
	b.stores[ata.Slave] = store
	return b
}

// Build creates the channel.
func (b Builder) Build(name string) *Controller {
	if b.latency < 0 {
		panic("latency cannot be negative")
	}

	c := &Controller{
		HookableBase: sim.NewHookableBase(),
		name:         name,
		base:         b.base,
		control:      b.control,
		latency:      b.latency,
		status:       ata.StatusDRDY,
	}

	for i, store := range b.stores {
		if store == nil {
			continue
		}

		c.drives[i] = b.buildDrive(name, ata.Drive(i), store)
	}

	return c
}

func (b Builder) buildDrive(
	name string,
	pos ata.Drive,
	store storage.Storage,
) *drive {
	sectors := store.Capacity() / ata.SectorSize

	id := ata.IdentifyData{
		Serial:   name + "-" + pos.String(),
		Firmware: b.firmware,
		Model:    b.model,
		LBA48:    !b.noLBA48,
	}

	if sectors < ata.MaxLBA28 {
		id.LBA28Sectors = uint32(sectors)
	} else {
		id.LBA28Sectors = uint32(ata.MaxLBA28 - 1)
	}

	if id.LBA48 {
		id.LBA48Sectors = sectors
	}

	return &drive{
		store:    store,
		sectors:  sectors,
		lba48:    !b.noLBA48,
		identify: id.Encode(),
	}
}
