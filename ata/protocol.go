// Package ata implements a Programmed I/O driver for one legacy ATA channel.
//
// The driver talks to the controller through an injected portio.Port. It
// programs the task-file registers, issues a command, polls the status
// register for DRQ and moves data one 16-bit word at a time. There is no DMA,
// no interrupt, and never more than one outstanding command per channel.
package ata

import "fmt"

// SectorSize is the number of bytes in a logical sector.
const SectorSize = 512

// WordsPerSector is the number of data-port transfers per sector.
const WordsPerSector = SectorSize / 2

// Legacy port assignments.
const (
	PrimaryBase      uint16 = 0x1f0
	PrimaryControl   uint16 = 0x3f6
	SecondaryBase    uint16 = 0x170
	SecondaryControl uint16 = 0x376
)

// Command block register offsets from the channel base.
const (
	RegData        uint16 = 0
	RegError       uint16 = 1 // read
	RegFeatures    uint16 = 1 // write
	RegSectorCount uint16 = 2
	RegLBALow      uint16 = 3
	RegLBAMid      uint16 = 4
	RegLBAHigh     uint16 = 5
	RegDriveHead   uint16 = 6
	RegStatus      uint16 = 7 // read
	RegCommand     uint16 = 7 // write
)

// Control block register offsets from the control base.
const (
	RegAltStatus     uint16 = 0 // read
	RegDeviceControl uint16 = 0 // write
)

// Status register bits.
const (
	StatusERR  uint8 = 0x01
	StatusDRQ  uint8 = 0x08
	StatusDF   uint8 = 0x20
	StatusDRDY uint8 = 0x40
	StatusBSY  uint8 = 0x80
)

// Error register bits.
const (
	ErrorAMNF uint8 = 0x01
	ErrorABRT uint8 = 0x04
	ErrorIDNF uint8 = 0x10
	ErrorUNC  uint8 = 0x40
	ErrorBBK  uint8 = 0x80
)

// Device control register bits.
const (
	ControlNIEN uint8 = 0x02
	ControlSRST uint8 = 0x04
)

// Drive/head register patterns.
const (
	DriveHeadLBA48 uint8 = 0x40
	DriveHeadLBA28 uint8 = 0xe0
	DriveHeadPlain uint8 = 0xa0
	DriveHeadSlave uint8 = 0x10
)

// Command opcodes.
const (
	CmdReadSectors     uint8 = 0x20
	CmdReadSectorsExt  uint8 = 0x24
	CmdWriteSectors    uint8 = 0x30
	CmdWriteSectorsExt uint8 = 0x34
	CmdFlushCache      uint8 = 0xe7
	CmdFlushCacheExt   uint8 = 0xea
	CmdIdentifyDevice  uint8 = 0xec
)

// Addressing limits.
const (
	MaxLBA48 uint64 = 1 << 48
	MaxLBA28 uint64 = 1 << 28

	maxCount28 = 256
)

// Drive selects one of the two device positions on a channel.
type Drive uint8

// Drive positions.
const (
	Master Drive = 0
	Slave  Drive = 1
)

func (d Drive) String() string {
	switch d {
	case Master:
		return "master"
	case Slave:
		return "slave"
	default:
		return fmt.Sprintf("drive(%d)", uint8(d))
	}
}

// ParseDrive converts "master"/"slave" or "0"/"1" into a Drive.
func ParseDrive(s string) (Drive, error) {
	switch s {
	case "master", "0":
		return Master, nil
	case "slave", "1":
		return Slave, nil
	default:
		return 0, fmt.Errorf("%w: %q", ErrInvalidDrive, s)
	}
}

// Addressing chooses between the 28-bit and 48-bit command sets.
type Addressing int

// Addressing modes. Auto uses 28-bit commands whenever the request fits.
const (
	LBA48 Addressing = iota
	LBA28
	Auto
)

func (a Addressing) String() string {
	switch a {
	case LBA48:
		return "lba48"
	case LBA28:
		return "lba28"
	case Auto:
		return "auto"
	default:
		return fmt.Sprintf("addressing(%d)", int(a))
	}
}

// ParseAddressing converts a name produced by Addressing.String back.
func ParseAddressing(s string) (Addressing, error) {
	switch s {
	case "lba48", "48":
		return LBA48, nil
	case "lba28", "28":
		return LBA28, nil
	case "auto":
		return Auto, nil
	default:
		return 0, fmt.Errorf("unknown addressing mode %q", s)
	}
}
