package ata

import (
	"encoding/binary"
	"strings"
)

// IdentifyData is the decoded result of IDENTIFY DEVICE.
type IdentifyData struct {
	Serial       string `json:"serial"`
	Firmware     string `json:"firmware"`
	Model        string `json:"model"`
	LBA28Sectors uint32 `json:"lba28_sectors"`
	LBA48        bool   `json:"lba48"`
	LBA48Sectors uint64 `json:"lba48_sectors"`

	Words [WordsPerSector]uint16 `json:"-"`
}

// Sectors returns the number of user addressable sectors.
func (d *IdentifyData) Sectors() uint64 {
	if d.LBA48 && d.LBA48Sectors != 0 {
		return d.LBA48Sectors
	}

	return uint64(d.LBA28Sectors)
}

// Capacity returns the capacity in bytes.
func (d *IdentifyData) Capacity() uint64 {
	return d.Sectors() * SectorSize
}

// Bytes returns the identify block as it came off the data port.
func (d *IdentifyData) Bytes() []byte {
	buf := make([]byte, SectorSize)
	for i, w := range d.Words {
		binary.LittleEndian.PutUint16(buf[2*i:], w)
	}

	return buf
}

// Word offsets in the identify block.
const (
	idSerial      = 10
	idSerialLen   = 10
	idFirmware    = 23
	idFirmwareLen = 4
	idModel       = 27
	idModelLen    = 20
	idLBA28       = 60
	idCmdSet2     = 83
	idLBA48       = 100

	cmdSet2LBA48 = 1 << 10
)

func parseIdentify(words [WordsPerSector]uint16) *IdentifyData {
	d := &IdentifyData{Words: words}

	d.Serial = identifyString(words[idSerial : idSerial+idSerialLen])
	d.Firmware = identifyString(words[idFirmware : idFirmware+idFirmwareLen])
	d.Model = identifyString(words[idModel : idModel+idModelLen])
	d.LBA28Sectors = uint32(words[idLBA28]) | uint32(words[idLBA28+1])<<16
	d.LBA48 = words[idCmdSet2]&cmdSet2LBA48 != 0

	if d.LBA48 {
		for i := 3; i >= 0; i-- {
			d.LBA48Sectors = d.LBA48Sectors<<16 | uint64(words[idLBA48+i])
		}
	}

	return d
}

// identifyString decodes an ATA string, which stores the first character of
// each pair in the high byte of the word.
func identifyString(words []uint16) string {
	b := make([]byte, 0, 2*len(words))
	for _, w := range words {
		b = append(b, byte(w>>8), byte(w))
	}

	return strings.TrimSpace(strings.TrimRight(string(b), "\x00"))
}

// Encode fills Words from the decoded fields, so that a device model can
// answer IDENTIFY DEVICE with it.
func (d *IdentifyData) Encode() [WordsPerSector]uint16 {
	w := d.Words

	encodeIdentifyString(w[idSerial:idSerial+idSerialLen], d.Serial)
	encodeIdentifyString(w[idFirmware:idFirmware+idFirmwareLen], d.Firmware)
	encodeIdentifyString(w[idModel:idModel+idModelLen], d.Model)

	w[idLBA28] = uint16(d.LBA28Sectors)
	w[idLBA28+1] = uint16(d.LBA28Sectors >> 16)

	w[idCmdSet2] &^= cmdSet2LBA48
	if d.LBA48 {
		w[idCmdSet2] |= cmdSet2LBA48
		for i := 0; i < 4; i++ {
			w[idLBA48+i] = uint16(d.LBA48Sectors >> (16 * i))
		}
	}

	return w
}

// encodeIdentifyString packs s into words the way identifyString expects,
// padding with spaces. Longer strings are cut.
func encodeIdentifyString(dst []uint16, s string) {
	b := []byte(s)
	for len(b) < 2*len(dst) {
		b = append(b, ' ')
	}

	for i := range dst {
		dst[i] = uint16(b[2*i])<<8 | uint16(b[2*i+1])
	}
}
