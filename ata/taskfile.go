package ata

import "encoding/binary"

// regWrite is one byte written to a command block register.
type regWrite struct {
	offset uint16
	value  uint8
}

// taskFile48 returns the register writes that precede a 48-bit command.
//
// The sector count and LBA registers are 2-deep FIFOs: the first write of a
// field lands in the "previous" slot once the second arrives. So the high
// halves go first and the low halves second.
func taskFile48(drive Drive, lba uint64, count uint16) []regWrite {
	var l [8]byte
	binary.LittleEndian.PutUint64(l[:], lba)

	var c [2]byte
	binary.LittleEndian.PutUint16(c[:], count)

	return []regWrite{
		{RegDriveHead, DriveHeadLBA48 | uint8(drive)<<4},
		{RegSectorCount, c[1]},
		{RegLBALow, l[3]},
		{RegLBAMid, l[4]},
		{RegLBAHigh, l[5]},
		{RegSectorCount, c[0]},
		{RegLBALow, l[0]},
		{RegLBAMid, l[1]},
		{RegLBAHigh, l[2]},
	}
}

// taskFile28 returns the register writes that precede a 28-bit command. LBA
// bits 24-27 ride in the low nibble of the drive/head register. A count of
// 256 is encoded as 0.
func taskFile28(drive Drive, lba uint64, count uint16) []regWrite {
	var l [8]byte
	binary.LittleEndian.PutUint64(l[:], lba)

	return []regWrite{
		{RegDriveHead, DriveHeadLBA28 | uint8(drive)<<4 | l[3]&0x0f},
		{RegSectorCount, uint8(count)},
		{RegLBALow, l[0]},
		{RegLBAMid, l[1]},
		{RegLBAHigh, l[2]},
	}
}

// fits28 tells if a request can be expressed with 28-bit commands.
func fits28(lba uint64, count uint16) bool {
	return count <= maxCount28 && lba+uint64(count) <= MaxLBA28
}

// checkRequest validates a transfer request against the addressing mode.
func checkRequest(drive Drive, lba uint64, count uint16, mode Addressing) error {
	if drive != Master && drive != Slave {
		return ErrInvalidDrive
	}

	if count == 0 {
		return ErrInvalidCount
	}

	if lba >= MaxLBA48 || lba+uint64(count) > MaxLBA48 {
		return ErrLBAOutOfRange
	}

	if mode == LBA28 {
		if count > maxCount28 {
			return ErrInvalidCount
		}

		if lba+uint64(count) > MaxLBA28 {
			return ErrLBAOutOfRange
		}
	}

	return nil
}
