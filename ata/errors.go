package ata

import (
	"errors"
	"fmt"
	"strings"
)

// Caller contract violations. They are reported before any port is touched.
var (
	ErrBufferLength  = errors.New("buffer length does not match sector count")
	ErrInvalidCount  = errors.New("invalid sector count")
	ErrLBAOutOfRange = errors.New("lba out of addressable range")
	ErrInvalidDrive  = errors.New("invalid drive")
)

// Sentinels matched by the typed errors below through errors.Is.
var (
	ErrTimeout = errors.New("ata timeout")
	ErrDevice  = errors.New("ata device error")
)

// A TimeoutError is returned when the device did not reach the expected state
// before the channel deadline.
type TimeoutError struct {
	Op     string
	Phase  string
	Status uint8
}

func (e *TimeoutError) Error() string {
	return fmt.Sprintf("%s: timeout waiting for %s (status 0x%02x %s)",
		e.Op, e.Phase, e.Status, decodeStatus(e.Status))
}

// Is makes errors.Is(err, ErrTimeout) hold.
func (e *TimeoutError) Is(target error) bool {
	return target == ErrTimeout
}

// A DeviceError is returned when the device reports ERR or DF.
type DeviceError struct {
	Op       string
	Status   uint8
	ErrorReg uint8
}

func (e *DeviceError) Error() string {
	return fmt.Sprintf("%s: device error (status 0x%02x %s, error 0x%02x %s)",
		e.Op, e.Status, decodeStatus(e.Status), e.ErrorReg, decodeError(e.ErrorReg))
}

// Is makes errors.Is(err, ErrDevice) hold.
func (e *DeviceError) Is(target error) bool {
	return target == ErrDevice
}

func isRetryable(err error) bool {
	return errors.Is(err, ErrTimeout) || errors.Is(err, ErrDevice)
}

func decodeStatus(s uint8) string {
	return decodeBits(s, []bitName{
		{StatusBSY, "BSY"},
		{StatusDRDY, "DRDY"},
		{StatusDF, "DF"},
		{StatusDRQ, "DRQ"},
		{StatusERR, "ERR"},
	})
}

func decodeError(e uint8) string {
	return decodeBits(e, []bitName{
		{ErrorBBK, "BBK"},
		{ErrorUNC, "UNC"},
		{ErrorIDNF, "IDNF"},
		{ErrorABRT, "ABRT"},
		{ErrorAMNF, "AMNF"},
	})
}

type bitName struct {
	bit  uint8
	name string
}

func decodeBits(v uint8, names []bitName) string {
	var set []string
	for _, n := range names {
		if v&n.bit != 0 {
			set = append(set, n.name)
		}
	}

	return "[" + strings.Join(set, "|") + "]"
}
