// Package script exposes the sector and port primitives of a channel to Lua
// scripts.
//
// Two global tables are installed. The ata table holds read_sectors,
// write_sectors, identify, flush, reset and stats. The port table holds inb,
// outb, inw and outw. Sector data travels as Lua strings. Device failures
// are returned as nil plus a message, misuse raises a Lua error.
package script

import (
	"context"
	"fmt"
	"io"
	"math"
	"os"
	"strings"

	"github.com/sarchlab/atapio/ata"
	"github.com/sarchlab/atapio/portio"
	lua "github.com/yuin/gopher-lua"
)

// Engine runs Lua code against a channel.
type Engine struct {
	L    *lua.LState
	ch   *ata.Channel
	port portio.Port
	out  io.Writer
}

// NewEngine creates an engine. ch and port may be nil, in which case the
// corresponding functions raise errors.
func NewEngine(ch *ata.Channel, port portio.Port) *Engine {
	e := &Engine{
		L:    lua.NewState(),
		ch:   ch,
		port: port,
		out:  os.Stdout,
	}

	e.L.SetContext(context.Background())
	e.install()

	return e
}

// WithOutput redirects the Lua print function.
func (e *Engine) WithOutput(w io.Writer) *Engine {
	e.out = w
	return e
}

// WithContext sets the context used by the driver calls. Cancelling it also
// stops the running script.
func (e *Engine) WithContext(ctx context.Context) *Engine {
	e.L.SetContext(ctx)
	return e
}

// DoString runs a chunk of Lua code.
func (e *Engine) DoString(src string) error {
	return e.L.DoString(src)
}

// DoFile runs a Lua file.
func (e *Engine) DoFile(path string) error {
	return e.L.DoFile(path)
}

// Close releases the Lua state.
func (e *Engine) Close() {
	e.L.Close()
}

func (e *Engine) ctx() context.Context {
	if ctx := e.L.Context(); ctx != nil {
		return ctx
	}

	return context.Background()
}

func (e *Engine) install() {
	e.L.SetGlobal("print", e.L.NewFunction(e.print))

	ataTable := e.L.NewTable()
	e.L.SetFuncs(ataTable, map[string]lua.LGFunction{
		"read_sectors":  e.readSectors,
		"write_sectors": e.writeSectors,
		"identify":      e.identify,
		"flush":         e.flush,
		"reset":         e.reset,
		"stats":         e.stats,
	})
	ataTable.RawSetString("SECTOR_SIZE", lua.LNumber(ata.SectorSize))
	e.L.SetGlobal("ata", ataTable)

	portTable := e.L.NewTable()
	e.L.SetFuncs(portTable, map[string]lua.LGFunction{
		"inb":  e.inb,
		"outb": e.outb,
		"inw":  e.inw,
		"outw": e.outw,
	})
	e.L.SetGlobal("port", portTable)
}

func (e *Engine) print(L *lua.LState) int {
	n := L.GetTop()
	parts := make([]string, 0, n)

	for i := 1; i <= n; i++ {
		parts = append(parts, L.ToStringMeta(L.Get(i)).String())
	}

	fmt.Fprintln(e.out, strings.Join(parts, "\t"))

	return 0
}

func (e *Engine) channel(L *lua.LState) *ata.Channel {
	if e.ch == nil {
		L.RaiseError("no channel is attached")
	}

	return e.ch
}

func (e *Engine) ioPort(L *lua.LState) portio.Port {
	if e.port == nil {
		L.RaiseError("no port is attached")
	}

	return e.port
}

func checkDrive(L *lua.LState, n int) ata.Drive {
	v := L.CheckAny(n)

	var s string
	switch v := v.(type) {
	case lua.LNumber:
		s = v.String()
	case lua.LString:
		s = string(v)
	default:
		L.ArgError(n, "drive expected")
	}

	d, err := ata.ParseDrive(s)
	if err != nil {
		L.ArgError(n, err.Error())
	}

	return d
}

func checkUint(L *lua.LState, n int, max float64) uint64 {
	v := float64(L.CheckNumber(n))
	if v < 0 || v > max || v != math.Trunc(v) {
		L.ArgError(n, fmt.Sprintf("integer between 0 and %.0f expected", max))
	}

	return uint64(v)
}

func pushError(L *lua.LState, err error) int {
	L.Push(lua.LNil)
	L.Push(lua.LString(err.Error()))

	return 2
}

// read_sectors(drive, lba, count) returns the data as a string.
func (e *Engine) readSectors(L *lua.LState) int {
	ch := e.channel(L)
	drive := checkDrive(L, 1)
	lba := checkUint(L, 2, 1<<53)
	count := checkUint(L, 3, math.MaxUint16)

	data, err := ch.ReadSectors(e.ctx(), drive, lba, uint16(count))
	if err != nil {
		return pushError(L, err)
	}

	L.Push(lua.LString(data))

	return 1
}

// write_sectors(drive, lba, data) writes len(data)/512 sectors.
func (e *Engine) writeSectors(L *lua.LState) int {
	ch := e.channel(L)
	drive := checkDrive(L, 1)
	lba := checkUint(L, 2, 1<<53)
	data := L.CheckString(3)

	count := len(data) / ata.SectorSize
	if count > math.MaxUint16 {
		L.ArgError(3, "too many sectors")
	}

	err := ch.WriteSectors(e.ctx(), drive, lba, uint16(count), []byte(data))
	if err != nil {
		return pushError(L, err)
	}

	L.Push(lua.LTrue)

	return 1
}

func (e *Engine) identify(L *lua.LState) int {
	ch := e.channel(L)
	drive := checkDrive(L, 1)

	id, err := ch.Identify(e.ctx(), drive)
	if err != nil {
		return pushError(L, err)
	}

	t := L.NewTable()
	t.RawSetString("model", lua.LString(id.Model))
	t.RawSetString("serial", lua.LString(id.Serial))
	t.RawSetString("firmware", lua.LString(id.Firmware))
	t.RawSetString("sectors", lua.LNumber(id.Sectors()))
	t.RawSetString("lba48", lua.LBool(id.LBA48))
	L.Push(t)

	return 1
}

func (e *Engine) flush(L *lua.LState) int {
	ch := e.channel(L)
	drive := checkDrive(L, 1)

	if err := ch.Flush(e.ctx(), drive); err != nil {
		return pushError(L, err)
	}

	L.Push(lua.LTrue)

	return 1
}

func (e *Engine) reset(L *lua.LState) int {
	ch := e.channel(L)

	if err := ch.Reset(e.ctx()); err != nil {
		return pushError(L, err)
	}

	L.Push(lua.LTrue)

	return 1
}

func (e *Engine) stats(L *lua.LState) int {
	s := e.channel(L).Stats()

	t := L.NewTable()
	for k, v := range map[string]uint64{
		"reads":           s.Reads,
		"writes":          s.Writes,
		"sectors_read":    s.SectorsRead,
		"sectors_written": s.SectorsWritten,
		"identifies":      s.Identifies,
		"flushes":         s.Flushes,
		"retries":         s.Retries,
		"timeouts":        s.Timeouts,
		"device_errors":   s.DeviceErrors,
		"resets":          s.Resets,
		"failures":        s.Failures,
	} {
		t.RawSetString(k, lua.LNumber(v))
	}
	L.Push(t)

	return 1
}

func (e *Engine) inb(L *lua.LState) int {
	p := e.ioPort(L)
	port := checkUint(L, 1, math.MaxUint16)

	L.Push(lua.LNumber(p.Read8(uint16(port))))

	return 1
}

func (e *Engine) outb(L *lua.LState) int {
	p := e.ioPort(L)
	port := checkUint(L, 1, math.MaxUint16)
	value := checkUint(L, 2, math.MaxUint8)

	p.Write8(uint16(port), uint8(value))

	return 0
}

func (e *Engine) inw(L *lua.LState) int {
	p := e.ioPort(L)
	port := checkUint(L, 1, math.MaxUint16)

	L.Push(lua.LNumber(p.Read16(uint16(port))))

	return 1
}

func (e *Engine) outw(L *lua.LState) int {
	p := e.ioPort(L)
	port := checkUint(L, 1, math.MaxUint16)
	value := checkUint(L, 2, math.MaxUint16)

	p.Write16(uint16(port), uint16(value))

	return 0
}
