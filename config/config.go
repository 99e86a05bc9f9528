// Package config loads the settings of the atapio tools from the environment
// and from .env files.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/sarchlab/atapio/ata"
)

// Prefix is the prefix of every environment variable read by this package.
const Prefix = "ATAPIO_"

// Storage kinds.
const (
	StorageMemory = "memory"
	StorageFile   = "file"
	StorageSQLite = "sqlite"
)

// Config holds the settings of a channel and the simulated disk behind it.
type Config struct {
	Base       uint16
	Control    uint16
	Drive      ata.Drive
	Timeout    time.Duration
	Retries    int
	Addressing ata.Addressing

	// Storage kind and location of the simulated drives.
	Storage     string
	StoragePath string
	// Capacity of each simulated drive, in sectors.
	Capacity uint64
	Latency  int

	MonitorPort int
	TraceDB     string
	LogPorts    bool
}

// Default returns the settings used when nothing is configured.
func Default() Config {
	return Config{
		Base:       ata.PrimaryBase,
		Control:    ata.PrimaryControl,
		Drive:      ata.Master,
		Timeout:    5 * time.Second,
		Retries:    2,
		Addressing: ata.LBA48,
		Storage:    StorageMemory,
		Capacity:   1 << 21,
		Latency:    1,
	}
}

// Load reads the given .env files, or ".env" if none is given, into the
// process environment and parses the ATAPIO_ variables. Variables that are
// already set are not overridden. Missing files are skipped.
func Load(files ...string) (Config, error) {
	if len(files) == 0 {
		files = []string{".env"}
	}

	for _, f := range files {
		if _, err := os.Stat(f); errors.Is(err, os.ErrNotExist) {
			continue
		}

		if err := godotenv.Load(f); err != nil {
			return Config{}, fmt.Errorf("loading %s: %w", f, err)
		}
	}

	return FromEnv(os.LookupEnv)
}

// Parse reads settings from .env formatted text, without touching the process
// environment.
func Parse(text string) (Config, error) {
	env, err := godotenv.Unmarshal(text)
	if err != nil {
		return Config{}, err
	}

	return FromEnv(func(key string) (string, bool) {
		v, ok := env[key]
		return v, ok
	})
}

// FromEnv builds a Config from defaults overridden by the variables that
// lookup finds.
func FromEnv(lookup func(key string) (string, bool)) (Config, error) {
	c := Default()
	p := parser{lookup: lookup}

	if ch, ok := p.get("CHANNEL"); ok {
		switch strings.ToLower(ch) {
		case "primary":
			c.Base, c.Control = ata.PrimaryBase, ata.PrimaryControl
		case "secondary":
			c.Base, c.Control = ata.SecondaryBase, ata.SecondaryControl
		default:
			p.fail("CHANNEL", fmt.Errorf("unknown channel %q", ch))
		}
	}

	p.uint16("BASE", &c.Base)
	p.uint16("CONTROL", &c.Control)

	if s, ok := p.get("DRIVE"); ok {
		d, err := ata.ParseDrive(s)
		p.fail("DRIVE", err)
		c.Drive = d
	}

	if s, ok := p.get("TIMEOUT"); ok {
		d, err := time.ParseDuration(s)
		p.fail("TIMEOUT", err)
		c.Timeout = d
	}

	p.int("RETRIES", &c.Retries)

	if s, ok := p.get("ADDRESSING"); ok {
		a, err := ata.ParseAddressing(s)
		p.fail("ADDRESSING", err)
		c.Addressing = a
	}

	if s, ok := p.get("STORAGE"); ok {
		c.Storage = strings.ToLower(s)
	}

	if s, ok := p.get("STORAGE_PATH"); ok {
		c.StoragePath = s
	}

	if s, ok := p.get("CAPACITY"); ok {
		n, err := strconv.ParseUint(s, 0, 64)
		p.fail("CAPACITY", err)
		c.Capacity = n
	}

	p.int("LATENCY", &c.Latency)
	p.int("MONITOR_PORT", &c.MonitorPort)

	if s, ok := p.get("TRACE_DB"); ok {
		c.TraceDB = s
	}

	if s, ok := p.get("LOG_PORTS"); ok {
		b, err := strconv.ParseBool(s)
		p.fail("LOG_PORTS", err)
		c.LogPorts = b
	}

	if p.err != nil {
		return Config{}, p.err
	}

	return c, c.Validate()
}

// Validate checks that the settings can be used together.
func (c Config) Validate() error {
	switch c.Storage {
	case StorageMemory:
	case StorageFile, StorageSQLite:
		if c.StoragePath == "" {
			return fmt.Errorf("%sSTORAGE=%s needs %sSTORAGE_PATH",
				Prefix, c.Storage, Prefix)
		}
	default:
		return fmt.Errorf("unknown storage kind %q", c.Storage)
	}

	if c.Retries < 0 {
		return fmt.Errorf("%sRETRIES cannot be negative", Prefix)
	}

	if c.Latency < 0 {
		return fmt.Errorf("%sLATENCY cannot be negative", Prefix)
	}

	if c.Capacity == 0 || c.Capacity > ata.MaxLBA48 {
		return fmt.Errorf("%sCAPACITY must be between 1 and 2^48 sectors",
			Prefix)
	}

	return nil
}

type parser struct {
	lookup func(string) (string, bool)
	err    error
}

func (p *parser) get(name string) (string, bool) {
	v, ok := p.lookup(Prefix + name)
	if !ok || strings.TrimSpace(v) == "" {
		return "", false
	}

	return strings.TrimSpace(v), true
}

func (p *parser) fail(name string, err error) {
	if err != nil && p.err == nil {
		p.err = fmt.Errorf("%s%s: %w", Prefix, name, err)
	}
}

func (p *parser) uint16(name string, dst *uint16) {
	s, ok := p.get(name)
	if !ok {
		return
	}

	v, err := strconv.ParseUint(s, 0, 16)
	p.fail(name, err)
	*dst = uint16(v)
}

func (p *parser) int(name string, dst *int) {
	s, ok := p.get(name)
	if !ok {
		return
	}

	v, err := strconv.Atoi(s)
	p.fail(name, err)
	*dst = v
}
