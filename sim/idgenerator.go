package sim

import (
	"log"
	"reflect"
	"strconv"
	"sync"
	"sync/atomic"

	"github.com/rs/xid"
)

// IDGenerator hands out task IDs.
type IDGenerator interface {
	Generate() string
}

var ids struct {
	sync.Mutex
	gen IDGenerator
}

// UseSequentialIDGenerator makes IDs count up from 1, so that traces of
// repeated runs line up. It is the default.
func UseSequentialIDGenerator() {
	setIDGenerator(new(sequentialIDs))
}

// UseParallelIDGenerator makes IDs globally unique, so that several
// processes can trace into one database.
func UseParallelIDGenerator() {
	setIDGenerator(xidIDs{})
}

func setIDGenerator(g IDGenerator) {
	ids.Lock()
	defer ids.Unlock()

	if ids.gen != nil && reflect.TypeOf(ids.gen) == reflect.TypeOf(g) {
		return
	}

	if ids.gen != nil {
		log.Panic("cannot change the ID generator after it is used")
	}

	ids.gen = g
}

// GetIDGenerator returns the ID generator of the process.
func GetIDGenerator() IDGenerator {
	ids.Lock()
	defer ids.Unlock()

	if ids.gen == nil {
		ids.gen = new(sequentialIDs)
	}

	return ids.gen
}

type sequentialIDs struct {
	last atomic.Uint64
}

func (g *sequentialIDs) Generate() string {
	return strconv.FormatUint(g.last.Add(1), 10)
}

type xidIDs struct{}

func (xidIDs) Generate() string {
	return xid.New().String()
}
