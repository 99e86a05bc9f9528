// Package datarecording stores structured records, such as traced channel
// tasks or port accesses, in an SQLite database.
package datarecording

import (
	"database/sql"
	"fmt"
	"log"
	"os"
	"reflect"
	"strings"
	"sync"

	"github.com/fatih/structs"

	// Registers the sqlite3 driver.
	_ "github.com/mattn/go-sqlite3"
	"github.com/rs/xid"
	"github.com/tebeka/atexit"
)

// DataRecorder is a backend that can record and store data
type DataRecorder interface {
	// CreateTable creates a new table whose columns are the fields of the
	// sample entry.
	CreateTable(tableName string, sampleEntry any)

	// InsertData buffers an entry for a table that already exists.
	InsertData(tableName string, entry any)

	// ListTables returns a slice containing names of all tables
	ListTables() []string

	// Flush flushes all the buffered entries into database
	Flush()

	// Close flushes and closes the database.
	Close() error
}

// Entries are buffered in memory and written in one transaction once this
// many are pending.
const pendingLimit = 4096

// New creates a DataRecorder that writes into path + ".sqlite3". An empty
// path gets a generated name. It panics if the file already exists, so that
// two runs never mix their records.
func New(path string) DataRecorder {
	if path == "" {
		path = "atapio_recording_" + xid.New().String()
	}

	filename := path + ".sqlite3"
	if _, err := os.Stat(filename); err == nil {
		log.Panicf("recording %s already exists", filename)
	}

	db, err := sql.Open("sqlite3", filename)
	if err != nil {
		log.Panic(err)
	}

	return NewWithDB(db)
}

// NewWithDB creates a new DataRecorder with a given database.
func NewWithDB(db *sql.DB) DataRecorder {
	r := &sqliteRecorder{
		db:     db,
		byName: make(map[string]*schema),
	}

	atexit.Register(r.Flush)

	return r
}

// schema describes one table and holds its not-yet-written rows.
type schema struct {
	name    string
	rowType reflect.Type
	insert  string
	pending [][]any
}

func newSchema(name string, sample any) (*schema, error) {
	t := reflect.TypeOf(sample)
	if t == nil || t.Kind() != reflect.Struct {
		return nil, fmt.Errorf("table %s: sample entry %T is not a struct",
			name, sample)
	}

	fields := structs.Fields(sample)
	if len(fields) == 0 {
		return nil, fmt.Errorf("table %s: %s has no exported fields", name, t)
	}

	return &schema{
		name:    name,
		rowType: t,
		insert: fmt.Sprintf("INSERT INTO %s VALUES (%s)", name,
			strings.TrimSuffix(strings.Repeat("?, ", len(fields)), ", ")),
	}, nil
}

func (s *schema) createStatement() (string, error) {
	var cols []string

	for _, f := range structs.Fields(reflect.New(s.rowType).Elem().Interface()) {
		affinity, ok := columnAffinity(f.Kind())
		if !ok {
			return "", fmt.Errorf("table %s: field %s has unsupported kind %s",
				s.name, f.Name(), f.Kind())
		}

		cols = append(cols, f.Name()+" "+affinity)
	}

	return fmt.Sprintf("CREATE TABLE %s (\n\t%s\n);",
		s.name, strings.Join(cols, ",\n\t")), nil
}

func columnAffinity(k reflect.Kind) (string, bool) {
	switch k {
	case reflect.Bool,
		reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64,
		reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32,
		reflect.Uint64:
		return "INTEGER", true
	case reflect.Float32, reflect.Float64:
		return "REAL", true
	case reflect.String:
		return "TEXT", true
	}

	return "", false
}

type sqliteRecorder struct {
	mu      sync.Mutex
	db      *sql.DB
	byName  map[string]*schema
	order   []*schema
	pending int
	closed  bool
}

func (r *sqliteRecorder) CreateTable(tableName string, sampleEntry any) {
	s, err := newSchema(tableName, sampleEntry)
	if err != nil {
		log.Panic(err)
	}

	stmt, err := s.createStatement()
	if err != nil {
		log.Panic(err)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, dup := r.byName[tableName]; dup {
		log.Panicf("table %s already exists", tableName)
	}

	if _, err := r.db.Exec(stmt); err != nil {
		log.Panicf("create table %s: %v", tableName, err)
	}

	r.byName[tableName] = s
	r.order = append(r.order, s)
}

func (r *sqliteRecorder) InsertData(tableName string, entry any) {
	r.mu.Lock()
	defer r.mu.Unlock()

	s, ok := r.byName[tableName]
	if !ok {
		log.Panicf("table %s does not exist", tableName)
	}

	if t := reflect.TypeOf(entry); t != s.rowType {
		log.Panicf("table %s stores %s, got %s", tableName, s.rowType, t)
	}

	s.pending = append(s.pending, structs.Values(entry))
	r.pending++

	if r.pending >= pendingLimit {
		r.writePending()
	}
}

func (r *sqliteRecorder) ListTables() []string {
	r.mu.Lock()
	defer r.mu.Unlock()

	names := make([]string, 0, len(r.order))
	for _, s := range r.order {
		names = append(names, s.name)
	}

	return names
}

func (r *sqliteRecorder) Flush() {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.writePending()
}

func (r *sqliteRecorder) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.closed {
		return nil
	}

	r.writePending()
	r.closed = true

	return r.db.Close()
}

// writePending writes every buffered row in a single transaction. The caller
// holds the lock.
func (r *sqliteRecorder) writePending() {
	if r.pending == 0 || r.closed {
		return
	}

	tx, err := r.db.Begin()
	if err != nil {
		log.Panic(err)
	}

	for _, s := range r.order {
		if len(s.pending) == 0 {
			continue
		}

		if err := insertRows(tx, s); err != nil {
			_ = tx.Rollback()
			log.Panic(err)
		}

		s.pending = nil
	}

	if err := tx.Commit(); err != nil {
		log.Panic(err)
	}

	r.pending = 0
}

func insertRows(tx *sql.Tx, s *schema) error {
	stmt, err := tx.Prepare(s.insert)
	if err != nil {
		return fmt.Errorf("prepare insert into %s: %w", s.name, err)
	}
	defer stmt.Close()

	for _, row := range s.pending {
		if _, err := stmt.Exec(row...); err != nil {
			return fmt.Errorf("insert into %s: %w", s.name, err)
		}
	}

	return nil
}
