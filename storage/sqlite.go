package storage

import (
	"database/sql"
	"errors"
	"fmt"
	"sync"

	// Need to use SQLite connections.
	_ "github.com/mattn/go-sqlite3"
)

const sqliteBlockSize = 512

// SQLite keeps the data as 512-byte blocks in an SQLite database. Blocks that
// were never written are not stored and read as zeros.
type SQLite struct {
	lock     sync.Mutex
	db       *sql.DB
	capacity uint64
}

// OpenSQLite opens or creates the database at path.
func OpenSQLite(path string, capacity uint64) (*SQLite, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, err
	}

	return NewSQLiteWithDB(db, capacity)
}

// NewSQLiteWithDB uses an already opened database.
func NewSQLiteWithDB(db *sql.DB, capacity uint64) (*SQLite, error) {
	_, err := db.Exec(`CREATE TABLE IF NOT EXISTS blocks (
	address INTEGER PRIMARY KEY,
	data BLOB NOT NULL
);`)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("creating blocks table: %w", err)
	}

	return &SQLite{db: db, capacity: capacity}, nil
}

// Capacity returns the size of the storage in bytes.
func (s *SQLite) Capacity() uint64 {
	return s.capacity
}

// NumStoredBlocks returns how many blocks are present in the database.
func (s *SQLite) NumStoredBlocks() (int, error) {
	var n int
	err := s.db.QueryRow("SELECT COUNT(*) FROM blocks").Scan(&n)

	return n, err
}

func (s *SQLite) Read(address uint64, length uint64) ([]byte, error) {
	if err := checkRange(s.capacity, address, length); err != nil {
		return nil, err
	}

	s.lock.Lock()
	defer s.lock.Unlock()

	res := make([]byte, length)
	err := splitUnits(sqliteBlockSize, address, length,
		func(base, inUnit, offset, n uint64) error {
			block, err := s.block(s.db, base)
			if err != nil {
				return err
			}

			copy(res[offset:offset+n], block[inUnit:inUnit+n])
			return nil
		})
	if err != nil {
		return nil, err
	}

	return res, nil
}

func (s *SQLite) Write(address uint64, data []byte) error {
	length := uint64(len(data))
	if err := checkRange(s.capacity, address, length); err != nil {
		return err
	}

	s.lock.Lock()
	defer s.lock.Unlock()

	tx, err := s.db.Begin()
	if err != nil {
		return err
	}

	err = splitUnits(sqliteBlockSize, address, length,
		func(base, inUnit, offset, n uint64) error {
			block, err := s.block(tx, base)
			if err != nil {
				return err
			}

			copy(block[inUnit:inUnit+n], data[offset:offset+n])

			_, err = tx.Exec(
				"INSERT OR REPLACE INTO blocks (address, data) VALUES (?, ?)",
				int64(base), block)
			return err
		})
	if err != nil {
		tx.Rollback()
		return err
	}

	return tx.Commit()
}

type queryRower interface {
	QueryRow(query string, args ...any) *sql.Row
}

func (s *SQLite) block(q queryRower, base uint64) ([]byte, error) {
	block := make([]byte, sqliteBlockSize)

	var stored []byte
	err := q.QueryRow("SELECT data FROM blocks WHERE address = ?", int64(base)).
		Scan(&stored)

	switch {
	case errors.Is(err, sql.ErrNoRows):
	case err != nil:
		return nil, err
	default:
		copy(block, stored)
	}

	return block, nil
}

// Flush does nothing. Every write is committed in its own transaction.
func (s *SQLite) Flush() error {
	return nil
}

// Close closes the database.
func (s *SQLite) Close() error {
	return s.db.Close()
}
