package datarecording

import (
	"context"
	"database/sql"
	"fmt"
	"reflect"
	"strings"
)

// QueryParams selects and pages the rows of a table.
type QueryParams struct {
	// Where is a condition without the WHERE keyword, e.g. "Kind = ?".
	Where string

	// Args fill the placeholders in Where.
	Args []any

	// Limit caps the number of rows returned. Zero means all rows.
	Limit int

	// Offset skips rows. It only applies when Limit is set.
	Offset int

	// OrderBy is an ordering without the ORDER BY keywords.
	OrderBy string
}

func (p QueryParams) whereClause() string {
	if p.Where == "" {
		return ""
	}

	return " WHERE " + p.Where
}

func (p QueryParams) selectStatement(table string) string {
	var b strings.Builder

	b.WriteString("SELECT * FROM " + table + p.whereClause())

	if p.OrderBy != "" {
		b.WriteString(" ORDER BY " + p.OrderBy)
	}

	if p.Limit > 0 {
		fmt.Fprintf(&b, " LIMIT %d OFFSET %d", p.Limit, p.Offset)
	}

	return b.String()
}

// DataReader reads the records written by a DataRecorder.
type DataReader interface {
	// MapTable associates a table with the struct type of its rows. It must
	// be called before the table is queried.
	MapTable(tableName string, sampleEntry any)

	// Query returns the matching rows, as pointers to the mapped struct
	// type, and the number of rows matching the where clause.
	Query(ctx context.Context, tableName string, params QueryParams) (
		results []any,
		totalCount int,
		err error,
	)

	// Close closes the reader
	Close() error
}

type sqliteReader struct {
	db   *sql.DB
	rows map[string]reflect.Type
}

// NewReader opens an SQLite file for reading.
func NewReader(dbFilename string) (DataReader, error) {
	db, err := sql.Open("sqlite3", dbFilename)
	if err != nil {
		return nil, fmt.Errorf("open recording %s: %w", dbFilename, err)
	}

	return NewReaderWithDB(db), nil
}

// NewReaderWithDB creates a new DataReader with a given database
func NewReaderWithDB(db *sql.DB) DataReader {
	return &sqliteReader{
		db:   db,
		rows: make(map[string]reflect.Type),
	}
}

func (r *sqliteReader) MapTable(tableName string, sampleEntry any) {
	r.rows[tableName] = reflect.TypeOf(sampleEntry)
}

func (r *sqliteReader) Close() error {
	return r.db.Close()
}

func (r *sqliteReader) Query(
	ctx context.Context,
	tableName string,
	params QueryParams,
) ([]any, int, error) {
	rowType, ok := r.rows[tableName]
	if !ok {
		return nil, 0, fmt.Errorf("table %s is not mapped", tableName)
	}

	var total int

	err := r.db.QueryRowContext(ctx,
		"SELECT COUNT(*) FROM "+tableName+params.whereClause(),
		params.Args...).Scan(&total)
	if err != nil {
		return nil, 0, fmt.Errorf("count %s: %w", tableName, err)
	}

	rows, err := r.db.QueryContext(ctx,
		params.selectStatement(tableName), params.Args...)
	if err != nil {
		return nil, 0, fmt.Errorf("query %s: %w", tableName, err)
	}
	defer rows.Close()

	results, err := decodeRows(rows, rowType)
	if err != nil {
		return nil, 0, fmt.Errorf("read %s: %w", tableName, err)
	}

	return results, total, nil
}

// decodeRows fills one new struct per row, matching columns to fields by
// name. Columns without a field are discarded.
func decodeRows(rows *sql.Rows, rowType reflect.Type) ([]any, error) {
	columns, err := rows.Columns()
	if err != nil {
		return nil, err
	}

	var results []any

	for rows.Next() {
		row := reflect.New(rowType)
		dest := make([]any, len(columns))

		for i, col := range columns {
			f := row.Elem().FieldByName(col)
			if f.IsValid() && f.CanSet() {
				dest[i] = f.Addr().Interface()
			} else {
				dest[i] = new(any)
			}
		}

		if err := rows.Scan(dest...); err != nil {
			return nil, err
		}

		results = append(results, row.Interface())
	}

	return results, rows.Err()
}
