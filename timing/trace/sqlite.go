package trace

import (
	"database/sql"
	"fmt"
	"os"

	// SQLite driver.
	_ "github.com/mattn/go-sqlite3"

	"github.com/rs/xid"
	"github.com/tebeka/atexit"
)

// SQLiteWriter stores records in the trace table of a SQLite database.
// Records are inserted in batches.
type SQLiteWriter struct {
	db        *sql.DB
	statement *sql.Stmt

	path      string
	pending   []Record
	batchSize int
}

// NewSQLiteWriter creates a writer for the database at path. An empty path
// picks a unique file name in the working directory.
func NewSQLiteWriter(path string) *SQLiteWriter {
	if path == "" {
		path = "coresim_trace_" + xid.New().String() + ".sqlite3"
	}

	return &SQLiteWriter{path: path, batchSize: 10000}
}

// Path returns the database file.
func (w *SQLiteWriter) Path() string {
	return w.path
}

// Init creates the database. It refuses to overwrite an existing file. The
// buffered records are flushed when the program exits through atexit.
func (w *SQLiteWriter) Init() error {
	if _, err := os.Stat(w.path); err == nil {
		return fmt.Errorf("trace database %s already exists", w.path)
	}

	db, err := sql.Open("sqlite3", w.path)
	if err != nil {
		return fmt.Errorf("failed to open trace database: %w", err)
	}

	_, err = db.Exec(`
		create table trace
		(
			id       varchar(32)  not null,
			cycle    integer      not null,
			kind     varchar(16)  not null,
			location varchar(100) not null,
			pc       integer      not null,
			instr    integer      not null,
			detail   varchar(200) not null
		);
		create index trace_cycle_index on trace (cycle);
		create index trace_kind_index on trace (kind);
	`)
	if err != nil {
		_ = db.Close()
		return fmt.Errorf("failed to create trace table: %w", err)
	}

	statement, err := db.Prepare(`INSERT INTO trace VALUES (?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		_ = db.Close()
		return fmt.Errorf("failed to prepare insert: %w", err)
	}

	w.db = db
	w.statement = statement

	atexit.Register(func() {
		if err := w.Close(); err != nil {
			fmt.Fprintln(os.Stderr, err)
		}
	})

	return nil
}

// Write buffers a record.
func (w *SQLiteWriter) Write(r Record) error {
	w.pending = append(w.pending, r)
	if len(w.pending) >= w.batchSize {
		return w.Flush()
	}

	return nil
}

// Flush inserts the buffered records in one transaction.
func (w *SQLiteWriter) Flush() error {
	if len(w.pending) == 0 {
		return nil
	}

	tx, err := w.db.Begin()
	if err != nil {
		return err
	}

	stmt := tx.Stmt(w.statement)
	for _, r := range w.pending {
		_, err := stmt.Exec(r.ID, int64(r.Cycle), string(r.Kind), r.Where,
			int64(r.PC), int64(r.Instr), r.Detail)
		if err != nil {
			_ = tx.Rollback()
			return fmt.Errorf("failed to insert record %s: %w", r.ID, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return err
	}

	w.pending = nil

	return nil
}

// Close flushes and closes the database. Closing twice is harmless.
func (w *SQLiteWriter) Close() error {
	if w.db == nil {
		return nil
	}

	if err := w.Flush(); err != nil {
		return err
	}

	err := w.db.Close()
	w.db = nil

	return err
}

// ReadSQLite returns the records in a trace database in cycle order.
func ReadSQLite(path string) ([]Record, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, err
	}
	defer db.Close()

	rows, err := db.Query(`
		SELECT id, cycle, kind, location, pc, instr, detail
		FROM trace ORDER BY cycle, rowid`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var records []Record

	for rows.Next() {
		var (
			r                Record
			kind             string
			cycle, pc, instr int64
		)

		err := rows.Scan(&r.ID, &cycle, &kind, &r.Where, &pc, &instr, &r.Detail)
		if err != nil {
			return nil, err
		}

		r.Kind = Kind(kind)
		r.Cycle = uint64(cycle)
		r.PC = uint64(pc)
		r.Instr = uint32(instr)
		records = append(records, r)
	}

	return records, rows.Err()
}
