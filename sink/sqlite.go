// Package sink provides optional, swappable reference implementations of
// redshow.LogDataCallback for consumers who don't want to write their own
// log sink: a SQLite-backed sink grounded on the teacher's
// tracing.SQLiteTraceWriter, and a ClickHouse-backed sink grounded on its
// datarecording.FastClickHouseRecorder. Neither is imported by the core
// engine.
package sink

import (
	"database/sql"
	"fmt"
	"os"

	// Need to use SQLite connections.
	_ "github.com/mattn/go-sqlite3"

	"github.com/sarchlab/redshow"
)

// SQLite is a log-data sink that batches accepted accesses into a SQLite
// table and flushes them on a size threshold or on Close.
type SQLite struct {
	*sql.DB
	statement *sql.Stmt

	batchSize int
	buffer    []accessRow
}

type accessRow struct {
	sessionID string
	cpuThread uint32
	hostOpID  uint64
	cubinID   uint32
	kernelID  uint64
	threadID  uint64
	address   uint64
	pc        uint64
	value     uint64
	unitSize  uint32
	vecSize   uint32
	dataType  int
	direction int
}

// NewSQLite opens (or creates) a SQLite database at path and prepares the
// accesses table. The batch flushes automatically every 100000 rows, matching
// the teacher's tracing writer default.
func NewSQLite(path string) (*SQLite, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("sink: opening %s: %w", path, err)
	}

	s := &SQLite{DB: db, batchSize: 100000}

	if err := s.init(); err != nil {
		return nil, err
	}

	return s, nil
}

func (s *SQLite) init() error {
	if err := s.mustExecute(`
		CREATE TABLE IF NOT EXISTS accesses (
			session_id varchar(40),
			cpu_thread integer,
			host_op_id integer,
			cubin_id integer,
			kernel_id integer,
			thread_id integer,
			address integer,
			pc integer,
			value integer,
			unit_size integer,
			vec_size integer,
			data_type integer,
			direction integer
		);
	`); err != nil {
		return err
	}

	stmt, err := s.Prepare(`
		INSERT INTO accesses VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`)
	if err != nil {
		return fmt.Errorf("sink: preparing insert: %w", err)
	}

	s.statement = stmt

	return nil
}

func (s *SQLite) mustExecute(query string) error {
	_, err := s.Exec(query)
	if err != nil {
		fmt.Fprintf(os.Stderr, "sink: failed to execute: %s\n", query)
	}

	return err
}

// Callback returns the redshow.LogDataCallback that feeds this sink.
func (s *SQLite) Callback() redshow.LogDataCallback {
	return func(cubinID uint32, kernelID uint64, session redshow.AnalysisSession, accesses []redshow.AcceptedAccess) {
		for _, a := range accesses {
			s.buffer = append(s.buffer, accessRow{
				sessionID: session.ID,
				cpuThread: session.CPUThread,
				hostOpID:  session.HostOpID,
				cubinID:   cubinID,
				kernelID:  kernelID,
				threadID:  uint64(a.ThreadID.FlatBlockID)<<32 | uint64(a.ThreadID.FlatThreadID),
				address:   a.Address,
				pc:        a.PC,
				value:     a.Value,
				unitSize:  a.Kind.UnitSize,
				vecSize:   a.Kind.VecSize,
				dataType:  int(a.Kind.Type),
				direction: int(a.Direction),
			})
		}

		if len(s.buffer) >= s.batchSize {
			s.Flush()
		}
	}
}

// Flush writes every buffered row to the database in one transaction.
func (s *SQLite) Flush() {
	if len(s.buffer) == 0 {
		return
	}

	if err := s.mustExecute("BEGIN TRANSACTION"); err != nil {
		return
	}

	for _, row := range s.buffer {
		_, err := s.statement.Exec(
			row.sessionID, row.cpuThread, row.hostOpID, row.cubinID, row.kernelID,
			row.threadID, row.address, row.pc, row.value, row.unitSize, row.vecSize,
			row.dataType, row.direction,
		)
		if err != nil {
			fmt.Fprintf(os.Stderr, "sink: failed to insert row: %v\n", err)
		}
	}

	_ = s.mustExecute("COMMIT TRANSACTION")

	s.buffer = nil
}

// Close flushes remaining rows and closes the database connection.
func (s *SQLite) Close() error {
	s.Flush()

	if s.statement != nil {
		_ = s.statement.Close()
	}

	return s.DB.Close()
}
