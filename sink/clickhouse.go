package sink

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/ClickHouse/clickhouse-go/v2"

	"github.com/sarchlab/redshow"
)

// ClickHouse is a log-data sink that batches accepted accesses and sends
// them to a ClickHouse server with the native protocol, type-specific batch
// handlers (no reflection), matching the teacher's FastClickHouseRecorder.
type ClickHouse struct {
	conn clickhouse.Conn

	mu        sync.Mutex
	batch     []accessRow
	batchSize int
}

// NewClickHouse opens a connection to a ClickHouse server and creates the
// accesses table if it does not already exist.
func NewClickHouse(host string, port int, database, username, password string) (*ClickHouse, error) {
	conn, err := clickhouse.Open(&clickhouse.Options{
		Addr: []string{fmt.Sprintf("%s:%d", host, port)},
		Auth: clickhouse.Auth{
			Database: database,
			Username: username,
			Password: password,
		},
		DialTimeout:     time.Second * 30,
		MaxOpenConns:    5,
		MaxIdleConns:    5,
		ConnMaxLifetime: time.Hour,
	})
	if err != nil {
		return nil, fmt.Errorf("sink: connecting to clickhouse: %w", err)
	}

	if err := conn.Ping(context.Background()); err != nil {
		return nil, fmt.Errorf("sink: pinging clickhouse: %w", err)
	}

	r := &ClickHouse{conn: conn, batchSize: 100000}

	if err := r.createTable(); err != nil {
		return nil, err
	}

	return r, nil
}

func (r *ClickHouse) createTable() error {
	return r.conn.Exec(context.Background(), `
		CREATE TABLE IF NOT EXISTS accesses (
			session_id String,
			cpu_thread UInt32,
			host_op_id UInt64,
			cubin_id UInt32,
			kernel_id UInt64,
			thread_id UInt64,
			address UInt64,
			pc UInt64,
			value UInt64,
			unit_size UInt32,
			vec_size UInt32,
			data_type Int32,
			direction Int32
		) ENGINE = MergeTree()
		ORDER BY (cubin_id, kernel_id, pc)
	`)
}

// Callback returns the redshow.LogDataCallback that feeds this sink.
func (r *ClickHouse) Callback() redshow.LogDataCallback {
	return func(cubinID uint32, kernelID uint64, session redshow.AnalysisSession, accesses []redshow.AcceptedAccess) {
		r.mu.Lock()
		defer r.mu.Unlock()

		for _, a := range accesses {
			r.batch = append(r.batch, accessRow{
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

		if len(r.batch) >= r.batchSize {
			r.flushLocked()
		}
	}
}

// Flush sends every buffered row to ClickHouse in one batch insert.
func (r *ClickHouse) Flush() {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.flushLocked()
}

func (r *ClickHouse) flushLocked() {
	if len(r.batch) == 0 {
		return
	}

	ctx := context.Background()

	batch, err := r.conn.PrepareBatch(ctx, "INSERT INTO accesses")
	if err != nil {
		return
	}

	for _, row := range r.batch {
		_ = batch.Append(
			row.sessionID, row.cpuThread, row.hostOpID, row.cubinID, row.kernelID,
			row.threadID, row.address, row.pc, row.value, row.unitSize, row.vecSize,
			row.dataType, row.direction,
		)
	}

	_ = batch.Send()

	r.batch = r.batch[:0]
}

// Close flushes remaining rows and closes the connection.
func (r *ClickHouse) Close() error {
	r.Flush()

	return r.conn.Close()
}
