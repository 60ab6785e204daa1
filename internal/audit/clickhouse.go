package audit

import (
	"context"
	"crypto/tls"
	"time"

	"github.com/ClickHouse/clickhouse-go/v2"
	"github.com/ClickHouse/clickhouse-go/v2/lib/driver"
	"go.uber.org/zap"
)

const (
	bufferSize    = 10_000
	flushInterval = 100 * time.Millisecond
	flushBatch    = 1000
	drainTimeout  = 2 * time.Second
)

// ClickHouseMirror replicates audit records to ClickHouse asynchronously.
// Write() is non-blocking: records are buffered and batch-inserted in a
// background goroutine, and dropped when the buffer is full. The JSONL file
// remains the authoritative audit artifact.
type ClickHouseMirror struct {
	conn    driver.Conn
	buffer  chan Record
	done    chan struct{}
	flushed chan struct{} // closed by flushLoop when it returns
	logger  *zap.Logger
}

// NewClickHouseMirror connects and starts the background flush loop.
func NewClickHouseMirror(dsn string, logger *zap.Logger) (*ClickHouseMirror, error) {
	opts, err := clickhouse.ParseDSN(dsn)
	if err != nil {
		return nil, err
	}
	if opts.TLS == nil {
		opts.TLS = &tls.Config{}
	}

	conn, err := clickhouse.Open(opts)
	if err != nil {
		return nil, err
	}
	if err := conn.Ping(context.Background()); err != nil {
		return nil, err
	}

	m := &ClickHouseMirror{
		conn:    conn,
		buffer:  make(chan Record, bufferSize),
		done:    make(chan struct{}),
		flushed: make(chan struct{}),
		logger:  logger,
	}
	go m.flushLoop()
	return m, nil
}

// Write queues a record for async insertion. Drops the record if the buffer
// is full.
func (m *ClickHouseMirror) Write(rec Record) {
	select {
	case m.buffer <- rec:
	default:
		m.logger.Warn("clickhouse audit buffer full, dropping record",
			zap.String("trace_id", rec.TraceID),
		)
	}
}

// Close signals the flush loop to drain remaining records and waits for it.
// Safe to call once.
func (m *ClickHouseMirror) Close() {
	close(m.done)
	<-m.flushed
}

func (m *ClickHouseMirror) flushLoop() {
	defer close(m.flushed)

	ticker := time.NewTicker(flushInterval)
	defer ticker.Stop()

	batch := make([]Record, 0, flushBatch)

	for {
		select {
		case rec := <-m.buffer:
			batch = append(batch, rec)
			if len(batch) >= flushBatch {
				m.flush(batch)
				batch = batch[:0]
			}
		case <-ticker.C:
			if len(batch) > 0 {
				m.flush(batch)
				batch = batch[:0]
			}
		case <-m.done:
			drainCtx, cancel := context.WithTimeout(context.Background(), drainTimeout)
			defer cancel()
		drainLoop:
			for {
				select {
				case rec := <-m.buffer:
					batch = append(batch, rec)
				case <-drainCtx.Done():
					break drainLoop
				default:
					break drainLoop
				}
			}
			if len(batch) > 0 {
				m.flush(batch)
			}
			return
		}
	}
}

func (m *ClickHouseMirror) flush(records []Record) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	batch, err := m.conn.PrepareBatch(ctx, `
		INSERT INTO agent_audit (ts, trace_id, action, action_key, report_path, event)
	`)
	if err != nil {
		m.logger.Error("clickhouse prepare batch failed", zap.Error(err))
		return
	}

	for _, rec := range records {
		if err := batch.Append(
			rec.TS,
			rec.TraceID,
			rec.Action,
			rec.ActionKey,
			rec.ReportPath,
			rec.Event,
		); err != nil {
			m.logger.Error("clickhouse append record failed",
				zap.String("trace_id", rec.TraceID),
				zap.Error(err),
			)
		}
	}

	if err := batch.Send(); err != nil {
		m.logger.Error("clickhouse batch send failed",
			zap.Int("batch_size", len(records)),
			zap.Error(err),
		)
	}
}
