package audit

import (
	"database/sql"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/hazyhaar/pkg/idgen"
)

// Schema creates audit_log in the ops database.
const Schema = `
CREATE TABLE IF NOT EXISTS audit_log (
	entry_id TEXT PRIMARY KEY,
	timestamp INTEGER NOT NULL,
	action TEXT NOT NULL,
	transport TEXT NOT NULL DEFAULT 'stdio',
	request_id TEXT,
	trace_id TEXT,
	parameters TEXT,
	result TEXT,
	error_message TEXT,
	duration_ms INTEGER,
	status TEXT NOT NULL DEFAULT 'success'
);
CREATE INDEX IF NOT EXISTS idx_audit_log_time ON audit_log(timestamp);
CREATE INDEX IF NOT EXISTS idx_audit_log_action ON audit_log(action);
`

const insertEntry = `INSERT INTO audit_log (entry_id, timestamp, action, transport, request_id, trace_id,
	parameters, result, error_message, duration_ms, status)
VALUES (?,?,?,?,?,?,?,?,?,?,?)`

const (
	bufferSize    = 256
	batchSize     = 32
	flushInterval = 500 * time.Millisecond
)

// SQLiteLogger queues tool invocations and writes them to audit_log in
// batches, one transaction per batch. Tool calls never wait on the write.
type SQLiteLogger struct {
	db      *sql.DB
	ch      chan *Entry
	done    chan struct{}
	once    sync.Once
	dropped atomic.Int64
}

func NewSQLiteLogger(sqlDB *sql.DB) *SQLiteLogger {
	l := &SQLiteLogger{
		db:   sqlDB,
		ch:   make(chan *Entry, bufferSize),
		done: make(chan struct{}),
	}
	go l.flushLoop()
	return l
}

func (l *SQLiteLogger) Init() error {
	_, err := l.db.Exec(Schema)
	return err
}

// LogAsync queues entry. When the queue is full the entry is dropped and
// counted; Close reports the count.
func (l *SQLiteLogger) LogAsync(entry *Entry) {
	l.fillDefaults(entry)
	select {
	case l.ch <- entry:
	default:
		l.dropped.Add(1)
		slog.Warn("audit buffer full, dropping entry", "action", entry.Action, "request_id", entry.RequestID)
	}
}

// Close flushes queued entries and stops the writer. Safe to call twice.
func (l *SQLiteLogger) Close() error {
	l.once.Do(func() {
		close(l.ch)
		<-l.done
		if n := l.dropped.Load(); n > 0 {
			slog.Warn("audit entries dropped", "count", n)
		}
	})
	return nil
}

func (l *SQLiteLogger) fillDefaults(e *Entry) {
	if e.EntryID == "" {
		e.EntryID = "aud_" + idgen.New()
	}
	if e.Timestamp == 0 {
		e.Timestamp = time.Now().Unix()
	}
	if e.Status == "" {
		e.Status = "success"
		if e.Error != "" {
			e.Status = "error"
		}
	}
	if e.Transport == "" {
		e.Transport = "stdio"
	}
}

func (l *SQLiteLogger) flushLoop() {
	defer close(l.done)
	batch := make([]*Entry, 0, batchSize)
	ticker := time.NewTicker(flushInterval)
	defer ticker.Stop()

	for {
		select {
		case entry, ok := <-l.ch:
			if !ok {
				l.flushBatch(batch)
				return
			}
			batch = append(batch, entry)
			if len(batch) >= batchSize {
				l.flushBatch(batch)
				batch = batch[:0]
			}
		case <-ticker.C:
			if len(batch) > 0 {
				l.flushBatch(batch)
				batch = batch[:0]
			}
		}
	}
}

func (l *SQLiteLogger) flushBatch(batch []*Entry) {
	if len(batch) == 0 {
		return
	}
	tx, err := l.db.Begin()
	if err != nil {
		slog.Error("audit: begin tx", "error", err, "entries", len(batch))
		return
	}
	stmt, err := tx.Prepare(insertEntry)
	if err != nil {
		tx.Rollback()
		slog.Error("audit: prepare", "error", err)
		return
	}
	defer stmt.Close()

	for _, e := range batch {
		_, err := stmt.Exec(e.EntryID, e.Timestamp, e.Action, e.Transport, e.RequestID, e.TraceID,
			e.Parameters, e.Result, e.Error, e.DurationMs, e.Status)
		if err != nil {
			slog.Error("audit: insert", "error", err, "action", e.Action, "entry_id", e.EntryID)
		}
	}
	if err := tx.Commit(); err != nil {
		slog.Error("audit: commit", "error", err, "entries", len(batch))
	}
}
