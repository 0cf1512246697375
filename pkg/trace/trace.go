// Package trace records every statement the gateway runs: a slog line per
// statement (debug, warn when slow, error on failure) and, when an ops
// database is attached, an async batched row in sql_traces.
//
// Usage:
//
//	store := trace.NewStore(ops.DB, trace.Options{Slow: 200 * time.Millisecond})
//	store.Init()
//	defer store.Close()
//	gw, _ := db.Open(path, db.Options{Recorder: store})
package trace

import (
	"context"
	"database/sql"
	"log/slog"
	"sync"
	"time"

	"github.com/hazyhaar/sqlitemcp/pkg/kit"
)

// Entry is a single SQL trace record.
type Entry struct {
	TraceID    string
	Op         string // "Exec" or "Query"
	Query      string
	DurationUs int64
	Error      string
	Timestamp  int64 // unix microseconds
}

// Options configure a Store.
type Options struct {
	// Slow is the duration above which a statement is logged at warn level.
	Slow   time.Duration
	Logger *slog.Logger
}

// Store logs SQL statements and persists them when backed by a database.
type Store struct {
	db     *sql.DB
	slow   time.Duration
	logger *slog.Logger

	ch   chan *Entry
	done chan struct{}
	once sync.Once
}

const Schema = `
CREATE TABLE IF NOT EXISTS sql_traces (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	trace_id TEXT,
	op TEXT NOT NULL,
	query TEXT NOT NULL,
	duration_us INTEGER NOT NULL,
	error TEXT,
	timestamp INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_sql_traces_ts ON sql_traces(timestamp);
CREATE INDEX IF NOT EXISTS idx_sql_traces_tid ON sql_traces(trace_id) WHERE trace_id != '';
`

// NewStore returns a Store. A nil db gives a log-only store.
func NewStore(db *sql.DB, opts Options) *Store {
	if opts.Slow <= 0 {
		opts.Slow = 100 * time.Millisecond
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	s := &Store{
		db:     db,
		slow:   opts.Slow,
		logger: opts.Logger,
		done:   make(chan struct{}),
	}
	if db == nil {
		close(s.done)
		return s
	}
	s.ch = make(chan *Entry, 1024)
	go s.flushLoop()
	return s
}

func (s *Store) Init() error {
	if s.db == nil {
		return nil
	}
	_, err := s.db.Exec(Schema)
	return err
}

// Record logs a SQL operation with timing and optional error.
func (s *Store) Record(ctx context.Context, op, query string, d time.Duration, err error) {
	traceID := kit.GetTraceID(ctx)

	level := slog.LevelDebug
	if err != nil {
		level = slog.LevelError
	} else if d > s.slow {
		level = slog.LevelWarn
	}

	attrs := []slog.Attr{
		slog.String("component", "sql"),
		slog.String("op", op),
		slog.String("query", query),
		slog.Duration("duration", d),
	}
	if traceID != "" {
		attrs = append(attrs, slog.String("trace_id", traceID))
	}
	if err != nil {
		attrs = append(attrs, slog.String("error", err.Error()))
	}
	s.logger.LogAttrs(ctx, level, "SQL", attrs...)

	if s.ch == nil {
		return
	}
	errMsg := ""
	if err != nil {
		errMsg = err.Error()
	}
	s.recordAsync(&Entry{
		TraceID:    traceID,
		Op:         op,
		Query:      query,
		DurationUs: d.Microseconds(),
		Error:      errMsg,
		Timestamp:  time.Now().UnixMicro(),
	})
}

func (s *Store) recordAsync(e *Entry) {
	select {
	case s.ch <- e:
	default:
		// buffer full, drop
	}
}

// Close flushes pending entries. Record must not be called afterwards.
func (s *Store) Close() error {
	s.once.Do(func() {
		if s.ch != nil {
			close(s.ch)
		}
		<-s.done
	})
	return nil
}

func (s *Store) flushLoop() {
	defer close(s.done)
	batch := make([]*Entry, 0, 64)
	ticker := time.NewTicker(time.Second)
	defer ticker.Stop()

	for {
		select {
		case e, ok := <-s.ch:
			if !ok {
				s.flushBatch(batch)
				return
			}
			batch = append(batch, e)
			if len(batch) >= 64 {
				s.flushBatch(batch)
				batch = batch[:0]
			}
		case <-ticker.C:
			if len(batch) > 0 {
				s.flushBatch(batch)
				batch = batch[:0]
			}
		}
	}
}

func (s *Store) flushBatch(batch []*Entry) {
	if len(batch) == 0 {
		return
	}
	tx, err := s.db.Begin()
	if err != nil {
		s.logger.Error("trace store: begin tx", "error", err)
		return
	}
	stmt, err := tx.Prepare(`INSERT INTO sql_traces (trace_id, op, query, duration_us, error, timestamp) VALUES (?, ?, ?, ?, ?, ?)`)
	if err != nil {
		tx.Rollback()
		s.logger.Error("trace store: prepare", "error", err)
		return
	}
	defer stmt.Close()

	for _, e := range batch {
		if _, err := stmt.Exec(e.TraceID, e.Op, e.Query, e.DurationUs, e.Error, e.Timestamp); err != nil {
			s.logger.Error("trace store: insert", "error", err)
		}
	}
	if err := tx.Commit(); err != nil {
		s.logger.Error("trace store: commit", "error", err)
	}
}
