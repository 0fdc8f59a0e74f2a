// Package calllog is the append-only record of every LLM call. Writes
// are asynchronous and never propagate errors to the originating call;
// the store also computes cost estimates and redacts secrets before
// anything touches disk.
package calllog

import (
	"fmt"
	"log"
	"sync"
	"sync/atomic"
	"time"

	"github.com/ShayCichocki/hive/internal/registry"
	"github.com/ShayCichocki/hive/internal/state"
	"github.com/ShayCichocki/hive/pkg/models"
)

// queueSize bounds the writer queue; a full queue drops the oldest
// pending record rather than blocking an LLM call.
const queueSize = 256

// Store persists call records through a single writer goroutine.
type Store struct {
	db  *state.DB
	reg *registry.Registry

	queue   chan models.CallRecord
	done    chan struct{}
	wg      sync.WaitGroup
	dropped atomic.Int64
	pending atomic.Int64

	mu     sync.Mutex
	closed bool
}

// Migrations is the call-log schema.
var Migrations = []state.Migration{
	{Version: 1, SQL: migrationV1Calls},
}

const migrationV1Calls = `
CREATE TABLE IF NOT EXISTS calls (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	timestamp TEXT NOT NULL,
	provider TEXT NOT NULL,
	model TEXT NOT NULL,
	caller TEXT,
	prompt TEXT,
	response TEXT,
	input_tokens INTEGER NOT NULL DEFAULT 0,
	output_tokens INTEGER NOT NULL DEFAULT 0,
	cost_estimate REAL NOT NULL DEFAULT 0.0,
	duration_ms INTEGER NOT NULL DEFAULT 0,
	ok INTEGER NOT NULL DEFAULT 1,
	error TEXT
);

CREATE INDEX IF NOT EXISTS idx_calls_model ON calls(model);
CREATE INDEX IF NOT EXISTS idx_calls_timestamp ON calls(timestamp);
`

// Open opens the call log at the given path and starts the writer.
func Open(path string, reg *registry.Registry) (*Store, error) {
	db, err := state.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open call log: %w", err)
	}

	if err := db.Migrate(Migrations); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate call log: %w", err)
	}

	s := &Store{
		db:    db,
		reg:   reg,
		queue: make(chan models.CallRecord, queueSize),
		done:  make(chan struct{}),
	}

	s.wg.Add(1)
	go s.writer()

	return s, nil
}

// DB returns the underlying store handle for read-only analytical queries.
func (s *Store) DB() *state.DB {
	return s.db
}

// Dropped returns how many records were discarded because the writer
// queue was full.
func (s *Store) Dropped() int64 {
	return s.dropped.Load()
}

// LogCall enqueues a call record for asynchronous persistence. It never
// returns an error: a failure to persist is diagnosed to the log and the
// record is dropped.
func (s *Store) LogCall(rec models.CallRecord) {
	rec.Prompt = Truncate(Redact(rec.Prompt))
	rec.Response = Truncate(Redact(rec.Response))
	rec.Error = Redact(rec.Error)
	if rec.Timestamp.IsZero() {
		rec.Timestamp = time.Now().UTC()
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		s.dropped.Add(1)
		return
	}

	for {
		select {
		case s.queue <- rec:
			s.pending.Add(1)
			return
		default:
		}
		// Queue full: drop the oldest pending record and retry.
		select {
		case <-s.queue:
			s.dropped.Add(1)
			s.pending.Add(-1)
		default:
		}
	}
}

// writer drains the queue until Close.
func (s *Store) writer() {
	defer s.wg.Done()
	for {
		select {
		case rec := <-s.queue:
			s.insert(rec)
			s.pending.Add(-1)
		case <-s.done:
			// Drain whatever is left before exiting.
			for {
				select {
				case rec := <-s.queue:
					s.insert(rec)
					s.pending.Add(-1)
				default:
					return
				}
			}
		}
	}
}

// insert writes one record; errors go to the diagnostic log only.
func (s *Store) insert(rec models.CallRecord) {
	okInt := 0
	if rec.OK {
		okInt = 1
	}
	_, err := s.db.Exec(`
		INSERT INTO calls (timestamp, provider, model, caller, prompt, response,
			input_tokens, output_tokens, cost_estimate, duration_ms, ok, error)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`,
		state.FormatTime(rec.Timestamp), string(rec.Provider), rec.Model, rec.Caller,
		rec.Prompt, rec.Response, rec.InputTokens, rec.OutputTokens,
		rec.CostEstimate, rec.DurationMs, okInt, nullable(rec.Error))
	if err != nil {
		log.Printf("[calllog] failed to persist call record for %s: %v", rec.Model, err)
	}
}

// nullable maps an empty string to NULL.
func nullable(s string) any {
	if s == "" {
		return nil
	}
	return s
}

// Flush blocks until every queued record has been written.
func (s *Store) Flush() {
	for s.pending.Load() > 0 {
		time.Sleep(5 * time.Millisecond)
	}
}

// Close stops the writer, flushes pending records, and closes the store.
func (s *Store) Close() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	s.mu.Unlock()

	close(s.done)
	s.wg.Wait()
	return s.db.Close()
}
