package persist

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"go.uber.org/multierr"
	"go.uber.org/zap"
)

var ErrJournalClosed = errors.New("journal closed")

// LoadRecord is one completed asset request.
type LoadRecord struct {
	RequestID uuid.UUID
	Path      string
	Kind      string
	OK        bool
	Error     string
	Digest    string
	Duration  time.Duration
	At        time.Time
}

// Sink stores batches of records.
type Sink interface {
	WriteBatch(ctx context.Context, records []LoadRecord) error
}

// PgSink copies records into the asset_loads table.
type PgSink struct {
	db *DB
}

func NewPgSink(db *DB) *PgSink {
	return &PgSink{db: db}
}

var loadColumns = []string{"request_id", "path", "kind", "ok", "error", "digest", "duration_us", "loaded_at"}

func (s *PgSink) WriteBatch(ctx context.Context, records []LoadRecord) error {
	rows := make([][]any, len(records))
	for i, r := range records {
		rows[i] = []any{r.RequestID, r.Path, r.Kind, r.OK, r.Error, r.Digest, r.Duration.Microseconds(), r.At}
	}
	n, err := s.db.Pool.CopyFrom(ctx, pgx.Identifier{"asset_loads"}, loadColumns, pgx.CopyFromRows(rows))
	if err != nil {
		return fmt.Errorf("copy asset_loads: %w", err)
	}
	if int(n) != len(records) {
		return fmt.Errorf("copy asset_loads: wrote %d of %d rows", n, len(records))
	}
	return nil
}

// RecentLoads returns the latest records for path, newest first.
func (s *PgSink) RecentLoads(ctx context.Context, path string, limit int) ([]LoadRecord, error) {
	rows, err := s.db.Pool.Query(ctx,
		`SELECT request_id, path, kind, ok, error, digest, duration_us, loaded_at
		 FROM asset_loads WHERE path = $1 ORDER BY loaded_at DESC LIMIT $2`,
		path, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("query asset_loads: %w", err)
	}
	defer rows.Close()

	var out []LoadRecord
	for rows.Next() {
		var r LoadRecord
		var us int64
		if err := rows.Scan(&r.RequestID, &r.Path, &r.Kind, &r.OK, &r.Error, &r.Digest, &us, &r.At); err != nil {
			return nil, fmt.Errorf("scan asset_loads: %w", err)
		}
		r.Duration = time.Duration(us) * time.Microsecond
		out = append(out, r)
	}
	return out, rows.Err()
}

// Journal hands records to a writer goroutine so the tick never waits on
// the database. When the buffer is full, records are dropped and counted.
type Journal struct {
	sink      Sink
	records   chan LoadRecord
	batchSize int
	interval  time.Duration
	log       *zap.Logger

	mu      sync.Mutex
	closed  bool
	dropped atomic.Int64
	written atomic.Int64
	errs    error
	done    chan struct{}
}

func NewJournal(sink Sink, buffer int, log *zap.Logger) *Journal {
	if buffer < 1 {
		buffer = 1
	}
	j := &Journal{
		sink:      sink,
		records:   make(chan LoadRecord, buffer),
		batchSize: 64,
		interval:  time.Second,
		log:       log,
		done:      make(chan struct{}),
	}
	go j.run()
	return j
}

// Record queues r without blocking. It returns false if r was dropped.
func (j *Journal) Record(r LoadRecord) bool {
	j.mu.Lock()
	defer j.mu.Unlock()
	if j.closed {
		j.dropped.Add(1)
		return false
	}
	if r.At.IsZero() {
		r.At = time.Now()
	}
	select {
	case j.records <- r:
		return true
	default:
		j.dropped.Add(1)
		return false
	}
}

func (j *Journal) Dropped() int64 { return j.dropped.Load() }
func (j *Journal) Written() int64 { return j.written.Load() }

func (j *Journal) run() {
	defer close(j.done)
	ticker := time.NewTicker(j.interval)
	defer ticker.Stop()

	batch := make([]LoadRecord, 0, j.batchSize)
	flush := func() {
		if len(batch) == 0 {
			return
		}
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		err := j.sink.WriteBatch(ctx, batch)
		cancel()
		if err != nil {
			j.log.Warn("journal write failed", zap.Int("records", len(batch)), zap.Error(err))
			j.mu.Lock()
			j.errs = multierr.Append(j.errs, err)
			j.mu.Unlock()
		} else {
			j.written.Add(int64(len(batch)))
		}
		batch = batch[:0]
	}

	for {
		select {
		case r, ok := <-j.records:
			if !ok {
				flush()
				return
			}
			batch = append(batch, r)
			if len(batch) >= j.batchSize {
				flush()
			}
		case <-ticker.C:
			flush()
		}
	}
}

// Close flushes queued records and returns every write error seen.
func (j *Journal) Close() error {
	j.mu.Lock()
	if j.closed {
		j.mu.Unlock()
		return ErrJournalClosed
	}
	j.closed = true
	close(j.records)
	j.mu.Unlock()

	<-j.done
	j.mu.Lock()
	defer j.mu.Unlock()
	if n := j.dropped.Load(); n > 0 {
		j.log.Warn("journal dropped records", zap.Int64("dropped", n))
	}
	return j.errs
}
