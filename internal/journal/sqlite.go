package journal

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"

	"git.home.luguber.info/inful/refpatrol/internal/refs"
)

const (
	openAttempts = 3
	openWait     = 10 * time.Second
)

// SQLiteStore implements Store using SQLite.
type SQLiteStore struct {
	db *sql.DB
	mu sync.RWMutex
}

// NewSQLiteStore opens (or creates) the journal database at dbPath.
// Use ":memory:" for an in-memory database in tests.
func NewSQLiteStore(dbPath string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open sqlite database: %w", err)
	}

	store := &SQLiteStore{db: db}
	if err := store.initialize(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("initialize schema: %w", err)
	}
	return store, nil
}

// Open opens the journal with a few retries so the daemon survives the
// database file living on storage that attaches after boot.
func Open(dbPath string) (*SQLiteStore, error) {
	var lastErr error
	for attempt := 1; attempt <= openAttempts; attempt++ {
		store, err := NewSQLiteStore(dbPath)
		if err == nil {
			return store, nil
		}
		lastErr = err
		if attempt < openAttempts {
			slog.Warn("Journal open failed, retrying",
				slog.Int("attempt", attempt),
				slog.String("error", err.Error()))
			time.Sleep(openWait)
		}
	}
	return nil, fmt.Errorf("open journal after %d attempts: %w", openAttempts, lastErr)
}

func (s *SQLiteStore) initialize() error {
	schema := `
	CREATE TABLE IF NOT EXISTS poll_journal (
		poll_id TEXT PRIMARY KEY,
		update_time INTEGER NOT NULL,
		url TEXT NOT NULL,
		alias TEXT NOT NULL,
		previous_id TEXT,
		ref_snapshot TEXT NOT NULL,
		ref_filters TEXT NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_poll_alias_time ON poll_journal(alias, update_time);

	CREATE TABLE IF NOT EXISTS build_journal (
		step_id TEXT PRIMARY KEY,
		parent_id TEXT NOT NULL,
		poll_id TEXT NOT NULL,
		update_time INTEGER NOT NULL,
		alias TEXT NOT NULL,
		ref_name TEXT NOT NULL,
		ref_commit TEXT NOT NULL,
		status TEXT NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_build_poll ON build_journal(poll_id);
	CREATE INDEX IF NOT EXISTS idx_build_time ON build_journal(update_time);
	`
	_, err := s.db.Exec(schema)
	return err
}

func (s *SQLiteStore) LatestPoll(ctx context.Context, alias string) (*PollRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	row := s.db.QueryRowContext(ctx,
		`SELECT poll_id, update_time, url, alias, previous_id, ref_snapshot, ref_filters
		 FROM poll_journal
		 WHERE alias = ?
		 ORDER BY update_time DESC, rowid DESC
		 LIMIT 1`,
		alias,
	)

	record, err := scanPoll(row.Scan)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNoPolls
	}
	if err != nil {
		return nil, fmt.Errorf("query latest poll: %w", err)
	}
	return record, nil
}

func (s *SQLiteStore) RecordPoll(ctx context.Context, record PollRecord) (uuid.UUID, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	id := uuid.New()
	snapshotJSON, err := json.Marshal(record.Refs)
	if err != nil {
		return uuid.Nil, fmt.Errorf("marshal ref snapshot: %w", err)
	}
	filtersJSON, err := json.Marshal(record.RefFilters)
	if err != nil {
		return uuid.Nil, fmt.Errorf("marshal ref filters: %w", err)
	}

	var previous any
	if record.Previous != uuid.Nil {
		previous = record.Previous.String()
	}

	_, err = s.db.ExecContext(ctx,
		`INSERT INTO poll_journal (poll_id, update_time, url, alias, previous_id, ref_snapshot, ref_filters)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		id.String(), record.Time.UnixNano(), record.URL, record.Alias,
		previous, snapshotJSON, filtersJSON,
	)
	if err != nil {
		return uuid.Nil, fmt.Errorf("insert poll record: %w", err)
	}
	return id, nil
}

func (s *SQLiteStore) RecordBuildStep(ctx context.Context, record BuildStepRecord) (uuid.UUID, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	id := uuid.New()
	status := record.Status
	if status == nil {
		status = json.RawMessage("null")
	}

	_, err := s.db.ExecContext(ctx,
		`INSERT INTO build_journal (step_id, parent_id, poll_id, update_time, alias, ref_name, ref_commit, status)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		id.String(), record.Parent.String(), record.PollID.String(),
		record.Time.UnixNano(), record.Alias, record.Ref.Name, record.Ref.Commit,
		string(status),
	)
	if err != nil {
		return uuid.Nil, fmt.Errorf("insert build step record: %w", err)
	}
	return id, nil
}

func (s *SQLiteStore) PollHistory(ctx context.Context, alias string, limit int) ([]PollRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.QueryContext(ctx,
		`SELECT poll_id, update_time, url, alias, previous_id, ref_snapshot, ref_filters
		 FROM poll_journal
		 WHERE alias = ?
		 ORDER BY update_time DESC, rowid DESC
		 LIMIT ?`,
		alias, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("query poll history: %w", err)
	}
	defer rows.Close()

	var records []PollRecord
	for rows.Next() {
		record, err := scanPoll(rows.Scan)
		if err != nil {
			return nil, fmt.Errorf("scan poll record: %w", err)
		}
		records = append(records, *record)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate poll rows: %w", err)
	}
	return records, nil
}

func (s *SQLiteStore) BuildSteps(ctx context.Context, pollID uuid.UUID) ([]BuildStepRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.QueryContext(ctx,
		`SELECT step_id, parent_id, poll_id, update_time, alias, ref_name, ref_commit, status
		 FROM build_journal
		 WHERE poll_id = ?
		 ORDER BY rowid`,
		pollID.String(),
	)
	if err != nil {
		return nil, fmt.Errorf("query build steps: %w", err)
	}
	defer rows.Close()

	var records []BuildStepRecord
	for rows.Next() {
		var rec BuildStepRecord
		var stepID, parentID, recPollID, status string
		var updateTime int64
		if err := rows.Scan(&stepID, &parentID, &recPollID, &updateTime,
			&rec.Alias, &rec.Ref.Name, &rec.Ref.Commit, &status); err != nil {
			return nil, fmt.Errorf("scan build step: %w", err)
		}
		if rec.ID, err = uuid.Parse(stepID); err != nil {
			return nil, fmt.Errorf("parse step id: %w", err)
		}
		if rec.Parent, err = uuid.Parse(parentID); err != nil {
			return nil, fmt.Errorf("parse parent id: %w", err)
		}
		if rec.PollID, err = uuid.Parse(recPollID); err != nil {
			return nil, fmt.Errorf("parse poll id: %w", err)
		}
		rec.Time = time.Unix(0, updateTime)
		rec.Status = json.RawMessage(status)
		records = append(records, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate build step rows: %w", err)
	}
	return records, nil
}

func (s *SQLiteStore) Prune(ctx context.Context, olderThan time.Time) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	cutoff := olderThan.UnixNano()
	var removed int64
	res, err := s.db.ExecContext(ctx, `DELETE FROM build_journal WHERE update_time < ?`, cutoff)
	if err != nil {
		return 0, fmt.Errorf("prune build journal: %w", err)
	}
	if n, err := res.RowsAffected(); err == nil {
		removed += n
	}
	res, err = s.db.ExecContext(ctx, `DELETE FROM poll_journal WHERE update_time < ?`, cutoff)
	if err != nil {
		return removed, fmt.Errorf("prune poll journal: %w", err)
	}
	if n, err := res.RowsAffected(); err == nil {
		removed += n
	}
	return removed, nil
}

func (s *SQLiteStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.db.Close()
}

// scanPoll reads one poll_journal row through any row/rows Scan function.
func scanPoll(scan func(dest ...any) error) (*PollRecord, error) {
	var record PollRecord
	var pollID string
	var previous sql.NullString
	var updateTime int64
	var snapshotJSON, filtersJSON []byte

	if err := scan(&pollID, &updateTime, &record.URL, &record.Alias,
		&previous, &snapshotJSON, &filtersJSON); err != nil {
		return nil, err
	}

	id, err := uuid.Parse(pollID)
	if err != nil {
		return nil, fmt.Errorf("parse poll id: %w", err)
	}
	record.ID = id
	record.Time = time.Unix(0, updateTime)

	if previous.Valid {
		prev, err := uuid.Parse(previous.String)
		if err != nil {
			return nil, fmt.Errorf("parse previous id: %w", err)
		}
		record.Previous = prev
	}

	record.Refs = refs.Snapshot{}
	if err := json.Unmarshal(snapshotJSON, &record.Refs); err != nil {
		return nil, fmt.Errorf("unmarshal ref snapshot: %w", err)
	}
	if err := json.Unmarshal(filtersJSON, &record.RefFilters); err != nil {
		return nil, fmt.Errorf("unmarshal ref filters: %w", err)
	}
	return &record, nil
}
