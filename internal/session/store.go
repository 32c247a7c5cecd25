package session

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"

	"github.com/architectagent/architect/internal/plan"
)

// SessionNotFoundError is returned when no checkpoint exists for a run ID.
type SessionNotFoundError struct {
	RunID string
}

func (e *SessionNotFoundError) Error() string {
	return fmt.Sprintf("run %q not found", e.RunID)
}

// Summary describes a stored run without its full graph.
type Summary struct {
	RunID        string              `json:"run_id"`
	Status       Status              `json:"status"`
	Requirements string              `json:"requirements"`
	CreatedAt    time.Time           `json:"created_at"`
	UpdatedAt    time.Time           `json:"updated_at"`
	Counts       map[plan.Status]int `json:"counts"`
}

// Store persists run checkpoints. Save overwrites the previous checkpoint of
// the same run; callers serialize writes per run ID.
type Store interface {
	Save(ctx context.Context, cp Checkpoint) error
	Load(ctx context.Context, runID string) (Checkpoint, error)
	List(ctx context.Context) ([]Summary, error)
	Close() error
}

// SQLiteStore implements Store using SQLite.
type SQLiteStore struct {
	db *sql.DB
}

// Fixed-width so stored timestamps sort chronologically as text.
const timeLayout = "2006-01-02T15:04:05.000000000Z07:00"

// NewSQLiteStore creates a new SQLite-backed store at the given path.
// Creates parent directories if needed. Every pooled connection runs in WAL
// mode with foreign keys and a busy timeout, and write transactions start
// with BEGIN IMMEDIATE so concurrent writers queue instead of failing.
func NewSQLiteStore(ctx context.Context, dbPath string) (*SQLiteStore, error) {
	if err := os.MkdirAll(filepath.Dir(dbPath), 0o755); err != nil {
		return nil, fmt.Errorf("failed to create parent directories: %w", err)
	}
	// modernc.org/sqlite reads only _pragma and _txlock from the DSN
	connStr := fmt.Sprintf("file:%s?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)"+
		"&_pragma=synchronous(NORMAL)&_pragma=foreign_keys(1)&_txlock=immediate", dbPath)
	return openStore(ctx, connStr, 4)
}

// NewMemoryStore creates a private in-memory SQLite store, mainly for tests.
// Each store gets its own named database behind a single connection.
func NewMemoryStore(ctx context.Context) (*SQLiteStore, error) {
	connStr := fmt.Sprintf("file:%s?mode=memory&cache=shared&_pragma=foreign_keys(1)", uuid.NewString())
	return openStore(ctx, connStr, 1)
}

func openStore(ctx context.Context, connStr string, maxConns int) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", connStr)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	db.SetMaxOpenConns(maxConns)
	db.SetMaxIdleConns(maxConns)

	store := &SQLiteStore{db: db}
	if err := store.initSchema(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}
	return store, nil
}

// Close closes the database connection.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// Save upserts the run row and its step log in one transaction.
func (s *SQLiteStore) Save(ctx context.Context, cp Checkpoint) error {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	settings, err := json.Marshal(cp.Settings)
	if err != nil {
		return fmt.Errorf("failed to encode settings: %w", err)
	}
	nodes, err := json.Marshal(cp.Nodes)
	if err != nil {
		return fmt.Errorf("failed to encode nodes: %w", err)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	_, err = tx.ExecContext(ctx, `
		INSERT INTO runs (id, status, requirements, settings, nodes, error, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			status = excluded.status,
			requirements = excluded.requirements,
			settings = excluded.settings,
			nodes = excluded.nodes,
			error = excluded.error,
			updated_at = excluded.updated_at
	`, cp.RunID, string(cp.Status), cp.Requirements, string(settings), string(nodes),
		nullString(cp.Error), cp.CreatedAt.UTC().Format(timeLayout), cp.UpdatedAt.UTC().Format(timeLayout))
	if err != nil {
		return fmt.Errorf("failed to save run: %w", err)
	}

	if _, err := tx.ExecContext(ctx, `DELETE FROM step_log WHERE run_id = ? AND seq >= ?`, cp.RunID, len(cp.Log)); err != nil {
		return fmt.Errorf("failed to trim step log: %w", err)
	}
	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO step_log (run_id, seq, node_id, step, attempts, outcome, error, timestamp)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(run_id, seq) DO UPDATE SET
			node_id = excluded.node_id,
			step = excluded.step,
			attempts = excluded.attempts,
			outcome = excluded.outcome,
			error = excluded.error,
			timestamp = excluded.timestamp
	`)
	if err != nil {
		return fmt.Errorf("failed to prepare step log insert: %w", err)
	}
	defer stmt.Close()
	for i, rec := range cp.Log {
		_, err := stmt.ExecContext(ctx, cp.RunID, i, rec.NodeID, rec.Step, rec.Attempts,
			string(rec.Outcome), nullString(rec.Error), rec.Timestamp.UTC().Format(timeLayout))
		if err != nil {
			return fmt.Errorf("failed to save step record %d: %w", i, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

// Load returns the latest checkpoint for runID, or a *SessionNotFoundError.
func (s *SQLiteStore) Load(ctx context.Context, runID string) (Checkpoint, error) {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	var (
		cp                  Checkpoint
		status, settings    string
		nodes, created, upd string
		errText             sql.NullString
	)
	err := s.db.QueryRowContext(ctx, `
		SELECT id, status, requirements, settings, nodes, error, created_at, updated_at
		FROM runs
		WHERE id = ?
	`, runID).Scan(&cp.RunID, &status, &cp.Requirements, &settings, &nodes, &errText, &created, &upd)
	if errors.Is(err, sql.ErrNoRows) {
		return Checkpoint{}, &SessionNotFoundError{RunID: runID}
	}
	if err != nil {
		return Checkpoint{}, fmt.Errorf("failed to query run: %w", err)
	}

	cp.Status = Status(status)
	cp.Error = errText.String
	if err := json.Unmarshal([]byte(settings), &cp.Settings); err != nil {
		return Checkpoint{}, fmt.Errorf("failed to decode settings: %w", err)
	}
	if err := json.Unmarshal([]byte(nodes), &cp.Nodes); err != nil {
		return Checkpoint{}, fmt.Errorf("failed to decode nodes: %w", err)
	}
	if cp.CreatedAt, err = time.Parse(timeLayout, created); err != nil {
		return Checkpoint{}, fmt.Errorf("failed to parse created_at: %w", err)
	}
	if cp.UpdatedAt, err = time.Parse(timeLayout, upd); err != nil {
		return Checkpoint{}, fmt.Errorf("failed to parse updated_at: %w", err)
	}

	cp.Log, err = s.loadLog(ctx, runID)
	if err != nil {
		return Checkpoint{}, err
	}
	return cp, nil
}

func (s *SQLiteStore) loadLog(ctx context.Context, runID string) ([]StepRecord, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT node_id, step, attempts, outcome, error, timestamp
		FROM step_log
		WHERE run_id = ?
		ORDER BY seq ASC
	`, runID)
	if err != nil {
		return nil, fmt.Errorf("failed to query step log: %w", err)
	}
	defer rows.Close()

	var log []StepRecord
	for rows.Next() {
		var (
			rec     StepRecord
			outcome string
			errText sql.NullString
			ts      string
		)
		if err := rows.Scan(&rec.NodeID, &rec.Step, &rec.Attempts, &outcome, &errText, &ts); err != nil {
			return nil, fmt.Errorf("failed to scan step record: %w", err)
		}
		rec.Outcome = Outcome(outcome)
		rec.Error = errText.String
		if rec.Timestamp, err = time.Parse(timeLayout, ts); err != nil {
			return nil, fmt.Errorf("failed to parse step timestamp: %w", err)
		}
		log = append(log, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating step log: %w", err)
	}
	return log, nil
}

// List returns summaries of all stored runs, newest first.
func (s *SQLiteStore) List(ctx context.Context) ([]Summary, error) {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	rows, err := s.db.QueryContext(ctx, `
		SELECT id, status, requirements, nodes, created_at, updated_at
		FROM runs
		ORDER BY created_at DESC, id ASC
	`)
	if err != nil {
		return nil, fmt.Errorf("failed to query runs: %w", err)
	}
	defer rows.Close()

	summaries := []Summary{}
	for rows.Next() {
		var (
			sum                 Summary
			status, nodes, c, u string
		)
		if err := rows.Scan(&sum.RunID, &status, &sum.Requirements, &nodes, &c, &u); err != nil {
			return nil, fmt.Errorf("failed to scan run: %w", err)
		}
		sum.Status = Status(status)
		if sum.CreatedAt, err = time.Parse(timeLayout, c); err != nil {
			return nil, fmt.Errorf("failed to parse created_at: %w", err)
		}
		if sum.UpdatedAt, err = time.Parse(timeLayout, u); err != nil {
			return nil, fmt.Errorf("failed to parse updated_at: %w", err)
		}
		var ns []plan.Node
		if err := json.Unmarshal([]byte(nodes), &ns); err != nil {
			return nil, fmt.Errorf("failed to decode nodes of run %s: %w", sum.RunID, err)
		}
		sum.Counts = make(map[plan.Status]int)
		for _, n := range ns {
			sum.Counts[n.Status]++
		}
		summaries = append(summaries, sum)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating runs: %w", err)
	}
	return summaries, nil
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}
