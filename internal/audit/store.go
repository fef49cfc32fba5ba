// Package audit keeps an append-only SQLite trail of guard verdicts.
package audit

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"
)

// #region schema
const schema = `
CREATE TABLE IF NOT EXISTS verdicts (
	id               TEXT PRIMARY KEY,
	agent_name       TEXT,
	goal             TEXT NOT NULL,
	mood             REAL NOT NULL,
	ok               INTEGER NOT NULL,
	warnings_json    TEXT NOT NULL,
	adjustments_json TEXT NOT NULL,
	snapshot_json    TEXT,
	created_at       TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS fired_constraints (
	id               INTEGER PRIMARY KEY AUTOINCREMENT,
	verdict_id       TEXT NOT NULL,
	position         INTEGER NOT NULL,
	constraint_name  TEXT NOT NULL,
	observed         REAL NOT NULL,
	FOREIGN KEY (verdict_id) REFERENCES verdicts(id)
);

CREATE INDEX IF NOT EXISTS idx_verdicts_created ON verdicts(created_at);
`

// fixed-width so that created_at sorts lexically
const timeLayout = "2006-01-02T15:04:05.000000000Z07:00"

// #endregion schema

// #region store-struct
// Store records verdicts in SQLite.
type Store struct {
	db *sql.DB
}

// #endregion store-struct

// #region constructor
// Open opens a SQLite database and runs migrations.
func Open(dbPath string) (*Store, error) {
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open db: %w", err)
	}
	// one connection: keeps :memory: databases coherent and serializes writers
	db.SetMaxOpenConns(1)

	for _, pragma := range []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA foreign_keys=ON",
		"PRAGMA busy_timeout=5000",
	} {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, fmt.Errorf("pragma %q: %w", pragma, err)
		}
	}
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}
	return &Store{db: db}, nil
}

// Close closes the underlying database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// #endregion constructor

// #region record
// Record stores one evaluation and returns its generated ID. A zero CreatedAt
// is filled with the current time.
func (s *Store) Record(ctx context.Context, e Entry) (string, error) {
	if e.ID == "" {
		e.ID = uuid.New().String()
	}
	if e.CreatedAt.IsZero() {
		e.CreatedAt = time.Now().UTC()
	}

	warnings := e.Verdict.Warnings
	if warnings == nil {
		warnings = []string{}
	}
	warningsJSON, err := json.Marshal(warnings)
	if err != nil {
		return "", fmt.Errorf("marshal warnings: %w", err)
	}
	adjustments := e.Verdict.SuggestedTraitAdjustments
	if adjustments == nil {
		adjustments = map[string]float64{}
	}
	adjustmentsJSON, err := json.Marshal(adjustments)
	if err != nil {
		return "", fmt.Errorf("marshal adjustments: %w", err)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return "", fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	_, err = tx.ExecContext(ctx,
		`INSERT INTO verdicts (id, agent_name, goal, mood, ok, warnings_json, adjustments_json, snapshot_json, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		e.ID, nullIfEmpty(e.AgentName), e.Goal, e.Mood, e.Verdict.OK,
		string(warningsJSON), string(adjustmentsJSON), nullIfEmpty(e.SnapshotJSON),
		e.CreatedAt.UTC().Format(timeLayout),
	)
	if err != nil {
		return "", fmt.Errorf("insert verdict: %w", err)
	}

	for i, f := range e.Fired {
		_, err = tx.ExecContext(ctx,
			`INSERT INTO fired_constraints (verdict_id, position, constraint_name, observed)
			 VALUES (?, ?, ?, ?)`,
			e.ID, i, f.Name, f.Observed,
		)
		if err != nil {
			return "", fmt.Errorf("insert fired constraint: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return "", fmt.Errorf("commit: %w", err)
	}
	return e.ID, nil
}

// #endregion record

// #region get
// Get retrieves one entry by ID.
func (s *Store) Get(ctx context.Context, id string) (Entry, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT id, agent_name, goal, mood, ok, warnings_json, adjustments_json, snapshot_json, created_at
		 FROM verdicts WHERE id = ?`, id,
	)
	e, err := scanEntry(row)
	if errors.Is(err, sql.ErrNoRows) {
		return Entry{}, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	if err != nil {
		return Entry{}, fmt.Errorf("get entry %s: %w", id, err)
	}

	rows, err := s.db.QueryContext(ctx,
		`SELECT constraint_name, observed FROM fired_constraints
		 WHERE verdict_id = ? ORDER BY position`, id,
	)
	if err != nil {
		return Entry{}, fmt.Errorf("get fired constraints: %w", err)
	}
	defer rows.Close()

	e.Fired = []FiredConstraint{}
	for rows.Next() {
		var f FiredConstraint
		if err := rows.Scan(&f.Name, &f.Observed); err != nil {
			return Entry{}, fmt.Errorf("scan fired constraint: %w", err)
		}
		e.Fired = append(e.Fired, f)
	}
	return e, rows.Err()
}

// #endregion get

// #region list-recent
// ListRecent returns up to limit entries, newest first. Fired constraints are
// not loaded; use Get for the full entry.
func (s *Store) ListRecent(ctx context.Context, limit int) ([]Entry, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, agent_name, goal, mood, ok, warnings_json, adjustments_json, snapshot_json, created_at
		 FROM verdicts ORDER BY created_at DESC, rowid DESC LIMIT ?`, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("list entries: %w", err)
	}
	defer rows.Close()

	var entries []Entry
	for rows.Next() {
		e, err := scanEntry(rows)
		if err != nil {
			return nil, fmt.Errorf("scan row: %w", err)
		}
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

// #endregion list-recent

// #region summary
// Summary aggregates every recorded evaluation.
func (s *Store) Summary(ctx context.Context) (Summary, error) {
	sum := Summary{
		GoalCounts:       map[string]int{},
		ConstraintCounts: map[string]int{},
	}

	err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*), COALESCE(AVG(mood), 0), COALESCE(SUM(CASE WHEN ok = 0 THEN 1 ELSE 0 END), 0)
		 FROM verdicts`,
	).Scan(&sum.Count, &sum.AvgMood, &sum.Rejected)
	if err != nil {
		return Summary{}, fmt.Errorf("summary totals: %w", err)
	}

	if err := countInto(ctx, s.db, sum.GoalCounts,
		`SELECT goal, COUNT(*) FROM verdicts GROUP BY goal`); err != nil {
		return Summary{}, fmt.Errorf("goal counts: %w", err)
	}
	if err := countInto(ctx, s.db, sum.ConstraintCounts,
		`SELECT constraint_name, COUNT(*) FROM fired_constraints GROUP BY constraint_name`); err != nil {
		return Summary{}, fmt.Errorf("constraint counts: %w", err)
	}
	return sum, nil
}

// #endregion summary

// #region helpers
type scanner interface {
	Scan(dest ...any) error
}

func scanEntry(sc scanner) (Entry, error) {
	var e Entry
	var agentName, snapshotJSON sql.NullString
	var warningsJSON, adjustmentsJSON, createdStr string

	err := sc.Scan(&e.ID, &agentName, &e.Goal, &e.Mood, &e.Verdict.OK,
		&warningsJSON, &adjustmentsJSON, &snapshotJSON, &createdStr)
	if err != nil {
		return Entry{}, err
	}
	if agentName.Valid {
		e.AgentName = agentName.String
	}
	if snapshotJSON.Valid {
		e.SnapshotJSON = snapshotJSON.String
	}
	if err := json.Unmarshal([]byte(warningsJSON), &e.Verdict.Warnings); err != nil {
		return Entry{}, fmt.Errorf("unmarshal warnings: %w", err)
	}
	if err := json.Unmarshal([]byte(adjustmentsJSON), &e.Verdict.SuggestedTraitAdjustments); err != nil {
		return Entry{}, fmt.Errorf("unmarshal adjustments: %w", err)
	}
	e.CreatedAt, _ = time.Parse(timeLayout, createdStr)
	return e, nil
}

func countInto(ctx context.Context, db *sql.DB, dst map[string]int, query string) error {
	rows, err := db.QueryContext(ctx, query)
	if err != nil {
		return err
	}
	defer rows.Close()
	for rows.Next() {
		var key string
		var n int
		if err := rows.Scan(&key, &n); err != nil {
			return err
		}
		dst[key] = n
	}
	return rows.Err()
}

func nullIfEmpty(s string) interface{} {
	if s == "" {
		return nil
	}
	return s
}

// #endregion helpers
