package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/GreenD93/mcp-project/internal/trace"

	_ "modernc.org/sqlite" // SQLite driver registration
)

// ErrTraceNotFound is returned by Get for an unknown trace ID.
var ErrTraceNotFound = errors.New("sqlite: trace not found")

// timeLayout is fixed-width so stored timestamps sort lexically.
const timeLayout = "2006-01-02T15:04:05.000000000Z"

// Summary is one row of a trace listing.
type Summary struct {
	ID        string       `json:"id"`
	StartedAt time.Time    `json:"started_at"`
	Agent     string       `json:"agent"`
	Status    trace.Status `json:"status"`
	PlanMode  trace.Mode   `json:"plan_mode"`
	Input     string       `json:"input"`
}

// Store archives finished traces. It implements trace.Sink and is safe for
// concurrent use. Routing never reads from it.
type Store struct {
	db *sql.DB
}

var _ trace.Sink = (*Store)(nil)

// OpenStore opens the archive at path with WAL mode and the default busy
// timeout, migrating the schema. The caller closes the store.
func OpenStore(ctx context.Context, path string) (*Store, error) {
	cfg := Config{Path: path}
	cfg.defaults()
	db, err := open(ctx, cfg)
	if err != nil {
		return nil, err
	}
	return &Store{db: db}, nil
}

func open(ctx context.Context, cfg Config) (*sql.DB, error) {
	if dir := filepath.Dir(cfg.Path); dir != "." {
		if err := os.MkdirAll(dir, 0o700); err != nil {
			return nil, fmt.Errorf("sqlite: create directory %s: %w", dir, err)
		}
	}

	db, err := sql.Open("sqlite", cfg.Path)
	if err != nil {
		return nil, fmt.Errorf("sqlite: open %s: %w", cfg.Path, err)
	}

	// One connection so PRAGMAs apply to every statement.
	db.SetMaxOpenConns(1)

	if cfg.walEnabled() {
		if _, err := db.ExecContext(ctx, "PRAGMA journal_mode=WAL"); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("sqlite: enable WAL: %w", err)
		}
	}
	if _, err := db.ExecContext(ctx, fmt.Sprintf("PRAGMA busy_timeout=%d", cfg.BusyTimeout)); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("sqlite: set busy_timeout: %w", err)
	}
	if err := migrate(ctx, db); err != nil {
		_ = db.Close()
		return nil, err
	}
	return db, nil
}

// Close closes the underlying database.
func (s *Store) Close() error {
	return s.db.Close()
}

// Record implements trace.Sink. Recording the same trace twice replaces it.
func (s *Store) Record(ctx context.Context, tr *trace.Trace) error {
	body, err := json.Marshal(tr)
	if err != nil {
		return fmt.Errorf("sqlite: marshal trace: %w", err)
	}

	var mode trace.Mode
	if p, ok := tr.Plan(); ok {
		mode = p.Mode
	}
	var ended string
	if !tr.EndedAt.IsZero() {
		ended = tr.EndedAt.UTC().Format(timeLayout)
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT OR REPLACE INTO traces (id, started_at, ended_at, agent, status, plan_mode, input, body)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		tr.ID,
		tr.StartedAt.UTC().Format(timeLayout),
		ended,
		tr.Execution.Agent,
		string(tr.Status),
		string(mode),
		tr.Execution.RequestedInput,
		string(body),
	)
	if err != nil {
		return fmt.Errorf("sqlite: record trace %s: %w", tr.ID, err)
	}
	return nil
}

// Get returns the archived trace with the given ID.
func (s *Store) Get(ctx context.Context, id string) (*trace.Trace, error) {
	var body string
	err := s.db.QueryRowContext(ctx, "SELECT body FROM traces WHERE id = ?", id).Scan(&body)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", ErrTraceNotFound, id)
	}
	if err != nil {
		return nil, fmt.Errorf("sqlite: get trace %s: %w", id, err)
	}

	var tr trace.Trace
	if err := json.Unmarshal([]byte(body), &tr); err != nil {
		return nil, fmt.Errorf("sqlite: unmarshal trace %s: %w", id, err)
	}
	return &tr, nil
}

// ListFilter narrows List. Zero fields match everything.
type ListFilter struct {
	Agent  string
	Status trace.Status
	Limit  int
}

// List returns trace summaries, most recent first.
func (s *Store) List(ctx context.Context, f ListFilter) ([]Summary, error) {
	limit := f.Limit
	if limit <= 0 {
		limit = 50
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT id, started_at, agent, status, plan_mode, input
		FROM traces
		WHERE (? = '' OR agent = ?) AND (? = '' OR status = ?)
		ORDER BY started_at DESC, id DESC
		LIMIT ?`,
		f.Agent, f.Agent, string(f.Status), string(f.Status), limit,
	)
	if err != nil {
		return nil, fmt.Errorf("sqlite: list traces: %w", err)
	}
	defer func() { _ = rows.Close() }()

	out := []Summary{}
	for rows.Next() {
		var (
			sum     Summary
			started string
		)
		if err := rows.Scan(&sum.ID, &started, &sum.Agent, &sum.Status, &sum.PlanMode, &sum.Input); err != nil {
			return nil, fmt.Errorf("sqlite: scan trace: %w", err)
		}
		sum.StartedAt, err = time.Parse(timeLayout, started)
		if err != nil {
			return nil, fmt.Errorf("sqlite: parse started_at of %s: %w", sum.ID, err)
		}
		out = append(out, sum)
	}
	return out, rows.Err()
}

// Prune deletes traces started before the cutoff and returns how many were
// removed.
func (s *Store) Prune(ctx context.Context, before time.Time) (int, error) {
	res, err := s.db.ExecContext(ctx, "DELETE FROM traces WHERE started_at < ?",
		before.UTC().Format(timeLayout))
	if err != nil {
		return 0, fmt.Errorf("sqlite: prune traces: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("sqlite: prune traces: %w", err)
	}
	return int(n), nil
}
