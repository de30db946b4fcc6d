// Package persist keeps a write-through copy of committed session
// artifacts in SQLite so sessions survive a restart.
package persist

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "modernc.org/sqlite"

	"github.com/gaurav-prasanna/newsletterpipe/core"
	"github.com/gaurav-prasanna/newsletterpipe/core/session"
)

const (
	sqliteBusyCode          = 5
	busyRetryAttempts       = 5
	busyRetryInitialBackoff = 10 * time.Millisecond
	busyRetryMaxBackoff     = 200 * time.Millisecond
)

const schema = `
CREATE TABLE IF NOT EXISTS artifacts (
    session_id TEXT NOT NULL,
    kind       TEXT NOT NULL,
    generation INTEGER NOT NULL,
    payload    TEXT NOT NULL,
    data       BLOB,
    created_at TEXT NOT NULL,
    updated_at TEXT NOT NULL,
    PRIMARY KEY (session_id, kind)
);
CREATE INDEX IF NOT EXISTS idx_artifacts_updated ON artifacts(updated_at);
`

// laterKinds lists the slots invalidated by a commit of each kind.
var laterKinds = map[core.ArtifactKind][]core.ArtifactKind{
	core.KindOutline: {core.KindMarkup, core.KindValidation, core.KindPaginated},
	core.KindMarkup:  {core.KindPaginated},
}

// Store is the SQLite artifact store. It implements core.ArtifactSink.
type Store struct {
	db   *sql.DB
	path string
	now  func() time.Time
}

// Open creates or opens the database at path and applies the schema.
func Open(path string) (*Store, error) {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create database directory: %w", err)
		}
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite db: %w", err)
	}

	pragmas := []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout = 5000",
	}
	for _, pragma := range pragmas {
		if _, execErr := db.Exec(pragma); execErr != nil {
			_ = db.Close()
			return nil, fmt.Errorf("apply pragma %q: %w", pragma, execErr)
		}
	}
	if _, err := db.Exec(schema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("apply schema: %w", err)
	}
	return &Store{db: db, path: path, now: time.Now}, nil
}

// Path returns the database file path.
func (s *Store) Path() string { return s.path }

// Close closes the database.
func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

// OnArtifactCommitted upserts the artifact unless a newer generation is
// already stored, and drops later-stage rows older than it.
func (s *Store) OnArtifactCommitted(ctx context.Context, sessionID string, kind core.ArtifactKind, generation uint64, artifact any) error {
	payload, err := json.Marshal(artifact)
	if err != nil {
		return fmt.Errorf("encode %s artifact: %w", kind, err)
	}
	var data []byte
	switch a := artifact.(type) {
	case core.PaginatedArtifact:
		data = a.Data
	case *core.PaginatedArtifact:
		data = a.Data
	}
	ts := s.now().UTC().Format(time.RFC3339Nano)

	return retryOnBusy(ctx, func() error {
		tx, err := s.db.BeginTx(ctx, nil)
		if err != nil {
			return fmt.Errorf("begin: %w", err)
		}
		defer func() { _ = tx.Rollback() }()

		if _, err := tx.ExecContext(ctx, `
INSERT INTO artifacts (session_id, kind, generation, payload, data, created_at, updated_at)
VALUES (?, ?, ?, ?, ?, ?, ?)
ON CONFLICT(session_id, kind) DO UPDATE SET
    generation = excluded.generation,
    payload    = excluded.payload,
    data       = excluded.data,
    updated_at = excluded.updated_at
WHERE excluded.generation >= artifacts.generation`,
			sessionID, string(kind), int64(generation), string(payload), data, ts, ts,
		); err != nil {
			return fmt.Errorf("upsert %s artifact: %w", kind, err)
		}

		if later := laterKinds[kind]; len(later) > 0 {
			args := []any{sessionID, int64(generation)}
			marks := make([]string, len(later))
			for i, k := range later {
				marks[i] = "?"
				args = append(args, string(k))
			}
			if _, err := tx.ExecContext(ctx,
				`DELETE FROM artifacts WHERE session_id = ? AND generation < ? AND kind IN (`+strings.Join(marks, ",")+`)`,
				args...,
			); err != nil {
				return fmt.Errorf("drop stale artifacts: %w", err)
			}
		}
		return tx.Commit()
	})
}

// RemoveSession deletes every row of the session.
func (s *Store) RemoveSession(ctx context.Context, sessionID string) error {
	return retryOnBusy(ctx, func() error {
		if _, err := s.db.ExecContext(ctx, `DELETE FROM artifacts WHERE session_id = ?`, sessionID); err != nil {
			return fmt.Errorf("remove session %s: %w", sessionID, err)
		}
		return nil
	})
}

// Load reads every stored session back as a snapshot for
// Orchestrator.Restore.
func (s *Store) Load(ctx context.Context) ([]session.Snapshot, error) {
	rows, err := s.db.QueryContext(ctx, `
SELECT session_id, kind, generation, payload, data, created_at, updated_at
FROM artifacts ORDER BY session_id, kind`)
	if err != nil {
		return nil, fmt.Errorf("query artifacts: %w", err)
	}
	defer rows.Close()

	var (
		out []session.Snapshot
		cur *session.Snapshot
	)
	for rows.Next() {
		var (
			id, kind, payload string
			gen               int64
			data              []byte
			created, updated  string
		)
		if err := rows.Scan(&id, &kind, &gen, &payload, &data, &created, &updated); err != nil {
			return nil, fmt.Errorf("scan artifact: %w", err)
		}
		if cur == nil || cur.ID != id {
			out = append(out, session.Snapshot{ID: id})
			cur = &out[len(out)-1]
		}
		if err := apply(cur, core.ArtifactKind(kind), uint64(gen), payload, data); err != nil {
			return nil, fmt.Errorf("session %s: %w", id, err)
		}
		if t, err := time.Parse(time.RFC3339Nano, created); err == nil && (cur.CreatedAt.IsZero() || t.Before(cur.CreatedAt)) {
			cur.CreatedAt = t
		}
		if t, err := time.Parse(time.RFC3339Nano, updated); err == nil && t.After(cur.UpdatedAt) {
			cur.UpdatedAt = t
		}
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate artifacts: %w", err)
	}
	return out, nil
}

func apply(snap *session.Snapshot, kind core.ArtifactKind, gen uint64, payload string, data []byte) error {
	snap.Generation = max(snap.Generation, gen)
	switch kind {
	case core.KindOutline:
		var a core.OutlineArtifact
		if err := json.Unmarshal([]byte(payload), &a); err != nil {
			return fmt.Errorf("decode outline: %w", err)
		}
		snap.Outline, snap.OutlineGeneration = &a, gen
	case core.KindMarkup:
		var a core.MarkupDocument
		if err := json.Unmarshal([]byte(payload), &a); err != nil {
			return fmt.Errorf("decode markup: %w", err)
		}
		snap.Markup, snap.MarkupGeneration = &a, gen
	case core.KindValidation:
		var a core.ValidationReport
		if err := json.Unmarshal([]byte(payload), &a); err != nil {
			return fmt.Errorf("decode validation: %w", err)
		}
		snap.Validation = &a
	case core.KindPaginated:
		var a core.PaginatedArtifact
		if err := json.Unmarshal([]byte(payload), &a); err != nil {
			return fmt.Errorf("decode paginated: %w", err)
		}
		a.Data = data
		snap.Paginated, snap.PaginatedGeneration = &a, gen
	default:
		return fmt.Errorf("unknown artifact kind %q", kind)
	}
	return nil
}

func isSQLiteBusy(err error) bool {
	if err == nil {
		return false
	}
	var coder interface{ Code() int }
	if errors.As(err, &coder) && coder.Code() == sqliteBusyCode {
		return true
	}
	msg := err.Error()
	return strings.Contains(msg, "SQLITE_BUSY") || strings.Contains(msg, "database is locked")
}

func retryOnBusy(ctx context.Context, op func() error) error {
	delay := busyRetryInitialBackoff
	var lastErr error
	for attempt := 0; attempt < busyRetryAttempts; attempt++ {
		lastErr = op()
		if lastErr == nil {
			return nil
		}
		if !isSQLiteBusy(lastErr) || attempt == busyRetryAttempts-1 {
			break
		}
		select {
		case <-time.After(delay):
		case <-ctx.Done():
			return ctx.Err()
		}
		if next := delay * 2; next <= busyRetryMaxBackoff {
			delay = next
		}
	}
	return lastErr
}
