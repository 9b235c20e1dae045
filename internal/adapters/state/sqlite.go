package state

import (
	"context"
	"database/sql"
	_ "embed"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/hugo-lorenzo-mato/teamflow/internal/core"
	_ "modernc.org/sqlite"
)

//go:embed migrations/001_initial_schema.sql
var migrationV1 string

//go:embed migrations/002_run_events.sql
var migrationV2 string

// SQLiteStore implements core.WorkflowStore with SQLite storage.
type SQLiteStore struct {
	dbPath string
	db     *sql.DB
	mu     sync.RWMutex
	now    func() time.Time
}

var _ core.WorkflowStore = (*SQLiteStore)(nil)

// NewSQLiteStore opens (and migrates) the database at dbPath.
func NewSQLiteStore(dbPath string) (*SQLiteStore, error) {
	s := &SQLiteStore{dbPath: dbPath, now: time.Now}

	dir := filepath.Dir(dbPath)
	if err := os.MkdirAll(dir, 0o750); err != nil {
		return nil, fmt.Errorf("creating state directory: %w", err)
	}

	db, err := sql.Open("sqlite", dbPath+"?_pragma=journal_mode(WAL)&_pragma=foreign_keys(1)&_pragma=busy_timeout(5000)")
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)
	s.db = db

	if err := s.migrate(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("running migrations: %w", err)
	}
	return s, nil
}

// Close closes the database connection.
func (s *SQLiteStore) Close() error {
	if s.db != nil {
		return s.db.Close()
	}
	return nil
}

// Path returns the database file path.
func (s *SQLiteStore) Path() string { return s.dbPath }

func (s *SQLiteStore) migrate() error {
	_, err := s.db.Exec(`CREATE TABLE IF NOT EXISTS schema_migrations (
		version INTEGER PRIMARY KEY,
		applied_at TEXT NOT NULL
	)`)
	if err != nil {
		return fmt.Errorf("creating migrations table: %w", err)
	}

	var current int
	if err := s.db.QueryRow("SELECT COALESCE(MAX(version), 0) FROM schema_migrations").Scan(&current); err != nil {
		return fmt.Errorf("checking schema version: %w", err)
	}

	migrations := []string{migrationV1, migrationV2}
	for i, migration := range migrations {
		version := i + 1
		if version <= current {
			continue
		}

		tx, err := s.db.Begin()
		if err != nil {
			return fmt.Errorf("beginning migration transaction: %w", err)
		}
		for _, stmt := range splitStatements(migration) {
			if _, err := tx.Exec(stmt); err != nil {
				_ = tx.Rollback()
				return fmt.Errorf("executing migration v%d: %w", version, err)
			}
		}
		if _, err := tx.Exec(
			"INSERT INTO schema_migrations (version, applied_at) VALUES (?, ?)",
			version, formatTime(s.now()),
		); err != nil {
			_ = tx.Rollback()
			return fmt.Errorf("recording migration v%d: %w", version, err)
		}
		if err := tx.Commit(); err != nil {
			return fmt.Errorf("committing migration v%d: %w", version, err)
		}
	}
	return nil
}

// SchemaVersion returns the latest applied migration.
func (s *SQLiteStore) SchemaVersion(ctx context.Context) (int, error) {
	var version int
	err := s.db.QueryRowContext(ctx, "SELECT COALESCE(MAX(version), 0) FROM schema_migrations").Scan(&version)
	return version, err
}

// SaveGraph inserts or replaces a graph with its nodes and edges.
func (s *SQLiteStore) SaveGraph(ctx context.Context, rec *core.GraphRecord) error {
	if rec == nil || rec.ID == "" {
		return core.ErrValidation(core.CodeInvalidNode, "graph record requires an id")
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = s.now()
	}
	if rec.UpdatedAt.IsZero() {
		rec.UpdatedAt = rec.CreatedAt
	}
	runState := rec.RunState
	if runState == "" {
		runState = core.RunStateIdle
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	_, err = tx.ExecContext(ctx, `
		INSERT INTO graphs (id, name, run_state, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			name = excluded.name,
			run_state = excluded.run_state,
			updated_at = excluded.updated_at
	`, rec.ID, rec.Name, runState, formatTime(rec.CreatedAt), formatTime(rec.UpdatedAt))
	if err != nil {
		return fmt.Errorf("upserting graph: %w", err)
	}

	// Nodes and edges are replaced wholesale.
	if _, err := tx.ExecContext(ctx, "DELETE FROM edges WHERE graph_id = ?", rec.ID); err != nil {
		return fmt.Errorf("deleting edges: %w", err)
	}
	if _, err := tx.ExecContext(ctx, "DELETE FROM nodes WHERE graph_id = ?", rec.ID); err != nil {
		return fmt.Errorf("deleting nodes: %w", err)
	}

	for i, n := range rec.Nodes {
		var cfgJSON []byte
		if len(n.Configuration) > 0 {
			cfgJSON, err = json.Marshal(n.Configuration)
			if err != nil {
				return fmt.Errorf("marshaling configuration of node %s: %w", n.ID, err)
			}
		}
		_, err = tx.ExecContext(ctx, `
			INSERT INTO nodes (graph_id, id, seq, agent_type, label, description, configuration, pos_x, pos_y)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		`, rec.ID, n.ID, i, n.AgentType, n.Label,
			nullableString([]byte(n.Description)), nullableString(cfgJSON), n.Position.X, n.Position.Y)
		if err != nil {
			return fmt.Errorf("inserting node %s: %w", n.ID, err)
		}
	}
	for i, e := range rec.Edges {
		_, err = tx.ExecContext(ctx, `
			INSERT INTO edges (graph_id, id, seq, source, target) VALUES (?, ?, ?, ?, ?)
		`, rec.ID, e.ID, i, e.Source, e.Target)
		if err != nil {
			return fmt.Errorf("inserting edge %s: %w", e.ID, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("committing transaction: %w", err)
	}
	return nil
}

// LoadGraph returns a graph record, or nil if it does not exist.
func (s *SQLiteStore) LoadGraph(ctx context.Context, id core.GraphID) (*core.GraphRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rec := &core.GraphRecord{}
	var createdAt, updatedAt string
	err := s.db.QueryRowContext(ctx, `
		SELECT id, name, run_state, created_at, updated_at FROM graphs WHERE id = ?
	`, id).Scan(&rec.ID, &rec.Name, &rec.RunState, &createdAt, &updatedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("loading graph: %w", err)
	}
	if rec.CreatedAt, err = parseTime(createdAt); err != nil {
		return nil, err
	}
	if rec.UpdatedAt, err = parseTime(updatedAt); err != nil {
		return nil, err
	}

	if rec.Nodes, err = s.loadNodes(ctx, id); err != nil {
		return nil, err
	}
	if rec.Edges, err = s.loadEdges(ctx, id); err != nil {
		return nil, err
	}
	return rec, nil
}

func (s *SQLiteStore) loadNodes(ctx context.Context, id core.GraphID) ([]core.NodeRecord, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, agent_type, label, description, configuration, pos_x, pos_y
		FROM nodes WHERE graph_id = ? ORDER BY seq
	`, id)
	if err != nil {
		return nil, fmt.Errorf("loading nodes: %w", err)
	}
	defer rows.Close()

	nodes := make([]core.NodeRecord, 0)
	for rows.Next() {
		var n core.NodeRecord
		var description, cfgJSON sql.NullString
		if err := rows.Scan(&n.ID, &n.AgentType, &n.Label, &description, &cfgJSON, &n.Position.X, &n.Position.Y); err != nil {
			return nil, fmt.Errorf("scanning node: %w", err)
		}
		n.Description = description.String
		if cfgJSON.Valid && cfgJSON.String != "" {
			if err := json.Unmarshal([]byte(cfgJSON.String), &n.Configuration); err != nil {
				return nil, fmt.Errorf("unmarshaling configuration of node %s: %w", n.ID, err)
			}
		}
		nodes = append(nodes, n)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating nodes: %w", err)
	}
	return nodes, nil
}

func (s *SQLiteStore) loadEdges(ctx context.Context, id core.GraphID) ([]core.EdgeRecord, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, source, target FROM edges WHERE graph_id = ? ORDER BY seq
	`, id)
	if err != nil {
		return nil, fmt.Errorf("loading edges: %w", err)
	}
	defer rows.Close()

	edges := make([]core.EdgeRecord, 0)
	for rows.Next() {
		var e core.EdgeRecord
		if err := rows.Scan(&e.ID, &e.Source, &e.Target); err != nil {
			return nil, fmt.Errorf("scanning edge: %w", err)
		}
		edges = append(edges, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating edges: %w", err)
	}
	return edges, nil
}

// ListGraphs returns graph summaries, most recently updated first.
func (s *SQLiteStore) ListGraphs(ctx context.Context) ([]core.GraphSummary, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.QueryContext(ctx, `
		SELECT g.id, g.name, g.run_state, g.updated_at,
		       (SELECT COUNT(*) FROM nodes n WHERE n.graph_id = g.id)
		FROM graphs g ORDER BY g.updated_at DESC, g.id
	`)
	if err != nil {
		return nil, fmt.Errorf("listing graphs: %w", err)
	}
	defer rows.Close()

	out := make([]core.GraphSummary, 0)
	for rows.Next() {
		var sum core.GraphSummary
		var updatedAt string
		if err := rows.Scan(&sum.ID, &sum.Name, &sum.RunState, &updatedAt, &sum.NodeCount); err != nil {
			return nil, fmt.Errorf("scanning graph: %w", err)
		}
		if sum.UpdatedAt, err = parseTime(updatedAt); err != nil {
			return nil, err
		}
		out = append(out, sum)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating graphs: %w", err)
	}
	return out, nil
}

// DeleteGraph removes a graph, its nodes, edges and transcript.
func (s *SQLiteStore) DeleteGraph(ctx context.Context, id core.GraphID) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	res, err := s.db.ExecContext(ctx, "DELETE FROM graphs WHERE id = ?", id)
	if err != nil {
		return fmt.Errorf("deleting graph: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return core.ErrNotFound("graph", string(id))
	}
	return nil
}

// SaveTranscript replaces the stored transcript of a graph.
func (s *SQLiteStore) SaveTranscript(ctx context.Context, id core.GraphID, runID core.RunID, events []core.RunEvent) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	var exists int
	if err := tx.QueryRowContext(ctx, "SELECT COUNT(*) FROM graphs WHERE id = ?", id).Scan(&exists); err != nil {
		return fmt.Errorf("checking graph: %w", err)
	}
	if exists == 0 {
		return core.ErrNotFound("graph", string(id))
	}

	if _, err := tx.ExecContext(ctx, "DELETE FROM run_events WHERE graph_id = ?", id); err != nil {
		return fmt.Errorf("deleting transcript: %w", err)
	}
	for _, ev := range events {
		_, err := tx.ExecContext(ctx, `
			INSERT INTO run_events (graph_id, run_id, seq, node_id, agent_label, kind, content, timestamp)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		`, id, runID, ev.Seq, nullableString([]byte(ev.NodeID)), ev.AgentLabel, ev.Kind, ev.Content, formatTime(ev.Timestamp))
		if err != nil {
			return fmt.Errorf("inserting event %d: %w", ev.Seq, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("committing transaction: %w", err)
	}
	return nil
}

// LoadTranscript returns the stored transcript of a graph in sequence order.
func (s *SQLiteStore) LoadTranscript(ctx context.Context, id core.GraphID) (core.RunID, []core.RunEvent, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.QueryContext(ctx, `
		SELECT run_id, seq, node_id, agent_label, kind, content, timestamp
		FROM run_events WHERE graph_id = ? ORDER BY seq
	`, id)
	if err != nil {
		return "", nil, fmt.Errorf("loading transcript: %w", err)
	}
	defer rows.Close()

	var runID core.RunID
	events := make([]core.RunEvent, 0)
	for rows.Next() {
		var ev core.RunEvent
		var nodeID sql.NullString
		var ts string
		if err := rows.Scan(&ev.RunID, &ev.Seq, &nodeID, &ev.AgentLabel, &ev.Kind, &ev.Content, &ts); err != nil {
			return "", nil, fmt.Errorf("scanning event: %w", err)
		}
		ev.NodeID = core.NodeID(nodeID.String)
		if ev.Timestamp, err = parseTime(ts); err != nil {
			return "", nil, err
		}
		runID = ev.RunID
		events = append(events, ev)
	}
	if err := rows.Err(); err != nil {
		return "", nil, fmt.Errorf("iterating events: %w", err)
	}
	return runID, events, nil
}

// splitStatements splits a migration script on semicolons, dropping blanks
// and comment-only chunks.
func splitStatements(script string) []string {
	var out []string
	for _, part := range strings.Split(script, ";") {
		stmt := strings.TrimSpace(part)
		if stmt == "" || strings.HasPrefix(stmt, "--") && !strings.Contains(stmt, "\n") {
			continue
		}
		out = append(out, stmt)
	}
	return out
}

func nullableString(b []byte) sql.NullString {
	if len(b) == 0 {
		return sql.NullString{}
	}
	return sql.NullString{String: string(b), Valid: true}
}

func formatTime(t time.Time) string {
	return t.UTC().Format(time.RFC3339Nano)
}

func parseTime(s string) (time.Time, error) {
	t, err := time.Parse(time.RFC3339Nano, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("parsing timestamp %q: %w", s, err)
	}
	return t, nil
}
