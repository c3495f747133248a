package store

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

	"github.com/fyrsmithlabs/docforge/internal/quality"
	"github.com/fyrsmithlabs/docforge/internal/sharedctx"
	_ "modernc.org/sqlite"
)

// timeLayout has a fixed width so that stored timestamps sort as text.
const timeLayout = "2006-01-02T15:04:05.000000000Z07:00"

// SQLite is a Store backed by a SQLite database file.
type SQLite struct {
	db *sql.DB
}

// OpenSQLite opens (creating if needed) the database at path and applies
// pending migrations.
func OpenSQLite(ctx context.Context, path string) (*SQLite, error) {
	if path == "" {
		return nil, errors.New("sqlite path is required")
	}
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create database directory: %w", err)
		}
	}
	dsn := fmt.Sprintf("file:%s?_pragma=foreign_keys(1)&_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)", path)
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	// A single writer connection keeps SQLite from returning SQLITE_BUSY
	// under concurrent artifact writes.
	db.SetMaxOpenConns(1)

	if _, err := migrate(ctx, db); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}
	return &SQLite{db: db}, nil
}

func (s *SQLite) Close() error { return s.db.Close() }

func (s *SQLite) CreateProject(ctx context.Context, p ProjectStatus) error {
	selected, completed, err := encodeLists(p)
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO projects(id,idea,profile,status,phase,selected,completed,error,created_at,updated_at) VALUES (?,?,?,?,?,?,?,?,?,?)`,
		p.ID, p.Idea, p.Profile, string(p.Status), p.Phase, selected, completed, p.Error,
		formatTime(p.CreatedAt), formatTime(p.UpdatedAt))
	if err != nil {
		if isConstraint(err) {
			return fmt.Errorf("project %s: %w", p.ID, ErrExists)
		}
		return fmt.Errorf("insert project: %w", err)
	}
	return nil
}

func (s *SQLite) UpdateProject(ctx context.Context, p ProjectStatus) error {
	selected, completed, err := encodeLists(p)
	if err != nil {
		return err
	}
	res, err := s.db.ExecContext(ctx,
		`UPDATE projects SET status=?, phase=?, selected=?, completed=?, error=?, updated_at=? WHERE id=?`,
		string(p.Status), p.Phase, selected, completed, p.Error, formatTime(p.UpdatedAt), p.ID)
	if err != nil {
		return fmt.Errorf("update project: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("project %s: %w", p.ID, ErrNotFound)
	}
	return nil
}

const projectColumns = `id,idea,profile,status,phase,selected,completed,error,created_at,updated_at`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanProject(row rowScanner) (ProjectStatus, error) {
	var (
		p                    ProjectStatus
		status               string
		selected, completed  string
		createdAt, updatedAt string
	)
	if err := row.Scan(&p.ID, &p.Idea, &p.Profile, &status, &p.Phase, &selected, &completed, &p.Error, &createdAt, &updatedAt); err != nil {
		return p, err
	}
	p.Status = Status(status)
	if err := json.Unmarshal([]byte(selected), &p.Selected); err != nil {
		return p, fmt.Errorf("decode selected documents: %w", err)
	}
	if err := json.Unmarshal([]byte(completed), &p.Completed); err != nil {
		return p, fmt.Errorf("decode completed documents: %w", err)
	}
	var err error
	if p.CreatedAt, err = parseTime(createdAt); err != nil {
		return p, err
	}
	if p.UpdatedAt, err = parseTime(updatedAt); err != nil {
		return p, err
	}
	return p, nil
}

func (s *SQLite) GetProject(ctx context.Context, id string) (ProjectStatus, error) {
	p, err := scanProject(s.db.QueryRowContext(ctx, `SELECT `+projectColumns+` FROM projects WHERE id=?`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return ProjectStatus{}, fmt.Errorf("project %s: %w", id, ErrNotFound)
	}
	return p, err
}

func (s *SQLite) ListProjects(ctx context.Context) ([]ProjectStatus, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT `+projectColumns+` FROM projects ORDER BY created_at DESC, id`)
	if err != nil {
		return nil, fmt.Errorf("list projects: %w", err)
	}
	defer rows.Close()
	var out []ProjectStatus
	for rows.Next() {
		p, err := scanProject(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

func (s *SQLite) SaveArtifact(ctx context.Context, projectID string, a sharedctx.Artifact) error {
	meta, err := json.Marshal(a.Metadata)
	if err != nil {
		return fmt.Errorf("encode metadata: %w", err)
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO artifacts(project_id,document_id,content,metadata,created_at) VALUES (?,?,?,?,?)
		 ON CONFLICT(project_id,document_id) DO UPDATE SET content=excluded.content, metadata=excluded.metadata, created_at=excluded.created_at`,
		projectID, a.DocumentID, a.Content, string(meta), formatTime(a.CreatedAt))
	if err != nil {
		return fmt.Errorf("save artifact %s: %w", a.DocumentID, err)
	}
	return nil
}

func scanArtifact(row rowScanner) (sharedctx.Artifact, error) {
	var (
		a         sharedctx.Artifact
		meta      string
		createdAt string
	)
	if err := row.Scan(&a.DocumentID, &a.Content, &meta, &createdAt); err != nil {
		return a, err
	}
	if err := json.Unmarshal([]byte(meta), &a.Metadata); err != nil {
		return a, fmt.Errorf("decode metadata: %w", err)
	}
	var err error
	a.CreatedAt, err = parseTime(createdAt)
	return a, err
}

func (s *SQLite) GetArtifact(ctx context.Context, projectID, documentID string) (sharedctx.Artifact, error) {
	a, err := scanArtifact(s.db.QueryRowContext(ctx,
		`SELECT document_id,content,metadata,created_at FROM artifacts WHERE project_id=? AND document_id=?`,
		projectID, documentID))
	if errors.Is(err, sql.ErrNoRows) {
		return sharedctx.Artifact{}, fmt.Errorf("artifact %s/%s: %w", projectID, documentID, ErrNotFound)
	}
	return a, err
}

func (s *SQLite) ListArtifacts(ctx context.Context, projectID string) ([]sharedctx.Artifact, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT document_id,content,metadata,created_at FROM artifacts WHERE project_id=? ORDER BY created_at, document_id`,
		projectID)
	if err != nil {
		return nil, fmt.Errorf("list artifacts: %w", err)
	}
	defer rows.Close()
	var out []sharedctx.Artifact
	for rows.Next() {
		a, err := scanArtifact(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, a)
	}
	return out, rows.Err()
}

func (s *SQLite) SaveAssessment(ctx context.Context, projectID string, a quality.Assessment) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO assessments(project_id,document_id,score,initial_score,feedback,threshold,improved,delta,unscored)
		 VALUES (?,?,?,?,?,?,?,?,?)
		 ON CONFLICT(project_id,document_id) DO UPDATE SET score=excluded.score, initial_score=excluded.initial_score,
		   feedback=excluded.feedback, threshold=excluded.threshold, improved=excluded.improved,
		   delta=excluded.delta, unscored=excluded.unscored`,
		projectID, a.DocumentID, a.Score, a.InitialScore, a.Feedback, a.Threshold, a.Improved, a.Delta, a.Unscored)
	if err != nil {
		return fmt.Errorf("save assessment %s: %w", a.DocumentID, err)
	}
	return nil
}

func (s *SQLite) ListAssessments(ctx context.Context, projectID string) ([]quality.Assessment, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT document_id,score,initial_score,feedback,threshold,improved,delta,unscored
		 FROM assessments WHERE project_id=? ORDER BY document_id`, projectID)
	if err != nil {
		return nil, fmt.Errorf("list assessments: %w", err)
	}
	defer rows.Close()
	var out []quality.Assessment
	for rows.Next() {
		var a quality.Assessment
		if err := rows.Scan(&a.DocumentID, &a.Score, &a.InitialScore, &a.Feedback, &a.Threshold, &a.Improved, &a.Delta, &a.Unscored); err != nil {
			return nil, err
		}
		out = append(out, a)
	}
	return out, rows.Err()
}

func (s *SQLite) MarkInterrupted(ctx context.Context, at time.Time) (int, error) {
	res, err := s.db.ExecContext(ctx,
		`UPDATE projects SET status=?, error=?, updated_at=? WHERE status IN (?, ?)`,
		string(StatusFailed), InterruptedError, formatTime(at), string(StatusRunning), string(StatusCreated))
	if err != nil {
		return 0, fmt.Errorf("mark interrupted: %w", err)
	}
	n, err := res.RowsAffected()
	return int(n), err
}

func encodeLists(p ProjectStatus) (string, string, error) {
	sel, err := json.Marshal(nonNil(p.Selected))
	if err != nil {
		return "", "", err
	}
	done, err := json.Marshal(nonNil(p.Completed))
	if err != nil {
		return "", "", err
	}
	return string(sel), string(done), nil
}

func nonNil(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}

func formatTime(t time.Time) string { return t.UTC().Format(timeLayout) }

func parseTime(s string) (time.Time, error) {
	t, err := time.Parse(timeLayout, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("parse time %q: %w", s, err)
	}
	return t, nil
}

func isConstraint(err error) bool {
	return strings.Contains(err.Error(), "UNIQUE constraint failed") ||
		strings.Contains(err.Error(), "constraint failed")
}
