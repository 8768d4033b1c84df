// Package storage provides SQLite-backed persistence for publication runs and
// the posts they put live.
package storage

import (
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/rewired-gh/dailythread/internal/models"
	_ "modernc.org/sqlite"
)

var ErrNotFound = errors.New("not found")

// Storage wraps a SQLite database for all persistence operations.
type Storage struct {
	db      *sql.DB
	maxRuns int
}

// New opens or creates the SQLite database at dbPath.
// An empty dbPath defaults to $TMPDIR/dailythread/data.db.
func New(maxRuns int, dbPath string) (*Storage, error) {
	if dbPath == "" {
		dbPath = filepath.Join(os.TempDir(), "dailythread", "data.db")
	}
	if dbPath != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(dbPath), 0o755); err != nil {
			return nil, fmt.Errorf("failed to create data directory: %w", err)
		}
	}
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	db.SetMaxOpenConns(1) // single writer; WAL allows concurrent readers
	if _, err := db.Exec(`PRAGMA journal_mode=WAL`); err != nil {
		return nil, fmt.Errorf("failed to set WAL mode: %w", err)
	}
	if _, err := db.Exec(`PRAGMA foreign_keys=ON`); err != nil {
		return nil, fmt.Errorf("failed to enable foreign keys: %w", err)
	}
	s := &Storage{db: db, maxRuns: maxRuns}
	if err := s.createTables(); err != nil {
		return nil, fmt.Errorf("failed to create tables: %w", err)
	}
	return s, nil
}

// Close closes the underlying database connection.
func (s *Storage) Close() error {
	return s.db.Close()
}

func (s *Storage) createTables() error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS runs (
			id          TEXT PRIMARY KEY,
			data_date   INTEGER NOT NULL,
			started_at  INTEGER NOT NULL,
			finished_at INTEGER NOT NULL DEFAULT 0,
			status      TEXT NOT NULL,
			error       TEXT NOT NULL DEFAULT '',
			posts       INTEGER NOT NULL DEFAULT 0
		)`,
		`CREATE TABLE IF NOT EXISTS posts (
			run_id   TEXT NOT NULL REFERENCES runs(id) ON DELETE CASCADE,
			seq      INTEGER NOT NULL,
			post_id  TEXT NOT NULL,
			reply_to TEXT NOT NULL DEFAULT '',
			text     TEXT NOT NULL,
			media    INTEGER NOT NULL DEFAULT 0,
			PRIMARY KEY (run_id, seq)
		)`,
		`CREATE INDEX IF NOT EXISTS idx_runs_started_at ON runs(started_at DESC)`,
		`CREATE INDEX IF NOT EXISTS idx_runs_status ON runs(status, data_date DESC)`,
	}
	for _, stmt := range stmts {
		if _, err := s.db.Exec(stmt); err != nil {
			return err
		}
	}
	return nil
}

// StartRun records a new run.
func (s *Storage) StartRun(run *models.Run) error {
	if err := run.Validate(); err != nil {
		return fmt.Errorf("invalid run: %w", err)
	}
	_, err := s.db.Exec(`
		INSERT INTO runs (id, data_date, started_at, finished_at, status, error, posts)
		VALUES (?,?,?,?,?,?,?)`,
		run.ID, run.DataDate.UnixNano(), run.StartedAt.UnixNano(), toNano(run.FinishedAt),
		string(run.Status), run.Error, run.Posts,
	)
	if err != nil {
		return fmt.Errorf("failed to insert run: %w", err)
	}
	return nil
}

// FinishRun stores the outcome of a run together with the posts that went live.
func (s *Storage) FinishRun(run *models.Run, posts []models.Post) error {
	if err := run.Validate(); err != nil {
		return fmt.Errorf("invalid run: %w", err)
	}
	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck

	res, err := tx.Exec(`
		UPDATE runs SET finished_at=?, status=?, error=?, posts=? WHERE id=?`,
		toNano(run.FinishedAt), string(run.Status), run.Error, run.Posts, run.ID,
	)
	if err != nil {
		return fmt.Errorf("failed to update run: %w", err)
	}
	n, _ := res.RowsAffected()
	if n == 0 {
		return fmt.Errorf("run %s: %w", run.ID, ErrNotFound)
	}

	for _, p := range posts {
		if _, err := tx.Exec(`
			INSERT INTO posts (run_id, seq, post_id, reply_to, text, media)
			VALUES (?,?,?,?,?,?)`,
			run.ID, p.Seq, p.PostID, p.ReplyTo, p.Text, p.Media,
		); err != nil {
			return fmt.Errorf("failed to insert post %d: %w", p.Seq, err)
		}
	}

	return tx.Commit()
}

// GetRun returns the run with the given id.
func (s *Storage) GetRun(id string) (*models.Run, error) {
	row := s.db.QueryRow(`SELECT `+runCols+` FROM runs WHERE id = ?`, id)
	r, err := scanRun(row.Scan)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("run %s: %w", id, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get run: %w", err)
	}
	return r, nil
}

// RecentRuns returns up to k runs, newest first.
func (s *Storage) RecentRuns(k int) ([]models.Run, error) {
	rows, err := s.db.Query(`SELECT `+runCols+` FROM runs ORDER BY started_at DESC LIMIT ?`, k)
	if err != nil {
		return nil, fmt.Errorf("failed to query runs: %w", err)
	}
	defer rows.Close()

	runs := []models.Run{}
	for rows.Next() {
		r, err := scanRun(rows.Scan)
		if err != nil {
			return nil, fmt.Errorf("failed to scan run: %w", err)
		}
		runs = append(runs, *r)
	}
	return runs, rows.Err()
}

// LastPublished returns the published run with the newest data date, or nil
// when nothing was published yet.
func (s *Storage) LastPublished() (*models.Run, error) {
	row := s.db.QueryRow(`SELECT `+runCols+` FROM runs WHERE status = ? ORDER BY data_date DESC LIMIT 1`,
		string(models.RunPublished))
	r, err := scanRun(row.Scan)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get last published run: %w", err)
	}
	return r, nil
}

// GetPosts returns the posts of a run in thread order.
func (s *Storage) GetPosts(runID string) ([]models.Post, error) {
	rows, err := s.db.Query(`
		SELECT run_id, seq, post_id, reply_to, text, media
		FROM posts WHERE run_id = ? ORDER BY seq`, runID)
	if err != nil {
		return nil, fmt.Errorf("failed to query posts: %w", err)
	}
	defer rows.Close()

	var posts []models.Post
	for rows.Next() {
		var p models.Post
		if err := rows.Scan(&p.RunID, &p.Seq, &p.PostID, &p.ReplyTo, &p.Text, &p.Media); err != nil {
			return nil, fmt.Errorf("failed to scan post: %w", err)
		}
		posts = append(posts, p)
	}
	return posts, rows.Err()
}

// RotateRuns keeps at most maxRuns newest runs by started_at.
// Cascading deletes remove their posts.
func (s *Storage) RotateRuns() error {
	_, err := s.db.Exec(`
		DELETE FROM runs WHERE id NOT IN (
			SELECT id FROM runs ORDER BY started_at DESC LIMIT ?
		)`, s.maxRuns)
	if err != nil {
		return fmt.Errorf("failed to rotate runs: %w", err)
	}
	return nil
}

const runCols = `id, data_date, started_at, finished_at, status, error, posts`

func scanRun(scan func(...any) error) (*models.Run, error) {
	var r models.Run
	var dataDateNano, startedAtNano, finishedAtNano int64
	var status string
	err := scan(&r.ID, &dataDateNano, &startedAtNano, &finishedAtNano, &status, &r.Error, &r.Posts)
	if err != nil {
		return nil, err
	}
	r.Status = models.RunStatus(status)
	r.DataDate = time.Unix(0, dataDateNano)
	r.StartedAt = time.Unix(0, startedAtNano)
	r.FinishedAt = fromNano(finishedAtNano)
	return &r, nil
}

func toNano(t time.Time) int64 {
	if t.IsZero() {
		return 0
	}
	return t.UnixNano()
}

func fromNano(n int64) time.Time {
	if n == 0 {
		return time.Time{}
	}
	return time.Unix(0, n)
}
