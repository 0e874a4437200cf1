// Package store persists meetings, tasks and settings in SQLite.
package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"
)

// ErrNotFound is returned when an update or delete matches no row.
var ErrNotFound = errors.New("store: not found")

// Store provides read-write access to the fission database.
type Store struct {
	db  *sql.DB
	now func() time.Time
}

// Open opens (creating if needed) the database at path and applies the
// schema. Use ":memory:" for an ephemeral database.
func Open(path string) (*Store, error) {
	dsn := path
	if path != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return nil, fmt.Errorf("create database dir: %w", err)
		}
		dsn = fmt.Sprintf("file:%s?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)", path)
	}
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	// A single connection serialises writers and keeps :memory: databases shared.
	db.SetMaxOpenConns(1)

	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	s := &Store{db: db, now: time.Now}
	if err := s.migrate(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("migrate database: %w", err)
	}
	return s, nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) migrate() error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS meetings (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			title TEXT NOT NULL,
			created_at REAL
		);`,
		`CREATE TABLE IF NOT EXISTS tasks (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			meeting_id INTEGER REFERENCES meetings(id),
			content TEXT NOT NULL,
			is_done INTEGER DEFAULT 0
		);`,
		`CREATE INDEX IF NOT EXISTS idx_tasks_meeting ON tasks(meeting_id);`,
		`CREATE TABLE IF NOT EXISTS settings (
			key TEXT PRIMARY KEY,
			value TEXT
		);`,
	}
	for _, stmt := range stmts {
		if _, err := s.db.Exec(stmt); err != nil {
			return err
		}
	}
	return nil
}

// Meetings returns every meeting in insertion order.
func (s *Store) Meetings(ctx context.Context) ([]Meeting, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, title, created_at
		FROM meetings
		ORDER BY id ASC
	`)
	if err != nil {
		return nil, fmt.Errorf("query meetings: %w", err)
	}
	defer rows.Close()

	meetings := []Meeting{}
	for rows.Next() {
		m, err := scanMeeting(rows)
		if err != nil {
			return nil, err
		}
		meetings = append(meetings, m)
	}
	return meetings, rows.Err()
}

// Meeting returns one meeting or ErrNotFound.
func (s *Store) Meeting(ctx context.Context, id int64) (*Meeting, error) {
	row := s.db.QueryRowContext(ctx, `SELECT id, title, created_at FROM meetings WHERE id = ?`, id)
	m, err := scanMeeting(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &m, nil
}

// AddMeeting inserts a meeting and returns its id.
func (s *Store) AddMeeting(ctx context.Context, title string) (int64, error) {
	res, err := s.db.ExecContext(ctx,
		`INSERT INTO meetings (title, created_at) VALUES (?, ?)`,
		title, unixFromTime(s.now()))
	if err != nil {
		return 0, fmt.Errorf("insert meeting: %w", err)
	}
	return res.LastInsertId()
}

// UpdateMeeting renames a meeting.
func (s *Store) UpdateMeeting(ctx context.Context, id int64, title string) error {
	res, err := s.db.ExecContext(ctx, `UPDATE meetings SET title = ? WHERE id = ?`, title, id)
	if err != nil {
		return fmt.Errorf("update meeting: %w", err)
	}
	return expectRow(res)
}

// DeleteMeeting removes a meeting and its tasks in one transaction.
func (s *Store) DeleteMeeting(ctx context.Context, id int64) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx, `DELETE FROM tasks WHERE meeting_id = ?`, id); err != nil {
		return fmt.Errorf("delete tasks: %w", err)
	}
	res, err := tx.ExecContext(ctx, `DELETE FROM meetings WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("delete meeting: %w", err)
	}
	if err := expectRow(res); err != nil {
		return err
	}
	return tx.Commit()
}

// TasksForMeeting returns a meeting's tasks in insertion order.
func (s *Store) TasksForMeeting(ctx context.Context, meetingID int64) ([]Task, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, meeting_id, content, is_done
		FROM tasks
		WHERE meeting_id = ?
		ORDER BY id ASC
	`, meetingID)
	if err != nil {
		return nil, fmt.Errorf("query tasks: %w", err)
	}
	defer rows.Close()

	tasks := []Task{}
	for rows.Next() {
		t, err := scanTask(rows)
		if err != nil {
			return nil, err
		}
		tasks = append(tasks, t)
	}
	return tasks, rows.Err()
}

// Task returns one task or ErrNotFound.
func (s *Store) Task(ctx context.Context, id int64) (*Task, error) {
	row := s.db.QueryRowContext(ctx, `SELECT id, meeting_id, content, is_done FROM tasks WHERE id = ?`, id)
	t, err := scanTask(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &t, nil
}

// AddTask inserts a task for meetingID and returns its id.
func (s *Store) AddTask(ctx context.Context, meetingID int64, content string) (int64, error) {
	res, err := s.db.ExecContext(ctx,
		`INSERT INTO tasks (meeting_id, content) VALUES (?, ?)`, meetingID, content)
	if err != nil {
		return 0, fmt.Errorf("insert task: %w", err)
	}
	return res.LastInsertId()
}

// AddTasks inserts contents for meetingID in one transaction and returns the
// new ids in order. Either every task is written or none is.
func (s *Store) AddTasks(ctx context.Context, meetingID int64, contents []string) ([]int64, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	stmt, err := tx.PrepareContext(ctx, `INSERT INTO tasks (meeting_id, content) VALUES (?, ?)`)
	if err != nil {
		return nil, fmt.Errorf("prepare insert task: %w", err)
	}
	defer stmt.Close()

	ids := make([]int64, 0, len(contents))
	for _, content := range contents {
		res, err := stmt.ExecContext(ctx, meetingID, content)
		if err != nil {
			return nil, fmt.Errorf("insert task: %w", err)
		}
		id, err := res.LastInsertId()
		if err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit: %w", err)
	}
	return ids, nil
}

// UpdateTask replaces a task's content.
func (s *Store) UpdateTask(ctx context.Context, id int64, content string) error {
	res, err := s.db.ExecContext(ctx, `UPDATE tasks SET content = ? WHERE id = ?`, content, id)
	if err != nil {
		return fmt.Errorf("update task: %w", err)
	}
	return expectRow(res)
}

// SetTaskDone marks a task done or not done.
func (s *Store) SetTaskDone(ctx context.Context, id int64, done bool) error {
	res, err := s.db.ExecContext(ctx, `UPDATE tasks SET is_done = ? WHERE id = ?`, boolToInt(done), id)
	if err != nil {
		return fmt.Errorf("update task: %w", err)
	}
	return expectRow(res)
}

// DeleteTask removes a task.
func (s *Store) DeleteTask(ctx context.Context, id int64) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM tasks WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("delete task: %w", err)
	}
	return expectRow(res)
}

// Setting returns the value stored under key; ok is false when unset.
func (s *Store) Setting(ctx context.Context, key string) (string, bool, error) {
	var value sql.NullString
	err := s.db.QueryRowContext(ctx, `SELECT value FROM settings WHERE key = ?`, key).Scan(&value)
	if errors.Is(err, sql.ErrNoRows) {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("query setting: %w", err)
	}
	return value.String, value.Valid, nil
}

// SetSetting upserts key.
func (s *Store) SetSetting(ctx context.Context, key, value string) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO settings (key, value) VALUES (?, ?)
		ON CONFLICT(key) DO UPDATE SET value = excluded.value
	`, key, value)
	if err != nil {
		return fmt.Errorf("upsert setting: %w", err)
	}
	return nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanMeeting(row scanner) (Meeting, error) {
	var m Meeting
	var createdAt sql.NullFloat64
	if err := row.Scan(&m.ID, &m.Title, &createdAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return m, err
		}
		return m, fmt.Errorf("scan meeting: %w", err)
	}
	if createdAt.Valid {
		m.CreatedAt = timeFromUnix(createdAt.Float64)
	}
	return m, nil
}

func scanTask(row scanner) (Task, error) {
	var t Task
	var meetingID sql.NullInt64
	var done int
	if err := row.Scan(&t.ID, &meetingID, &t.Content, &done); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return t, err
		}
		return t, fmt.Errorf("scan task: %w", err)
	}
	t.MeetingID = meetingID.Int64
	t.Done = done != 0
	return t, nil
}

func expectRow(res sql.Result) error {
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

func unixFromTime(t time.Time) float64 {
	return float64(t.UnixNano()) / 1e9
}

func timeFromUnix(ts float64) time.Time {
	sec := int64(ts)
	nsec := int64((ts - float64(sec)) * 1e9)
	return time.Unix(sec, nsec)
}
