package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	logx "daywatch/pkg/logx"
)

const taskCols = "id, title, description, due_at, priority, is_completed, created_at, completed_at"

var taskPriorities = map[string]bool{PriorityLow: true, PriorityMedium: true, PriorityHigh: true}

func scanTask(row interface{ Scan(...any) error }) (Task, error) {
	var (
		t         Task
		desc      sql.NullString
		due       sql.NullString
		completed int
		created   string
		doneAt    sql.NullString
	)
	if err := row.Scan(&t.ID, &t.Title, &desc, &due, &t.Priority, &completed, &created, &doneAt); err != nil {
		return Task{}, err
	}
	t.Description = desc.String
	t.DueAt = parseNullTime(due)
	t.Completed = completed != 0
	t.CreatedAt = parseTime(created)
	t.CompletedAt = parseNullTime(doneAt)
	return t, nil
}

func (s *Store) CreateTask(ctx context.Context, t *Task) error {
	if t.Priority == "" {
		t.Priority = PriorityMedium
	}
	if !taskPriorities[t.Priority] {
		return fmt.Errorf("invalid priority %q", t.Priority)
	}
	if t.CreatedAt.IsZero() {
		t.CreatedAt = time.Now()
	}
	res, err := s.db.ExecContext(ctx,
		`INSERT INTO tasks(title, description, due_at, priority, is_completed, created_at, completed_at)
		 VALUES(?,?,?,?,0,?,NULL)`,
		t.Title, nullStr(t.Description), fmtNullTime(t.DueAt), t.Priority, fmtTime(t.CreatedAt))
	if err != nil {
		return err
	}
	t.ID, err = res.LastInsertId()
	if err == nil {
		s.log.Info("task created", logx.Int64("id", t.ID), logx.String("title", t.Title),
			logx.String("priority", t.Priority))
	}
	return err
}

func (s *Store) Tasks(ctx context.Context, includeCompleted bool) ([]Task, error) {
	q := "SELECT " + taskCols + " FROM tasks"
	if !includeCompleted {
		q += " WHERE is_completed = 0"
	}
	q += " ORDER BY CASE priority WHEN 'high' THEN 0 WHEN 'medium' THEN 1 ELSE 2 END, due_at"
	return s.queryTasks(ctx, q)
}

func (s *Store) Task(ctx context.Context, id int64) (Task, error) {
	row := s.db.QueryRowContext(ctx, "SELECT "+taskCols+" FROM tasks WHERE id = ?", id)
	t, err := scanTask(row)
	if errors.Is(err, sql.ErrNoRows) {
		return Task{}, ErrNotFound
	}
	return t, err
}

// TodayTasks returns open tasks due within now's calendar day (local time of
// the passed instant).
func (s *Store) TodayTasks(ctx context.Context, now time.Time) ([]Task, error) {
	start := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, now.Location())
	end := start.AddDate(0, 0, 1)
	return s.queryTasks(ctx,
		"SELECT "+taskCols+` FROM tasks
		 WHERE is_completed = 0 AND due_at IS NOT NULL AND due_at >= ? AND due_at < ?
		 ORDER BY due_at`,
		fmtTime(start), fmtTime(end))
}

// OverdueTasks returns open tasks whose due date has passed.
func (s *Store) OverdueTasks(ctx context.Context, now time.Time) ([]Task, error) {
	return s.queryTasks(ctx,
		"SELECT "+taskCols+` FROM tasks
		 WHERE is_completed = 0 AND due_at IS NOT NULL AND due_at < ?
		 ORDER BY due_at`,
		fmtTime(now))
}

func (s *Store) CompleteTask(ctx context.Context, id int64, now time.Time) (bool, error) {
	res, err := s.db.ExecContext(ctx,
		"UPDATE tasks SET is_completed = 1, completed_at = ? WHERE id = ? AND is_completed = 0",
		fmtTime(now), id)
	if err != nil {
		return false, err
	}
	n, _ := res.RowsAffected()
	return n > 0, nil
}

func (s *Store) UncompleteTask(ctx context.Context, id int64) (bool, error) {
	res, err := s.db.ExecContext(ctx,
		"UPDATE tasks SET is_completed = 0, completed_at = NULL WHERE id = ?", id)
	if err != nil {
		return false, err
	}
	n, _ := res.RowsAffected()
	return n > 0, nil
}

func (s *Store) DeleteTask(ctx context.Context, id int64) (bool, error) {
	res, err := s.db.ExecContext(ctx, "DELETE FROM tasks WHERE id = ?", id)
	if err != nil {
		return false, err
	}
	n, _ := res.RowsAffected()
	return n > 0, nil
}

// ArchiveCompletedBefore deletes tasks completed before the cutoff and
// reports how many were removed. Used by the nightly cleanup job.
func (s *Store) ArchiveCompletedBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	var n int64
	err := s.withTx(ctx, func(tx *sql.Tx) error {
		res, err := tx.ExecContext(ctx,
			"DELETE FROM tasks WHERE is_completed = 1 AND completed_at IS NOT NULL AND completed_at < ?",
			fmtTime(cutoff))
		if err != nil {
			return err
		}
		n, _ = res.RowsAffected()
		return nil
	})
	return n, err
}

func (s *Store) queryTasks(ctx context.Context, q string, args ...any) ([]Task, error) {
	rows, err := s.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Task
	for rows.Next() {
		t, err := scanTask(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, t)
	}
	return out, rows.Err()
}
