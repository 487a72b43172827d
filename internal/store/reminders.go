package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	logx "daywatch/pkg/logx"
)

var ErrNotFound = errors.New("not found")

const reminderCols = "id, title, description, scheduled_at, recurring, is_active, created_at, last_notified"

func scanReminder(row interface{ Scan(...any) error }) (Reminder, error) {
	var (
		r            Reminder
		desc         sql.NullString
		sched        string
		created      string
		lastNotified sql.NullString
		active       int
		recurring    string
	)
	if err := row.Scan(&r.ID, &r.Title, &desc, &sched, &recurring, &active, &created, &lastNotified); err != nil {
		return Reminder{}, err
	}
	r.Description = desc.String
	r.ScheduledAt = parseTime(sched)
	r.Recurring = RecurringType(recurring)
	r.Active = active != 0
	r.CreatedAt = parseTime(created)
	r.LastNotified = parseNullTime(lastNotified)
	return r, nil
}

// CreateReminder inserts the reminder and fills in ID and CreatedAt.
func (s *Store) CreateReminder(ctx context.Context, r *Reminder) error {
	if !r.Recurring.Valid() {
		return fmt.Errorf("invalid recurring type %q", r.Recurring)
	}
	if r.CreatedAt.IsZero() {
		r.CreatedAt = time.Now()
	}
	r.Active = true
	res, err := s.db.ExecContext(ctx,
		`INSERT INTO reminders(title, description, scheduled_at, recurring, is_active, created_at, last_notified)
		 VALUES(?,?,?,?,1,?,NULL)`,
		r.Title, nullStr(r.Description), fmtTime(r.ScheduledAt), string(r.Recurring), fmtTime(r.CreatedAt))
	if err != nil {
		return err
	}
	r.ID, err = res.LastInsertId()
	if err == nil {
		s.log.Info("reminder created", logx.Int64("id", r.ID), logx.String("title", r.Title),
			logx.Time("scheduled_at", r.ScheduledAt))
	}
	return err
}

// Reminders lists reminders ordered by scheduled time.
func (s *Store) Reminders(ctx context.Context, activeOnly bool) ([]Reminder, error) {
	q := "SELECT " + reminderCols + " FROM reminders"
	if activeOnly {
		q += " WHERE is_active = 1"
	}
	q += " ORDER BY scheduled_at"
	rows, err := s.db.QueryContext(ctx, q)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Reminder
	for rows.Next() {
		r, err := scanReminder(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

func (s *Store) Reminder(ctx context.Context, id int64) (Reminder, error) {
	row := s.db.QueryRowContext(ctx, "SELECT "+reminderCols+" FROM reminders WHERE id = ?", id)
	r, err := scanReminder(row)
	if errors.Is(err, sql.ErrNoRows) {
		return Reminder{}, ErrNotFound
	}
	return r, err
}

// SaveReminder writes back all mutable fields. The detector uses this to
// commit a recurrence transition (scheduled_at / is_active / last_notified)
// in one statement.
func (s *Store) SaveReminder(ctx context.Context, r Reminder) error {
	if !r.Recurring.Valid() {
		return fmt.Errorf("invalid recurring type %q", r.Recurring)
	}
	res, err := s.db.ExecContext(ctx,
		`UPDATE reminders
		 SET title = ?, description = ?, scheduled_at = ?, recurring = ?, is_active = ?, last_notified = ?
		 WHERE id = ?`,
		r.Title, nullStr(r.Description), fmtTime(r.ScheduledAt), string(r.Recurring),
		boolInt(r.Active), fmtNullTime(r.LastNotified), r.ID)
	if err != nil {
		return err
	}
	n, _ := res.RowsAffected()
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *Store) DeleteReminder(ctx context.Context, id int64) (bool, error) {
	res, err := s.db.ExecContext(ctx, "DELETE FROM reminders WHERE id = ?", id)
	if err != nil {
		return false, err
	}
	n, _ := res.RowsAffected()
	return n > 0, nil
}

// DeactivateReminder soft-deletes a reminder.
func (s *Store) DeactivateReminder(ctx context.Context, id int64) (bool, error) {
	res, err := s.db.ExecContext(ctx, "UPDATE reminders SET is_active = 0 WHERE id = ?", id)
	if err != nil {
		return false, err
	}
	n, _ := res.RowsAffected()
	return n > 0, nil
}

// lookBehind tolerates scheduler jitter: a reminder slightly in the past is
// still due rather than silently missed.
const lookBehind = time.Minute

// FindDue returns active reminders scheduled within [now - 1m, now + advance].
// Notification-dedup filtering is the detector's job, not the query's.
func (s *Store) FindDue(ctx context.Context, now time.Time, advance time.Duration) ([]Reminder, error) {
	from := now.Add(-lookBehind)
	until := now.Add(advance)
	rows, err := s.db.QueryContext(ctx,
		"SELECT "+reminderCols+` FROM reminders
		 WHERE is_active = 1 AND scheduled_at >= ? AND scheduled_at <= ?
		 ORDER BY scheduled_at`,
		fmtTime(from), fmtTime(until))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Reminder
	for rows.Next() {
		r, err := scanReminder(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

func boolInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
