package todo

import (
	"context"
	"fmt"
	"strings"
	"time"

	"daywatch/internal/store"
	logx "daywatch/pkg/logx"
)

// Service layers task workflows over the store: validation on create,
// summary formatting for the morning digest, and nightly archiving.
type Service struct {
	store *store.Store
	log   logx.Logger
}

func New(st *store.Store, log logx.Logger) *Service {
	if log.IsZero() {
		log = logx.Nop()
	}
	return &Service{store: st, log: log}
}

func (s *Service) Add(ctx context.Context, title, description string, due time.Time, priority string) (store.Task, error) {
	t := store.Task{
		Title:       strings.TrimSpace(title),
		Description: strings.TrimSpace(description),
		DueAt:       due,
		Priority:    priority,
	}
	if t.Title == "" {
		return store.Task{}, fmt.Errorf("task title is empty")
	}
	if err := s.store.CreateTask(ctx, &t); err != nil {
		return store.Task{}, err
	}
	s.log.Info("task created",
		logx.Int64("id", t.ID),
		logx.String("priority", t.Priority))
	return t, nil
}

func (s *Service) Complete(ctx context.Context, id int64, now time.Time) error {
	ok, err := s.store.CompleteTask(ctx, id, now)
	if err != nil {
		return err
	}
	if !ok {
		return store.ErrNotFound
	}
	s.log.Info("task completed", logx.Int64("id", id))
	return nil
}

func (s *Service) Reopen(ctx context.Context, id int64) error {
	ok, err := s.store.UncompleteTask(ctx, id)
	if err != nil {
		return err
	}
	if !ok {
		return store.ErrNotFound
	}
	return nil
}

func (s *Service) Remove(ctx context.Context, id int64) error {
	ok, err := s.store.DeleteTask(ctx, id)
	if err != nil {
		return err
	}
	if !ok {
		return store.ErrNotFound
	}
	return nil
}

func (s *Service) Open(ctx context.Context) ([]store.Task, error) {
	return s.store.Tasks(ctx, false)
}

// Summary renders the task portion of the morning digest: open count,
// what is due today, and anything overdue.
func (s *Service) Summary(ctx context.Context, now time.Time) (string, error) {
	open, err := s.store.Tasks(ctx, false)
	if err != nil {
		return "", fmt.Errorf("load open tasks: %w", err)
	}
	today, err := s.store.TodayTasks(ctx, now)
	if err != nil {
		return "", fmt.Errorf("load today tasks: %w", err)
	}
	overdue, err := s.store.OverdueTasks(ctx, now)
	if err != nil {
		return "", fmt.Errorf("load overdue tasks: %w", err)
	}

	var b strings.Builder
	fmt.Fprintf(&b, "Tasks: %d open\n", len(open))

	if len(overdue) > 0 {
		fmt.Fprintf(&b, "\nOverdue (%d):\n", len(overdue))
		for _, t := range overdue {
			fmt.Fprintf(&b, "  ! %s (due %s)\n", t.Title, t.DueAt.Format("Jan 2"))
		}
	}
	if len(today) > 0 {
		fmt.Fprintf(&b, "\nDue today (%d):\n", len(today))
		for _, t := range today {
			fmt.Fprintf(&b, "  %s %s\n", priorityMark(t.Priority), t.Title)
		}
	}
	if len(overdue) == 0 && len(today) == 0 {
		b.WriteString("Nothing due today.\n")
	}
	return strings.TrimRight(b.String(), "\n"), nil
}

// Archive drops completed tasks older than the retention window.
// A zero retention disables archiving.
func (s *Service) Archive(ctx context.Context, now time.Time, retention time.Duration) (int64, error) {
	if retention <= 0 {
		return 0, nil
	}
	n, err := s.store.ArchiveCompletedBefore(ctx, now.Add(-retention))
	if err != nil {
		return 0, err
	}
	if n > 0 {
		s.log.Info("archived completed tasks", logx.Int64("count", n))
	}
	return n, nil
}

func priorityMark(p string) string {
	switch p {
	case store.PriorityHigh:
		return "[!]"
	case store.PriorityLow:
		return "[ ]"
	default:
		return "[-]"
	}
}
