package market

import (
	"context"
	"fmt"
	"strings"
	"time"

	"daywatch/internal/store"
	logx "daywatch/pkg/logx"
)

// Service turns raw quotes into the daily summary and live monitor
// texts, and keeps a snapshot history in the store for change tracking.
type Service struct {
	src          QuoteSource
	store        *store.Store
	indices      []string
	alertMovePct float64
	log          logx.Logger
}

func NewService(src QuoteSource, st *store.Store, indices []string, alertMovePct float64, log logx.Logger) *Service {
	if log.IsZero() {
		log = logx.Nop()
	}
	return &Service{
		src:          src,
		store:        st,
		indices:      append([]string(nil), indices...),
		alertMovePct: alertMovePct,
		log:          log,
	}
}

// Snapshot fetches current quotes and persists one snapshot row per
// index. Persistence failures are logged per row so a single bad write
// does not lose the rest of the batch.
func (s *Service) Snapshot(ctx context.Context, now time.Time) ([]Quote, error) {
	quotes, err := s.src.Fetch(ctx, s.indices)
	if err != nil {
		return nil, fmt.Errorf("fetch quotes: %w", err)
	}
	for _, q := range quotes {
		snap := store.MarketSnapshot{
			IndexName:     q.Name,
			IndexSymbol:   q.Symbol,
			Value:         q.Value,
			Change:        q.Change,
			ChangePercent: q.ChangePercent,
			TakenAt:       now,
		}
		if err := s.store.InsertSnapshot(ctx, &snap); err != nil {
			s.log.Error("snapshot insert failed",
				logx.String("symbol", q.Symbol),
				logx.Err(err))
		}
	}
	return quotes, nil
}

// Summary renders the market portion of the morning digest.
func (s *Service) Summary(ctx context.Context, now time.Time) (string, error) {
	quotes, err := s.Snapshot(ctx, now)
	if err != nil {
		return "", err
	}
	var b strings.Builder
	b.WriteString("Market overview:\n")
	for _, q := range quotes {
		fmt.Fprintf(&b, "  %-6s %10.2f  %+.2f (%+.2f%%)\n", q.Symbol, q.Value, q.Change, q.ChangePercent)
	}
	return strings.TrimRight(b.String(), "\n"), nil
}

// LiveUpdate renders the intraday monitor text. The alert flag is set
// when any index moved more than the configured threshold since the
// previous stored snapshot, so the caller can escalate priority.
func (s *Service) LiveUpdate(ctx context.Context, now time.Time) (string, bool, error) {
	prev, err := s.latestBySymbol(ctx, now)
	if err != nil {
		// History is best-effort; a read failure only disables move alerts.
		s.log.Warn("snapshot history unavailable", logx.Err(err))
		prev = nil
	}

	quotes, err := s.Snapshot(ctx, now)
	if err != nil {
		return "", false, err
	}

	alert := false
	var b strings.Builder
	b.WriteString("Market update:\n")
	for _, q := range quotes {
		line := fmt.Sprintf("  %-6s %10.2f  %+.2f%%", q.Symbol, q.Value, q.ChangePercent)
		if p, ok := prev[q.Symbol]; ok && p.Value != 0 {
			movePct := (q.Value - p.Value) / p.Value * 100
			if movePct >= s.alertMovePct || movePct <= -s.alertMovePct {
				alert = true
				line += fmt.Sprintf("  moved %+.2f%% since %s", movePct, p.TakenAt.Format("15:04"))
			}
		}
		b.WriteString(line)
		b.WriteByte('\n')
	}
	return strings.TrimRight(b.String(), "\n"), alert, nil
}

// Prune drops snapshots older than the retention window.
func (s *Service) Prune(ctx context.Context, now time.Time, retention time.Duration) (int64, error) {
	if retention <= 0 {
		return 0, nil
	}
	return s.store.PruneSnapshots(ctx, now.Add(-retention))
}

// latestBySymbol returns the most recent stored snapshot per symbol
// from the last two days.
func (s *Service) latestBySymbol(ctx context.Context, now time.Time) (map[string]store.MarketSnapshot, error) {
	rows, err := s.store.Snapshots(ctx, now.Add(-48*time.Hour))
	if err != nil {
		return nil, err
	}
	out := make(map[string]store.MarketSnapshot, len(s.indices))
	for _, r := range rows {
		cur, ok := out[r.IndexSymbol]
		if !ok || r.TakenAt.After(cur.TakenAt) {
			out[r.IndexSymbol] = r
		}
	}
	return out, nil
}
