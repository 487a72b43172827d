package store

import (
	"context"
	"time"
)

func (s *Store) InsertSnapshot(ctx context.Context, snap *MarketSnapshot) error {
	if snap.TakenAt.IsZero() {
		snap.TakenAt = time.Now()
	}
	res, err := s.db.ExecContext(ctx,
		`INSERT INTO market_snapshots(index_name, index_symbol, value, change, change_percent, taken_at)
		 VALUES(?,?,?,?,?,?)`,
		snap.IndexName, snap.IndexSymbol, snap.Value, snap.Change, snap.ChangePercent, fmtTime(snap.TakenAt))
	if err != nil {
		return err
	}
	snap.ID, err = res.LastInsertId()
	return err
}

// Snapshots returns snapshots taken at or after the given instant, oldest first.
func (s *Store) Snapshots(ctx context.Context, since time.Time) ([]MarketSnapshot, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, index_name, index_symbol, value, change, change_percent, taken_at
		 FROM market_snapshots WHERE taken_at >= ? ORDER BY taken_at`,
		fmtTime(since))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []MarketSnapshot
	for rows.Next() {
		var (
			m  MarketSnapshot
			at string
		)
		if err := rows.Scan(&m.ID, &m.IndexName, &m.IndexSymbol, &m.Value, &m.Change, &m.ChangePercent, &at); err != nil {
			return nil, err
		}
		m.TakenAt = parseTime(at)
		out = append(out, m)
	}
	return out, rows.Err()
}

// PruneSnapshots removes snapshots older than the cutoff.
func (s *Store) PruneSnapshots(ctx context.Context, cutoff time.Time) (int64, error) {
	res, err := s.db.ExecContext(ctx,
		"DELETE FROM market_snapshots WHERE taken_at < ?", fmtTime(cutoff))
	if err != nil {
		return 0, err
	}
	n, _ := res.RowsAffected()
	return n, nil
}
