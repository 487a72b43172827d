package market

import (
	"context"
	"fmt"
	"hash/fnv"
	"strings"
	"time"
)

// Quote is one observed index value.
type Quote struct {
	Name          string
	Symbol        string
	Value         float64
	Change        float64
	ChangePercent float64
	AsOf          time.Time
}

// QuoteSource fetches current values for a set of index symbols.
type QuoteSource interface {
	Fetch(ctx context.Context, symbols []string) ([]Quote, error)
}

// DemoSource produces deterministic synthetic quotes so the rest of the
// pipeline can run without a market data subscription. The same symbol
// at the same hour always yields the same value.
type DemoSource struct{}

func NewDemoSource() *DemoSource { return &DemoSource{} }

func (DemoSource) Fetch(ctx context.Context, symbols []string) ([]Quote, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	now := time.Now().UTC()
	out := make([]Quote, 0, len(symbols))
	for _, sym := range symbols {
		sym = strings.ToUpper(strings.TrimSpace(sym))
		if sym == "" {
			continue
		}
		base := baseValue(sym)
		cur := base * (1 + drift(sym, now))
		prev := base * (1 + drift(sym, now.Add(-24*time.Hour)))
		out = append(out, Quote{
			Name:          sym,
			Symbol:        sym,
			Value:         round2(cur),
			Change:        round2(cur - prev),
			ChangePercent: round2((cur - prev) / prev * 100),
			AsOf:          now,
		})
	}
	if len(out) == 0 {
		return nil, fmt.Errorf("no symbols to fetch")
	}
	return out, nil
}

// baseValue maps a symbol to a stable level in the 1000..9000 range.
func baseValue(sym string) float64 {
	h := fnv.New32a()
	_, _ = h.Write([]byte(sym))
	return 1000 + float64(h.Sum32()%8000)
}

// drift is a small deterministic daily fluctuation in roughly ±3%.
func drift(sym string, t time.Time) float64 {
	h := fnv.New32a()
	_, _ = h.Write([]byte(sym))
	_, _ = h.Write([]byte(t.Format("2006-01-02-15")))
	return (float64(h.Sum32()%600) - 300) / 10000
}

func round2(v float64) float64 {
	if v < 0 {
		return float64(int64(v*100-0.5)) / 100
	}
	return float64(int64(v*100+0.5)) / 100
}
