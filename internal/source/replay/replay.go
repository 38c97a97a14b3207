// Package replay supplies snapshots from a recorded fixture directory.
// A recording is a directory holding markets.json (array of market ids)
// and snapshots/<market_id>.jsonl with one snapshot per line. To the
// engine a replayed recording is indistinguishable from a live feed.
package replay

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/quantfold/mmsim/internal/domain"
)

// row is the on-disk snapshot shape. Optional fields stay null for thin
// books.
type row struct {
	Timestamp      time.Time `json:"timestamp"`
	BestBid        *float64  `json:"best_bid"`
	BestAsk        *float64  `json:"best_ask"`
	MidPrice       *float64  `json:"mid_price"`
	DepthBid       *float64  `json:"depth_bid"`
	DepthAsk       *float64  `json:"depth_ask"`
	LastTradePrice *float64  `json:"last_trade_price"`
}

// Source replays recorded snapshots in file order, one per Next call.
type Source struct {
	markets []string
	rows    map[string][]domain.MarketSnapshot
	idx     map[string]int
}

// Open loads the recording rooted at dir. The whole recording is read up
// front; recordings are bounded by construction.
func Open(dir string) (*Source, error) {
	raw, err := os.ReadFile(filepath.Join(dir, "markets.json"))
	if err != nil {
		return nil, fmt.Errorf("replay: read markets: %w", err)
	}
	var markets []string
	if err := json.Unmarshal(raw, &markets); err != nil {
		return nil, fmt.Errorf("replay: parse markets.json: %w", err)
	}
	if len(markets) == 0 {
		return nil, fmt.Errorf("replay: markets.json is empty")
	}

	s := &Source{
		markets: markets,
		rows:    make(map[string][]domain.MarketSnapshot, len(markets)),
		idx:     make(map[string]int, len(markets)),
	}
	for _, m := range markets {
		snaps, err := loadMarket(filepath.Join(dir, "snapshots", m+".jsonl"), m)
		if err != nil {
			return nil, err
		}
		s.rows[m] = snaps
	}
	return s, nil
}

func loadMarket(path, marketID string) ([]domain.MarketSnapshot, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("replay: open recording for %s: %w", marketID, err)
	}
	defer f.Close()

	var snaps []domain.MarketSnapshot
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	line := 0
	for scanner.Scan() {
		line++
		text := scanner.Bytes()
		if len(text) == 0 {
			continue
		}
		var r row
		if err := json.Unmarshal(text, &r); err != nil {
			return nil, fmt.Errorf("replay: %s line %d: %w", marketID, line, err)
		}
		snaps = append(snaps, domain.MarketSnapshot{
			MarketID:       marketID,
			Timestamp:      r.Timestamp,
			BestBid:        r.BestBid,
			BestAsk:        r.BestAsk,
			MidPrice:       r.MidPrice,
			DepthBid:       r.DepthBid,
			DepthAsk:       r.DepthAsk,
			LastTradePrice: r.LastTradePrice,
		})
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("replay: scan %s: %w", marketID, err)
	}
	if len(snaps) == 0 {
		return nil, fmt.Errorf("replay: empty recording for %s", marketID)
	}
	return snaps, nil
}

// Markets lists the recorded markets in markets.json order.
func (s *Source) Markets() []string { return s.markets }

// Next returns the market's next recorded snapshot, or ErrEndOfStream
// when the recording is exhausted.
func (s *Source) Next(_ context.Context, marketID string) (domain.MarketSnapshot, error) {
	rows, ok := s.rows[marketID]
	if !ok {
		return domain.MarketSnapshot{}, fmt.Errorf("replay: unknown market %s: %w", marketID, domain.ErrNotFound)
	}
	i := s.idx[marketID]
	if i >= len(rows) {
		return domain.MarketSnapshot{}, domain.ErrEndOfStream
	}
	s.idx[marketID] = i + 1
	return rows[i], nil
}

// Close releases nothing; recordings are fully loaded at Open.
func (s *Source) Close() error { return nil }

// Len returns the recording length for one market.
func (s *Source) Len(marketID string) int { return len(s.rows[marketID]) }
