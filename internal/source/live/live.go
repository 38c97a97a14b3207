// Package live adapts a CLOB-style WebSocket book feed into the snapshot
// stream the engine consumes. Each book message becomes one MarketSnapshot;
// the engine's per-tick timeout turns a quiet feed into a missing snapshot,
// not a run failure.
package live

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strconv"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/quantfold/mmsim/internal/domain"
)

const (
	// writeWait is the time allowed to write a message to the peer.
	writeWait = 10 * time.Second

	// pongWait is the time allowed to read the next pong message.
	pongWait = 60 * time.Second

	// pingPeriod must be less than pongWait.
	pingPeriod = (pongWait * 9) / 10

	handshakeTimeout = 15 * time.Second
)

// level is one price level in a book message. Feeds quote decimal strings.
type level struct {
	Price string `json:"price"`
	Size  string `json:"size"`
}

// bookMessage is the full-book snapshot envelope on the "book" channel.
type bookMessage struct {
	EventType string  `json:"event_type"`
	AssetID   string  `json:"asset_id"`
	Timestamp string  `json:"timestamp"`
	Bids      []level `json:"bids"`
	Asks      []level `json:"asks"`
}

// tradeMessage is a print on the "last_trade_price" channel.
type tradeMessage struct {
	EventType string `json:"event_type"`
	AssetID   string `json:"asset_id"`
	Price     string `json:"price"`
}

type command struct {
	Type    string   `json:"type"`
	Channel string   `json:"channel"`
	Assets  []string `json:"assets_ids"`
}

// Source is a MarketDataSource backed by a live book feed. Snapshots are
// buffered one-deep per market; a newer book replaces an unread older one
// so the engine always sees the freshest state at each tick.
type Source struct {
	wsURL   string
	markets []string
	logger  *slog.Logger

	mu        sync.Mutex
	conn      *websocket.Conn
	closed    bool
	lastTrade map[string]float64

	inbox map[string]chan domain.MarketSnapshot
	done  chan struct{}
}

// Dial connects to the feed and subscribes to books and trade prints for
// the given markets.
func Dial(ctx context.Context, wsURL string, markets []string, logger *slog.Logger) (*Source, error) {
	if len(markets) == 0 {
		return nil, fmt.Errorf("live: no markets to subscribe")
	}

	s := &Source{
		wsURL:     wsURL,
		markets:   markets,
		logger:    logger.With(slog.String("component", "source/live")),
		lastTrade: make(map[string]float64),
		inbox:     make(map[string]chan domain.MarketSnapshot, len(markets)),
		done:      make(chan struct{}),
	}
	for _, m := range markets {
		s.inbox[m] = make(chan domain.MarketSnapshot, 1)
	}

	dialer := websocket.Dialer{HandshakeTimeout: handshakeTimeout}
	conn, _, err := dialer.DialContext(ctx, wsURL, nil)
	if err != nil {
		return nil, fmt.Errorf("live: connect: %w", err)
	}
	s.conn = conn

	conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPongHandler(func(string) error {
		conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for _, ch := range []string{"book", "last_trade_price"} {
		if err := s.send(command{Type: "subscribe", Channel: ch, Assets: markets}); err != nil {
			conn.Close()
			return nil, fmt.Errorf("live: subscribe %s: %w", ch, err)
		}
	}

	go s.readLoop()
	go s.pingLoop()
	return s, nil
}

// Markets lists the subscribed markets.
func (s *Source) Markets() []string { return s.markets }

// Next blocks until the market's next book snapshot arrives or the
// context expires. A context deadline surfaces as-is; the engine treats
// it as a missing snapshot for the tick.
func (s *Source) Next(ctx context.Context, marketID string) (domain.MarketSnapshot, error) {
	ch, ok := s.inbox[marketID]
	if !ok {
		return domain.MarketSnapshot{}, fmt.Errorf("live: unknown market %s: %w", marketID, domain.ErrNotFound)
	}
	select {
	case snap := <-ch:
		return snap, nil
	case <-s.done:
		return domain.MarketSnapshot{}, domain.ErrEndOfStream
	case <-ctx.Done():
		return domain.MarketSnapshot{}, ctx.Err()
	}
}

// Close shuts the connection down and ends the stream.
func (s *Source) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil
	}
	s.closed = true
	close(s.done)

	_ = s.conn.WriteMessage(
		websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
	)
	return s.conn.Close()
}

func (s *Source) send(cmd command) error {
	data, err := json.Marshal(cmd)
	if err != nil {
		return fmt.Errorf("marshal command: %w", err)
	}
	s.conn.SetWriteDeadline(time.Now().Add(writeWait))
	return s.conn.WriteMessage(websocket.TextMessage, data)
}

func (s *Source) readLoop() {
	for {
		select {
		case <-s.done:
			return
		default:
		}

		_, raw, err := s.conn.ReadMessage()
		if err != nil {
			select {
			case <-s.done:
			default:
				s.logger.Error("feed read failed", slog.String("error", err.Error()))
				s.Close()
			}
			return
		}
		s.handleMessage(raw)
	}
}

func (s *Source) pingLoop() {
	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()
	for {
		select {
		case <-s.done:
			return
		case <-ticker.C:
			s.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := s.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

func (s *Source) handleMessage(raw []byte) {
	var envelope struct {
		EventType string `json:"event_type"`
	}
	if err := json.Unmarshal(raw, &envelope); err != nil {
		return // drop unparseable messages
	}

	switch envelope.EventType {
	case "book":
		var msg bookMessage
		if err := json.Unmarshal(raw, &msg); err != nil {
			return
		}
		s.deliver(msg)
	case "last_trade_price":
		var msg tradeMessage
		if err := json.Unmarshal(raw, &msg); err != nil {
			return
		}
		if p, err := strconv.ParseFloat(msg.Price, 64); err == nil {
			s.mu.Lock()
			s.lastTrade[msg.AssetID] = p
			s.mu.Unlock()
		}
	}
}

// deliver converts a book message to a snapshot and replaces any unread
// snapshot for the market.
func (s *Source) deliver(msg bookMessage) {
	ch, ok := s.inbox[msg.AssetID]
	if !ok {
		return
	}
	snap := s.toSnapshot(msg)

	select {
	case ch <- snap:
	default:
		select {
		case <-ch:
		default:
		}
		select {
		case ch <- snap:
		default:
		}
	}
}

func (s *Source) toSnapshot(msg bookMessage) domain.MarketSnapshot {
	snap := domain.MarketSnapshot{
		MarketID:  msg.AssetID,
		Timestamp: parseTimestamp(msg.Timestamp),
	}

	if bid, depth, ok := bestLevel(msg.Bids, true); ok {
		snap.BestBid = domain.Float64Ptr(bid)
		snap.DepthBid = domain.Float64Ptr(depth)
	}
	if ask, depth, ok := bestLevel(msg.Asks, false); ok {
		snap.BestAsk = domain.Float64Ptr(ask)
		snap.DepthAsk = domain.Float64Ptr(depth)
	}
	if snap.BestBid != nil && snap.BestAsk != nil {
		snap.MidPrice = domain.Float64Ptr((*snap.BestBid + *snap.BestAsk) / 2)
	}

	s.mu.Lock()
	if p, ok := s.lastTrade[msg.AssetID]; ok {
		snap.LastTradePrice = domain.Float64Ptr(p)
	}
	s.mu.Unlock()
	return snap
}

// bestLevel returns the best price and summed size of one book side.
func bestLevel(levels []level, wantMax bool) (best, depth float64, ok bool) {
	for _, l := range levels {
		price, err := strconv.ParseFloat(l.Price, 64)
		if err != nil {
			continue
		}
		size, err := strconv.ParseFloat(l.Size, 64)
		if err != nil {
			continue
		}
		depth += size
		if !ok || (wantMax && price > best) || (!wantMax && price < best) {
			best = price
		}
		ok = true
	}
	return best, depth, ok
}

func parseTimestamp(raw string) time.Time {
	// Feeds send epoch milliseconds as a string.
	if ms, err := strconv.ParseInt(raw, 10, 64); err == nil {
		return time.UnixMilli(ms).UTC()
	}
	if ts, err := time.Parse(time.RFC3339, raw); err == nil {
		return ts
	}
	return time.Now().UTC()
}
