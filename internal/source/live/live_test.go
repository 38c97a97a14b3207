package live

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
)

func TestBestLevel(t *testing.T) {
	bids := []level{
		{Price: "0.47", Size: "100"},
		{Price: "0.49", Size: "50"},
		{Price: "0.48", Size: "75"},
	}
	best, depth, ok := bestLevel(bids, true)
	if !ok || best != 0.49 {
		t.Fatalf("best bid = %v ok=%v, want 0.49", best, ok)
	}
	if depth != 225 {
		t.Fatalf("depth = %v, want 225", depth)
	}

	asks := []level{
		{Price: "0.52", Size: "10"},
		{Price: "0.51", Size: "20"},
	}
	best, _, ok = bestLevel(asks, false)
	if !ok || best != 0.51 {
		t.Fatalf("best ask = %v, want 0.51", best)
	}

	if _, _, ok := bestLevel(nil, true); ok {
		t.Fatal("empty side should report no level")
	}
	if _, _, ok := bestLevel([]level{{Price: "junk", Size: "1"}}, true); ok {
		t.Fatal("unparseable level should be skipped")
	}
}

func TestToSnapshotMergesLastTrade(t *testing.T) {
	s := &Source{lastTrade: map[string]float64{"asset-1": 0.46}}
	snap := s.toSnapshot(bookMessage{
		AssetID:   "asset-1",
		Timestamp: "1767268800000",
		Bids:      []level{{Price: "0.49", Size: "100"}},
		Asks:      []level{{Price: "0.51", Size: "80"}},
	})

	if snap.BestBid == nil || *snap.BestBid != 0.49 {
		t.Fatalf("best bid = %v", snap.BestBid)
	}
	if snap.MidPrice == nil || *snap.MidPrice != 0.50 {
		t.Fatalf("mid = %v, want 0.50", snap.MidPrice)
	}
	if snap.LastTradePrice == nil || *snap.LastTradePrice != 0.46 {
		t.Fatalf("ltp = %v, want 0.46", snap.LastTradePrice)
	}
	if snap.Timestamp.IsZero() {
		t.Fatal("timestamp not parsed")
	}
}

func TestParseTimestamp(t *testing.T) {
	ms := parseTimestamp("1767268800000")
	if ms.Year() != 2026 {
		t.Fatalf("epoch millis parsed to %v", ms)
	}
	rfc := parseTimestamp("2026-03-01T12:00:00Z")
	if rfc.Hour() != 12 {
		t.Fatalf("rfc3339 parsed to %v", rfc)
	}
}

// Spin up a fake feed and verify subscribe, snapshot delivery and
// last-trade merging over a real connection.
func TestDialAndStream(t *testing.T) {
	upgrader := websocket.Upgrader{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()

		// Expect two subscribe commands.
		for i := 0; i < 2; i++ {
			var cmd command
			if err := conn.ReadJSON(&cmd); err != nil {
				t.Errorf("read subscribe: %v", err)
				return
			}
			if cmd.Type != "subscribe" {
				t.Errorf("command type = %s", cmd.Type)
			}
		}

		trade, _ := json.Marshal(tradeMessage{EventType: "last_trade_price", AssetID: "asset-1", Price: "0.46"})
		if err := conn.WriteMessage(websocket.TextMessage, trade); err != nil {
			return
		}
		book, _ := json.Marshal(bookMessage{
			EventType: "book",
			AssetID:   "asset-1",
			Timestamp: "1767268800000",
			Bids:      []level{{Price: "0.49", Size: "100"}},
			Asks:      []level{{Price: "0.51", Size: "80"}},
		})
		if err := conn.WriteMessage(websocket.TextMessage, book); err != nil {
			return
		}

		// Hold the connection open until the client closes it.
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}))
	defer srv.Close()

	wsURL := "ws" + strings.TrimPrefix(srv.URL, "http")
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	src, err := Dial(ctx, wsURL, []string{"asset-1"}, slog.New(slog.NewTextHandler(io.Discard, nil)))
	if err != nil {
		t.Fatalf("Dial: %v", err)
	}
	defer src.Close()

	snap, err := src.Next(ctx, "asset-1")
	if err != nil {
		t.Fatalf("Next: %v", err)
	}
	if snap.BestBid == nil || *snap.BestBid != 0.49 {
		t.Fatalf("best bid = %v", snap.BestBid)
	}
	if snap.LastTradePrice == nil || *snap.LastTradePrice != 0.46 {
		t.Fatalf("ltp = %v, want trade print merged in", snap.LastTradePrice)
	}

	// No further book messages: Next times out like a quiet feed.
	short, cancelShort := context.WithTimeout(ctx, 50*time.Millisecond)
	defer cancelShort()
	if _, err := src.Next(short, "asset-1"); err == nil {
		t.Fatal("expected timeout from a quiet feed")
	}

	if _, err := src.Next(ctx, "unknown"); err == nil {
		t.Fatal("expected error for unsubscribed market")
	}
}
