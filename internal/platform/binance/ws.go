package binance

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"

	"github.com/alanyoungcy/triarb/internal/domain"
)

const (
	// writeWait is the time allowed to write a message to the peer.
	writeWait = 10 * time.Second

	// pongWait is the time allowed to read the next pong message from the peer.
	pongWait = 60 * time.Second

	// pingPeriod sends pings to the peer at this interval. Must be less than pongWait.
	pingPeriod = (pongWait * 9) / 10

	// updateBuffer is the capacity of the parsed-update channel. When the
	// consumer falls behind, the oldest pending batch is discarded so the
	// read loop never blocks on slow consumers.
	updateBuffer = 256
)

// TickerStream is a single multiplexed WebSocket connection delivering best
// bid/ask quotes. With no symbol list it subscribes to the all-market ticker
// array stream; with a list it opens a combined stream of per-symbol book
// tickers. Parsed, validated quote batches are pushed into a bounded channel
// that the quote feed drains; malformed records are dropped and counted.
type TickerStream struct {
	wsURL   string
	symbols []string

	mu     sync.Mutex
	conn   *websocket.Conn
	closed bool

	updates chan []domain.Quote
	dropped atomic.Uint64

	// done is closed when the stream is shut down.
	done      chan struct{}
	closeOnce sync.Once
}

// NewTickerStream creates a stream against the given WebSocket host (e.g.
// "wss://stream.binance.com:9443"). When symbols is empty the all-market
// ticker stream is used.
func NewTickerStream(wsHost string, symbols []string) *TickerStream {
	return &TickerStream{
		wsURL:   quoteStreamURL(wsHost, symbols),
		symbols: symbols,
		updates: make(chan []domain.Quote, updateBuffer),
		done:    make(chan struct{}),
	}
}

// quoteStreamURL builds the endpoint for either the all-market array stream
// or a combined per-symbol book-ticker stream.
func quoteStreamURL(wsHost string, symbols []string) string {
	if len(symbols) == 0 {
		return wsHost + "/ws/!ticker@arr"
	}
	streams := make([]string, 0, len(symbols))
	for _, s := range symbols {
		streams = append(streams, strings.ToLower(s)+"@bookTicker")
	}
	return wsHost + "/stream?streams=" + strings.Join(streams, "/")
}

// Connect dials the stream and starts the read and ping loops. It returns
// an error when the stream was already closed or the dial fails.
func (t *TickerStream) Connect(ctx context.Context) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.closed {
		return fmt.Errorf("binance: ticker stream: %w", domain.ErrWSDisconnect)
	}

	dialer := websocket.Dialer{HandshakeTimeout: 15 * time.Second}
	conn, _, err := dialer.DialContext(ctx, t.wsURL, nil)
	if err != nil {
		return fmt.Errorf("binance: ticker stream connect: %w", err)
	}
	t.conn = conn

	conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPongHandler(func(string) error {
		conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})
	// The exchange pings the client; extend the deadline and let gorilla's
	// default handler answer with a pong.
	conn.SetPingHandler(func(appData string) error {
		conn.SetReadDeadline(time.Now().Add(pongWait))
		conn.SetWriteDeadline(time.Now().Add(writeWait))
		return conn.WriteControl(websocket.PongMessage, []byte(appData), time.Now().Add(writeWait))
	})

	go t.readLoop(conn)
	go t.pingLoop(conn)

	return nil
}

// Updates returns the channel of parsed quote batches. The channel is
// closed when the connection drops or the stream is closed, which is the
// consumer's signal to treat the feed as disconnected.
func (t *TickerStream) Updates() <-chan []domain.Quote {
	return t.updates
}

// Dropped returns the number of malformed or out-of-range records discarded
// since the stream was created.
func (t *TickerStream) Dropped() uint64 {
	return t.dropped.Load()
}

// Close shuts the connection down. No updates are delivered after Close
// returns; it is safe to call more than once.
func (t *TickerStream) Close() error {
	var err error
	t.closeOnce.Do(func() {
		t.mu.Lock()
		t.closed = true
		conn := t.conn
		t.mu.Unlock()

		close(t.done)
		if conn != nil {
			_ = conn.WriteMessage(
				websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
			)
			err = conn.Close()
		}
	})
	return err
}

// readLoop reads raw messages, parses and validates them, and forwards the
// surviving quotes. It owns the updates channel and closes it on exit.
func (t *TickerStream) readLoop(conn *websocket.Conn) {
	defer close(t.updates)
	defer conn.Close()

	for {
		select {
		case <-t.done:
			return
		default:
		}

		_, message, err := conn.ReadMessage()
		if err != nil {
			return
		}

		batch := t.parseMessage(message)
		if len(batch) == 0 {
			continue
		}

		// Drop the oldest pending batch rather than block the socket;
		// quotes are superseded on every tick anyway.
		select {
		case t.updates <- batch:
		default:
			select {
			case <-t.updates:
			default:
			}
			select {
			case t.updates <- batch:
			default:
			}
		}
	}
}

// parseMessage decodes either an all-market ticker array or a combined
// stream envelope into validated quotes. Unparseable payloads and invalid
// records are counted and dropped.
func (t *TickerStream) parseMessage(raw []byte) []domain.Quote {
	if len(t.symbols) == 0 {
		var msgs []tickerMsg
		if err := json.Unmarshal(raw, &msgs); err != nil {
			t.dropped.Add(1)
			return nil
		}
		quotes := make([]domain.Quote, 0, len(msgs))
		for _, m := range msgs {
			q, ok := m.toDomainQuote()
			if !ok {
				t.dropped.Add(1)
				continue
			}
			quotes = append(quotes, q)
		}
		return quotes
	}

	var env combinedEnvelope
	if err := json.Unmarshal(raw, &env); err != nil {
		t.dropped.Add(1)
		return nil
	}
	q, ok := env.Data.toDomainQuote(time.Now())
	if !ok {
		t.dropped.Add(1)
		return nil
	}
	return []domain.Quote{q}
}

// pingLoop sends periodic pings to keep the connection alive.
func (t *TickerStream) pingLoop(conn *websocket.Conn) {
	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()

	for {
		select {
		case <-t.done:
			return
		case <-ticker.C:
			conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
