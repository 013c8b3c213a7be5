package binance

import (
	"context"
	"encoding/json"
	"fmt"
	"math/rand"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"

	"github.com/alanyoungcy/triarb/internal/domain"
)

const (
	// depthReconnectDelay is the base delay before reconnecting a dropped
	// depth stream.
	depthReconnectDelay = 1 * time.Second

	// depthMaxReconnectDelay caps the exponential backoff.
	depthMaxReconnectDelay = 30 * time.Second
)

// DepthStream is one WebSocket connection delivering full replacement
// order-book snapshots for a single symbol at a fixed server-side interval.
// It reconnects independently with exponential backoff and jitter until
// closed or its context is cancelled.
type DepthStream struct {
	wsURL  string
	symbol string

	books   chan domain.DepthBook
	dropped atomic.Uint64

	done      chan struct{}
	closeOnce sync.Once
}

// NewDepthStream creates a depth stream for symbol with the given number of
// levels (5, 10, or 20) and update interval in milliseconds (100 or 1000).
func NewDepthStream(wsHost, symbol string, levels, updateMs int) *DepthStream {
	return &DepthStream{
		wsURL: fmt.Sprintf("%s/ws/%s@depth%d@%dms",
			wsHost, strings.ToLower(symbol), levels, updateMs),
		symbol: symbol,
		books:  make(chan domain.DepthBook, 1),
		done:   make(chan struct{}),
	}
}

// Books returns the channel of replacement snapshots. Only the latest book
// matters; when the consumer lags, the stale pending snapshot is replaced.
func (d *DepthStream) Books() <-chan domain.DepthBook {
	return d.books
}

// Dropped returns the number of malformed depth messages discarded.
func (d *DepthStream) Dropped() uint64 {
	return d.dropped.Load()
}

// Run connects and reads snapshots until ctx is cancelled or Close is
// called, reconnecting with exponential backoff plus jitter on failure.
func (d *DepthStream) Run(ctx context.Context) error {
	delay := depthReconnectDelay
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-d.done:
			return nil
		default:
		}

		err := d.runConnection(ctx)
		if err == nil {
			return nil
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}
		select {
		case <-d.done:
			return nil
		default:
		}

		// Backoff with jitter so a herd of streams does not reconnect in
		// lockstep after an exchange-side disconnect.
		jitter := time.Duration(rand.Int63n(int64(delay) / 2))
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-d.done:
			return nil
		case <-time.After(delay + jitter):
		}
		delay *= 2
		if delay > depthMaxReconnectDelay {
			delay = depthMaxReconnectDelay
		}
	}
}

// runConnection dials once and reads until the connection drops.
func (d *DepthStream) runConnection(ctx context.Context) error {
	dialer := websocket.Dialer{HandshakeTimeout: 15 * time.Second}
	conn, _, err := dialer.DialContext(ctx, d.wsURL, nil)
	if err != nil {
		return fmt.Errorf("binance: depth stream %s connect: %w", d.symbol, err)
	}
	defer conn.Close()

	conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPingHandler(func(appData string) error {
		conn.SetReadDeadline(time.Now().Add(pongWait))
		conn.SetWriteDeadline(time.Now().Add(writeWait))
		return conn.WriteControl(websocket.PongMessage, []byte(appData), time.Now().Add(writeWait))
	})

	// Close the socket when the stream is shut down so ReadMessage unblocks.
	stop := make(chan struct{})
	defer close(stop)
	go func() {
		select {
		case <-ctx.Done():
		case <-d.done:
		case <-stop:
			return
		}
		conn.Close()
	}()

	for {
		select {
		case <-d.done:
			return nil
		default:
		}

		_, message, err := conn.ReadMessage()
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			select {
			case <-d.done:
				return nil
			default:
			}
			return fmt.Errorf("binance: depth stream %s read: %w", d.symbol, err)
		}

		var msg depthMsg
		if err := json.Unmarshal(message, &msg); err != nil {
			d.dropped.Add(1)
			continue
		}
		book, ok := msg.toDomainBook(d.symbol, time.Now())
		if !ok {
			d.dropped.Add(1)
			continue
		}

		// Replace the pending snapshot rather than block.
		select {
		case d.books <- book:
		default:
			select {
			case <-d.books:
			default:
			}
			select {
			case d.books <- book:
			default:
			}
		}
	}
}

// Close stops the stream. Idempotent; no snapshots are delivered afterward.
func (d *DepthStream) Close() {
	d.closeOnce.Do(func() { close(d.done) })
}

// DepthDialer creates depth streams against one WebSocket host with fixed
// levels and update interval. It satisfies the depth pool's dialer
// interface.
type DepthDialer struct {
	WsHost   string
	Levels   int
	UpdateMs int
}

// Dial creates a stream for the given symbol.
func (d DepthDialer) Dial(symbol string) *DepthStream {
	return NewDepthStream(d.WsHost, symbol, d.Levels, d.UpdateMs)
}
