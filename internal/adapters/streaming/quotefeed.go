// Package streaming maintains a live, thread-safe quote cache fed by a
// WebSocket subscription, the same shape as the teacher's market-status
// WebSocket client: dial, read loop, exponential-backoff reconnect, and a
// quote cache guarded by its own read-write lock, separate from the
// connection state.
package streaming

import (
	"context"
	"encoding/json"
	"fmt"
	"math"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"nhooyr.io/websocket"

	"github.com/arutneva1/IB-Trade/internal/domain"
)

const (
	writeWait   = 10 * time.Second
	dialTimeout = 30 * time.Second

	baseReconnectDelay   = 5 * time.Second
	maxReconnectDelay    = 1 * time.Minute
	maxReconnectAttempts = 10
)

// tick is the wire shape of one symbol's quote update. A message is a JSON
// object mapping each symbol to its tick: {"SYMBOL": {bid,ask,last,ts}},
// with ts in unix nanoseconds.
type tick struct {
	Bid   *float64 `json:"bid"`
	Ask   *float64 `json:"ask"`
	Last  *float64 `json:"last"`
	Epoch int64    `json:"ts"`
}

// QuoteFeed subscribes to a set of symbols over a WebSocket endpoint and
// keeps a local cache of the latest Quote per symbol, refreshed as updates
// arrive.
type QuoteFeed struct {
	url     string
	symbols []string
	log     zerolog.Logger

	mu         sync.RWMutex
	conn       *websocket.Conn
	connCtx    context.Context
	cancelFunc context.CancelFunc
	connected  bool
	stopped    bool
	stopChan   chan struct{}

	cacheMu sync.RWMutex
	cache   map[string]domain.Quote
}

// NewQuoteFeed returns a feed ready to Start against url, caching quotes for
// symbols.
func NewQuoteFeed(url string, symbols []string, log zerolog.Logger) *QuoteFeed {
	return &QuoteFeed{
		url:      url,
		symbols:  symbols,
		log:      log.With().Str("component", "quote_feed").Logger(),
		stopChan: make(chan struct{}),
		cache:    make(map[string]domain.Quote),
	}
}

// Start dials the feed and begins the read loop. On failure it starts a
// background reconnect loop and then returns the dial error, so the caller
// learns of the failure while reconnection carries on for a data source
// that isn't load-bearing for correctness.
func (f *QuoteFeed) Start() error {
	if err := f.connect(); err != nil {
		f.log.Warn().Err(err).Msg("initial quote feed connection failed, retrying in background")
		go f.reconnectLoop()
		return err
	}

	f.mu.RLock()
	ctx := f.connCtx
	f.mu.RUnlock()
	go f.readLoop(ctx)
	return nil
}

// Stop closes the connection and halts reconnection attempts.
func (f *QuoteFeed) Stop() error {
	f.mu.Lock()
	if f.stopped {
		f.mu.Unlock()
		return nil
	}
	f.stopped = true
	f.mu.Unlock()

	close(f.stopChan)
	return f.disconnect()
}

func (f *QuoteFeed) connect() error {
	f.mu.Lock()
	defer f.mu.Unlock()

	dialCtx, cancel := context.WithTimeout(context.Background(), dialTimeout)
	defer cancel()

	conn, _, err := websocket.Dial(dialCtx, f.url, nil)
	if err != nil {
		return fmt.Errorf("dial quote feed: %w", err)
	}

	connCtx, connCancel := context.WithCancel(context.Background())
	f.conn = conn
	f.connCtx = connCtx
	f.cancelFunc = connCancel
	f.connected = true

	if err := f.subscribe(connCtx); err != nil {
		connCancel()
		conn.Close(websocket.StatusNormalClosure, "subscribe failed")
		f.conn, f.connCtx, f.cancelFunc, f.connected = nil, nil, nil, false
		return fmt.Errorf("subscribe to quote feed: %w", err)
	}

	return nil
}

func (f *QuoteFeed) disconnect() error {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.conn == nil {
		return nil
	}
	if f.cancelFunc != nil {
		f.cancelFunc()
		f.cancelFunc = nil
	}
	err := f.conn.Close(websocket.StatusNormalClosure, "")
	f.conn, f.connCtx, f.connected = nil, nil, false
	if err != nil {
		return fmt.Errorf("close quote feed: %w", err)
	}
	return nil
}

func (f *QuoteFeed) subscribe(ctx context.Context) error {
	data, err := json.Marshal(map[string]any{"subscribe": f.symbols})
	if err != nil {
		return fmt.Errorf("marshal subscription: %w", err)
	}
	writeCtx, cancel := context.WithTimeout(ctx, writeWait)
	defer cancel()
	return f.conn.Write(writeCtx, websocket.MessageText, data)
}

func (f *QuoteFeed) readLoop(ctx context.Context) {
	defer func() {
		f.mu.RLock()
		stopped := f.stopped
		f.mu.RUnlock()
		if !stopped {
			go f.reconnectLoop()
		}
	}()

	for {
		select {
		case <-f.stopChan:
			return
		case <-ctx.Done():
			return
		default:
		}

		f.mu.RLock()
		conn := f.conn
		f.mu.RUnlock()
		if conn == nil {
			return
		}

		msgType, message, err := conn.Read(ctx)
		if err != nil {
			status := websocket.CloseStatus(err)
			if status != websocket.StatusNormalClosure && status != websocket.StatusGoingAway && ctx.Err() == nil {
				f.log.Error().Err(err).Msg("unexpected quote feed read error")
			}
			return
		}
		if msgType != websocket.MessageText {
			continue
		}
		if err := f.handleMessage(message); err != nil {
			f.log.Debug().Err(err).Msg("failed to handle quote feed message")
		}
	}
}

func (f *QuoteFeed) handleMessage(message []byte) error {
	var payload map[string]tick
	if err := json.Unmarshal(message, &payload); err != nil {
		return fmt.Errorf("unmarshal quote tick: %w", err)
	}

	f.cacheMu.Lock()
	for symbol, t := range payload {
		f.cache[symbol] = domain.Quote{
			Bid:       t.Bid,
			Ask:       t.Ask,
			Last:      t.Last,
			Timestamp: time.Unix(0, t.Epoch),
		}
	}
	f.cacheMu.Unlock()
	return nil
}

func (f *QuoteFeed) reconnectLoop() {
	attempt := 0
	for {
		select {
		case <-f.stopChan:
			return
		default:
		}

		f.mu.RLock()
		stopped := f.stopped
		f.mu.RUnlock()
		if stopped {
			return
		}

		attempt++
		if attempt > maxReconnectAttempts {
			f.log.Error().Int("attempts", attempt-1).Msg("quote feed giving up after max reconnect attempts")
			return
		}
		delay := backoff(attempt)

		select {
		case <-time.After(delay):
		case <-f.stopChan:
			return
		}

		if err := f.connect(); err != nil {
			f.log.Debug().Err(err).Int("attempt", attempt).Msg("quote feed reconnect failed")
			continue
		}

		f.mu.RLock()
		ctx := f.connCtx
		f.mu.RUnlock()
		go f.readLoop(ctx)
		return
	}
}

func backoff(attempt int) time.Duration {
	delay := float64(baseReconnectDelay) * math.Pow(2, float64(attempt-1))
	if delay > float64(maxReconnectDelay) {
		delay = float64(maxReconnectDelay)
	}
	return time.Duration(delay)
}

// GetQuote returns the cached quote for symbol, if any has arrived yet.
func (f *QuoteFeed) GetQuote(symbol string) (domain.Quote, bool) {
	f.cacheMu.RLock()
	defer f.cacheMu.RUnlock()
	q, ok := f.cache[symbol]
	return q, ok
}

// Snapshot returns a copy of every cached quote.
func (f *QuoteFeed) Snapshot() map[string]domain.Quote {
	f.cacheMu.RLock()
	defer f.cacheMu.RUnlock()
	out := make(map[string]domain.Quote, len(f.cache))
	for k, v := range f.cache {
		out[k] = v
	}
	return out
}

// IsConnected reports whether the underlying WebSocket is currently up.
func (f *QuoteFeed) IsConnected() bool {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return f.connected
}
