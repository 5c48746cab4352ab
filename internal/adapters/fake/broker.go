// Package fake implements a deterministic, in-memory-plus-sqlite Broker
// Adapter for exercising the executor and for paper-trading style dry runs
// without a live broker connection. Every order is filled immediately
// according to an injectable FillPolicy; the event log is persisted to a
// SQLite-backed ledger the same way the teacher's trade ledger works.
package fake

import (
	"database/sql"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	_ "modernc.org/sqlite"

	"github.com/arutneva1/IB-Trade/internal/domain"
	"github.com/arutneva1/IB-Trade/internal/errs"
)

const eventsSchema = `
CREATE TABLE IF NOT EXISTS events (
	id         INTEGER PRIMARY KEY AUTOINCREMENT,
	order_id   TEXT NOT NULL,
	kind       TEXT NOT NULL,
	symbol     TEXT NOT NULL,
	side       TEXT NOT NULL,
	quantity   REAL NOT NULL,
	price      REAL,
	detail     TEXT,
	created_at TEXT NOT NULL
)`

// FillPolicy decides whether and at what price/quantity a placed order
// fills. Returning ok=false leaves the order outstanding (the executor will
// cancel it once its batch's wait completes).
type FillPolicy func(order domain.Order, quote domain.Quote) (fill domain.Fill, ok bool)

// FullFillAtLimitOrMid is the default FillPolicy: it fills the entire
// order quantity, at the order's own limit price if it has one, else at the
// quote mid (falling back to whichever side is quoted, then last). It
// declines to fill when neither a limit nor any quote price is available.
func FullFillAtLimitOrMid(order domain.Order, quote domain.Quote) (domain.Fill, bool) {
	price := 0.0
	switch {
	case order.LimitPrice != nil:
		price = *order.LimitPrice
	default:
		if mid, ok := quote.Mid(); ok {
			price = mid
		} else {
			return domain.Fill{}, false
		}
	}
	return domain.Fill{
		Contract: order.Contract,
		Side:     order.Side,
		Quantity: order.Quantity,
		Price:    price,
	}, true
}

// Broker is a deterministic BrokerAdapter suitable for report_only/dry_run
// runs, integration tests, and CI smoke tests.
type Broker struct {
	mu sync.Mutex

	db  *sql.DB
	log zerolog.Logger

	contracts map[string]domain.ContractRef
	quotes    map[string]domain.Quote
	positions map[string]float64
	cash      map[string]float64

	fillPolicy FillPolicy
	now        func() time.Time

	orders   map[string]domain.Order
	eventLog []domain.EventLogEntry

	lastEventTime time.Time
}

// Config seeds a Broker's starting state.
type Config struct {
	DBPath     string // ":memory:" is valid and typical for tests
	Contracts  map[string]domain.ContractRef
	Quotes     map[string]domain.Quote
	Positions  map[string]float64
	Cash       map[string]float64
	FillPolicy FillPolicy // nil uses FullFillAtLimitOrMid

	// Now supplies the event-log clock. nil uses time.Now; scenario replays
	// inject a fixed or stepped clock so re-runs produce identical logs.
	Now func() time.Time
}

// New opens (creating if needed) the event-log database and returns a ready
// Broker.
func New(cfg Config, log zerolog.Logger) (*Broker, error) {
	db, err := sql.Open("sqlite", cfg.DBPath)
	if err != nil {
		return nil, errs.NewConnectionError(err, "open fake broker event log")
	}
	if _, err := db.Exec(eventsSchema); err != nil {
		return nil, errs.NewConnectionError(err, "create events table")
	}

	policy := cfg.FillPolicy
	if policy == nil {
		policy = FullFillAtLimitOrMid
	}
	now := cfg.Now
	if now == nil {
		now = time.Now
	}

	return &Broker{
		db:         db,
		log:        log.With().Str("adapter", "fake").Logger(),
		contracts:  cfg.Contracts,
		quotes:     cfg.Quotes,
		positions:  cfg.Positions,
		cash:       cfg.Cash,
		fillPolicy: policy,
		now:        now,
		orders:     make(map[string]domain.Order),
	}, nil
}

// Close releases the underlying database handle.
func (b *Broker) Close() error {
	return b.db.Close()
}

func (b *Broker) Resolve(symbol string) (domain.ContractRef, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	c, ok := b.contracts[symbol]
	if !ok {
		return domain.ContractRef{}, errs.NewResolutionError(nil, "unknown symbol "+symbol)
	}
	return c, nil
}

func (b *Broker) GetQuote(symbol string) (domain.Quote, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	q, ok := b.quotes[symbol]
	if !ok {
		return domain.Quote{}, errs.NewRuntimeError("no quote for %s", symbol)
	}
	return q, nil
}

func (b *Broker) GetPositions() (map[string]float64, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := make(map[string]float64, len(b.positions))
	for k, v := range b.positions {
		out[k] = v
	}
	return out, nil
}

func (b *Broker) GetAccountValues() (map[string]float64, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := make(map[string]float64, len(b.cash))
	for k, v := range b.cash {
		out[k] = v
	}
	return out, nil
}

func (b *Broker) PlaceOrder(order domain.Order) (string, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	id := uuid.NewString()
	b.orders[id] = order
	b.recordEvent(id, domain.EventPlaced, order, 0, "")

	b.log.Debug().
		Str("order_id", id).
		Str("symbol", order.Contract.Symbol).
		Str("side", string(order.Side)).
		Float64("quantity", order.Quantity).
		Msg("order placed")

	return id, nil
}

func (b *Broker) Cancel(orderID string) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	order, ok := b.orders[orderID]
	if !ok {
		return errs.NewResolutionError(nil, "unknown order id "+orderID)
	}
	b.recordEvent(orderID, domain.EventCanceled, order, 0, "")
	delete(b.orders, orderID)
	return nil
}

// WaitForFills resolves every still-open id in ids against the fill policy
// immediately (this adapter has no real latency to wait out) and records
// the resulting fill events. Orders the policy declines to fill are left
// open for the caller to cancel.
func (b *Broker) WaitForFills(ids []string, timeout *time.Duration) ([]domain.Fill, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	var fills []domain.Fill
	for _, id := range ids {
		order, ok := b.orders[id]
		if !ok {
			continue // already resolved (filled or canceled) by a prior call
		}
		quote := b.quotes[order.Contract.Symbol]
		fill, filled := b.fillPolicy(order, quote)
		if !filled {
			continue
		}
		fill.OrderID = id

		b.applyFill(order, fill)
		b.recordEvent(id, domain.EventFilled, order, fill.Price, "")
		fill.Timestamp = b.lastEventTime.UnixNano()
		delete(b.orders, id)
		fills = append(fills, fill)
	}
	return fills, nil
}

func (b *Broker) applyFill(order domain.Order, fill domain.Fill) {
	symbol := order.Contract.Symbol
	delta := fill.Quantity
	if fill.Side == domain.SideSell {
		delta = -delta
	}
	b.positions[symbol] += delta

	notional := fill.Quantity * fill.Price
	if fill.Side == domain.SideBuy {
		b.cash[order.Contract.Currency] -= notional
	} else {
		b.cash[order.Contract.Currency] += notional
	}
}

// nextEventTime returns a timestamp strictly after every previously recorded
// event, bumping by at least 1µs on collision so the event log stays
// strictly time-monotone even when two events land in the same clock tick
// (spec §5).
func (b *Broker) nextEventTime() time.Time {
	now := b.now()
	if !b.lastEventTime.IsZero() && !now.After(b.lastEventTime) {
		now = b.lastEventTime.Add(time.Microsecond)
	}
	b.lastEventTime = now
	return now
}

func (b *Broker) recordEvent(orderID string, kind domain.EventKind, order domain.Order, price float64, detail string) {
	now := b.nextEventTime()
	entry := domain.EventLogEntry{OrderID: orderID, Kind: kind, Timestamp: now, Detail: detail}
	b.eventLog = append(b.eventLog, entry)

	var priceArg interface{}
	if price != 0 {
		priceArg = price
	}
	_, err := b.db.Exec(
		`INSERT INTO events (order_id, kind, symbol, side, quantity, price, detail, created_at) VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		orderID, string(kind), order.Contract.Symbol, string(order.Side), order.Quantity, priceArg, detail, now.Format(time.RFC3339Nano),
	)
	if err != nil {
		b.log.Warn().Err(err).Str("order_id", orderID).Msg("failed to persist event log entry")
	}
}

// EventLog returns the in-memory event log, time-ordered.
func (b *Broker) EventLog() []domain.EventLogEntry {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := make([]domain.EventLogEntry, len(b.eventLog))
	copy(out, b.eventLog)
	sort.SliceStable(out, func(i, j int) bool { return out[i].Timestamp.Before(out[j].Timestamp) })
	return out
}

// LoadEventLog replays the persisted events table back into memory, for a
// Broker reopened against an existing database file.
func (b *Broker) LoadEventLog() error {
	b.mu.Lock()
	defer b.mu.Unlock()

	rows, err := b.db.Query(`SELECT order_id, kind, created_at, detail FROM events ORDER BY id ASC`)
	if err != nil {
		return errs.NewConnectionError(err, "load event log")
	}
	defer rows.Close()

	var entries []domain.EventLogEntry
	for rows.Next() {
		var orderID, kind, createdAt, detail string
		if err := rows.Scan(&orderID, &kind, &createdAt, &detail); err != nil {
			return errs.NewConnectionError(err, "scan event log row")
		}
		ts, err := time.Parse(time.RFC3339Nano, createdAt)
		if err != nil {
			return errs.NewConnectionError(err, fmt.Sprintf("parse event timestamp %q", createdAt))
		}
		entries = append(entries, domain.EventLogEntry{OrderID: orderID, Kind: domain.EventKind(kind), Timestamp: ts, Detail: detail})
	}
	if err := rows.Err(); err != nil {
		return errs.NewConnectionError(err, "iterate event log rows")
	}

	b.eventLog = entries
	return nil
}

var _ domain.BrokerAdapter = (*Broker)(nil)
