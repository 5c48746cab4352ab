// Package marketdata provides a fallback quote source for symbols the
// primary streaming feed hasn't cached yet, backed by Yahoo Finance. It
// exists for the pricing fallback path spec.md's PricingConfig describes
// (FallbackToSnapshot): a best-effort, not-latency-sensitive source used
// only when the live feed has nothing for a symbol.
package marketdata

import (
	"fmt"
	"time"

	"github.com/rs/zerolog"
	"github.com/wnjoon/go-yfinance/pkg/models"
	"github.com/wnjoon/go-yfinance/pkg/ticker"

	"github.com/arutneva1/IB-Trade/internal/domain"
	"github.com/arutneva1/IB-Trade/internal/errs"
)

// quoter is the narrow per-symbol surface YahooSource needs from a
// go-yfinance ticker, kept as an interface so tests can substitute a fake
// rather than hitting the network.
type quoter interface {
	Quote() (*models.Quote, error)
}

// openTicker creates a quoter for one symbol plus a cleanup to release it;
// the default implementation wraps ticker.New.
type openTicker func(symbol string) (quoter, func(), error)

// YahooSource fetches point-in-time quotes from Yahoo Finance.
type YahooSource struct {
	open openTicker
	log  zerolog.Logger
}

// NewYahooSource returns a ready YahooSource backed by the real go-yfinance
// ticker client.
func NewYahooSource(log zerolog.Logger) *YahooSource {
	return &YahooSource{
		open: func(symbol string) (quoter, func(), error) {
			t, err := ticker.New(symbol)
			if err != nil {
				return nil, nil, err
			}
			return t, func() { t.Close() }, nil
		},
		log: log.With().Str("client", "yahoo").Logger(),
	}
}

// NewYahooSourceWithOpener wires a caller-supplied ticker opener, for tests.
func NewYahooSourceWithOpener(open openTicker, log zerolog.Logger) *YahooSource {
	return &YahooSource{open: open, log: log.With().Str("client", "yahoo").Logger()}
}

// FetchQuote retrieves the latest observed price for symbol. Yahoo's consumer
// feed reports a regular-market trade price (with pre/post-market variants
// outside RTH) rather than a live NBBO, so only Last is populated; Bid/Ask
// stay nil rather than being faked from the trade price.
func (s *YahooSource) FetchQuote(symbol string, now time.Time) (domain.Quote, error) {
	t, closeTicker, err := s.open(symbol)
	if err != nil {
		return domain.Quote{}, errs.NewConnectionError(err, fmt.Sprintf("open yahoo ticker for %s", symbol))
	}
	defer closeTicker()

	quote, err := t.Quote()
	if err != nil {
		return domain.Quote{}, errs.NewConnectionError(err, fmt.Sprintf("fetch yahoo quote for %s", symbol))
	}
	if quote == nil {
		return domain.Quote{}, errs.NewRuntimeError("no quote data returned for %s", symbol)
	}

	price := quote.RegularMarketPrice
	if price <= 0 && quote.PreMarketPrice > 0 {
		price = quote.PreMarketPrice
	}
	if price <= 0 && quote.PostMarketPrice > 0 {
		price = quote.PostMarketPrice
	}
	if price <= 0 {
		return domain.Quote{}, errs.NewRuntimeError("no usable price for %s", symbol)
	}

	return domain.Quote{Last: &price, Timestamp: now}, nil
}
