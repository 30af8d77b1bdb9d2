package fetcher

import (
	"context"
	"errors"
	"time"

	"github.com/shopspring/decimal"
)

var (
	// ErrNoData indicates the provider answered but returned no usable closes.
	ErrNoData = errors.New("fetcher: no data returned")
	// ErrTooFewMatches indicates the scraped page lacks the expected price elements.
	ErrTooFewMatches = errors.New("fetcher: too few price elements")
)

// DailyClose is a single daily closing price.
type DailyClose struct {
	Date  time.Time
	Close decimal.Decimal
}

// HistoryFetcher retrieves the trailing daily close history, oldest first.
type HistoryFetcher interface {
	FetchHistory(ctx context.Context) ([]DailyClose, error)
}

// StreetQuoteFetcher retrieves the parallel market quote.
type StreetQuoteFetcher interface {
	FetchStreet(ctx context.Context) (decimal.Decimal, error)
}

// Closes extracts the close column.
func Closes(history []DailyClose) []decimal.Decimal {
	out := make([]decimal.Decimal, len(history))
	for i, bar := range history {
		out[i] = bar.Close
	}
	return out
}
