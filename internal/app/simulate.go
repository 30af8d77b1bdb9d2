package app

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"penwatch/internal/fetcher"
)

// SimulateAlert evaluates static prices against the persisted state and sends
// the resulting message, leaving state and history untouched.
func (a *App) SimulateAlert(ctx context.Context, opts SimulateOptions) error {
	if !opts.Official.IsPositive() {
		return errors.New("official price must be positive")
	}
	if opts.Min.GreaterThan(opts.Max) {
		return errors.New("min must not exceed max")
	}
	if a.newNotifier() == nil {
		a.log.Warn().Msg("telegram credentials absent; message will only be printed")
	}

	history := staticHistory{closes: []decimal.Decimal{opts.Min, opts.Max, opts.Official}}
	var street fetcher.StreetQuoteFetcher
	if opts.Street.Valid {
		street = staticStreet{quote: opts.Street.Decimal}
	}

	svc := a.newService(nil, history, street, true)
	report, err := svc.RunOnce(ctx)
	if err != nil {
		return err
	}

	if !report.Outcome.Notify {
		fmt.Fprintf(a.Out, "no notification: price %s within range and below threshold\n", report.Price.StringFixed(3))
		return nil
	}
	fmt.Fprintln(a.Out, report.Message)
	return nil
}

type staticHistory struct {
	closes []decimal.Decimal
}

func (s staticHistory) FetchHistory(context.Context) ([]fetcher.DailyClose, error) {
	out := make([]fetcher.DailyClose, len(s.closes))
	today := time.Now().UTC().Truncate(24 * time.Hour)
	for i, c := range s.closes {
		out[i] = fetcher.DailyClose{Date: today.AddDate(0, 0, i-len(s.closes)+1), Close: c}
	}
	return out, nil
}

type staticStreet struct {
	quote decimal.Decimal
}

func (s staticStreet) FetchStreet(context.Context) (decimal.Decimal, error) {
	return s.quote, nil
}

var _ fetcher.HistoryFetcher = staticHistory{}
var _ fetcher.StreetQuoteFetcher = staticStreet{}
