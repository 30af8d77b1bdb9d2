package app

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/shopspring/decimal"

	"penwatch/internal/storage"
)

// Show prints recent runs.
func (a *App) Show(ctx context.Context, opts ShowOptions) error {
	store, closeStore, err := a.openStore(ctx)
	if err != nil {
		return err
	}
	if store == nil {
		return errors.New("database not configured; cannot show runs")
	}
	if closeStore != nil {
		defer closeStore()
	}

	runs, err := store.ListRecentRuns(ctx, opts.Limit)
	if err != nil {
		return err
	}
	if len(runs) == 0 {
		fmt.Fprintln(a.Out, "no runs found")
		return nil
	}

	return writeRuns(a.Out, runs, a.Config.Location())
}

func writeRuns(out io.Writer, runs []storage.RunRecord, loc *time.Location) error {
	writer := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(writer, "Time\tOfficial\tStreet\tReference\tMin\tMax\tNotified\tGreeting\tCategory\tStatus\tError")

	for _, run := range runs {
		errMsg := ""
		if run.Error != nil {
			errMsg = sanitizeInline(*run.Error)
		}
		fmt.Fprintf(
			writer,
			"%s\t%s\t%s\t%s\t%s\t%s\t%t\t%s\t%s\t%s\t%s\n",
			run.ObservedAt.In(loc).Format("2006-01-02 15:04"),
			formatNullDecimal(run.Official, 3),
			formatNullDecimal(run.Street, 3),
			formatNullDecimal(run.Reference, 3),
			formatNullDecimal(run.RangeMin, 3),
			formatNullDecimal(run.RangeMax, 3),
			run.Notified,
			dash(run.Greeting),
			dash(run.Category),
			run.Status,
			errMsg,
		)
	}

	return writer.Flush()
}

func formatNullDecimal(d decimal.NullDecimal, places int32) string {
	if !d.Valid {
		return "-"
	}
	return d.Decimal.StringFixed(places)
}

func dash(v string) string {
	if v == "" {
		return "-"
	}
	return v
}

func sanitizeInline(v string) string {
	cleaned := strings.ReplaceAll(v, "\n", " ")
	cleaned = strings.ReplaceAll(cleaned, "\r", " ")
	return cleaned
}
