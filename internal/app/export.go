package app

import (
	"context"
	"encoding/csv"
	"errors"
	"os"
	"path/filepath"
	"time"

	chart "github.com/wcharczuk/go-chart/v2"

	"penwatch/internal/decision"
	"penwatch/internal/fetcher"
)

// Export fetches the live trailing history and renders it as CSV and/or PNG.
func (a *App) Export(ctx context.Context, opts ExportOptions) error {
	if opts.CSVPath == "" && opts.PNGPath == "" {
		return errors.New("at least one of --csv or --png must be provided")
	}

	history, err := a.newHistoryFetcher().FetchHistory(ctx)
	if err != nil {
		return err
	}

	_, rng, err := decision.ComputeRange(fetcher.Closes(history))
	if err != nil {
		return err
	}

	a.log.Info().Int("points", len(history)).
		Str("min", rng.Min.String()).
		Str("max", rng.Max.String()).
		Msg("exporting history")

	if opts.CSVPath != "" {
		if err := writeHistoryCSV(opts.CSVPath, history); err != nil {
			return err
		}
	}

	if opts.PNGPath != "" {
		if err := writeHistoryPNG(opts.PNGPath, history, rng, a.Config.Market.Symbol, a.Config.Export.Width, a.Config.Export.Height); err != nil {
			return err
		}
	}

	return nil
}

func writeHistoryCSV(path string, history []fetcher.DailyClose) error {
	if err := ensureDir(path); err != nil {
		return err
	}

	file, err := os.Create(path)
	if err != nil {
		return err
	}
	defer file.Close()

	writer := csv.NewWriter(file)

	if err := writer.Write([]string{"date", "close"}); err != nil {
		return err
	}
	for _, bar := range history {
		if err := writer.Write([]string{bar.Date.Format(decision.DateLayout), bar.Close.String()}); err != nil {
			return err
		}
	}

	writer.Flush()
	return writer.Error()
}

// writeHistoryPNG plots the closes with the range bounds, which exclude the last close.
func writeHistoryPNG(path string, history []fetcher.DailyClose, rng decision.Range, symbol string, width, height int) error {
	if len(history) < 2 {
		return decision.ErrInsufficientHistory
	}
	if err := ensureDir(path); err != nil {
		return err
	}

	x := make([]time.Time, len(history))
	closes := make([]float64, len(history))
	for i, bar := range history {
		x[i] = bar.Date
		closes[i] = bar.Close.InexactFloat64()
	}

	bounds := []time.Time{x[0], x[len(x)-1]}
	minLine := rng.Min.InexactFloat64()
	maxLine := rng.Max.InexactFloat64()

	rateFormatter := func(v interface{}) string {
		return chart.FloatValueFormatterWithFormat(v, "%.3f")
	}
	graph := chart.Chart{
		Title:  symbol,
		Width:  width,
		Height: height,
		XAxis: chart.XAxis{
			ValueFormatter: chart.TimeDateValueFormatter,
		},
		YAxis: chart.YAxis{
			Name:           "PEN per USD",
			ValueFormatter: rateFormatter,
		},
		Series: []chart.Series{
			chart.TimeSeries{
				Name:    "Close",
				XValues: x,
				YValues: closes,
			},
			chart.TimeSeries{
				Name:    "Min",
				XValues: bounds,
				YValues: []float64{minLine, minLine},
				Style:   chart.Style{StrokeColor: chart.ColorGreen, StrokeDashArray: []float64{5, 5}},
			},
			chart.TimeSeries{
				Name:    "Max",
				XValues: bounds,
				YValues: []float64{maxLine, maxLine},
				Style:   chart.Style{StrokeColor: chart.ColorRed, StrokeDashArray: []float64{5, 5}},
			},
		},
	}
	graph.Elements = []chart.Renderable{chart.Legend(&graph)}

	file, err := os.Create(path)
	if err != nil {
		return err
	}
	defer file.Close()

	return graph.Render(chart.PNG, file)
}

func ensureDir(path string) error {
	dir := filepath.Dir(path)
	if dir == "." || dir == "" {
		return nil
	}
	return os.MkdirAll(dir, 0o755)
}
