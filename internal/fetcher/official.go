package fetcher

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"sort"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
)

const yahooChartPath = "/v8/finance/chart/"

// OfficialOptions parameterise the Yahoo Finance history fetcher.
type OfficialOptions struct {
	BaseURL   string
	Symbol    string
	Range     string
	Interval  string
	Timeout   time.Duration
	UserAgent string
}

// Official fetches the official daily close history from the Yahoo Finance chart API.
type Official struct {
	opts    OfficialOptions
	logger  zerolog.Logger
	client  *http.Client
	baseURL string
}

// NewOfficial builds a new official rate fetcher.
func NewOfficial(opts OfficialOptions, logger zerolog.Logger) *Official {
	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}

	baseURL := strings.TrimRight(opts.BaseURL, "/")
	if baseURL == "" {
		baseURL = "https://query1.finance.yahoo.com"
	}
	if opts.Range == "" {
		opts.Range = "1mo"
	}
	if opts.Interval == "" {
		opts.Interval = "1d"
	}

	return &Official{
		opts:    opts,
		logger:  logger.With().Str("component", "official_fetcher").Logger(),
		client:  &http.Client{Timeout: timeout},
		baseURL: baseURL,
	}
}

// FetchHistory retrieves the daily closes for the configured symbol, oldest first.
func (o *Official) FetchHistory(ctx context.Context) ([]DailyClose, error) {
	if strings.TrimSpace(o.opts.Symbol) == "" {
		return nil, fmt.Errorf("market symbol not configured")
	}

	query := url.Values{}
	query.Set("range", o.opts.Range)
	query.Set("interval", o.opts.Interval)
	endpoint := o.baseURL + yahooChartPath + url.PathEscape(o.opts.Symbol) + "?" + query.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, http.NoBody)
	if err != nil {
		return nil, fmt.Errorf("create chart request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if ua := strings.TrimSpace(o.opts.UserAgent); ua != "" {
		req.Header.Set("User-Agent", ua)
	}

	resp, err := o.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetch chart: %w", err)
	}
	defer resp.Body.Close()

	payload, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read chart body: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		return nil, parseChartError(resp.StatusCode, payload)
	}

	var chart chartResponse
	if err := json.Unmarshal(payload, &chart); err != nil {
		return nil, fmt.Errorf("decode chart: %w", err)
	}
	if chart.Chart.Error != nil {
		return nil, fmt.Errorf("yahoo api error: %s", chart.Chart.Error.Description)
	}

	history := chart.closes()
	if len(history) == 0 {
		return nil, ErrNoData
	}

	o.logger.Debug().
		Str("symbol", o.opts.Symbol).
		Int("points", len(history)).
		Time("last", history[len(history)-1].Date).
		Msg("history fetched")

	return history, nil
}

type chartResponse struct {
	Chart struct {
		Result []chartResult `json:"result"`
		Error  *chartError   `json:"error"`
	} `json:"chart"`
}

type chartResult struct {
	Timestamp  []int64 `json:"timestamp"`
	Indicators struct {
		Quote []struct {
			Close []*float64 `json:"close"`
		} `json:"quote"`
	} `json:"indicators"`
}

type chartError struct {
	Code        string `json:"code"`
	Description string `json:"description"`
}

func (c chartResponse) closes() []DailyClose {
	if len(c.Chart.Result) == 0 {
		return nil
	}

	result := c.Chart.Result[0]
	if len(result.Indicators.Quote) == 0 {
		return nil
	}

	closes := result.Indicators.Quote[0].Close
	out := make([]DailyClose, 0, len(result.Timestamp))
	for i, ts := range result.Timestamp {
		if i >= len(closes) || closes[i] == nil || *closes[i] <= 0 {
			continue // null bar (holiday or still-open session without data)
		}
		out = append(out, DailyClose{
			Date:  time.Unix(ts, 0).UTC(),
			Close: decimal.NewFromFloat(*closes[i]),
		})
	}

	sort.SliceStable(out, func(i, j int) bool { return out[i].Date.Before(out[j].Date) })
	return out
}

func parseChartError(status int, payload []byte) error {
	var chart chartResponse
	if err := json.Unmarshal(payload, &chart); err == nil && chart.Chart.Error != nil {
		return fmt.Errorf("yahoo api error (%d): %s", status, chart.Chart.Error.Description)
	}
	if len(payload) > 0 {
		return fmt.Errorf("yahoo api error (%d): %s", status, strings.TrimSpace(string(payload)))
	}
	return fmt.Errorf("yahoo api error (%d)", status)
}

var _ HistoryFetcher = (*Official)(nil)
