package fetcher

import (
	"context"
	"fmt"
	"net/http"
	"regexp"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
)

var numberPattern = regexp.MustCompile(`\d+(?:[.,]\d+)*`)

// StreetOptions parameterise the parallel market scraper.
type StreetOptions struct {
	URL       string
	Selector  string
	Index     int
	Timeout   time.Duration
	UserAgent string
}

// Street scrapes the parallel market sell quote from a public aggregator page.
// The page contract is positional: the element at Index among the Selector
// matches holds the quote.
type Street struct {
	opts   StreetOptions
	logger zerolog.Logger
	client *http.Client
}

// NewStreet constructs a street quote scraper.
func NewStreet(opts StreetOptions, logger zerolog.Logger) *Street {
	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}

	return &Street{
		opts:   opts,
		logger: logger.With().Str("component", "street_fetcher").Logger(),
		client: &http.Client{Timeout: timeout},
	}
}

// FetchStreet retrieves and parses the street quote.
func (s *Street) FetchStreet(ctx context.Context) (decimal.Decimal, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, s.opts.URL, http.NoBody)
	if err != nil {
		return decimal.Decimal{}, fmt.Errorf("create street request: %w", err)
	}
	req.Header.Set("Accept", "text/html")
	if ua := strings.TrimSpace(s.opts.UserAgent); ua != "" {
		req.Header.Set("User-Agent", ua)
	}

	resp, err := s.client.Do(req)
	if err != nil {
		return decimal.Decimal{}, fmt.Errorf("fetch street page: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return decimal.Decimal{}, fmt.Errorf("invalid status code received: %d", resp.StatusCode)
	}

	doc, err := goquery.NewDocumentFromReader(resp.Body)
	if err != nil {
		return decimal.Decimal{}, fmt.Errorf("parse street html: %w", err)
	}

	matches := doc.Find(s.opts.Selector)
	if matches.Length() <= s.opts.Index {
		return decimal.Decimal{}, fmt.Errorf("%w: found %d, need %d", ErrTooFewMatches, matches.Length(), s.opts.Index+1)
	}

	raw := strings.TrimSpace(matches.Eq(s.opts.Index).Text())
	price, err := parseQuote(raw)
	if err != nil {
		return decimal.Decimal{}, err
	}

	s.logger.Debug().Str("raw", raw).Str("price", price.String()).Msg("street quote parsed")
	return price, nil
}

// parseQuote extracts the numeric quote from text such as "S/ 3.712" or "3,712".
func parseQuote(raw string) (decimal.Decimal, error) {
	token := numberPattern.FindString(raw)
	if token == "" {
		return decimal.Decimal{}, fmt.Errorf("no number in %q", raw)
	}

	// A lone comma is a decimal separator; with both present the last one wins.
	lastDot := strings.LastIndex(token, ".")
	lastComma := strings.LastIndex(token, ",")
	switch {
	case lastComma > lastDot:
		token = strings.ReplaceAll(token, ".", "")
		token = strings.Replace(token, ",", ".", 1)
	default:
		token = strings.ReplaceAll(token, ",", "")
	}

	price, err := decimal.NewFromString(token)
	if err != nil {
		return decimal.Decimal{}, fmt.Errorf("parse quote %q: %w", raw, err)
	}
	if !price.IsPositive() {
		return decimal.Decimal{}, fmt.Errorf("non-positive quote %q", raw)
	}
	return price, nil
}

var _ StreetQuoteFetcher = (*Street)(nil)
