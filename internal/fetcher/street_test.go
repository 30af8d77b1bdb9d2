package fetcher

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const streetSelector = `[class*="ValueCurrency_item_cost"]`

const streetPage = `<html><body>
<div class="ExchangeHouse_row">
  <p class="ValueCurrency_item_cost__Abc12">S/ 3.695</p>
  <p class="ValueCurrency_item_cost__Abc12">S/ 3.712</p>
</div>
<div class="Parallel_row">
  <p class="ValueCurrency_item_cost__Xyz99">3,690</p>
  <p class="ValueCurrency_item_cost__Xyz99"> S/ 3,705 </p>
</div>
</body></html>`

func newStreetServer(t *testing.T, status int, body string) *httptest.Server {
	t.Helper()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("User-Agent") == "" {
			t.Errorf("user agent header should be set")
		}
		w.WriteHeader(status)
		_, _ = w.Write([]byte(body))
	}))
	t.Cleanup(srv.Close)

	return srv
}

func newTestStreet(url string) *Street {
	return NewStreet(StreetOptions{
		URL:       url,
		Selector:  streetSelector,
		Index:     3,
		Timeout:   time.Second,
		UserAgent: "Mozilla/5.0",
	}, noopLogger())
}

func TestStreetFetchFourthElement(t *testing.T) {
	srv := newStreetServer(t, http.StatusOK, streetPage)

	price, err := newTestStreet(srv.URL).FetchStreet(context.Background())
	require.NoError(t, err)

	assert.Equal(t, "3.705", price.String())
}

func TestStreetFetchTooFewMatches(t *testing.T) {
	srv := newStreetServer(t, http.StatusOK, `<p class="ValueCurrency_item_cost__a">3.7</p>`)

	_, err := newTestStreet(srv.URL).FetchStreet(context.Background())
	assert.ErrorIs(t, err, ErrTooFewMatches)
}

func TestStreetFetchBadStatus(t *testing.T) {
	srv := newStreetServer(t, http.StatusServiceUnavailable, streetPage)

	_, err := newTestStreet(srv.URL).FetchStreet(context.Background())
	assert.Error(t, err)
}

func TestStreetFetchUnparseableQuote(t *testing.T) {
	page := `<i class="ValueCurrency_item_cost">a</i><i class="ValueCurrency_item_cost">b</i>` +
		`<i class="ValueCurrency_item_cost">c</i><i class="ValueCurrency_item_cost">--</i>`
	srv := newStreetServer(t, http.StatusOK, page)

	_, err := newTestStreet(srv.URL).FetchStreet(context.Background())
	assert.Error(t, err)
}

func TestStreetFetchNetworkError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {}))
	url := srv.URL
	srv.Close()

	_, err := newTestStreet(url).FetchStreet(context.Background())
	assert.Error(t, err)
}

func TestParseQuote(t *testing.T) {
	cases := map[string]string{
		"S/ 3.712":   "3.712",
		"3,705":      "3.705",
		"1,234.50":   "1234.5",
		"1.234,50":   "1234.5",
		" S/3.7 ":    "3.7",
		"USD 3.6950": "3.695",
	}

	for raw, want := range cases {
		got, err := parseQuote(raw)
		require.NoError(t, err, raw)
		assert.Equal(t, want, got.String(), raw)
	}

	_, err := parseQuote("S/ --")
	assert.Error(t, err)

	_, err = parseQuote("0.000")
	assert.Error(t, err)
}
