package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"penwatch/internal/alerting"
	"penwatch/internal/decision"
	"penwatch/internal/fetcher"
	"penwatch/internal/state"
	"penwatch/internal/storage"
)

var lima = time.FixedZone("PET", -5*60*60)

func d(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

type historyFunc func(ctx context.Context) ([]fetcher.DailyClose, error)

func (f historyFunc) FetchHistory(ctx context.Context) ([]fetcher.DailyClose, error) { return f(ctx) }

type streetFunc func(ctx context.Context) (decimal.Decimal, error)

func (f streetFunc) FetchStreet(ctx context.Context) (decimal.Decimal, error) { return f(ctx) }

func closes(values ...string) historyFunc {
	return func(context.Context) ([]fetcher.DailyClose, error) {
		out := make([]fetcher.DailyClose, len(values))
		start := time.Date(2026, time.October, 1, 0, 0, 0, 0, time.UTC)
		for i, v := range values {
			out[i] = fetcher.DailyClose{Date: start.AddDate(0, 0, i), Close: d(v)}
		}
		return out, nil
	}
}

type recordingNotifier struct {
	mu    sync.Mutex
	notes []alerting.Notification
	err   error
}

func (n *recordingNotifier) Notify(_ context.Context, note alerting.Notification) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.notes = append(n.notes, note)
	return n.err
}

type memoryRuns struct {
	runs     []storage.RunRecord
	acquired bool
	locked   bool
	lockErr  error
}

func (m *memoryRuns) RecordRun(_ context.Context, run storage.RunRecord) error {
	m.runs = append(m.runs, run)
	return nil
}

func (m *memoryRuns) ListRecentRuns(_ context.Context, limit int) ([]storage.RunRecord, error) {
	return m.runs, nil
}

func (m *memoryRuns) TryAdvisoryLock(context.Context, int64) (func(), bool, error) {
	if m.lockErr != nil {
		return nil, false, m.lockErr
	}
	if m.locked {
		return nil, false, nil
	}
	m.acquired = true
	return func() {}, true, nil
}

func testEngine() *decision.Engine {
	return decision.NewEngine(decision.Policy{Threshold: d("0.003"), OpenHour: 9, CloseHour: 18})
}

func fixedNow(hour, minute int) func() time.Time {
	return func() time.Time { return time.Date(2026, time.October, 15, hour, minute, 0, 0, lima) }
}

func newStateFile(t *testing.T, rec *state.Record) *state.File {
	t.Helper()
	store := state.NewFile(filepath.Join(t.TempDir(), "estado.json"))
	if rec != nil {
		require.NoError(t, store.Save(*rec))
	}
	return store
}

func TestRunOnceNewLowScenario(t *testing.T) {
	states := newStateFile(t, &state.Record{LastPrice: d("3.80")})
	notifier := &recordingNotifier{}

	svc := New(closes("3.70", "3.75", "3.72", "3.68"), nil, states, nil, notifier, testEngine(),
		Options{Location: lima, Seed: 42, Now: fixedNow(11, 0)}, zerolog.Nop())

	report, err := svc.RunOnce(context.Background())
	require.NoError(t, err)

	assert.True(t, report.Outcome.Notify)
	assert.Equal(t, decision.CategoryLow, report.Outcome.Category)
	assert.True(t, report.Sent)
	assert.True(t, report.StateSaved)
	require.Len(t, notifier.notes, 1)
	assert.Contains(t, notifier.notes[0].Text, decision.SelectPhrase(decision.CategoryLow, 42).Title)
	assert.Equal(t, "low", notifier.notes[0].Category)

	rec, err := states.Load()
	require.NoError(t, err)
	assert.True(t, rec.LastPrice.Equal(d("3.68")))
}

func TestRunOnceSmallMoveLeavesStateUntouched(t *testing.T) {
	states := newStateFile(t, &state.Record{LastPrice: d("3.700")})
	before, err := os.ReadFile(states.Path())
	require.NoError(t, err)
	notifier := &recordingNotifier{}

	// prior closes span 3.65..3.75, official today 3.701
	svc := New(closes("3.65", "3.75", "3.70", "3.701"), nil, states, nil, notifier, testEngine(),
		Options{Location: lima, Now: fixedNow(11, 0)}, zerolog.Nop())

	report, err := svc.RunOnce(context.Background())
	require.NoError(t, err)

	assert.False(t, report.Outcome.Notify)
	assert.False(t, report.StateSaved)
	assert.Empty(t, notifier.notes)

	after, err := os.ReadFile(states.Path())
	require.NoError(t, err)
	assert.Equal(t, before, after)
}

func TestRunOnceMissingStreetUsesOfficialExactly(t *testing.T) {
	for name, street := range map[string]fetcher.StreetQuoteFetcher{
		"disabled": nil,
		"failing": streetFunc(func(context.Context) (decimal.Decimal, error) {
			return decimal.Zero, fetcher.ErrTooFewMatches
		}),
	} {
		t.Run(name, func(t *testing.T) {
			states := newStateFile(t, nil)
			svc := New(closes("3.70", "3.75", "3.7213"), street, states, nil, nil, testEngine(),
				Options{Location: lima, Now: fixedNow(11, 0)}, zerolog.Nop())

			report, err := svc.RunOnce(context.Background())
			require.NoError(t, err)

			assert.Equal(t, decision.SourceOfficial, report.Source)
			assert.False(t, report.Street.Valid)
			assert.True(t, report.Price.Equal(d("3.7213")))
			assert.True(t, report.Price.Equal(report.Official))
		})
	}
}

func TestRunOnceStreetQuoteIsReference(t *testing.T) {
	states := newStateFile(t, &state.Record{LastPrice: d("3.60")})
	street := streetFunc(func(context.Context) (decimal.Decimal, error) { return d("3.705"), nil })

	svc := New(closes("3.65", "3.75", "3.70"), street, states, nil, &recordingNotifier{}, testEngine(),
		Options{Location: lima, Now: fixedNow(11, 0)}, zerolog.Nop())

	report, err := svc.RunOnce(context.Background())
	require.NoError(t, err)

	assert.Equal(t, decision.SourceStreet, report.Source)
	assert.True(t, report.Price.Equal(d("3.705")))

	rec, err := states.Load()
	require.NoError(t, err)
	assert.True(t, rec.LastPrice.Equal(report.Price))
}

func TestRunOnceNotifyPersistsReferencePrice(t *testing.T) {
	cases := []struct {
		name   string
		last   string
		hour   int
		street string
	}{
		{name: "threshold", last: "3.60", hour: 11},
		{name: "greeting only", last: "3.70", hour: 9},
		{name: "street threshold", last: "3.60", hour: 13, street: "3.712"},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			states := newStateFile(t, &state.Record{LastPrice: d(tc.last)})
			var street fetcher.StreetQuoteFetcher
			if tc.street != "" {
				street = streetFunc(func(context.Context) (decimal.Decimal, error) { return d(tc.street), nil })
			}

			svc := New(closes("3.65", "3.75", "3.70"), street, states, nil, &recordingNotifier{}, testEngine(),
				Options{Location: lima, Now: fixedNow(tc.hour, 5)}, zerolog.Nop())

			report, err := svc.RunOnce(context.Background())
			require.NoError(t, err)
			require.True(t, report.Outcome.Notify)

			rec, err := states.Load()
			require.NoError(t, err)
			assert.True(t, rec.LastPrice.Equal(report.Price), "persisted %s, decided on %s", rec.LastPrice, report.Price)
		})
	}
}

func TestRunOnceSendFailureStillAdvancesState(t *testing.T) {
	states := newStateFile(t, &state.Record{LastPrice: d("3.60")})
	notifier := &recordingNotifier{err: errors.New("telegram down")}

	svc := New(closes("3.65", "3.75", "3.70"), nil, states, nil, notifier, testEngine(),
		Options{Location: lima, Now: fixedNow(11, 0)}, zerolog.Nop())

	report, err := svc.RunOnce(context.Background())
	require.NoError(t, err)
	assert.False(t, report.Sent)

	rec, err := states.Load()
	require.NoError(t, err)
	assert.True(t, rec.LastPrice.Equal(d("3.70")))
}

func TestRunOnceWithoutCredentialsSkipsSend(t *testing.T) {
	states := newStateFile(t, nil)

	svc := New(closes("3.65", "3.75", "3.70"), nil, states, nil, nil, testEngine(),
		Options{Location: lima, Now: fixedNow(11, 0)}, zerolog.Nop())

	report, err := svc.RunOnce(context.Background())
	require.NoError(t, err)
	assert.True(t, report.Outcome.Notify)
	assert.False(t, report.Sent)
	assert.NotEmpty(t, report.Message)
}

func TestRunOnceFetchFailureAborts(t *testing.T) {
	failures := map[string]historyFunc{
		"error": func(context.Context) ([]fetcher.DailyClose, error) { return nil, fetcher.ErrNoData },
		"short": closes("3.70"),
	}

	for name, history := range failures {
		t.Run(name, func(t *testing.T) {
			states := newStateFile(t, &state.Record{LastPrice: d("3.10")})
			before, err := os.ReadFile(states.Path())
			require.NoError(t, err)
			notifier := &recordingNotifier{}
			runs := &memoryRuns{}

			svc := New(history, nil, states, runs, notifier, testEngine(),
				Options{Location: lima, Now: fixedNow(9, 0)}, zerolog.Nop())

			_, err = svc.RunOnce(context.Background())
			assert.Error(t, err)
			assert.Empty(t, notifier.notes)

			after, err := os.ReadFile(states.Path())
			require.NoError(t, err)
			assert.Equal(t, before, after)

			require.Len(t, runs.runs, 1)
			assert.Equal(t, storage.StatusFailed, runs.runs[0].Status)
			require.NotNil(t, runs.runs[0].Error)
			assert.False(t, runs.runs[0].Official.Valid)
		})
	}
}

func TestRunOnceCorruptStateActsAsDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "estado.json")
	require.NoError(t, os.WriteFile(path, []byte("garbage"), 0o600))
	states := state.NewFile(path)

	svc := New(closes("3.65", "3.75", "3.70"), nil, states, nil, nil, testEngine(),
		Options{Location: lima, Now: fixedNow(11, 0)}, zerolog.Nop())

	report, err := svc.RunOnce(context.Background())
	require.NoError(t, err)
	assert.True(t, report.Outcome.Notify)

	rec, err := states.Load()
	require.NoError(t, err)
	assert.Equal(t, state.CurrentVersion, rec.Version)
}

func TestRunOnceRecordsHistoryUnderLock(t *testing.T) {
	runs := &memoryRuns{}
	svc := New(closes("3.65", "3.75", "3.70"), nil, newStateFile(t, nil), runs, nil, testEngine(),
		Options{Location: lima, LockKey: 7, Now: fixedNow(11, 0)}, zerolog.Nop())

	report, err := svc.RunOnce(context.Background())
	require.NoError(t, err)

	assert.True(t, runs.acquired)
	require.Len(t, runs.runs, 1)
	row := runs.runs[0]
	assert.Equal(t, report.RunID, row.RunID)
	assert.Equal(t, storage.StatusOK, row.Status)
	assert.True(t, row.Reference.Decimal.Equal(d("3.70")))
	assert.True(t, row.RangeMin.Decimal.Equal(d("3.65")))
	assert.True(t, row.LastPrice.Decimal.Equal(d("3.70")))
	assert.True(t, row.Notified)
}

func TestRunOnceSkipsWhenLockHeld(t *testing.T) {
	runs := &memoryRuns{locked: true}
	states := newStateFile(t, nil)
	svc := New(closes("3.65", "3.75", "3.70"), nil, states, runs, &recordingNotifier{}, testEngine(),
		Options{Location: lima, LockKey: 7, Now: fixedNow(11, 0)}, zerolog.Nop())

	_, err := svc.RunOnce(context.Background())
	assert.ErrorIs(t, err, ErrLockHeld)

	require.Len(t, runs.runs, 1)
	assert.Equal(t, storage.StatusSkipped, runs.runs[0].Status)
	_, statErr := os.Stat(states.Path())
	assert.True(t, os.IsNotExist(statErr))
}

func TestRunOnceLockErrorStillNotifies(t *testing.T) {
	runs := &memoryRuns{lockErr: errors.New("dial tcp 127.0.0.1:5432: connection refused")}
	states := newStateFile(t, &state.Record{LastPrice: d("3.80")})
	notifier := &recordingNotifier{}
	svc := New(closes("3.70", "3.75", "3.72", "3.68"), nil, states, runs, notifier, testEngine(),
		Options{Location: lima, LockKey: 7, Now: fixedNow(11, 0)}, zerolog.Nop())

	report, err := svc.RunOnce(context.Background())
	require.NoError(t, err)

	assert.True(t, report.Outcome.Notify)
	assert.Equal(t, decision.CategoryLow, report.Outcome.Category)
	require.Len(t, notifier.notes, 1)
	assert.True(t, report.StateSaved)

	rec, err := states.Load()
	require.NoError(t, err)
	assert.True(t, rec.LastPrice.Equal(d("3.68")))

	require.Len(t, runs.runs, 1)
	assert.Equal(t, storage.StatusOK, runs.runs[0].Status)
}

func TestRunOnceDryRunDoesNotPersist(t *testing.T) {
	runs := &memoryRuns{}
	states := newStateFile(t, nil)
	notifier := &recordingNotifier{}
	svc := New(closes("3.65", "3.75", "3.70"), nil, states, runs, notifier, testEngine(),
		Options{Location: lima, LockKey: 7, DryRun: true, Now: fixedNow(11, 0)}, zerolog.Nop())

	report, err := svc.RunOnce(context.Background())
	require.NoError(t, err)
	assert.True(t, report.Sent)
	assert.False(t, report.StateSaved)
	assert.Len(t, notifier.notes, 1)
	assert.Empty(t, runs.runs)
	assert.False(t, runs.acquired)
}

func TestRunOnceEndToEndOverHTTP(t *testing.T) {
	yahoo := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v8/finance/chart/PEN=X", r.URL.Path)
		_, _ = fmt.Fprint(w, `{"chart":{"result":[{"timestamp":[1759795200,1759881600,1759968000,1760054400],
			"indicators":{"quote":[{"close":[3.70,3.75,null,3.68]}]}}],"error":null}}`)
	}))
	defer yahoo.Close()

	var sent map[string]string
	telegram := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, json.NewDecoder(r.Body).Decode(&sent))
		_, _ = fmt.Fprint(w, `{"ok":true}`)
	}))
	defer telegram.Close()

	official := fetcher.NewOfficial(fetcher.OfficialOptions{BaseURL: yahoo.URL, Symbol: "PEN=X"}, zerolog.Nop())
	notifier := alerting.NewTelegramNotifier("token", "chat", telegram.URL, "Markdown", time.Second, zerolog.Nop())
	states := newStateFile(t, &state.Record{LastPrice: d("3.80")})

	svc := New(official, nil, states, nil, notifier, testEngine(),
		Options{Location: lima, Seed: 1, Now: fixedNow(9, 0)}, zerolog.Nop())

	report, err := svc.RunOnce(context.Background())
	require.NoError(t, err)

	assert.Equal(t, decision.GreetingOpen, report.Outcome.Greeting)
	assert.Equal(t, decision.CategoryLow, report.Outcome.Category)
	assert.True(t, report.Sent)
	assert.Equal(t, "chat", sent["chat_id"])
	assert.True(t, strings.HasPrefix(sent["text"], "*"+decision.SelectGreeting(decision.GreetingOpen, 1)))

	rec, err := states.Load()
	require.NoError(t, err)
	assert.True(t, rec.LastPrice.Equal(d("3.68")))
	assert.Equal(t, "2026-10-15", rec.LastOpenedDate)
}
