package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/xid"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"penwatch/internal/alerting"
	"penwatch/internal/decision"
	"penwatch/internal/fetcher"
	"penwatch/internal/state"
	"penwatch/internal/storage"
)

// ErrLockHeld reports that another run holds the overlap guard.
var ErrLockHeld = errors.New("service: another run is in progress")

// StateStore loads and saves the persisted record.
type StateStore interface {
	Load() (state.Record, error)
	Save(rec state.Record) error
}

// Options carry the per-deployment knobs of a run.
type Options struct {
	Location *time.Location
	// Seed fixes phrase selection. Zero derives a seed from the run time.
	Seed    int64
	LockKey int64
	// DryRun evaluates and notifies without touching state or history.
	DryRun bool
	Now    func() time.Time
}

// Report summarises one run.
type Report struct {
	RunID      string
	At         time.Time
	Official   decimal.Decimal
	Street     decimal.NullDecimal
	Price      decimal.Decimal
	Source     decision.Source
	Range      decision.Range
	Outcome    decision.Outcome
	Message    string
	Sent       bool
	StateSaved bool
}

// Service runs the fetch, decide, notify and persist procedure.
type Service struct {
	history  fetcher.HistoryFetcher
	street   fetcher.StreetQuoteFetcher
	states   StateStore
	runs     storage.RunStore
	locker   storage.AdvisoryLocker
	notifier alerting.Notifier
	engine   *decision.Engine
	opts     Options
	logger   zerolog.Logger
}

// New constructs the service. street, runs and notifier may be nil: a nil
// street fetcher always falls back to the official close, nil runs skips
// history, and a nil notifier means credentials are absent.
func New(history fetcher.HistoryFetcher, street fetcher.StreetQuoteFetcher, states StateStore, runs storage.RunStore, notifier alerting.Notifier, engine *decision.Engine, opts Options, logger zerolog.Logger) *Service {
	if opts.Location == nil {
		opts.Location = time.UTC
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}

	var locker storage.AdvisoryLocker
	if l, ok := runs.(storage.AdvisoryLocker); ok {
		locker = l
	}

	return &Service{
		history:  history,
		street:   street,
		states:   states,
		runs:     runs,
		locker:   locker,
		notifier: notifier,
		engine:   engine,
		opts:     opts,
		logger:   logger.With().Str("component", "service").Logger(),
	}
}

// Tick adapts RunOnce to the scheduler callback.
func (s *Service) Tick(ctx context.Context, _ time.Time) error {
	_, err := s.RunOnce(ctx)
	return err
}

// RunOnce performs a single evaluation. Errors are returned for logging only;
// a failed run never sends and never mutates state.
func (s *Service) RunOnce(ctx context.Context) (Report, error) {
	report := Report{
		RunID: xid.New().String(),
		At:    s.opts.Now().In(s.opts.Location),
	}
	logger := s.logger.With().Str("run_id", report.RunID).Logger()

	unlock, proceed, err := s.acquireLock(ctx)
	if err != nil {
		// the guard is optional; only a lock confirmed held elsewhere skips the run
		logger.Warn().Err(err).Msg("overlap guard unavailable, running without it")
		proceed = true
	}
	if !proceed {
		logger.Info().Msg("skip run because advisory lock held elsewhere")
		s.record(ctx, logger, report, storage.StatusSkipped, ErrLockHeld)
		return report, ErrLockHeld
	}
	if unlock != nil {
		defer unlock()
	}

	if err := s.execute(ctx, logger, &report); err != nil {
		logger.Warn().Err(err).Msg("run aborted")
		s.record(ctx, logger, report, storage.StatusFailed, err)
		return report, err
	}

	s.record(ctx, logger, report, storage.StatusOK, nil)
	return report, nil
}

func (s *Service) execute(ctx context.Context, logger zerolog.Logger, report *Report) error {
	history, err := s.history.FetchHistory(ctx)
	if err != nil {
		return fmt.Errorf("fetch history: %w", err)
	}

	current, rng, err := decision.ComputeRange(fetcher.Closes(history))
	if err != nil {
		return err
	}
	report.Official = current
	report.Range = rng

	report.Street = s.fetchStreet(ctx, logger)
	report.Price, report.Source = decision.ReferencePrice(current, report.Street)

	rec, err := s.states.Load()
	if err != nil {
		logger.Warn().Err(err).Msg("state unreadable, using defaults")
	}

	outcome := s.engine.Decide(decision.Input{
		Price:  report.Price,
		Range:  rng,
		Memory: rec.Memory(),
		Now:    report.At,
	})
	report.Outcome = outcome

	logger.Info().
		Str("official", current.String()).
		Str("price", report.Price.String()).
		Str("source", string(report.Source)).
		Str("min", rng.Min.String()).
		Str("max", rng.Max.String()).
		Str("last_price", rec.LastPrice.String()).
		Bool("notify", outcome.Notify).
		Str("greeting", string(outcome.Greeting)).
		Str("category", string(outcome.Category)).
		Msg("decision evaluated")

	if outcome.Notify {
		report.Message = decision.RenderMessage(decision.MessageContext{
			Outcome:  outcome,
			Price:    report.Price,
			Last:     rec.LastPrice,
			Source:   report.Source,
			Official: current,
			Street:   report.Street,
			Range:    rng,
			Now:      report.At,
			Seed:     s.seed(report.At),
		})
		report.Sent = s.send(ctx, logger, report)
	}

	// state advances even when the send failed
	if outcome.Changed && !s.opts.DryRun {
		if err := s.states.Save(rec.WithMemory(outcome.Memory)); err != nil {
			return fmt.Errorf("save state: %w", err)
		}
		report.StateSaved = true
	}

	return nil
}

func (s *Service) fetchStreet(ctx context.Context, logger zerolog.Logger) decimal.NullDecimal {
	if s.street == nil {
		return decimal.NullDecimal{}
	}
	quote, err := s.street.FetchStreet(ctx)
	if err != nil {
		logger.Warn().Err(err).Msg("street quote unavailable, using official close")
		return decimal.NullDecimal{}
	}
	return decimal.NewNullDecimal(quote)
}

func (s *Service) send(ctx context.Context, logger zerolog.Logger, report *Report) bool {
	if s.notifier == nil {
		logger.Debug().Msg("telegram credentials absent, notification skipped")
		return false
	}
	note := alerting.Notification{
		Text:     report.Message,
		Category: string(report.Outcome.Category),
		Greeting: string(report.Outcome.Greeting),
		RunID:    report.RunID,
	}
	if err := s.notifier.Notify(ctx, note); err != nil {
		logger.Error().Err(err).Msg("failed to dispatch notification")
		return false
	}
	return true
}

func (s *Service) seed(at time.Time) int64 {
	if s.opts.Seed != 0 {
		return s.opts.Seed
	}
	return at.UnixNano()
}

func (s *Service) record(ctx context.Context, logger zerolog.Logger, report Report, status string, runErr error) {
	if s.runs == nil || s.opts.DryRun {
		return
	}

	row := storage.RunRecord{
		RunID:      report.RunID,
		ObservedAt: report.At,
		Street:     report.Street,
		Source:     string(report.Source),
		Notified:   report.Outcome.Notify,
		Greeting:   string(report.Outcome.Greeting),
		Category:   string(report.Outcome.Category),
		Status:     status,
	}
	if !report.Official.IsZero() {
		row.Official = decimal.NewNullDecimal(report.Official)
		row.Reference = decimal.NewNullDecimal(report.Price)
		row.RangeMin = decimal.NewNullDecimal(report.Range.Min)
		row.RangeMax = decimal.NewNullDecimal(report.Range.Max)
		row.LastPrice = decimal.NewNullDecimal(report.Outcome.Memory.LastPrice)
	}
	if runErr != nil {
		msg := runErr.Error()
		row.Error = &msg
	}

	if err := s.runs.RecordRun(ctx, row); err != nil {
		logger.Error().Err(err).Msg("failed to record run")
	}
}

func (s *Service) acquireLock(ctx context.Context) (func(), bool, error) {
	if s.opts.LockKey == 0 || s.locker == nil || s.opts.DryRun {
		return nil, true, nil
	}
	unlock, acquired, err := s.locker.TryAdvisoryLock(ctx, s.opts.LockKey)
	if err != nil {
		return nil, false, fmt.Errorf("acquire advisory lock: %w", err)
	}
	if !acquired {
		return nil, false, nil
	}
	return unlock, true, nil
}
