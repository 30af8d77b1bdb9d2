package app

import (
	"context"
	"errors"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"penwatch/internal/alerting"
	"penwatch/internal/config"
	"penwatch/internal/decision"
	"penwatch/internal/fetcher"
	"penwatch/internal/logging"
	"penwatch/internal/scheduler"
	"penwatch/internal/service"
	"penwatch/internal/state"
	"penwatch/internal/storage"
)

// App aggregates configuration and shared dependencies for the CLI commands.
type App struct {
	Config *config.Config
	// Logger is the untagged base handed to components, which tag themselves.
	Logger zerolog.Logger
	Out    io.Writer

	log zerolog.Logger
}

// NewApp constructs a new application handle.
func NewApp(cfg *config.Config, logger zerolog.Logger) *App {
	return &App{
		Config: cfg,
		Logger: logger,
		Out:    os.Stdout,
		log:    logging.Component(logger, "app"),
	}
}

func (a *App) newHistoryFetcher() fetcher.HistoryFetcher {
	m := a.Config.Market
	return fetcher.NewOfficial(fetcher.OfficialOptions{
		BaseURL:   m.BaseURL,
		Symbol:    m.Symbol,
		Range:     m.Range,
		Interval:  m.Interval,
		Timeout:   m.RequestTimeout,
		UserAgent: m.UserAgent,
	}, a.Logger)
}

func (a *App) newStreetFetcher() fetcher.StreetQuoteFetcher {
	s := a.Config.Street
	if !s.Enabled {
		return nil
	}
	return fetcher.NewStreet(fetcher.StreetOptions{
		URL:       s.URL,
		Selector:  s.Selector,
		Index:     s.Index,
		Timeout:   s.RequestTimeout,
		UserAgent: s.UserAgent,
	}, a.Logger)
}

func (a *App) newNotifier() alerting.Notifier {
	cfg := a.Config.Alerting.Telegram
	if !cfg.Configured() {
		return nil
	}
	return alerting.NewTelegramNotifier(cfg.BotToken, cfg.ChatID, cfg.APIBase, cfg.ParseMode, cfg.RequestTimeout, a.Logger)
}

func (a *App) newEngine() *decision.Engine {
	al := a.Config.Alerting
	return decision.NewEngine(decision.Policy{
		Threshold: decimal.NewFromFloat(al.Threshold),
		OpenHour:  al.OpenHour,
		CloseHour: al.CloseHour,
	})
}

func (a *App) openStore(ctx context.Context) (*storage.Store, func(), error) {
	if a.Config.Database.DSN == "" {
		return nil, nil, nil
	}

	pool, err := storage.NewPool(ctx, a.Config.Database)
	if err != nil {
		return nil, nil, err
	}

	store := storage.NewStore(pool)
	closer := func() {
		store.Close()
	}
	return store, closer, nil
}

func (a *App) newService(store *storage.Store, history fetcher.HistoryFetcher, street fetcher.StreetQuoteFetcher, dryRun bool) *service.Service {
	var runs storage.RunStore
	if store != nil {
		runs = store
	}

	return service.New(
		history,
		street,
		state.NewFile(a.Config.State.Path),
		runs,
		a.newNotifier(),
		a.newEngine(),
		service.Options{
			Location: a.Config.Location(),
			Seed:     a.Config.Alerting.Seed,
			LockKey:  a.Config.Scheduler.AdvisoryLockKey,
			DryRun:   dryRun,
		},
		a.Logger,
	)
}

// Run performs a single evaluation. Runtime failures are logged and absorbed
// so a scheduler invoking the binary always sees success.
func (a *App) Run(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, a.Config.Scheduler.RunTimeout)
	defer cancel()

	store, closeStore, err := a.openStore(ctx)
	if err != nil {
		a.log.Error().Err(err).Msg("run history unavailable")
	}
	if closeStore != nil {
		defer closeStore()
	}

	svc := a.newService(store, a.newHistoryFetcher(), a.newStreetFetcher(), false)

	report, err := svc.RunOnce(ctx)
	if err != nil {
		a.log.Warn().Err(err).Str("run_id", report.RunID).Msg("run finished without evaluation")
		return nil
	}

	a.log.Info().
		Str("run_id", report.RunID).
		Bool("notified", report.Outcome.Notify).
		Bool("sent", report.Sent).
		Bool("state_saved", report.StateSaved).
		Msg("run complete")
	return nil
}

// Watch runs the evaluation on the configured cron schedule until interrupted.
func (a *App) Watch(ctx context.Context, opts WatchOptions) error {
	ctx, cancel := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	spec := a.Config.Scheduler.Cron
	if opts.Cron != "" {
		spec = opts.Cron
	}

	sched, err := scheduler.New(scheduler.Options{
		Spec:           spec,
		Location:       a.Config.Location(),
		RunImmediately: opts.Immediate,
		RunTimeout:     a.Config.Scheduler.RunTimeout,
	}, a.Logger)
	if err != nil {
		return err
	}

	store, closeStore, err := a.openStore(ctx)
	if err != nil {
		return err
	}
	if store == nil {
		a.log.Warn().Msg("database.dsn not configured; run history and overlap guard disabled")
	}
	if closeStore != nil {
		defer closeStore()
	}

	svc := a.newService(store, a.newHistoryFetcher(), a.newStreetFetcher(), false)

	a.log.Info().Str("cron", spec).Msg("starting watch loop")
	err = sched.Run(ctx, svc.Tick)
	if err != nil && !errors.Is(err, context.Canceled) {
		a.log.Error().Err(err).Msg("watch loop terminated with error")
		return err
	}

	a.log.Info().Msg("watch loop stopped")
	return nil
}

// WatchOptions configure the watch command.
type WatchOptions struct {
	Cron      string
	Immediate bool
}

// ExportOptions hold parameters for exporting the trailing history.
type ExportOptions struct {
	PNGPath string
	CSVPath string
}

// ShowOptions configure the show command.
type ShowOptions struct {
	Limit int
}

// PruneOptions configure history pruning.
type PruneOptions struct {
	OlderThan time.Duration
	DryRun    bool
}

// SimulateOptions configure a simulated evaluation.
type SimulateOptions struct {
	Official decimal.Decimal
	Street   decimal.NullDecimal
	Min      decimal.Decimal
	Max      decimal.Decimal
}
