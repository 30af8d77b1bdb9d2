package scheduler

import (
	"context"
	"fmt"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog"
)

// TickFunc is invoked on every cron activation.
type TickFunc func(ctx context.Context, at time.Time) error

// Options tune scheduler behaviour.
type Options struct {
	// Spec is a six-field cron expression (seconds first).
	Spec           string
	Location       *time.Location
	RunImmediately bool
	// RunTimeout bounds a single tick. Zero means no bound.
	RunTimeout time.Duration
}

// Scheduler drives cron-timed execution of the watch job.
type Scheduler struct {
	opts     Options
	schedule cron.Schedule
	logger   zerolog.Logger
}

// New constructs a Scheduler, rejecting malformed cron expressions.
func New(opts Options, logger zerolog.Logger) (*Scheduler, error) {
	if opts.Location == nil {
		opts.Location = time.UTC
	}
	schedule, err := parser.Parse(opts.Spec)
	if err != nil {
		return nil, fmt.Errorf("parse cron spec %q: %w", opts.Spec, err)
	}
	return &Scheduler{
		opts:     opts,
		schedule: schedule,
		logger:   logger.With().Str("component", "scheduler").Logger(),
	}, nil
}

var parser = cron.NewParser(cron.Second | cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor)

// Next reports the activation following t.
func (s *Scheduler) Next(t time.Time) time.Time {
	return s.schedule.Next(t.In(s.opts.Location))
}

// Run blocks, invoking tick on each activation until ctx is cancelled.
// A tick still running when the next activation arrives causes that
// activation to be skipped.
func (s *Scheduler) Run(ctx context.Context, tick TickFunc) error {
	c := cron.New(
		cron.WithParser(parser),
		cron.WithLocation(s.opts.Location),
		cron.WithChain(cron.SkipIfStillRunning(cronLogger{s.logger})),
	)

	job := cron.FuncJob(func() { s.invoke(ctx, tick) })
	if _, err := c.AddJob(s.opts.Spec, job); err != nil {
		return fmt.Errorf("register job: %w", err)
	}

	if s.opts.RunImmediately {
		s.invoke(ctx, tick)
	}

	c.Start()
	s.logger.Info().Str("spec", s.opts.Spec).Time("next", s.Next(time.Now())).Msg("scheduler started")

	<-ctx.Done()
	stopped := c.Stop()
	<-stopped.Done()
	s.logger.Info().Msg("scheduler stopped")
	return ctx.Err()
}

func (s *Scheduler) invoke(ctx context.Context, tick TickFunc) {
	if ctx.Err() != nil {
		return
	}
	at := time.Now().In(s.opts.Location)

	runCtx := ctx
	if s.opts.RunTimeout > 0 {
		var cancel context.CancelFunc
		runCtx, cancel = context.WithTimeout(ctx, s.opts.RunTimeout)
		defer cancel()
	}

	s.logger.Debug().Time("at", at).Msg("executing scheduled tick")
	if err := tick(runCtx, at); err != nil {
		s.logger.Error().Err(err).Time("at", at).Msg("tick execution failed")
	}
}

// cronLogger routes cron's internal logging through zerolog.
type cronLogger struct {
	logger zerolog.Logger
}

func (l cronLogger) Info(msg string, keysAndValues ...interface{}) {
	l.logger.Debug().Fields(keysAndValues).Msg(msg)
}

func (l cronLogger) Error(err error, msg string, keysAndValues ...interface{}) {
	l.logger.Error().Err(err).Fields(keysAndValues).Msg(msg)
}
