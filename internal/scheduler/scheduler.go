package scheduler

import (
	"context"
	"fmt"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog"
)

// Scheduler runs the periodic flush job.
type Scheduler struct {
	cron      *cron.Cron
	ctx       context.Context
	cancel    context.CancelFunc
	interval  time.Duration
	flushFunc func(ctx context.Context) error
	log       zerolog.Logger
	running   bool
}

// New creates a scheduler that fires every interval. A tick that arrives while
// the previous job is still running is skipped.
func New(interval time.Duration, log zerolog.Logger) *Scheduler {
	ctx, cancel := context.WithCancel(context.Background())
	cl := cronLogger{log: log}
	return &Scheduler{
		cron: cron.New(
			cron.WithLocation(time.UTC),
			cron.WithLogger(cl),
			cron.WithChain(cron.Recover(cl), cron.SkipIfStillRunning(cl)),
		),
		ctx:      ctx,
		cancel:   cancel,
		interval: interval,
		log:      log,
	}
}

// SetFlushFunction sets the job run on every tick.
func (s *Scheduler) SetFlushFunction(f func(ctx context.Context) error) {
	s.flushFunc = f
}

func (s *Scheduler) Start() error {
	if s.flushFunc == nil {
		s.log.Warn().Msg("flush function not set, scheduler will not run")
		return nil
	}
	if s.interval <= 0 {
		return fmt.Errorf("flush interval must be positive, got %s", s.interval)
	}

	_, err := s.cron.AddFunc(fmt.Sprintf("@every %s", s.interval), func() {
		if err := s.flushFunc(s.ctx); err != nil {
			s.log.Error().Err(err).Msg("periodic flush failed")
		}
	})
	if err != nil {
		return err
	}

	s.cron.Start()
	s.running = true
	s.log.Info().Dur("interval", s.interval).Msg("scheduler started")
	return nil
}

// Stop waits for a running job to finish and then cancels the job context.
func (s *Scheduler) Stop() {
	if s.cron != nil {
		ctx := s.cron.Stop()
		<-ctx.Done()
	}
	if s.cancel != nil {
		s.cancel()
	}
	s.running = false
	s.log.Info().Msg("scheduler stopped")
}

func (s *Scheduler) IsRunning() bool {
	return s.running && len(s.cron.Entries()) > 0
}

// cronLogger routes cron's own messages into zerolog. Routine scheduling
// chatter goes to debug.
type cronLogger struct {
	log zerolog.Logger
}

func (l cronLogger) Info(msg string, keysAndValues ...interface{}) {
	l.log.Debug().Fields(keysAndValues).Msg(msg)
}

func (l cronLogger) Error(err error, msg string, keysAndValues ...interface{}) {
	l.log.Error().Err(err).Fields(keysAndValues).Msg(msg)
}
