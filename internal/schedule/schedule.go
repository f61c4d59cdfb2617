package schedule

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog"
)

// errorBuffer is how many job errors wait for a reader before new ones are dropped
const errorBuffer = 64

// JobError is a failed or panicking run of a named job
type JobError struct {
	Job string
	Err error
	At  time.Time
}

func (e JobError) Error() string {
	return fmt.Sprintf("job %s: %v", e.Job, e.Err)
}

func (e JobError) Unwrap() error {
	return e.Err
}

/* Scheduler runs named jobs at fixed intervals
 * A job never overlaps itself: a tick that fires while the previous run
 * is still active is skipped. Errors and panics are published on Errors()
 */
type Scheduler struct {
	cron   *cron.Cron
	ctx    context.Context
	cancel context.CancelFunc
	errs   chan JobError
	logger zerolog.Logger

	mu      sync.Mutex
	started bool
}

// New creates a stopped scheduler
func New(logger zerolog.Logger) *Scheduler {
	logger = logger.With().Str("component", "scheduler").Logger()
	cl := cronLogger{logger: logger}

	ctx, cancel := context.WithCancel(context.Background())
	return &Scheduler{
		cron: cron.New(
			cron.WithLogger(cl),
			cron.WithChain(cron.Recover(cl), cron.SkipIfStillRunning(cl)),
		),
		ctx:    ctx,
		cancel: cancel,
		errs:   make(chan JobError, errorBuffer),
		logger: logger,
	}
}

// Every registers fn to run every interval. Intervals below one second run every second.
func (s *Scheduler) Every(name string, interval time.Duration, fn func(ctx context.Context) error) {
	s.cron.Schedule(cron.Every(interval), cron.FuncJob(func() {
		s.run(name, fn)
	}))
}

func (s *Scheduler) run(name string, fn func(ctx context.Context) error) {
	defer func() {
		if r := recover(); r != nil {
			s.publish(name, fmt.Errorf("panic: %v", r))
		}
	}()

	if s.ctx.Err() != nil {
		return
	}
	if err := fn(s.ctx); err != nil {
		s.publish(name, err)
	}
}

func (s *Scheduler) publish(name string, err error) {
	je := JobError{Job: name, Err: err, At: time.Now()}
	select {
	case s.errs <- je:
	default:
		s.logger.Error().Err(err).Str("job", name).Msg("job error dropped, nobody is reading")
	}
}

// Errors returns the channel job failures are published on
func (s *Scheduler) Errors() <-chan JobError {
	return s.errs
}

// Start begins running the registered jobs
func (s *Scheduler) Start() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.started {
		return
	}
	s.started = true
	s.cron.Start()
}

/* Stop prevents new runs immediately and waits for running jobs
 * When ctx expires first, the job context is cancelled and Stop
 * returns ctx.Err() once the jobs have returned
 */
func (s *Scheduler) Stop(ctx context.Context) error {
	s.mu.Lock()
	s.started = false
	s.mu.Unlock()

	done := s.cron.Stop()
	select {
	case <-done.Done():
		s.cancel()
		return nil
	case <-ctx.Done():
		s.logger.Warn().Msg("grace period over, cancelling running jobs")
		s.cancel()
		<-done.Done()
		return ctx.Err()
	}
}

// cronLogger adapts zerolog to cron.Logger
type cronLogger struct {
	logger zerolog.Logger
}

func (l cronLogger) Info(msg string, keysAndValues ...interface{}) {
	l.logger.Debug().Fields(keysAndValues).Msg(msg)
}

func (l cronLogger) Error(err error, msg string, keysAndValues ...interface{}) {
	l.logger.Error().Err(err).Fields(keysAndValues).Msg(msg)
}
