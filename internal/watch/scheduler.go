package watch

import (
	"fmt"
	"log/slog"

	"github.com/robfig/cron/v3"
)

// Scheduler runs a job on a cron spec. Standard five-field specs and
// descriptors such as "@hourly" or "@every 30m" are accepted. A run that is
// still going when the next one is due causes that next run to be skipped.
type Scheduler struct {
	cron *cron.Cron
	id   cron.EntryID
}

// NewScheduler validates spec and registers job. Nothing runs until Start.
func NewScheduler(spec string, job func()) (*Scheduler, error) {
	logger := slogLogger{}
	c := cron.New(
		cron.WithLogger(logger),
		cron.WithChain(cron.Recover(logger), cron.SkipIfStillRunning(logger)),
	)
	id, err := c.AddFunc(spec, job)
	if err != nil {
		return nil, fmt.Errorf("watch: invalid schedule %q: %w", spec, err)
	}
	return &Scheduler{cron: c, id: id}, nil
}

// Start runs the scheduler in its own goroutine.
func (s *Scheduler) Start() {
	s.cron.Start()
	slog.Info("watch: schedule started", "next", s.cron.Entry(s.id).Next)
}

// Stop stops scheduling and waits for a running job to finish.
func (s *Scheduler) Stop() {
	<-s.cron.Stop().Done()
}

// slogLogger adapts slog to cron.Logger.
type slogLogger struct{}

func (slogLogger) Info(msg string, keysAndValues ...interface{}) {
	slog.Debug("watch: cron "+msg, keysAndValues...)
}

func (slogLogger) Error(err error, msg string, keysAndValues ...interface{}) {
	slog.Error("watch: cron "+msg, append([]interface{}{"error", err}, keysAndValues...)...)
}
