package scheduler

import (
	"context"
	"fmt"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/kebairia/invbackup/internal/backuplog"
	"github.com/kebairia/invbackup/internal/config"
	"github.com/kebairia/invbackup/internal/logger"
	"github.com/kebairia/invbackup/internal/operations"
)

// Runner performs one backup of the given kind.
type Runner interface {
	Run(ctx context.Context, kind backuplog.Kind, dbPath string) operations.Result
}

// Scheduler triggers backups from cron expressions. It is only a caller of
// the engine; every trigger is an ordinary backup request.
type Scheduler struct {
	cron   *cron.Cron
	runner Runner
	dbPath string
	log    logger.Logger
	jobs   map[backuplog.Kind]cron.EntryID
}

// New builds a Scheduler from the configured expressions. Kinds with an empty
// expression are skipped.
func New(cfg config.ScheduleConfig, runner Runner, dbPath string, log logger.Logger) (*Scheduler, error) {
	if log == nil {
		log = logger.Nop()
	}
	s := &Scheduler{
		cron:   cron.New(),
		runner: runner,
		dbPath: dbPath,
		log:    log,
		jobs:   make(map[backuplog.Kind]cron.EntryID),
	}

	specs := map[backuplog.Kind]string{
		backuplog.KindFull:         cfg.Full,
		backuplog.KindIncremental:  cfg.Incremental,
		backuplog.KindDifferential: cfg.Differential,
	}
	for _, kind := range backuplog.Kinds {
		spec := specs[kind]
		if spec == "" {
			continue
		}
		id, err := s.cron.AddFunc(spec, s.job(kind))
		if err != nil {
			return nil, fmt.Errorf("invalid %s schedule %q: %w", kind, spec, err)
		}
		s.jobs[kind] = id
	}
	return s, nil
}

func (s *Scheduler) job(kind backuplog.Kind) func() {
	return func() {
		res := s.runner.Run(context.Background(), kind, s.dbPath)
		switch res.Status {
		case operations.StatusSuccess:
			s.log.Info("scheduled backup finished", "kind", kind, "message", res.Message)
		case operations.StatusDeclined:
			s.log.Info("scheduled backup skipped", "kind", kind, "message", res.Message)
		default:
			s.log.Error("scheduled backup failed", "kind", kind, "message", res.Message)
		}
	}
}

// Len returns the number of scheduled kinds.
func (s *Scheduler) Len() int { return len(s.jobs) }

// Next returns the next activation of kind, if it is scheduled.
func (s *Scheduler) Next(kind backuplog.Kind) (time.Time, bool) {
	id, ok := s.jobs[kind]
	if !ok {
		return time.Time{}, false
	}
	return s.cron.Entry(id).Next, true
}

// Start runs the scheduler in its own goroutine.
func (s *Scheduler) Start() {
	s.cron.Start()
	for kind := range s.jobs {
		next, _ := s.Next(kind)
		s.log.Info("backup scheduled", "kind", kind, "next", next)
	}
}

// Stop stops the scheduler and returns a context done once running jobs finish.
func (s *Scheduler) Stop() context.Context {
	return s.cron.Stop()
}
