// SPDX-License-Identifier: AGPL-3.0-only

// Package retention sweeps persisted transcript files on a cron schedule so
// the history directory does not grow without bound.
package retention

import (
	"context"
	"os"
	"path/filepath"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/howyoungchen/deepRolePlay-sub000/internal/config"
	"github.com/howyoungchen/deepRolePlay-sub000/internal/logging"
)

// Sweeper deletes transcript history files older than the configured
// retention window. A zero retention keeps files forever and disables the
// sweep entirely.
type Sweeper struct {
	cron   *cron.Cron
	cfg    config.HistoryConfig
	logger *logging.Logger
	now    func() time.Time
}

// NewSweeper creates a sweeper for the history directory in cfg.
func NewSweeper(cfg config.HistoryConfig, logger *logging.Logger) *Sweeper {
	return &Sweeper{
		cron: cron.New(
			cron.WithChain(cron.Recover(cron.DefaultLogger)),
		),
		cfg:    cfg,
		logger: logger,
		now:    time.Now,
	}
}

// Start schedules the sweep and runs it until ctx is cancelled.
func (s *Sweeper) Start(ctx context.Context) error {
	if s.cfg.RetentionDays <= 0 {
		s.logger.Infof("history retention disabled, keeping transcripts forever")
		return nil
	}
	if _, err := s.cron.AddFunc(s.cfg.SweepSchedule, func() { s.Sweep() }); err != nil {
		return err
	}
	s.cron.Start()

	go func() {
		<-ctx.Done()
		s.Stop()
	}()
	return nil
}

// Stop halts the scheduled sweep.
func (s *Sweeper) Stop() {
	s.cron.Stop()
}

// Sweep deletes every regular file in the history directory older than the
// retention window. Failures are logged and do not abort the pass; a missing
// directory counts as nothing to do.
func (s *Sweeper) Sweep() {
	cutoff := s.now().AddDate(0, 0, -s.cfg.RetentionDays)

	entries, err := os.ReadDir(s.cfg.Dir)
	if err != nil {
		if !os.IsNotExist(err) {
			s.logger.Errorf("reading history directory %s: %v", s.cfg.Dir, err)
		}
		return
	}

	var removed int
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		info, err := entry.Info()
		if err != nil {
			s.logger.Warnf("stat %s: %v", entry.Name(), err)
			continue
		}
		if !info.ModTime().Before(cutoff) {
			continue
		}
		path := filepath.Join(s.cfg.Dir, entry.Name())
		if err := os.Remove(path); err != nil {
			s.logger.Warnf("removing %s: %v", path, err)
			continue
		}
		removed++
	}
	if removed > 0 {
		s.logger.Infof("history sweep removed %d transcript(s) older than %d days", removed, s.cfg.RetentionDays)
	}
}
