package janitor

import (
	"os"
	"path/filepath"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/ternarybob/arbor"
	"github.com/veoflow/veoflow/internal/common"
	"github.com/veoflow/veoflow/internal/storage/badger"
)

// Service periodically reclaims disk: orphaned session workspaces left by
// crashed tasks, and Badger value-log space. Live sessions clean up after
// themselves; the janitor only catches what they could not.
type Service struct {
	cfg         common.JanitorConfig
	sessionsDir string
	db          *badger.BadgerDB
	cron        *cron.Cron
	logger      arbor.ILogger
}

// NewService creates the janitor
func NewService(cfg common.JanitorConfig, sessionsDir string, db *badger.BadgerDB, logger arbor.ILogger) *Service {
	return &Service{
		cfg:         cfg,
		sessionsDir: sessionsDir,
		db:          db,
		cron:        cron.New(),
		logger:      logger,
	}
}

// Start schedules the cleanup job
func (s *Service) Start() error {
	if !s.cfg.Enabled {
		s.logger.Info().Msg("Janitor disabled")
		return nil
	}

	if _, err := s.cron.AddFunc(s.cfg.Schedule, s.sweep); err != nil {
		return err
	}
	s.cron.Start()

	s.logger.Info().
		Str("schedule", s.cfg.Schedule).
		Dur("session_retention", s.cfg.SessionRetention).
		Msg("Janitor started")
	return nil
}

// Stop stops the scheduler and waits for a running sweep to finish
func (s *Service) Stop() {
	ctx := s.cron.Stop()
	<-ctx.Done()
	s.logger.Info().Msg("Janitor stopped")
}

// Sweep runs one cleanup pass immediately
func (s *Service) Sweep() {
	s.sweep()
}

func (s *Service) sweep() {
	s.purgeStaleWorkspaces()
	s.reclaimValueLog()
}

// purgeStaleWorkspaces removes session workspaces older than the retention
// window. A workspace that old belongs to a task that crashed without
// closing its session.
func (s *Service) purgeStaleWorkspaces() {
	entries, err := os.ReadDir(s.sessionsDir)
	if err != nil {
		if !os.IsNotExist(err) {
			s.logger.Warn().Err(err).Str("dir", s.sessionsDir).Msg("Failed to scan session workspaces")
		}
		return
	}

	cutoff := time.Now().Add(-s.cfg.SessionRetention)
	purged := 0
	for _, entry := range entries {
		if !entry.IsDir() {
			continue
		}
		info, err := entry.Info()
		if err != nil || info.ModTime().After(cutoff) {
			continue
		}

		path := filepath.Join(s.sessionsDir, entry.Name())
		if err := os.RemoveAll(path); err != nil {
			s.logger.Warn().Err(err).Str("workspace", path).Msg("Failed to purge stale workspace")
			continue
		}
		purged++
	}

	if purged > 0 {
		s.logger.Info().Int("purged", purged).Msg("Purged stale session workspaces")
	}
}

// reclaimValueLog runs Badger value-log GC. ErrNoRewrite from the GC means
// nothing needed reclaiming and is not a failure.
func (s *Service) reclaimValueLog() {
	if s.db == nil {
		return
	}
	if err := s.db.RunGC(0.5); err != nil {
		s.logger.Debug().Err(err).Msg("Value log GC made no progress")
		return
	}
	s.logger.Debug().Msg("Value log GC completed")
}
