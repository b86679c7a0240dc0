package accesslog

import (
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
)

// RetentionConfig controls the pruning scheduler.
type RetentionConfig struct {
	// Schedule is a cron expression ("0 3 * * *" for daily at 3 AM). Empty
	// disables scheduled pruning.
	Schedule string

	// MaxAge is how long entries are kept.
	MaxAge time.Duration
}

// RetentionScheduler prunes aged entries from a SQLiteLog on a cron
// schedule.
type RetentionScheduler struct {
	store  *SQLiteLog
	config RetentionConfig
	cron   *cron.Cron
	logger *slog.Logger

	mu      sync.Mutex
	running bool
}

// NewRetentionScheduler creates a scheduler over store.
func NewRetentionScheduler(store *SQLiteLog, config RetentionConfig, logger *slog.Logger) *RetentionScheduler {
	return &RetentionScheduler{
		store:  store,
		config: config,
		cron:   cron.New(),
		logger: logger.With("component", "accesslog.retention"),
	}
}

// Start begins scheduled pruning. With an empty schedule it does nothing.
func (s *RetentionScheduler) Start() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.config.Schedule == "" {
		s.logger.Info("prune schedule not configured, skipping scheduler")
		return nil
	}
	if _, err := cron.ParseStandard(s.config.Schedule); err != nil {
		return fmt.Errorf("accesslog: invalid cron schedule %q: %w", s.config.Schedule, err)
	}
	if _, err := s.cron.AddFunc(s.config.Schedule, s.RunOnce); err != nil {
		return fmt.Errorf("accesslog: schedule pruning: %w", err)
	}

	s.cron.Start()
	s.running = true
	s.logger.Info("retention scheduler started",
		"schedule", s.config.Schedule,
		"max_age", s.config.MaxAge,
	)
	return nil
}

// Stop halts scheduled pruning.
func (s *RetentionScheduler) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.running {
		s.cron.Stop()
		s.running = false
	}
}

// RunOnce executes a single pruning cycle immediately.
func (s *RetentionScheduler) RunOnce() {
	cutoff := time.Now().Add(-s.config.MaxAge)
	deleted, err := s.store.PruneOlderThan(cutoff)
	if err != nil {
		s.logger.Warn("access log pruning failed", "err", err)
		return
	}
	s.logger.Info("access log pruned", "deleted", deleted, "cutoff", cutoff)
}
