package app

import (
	"context"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/dokzlo13/dimmerd/internal/config"
	"github.com/dokzlo13/dimmerd/internal/ledger"
)

// LedgerService prunes old ledger entries.
type LedgerService struct {
	ledger    *ledger.Ledger
	retention time.Duration
	interval  time.Duration
}

// NewLedgerService creates a cleanup service for l.
func NewLedgerService(cfg *config.Config, l *ledger.Ledger) *LedgerService {
	return &LedgerService{
		ledger:    l,
		retention: time.Duration(cfg.Ledger.RetentionDays) * 24 * time.Hour,
		interval:  cfg.Ledger.CleanupInterval.Duration(),
	}
}

// Run cleans up once, then on every interval until ctx is cancelled.
func (s *LedgerService) Run(ctx context.Context) error {
	s.cleanup()

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			s.cleanup()
		}
	}
}

func (s *LedgerService) cleanup() {
	deleted, err := s.ledger.DeleteOlderThan(s.retention)
	if err != nil {
		log.Error().Err(err).Msg("Failed to cleanup old ledger entries")
		return
	}
	if deleted > 0 {
		log.Info().Int64("deleted", deleted).Dur("retention", s.retention).Msg("Cleaned up old ledger entries")
	}
}
