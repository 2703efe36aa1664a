package fiscal

import (
	"context"
	"time"
)

// SweeperConfig tunes the recovery sweep.
type SweeperConfig struct {
	Interval time.Duration // how often to sweep
	Grace    time.Duration // leave recent failures to their in-process timer
	Batch    int           // max entries touched per sweep
}

func (c SweeperConfig) withDefaults() SweeperConfig {
	if c.Interval <= 0 {
		c.Interval = 5 * time.Minute
	}
	if c.Grace <= 0 {
		c.Grace = 30 * time.Minute
	}
	if c.Batch <= 0 {
		c.Batch = 100
	}
	return c
}

// Sweeper periodically re-enqueues Failed entries that still have retry
// budget but whose backoff timer died with the process. Entries younger than
// the grace window are left alone: their in-process timer is presumed alive.
type Sweeper struct {
	dispatcher *Dispatcher
	cfg        SweeperConfig
}

// NewSweeper builds the sweeper around the dispatcher.
func NewSweeper(dispatcher *Dispatcher, cfg SweeperConfig) *Sweeper {
	return &Sweeper{dispatcher: dispatcher, cfg: cfg.withDefaults()}
}

// Run blocks sweeping on the configured interval until ctx is cancelled.
func (s *Sweeper) Run(ctx context.Context) {
	ticker := time.NewTicker(s.cfg.Interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.SweepOnce(ctx)
		}
	}
}

// SweepOnce runs a single sweep and returns how many entries it re-enqueued.
func (s *Sweeper) SweepOnce(ctx context.Context) int {
	d := s.dispatcher
	cutoff := time.Now().Add(-s.cfg.Grace)
	stuck, err := d.queueRepo.ListStuckFailed(ctx, d.cfg.MaxRetries, cutoff, s.cfg.Batch)
	if err != nil {
		d.log.Error().Err(err).Msg("sweeper: listing stuck entries failed")
		return 0
	}

	requeued := 0
	for _, entry := range stuck {
		d.log.Info().
			Str("invoice", entry.InvoiceID).
			Str("entry", entry.ID).
			Int("retry_count", entry.RetryCount).
			Msg("sweeper: recovering stuck entry")
		d.requeueEntry(entry.ID)
		sweeperRequeued.Inc()
		requeued++
	}
	return requeued
}
