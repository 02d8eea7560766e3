package crontab

import (
	"context"
	"fmt"
	"time"

	"github.com/mileusna/crontab"
	"github.com/rs/zerolog"

	"github.com/flockhq/flock-server/internal/domain/conversation"
	"github.com/flockhq/flock-server/internal/infrastructure/metrics"
)

const (
	defaultSweepInterval = 5 // minutes
	jobTimeout           = 2 * time.Minute
	reaperLease          = "inactivity-reaper"
)

// Leaser hands out short-lived cross-process leases. Sweeps are safe to
// run everywhere, but only the lease holder runs them so released
// operators get notified once, not once per process.
type Leaser interface {
	TryAcquireLease(ctx context.Context, name string, ttl time.Duration) (bool, error)
}

// Crontab schedules the inactivity reaper.
type Crontab struct {
	ctab     *crontab.Crontab
	convs    *conversation.Service
	leaser   Leaser
	interval int
	log      zerolog.Logger
}

// New builds the scheduler. interval is in minutes.
func New(convs *conversation.Service, leaser Leaser, interval int, log zerolog.Logger) *Crontab {
	if interval <= 0 {
		interval = defaultSweepInterval
	}
	return &Crontab{
		ctab:     crontab.New(),
		convs:    convs,
		leaser:   leaser,
		interval: interval,
		log:      log.With().Str("component", "crontab").Logger(),
	}
}

// Run schedules the sweep and blocks until ctx is cancelled. The sweep
// also executes once at startup so a restart does not delay overdue
// releases by a full interval.
func (c *Crontab) Run(ctx context.Context) error {
	c.sweep(ctx)

	expr := fmt.Sprintf("*/%d * * * *", c.interval)
	if err := c.ctab.AddJob(expr, func() {
		jobCtx, cancel := context.WithTimeout(context.Background(), jobTimeout)
		defer cancel()
		c.sweep(jobCtx)
	}); err != nil {
		return fmt.Errorf("schedule sweep: %w", err)
	}
	c.log.Info().Int("interval_minutes", c.interval).Msg("inactivity sweep scheduled")

	<-ctx.Done()
	c.ctab.Shutdown()
	return nil
}

func (c *Crontab) sweep(ctx context.Context) {
	leaseTTL := time.Duration(c.interval)*time.Minute - 10*time.Second
	ok, err := c.leaser.TryAcquireLease(ctx, reaperLease, leaseTTL)
	if err != nil {
		c.log.Error().Err(err).Msg("lease check failed, skipping sweep")
		return
	}
	if !ok {
		c.log.Debug().Msg("another process holds the sweep lease")
		return
	}

	released := c.convs.ReapStaleHandoffs(ctx)
	expired := c.convs.ReapExpiredFlows(ctx)
	metrics.ReaperReleasesTotal.Add(float64(released))
	metrics.ExpiredFlowsTotal.Add(float64(expired))
	if released > 0 || expired > 0 {
		c.log.Info().
			Int("handoffs_released", released).
			Int("flows_expired", expired).
			Msg("sweep finished")
	}
}
