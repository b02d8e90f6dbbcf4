// Package jobs runs the server's periodic maintenance: leaderboard resync
// and invite expiry sweeps.
package jobs

import (
	"time"

	"Renju/pkg/logger"

	"github.com/go-co-op/gocron/v2"
)

// Ranking is the slice of the credit engine the jobs need.
type Ranking interface {
	Resync(limit int) error
}

// Invites is the slice of the invite table the jobs need.
type Invites interface {
	Sweep()
}

// Runner owns the scheduler lifecycle.
type Runner struct {
	sched gocron.Scheduler
}

// Start launches the periodic jobs: a leaderboard resync every minute and
// an invite sweep every 30 seconds.
func Start(ranking Ranking, invites Invites, leaderboardSize int) (*Runner, error) {
	sched, err := gocron.NewScheduler()
	if err != nil {
		return nil, err
	}

	_, err = sched.NewJob(
		gocron.DurationJob(1*time.Minute),
		gocron.NewTask(func() {
			if err := ranking.Resync(leaderboardSize); err != nil {
				logger.Get().Warn().Err(err).Msg("jobs: leaderboard resync failed")
			}
		}),
	)
	if err != nil {
		return nil, err
	}

	_, err = sched.NewJob(
		gocron.DurationJob(30*time.Second),
		gocron.NewTask(invites.Sweep),
	)
	if err != nil {
		return nil, err
	}

	sched.Start()
	return &Runner{sched: sched}, nil
}

// Stop shuts the scheduler down, waiting for running jobs.
func (r *Runner) Stop() {
	if err := r.sched.Shutdown(); err != nil {
		logger.Get().Warn().Err(err).Msg("jobs: scheduler shutdown failed")
	}
}
