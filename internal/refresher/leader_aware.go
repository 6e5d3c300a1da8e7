package refresher

import (
	"context"
	"sync"

	"github.com/rs/zerolog"

	"github.com/zapperlabs/zapper/internal/leadership"
)

// LeaderAwareRefresher runs the refresh loop only while this instance holds
// the leadership lease, so multiple instances sharing a database never
// generate concurrently.
type LeaderAwareRefresher struct {
	refresher *Service
	election  *leadership.Election
	logger    zerolog.Logger

	ctx context.Context

	mu         sync.Mutex
	cancelFunc context.CancelFunc
	running    bool
}

// NewLeaderAware creates a leader-aware refresher wrapper.
func NewLeaderAware(refresher *Service, election *leadership.Election, logger zerolog.Logger) *LeaderAwareRefresher {
	return &LeaderAwareRefresher{
		refresher: refresher,
		election:  election,
		logger:    logger.With().Str("component", "leader_aware_refresher").Logger(),
	}
}

// Start begins the election and manages the refresher lifecycle from it.
func (lar *LeaderAwareRefresher) Start(ctx context.Context) error {
	lar.ctx = ctx

	lar.logger.Info().Msg("starting leader-aware refresher")

	if err := lar.election.Start(ctx); err != nil {
		return err
	}

	go lar.monitorLeadership()

	return nil
}

// Stop stops the refresher if running and releases leadership.
func (lar *LeaderAwareRefresher) Stop() error {
	lar.logger.Info().Msg("stopping leader-aware refresher")

	lar.stopRefresher()

	return lar.election.Stop()
}

// IsLeader reports whether this instance currently holds the lease.
func (lar *LeaderAwareRefresher) IsLeader() bool {
	return lar.election.IsLeader()
}

// monitorLeadership watches leadership changes and starts or stops the
// refresh loop accordingly.
func (lar *LeaderAwareRefresher) monitorLeadership() {
	leaderCh := lar.election.LeaderCh()

	if lar.election.IsLeader() {
		lar.startRefresher()
	}

	for {
		select {
		case <-lar.ctx.Done():
			return
		case isLeader := <-leaderCh:
			if isLeader {
				lar.logger.Info().Msg("became leader, starting refresher")
				lar.startRefresher()
			} else {
				lar.logger.Warn().Msg("lost leadership, stopping refresher")
				lar.stopRefresher()
			}
		}
	}
}

func (lar *LeaderAwareRefresher) startRefresher() {
	lar.mu.Lock()
	defer lar.mu.Unlock()

	if lar.running {
		lar.logger.Warn().Msg("refresher already running")
		return
	}

	ctx, cancel := context.WithCancel(lar.ctx)
	lar.cancelFunc = cancel
	lar.running = true

	go func() {
		if err := lar.refresher.Run(ctx); err != nil && err != context.Canceled {
			lar.logger.Error().Err(err).Msg("refresher error")
		}
		lar.mu.Lock()
		lar.running = false
		lar.mu.Unlock()
	}()
}

func (lar *LeaderAwareRefresher) stopRefresher() {
	lar.mu.Lock()
	defer lar.mu.Unlock()

	if !lar.running {
		return
	}
	if lar.cancelFunc != nil {
		lar.cancelFunc()
		lar.cancelFunc = nil
	}
	lar.running = false
}
