// Package sweeper implements the Game Lifecycle Sweeper (C8): a
// periodic poll that auto-transitions SCHEDULED games to ACTIVE and
// ACTIVE games to COMPLETED at their time boundaries, refunding unspent
// brand contributions pro-rata on completion. Grounded on
// GameService.autoStartGames/autoCompleteGames's per-game
// try/catch-and-continue @Scheduled loop, translated to a Go ticker
// with per-game error isolation.
package sweeper

import (
	"context"
	"time"

	"luckengine/internal/audit"
	"luckengine/internal/clock"
	"luckengine/internal/domain"
	"luckengine/internal/logging"
	"luckengine/internal/store"

	"github.com/shopspring/decimal"
)

// LifecyclePublisher is an optional sink for game status transitions;
// nil disables lifecycle event publishing entirely.
type LifecyclePublisher interface {
	PublishLifecycle(event audit.LifecycleEvent)
}

// Config controls sweep cadence.
type Config struct {
	Interval time.Duration
}

// DefaultConfig matches spec §4.5's "every 10s".
func DefaultConfig() Config {
	return Config{Interval: 10 * time.Second}
}

// Sweeper owns the periodic lifecycle sweep.
type Sweeper struct {
	store  store.Store
	clock  clock.Clock
	cfg    Config
	logger logging.Logger
	// Audit is an optional sink every lifecycle transition is mirrored
	// to; nil disables lifecycle publishing entirely.
	Audit LifecyclePublisher

	stop chan struct{}
	done chan struct{}
}

// New constructs a Sweeper. Call Run in a goroutine to start it.
func New(st store.Store, clk clock.Clock, cfg Config, logger logging.Logger) *Sweeper {
	return &Sweeper{
		store:  st,
		clock:  clk,
		cfg:    cfg,
		logger: logging.WithComponent(logger, "sweeper"),
		stop:   make(chan struct{}),
		done:   make(chan struct{}),
	}
}

// Run blocks, sweeping every Interval until ctx is cancelled or Stop
// is called.
func (s *Sweeper) Run(ctx context.Context) {
	defer close(s.done)
	ticker := time.NewTicker(s.cfg.Interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-s.stop:
			return
		case <-ticker.C:
			s.Sweep(ctx)
		}
	}
}

// Stop signals Run to exit and waits for it to finish.
func (s *Sweeper) Stop() {
	close(s.stop)
	<-s.done
}

// Sweep runs one pass of both transitions. Exported so tests and a
// one-shot CLI subcommand can drive it directly without a ticker.
func (s *Sweeper) Sweep(ctx context.Context) {
	s.startDueGames(ctx)
	s.completeDueGames(ctx)
}

func (s *Sweeper) startDueGames(ctx context.Context) {
	now := s.clock.Now()
	games, err := s.store.FindGamesToStart(ctx, now)
	if err != nil {
		s.logger.Error().Err(err).Msg("failed to query games to start")
		return
	}
	for _, g := range games {
		if err := s.store.UpdateGameStatus(ctx, g.GameID, domain.GameActive); err != nil {
			s.logger.Error().Err(err).Str("gameId", g.GameID).Msg("failed to start game, will retry next sweep")
			continue
		}
		s.logger.Info().Str("gameId", g.GameID).Str("gameCode", g.GameCode).Msg("game transitioned to ACTIVE")
		s.publishLifecycle(g, domain.GameActive, now)
	}
}

func (s *Sweeper) completeDueGames(ctx context.Context) {
	now := s.clock.Now()
	games, err := s.store.FindGamesToComplete(ctx, now)
	if err != nil {
		s.logger.Error().Err(err).Msg("failed to query games to complete")
		return
	}
	for _, g := range games {
		if err := s.completeGame(ctx, g); err != nil {
			s.logger.Error().Err(err).Str("gameId", g.GameID).Msg("failed to complete game, will retry next sweep")
			continue
		}
		s.logger.Info().Str("gameId", g.GameID).Str("gameCode", g.GameCode).Msg("game transitioned to COMPLETED")
		s.publishLifecycle(g, domain.GameCompleted, now)
	}
}

func (s *Sweeper) publishLifecycle(g domain.Game, status domain.GameStatus, at time.Time) {
	if s.Audit == nil {
		return
	}
	s.Audit.PublishLifecycle(audit.LifecycleEvent{
		GameID:    g.GameID,
		GameCode:  g.GameCode,
		Status:    string(status),
		Timestamp: at,
	})
}

// completeGame transitions g to COMPLETED and refunds each
// contributing brand its pro-rata share of the game's unspent budget,
// proportional to that brand's original contribution.
func (s *Sweeper) completeGame(ctx context.Context, g domain.Game) error {
	if err := s.store.UpdateGameStatus(ctx, g.GameID, domain.GameCompleted); err != nil {
		return err
	}
	if !g.RemainingBudget.GreaterThan(decimal.Zero) {
		return nil
	}

	links, err := s.store.FindGameBrandLinks(ctx, g.GameID)
	if err != nil {
		s.logger.Error().Err(err).Str("gameId", g.GameID).Msg("failed to load brand links for refund")
		return nil
	}
	if len(links) == 0 {
		return nil
	}

	totalContribution := decimal.Zero
	for _, l := range links {
		totalContribution = totalContribution.Add(l.ContributionAmount)
	}
	if !totalContribution.GreaterThan(decimal.Zero) {
		return nil
	}

	for _, l := range links {
		share := l.ContributionAmount.Div(totalContribution).Mul(g.RemainingBudget)
		share = share.Round(2)
		if !share.GreaterThan(decimal.Zero) {
			continue
		}
		if err := s.store.DepositToBrand(ctx, l.BrandID, share); err != nil {
			s.logger.Error().Err(err).Str("gameId", g.GameID).Str("brandId", l.BrandID).
				Msg("failed to refund brand its pro-rata share, continuing")
		}
	}
	return nil
}
