// Package aggregator implements the Tick Aggregator (C6): per-game
// buffers of inbound usernames, flushed into Batch Processor
// submissions once per tick period. Grounded on the channel-map +
// mutex shape the wallet/bonus notification hub uses for its own
// per-entity fan-out, generalized here to a per-game write buffer
// instead of a subscriber registry.
package aggregator

import (
	"context"
	"sync"
	"time"

	"luckengine/internal/domain"
	"luckengine/internal/logging"
	"luckengine/internal/reward"

	"github.com/google/uuid"
)

// Broadcaster is the narrow interface the aggregator needs from the
// Result Broadcaster: publish one batch's outcome.
type Broadcaster interface {
	Publish(gameID string, result *reward.BatchResult)
}

// Processor is the narrow interface the aggregator needs from the
// Batch Processor.
type Processor interface {
	ProcessBatch(ctx context.Context, req reward.BatchRequest) (*reward.BatchResult, error)
}

// Config controls flush cadence and batch shaping.
type Config struct {
	TickPeriod   time.Duration
	MaxBatchSize int
}

// DefaultConfig mirrors spec §6's recognized defaults.
func DefaultConfig() Config {
	return Config{TickPeriod: 1 * time.Second, MaxBatchSize: 5000}
}

// Aggregator buffers (gameId, username) pairs and flushes each
// game's buffer into one Batch Processor submission per tick.
type Aggregator struct {
	mu      sync.Mutex
	buffers map[string][]string

	processor   Processor
	broadcaster Broadcaster
	cfg         Config
	logger      logging.Logger

	stop chan struct{}
	done chan struct{}
}

// New constructs an Aggregator. Call Run in a goroutine to start the
// periodic flush loop.
func New(processor Processor, broadcaster Broadcaster, cfg Config, logger logging.Logger) *Aggregator {
	return &Aggregator{
		buffers:     make(map[string][]string),
		processor:   processor,
		broadcaster: broadcaster,
		cfg:         cfg,
		logger:      logging.WithComponent(logger, "aggregator"),
		stop:        make(chan struct{}),
		done:        make(chan struct{}),
	}
}

// Enqueue appends username to gameId's buffer and acknowledges
// immediately; completion of the batch it ends up in is not awaited.
func (a *Aggregator) Enqueue(gameID, username string) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if len(a.buffers[gameID]) >= a.cfg.MaxBatchSize {
		a.logger.Warn().
			Str("gameId", gameID).Int("maxBatchSize", a.cfg.MaxBatchSize).
			Msg("buffer at maxBatchSize, dropping enqueue")
		return
	}
	a.buffers[gameID] = append(a.buffers[gameID], username)
}

// Run blocks, flushing every TickPeriod until ctx is cancelled or Stop
// is called.
func (a *Aggregator) Run(ctx context.Context) {
	defer close(a.done)
	ticker := time.NewTicker(a.cfg.TickPeriod)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-a.stop:
			return
		case <-ticker.C:
			a.flush(ctx)
		}
	}
}

// Stop signals Run to exit and waits for it to finish.
func (a *Aggregator) Stop() {
	close(a.stop)
	<-a.done
}

// snapshot atomically drains every non-empty buffer.
func (a *Aggregator) snapshot() map[string][]string {
	a.mu.Lock()
	defer a.mu.Unlock()
	if len(a.buffers) == 0 {
		return nil
	}
	out := make(map[string][]string, len(a.buffers))
	for gameID, usernames := range a.buffers {
		if len(usernames) == 0 {
			continue
		}
		out[gameID] = usernames
	}
	a.buffers = make(map[string][]string)
	return out
}

func (a *Aggregator) flush(ctx context.Context) {
	batches := a.snapshot()
	for gameID, usernames := range batches {
		go a.submit(ctx, gameID, usernames)
	}
}

func (a *Aggregator) submit(ctx context.Context, gameID string, usernames []string) {
	req := reward.BatchRequest{
		BatchID:   uuid.NewString(),
		GameID:    gameID,
		Usernames: usernames,
		Timestamp: time.Now(),
	}
	result, err := a.processor.ProcessBatch(ctx, req)
	if err != nil {
		a.logger.Error().Err(err).
			Str("gameId", gameID).Str("batchId", req.BatchID).
			Msg("batch submission failed, broadcasting degraded all-LOSS result")
		result = degradedResult(req)
	}
	a.broadcaster.Publish(gameID, result)
}

// degradedResult synthesizes an all-LOSS result for a batch the
// processor could not complete, per spec §4.3's failure handling.
func degradedResult(req reward.BatchRequest) *reward.BatchResult {
	rewards := make([]reward.UserRewardResult, 0, len(req.Usernames))
	for _, username := range req.Usernames {
		rewards = append(rewards, reward.UserRewardResult{
			Username: username,
			Status:   domain.TxLoss,
			Message:  domain.LossMessage,
		})
	}
	return &reward.BatchResult{
		BatchID:     req.BatchID,
		ProcessedAt: time.Now(),
		Rewards:     rewards,
	}
}
