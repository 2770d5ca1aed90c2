package reward

import (
	"context"
	"testing"
	"time"

	"luckengine/internal/clock"
	"luckengine/internal/domain"
	"luckengine/internal/logging"
	"luckengine/internal/store/memstore"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
)

// fakeRNG is a deterministic rng.Source: Float64 always returns a fixed
// value and Shuffle is the identity permutation, so tests can force
// every win/loss roll without depending on a real seed's sequence.
type fakeRNG struct {
	roll float64
}

func (f *fakeRNG) Float64() float64                { return f.roll }
func (f *fakeRNG) Shuffle(n int, swap func(i, j int)) {}

func newProcessor(st *memstore.Store, roll float64) *Processor {
	return New(st, clock.NewReal(), &fakeRNG{roll: roll}, DefaultConfig(), logging.New(logging.Config{Level: "error"}))
}

func baseGame() *domain.Game {
	now := time.Now()
	return &domain.Game{
		GameID:           "game-1",
		GameCode:         "G1",
		Status:           domain.GameActive,
		StartTime:        now.Add(-time.Minute),
		EndTime:          now.Add(time.Hour),
		TotalBudget:      decimal.NewFromInt(1000),
		RemainingBudget:  decimal.NewFromInt(1000),
		WinProbability:   domain.DefaultWinProbability,
		VolatilityFactor: domain.DefaultVolatilityFactor,
		Version:          1,
	}
}

func baseVoucher() *domain.Voucher {
	return &domain.Voucher{
		VoucherID:       "voucher-1",
		Code:            "V1",
		BrandID:         "brand-1",
		Cost:            decimal.NewFromInt(10),
		InitialQuantity: 5,
		CurrentQuantity: 5,
		IsActive:        true,
		Version:         1,
	}
}

// S1: every win deducts exactly its voucher cost from the game's
// remaining budget, and total spend never exceeds it.
func TestProcessBatch_BudgetCompliance(t *testing.T) {
	st := memstore.New()
	game := baseGame()
	st.SeedGame(game)
	st.SeedVoucher(baseVoucher())

	p := newProcessor(st, 0) // roll 0 <= WinProbability: always "wins" the roll

	result, err := p.ProcessBatch(context.Background(), BatchRequest{
		BatchID:   "batch-1",
		GameID:    "game-1",
		Usernames: []string{"alice", "bob", "carol"},
		Timestamp: time.Now(),
	})
	require.NoError(t, err)
	require.NotNil(t, result)

	updated, ok := st.GetGame("game-1")
	require.True(t, ok)
	require.True(t, updated.RemainingBudget.Equal(game.TotalBudget.Sub(result.TotalSpent)))
	require.True(t, result.TotalSpent.LessThanOrEqual(game.TotalBudget))
}

// S2: replaying the same batchId returns the original outcome without
// mutating state a second time.
func TestProcessBatch_IdempotentReplay(t *testing.T) {
	st := memstore.New()
	st.SeedGame(baseGame())
	st.SeedVoucher(baseVoucher())

	p := newProcessor(st, 0)
	req := BatchRequest{BatchID: "batch-dup", GameID: "game-1", Usernames: []string{"alice"}, Timestamp: time.Now()}

	first, err := p.ProcessBatch(context.Background(), req)
	require.NoError(t, err)

	afterFirst, _ := st.GetGame("game-1")

	second, err := p.ProcessBatch(context.Background(), req)
	require.NoError(t, err)
	require.Equal(t, first.TotalSpent.String(), second.TotalSpent.String())
	require.Len(t, second.Rewards, len(first.Rewards))

	afterSecond, _ := st.GetGame("game-1")
	require.True(t, afterFirst.RemainingBudget.Equal(afterSecond.RemainingBudget), "replay must not spend budget twice")
}

// S3: a game that transitions away from ACTIVE mid-batch (observed via
// the AfterUser hook, simulating an external status change) causes the
// remaining users in the batch to lose rather than continuing to spend.
func TestProcessBatch_MidBatchInactivation(t *testing.T) {
	st := memstore.New()
	game := baseGame()
	// Under a second left: the tick budget is the whole remaining budget,
	// so the first user can win and the hook runs.
	game.EndTime = time.Now().Add(500 * time.Millisecond)
	st.SeedGame(game)
	st.SeedVoucher(baseVoucher())

	p := newProcessor(st, 0)
	p.Hooks.AfterUser = func(index int, game *domain.Game) {
		if index == 0 {
			game.Status = domain.GameCompleted
		}
	}

	result, err := p.ProcessBatch(context.Background(), BatchRequest{
		BatchID:   "batch-mid",
		GameID:    "game-1",
		Usernames: []string{"alice", "bob", "carol"},
		Timestamp: time.Now(),
	})
	require.NoError(t, err)
	require.Len(t, result.Rewards, 3)

	lossCount := 0
	for _, r := range result.Rewards {
		if r.Status == domain.TxLoss {
			lossCount++
		}
	}
	require.GreaterOrEqual(t, lossCount, 2, "users after the mid-batch transition must lose")
}

// S4: with no voucher inventory available, every user in the batch
// loses and no budget is spent.
func TestProcessBatch_InventoryExhaustion(t *testing.T) {
	st := memstore.New()
	st.SeedGame(baseGame())
	v := baseVoucher()
	v.CurrentQuantity = 0
	st.SeedVoucher(v)

	p := newProcessor(st, 0)
	result, err := p.ProcessBatch(context.Background(), BatchRequest{
		BatchID:   "batch-empty",
		GameID:    "game-1",
		Usernames: []string{"alice", "bob"},
		Timestamp: time.Now(),
	})
	require.NoError(t, err)
	require.True(t, result.TotalSpent.IsZero())
	for _, r := range result.Rewards {
		require.Equal(t, domain.TxLoss, r.Status)
		require.Equal(t, domain.LossMessage, r.Message)
	}
}

// S5: a game whose remaining budget is fully consumed by a batch
// transitions to BUDGET_EXHAUSTED.
func TestProcessBatch_BudgetExhaustionTransition(t *testing.T) {
	st := memstore.New()
	game := baseGame()
	game.RemainingBudget = decimal.NewFromInt(10)
	game.TotalBudget = decimal.NewFromInt(10)
	// Under a second left: the tick budget is the whole remaining budget
	// (with an hour left, 10.00/3600s rounds to a tick budget of 0.00).
	game.EndTime = time.Now().Add(500 * time.Millisecond)
	st.SeedGame(game)
	st.SeedVoucher(baseVoucher()) // cost 10, exactly the remaining budget

	p := newProcessor(st, 0)
	_, err := p.ProcessBatch(context.Background(), BatchRequest{
		BatchID:   "batch-exhaust",
		GameID:    "game-1",
		Usernames: []string{"alice"},
		Timestamp: time.Now(),
	})
	require.NoError(t, err)

	updated, ok := st.GetGame("game-1")
	require.True(t, ok)
	require.True(t, updated.RemainingBudget.IsZero())
	require.Equal(t, domain.GameBudgetExhausted, updated.Status)
}

// An inactive game produces an all-LOSS result without touching any
// voucher or budget state.
func TestProcessBatch_InactiveGameAllLoss(t *testing.T) {
	st := memstore.New()
	game := baseGame()
	game.Status = domain.GameScheduled
	st.SeedGame(game)
	st.SeedVoucher(baseVoucher())

	p := newProcessor(st, 0)
	result, err := p.ProcessBatch(context.Background(), BatchRequest{
		BatchID:   "batch-inactive",
		GameID:    "game-1",
		Usernames: []string{"alice", "bob"},
		Timestamp: time.Now(),
	})
	require.NoError(t, err)
	for _, r := range result.Rewards {
		require.Equal(t, domain.TxLoss, r.Status)
	}

	v, ok := st.GetVoucher("voucher-1")
	require.True(t, ok)
	require.Equal(t, 5, v.CurrentQuantity)
}

// A missing game is treated the same as an inactive one: an all-LOSS
// result rather than an error, per the fail-safe default.
func TestProcessBatch_UnknownGameAllLoss(t *testing.T) {
	st := memstore.New()
	p := newProcessor(st, 0)

	result, err := p.ProcessBatch(context.Background(), BatchRequest{
		BatchID:   "batch-unknown",
		GameID:    "does-not-exist",
		Usernames: []string{"alice"},
		Timestamp: time.Now(),
	})
	require.NoError(t, err)
	require.Len(t, result.Rewards, 1)
	require.Equal(t, domain.TxLoss, result.Rewards[0].Status)
}

// A roll above the win probability always loses, even with inventory
// available.
func TestProcessBatch_LosingRollNeverAwardsVoucher(t *testing.T) {
	st := memstore.New()
	st.SeedGame(baseGame())
	st.SeedVoucher(baseVoucher())

	p := newProcessor(st, 0.99) // roll far above DefaultWinProbability
	result, err := p.ProcessBatch(context.Background(), BatchRequest{
		BatchID:   "batch-loss",
		GameID:    "game-1",
		Usernames: []string{"alice"},
		Timestamp: time.Now(),
	})
	require.NoError(t, err)
	require.Equal(t, domain.TxLoss, result.Rewards[0].Status)
	require.True(t, result.TotalSpent.IsZero())
}
