// Package reward implements the Batch Processor (spec §4.2, component
// C5): the transactional decision engine that turns one tick's shuffled
// user list into WIN/LOSS outcomes under budget and inventory
// constraints.
package reward

import (
	"context"
	"errors"
	"time"

	"luckengine/internal/apperr"
	"luckengine/internal/budget"
	"luckengine/internal/clock"
	"luckengine/internal/domain"
	"luckengine/internal/logging"
	"luckengine/internal/rng"
	"luckengine/internal/store"

	"github.com/shopspring/decimal"
)

// Config tunes the retry policy (spec §4.2, §6 "recognized options").
type Config struct {
	MaxRetries       int
	RetryBackoffBase time.Duration
}

// DefaultConfig matches the spec's recognized defaults: 3 retries, 10ms
// backoff base.
func DefaultConfig() Config {
	return Config{MaxRetries: 3, RetryBackoffBase: 10 * time.Millisecond}
}

// AuditPublisher is an optional sink for committed reward transactions;
// nil disables audit publishing entirely.
type AuditPublisher interface {
	PublishRewardTxn(txn *domain.RewardTransaction)
}

// IdempotencyCache is an optional fast-path probe consulted ahead of
// the store; a cache miss is never authoritative on its own, so
// ProcessBatch still falls through to Store.ExistsBatchID regardless.
type IdempotencyCache interface {
	HasSeenBatch(ctx context.Context, batchID string) (bool, error)
	MarkBatchSeen(ctx context.Context, batchID string) error
}

// TestHooks lets tests observe/mutate processor state between steps
// that would otherwise be unreachable from outside a locked
// transaction — e.g. scenario S3 forces a game to COMPLETED mid-batch.
// Production wiring leaves every hook nil.
type TestHooks struct {
	// AfterUser is invoked after each user's outcome is decided, with
	// the 0-based index just completed and the locked game the batch
	// is holding. A test can mutate game's fields directly to simulate
	// an external status change that the next iteration's
	// IsActiveAndFunded check will observe.
	AfterUser func(index int, game *domain.Game)
}

// Processor is the Batch Processor. It holds no per-batch state; every
// entry point takes the request and returns a result, following the
// dependency-injection value-struct shape (store, clock, rng, config)
// the redesign notes call for instead of a stateful service singleton.
type Processor struct {
	Store  store.Store
	Clock  clock.Clock
	RNG    rng.Source
	Config Config
	Logger logging.Logger
	Hooks  TestHooks
	// Cache is an optional idempotency accelerator; nil disables it and
	// every probe falls through to Store.ExistsBatchID directly.
	Cache IdempotencyCache
	// Audit is an optional sink every committed transaction is mirrored
	// to; nil disables audit publishing entirely.
	Audit AuditPublisher
}

// New builds a Processor with the given collaborators.
func New(st store.Store, clk clock.Clock, r rng.Source, cfg Config, logger logging.Logger) *Processor {
	return &Processor{Store: st, Clock: clk, RNG: r, Config: cfg, Logger: logger}
}

// ProcessBatch is the public contract: processBatch(req) -> BatchResult
// (spec §4.2). It probes idempotency first, then retries the
// transactional attempt on retryable conflicts with exponential
// backoff, per the spec's retry policy.
func (p *Processor) ProcessBatch(ctx context.Context, req BatchRequest) (*BatchResult, error) {
	if p.Cache != nil {
		if seen, err := p.Cache.HasSeenBatch(ctx, req.BatchID); err == nil && seen {
			return p.reconstruct(ctx, req.BatchID)
		}
	}

	exists, err := p.Store.ExistsBatchID(ctx, req.BatchID)
	if err != nil {
		return nil, apperr.Wrap(err, apperr.Transient, "idempotency probe failed")
	}
	if exists {
		return p.reconstruct(ctx, req.BatchID)
	}

	var lastErr error
	for attempt := 1; attempt <= p.Config.MaxRetries; attempt++ {
		result, err := p.attempt(ctx, req)
		if err == nil {
			if p.Cache != nil {
				_ = p.Cache.MarkBatchSeen(ctx, req.BatchID)
			}
			return result, nil
		}
		lastErr = err
		if !apperr.Is(err, apperr.ConflictRetryable) {
			return nil, err
		}
		if attempt < p.Config.MaxRetries {
			backoff := p.Config.RetryBackoffBase*time.Duration(attempt) +
				5*time.Millisecond*time.Duration(attempt*attempt)
			time.Sleep(backoff)
		}
	}
	return nil, apperr.Wrap(lastErr, apperr.ConflictExhausted, "batch retries exhausted")
}

// reconstruct rebuilds a BatchResult from previously committed
// transactions, satisfying the idempotence guarantee without any
// further mutation.
func (p *Processor) reconstruct(ctx context.Context, batchID string) (*BatchResult, error) {
	txns, err := p.Store.FindTransactionsByBatchID(ctx, batchID)
	if err != nil {
		return nil, apperr.Wrap(err, apperr.Transient, "failed to load prior batch")
	}
	rewards := make([]UserRewardResult, 0, len(txns))
	totalSpent := decimal.Zero
	var processedAt, firstAt time.Time
	for i, t := range txns {
		r := UserRewardResult{Username: t.Username, Status: t.Status, Message: t.RewardMessage}
		if t.VoucherID != nil {
			r.VoucherID = *t.VoucherID
		}
		if t.Amount != nil {
			r.Amount = *t.Amount
			totalSpent = totalSpent.Add(*t.Amount)
		}
		rewards = append(rewards, r)
		if t.CreatedAt.After(processedAt) {
			processedAt = t.CreatedAt
		}
		if i == 0 || t.CreatedAt.Before(firstAt) {
			firstAt = t.CreatedAt
		}
	}
	return &BatchResult{
		BatchID:          batchID,
		ProcessedAt:      processedAt,
		Rewards:          rewards,
		TotalSpent:       totalSpent,
		ProcessingTimeMs: processedAt.Sub(firstAt).Milliseconds(),
	}, nil
}

// attempt runs one transactional pass of the algorithm (spec §4.2 steps
// 2-9). A nil error means commit; a non-nil error triggers rollback via
// Store.WithTx and, if it is ConflictRetryable, a whole-batch retry by
// the caller.
func (p *Processor) attempt(ctx context.Context, req BatchRequest) (*BatchResult, error) {
	start := p.Clock.Now()
	var result *BatchResult
	var committed []*domain.RewardTransaction

	err := p.Store.WithTx(ctx, func(tx store.Tx) error {
		game, err := tx.FindGameForUpdate(ctx, req.GameID)
		if err != nil {
			if errors.Is(err, store.ErrGameNotFound) {
				result = p.allLoss(ctx, tx, req, &domain.Game{GameID: req.GameID}, start, domain.LossMessage, &committed)
				return nil
			}
			return apperr.Wrap(err, apperr.ConflictRetryable, "game lock failed")
		}
		if !game.IsActiveAndFunded(start) {
			result = p.allLoss(ctx, tx, req, game, start, domain.LossMessage, &committed)
			return nil
		}

		tickBudget := budget.TickBudget(game, start)
		candidates, err := tx.FindCandidateVouchers(ctx, tickBudget, start)
		if err != nil {
			return apperr.Wrap(err, apperr.Transient, "candidate voucher query failed")
		}
		if len(candidates) == 0 {
			result = p.allLoss(ctx, tx, req, game, start, domain.LossMessage, &committed)
			return nil
		}

		shuffled := append([]string(nil), req.Usernames...)
		p.RNG.Shuffle(len(shuffled), func(i, j int) { shuffled[i], shuffled[j] = shuffled[j], shuffled[i] })

		spent := decimal.Zero
		rewards := make([]UserRewardResult, 0, len(shuffled))

		for i, username := range shuffled {
			if !game.IsActiveAndFunded(p.Clock.Now()) {
				rewards = append(rewards, p.lossForRemainder(ctx, tx, shuffled[i:], game, req, domain.LossMessage, &committed)...)
				break
			}

			user, err := tx.FindOrCreateUser(ctx, username)
			if err != nil {
				return apperr.Wrap(err, apperr.Transient, "find-or-create user failed")
			}

			outcome := UserRewardResult{Username: username, Status: domain.TxLoss, Message: domain.LossMessage}

			if p.RNG.Float64() <= game.WinProbability {
				won, voucher, err := p.tryAwardVoucher(ctx, tx, candidates, game, spent, tickBudget)
				if err != nil {
					return err
				}
				if won {
					amt := voucher.Cost
					outcome = UserRewardResult{
						Username:    username,
						Status:      domain.TxWin,
						VoucherID:   voucher.VoucherID,
						VoucherCode: voucher.Code,
						Amount:      amt,
						Message:     "Congratulations, you won!",
					}
					spent = spent.Add(amt)
				}
			}

			if err := p.persist(ctx, tx, user, game, req, outcome, &committed); err != nil {
				return err
			}
			rewards = append(rewards, outcome)

			if p.Hooks.AfterUser != nil {
				p.Hooks.AfterUser(i, game)
			}

			if spent.GreaterThanOrEqual(tickBudget) || spent.GreaterThanOrEqual(game.RemainingBudget) {
				if i+1 < len(shuffled) {
					rewards = append(rewards, p.lossForRemainder(ctx, tx, shuffled[i+1:], game, req, domain.LossMessage, &committed)...)
				}
				break
			}
		}

		actualSpend := decimal.Zero
		for _, r := range rewards {
			if r.Status == domain.TxWin {
				actualSpend = actualSpend.Add(r.Amount)
			}
		}
		if actualSpend.GreaterThan(game.RemainingBudget) {
			p.Logger.Error().
				Str("batch_id", req.BatchID).
				Str("game_id", req.GameID).
				Str("actual_spend", actualSpend.String()).
				Str("remaining_budget", game.RemainingBudget.String()).
				Msg("CRITICAL: actualSpend exceeded remainingBudget, clamping")
			actualSpend = game.RemainingBudget
		}
		game.RemainingBudget = game.RemainingBudget.Sub(actualSpend)
		if game.RemainingBudget.IsZero() {
			game.Status = domain.GameBudgetExhausted
		}
		if err := tx.SaveGame(ctx, game); err != nil {
			if errors.Is(err, store.ErrOptimisticLock) {
				return apperr.Wrap(err, apperr.ConflictRetryable, "game version conflict at commit")
			}
			return apperr.Wrap(err, apperr.Transient, "failed to save game")
		}

		result = &BatchResult{
			BatchID:          req.BatchID,
			ProcessedAt:      start,
			Rewards:          rewards,
			TotalSpent:       actualSpend,
			ProcessingTimeMs: p.Clock.Now().Sub(start).Milliseconds(),
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	if p.Audit != nil {
		for _, txn := range committed {
			p.Audit.PublishRewardTxn(txn)
		}
	}
	return result, nil
}

// tryAwardVoucher runs spec §4.2 step 6d: shuffle the candidates,
// lock and re-verify each in turn, award the first that still fits.
func (p *Processor) tryAwardVoucher(
	ctx context.Context,
	tx store.Tx,
	candidates []domain.Voucher,
	game *domain.Game,
	spentSoFar decimal.Decimal,
	tickBudget decimal.Decimal,
) (bool, *domain.Voucher, error) {
	order := append([]domain.Voucher(nil), candidates...)
	p.RNG.Shuffle(len(order), func(i, j int) { order[i], order[j] = order[j], order[i] })

	now := p.Clock.Now()
	for _, c := range order {
		if spentSoFar.Add(c.Cost).GreaterThan(tickBudget) {
			continue
		}
		if spentSoFar.Add(c.Cost).GreaterThan(game.RemainingBudget) {
			continue
		}

		voucher, err := tx.FindVoucherForUpdate(ctx, c.VoucherID)
		if err != nil {
			if errors.Is(err, store.ErrVoucherNotFound) {
				continue
			}
			return false, nil, apperr.Wrap(err, apperr.Transient, "voucher lock failed")
		}
		if !voucher.IsAvailable(now) {
			continue
		}
		if spentSoFar.Add(voucher.Cost).GreaterThan(tickBudget) || spentSoFar.Add(voucher.Cost).GreaterThan(game.RemainingBudget) {
			continue
		}

		voucher.CurrentQuantity--
		if err := tx.SaveVoucher(ctx, voucher); err != nil {
			if errors.Is(err, store.ErrOptimisticLock) {
				continue
			}
			return false, nil, apperr.Wrap(err, apperr.Transient, "failed to save voucher")
		}
		return true, voucher, nil
	}
	return false, nil, nil
}

func (p *Processor) persist(ctx context.Context, tx store.Tx, user *domain.User, game *domain.Game, req BatchRequest, outcome UserRewardResult, committed *[]*domain.RewardTransaction) error {
	txn := &domain.RewardTransaction{
		UserID:        user.UserID,
		Username:      user.Username,
		GameID:        game.GameID,
		BatchID:       req.BatchID,
		Status:        outcome.Status,
		RewardMessage: outcome.Message,
	}
	if outcome.Status == domain.TxWin {
		voucherID := outcome.VoucherID
		amount := outcome.Amount
		txn.VoucherID = &voucherID
		txn.Amount = &amount
	}
	if err := tx.CreateTransaction(ctx, txn); err != nil {
		return apperr.Wrap(err, apperr.Transient, "failed to persist transaction")
	}
	*committed = append(*committed, txn)
	return nil
}

// allLoss synthesizes a LOSS outcome for every username in the batch —
// used when the game is missing, inactive, or has no candidate
// vouchers (spec §4.2 steps 2 and 4).
func (p *Processor) allLoss(ctx context.Context, tx store.Tx, req BatchRequest, game *domain.Game, now time.Time, message string, committed *[]*domain.RewardTransaction) *BatchResult {
	rewards := p.lossForRemainder(ctx, tx, req.Usernames, game, req, message, committed)
	return &BatchResult{
		BatchID:     req.BatchID,
		ProcessedAt: now,
		Rewards:     rewards,
		TotalSpent:  decimal.Zero,
	}
}

// lossForRemainder records a LOSS transaction for each of usernames
// against game/req and returns their outcomes. User lookup failures
// are swallowed per the fail-safe default: an unresolvable per-user
// error never blocks the rest of the batch, it only prevents that
// user's transaction from being persisted.
func (p *Processor) lossForRemainder(ctx context.Context, tx store.Tx, usernames []string, game *domain.Game, req BatchRequest, message string, committed *[]*domain.RewardTransaction) []UserRewardResult {
	rewards := make([]UserRewardResult, 0, len(usernames))
	for _, username := range usernames {
		outcome := UserRewardResult{Username: username, Status: domain.TxLoss, Message: message}
		if user, err := tx.FindOrCreateUser(ctx, username); err == nil {
			_ = p.persist(ctx, tx, user, game, req, outcome, committed)
		}
		rewards = append(rewards, outcome)
	}
	return rewards
}
