// Package store defines the persistence contract (spec §4.7): durable
// state for Games, Vouchers, Transactions, Users, Brands, with
// row-locking and optimistic-version semantics. Any engine satisfying
// this interface — Postgres via GORM, or an in-memory map for tests —
// can back the batch processor.
package store

import (
	"context"
	"time"

	"luckengine/internal/domain"

	"github.com/shopspring/decimal"
)

// Tx is a scoped transaction handle: the function given to Store.WithTx
// receives one, performs its locking reads/writes through it, and the
// caller's error return decides commit (nil) vs rollback (non-nil).
// This replaces exception-driven rollback with an explicit scope, per
// the transactional-scoping redesign.
type Tx interface {
	// FindGameForUpdate acquires an exclusive row lock on the game and
	// returns its current state.
	FindGameForUpdate(ctx context.Context, gameID string) (*domain.Game, error)
	// SaveGame persists game with an optimistic version check; it
	// returns ErrOptimisticLock if the row's version moved since it was
	// read.
	SaveGame(ctx context.Context, game *domain.Game) error

	// FindVoucherForUpdate acquires an exclusive row lock on the
	// voucher.
	FindVoucherForUpdate(ctx context.Context, voucherID string) (*domain.Voucher, error)
	// SaveVoucher persists voucher with an optimistic version check.
	SaveVoucher(ctx context.Context, voucher *domain.Voucher) error

	// FindCandidateVouchers returns active, unexpired, in-stock
	// vouchers whose cost does not exceed tickBudget (spec §4.2 step
	// 4), read within the batch's transaction scope for a consistent
	// snapshot.
	FindCandidateVouchers(ctx context.Context, tickBudget decimal.Decimal, now time.Time) ([]domain.Voucher, error)

	// FindOrCreateUser resolves a user by username, creating a row on
	// first reference.
	FindOrCreateUser(ctx context.Context, username string) (*domain.User, error)

	// CreateTransaction appends one reward transaction.
	CreateTransaction(ctx context.Context, txn *domain.RewardTransaction) error

	// FindBrandForUpdate acquires an exclusive row lock on the brand
	// (used by game creation; sweeper refunds go through DepositToBrand).
	FindBrandForUpdate(ctx context.Context, brandID string) (*domain.Brand, error)
	// SaveBrand persists brand with an optimistic version check.
	SaveBrand(ctx context.Context, brand *domain.Brand) error
	// CreateGameBrandLink records a locked contribution.
	CreateGameBrandLink(ctx context.Context, link *domain.GameBrandLink) error
	// CreateGame inserts a new game row.
	CreateGame(ctx context.Context, game *domain.Game) error
}

// Store is the top-level persistence contract. Read-only and
// maintenance queries that don't need row locks are exposed directly;
// anything that must participate in a lock-and-mutate sequence goes
// through WithTx.
type Store interface {
	// WithTx runs fn within one transaction scope. Commit/rollback is
	// guaranteed on every exit path: fn's error triggers rollback, nil
	// triggers commit.
	WithTx(ctx context.Context, fn func(Tx) error) error

	// ExistsBatchID probes the idempotency index.
	ExistsBatchID(ctx context.Context, batchID string) (bool, error)
	// FindTransactionsByBatchID reconstructs a prior batch's result for
	// idempotent replay.
	FindTransactionsByBatchID(ctx context.Context, batchID string) ([]domain.RewardTransaction, error)

	FindGameByID(ctx context.Context, gameID string) (*domain.Game, error)
	FindVoucherByID(ctx context.Context, voucherID string) (*domain.Voucher, error)
	FindBrandByID(ctx context.Context, brandID string) (*domain.Brand, error)
	FindUserByUsername(ctx context.Context, username string) (*domain.User, error)

	// FindGamesToStart returns SCHEDULED games whose startTime has
	// passed (sweeper).
	FindGamesToStart(ctx context.Context, now time.Time) ([]domain.Game, error)
	// FindGamesToComplete returns ACTIVE games whose endTime has passed
	// (sweeper).
	FindGamesToComplete(ctx context.Context, now time.Time) ([]domain.Game, error)
	// UpdateGameStatus performs a simple status transition without the
	// full lock-and-mutate ceremony budget changes require (sweeper
	// start/complete transitions touch no monetary field).
	UpdateGameStatus(ctx context.Context, gameID string, status domain.GameStatus) error

	// FindGameBrandLinks returns the locked contributions for a game
	// (used to refund unspent budget pro-rata on completion).
	FindGameBrandLinks(ctx context.Context, gameID string) ([]domain.GameBrandLink, error)

	// CountTransactionsByGameAndStatus supports the admin statistics
	// endpoints.
	CountTransactionsByGameAndStatus(ctx context.Context, gameID string, status domain.TransactionStatus) (int64, error)
	// SumAmountByGame supports the admin statistics endpoints.
	SumAmountByGame(ctx context.Context, gameID string) (decimal.Decimal, error)

	// FindTransactionsByGameID returns a game's reward transactions
	// newest-first, letting a subscriber who joins a broadcast topic
	// late catch up on recent history instead of only seeing results
	// published after it subscribed.
	FindTransactionsByGameID(ctx context.Context, gameID string, limit int) ([]domain.RewardTransaction, error)
	// FindTransactionsByUserID returns a user's reward transactions
	// newest-first, across all games.
	FindTransactionsByUserID(ctx context.Context, username string, limit int) ([]domain.RewardTransaction, error)

	// CreateBrand, CreateVoucher are plain admin-surface inserts.
	CreateBrand(ctx context.Context, brand *domain.Brand) error
	CreateVoucher(ctx context.Context, voucher *domain.Voucher) error
	// DepositToBrand and RestockVoucher are optimistic-locked updates
	// outside the batch-processing path.
	DepositToBrand(ctx context.Context, brandID string, amount decimal.Decimal) error
	RestockVoucher(ctx context.Context, voucherID string, quantity int) error
	DeactivateVoucher(ctx context.Context, voucherID string) error
}
