// Package pgstore implements store.Store on top of GORM + Postgres,
// using the same optimistic-version-column pattern the wallet
// repository uses for Credit/Debit, and the same pessimistic
// clause.Locking pattern the bonus repository uses for
// GetBonusForUpdate, generalized to Game/Voucher/Brand rows.
package pgstore

import (
	"context"
	"errors"
	"time"

	"luckengine/internal/domain"
	"luckengine/internal/store"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// Store is the Postgres-backed store.Store implementation.
type Store struct {
	db *gorm.DB
}

// New wraps an open *gorm.DB.
func New(db *gorm.DB) *Store {
	return &Store{db: db}
}

// Migrate creates/updates the six tables spec §6 names.
func (s *Store) Migrate() error {
	return s.db.AutoMigrate(
		&domain.Brand{},
		&domain.Voucher{},
		&domain.Game{},
		&domain.GameBrandLink{},
		&domain.User{},
		&domain.RewardTransaction{},
	)
}

func (s *Store) WithTx(ctx context.Context, fn func(store.Tx) error) error {
	return s.db.WithContext(ctx).Transaction(func(dbtx *gorm.DB) error {
		return fn(&tx{db: dbtx})
	})
}

func (s *Store) ExistsBatchID(ctx context.Context, batchID string) (bool, error) {
	var count int64
	err := s.db.WithContext(ctx).Model(&domain.RewardTransaction{}).
		Where("batch_id = ?", batchID).Count(&count).Error
	if err != nil {
		return false, err
	}
	return count > 0, nil
}

func (s *Store) FindTransactionsByBatchID(ctx context.Context, batchID string) ([]domain.RewardTransaction, error) {
	var out []domain.RewardTransaction
	err := s.db.WithContext(ctx).Where("batch_id = ?", batchID).Find(&out).Error
	return out, err
}

func (s *Store) FindGameByID(ctx context.Context, gameID string) (*domain.Game, error) {
	var g domain.Game
	err := s.db.WithContext(ctx).Where("game_id = ?", gameID).First(&g).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, store.ErrGameNotFound
		}
		return nil, err
	}
	return &g, nil
}

func (s *Store) FindVoucherByID(ctx context.Context, voucherID string) (*domain.Voucher, error) {
	var v domain.Voucher
	err := s.db.WithContext(ctx).Where("voucher_id = ?", voucherID).First(&v).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, store.ErrVoucherNotFound
		}
		return nil, err
	}
	return &v, nil
}

func (s *Store) FindBrandByID(ctx context.Context, brandID string) (*domain.Brand, error) {
	var b domain.Brand
	err := s.db.WithContext(ctx).Where("brand_id = ?", brandID).First(&b).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, store.ErrBrandNotFound
		}
		return nil, err
	}
	return &b, nil
}

func (s *Store) FindUserByUsername(ctx context.Context, username string) (*domain.User, error) {
	var u domain.User
	err := s.db.WithContext(ctx).Where("username = ?", username).First(&u).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, store.ErrUserNotFound
		}
		return nil, err
	}
	return &u, nil
}

func (s *Store) FindGamesToStart(ctx context.Context, now time.Time) ([]domain.Game, error) {
	var out []domain.Game
	err := s.db.WithContext(ctx).
		Where("status = ? AND start_time <= ?", domain.GameScheduled, now).
		Find(&out).Error
	return out, err
}

func (s *Store) FindGamesToComplete(ctx context.Context, now time.Time) ([]domain.Game, error) {
	var out []domain.Game
	err := s.db.WithContext(ctx).
		Where("status = ? AND end_time <= ?", domain.GameActive, now).
		Find(&out).Error
	return out, err
}

func (s *Store) UpdateGameStatus(ctx context.Context, gameID string, status domain.GameStatus) error {
	result := s.db.WithContext(ctx).Model(&domain.Game{}).
		Where("game_id = ?", gameID).
		Updates(map[string]interface{}{"status": status, "updated_at": time.Now()})
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return store.ErrGameNotFound
	}
	return nil
}

func (s *Store) FindGameBrandLinks(ctx context.Context, gameID string) ([]domain.GameBrandLink, error) {
	var out []domain.GameBrandLink
	err := s.db.WithContext(ctx).Where("game_id = ?", gameID).Find(&out).Error
	return out, err
}

func (s *Store) CountTransactionsByGameAndStatus(ctx context.Context, gameID string, status domain.TransactionStatus) (int64, error) {
	var n int64
	err := s.db.WithContext(ctx).Model(&domain.RewardTransaction{}).
		Where("game_id = ? AND status = ?", gameID, status).Count(&n).Error
	return n, err
}

func (s *Store) SumAmountByGame(ctx context.Context, gameID string) (decimal.Decimal, error) {
	var row struct {
		Total decimal.Decimal
	}
	err := s.db.WithContext(ctx).Model(&domain.RewardTransaction{}).
		Where("game_id = ? AND amount IS NOT NULL", gameID).
		Select("COALESCE(SUM(amount), 0) AS total").
		Scan(&row).Error
	return row.Total, err
}

func (s *Store) FindTransactionsByGameID(ctx context.Context, gameID string, limit int) ([]domain.RewardTransaction, error) {
	var out []domain.RewardTransaction
	q := s.db.WithContext(ctx).Where("game_id = ?", gameID).Order("created_at DESC")
	if limit > 0 {
		q = q.Limit(limit)
	}
	err := q.Find(&out).Error
	return out, err
}

func (s *Store) FindTransactionsByUserID(ctx context.Context, username string, limit int) ([]domain.RewardTransaction, error) {
	var out []domain.RewardTransaction
	q := s.db.WithContext(ctx).Where("username = ?", username).Order("created_at DESC")
	if limit > 0 {
		q = q.Limit(limit)
	}
	err := q.Find(&out).Error
	return out, err
}

func (s *Store) CreateBrand(ctx context.Context, brand *domain.Brand) error {
	return s.db.WithContext(ctx).Create(brand).Error
}

func (s *Store) CreateVoucher(ctx context.Context, voucher *domain.Voucher) error {
	return s.db.WithContext(ctx).Create(voucher).Error
}

func (s *Store) DepositToBrand(ctx context.Context, brandID string, amount decimal.Decimal) error {
	return s.db.WithContext(ctx).Transaction(func(dbtx *gorm.DB) error {
		var b domain.Brand
		if err := dbtx.Where("brand_id = ?", brandID).First(&b).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return store.ErrBrandNotFound
			}
			return err
		}
		result := dbtx.Model(&domain.Brand{}).
			Where("brand_id = ? AND version = ?", b.BrandID, b.Version).
			Updates(map[string]interface{}{
				"wallet_balance": b.WalletBalance.Add(amount),
				"version":        gorm.Expr("version + 1"),
				"updated_at":     time.Now(),
			})
		if result.Error != nil {
			return result.Error
		}
		if result.RowsAffected == 0 {
			return store.ErrOptimisticLock
		}
		return nil
	})
}

func (s *Store) RestockVoucher(ctx context.Context, voucherID string, quantity int) error {
	return s.db.WithContext(ctx).Transaction(func(dbtx *gorm.DB) error {
		var v domain.Voucher
		if err := dbtx.Where("voucher_id = ?", voucherID).First(&v).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return store.ErrVoucherNotFound
			}
			return err
		}
		result := dbtx.Model(&domain.Voucher{}).
			Where("voucher_id = ? AND version = ?", v.VoucherID, v.Version).
			Updates(map[string]interface{}{
				"current_quantity": v.CurrentQuantity + quantity,
				"initial_quantity": v.InitialQuantity + quantity,
				"version":          gorm.Expr("version + 1"),
				"updated_at":       time.Now(),
			})
		if result.Error != nil {
			return result.Error
		}
		if result.RowsAffected == 0 {
			return store.ErrOptimisticLock
		}
		return nil
	})
}

func (s *Store) DeactivateVoucher(ctx context.Context, voucherID string) error {
	result := s.db.WithContext(ctx).Model(&domain.Voucher{}).
		Where("voucher_id = ?", voucherID).
		Updates(map[string]interface{}{
			"is_active":  false,
			"version":    gorm.Expr("version + 1"),
			"updated_at": time.Now(),
		})
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return store.ErrVoucherNotFound
	}
	return nil
}

// tx is the per-transaction handle the batch processor locks and
// mutates rows through.
type tx struct {
	db *gorm.DB
}

func (t *tx) FindGameForUpdate(ctx context.Context, gameID string) (*domain.Game, error) {
	var g domain.Game
	err := t.db.WithContext(ctx).
		Clauses(clause.Locking{Strength: "UPDATE"}).
		Where("game_id = ?", gameID).
		First(&g).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, store.ErrGameNotFound
		}
		return nil, err
	}
	return &g, nil
}

func (t *tx) SaveGame(ctx context.Context, game *domain.Game) error {
	result := t.db.WithContext(ctx).Model(&domain.Game{}).
		Where("game_id = ? AND version = ?", game.GameID, game.Version).
		Updates(map[string]interface{}{
			"remaining_budget": game.RemainingBudget,
			"status":           game.Status,
			"version":          gorm.Expr("version + 1"),
			"updated_at":       time.Now(),
		})
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return store.ErrOptimisticLock
	}
	game.Version++
	return nil
}

func (t *tx) FindVoucherForUpdate(ctx context.Context, voucherID string) (*domain.Voucher, error) {
	var v domain.Voucher
	err := t.db.WithContext(ctx).
		Clauses(clause.Locking{Strength: "UPDATE"}).
		Where("voucher_id = ?", voucherID).
		First(&v).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, store.ErrVoucherNotFound
		}
		return nil, err
	}
	return &v, nil
}

func (t *tx) SaveVoucher(ctx context.Context, voucher *domain.Voucher) error {
	result := t.db.WithContext(ctx).Model(&domain.Voucher{}).
		Where("voucher_id = ? AND version = ?", voucher.VoucherID, voucher.Version).
		Updates(map[string]interface{}{
			"current_quantity": voucher.CurrentQuantity,
			"version":          gorm.Expr("version + 1"),
			"updated_at":       time.Now(),
		})
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return store.ErrOptimisticLock
	}
	voucher.Version++
	return nil
}

func (t *tx) FindCandidateVouchers(ctx context.Context, tickBudget decimal.Decimal, now time.Time) ([]domain.Voucher, error) {
	var out []domain.Voucher
	err := t.db.WithContext(ctx).
		Where("is_active = ? AND current_quantity > 0 AND cost <= ? AND (expiry_at IS NULL OR expiry_at > ?)",
			true, tickBudget, now).
		Find(&out).Error
	return out, err
}

func (t *tx) FindOrCreateUser(ctx context.Context, username string) (*domain.User, error) {
	var u domain.User
	err := t.db.WithContext(ctx).Where("username = ?", username).First(&u).Error
	if err == nil {
		return &u, nil
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, err
	}
	u = domain.User{Username: username, IsActive: true, CreatedAt: time.Now()}
	if err := t.db.WithContext(ctx).Create(&u).Error; err != nil {
		return nil, err
	}
	return &u, nil
}

func (t *tx) CreateTransaction(ctx context.Context, txn *domain.RewardTransaction) error {
	return t.db.WithContext(ctx).Create(txn).Error
}

func (t *tx) FindBrandForUpdate(ctx context.Context, brandID string) (*domain.Brand, error) {
	var b domain.Brand
	err := t.db.WithContext(ctx).
		Clauses(clause.Locking{Strength: "UPDATE"}).
		Where("brand_id = ?", brandID).
		First(&b).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, store.ErrBrandNotFound
		}
		return nil, err
	}
	return &b, nil
}

func (t *tx) SaveBrand(ctx context.Context, brand *domain.Brand) error {
	result := t.db.WithContext(ctx).Model(&domain.Brand{}).
		Where("brand_id = ? AND version = ?", brand.BrandID, brand.Version).
		Updates(map[string]interface{}{
			"wallet_balance": brand.WalletBalance,
			"version":        gorm.Expr("version + 1"),
			"updated_at":     time.Now(),
		})
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return store.ErrOptimisticLock
	}
	brand.Version++
	return nil
}

func (t *tx) CreateGameBrandLink(ctx context.Context, link *domain.GameBrandLink) error {
	return t.db.WithContext(ctx).Create(link).Error
}

func (t *tx) CreateGame(ctx context.Context, game *domain.Game) error {
	return t.db.WithContext(ctx).Create(game).Error
}
