package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// Brand funds vouchers through a wallet debited at game creation.
type Brand struct {
	BrandID         string          `gorm:"column:brand_id;primaryKey;type:uuid;default:uuid_generate_v4()"`
	Name            string          `gorm:"column:name;type:varchar(100);not null;unique"`
	WalletBalance   decimal.Decimal `gorm:"column:wallet_balance;type:numeric(20,2);not null;default:0"`
	DailySpendLimit decimal.Decimal `gorm:"column:daily_spend_limit;type:numeric(20,2);not null;default:0"`
	IsActive        bool            `gorm:"column:is_active;not null;default:true"`
	Version         int             `gorm:"column:version;not null;default:1"`
	CreatedAt       time.Time       `gorm:"column:created_at;not null;default:now()"`
	UpdatedAt       time.Time       `gorm:"column:updated_at;not null;default:now()"`
}

// CanAfford reports whether the brand's wallet can cover amount.
func (b *Brand) CanAfford(amount decimal.Decimal) bool {
	return b.IsActive && b.WalletBalance.GreaterThanOrEqual(amount)
}

// Voucher is a unit of reward inventory belonging to a Brand.
type Voucher struct {
	VoucherID        string          `gorm:"column:voucher_id;primaryKey;type:uuid;default:uuid_generate_v4()"`
	Code             string          `gorm:"column:code;type:varchar(64);not null;unique"`
	BrandID          string          `gorm:"column:brand_id;type:uuid;not null;index:idx_vouchers_brand_active"`
	Description      string          `gorm:"column:description;type:varchar(255)"`
	Cost             decimal.Decimal `gorm:"column:cost;type:numeric(20,2);not null"`
	InitialQuantity  int             `gorm:"column:initial_quantity;not null"`
	CurrentQuantity  int             `gorm:"column:current_quantity;not null;index:idx_vouchers_current_quantity"`
	ExpiryAt         *time.Time      `gorm:"column:expiry_at"`
	IsActive         bool            `gorm:"column:is_active;not null;default:true;index:idx_vouchers_brand_active"`
	Version          int             `gorm:"column:version;not null;default:1"`
	CreatedAt        time.Time       `gorm:"column:created_at;not null;default:now()"`
	UpdatedAt        time.Time       `gorm:"column:updated_at;not null;default:now()"`
}

// IsAvailable reports whether v can currently be awarded, given now.
func (v *Voucher) IsAvailable(now time.Time) bool {
	if !v.IsActive || v.CurrentQuantity <= 0 {
		return false
	}
	if v.ExpiryAt != nil && !v.ExpiryAt.After(now) {
		return false
	}
	return true
}

// Game is one luck campaign: a fixed budget spent down by winning
// batches over a fixed time window.
type Game struct {
	GameID           string          `gorm:"column:game_id;primaryKey;type:uuid;default:uuid_generate_v4()"`
	GameCode         string          `gorm:"column:game_code;type:varchar(64);not null;unique"`
	StartTime        time.Time       `gorm:"column:start_time;not null"`
	EndTime          time.Time       `gorm:"column:end_time;not null"`
	TotalBudget      decimal.Decimal `gorm:"column:total_budget;type:numeric(20,2);not null"`
	RemainingBudget  decimal.Decimal `gorm:"column:remaining_budget;type:numeric(20,2);not null"`
	Status           GameStatus      `gorm:"column:status;type:varchar(20);not null;default:'SCHEDULED'"`
	WinProbability   float64         `gorm:"column:win_probability;not null;default:0.15"`
	VolatilityFactor float64         `gorm:"column:volatility_factor;not null;default:1.2"`
	Version          int             `gorm:"column:version;not null;default:1"`
	CreatedAt        time.Time       `gorm:"column:created_at;not null;default:now()"`
	UpdatedAt        time.Time       `gorm:"column:updated_at;not null;default:now()"`
}

// IsActiveAndFunded mirrors the predicate the batch processor checks
// before authorizing any spend: the game must be ACTIVE, still running,
// and have budget left.
func (g *Game) IsActiveAndFunded(now time.Time) bool {
	return g.Status == GameActive && now.Before(g.EndTime) && g.RemainingBudget.GreaterThan(decimal.Zero)
}

// GameBrandLink records a brand's locked contribution to a game's
// budget. Immutable once created.
type GameBrandLink struct {
	GameID             string          `gorm:"column:game_id;primaryKey;type:uuid"`
	BrandID            string          `gorm:"column:brand_id;primaryKey;type:uuid"`
	ContributionAmount decimal.Decimal `gorm:"column:contribution_amount;type:numeric(20,2);not null"`
	IsLocked           bool            `gorm:"column:is_locked;not null;default:true"`
	CreatedAt          time.Time       `gorm:"column:created_at;not null;default:now()"`
}

// User is created on demand the first time a batch references their
// username.
type User struct {
	UserID       string     `gorm:"column:user_id;primaryKey;type:uuid;default:uuid_generate_v4()"`
	Username     string     `gorm:"column:username;type:varchar(100);not null;unique"`
	Email        string     `gorm:"column:email;type:varchar(255)"`
	FullName     string     `gorm:"column:full_name;type:varchar(255)"`
	IsActive     bool       `gorm:"column:is_active;not null;default:true"`
	LastPlayedAt *time.Time `gorm:"column:last_played_at"`
	CreatedAt    time.Time  `gorm:"column:created_at;not null;default:now()"`
}

// RewardTransaction is the append-only record of one user's outcome
// within one batch.
type RewardTransaction struct {
	TransactionID string            `gorm:"column:transaction_id;primaryKey;type:uuid;default:uuid_generate_v4()"`
	UserID        string            `gorm:"column:user_id;type:uuid;not null;index:idx_rt_user_game"`
	Username      string            `gorm:"column:username;type:varchar(100);not null"`
	GameID        string            `gorm:"column:game_id;type:uuid;not null;index:idx_rt_user_game"`
	VoucherID     *string           `gorm:"column:voucher_id;type:uuid"`
	BatchID       string            `gorm:"column:batch_id;type:varchar(100);not null;index:idx_rt_batch_id"`
	Status        TransactionStatus `gorm:"column:status;type:varchar(20);not null"`
	Amount        *decimal.Decimal  `gorm:"column:amount;type:numeric(20,2)"`
	RewardMessage string            `gorm:"column:reward_message;type:varchar(255)"`
	CreatedAt     time.Time         `gorm:"column:created_at;not null;default:now()"`
}
