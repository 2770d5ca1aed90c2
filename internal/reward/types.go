package reward

import (
	"time"

	"luckengine/internal/domain"

	"github.com/shopspring/decimal"
)

// BatchRequest is the unit of work the Tick Aggregator submits to the
// Batch Processor.
type BatchRequest struct {
	BatchID   string
	GameID    string
	Usernames []string
	Timestamp time.Time
}

// UserRewardResult is one user's outcome within a batch.
type UserRewardResult struct {
	Username    string
	Status      domain.TransactionStatus
	VoucherID   string
	VoucherCode string
	Amount      decimal.Decimal
	Message     string
}

// BatchResult is the Batch Processor's public return value.
type BatchResult struct {
	BatchID          string
	ProcessedAt      time.Time
	Rewards          []UserRewardResult
	TotalSpent       decimal.Decimal
	ProcessingTimeMs int64
}
