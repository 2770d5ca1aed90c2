// Package admin implements the Admin Surface (spec §4.6): brand/
// voucher/game CRUD and the game-creation brand-debit flow, as plain
// transactional gin handlers — grounded on GameService.createGame's
// canAfford-then-debit-then-lock sequence, reworked into the
// WithTx-scoped store contract instead of a Spring @Transactional
// method.
package admin

import (
	"errors"
	"net/http"
	"time"

	"luckengine/internal/apperr"
	"luckengine/internal/domain"
	"luckengine/internal/logging"
	"luckengine/internal/store"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Handler groups the admin-surface HTTP endpoints.
type Handler struct {
	store  store.Store
	logger logging.Logger
}

// NewHandler constructs a Handler bound to st.
func NewHandler(st store.Store, logger logging.Logger) *Handler {
	return &Handler{store: st, logger: logging.WithComponent(logger, "admin")}
}

// Register mounts every admin route under r.
func (h *Handler) Register(r gin.IRouter) {
	brands := r.Group("/admin/brands")
	brands.POST("", h.createBrand)
	brands.GET("/:brandId", h.getBrand)
	brands.POST("/:brandId/deposit", h.depositToBrand)

	vouchers := r.Group("/admin/vouchers")
	vouchers.POST("", h.createVoucher)
	vouchers.POST("/:voucherId/restock", h.restockVoucher)
	vouchers.POST("/:voucherId/deactivate", h.deactivateVoucher)

	games := r.Group("/admin/games")
	games.POST("", h.createGame)
	games.GET("/:gameId", h.getGame)
	games.GET("/:gameId/stats", h.gameStats)
}

func (h *Handler) respondErr(c *gin.Context, err error) {
	var appErr *apperr.AppError
	if errors.As(err, &appErr) {
		c.JSON(apperr.HTTPStatus(appErr.Code), gin.H{"error": appErr.Message})
		return
	}
	h.logger.Error().Err(err).Msg("unhandled admin error")
	c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
}

type createBrandRequest struct {
	Name            string          `json:"name" binding:"required"`
	DailySpendLimit decimal.Decimal `json:"dailySpendLimit"`
}

func (h *Handler) createBrand(c *gin.Context) {
	var req createBrandRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	brand := &domain.Brand{
		Name:            req.Name,
		DailySpendLimit: req.DailySpendLimit,
		IsActive:        true,
	}
	if err := h.store.CreateBrand(c.Request.Context(), brand); err != nil {
		h.respondErr(c, apperr.Wrap(err, apperr.Transient, "failed to create brand"))
		return
	}
	c.JSON(http.StatusCreated, brand)
}

func (h *Handler) getBrand(c *gin.Context) {
	brand, err := h.store.FindBrandByID(c.Request.Context(), c.Param("brandId"))
	if err != nil {
		h.respondErr(c, mapNotFound(err, "brand not found"))
		return
	}
	c.JSON(http.StatusOK, brand)
}

type depositRequest struct {
	Amount decimal.Decimal `json:"amount" binding:"required"`
}

func (h *Handler) depositToBrand(c *gin.Context) {
	var req depositRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if !req.Amount.IsPositive() {
		c.JSON(http.StatusBadRequest, gin.H{"error": "amount must be positive"})
		return
	}
	if err := h.store.DepositToBrand(c.Request.Context(), c.Param("brandId"), req.Amount); err != nil {
		h.respondErr(c, mapNotFound(err, "brand not found"))
		return
	}
	c.Status(http.StatusNoContent)
}

type createVoucherRequest struct {
	BrandID         string          `json:"brandId" binding:"required"`
	Code            string          `json:"code" binding:"required"`
	Description     string          `json:"description"`
	Cost            decimal.Decimal `json:"cost" binding:"required"`
	InitialQuantity int             `json:"initialQuantity" binding:"required"`
	ExpiryAt        *time.Time      `json:"expiryAt"`
}

// createVoucher validates that cost × quantity fits within the
// brand's current wallet balance, per spec §4.6, but debits nothing:
// the wallet is only reserved at game-creation time.
func (h *Handler) createVoucher(c *gin.Context) {
	var req createVoucherRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	brand, err := h.store.FindBrandByID(c.Request.Context(), req.BrandID)
	if err != nil {
		h.respondErr(c, mapNotFound(err, "brand not found"))
		return
	}
	totalValue := req.Cost.Mul(decimal.NewFromInt(int64(req.InitialQuantity)))
	if !brand.CanAfford(totalValue) {
		h.respondErr(c, apperr.New(apperr.StateInvalid, "voucher cost x quantity exceeds brand wallet balance"))
		return
	}
	voucher := &domain.Voucher{
		Code:            req.Code,
		BrandID:         req.BrandID,
		Description:     req.Description,
		Cost:            req.Cost,
		InitialQuantity: req.InitialQuantity,
		CurrentQuantity: req.InitialQuantity,
		ExpiryAt:        req.ExpiryAt,
		IsActive:        true,
	}
	if err := h.store.CreateVoucher(c.Request.Context(), voucher); err != nil {
		h.respondErr(c, apperr.Wrap(err, apperr.Transient, "failed to create voucher"))
		return
	}
	c.JSON(http.StatusCreated, voucher)
}

type restockRequest struct {
	Quantity int `json:"quantity" binding:"required"`
}

func (h *Handler) restockVoucher(c *gin.Context) {
	var req restockRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if req.Quantity <= 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "quantity must be positive"})
		return
	}
	if err := h.store.RestockVoucher(c.Request.Context(), c.Param("voucherId"), req.Quantity); err != nil {
		h.respondErr(c, mapNotFound(err, "voucher not found"))
		return
	}
	c.Status(http.StatusNoContent)
}

func (h *Handler) deactivateVoucher(c *gin.Context) {
	if err := h.store.DeactivateVoucher(c.Request.Context(), c.Param("voucherId")); err != nil {
		h.respondErr(c, mapNotFound(err, "voucher not found"))
		return
	}
	c.Status(http.StatusNoContent)
}

type createGameBrandContribution struct {
	BrandID            string          `json:"brandId" binding:"required"`
	ContributionAmount decimal.Decimal `json:"contributionAmount" binding:"required"`
}

type createGameRequest struct {
	GameCode         string                        `json:"gameCode" binding:"required"`
	StartTime        time.Time                     `json:"startTime" binding:"required"`
	EndTime          time.Time                     `json:"endTime" binding:"required"`
	WinProbability   float64                       `json:"winProbability"`
	VolatilityFactor float64                       `json:"volatilityFactor"`
	Brands           []createGameBrandContribution `json:"brands" binding:"required,min=1"`
}

// createGame debits each contributing brand's wallet by its
// contributionAmount, sums the contributions into totalBudget =
// remainingBudget, and creates one immutable locked GameBrandLink per
// brand — spec §4.6, grounded on GameService.createGame's
// validate-then-debit-then-link sequence.
func (h *Handler) createGame(c *gin.Context) {
	var req createGameRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if !req.EndTime.After(req.StartTime) {
		c.JSON(http.StatusBadRequest, gin.H{"error": "endTime must be after startTime"})
		return
	}
	winProbability := req.WinProbability
	if winProbability <= 0 {
		winProbability = domain.DefaultWinProbability
	}
	volatilityFactor := req.VolatilityFactor
	if volatilityFactor <= 0 {
		volatilityFactor = domain.DefaultVolatilityFactor
	}

	game := &domain.Game{
		GameID:           uuid.NewString(),
		GameCode:         req.GameCode,
		StartTime:        req.StartTime,
		EndTime:          req.EndTime,
		Status:           domain.GameScheduled,
		WinProbability:   winProbability,
		VolatilityFactor: volatilityFactor,
	}

	err := h.store.WithTx(c.Request.Context(), func(tx store.Tx) error {
		totalBudget := decimal.Zero
		for _, contribution := range req.Brands {
			brand, err := tx.FindBrandForUpdate(c.Request.Context(), contribution.BrandID)
			if err != nil {
				return apperr.Wrap(err, apperr.NotFound, "brand not found: "+contribution.BrandID)
			}
			if !brand.CanAfford(contribution.ContributionAmount) {
				return apperr.New(apperr.StateInvalid, "brand cannot afford contribution: "+contribution.BrandID)
			}
			brand.WalletBalance = brand.WalletBalance.Sub(contribution.ContributionAmount)
			if err := tx.SaveBrand(c.Request.Context(), brand); err != nil {
				if errors.Is(err, store.ErrOptimisticLock) {
					return apperr.Wrap(err, apperr.ConflictRetryable, "brand version conflict")
				}
				return apperr.Wrap(err, apperr.Transient, "failed to debit brand")
			}
			totalBudget = totalBudget.Add(contribution.ContributionAmount)
		}

		game.TotalBudget = totalBudget
		game.RemainingBudget = totalBudget
		if err := tx.CreateGame(c.Request.Context(), game); err != nil {
			return apperr.Wrap(err, apperr.Transient, "failed to create game")
		}
		for _, contribution := range req.Brands {
			link := &domain.GameBrandLink{
				GameID:             game.GameID,
				BrandID:            contribution.BrandID,
				ContributionAmount: contribution.ContributionAmount,
				IsLocked:           true,
			}
			if err := tx.CreateGameBrandLink(c.Request.Context(), link); err != nil {
				return apperr.Wrap(err, apperr.Transient, "failed to create game-brand link")
			}
		}
		return nil
	})
	if err != nil {
		h.respondErr(c, err)
		return
	}
	c.JSON(http.StatusCreated, game)
}

func (h *Handler) getGame(c *gin.Context) {
	game, err := h.store.FindGameByID(c.Request.Context(), c.Param("gameId"))
	if err != nil {
		h.respondErr(c, mapNotFound(err, "game not found"))
		return
	}
	c.JSON(http.StatusOK, game)
}

func (h *Handler) gameStats(c *gin.Context) {
	ctx := c.Request.Context()
	gameID := c.Param("gameId")
	game, err := h.store.FindGameByID(ctx, gameID)
	if err != nil {
		h.respondErr(c, mapNotFound(err, "game not found"))
		return
	}
	wins, err := h.store.CountTransactionsByGameAndStatus(ctx, gameID, domain.TxWin)
	if err != nil {
		h.respondErr(c, apperr.Wrap(err, apperr.Transient, "failed to count wins"))
		return
	}
	losses, err := h.store.CountTransactionsByGameAndStatus(ctx, gameID, domain.TxLoss)
	if err != nil {
		h.respondErr(c, apperr.Wrap(err, apperr.Transient, "failed to count losses"))
		return
	}
	totalSpent, err := h.store.SumAmountByGame(ctx, gameID)
	if err != nil {
		h.respondErr(c, apperr.Wrap(err, apperr.Transient, "failed to sum spend"))
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"gameId":          game.GameID,
		"status":          game.Status,
		"totalBudget":     game.TotalBudget,
		"remainingBudget": game.RemainingBudget,
		"totalSpent":      totalSpent,
		"wins":            wins,
		"losses":          losses,
	})
}

func mapNotFound(err error, message string) error {
	if errors.Is(err, store.ErrGameNotFound) || errors.Is(err, store.ErrVoucherNotFound) ||
		errors.Is(err, store.ErrBrandNotFound) || errors.Is(err, store.ErrUserNotFound) {
		return apperr.Wrap(err, apperr.NotFound, message)
	}
	return apperr.Wrap(err, apperr.Transient, message)
}
