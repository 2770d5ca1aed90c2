// Package batchapi exposes the Batch Processor over HTTP as the
// synchronous mirror of the aggregator's own submissions (spec §6's
// POST /api/rewards/process-batch), for callers that want to submit
// and await one batch directly instead of going through a tick. It
// also carries the transaction-history reads RewardController exposed
// alongside process-batch in the Java original
// (getUserTransactionHistory/getGameTransactionHistory), since a
// subscriber joining the result broadcaster late needs a way to catch
// up on recent history (spec §4.4).
package batchapi

import (
	"errors"
	"net/http"
	"strconv"
	"time"

	"luckengine/internal/apperr"
	"luckengine/internal/logging"
	"luckengine/internal/reward"
	"luckengine/internal/store"

	"github.com/gin-gonic/gin"
)

// defaultHistoryLimit bounds an unqualified history request; callers
// needing more page via ?limit=.
const defaultHistoryLimit = 50

// Handler serves the batch-processing HTTP mirror and transaction
// history reads.
type Handler struct {
	processor *reward.Processor
	store     store.Store
	logger    logging.Logger
}

// NewHandler constructs a Handler bound to processor and st.
func NewHandler(processor *reward.Processor, st store.Store, logger logging.Logger) *Handler {
	return &Handler{processor: processor, store: st, logger: logging.WithComponent(logger, "batchapi")}
}

// Register mounts the batch-processing and history routes.
func (h *Handler) Register(r gin.IRouter) {
	r.POST("/api/rewards/process-batch", h.processBatch)
	r.GET("/api/rewards/game/:gameId/history", h.gameHistory)
	r.GET("/api/rewards/user/:username/history", h.userHistory)
}

type processBatchRequest struct {
	BatchID   string   `json:"batchId" binding:"required"`
	GameID    string   `json:"gameId" binding:"required"`
	Usernames []string `json:"usernames" binding:"required,min=1"`
	Timestamp *int64   `json:"timestamp"`
}

func (h *Handler) processBatch(c *gin.Context) {
	var req processBatchRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	timestamp := time.Now()
	if req.Timestamp != nil {
		timestamp = time.UnixMilli(*req.Timestamp)
	}

	result, err := h.processor.ProcessBatch(c.Request.Context(), reward.BatchRequest{
		BatchID:   req.BatchID,
		GameID:    req.GameID,
		Usernames: req.Usernames,
		Timestamp: timestamp,
	})
	if err != nil {
		var appErr *apperr.AppError
		if errors.As(err, &appErr) {
			c.JSON(apperr.HTTPStatus(appErr.Code), gin.H{"error": appErr.Message})
			return
		}
		h.logger.Error().Err(err).Msg("unhandled batch processing error")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
		return
	}
	c.JSON(http.StatusOK, result)
}

func (h *Handler) gameHistory(c *gin.Context) {
	txns, err := h.store.FindTransactionsByGameID(c.Request.Context(), c.Param("gameId"), historyLimit(c))
	if err != nil {
		h.logger.Error().Err(err).Msg("failed to load game transaction history")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
		return
	}
	c.JSON(http.StatusOK, txns)
}

func (h *Handler) userHistory(c *gin.Context) {
	txns, err := h.store.FindTransactionsByUserID(c.Request.Context(), c.Param("username"), historyLimit(c))
	if err != nil {
		h.logger.Error().Err(err).Msg("failed to load user transaction history")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
		return
	}
	c.JSON(http.StatusOK, txns)
}

func historyLimit(c *gin.Context) int {
	raw := c.Query("limit")
	if raw == "" {
		return defaultHistoryLimit
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n <= 0 {
		return defaultHistoryLimit
	}
	return n
}
