package batchapi

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"luckengine/internal/clock"
	"luckengine/internal/domain"
	"luckengine/internal/logging"
	"luckengine/internal/reward"
	"luckengine/internal/rng"
	"luckengine/internal/store/memstore"

	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
)

func init() {
	gin.SetMode(gin.TestMode)
}

func newTestRouter(p *reward.Processor, st *memstore.Store) *gin.Engine {
	r := gin.New()
	NewHandler(p, st, logging.New(logging.Config{Level: "error"})).Register(r)
	return r
}

func TestProcessBatch_HappyPath(t *testing.T) {
	st := memstore.New()
	now := time.Now()
	st.SeedGame(&domain.Game{
		GameID: "game-1", Status: domain.GameActive,
		StartTime: now.Add(-time.Minute), EndTime: now.Add(time.Hour),
		TotalBudget: decimal.NewFromInt(100), RemainingBudget: decimal.NewFromInt(100),
		WinProbability: 1, VolatilityFactor: 1.2, Version: 1,
	})
	st.SeedVoucher(&domain.Voucher{VoucherID: "v1", Code: "V1", BrandID: "b1", Cost: decimal.NewFromInt(10), InitialQuantity: 5, CurrentQuantity: 5, IsActive: true, Version: 1})

	processor := reward.New(st, clock.NewReal(), rng.New(1), reward.DefaultConfig(), logging.New(logging.Config{Level: "error"}))
	r := newTestRouter(processor, st)

	body, _ := json.Marshal(map[string]interface{}{
		"batchId":   "batch-1",
		"gameId":    "game-1",
		"usernames": []string{"alice"},
	})
	req := httptest.NewRequest(http.MethodPost, "/api/rewards/process-batch", bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	require.Equal(t, http.StatusOK, w.Code)
	var result reward.BatchResult
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &result))
	require.Equal(t, "batch-1", result.BatchID)
	require.Len(t, result.Rewards, 1)
}

func TestProcessBatch_RejectsMissingUsernames(t *testing.T) {
	st := memstore.New()
	processor := reward.New(st, clock.NewReal(), rng.New(1), reward.DefaultConfig(), logging.New(logging.Config{Level: "error"}))
	r := newTestRouter(processor, st)

	body, _ := json.Marshal(map[string]interface{}{"batchId": "batch-1", "gameId": "game-1", "usernames": []string{}})
	req := httptest.NewRequest(http.MethodPost, "/api/rewards/process-batch", bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	require.Equal(t, http.StatusBadRequest, w.Code)
}

func TestProcessBatch_UnknownGameStillReturnsOKAllLoss(t *testing.T) {
	st := memstore.New()
	processor := reward.New(st, clock.NewReal(), rng.New(1), reward.DefaultConfig(), logging.New(logging.Config{Level: "error"}))
	r := newTestRouter(processor, st)

	body, _ := json.Marshal(map[string]interface{}{"batchId": "batch-1", "gameId": "does-not-exist", "usernames": []string{"alice"}})
	req := httptest.NewRequest(http.MethodPost, "/api/rewards/process-batch", bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	require.Equal(t, http.StatusOK, w.Code)
	var result reward.BatchResult
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &result))
	require.Equal(t, domain.TxLoss, result.Rewards[0].Status)
}

func TestGameHistory_ReturnsTransactionsAfterProcessing(t *testing.T) {
	st := memstore.New()
	now := time.Now()
	st.SeedGame(&domain.Game{
		GameID: "game-1", Status: domain.GameActive,
		StartTime: now.Add(-time.Minute), EndTime: now.Add(time.Hour),
		TotalBudget: decimal.NewFromInt(100), RemainingBudget: decimal.NewFromInt(100),
		WinProbability: 1, VolatilityFactor: 1.2, Version: 1,
	})
	st.SeedVoucher(&domain.Voucher{VoucherID: "v1", Code: "V1", BrandID: "b1", Cost: decimal.NewFromInt(10), InitialQuantity: 5, CurrentQuantity: 5, IsActive: true, Version: 1})

	processor := reward.New(st, clock.NewReal(), rng.New(1), reward.DefaultConfig(), logging.New(logging.Config{Level: "error"}))
	r := newTestRouter(processor, st)

	body, _ := json.Marshal(map[string]interface{}{"batchId": "batch-1", "gameId": "game-1", "usernames": []string{"alice"}})
	req := httptest.NewRequest(http.MethodPost, "/api/rewards/process-batch", bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	require.Equal(t, http.StatusOK, w.Code)

	histReq := httptest.NewRequest(http.MethodGet, "/api/rewards/game/game-1/history", nil)
	histW := httptest.NewRecorder()
	r.ServeHTTP(histW, histReq)
	require.Equal(t, http.StatusOK, histW.Code)

	var txns []domain.RewardTransaction
	require.NoError(t, json.Unmarshal(histW.Body.Bytes(), &txns))
	require.Len(t, txns, 1)
	require.Equal(t, "alice", txns[0].Username)

	userHistReq := httptest.NewRequest(http.MethodGet, "/api/rewards/user/alice/history", nil)
	userHistW := httptest.NewRecorder()
	r.ServeHTTP(userHistW, userHistReq)
	require.Equal(t, http.StatusOK, userHistW.Code)

	var userTxns []domain.RewardTransaction
	require.NoError(t, json.Unmarshal(userHistW.Body.Bytes(), &userTxns))
	require.Len(t, userTxns, 1)
	require.Equal(t, "game-1", userTxns[0].GameID)
}
