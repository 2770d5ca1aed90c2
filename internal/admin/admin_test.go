package admin

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"luckengine/internal/domain"
	"luckengine/internal/logging"
	"luckengine/internal/store/memstore"

	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
)

func init() {
	gin.SetMode(gin.TestMode)
}

func newTestRouter(st *memstore.Store) *gin.Engine {
	r := gin.New()
	NewHandler(st, logging.New(logging.Config{Level: "error"})).Register(r)
	return r
}

func doRequest(r *gin.Engine, method, path string, body interface{}) *httptest.ResponseRecorder {
	var buf bytes.Buffer
	if body != nil {
		_ = json.NewEncoder(&buf).Encode(body)
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func TestCreateBrand(t *testing.T) {
	st := memstore.New()
	r := newTestRouter(st)

	w := doRequest(r, http.MethodPost, "/admin/brands", createBrandRequest{Name: "Acme", DailySpendLimit: decimal.NewFromInt(1000)})
	require.Equal(t, http.StatusCreated, w.Code)

	var brand domain.Brand
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &brand))
	require.Equal(t, "Acme", brand.Name)
	require.True(t, brand.IsActive)
}

func TestDepositToBrand_RejectsNonPositiveAmount(t *testing.T) {
	st := memstore.New()
	st.SeedBrand(&domain.Brand{BrandID: "brand-1", IsActive: true, Version: 1})
	r := newTestRouter(st)

	w := doRequest(r, http.MethodPost, "/admin/brands/brand-1/deposit", depositRequest{Amount: decimal.NewFromInt(-5)})
	require.Equal(t, http.StatusBadRequest, w.Code)
}

func TestDepositToBrand_UnknownBrandIsNotFound(t *testing.T) {
	st := memstore.New()
	r := newTestRouter(st)

	w := doRequest(r, http.MethodPost, "/admin/brands/does-not-exist/deposit", depositRequest{Amount: decimal.NewFromInt(5)})
	require.Equal(t, http.StatusNotFound, w.Code)
}

func TestCreateVoucher_RejectsWhenCostExceedsWallet(t *testing.T) {
	st := memstore.New()
	st.SeedBrand(&domain.Brand{BrandID: "brand-1", WalletBalance: decimal.NewFromInt(50), IsActive: true, Version: 1})
	r := newTestRouter(st)

	w := doRequest(r, http.MethodPost, "/admin/vouchers", createVoucherRequest{
		BrandID: "brand-1", Code: "V1", Cost: decimal.NewFromInt(10), InitialQuantity: 10, // 10*10=100 > 50
	})
	require.Equal(t, http.StatusBadRequest, w.Code)
}

func TestCreateVoucher_DebitsNothing(t *testing.T) {
	st := memstore.New()
	st.SeedBrand(&domain.Brand{BrandID: "brand-1", WalletBalance: decimal.NewFromInt(100), IsActive: true, Version: 1})
	r := newTestRouter(st)

	w := doRequest(r, http.MethodPost, "/admin/vouchers", createVoucherRequest{
		BrandID: "brand-1", Code: "V1", Cost: decimal.NewFromInt(10), InitialQuantity: 5,
	})
	require.Equal(t, http.StatusCreated, w.Code)

	brand, err := st.FindBrandByID(context.Background(), "brand-1")
	require.NoError(t, err)
	require.True(t, brand.WalletBalance.Equal(decimal.NewFromInt(100)), "createVoucher must not touch the wallet")
}

func TestCreateGame_DebitsContributingBrandsAndLocksContributions(t *testing.T) {
	st := memstore.New()
	st.SeedBrand(&domain.Brand{BrandID: "brand-1", WalletBalance: decimal.NewFromInt(100), IsActive: true, Version: 1})
	st.SeedBrand(&domain.Brand{BrandID: "brand-2", WalletBalance: decimal.NewFromInt(100), IsActive: true, Version: 1})
	r := newTestRouter(st)

	w := doRequest(r, http.MethodPost, "/admin/games", createGameRequest{
		GameCode:  "G1",
		StartTime: mustTime("2026-01-01T00:00:00Z"),
		EndTime:   mustTime("2026-01-01T01:00:00Z"),
		Brands: []createGameBrandContribution{
			{BrandID: "brand-1", ContributionAmount: decimal.NewFromInt(40)},
			{BrandID: "brand-2", ContributionAmount: decimal.NewFromInt(60)},
		},
	})
	require.Equal(t, http.StatusCreated, w.Code)

	var game domain.Game
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &game))
	require.True(t, game.TotalBudget.Equal(decimal.NewFromInt(100)))
	require.True(t, game.RemainingBudget.Equal(decimal.NewFromInt(100)))

	brand1, err := st.FindBrandByID(context.Background(), "brand-1")
	require.NoError(t, err)
	require.True(t, brand1.WalletBalance.Equal(decimal.NewFromInt(60)))

	brand2, err := st.FindBrandByID(context.Background(), "brand-2")
	require.NoError(t, err)
	require.True(t, brand2.WalletBalance.Equal(decimal.NewFromInt(40)))
}

func TestCreateGame_RejectsWhenBrandCannotAfford(t *testing.T) {
	st := memstore.New()
	st.SeedBrand(&domain.Brand{BrandID: "brand-1", WalletBalance: decimal.NewFromInt(10), IsActive: true, Version: 1})
	r := newTestRouter(st)

	w := doRequest(r, http.MethodPost, "/admin/games", createGameRequest{
		GameCode:  "G1",
		StartTime: mustTime("2026-01-01T00:00:00Z"),
		EndTime:   mustTime("2026-01-01T01:00:00Z"),
		Brands: []createGameBrandContribution{
			{BrandID: "brand-1", ContributionAmount: decimal.NewFromInt(40)},
		},
	})
	require.Equal(t, http.StatusBadRequest, w.Code)

	brand1, err := st.FindBrandByID(context.Background(), "brand-1")
	require.NoError(t, err)
	require.True(t, brand1.WalletBalance.Equal(decimal.NewFromInt(10)), "a rejected game must not partially debit")
}

func TestGameStats_AggregatesWinsLossesAndSpend(t *testing.T) {
	st := memstore.New()
	st.SeedGame(&domain.Game{GameID: "game-1", Status: domain.GameActive, TotalBudget: decimal.NewFromInt(100), RemainingBudget: decimal.NewFromInt(90)})
	r := newTestRouter(st)

	w := doRequest(r, http.MethodGet, "/admin/games/game-1/stats", nil)
	require.Equal(t, http.StatusOK, w.Code)

	var body map[string]interface{}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	require.Equal(t, "game-1", body["gameId"])
}

func mustTime(s string) time.Time {
	t, err := time.Parse(time.RFC3339, s)
	if err != nil {
		panic(err)
	}
	return t
}
