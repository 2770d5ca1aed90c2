// Package memstore is an in-memory implementation of store.Store used
// as the primary test fixture: it lets the batch processor be exercised
// deterministically without a live Postgres instance, mirroring the
// map+mutex style already used for in-process state elsewhere in this
// codebase. Because WithTx serializes every transaction, it never
// produces an optimistic-lock conflict for the processor's own writes,
// so the retry path is not reached through it.
package memstore

import (
	"context"
	"sort"
	"sync"
	"time"

	"luckengine/internal/domain"
	"luckengine/internal/store"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Store holds every entity in plain maps guarded by one mutex. A single
// process-wide lock stands in for per-row locking: it over-serializes
// relative to a real engine (which locks only the rows a transaction
// touches) but preserves every invariant the batch processor and its
// tests depend on.
type Store struct {
	mu sync.Mutex

	games        map[string]*domain.Game
	vouchers     map[string]*domain.Voucher
	brands       map[string]*domain.Brand
	usersByName  map[string]*domain.User
	transactions []domain.RewardTransaction
	batchIDs     map[string]bool
	links        []domain.GameBrandLink
}

// New returns an empty Store.
func New() *Store {
	return &Store{
		games:       make(map[string]*domain.Game),
		vouchers:    make(map[string]*domain.Voucher),
		brands:      make(map[string]*domain.Brand),
		usersByName: make(map[string]*domain.User),
		batchIDs:    make(map[string]bool),
	}
}

// SeedGame installs a game directly, for test setup.
func (s *Store) SeedGame(g *domain.Game) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if g.GameID == "" {
		g.GameID = uuid.New().String()
	}
	cp := *g
	s.games[cp.GameID] = &cp
}

// SeedVoucher installs a voucher directly, for test setup.
func (s *Store) SeedVoucher(v *domain.Voucher) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if v.VoucherID == "" {
		v.VoucherID = uuid.New().String()
	}
	cp := *v
	s.vouchers[cp.VoucherID] = &cp
}

// SeedBrand installs a brand directly, for test setup.
func (s *Store) SeedBrand(b *domain.Brand) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if b.BrandID == "" {
		b.BrandID = uuid.New().String()
	}
	cp := *b
	s.brands[cp.BrandID] = &cp
}

// GetGame returns a copy of the current game state, for assertions.
func (s *Store) GetGame(gameID string) (domain.Game, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	g, ok := s.games[gameID]
	if !ok {
		return domain.Game{}, false
	}
	return *g, true
}

// GetVoucher returns a copy of the current voucher state, for
// assertions.
func (s *Store) GetVoucher(voucherID string) (domain.Voucher, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	v, ok := s.vouchers[voucherID]
	if !ok {
		return domain.Voucher{}, false
	}
	return *v, true
}

// --- store.Store ---

// WithTx holds the store's single mutex for fn's duration instead of
// buffering writes for a real commit/rollback: only one attempt can run
// at a time, so there is nothing to roll back and no optimistic
// conflict can arise from another goroutine. Writes made before fn
// returns an error stay in place; rollback-on-error is provided only by
// the Postgres-backed store.
func (s *Store) WithTx(_ context.Context, fn func(store.Tx) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return fn((*tx)(s))
}

func (s *Store) ExistsBatchID(_ context.Context, batchID string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.batchIDs[batchID], nil
}

func (s *Store) FindTransactionsByBatchID(_ context.Context, batchID string) ([]domain.RewardTransaction, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []domain.RewardTransaction
	for _, t := range s.transactions {
		if t.BatchID == batchID {
			out = append(out, t)
		}
	}
	return out, nil
}

func (s *Store) FindGameByID(_ context.Context, gameID string) (*domain.Game, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	g, ok := s.games[gameID]
	if !ok {
		return nil, store.ErrGameNotFound
	}
	cp := *g
	return &cp, nil
}

func (s *Store) FindVoucherByID(_ context.Context, voucherID string) (*domain.Voucher, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	v, ok := s.vouchers[voucherID]
	if !ok {
		return nil, store.ErrVoucherNotFound
	}
	cp := *v
	return &cp, nil
}

func (s *Store) FindBrandByID(_ context.Context, brandID string) (*domain.Brand, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	b, ok := s.brands[brandID]
	if !ok {
		return nil, store.ErrBrandNotFound
	}
	cp := *b
	return &cp, nil
}

func (s *Store) FindUserByUsername(_ context.Context, username string) (*domain.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	u, ok := s.usersByName[username]
	if !ok {
		return nil, store.ErrUserNotFound
	}
	cp := *u
	return &cp, nil
}

func (s *Store) FindGamesToStart(_ context.Context, now time.Time) ([]domain.Game, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []domain.Game
	for _, g := range s.games {
		if g.Status == domain.GameScheduled && !g.StartTime.After(now) {
			out = append(out, *g)
		}
	}
	return out, nil
}

func (s *Store) FindGamesToComplete(_ context.Context, now time.Time) ([]domain.Game, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []domain.Game
	for _, g := range s.games {
		if g.Status == domain.GameActive && !g.EndTime.After(now) {
			out = append(out, *g)
		}
	}
	return out, nil
}

func (s *Store) UpdateGameStatus(_ context.Context, gameID string, status domain.GameStatus) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	g, ok := s.games[gameID]
	if !ok {
		return store.ErrGameNotFound
	}
	g.Status = status
	g.UpdatedAt = time.Now()
	return nil
}

func (s *Store) FindGameBrandLinks(_ context.Context, gameID string) ([]domain.GameBrandLink, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []domain.GameBrandLink
	for _, l := range s.links {
		if l.GameID == gameID {
			out = append(out, l)
		}
	}
	return out, nil
}

func (s *Store) CountTransactionsByGameAndStatus(_ context.Context, gameID string, status domain.TransactionStatus) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var n int64
	for _, t := range s.transactions {
		if t.GameID == gameID && t.Status == status {
			n++
		}
	}
	return n, nil
}

func (s *Store) SumAmountByGame(_ context.Context, gameID string) (decimal.Decimal, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	sum := decimal.Zero
	for _, t := range s.transactions {
		if t.GameID == gameID && t.Amount != nil {
			sum = sum.Add(*t.Amount)
		}
	}
	return sum, nil
}

func (s *Store) FindTransactionsByGameID(_ context.Context, gameID string, limit int) ([]domain.RewardTransaction, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []domain.RewardTransaction
	for _, t := range s.transactions {
		if t.GameID == gameID {
			out = append(out, t)
		}
	}
	return newestFirst(out, limit), nil
}

func (s *Store) FindTransactionsByUserID(_ context.Context, username string, limit int) ([]domain.RewardTransaction, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []domain.RewardTransaction
	for _, t := range s.transactions {
		if t.Username == username {
			out = append(out, t)
		}
	}
	return newestFirst(out, limit), nil
}

func newestFirst(txns []domain.RewardTransaction, limit int) []domain.RewardTransaction {
	sort.Slice(txns, func(i, j int) bool { return txns[i].CreatedAt.After(txns[j].CreatedAt) })
	if limit > 0 && len(txns) > limit {
		txns = txns[:limit]
	}
	return txns
}

func (s *Store) CreateBrand(_ context.Context, brand *domain.Brand) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if brand.BrandID == "" {
		brand.BrandID = uuid.New().String()
	}
	cp := *brand
	s.brands[cp.BrandID] = &cp
	return nil
}

func (s *Store) CreateVoucher(_ context.Context, voucher *domain.Voucher) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if voucher.VoucherID == "" {
		voucher.VoucherID = uuid.New().String()
	}
	cp := *voucher
	s.vouchers[cp.VoucherID] = &cp
	return nil
}

func (s *Store) DepositToBrand(_ context.Context, brandID string, amount decimal.Decimal) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	b, ok := s.brands[brandID]
	if !ok {
		return store.ErrBrandNotFound
	}
	b.WalletBalance = b.WalletBalance.Add(amount)
	b.Version++
	return nil
}

func (s *Store) RestockVoucher(_ context.Context, voucherID string, quantity int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	v, ok := s.vouchers[voucherID]
	if !ok {
		return store.ErrVoucherNotFound
	}
	v.CurrentQuantity += quantity
	v.InitialQuantity += quantity
	v.Version++
	return nil
}

func (s *Store) DeactivateVoucher(_ context.Context, voucherID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	v, ok := s.vouchers[voucherID]
	if !ok {
		return store.ErrVoucherNotFound
	}
	v.IsActive = false
	v.Version++
	return nil
}

// --- store.Tx ---
//
// tx is the Store itself viewed through the Tx interface: since
// WithTx already holds the store's single mutex for the closure's
// duration, every Tx method below is a direct, already-synchronized
// map operation with no further locking.
type tx Store

func (t *tx) FindGameForUpdate(_ context.Context, gameID string) (*domain.Game, error) {
	g, ok := t.games[gameID]
	if !ok {
		return nil, store.ErrGameNotFound
	}
	return g, nil
}

func (t *tx) SaveGame(_ context.Context, game *domain.Game) error {
	existing, ok := t.games[game.GameID]
	if !ok {
		return store.ErrGameNotFound
	}
	if existing != game {
		// A distinct pointer means the caller read a copy rather than
		// the locked row; it is a version conflict only if the copy's
		// version no longer matches the stored row.
		if existing.Version != game.Version {
			return store.ErrOptimisticLock
		}
	}
	game.Version++
	game.UpdatedAt = time.Now()
	t.games[game.GameID] = game
	return nil
}

func (t *tx) FindVoucherForUpdate(_ context.Context, voucherID string) (*domain.Voucher, error) {
	v, ok := t.vouchers[voucherID]
	if !ok {
		return nil, store.ErrVoucherNotFound
	}
	return v, nil
}

func (t *tx) SaveVoucher(_ context.Context, voucher *domain.Voucher) error {
	existing, ok := t.vouchers[voucher.VoucherID]
	if !ok {
		return store.ErrVoucherNotFound
	}
	if existing != voucher && existing.Version != voucher.Version {
		return store.ErrOptimisticLock
	}
	voucher.Version++
	voucher.UpdatedAt = time.Now()
	t.vouchers[voucher.VoucherID] = voucher
	return nil
}

func (t *tx) FindCandidateVouchers(_ context.Context, tickBudget decimal.Decimal, now time.Time) ([]domain.Voucher, error) {
	var out []domain.Voucher
	for _, v := range t.vouchers {
		if v.IsAvailable(now) && v.Cost.LessThanOrEqual(tickBudget) {
			out = append(out, *v)
		}
	}
	return out, nil
}

func (t *tx) FindOrCreateUser(_ context.Context, username string) (*domain.User, error) {
	if u, ok := t.usersByName[username]; ok {
		return u, nil
	}
	u := &domain.User{
		UserID:    uuid.New().String(),
		Username:  username,
		IsActive:  true,
		CreatedAt: time.Now(),
	}
	t.usersByName[username] = u
	return u, nil
}

func (t *tx) CreateTransaction(_ context.Context, txn *domain.RewardTransaction) error {
	if txn.TransactionID == "" {
		txn.TransactionID = uuid.New().String()
	}
	txn.CreatedAt = time.Now()
	t.transactions = append(t.transactions, *txn)
	t.batchIDs[txn.BatchID] = true
	return nil
}

func (t *tx) FindBrandForUpdate(_ context.Context, brandID string) (*domain.Brand, error) {
	b, ok := t.brands[brandID]
	if !ok {
		return nil, store.ErrBrandNotFound
	}
	return b, nil
}

func (t *tx) SaveBrand(_ context.Context, brand *domain.Brand) error {
	existing, ok := t.brands[brand.BrandID]
	if !ok {
		return store.ErrBrandNotFound
	}
	if existing != brand && existing.Version != brand.Version {
		return store.ErrOptimisticLock
	}
	brand.Version++
	brand.UpdatedAt = time.Now()
	t.brands[brand.BrandID] = brand
	return nil
}

func (t *tx) CreateGameBrandLink(_ context.Context, link *domain.GameBrandLink) error {
	link.CreatedAt = time.Now()
	t.links = append(t.links, *link)
	return nil
}

func (t *tx) CreateGame(_ context.Context, game *domain.Game) error {
	if game.GameID == "" {
		game.GameID = uuid.New().String()
	}
	game.CreatedAt = time.Now()
	game.UpdatedAt = time.Now()
	t.games[game.GameID] = game
	return nil
}
