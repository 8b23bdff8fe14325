package mocks

import (
	"context"
	"sort"
	"time"

	"github.com/shopspring/decimal"

	"github.com/iho/numledger/internal/domain"
	"github.com/iho/numledger/internal/usecase"
)

// MockWalletRepository is a mock implementation of WalletRepository.
type MockWalletRepository struct {
	store *Store

	GetByUserIDFunc          func(ctx context.Context, tx usecase.Transaction, userID string) (*domain.Wallet, error)
	GetByUserIDForUpdateFunc func(ctx context.Context, tx usecase.Transaction, userID string) (*domain.Wallet, error)
	SettleFunc               func(ctx context.Context, tx usecase.Transaction, id string, amount decimal.Decimal, updatedAt time.Time) (*domain.Wallet, error)
	ListFunc                 func(ctx context.Context, limit, offset int) ([]*domain.Wallet, error)
}

func NewMockWalletRepository(store *Store) *MockWalletRepository {
	return &MockWalletRepository{store: store}
}

func (m *MockWalletRepository) Ensure(ctx context.Context, tx usecase.Transaction, wallet *domain.Wallet) (*domain.Wallet, error) {
	s := m.store
	s.mu.Lock()
	defer s.mu.Unlock()

	if id, ok := s.walletByUser[wallet.UserID]; ok {
		return copyWallet(s.wallets[id]), nil
	}

	w := copyWallet(wallet)
	s.wallets[w.ID] = w
	s.walletOrder = append(s.walletOrder, w.ID)
	s.walletByUser[w.UserID] = w.ID

	return copyWallet(w), nil
}

func (m *MockWalletRepository) GetByUserID(ctx context.Context, tx usecase.Transaction, userID string) (*domain.Wallet, error) {
	if m.GetByUserIDFunc != nil {
		return m.GetByUserIDFunc(ctx, tx, userID)
	}

	s := m.store
	s.mu.Lock()
	defer s.mu.Unlock()

	id, ok := s.walletByUser[userID]
	if !ok {
		return nil, domain.ErrWalletNotFound
	}
	return copyWallet(s.wallets[id]), nil
}

func (m *MockWalletRepository) GetByUserIDForUpdate(ctx context.Context, tx usecase.Transaction, userID string) (*domain.Wallet, error) {
	if m.GetByUserIDForUpdateFunc != nil {
		return m.GetByUserIDForUpdateFunc(ctx, tx, userID)
	}

	m.store.mu.Lock()
	id, ok := m.store.walletByUser[userID]
	m.store.mu.Unlock()
	if !ok {
		return nil, domain.ErrWalletNotFound
	}

	return m.GetByIDForUpdate(ctx, tx, id)
}

func (m *MockWalletRepository) GetByIDForUpdate(ctx context.Context, tx usecase.Transaction, id string) (*domain.Wallet, error) {
	s := m.store
	s.lock(tx, "wallet:"+id)

	s.mu.Lock()
	defer s.mu.Unlock()

	w, ok := s.wallets[id]
	if !ok {
		return nil, domain.ErrWalletNotFound
	}
	return copyWallet(w), nil
}

func (m *MockWalletRepository) IncrementReserved(ctx context.Context, tx usecase.Transaction, id string, amount decimal.Decimal, updatedAt time.Time) error {
	_, err := m.update(tx, id, func(w *domain.Wallet) error {
		w.Reserved = w.Reserved.Add(amount)
		return nil
	}, updatedAt)
	return err
}

func (m *MockWalletRepository) ReleaseReserved(ctx context.Context, tx usecase.Transaction, id string, amount decimal.Decimal, updatedAt time.Time) (*domain.Wallet, error) {
	return m.update(tx, id, func(w *domain.Wallet) error {
		w.Reserved = decimal.Max(w.Reserved.Sub(amount), decimal.Zero)
		return nil
	}, updatedAt)
}

func (m *MockWalletRepository) SetReserved(ctx context.Context, tx usecase.Transaction, id string, reserved decimal.Decimal, updatedAt time.Time) error {
	_, err := m.update(tx, id, func(w *domain.Wallet) error {
		w.Reserved = reserved
		return nil
	}, updatedAt)
	return err
}

func (m *MockWalletRepository) Settle(ctx context.Context, tx usecase.Transaction, id string, amount decimal.Decimal, updatedAt time.Time) (*domain.Wallet, error) {
	if m.SettleFunc != nil {
		return m.SettleFunc(ctx, tx, id, amount, updatedAt)
	}

	return m.update(tx, id, func(w *domain.Wallet) error {
		if w.Balance.LessThan(amount) {
			return domain.ErrInsufficientFunds
		}
		w.Balance = w.Balance.Sub(amount)
		w.Reserved = decimal.Max(w.Reserved.Sub(amount), decimal.Zero)
		return nil
	}, updatedAt)
}

func (m *MockWalletRepository) Credit(ctx context.Context, tx usecase.Transaction, id string, amount decimal.Decimal, updatedAt time.Time) (*domain.Wallet, error) {
	return m.update(tx, id, func(w *domain.Wallet) error {
		w.Balance = w.Balance.Add(amount)
		return nil
	}, updatedAt)
}

func (m *MockWalletRepository) DebitIfSufficient(ctx context.Context, tx usecase.Transaction, id string, amount decimal.Decimal, updatedAt time.Time) (*domain.Wallet, error) {
	return m.update(tx, id, func(w *domain.Wallet) error {
		if w.Balance.LessThan(amount) {
			return domain.ErrInsufficientFunds
		}
		w.Balance = w.Balance.Sub(amount)
		return nil
	}, updatedAt)
}

func (m *MockWalletRepository) List(ctx context.Context, limit, offset int) ([]*domain.Wallet, error) {
	if m.ListFunc != nil {
		return m.ListFunc(ctx, limit, offset)
	}

	s := m.store
	s.mu.Lock()
	defer s.mu.Unlock()

	var out []*domain.Wallet
	for i := offset; i < len(s.walletOrder) && len(out) < limit; i++ {
		out = append(out, copyWallet(s.wallets[s.walletOrder[i]]))
	}
	return out, nil
}

// update applies fn atomically, the way a single UPDATE statement would.
func (m *MockWalletRepository) update(tx usecase.Transaction, id string, fn func(w *domain.Wallet) error, updatedAt time.Time) (*domain.Wallet, error) {
	s := m.store
	s.mu.Lock()
	defer s.mu.Unlock()

	w, ok := s.wallets[id]
	if !ok {
		return nil, domain.ErrWalletNotFound
	}

	before := *w
	if err := fn(w); err != nil {
		return nil, err
	}
	w.UpdatedAt = updatedAt

	// Undo as a delta so concurrent committed writes survive.
	dBalance := w.Balance.Sub(before.Balance)
	dReserved := w.Reserved.Sub(before.Reserved)
	s.onRollback(tx, func() {
		w := s.wallets[id]
		w.Balance = w.Balance.Sub(dBalance)
		w.Reserved = w.Reserved.Sub(dReserved)
	})

	return copyWallet(w), nil
}

// MockLedgerRepository is a mock implementation of LedgerRepository.
type MockLedgerRepository struct {
	store *Store

	CreateFunc      func(ctx context.Context, tx usecase.Transaction, t *domain.Transaction) error
	SumByWalletFunc func(ctx context.Context, tx usecase.Transaction, walletID string) (decimal.Decimal, error)
}

func NewMockLedgerRepository(store *Store) *MockLedgerRepository {
	return &MockLedgerRepository{store: store}
}

func (m *MockLedgerRepository) Create(ctx context.Context, tx usecase.Transaction, t *domain.Transaction) error {
	if m.CreateFunc != nil {
		return m.CreateFunc(ctx, tx, t)
	}

	s := m.store
	s.mu.Lock()
	defer s.mu.Unlock()

	if t.IdempotencyKey != nil {
		if _, exists := s.txKeys[*t.IdempotencyKey]; exists {
			return domain.ErrDuplicateIdempotencyKey
		}
		s.txKeys[*t.IdempotencyKey] = t
	}
	s.transactions = append(s.transactions, t)

	s.onRollback(tx, func() {
		for i := len(s.transactions) - 1; i >= 0; i-- {
			if s.transactions[i] == t {
				s.transactions = append(s.transactions[:i], s.transactions[i+1:]...)
				break
			}
		}
		if t.IdempotencyKey != nil {
			delete(s.txKeys, *t.IdempotencyKey)
		}
	})

	return nil
}

func (m *MockLedgerRepository) GetByIdempotencyKey(ctx context.Context, tx usecase.Transaction, key string) (*domain.Transaction, error) {
	s := m.store
	s.mu.Lock()
	defer s.mu.Unlock()

	t, ok := s.txKeys[key]
	if !ok {
		return nil, domain.ErrTransactionNotFound
	}
	return t, nil
}

func (m *MockLedgerRepository) SumByWallet(ctx context.Context, tx usecase.Transaction, walletID string) (decimal.Decimal, error) {
	if m.SumByWalletFunc != nil {
		return m.SumByWalletFunc(ctx, tx, walletID)
	}
	return m.store.Ledger(walletID), nil
}

func (m *MockLedgerRepository) ListByWallet(ctx context.Context, tx usecase.Transaction, walletID string, limit, offset int) ([]*domain.Transaction, error) {
	all := m.store.Transactions(walletID)

	var out []*domain.Transaction
	for i := len(all) - 1 - offset; i >= 0 && len(out) < limit; i-- {
		out = append(out, all[i])
	}
	return out, nil
}

func (m *MockLedgerRepository) CheckConsistency(ctx context.Context) (decimal.Decimal, decimal.Decimal, error) {
	s := m.store
	s.mu.Lock()
	defer s.mu.Unlock()

	totalBalance := decimal.Zero
	for _, w := range s.wallets {
		totalBalance = totalBalance.Add(w.Balance)
	}
	return totalBalance, domain.SumAmounts(s.transactions), nil
}

// MockReservationRepository is a mock implementation of ReservationRepository.
type MockReservationRepository struct {
	store *Store
}

func NewMockReservationRepository(store *Store) *MockReservationRepository {
	return &MockReservationRepository{store: store}
}

func (m *MockReservationRepository) Create(ctx context.Context, tx usecase.Transaction, r *domain.Reservation) error {
	s := m.store
	s.mu.Lock()
	defer s.mu.Unlock()

	if r.IdempotencyKey != nil {
		if _, exists := s.resKeys[*r.IdempotencyKey]; exists {
			return domain.ErrDuplicateIdempotencyKey
		}
		s.resKeys[*r.IdempotencyKey] = r.ID
	}

	c := *r
	s.reservations[r.ID] = &c
	s.resOrder = append(s.resOrder, r.ID)

	s.onRollback(tx, func() {
		delete(s.reservations, r.ID)
		for i, id := range s.resOrder {
			if id == r.ID {
				s.resOrder = append(s.resOrder[:i], s.resOrder[i+1:]...)
				break
			}
		}
		if r.IdempotencyKey != nil {
			delete(s.resKeys, *r.IdempotencyKey)
		}
	})

	return nil
}

func (m *MockReservationRepository) GetByIdempotencyKey(ctx context.Context, tx usecase.Transaction, key string) (*domain.Reservation, error) {
	s := m.store
	s.mu.Lock()
	defer s.mu.Unlock()

	id, ok := s.resKeys[key]
	if !ok {
		return nil, domain.ErrReservationNotFound
	}
	c := *s.reservations[id]
	return &c, nil
}

func (m *MockReservationRepository) GetByIDForUpdate(ctx context.Context, tx usecase.Transaction, id string) (*domain.Reservation, error) {
	s := m.store
	s.lock(tx, "reservation:"+id)

	s.mu.Lock()
	defer s.mu.Unlock()

	r, ok := s.reservations[id]
	if !ok {
		return nil, domain.ErrReservationNotFound
	}
	c := *r
	return &c, nil
}

func (m *MockReservationRepository) GetOpenByRef(ctx context.Context, tx usecase.Transaction, walletID, refID string) (*domain.Reservation, error) {
	s := m.store
	s.mu.Lock()
	var found string
	for _, id := range s.resOrder {
		r := s.reservations[id]
		if r.WalletID == walletID && r.RefID == refID && r.Status == domain.ReservationStatusOpen {
			found = id
			break
		}
	}
	s.mu.Unlock()

	if found == "" {
		return nil, domain.ErrReservationNotFound
	}
	return m.GetByIDForUpdate(ctx, tx, found)
}

func (m *MockReservationRepository) UpdateStatus(ctx context.Context, tx usecase.Transaction, id string, status domain.ReservationStatus, updatedAt time.Time) error {
	s := m.store
	s.mu.Lock()
	defer s.mu.Unlock()

	r, ok := s.reservations[id]
	if !ok {
		return domain.ErrReservationNotFound
	}

	before := *r
	r.Status = status
	r.UpdatedAt = updatedAt
	s.onRollback(tx, func() { *s.reservations[id] = before })

	return nil
}

func (m *MockReservationRepository) ListExpired(ctx context.Context, now time.Time, limit int) ([]*domain.Reservation, error) {
	s := m.store
	s.mu.Lock()
	defer s.mu.Unlock()

	var out []*domain.Reservation
	for _, id := range s.resOrder {
		r := s.reservations[id]
		if r.IsExpired(now) && len(out) < limit {
			c := *r
			out = append(out, &c)
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].ExpiresAt.Before(out[j].ExpiresAt) })
	return out, nil
}

func (m *MockReservationRepository) SumOpenByWallet(ctx context.Context, tx usecase.Transaction, walletID string) (decimal.Decimal, error) {
	sum := decimal.Zero
	for _, r := range m.store.Reservations(walletID) {
		if r.Status == domain.ReservationStatusOpen {
			sum = sum.Add(r.Amount)
		}
	}
	return sum, nil
}

// MockUserRepository is a mock implementation of UserRepository.
type MockUserRepository struct {
	store *Store

	GetByIDFunc func(ctx context.Context, tx usecase.Transaction, id string) (*domain.User, error)
	BanFunc     func(ctx context.Context, tx usecase.Transaction, id, reason string, at time.Time) (bool, error)
}

func NewMockUserRepository(store *Store) *MockUserRepository {
	return &MockUserRepository{store: store}
}

func (m *MockUserRepository) GetByID(ctx context.Context, tx usecase.Transaction, id string) (*domain.User, error) {
	if m.GetByIDFunc != nil {
		return m.GetByIDFunc(ctx, tx, id)
	}

	u := m.store.User(id)
	if u == nil {
		return nil, domain.ErrUserNotFound
	}
	return u, nil
}

func (m *MockUserRepository) Ban(ctx context.Context, tx usecase.Transaction, id, reason string, at time.Time) (bool, error) {
	if m.BanFunc != nil {
		return m.BanFunc(ctx, tx, id, reason, at)
	}

	s := m.store
	s.mu.Lock()
	defer s.mu.Unlock()

	u, ok := s.users[id]
	if ok && u.IsBanned() {
		return false, nil
	}

	var before *domain.User
	if ok {
		c := *u
		before = &c
	} else {
		u = &domain.User{ID: id}
		s.users[id] = u
	}

	u.Status = domain.UserStatusBanned
	u.BanReason = reason
	u.BannedAt = &at
	u.UpdatedAt = at

	s.onRollback(tx, func() {
		if before == nil {
			delete(s.users, id)
			return
		}
		*s.users[id] = *before
	})

	return true, nil
}

// MockOutboxRepository is a mock implementation of OutboxRepository.
type MockOutboxRepository struct {
	store *Store

	CreateFunc func(ctx context.Context, tx usecase.Transaction, event *domain.OutboxEvent) error
}

func NewMockOutboxRepository(store *Store) *MockOutboxRepository {
	return &MockOutboxRepository{store: store}
}

func (m *MockOutboxRepository) Create(ctx context.Context, tx usecase.Transaction, event *domain.OutboxEvent) error {
	if m.CreateFunc != nil {
		return m.CreateFunc(ctx, tx, event)
	}

	s := m.store
	s.mu.Lock()
	defer s.mu.Unlock()

	s.outbox = append(s.outbox, event)
	s.onRollback(tx, func() {
		for i := len(s.outbox) - 1; i >= 0; i-- {
			if s.outbox[i] == event {
				s.outbox = append(s.outbox[:i], s.outbox[i+1:]...)
				break
			}
		}
	})

	return nil
}

func (m *MockOutboxRepository) GetUnpublished(ctx context.Context, limit int) ([]*domain.OutboxEvent, error) {
	var out []*domain.OutboxEvent
	for _, e := range m.store.Outbox() {
		if !e.Published && len(out) < limit {
			out = append(out, e)
		}
	}
	return out, nil
}

func (m *MockOutboxRepository) MarkPublished(ctx context.Context, id string, publishedAt time.Time) error {
	s := m.store
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, e := range s.outbox {
		if e.ID == id {
			e.Published = true
			e.PublishedAt = &publishedAt
		}
	}
	return nil
}

func (m *MockOutboxRepository) DeletePublished(ctx context.Context, before time.Time) error {
	s := m.store
	s.mu.Lock()
	defer s.mu.Unlock()

	kept := s.outbox[:0]
	for _, e := range s.outbox {
		if e.Published && e.PublishedAt != nil && e.PublishedAt.Before(before) {
			continue
		}
		kept = append(kept, e)
	}
	s.outbox = kept
	return nil
}

// MockAuditRepository is a mock implementation of AuditRepository.
type MockAuditRepository struct {
	store *Store

	CreateTxFunc func(ctx context.Context, tx usecase.Transaction, log *domain.AuditLog) error
}

func NewMockAuditRepository(store *Store) *MockAuditRepository {
	return &MockAuditRepository{store: store}
}

func (m *MockAuditRepository) CreateTx(ctx context.Context, tx usecase.Transaction, log *domain.AuditLog) error {
	if m.CreateTxFunc != nil {
		return m.CreateTxFunc(ctx, tx, log)
	}

	s := m.store
	s.mu.Lock()
	defer s.mu.Unlock()

	s.audits = append(s.audits, log)
	s.onRollback(tx, func() {
		for i := len(s.audits) - 1; i >= 0; i-- {
			if s.audits[i] == log {
				s.audits = append(s.audits[:i], s.audits[i+1:]...)
				break
			}
		}
	})

	return nil
}

func (m *MockAuditRepository) List(ctx context.Context, filter domain.AuditFilter) ([]*domain.AuditLog, error) {
	var out []*domain.AuditLog
	for _, l := range m.store.Audits() {
		if filter.Action != "" && l.Action != filter.Action {
			continue
		}
		if filter.ResourceID != "" && l.ResourceID != filter.ResourceID {
			continue
		}
		out = append(out, l)
	}
	return out, nil
}
