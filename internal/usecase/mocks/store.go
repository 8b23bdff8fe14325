package mocks

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/shopspring/decimal"

	"github.com/iho/numledger/internal/domain"
	"github.com/iho/numledger/internal/usecase"
)

// Store is an in-memory database shared by the mock repositories. Writes
// made through a MockTx are undone on rollback and row locks taken with
// ...ForUpdate are held until the transaction ends. Wallet creation is
// never undone.
type Store struct {
	mu sync.Mutex

	wallets      map[string]*domain.Wallet
	walletOrder  []string
	walletByUser map[string]string

	transactions []*domain.Transaction
	txKeys       map[string]*domain.Transaction

	reservations map[string]*domain.Reservation
	resOrder     []string
	resKeys      map[string]string

	users  map[string]*domain.User
	outbox []*domain.OutboxEvent
	audits []*domain.AuditLog

	locksMu sync.Mutex
	locks   map[string]*sync.Mutex
}

// NewStore creates an empty Store.
func NewStore() *Store {
	return &Store{
		wallets:      make(map[string]*domain.Wallet),
		walletByUser: make(map[string]string),
		txKeys:       make(map[string]*domain.Transaction),
		reservations: make(map[string]*domain.Reservation),
		resKeys:      make(map[string]string),
		users:        make(map[string]*domain.User),
		locks:        make(map[string]*sync.Mutex),
	}
}

// SeedWallet creates a wallet whose balance is backed by a single topup row.
func (s *Store) SeedWallet(userID string, balance decimal.Decimal) *domain.Wallet {
	s.mu.Lock()
	defer s.mu.Unlock()

	id := fmt.Sprintf("wallet-%s", userID)
	w := &domain.Wallet{ID: id, UserID: userID, Balance: balance, Reserved: decimal.Zero}
	s.wallets[id] = w
	s.walletOrder = append(s.walletOrder, id)
	s.walletByUser[userID] = id

	if balance.IsPositive() {
		s.transactions = append(s.transactions, &domain.Transaction{
			ID:       fmt.Sprintf("seed-%s", userID),
			WalletID: id,
			Amount:   balance,
			Type:     domain.TxTypeTopup,
		})
	}

	return copyWallet(w)
}

// SeedUser registers a user with the given status.
func (s *Store) SeedUser(id string, status domain.UserStatus) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.users[id] = &domain.User{ID: id, Status: status}
}

// TamperBalance overwrites a wallet balance without writing a ledger row.
func (s *Store) TamperBalance(userID string, balance decimal.Decimal) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.wallets[s.walletByUser[userID]].Balance = balance
}

// TamperReserved overwrites a wallet reserved counter.
func (s *Store) TamperReserved(userID string, reserved decimal.Decimal) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.wallets[s.walletByUser[userID]].Reserved = reserved
}

// Wallet returns a snapshot of the user's wallet, or nil.
func (s *Store) Wallet(userID string) *domain.Wallet {
	s.mu.Lock()
	defer s.mu.Unlock()
	id, ok := s.walletByUser[userID]
	if !ok {
		return nil
	}
	return copyWallet(s.wallets[id])
}

// Transactions returns the ledger of a wallet in insertion order.
func (s *Store) Transactions(walletID string) []*domain.Transaction {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []*domain.Transaction
	for _, t := range s.transactions {
		if t.WalletID == walletID {
			out = append(out, t)
		}
	}
	return out
}

// Ledger sums a wallet's transactions.
func (s *Store) Ledger(walletID string) decimal.Decimal {
	return domain.SumAmounts(s.Transactions(walletID))
}

// Reservations returns reservation records of a wallet in insertion order.
func (s *Store) Reservations(walletID string) []*domain.Reservation {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []*domain.Reservation
	for _, id := range s.resOrder {
		if r := s.reservations[id]; r.WalletID == walletID {
			c := *r
			out = append(out, &c)
		}
	}
	return out
}

// User returns a snapshot of a user, or nil.
func (s *Store) User(id string) *domain.User {
	s.mu.Lock()
	defer s.mu.Unlock()
	u, ok := s.users[id]
	if !ok {
		return nil
	}
	c := *u
	return &c
}

// Outbox returns all recorded outbox events.
func (s *Store) Outbox() []*domain.OutboxEvent {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]*domain.OutboxEvent(nil), s.outbox...)
}

// Audits returns all recorded audit rows.
func (s *Store) Audits() []*domain.AuditLog {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]*domain.AuditLog(nil), s.audits...)
}

// lock takes the row lock for key on behalf of tx. A nil tx takes no lock.
func (s *Store) lock(tx usecase.Transaction, key string) {
	mtx, ok := tx.(*MockTx)
	if !ok || mtx == nil {
		return
	}

	mtx.mu.Lock()
	if mtx.heldKeys[key] {
		mtx.mu.Unlock()
		return
	}
	mtx.mu.Unlock()

	s.locksMu.Lock()
	l, ok := s.locks[key]
	if !ok {
		l = &sync.Mutex{}
		s.locks[key] = l
	}
	s.locksMu.Unlock()

	l.Lock()

	mtx.mu.Lock()
	mtx.heldKeys[key] = true
	mtx.held = append(mtx.held, l)
	mtx.mu.Unlock()
}

// onRollback registers an undo step. Must be called with s.mu held.
func (s *Store) onRollback(tx usecase.Transaction, undo func()) {
	if mtx, ok := tx.(*MockTx); ok && mtx != nil {
		mtx.mu.Lock()
		mtx.undo = append(mtx.undo, undo)
		mtx.mu.Unlock()
	}
}

func copyWallet(w *domain.Wallet) *domain.Wallet {
	c := *w
	return &c
}

// MockTx is a transaction over a Store.
type MockTx struct {
	store *Store

	mu       sync.Mutex
	held     []*sync.Mutex
	heldKeys map[string]bool
	undo     []func()
	done     bool

	Committed  bool
	RolledBack bool
	CommitErr  error
}

// Commit keeps all writes and releases row locks.
func (t *MockTx) Commit(ctx context.Context) error {
	if t.CommitErr != nil {
		return t.CommitErr
	}

	t.mu.Lock()
	if t.done {
		t.mu.Unlock()
		return fmt.Errorf("tx is closed")
	}
	t.done = true
	t.Committed = true
	t.undo = nil
	t.mu.Unlock()

	t.release()
	return nil
}

// Rollback undoes writes and releases row locks. It is a no-op after Commit.
func (t *MockTx) Rollback(ctx context.Context) error {
	t.mu.Lock()
	if t.done {
		t.mu.Unlock()
		return nil
	}
	t.done = true
	t.RolledBack = true
	undo := t.undo
	t.undo = nil
	t.mu.Unlock()

	t.store.mu.Lock()
	for i := len(undo) - 1; i >= 0; i-- {
		undo[i]()
	}
	t.store.mu.Unlock()

	t.release()
	return nil
}

func (t *MockTx) release() {
	t.mu.Lock()
	held := t.held
	t.held = nil
	t.heldKeys = make(map[string]bool)
	t.mu.Unlock()

	for _, l := range held {
		l.Unlock()
	}
}

// MockTransactionManager begins MockTx transactions.
type MockTransactionManager struct {
	store *Store

	mu  sync.Mutex
	txs []*MockTx

	BeginFunc func(ctx context.Context) (usecase.Transaction, error)
}

func NewMockTransactionManager(store *Store) *MockTransactionManager {
	return &MockTransactionManager{store: store}
}

func (m *MockTransactionManager) Begin(ctx context.Context) (usecase.Transaction, error) {
	if m.BeginFunc != nil {
		return m.BeginFunc(ctx)
	}

	tx := &MockTx{store: m.store, heldKeys: make(map[string]bool)}
	m.mu.Lock()
	m.txs = append(m.txs, tx)
	m.mu.Unlock()

	return tx, nil
}

// Begun returns every transaction started so far.
func (m *MockTransactionManager) Begun() []*MockTx {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]*MockTx(nil), m.txs...)
}

// MockIDGenerator returns sequential IDs.
type MockIDGenerator struct {
	prefix string
	n      atomic.Int64
}

func NewMockIDGenerator(prefix string) *MockIDGenerator {
	return &MockIDGenerator{prefix: prefix}
}

func (g *MockIDGenerator) Generate() string {
	return fmt.Sprintf("%s-%d", g.prefix, g.n.Add(1))
}

// MockDispatcher records dispatched incidents.
type MockDispatcher struct {
	mu        sync.Mutex
	incidents []*domain.ForensicIncident
}

func (d *MockDispatcher) Dispatch(ctx context.Context, incident *domain.ForensicIncident) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.incidents = append(d.incidents, incident)
}

// Incidents returns what was dispatched so far.
func (d *MockDispatcher) Incidents() []*domain.ForensicIncident {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]*domain.ForensicIncident(nil), d.incidents...)
}
