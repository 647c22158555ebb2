package integration

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"custodial-wallet-backend/internal/core/domain"
	"custodial-wallet-backend/internal/core/ports"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/shopspring/decimal"
)

// --- In-Memory User Repo ---

type inMemoryUserRepo struct {
	mu    sync.RWMutex
	users map[uuid.UUID]domain.User
}

func newInMemoryUserRepo() *inMemoryUserRepo {
	return &inMemoryUserRepo{users: make(map[uuid.UUID]domain.User)}
}

func (r *inMemoryUserRepo) Create(ctx context.Context, u *domain.User) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.users[u.ID] = *u
	return nil
}

func (r *inMemoryUserRepo) GetByID(ctx context.Context, id uuid.UUID) (*domain.User, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	u, ok := r.users[id]
	if !ok {
		return nil, nil
	}
	return &u, nil
}

func (r *inMemoryUserRepo) GetByIDForUpdate(ctx context.Context, tx pgx.Tx, id uuid.UUID) (*domain.User, error) {
	// The transactor already holds the global lock; a plain read suffices.
	return r.GetByID(ctx, id)
}

func (r *inMemoryUserRepo) GetByGoogleSub(ctx context.Context, sub string) (*domain.User, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, u := range r.users {
		if u.GoogleSub == sub {
			user := u
			return &user, nil
		}
	}
	return nil, nil
}

func (r *inMemoryUserRepo) GetByEmail(ctx context.Context, email string) (*domain.User, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, u := range r.users {
		if u.Email == email {
			user := u
			return &user, nil
		}
	}
	return nil, nil
}

// --- In-Memory Wallet Repo ---

type inMemoryWalletRepo struct {
	mu      sync.RWMutex
	wallets map[uuid.UUID]domain.Wallet
}

func newInMemoryWalletRepo() *inMemoryWalletRepo {
	return &inMemoryWalletRepo{wallets: make(map[uuid.UUID]domain.Wallet)}
}

func (r *inMemoryWalletRepo) Create(ctx context.Context, w *domain.Wallet) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.wallets[w.ID] = *w
	return nil
}

func (r *inMemoryWalletRepo) GetByID(ctx context.Context, id uuid.UUID) (*domain.Wallet, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	w, ok := r.wallets[id]
	if !ok {
		return nil, nil
	}
	return &w, nil
}

func (r *inMemoryWalletRepo) GetByUserID(ctx context.Context, userID uuid.UUID) (*domain.Wallet, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, w := range r.wallets {
		if w.UserID == userID {
			wallet := w
			return &wallet, nil
		}
	}
	return nil, nil
}

func (r *inMemoryWalletRepo) GetByWalletNumber(ctx context.Context, walletNumber string) (*domain.Wallet, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, w := range r.wallets {
		if w.WalletNumber == walletNumber {
			wallet := w
			return &wallet, nil
		}
	}
	return nil, nil
}

func (r *inMemoryWalletRepo) GetByIDForUpdate(ctx context.Context, tx pgx.Tx, id uuid.UUID) (*domain.Wallet, error) {
	return r.GetByID(ctx, id)
}

func (r *inMemoryWalletRepo) GetByUserIDForUpdate(ctx context.Context, tx pgx.Tx, userID uuid.UUID) (*domain.Wallet, error) {
	return r.GetByUserID(ctx, userID)
}

func (r *inMemoryWalletRepo) UpdateBalance(ctx context.Context, tx pgx.Tx, walletID uuid.UUID, balance decimal.Decimal) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	w, ok := r.wallets[walletID]
	if !ok {
		return fmt.Errorf("wallet not found")
	}
	w.Balance = balance
	w.UpdatedAt = time.Now().UTC()
	r.wallets[walletID] = w
	return nil
}

func (r *inMemoryWalletRepo) WalletNumberExists(ctx context.Context, walletNumber string) (bool, error) {
	w, err := r.GetByWalletNumber(ctx, walletNumber)
	return w != nil, err
}

// --- In-Memory Transaction Repo ---

type inMemoryTransactionRepo struct {
	mu           sync.RWMutex
	transactions map[uuid.UUID]domain.Transaction
}

func newInMemoryTransactionRepo() *inMemoryTransactionRepo {
	return &inMemoryTransactionRepo{transactions: make(map[uuid.UUID]domain.Transaction)}
}

func (r *inMemoryTransactionRepo) Create(ctx context.Context, tx pgx.Tx, t *domain.Transaction) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.transactions[t.ID] = *t
	return nil
}

func (r *inMemoryTransactionRepo) GetByID(ctx context.Context, id uuid.UUID) (*domain.Transaction, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	t, ok := r.transactions[id]
	if !ok {
		return nil, nil
	}
	return &t, nil
}

func (r *inMemoryTransactionRepo) GetByReference(ctx context.Context, reference string) (*domain.Transaction, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var matches []domain.Transaction
	for _, t := range r.transactions {
		if t.Reference == reference {
			matches = append(matches, t)
		}
	}
	if len(matches) == 0 {
		return nil, nil
	}
	// Deterministic pick when a transfer's two rows share the reference.
	sort.Slice(matches, func(i, j int) bool {
		if matches[i].CreatedAt.Equal(matches[j].CreatedAt) {
			return matches[i].Type < matches[j].Type
		}
		return matches[i].CreatedAt.Before(matches[j].CreatedAt)
	})
	return &matches[0], nil
}

func (r *inMemoryTransactionRepo) GetByReferenceForUpdate(ctx context.Context, tx pgx.Tx, reference string) (*domain.Transaction, error) {
	return r.GetByReference(ctx, reference)
}

func (r *inMemoryTransactionRepo) UpdateStatus(ctx context.Context, tx pgx.Tx, id uuid.UUID, status domain.TransactionStatus, completedAt *time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	t, ok := r.transactions[id]
	if !ok {
		return fmt.Errorf("transaction not found")
	}
	t.Status = status
	t.CompletedAt = completedAt
	r.transactions[id] = t
	return nil
}

func (r *inMemoryTransactionRepo) List(ctx context.Context, params ports.TransactionListParams) ([]domain.Transaction, int64, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var result []domain.Transaction
	for _, t := range r.transactions {
		if t.UserID != params.UserID {
			continue
		}
		if params.Status != nil && t.Status != *params.Status {
			continue
		}
		if params.Type != nil && t.Type != *params.Type {
			continue
		}
		result = append(result, t)
	}
	sort.Slice(result, func(i, j int) bool {
		return result[i].CreatedAt.After(result[j].CreatedAt)
	})
	total := int64(len(result))

	// Simple pagination
	start := params.Offset
	if start >= len(result) {
		return []domain.Transaction{}, total, nil
	}
	end := start + params.Limit
	if end > len(result) {
		end = len(result)
	}
	return result[start:end], total, nil
}

// --- In-Memory Transaction Audit Repo ---

type inMemoryAuditRepo struct {
	mu     sync.RWMutex
	audits map[uuid.UUID]domain.TransactionAudit
}

func newInMemoryAuditRepo() *inMemoryAuditRepo {
	return &inMemoryAuditRepo{audits: make(map[uuid.UUID]domain.TransactionAudit)}
}

func (r *inMemoryAuditRepo) Create(ctx context.Context, tx pgx.Tx, audit *domain.TransactionAudit) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.audits[audit.TransactionID] = *audit
	return nil
}

func (r *inMemoryAuditRepo) Update(ctx context.Context, tx pgx.Tx, audit *domain.TransactionAudit) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.audits[audit.TransactionID]; !ok {
		return fmt.Errorf("audit record not found")
	}
	r.audits[audit.TransactionID] = *audit
	return nil
}

func (r *inMemoryAuditRepo) GetByTransactionID(ctx context.Context, transactionID uuid.UUID) (*domain.TransactionAudit, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	a, ok := r.audits[transactionID]
	if !ok {
		return nil, nil
	}
	return &a, nil
}

// --- In-Memory API Key Repo ---

type inMemoryAPIKeyRepo struct {
	mu   sync.RWMutex
	keys map[uuid.UUID]domain.APIKey
}

func newInMemoryAPIKeyRepo() *inMemoryAPIKeyRepo {
	return &inMemoryAPIKeyRepo{keys: make(map[uuid.UUID]domain.APIKey)}
}

func (r *inMemoryAPIKeyRepo) Create(ctx context.Context, tx pgx.Tx, key *domain.APIKey) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.keys[key.ID] = *key
	return nil
}

func (r *inMemoryAPIKeyRepo) GetByID(ctx context.Context, id uuid.UUID) (*domain.APIKey, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	k, ok := r.keys[id]
	if !ok {
		return nil, nil
	}
	return &k, nil
}

func (r *inMemoryAPIKeyRepo) ListByUser(ctx context.Context, userID uuid.UUID) ([]domain.APIKey, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var result []domain.APIKey
	for _, k := range r.keys {
		if k.UserID == userID {
			result = append(result, k)
		}
	}
	return result, nil
}

func (r *inMemoryAPIKeyRepo) ListActiveByUser(ctx context.Context, tx pgx.Tx, userID uuid.UUID, now time.Time) ([]domain.APIKey, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var result []domain.APIKey
	for _, k := range r.keys {
		if k.UserID == userID && k.IsActive(now) {
			result = append(result, k)
		}
	}
	return result, nil
}

func (r *inMemoryAPIKeyRepo) ListActive(ctx context.Context, now time.Time) ([]domain.APIKey, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var result []domain.APIKey
	for _, k := range r.keys {
		if k.IsActive(now) {
			result = append(result, k)
		}
	}
	return result, nil
}

func (r *inMemoryAPIKeyRepo) Revoke(ctx context.Context, id uuid.UUID, revokedAt time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	k, ok := r.keys[id]
	if !ok {
		return fmt.Errorf("api key not found")
	}
	k.Revoked = true
	k.RevokedAt = &revokedAt
	r.keys[id] = k
	return nil
}

func (r *inMemoryAPIKeyRepo) TouchLastUsed(ctx context.Context, id uuid.UUID, usedAt time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	k, ok := r.keys[id]
	if !ok {
		return fmt.Errorf("api key not found")
	}
	k.LastUsedAt = &usedAt
	r.keys[id] = k
	return nil
}

// --- In-Memory Transactor ---

// inMemoryTransactor serializes atomic units with a single mutex, standing in
// for PostgreSQL row locks. Transfers and webhook settlements therefore run
// one at a time, which is what SELECT ... FOR UPDATE gives the real store on
// contended rows.
type inMemoryTransactor struct {
	mu sync.Mutex
}

func newInMemoryTransactor() *inMemoryTransactor {
	return &inMemoryTransactor{}
}

func (t *inMemoryTransactor) Begin(ctx context.Context) (pgx.Tx, error) {
	t.mu.Lock()
	return &memTx{transactor: t}, nil
}

// memTx is a pgx.Tx that releases the transactor lock on Commit or Rollback,
// whichever comes first.
type memTx struct {
	transactor *inMemoryTransactor
	once       sync.Once
}

func (t *memTx) release() {
	t.once.Do(func() { t.transactor.mu.Unlock() })
}

func (t *memTx) Commit(ctx context.Context) error   { t.release(); return nil }
func (t *memTx) Rollback(ctx context.Context) error { t.release(); return nil }

func (t *memTx) Begin(ctx context.Context) (pgx.Tx, error) { return t, nil }
func (t *memTx) CopyFrom(ctx context.Context, tableName pgx.Identifier, columnNames []string, rowSrc pgx.CopyFromSource) (int64, error) {
	return 0, nil
}
func (t *memTx) SendBatch(ctx context.Context, b *pgx.Batch) pgx.BatchResults { return nil }
func (t *memTx) LargeObjects() pgx.LargeObjects                               { return pgx.LargeObjects{} }
func (t *memTx) Prepare(ctx context.Context, name, sql string) (*pgconn.StatementDescription, error) {
	return nil, nil
}
func (t *memTx) Exec(ctx context.Context, sql string, arguments ...any) (pgconn.CommandTag, error) {
	return pgconn.NewCommandTag(""), nil
}
func (t *memTx) Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error) {
	return nil, nil
}
func (t *memTx) QueryRow(ctx context.Context, sql string, args ...any) pgx.Row {
	return nil
}
func (t *memTx) Conn() *pgx.Conn { return nil }

// --- Fake Payment Gateway ---

// fakeGateway records initialized checkouts and answers verification from
// them, standing in for the Paystack API.
type fakeGateway struct {
	mu       sync.Mutex
	initErr  error
	statuses map[string]string // reference -> verify status, default "success"
	amounts  map[string]int64  // reference -> kobo amount at initiation
}

func newFakeGateway() *fakeGateway {
	return &fakeGateway{
		statuses: make(map[string]string),
		amounts:  make(map[string]int64),
	}
}

func (g *fakeGateway) InitializeTransaction(ctx context.Context, req ports.InitializeTransactionRequest) (*ports.InitializeTransactionResponse, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.initErr != nil {
		return nil, g.initErr
	}
	g.amounts[req.Reference] = req.AmountKobo
	return &ports.InitializeTransactionResponse{
		AuthorizationURL: "https://checkout.example.com/" + req.Reference,
		AccessCode:       "ac_" + req.Reference,
		Reference:        req.Reference,
	}, nil
}

func (g *fakeGateway) VerifyTransaction(ctx context.Context, reference string) (*ports.GatewayTransaction, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	status, ok := g.statuses[reference]
	if !ok {
		status = "success"
	}
	return &ports.GatewayTransaction{
		Reference:  reference,
		Status:     status,
		AmountKobo: g.amounts[reference],
		Currency:   "NGN",
	}, nil
}
