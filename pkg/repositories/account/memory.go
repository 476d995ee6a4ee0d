package account

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/fadedpez/crates/pkg/entities"
	"github.com/google/uuid"
)

var (
	ErrAccountNotFound = errors.New("account not found")
)

// MemoryRepository implements Repository using in-memory storage
type MemoryRepository struct {
	accounts     map[string]*entities.PlayerAccount
	transactions map[string][]*entities.Transaction
	mu           sync.RWMutex
}

// NewMemoryRepository creates a new in-memory account repository
func NewMemoryRepository() *MemoryRepository {
	return &MemoryRepository{
		accounts:     make(map[string]*entities.PlayerAccount),
		transactions: make(map[string][]*entities.Transaction),
	}
}

// GetAccount retrieves an account by player ID
func (r *MemoryRepository) GetAccount(ctx context.Context, playerID string) (*entities.PlayerAccount, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	account, exists := r.accounts[playerID]
	if !exists {
		return nil, ErrAccountNotFound
	}

	return copyAccount(account), nil
}

// SaveAccount creates or updates an account. Badges are merged with any
// already stored: once unlocked they are never revoked, matching the
// insert-only badge table in the sqlite repository.
func (r *MemoryRepository) SaveAccount(ctx context.Context, account *entities.PlayerAccount) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	account.LastUpdated = time.Now()
	saved := copyAccount(account)
	if existing, ok := r.accounts[account.PlayerID]; ok {
		saved.Badges = mergeBadges(existing.Badges, saved.Badges)
	}
	r.accounts[account.PlayerID] = saved

	return nil
}

// AddTransaction records a new journal entry
func (r *MemoryRepository) AddTransaction(ctx context.Context, transaction *entities.Transaction) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if transaction.ID == "" {
		transaction.ID = uuid.New().String()
	}
	if transaction.Timestamp.IsZero() {
		transaction.Timestamp = time.Now()
	}

	txCopy := *transaction
	r.transactions[transaction.PlayerID] = append(r.transactions[transaction.PlayerID], &txCopy)

	return nil
}

// GetTransactions retrieves recent transactions for a player
func (r *MemoryRepository) GetTransactions(ctx context.Context, playerID string, limit int) ([]*entities.Transaction, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	transactions, exists := r.transactions[playerID]
	if !exists {
		return make([]*entities.Transaction, 0), nil
	}

	result := make([]*entities.Transaction, 0, limit)

	start := 0
	if len(transactions) > limit {
		start = len(transactions) - limit
	}

	for i := start; i < len(transactions); i++ {
		txCopy := *transactions[i]
		result = append(result, &txCopy)
	}

	return result, nil
}

// GetTransactionsByType retrieves transactions of a specific type
func (r *MemoryRepository) GetTransactionsByType(ctx context.Context, playerID string, transactionType entities.TransactionType, limit int) ([]*entities.Transaction, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	transactions, exists := r.transactions[playerID]
	if !exists {
		return make([]*entities.Transaction, 0), nil
	}

	filtered := make([]*entities.Transaction, 0, limit)
	for i := len(transactions) - 1; i >= 0 && len(filtered) < limit; i-- {
		if transactions[i].Type == transactionType {
			txCopy := *transactions[i]
			filtered = append(filtered, &txCopy)
		}
	}

	return filtered, nil
}

// mergeBadges unions stored and incoming badge codes, preserving the stored
// order and appending new codes in the order given.
func mergeBadges(stored, incoming []string) []string {
	seen := make(map[string]struct{}, len(stored))
	merged := make([]string, 0, len(stored)+len(incoming))
	for _, code := range stored {
		seen[code] = struct{}{}
		merged = append(merged, code)
	}
	for _, code := range incoming {
		if _, ok := seen[code]; ok {
			continue
		}
		seen[code] = struct{}{}
		merged = append(merged, code)
	}
	return merged
}

// copyAccount clones an account so callers never share slices with the store
func copyAccount(account *entities.PlayerAccount) *entities.PlayerAccount {
	accountCopy := *account
	accountCopy.Badges = make([]string, len(account.Badges))
	copy(accountCopy.Badges, account.Badges)
	return &accountCopy
}
