package account

import (
	"context"

	"github.com/fadedpez/crates/pkg/entities"
)

// Repository defines the interface for player account data operations
type Repository interface {
	// GetAccount retrieves an account by player ID
	GetAccount(ctx context.Context, playerID string) (*entities.PlayerAccount, error)

	// SaveAccount creates or updates an account, including its badge set
	SaveAccount(ctx context.Context, account *entities.PlayerAccount) error

	// AddTransaction records a new journal entry
	AddTransaction(ctx context.Context, transaction *entities.Transaction) error

	// GetTransactions retrieves recent transactions for a player
	GetTransactions(ctx context.Context, playerID string, limit int) ([]*entities.Transaction, error)

	// GetTransactionsByType retrieves transactions of a specific type
	GetTransactionsByType(ctx context.Context, playerID string, transactionType entities.TransactionType, limit int) ([]*entities.Transaction, error)
}
