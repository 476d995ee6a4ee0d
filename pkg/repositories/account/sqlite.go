package account

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/fadedpez/crates/pkg/entities"
	"github.com/google/uuid"
	_ "github.com/mattn/go-sqlite3"
)

// SQLite table schemas
const (
	createAccountsTableSQL = `
	CREATE TABLE IF NOT EXISTS accounts (
		player_id TEXT PRIMARY KEY,
		balance INTEGER NOT NULL DEFAULT 0,
		games_played INTEGER NOT NULL DEFAULT 0,
		wins INTEGER NOT NULL DEFAULT 0,
		win_streak INTEGER NOT NULL DEFAULT 0,
		total_wagered INTEGER NOT NULL DEFAULT 0,
		highest_bet INTEGER NOT NULL DEFAULT 0,
		level INTEGER NOT NULL DEFAULT 1,
		created_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP,
		updated_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP
	)`

	createBadgesTableSQL = `
	CREATE TABLE IF NOT EXISTS account_badges (
		player_id TEXT NOT NULL,
		code TEXT NOT NULL,
		unlocked_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP,
		PRIMARY KEY (player_id, code),
		FOREIGN KEY (player_id) REFERENCES accounts(player_id)
	)`

	createTransactionsTableSQL = `
	CREATE TABLE IF NOT EXISTS transactions (
		id TEXT PRIMARY KEY,
		player_id TEXT NOT NULL,
		amount INTEGER NOT NULL,
		type TEXT NOT NULL,
		reference_id TEXT,
		description TEXT,
		timestamp TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP,
		balance_after INTEGER NOT NULL,
		FOREIGN KEY (player_id) REFERENCES accounts(player_id)
	)`

	createTransactionIndexesSQL = `
	CREATE INDEX IF NOT EXISTS idx_transactions_player_id ON transactions(player_id);
	CREATE INDEX IF NOT EXISTS idx_transactions_type ON transactions(type);
	CREATE INDEX IF NOT EXISTS idx_transactions_timestamp ON transactions(timestamp DESC)
	`
)

// timestampFormats covers the layouts SQLite may hand back for TIMESTAMP
// columns depending on how the value was written.
var timestampFormats = []string{
	"2006-01-02 15:04:05",
	"2006-01-02T15:04:05Z",
	"2006-01-02T15:04:05-07:00",
	time.RFC3339,
}

func parseTimestamp(value string) time.Time {
	for _, format := range timestampFormats {
		if t, err := time.Parse(format, value); err == nil {
			return t
		}
	}
	return time.Time{}
}

// SQLiteRepository implements Repository using SQLite
type SQLiteRepository struct {
	db *sql.DB
}

// NewSQLiteRepository creates a new SQLite repository
func NewSQLiteRepository(dbPath string) (*SQLiteRepository, error) {
	// Ensure directory exists
	dbDir := filepath.Dir(dbPath)
	if err := os.MkdirAll(dbDir, 0755); err != nil {
		return nil, fmt.Errorf("error creating database directory: %w", err)
	}

	// Open database
	db, err := sql.Open("sqlite3", dbPath)
	if err != nil {
		return nil, fmt.Errorf("error opening database: %w", err)
	}

	// Create tables if they don't exist
	for _, stmt := range []string{createAccountsTableSQL, createBadgesTableSQL, createTransactionsTableSQL, createTransactionIndexesSQL} {
		if _, err := db.Exec(stmt); err != nil {
			db.Close()
			return nil, fmt.Errorf("error creating account tables: %w", err)
		}
	}

	return &SQLiteRepository{db: db}, nil
}

// GetAccount retrieves an account by player ID
func (r *SQLiteRepository) GetAccount(ctx context.Context, playerID string) (*entities.PlayerAccount, error) {
	query := `SELECT player_id, balance, games_played, wins, win_streak, total_wagered,
		highest_bet, level, updated_at FROM accounts WHERE player_id = ?`

	var account entities.PlayerAccount
	var updatedAt string

	err := r.db.QueryRowContext(ctx, query, playerID).Scan(
		&account.PlayerID,
		&account.Balance,
		&account.Stats.GamesPlayed,
		&account.Stats.Wins,
		&account.Stats.WinStreak,
		&account.Stats.TotalWagered,
		&account.Stats.HighestBet,
		&account.Stats.Level,
		&updatedAt,
	)

	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrAccountNotFound
		}
		return nil, fmt.Errorf("error getting account: %w", err)
	}

	account.LastUpdated = parseTimestamp(updatedAt)

	badges, err := r.getBadges(ctx, playerID)
	if err != nil {
		return nil, err
	}
	account.Badges = badges

	return &account, nil
}

func (r *SQLiteRepository) getBadges(ctx context.Context, playerID string) ([]string, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT code FROM account_badges WHERE player_id = ? ORDER BY unlocked_at`, playerID)
	if err != nil {
		return nil, fmt.Errorf("error getting badges: %w", err)
	}
	defer rows.Close()

	var badges []string
	for rows.Next() {
		var code string
		if err := rows.Scan(&code); err != nil {
			return nil, fmt.Errorf("error scanning badge: %w", err)
		}
		badges = append(badges, code)
	}

	return badges, rows.Err()
}

// SaveAccount creates or updates an account, including its badge set
func (r *SQLiteRepository) SaveAccount(ctx context.Context, account *entities.PlayerAccount) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("error beginning transaction: %w", err)
	}
	defer tx.Rollback()

	_, err = tx.ExecContext(ctx, `
		INSERT INTO accounts (player_id, balance, games_played, wins, win_streak,
			total_wagered, highest_bet, level, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, CURRENT_TIMESTAMP)
		ON CONFLICT(player_id) DO UPDATE SET
			balance = excluded.balance,
			games_played = excluded.games_played,
			wins = excluded.wins,
			win_streak = excluded.win_streak,
			total_wagered = excluded.total_wagered,
			highest_bet = excluded.highest_bet,
			level = excluded.level,
			updated_at = CURRENT_TIMESTAMP`,
		account.PlayerID,
		account.Balance,
		account.Stats.GamesPlayed,
		account.Stats.Wins,
		account.Stats.WinStreak,
		account.Stats.TotalWagered,
		account.Stats.HighestBet,
		account.Stats.Level,
	)
	if err != nil {
		return fmt.Errorf("error saving account: %w", err)
	}

	// Badges are only ever added, never revoked
	for _, code := range account.Badges {
		_, err = tx.ExecContext(ctx, `
			INSERT INTO account_badges (player_id, code) VALUES (?, ?)
			ON CONFLICT(player_id, code) DO NOTHING`,
			account.PlayerID, code)
		if err != nil {
			return fmt.Errorf("error saving badge %s: %w", code, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("error committing account save: %w", err)
	}

	return nil
}

// AddTransaction records a new journal entry
func (r *SQLiteRepository) AddTransaction(ctx context.Context, transaction *entities.Transaction) error {
	if transaction.ID == "" {
		transaction.ID = uuid.New().String()
	}
	if transaction.Timestamp.IsZero() {
		transaction.Timestamp = time.Now()
	}

	_, err := r.db.ExecContext(ctx, `
		INSERT INTO transactions (id, player_id, amount, type, reference_id, description, timestamp, balance_after)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		transaction.ID,
		transaction.PlayerID,
		transaction.Amount,
		string(transaction.Type),
		transaction.ReferenceID,
		transaction.Description,
		transaction.Timestamp.Format("2006-01-02 15:04:05"),
		transaction.BalanceAfter,
	)
	if err != nil {
		return fmt.Errorf("error adding transaction: %w", err)
	}

	return nil
}

// GetTransactions retrieves recent transactions for a player
func (r *SQLiteRepository) GetTransactions(ctx context.Context, playerID string, limit int) ([]*entities.Transaction, error) {
	return r.queryTransactions(ctx, `
		SELECT id, player_id, amount, type, reference_id, description, timestamp, balance_after
		FROM transactions WHERE player_id = ?
		ORDER BY timestamp DESC LIMIT ?`, playerID, limit)
}

// GetTransactionsByType retrieves transactions of a specific type
func (r *SQLiteRepository) GetTransactionsByType(ctx context.Context, playerID string, transactionType entities.TransactionType, limit int) ([]*entities.Transaction, error) {
	return r.queryTransactions(ctx, `
		SELECT id, player_id, amount, type, reference_id, description, timestamp, balance_after
		FROM transactions WHERE player_id = ? AND type = ?
		ORDER BY timestamp DESC LIMIT ?`, playerID, string(transactionType), limit)
}

func (r *SQLiteRepository) queryTransactions(ctx context.Context, query string, args ...interface{}) ([]*entities.Transaction, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("error querying transactions: %w", err)
	}
	defer rows.Close()

	var transactions []*entities.Transaction
	for rows.Next() {
		var tx entities.Transaction
		var txType, timestamp string
		var referenceID, description sql.NullString

		if err := rows.Scan(&tx.ID, &tx.PlayerID, &tx.Amount, &txType,
			&referenceID, &description, &timestamp, &tx.BalanceAfter); err != nil {
			return nil, fmt.Errorf("error scanning transaction: %w", err)
		}

		tx.Type = entities.TransactionType(txType)
		tx.ReferenceID = referenceID.String
		tx.Description = description.String
		tx.Timestamp = parseTimestamp(timestamp)
		transactions = append(transactions, &tx)
	}

	return transactions, rows.Err()
}

// Close closes the underlying database
func (r *SQLiteRepository) Close() error {
	return r.db.Close()
}
