package trade

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/fadedpez/crates/pkg/entities"
	_ "github.com/mattn/go-sqlite3"
)

// SQLite table schemas
const (
	createTradesTableSQL = `
	CREATE TABLE IF NOT EXISTS trades (
		id TEXT PRIMARY KEY,
		initiator_id TEXT NOT NULL,
		target_id TEXT NOT NULL,
		initiator_value INTEGER NOT NULL,
		target_value INTEGER NOT NULL,
		status TEXT NOT NULL,
		reason TEXT,
		created_at TIMESTAMP NOT NULL,
		responded_at TIMESTAMP,
		completed_at TIMESTAMP,
		expires_at TIMESTAMP NOT NULL
	)`

	createTradeItemsTableSQL = `
	CREATE TABLE IF NOT EXISTS trade_items (
		trade_id TEXT NOT NULL,
		side TEXT NOT NULL,
		position INTEGER NOT NULL,
		item_id TEXT NOT NULL,
		quantity INTEGER NOT NULL,
		value INTEGER NOT NULL,
		rarity TEXT NOT NULL,
		PRIMARY KEY (trade_id, side, position),
		FOREIGN KEY (trade_id) REFERENCES trades(id)
	)`

	createTradeIndexesSQL = `
	CREATE INDEX IF NOT EXISTS idx_trades_status ON trades(status);
	CREATE INDEX IF NOT EXISTS idx_trades_initiator ON trades(initiator_id);
	CREATE INDEX IF NOT EXISTS idx_trades_target ON trades(target_id)
	`

	sideInitiator = "initiator"
	sideTarget    = "target"
)

// SQLiteRepository implements Repository using SQLite
type SQLiteRepository struct {
	db *sql.DB
}

// NewSQLiteRepository creates a new SQLite trade repository
func NewSQLiteRepository(dbPath string) (*SQLiteRepository, error) {
	dbDir := filepath.Dir(dbPath)
	if err := os.MkdirAll(dbDir, 0755); err != nil {
		return nil, fmt.Errorf("error creating database directory: %w", err)
	}

	db, err := sql.Open("sqlite3", dbPath)
	if err != nil {
		return nil, fmt.Errorf("error opening database: %w", err)
	}

	for _, stmt := range []string{createTradesTableSQL, createTradeItemsTableSQL, createTradeIndexesSQL} {
		if _, err := db.Exec(stmt); err != nil {
			db.Close()
			return nil, fmt.Errorf("error creating trade tables: %w", err)
		}
	}

	return &SQLiteRepository{db: db}, nil
}

// GetTrade retrieves a trade by ID
func (r *SQLiteRepository) GetTrade(ctx context.Context, id string) (*entities.Trade, error) {
	trade, err := r.scanTrade(r.db.QueryRowContext(ctx, `
		SELECT id, initiator_id, target_id, initiator_value, target_value,
			status, reason, created_at, responded_at, completed_at, expires_at
		FROM trades WHERE id = ?`, id))
	if err != nil {
		return nil, err
	}

	if err := r.loadItems(ctx, trade); err != nil {
		return nil, err
	}

	return trade, nil
}

// SaveTrade creates or updates a trade with its item snapshots
func (r *SQLiteRepository) SaveTrade(ctx context.Context, trade *entities.Trade) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("error beginning transaction: %w", err)
	}
	defer tx.Rollback()

	_, err = tx.ExecContext(ctx, `
		INSERT INTO trades (id, initiator_id, target_id, initiator_value, target_value,
			status, reason, created_at, responded_at, completed_at, expires_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			initiator_value = excluded.initiator_value,
			target_value = excluded.target_value,
			status = excluded.status,
			reason = excluded.reason,
			responded_at = excluded.responded_at,
			completed_at = excluded.completed_at`,
		trade.ID, trade.InitiatorID, trade.TargetID,
		trade.InitiatorValue, trade.TargetValue,
		string(trade.Status), trade.Reason,
		formatTimestamp(trade.CreatedAt),
		nullableTimestamp(trade.RespondedAt),
		nullableTimestamp(trade.CompletedAt),
		formatTimestamp(trade.ExpiresAt),
	)
	if err != nil {
		return fmt.Errorf("error saving trade: %w", err)
	}

	// Item snapshots are immutable once written, but a save after SetItems
	// must replace them wholesale so the totals and lists never diverge
	if _, err := tx.ExecContext(ctx, `DELETE FROM trade_items WHERE trade_id = ?`, trade.ID); err != nil {
		return fmt.Errorf("error clearing trade items: %w", err)
	}

	if err := insertItems(ctx, tx, trade.ID, sideInitiator, trade.InitiatorItems); err != nil {
		return err
	}
	if err := insertItems(ctx, tx, trade.ID, sideTarget, trade.TargetItems); err != nil {
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("error committing trade save: %w", err)
	}

	return nil
}

func insertItems(ctx context.Context, tx *sql.Tx, tradeID, side string, items []entities.TradeItem) error {
	for i, item := range items {
		_, err := tx.ExecContext(ctx, `
			INSERT INTO trade_items (trade_id, side, position, item_id, quantity, value, rarity)
			VALUES (?, ?, ?, ?, ?, ?, ?)`,
			tradeID, side, i, item.ItemID, item.Quantity, item.Value, string(item.Rarity))
		if err != nil {
			return fmt.Errorf("error saving trade item: %w", err)
		}
	}
	return nil
}

// GetPendingTrades retrieves every trade still in pending state
func (r *SQLiteRepository) GetPendingTrades(ctx context.Context) ([]*entities.Trade, error) {
	return r.queryTrades(ctx, `
		SELECT id, initiator_id, target_id, initiator_value, target_value,
			status, reason, created_at, responded_at, completed_at, expires_at
		FROM trades WHERE status = ?`, string(entities.TradeStatusPending))
}

// GetTradesForPlayer retrieves recent trades a player participated in
func (r *SQLiteRepository) GetTradesForPlayer(ctx context.Context, playerID string, limit int) ([]*entities.Trade, error) {
	return r.queryTrades(ctx, `
		SELECT id, initiator_id, target_id, initiator_value, target_value,
			status, reason, created_at, responded_at, completed_at, expires_at
		FROM trades WHERE initiator_id = ? OR target_id = ?
		ORDER BY created_at DESC LIMIT ?`, playerID, playerID, limit)
}

func (r *SQLiteRepository) queryTrades(ctx context.Context, query string, args ...interface{}) ([]*entities.Trade, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("error querying trades: %w", err)
	}
	defer rows.Close()

	trades := make([]*entities.Trade, 0)
	for rows.Next() {
		trade, err := r.scanTrade(rows)
		if err != nil {
			return nil, err
		}
		trades = append(trades, trade)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	for _, trade := range trades {
		if err := r.loadItems(ctx, trade); err != nil {
			return nil, err
		}
	}

	return trades, nil
}

// rowScanner lets scanTrade work with both QueryRow and Query results
type rowScanner interface {
	Scan(dest ...interface{}) error
}

func (r *SQLiteRepository) scanTrade(row rowScanner) (*entities.Trade, error) {
	var trade entities.Trade
	var status string
	var reason sql.NullString
	var createdAt, expiresAt string
	var respondedAt, completedAt sql.NullString

	err := row.Scan(
		&trade.ID, &trade.InitiatorID, &trade.TargetID,
		&trade.InitiatorValue, &trade.TargetValue,
		&status, &reason, &createdAt, &respondedAt, &completedAt, &expiresAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrTradeNotFound
		}
		return nil, fmt.Errorf("error scanning trade: %w", err)
	}

	trade.Status = entities.TradeStatus(status)
	trade.Reason = reason.String
	trade.CreatedAt = parseTimestamp(createdAt)
	trade.ExpiresAt = parseTimestamp(expiresAt)
	if respondedAt.Valid {
		trade.RespondedAt = parseTimestamp(respondedAt.String)
	}
	if completedAt.Valid {
		trade.CompletedAt = parseTimestamp(completedAt.String)
	}

	return &trade, nil
}

func (r *SQLiteRepository) loadItems(ctx context.Context, trade *entities.Trade) error {
	rows, err := r.db.QueryContext(ctx, `
		SELECT side, item_id, quantity, value, rarity
		FROM trade_items WHERE trade_id = ?
		ORDER BY side, position`, trade.ID)
	if err != nil {
		return fmt.Errorf("error querying trade items: %w", err)
	}
	defer rows.Close()

	var initiatorItems, targetItems []entities.TradeItem
	for rows.Next() {
		var side, rarity string
		var item entities.TradeItem
		if err := rows.Scan(&side, &item.ItemID, &item.Quantity, &item.Value, &rarity); err != nil {
			return fmt.Errorf("error scanning trade item: %w", err)
		}
		item.Rarity = entities.Rarity(rarity)

		if side == sideInitiator {
			initiatorItems = append(initiatorItems, item)
		} else {
			targetItems = append(targetItems, item)
		}
	}
	if err := rows.Err(); err != nil {
		return err
	}

	// SetItems recomputes the totals from the snapshots, keeping the stored
	// totals honest even if a row was edited out of band
	trade.SetInitiatorItems(initiatorItems)
	trade.SetTargetItems(targetItems)

	return nil
}

// Close closes the underlying database
func (r *SQLiteRepository) Close() error {
	return r.db.Close()
}

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

func formatTimestamp(t time.Time) string {
	return t.UTC().Format("2006-01-02 15:04:05")
}

func nullableTimestamp(t time.Time) interface{} {
	if t.IsZero() {
		return nil
	}
	return formatTimestamp(t)
}
