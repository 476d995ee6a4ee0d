package inventory

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
	createInventoryTableSQL = `
	CREATE TABLE IF NOT EXISTS inventory (
		player_id TEXT NOT NULL,
		item_id TEXT NOT NULL,
		quantity INTEGER NOT NULL,
		sell_price INTEGER NOT NULL,
		obtained_from TEXT NOT NULL,
		updated_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP,
		PRIMARY KEY (player_id, item_id)
	)`

	createReservationsTableSQL = `
	CREATE TABLE IF NOT EXISTS reservations (
		trade_id TEXT NOT NULL,
		player_id TEXT NOT NULL,
		item_id TEXT NOT NULL,
		quantity INTEGER NOT NULL,
		created_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP,
		PRIMARY KEY (trade_id, player_id, item_id)
	)`

	createReservationIndexSQL = `
	CREATE INDEX IF NOT EXISTS idx_reservations_player ON reservations(player_id)
	`
)

// SQLiteRepository implements Repository using SQLite
type SQLiteRepository struct {
	db *sql.DB
}

// NewSQLiteRepository creates a new SQLite inventory repository
func NewSQLiteRepository(dbPath string) (*SQLiteRepository, error) {
	dbDir := filepath.Dir(dbPath)
	if err := os.MkdirAll(dbDir, 0755); err != nil {
		return nil, fmt.Errorf("error creating database directory: %w", err)
	}

	db, err := sql.Open("sqlite3", dbPath)
	if err != nil {
		return nil, fmt.Errorf("error opening database: %w", err)
	}

	for _, stmt := range []string{createInventoryTableSQL, createReservationsTableSQL, createReservationIndexSQL} {
		if _, err := db.Exec(stmt); err != nil {
			db.Close()
			return nil, fmt.Errorf("error creating inventory tables: %w", err)
		}
	}

	return &SQLiteRepository{db: db}, nil
}

// GetEntry retrieves one inventory stack
func (r *SQLiteRepository) GetEntry(ctx context.Context, playerID, itemID string) (*entities.InventoryEntry, error) {
	query := `SELECT player_id, item_id, quantity, sell_price, obtained_from, updated_at
		FROM inventory WHERE player_id = ? AND item_id = ?`

	var entry entities.InventoryEntry
	var updatedAt string

	err := r.db.QueryRowContext(ctx, query, playerID, itemID).Scan(
		&entry.PlayerID,
		&entry.ItemID,
		&entry.Quantity,
		&entry.SellPrice,
		&entry.ObtainedFrom,
		&updatedAt,
	)

	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrEntryNotFound
		}
		return nil, fmt.Errorf("error getting inventory entry: %w", err)
	}

	entry.UpdatedAt = parseTimestamp(updatedAt)
	return &entry, nil
}

// GetInventory retrieves all stacks for a player
func (r *SQLiteRepository) GetInventory(ctx context.Context, playerID string) ([]*entities.InventoryEntry, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT player_id, item_id, quantity, sell_price, obtained_from, updated_at
		FROM inventory WHERE player_id = ?`, playerID)
	if err != nil {
		return nil, fmt.Errorf("error querying inventory: %w", err)
	}
	defer rows.Close()

	entries := make([]*entities.InventoryEntry, 0)
	for rows.Next() {
		var entry entities.InventoryEntry
		var updatedAt string
		if err := rows.Scan(&entry.PlayerID, &entry.ItemID, &entry.Quantity,
			&entry.SellPrice, &entry.ObtainedFrom, &updatedAt); err != nil {
			return nil, fmt.Errorf("error scanning inventory entry: %w", err)
		}
		entry.UpdatedAt = parseTimestamp(updatedAt)
		entries = append(entries, &entry)
	}

	return entries, rows.Err()
}

// UpsertEntry creates or updates a stack; a zero quantity deletes it
func (r *SQLiteRepository) UpsertEntry(ctx context.Context, entry *entities.InventoryEntry) error {
	if entry.Quantity <= 0 {
		_, err := r.db.ExecContext(ctx,
			`DELETE FROM inventory WHERE player_id = ? AND item_id = ?`,
			entry.PlayerID, entry.ItemID)
		if err != nil {
			return fmt.Errorf("error deleting inventory entry: %w", err)
		}
		return nil
	}

	_, err := r.db.ExecContext(ctx, `
		INSERT INTO inventory (player_id, item_id, quantity, sell_price, obtained_from, updated_at)
		VALUES (?, ?, ?, ?, ?, CURRENT_TIMESTAMP)
		ON CONFLICT(player_id, item_id) DO UPDATE SET
			quantity = excluded.quantity,
			sell_price = excluded.sell_price,
			obtained_from = excluded.obtained_from,
			updated_at = CURRENT_TIMESTAMP`,
		entry.PlayerID, entry.ItemID, entry.Quantity, entry.SellPrice, entry.ObtainedFrom)
	if err != nil {
		return fmt.Errorf("error saving inventory entry: %w", err)
	}

	return nil
}

// SaveReservation records a hold on inventory units for a trade
func (r *SQLiteRepository) SaveReservation(ctx context.Context, reservation *entities.Reservation) error {
	if reservation.CreatedAt.IsZero() {
		reservation.CreatedAt = time.Now()
	}

	// Re-reserving for the same trade is an idempotent update
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO reservations (trade_id, player_id, item_id, quantity, created_at)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(trade_id, player_id, item_id) DO UPDATE SET
			quantity = excluded.quantity`,
		reservation.TradeID, reservation.PlayerID, reservation.ItemID,
		reservation.Quantity, reservation.CreatedAt.Format("2006-01-02 15:04:05"))
	if err != nil {
		return fmt.Errorf("error saving reservation: %w", err)
	}

	return nil
}

// GetReservationsForPlayer retrieves all active holds on a player's items
func (r *SQLiteRepository) GetReservationsForPlayer(ctx context.Context, playerID string) ([]*entities.Reservation, error) {
	return r.queryReservations(ctx,
		`SELECT trade_id, player_id, item_id, quantity, created_at
		FROM reservations WHERE player_id = ?`, playerID)
}

// GetReservationsForTrade retrieves the holds belonging to one trade
func (r *SQLiteRepository) GetReservationsForTrade(ctx context.Context, tradeID string) ([]*entities.Reservation, error) {
	return r.queryReservations(ctx,
		`SELECT trade_id, player_id, item_id, quantity, created_at
		FROM reservations WHERE trade_id = ?`, tradeID)
}

func (r *SQLiteRepository) queryReservations(ctx context.Context, query string, args ...interface{}) ([]*entities.Reservation, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("error querying reservations: %w", err)
	}
	defer rows.Close()

	reservations := make([]*entities.Reservation, 0)
	for rows.Next() {
		var res entities.Reservation
		var createdAt string
		if err := rows.Scan(&res.TradeID, &res.PlayerID, &res.ItemID, &res.Quantity, &createdAt); err != nil {
			return nil, fmt.Errorf("error scanning reservation: %w", err)
		}
		res.CreatedAt = parseTimestamp(createdAt)
		reservations = append(reservations, &res)
	}

	return reservations, rows.Err()
}

// DeleteReservations removes every hold belonging to a trade
func (r *SQLiteRepository) DeleteReservations(ctx context.Context, tradeID string) error {
	_, err := r.db.ExecContext(ctx, `DELETE FROM reservations WHERE trade_id = ?`, tradeID)
	if err != nil {
		return fmt.Errorf("error deleting reservations: %w", err)
	}
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
