package trade

import (
	"context"

	"github.com/fadedpez/crates/pkg/entities"
)

// Repository defines the interface for trade data operations
type Repository interface {
	// GetTrade retrieves a trade by ID
	GetTrade(ctx context.Context, id string) (*entities.Trade, error)

	// SaveTrade creates or updates a trade with its item snapshots
	SaveTrade(ctx context.Context, trade *entities.Trade) error

	// GetPendingTrades retrieves every trade still in pending state
	GetPendingTrades(ctx context.Context) ([]*entities.Trade, error)

	// GetTradesForPlayer retrieves recent trades a player participated in
	GetTradesForPlayer(ctx context.Context, playerID string, limit int) ([]*entities.Trade, error)
}
