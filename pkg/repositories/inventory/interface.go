package inventory

import (
	"context"

	"github.com/fadedpez/crates/pkg/entities"
)

// Repository defines the interface for inventory and reservation data
// operations. The ledger is the only writer.
type Repository interface {
	// GetEntry retrieves one inventory stack
	GetEntry(ctx context.Context, playerID, itemID string) (*entities.InventoryEntry, error)

	// GetInventory retrieves all stacks for a player
	GetInventory(ctx context.Context, playerID string) ([]*entities.InventoryEntry, error)

	// UpsertEntry creates or updates a stack; a zero quantity deletes it
	UpsertEntry(ctx context.Context, entry *entities.InventoryEntry) error

	// SaveReservation records a hold on inventory units for a trade
	SaveReservation(ctx context.Context, reservation *entities.Reservation) error

	// GetReservationsForPlayer retrieves all active holds on a player's items
	GetReservationsForPlayer(ctx context.Context, playerID string) ([]*entities.Reservation, error)

	// GetReservationsForTrade retrieves the holds belonging to one trade
	GetReservationsForTrade(ctx context.Context, tradeID string) ([]*entities.Reservation, error)

	// DeleteReservations removes every hold belonging to a trade
	DeleteReservations(ctx context.Context, tradeID string) error
}
