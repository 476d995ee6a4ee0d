package inventory

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/fadedpez/crates/pkg/entities"
)

var (
	ErrEntryNotFound = errors.New("inventory entry not found")
)

type entryKey struct {
	playerID string
	itemID   string
}

// MemoryRepository implements Repository using in-memory storage
type MemoryRepository struct {
	entries      map[entryKey]*entities.InventoryEntry
	reservations map[string][]*entities.Reservation // keyed by trade ID
	mu           sync.RWMutex
}

// NewMemoryRepository creates a new in-memory inventory repository
func NewMemoryRepository() *MemoryRepository {
	return &MemoryRepository{
		entries:      make(map[entryKey]*entities.InventoryEntry),
		reservations: make(map[string][]*entities.Reservation),
	}
}

// GetEntry retrieves one inventory stack
func (r *MemoryRepository) GetEntry(ctx context.Context, playerID, itemID string) (*entities.InventoryEntry, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	entry, exists := r.entries[entryKey{playerID, itemID}]
	if !exists {
		return nil, ErrEntryNotFound
	}

	entryCopy := *entry
	return &entryCopy, nil
}

// GetInventory retrieves all stacks for a player
func (r *MemoryRepository) GetInventory(ctx context.Context, playerID string) ([]*entities.InventoryEntry, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	result := make([]*entities.InventoryEntry, 0)
	for key, entry := range r.entries {
		if key.playerID == playerID {
			entryCopy := *entry
			result = append(result, &entryCopy)
		}
	}

	return result, nil
}

// UpsertEntry creates or updates a stack; a zero quantity deletes it
func (r *MemoryRepository) UpsertEntry(ctx context.Context, entry *entities.InventoryEntry) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	key := entryKey{entry.PlayerID, entry.ItemID}
	if entry.Quantity <= 0 {
		delete(r.entries, key)
		return nil
	}

	entry.UpdatedAt = time.Now()
	entryCopy := *entry
	r.entries[key] = &entryCopy

	return nil
}

// SaveReservation records a hold on inventory units for a trade
func (r *MemoryRepository) SaveReservation(ctx context.Context, reservation *entities.Reservation) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if reservation.CreatedAt.IsZero() {
		reservation.CreatedAt = time.Now()
	}

	// Same trade re-reserving the same item is an idempotent update
	existing := r.reservations[reservation.TradeID]
	for i, res := range existing {
		if res.PlayerID == reservation.PlayerID && res.ItemID == reservation.ItemID {
			resCopy := *reservation
			existing[i] = &resCopy
			return nil
		}
	}

	resCopy := *reservation
	r.reservations[reservation.TradeID] = append(existing, &resCopy)

	return nil
}

// GetReservationsForPlayer retrieves all active holds on a player's items
func (r *MemoryRepository) GetReservationsForPlayer(ctx context.Context, playerID string) ([]*entities.Reservation, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	result := make([]*entities.Reservation, 0)
	for _, list := range r.reservations {
		for _, res := range list {
			if res.PlayerID == playerID {
				resCopy := *res
				result = append(result, &resCopy)
			}
		}
	}

	return result, nil
}

// GetReservationsForTrade retrieves the holds belonging to one trade
func (r *MemoryRepository) GetReservationsForTrade(ctx context.Context, tradeID string) ([]*entities.Reservation, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	list := r.reservations[tradeID]
	result := make([]*entities.Reservation, 0, len(list))
	for _, res := range list {
		resCopy := *res
		result = append(result, &resCopy)
	}

	return result, nil
}

// DeleteReservations removes every hold belonging to a trade
func (r *MemoryRepository) DeleteReservations(ctx context.Context, tradeID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	delete(r.reservations, tradeID)
	return nil
}
