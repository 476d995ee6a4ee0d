package trade

import (
	"context"
	"errors"
	"sort"
	"sync"

	"github.com/fadedpez/crates/pkg/entities"
)

var (
	ErrTradeNotFound = errors.New("trade not found")
)

// MemoryRepository implements Repository using in-memory storage
type MemoryRepository struct {
	trades map[string]*entities.Trade
	mu     sync.RWMutex
}

// NewMemoryRepository creates a new in-memory trade repository
func NewMemoryRepository() *MemoryRepository {
	return &MemoryRepository{
		trades: make(map[string]*entities.Trade),
	}
}

// GetTrade retrieves a trade by ID
func (r *MemoryRepository) GetTrade(ctx context.Context, id string) (*entities.Trade, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	trade, exists := r.trades[id]
	if !exists {
		return nil, ErrTradeNotFound
	}

	return copyTrade(trade), nil
}

// SaveTrade creates or updates a trade
func (r *MemoryRepository) SaveTrade(ctx context.Context, trade *entities.Trade) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.trades[trade.ID] = copyTrade(trade)
	return nil
}

// GetPendingTrades retrieves every trade still in pending state
func (r *MemoryRepository) GetPendingTrades(ctx context.Context) ([]*entities.Trade, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	result := make([]*entities.Trade, 0)
	for _, trade := range r.trades {
		if trade.Status == entities.TradeStatusPending {
			result = append(result, copyTrade(trade))
		}
	}

	return result, nil
}

// GetTradesForPlayer retrieves recent trades a player participated in
func (r *MemoryRepository) GetTradesForPlayer(ctx context.Context, playerID string, limit int) ([]*entities.Trade, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	result := make([]*entities.Trade, 0)
	for _, trade := range r.trades {
		if trade.InitiatorID == playerID || trade.TargetID == playerID {
			result = append(result, copyTrade(trade))
		}
	}

	// Most recent first
	sort.Slice(result, func(i, j int) bool {
		return result[i].CreatedAt.After(result[j].CreatedAt)
	})

	if limit > 0 && len(result) > limit {
		result = result[:limit]
	}

	return result, nil
}

// copyTrade clones a trade so callers never share slices with the store
func copyTrade(trade *entities.Trade) *entities.Trade {
	tradeCopy := *trade
	tradeCopy.InitiatorItems = make([]entities.TradeItem, len(trade.InitiatorItems))
	copy(tradeCopy.InitiatorItems, trade.InitiatorItems)
	tradeCopy.TargetItems = make([]entities.TradeItem, len(trade.TargetItems))
	copy(tradeCopy.TargetItems, trade.TargetItems)
	return &tradeCopy
}
