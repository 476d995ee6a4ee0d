package trade

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/fadedpez/crates/internal/types"
	"github.com/fadedpez/crates/pkg/catalog"
	"github.com/fadedpez/crates/pkg/entities"
	"github.com/fadedpez/crates/pkg/events"
	tradeRepo "github.com/fadedpez/crates/pkg/repositories/trade"
	"github.com/fadedpez/crates/pkg/services/ledger"
)

// DefaultExpiry is the offer horizon applied when none is configured.
const DefaultExpiry = 24 * time.Hour

// Config collects the trade service's collaborators.
type Config struct {
	Trades  tradeRepo.Repository
	Ledger  *ledger.Service
	Catalog *catalog.Catalog
	Sink    events.Sink
	Logger  *logrus.Logger
	Expiry  time.Duration
	Now     func() time.Time // test hook; defaults to time.Now
}

// Service orchestrates the two-party trade lifecycle. Ownership checks and
// the swap itself go through the ledger; this service owns the state
// machine.
type Service struct {
	trades  tradeRepo.Repository
	ledger  *ledger.Service
	catalog *catalog.Catalog
	sink    events.Sink
	logger  *logrus.Logger
	expiry  time.Duration
	now     func() time.Time
	locks   *tradeLocks
}

// NewService creates a new trade service
func NewService(cfg Config) *Service {
	logger := cfg.Logger
	if logger == nil {
		logger = logrus.New()
	}
	expiry := cfg.Expiry
	if expiry <= 0 {
		expiry = DefaultExpiry
	}
	now := cfg.Now
	if now == nil {
		now = time.Now
	}
	return &Service{
		trades:  cfg.Trades,
		ledger:  cfg.Ledger,
		catalog: cfg.Catalog,
		sink:    cfg.Sink,
		logger:  logger,
		expiry:  expiry,
		now:     now,
		locks:   newTradeLocks(),
	}
}

// Get retrieves a trade by id.
func (s *Service) Get(ctx context.Context, tradeID string) (*entities.Trade, error) {
	trade, err := s.trades.GetTrade(ctx, tradeID)
	if err != nil {
		if errors.Is(err, tradeRepo.ErrTradeNotFound) {
			return nil, types.NewErrorf(types.ErrNotFound, "trade %q not found", tradeID)
		}
		return nil, types.WrapError(types.ErrConcurrencyConflict, "loading trade", err)
	}
	return trade, nil
}

// Propose opens a trade: the initiator offers items from their inventory in
// exchange for items requested from the target. Offered items are reserved
// until the trade reaches a terminal state.
func (s *Service) Propose(ctx context.Context, initiatorID, targetID string, offered, requested []entities.ItemRef) (*entities.Trade, error) {
	if initiatorID == targetID {
		return nil, types.NewError(types.ErrSelfTrade, "cannot trade with yourself")
	}
	if len(offered) == 0 && len(requested) == 0 {
		return nil, types.NewError(types.ErrInvalidState, "trade must include at least one item")
	}

	offeredItems, err := s.snapshotItems(offered)
	if err != nil {
		return nil, err
	}
	requestedItems, err := s.snapshotItems(requested)
	if err != nil {
		return nil, err
	}

	now := s.now()
	trade := &entities.Trade{
		ID:          uuid.New().String(),
		InitiatorID: initiatorID,
		TargetID:    targetID,
		Status:      entities.TradeStatusPending,
		CreatedAt:   now,
		ExpiresAt:   now.Add(s.expiry),
	}
	trade.SetInitiatorItems(offeredItems)
	trade.SetTargetItems(requestedItems)

	// Reserving verifies ownership of every offered item as a side effect
	if err := s.ledger.ReserveForTrade(ctx, trade.ID, initiatorID, offered); err != nil {
		return nil, err
	}

	if err := s.trades.SaveTrade(ctx, trade); err != nil {
		if rbErr := s.ledger.Release(ctx, trade.ID); rbErr != nil {
			s.logger.WithError(rbErr).WithField("trade_id", trade.ID).
				Error("releasing reservations after failed save")
		}
		return nil, types.WrapError(types.ErrConcurrencyConflict, "saving trade", err)
	}

	return trade, nil
}

// snapshotItems resolves refs against the catalog, capturing value and
// rarity at proposal time. Only limited items can change hands.
func (s *Service) snapshotItems(refs []entities.ItemRef) ([]entities.TradeItem, error) {
	items := make([]entities.TradeItem, 0, len(refs))
	for _, ref := range refs {
		if ref.Quantity <= 0 {
			return nil, types.NewError(types.ErrInvalidState, "trade item quantity must be positive")
		}
		item, err := s.catalog.Item(ref.ItemID)
		if err != nil {
			return nil, err
		}
		if !item.Limited {
			return nil, types.NewErrorf(types.ErrInvalidState,
				"item %q is account-bound and cannot be traded", ref.ItemID)
		}
		items = append(items, entities.TradeItem{
			ItemID:   ref.ItemID,
			Quantity: ref.Quantity,
			Value:    item.Value,
			Rarity:   item.Rarity,
		})
	}
	return items, nil
}

// Accept is valid only in pending and only by the target. On success the
// swap is applied and the trade completes; a failed ownership re-check
// declines the trade and frees the reservations instead.
func (s *Service) Accept(ctx context.Context, tradeID, playerID string) (*entities.Trade, error) {
	unlock := s.locks.lock(tradeID)
	trade, err := s.acceptLocked(ctx, tradeID, playerID)
	unlock()

	if err == nil {
		s.publish(ctx, events.TradeCompleted{
			TradeID:     trade.ID,
			InitiatorID: trade.InitiatorID,
			TargetID:    trade.TargetID,
		})
	}
	return trade, err
}

func (s *Service) acceptLocked(ctx context.Context, tradeID, playerID string) (*entities.Trade, error) {
	trade, err := s.Get(ctx, tradeID)
	if err != nil {
		return nil, err
	}
	if trade.Status != entities.TradeStatusPending {
		return nil, types.NewErrorf(types.ErrInvalidState, "trade is %s, not pending", trade.Status)
	}
	if trade.TargetID != playerID {
		return nil, types.NewError(types.ErrOwnership, "only the trade target may accept")
	}

	now := s.now()
	if trade.IsExpired(now) {
		if _, err := s.expire(ctx, trade, now); err != nil {
			return nil, err
		}
		return nil, types.NewError(types.ErrInvalidState, "trade has expired")
	}

	trade.Status = entities.TradeStatusAccepted
	trade.RespondedAt = now
	if err := s.trades.SaveTrade(ctx, trade); err != nil {
		return nil, types.WrapError(types.ErrConcurrencyConflict, "saving trade", err)
	}

	if err := s.ledger.ApplyTradeSwap(ctx, trade); err != nil {
		if types.IsCode(err, types.ErrStaleTrade) {
			// Ownership changed since proposal: decline, release, notify
			trade.Status = entities.TradeStatusDeclined
			trade.Reason = err.Error()
			s.releaseAndSave(ctx, trade)
			return trade, err
		}

		// Transient store failure: the swap had no effect, so the trade
		// returns to pending with its reservations intact and the accept
		// can be retried
		trade.Status = entities.TradeStatusPending
		trade.RespondedAt = time.Time{}
		if saveErr := s.trades.SaveTrade(ctx, trade); saveErr != nil {
			s.logger.WithError(saveErr).WithField("trade_id", trade.ID).
				Error("restoring pending trade after failed swap")
		}
		return nil, err
	}

	trade.Status = entities.TradeStatusCompleted
	trade.CompletedAt = s.now()
	if err := s.trades.SaveTrade(ctx, trade); err != nil {
		// The swap has committed; the status update must be retried, not
		// unwound
		s.logger.WithError(err).WithField("trade_id", trade.ID).
			Error("saving completed trade failed after swap commit")
	}

	return trade, nil
}

// Decline rejects a pending trade. Only the target may decline.
func (s *Service) Decline(ctx context.Context, tradeID, playerID string) (*entities.Trade, error) {
	return s.close(ctx, tradeID, playerID, entities.TradeStatusDeclined)
}

// Cancel withdraws a pending trade. Only the initiator may cancel.
func (s *Service) Cancel(ctx context.Context, tradeID, playerID string) (*entities.Trade, error) {
	return s.close(ctx, tradeID, playerID, entities.TradeStatusCancelled)
}

func (s *Service) close(ctx context.Context, tradeID, playerID string, status entities.TradeStatus) (*entities.Trade, error) {
	unlock := s.locks.lock(tradeID)
	defer unlock()

	trade, err := s.Get(ctx, tradeID)
	if err != nil {
		return nil, err
	}
	if trade.Status != entities.TradeStatusPending {
		return nil, types.NewErrorf(types.ErrInvalidState, "trade is %s, not pending", trade.Status)
	}

	switch status {
	case entities.TradeStatusDeclined:
		if trade.TargetID != playerID {
			return nil, types.NewError(types.ErrOwnership, "only the trade target may decline")
		}
	case entities.TradeStatusCancelled:
		if trade.InitiatorID != playerID {
			return nil, types.NewError(types.ErrOwnership, "only the trade initiator may cancel")
		}
	}

	trade.Status = status
	trade.RespondedAt = s.now()
	s.releaseAndSave(ctx, trade)

	return trade, nil
}

// Expire transitions a pending trade past its horizon to expired, releasing
// its reservations. The periodic sweep calls this; scheduling stays outside
// the core.
func (s *Service) Expire(ctx context.Context, tradeID string) (*entities.Trade, error) {
	unlock := s.locks.lock(tradeID)
	defer unlock()

	trade, err := s.Get(ctx, tradeID)
	if err != nil {
		return nil, err
	}
	if trade.Status != entities.TradeStatusPending {
		return nil, types.NewErrorf(types.ErrInvalidState, "trade is %s, not pending", trade.Status)
	}

	now := s.now()
	if !trade.IsExpired(now) {
		return nil, types.NewError(types.ErrInvalidState, "trade has not expired yet")
	}

	return s.expire(ctx, trade, now)
}

func (s *Service) expire(ctx context.Context, trade *entities.Trade, now time.Time) (*entities.Trade, error) {
	trade.Status = entities.TradeStatusExpired
	trade.RespondedAt = now
	s.releaseAndSave(ctx, trade)
	return trade, nil
}

// SweepExpired transitions every expired pending trade and reports how many
// were expired.
func (s *Service) SweepExpired(ctx context.Context) (int, error) {
	pending, err := s.trades.GetPendingTrades(ctx)
	if err != nil {
		return 0, types.WrapError(types.ErrConcurrencyConflict, "loading pending trades", err)
	}

	now := s.now()
	expired := 0
	for _, trade := range pending {
		if !trade.IsExpired(now) {
			continue
		}

		// Re-read under the trade lock: an Accept racing the sweep may have
		// completed the trade since the pending scan
		unlock := s.locks.lock(trade.ID)
		current, err := s.trades.GetTrade(ctx, trade.ID)
		if err != nil {
			unlock()
			s.logger.WithError(err).WithField("trade_id", trade.ID).Warn("expiring trade failed")
			continue
		}
		if current.Status == entities.TradeStatusPending && current.IsExpired(now) {
			if _, err := s.expire(ctx, current, now); err != nil {
				s.logger.WithError(err).WithField("trade_id", trade.ID).Warn("expiring trade failed")
			} else {
				expired++
			}
		}
		unlock()
	}

	return expired, nil
}

// releaseAndSave frees the trade's reservations and persists its terminal
// state. Both halves are idempotent, so a partial failure is retried by the
// sweep rather than unwound.
func (s *Service) releaseAndSave(ctx context.Context, trade *entities.Trade) {
	if err := s.ledger.Release(ctx, trade.ID); err != nil {
		s.logger.WithError(err).WithField("trade_id", trade.ID).Error("releasing reservations failed")
	}
	if err := s.trades.SaveTrade(ctx, trade); err != nil {
		s.logger.WithError(err).WithField("trade_id", trade.ID).Error("saving trade failed")
	}
}

func (s *Service) publish(ctx context.Context, event events.Event) {
	if s.sink == nil {
		return
	}
	if err := s.sink.Publish(ctx, event); err != nil {
		s.logger.WithError(err).WithField("event", event.Name()).Warn("publishing event failed")
	}
}
