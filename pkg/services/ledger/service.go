package ledger

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/fadedpez/crates/internal/types"
	"github.com/fadedpez/crates/pkg/catalog"
	"github.com/fadedpez/crates/pkg/entities"
	"github.com/fadedpez/crates/pkg/events"
	accountRepo "github.com/fadedpez/crates/pkg/repositories/account"
	inventoryRepo "github.com/fadedpez/crates/pkg/repositories/inventory"
	"github.com/fadedpez/crates/pkg/services/badge"
	"github.com/fadedpez/crates/pkg/services/reward"
)

// Config collects the ledger's collaborators.
type Config struct {
	Accounts        accountRepo.Repository
	Inventory       inventoryRepo.Repository
	Catalog         *catalog.Catalog
	Engine          *reward.Engine
	Evaluator       *badge.Evaluator
	Sink            events.Sink
	Logger          *logrus.Logger
	StartingBalance int64
}

// Service is the only component permitted to mutate balances and inventory.
// Every operation is atomic per player; trade swaps are atomic per pair.
type Service struct {
	accounts        accountRepo.Repository
	inventory       inventoryRepo.Repository
	catalog         *catalog.Catalog
	engine          *reward.Engine
	evaluator       *badge.Evaluator
	sink            events.Sink
	logger          *logrus.Logger
	locks           *playerLocks
	startingBalance int64
}

// NewService creates a new ledger service
func NewService(cfg Config) *Service {
	logger := cfg.Logger
	if logger == nil {
		logger = logrus.New()
	}
	return &Service{
		accounts:        cfg.Accounts,
		inventory:       cfg.Inventory,
		catalog:         cfg.Catalog,
		engine:          cfg.Engine,
		evaluator:       cfg.Evaluator,
		sink:            cfg.Sink,
		logger:          logger,
		locks:           newPlayerLocks(),
		startingBalance: cfg.StartingBalance,
	}
}

// OpenResult is the outcome of a successful case open.
type OpenResult struct {
	Item           *entities.Item
	Won            bool
	NewBalance     int64
	UnlockedBadges []string
}

// SellResult is the outcome of a successful sale.
type SellResult struct {
	Proceeds       int64
	NewBalance     int64
	UnlockedBadges []string
}

// GetOrCreateAccount retrieves an account or creates a new one with the
// starting balance if it doesn't exist.
func (s *Service) GetOrCreateAccount(ctx context.Context, playerID string) (*entities.PlayerAccount, bool, error) {
	unlock := s.locks.lock(playerID)
	defer unlock()
	return s.getOrCreateLocked(ctx, playerID)
}

func (s *Service) getOrCreateLocked(ctx context.Context, playerID string) (*entities.PlayerAccount, bool, error) {
	account, err := s.accounts.GetAccount(ctx, playerID)
	if err == nil {
		return account, false, nil
	}

	if !errors.Is(err, accountRepo.ErrAccountNotFound) {
		return nil, false, err
	}

	newAccount := &entities.PlayerAccount{
		PlayerID: playerID,
		Balance:  s.startingBalance,
		Stats:    entities.PlayerStats{Level: 1},
	}

	if err := s.accounts.SaveAccount(ctx, newAccount); err != nil {
		return nil, false, err
	}

	return newAccount, true, nil
}

// GetInventory returns all inventory stacks for a player.
func (s *Service) GetInventory(ctx context.Context, playerID string) ([]*entities.InventoryEntry, error) {
	return s.inventory.GetInventory(ctx, playerID)
}

// GetTransactions returns the most recent journal entries for a player.
func (s *Service) GetTransactions(ctx context.Context, playerID string, limit int) ([]*entities.Transaction, error) {
	return s.accounts.GetTransactions(ctx, playerID, limit)
}

// OpenCase debits the case price, draws a reward and credits it, all as one
// atomic unit. The player is never charged without receiving an item, nor
// receives an item without being charged.
func (s *Service) OpenCase(ctx context.Context, playerID, caseID string) (*OpenResult, error) {
	result, evts, err := s.openCase(ctx, playerID, caseID)
	if err != nil {
		return nil, err
	}
	s.publishAll(ctx, evts)
	return result, nil
}

// openCase performs the mutation under the player's lock and returns the
// events to publish once the lock is released.
func (s *Service) openCase(ctx context.Context, playerID, caseID string) (*OpenResult, []events.Event, error) {
	def, err := s.catalog.Case(caseID)
	if err != nil {
		return nil, nil, err
	}

	unlock := s.locks.lock(playerID)
	defer unlock()

	account, _, err := s.getOrCreateLocked(ctx, playerID)
	if err != nil {
		return nil, nil, types.WrapError(types.ErrConcurrencyConflict, "loading account", err)
	}

	if account.Balance < def.Price {
		return nil, nil, types.NewErrorf(types.ErrInsufficientFunds,
			"balance %d is below case price %d", account.Balance, def.Price)
	}

	slot, err := s.engine.Select(def)
	if err != nil {
		return nil, nil, err
	}

	item, err := s.catalog.Item(slot.ItemID)
	if err != nil {
		return nil, nil, err
	}

	before := account.Clone()

	// Debit and statistics update
	account.Balance -= def.Price
	stats := &account.Stats
	stats.GamesPlayed++
	stats.TotalWagered += def.Price
	if def.Price > stats.HighestBet {
		stats.HighestBet = def.Price
	}
	won := item.Value >= def.Price
	if won {
		stats.Wins++
		stats.WinStreak++
	} else {
		stats.WinStreak = 0
	}
	stats.Level = levelFor(stats.TotalWagered)

	// Exact-match criteria can only fire now, with the triggering wager
	newly := s.evaluator.Evaluate(account.Snapshot(def.Price), badge.UnlockedSet(account.Badges))
	account.Badges = append(account.Badges, newly...)

	// Credit the item
	entry, err := s.inventory.GetEntry(ctx, playerID, item.ID)
	if err != nil {
		if !errors.Is(err, inventoryRepo.ErrEntryNotFound) {
			return nil, nil, types.WrapError(types.ErrConcurrencyConflict, "loading inventory", err)
		}
		entry = &entities.InventoryEntry{PlayerID: playerID, ItemID: item.ID}
	}
	entry.Quantity++
	entry.SellPrice = item.SellValue()
	entry.ObtainedFrom = def.Name

	if err := s.accounts.SaveAccount(ctx, account); err != nil {
		return nil, nil, types.WrapError(types.ErrConcurrencyConflict, "saving account", err)
	}
	if err := s.inventory.UpsertEntry(ctx, entry); err != nil {
		// Undo the debit so the player is never charged without the item
		if rbErr := s.accounts.SaveAccount(ctx, before); rbErr != nil {
			s.logger.WithError(rbErr).WithField("player_id", playerID).
				Error("rollback after failed item credit also failed")
			return nil, nil, types.WrapError(types.ErrInternal, "crediting item", err)
		}
		return nil, nil, types.WrapError(types.ErrConcurrencyConflict, "crediting item", err)
	}

	s.journal(ctx, playerID, -def.Price, entities.TransactionTypeCaseOpen, caseID,
		fmt.Sprintf("opened case %s", def.Name), account.Balance)

	evts := []events.Event{events.CaseOpened{
		PlayerID:   playerID,
		CaseID:     caseID,
		Item:       item,
		NewBalance: account.Balance,
	}}
	evts = append(evts, unlockEvents(playerID, newly)...)

	return &OpenResult{
		Item:           item,
		Won:            won,
		NewBalance:     account.Balance,
		UnlockedBadges: newly,
	}, evts, nil
}

// SellItem converts unreserved inventory units back into currency at the
// stack's sell price.
func (s *Service) SellItem(ctx context.Context, playerID, itemID string, quantity int) (*SellResult, error) {
	result, evts, err := s.sellItem(ctx, playerID, itemID, quantity)
	if err != nil {
		return nil, err
	}
	s.publishAll(ctx, evts)
	return result, nil
}

func (s *Service) sellItem(ctx context.Context, playerID, itemID string, quantity int) (*SellResult, []events.Event, error) {
	if quantity <= 0 {
		return nil, nil, types.NewError(types.ErrInvalidState, "sell quantity must be positive")
	}

	item, err := s.catalog.Item(itemID)
	if err != nil {
		return nil, nil, err
	}
	if !item.Limited {
		return nil, nil, types.NewErrorf(types.ErrInvalidState, "item %q is account-bound and cannot be sold", itemID)
	}

	unlock := s.locks.lock(playerID)
	defer unlock()

	entry, err := s.inventory.GetEntry(ctx, playerID, itemID)
	if err != nil {
		if errors.Is(err, inventoryRepo.ErrEntryNotFound) {
			return nil, nil, types.NewErrorf(types.ErrInsufficientInventory,
				"player does not hold item %q", itemID)
		}
		return nil, nil, types.WrapError(types.ErrConcurrencyConflict, "loading inventory", err)
	}

	reserved, err := s.reservedQuantity(ctx, playerID, itemID, "")
	if err != nil {
		return nil, nil, types.WrapError(types.ErrConcurrencyConflict, "loading reservations", err)
	}
	if entry.Quantity-reserved < quantity {
		return nil, nil, types.NewErrorf(types.ErrInsufficientInventory,
			"player holds %d unreserved of item %q, want %d", entry.Quantity-reserved, itemID, quantity)
	}

	account, _, err := s.getOrCreateLocked(ctx, playerID)
	if err != nil {
		return nil, nil, types.WrapError(types.ErrConcurrencyConflict, "loading account", err)
	}

	beforeEntry := *entry
	proceeds := entry.SellPrice * int64(quantity)

	entry.Quantity -= quantity
	if err := s.inventory.UpsertEntry(ctx, entry); err != nil {
		return nil, nil, types.WrapError(types.ErrConcurrencyConflict, "updating inventory", err)
	}

	account.Balance += proceeds
	newly := s.evaluator.Evaluate(account.Snapshot(0), badge.UnlockedSet(account.Badges))
	account.Badges = append(account.Badges, newly...)

	if err := s.accounts.SaveAccount(ctx, account); err != nil {
		// Undo the decrement so no item vanishes without the payout
		if rbErr := s.inventory.UpsertEntry(ctx, &beforeEntry); rbErr != nil {
			s.logger.WithError(rbErr).WithField("player_id", playerID).
				Error("rollback after failed sale credit also failed")
			return nil, nil, types.WrapError(types.ErrInternal, "crediting sale", err)
		}
		return nil, nil, types.WrapError(types.ErrConcurrencyConflict, "crediting sale", err)
	}

	s.journal(ctx, playerID, proceeds, entities.TransactionTypeSale, itemID,
		fmt.Sprintf("sold %d x %s", quantity, item.Name), account.Balance)

	evts := []events.Event{events.ItemSold{
		PlayerID:   playerID,
		Item:       item,
		Quantity:   quantity,
		SellPrice:  beforeEntry.SellPrice,
		NewBalance: account.Balance,
	}}
	evts = append(evts, unlockEvents(playerID, newly)...)

	return &SellResult{
		Proceeds:       proceeds,
		NewBalance:     account.Balance,
		UnlockedBadges: newly,
	}, evts, nil
}

// ReserveForTrade places holds on the player's items for a trade proposal.
// Reservation is idempotent per trade id; units already held by another
// trade cannot be reserved again.
func (s *Service) ReserveForTrade(ctx context.Context, tradeID, playerID string, refs []entities.ItemRef) error {
	unlock := s.locks.lock(playerID)
	defer unlock()

	reservations, err := s.inventory.GetReservationsForPlayer(ctx, playerID)
	if err != nil {
		return types.WrapError(types.ErrConcurrencyConflict, "loading reservations", err)
	}

	// Validate every ref before writing anything
	for _, ref := range refs {
		if ref.Quantity <= 0 {
			return types.NewError(types.ErrInvalidState, "reservation quantity must be positive")
		}

		item, err := s.catalog.Item(ref.ItemID)
		if err != nil {
			return err
		}
		if !item.Limited {
			return types.NewErrorf(types.ErrInvalidState, "item %q is account-bound and cannot be traded", ref.ItemID)
		}

		entry, err := s.inventory.GetEntry(ctx, playerID, ref.ItemID)
		if err != nil {
			if errors.Is(err, inventoryRepo.ErrEntryNotFound) {
				return types.NewErrorf(types.ErrOwnership, "player does not own item %q", ref.ItemID)
			}
			return types.WrapError(types.ErrConcurrencyConflict, "loading inventory", err)
		}
		if entry.Quantity < ref.Quantity {
			return types.NewErrorf(types.ErrOwnership,
				"player owns %d of item %q, want %d", entry.Quantity, ref.ItemID, ref.Quantity)
		}

		reservedByOthers := 0
		for _, res := range reservations {
			if res.ItemID == ref.ItemID && res.TradeID != tradeID {
				reservedByOthers += res.Quantity
			}
		}
		if entry.Quantity-reservedByOthers < ref.Quantity {
			return types.NewErrorf(types.ErrAlreadyReserved,
				"item %q already reserved by a pending trade", ref.ItemID)
		}
	}

	for _, ref := range refs {
		res := &entities.Reservation{
			TradeID:  tradeID,
			PlayerID: playerID,
			ItemID:   ref.ItemID,
			Quantity: ref.Quantity,
		}
		if err := s.inventory.SaveReservation(ctx, res); err != nil {
			// Release whatever this trade managed to hold
			if rbErr := s.inventory.DeleteReservations(ctx, tradeID); rbErr != nil {
				s.logger.WithError(rbErr).WithField("trade_id", tradeID).
					Error("releasing partial reservations failed")
			}
			return types.WrapError(types.ErrConcurrencyConflict, "saving reservation", err)
		}
	}

	return nil
}

// Release removes every hold belonging to a trade. Safe to call on any
// terminal transition, repeatedly.
func (s *Service) Release(ctx context.Context, tradeID string) error {
	if err := s.inventory.DeleteReservations(ctx, tradeID); err != nil {
		return types.WrapError(types.ErrConcurrencyConflict, "releasing reservations", err)
	}
	return nil
}

// ApplyTradeSwap atomically transfers the trade's items between both
// players. Ownership and reservations are re-checked immediately before
// commit; any violation fails the swap with no effect.
func (s *Service) ApplyTradeSwap(ctx context.Context, trade *entities.Trade) error {
	unlock := s.locks.lockPair(trade.InitiatorID, trade.TargetID)
	defer unlock()

	tradeHolds, err := s.inventory.GetReservationsForTrade(ctx, trade.ID)
	if err != nil {
		return types.WrapError(types.ErrConcurrencyConflict, "loading reservations", err)
	}
	held := make(map[string]int)
	for _, res := range tradeHolds {
		held[res.PlayerID+"/"+res.ItemID] = res.Quantity
	}

	plan := newSwapPlan(s.inventory, func(item entities.TradeItem) int64 {
		if catalogItem, err := s.catalog.Item(item.ItemID); err == nil {
			return catalogItem.SellValue()
		}
		// Item left the catalog since proposal; derive from the snapshot
		return item.SellValue()
	})

	// Initiator side: ownership and this trade's reservation must both hold
	for _, item := range trade.InitiatorItems {
		entry, err := plan.load(ctx, trade.InitiatorID, item.ItemID)
		if err != nil {
			return err
		}
		if entry.Quantity < item.Quantity {
			return types.NewErrorf(types.ErrStaleTrade,
				"initiator no longer owns %d of item %q", item.Quantity, item.ItemID)
		}
		if held[trade.InitiatorID+"/"+item.ItemID] < item.Quantity {
			return types.NewErrorf(types.ErrStaleTrade,
				"reservation for item %q is missing", item.ItemID)
		}
	}

	// Target side: the requested items were never reserved (the target had
	// not consented at proposal time), so only unreserved ownership counts
	targetReservations, err := s.inventory.GetReservationsForPlayer(ctx, trade.TargetID)
	if err != nil {
		return types.WrapError(types.ErrConcurrencyConflict, "loading reservations", err)
	}
	for _, item := range trade.TargetItems {
		entry, err := plan.load(ctx, trade.TargetID, item.ItemID)
		if err != nil {
			return err
		}
		reservedByOthers := 0
		for _, res := range targetReservations {
			if res.ItemID == item.ItemID && res.TradeID != trade.ID {
				reservedByOthers += res.Quantity
			}
		}
		if entry.Quantity-reservedByOthers < item.Quantity {
			return types.NewErrorf(types.ErrStaleTrade,
				"target no longer owns %d unreserved of item %q", item.Quantity, item.ItemID)
		}
	}

	// Both transfers as one plan: debit each side, credit the other
	for _, item := range trade.InitiatorItems {
		if err := plan.move(ctx, trade.InitiatorID, trade.TargetID, item); err != nil {
			return err
		}
	}
	for _, item := range trade.TargetItems {
		if err := plan.move(ctx, trade.TargetID, trade.InitiatorID, item); err != nil {
			return err
		}
	}

	if err := plan.commit(ctx, s.logger); err != nil {
		return err
	}

	if err := s.inventory.DeleteReservations(ctx, trade.ID); err != nil {
		s.logger.WithError(err).WithField("trade_id", trade.ID).
			Warn("releasing reservations after swap failed")
	}

	return nil
}

// reservedQuantity sums the player's holds on one item, excluding the given
// trade when set.
func (s *Service) reservedQuantity(ctx context.Context, playerID, itemID, excludeTradeID string) (int, error) {
	reservations, err := s.inventory.GetReservationsForPlayer(ctx, playerID)
	if err != nil {
		return 0, err
	}

	total := 0
	for _, res := range reservations {
		if res.ItemID == itemID && res.TradeID != excludeTradeID {
			total += res.Quantity
		}
	}
	return total, nil
}

// journal records a balance mutation; journal failures are logged, not
// surfaced, since the balance change itself has committed.
func (s *Service) journal(ctx context.Context, playerID string, amount int64, txType entities.TransactionType, referenceID, description string, balanceAfter int64) {
	err := s.accounts.AddTransaction(ctx, &entities.Transaction{
		PlayerID:     playerID,
		Amount:       amount,
		Type:         txType,
		ReferenceID:  referenceID,
		Description:  description,
		Timestamp:    time.Now(),
		BalanceAfter: balanceAfter,
	})
	if err != nil {
		s.logger.WithError(err).WithField("player_id", playerID).Warn("recording transaction failed")
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

func (s *Service) publishAll(ctx context.Context, evts []events.Event) {
	for _, event := range evts {
		s.publish(ctx, event)
	}
}

// unlockEvents builds the badge events for codes unlocked during a mutation.
// Callers collect them under the player's lock and publish after release.
func unlockEvents(playerID string, codes []string) []events.Event {
	evts := make([]events.Event, 0, len(codes))
	for _, code := range codes {
		evts = append(evts, events.BadgeUnlocked{PlayerID: playerID, BadgeCode: code})
	}
	return evts
}

// levelFor derives a player's level from lifetime wagering.
func levelFor(totalWagered int64) int {
	return int(totalWagered/1000) + 1
}
